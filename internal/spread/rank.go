package spread

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"spreadwatch/internal/model"
)

// Filter keeps only rows whose direction matches the requested one,
// case-insensitively. Rows with an equal or unset direction never match a
// direction-filtered request. An empty direction keeps everything.
func Filter(rows []model.SymbolRow, direction string) []model.SymbolRow {
	direction = strings.TrimSpace(direction)
	if direction == "" {
		return rows
	}
	out := make([]model.SymbolRow, 0, len(rows))
	for _, row := range rows {
		if row.Direction == "" || row.Direction == model.DirectionEqual {
			continue
		}
		if strings.EqualFold(string(row.Direction), direction) {
			out = append(out, row)
		}
	}
	return out
}

// sortKey picks the spread relevant to the row's direction: diffAb for A_B,
// diffBa otherwise. ok is false when the field is missing.
func sortKey(row model.SymbolRow) (decimal.Decimal, bool) {
	var d *decimal.Decimal
	if row.Direction == model.DirectionAB {
		d = row.DiffAb
	} else {
		d = row.DiffBa
	}
	if d == nil {
		return decimal.Zero, false
	}
	return *d, true
}

// Rank sorts rows by their direction-relevant spread, descending, and
// truncates to topN. The sort is stable so equal keys keep the pairing order;
// rows lacking the sort key go last. topN <= 0 disables truncation.
func Rank(rows []model.SymbolRow, topN int) []model.SymbolRow {
	sort.SliceStable(rows, func(i, j int) bool {
		ki, oki := sortKey(rows[i])
		kj, okj := sortKey(rows[j])
		if oki != okj {
			return oki
		}
		if !oki {
			return false
		}
		return ki.GreaterThan(kj)
	})

	if topN > 0 && topN < len(rows) {
		rows = rows[:topN]
	}
	return rows
}
