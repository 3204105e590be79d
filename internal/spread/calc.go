// Package spread computes bidirectional cross-venue spreads, the recommended
// trade direction and the ranking of the resulting rows.
package spread

import (
	"strings"

	"github.com/shopspring/decimal"

	"spreadwatch/internal/model"
)

var hundred = decimal.NewFromInt(100)

// Round4 rounds half-up to 4 decimal places and strips trailing zeros.
// A zero input returns the exact zero decimal.
func Round4(v decimal.Decimal) decimal.Decimal {
	if v.IsZero() {
		return decimal.Zero
	}
	s := v.Round(4).String()
	if strings.IndexByte(s, '.') >= 0 {
		s = strings.TrimRight(s, "0")
		s = strings.TrimRight(s, ".")
	}
	out, _ := decimal.NewFromString(s)
	return out
}

// BuildRow joins one side-A and one side-B quote of the same symbol into a
// SymbolRow and computes spreads, direction, exit spread and depth quality.
func BuildRow(symbol string, a, b model.Quote) model.SymbolRow {
	ts := a.Timestamp
	if ts == 0 {
		ts = b.Timestamp
	}

	row := model.SymbolRow{
		Symbol:    symbol,
		BookA:     a.Source,
		BidPriceA: a.Bid,
		AskPriceA: a.Ask,
		BookB:     b.Source,
		BidPriceB: b.Bid,
		AskPriceB: b.Ask,
		Timestamp: ts,
	}
	calcDirection(&row)
	return row
}

// calcDirection fills DiffAb, DiffBa, Direction, Qccj and Pc.
//
// diffAb is the return from buying on A and selling on B, as a percentage of
// B's bid; diffBa the reverse. The exit spread qccj is the cost of unwinding
// the recommended position in the opposite order.
func calcDirection(row *model.SymbolRow) {
	diffAb := Round4(row.BidPriceB.Sub(row.AskPriceA).Div(row.BidPriceB).Mul(hundred))
	diffBa := Round4(row.BidPriceA.Sub(row.AskPriceB).Div(row.BidPriceA).Mul(hundred))
	row.DiffAb = &diffAb
	row.DiffBa = &diffBa

	switch diffAb.Sign() {
	case 1:
		row.Direction = model.DirectionAB
		qccj := Round4(row.AskPriceB.Sub(row.BidPriceA).Div(row.AskPriceB).Mul(hundred))
		row.Qccj = &qccj
	case -1:
		row.Direction = model.DirectionBA
		qccj := Round4(row.AskPriceA.Sub(row.BidPriceB).Div(row.AskPriceA).Mul(hundred))
		row.Qccj = &qccj
	default:
		row.Direction = model.DirectionEqual
	}
	row.DirectionDesc = row.Direction.Desc()

	if row.Direction == model.DirectionEqual || row.Qccj == nil || row.Qccj.IsZero() {
		return
	}

	chosen := *row.DiffAb
	if row.Direction == model.DirectionBA {
		chosen = *row.DiffBa
	}
	pc := Round4(row.Qccj.Sub(chosen).Div(*row.Qccj).Abs().Mul(hundred))
	row.Pc = &pc
}

// Enrich joins swap-market reference prices onto already ranked rows.
// lastFundingRate and zscj are percentages rounded like every other metric.
func Enrich(rows []model.SymbolRow, prices []model.MarkPrice) {
	if len(prices) == 0 {
		return
	}
	for i := range rows {
		for _, p := range prices {
			if p.Symbol != rows[i].Symbol {
				continue
			}
			rate := Round4(p.LastFundingRate.Mul(hundred))
			rows[i].LastFundingRate = &rate
			if !p.MarkPrice.IsZero() {
				zscj := Round4(p.MarkPrice.Sub(p.IndexPrice).Div(p.MarkPrice).Mul(hundred))
				rows[i].Zscj = &zscj
			}
			break
		}
	}
}
