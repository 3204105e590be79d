package spread

import (
	"testing"

	"github.com/shopspring/decimal"

	"spreadwatch/internal/model"
)

func rowAB(symbol, diffAb string) model.SymbolRow {
	d, _ := decimal.NewFromString(diffAb)
	return model.SymbolRow{Symbol: symbol, Direction: model.DirectionAB, DiffAb: &d}
}

func rowBA(symbol, diffBa string) model.SymbolRow {
	d, _ := decimal.NewFromString(diffBa)
	return model.SymbolRow{Symbol: symbol, Direction: model.DirectionBA, DiffBa: &d}
}

func TestFilterDirection(t *testing.T) {
	rows := []model.SymbolRow{
		rowAB("AAA", "0.5"),
		rowBA("BBB", "0.3"),
		{Symbol: "CCC", Direction: model.DirectionEqual},
		{Symbol: "DDD"},
	}

	got := Filter(rows, "a_b")
	if len(got) != 1 || got[0].Symbol != "AAA" {
		t.Fatalf("A_B filter: %+v", got)
	}

	got = Filter(rows, "B_A")
	if len(got) != 1 || got[0].Symbol != "BBB" {
		t.Fatalf("B_A filter: %+v", got)
	}

	// Equal and unset rows never match a direction filter.
	if got = Filter(rows, "equal"); len(got) != 0 {
		t.Fatalf("equal rows must not match: %+v", got)
	}

	if got = Filter(rows, ""); len(got) != len(rows) {
		t.Fatalf("empty direction must keep all rows, got %d", len(got))
	}
}

func TestRankOrdering(t *testing.T) {
	rows := []model.SymbolRow{
		rowAB("LOW", "0.1"),
		rowBA("HIGH", "0.9"),
		rowAB("MID", "0.5"),
	}

	got := Rank(rows, 0)
	want := []string{"HIGH", "MID", "LOW"}
	for i, symbol := range want {
		if got[i].Symbol != symbol {
			t.Fatalf("position %d = %s, want %s", i, got[i].Symbol, symbol)
		}
	}
}

func TestRankStable(t *testing.T) {
	rows := []model.SymbolRow{
		rowAB("FIRST", "0.5"),
		rowAB("SECOND", "0.5"),
		rowAB("THIRD", "0.5"),
	}

	got := Rank(rows, 0)
	want := []string{"FIRST", "SECOND", "THIRD"}
	for i, symbol := range want {
		if got[i].Symbol != symbol {
			t.Fatalf("equal keys must keep input order, position %d = %s", i, got[i].Symbol)
		}
	}
}

func TestRankTopN(t *testing.T) {
	rows := []model.SymbolRow{
		rowAB("A", "0.1"),
		rowAB("B", "0.2"),
		rowAB("C", "0.3"),
	}

	if got := Rank(append([]model.SymbolRow(nil), rows...), 2); len(got) != 2 {
		t.Fatalf("topN=2 returned %d rows", len(got))
	}
	if got := Rank(append([]model.SymbolRow(nil), rows...), 10); len(got) != 3 {
		t.Fatalf("topN beyond length returned %d rows", len(got))
	}
	if got := Rank(append([]model.SymbolRow(nil), rows...), -1); len(got) != 3 {
		t.Fatalf("topN<=0 must not truncate, got %d rows", len(got))
	}
}

func TestRankMissingKeyLast(t *testing.T) {
	rows := []model.SymbolRow{
		{Symbol: "NOKEY", Direction: model.DirectionAB},
		rowAB("KEYED", "0.1"),
	}

	got := Rank(rows, 0)
	if got[0].Symbol != "KEYED" || got[1].Symbol != "NOKEY" {
		t.Fatalf("rows without a sort key must rank last: %+v", got)
	}
}
