package model

import (
	"strings"

	"github.com/shopspring/decimal"
)

// MarketType defines the market side of a venue (spot or perpetual swap).
type MarketType string

const (
	MarketSpot MarketType = "spot"
	MarketSwap MarketType = "swap"
)

// TradeDirection is the recommended leg ordering for a cross-venue position.
type TradeDirection string

const (
	DirectionAB    TradeDirection = "A_B"
	DirectionBA    TradeDirection = "B_A"
	DirectionEqual TradeDirection = "equal"
)

// Desc returns the human readable label for the direction.
func (d TradeDirection) Desc() string {
	switch d {
	case DirectionAB:
		return "buy A, sell B"
	case DirectionBA:
		return "sell A, buy B"
	case DirectionEqual:
		return "equal"
	default:
		return ""
	}
}

// Quote is one best-bid/best-ask record produced by a venue adapter.
// Timestamp is epoch milliseconds; zero means unknown and the counterpart
// side's timestamp is used instead.
type Quote struct {
	Symbol    string
	Source    string
	Bid       decimal.Decimal
	Ask       decimal.Decimal
	Timestamp int64
}

// MarkPrice carries the derivative reference prices of a swap market.
type MarkPrice struct {
	Symbol          string
	MarkPrice       decimal.Decimal
	IndexPrice      decimal.Decimal
	LastFundingRate decimal.Decimal
	Time            int64
}

// SymbolRow is one ranked output record per instrument per venue pair.
// Rows are created fresh per aggregation pass and never mutated after ranking.
type SymbolRow struct {
	Symbol string `json:"symbol"`

	BookA     string          `json:"bookA"`
	BidPriceA decimal.Decimal `json:"bidPriceA"`
	AskPriceA decimal.Decimal `json:"askPriceA"`

	BookB     string          `json:"bookB"`
	BidPriceB decimal.Decimal `json:"bidPriceB"`
	AskPriceB decimal.Decimal `json:"askPriceB"`

	// Opening spreads, percent of the selling side's bid.
	DiffAb *decimal.Decimal `json:"diffAb,omitempty"`
	DiffBa *decimal.Decimal `json:"diffBa,omitempty"`

	Direction     TradeDirection `json:"direction,omitempty"`
	DirectionDesc string         `json:"directionDesc,omitempty"`

	// Exit spread, the cost of unwinding in the opposite order.
	Qccj *decimal.Decimal `json:"qccj,omitempty"`

	Timestamp int64 `json:"timestamp"`

	// Depth quality. Smaller means the opening and exit spreads agree closely.
	Pc *decimal.Decimal `json:"pc,omitempty"`

	// Swap-market only enrichment.
	LastFundingRate *decimal.Decimal `json:"lastFundingRate,omitempty"`
	Zscj            *decimal.Decimal `json:"zscj,omitempty"`
}

// WatchRequest is the caller's filter for one ranking pass.
type WatchRequest struct {
	// Comma separated symbol list, empty means every symbol on side A.
	Symbols   string `form:"symbols"`
	Direction string `form:"direction"`
	TopN      int    `form:"topN,default=200"`
	// Comma separated venue-market lists, e.g. "binance-spot,okx-spot".
	BookA string `form:"bookA"`
	BookB string `form:"bookB"`
}

// SymbolList splits and upper-cases the requested symbols.
func (r WatchRequest) SymbolList() []string {
	if strings.TrimSpace(r.Symbols) == "" {
		return nil
	}
	parts := strings.Split(r.Symbols, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.ToUpper(strings.TrimSpace(p)); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// BookOption is one selectable venue-market entry for UI population.
type BookOption struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}
