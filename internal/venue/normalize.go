package venue

import (
	"github.com/shopspring/decimal"

	"spreadwatch/internal/model"
	"spreadwatch/logger"
)

// NormalizeQuote converts one raw ticker entry into a Quote. Entries with a
// non-positive or unparsable bid/ask are dropped and logged; they never fail
// the batch.
func NormalizeQuote(log *logger.Entry, source, symbol, bid, ask string, ts int64) (model.Quote, bool) {
	b, errBid := decimal.NewFromString(bid)
	a, errAsk := decimal.NewFromString(ask)
	if errBid != nil || errAsk != nil || b.Sign() <= 0 || a.Sign() <= 0 {
		log.WithFields(logger.Fields{
			"symbol": symbol,
			"source": source,
			"bid":    bid,
			"ask":    ask,
		}).Warn("dropping quote with invalid bid/ask")
		return model.Quote{}, false
	}
	return model.Quote{Symbol: symbol, Source: source, Bid: b, Ask: a, Timestamp: ts}, true
}
