package watch

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"spreadwatch/internal/errs"
	"spreadwatch/internal/model"
	"spreadwatch/internal/venue"
)

type fakeHandler struct {
	spot    []model.Quote
	swap    []model.Quote
	prices  []model.MarkPrice
	spotErr error
	swapErr error
	markErr error
}

func (h *fakeHandler) GetSpot(ctx context.Context) ([]model.Quote, error) {
	return h.spot, h.spotErr
}

func (h *fakeHandler) GetSwap(ctx context.Context) ([]model.Quote, error) {
	return h.swap, h.swapErr
}

func (h *fakeHandler) GetMarkPrice(ctx context.Context) ([]model.MarkPrice, error) {
	return h.prices, h.markErr
}

func q(symbol, source, bid, ask string) model.Quote {
	b, _ := decimal.NewFromString(bid)
	a, _ := decimal.NewFromString(ask)
	return model.Quote{Symbol: symbol, Source: source, Bid: b, Ask: a, Timestamp: 1}
}

func registryWith(t *testing.T, handlers map[string]*fakeHandler) *venue.Registry {
	t.Helper()
	r := venue.NewRegistry()
	for id, h := range handlers {
		h := h
		r.Register(id, id, []model.MarketType{model.MarketSpot, model.MarketSwap}, func(venue.Filter) venue.Handler {
			return h
		})
	}
	return r
}

func TestBookTickersJoin(t *testing.T) {
	handlers := map[string]*fakeHandler{
		"one": {spot: []model.Quote{
			q("BTCUSDT", "one-spot", "100.00", "100.10"),
			q("SOLUSDT", "one-spot", "20.00", "20.01"),
		}},
		"two": {swap: []model.Quote{
			q("BTCUSDT", "two-swap", "100.30", "100.40"),
			q("ETHUSDT", "two-swap", "2000", "2001"),
		}},
	}
	svc := NewService(registryWith(t, handlers), "one-spot", "two-swap")

	rows, err := svc.BookTickers(context.Background(), model.WatchRequest{})
	require.NoError(t, err)

	// SOLUSDT has no side-B counterpart, ETHUSDT no side-A one.
	require.Len(t, rows, 1)
	require.Equal(t, "BTCUSDT", rows[0].Symbol)
	require.Equal(t, model.DirectionAB, rows[0].Direction)
	require.Equal(t, "0.1994", rows[0].DiffAb.String())
}

func TestBookTickersSymbolFilter(t *testing.T) {
	handlers := map[string]*fakeHandler{
		"one": {spot: []model.Quote{
			q("BTCUSDT", "one-spot", "100", "101"),
			q("ETHUSDT", "one-spot", "2000", "2001"),
		}},
		"two": {swap: []model.Quote{
			q("BTCUSDT", "two-swap", "100", "101"),
			q("ETHUSDT", "two-swap", "2000", "2001"),
		}},
	}
	svc := NewService(registryWith(t, handlers), "one-spot", "two-swap")

	rows, err := svc.BookTickers(context.Background(), model.WatchRequest{Symbols: " ethusdt , "})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "ETHUSDT", rows[0].Symbol)
}

func TestBookTickersPartialResult(t *testing.T) {
	down := &fakeHandler{
		spotErr: &errs.SourceUnavailable{Source: "down-spot", Err: errors.New("timeout")},
		swapErr: &errs.SourceUnavailable{Source: "down-swap", Err: errors.New("timeout")},
	}
	handlers := map[string]*fakeHandler{
		"one":  {spot: []model.Quote{q("BTCUSDT", "one-spot", "100.00", "100.10")}},
		"two":  {swap: []model.Quote{q("BTCUSDT", "two-swap", "100.30", "100.40")}},
		"down": down,
	}
	svc := NewService(registryWith(t, handlers), "one-spot", "two-swap")

	rows, err := svc.BookTickers(context.Background(), model.WatchRequest{
		BookA: "one-spot,down-spot",
		BookB: "two-swap",
	})
	require.NoError(t, err)
	require.Len(t, rows, 1, "healthy pair must survive a dropped one")
	require.Equal(t, "one-spot", rows[0].BookA)
}

func TestBookTickersResolutionAborts(t *testing.T) {
	handlers := map[string]*fakeHandler{
		"one": {spot: []model.Quote{q("BTCUSDT", "one-spot", "100", "101")}},
	}
	svc := NewService(registryWith(t, handlers), "one-spot", "one-swap")

	_, err := svc.BookTickers(context.Background(), model.WatchRequest{BookB: "missing-swap"})
	var resErr *errs.ResolutionError
	require.ErrorAs(t, err, &resErr)
}

func TestBookTickersFatalAborts(t *testing.T) {
	handlers := map[string]*fakeHandler{
		"one": {spotErr: &errs.FatalUpstream{Code: -2015, Message: "invalid api key"}},
		"two": {swap: []model.Quote{q("BTCUSDT", "two-swap", "100", "101")}},
	}
	svc := NewService(registryWith(t, handlers), "one-spot", "two-swap")

	_, err := svc.BookTickers(context.Background(), model.WatchRequest{})
	var fatal *errs.FatalUpstream
	require.ErrorAs(t, err, &fatal)
}

func TestBookTickersDirectionAndTopN(t *testing.T) {
	handlers := map[string]*fakeHandler{
		"one": {spot: []model.Quote{
			q("UP1", "one-spot", "100.00", "100.10"),
			q("UP2", "one-spot", "100.00", "100.10"),
			q("DOWN", "one-spot", "100.30", "100.40"),
		}},
		"two": {swap: []model.Quote{
			q("UP1", "two-swap", "100.30", "100.40"),
			q("UP2", "two-swap", "100.50", "100.60"),
			q("DOWN", "two-swap", "100.00", "100.10"),
		}},
	}
	svc := NewService(registryWith(t, handlers), "one-spot", "two-swap")

	rows, err := svc.BookTickers(context.Background(), model.WatchRequest{Direction: "A_B"})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, "UP2", rows[0].Symbol, "larger spread ranks first")

	rows, err = svc.BookTickers(context.Background(), model.WatchRequest{Direction: "A_B", TopN: 1})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "UP2", rows[0].Symbol)
}

func TestBookTickersEnrichment(t *testing.T) {
	funding, _ := decimal.NewFromString("0.0001")
	mark, _ := decimal.NewFromString("100.35")
	index, _ := decimal.NewFromString("100.30")
	handlers := map[string]*fakeHandler{
		"one": {spot: []model.Quote{q("BTCUSDT", "one-spot", "100.00", "100.10")}},
		"two": {
			swap: []model.Quote{q("BTCUSDT", "two-swap", "100.30", "100.40")},
			prices: []model.MarkPrice{{
				Symbol:          "BTCUSDT",
				MarkPrice:       mark,
				IndexPrice:      index,
				LastFundingRate: funding,
			}},
		},
	}
	svc := NewService(registryWith(t, handlers), "one-spot", "two-swap")

	rows, err := svc.BookTickers(context.Background(), model.WatchRequest{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.NotNil(t, rows[0].LastFundingRate)
	require.Equal(t, "0.01", rows[0].LastFundingRate.String())
	require.NotNil(t, rows[0].Zscj)
}

func TestBookTickersEnrichmentBestEffort(t *testing.T) {
	handlers := map[string]*fakeHandler{
		"one": {spot: []model.Quote{q("BTCUSDT", "one-spot", "100.00", "100.10")}},
		"two": {
			swap:    []model.Quote{q("BTCUSDT", "two-swap", "100.30", "100.40")},
			markErr: &errs.SourceUnavailable{Source: "two-swap"},
		},
	}
	svc := NewService(registryWith(t, handlers), "one-spot", "two-swap")

	rows, err := svc.BookTickers(context.Background(), model.WatchRequest{})
	require.NoError(t, err, "mark price failures must not fail the request")
	require.Len(t, rows, 1)
	require.Nil(t, rows[0].LastFundingRate)
}

func TestBookOptions(t *testing.T) {
	handlers := map[string]*fakeHandler{"one": {}}
	svc := NewService(registryWith(t, handlers), "one-spot", "one-swap")

	opts := svc.BookOptions()
	require.Len(t, opts, 2)
}
