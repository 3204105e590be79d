// Package binance adapts the Binance spot and USD-M futures book-ticker and
// premium-index endpoints to the venue handler contract.
package binance

import (
	"context"
	"errors"
	"net"

	binance "github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	futures "github.com/adshao/go-binance/v2/futures"
	"github.com/shopspring/decimal"

	"spreadwatch/internal/errs"
	"spreadwatch/internal/model"
	"spreadwatch/internal/venue"
	"spreadwatch/logger"
)

const (
	sourceSpot = "Binance-Spot"
	sourceSwap = "Binance-Swap"
)

// Upstream error codes the exchange designates as retryable.
var resendCodes = map[int64]struct{}{
	-1000: {}, -1001: {}, -1021: {}, -5028: {}, -2010: {}, -2011: {}, -2022: {},
}

// Upstream error codes that must stop the request immediately.
var stopCodes = map[int64]struct{}{
	-2013: {}, -4046: {}, -4059: {}, -5026: {}, -5027: {},
}

// Config holds the Binance endpoints and credentials.
type Config struct {
	APIKey     string `yaml:"api_key"`
	APISecret  string `yaml:"api_secret"`
	SpotURL    string `yaml:"spot_url"`
	FuturesURL string `yaml:"futures_url"`
}

// Adapter implements venue.Handler on top of the go-binance clients.
type Adapter struct {
	spot    *binance.Client
	futures *futures.Client
	symbols []string
	log     *logger.Entry
}

// NewFactory returns a venue.Factory binding the configured clients to each
// request's filter.
func NewFactory(cfg Config) venue.Factory {
	return func(filter venue.Filter) venue.Handler {
		return New(cfg, filter)
	}
}

// New builds an adapter scoped to one request.
func New(cfg Config, filter venue.Filter) *Adapter {
	spot := binance.NewClient(cfg.APIKey, cfg.APISecret)
	if cfg.SpotURL != "" {
		spot.BaseURL = cfg.SpotURL
	}
	fut := futures.NewClient(cfg.APIKey, cfg.APISecret)
	if cfg.FuturesURL != "" {
		fut.SetApiEndpoint(cfg.FuturesURL)
	}
	return &Adapter{
		spot:    spot,
		futures: fut,
		symbols: filter.Symbols,
		log:     logger.GetLogger().WithComponent("binance_adapter"),
	}
}

// classify maps client failures onto the shared taxonomy using the
// exchange's resend/stop code tables.
func classify(err error) error {
	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		if _, ok := stopCodes[apiErr.Code]; ok {
			return &errs.FatalUpstream{Code: apiErr.Code, Message: apiErr.Message}
		}
		if _, ok := resendCodes[apiErr.Code]; ok {
			return &errs.TransientNetwork{Err: err}
		}
		return err
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &errs.TransientNetwork{Err: err}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &errs.TransientNetwork{Err: err}
	}
	return err
}

// GetSpot returns the spot best bid/ask per symbol. Spot tickers carry no
// server timestamp, so quotes are emitted with timestamp zero and inherit the
// counterpart's during the join.
func (a *Adapter) GetSpot(ctx context.Context) ([]model.Quote, error) {
	tickers, err := venue.DoWithRetry(ctx, a.log, sourceSpot, func() ([]*binance.BookTicker, error) {
		if len(a.symbols) == 0 {
			res, err := a.spot.NewListBookTickersService().Do(ctx)
			return res, classifyNil(err)
		}
		var out []*binance.BookTicker
		for _, sy := range a.symbols {
			res, err := a.spot.NewListBookTickersService().Symbol(sy).Do(ctx)
			if err != nil {
				return nil, classify(err)
			}
			out = append(out, res...)
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}

	quotes := make([]model.Quote, 0, len(tickers))
	for _, t := range tickers {
		if q, ok := venue.NormalizeQuote(a.log, sourceSpot, t.Symbol, t.BidPrice, t.AskPrice, 0); ok {
			quotes = append(quotes, q)
		}
	}
	if len(quotes) == 0 {
		return nil, &errs.SourceUnavailable{Source: sourceSpot}
	}
	return quotes, nil
}

// GetSwap returns the USD-M futures best bid/ask per symbol.
func (a *Adapter) GetSwap(ctx context.Context) ([]model.Quote, error) {
	tickers, err := venue.DoWithRetry(ctx, a.log, sourceSwap, func() ([]*futures.BookTicker, error) {
		if len(a.symbols) == 0 {
			res, err := a.futures.NewListBookTickersService().Do(ctx)
			return res, classifyNil(err)
		}
		var out []*futures.BookTicker
		for _, sy := range a.symbols {
			res, err := a.futures.NewListBookTickersService().Symbol(sy).Do(ctx)
			if err != nil {
				return nil, classify(err)
			}
			out = append(out, res...)
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}

	quotes := make([]model.Quote, 0, len(tickers))
	for _, t := range tickers {
		// Book tickers carry no event time; the counterpart quote supplies
		// the row timestamp.
		if q, ok := venue.NormalizeQuote(a.log, sourceSwap, t.Symbol, t.BidPrice, t.AskPrice, 0); ok {
			quotes = append(quotes, q)
		}
	}
	if len(quotes) == 0 {
		return nil, &errs.SourceUnavailable{Source: sourceSwap}
	}
	return quotes, nil
}

// GetMarkPrice returns mark/index/funding data from the premium index
// endpoint.
func (a *Adapter) GetMarkPrice(ctx context.Context) ([]model.MarkPrice, error) {
	indexes, err := venue.DoWithRetry(ctx, a.log, sourceSwap, func() ([]*futures.PremiumIndex, error) {
		if len(a.symbols) == 0 {
			res, err := a.futures.NewPremiumIndexService().Do(ctx)
			return res, classifyNil(err)
		}
		var out []*futures.PremiumIndex
		for _, sy := range a.symbols {
			res, err := a.futures.NewPremiumIndexService().Symbol(sy).Do(ctx)
			if err != nil {
				return nil, classify(err)
			}
			out = append(out, res...)
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}

	prices := make([]model.MarkPrice, 0, len(indexes))
	for _, p := range indexes {
		mp, ok := parseMarkPrice(a.log, p)
		if !ok {
			continue
		}
		prices = append(prices, mp)
	}
	return prices, nil
}

func classifyNil(err error) error {
	if err == nil {
		return nil
	}
	return classify(err)
}

func parseMarkPrice(log *logger.Entry, p *futures.PremiumIndex) (model.MarkPrice, bool) {
	mark, err1 := decimal.NewFromString(p.MarkPrice)
	index, err2 := decimal.NewFromString(p.IndexPrice)
	rate, err3 := decimal.NewFromString(p.LastFundingRate)
	if err1 != nil || err2 != nil || err3 != nil {
		log.WithFields(logger.Fields{"symbol": p.Symbol}).Warn("dropping unparsable premium index entry")
		return model.MarkPrice{}, false
	}
	return model.MarkPrice{
		Symbol:          p.Symbol,
		MarkPrice:       mark,
		IndexPrice:      index,
		LastFundingRate: rate,
		Time:            p.Time,
	}, true
}
