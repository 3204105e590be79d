// Package bybit adapts the Bybit v5 unified market tickers to the venue
// handler contract.
package bybit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"

	bybit "github.com/bybit-exchange/bybit.go.api"
	"github.com/shopspring/decimal"

	"spreadwatch/internal/errs"
	"spreadwatch/internal/model"
	"spreadwatch/internal/venue"
	"spreadwatch/logger"
)

const (
	defaultBaseURL = "https://api.bybit.com"
	sourceSpot     = "Bybit-Spot"
	sourceSwap     = "Bybit-Swap"
)

// Config holds the Bybit endpoint and credentials.
type Config struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	BaseURL   string `yaml:"base_url"`
}

type tickerResult struct {
	Category string `json:"category"`
	List     []struct {
		Symbol      string `json:"symbol"`
		Bid1Price   string `json:"bid1Price"`
		Ask1Price   string `json:"ask1Price"`
		MarkPrice   string `json:"markPrice"`
		IndexPrice  string `json:"indexPrice"`
		FundingRate string `json:"fundingRate"`
	} `json:"list"`
}

// Adapter implements venue.Handler on top of the bybit.go.api client.
type Adapter struct {
	client  *bybit.Client
	symbols []string
	log     *logger.Entry
}

// NewFactory returns a venue.Factory for Bybit.
func NewFactory(cfg Config) venue.Factory {
	base := cfg.BaseURL
	if base == "" {
		base = defaultBaseURL
	}
	return func(filter venue.Filter) venue.Handler {
		return &Adapter{
			client:  bybit.NewBybitHttpClient(cfg.APIKey, cfg.APISecret, bybit.WithBaseURL(base)),
			symbols: filter.Symbols,
			log:     logger.GetLogger().WithComponent("bybit_adapter"),
		}
	}
}

func classify(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &errs.TransientNetwork{Err: err}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &errs.TransientNetwork{Err: err}
	}
	return err
}

// fetchTickers pulls v5 market tickers for a category, one call for the full
// book or one per filtered symbol.
func (a *Adapter) fetchTickers(ctx context.Context, category, source string) (tickerResult, int64, error) {
	type page struct {
		result tickerResult
		time   int64
	}

	fetchOne := func(params map[string]interface{}) (page, error) {
		resp, err := a.client.NewUtaBybitServiceWithParams(params).GetMarketTickers(ctx)
		if err != nil {
			return page{}, classify(err)
		}
		if resp.RetCode != 0 {
			return page{}, fmt.Errorf("bybit tickers ret code %d: %s", resp.RetCode, resp.RetMsg)
		}
		raw, err := json.Marshal(resp.Result)
		if err != nil {
			return page{}, err
		}
		var result tickerResult
		if err := json.Unmarshal(raw, &result); err != nil {
			return page{}, err
		}
		return page{result: result, time: resp.Time}, nil
	}

	merged, err := venue.DoWithRetry(ctx, a.log, source, func() (page, error) {
		if len(a.symbols) == 0 {
			return fetchOne(map[string]interface{}{"category": category})
		}
		var acc page
		for _, sy := range a.symbols {
			p, err := fetchOne(map[string]interface{}{"category": category, "symbol": sy})
			if err != nil {
				return page{}, err
			}
			if acc.time == 0 {
				acc.time = p.time
			}
			acc.result.Category = p.result.Category
			acc.result.List = append(acc.result.List, p.result.List...)
		}
		return acc, nil
	})
	if err != nil {
		return tickerResult{}, 0, err
	}
	return merged.result, merged.time, nil
}

func (a *Adapter) quotes(ctx context.Context, category, source string) ([]model.Quote, error) {
	result, ts, err := a.fetchTickers(ctx, category, source)
	if err != nil {
		return nil, err
	}

	quotes := make([]model.Quote, 0, len(result.List))
	for _, t := range result.List {
		if q, ok := venue.NormalizeQuote(a.log, source, t.Symbol, t.Bid1Price, t.Ask1Price, ts); ok {
			quotes = append(quotes, q)
		}
	}
	if len(quotes) == 0 {
		return nil, &errs.SourceUnavailable{Source: source}
	}
	return quotes, nil
}

func (a *Adapter) GetSpot(ctx context.Context) ([]model.Quote, error) {
	return a.quotes(ctx, "spot", sourceSpot)
}

func (a *Adapter) GetSwap(ctx context.Context) ([]model.Quote, error) {
	return a.quotes(ctx, "linear", sourceSwap)
}

// GetMarkPrice reads mark/index/funding straight from the linear tickers,
// which carry them alongside the book.
func (a *Adapter) GetMarkPrice(ctx context.Context) ([]model.MarkPrice, error) {
	result, ts, err := a.fetchTickers(ctx, "linear", sourceSwap)
	if err != nil {
		return nil, err
	}

	prices := make([]model.MarkPrice, 0, len(result.List))
	for _, t := range result.List {
		mark, err1 := decimal.NewFromString(t.MarkPrice)
		index, err2 := decimal.NewFromString(t.IndexPrice)
		rate, err3 := decimal.NewFromString(t.FundingRate)
		if err1 != nil || err2 != nil || err3 != nil {
			a.log.WithFields(logger.Fields{"symbol": t.Symbol}).Warn("dropping ticker without mark price data")
			continue
		}
		prices = append(prices, model.MarkPrice{
			Symbol:          t.Symbol,
			MarkPrice:       mark,
			IndexPrice:      index,
			LastFundingRate: rate,
			Time:            ts,
		})
	}
	return prices, nil
}
