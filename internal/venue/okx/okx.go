// Package okx adapts the OKX v5 public market tickers to the venue handler
// contract. OKX has no SDK dependency here; the REST surface is small enough
// for a plain resty client.
package okx

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"

	"spreadwatch/internal/errs"
	"spreadwatch/internal/model"
	"spreadwatch/internal/venue"
	"spreadwatch/logger"
)

const (
	defaultBaseURL = "https://www.okx.com"
	sourceSpot     = "OKX-Spot"
	sourceSwap     = "OKX-Swap"
)

// Config holds the OKX endpoint and request pacing.
type Config struct {
	BaseURL           string        `yaml:"base_url"`
	Timeout           time.Duration `yaml:"timeout"`
	RequestsPerSecond int           `yaml:"requests_per_second"`
}

type tickerResp struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
	Data []struct {
		InstID string `json:"instId"`
		BidPx  string `json:"bidPx"`
		AskPx  string `json:"askPx"`
		Ts     string `json:"ts"`
	} `json:"data"`
}

// Adapter implements venue.Handler for OKX.
type Adapter struct {
	client  *resty.Client
	limiter *rate.Limiter
	symbols map[string]struct{}
	log     *logger.Entry
}

// NewFactory returns a venue.Factory sharing one pooled client across
// requests while scoping the symbol filter per request.
func NewFactory(cfg Config) venue.Factory {
	base := cfg.BaseURL
	if base == "" {
		base = defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 5
	}

	client := resty.New().
		SetBaseURL(base).
		SetTimeout(timeout).
		SetRetryCount(4).
		SetRetryWaitTime(time.Millisecond).
		SetRetryMaxWaitTime(time.Millisecond)
	limiter := rate.NewLimiter(rate.Limit(rps), 1)

	return func(filter venue.Filter) venue.Handler {
		symbols := make(map[string]struct{}, len(filter.Symbols))
		for _, s := range filter.Symbols {
			symbols[s] = struct{}{}
		}
		return &Adapter{
			client:  client,
			limiter: limiter,
			symbols: symbols,
			log:     logger.GetLogger().WithComponent("okx_adapter"),
		}
	}
}

func (a *Adapter) fetch(ctx context.Context, instType, source string) ([]model.Quote, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var body tickerResp
	resp, err := a.client.R().
		SetContext(ctx).
		SetQueryParam("instType", instType).
		SetResult(&body).
		Get("/api/v5/market/tickers")
	if err != nil {
		return nil, &errs.SourceUnavailable{Source: source, Err: err}
	}
	if resp.StatusCode() != 200 || body.Code != "0" {
		return nil, &errs.SourceUnavailable{
			Source: source,
			Err:    fmt.Errorf("okx tickers status %d code %s: %s", resp.StatusCode(), body.Code, body.Msg),
		}
	}

	quotes := make([]model.Quote, 0, len(body.Data))
	for _, t := range body.Data {
		symbol := canonicalSymbol(t.InstID, instType)
		if symbol == "" {
			continue
		}
		if len(a.symbols) > 0 {
			if _, ok := a.symbols[symbol]; !ok {
				continue
			}
		}
		ts, _ := strconv.ParseInt(t.Ts, 10, 64)
		if q, ok := venue.NormalizeQuote(a.log, source, symbol, t.BidPx, t.AskPx, ts); ok {
			quotes = append(quotes, q)
		}
	}
	if len(quotes) == 0 {
		return nil, &errs.SourceUnavailable{Source: source}
	}
	return quotes, nil
}

// canonicalSymbol maps an OKX instId onto the shared symbol form:
// "BTC-USDT-SWAP" and "BTC-USDT" both become "BTCUSDT".
func canonicalSymbol(instID, instType string) string {
	s := instID
	if instType == "SWAP" {
		s = strings.TrimSuffix(s, "-SWAP")
	}
	return strings.Replace(s, "-", "", 1)
}

func (a *Adapter) GetSpot(ctx context.Context) ([]model.Quote, error) {
	return a.fetch(ctx, "SPOT", sourceSpot)
}

func (a *Adapter) GetSwap(ctx context.Context) ([]model.Quote, error) {
	return a.fetch(ctx, "SWAP", sourceSwap)
}

// GetMarkPrice is not offered for OKX; swap rows from this venue simply skip
// the funding enrichment.
func (a *Adapter) GetMarkPrice(ctx context.Context) ([]model.MarkPrice, error) {
	return nil, nil
}
