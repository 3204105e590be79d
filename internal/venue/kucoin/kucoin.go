// Package kucoin adapts KuCoin futures contracts to the venue handler
// contract. KuCoin participates swap-side only; its spot book is not wired.
package kucoin

import (
	"context"
	"strings"
	"time"

	api "github.com/Kucoin/kucoin-universal-sdk/sdk/golang/pkg/api"
	futuresmarket "github.com/Kucoin/kucoin-universal-sdk/sdk/golang/pkg/generate/futures/market"
	sdktype "github.com/Kucoin/kucoin-universal-sdk/sdk/golang/pkg/types"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"spreadwatch/internal/errs"
	"spreadwatch/internal/model"
	"spreadwatch/internal/venue"
	"spreadwatch/logger"
)

const (
	defaultBaseURL = "https://api-futures.kucoin.com"
	sourceSwap     = "KuCoin-Swap"
)

// Config holds the KuCoin futures endpoint, pacing and the contract set to
// poll when a request carries no symbol filter.
type Config struct {
	BaseURL           string        `yaml:"base_url"`
	Timeout           time.Duration `yaml:"timeout"`
	RequestsPerSecond int           `yaml:"requests_per_second"`
	// Contract ids, e.g. XBTUSDTM.
	Contracts []string `yaml:"contracts"`
}

// Adapter implements venue.Handler for KuCoin futures.
type Adapter struct {
	marketAPI futuresmarket.MarketAPI
	limiter   *rate.Limiter
	contracts []string
	log       *logger.Entry
}

// NewFactory builds the SDK client once and scopes the contract list per
// request.
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

	transportOpt := sdktype.NewTransportOptionBuilder().
		SetTimeout(timeout).
		Build()
	option := sdktype.NewClientOptionBuilder().
		WithFuturesEndpoint(base).
		WithTransportOption(transportOpt).
		Build()
	client := api.NewClient(option)
	marketAPI := client.RestService().GetFuturesService().GetMarketAPI()
	limiter := rate.NewLimiter(rate.Limit(rps), 1)

	return func(filter venue.Filter) venue.Handler {
		contracts := cfg.Contracts
		if len(filter.Symbols) > 0 {
			contracts = make([]string, 0, len(filter.Symbols))
			for _, s := range filter.Symbols {
				contracts = append(contracts, ContractID(s))
			}
		}
		return &Adapter{
			marketAPI: marketAPI,
			limiter:   limiter,
			contracts: contracts,
			log:       logger.GetLogger().WithComponent("kucoin_adapter"),
		}
	}
}

// GetSpot is not wired for KuCoin; only the futures service is configured.
func (a *Adapter) GetSpot(ctx context.Context) ([]model.Quote, error) {
	return nil, &errs.SourceUnavailable{Source: "KuCoin-Spot"}
}

// GetSwap polls the futures ticker per configured contract.
func (a *Adapter) GetSwap(ctx context.Context) ([]model.Quote, error) {
	if len(a.contracts) == 0 {
		return nil, &errs.SourceUnavailable{Source: sourceSwap}
	}

	quotes := make([]model.Quote, 0, len(a.contracts))
	for _, contract := range a.contracts {
		if err := a.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		req := futuresmarket.NewGetTickerReqBuilder().SetSymbol(contract).Build()
		resp, err := a.marketAPI.GetTicker(req, ctx)
		if err != nil {
			a.log.WithError(err).WithFields(logger.Fields{"contract": contract}).Warn("failed to fetch kucoin ticker")
			continue
		}
		if resp == nil {
			continue
		}
		symbol := CanonicalSymbol(contract)
		ts := timestampMillis(resp.Ts)
		if q, ok := venue.NormalizeQuote(a.log, sourceSwap, symbol, resp.BestBidPrice, resp.BestAskPrice, ts); ok {
			quotes = append(quotes, q)
		}
	}
	if len(quotes) == 0 {
		return nil, &errs.SourceUnavailable{Source: sourceSwap}
	}
	return quotes, nil
}

// GetMarkPrice reads mark/index/funding from the contract detail endpoint.
func (a *Adapter) GetMarkPrice(ctx context.Context) ([]model.MarkPrice, error) {
	prices := make([]model.MarkPrice, 0, len(a.contracts))
	for _, contract := range a.contracts {
		if err := a.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		req := futuresmarket.NewGetSymbolReqBuilder().SetSymbol(contract).Build()
		resp, err := a.marketAPI.GetSymbol(req, ctx)
		if err != nil {
			a.log.WithError(err).WithFields(logger.Fields{"contract": contract}).Warn("failed to fetch kucoin contract detail")
			continue
		}
		if resp == nil {
			continue
		}
		prices = append(prices, model.MarkPrice{
			Symbol:          CanonicalSymbol(contract),
			MarkPrice:       decimal.NewFromFloat(resp.MarkPrice),
			IndexPrice:      decimal.NewFromFloat(resp.IndexPrice),
			LastFundingRate: decimal.NewFromFloat(resp.FundingFeeRate),
			Time:            time.Now().UTC().UnixMilli(),
		})
	}
	return prices, nil
}

// timestampMillis normalizes KuCoin timestamps, which arrive in seconds,
// milliseconds or nanoseconds depending on the endpoint.
func timestampMillis(ts int64) int64 {
	switch {
	case ts <= 0:
		return time.Now().UTC().UnixMilli()
	case ts < 1_000_000_000_000:
		return ts * 1000
	case ts < 1_000_000_000_000_000:
		return ts
	default:
		return ts / int64(time.Millisecond)
	}
}

// CanonicalSymbol converts a KuCoin futures contract id to the shared symbol
// form: XBTUSDTM -> BTCUSDT.
func CanonicalSymbol(contract string) string {
	s := strings.ReplaceAll(contract, "-", "")
	s = strings.TrimSuffix(s, "M")
	if strings.HasPrefix(s, "XBT") {
		s = "BTC" + s[3:]
	}
	return s
}

// ContractID converts a shared symbol back to the KuCoin contract id:
// BTCUSDT -> XBTUSDTM.
func ContractID(symbol string) string {
	s := symbol
	if strings.HasPrefix(s, "BTC") {
		s = "XBT" + s[3:]
	}
	return s + "M"
}
