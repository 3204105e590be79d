// Package watch runs one cross-venue ranking pass: resolve the venue pairs,
// fetch and join both sides' quotes, compute spreads and rank the rows.
package watch

import (
	"context"
	"errors"
	"strings"

	"spreadwatch/internal/errs"
	"spreadwatch/internal/model"
	"spreadwatch/internal/spread"
	"spreadwatch/internal/venue"
	"spreadwatch/logger"
)

// Service owns the read-only registry and the default book selection. It is
// stateless between requests and safe for concurrent use.
type Service struct {
	registry *venue.Registry
	bookA    string
	bookB    string
	log      *logger.Entry
}

// NewService wires the registry with the default side-A/side-B venue markets
// used when a request names none.
func NewService(registry *venue.Registry, defaultBookA, defaultBookB string) *Service {
	return &Service{
		registry: registry,
		bookA:    defaultBookA,
		bookB:    defaultBookB,
		log:      logger.GetLogger().WithComponent("watch_service"),
	}
}

// BookOptions returns the static venue-market catalog.
func (s *Service) BookOptions() []model.BookOption {
	return s.registry.Options()
}

// BookTickers produces the ranked spread rows for one request. Venue pairs
// whose source cannot deliver are dropped with a log line; resolution and
// fatal upstream failures abort the request.
func (s *Service) BookTickers(ctx context.Context, req model.WatchRequest) ([]model.SymbolRow, error) {
	symbols := req.SymbolList()
	filter := venue.Filter{Symbols: symbols}

	bookA := strings.TrimSpace(req.BookA)
	if bookA == "" {
		bookA = s.bookA
	}
	bookB := strings.TrimSpace(req.BookB)
	if bookB == "" {
		bookB = s.bookB
	}

	pairs, err := venue.BuildPairs(s.registry, bookA, bookB, filter)
	if err != nil {
		return nil, err
	}

	var rows []model.SymbolRow
	for _, pair := range pairs {
		pairRows, err := s.pairRows(ctx, pair, symbols)
		if err != nil {
			var unavailable *errs.SourceUnavailable
			if errors.As(err, &unavailable) {
				s.log.WithError(err).WithFields(logger.Fields{
					"bookA": pair.A.ID(),
					"bookB": pair.B.ID(),
				}).Warn("dropping venue pair, source unavailable")
				continue
			}
			return nil, err
		}
		rows = append(rows, pairRows...)
	}

	rows = spread.Filter(rows, req.Direction)
	rows = spread.Rank(rows, req.TopN)

	s.log.LogMetric("watch_service", "rows_ranked", len(rows), "", logger.Fields{
		"bookA": bookA,
		"bookB": bookB,
	})
	return rows, nil
}

// pairRows joins side A and side B by symbol and computes one row per match.
// Symbols missing on either side are skipped entirely; partial rows are never
// emitted.
func (s *Service) pairRows(ctx context.Context, pair venue.VenuePair, symbols []string) ([]model.SymbolRow, error) {
	quotesA, err := pair.A.Quotes(ctx)
	if err != nil {
		return nil, err
	}
	quotesB, err := pair.B.Quotes(ctx)
	if err != nil {
		return nil, err
	}

	// Without an explicit filter, side A's symbols drive the join.
	if len(symbols) == 0 {
		symbols = make([]string, 0, len(quotesA))
		for _, q := range quotesA {
			symbols = append(symbols, q.Symbol)
		}
	}

	bySymbolA := indexQuotes(quotesA)
	bySymbolB := indexQuotes(quotesB)

	rows := make([]model.SymbolRow, 0, len(symbols))
	for _, sy := range symbols {
		a, okA := bySymbolA[sy]
		b, okB := bySymbolB[sy]
		if !okA || !okB {
			continue
		}
		rows = append(rows, spread.BuildRow(sy, a, b))
	}

	s.enrich(ctx, pair, rows)
	return rows, nil
}

// enrich joins mark/index/funding data onto swap-market rows. The enrichment
// is best effort: a failing reference-price fetch only logs.
func (s *Service) enrich(ctx context.Context, pair venue.VenuePair, rows []model.SymbolRow) {
	if len(rows) == 0 {
		return
	}
	side := pair.B
	if side.Market != model.MarketSwap {
		side = pair.A
	}
	if side.Market != model.MarketSwap {
		return
	}
	prices, err := side.MarkPrices(ctx)
	if err != nil {
		s.log.WithError(err).WithFields(logger.Fields{"book": side.ID()}).Warn("mark price enrichment skipped")
		return
	}
	spread.Enrich(rows, prices)
}

// indexQuotes keys quotes by symbol, first occurrence wins.
func indexQuotes(quotes []model.Quote) map[string]model.Quote {
	out := make(map[string]model.Quote, len(quotes))
	for _, q := range quotes {
		if _, ok := out[q.Symbol]; !ok {
			out[q.Symbol] = q
		}
	}
	return out
}
