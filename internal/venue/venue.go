// Package venue maps venue-market identifiers to adapter implementations and
// builds the venue pairs a ranking request spans.
package venue

import (
	"context"
	"strings"

	"spreadwatch/internal/errs"
	"spreadwatch/internal/model"
)

// Filter narrows what an adapter fetches. Adapters may ignore it and return
// more; the aggregation joins by symbol anyway.
type Filter struct {
	Symbols []string
}

// Handler is the capability set every venue adapter implements. Each call
// either returns data or fails with a SourceUnavailable error, never a partial
// silent success.
type Handler interface {
	GetSpot(ctx context.Context) ([]model.Quote, error)
	GetSwap(ctx context.Context) ([]model.Quote, error)
	GetMarkPrice(ctx context.Context) ([]model.MarkPrice, error)
}

// Factory constructs a handler scoped to one request's filter.
type Factory func(Filter) Handler

type entry struct {
	id      string
	label   string
	markets []model.MarketType
	factory Factory
}

// Registry is the explicit registration table from venue id to adapter
// factory. It is built once at startup and read-only afterwards, so it is
// safe to share across concurrent requests.
type Registry struct {
	entries map[string]entry
	order   []string
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]entry)}
}

// Register adds a venue with its display label, supported markets and factory.
func (r *Registry) Register(id, label string, markets []model.MarketType, f Factory) {
	if _, ok := r.entries[id]; !ok {
		r.order = append(r.order, id)
	}
	r.entries[id] = entry{id: id, label: label, markets: markets, factory: f}
}

// Resolve builds a handler for the venue id, scoped to the filter.
func (r *Registry) Resolve(id string, filter Filter) (Handler, error) {
	e, ok := r.entries[id]
	if !ok {
		return nil, &errs.ResolutionError{ID: id}
	}
	return e.factory(filter), nil
}

// Options returns the static catalog of valid venue-market ids, in
// registration order, for UI population.
func (r *Registry) Options() []model.BookOption {
	var out []model.BookOption
	for _, id := range r.order {
		e := r.entries[id]
		for _, m := range e.markets {
			out = append(out, model.BookOption{
				ID:    e.id + "-" + string(m),
				Label: e.label + "-" + capitalize(string(m)),
			})
		}
	}
	return out
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func (r *Registry) supports(id string, market model.MarketType) bool {
	e, ok := r.entries[id]
	if !ok {
		return false
	}
	for _, m := range e.markets {
		if m == market {
			return true
		}
	}
	return false
}

// VenueMarket identifies one (venue, market) side of a pair. It references a
// resolved handler but does not own it. Equality is structural on venue and
// market.
type VenueMarket struct {
	Venue   string
	Market  model.MarketType
	handler Handler
}

// ID returns the "venue-market" token form.
func (vm VenueMarket) ID() string {
	return vm.Venue + "-" + string(vm.Market)
}

// Equal compares venue and market only.
func (vm VenueMarket) Equal(other VenueMarket) bool {
	return vm.Venue == other.Venue && vm.Market == other.Market
}

// Quotes fetches this side's normalized quotes through the market-tag switch.
func (vm VenueMarket) Quotes(ctx context.Context) ([]model.Quote, error) {
	switch vm.Market {
	case model.MarketSpot:
		return vm.handler.GetSpot(ctx)
	case model.MarketSwap:
		return vm.handler.GetSwap(ctx)
	default:
		return nil, &errs.ResolutionError{ID: vm.ID()}
	}
}

// MarkPrices returns the derivative reference prices. Spot markets have none.
func (vm VenueMarket) MarkPrices(ctx context.Context) ([]model.MarkPrice, error) {
	if vm.Market != model.MarketSwap {
		return nil, nil
	}
	return vm.handler.GetMarkPrice(ctx)
}

// ParseVenueMarket resolves a "venue-market" token against the registry.
func ParseVenueMarket(r *Registry, token string, filter Filter) (VenueMarket, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return VenueMarket{}, &errs.ResolutionError{ID: token}
	}
	parts := strings.SplitN(token, "-", 2)
	if len(parts) != 2 {
		return VenueMarket{}, &errs.ResolutionError{ID: token}
	}
	venueID := parts[0]
	market := model.MarketType(parts[1])
	if market != model.MarketSpot && market != model.MarketSwap {
		return VenueMarket{}, &errs.ResolutionError{ID: token}
	}
	if !r.supports(venueID, market) {
		return VenueMarket{}, &errs.ResolutionError{ID: token}
	}
	h, err := r.Resolve(venueID, filter)
	if err != nil {
		return VenueMarket{}, err
	}
	return VenueMarket{Venue: venueID, Market: market, handler: h}, nil
}
