package venue

import "strings"

// VenuePair is an ordered (A, B) pairing of two distinct venue markets.
type VenuePair struct {
	A VenueMarket
	B VenueMarket
}

func parseList(r *Registry, list string, filter Filter) ([]VenueMarket, error) {
	var out []VenueMarket
	for _, token := range strings.Split(list, ",") {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}
		vm, err := ParseVenueMarket(r, token, filter)
		if err != nil {
			return nil, err
		}
		out = append(out, vm)
	}
	return out, nil
}

// BuildPairs forms the cross product of the side-A and side-B venue-market
// lists, dropping self pairs and any pair whose reverse already exists. The
// output order is the first-seen cross-product order, so identical inputs
// produce identical pairings.
func BuildPairs(r *Registry, bookA, bookB string, filter Filter) ([]VenuePair, error) {
	sideA, err := parseList(r, bookA, filter)
	if err != nil {
		return nil, err
	}
	sideB, err := parseList(r, bookB, filter)
	if err != nil {
		return nil, err
	}

	var pairs []VenuePair
	for _, a := range sideA {
		for _, b := range sideB {
			if a.Equal(b) {
				continue
			}
			if containsPair(pairs, b, a) || containsPair(pairs, a, b) {
				continue
			}
			pairs = append(pairs, VenuePair{A: a, B: b})
		}
	}
	return pairs, nil
}

func containsPair(pairs []VenuePair, a, b VenueMarket) bool {
	for _, p := range pairs {
		if p.A.Equal(a) && p.B.Equal(b) {
			return true
		}
	}
	return false
}
