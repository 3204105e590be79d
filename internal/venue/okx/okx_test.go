package okx

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"spreadwatch/internal/errs"
	"spreadwatch/internal/venue"
)

func TestCanonicalSymbol(t *testing.T) {
	cases := []struct {
		instID   string
		instType string
		want     string
	}{
		{"BTC-USDT", "SPOT", "BTCUSDT"},
		{"BTC-USDT-SWAP", "SWAP", "BTCUSDT"},
		{"ETH-USDT-SWAP", "SWAP", "ETHUSDT"},
	}
	for _, c := range cases {
		if got := canonicalSymbol(c.instID, c.instType); got != c.want {
			t.Errorf("canonicalSymbol(%s, %s) = %s, want %s", c.instID, c.instType, got, c.want)
		}
	}
}

func tickersJSON(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if r.URL.Query().Get("instType") == "SWAP" {
		w.Write([]byte(`{"code":"0","msg":"","data":[
			{"instId":"BTC-USDT-SWAP","bidPx":"100.30","askPx":"100.40","ts":"1700000000000"},
			{"instId":"ETH-USDT-SWAP","bidPx":"2000","askPx":"2001","ts":"1700000000000"},
			{"instId":"BAD-USDT-SWAP","bidPx":"0","askPx":"1","ts":"1700000000000"}
		]}`))
		return
	}
	w.Write([]byte(`{"code":"0","msg":"","data":[
		{"instId":"BTC-USDT","bidPx":"100.00","askPx":"100.10","ts":"1700000000000"}
	]}`))
}

func testAdapter(t *testing.T, url string, symbols []string) venue.Handler {
	t.Helper()
	factory := NewFactory(Config{BaseURL: url, RequestsPerSecond: 1000})
	return factory(venue.Filter{Symbols: symbols})
}

func TestGetSwap(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(tickersJSON))
	defer srv.Close()

	quotes, err := testAdapter(t, srv.URL, nil).GetSwap(context.Background())
	if err != nil {
		t.Fatalf("GetSwap failed: %v", err)
	}
	// The zero-bid entry is normalized away.
	if len(quotes) != 2 {
		t.Fatalf("quotes = %d: %+v", len(quotes), quotes)
	}
	if quotes[0].Symbol != "BTCUSDT" || quotes[0].Source != "OKX-Swap" {
		t.Errorf("quote = %+v", quotes[0])
	}
	if quotes[0].Timestamp != 1700000000000 {
		t.Errorf("timestamp = %d", quotes[0].Timestamp)
	}
}

func TestGetSpotSymbolFilter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(tickersJSON))
	defer srv.Close()

	quotes, err := testAdapter(t, srv.URL, []string{"BTCUSDT"}).GetSpot(context.Background())
	if err != nil {
		t.Fatalf("GetSpot failed: %v", err)
	}
	if len(quotes) != 1 || quotes[0].Symbol != "BTCUSDT" {
		t.Fatalf("quotes = %+v", quotes)
	}

	_, err = testAdapter(t, srv.URL, []string{"NOPEUSDT"}).GetSpot(context.Background())
	var unavailable *errs.SourceUnavailable
	if !errors.As(err, &unavailable) {
		t.Fatalf("empty filtered result should be SourceUnavailable, got %v", err)
	}
}

func TestUpstreamErrorCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"code":"50011","msg":"rate limited","data":[]}`))
	}))
	defer srv.Close()

	_, err := testAdapter(t, srv.URL, nil).GetSwap(context.Background())
	var unavailable *errs.SourceUnavailable
	if !errors.As(err, &unavailable) {
		t.Fatalf("expected SourceUnavailable, got %v", err)
	}
}

func TestGetMarkPriceUnset(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(tickersJSON))
	defer srv.Close()

	prices, err := testAdapter(t, srv.URL, nil).GetMarkPrice(context.Background())
	if err != nil || prices != nil {
		t.Fatalf("prices=%v err=%v, want nil/nil", prices, err)
	}
}
