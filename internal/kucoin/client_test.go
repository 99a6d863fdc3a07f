package kucoin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync/atomic"
	"testing"
	"time"
)

func writeData(w http.ResponseWriter, data any) {
	_ = json.NewEncoder(w).Encode(map[string]any{"code": successCode, "data": data})
}

func newTestClient(srv *httptest.Server, maxRetries int) *Client {
	return NewClient(srv.URL, 5*time.Second, ClientConfig{
		QuoteCurrency:     "USDT",
		RequestsPerSecond: 1000,
		Burst:             100,
		MaxRetries:        maxRetries,
		OrderBookDepth:    20,
	})
}

func TestListLiquidSymbols(t *testing.T) {
	volumes := map[string]string{
		"A-USDT": "150000", "B-USDT": "100001", "C-USDT": "9000000", "D-USDT": "250000.5",
		"E-USDT": "100000", "F-USDT": "99999.99", "G-USDT": "500000", "H-USDT": "120000",
		"I-USDT": "1", "J-USDT": "3000000", "K-USDT": "0",
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v2/symbols", func(w http.ResponseWriter, r *http.Request) {
		var infos []map[string]any
		for sym := range volumes {
			infos = append(infos, map[string]any{"symbol": sym, "quoteCurrency": "USDT", "enableTrading": true})
		}
		infos = append(infos,
			map[string]any{"symbol": "Z-BTC", "quoteCurrency": "BTC", "enableTrading": true},
			map[string]any{"symbol": "Y-USDT", "quoteCurrency": "USDT", "enableTrading": false},
			map[string]any{"symbol": "X-USDT", "quoteCurrency": "USDT", "enableTrading": true},
		)
		writeData(w, infos)
	})
	mux.HandleFunc("/api/v1/market/stats", func(w http.ResponseWriter, r *http.Request) {
		sym := r.URL.Query().Get("symbol")
		if sym == "X-USDT" {
			http.Error(w, "boom", http.StatusBadRequest)
			return
		}
		vol, ok := volumes[sym]
		if !ok {
			t.Errorf("unexpected ticker request for %s", sym)
			http.NotFound(w, r)
			return
		}
		writeData(w, map[string]any{"symbol": sym, "last": "1.5", "volValue": vol})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	got, err := newTestClient(srv, 0).ListLiquidSymbols(context.Background(), 100000)
	if err != nil {
		t.Fatalf("ListLiquidSymbols: %v", err)
	}
	sort.Strings(got)
	want := []string{"A-USDT", "B-USDT", "C-USDT", "D-USDT", "G-USDT", "H-USDT", "J-USDT"}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestListLiquidSymbols_ListingFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	if _, err := newTestClient(srv, 0).ListLiquidSymbols(context.Background(), 0); err == nil {
		t.Error("expected error when symbol listing fails")
	}
}

func TestFetchTicker(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/market/stats", func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("symbol") {
		case "BTC-USDT":
			writeData(w, map[string]any{"symbol": "BTC-USDT", "last": "63100.1", "volValue": "25000000.25"})
		case "DEAD-USDT":
			writeData(w, map[string]any{"symbol": "DEAD-USDT", "last": nil, "volValue": "0"})
		default:
			_ = json.NewEncoder(w).Encode(map[string]any{"code": "900001", "msg": "Symbol not exists"})
		}
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	c := newTestClient(srv, 0)

	ticker, err := c.FetchTicker(context.Background(), "BTC-USDT")
	if err != nil {
		t.Fatalf("FetchTicker: %v", err)
	}
	if ticker.LastPrice != 63100.1 || ticker.QuoteVolume != 25000000.25 || ticker.Symbol != "BTC-USDT" {
		t.Errorf("unexpected ticker: %+v", ticker)
	}

	if _, err := c.FetchTicker(context.Background(), "DEAD-USDT"); err == nil {
		t.Error("expected error for missing last price")
	}
	if _, err := c.FetchTicker(context.Background(), "NOPE-USDT"); err == nil {
		t.Error("expected error for api error code")
	}
}

func TestFetchRecentTrades(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/market/histories", func(w http.ResponseWriter, r *http.Request) {
		writeData(w, []map[string]any{
			{"sequence": "1", "price": "0.5", "size": "100", "side": "buy", "time": int64(1700000000000000000)},
			{"sequence": "2", "price": "0.51", "size": "20", "side": "sell", "time": int64(1700000001000000000)},
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	trades, err := newTestClient(srv, 0).FetchRecentTrades(context.Background(), "PUNDIX-USDT")
	if err != nil {
		t.Fatalf("FetchRecentTrades: %v", err)
	}
	if len(trades) != 2 {
		t.Fatalf("got %d trades, want 2", len(trades))
	}
	if trades[1].Price != 0.51 || trades[1].Side != "sell" || trades[1].ID != "2" {
		t.Errorf("unexpected trade: %+v", trades[1])
	}
	if !trades[0].Time.Equal(time.Unix(1700000000, 0)) {
		t.Errorf("unexpected trade time: %v", trades[0].Time)
	}
}

func TestFetchOrderBook(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/market/orderbook/level2_20", func(w http.ResponseWriter, r *http.Request) {
		writeData(w, map[string]any{
			"sequence": "42",
			"time":     1700000000000,
			"bids":     [][]string{{"9.99", "10"}, {"9.98", "5.5"}},
			"asks":     [][]string{{"10.01", "3"}},
		})
	})
	mux.HandleFunc("/api/v1/market/orderbook/level2_100", func(w http.ResponseWriter, r *http.Request) {
		writeData(w, map[string]any{"bids": [][]string{{"1", "x"}}})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	bids, err := newTestClient(srv, 0).FetchOrderBook(context.Background(), "ABC-USDT")
	if err != nil {
		t.Fatalf("FetchOrderBook: %v", err)
	}
	if len(bids) != 2 || bids[0].Price != 9.99 || bids[1].Size != 5.5 {
		t.Errorf("unexpected bids: %+v", bids)
	}

	deep := NewClient(srv.URL, 5*time.Second, ClientConfig{RequestsPerSecond: 1000, Burst: 10, OrderBookDepth: 50})
	if _, err := deep.FetchOrderBook(context.Background(), "ABC-USDT"); err == nil {
		t.Error("expected error for malformed bid size")
	}
}

func TestDoRequest_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "busy", http.StatusTooManyRequests)
			return
		}
		writeData(w, map[string]any{"symbol": "A-USDT", "last": "1", "volValue": "2"})
	}))
	defer srv.Close()

	if _, err := newTestClient(srv, 3).FetchTicker(context.Background(), "A-USDT"); err != nil {
		t.Fatalf("FetchTicker: %v", err)
	}
	if calls.Load() != 3 {
		t.Errorf("got %d calls, want 3", calls.Load())
	}
}

func TestDoRequest_ClientErrorIsPermanent(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad symbol", http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := newTestClient(srv, 3).FetchTicker(context.Background(), "A-USDT")
	var serr *statusError
	if !errors.As(err, &serr) || serr.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 status error, got %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("got %d calls, want 1", calls.Load())
	}
}

func TestDoRequest_ContextTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	if _, err := newTestClient(srv, 3).FetchOrderBook(ctx, "A-USDT"); err == nil {
		t.Fatal("expected timeout error")
	}
	if time.Since(start) > time.Second {
		t.Errorf("request was not bounded by the context: %v", time.Since(start))
	}
}

func TestParseNumber(t *testing.T) {
	tests := []struct {
		in      string
		want    float64
		wantErr bool
	}{
		{"0.1", 0.1, false},
		{"63100", 63100, false},
		{"1e-8", 0.00000001, false},
		{"", 0, true},
		{"abc", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseNumber("f", tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseNumber(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("parseNumber(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}
