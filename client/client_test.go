package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aluiziolira/crafthub-pricing/config"
	"github.com/aluiziolira/crafthub-pricing/metrics"
	"github.com/jarcoal/httpmock"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

const testEndpoint = "http://estimator.test/estimate-price-from-scrape"

func newTestClient(t *testing.T, maxRetries int) (*Client, *httpmock.MockTransport) {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.EstimatorURL = testEndpoint
	cfg.MaxRetries = maxRetries
	cfg.RetryBackoff = time.Millisecond
	cfg.RetryBackoffMax = 5 * time.Millisecond
	cfg.Parallelism = 1

	c, err := NewClient(cfg, metrics.New())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	transport := httpmock.NewMockTransport()
	c.collector.WithTransport(transport)
	return c, transport
}

func TestBackoffCapped(t *testing.T) {
	c, _ := newTestClient(t, 3)
	c.cfg.RetryBackoff = 200 * time.Millisecond
	c.cfg.RetryBackoffMax = 500 * time.Millisecond

	if got := c.backoff(1); got != 200*time.Millisecond {
		t.Fatalf("backoff(1) = %v, want 200ms", got)
	}
	if got := c.backoff(4); got > c.cfg.RetryBackoffMax {
		t.Fatalf("delay %v exceeds max %v", got, c.cfg.RetryBackoffMax)
	}
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		statusCode int
		expected   string
	}{
		{name: "nil", err: nil, statusCode: 0, expected: "unknown"},
		{name: "context timeout", err: context.DeadlineExceeded, statusCode: 0, expected: "timeout"},
		{name: "net timeout", err: &net.DNSError{IsTimeout: true}, statusCode: 0, expected: "timeout"},
		{name: "connection", err: &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}, statusCode: 0, expected: "connection"},
		{name: "forbidden", err: nil, statusCode: http.StatusForbidden, expected: "forbidden"},
		{name: "not found", err: nil, statusCode: http.StatusNotFound, expected: "not_found"},
		{name: "rate limited", err: nil, statusCode: http.StatusTooManyRequests, expected: "rate_limited"},
		{name: "bad request", err: errors.New("Bad Request"), statusCode: http.StatusBadRequest, expected: "bad_request"},
		{name: "server", err: errors.New("Bad Gateway"), statusCode: http.StatusBadGateway, expected: "server"},
		{name: "other", err: errors.New("some other error"), statusCode: 0, expected: "other"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := errorTypeLabel(classifyError(tt.err, tt.statusCode)); got != tt.expected {
				t.Fatalf("classifyError(%v, %d) = %q, want %q", tt.err, tt.statusCode, got, tt.expected)
			}
		})
	}
}

func TestFetchConvertsOffersAndSamples(t *testing.T) {
	c, transport := newTestClient(t, 0)

	var gotName string
	transport.RegisterResponder("POST", testEndpoint, func(req *http.Request) (*http.Response, error) {
		var body struct {
			Name string `json:"name"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			return httpmock.NewStringResponse(http.StatusBadRequest, "bad body"), nil
		}
		gotName = body.Name
		return httpmock.NewJsonResponse(http.StatusOK, map[string]any{
			"offers": []map[string]any{
				{"title": "Bol en grès", "url": "https://a.example/bol", "price": 30, "source": "amazon", "sim": 0.8},
				{"name": "Bol artisanal", "link": "https://b.example/bol", "price": "n/a", "sim": 0.8},
				{"title": "sans lien", "price": 12},
				{"url": "https://c.example/bol", "price": 25.5, "currency": "USD", "source": "gshopping"},
			},
			"samples": []map[string]any{
				{"title": "", "link": "https://www.ebay.example/itm/1", "snippet_price_usd": []any{19.9, 25}},
				{"title": "Bol vintage", "url": "https://ebay.example/itm/2", "snippet_price_usd": []any{}},
			},
			"message":         "ok",
			"estimated_price": 27.5,
		})
	})

	res, err := c.Fetch(context.Background(), "bol en grès")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if gotName != "bol en grès" {
		t.Fatalf("request name = %q", gotName)
	}
	if res.Attempts != 1 || res.Message != "ok" {
		t.Fatalf("unexpected result meta: %+v", res)
	}
	if res.EstimatedHint == nil || *res.EstimatedHint != 27.5 {
		t.Fatalf("estimated hint = %v, want 27.5", res.EstimatedHint)
	}

	wantURLs := []string{
		"https://a.example/bol",
		"https://b.example/bol",
		"https://www.ebay.example/itm/1",
		"https://c.example/bol",
		"https://ebay.example/itm/2",
	}
	if len(res.Offers) != len(wantURLs) {
		t.Fatalf("got %d offers, want %d: %+v", len(res.Offers), len(wantURLs), res.Offers)
	}
	for i, want := range wantURLs {
		if res.Offers[i].URL != want {
			t.Fatalf("offer %d url = %q, want %q", i, res.Offers[i].URL, want)
		}
	}

	b := res.Offers[1]
	if b.Title != "Bol artisanal" || b.Price != nil || b.Currency != "EUR" || b.Source != "unknown" {
		t.Fatalf("defaults not applied: %+v", b)
	}
	sample := res.Offers[2]
	if sample.Title != "www.ebay.example" || sample.Source != "ebay" || sample.Price != 19.9 {
		t.Fatalf("sample conversion = %+v", sample)
	}
	if res.Offers[4].Price != nil {
		t.Fatalf("sample without snippet price should be unpriced, got %v", res.Offers[4].Price)
	}
}

func TestFetchRetriesTransientStatus(t *testing.T) {
	c, transport := newTestClient(t, 2)

	var calls int32
	transport.RegisterResponder("POST", testEndpoint, func(req *http.Request) (*http.Response, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			return httpmock.NewStringResponse(http.StatusServiceUnavailable, ""), nil
		}
		return httpmock.NewJsonResponse(http.StatusOK, map[string]any{"offers": []any{}})
	})

	res, err := c.Fetch(context.Background(), "lampe berger")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if res.Attempts != 2 {
		t.Fatalf("attempts = %d, want 2", res.Attempts)
	}
	stats := c.Stats()
	if stats.Retries != 1 || stats.ErrorsByType["server"] != 1 {
		t.Fatalf("stats = %+v", stats)
	}
	if got := testutil.ToFloat64(c.Metrics.RetriesTotal); got != 1 {
		t.Fatalf("retries metric = %v, want 1", got)
	}
}

func TestFetchStatusRetryPolicy(t *testing.T) {
	tests := []struct {
		status    int
		expected  string
		wantCalls int32
	}{
		{status: http.StatusTooManyRequests, expected: "rate_limited", wantCalls: 3},
		{status: http.StatusInternalServerError, expected: "server", wantCalls: 3},
		{status: http.StatusForbidden, expected: "forbidden", wantCalls: 1},
		{status: http.StatusNotFound, expected: "not_found", wantCalls: 1},
		{status: http.StatusUnprocessableEntity, expected: "bad_request", wantCalls: 1},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("status_%d", tt.status), func(t *testing.T) {
			c, transport := newTestClient(t, 2)

			var calls int32
			transport.RegisterResponder("POST", testEndpoint, func(req *http.Request) (*http.Response, error) {
				atomic.AddInt32(&calls, 1)
				return httpmock.NewStringResponse(tt.status, ""), nil
			})

			_, err := c.Fetch(context.Background(), "tasse en céramique")
			if err == nil {
				t.Fatalf("expected error for status %d", tt.status)
			}
			if got := errorTypeLabel(err); got != tt.expected {
				t.Fatalf("error type = %q, want %q", got, tt.expected)
			}
			if got := atomic.LoadInt32(&calls); got != tt.wantCalls {
				t.Fatalf("calls = %d, want %d", got, tt.wantCalls)
			}
		})
	}
}

func TestFetchInvalidJSON(t *testing.T) {
	c, transport := newTestClient(t, 2)
	transport.RegisterResponder("POST", testEndpoint, httpmock.NewStringResponder(http.StatusOK, "<html>"))

	if _, err := c.Fetch(context.Background(), "bougie parfumée"); err == nil {
		t.Fatalf("expected decode error")
	}
	if got := c.Stats().Retries; got != 0 {
		t.Fatalf("decode errors should not be retried, got %d retries", got)
	}
}

func TestFetchCanceledContext(t *testing.T) {
	c, transport := newTestClient(t, 2)
	transport.RegisterResponder("POST", testEndpoint, httpmock.NewStringResponder(http.StatusServiceUnavailable, ""))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.Fetch(ctx, "savon au lait"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestNewClientRejectsBadURL(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.EstimatorURL = "/relative"
	if _, err := NewClient(cfg, nil); err == nil {
		t.Fatalf("expected error for url without host")
	}
}

func TestConvertSample(t *testing.T) {
	c, _ := newTestClient(t, 0)

	tests := []struct {
		name      string
		sample    samplePayload
		wantOK    bool
		wantTitle string
		wantPrice any
	}{
		{
			name:      "first numeric snippet price",
			sample:    samplePayload{Title: "Bol", Link: "https://ebay.example/1", SnippetPriceUSD: []any{"n/a", 12.5, 30.0}},
			wantOK:    true,
			wantTitle: "Bol",
			wantPrice: 12.5,
		},
		{
			name:      "name before host",
			sample:    samplePayload{Name: "Bol vintage", URL: "https://www.ebay.example/2"},
			wantOK:    true,
			wantTitle: "Bol vintage",
		},
		{
			name:      "host when untitled",
			sample:    samplePayload{Link: "https://ebay.example/3", SnippetPriceUSD: []any{nil, "?"}},
			wantOK:    true,
			wantTitle: "ebay.example",
		},
		{
			name:      "default title",
			sample:    samplePayload{Link: "not a url"},
			wantOK:    true,
			wantTitle: "Offre concurrente",
		},
		{
			name:   "no link",
			sample: samplePayload{Title: "Bol", SnippetPriceUSD: []any{10.0}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, ok := c.convertSample(tt.sample)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if raw.Title != tt.wantTitle || raw.Price != tt.wantPrice {
				t.Fatalf("sample = %+v, want title %q price %v", raw, tt.wantTitle, tt.wantPrice)
			}
			if raw.Source != "ebay" || raw.Currency != "EUR" {
				t.Fatalf("sample source/currency = %q/%q", raw.Source, raw.Currency)
			}
		})
	}
}

func TestRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "timeout", err: ErrTimeout{Err: context.DeadlineExceeded}, want: true},
		{name: "connection", err: ErrConnection{Err: errors.New("refused")}, want: true},
		{name: "rate limited", err: ErrRateLimited{Err: errors.New("429")}, want: true},
		{name: "server", err: ErrServer{Status: 502, Err: errors.New("502")}, want: true},
		{name: "forbidden", err: ErrForbidden{Err: errors.New("403")}, want: false},
		{name: "not found", err: ErrNotFound{Err: errors.New("404")}, want: false},
		{name: "bad request", err: ErrBadRequest{Status: 422, Err: errors.New("422")}, want: false},
		{name: "wrapped server", err: fmt.Errorf("fetch: %w", ErrServer{Status: 500, Err: errors.New("500")}), want: true},
		{name: "plain", err: errors.New("decode"), want: false},
		{name: "nil", err: nil, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := retryable(tt.err); got != tt.want {
				t.Fatalf("retryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
