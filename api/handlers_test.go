package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aluiziolira/crafthub-pricing/analysis"
	"github.com/aluiziolira/crafthub-pricing/metrics"
	"github.com/aluiziolira/crafthub-pricing/models"
)

type stubSource struct {
	result *models.FetchResult
	err    error
	calls  int
}

func (s *stubSource) Fetch(ctx context.Context, name string) (*models.FetchResult, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

func newTestServer(source OfferSource) http.Handler {
	return NewServer(NewHandler(analysis.New(), source, metrics.New()))
}

func doJSON(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	rec := doJSON(t, newTestServer(nil), http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"status":"ok"`) {
		t.Fatalf("body = %s", rec.Body.String())
	}
	if rec.Header().Get(requestIDHeader) == "" {
		t.Fatalf("expected generated request id")
	}
}

func TestRequestIDIsEchoed(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(requestIDHeader, "abc-123")
	rec := httptest.NewRecorder()
	newTestServer(nil).ServeHTTP(rec, req)
	if got := rec.Header().Get(requestIDHeader); got != "abc-123" {
		t.Fatalf("request id = %q", got)
	}
}

func TestAnalyze(t *testing.T) {
	body := `{"productName":"Bol en grès","currentPrice":45,"offers":[
		{"title":"Bol en grès","url":"https://a.com/1","price":40},
		{"title":"Bol","url":"https://b.com/2","price":"60"},
		{"title":"Assiette","url":"https://c.com/3"}]}`

	rec := doJSON(t, newTestServer(nil), http.MethodPost, "/api/v1/analyze", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}

	var result models.AnalysisResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(result.Ranked) != 3 {
		t.Fatalf("ranked = %d, want 3", len(result.Ranked))
	}
	if result.Ranked[0].URL != "https://a.com/1" {
		t.Fatalf("top offer = %q", result.Ranked[0].URL)
	}
	if result.Stats.Median == nil || *result.Stats.Median != 50 {
		t.Fatalf("median = %v, want 50", result.Stats.Median)
	}
}

func TestAnalyzeRejectsBadInput(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "malformed json", body: `{"productName":`},
		{name: "negative price", body: `{"productName":"Bol","currentPrice":-3}`},
		{name: "name too long", body: `{"productName":"` + strings.Repeat("x", 201) + `"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(t, newTestServer(nil), http.MethodPost, "/api/v1/analyze", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rec.Code)
			}
		})
	}
}

func TestCompetitors(t *testing.T) {
	source := &stubSource{result: &models.FetchResult{
		Name: "Bol en grès",
		Offers: []models.RawOffer{
			{Title: "Bol en grès", URL: "https://a.example/1", Price: 30.0},
			{Title: "Bol", URL: "https://b.example/2", Price: 40.0},
		},
		Message: "2 offres",
	}}

	rec := doJSON(t, newTestServer(source), http.MethodPost, "/api/v1/competitors", `{"name":"Bol en grès","currentPrice":35}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}

	var resp CompetitorsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Offers) != 2 || resp.Message != "2 offres" || resp.Result == nil {
		t.Fatalf("resp = %+v", resp)
	}
	if len(resp.Result.Ranked) != 2 {
		t.Fatalf("ranked = %d, want 2", len(resp.Result.Ranked))
	}
}

func TestCompetitorsGenericName(t *testing.T) {
	source := &stubSource{}
	rec := doJSON(t, newTestServer(source), http.MethodPost, "/api/v1/competitors", `{"name":"Savon"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if source.calls != 0 {
		t.Fatalf("backend should not be called for generic names")
	}

	var resp CompetitorsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Message == "" || len(resp.Offers) != 0 || resp.Result == nil || len(resp.Result.Ranked) != 0 {
		t.Fatalf("resp = %+v", resp)
	}
}

func TestCompetitorsBackendFailure(t *testing.T) {
	source := &stubSource{err: errors.New("server (502): Bad Gateway")}
	rec := doJSON(t, newTestServer(source), http.MethodPost, "/api/v1/competitors", `{"name":"Bougie parfumée"}`)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rec.Code)
	}
	var resp ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Error == "" {
		t.Fatalf("expected error message")
	}
}

func TestCompetitorsWithoutSource(t *testing.T) {
	rec := doJSON(t, newTestServer(nil), http.MethodPost, "/api/v1/competitors", `{"name":"Bougie parfumée"}`)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	rec := doJSON(t, newTestServer(nil), http.MethodOptions, "/api/v1/analyze", "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("missing CORS header")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	m := metrics.New()
	m.IncCache(true)
	h := NewServer(NewHandler(analysis.New(), nil, m))

	rec := doJSON(t, h, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !bytes.Contains(rec.Body.Bytes(), []byte("cache")) {
		t.Fatalf("metrics output missing cache series: %s", rec.Body.String())
	}
}

func TestRunShutsDownOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, "127.0.0.1:0", newTestServer(nil))
	}()
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("run: %v", err)
	}
}
