// Package client talks to the estimator backend that scrapes competitor
// listings for a product name.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aluiziolira/crafthub-pricing/analysis"
	"github.com/aluiziolira/crafthub-pricing/config"
	"github.com/aluiziolira/crafthub-pricing/merger"
	"github.com/aluiziolira/crafthub-pricing/metrics"
	"github.com/aluiziolira/crafthub-pricing/models"
	"github.com/aluiziolira/crafthub-pricing/parser"
	"github.com/gocolly/colly/v2"
)

const (
	defaultOfferTitle = "Offre concurrente"
	defaultCurrency   = "EUR"
	defaultSource     = "unknown"
	sampleSource      = "ebay"
)

// Client wraps a colly collector posting product names to the estimator.
type Client struct {
	cfg       *config.Config
	endpoint  string
	collector *colly.Collector
	urls      analysis.URLParser
	Metrics   *metrics.Metrics

	requestCount int64
	errorCount   int64
	retryCount   int64

	mu           sync.Mutex
	errorsByType map[string]int
}

// Stats is a point-in-time copy of the client counters.
type Stats struct {
	Requests     int
	Errors       int
	Retries      int
	ErrorsByType map[string]int
}

// NewClient builds a client configured from cfg. m may be nil.
func NewClient(cfg *config.Config, m *metrics.Metrics) (*Client, error) {
	parsed, err := url.Parse(cfg.EstimatorURL)
	if err != nil {
		return nil, fmt.Errorf("parse estimator url: %w", err)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("estimator url must include a host")
	}

	collector := colly.NewCollector(
		colly.AllowedDomains(parsed.Hostname()),
		colly.UserAgent(cfg.UserAgent),
		colly.AllowURLRevisit(),
	)
	collector.SetRequestTimeout(cfg.Timeout)
	collector.IgnoreRobotsTxt = true
	collector.WithTransport(&http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.Timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	})

	if err := collector.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: cfg.Parallelism,
	}); err != nil {
		return nil, fmt.Errorf("configure rate limits: %w", err)
	}

	c := &Client{
		cfg:          cfg,
		endpoint:     parsed.String(),
		collector:    collector,
		urls:         analysis.NewURLParser(),
		Metrics:      m,
		errorsByType: make(map[string]int),
	}
	c.configureHandlers()
	return c, nil
}

func (c *Client) configureHandlers() {
	c.collector.OnRequest(func(r *colly.Request) {
		r.Ctx.Put("start", time.Now())
		atomic.AddInt64(&c.requestCount, 1)
		c.Metrics.IncRequest("started")
	})

	c.collector.OnResponse(func(r *colly.Response) {
		r.Ctx.Put("status", r.StatusCode)
		r.Ctx.Put("body", r.Body)
		c.Metrics.IncRequest("ok")
		if start, ok := r.Request.Ctx.GetAny("start").(time.Time); ok {
			c.Metrics.ObserveDuration(time.Since(start))
		}
	})

	c.collector.OnError(func(r *colly.Response, err error) {
		if r == nil || r.Ctx == nil {
			return
		}
		r.Ctx.Put("status", r.StatusCode)
		c.Metrics.IncRequest("error")
		if start, ok := r.Ctx.GetAny("start").(time.Time); ok {
			c.Metrics.ObserveDuration(time.Since(start))
		}
	})
}

// Fetch asks the estimator for competitor offers of name and returns them
// merged and ordered. Transient failures are retried with capped
// exponential backoff.
func (c *Client) Fetch(ctx context.Context, name string) (*models.FetchResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	body, err := json.Marshal(map[string]string{"name": name})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			atomic.AddInt64(&c.retryCount, 1)
			c.Metrics.IncRetries()
			delay := c.backoff(attempt)
			slog.Debug("retrying estimator request",
				slog.String("product", name),
				slog.Int("attempt", attempt+1),
				slog.Duration("delay", delay),
			)
			if err := sleep(ctx, delay); err != nil {
				lastErr = err
				break
			}
		}

		payload, err := c.post(ctx, body)
		if err == nil {
			result := c.convert(name, payload)
			result.Attempts = attempt + 1
			return result, nil
		}

		lastErr = err
		category := errorTypeLabel(err)
		atomic.AddInt64(&c.errorCount, 1)
		c.mu.Lock()
		c.errorsByType[category]++
		c.mu.Unlock()
		c.Metrics.IncError(category)
		slog.Error("estimator request error",
			slog.String("product", name),
			slog.String("category", category),
			slog.Any("error", err),
		)

		if !retryable(err) || ctx.Err() != nil {
			break
		}
	}
	return nil, fmt.Errorf("fetch competitors for %q: %w", name, lastErr)
}

func (c *Client) post(ctx context.Context, body []byte) (*estimatePayload, error) {
	if err := ctx.Err(); err != nil {
		return nil, classifyError(err, 0)
	}
	reqCtx := colly.NewContext()
	hdr := http.Header{}
	hdr.Set("Content-Type", "application/json")
	hdr.Set("Accept", "application/json")

	done := make(chan error, 1)
	go func() {
		done <- c.collector.Request(http.MethodPost, c.endpoint, bytes.NewReader(body), reqCtx, hdr)
	}()

	var err error
	select {
	case <-ctx.Done():
		return nil, classifyError(ctx.Err(), 0)
	case err = <-done:
	}

	status, _ := reqCtx.GetAny("status").(int)
	if err != nil || status >= http.StatusMultipleChoices {
		return nil, classifyError(err, status)
	}

	raw, _ := reqCtx.GetAny("body").([]byte)
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, errors.New("empty estimator response")
	}
	var payload estimatePayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("decode estimator response: %w", err)
	}
	return &payload, nil
}

func (c *Client) backoff(attempt int) time.Duration {
	if attempt <= 0 {
		attempt = 1
	}

	base := c.cfg.RetryBackoff
	if base <= 0 {
		base = 100 * time.Millisecond
	}

	delay := base * time.Duration(1<<(attempt-1))
	if max := c.cfg.RetryBackoffMax; max > 0 && delay > max {
		delay = max
	}
	return delay
}

// Stats returns a snapshot of request, error and retry counters.
func (c *Client) Stats() Stats {
	c.mu.Lock()
	byType := make(map[string]int, len(c.errorsByType))
	for k, v := range c.errorsByType {
		byType[k] = v
	}
	c.mu.Unlock()

	return Stats{
		Requests:     int(atomic.LoadInt64(&c.requestCount)),
		Errors:       int(atomic.LoadInt64(&c.errorCount)),
		Retries:      int(atomic.LoadInt64(&c.retryCount)),
		ErrorsByType: byType,
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func classifyError(err error, statusCode int) error {
	if err == nil && statusCode == 0 {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout{Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrTimeout{Err: err}
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return ErrConnection{Err: err}
	}

	if statusCode >= http.StatusBadRequest {
		wrapped := err
		if wrapped == nil {
			wrapped = fmt.Errorf("http status %d", statusCode)
		}
		switch {
		case statusCode == http.StatusForbidden:
			return ErrForbidden{Err: wrapped}
		case statusCode == http.StatusNotFound:
			return ErrNotFound{Err: wrapped}
		case statusCode == http.StatusTooManyRequests:
			return ErrRateLimited{Err: wrapped}
		case statusCode >= http.StatusInternalServerError:
			return ErrServer{Status: statusCode, Err: wrapped}
		default:
			return ErrBadRequest{Status: statusCode, Err: wrapped}
		}
	}

	if err == nil {
		return fmt.Errorf("unexpected http status %d", statusCode)
	}
	return err
}

type estimatePayload struct {
	Offers         []offerPayload  `json:"offers"`
	Samples        []samplePayload `json:"samples"`
	Message        string          `json:"message"`
	EstimatedPrice any             `json:"estimated_price"`
}

type offerPayload struct {
	Title    string `json:"title"`
	Name     string `json:"name"`
	URL      string `json:"url"`
	Link     string `json:"link"`
	Price    any    `json:"price"`
	Currency string `json:"currency"`
	Source   string `json:"source"`
	Domain   string `json:"domain"`
	Sim      any    `json:"sim"`
}

type samplePayload struct {
	Title           string `json:"title"`
	Name            string `json:"name"`
	Link            string `json:"link"`
	URL             string `json:"url"`
	SnippetPriceUSD []any  `json:"snippet_price_usd"`
}

func (c *Client) convert(name string, p *estimatePayload) *models.FetchResult {
	offers := make([]models.RawOffer, 0, len(p.Offers))
	for _, o := range p.Offers {
		if raw, ok := convertOffer(o); ok {
			offers = append(offers, raw)
		}
	}
	samples := make([]models.RawOffer, 0, len(p.Samples))
	for _, s := range p.Samples {
		if raw, ok := c.convertSample(s); ok {
			samples = append(samples, raw)
		}
	}

	result := &models.FetchResult{
		Name:    name,
		Offers:  merger.Merge(offers, samples),
		Message: p.Message,
	}
	if v, ok := parser.CoercePrice(p.EstimatedPrice); ok {
		result.EstimatedHint = models.Float(v)
	}
	return result
}

func convertOffer(o offerPayload) (models.RawOffer, bool) {
	link := firstNonEmpty(o.URL, o.Link)
	if link == "" {
		return models.RawOffer{}, false
	}
	raw := models.RawOffer{
		Title:    firstNonEmpty(o.Title, o.Name, defaultOfferTitle),
		URL:      link,
		Currency: firstNonEmpty(o.Currency, defaultCurrency),
		Source:   firstNonEmpty(o.Source, defaultSource),
		Domain:   strings.TrimSpace(o.Domain),
	}
	if v, ok := parser.CoercePrice(o.Price); ok {
		raw.Price = v
	}
	if v, ok := parser.CoercePrice(o.Sim); ok {
		raw.Sim = v
	}
	return raw, true
}

func (c *Client) convertSample(s samplePayload) (models.RawOffer, bool) {
	link := firstNonEmpty(s.Link, s.URL)
	if link == "" {
		return models.RawOffer{}, false
	}
	host, _ := c.urls.Parse(link)
	raw := models.RawOffer{
		Title:    firstNonEmpty(s.Title, s.Name, host, defaultOfferTitle),
		URL:      link,
		Currency: defaultCurrency,
		Source:   sampleSource,
	}
	if v, ok := parser.FirstPrice(s.SnippetPriceUSD...); ok {
		raw.Price = v
	}
	return raw, true
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
