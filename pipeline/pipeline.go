// Package pipeline analyzes product batches concurrently and writes reports.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aluiziolira/crafthub-pricing/analysis"
	"github.com/aluiziolira/crafthub-pricing/config"
	"github.com/aluiziolira/crafthub-pricing/metrics"
	"github.com/aluiziolira/crafthub-pricing/models"
	"github.com/aluiziolira/crafthub-pricing/parser"
	lru "github.com/hashicorp/golang-lru/v2"
)

var (
	// ErrPipelineClosed is returned when Process is called after shutdown.
	ErrPipelineClosed = errors.New("pipeline: closed")
	// ErrPipelineCloseTimeout is returned when workers do not drain in time.
	ErrPipelineCloseTimeout = errors.New("pipeline: close timed out")
)

// drainTimeout bounds how long Close waits for in-flight products.
var drainTimeout = 30 * time.Second

// OutputWriter defines the interface for report output.
type OutputWriter interface {
	Write(reports []*models.Report) error
	Close() error
	Validate() error
}

// Analyzer produces the analysis for one product.
type Analyzer interface {
	Analyze(productName string, currentPrice *float64, offers []models.RawOffer) *models.AnalysisResult
}

// OfferSource fetches competitor offers for products without inline offers.
type OfferSource interface {
	Fetch(ctx context.Context, name string) (*models.FetchResult, error)
}

// Option customizes a Pipeline.
type Option func(*Pipeline)

// WithAnalyzer replaces the default analyzer, typically with a cache.
func WithAnalyzer(a Analyzer) Option {
	return func(p *Pipeline) {
		if a != nil {
			p.analyzer = a
		}
	}
}

// WithOfferSource enables fetching offers from the estimator.
func WithOfferSource(s OfferSource) Option {
	return func(p *Pipeline) {
		p.source = s
	}
}

// WithMetrics records product outcomes on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) {
		p.prom = m
	}
}

// Pipeline coordinates validation, de-duplication, analysis and output writing.
type Pipeline struct {
	ctx       context.Context
	writer    OutputWriter
	analyzer  Analyzer
	source    OfferSource
	prom      *metrics.Metrics
	productCh chan *models.Product
	batchSize int

	wg sync.WaitGroup

	seen   *lru.Cache[string, struct{}]
	seenMu sync.Mutex

	metrics counters

	mu     sync.Mutex // guards closed/err
	closed bool
	err    error

	closeOnce    sync.Once
	shutdown     chan struct{}
	shutdownOnce sync.Once
}

// NewPipeline builds a pipeline sized from cfg.
func NewPipeline(ctx context.Context, writer OutputWriter, cfg *config.Config, opts ...Option) *Pipeline {
	if ctx == nil {
		ctx = context.Background()
	}
	defaults := config.DefaultConfig()
	if cfg == nil {
		cfg = defaults
	}

	bufferSize := cfg.PipelineBufferSize
	if bufferSize <= 0 {
		bufferSize = defaults.PipelineBufferSize
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaults.BatchSize
	}
	dedupeSize := cfg.DedupeMaxSize
	if dedupeSize <= 0 {
		dedupeSize = defaults.DedupeMaxSize
	}
	seen, _ := lru.New[string, struct{}](dedupeSize)

	currency := cfg.Currency
	if currency == "" {
		currency = analysis.DefaultCurrency
	}

	p := &Pipeline{
		ctx:       ctx,
		writer:    writer,
		analyzer:  analysis.New(analysis.WithCurrency(currency)),
		productCh: make(chan *models.Product, bufferSize),
		batchSize: batchSize,
		seen:      seen,
		metrics:   newCounters(),
		shutdown:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start launches worker goroutines.
func (p *Pipeline) Start(workers int) {
	if workers <= 0 {
		workers = 1
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
}

// Process enqueues products for analysis.
func (p *Pipeline) Process(products ...*models.Product) error {
	if len(products) == 0 {
		return nil
	}

	closed, err := p.state()
	if err != nil {
		return err
	}
	if closed {
		return ErrPipelineClosed
	}

	for _, product := range products {
		if product == nil {
			continue
		}
		if err := p.enqueue(product); err != nil {
			return err
		}
	}
	return nil
}

// Close stops accepting products and waits for workers to drain.
func (p *Pipeline) Close() error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
	}
	p.mu.Unlock()

	p.closeOnce.Do(func() {
		close(p.productCh)
	})

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(drainTimeout):
		p.signalShutdown()
		return fmt.Errorf("%w after %s", ErrPipelineCloseTimeout, drainTimeout)
	}

	p.signalShutdown()
	return p.Err()
}

// Err returns the first error encountered during processing.
func (p *Pipeline) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// GetMetrics returns a snapshot of the internal counters.
func (p *Pipeline) GetMetrics() map[string]interface{} {
	return p.metrics.snapshot()
}

// StartMetricsReporting emits periodic progress logs.
func (p *Pipeline) StartMetricsReporting(interval time.Duration) {
	if interval <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				snapshot := p.GetMetrics()
				processed, _ := snapshot["processed_products"].(int64)
				validation, _ := snapshot["validation_errors"].(map[string]int)
				slog.Info("pipeline progress",
					slog.Int64("processed", processed),
					slog.Int("invalid", validation["invalid_record"]),
					slog.Int("duplicates", validation["duplicate_product"]),
					slog.Int("fetch_errors", validation["fetch_error"]),
				)
			case <-p.shutdown:
				return
			}
		}
	}()
}

func (p *Pipeline) worker() {
	defer p.wg.Done()

	batch := make([]*models.Report, 0, p.batchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := p.writer.Write(batch); err != nil {
			return err
		}
		batch = batch[:0]
		return nil
	}

	for product := range p.productCh {
		report := p.prepare(product)
		if report == nil {
			continue
		}
		batch = append(batch, report)
		if len(batch) >= p.batchSize {
			if err := flush(); err != nil {
				p.setErr(fmt.Errorf("write batch: %w", err))
				return
			}
		}
	}

	if err := flush(); err != nil {
		p.setErr(fmt.Errorf("write batch: %w", err))
	}
}

func (p *Pipeline) prepare(product *models.Product) *models.Report {
	if err := parser.ValidateProduct(product); err != nil {
		p.metrics.addValidation("invalid_record")
		p.prom.IncProduct("invalid")
		slog.Debug("product rejected", slog.Any("error", err))
		return nil
	}

	key := parser.NormalizeName(product.Name)
	p.seenMu.Lock()
	duplicate, _ := p.seen.ContainsOrAdd(key, struct{}{})
	p.seenMu.Unlock()
	if duplicate {
		p.metrics.addValidation("duplicate_product")
		p.prom.IncProduct("duplicate")
		return nil
	}

	report := &models.Report{
		Product:    product.Name,
		Current:    product.CurrentPrice,
		AnalyzedAt: time.Now().UTC(),
	}

	offers := product.Offers
	if len(offers) == 0 && p.source != nil {
		if err := parser.CheckProductName(product.Name); err != nil {
			report.Message = err.Error()
		} else {
			res, err := p.source.Fetch(p.ctx, product.Name)
			if err != nil {
				p.metrics.addValidation("fetch_error")
				p.prom.IncProduct("fetch_error")
				report.Error = err.Error()
				slog.Warn("fetch competitors failed",
					slog.String("product", product.Name),
					slog.Any("error", err),
				)
				return report
			}
			p.metrics.incrementFetched()
			offers = res.Offers
			report.Message = res.Message
		}
	}

	report.OfferCount = len(offers)
	report.Result = p.analyzer.Analyze(product.Name, product.CurrentPrice, offers)
	p.metrics.incrementProcessed()
	p.prom.IncProduct("analyzed")
	return report
}

func (p *Pipeline) enqueue(product *models.Product) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = ErrPipelineClosed
		}
	}()

	select {
	case <-p.shutdown:
		return ErrPipelineClosed
	case <-p.ctx.Done():
		return p.ctx.Err()
	case p.productCh <- product:
		return nil
	}
}

func (p *Pipeline) setErr(err error) {
	if err == nil {
		return
	}

	p.mu.Lock()
	if p.err != nil {
		p.mu.Unlock()
		return
	}
	p.err = err
	p.closed = true
	p.mu.Unlock()

	p.signalShutdown()
}

func (p *Pipeline) state() (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed, p.err
}

func (p *Pipeline) signalShutdown() {
	p.shutdownOnce.Do(func() {
		close(p.shutdown)
	})
}

type counters struct {
	mu         sync.Mutex
	processed  int64
	fetched    int64
	validation map[string]int
}

func newCounters() counters {
	return counters{
		validation: make(map[string]int),
	}
}

func (c *counters) incrementProcessed() {
	c.mu.Lock()
	c.processed++
	c.mu.Unlock()
}

func (c *counters) incrementFetched() {
	c.mu.Lock()
	c.fetched++
	c.mu.Unlock()
}

func (c *counters) addValidation(kind string) {
	c.mu.Lock()
	c.validation[kind]++
	c.mu.Unlock()
}

func (c *counters) snapshot() map[string]interface{} {
	c.mu.Lock()
	defer c.mu.Unlock()

	copyValidation := make(map[string]int, len(c.validation))
	for k, v := range c.validation {
		copyValidation[k] = v
	}

	return map[string]interface{}{
		"processed_products": c.processed,
		"fetched_products":   c.fetched,
		"validation_errors":  copyValidation,
	}
}
