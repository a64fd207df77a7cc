package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/aluiziolira/crafthub-pricing/analysis"
	"github.com/aluiziolira/crafthub-pricing/api"
	"github.com/aluiziolira/crafthub-pricing/cache"
	"github.com/aluiziolira/crafthub-pricing/client"
	"github.com/aluiziolira/crafthub-pricing/metrics"
	"github.com/aluiziolira/crafthub-pricing/models"
	"github.com/aluiziolira/crafthub-pricing/parser"
	"github.com/aluiziolira/crafthub-pricing/pipeline"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type analyzeCommand struct {
	Name   string `long:"name" required:"true" description:"Product name"`
	Price  string `long:"price" description:"Current price of the product"`
	Offers string `long:"offers" description:"JSON file with offers; fetched from the estimator when omitted"`
}

func (c *analyzeCommand) Execute(args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	var current *float64
	if strings.TrimSpace(c.Price) != "" {
		v, ok := parser.CoercePrice(c.Price)
		if !ok {
			return fmt.Errorf("invalid --price %q", c.Price)
		}
		current = models.Float(v)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var offers []models.RawOffer
	if c.Offers != "" {
		data, err := os.ReadFile(c.Offers)
		if err != nil {
			return fmt.Errorf("read offers: %w", err)
		}
		if err := json.Unmarshal(data, &offers); err != nil {
			return fmt.Errorf("decode offers %s: %w", c.Offers, err)
		}
	} else {
		if err := parser.CheckProductName(c.Name); err != nil {
			return err
		}
		cl, err := client.NewClient(cfg, nil)
		if err != nil {
			return err
		}
		res, err := cl.Fetch(ctx, c.Name)
		if err != nil {
			return err
		}
		if res.Message != "" {
			slog.Info("estimator message", slog.String("message", res.Message))
		}
		offers = res.Offers
	}

	result := analysis.New(analysis.WithCurrency(cfg.Currency)).Analyze(c.Name, current, offers)
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

type batchCommand struct {
	Input    string `long:"input" required:"true" description:"Products file (.csv, .json or .jsonl)"`
	Output   string `long:"output" description:"Output file path"`
	Format   string `long:"format" choice:"csv" choice:"json" choice:"dual" description:"Output format"`
	Parallel int    `long:"parallel" description:"Number of concurrent workers"`
	Metrics  string `long:"metrics-addr" description:"Prometheus metrics listen address (e.g. :9090)"`
	Offline  bool   `long:"offline" description:"Only analyze inline offers, never call the estimator"`
}

func (c *batchCommand) Execute(args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if c.Output != "" {
		cfg.OutputFile = c.Output
	}
	if c.Format != "" {
		cfg.OutputFormat = strings.ToLower(c.Format)
	}
	if c.Parallel > 0 {
		cfg.Parallelism = c.Parallel
	}
	if c.Metrics != "" {
		cfg.MetricsAddr = c.Metrics
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	products, err := pipeline.ReadProducts(c.Input)
	if err != nil {
		return err
	}

	slog.Info("starting batch",
		slog.String("input", c.Input),
		slog.Int("products", len(products)),
		slog.Int("workers", cfg.Parallelism),
	)

	m := metrics.New()
	analyzer, err := cache.New(analysis.New(analysis.WithCurrency(cfg.Currency)), cfg.CacheSize, m)
	if err != nil {
		return err
	}

	pipelineOpts := []pipeline.Option{pipeline.WithAnalyzer(analyzer), pipeline.WithMetrics(m)}
	var cl *client.Client
	if !c.Offline {
		cl, err = client.NewClient(cfg, m)
		if err != nil {
			return err
		}
		pipelineOpts = append(pipelineOpts, pipeline.WithOfferSource(cl))
	}

	writer, err := pipeline.NewWriter(cfg.OutputFormat, cfg.OutputFile)
	if err != nil {
		return fmt.Errorf("creating writer: %w", err)
	}
	defer func() {
		if err := writer.Close(); err != nil {
			slog.Error("close writer", slog.Any("error", err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metricsServer := startMetricsServer(cfg.MetricsAddr, m)

	p := pipeline.NewPipeline(ctx, writer, cfg, pipelineOpts...)
	p.Start(cfg.Parallelism)
	if cfg.Verbose {
		p.StartMetricsReporting(10 * time.Second)
	}

	start := time.Now()
	submitErr := p.Process(products...)
	if err := p.Close(); err != nil {
		return fmt.Errorf("pipeline shutdown failed: %w", err)
	}
	if submitErr != nil && !errors.Is(submitErr, context.Canceled) {
		return fmt.Errorf("submit products: %w", submitErr)
	}
	if err := writer.Validate(); err != nil {
		return fmt.Errorf("output validation failed: %w", err)
	}

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("metrics server shutdown failed", slog.Any("error", err))
		}
		cancel()
	}

	result := runResult(start, len(products), p.GetMetrics(), cl)
	printSummary(result, cfg.OutputFile, p.GetMetrics())
	return nil
}

type serveCommand struct {
	Listen  string `long:"listen" description:"HTTP listen address"`
	Offline bool   `long:"offline" description:"Disable the competitors endpoint"`
}

func (c *serveCommand) Execute(args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if c.Listen != "" {
		cfg.ListenAddr = c.Listen
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	m := metrics.New()
	analyzer, err := cache.New(analysis.New(analysis.WithCurrency(cfg.Currency)), cfg.CacheSize, m)
	if err != nil {
		return err
	}

	var source api.OfferSource
	if !c.Offline {
		cl, err := client.NewClient(cfg, m)
		if err != nil {
			return err
		}
		source = cl
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	go purgeOnSignal(ctx, hup, analyzer)

	engine := api.NewServer(api.NewHandler(analyzer, source, m))
	return api.Run(ctx, cfg.ListenAddr, engine)
}

// purgeOnSignal drops every cached analysis each time sig fires, until ctx ends.
func purgeOnSignal(ctx context.Context, sig <-chan os.Signal, c *cache.AnalysisCache) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-sig:
			slog.Info("analysis cache purged", slog.Int("entries", c.Len()))
			c.Purge()
		}
	}
}

func startMetricsServer(addr string, m *metrics.Metrics) *http.Server {
	if addr == "" || m == nil {
		return nil
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{}),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server failed", slog.Any("error", err))
		}
	}()
	slog.Info("metrics server enabled", slog.String("addr", addr))
	return srv
}

func runResult(start time.Time, submitted int, snapshot map[string]interface{}, cl *client.Client) *models.RunResult {
	result := &models.RunResult{
		StartTime:    start,
		EndTime:      time.Now(),
		Submitted:    submitted,
		ErrorsByType: map[string]int{},
	}
	if processed, ok := snapshot["processed_products"].(int64); ok {
		result.Processed = int(processed)
	}
	if fetched, ok := snapshot["fetched_products"].(int64); ok {
		result.FetchCount = int(fetched)
	}
	if cl != nil {
		stats := cl.Stats()
		result.ErrorCount = stats.Errors
		result.RetryCount = stats.Retries
		result.ErrorsByType = stats.ErrorsByType
	}
	return result
}

func printSummary(result *models.RunResult, outputFile string, snapshot map[string]interface{}) {
	separator := "--------------------------------------------------"
	duration := result.EndTime.Sub(result.StartTime)
	perSec := 0.0
	if duration.Seconds() > 0 {
		perSec = float64(result.Processed) / duration.Seconds()
	}

	fmt.Println("\n" + separator)
	fmt.Println("Batch complete")
	fmt.Printf("  Submitted:     %d\n", result.Submitted)
	fmt.Printf("  Analyzed:      %d\n", result.Processed)
	fmt.Printf("  Fetched:       %d\n", result.FetchCount)
	fmt.Printf("  Errors:        %d\n", result.ErrorCount)
	fmt.Printf("  Retries:       %d\n", result.RetryCount)
	if len(result.ErrorsByType) > 0 {
		fmt.Printf("  Error types:   %v\n", result.ErrorsByType)
	}
	if valErrors, ok := snapshot["validation_errors"].(map[string]int); ok && len(valErrors) > 0 {
		fmt.Printf("  Validation:    %v\n", valErrors)
	}
	fmt.Printf("  Duration:      %v\n", duration)
	fmt.Printf("  Products/sec:  %.2f\n", perSec)
	fmt.Printf("  Output file:   %s\n", outputFile)
	fmt.Println(separator)
}
