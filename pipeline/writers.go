package pipeline

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aluiziolira/crafthub-pricing/models"
)

var reportHeader = []string{
	"product", "current_price", "offer_count",
	"median", "q1", "q3", "low_bound", "high_bound", "min", "max", "estimated",
	"band_low", "band_high", "best_url", "best_score",
	"insight", "message", "error", "analyzed_at",
}

// CSVWriter writes one flattened row per report.
type CSVWriter struct {
	file   *os.File
	writer *csv.Writer
	mu     sync.Mutex
}

// NewCSVWriter initialises a CSV writer and writes the header row.
func NewCSVWriter(filename string) (*CSVWriter, error) {
	if err := ensureDir(filename); err != nil {
		return nil, err
	}

	f, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("create csv file: %w", err)
	}

	writer := csv.NewWriter(f)
	if err := writer.Write(reportHeader); err != nil {
		f.Close()
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		f.Close()
		return nil, fmt.Errorf("flush csv header: %w", err)
	}

	return &CSVWriter{
		file:   f,
		writer: writer,
	}, nil
}

// Write appends reports to the CSV output.
func (cw *CSVWriter) Write(reports []*models.Report) error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	for _, report := range reports {
		if err := cw.writer.Write(reportRecord(report)); err != nil {
			return fmt.Errorf("write csv record: %w", err)
		}
	}
	cw.writer.Flush()
	if err := cw.writer.Error(); err != nil {
		return fmt.Errorf("flush csv records: %w", err)
	}
	return nil
}

func reportRecord(r *models.Report) []string {
	var (
		stats models.PriceStatistics
		band  models.RecommendedBand
		insight, bestURL, bestScore string
	)
	if r.Result != nil {
		stats = r.Result.Stats
		band = r.Result.Band
		insight = r.Result.Insight
		if len(r.Result.Ranked) > 0 {
			best := r.Result.Ranked[0]
			bestURL = best.URL
			bestScore = strconv.FormatFloat(best.Score, 'f', 4, 64)
		}
	}

	return []string{
		r.Product,
		formatOptional(r.Current),
		strconv.Itoa(r.OfferCount),
		formatOptional(stats.Median),
		formatOptional(stats.Q1),
		formatOptional(stats.Q3),
		formatOptional(stats.LowBound),
		formatOptional(stats.HighBound),
		formatOptional(stats.Min),
		formatOptional(stats.Max),
		formatOptional(stats.Estimated),
		formatOptional(band.Low),
		formatOptional(band.High),
		bestURL,
		bestScore,
		insight,
		r.Message,
		r.Error,
		r.AnalyzedAt.Format(time.RFC3339),
	}
}

func formatOptional(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

// Close flushes and closes the file handle.
func (cw *CSVWriter) Close() error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	cw.writer.Flush()
	if err := cw.writer.Error(); err != nil {
		return fmt.Errorf("flush csv writer: %w", err)
	}
	return cw.file.Close()
}

// Validate ensures the file has content besides the header.
func (cw *CSVWriter) Validate() error {
	info, err := cw.file.Stat()
	if err != nil {
		return fmt.Errorf("stat csv file: %w", err)
	}
	if info.Size() <= 0 {
		return fmt.Errorf("csv file is empty")
	}
	return nil
}

// JSONWriter writes newline-delimited JSON reports.
type JSONWriter struct {
	file    *os.File
	writer  *bufio.Writer
	encoder *json.Encoder
	mu      sync.Mutex
}

// NewJSONWriter initialises the JSON writer.
func NewJSONWriter(filename string) (*JSONWriter, error) {
	if err := ensureDir(filename); err != nil {
		return nil, err
	}

	f, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("create json file: %w", err)
	}

	buffer := bufio.NewWriter(f)
	return &JSONWriter{
		file:    f,
		writer:  buffer,
		encoder: json.NewEncoder(buffer),
	}, nil
}

// Write appends reports in JSONL format.
func (jw *JSONWriter) Write(reports []*models.Report) error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	for _, report := range reports {
		if err := jw.encoder.Encode(report); err != nil {
			return fmt.Errorf("encode json record: %w", err)
		}
	}

	if err := jw.writer.Flush(); err != nil {
		return fmt.Errorf("flush json writer: %w", err)
	}

	return nil
}

// Close flushes buffers and closes the underlying file.
func (jw *JSONWriter) Close() error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	if err := jw.writer.Flush(); err != nil {
		return fmt.Errorf("flush json writer: %w", err)
	}
	return jw.file.Close()
}

// Validate ensures the JSON file has data.
func (jw *JSONWriter) Validate() error {
	info, err := jw.file.Stat()
	if err != nil {
		return fmt.Errorf("stat json file: %w", err)
	}
	if info.Size() <= 0 {
		return fmt.Errorf("json file is empty")
	}
	return nil
}

// NewWriter opens the writer for format ("csv", "json" or "dual") at path.
// Dual output writes path plus a sibling .jsonl file.
func NewWriter(format, path string) (OutputWriter, error) {
	var (
		w   OutputWriter
		err error
	)
	switch format {
	case "csv":
		w, err = NewCSVWriter(path)
	case "json":
		w, err = NewJSONWriter(path)
	case "dual":
		ext := filepath.Ext(path)
		w, err = NewDualWriter(path, strings.TrimSuffix(path, ext)+".jsonl")
	default:
		return nil, fmt.Errorf("unknown output format %q", format)
	}
	if err != nil {
		return nil, err
	}
	return w, nil
}

func ensureDir(filename string) error {
	dir := filepath.Dir(filename)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %q: %w", dir, err)
	}
	return nil
}
