// Package cache memoizes analyses by the identity of their inputs.
package cache

import (
	"encoding/json"
	"fmt"

	"github.com/cespare/xxhash/v2"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/aluiziolira/crafthub-pricing/metrics"
	"github.com/aluiziolira/crafthub-pricing/models"
)

// Analyzer computes an analysis for a product and its offers.
type Analyzer interface {
	Analyze(productName string, currentPrice *float64, offers []models.RawOffer) *models.AnalysisResult
}

// AnalysisCache is a bounded LRU in front of an Analyzer. Cached results are
// shared between callers and must be treated as read-only.
type AnalysisCache struct {
	next    Analyzer
	entries *lru.Cache[uint64, *models.AnalysisResult]
	metrics *metrics.Metrics
}

// New wraps next with an LRU holding at most size results.
func New(next Analyzer, size int, m *metrics.Metrics) (*AnalysisCache, error) {
	if next == nil {
		return nil, fmt.Errorf("cache: analyzer is nil")
	}
	entries, err := lru.New[uint64, *models.AnalysisResult](size)
	if err != nil {
		return nil, fmt.Errorf("cache: create lru: %w", err)
	}
	return &AnalysisCache{next: next, entries: entries, metrics: m}, nil
}

// Analyze returns the cached result for identical inputs or computes it.
func (c *AnalysisCache) Analyze(productName string, currentPrice *float64, offers []models.RawOffer) *models.AnalysisResult {
	key, ok := Key(productName, currentPrice, offers)
	if ok {
		if res, hit := c.entries.Get(key); hit {
			c.metrics.IncCache(true)
			return res
		}
	}
	c.metrics.IncCache(false)

	res := c.next.Analyze(productName, currentPrice, offers)
	c.metrics.ObserveAnalysis(len(offers))
	if ok {
		c.entries.Add(key, res)
	}
	return res
}

// Len returns the number of cached results.
func (c *AnalysisCache) Len() int {
	return c.entries.Len()
}

// Purge drops every cached result.
func (c *AnalysisCache) Purge() {
	c.entries.Purge()
}

type keyInput struct {
	Name    string            `json:"n"`
	Current *float64          `json:"c"`
	Offers  []models.RawOffer `json:"o"`
}

// Key hashes the analysis inputs. It reports false when they cannot be
// encoded, e.g. a NaN price, in which case the result is not cached.
func Key(productName string, currentPrice *float64, offers []models.RawOffer) (uint64, bool) {
	data, err := json.Marshal(keyInput{Name: productName, Current: currentPrice, Offers: offers})
	if err != nil {
		return 0, false
	}
	return xxhash.Sum64(data), true
}
