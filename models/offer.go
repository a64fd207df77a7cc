// Package models defines data structures shared by the analyzer, the client and the pipeline.
package models

// RawOffer is a competitor listing as received from the estimator backend.
// Price and PriceParsed may hold a number or a numeric string.
type RawOffer struct {
	Title       string  `json:"title,omitempty"`
	URL         string  `json:"url,omitempty"`
	Price       any     `json:"price,omitempty"`
	PriceParsed any     `json:"priceParsed,omitempty"`
	Currency    string  `json:"currency,omitempty"`
	Source      string  `json:"source,omitempty"`
	Domain      string  `json:"domain,omitempty"`
	Sim         float64 `json:"sim,omitempty"`
}

// NormalizedOffer is a cleaned RawOffer. It always has a title or a price.
type NormalizedOffer struct {
	Title    string   `json:"title"`
	URL      string   `json:"url"`
	Domain   string   `json:"domain"`
	Price    *float64 `json:"price"`
	Currency string   `json:"currency,omitempty"`
	Source   string   `json:"source,omitempty"`
}

// ScoredOffer is a NormalizedOffer with its similarity and ranking scores.
type ScoredOffer struct {
	NormalizedOffer
	Similarity     float64 `json:"similarity"`
	PriceProximity float64 `json:"priceProximity"`
	Score          float64 `json:"score"`
	IsBelowMarket  bool    `json:"isBelowMarket"`
	IsAboveMarket  bool    `json:"isAboveMarket"`
}

// PriceStatistics summarises the priced offers of one analysis.
type PriceStatistics struct {
	Count     int      `json:"count"`
	Median    *float64 `json:"median"`
	Q1        *float64 `json:"q1"`
	Q3        *float64 `json:"q3"`
	LowBound  *float64 `json:"lowBound"`
	HighBound *float64 `json:"highBound"`
	Min       *float64 `json:"min"`
	Max       *float64 `json:"max"`
	// Estimated is the median of the prices inside [LowBound, HighBound].
	Estimated *float64 `json:"estimated"`
}

// RecommendedBand is the suggested competitive price range.
type RecommendedBand struct {
	Low  *float64 `json:"low"`
	High *float64 `json:"high"`
}

// AnalysisResult is the output of one analysis call.
type AnalysisResult struct {
	Ranked  []ScoredOffer   `json:"ranked"`
	Band    RecommendedBand `json:"band"`
	Stats   PriceStatistics `json:"stats"`
	Insight string          `json:"insight"`
}

// Float returns a pointer to v.
func Float(v float64) *float64 {
	return &v
}
