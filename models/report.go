package models

import "time"

// Product is one catalog entry submitted for analysis.
type Product struct {
	Name         string     `json:"name"`
	CurrentPrice *float64   `json:"currentPrice,omitempty"`
	Offers       []RawOffer `json:"offers,omitempty"`
}

// FetchResult is the estimator backend answer converted to merged offers.
type FetchResult struct {
	Name          string     `json:"name"`
	Offers        []RawOffer `json:"offers"`
	Message       string     `json:"message,omitempty"`
	EstimatedHint *float64   `json:"estimatedPrice,omitempty"`
	Attempts      int        `json:"attempts"`
}

// Report is the pipeline output for one product.
type Report struct {
	Product    string          `json:"product"`
	Current    *float64        `json:"currentPrice,omitempty"`
	OfferCount int             `json:"offerCount"`
	Result     *AnalysisResult `json:"result,omitempty"`
	Message    string          `json:"message,omitempty"`
	Error      string          `json:"error,omitempty"`
	AnalyzedAt time.Time       `json:"analyzedAt"`
}

// RunResult holds the overall result of a batch run.
type RunResult struct {
	StartTime    time.Time
	EndTime      time.Time
	Submitted    int
	Processed    int
	FetchCount   int
	ErrorCount   int
	RetryCount   int
	ErrorsByType map[string]int
}
