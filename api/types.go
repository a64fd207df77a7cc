package api

import (
	"context"

	"github.com/aluiziolira/crafthub-pricing/models"
)

// Analyzer produces an analysis for a product and its offers.
type Analyzer interface {
	Analyze(productName string, currentPrice *float64, offers []models.RawOffer) *models.AnalysisResult
}

// OfferSource fetches competitor offers for a product name.
type OfferSource interface {
	Fetch(ctx context.Context, name string) (*models.FetchResult, error)
}

// AnalyzeRequest is the body of POST /api/v1/analyze.
type AnalyzeRequest struct {
	ProductName  string            `json:"productName" validate:"max=200"`
	CurrentPrice *float64          `json:"currentPrice" validate:"omitempty,gte=0"`
	Offers       []models.RawOffer `json:"offers" validate:"max=1000"`
}

// CompetitorsRequest is the body of POST /api/v1/competitors.
type CompetitorsRequest struct {
	Name         string   `json:"name" validate:"max=200"`
	CurrentPrice *float64 `json:"currentPrice" validate:"omitempty,gte=0"`
}

// CompetitorsResponse carries the merged offers and their analysis.
type CompetitorsResponse struct {
	Offers  []models.RawOffer      `json:"offers"`
	Result  *models.AnalysisResult `json:"result"`
	Message string                 `json:"message,omitempty"`
}

// ErrorResponse is returned for every non-2xx answer.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
