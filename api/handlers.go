package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/aluiziolira/crafthub-pricing/models"
	"github.com/aluiziolira/crafthub-pricing/parser"
	"github.com/gin-gonic/gin"
)

// Health reports that the service is up.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Analyze runs the analysis on offers supplied by the caller.
func (h *Handler) Analyze(c *gin.Context) {
	var req AnalyzeRequest
	if !h.bind(c, &req) {
		return
	}

	result := h.analyzer.Analyze(req.ProductName, req.CurrentPrice, req.Offers)
	c.JSON(http.StatusOK, result)
}

// Competitors fetches offers from the estimator and analyzes them.
func (h *Handler) Competitors(c *gin.Context) {
	var req CompetitorsRequest
	if !h.bind(c, &req) {
		return
	}

	if err := parser.CheckProductName(req.Name); err != nil {
		c.JSON(http.StatusOK, CompetitorsResponse{
			Offers:  []models.RawOffer{},
			Result:  h.analyzer.Analyze(req.Name, req.CurrentPrice, nil),
			Message: guardMessage(err),
		})
		return
	}

	if h.source == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "competitor search is not configured"})
		return
	}

	res, err := h.source.Fetch(c.Request.Context(), req.Name)
	if err != nil {
		slog.Error("competitor fetch failed",
			slog.String("product", req.Name),
			slog.String("request_id", c.GetString("request_id")),
			slog.Any("error", err),
		)
		c.Error(err)
		c.JSON(http.StatusBadGateway, ErrorResponse{Error: "competitor search failed", Details: err.Error()})
		return
	}

	offers := res.Offers
	if offers == nil {
		offers = []models.RawOffer{}
	}
	c.JSON(http.StatusOK, CompetitorsResponse{
		Offers:  offers,
		Result:  h.analyzer.Analyze(req.Name, req.CurrentPrice, offers),
		Message: res.Message,
	})
}

func (h *Handler) bind(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body", Details: err.Error()})
		return false
	}
	if err := h.validate.Struct(req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "validation failed", Details: err.Error()})
		return false
	}
	return true
}

func guardMessage(err error) string {
	if errors.Is(err, parser.ErrEmptyName) {
		return "Renseignez le nom du produit pour rechercher des concurrents."
	}
	return "Nom de produit trop générique, précisez la matière, la taille ou le style."
}
