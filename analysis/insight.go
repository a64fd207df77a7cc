package analysis

import (
	"fmt"
	"strings"

	"github.com/aluiziolira/crafthub-pricing/models"
)

const insightSeparator = " • "

func (a *Analyzer) insight(ranked []models.ScoredOffer, m market, currentPrice *float64) string {
	parts := make([]string, 0, 5)

	if m.hasMedian {
		parts = append(parts, "Médiane marché ~ "+a.format(m.median))
	}
	if m.hasRange {
		parts = append(parts, fmt.Sprintf("Min/Max: %s – %s", a.format(m.min), a.format(m.max)))
	}

	var below, above int
	for _, o := range ranked {
		if o.IsBelowMarket {
			below++
		}
		if o.IsAboveMarket {
			above++
		}
	}
	if below > 0 || above > 0 {
		parts = append(parts, fmt.Sprintf("Outliers: %d bas / %d hauts", below, above))
	}

	if domain := topDomain(ranked); domain != "" {
		parts = append(parts, "Source fréquente: "+domain)
	}

	if currentPrice != nil && m.hasMedian && m.median != 0 {
		if deviation := 100 * (*currentPrice - m.median) / m.median; finite(deviation) {
			parts = append(parts, fmt.Sprintf("Votre prix: %s (%.1f%% vs médiane)", a.format(*currentPrice), deviation))
		}
	}

	return strings.Join(parts, insightSeparator)
}

func (a *Analyzer) format(v float64) string {
	return a.formatter.Format(v, a.currency)
}

// topDomain returns the most frequent domain, the earliest ranked one on ties.
func topDomain(ranked []models.ScoredOffer) string {
	counts := make(map[string]int)
	order := make([]string, 0)
	for _, o := range ranked {
		if o.Domain == "" {
			continue
		}
		if _, ok := counts[o.Domain]; !ok {
			order = append(order, o.Domain)
		}
		counts[o.Domain]++
	}

	best := ""
	for _, d := range order {
		if best == "" || counts[d] > counts[best] {
			best = d
		}
	}
	return best
}
