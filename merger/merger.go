// Package merger combines offer lists from several providers before analysis.
package merger

import (
	"sort"
	"strings"

	"github.com/aluiziolira/crafthub-pricing/models"
	"github.com/aluiziolira/crafthub-pricing/parser"
)

const unrankedSource = 9

// SourcePriority orders providers when relevance and price do not decide.
var SourcePriority = map[string]int{
	"amazon":    0,
	"gshopping": 1,
	"ebay":      2,
	"unknown":   3,
}

// Rank returns the priority of a source, lower first.
func Rank(source string) int {
	if r, ok := SourcePriority[strings.ToLower(strings.TrimSpace(source))]; ok {
		return r
	}
	return unrankedSource
}

// Merge concatenates lists in order, drops offers without URL, keeps the first
// offer seen for each URL and sorts by relevance, then price, then source.
func Merge(lists ...[]models.RawOffer) []models.RawOffer {
	seen := make(map[string]struct{})
	merged := make([]models.RawOffer, 0)
	for _, list := range lists {
		for _, o := range list {
			u := strings.TrimSpace(o.URL)
			if u == "" {
				continue
			}
			if _, dup := seen[u]; dup {
				continue
			}
			seen[u] = struct{}{}
			merged = append(merged, o)
		}
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return less(merged[i], merged[j])
	})
	return merged
}

func less(a, b models.RawOffer) bool {
	if a.Sim != b.Sim {
		return a.Sim > b.Sim
	}
	pa, okA := parser.FirstPrice(a.Price, a.PriceParsed)
	pb, okB := parser.FirstPrice(b.Price, b.PriceParsed)
	if okA && okB && pa != pb {
		return pa < pb
	}
	return Rank(a.Source) < Rank(b.Source)
}
