package analysis

import (
	"math"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Tokenize lower-cases text, strips diacritics and splits it on every run of
// characters outside [a-z0-9]. Order and duplicates are kept.
func Tokenize(text string) []string {
	lowered := strings.ToLower(text)
	// transform chains carry state, so one is built per call.
	stripper := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)))
	stripped, _, err := transform.String(stripper, lowered)
	if err != nil {
		stripped = lowered
	}
	return strings.FieldsFunc(stripped, func(r rune) bool {
		return !isTokenRune(r)
	})
}

func isTokenRune(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')
}

// Bag is an immutable term-frequency table.
type Bag struct {
	counts map[string]int
	norm2  float64
}

// NewBag counts the occurrences of each token.
func NewBag(tokens []string) Bag {
	counts := make(map[string]int, len(tokens))
	for _, t := range tokens {
		counts[t]++
	}
	var norm2 float64
	for _, c := range counts {
		norm2 += float64(c * c)
	}
	return Bag{counts: counts, norm2: norm2}
}

// BagOf tokenizes text and counts its terms.
func BagOf(text string) Bag {
	return NewBag(Tokenize(text))
}

// Cosine returns the cosine similarity of two bags, or 0 when either is empty.
func Cosine(a, b Bag) float64 {
	if a.norm2 == 0 || b.norm2 == 0 {
		return 0
	}
	small, large := a, b
	if len(small.counts) > len(large.counts) {
		small, large = large, small
	}
	var dot float64
	for t, x := range small.counts {
		if y, ok := large.counts[t]; ok {
			dot += float64(x * y)
		}
	}
	// sqrt of the product keeps self-similarity exactly 1 for integer counts.
	denom := math.Sqrt(a.norm2 * b.norm2)
	if denom == 0 {
		return 0
	}
	return clamp01(dot / denom)
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v):
		return 0
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
