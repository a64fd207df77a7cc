// Package analysis scores competitor offers against a product and recommends
// a price band. Every function is pure: missing data degrades to nil values,
// false flags and omitted insight fragments, never to an error.
package analysis

import (
	"math"
	"sort"
	"strings"

	"golang.org/x/text/language"

	"github.com/aluiziolira/crafthub-pricing/models"
	"github.com/aluiziolira/crafthub-pricing/parser"
)

// Weights balance title similarity against price proximity in the composite score.
type Weights struct {
	Similarity float64
	Proximity  float64
}

// DefaultWeights favours "is this the same product" over "is it priced near the pack".
func DefaultWeights() Weights {
	return Weights{Similarity: 0.6, Proximity: 0.4}
}

const (
	// DefaultBandSpread is the ± fraction around the median for the recommended band.
	DefaultBandSpread = 0.15
	// DefaultCurrency is used to format amounts in the insight line.
	DefaultCurrency = "EUR"
)

// Analyzer runs the normalize, similarity, statistics and ranking stages.
// It is immutable and safe for concurrent use.
type Analyzer struct {
	formatter  CurrencyFormatter
	urls       URLParser
	weights    Weights
	iqrFactor  float64
	bandSpread float64
	currency   string
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithFormatter overrides the currency formatter.
func WithFormatter(f CurrencyFormatter) Option {
	return func(a *Analyzer) {
		if f != nil {
			a.formatter = f
		}
	}
}

// WithURLParser overrides the URL parser used to derive offer domains.
func WithURLParser(p URLParser) Option {
	return func(a *Analyzer) {
		if p != nil {
			a.urls = p
		}
	}
}

// WithWeights overrides the score weights. Negative weights are ignored.
func WithWeights(w Weights) Option {
	return func(a *Analyzer) {
		if w.Similarity >= 0 && w.Proximity >= 0 {
			a.weights = w
		}
	}
}

// WithIQRFactor overrides the outlier fence multiplier.
func WithIQRFactor(k float64) Option {
	return func(a *Analyzer) {
		if k >= 0 {
			a.iqrFactor = k
		}
	}
}

// WithBandSpread overrides the ± fraction of the recommended band.
func WithBandSpread(spread float64) Option {
	return func(a *Analyzer) {
		if spread >= 0 {
			a.bandSpread = spread
		}
	}
}

// WithCurrency sets the ISO code used in the insight line.
func WithCurrency(code string) Option {
	return func(a *Analyzer) {
		if code = strings.TrimSpace(code); code != "" {
			a.currency = strings.ToUpper(code)
		}
	}
}

// New builds an Analyzer with French formatting and the default weights.
func New(opts ...Option) *Analyzer {
	a := &Analyzer{
		formatter:  NewCurrencyFormatter(language.French),
		urls:       NewURLParser(),
		weights:    DefaultWeights(),
		iqrFactor:  DefaultIQRFactor,
		bandSpread: DefaultBandSpread,
		currency:   DefaultCurrency,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

var defaultAnalyzer = New()

// Analyze runs the default Analyzer.
func Analyze(productName string, currentPrice *float64, offers []models.RawOffer) *models.AnalysisResult {
	return defaultAnalyzer.Analyze(productName, currentPrice, offers)
}

// Normalize cleans raw offers and drops those with neither title nor price.
func (a *Analyzer) Normalize(raw []models.RawOffer) []models.NormalizedOffer {
	out := make([]models.NormalizedOffer, 0, len(raw))
	for _, r := range raw {
		title := strings.TrimSpace(r.Title)
		var price *float64
		if p, ok := parser.FirstPrice(r.Price, r.PriceParsed); ok {
			price = models.Float(p)
		}
		if title == "" && price == nil {
			continue
		}
		u := strings.TrimSpace(r.URL)
		out = append(out, models.NormalizedOffer{
			Title:    title,
			URL:      u,
			Domain:   domainOf(a.urls, u),
			Price:    price,
			Currency: strings.TrimSpace(r.Currency),
			Source:   strings.TrimSpace(r.Source),
		})
	}
	return out
}

// market holds the statistics of one analysis in plain floats.
type market struct {
	count     int
	median    float64
	hasMedian bool
	bounds    Bounds
	min, max  float64
	hasRange  bool
	estimated float64
	hasEst    bool
}

func (a *Analyzer) market(prices []float64) market {
	m := market{count: len(prices)}
	m.median, m.hasMedian = Median(prices)
	m.hasMedian = m.hasMedian && finite(m.median)
	m.bounds = IQRBounds(prices, a.iqrFactor)
	m.min, m.max, m.hasRange = MinMax(prices)

	core := prices
	if m.bounds.OK {
		core = make([]float64, 0, len(prices))
		for _, p := range prices {
			if p >= m.bounds.Low && p <= m.bounds.High {
				core = append(core, p)
			}
		}
		if len(core) == 0 {
			core = prices
		}
	}
	m.estimated, m.hasEst = Median(core)
	m.hasEst = m.hasEst && finite(m.estimated)
	return m
}

// scale is the normalisation range for price distances, 1 when no spread is known.
func (m market) scale() float64 {
	switch {
	case m.bounds.OK:
		return m.bounds.High - m.bounds.Low
	case m.hasRange:
		return m.max - m.min
	default:
		return 1
	}
}

func (m market) statistics() models.PriceStatistics {
	st := models.PriceStatistics{Count: m.count}
	if m.hasMedian {
		st.Median = models.Float(m.median)
	}
	if m.bounds.OK {
		st.Q1 = models.Float(m.bounds.Q1)
		st.Q3 = models.Float(m.bounds.Q3)
		st.LowBound = models.Float(m.bounds.Low)
		st.HighBound = models.Float(m.bounds.High)
	}
	if m.hasRange {
		st.Min = models.Float(m.min)
		st.Max = models.Float(m.max)
	}
	if m.hasEst {
		st.Estimated = models.Float(m.estimated)
	}
	return st
}

// Analyze scores, ranks and summarises offers for productName.
// currentPrice may be nil; a non-finite value is treated as nil.
func (a *Analyzer) Analyze(productName string, currentPrice *float64, offers []models.RawOffer) *models.AnalysisResult {
	normalized := a.Normalize(offers)
	nameBag := BagOf(productName)

	prices := make([]float64, 0, len(normalized))
	for _, o := range normalized {
		if o.Price != nil {
			prices = append(prices, *o.Price)
		}
	}
	m := a.market(prices)
	scale := math.Max(1, m.scale())

	ranked := make([]models.ScoredOffer, 0, len(normalized))
	for _, o := range normalized {
		ranked = append(ranked, a.score(o, nameBag, m, scale))
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})

	if currentPrice != nil {
		if _, ok := parser.CoercePrice(*currentPrice); !ok {
			currentPrice = nil
		}
	}

	return &models.AnalysisResult{
		Ranked:  ranked,
		Band:    a.band(m),
		Stats:   m.statistics(),
		Insight: a.insight(ranked, m, currentPrice),
	}
}

func (a *Analyzer) score(o models.NormalizedOffer, nameBag Bag, m market, scale float64) models.ScoredOffer {
	sim := Cosine(nameBag, BagOf(o.Title))

	var prox float64
	if o.Price != nil && m.hasMedian {
		prox = clamp01(1 - math.Min(1, math.Abs(*o.Price-m.median)/scale))
	}

	scored := models.ScoredOffer{
		NormalizedOffer: o,
		Similarity:      sim,
		PriceProximity:  prox,
		Score:           clamp01(a.weights.Similarity*sim + a.weights.Proximity*prox),
	}
	if o.Price != nil && m.bounds.OK {
		scored.IsBelowMarket = *o.Price < m.bounds.Low
		scored.IsAboveMarket = *o.Price > m.bounds.High
	}
	return scored
}

// band is median ± spread clipped to [q1, q3], falling back to the unclipped
// band when clipping inverts it. A band that overflows is absent.
func (a *Analyzer) band(m market) models.RecommendedBand {
	if !m.hasMedian {
		return models.RecommendedBand{}
	}
	bLow := m.median * (1 - a.bandSpread)
	bHigh := m.median * (1 + a.bandSpread)

	low, high := bLow, bHigh
	if m.bounds.OK {
		low = math.Max(bLow, m.bounds.Q1)
		high = math.Min(bHigh, m.bounds.Q3)
	}
	if low > high {
		low = math.Min(bLow, bHigh)
		high = math.Max(bLow, bHigh)
	}
	if !finite(low) || !finite(high) {
		return models.RecommendedBand{}
	}
	return models.RecommendedBand{Low: models.Float(low), High: models.Float(high)}
}
