package parser

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/aluiziolira/crafthub-pricing/models"
)

var (
	// ErrEmptyName is returned for a blank product name.
	ErrEmptyName = errors.New("product name is required")
	// ErrGenericName is returned for names too vague to search competitors for.
	ErrGenericName = errors.New("product name is too generic")
)

const minNameLength = 4

var genericNames = map[string]struct{}{
	"savon": {}, "soap": {}, "bougie": {}, "candle": {}, "assiette": {}, "plate": {},
	"tasse": {}, "mug": {}, "lampe": {}, "lamp": {}, "bol": {}, "bowl": {},
	"plat": {}, "dish": {},
}

// CoercePrice returns v as a finite float. Numbers and numeric strings are
// accepted; anything else reports false.
func CoercePrice(v any) (float64, bool) {
	var f float64
	switch x := v.(type) {
	case nil:
		return 0, false
	case float64:
		f = x
	case float32:
		f = float64(x)
	case int:
		f = float64(x)
	case int32:
		f = float64(x)
	case int64:
		f = float64(x)
	case uint:
		f = float64(x)
	case uint32:
		f = float64(x)
	case uint64:
		f = float64(x)
	case *float64:
		if x == nil {
			return 0, false
		}
		f = *x
	case json.Number:
		parsed, err := x.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return 0, false
		}
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// FirstPrice returns the first finite price among candidates.
func FirstPrice(candidates ...any) (float64, bool) {
	for _, c := range candidates {
		if f, ok := CoercePrice(c); ok {
			return f, true
		}
	}
	return 0, false
}

// CheckProductName rejects names the estimator backend cannot search for.
func CheckProductName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrEmptyName
	}
	if utf8.RuneCountInString(name) < minNameLength {
		return fmt.Errorf("%w: %q", ErrGenericName, name)
	}
	if _, ok := genericNames[strings.ToLower(name)]; ok {
		return fmt.Errorf("%w: %q", ErrGenericName, name)
	}
	return nil
}

// ValidateProduct ensures a catalog entry can be analyzed.
func ValidateProduct(p *models.Product) error {
	if p == nil {
		return fmt.Errorf("product is nil")
	}
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("product missing name")
	}
	if p.CurrentPrice != nil {
		if _, ok := CoercePrice(*p.CurrentPrice); !ok {
			return fmt.Errorf("product %s has a non-finite current price", p.Name)
		}
	}
	return nil
}

// NormalizeName collapses whitespace and case so equivalent names compare equal.
func NormalizeName(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}
