package analysis

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// CurrencyFormatter renders an amount for the insight line.
type CurrencyFormatter interface {
	Format(value float64, currency string) string
}

// URLParser extracts the host of an absolute URL.
type URLParser interface {
	Parse(raw string) (host string, err error)
}

type textFormatter struct {
	tag language.Tag
}

// NewCurrencyFormatter formats amounts with the currency symbol of the given locale.
// Unknown ISO codes fall back to "<value> <code>".
func NewCurrencyFormatter(tag language.Tag) CurrencyFormatter {
	return textFormatter{tag: tag}
}

func (f textFormatter) Format(value float64, code string) string {
	unit, err := currency.ParseISO(code)
	if err != nil {
		return fmt.Sprintf("%v %s", value, code)
	}
	return message.NewPrinter(f.tag).Sprint(currency.Symbol(unit.Amount(value)))
}

var errNotAbsolute = errors.New("url is not absolute")

type stdURLParser struct{}

// NewURLParser returns a URLParser backed by net/url.
func NewURLParser() URLParser {
	return stdURLParser{}
}

func (stdURLParser) Parse(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if !u.IsAbs() || u.Hostname() == "" {
		return "", errNotAbsolute
	}
	return strings.ToLower(u.Hostname()), nil
}

func domainOf(p URLParser, raw string) string {
	if raw == "" {
		return ""
	}
	host, err := p.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(host, "www.")
}
