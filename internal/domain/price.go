package domain

import (
	"regexp"
	"strconv"
	"strings"
)

type Currency string

const (
	CurrencyPLN Currency = "PLN"
	CurrencyEUR Currency = "EUR"
	CurrencyUSD Currency = "USD"
)

var currencyTokens = map[string]Currency{
	"zł":  CurrencyPLN,
	"pln": CurrencyPLN,
	"eur": CurrencyEUR,
	"€":   CurrencyEUR,
	"usd": CurrencyUSD,
	"$":   CurrencyUSD,
}

var (
	currencyPattern = regexp.MustCompile(`(?i)(?:zł|pln|eur|€|usd|\$)`)
	numberPattern   = regexp.MustCompile(`[0-9][0-9 \x{00a0},.]*[0-9]|[0-9]`)
	rangePattern    = regexp.MustCompile(`([0-9][0-9 \x{00a0},.]*[0-9]|[0-9])\s*[-–—]\s*(?:[0-9][0-9 \x{00a0},.]*[0-9]|[0-9])`)
)

// ParsedPrice is the discriminated result of ParsePrice. When neither amount
// nor currency could be extracted it still carries the original text.
type ParsedPrice struct {
	Raw      string    `json:"raw"`
	Amount   *float64  `json:"amount,omitempty"`
	Currency *Currency `json:"currency,omitempty"`
	IsRange  bool      `json:"is_range,omitempty"`
	Notes    string    `json:"notes,omitempty"`
}

// Parsed reports whether both an amount and a currency were extracted.
func (p ParsedPrice) Parsed() bool {
	return p.Amount != nil && p.Currency != nil
}

// ParsePrice extracts a currency and numeric amount from a free-text price.
// Ranges collapse to their lower bound with IsRange set. Placeholders like
// "Do negocjacji" yield an unparsed result, never an error.
func ParsePrice(raw string) ParsedPrice {
	text := strings.TrimSpace(raw)
	remaining := text
	out := ParsedPrice{Raw: text}

	// A range like "1500-1800" keeps the lower bound.
	if loc := rangePattern.FindStringSubmatchIndex(remaining); loc != nil {
		lower := remaining[loc[2]:loc[3]]
		if amt, ok := parseAmount(lower); ok {
			out.Amount = &amt
			out.IsRange = true
			remaining = remaining[:loc[0]] + remaining[loc[1]:]
		}
	}

	if out.Amount == nil {
		if loc := numberPattern.FindStringIndex(remaining); loc != nil {
			if amt, ok := parseAmount(remaining[loc[0]:loc[1]]); ok {
				out.Amount = &amt
				remaining = remaining[:loc[0]] + remaining[loc[1]:]
			}
		}
	}

	if loc := currencyPattern.FindStringIndex(remaining); loc != nil {
		cur := currencyTokens[strings.ToLower(remaining[loc[0]:loc[1]])]
		out.Currency = &cur
		remaining = remaining[:loc[0]] + remaining[loc[1]:]
	}

	out.Notes = strings.TrimSpace(strings.Trim(strings.TrimSpace(remaining), `/\-–—,;:.`))
	return out
}

// parseAmount normalizes separators: spaces and NBSP are grouping, a lone
// comma followed by at most two digits is a decimal comma, otherwise commas
// are thousands separators.
func parseAmount(s string) (float64, bool) {
	s = strings.ReplaceAll(s, " ", "")
	s = strings.ReplaceAll(s, "\u00a0", "")
	switch {
	case strings.Contains(s, ",") && strings.Contains(s, "."):
		s = strings.ReplaceAll(s, ",", "")
	case strings.Contains(s, ","):
		parts := strings.Split(s, ",")
		if len(parts) == 2 && len(parts[1]) <= 2 {
			s = parts[0] + "." + parts[1]
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}
