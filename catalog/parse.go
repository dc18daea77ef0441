/*
parse.go - Display string to decimal conversion

PURPOSE:
  Converts the free-form display strings found in legacy limit/deductible
  arrays ("$100,000", "2%", "$1,000", "30 days") into typed decimal amounts.
  This is the single decision point the migration engine, the compat read
  fallback, and the dual-write renderer all share.

CONTRACT:
  - Pure function. No side effects, deterministic. Required so a dry-run
    migration and a live migration make byte-for-byte identical decisions.
  - Never panics, never returns an error value: unparseable input yields
    ok=false and callers surface that as a per-entry warning, not an abort.

WHAT IT ACCEPTS:
  - Currency symbols ($, €, £) anywhere before the digits
  - Thousands separators (commas) and arbitrary whitespace
  - A trailing "%" marking a percentage value
  - A trailing "days"/"day" token (waiting-period deductibles)
  - Plain decimals with an optional fractional part

PERCENT VALUES:
  Percentages are kept in percent points: "2%" parses to Amount=2 with
  Percent=true. The [0,100] validation range and render round-trip both
  operate on percent points.

ROUND-TRIP:
  For every successfully parsed entry, rendering the parsed value produces
  a string that parses back to the same decimal. See RenderCurrency,
  RenderPercent, RenderDays.

SEE ALSO:
  - compat/read.go: on-the-fly legacy parsing
  - migration/engine.go: per-entry warnings on parse failure
*/
package catalog

import (
	"strings"

	"github.com/shopspring/decimal"
)

// =============================================================================
// PARSING
// =============================================================================

// Value is the typed result of parsing a display string.
type Value struct {
	Amount decimal.Decimal
	// Percent is true when the source string carried a trailing "%".
	// Amount then holds percent points (2 for "2%"), not a fraction.
	Percent bool
	// Days is true when the source string carried a "days" suffix.
	Days bool
}

var currencySymbols = []string{"$", "€", "£", "USD", "EUR", "GBP"}

// ParseDisplay converts a display string into a Value.
// Returns ok=false on unparseable input. Never panics.
func ParseDisplay(display string) (Value, bool) {
	s := strings.TrimSpace(display)
	if s == "" {
		return Value{}, false
	}

	var v Value

	// Trailing percent
	if strings.HasSuffix(s, "%") {
		v.Percent = true
		s = strings.TrimSpace(strings.TrimSuffix(s, "%"))
	}

	// Trailing day/days token (waiting periods)
	lower := strings.ToLower(s)
	for _, suffix := range []string{"days", "day"} {
		if strings.HasSuffix(lower, suffix) {
			v.Days = true
			s = strings.TrimSpace(s[:len(s)-len(suffix)])
			break
		}
	}

	// Currency symbols and codes
	for _, sym := range currencySymbols {
		s = strings.ReplaceAll(s, sym, "")
	}

	// Thousands separators and interior whitespace
	s = strings.ReplaceAll(s, ",", "")
	s = strings.Join(strings.Fields(s), "")

	if s == "" {
		return Value{}, false
	}

	amount, err := decimal.NewFromString(s)
	if err != nil {
		return Value{}, false
	}
	v.Amount = amount
	return v, true
}

// =============================================================================
// RENDERING - The inverse of ParseDisplay
// =============================================================================

// RenderCurrency formats an amount as "$1,234" or "$1,234.56".
// Fractional digits are emitted only when present.
func RenderCurrency(amount decimal.Decimal) string {
	return "$" + groupThousands(amount)
}

// RenderPercent formats percent points as "2%".
func RenderPercent(points decimal.Decimal) string {
	return trimZeros(points) + "%"
}

// RenderDays formats a waiting period as "30 days".
func RenderDays(days decimal.Decimal) string {
	return trimZeros(days) + " days"
}

// RenderLimit derives the display value for a limit from its amount.
func RenderLimit(l Limit) string {
	return RenderCurrency(l.Amount)
}

// RenderDeductible derives the display value for a deductible from its
// typed value field.
func RenderDeductible(d Deductible) string {
	switch {
	case d.Type.UsesPercentage() && d.Percentage != nil:
		return RenderPercent(*d.Percentage)
	case d.Type == DeductibleWaitingPeriod && d.Amount != nil:
		return RenderDays(*d.Amount)
	case d.Amount != nil:
		return RenderCurrency(*d.Amount)
	default:
		return ""
	}
}

// groupThousands renders the integer part with comma separators and keeps
// any fractional part untouched.
func groupThousands(d decimal.Decimal) string {
	s := trimZeros(d)

	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}

	intPart, fracPart := s, ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		intPart, fracPart = s[:i], s[i:]
	}

	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	b.WriteString(fracPart)
	return b.String()
}

// trimZeros renders a decimal without trailing fractional zeros.
func trimZeros(d decimal.Decimal) string {
	s := d.String()
	if strings.ContainsRune(s, '.') {
		s = strings.TrimRight(s, "0")
		s = strings.TrimSuffix(s, ".")
	}
	return s
}
