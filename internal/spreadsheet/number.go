package spreadsheet

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrEmptyNumber is returned by ParseNumber for blank cells.
var ErrEmptyNumber = errors.New("spreadsheet: empty number")

var currencyTrimmer = strings.NewReplacer("Rp.", "", "Rp", "", "rp", "", "IDR", "", "idr", "", " ", "", "\u00a0", "")

// ParseNumber parses a cell as a decimal amount. It accepts raw numbers
// ("1500000", "1.5E+6"), currency prefixes ("Rp 1.500.000"), Indonesian
// grouping ("1.500.000,50"), English grouping ("1,500,000.50") and accounting
// negatives ("(2.000)").
func ParseNumber(raw string) (decimal.Decimal, error) {
	s := strings.TrimSpace(raw)
	if s == "" || s == "-" {
		return decimal.Zero, ErrEmptyNumber
	}
	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = s[1 : len(s)-1]
	}
	s = currencyTrimmer.Replace(s)
	if strings.HasPrefix(s, "-") {
		negative = !negative
		s = s[1:]
	}
	if s == "" {
		return decimal.Zero, ErrEmptyNumber
	}
	s = normalizeSeparators(s)

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("spreadsheet: %q is not a number", raw)
	}
	if negative {
		d = d.Neg()
	}
	return d, nil
}

// normalizeSeparators rewrites grouping and decimal separators to the plain
// "1234.56" form.
func normalizeSeparators(s string) string {
	if strings.ContainsAny(s, "eE") {
		return strings.ReplaceAll(s, ",", "")
	}
	dots := strings.Count(s, ".")
	commas := strings.Count(s, ",")
	switch {
	case dots > 0 && commas > 0:
		// The separator that appears last is the decimal one.
		if strings.LastIndex(s, ",") > strings.LastIndex(s, ".") {
			return strings.Replace(strings.ReplaceAll(s, ".", ""), ",", ".", 1)
		}
		return strings.ReplaceAll(s, ",", "")
	case dots > 1:
		return strings.ReplaceAll(s, ".", "")
	case commas > 1:
		return strings.ReplaceAll(s, ",", "")
	case commas == 1:
		if groupedThousands(s, ",") {
			return strings.ReplaceAll(s, ",", "")
		}
		return strings.Replace(s, ",", ".", 1)
	case dots == 1:
		if groupedThousands(s, ".") {
			return strings.ReplaceAll(s, ".", "")
		}
	}
	return s
}

// groupedThousands reports whether the single separator sep splits s into a
// 1-3 digit head and a 3 digit tail, e.g. "1.500" or "12,000".
func groupedThousands(s, sep string) bool {
	head, tail, ok := strings.Cut(s, sep)
	return ok && len(tail) == 3 && len(head) >= 1 && len(head) <= 3 && head != "0"
}
