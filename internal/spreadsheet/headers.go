// Package spreadsheet reads and writes the .xlsx workbooks exchanged with the
// budget ledgers.
package spreadsheet

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// NormalizeHeader folds a column label into a lookup key: diacritics are
// stripped, case is folded and every run of non-alphanumerics becomes one
// underscore. "Nama Proyek", "nama_proyek" and " NAMA-PROYEK " all map to
// "nama_proyek".
func NormalizeHeader(label string) string {
	stripper := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	plain, _, err := transform.String(stripper, label)
	if err != nil {
		plain = label
	}
	plain = cases.Fold().String(plain)

	var b strings.Builder
	pendingSep := false
	for _, r := range plain {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingSep = false
			b.WriteRune(r)
			continue
		}
		pendingSep = true
	}
	return b.String()
}
