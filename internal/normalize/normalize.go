// Package normalize canonicalizes noisy merchant and payee strings into
// stable lookup keys, so that different renderings of the same merchant
// ("SQ *COFFEE SHOP AUSTIN TX", "SQ *Coffee Shop #4821") converge on one
// pattern entry.
package normalize

import (
	"regexp"
	"strings"
)

var (
	// Payment-processor markers only count at the start of the string.
	// "SP " requires its trailing space; "PAYPAL *" tolerates whitespace
	// before the star.
	processorPrefix = regexp.MustCompile(`(?i)^(TST\*|SQ\*|SP\s+|PAYPAL\s+\*)`)

	// Trailing store numbers and ids, optionally #-prefixed.
	trailingID = regexp.MustCompile(`\s+#?\d+$`)

	// Trailing state abbreviations and a short list of city names.
	trailingLocation = regexp.MustCompile(`(?i)\s+(TX|CA|NY|FL|AUSTIN|HOUSTON|DALLAS)\s*$`)
)

// Payee canonicalizes a raw payee string. The result is trimmed, with
// processor prefixes, trailing numeric ids, and trailing city/state suffixes
// stripped. Normalization is pure and idempotent: the rules are re-applied
// until the string stops changing, so stacked suffixes ("STORE 4 512") reduce
// the same way whether they arrive in one string or across repeated calls.
func Payee(name string) string {
	out := strings.TrimSpace(name)
	for {
		next := stripOnce(out)
		if next == out {
			return out
		}
		out = next
	}
}

func stripOnce(s string) string {
	s = processorPrefix.ReplaceAllString(s, "")
	s = trailingID.ReplaceAllString(s, "")
	s = trailingLocation.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}
