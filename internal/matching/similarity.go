package matching

import (
	"strings"

	"github.com/rawblock/aml-engine/pkg/models"
)

// Fuzzy Matching Primitives
//
// Pure similarity functions shared by the screening engine and the entity
// resolver. No I/O, no state. Properties relied on elsewhere:
//   - exact post-normalization equality yields 1.0
//   - disjoint token sets yield 0.0
//   - scores are symmetric and monotonic in shared-token count

// NameSimilarity scores two names in [0,1] using token-set Jaccard over
// normalized tokens. Exact equality after normalization short-circuits
// to 1.0.
func NameSimilarity(a, b string) float64 {
	na, nb := normalizeName(a), normalizeName(b)
	if na == "" || nb == "" {
		return 0
	}
	if na == nb {
		return 1.0
	}

	setA := tokenSet(na)
	setB := tokenSet(nb)

	intersection := 0
	for tok := range setA {
		if setB[tok] {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

// AddressSimilarity scores two addresses in [0,1] as the mean of per-field
// scores over country, city, postal code and street1, averaging only the
// fields present on both sides.
func AddressSimilarity(a, b models.Address) float64 {
	total := 0.0
	fields := 0

	if a.Country != "" && b.Country != "" {
		fields++
		if strings.EqualFold(a.Country, b.Country) {
			total += 1.0
		}
	}
	if a.City != "" && b.City != "" {
		fields++
		if strings.EqualFold(a.City, b.City) {
			total += 1.0
		}
	}
	if a.PostalCode != "" && b.PostalCode != "" {
		fields++
		if a.PostalCode == b.PostalCode {
			total += 1.0
		}
	}
	if a.Street1 != "" && b.Street1 != "" {
		fields++
		total += NameSimilarity(a.Street1, b.Street1)
	}

	if fields == 0 {
		return 0
	}
	return total / float64(fields)
}

// IdentifierMatch reports whether two identifiers denote the same document:
// type, case-insensitive value and issuing country all equal.
func IdentifierMatch(a, b models.Identifier) bool {
	return a.Matches(b)
}

// normalizeName lowercases and strips everything but letters, digits and
// spaces, collapsing runs of whitespace.
func normalizeName(name string) string {
	var sb strings.Builder
	lastSpace := true
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			sb.WriteRune(r)
			lastSpace = false
		case r == ' ' || r == '\t' || r == '-' || r == '.' || r == ',' || r == '\'':
			if !lastSpace {
				sb.WriteRune(' ')
				lastSpace = true
			}
		}
	}
	return strings.TrimSpace(sb.String())
}

func tokenSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, tok := range strings.Fields(s) {
		set[tok] = true
	}
	return set
}
