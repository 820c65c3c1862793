package matching

import (
	"testing"

	"github.com/rawblock/aml-engine/pkg/models"
)

func TestNameSimilarity_ExactAfterNormalization(t *testing.T) {
	// Case, punctuation and spacing differences must not break exactness.
	pairs := [][2]string{
		{"John Smith Doe", "john smith doe"},
		{"O'Brien, Mary", "obrien mary"},
		{"Jean-Pierre  Dupont", "jean pierre dupont"},
	}
	for _, p := range pairs {
		if got := NameSimilarity(p[0], p[1]); got != 1.0 {
			t.Errorf("NameSimilarity(%q, %q) = %v, want 1.0", p[0], p[1], got)
		}
	}
}

func TestNameSimilarity_DisjointIsZero(t *testing.T) {
	if got := NameSimilarity("John Smith", "Maria Garcia"); got != 0.0 {
		t.Errorf("Disjoint token sets must score 0.0, got %v", got)
	}
}

func TestNameSimilarity_Symmetric(t *testing.T) {
	a, b := "Jane A Doe", "Jane Doe"
	if NameSimilarity(a, b) != NameSimilarity(b, a) {
		t.Errorf("NameSimilarity must be symmetric for (%q, %q)", a, b)
	}
}

func TestNameSimilarity_MonotonicInSharedTokens(t *testing.T) {
	// Two shared tokens of three should beat one shared token of three.
	twoShared := NameSimilarity("john smith doe", "john smith walker")
	oneShared := NameSimilarity("john smith doe", "john garcia walker")
	if twoShared <= oneShared {
		t.Errorf("More shared tokens must not score lower: two=%v one=%v", twoShared, oneShared)
	}
}

func TestNameSimilarity_PartialOverlap(t *testing.T) {
	// "Jane A Doe" vs "Jane Doe": 2 shared of 3 union = 2/3.
	got := NameSimilarity("Jane A Doe", "Jane Doe")
	want := 2.0 / 3.0
	if got < want-1e-9 || got > want+1e-9 {
		t.Errorf("NameSimilarity = %v, want %v", got, want)
	}
}

func TestAddressSimilarity_AveragesPresentFields(t *testing.T) {
	a := models.Address{Street1: "12 Main Street", City: "Springfield", PostalCode: "62701", Country: "US"}
	b := models.Address{Street1: "12 Main Street", City: "springfield", PostalCode: "62701", Country: "US"}
	if got := AddressSimilarity(a, b); got != 1.0 {
		t.Errorf("Identical addresses must score 1.0, got %v", got)
	}

	// Postal code absent on one side: averaged over remaining 3 fields only.
	c := models.Address{Street1: "12 Main Street", City: "Springfield", Country: "US"}
	if got := AddressSimilarity(a, c); got != 1.0 {
		t.Errorf("Missing field must be excluded from the mean, got %v", got)
	}

	// Different city drags the mean down but not to zero.
	d := models.Address{Street1: "12 Main Street", City: "Shelbyville", PostalCode: "62701", Country: "US"}
	got := AddressSimilarity(a, d)
	if got <= 0.5 || got >= 1.0 {
		t.Errorf("Partial address match out of expected band: %v", got)
	}
}

func TestAddressSimilarity_NoComparableFields(t *testing.T) {
	a := models.Address{Street1: "12 Main Street"}
	b := models.Address{City: "Springfield"}
	if got := AddressSimilarity(a, b); got != 0.0 {
		t.Errorf("No overlapping fields must score 0.0, got %v", got)
	}
}

func TestIdentifierMatch(t *testing.T) {
	ssn := models.Identifier{Type: models.IDTaxID, Value: "123-45-6789", IssuingCountry: "US"}

	if !IdentifierMatch(ssn, models.Identifier{Type: models.IDTaxID, Value: "123-45-6789", IssuingCountry: "us"}) {
		t.Error("Identifier match must be case-insensitive on value and country")
	}
	if IdentifierMatch(ssn, models.Identifier{Type: models.IDPassport, Value: "123-45-6789", IssuingCountry: "US"}) {
		t.Error("Different identifier types must not match")
	}
	if IdentifierMatch(ssn, models.Identifier{Type: models.IDTaxID, Value: "123-45-6789", IssuingCountry: "CA"}) {
		t.Error("Different issuing countries must not match")
	}
}
