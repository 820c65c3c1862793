package refdata

import (
	"strings"
	"sync/atomic"
)

// Country Risk Table
//
// Read-mostly reference data. Updates publish a whole new immutable
// snapshot behind an atomic pointer (copy-on-write); readers never block.
// Unknown countries score 30 by convention so a missing table row is
// conservative rather than silent.

const UnknownCountryRisk = 30.0

// CountryRisk is one row of the risk table.
type CountryRisk struct {
	Code     string  `json:"code"` // ISO 3166-1 alpha-2
	Name     string  `json:"name"`
	Score    float64 `json:"score"` // 0-100
	HighRisk bool    `json:"highRisk"`
}

type countrySnapshot struct {
	byCode   map[string]CountryRisk
	highRisk map[string]bool
}

// CountryTable serves country risk lookups from an immutable snapshot.
type CountryTable struct {
	snap atomic.Pointer[countrySnapshot]
}

// NewCountryTable builds a table seeded with the default risk rows.
func NewCountryTable() *CountryTable {
	t := &CountryTable{}
	t.Replace(defaultCountryRisks())
	return t
}

// Replace publishes a new snapshot from the given rows.
func (t *CountryTable) Replace(rows []CountryRisk) {
	snap := &countrySnapshot{
		byCode:   make(map[string]CountryRisk, len(rows)),
		highRisk: make(map[string]bool),
	}
	for _, row := range rows {
		code := strings.ToUpper(row.Code)
		row.Code = code
		snap.byCode[code] = row
		if row.HighRisk {
			snap.highRisk[code] = true
		}
	}
	t.snap.Store(snap)
}

// Score returns the risk score for a country code, UnknownCountryRisk when
// the code is absent or empty.
func (t *CountryTable) Score(code string) float64 {
	if code == "" {
		return UnknownCountryRisk
	}
	snap := t.snap.Load()
	if row, ok := snap.byCode[strings.ToUpper(code)]; ok {
		return row.Score
	}
	return UnknownCountryRisk
}

// IsHighRisk reports whether the country is in the high-risk set.
func (t *CountryTable) IsHighRisk(code string) bool {
	if code == "" {
		return false
	}
	return t.snap.Load().highRisk[strings.ToUpper(code)]
}

// HighRiskSet returns a copy of the current high-risk country codes.
func (t *CountryTable) HighRiskSet() map[string]bool {
	snap := t.snap.Load()
	out := make(map[string]bool, len(snap.highRisk))
	for code := range snap.highRisk {
		out[code] = true
	}
	return out
}

// defaultCountryRisks seeds the table with a FATF-derived base set.
// Scores are the scheduled review inputs, not a political statement;
// compliance can replace the whole table at runtime.
func defaultCountryRisks() []CountryRisk {
	return []CountryRisk{
		{Code: "US", Name: "United States", Score: 20},
		{Code: "GB", Name: "United Kingdom", Score: 20},
		{Code: "DE", Name: "Germany", Score: 15},
		{Code: "FR", Name: "France", Score: 18},
		{Code: "CA", Name: "Canada", Score: 18},
		{Code: "AU", Name: "Australia", Score: 18},
		{Code: "JP", Name: "Japan", Score: 15},
		{Code: "SG", Name: "Singapore", Score: 25},
		{Code: "CH", Name: "Switzerland", Score: 30},
		{Code: "LU", Name: "Luxembourg", Score: 32},
		{Code: "HK", Name: "Hong Kong", Score: 38},
		{Code: "AE", Name: "United Arab Emirates", Score: 55},
		{Code: "PA", Name: "Panama", Score: 60, HighRisk: true},
		{Code: "KY", Name: "Cayman Islands", Score: 62, HighRisk: true},
		{Code: "VG", Name: "British Virgin Islands", Score: 62, HighRisk: true},
		{Code: "RU", Name: "Russia", Score: 75, HighRisk: true},
		{Code: "BY", Name: "Belarus", Score: 75, HighRisk: true},
		{Code: "VE", Name: "Venezuela", Score: 78, HighRisk: true},
		{Code: "MM", Name: "Myanmar", Score: 85, HighRisk: true},
		{Code: "AF", Name: "Afghanistan", Score: 88, HighRisk: true},
		{Code: "SY", Name: "Syria", Score: 95, HighRisk: true},
		{Code: "CU", Name: "Cuba", Score: 90, HighRisk: true},
		{Code: "IR", Name: "Iran", Score: 98, HighRisk: true},
		{Code: "KP", Name: "North Korea", Score: 100, HighRisk: true},
	}
}
