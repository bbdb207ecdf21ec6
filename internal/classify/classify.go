// Package classify holds the predicates that decide whether a calendar event
// is business relevant at all.
package classify

import (
	"regexp"
	"strings"

	"studiosync/internal/textnorm"
)

const (
	// DefaultPostponedMarker voids a booked slot; its record must be purged.
	DefaultPostponedMarker = "ERTELENDİ"
	// DefaultReferenceMarker tracks a lead even without financial data.
	DefaultReferenceMarker = "REF"
)

// financialRe matches any of the agreed-price, deposit or balance labels.
var financialRe = regexp.MustCompile(`(?i)anla[şs][ıi]lan\s*[üu]cret\s*:|agreed\s*price\s*:|kapora\s*:|deposit\s*:|kalan\s*:|balance\s*:`)

// Markers holds the title keywords used for classification.
type Markers struct {
	Postponed string
	Reference string

	referenceRe *regexp.Regexp
}

// NewMarkers returns classifiers for the given keywords; empty keywords fall
// back to the defaults.
func NewMarkers(postponed, reference string) *Markers {
	if postponed == "" {
		postponed = DefaultPostponedMarker
	}
	if reference == "" {
		reference = DefaultReferenceMarker
	}
	return &Markers{
		Postponed:   postponed,
		Reference:   reference,
		referenceRe: regexp.MustCompile(`(?i)(?:^|[^\p{L}\p{N}])` + regexp.QuoteMeta(textnorm.Fold(reference)) + `(?:[^\p{L}\p{N}]|$)`),
	}
}

// DefaultMarkers uses DefaultPostponedMarker and DefaultReferenceMarker.
func DefaultMarkers() *Markers {
	return NewMarkers("", "")
}

// IsPostponed reports whether the upper-cased title contains the
// postponement keyword literally. Dotted and dotless I stay distinct, so
// "ERTELENDI" does not match "ERTELENDİ".
func (m *Markers) IsPostponed(title string) bool {
	if title == "" {
		return false
	}
	return strings.Contains(strings.ToUpper(textnorm.Normalize(title)), strings.ToUpper(m.Postponed))
}

// IsReference reports whether the title carries the reference keyword as a
// whole word.
func (m *Markers) IsReference(title string) bool {
	return m.referenceRe.MatchString(textnorm.Fold(title))
}

// HasFinancialMarkers reports whether the description mentions an agreed
// price, a deposit or a remaining balance.
func HasFinancialMarkers(description string) bool {
	return financialRe.MatchString(textnorm.Normalize(description))
}
