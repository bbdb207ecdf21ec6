// Package textnorm canonicalizes free text coming out of calendar events
// before it is parsed.
package textnorm

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

const nbsp = "\u00a0"

// Normalize replaces non-breaking spaces, applies NFC composition, collapses
// runs of spaces to one and trims the result. Normalize(Normalize(s)) == Normalize(s).
func Normalize(s string) string {
	if s == "" {
		return ""
	}
	s = strings.ReplaceAll(s, nbsp, " ")
	s = norm.NFC.String(s)
	s = collapseSpaces(s)
	return strings.TrimSpace(s)
}

func collapseSpaces(s string) string {
	if !strings.Contains(s, "  ") {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	prevSpace := false
	for _, r := range s {
		if r == ' ' {
			if prevSpace {
				continue
			}
			prevSpace = true
		} else {
			prevSpace = false
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Lines splits a description into lines and normalizes each of them.
func Lines(description string) []string {
	raw := strings.Split(strings.ReplaceAll(description, "\r\n", "\n"), "\n")
	out := make([]string, len(raw))
	for i, l := range raw {
		out[i] = Normalize(l)
	}
	return out
}

// Fold returns a case-insensitive comparison key. Turkish dotted and dotless
// i variants all fold to ASCII 'i' so that "İPTAL", "IPTAL" and "iptal"
// compare equal regardless of the keyboard the text was typed on.
func Fold(s string) string {
	s = norm.NFC.String(s)
	s = cases.Fold().String(s)
	s = strings.NewReplacer("\u0131", "i", "\u0307", "").Replace(s)
	return s
}

