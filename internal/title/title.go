// Package title splits an event title into the customer's display name and
// the staff assigned to the booking.
//
// A title looks like "Ayşe Yılmaz ✅ SA & T": the text before the delimiter
// is the display name, the text after it lists one or two staff
// abbreviations joined by an ampersand.
package title

import (
	"strings"

	"studiosync/internal/model"
)

// Delimiter separates the display name from the role assignment string.
const Delimiter = "✅"

const dashes = "-–—"

// Member is one staff member and the abbreviations used for them in titles.
type Member struct {
	Name          string
	Abbreviations []string
}

// Directory maps upper-cased abbreviations (and first names) to full names.
type Directory map[string]string

// DefaultDirectory is used when no staff list is configured.
func DefaultDirectory() Directory {
	return NewDirectory([]Member{
		{Name: "Saliha", Abbreviations: []string{"SA"}},
		{Name: "Tansu", Abbreviations: []string{"T"}},
	})
}

// NewDirectory builds a lookup table from a staff list. Every abbreviation
// maps to the member's full name, and so does the member's upper-cased first
// name.
func NewDirectory(members []Member) Directory {
	d := make(Directory)
	for _, m := range members {
		name := strings.TrimSpace(m.Name)
		if name == "" {
			continue
		}
		for _, a := range m.Abbreviations {
			// Abbreviations may arrive comma separated: "Sa, Kü".
			for _, part := range strings.Split(a, ",") {
				if k := strings.ToUpper(strings.TrimSpace(part)); k != "" {
					d[k] = name
				}
			}
		}
		first, _, _ := strings.Cut(name, " ")
		d[strings.ToUpper(first)] = name
	}
	return d
}

// Resolve strips dash-like characters from token, upper-cases it and looks
// it up. Unknown tokens come back upper-cased.
func (d Directory) Resolve(token string) string {
	key := strings.ToUpper(strings.TrimSpace(stripDashes(token)))
	if full, ok := d[key]; ok {
		return full
	}
	return key
}

// Parse splits title into display name and role assignment. With a single
// assignee both roles name the same person; without a delimiter or with an
// empty role string both roles stay empty.
func Parse(title string, dir Directory) model.Assignment {
	name, _, _ := strings.Cut(title, Delimiter)
	a := model.Assignment{DisplayName: strings.TrimSpace(name)}

	roles := strings.TrimSpace(stripDashes(RoleString(title)))
	if roles == "" {
		return a
	}

	if parts := strings.Split(roles, "&"); len(parts) > 1 {
		a.Primary = dir.Resolve(parts[0])
		a.Secondary = dir.Resolve(parts[1])
		return a
	}

	person := dir.Resolve(roles)
	a.Primary = person
	a.Secondary = person
	return a
}

// RoleString returns the raw text between the first delimiter and the next
// one, or "".
func RoleString(title string) string {
	_, roles, _ := strings.Cut(title, Delimiter)
	roles, _, _ = strings.Cut(roles, Delimiter)
	return strings.TrimSpace(roles)
}

func stripDashes(s string) string {
	return strings.Map(func(r rune) rune {
		if strings.ContainsRune(dashes, r) {
			return ' '
		}
		return r
	}, s)
}
