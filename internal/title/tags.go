package title

import (
	"regexp"
	"strings"

	"studiosync/internal/model"
)

// Tags are the markers staff put into a title next to the customer name.
type Tags struct {
	// Name is the display name with firm prefix, markers and service
	// keywords removed.
	Name string

	Service      model.ServiceKind
	Freelance    bool
	DoubleTurban bool
	Fitting      bool

	// PaymentComplete is set by "--" after the delimiter.
	PaymentComplete bool
	// Cancelled is set by "İPTAL" after the delimiter; no roles are assigned.
	Cancelled bool
	// Paired reports whether the role string names two people.
	Paired bool
}

var (
	firmPrefixRe   = regexp.MustCompile(`(?i)^(?:tcb|gys|mg)\s+`)
	hairWordRe     = regexp.MustCompile(`\bSAC\b`)
	doubleTurbanRe = word(`ÇT`)
	trailingDashRe = regexp.MustCompile(`[-–—\s]+$`)
	multiSpaceRe   = regexp.MustCompile(`\s{2,}`)

	// Removed from the display name, in this order.
	nameNoise = []*regexp.Regexp{
		word(`FRLNC`),
		word(`ÇT`),
		word(`PRV`),
		word(`REF`),
		word(`Makyaj`),
		word(`Türban`),
		word(`Turban`),
		word(`Sac`),
		word(`Saç`),
		word(`sadece`),
	}
)

// word matches w case-insensitively as a whole word. Non-ASCII letters count
// as word characters, unlike with \b.
func word(w string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)(^|[^\p{L}\p{N}])` + regexp.QuoteMeta(w) + `([^\p{L}\p{N}]|$)`)
}

// ParseTags inspects a full title for markers and service keywords.
func ParseTags(title string) Tags {
	rawName, _, _ := strings.Cut(title, Delimiter)
	rawName = strings.TrimSpace(rawName)
	roles := RoleString(title)

	upper := strings.ToUpper(rawName)
	t := Tags{
		Freelance:    strings.Contains(upper, "FRLNC"),
		DoubleTurban: doubleTurbanRe.MatchString(upper),
		Fitting:      strings.Contains(upper, "PRV"),
		Service:      serviceKind(upper),
	}

	t.PaymentComplete = strings.Contains(roles, "--")
	upperRoles := strings.ToUpper(roles)
	t.Cancelled = strings.Contains(upperRoles, "İPTAL") || strings.Contains(upperRoles, "IPTAL")
	t.Paired = strings.Contains(roles, "&")

	t.Name = cleanName(rawName)
	return t
}

func serviceKind(upper string) model.ServiceKind {
	makeup := strings.Contains(upper, "MAKYAJ")
	turban := strings.Contains(upper, "TÜRBAN") || strings.Contains(upper, "TURBAN")
	hair := hairWordRe.MatchString(upper) || strings.Contains(upper, "SADECE SAC") || strings.Contains(upper, "SAÇ")

	switch {
	case hair && makeup:
		return model.ServiceMakeupHair
	case hair:
		return model.ServiceHair
	case makeup && !turban:
		return model.ServiceMakeup
	case turban && !makeup:
		return model.ServiceTurban
	default:
		return model.ServiceMakeupTurban
	}
}

func cleanName(name string) string {
	name = firmPrefixRe.ReplaceAllString(name, "")
	for _, re := range nameNoise {
		name = re.ReplaceAllString(name, "$1$2")
	}
	name = strings.ReplaceAll(name, "+", "")
	name = multiSpaceRe.ReplaceAllString(name, " ")
	name = strings.TrimSpace(name)
	return strings.TrimSpace(trailingDashRe.ReplaceAllString(name, ""))
}

// Roles refines a parsed assignment using the title's tags. A cancelled
// booking has no staff. A single assignee on a single-service booking covers
// only that service; the other role names the service that was skipped.
func Roles(a model.Assignment, t Tags) (primary, secondary string) {
	if t.Cancelled {
		return "", ""
	}
	if t.Paired || a.Primary == "" {
		return a.Primary, a.Secondary
	}

	person := a.Primary
	switch t.Service {
	case model.ServiceMakeup:
		return person, "Sadece Makyaj"
	case model.ServiceTurban:
		return "Sadece Türban", person
	case model.ServiceHair:
		return "Sadece Saç", person
	default:
		return person, person
	}
}
