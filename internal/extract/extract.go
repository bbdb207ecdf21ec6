// Package extract pulls the fixed business field schema out of the free-text
// description of a calendar event.
//
// Every line is scanned independently against an ordered rule table. Rules
// are non-exclusive and unconditional: when two lines match the same rule the
// later line wins. The only first-match-wins field is the henna-night line.
package extract

import (
	"errors"
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	appLog "studiosync/internal/log"
	"studiosync/internal/model"
	"studiosync/internal/textnorm"
)

// eventTypeMaxRunes bounds the length of a bare first line that is taken as
// the event type.
const eventTypeMaxRunes = 50

var (
	priceRe   = regexp.MustCompile(`(?i)^(?:anla[şs][ıi]lan\s*[üu]cret|agreed\s*price)\s*:\s*(.+)`)
	depositRe = regexp.MustCompile(`(?i)^(?:kapora|deposit)\s*:\s*(.+)`)
	balanceRe = regexp.MustCompile(`(?i)^(?:kalan|balance)\s*:\s*(.+)`)

	// DD.MM.YYYY HH:MM
	localDateRe = regexp.MustCompile(`(\d{2})\.(\d{2})\.(\d{4})\s+(\d{2}):(\d{2})`)
)

type rule struct {
	name  string
	match func(line, folded string) bool
	apply func(f *model.ExtractedFields, line string)
}

// Fields extracts the business fields from a description. Lines are
// normalized individually; an unrecognized line leaves every field untouched.
func Fields(description string) model.ExtractedFields {
	var f model.ExtractedFields
	lines := textnorm.Lines(description)

	for _, line := range lines {
		folded := textnorm.Fold(line)
		for _, r := range rules {
			if r.match(line, folded) {
				r.apply(&f, line)
			}
		}
	}
	return f
}

// EventType returns the bare first line of a description when it names the
// kind of event ("Nişan Günü", "Düğün", ...), or "" otherwise.
func EventType(description string) string {
	lines := textnorm.Lines(description)
	if len(lines) == 0 {
		return ""
	}
	first := lines[0]
	if first == "" || strings.Contains(first, ":") || strings.Contains(first, "---") {
		return ""
	}
	if utf8.RuneCountInString(first) >= eventTypeMaxRunes {
		return ""
	}
	return first
}

var rules = []rule{
	{
		name: "henna night",
		match: func(line, _ string) bool {
			return strings.Contains(line, "Kına") && !strings.Contains(line, ":")
		},
		apply: func(f *model.ExtractedFields, line string) {
			if f.HennaNight == "" {
				f.HennaNight = line
			}
		},
	},

	// Contact. GYS/TCB write "Tel No" / "Eşi Tel No", MG writes "Gelin Tel" / "Damat Tel".
	{
		name:  "phone",
		match: allOf(anyOf("tel no:", "phone:"), noneOf("eşi", "spouse")),
		apply: func(f *model.ExtractedFields, line string) { f.Phone = segment(line) },
	},
	{
		name:  "spouse phone",
		match: anyOf("eşi tel no:", "spouse phone:"),
		apply: func(f *model.ExtractedFields, line string) { f.SpousePhone = segment(line) },
	},
	{
		name:  "bride phone",
		match: anyOf("gelin tel:"),
		apply: func(f *model.ExtractedFields, line string) { f.Phone = segment(line) },
	},
	{
		name:  "groom phone",
		match: anyOf("damat tel:"),
		apply: func(f *model.ExtractedFields, line string) { f.SpousePhone = segment(line) },
	},
	{
		name:  "instagram",
		match: anyOf("ig:", "instagram:"),
		apply: func(f *model.ExtractedFields, line string) { f.Instagram = segment(line) },
	},
	{
		name:  "photographer",
		match: anyOf("fotoğrafçı:", "photographer:"),
		apply: func(f *model.ExtractedFields, line string) { f.Photographer = segment(line) },
	},
	{
		name:  "fashion house",
		match: anyOf("modaevi:", "fashion house:"),
		apply: func(f *model.ExtractedFields, line string) { f.FashionHouse = segment(line) },
	},
	{
		name:  "gown vendor",
		match: anyOf("gelinlikçi:"),
		apply: func(f *model.ExtractedFields, line string) { f.GownVendor = segment(line) },
	},
	{
		name:  "hairdresser",
		match: anyOf("kuaför:"),
		apply: func(f *model.ExtractedFields, line string) { f.Hairdresser = segment(line) },
	},
	{
		name:  "ceremony date",
		match: anyOf("merasim tarihi:", "ceremony date:"),
		apply: func(f *model.ExtractedFields, line string) { f.CeremonyDate = rest(line) },
	},

	// Money.
	{
		name:  "agreed price",
		match: func(line, _ string) bool { return priceRe.MatchString(line) },
		apply: func(f *model.ExtractedFields, line string) {
			f.AgreedPrice = parseAmount(priceRe.FindStringSubmatch(line)[1], true)
		},
	},
	{
		name:  "deposit",
		match: func(line, _ string) bool { return depositRe.MatchString(line) },
		apply: func(f *model.ExtractedFields, line string) {
			f.Deposit = parseAmount(depositRe.FindStringSubmatch(line)[1], false)
		},
	},
	{
		name:  "balance",
		match: func(line, _ string) bool { return balanceRe.MatchString(line) },
		apply: func(f *model.ExtractedFields, line string) {
			f.Balance = parseAmount(balanceRe.FindStringSubmatch(line)[1], true)
		},
	},
	{
		name:  "agreed date",
		match: anyOf("anlaştığı tarih:", "agreed date:"),
		apply: func(f *model.ExtractedFields, line string) {
			if iso, ok := localDateTime(rest(line)); ok {
				f.AgreedDate = iso
			}
		},
	},

	// GYS checklist. The informational-text flag has several spellings across firms.
	{
		name: "info sent",
		match: anyOf(
			"bilgilendirme metni gönderildi mi",
			"bilgilendirme pdf gönderildi mi",
			"prova bilgilendirmesi gönderildi mi",
			"ref bilgilendirmesi gönderildi mi",
			"info sent",
		),
		apply: func(f *model.ExtractedFields, line string) { f.InfoSent = hasCheck(line) },
	},
	{
		name:  "price written",
		match: anyOf("anlaşılan ve kalan ücret yazıldı mı"),
		apply: func(f *model.ExtractedFields, line string) { f.PriceWritten = hasCheck(line) },
	},
	{
		name:  "materials sent",
		match: anyOf("malzeme listesi gönderildi mi"),
		apply: func(f *model.ExtractedFields, line string) { f.MaterialsSent = hasCheck(line) },
	},
	{
		name:  "sharing consent",
		match: anyOf("paylaşım izni var mı"),
		apply: func(f *model.ExtractedFields, line string) { f.SharingConsent = hasCheck(line) },
	},

	// TCB checklist.
	{
		name:  "hair style decided",
		match: allOf(anyOf("saç modeli belirlendi"), anyOf("mi")),
		apply: func(f *model.ExtractedFields, line string) { f.HairStyleDecided = hasCheck(line) },
	},
	{
		name:  "fitting preference",
		match: anyOf("prova tercihi:"),
		apply: func(f *model.ExtractedFields, line string) { f.FittingPreference = rest(line) },
	},
	{
		name:  "fitting date set",
		match: anyOf("prova tarihi belirlendi mi", "prova günü belirlendi mi"),
		apply: func(f *model.ExtractedFields, line string) { f.FittingDateSet = hasCheck(line) },
	},

	// Reference events.
	{
		name:  "destination time",
		match: anyOf("gideceği yerde bulunması gereken saat:"),
		apply: func(f *model.ExtractedFields, line string) { f.DestinationTime = rest(line) },
	},
	{
		name:  "destination",
		match: anyOf("gideceği yer:"),
		apply: func(f *model.ExtractedFields, line string) { f.Destination = rest(line) },
	},

	// MG checklist.
	{
		name:  "shoot fee received",
		match: anyOf("çekim ücreti alındı mı"),
		apply: func(f *model.ExtractedFields, line string) { f.ShootFeeReceived = hasCheck(line) },
	},
	{
		name:  "photo sharing consent",
		match: anyOf("fotoğraf paylaşım izni"),
		apply: func(f *model.ExtractedFields, line string) { f.PhotoSharingConsent = hasCheck(line) },
	},
	{
		name:  "couple job finished",
		match: anyOf("çiftin işi bitti mi"),
		apply: func(f *model.ExtractedFields, line string) { f.CoupleJobFinished = hasCheck(line) },
	},
	{
		name:  "file ownership transferred",
		match: anyOf("dosya sahipliği aktarıldı mı"),
		apply: func(f *model.ExtractedFields, line string) { f.FileOwnershipTransfer = hasCheck(line) },
	},
	{
		name:  "extra services",
		match: anyOf("ek hizmetler:"),
		apply: func(f *model.ExtractedFields, line string) { f.ExtraServices = rest(line) },
	},

	// Shared.
	{
		name:  "review request",
		match: allOf(anyOf("yorum istensin mi"), noneOf("istendi")),
		apply: func(f *model.ExtractedFields, line string) {
			f.ReviewRequest = ""
			if hasCheck(line) {
				f.ReviewRequest = "Evet"
			}
		},
	},
	{
		name:  "review requested",
		match: anyOf("yorum istendi mi"),
		apply: func(f *model.ExtractedFields, line string) { f.ReviewRequested = hasCheck(line) },
	},
	{
		name:  "customer note",
		match: anyOf("varsa gelin notu:", "varsa çift notu:", "customer note:"),
		apply: func(f *model.ExtractedFields, line string) { f.CustomerNote = rest(line) },
	},
	{
		name:  "receipt image",
		match: anyOf("dekont görseli:", "receipt image:"),
		apply: func(f *model.ExtractedFields, line string) { f.ReceiptImage = rest(line) },
	},
}

func anyOf(labels ...string) func(line, folded string) bool {
	keys := foldAll(labels)
	return func(_, folded string) bool {
		for _, k := range keys {
			if strings.Contains(folded, k) {
				return true
			}
		}
		return false
	}
}

func noneOf(labels ...string) func(line, folded string) bool {
	has := anyOf(labels...)
	return func(line, folded string) bool { return !has(line, folded) }
}

func allOf(preds ...func(line, folded string) bool) func(line, folded string) bool {
	return func(line, folded string) bool {
		for _, p := range preds {
			if !p(line, folded) {
				return false
			}
		}
		return true
	}
}

func foldAll(labels []string) []string {
	out := make([]string, len(labels))
	for i, l := range labels {
		out[i] = textnorm.Fold(l)
	}
	return out
}

// segment returns the text between the first and second colon.
func segment(line string) string {
	parts := strings.Split(line, ":")
	if len(parts) < 2 {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// rest returns everything after the first colon, further colons included.
func rest(line string) string {
	_, after, ok := strings.Cut(line, ":")
	if !ok {
		return ""
	}
	return strings.TrimSpace(after)
}

// hasCheck reports whether the line carries any checkmark variant (✔ ✓ ✅).
func hasCheck(line string) bool {
	return strings.ContainsAny(line, "✔✓✅")
}

// parseAmount strips every non-digit and parses the remainder. When
// allowSentinel is set a value containing the placeholder letter X yields
// model.Sentinel instead. Values too large for an int clamp to math.MaxInt.
func parseAmount(v string, allowSentinel bool) int {
	if allowSentinel && strings.ContainsAny(v, "xX") {
		return model.Sentinel
	}
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, v)
	n, err := strconv.Atoi(digits)
	if errors.Is(err, strconv.ErrRange) {
		appLog.Warn("amount out of range, clamped", "value", v)
		return math.MaxInt
	}
	if err != nil {
		return 0
	}
	return n
}

// localDateTime rewrites "DD.MM.YYYY HH:MM" found in v into
// "YYYY-MM-DDTHH:MM:00".
func localDateTime(v string) (string, bool) {
	m := localDateRe.FindStringSubmatch(v)
	if m == nil {
		return "", false
	}
	return m[3] + "-" + m[2] + "-" + m[1] + "T" + m[4] + ":" + m[5] + ":00", true
}
