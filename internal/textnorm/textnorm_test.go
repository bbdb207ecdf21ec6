package textnorm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"nbsp run", "A\u00a0\u00a0B", "A B"},
		{"trim", "  Kapora: 1000  ", "Kapora: 1000"},
		{"collapse", "Tel   No:  0555", "Tel No: 0555"},
		{"compose", "Gelin Notu: Su\u0308t", "Gelin Notu: S\u00fct"},
		{"tabs kept inside", "a\tb", "a\tb"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Normalize(tc.in))
		})
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	samples := []string{
		"",
		"   ",
		"A\u00a0\u00a0B",
		" \u00a0 Anlaşılan Ücret :  X \u00a0",
		"Kinȧ gu\u0308nu\u0308",
		"✅ SA & T",
		"line\twith\ttabs  and  spaces",
	}
	for _, s := range samples {
		once := Normalize(s)
		assert.Equal(t, once, Normalize(once), "input %q", s)
	}
}

func TestLines(t *testing.T) {
	got := Lines("Kapora:\u00a01000\r\n  Kalan: 2000 \nlast")
	assert.Equal(t, []string{"Kapora: 1000", "Kalan: 2000", "last"}, got)
}

func TestFold(t *testing.T) {
	assert.Equal(t, Fold("iptal"), Fold("İPTAL"))
	assert.Equal(t, Fold("iptal"), Fold("IPTAL"))
	assert.Equal(t, Fold("ertelendi"), Fold("ERTELENDİ"))
	assert.Equal(t, Fold("fotoğrafçı"), Fold("FOTOĞRAFÇI"))
}
