package title

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"studiosync/internal/model"
)

func TestParse(t *testing.T) {
	dir := DefaultDirectory()
	cases := []struct {
		title string
		want  model.Assignment
	}{
		{"Jane Doe ✅ SA & T", model.Assignment{DisplayName: "Jane Doe", Primary: "Saliha", Secondary: "Tansu"}},
		{"Jane Doe ✅ SA", model.Assignment{DisplayName: "Jane Doe", Primary: "Saliha", Secondary: "Saliha"}},
		{"Jane Doe", model.Assignment{DisplayName: "Jane Doe"}},
		{"Jane Doe ✅", model.Assignment{DisplayName: "Jane Doe"}},
		{"Jane Doe ✅ -sa- & t", model.Assignment{DisplayName: "Jane Doe", Primary: "Saliha", Secondary: "Tansu"}},
		{"Jane Doe ✅ SA & XY", model.Assignment{DisplayName: "Jane Doe", Primary: "Saliha", Secondary: "XY"}},
		{"Jane Doe ✅ zz", model.Assignment{DisplayName: "Jane Doe", Primary: "ZZ", Secondary: "ZZ"}},
		{"  Jane Doe   ✅   T  ", model.Assignment{DisplayName: "Jane Doe", Primary: "Tansu", Secondary: "Tansu"}},
		{"Jane Doe ✅ SA ✅ T", model.Assignment{DisplayName: "Jane Doe", Primary: "Saliha", Secondary: "Saliha"}},
	}
	for _, tc := range cases {
		t.Run(tc.title, func(t *testing.T) {
			assert.Equal(t, tc.want, Parse(tc.title, dir))
		})
	}
}

func TestNewDirectory(t *testing.T) {
	dir := NewDirectory([]Member{
		{Name: "Kübra Demir", Abbreviations: []string{"Kü, KD", " rü "}},
		{Name: "", Abbreviations: []string{"X"}},
	})

	assert.Equal(t, "Kübra Demir", dir.Resolve("KÜ"))
	assert.Equal(t, "Kübra Demir", dir.Resolve("kd"))
	assert.Equal(t, "Kübra Demir", dir.Resolve("RÜ"))
	assert.Equal(t, "Kübra Demir", dir.Resolve("Kübra"))
	assert.Equal(t, "X", dir.Resolve("x"))
}

func TestParseTags(t *testing.T) {
	tags := ParseTags("gys FRLNC Ayşe Yılmaz Makyaj + Türban ✅ SA & T --")
	assert.Equal(t, "Ayşe Yılmaz", tags.Name)
	assert.True(t, tags.Freelance)
	assert.True(t, tags.PaymentComplete)
	assert.True(t, tags.Paired)
	assert.False(t, tags.Cancelled)
	assert.Equal(t, model.ServiceMakeupTurban, tags.Service)

	tags = ParseTags("REF Zeynep PRV ÇT ✅ İPTAL")
	assert.Equal(t, "Zeynep", tags.Name)
	assert.True(t, tags.Fitting)
	assert.True(t, tags.DoubleTurban)
	assert.True(t, tags.Cancelled)

	assert.Equal(t, "SA & T", RoleString("Jane ✅ SA & T ✅ İPTAL"))
	assert.False(t, ParseTags("Jane ✅ SA ✅ İPTAL").Cancelled)
}

func TestServiceKind(t *testing.T) {
	cases := map[string]model.ServiceKind{
		"Ayşe ✅ SA":                model.ServiceMakeupTurban,
		"Ayşe Sadece Makyaj ✅ SA":  model.ServiceMakeup,
		"Ayşe Türban ✅ SA":         model.ServiceTurban,
		"Ayşe Makyaj + Saç ✅ SA":   model.ServiceMakeupHair,
		"Ayşe Sadece Sac ✅ SA":     model.ServiceHair,
		"Ayşe Makyaj Türban ✅ SA":  model.ServiceMakeupTurban,
		"tcb Ayşe Makyaj Saç ✅ SA": model.ServiceMakeupHair,
	}
	for in, want := range cases {
		assert.Equal(t, want, ParseTags(in).Service, in)
	}
}

func TestRoles(t *testing.T) {
	dir := DefaultDirectory()

	title := "Ayşe Sadece Makyaj ✅ SA"
	p, s := Roles(Parse(title, dir), ParseTags(title))
	assert.Equal(t, "Saliha", p)
	assert.Equal(t, "Sadece Makyaj", s)

	title = "Ayşe Türban ✅ T"
	p, s = Roles(Parse(title, dir), ParseTags(title))
	assert.Equal(t, "Sadece Türban", p)
	assert.Equal(t, "Tansu", s)

	title = "Ayşe Saç ✅ T"
	p, s = Roles(Parse(title, dir), ParseTags(title))
	assert.Equal(t, "Sadece Saç", p)
	assert.Equal(t, "Tansu", s)

	title = "Ayşe Türban ✅ SA & T"
	p, s = Roles(Parse(title, dir), ParseTags(title))
	assert.Equal(t, "Saliha", p)
	assert.Equal(t, "Tansu", s)

	title = "Ayşe ✅ SA İPTAL"
	p, s = Roles(Parse(title, dir), ParseTags(title))
	assert.Empty(t, p)
	assert.Empty(t, s)

	title = "Ayşe Makyaj"
	p, s = Roles(Parse(title, dir), ParseTags(title))
	assert.Empty(t, p)
	assert.Empty(t, s)
}
