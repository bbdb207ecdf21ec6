package ics

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	appLog "studiosync/internal/log"
	"studiosync/internal/model"
)

// VEvent is one VEVENT of a feed before recurrence expansion.
type VEvent struct {
	UID         string
	Summary     string
	Description string
	Status      model.EventStatus

	Start  time.Time
	End    time.Time
	AllDay bool

	RawRRule string
	ExDates  []time.Time
	// RecurrenceID is set on overrides of a single recurring instance.
	RecurrenceID *time.Time
}

// IsOverride reports whether v replaces one instance of a recurring event.
func (v VEvent) IsOverride() bool { return v.RecurrenceID != nil }

// Parse decodes an ICS payload. Floating times are read in loc. A VEVENT
// that cannot be decoded is logged and skipped.
func Parse(feed Feed, body []byte, loc *time.Location) ([]VEvent, error) {
	if len(body) == 0 {
		return nil, errors.New("ics: empty body")
	}
	if loc == nil {
		loc = time.UTC
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("ics: parse %s: %w", feed.ID, err)
	}

	events := make([]VEvent, 0, len(cal.Events()))
	for _, comp := range cal.Events() {
		ev, err := parseVEvent(comp, loc)
		if err != nil {
			appLog.Warn("ics vevent skipped", "id", feed.ID, "url", redactURL(feed.URL), "err", err.Error())
			continue
		}
		events = append(events, ev)
	}

	appLog.Debug("ics parse completed", "id", feed.ID, "events", len(events))
	return events, nil
}

func parseVEvent(ve *ical.VEvent, loc *time.Location) (VEvent, error) {
	var out VEvent

	uid := ve.GetProperty(ical.ComponentPropertyUniqueId)
	if uid == nil || uid.Value == "" {
		return out, errors.New("missing UID")
	}
	out.UID = uid.Value

	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		out.Summary = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyDescription); p != nil {
		out.Description = p.Value
	}
	out.Status = model.StatusConfirmed
	if p := ve.GetProperty(ical.ComponentPropertyStatus); p != nil {
		switch strings.ToUpper(strings.TrimSpace(p.Value)) {
		case "CANCELLED":
			out.Status = model.StatusCancelled
		case "TENTATIVE":
			out.Status = model.StatusTentative
		}
	}

	dtStart := ve.GetProperty(ical.ComponentPropertyDtStart)
	if dtStart == nil {
		return out, errors.New("missing DTSTART")
	}
	start, allDay, err := propTime(dtStart, loc)
	if err != nil {
		return out, fmt.Errorf("DTSTART: %w", err)
	}
	out.Start, out.AllDay = start, allDay

	switch dtEnd := ve.GetProperty(ical.ComponentPropertyDtEnd); {
	case dtEnd != nil:
		if end, _, err := propTime(dtEnd, loc); err == nil {
			out.End = end
		}
	case allDay:
		out.End = start.AddDate(0, 0, 1)
	}
	if out.End.IsZero() || out.End.Before(out.Start) {
		out.End = out.Start
	}

	if p := ve.GetProperty(ical.ComponentPropertyRrule); p != nil {
		out.RawRRule = p.Value
	}

	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		for _, part := range strings.Split(p.Value, ",") {
			if t, _, err := parseICSTime(part, tzid(&p.BaseProperty, loc)); err == nil {
				out.ExDates = append(out.ExDates, t)
			}
		}
	}

	if p := ve.GetProperty(ical.ComponentProperty("RECURRENCE-ID")); p != nil {
		if t, _, err := propTime(p, loc); err == nil {
			out.RecurrenceID = &t
		}
	}

	return out, nil
}

// propTime reads a DATE or DATE-TIME property honoring its TZID.
func propTime(p *ical.IANAProperty, loc *time.Location) (time.Time, bool, error) {
	t, allDay, err := parseICSTime(p.Value, tzid(&p.BaseProperty, loc))
	if err != nil {
		return t, false, err
	}
	if vs := p.ICalParameters["VALUE"]; len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
		allDay = true
	}
	return t, allDay, nil
}

func tzid(p *ical.BaseProperty, fallback *time.Location) *time.Location {
	if tzs := p.ICalParameters["TZID"]; len(tzs) > 0 {
		if l, err := time.LoadLocation(tzs[0]); err == nil {
			return l
		}
	}
	return fallback
}

// parseICSTime parses the UTC, floating and date-only forms of RFC 5545.
func parseICSTime(v string, loc *time.Location) (time.Time, bool, error) {
	v = strings.TrimSpace(v)
	switch {
	case v == "":
		return time.Time{}, false, errors.New("empty time value")
	case strings.HasSuffix(v, "Z"):
		t, err := time.Parse("20060102T150405Z", v)
		return t, false, err
	case strings.Contains(v, "T"):
		t, err := time.ParseInLocation("20060102T150405", v, loc)
		return t, false, err
	default:
		t, err := time.ParseInLocation("20060102", v, loc)
		return t, true, err
	}
}
