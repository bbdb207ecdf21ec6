// Package mapper turns a raw calendar event into a persistable record, a
// deletion marker, or nothing.
package mapper

import (
	"time"

	"studiosync/internal/classify"
	"studiosync/internal/extract"
	"studiosync/internal/model"
	"studiosync/internal/title"
)

// Firm codes with firm-specific mapping rules.
const (
	FirmGYS = "GYS"
	FirmTCB = "TCB"
	FirmMG  = "MG"
)

// ReasonPostponed is the deletion reason for postponed bookings.
const ReasonPostponed = "postponed"

var defaultMarkers = classify.DefaultMarkers()

// checkDelay is how long after an appointment ends its record is due for review.
const checkDelay = time.Hour

// Result is the outcome of mapping one event. At most one field is set; both
// nil means the event carries no business payload.
type Result struct {
	Record   *model.Record
	Deletion *model.Deletion
}

// Skipped reports whether the event produced neither a record nor a deletion.
func (r Result) Skipped() bool {
	return r.Record == nil && r.Deletion == nil
}

// Mapper holds the per-stream context needed to map events.
type Mapper struct {
	Firm      string
	Location  *time.Location
	Directory title.Directory
	Markers   *classify.Markers

	// Now is the wall clock used for LastUpdated; time.Now when nil.
	Now func() time.Time
}

// New returns a Mapper for firm in the given business timezone using the
// default staff directory and markers.
func New(firm string, loc *time.Location) *Mapper {
	return &Mapper{
		Firm:      firm,
		Location:  loc,
		Directory: title.DefaultDirectory(),
		Markers:   classify.DefaultMarkers(),
	}
}

// Map applies, in order: unusable start -> skip; postponed -> deletion;
// no financial markers and no reference marker -> skip; otherwise record.
func (m *Mapper) Map(ev model.Event) Result {
	if ev.ID == "" {
		return Result{}
	}
	start, ok := ResolveTime(ev.Start, m.location())
	if !ok {
		return Result{}
	}

	if m.markers().IsPostponed(ev.Summary) {
		return Result{Deletion: &model.Deletion{ID: ev.ID, Reason: ReasonPostponed}}
	}

	if !classify.HasFinancialMarkers(ev.Description) && !m.markers().IsReference(ev.Summary) {
		return Result{}
	}

	return Result{Record: m.record(ev, start)}
}

func (m *Mapper) record(ev model.Event, start time.Time) *model.Record {
	loc := m.location()

	end, ok := ResolveTime(ev.End, loc)
	if !ok {
		end = start
	}

	dir := m.Directory
	if dir == nil {
		dir = title.DefaultDirectory()
	}
	assignment := title.Parse(ev.Summary, dir)
	tags := title.ParseTags(ev.Summary)

	service := tags.Service
	if m.Firm == FirmTCB && service == model.ServiceMakeupTurban {
		service = model.ServiceMakeupHair
	}
	tags.Service = service
	primary, secondary := title.Roles(assignment, tags)

	date, clock := LocalDateTime(start, loc)
	_, endClock := LocalDateTime(end, loc)

	rec := &model.Record{
		ID:              ev.ID,
		Firm:            m.Firm,
		Name:            tags.Name,
		DisplayName:     assignment.DisplayName,
		Primary:         primary,
		Secondary:       secondary,
		Service:         service,
		Freelance:       tags.Freelance,
		DoubleTurban:    tags.DoubleTurban,
		Fitting:         tags.Fitting,
		Reference:       m.markers().IsReference(ev.Summary),
		StaffCancelled:  tags.Cancelled,
		PaymentComplete: tags.PaymentComplete,
		EventType:       extract.EventType(ev.Description),
		Date:            date,
		Time:            clock,
		EndTime:         endClock,
		CheckAt:         end.Add(checkDelay).UTC().Format(time.RFC3339),
		ExtractedFields: extract.Fields(ev.Description),
		LastUpdated:     m.now(),
	}

	// MG books photo/video crews: the two assignees are photographer and
	// videographer, not makeup and turban.
	if m.Firm == FirmMG {
		rec.Photographer = assignment.Primary
		if tags.Paired {
			rec.Videographer = assignment.Secondary
		}
		if tags.Cancelled {
			rec.Photographer, rec.Videographer = "", ""
		}
		rec.Primary, rec.Secondary = "", ""
	}

	return rec
}

// ResolveTime prefers the date-time and falls back to the all-day date,
// which is taken as midnight in loc.
func ResolveTime(et model.EventTime, loc *time.Location) (time.Time, bool) {
	if !et.DateTime.IsZero() {
		return et.DateTime, true
	}
	if et.Date == "" {
		return time.Time{}, false
	}
	t, err := time.ParseInLocation(time.DateOnly, et.Date, loc)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// LocalDateTime renders t as a calendar date (YYYY-MM-DD) and a 24h
// wall-clock time (HH:MM) in loc.
func LocalDateTime(t time.Time, loc *time.Location) (date, clock string) {
	local := t.In(loc)
	return local.Format(time.DateOnly), local.Format("15:04")
}

func (m *Mapper) location() *time.Location {
	if m.Location == nil {
		return time.UTC
	}
	return m.Location
}

func (m *Mapper) markers() *classify.Markers {
	if m.Markers == nil {
		return defaultMarkers
	}
	return m.Markers
}

func (m *Mapper) now() time.Time {
	if m.Now == nil {
		return time.Now().UTC()
	}
	return m.Now()
}
