package ics

import (
	"errors"
	"time"

	"github.com/teambition/rrule-go"

	appLog "studiosync/internal/log"
	"studiosync/internal/model"
)

const defaultMaxInstances = 5000

// Window bounds recurrence expansion.
type Window struct {
	Start time.Time
	End   time.Time
	// MaxInstances caps the instances produced per recurring event.
	MaxInstances int
}

// Expand turns parsed VEVENTs into single events inside w, applying RRULE,
// EXDATE and RECURRENCE-ID overrides. Instances of a recurring event get ids
// of the form UID_20060102T150405Z after their original start.
func Expand(events []VEvent, w Window) ([]model.Event, error) {
	if w.End.Before(w.Start) {
		return nil, errors.New("ics: window end before start")
	}
	if w.MaxInstances <= 0 {
		w.MaxInstances = defaultMaxInstances
	}

	overrides := make(map[string][]VEvent)
	for _, ev := range events {
		if ev.IsOverride() {
			overrides[ev.UID] = append(overrides[ev.UID], ev)
		}
	}

	out := make([]model.Event, 0, len(events))
	for _, ev := range events {
		if ev.IsOverride() {
			continue
		}
		if ev.RawRRule == "" {
			if overlaps(ev.Start, ev.End, w) {
				out = append(out, toEvent(ev.UID, ev))
			}
			continue
		}
		out = append(out, expandRecurring(ev, overrides[ev.UID], w)...)
	}
	return out, nil
}

func expandRecurring(ev VEvent, overrides []VEvent, w Window) []model.Event {
	r, err := rrule.StrToRRule(ev.RawRRule)
	if err != nil {
		appLog.Error("ics rrule parse failed", err, "uid", ev.UID, "rrule", ev.RawRRule)
		return nil
	}
	r.DTStart(ev.Start)

	var set rrule.Set
	set.RRule(r)
	for _, ex := range ev.ExDates {
		set.ExDate(ex.In(ev.Start.Location()))
	}

	loc := ev.Start.Location()
	starts := set.Between(w.Start.In(loc), w.End.In(loc), true)
	if len(starts) > w.MaxInstances {
		appLog.Warn("ics recurrence truncated", "uid", ev.UID, "cap", w.MaxInstances)
		starts = starts[:w.MaxInstances]
	}

	dur := ev.End.Sub(ev.Start)
	out := make([]model.Event, 0, len(starts))
	for _, s := range starts {
		id := ev.UID + "_" + s.UTC().Format("20060102T150405Z")
		if o, ok := findOverride(overrides, s); ok {
			out = append(out, toEvent(id, o))
			continue
		}
		inst := ev
		inst.Start, inst.End = s, s.Add(dur)
		out = append(out, toEvent(id, inst))
	}
	return out
}

func findOverride(overrides []VEvent, start time.Time) (VEvent, bool) {
	for _, o := range overrides {
		if o.RecurrenceID.Equal(start) {
			return o, true
		}
	}
	return VEvent{}, false
}

func toEvent(id string, v VEvent) model.Event {
	ev := model.Event{
		ID:          id,
		Summary:     v.Summary,
		Description: v.Description,
		Status:      v.Status,
	}
	if v.AllDay {
		ev.Start = model.EventTime{Date: v.Start.Format(time.DateOnly)}
		ev.End = model.EventTime{Date: v.End.Format(time.DateOnly)}
	} else {
		ev.Start = model.EventTime{DateTime: v.Start}
		ev.End = model.EventTime{DateTime: v.End}
	}
	return ev
}

func overlaps(start, end time.Time, w Window) bool {
	return !end.Before(w.Start) && !w.End.Before(start)
}
