package ics

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/teambition/rrule-go"

	appLog "famcal/internal/log"
	"famcal/internal/model"
)

// DefaultCategory is assigned to imported events without CATEGORIES.
const DefaultCategory = "etc"

// ImportedEvent is one event definition recovered from a VEVENT series,
// together with the exceptions derived from its EXDATEs and overrides.
// Exceptions carry no EventID yet; the caller sets it once the event is stored.
type ImportedEvent struct {
	UID        string
	Event      model.Event
	Exceptions []model.Exception
}

// SkippedEvent records a VEVENT that could not be mapped onto the model.
type SkippedEvent struct {
	UID string
	Err error
}

// ImportResult is the outcome of ParseICS.
type ImportResult struct {
	Events  []ImportedEvent
	Skipped []SkippedEvent
}

// ImportOptions controls defaults for fields iCalendar does not carry.
type ImportOptions struct {
	// MemberIDs is used when a VEVENT has no X-FAMCAL-MEMBERS property.
	MemberIDs []string
}

// parsedEvent is the subset of a VEVENT the importer cares about.
type parsedEvent struct {
	UID         string
	Summary     string
	Description string
	Categories  string
	Members     string

	Start  time.Time // wall clock, location ignored
	End    time.Time
	AllDay bool

	RawRRule   string
	ExDates    []time.Time
	Recurrence *time.Time // RECURRENCE-ID (if present)
}

// ParseICS parses an iCalendar payload into event definitions.
//
//   - Times are taken as wall clock values; TZID and a trailing Z are ignored
//     because events carry no timezone.
//   - All-day VEVENTs become 00:00-23:59 events.
//   - Only FREQ=WEEKLY rules with INTERVAL 1 and no COUNT are accepted. BYDAY
//     defaults to the weekday of DTSTART.
//   - EXDATEs become cancel exceptions; RECURRENCE-ID overrides become
//     modify exceptions holding the fields that differ from the series.
//
// A VEVENT that cannot be mapped is logged and reported in Skipped; the rest
// of the payload is still imported.
func ParseICS(body []byte, opts ImportOptions) (ImportResult, error) {
	var result ImportResult
	if len(body) == 0 {
		return result, errors.New("empty ICS body")
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		appLog.Error("ics parse failed", err)
		return result, err
	}

	// Group base events and overrides by UID, keeping first-seen order.
	var order, overrideOrder []string
	base := make(map[string]parsedEvent)
	overrides := make(map[string][]parsedEvent)

	for _, comp := range cal.Events() {
		ev, perr := parseVEvent(comp)
		if perr != nil {
			// Log and skip this event, but keep parsing others.
			appLog.Error("ics vevent parse failed", perr, "uid", ev.UID)
			result.Skipped = append(result.Skipped, SkippedEvent{UID: ev.UID, Err: perr})
			continue
		}
		if ev.Recurrence != nil {
			if _, seen := overrides[ev.UID]; !seen {
				overrideOrder = append(overrideOrder, ev.UID)
			}
			overrides[ev.UID] = append(overrides[ev.UID], ev)
			continue
		}
		if _, dup := base[ev.UID]; dup {
			result.Skipped = append(result.Skipped, SkippedEvent{UID: ev.UID, Err: errors.New("duplicate UID")})
			continue
		}
		base[ev.UID] = ev
		order = append(order, ev.UID)
	}

	for _, uid := range order {
		imported, err := toModel(base[uid], overrides[uid], opts)
		if err != nil {
			appLog.Error("ics vevent skipped", err, "uid", uid)
			result.Skipped = append(result.Skipped, SkippedEvent{UID: uid, Err: err})
			continue
		}
		result.Events = append(result.Events, imported)
	}
	for _, uid := range overrideOrder {
		if _, ok := base[uid]; !ok {
			result.Skipped = append(result.Skipped, SkippedEvent{UID: uid, Err: errors.New("override without series")})
		}
	}

	appLog.Info("ics import parsed", "event_count", len(result.Events), "skipped", len(result.Skipped))
	return result, nil
}

func parseVEvent(ve *ical.VEvent) (parsedEvent, error) {
	var out parsedEvent

	// UID
	uidProp := ve.GetProperty(ical.ComponentPropertyUniqueId)
	if uidProp == nil || uidProp.Value == "" {
		return out, errors.New("missing UID")
	}
	out.UID = uidProp.Value

	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		out.Summary = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyDescription); p != nil {
		out.Description = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyCategories); p != nil {
		out.Categories = p.Value
	}
	if p := ve.GetProperty(propMembers); p != nil {
		out.Members = p.Value
	}

	dtStart := ve.GetProperty(ical.ComponentPropertyDtStart)
	if dtStart == nil {
		return out, errors.New("missing DTSTART")
	}
	start, err := parseICSTime(dtStart.Value)
	if err != nil {
		return out, fmt.Errorf("DTSTART: %w", err)
	}
	out.Start = start

	// VALUE=DATE or no 'T' in the value -> all-day
	if vs, ok := dtStart.ICalParameters["VALUE"]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
		out.AllDay = true
	}
	if !strings.Contains(dtStart.Value, "T") {
		out.AllDay = true
	}

	if dtEnd := ve.GetProperty(ical.ComponentPropertyDtEnd); dtEnd != nil {
		if out.End, err = parseICSTime(dtEnd.Value); err != nil {
			return out, fmt.Errorf("DTEND: %w", err)
		}
	} else {
		out.End = out.Start.Add(time.Hour)
	}

	if rruleProp := ve.GetProperty(ical.ComponentPropertyRrule); rruleProp != nil {
		out.RawRRule = rruleProp.Value
	}

	// EXDATE (can appear multiple times, each possibly a list)
	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		for _, part := range strings.Split(p.Value, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if t, err := parseICSTime(part); err == nil {
				out.ExDates = append(out.ExDates, t)
			}
		}
	}

	if ridProp := ve.GetProperty(ical.ComponentPropertyRecurrenceId); ridProp != nil {
		t, err := parseICSTime(ridProp.Value)
		if err != nil {
			return out, fmt.Errorf("RECURRENCE-ID: %w", err)
		}
		out.Recurrence = &t
	}

	return out, nil
}

func toModel(pe parsedEvent, overrides []parsedEvent, opts ImportOptions) (ImportedEvent, error) {
	out := ImportedEvent{UID: pe.UID}

	startClock, endClock := clocks(pe)
	ev := model.Event{
		Title:      pe.Summary,
		CategoryID: DefaultCategory,
		MemberIDs:  append([]string(nil), opts.MemberIDs...),
		StartTime:  startClock,
		EndTime:    endClock,
	}
	if pe.Categories != "" {
		ev.CategoryID = strings.TrimSpace(strings.Split(pe.Categories, ",")[0])
	}
	if pe.Members != "" {
		ev.MemberIDs = splitList(pe.Members)
	}
	if pe.Description != "" {
		note := pe.Description
		ev.Note = &note
	}

	first := model.DateOf(pe.Start)
	if pe.RawRRule == "" {
		ev.Schedule = model.SingleDate{Date: first}
		out.Event = ev
		if len(overrides) > 0 || len(pe.ExDates) > 0 {
			appLog.Debug("ics: exceptions on a non-recurring event ignored", "uid", pe.UID)
		}
		return out, nil
	}

	rule, err := weeklyRule(pe.RawRRule, first)
	if err != nil {
		return out, err
	}
	ev.Schedule = rule
	out.Event = ev

	seen := make(map[string]struct{})
	for _, ex := range pe.ExDates {
		d := model.DateOf(ex)
		if _, dup := seen[d.String()]; dup {
			continue
		}
		seen[d.String()] = struct{}{}
		out.Exceptions = append(out.Exceptions, model.Exception{Date: d, Kind: model.ExceptionCancel})
	}
	for _, ov := range overrides {
		d := model.DateOf(*ov.Recurrence)
		if _, dup := seen[d.String()]; dup {
			continue
		}
		seen[d.String()] = struct{}{}
		if mf := diff(ev, ov); mf != nil {
			out.Exceptions = append(out.Exceptions, model.Exception{Date: d, Kind: model.ExceptionModify, ModifiedFields: mf})
		}
	}
	return out, nil
}

// weeklyRule converts an RRULE value into a WeeklyRule starting on first.
func weeklyRule(raw string, first model.Date) (model.WeeklyRule, error) {
	opt, err := rrule.StrToROption(raw)
	if err != nil {
		return model.WeeklyRule{}, fmt.Errorf("RRULE: %w", err)
	}
	if opt.Freq != rrule.WEEKLY {
		return model.WeeklyRule{}, fmt.Errorf("%w: FREQ=%v", model.ErrUnsupportedRecurrence, opt.Freq)
	}
	if opt.Interval > 1 || opt.Count > 0 {
		return model.WeeklyRule{}, fmt.Errorf("%w: INTERVAL/COUNT not supported", model.ErrUnsupportedRecurrence)
	}

	rule := model.WeeklyRule{StartDate: first}
	for _, wd := range opt.Byweekday {
		if wd.N() != 0 {
			return model.WeeklyRule{}, fmt.Errorf("%w: BYDAY ordinal", model.ErrUnsupportedRecurrence)
		}
		iso := wd.Day() + 1
		if !rule.Includes(iso) {
			rule.DaysOfWeek = append(rule.DaysOfWeek, iso)
		}
	}
	if len(rule.DaysOfWeek) == 0 {
		rule.DaysOfWeek = []int{first.ISOWeekday()}
	}
	if !opt.Until.IsZero() {
		end := model.DateOf(opt.Until)
		rule.EndDate = &end
	}
	return rule, nil
}

// diff returns the fields of an override that differ from the series, or nil.
func diff(ev model.Event, ov parsedEvent) *model.ModifiedFields {
	var mf model.ModifiedFields
	changed := false
	if ov.Summary != ev.Title {
		s := ov.Summary
		mf.Title = &s
		changed = true
	}
	start, end := clocks(ov)
	if start != ev.StartTime {
		mf.StartTime = &start
		changed = true
	}
	if end != ev.EndTime {
		mf.EndTime = &end
		changed = true
	}
	if ov.Description != "" && (ev.Note == nil || *ev.Note != ov.Description) {
		n := ov.Description
		mf.Note = &n
		changed = true
	}
	if !changed {
		return nil
	}
	return &mf
}

func clocks(pe parsedEvent) (string, string) {
	if pe.AllDay {
		return "00:00", "23:59"
	}
	start := pe.Start.Format("15:04")
	end := pe.End.Format("15:04")
	if model.DateOf(pe.End).After(model.DateOf(pe.Start)) {
		// Events are single-day; clip at midnight.
		end = "23:59"
	}
	return start, end
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// parseICSTime parses a basic ICS date/date-time string as a wall clock
// value pinned to UTC.
func parseICSTime(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, errors.New("empty time value")
	}

	// UTC form, e.g., 20250101T090000Z; the Z is dropped on purpose.
	v = strings.TrimSuffix(v, "Z")

	// Local date-time, e.g., 20250101T090000
	if strings.Contains(v, "T") {
		return time.Parse(localLayout, v)
	}

	// Date-only (all-day), e.g., 20250101
	const layoutDate = "20060102"
	return time.Parse(layoutDate, v)
}
