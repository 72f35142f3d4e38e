package ics

import (
	"errors"
	"fmt"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/teambition/rrule-go"

	"famcal/internal/model"
)

// Non-standard properties carrying data iCalendar has no slot for.
const (
	propMembers  = ical.ComponentProperty("X-FAMCAL-MEMBERS")
	uidDomain    = "@famcal"
	localLayout  = "20060102T150405"
	productID    = "-//famcal//household calendar//KO"
	defaultTitle = "famcal"
)

// isoWeekdays maps ISO weekday numbers (1=Mon..7=Sun) to rrule weekdays.
var isoWeekdays = [...]rrule.Weekday{rrule.MO, rrule.TU, rrule.WE, rrule.TH, rrule.FR, rrule.SA, rrule.SU}

// Export renders event definitions and their exceptions as an iCalendar
// document.
//
//   - single events become a plain VEVENT
//   - weekly rules become a VEVENT with RRULE (FREQ=WEEKLY;BYDAY=..;UNTIL=..)
//   - cancel exceptions become EXDATE entries on the series
//   - modify exceptions become override VEVENTs with RECURRENCE-ID
//
// Times are floating local times (no TZID): the calendar has no timezone.
func Export(events []model.Event, exceptions []model.Exception, name string) (string, error) {
	if name == "" {
		name = defaultTitle
	}
	cal := ical.NewCalendarFor("famcal")
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(productID)
	cal.SetXWRCalName(name)

	byEvent := make(map[string][]model.Exception)
	for _, ex := range exceptions {
		byEvent[ex.EventID] = append(byEvent[ex.EventID], ex)
	}

	var errs []error
	for _, ev := range events {
		if err := addEvent(cal, ev, byEvent[ev.ID]); err != nil {
			errs = append(errs, fmt.Errorf("event %s: %w", ev.ID, err))
		}
	}
	if len(errs) > 0 {
		return "", errors.Join(errs...)
	}
	return cal.Serialize(), nil
}

func addEvent(cal *ical.Calendar, ev model.Event, exceptions []model.Exception) error {
	uid := ev.ID + uidDomain

	var first model.Date
	switch s := ev.Schedule.(type) {
	case model.SingleDate:
		first = s.Date
	case model.WeeklyRule:
		first = s.StartDate
	default:
		return model.ErrScheduleMissing
	}

	start, err := floating(first, ev.StartTime)
	if err != nil {
		return err
	}
	end, err := floating(first, ev.EndTime)
	if err != nil {
		return err
	}

	vev := cal.AddEvent(uid)
	setCommon(vev, ev)
	vev.SetProperty(ical.ComponentPropertyDtStart, start)
	vev.SetProperty(ical.ComponentPropertyDtEnd, end)

	rule, ok := ev.Schedule.(model.WeeklyRule)
	if !ok {
		// Exceptions only apply to recurring events.
		return nil
	}

	rr, err := rruleFor(rule)
	if err != nil {
		return err
	}
	vev.AddRrule(rr)

	seen := make(map[string]struct{}, len(exceptions))
	for _, ex := range exceptions {
		key := ex.Date.String()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		instance, err := floating(ex.Date, ev.StartTime)
		if err != nil {
			return err
		}
		switch ex.Kind {
		case model.ExceptionCancel:
			vev.AddExdate(instance)
		case model.ExceptionModify:
			if ex.ModifiedFields == nil {
				continue
			}
			if err := addOverride(cal, uid, ev, ex, instance); err != nil {
				return err
			}
		}
	}
	return nil
}

// addOverride emits the VEVENT replacing one instance of the series.
func addOverride(cal *ical.Calendar, uid string, ev model.Event, ex model.Exception, instance string) error {
	mf := ex.ModifiedFields
	occ := ev.Clone()
	if mf.Title != nil {
		occ.Title = *mf.Title
	}
	if mf.StartTime != nil {
		occ.StartTime = *mf.StartTime
	}
	if mf.EndTime != nil {
		occ.EndTime = *mf.EndTime
	}
	if mf.Note != nil {
		occ.Note = mf.Note
	}

	start, err := floating(ex.Date, occ.StartTime)
	if err != nil {
		return err
	}
	end, err := floating(ex.Date, occ.EndTime)
	if err != nil {
		return err
	}

	vev := cal.AddEvent(uid)
	setCommon(vev, occ)
	vev.SetProperty(ical.ComponentPropertyRecurrenceId, instance)
	vev.SetProperty(ical.ComponentPropertyDtStart, start)
	vev.SetProperty(ical.ComponentPropertyDtEnd, end)
	return nil
}

func setCommon(vev *ical.VEvent, ev model.Event) {
	stamp := ev.UpdatedAt
	if stamp.IsZero() {
		stamp = time.Now()
	}
	vev.SetDtStampTime(stamp)
	if !ev.CreatedAt.IsZero() {
		vev.SetCreatedTime(ev.CreatedAt)
	}
	vev.SetSummary(ev.Title)
	if ev.Note != nil && *ev.Note != "" {
		vev.SetDescription(*ev.Note)
	}
	if ev.CategoryID != "" {
		vev.SetProperty(ical.ComponentPropertyCategories, ev.CategoryID)
	}
	if len(ev.MemberIDs) > 0 {
		vev.SetProperty(propMembers, strings.Join(ev.MemberIDs, ","))
	}
}

// rruleFor renders a weekly rule as an RRULE value. UNTIL is the last second
// of the end date so the final day is included.
func rruleFor(rule model.WeeklyRule) (string, error) {
	opt := rrule.ROption{Freq: rrule.WEEKLY}
	for _, d := range rule.DaysOfWeek {
		if d < 1 || d > 7 {
			return "", fmt.Errorf("weekday %d out of range", d)
		}
		opt.Byweekday = append(opt.Byweekday, isoWeekdays[d-1])
	}
	if rule.EndDate != nil {
		opt.Until = rule.EndDate.Time().Add(24*time.Hour - time.Second)
	}
	return opt.RRuleString(), nil
}

// floating formats date+clock as a floating DATE-TIME value.
func floating(d model.Date, clock string) (string, error) {
	if !model.IsValidClock(clock) {
		return "", fmt.Errorf("invalid time %q", clock)
	}
	t, err := time.Parse(model.DateLayout+" 15:04", d.String()+" "+clock)
	if err != nil {
		return "", err
	}
	return t.Format(localLayout), nil
}
