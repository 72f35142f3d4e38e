package recurrence

import (
	"errors"
	"fmt"
	"slices"

	appLog "famcal/internal/log"
	"famcal/internal/model"
)

var (
	// ErrNoSchedule is returned for an event that has neither a date nor a rule.
	ErrNoSchedule = errors.New("expand: event has no schedule")
	// ErrInvalidWeekday is returned for a rule containing a weekday outside 1..7.
	ErrInvalidWeekday = errors.New("expand: weekday out of range")
	// ErrNoWeekdays is returned for a weekly rule with an empty weekday set.
	ErrNoWeekdays = errors.New("expand: weekly rule has no weekdays")
)

// FailedEvent records an event whose expansion was skipped.
type FailedEvent struct {
	EventID string
	Err     error
}

// Result is the merged output of ExpandAll.
type Result struct {
	Occurrences []model.Occurrence
	// Failed lists events that could not be expanded; their occurrences are
	// absent from Occurrences.
	Failed []FailedEvent
}

// Expand materializes the occurrences of a single event inside the inclusive
// window [rangeStart, rangeEnd].
//
//   - Single events yield at most one occurrence and ignore exceptions.
//   - Weekly events are scanned day by day over the intersection of the
//     window and the rule's own interval, so output is in ascending date order.
//   - Only exceptions whose EventID equals ev.ID are applied, even if the
//     caller passes a shared pool. For duplicate (eventId, date) pairs the
//     first exception in slice order wins.
//
// An inverted window is not an error and yields no occurrences.
func Expand(ev model.Event, exceptions []model.Exception, rangeStart, rangeEnd model.Date) ([]model.Occurrence, error) {
	out := make([]model.Occurrence, 0)
	if rangeEnd.Before(rangeStart) {
		return out, nil
	}

	switch s := ev.Schedule.(type) {
	case model.SingleDate:
		if s.Date.Before(rangeStart) || s.Date.After(rangeEnd) {
			return out, nil
		}
		return append(out, baseOccurrence(ev, s.Date, false)), nil

	case model.WeeklyRule:
		return expandWeekly(ev, s, indexExceptions(ev.ID, exceptions), rangeStart, rangeEnd)

	default:
		return out, fmt.Errorf("%w: %s", ErrNoSchedule, ev.ID)
	}
}

func expandWeekly(ev model.Event, rule model.WeeklyRule, byDate map[string]model.Exception, rangeStart, rangeEnd model.Date) ([]model.Occurrence, error) {
	out := make([]model.Occurrence, 0)

	if len(rule.DaysOfWeek) == 0 {
		return out, fmt.Errorf("%w: %s", ErrNoWeekdays, ev.ID)
	}

	var days [8]bool
	for _, d := range rule.DaysOfWeek {
		if d < 1 || d > 7 {
			return out, fmt.Errorf("%w: event %s has weekday %d", ErrInvalidWeekday, ev.ID, d)
		}
		days[d] = true
	}

	// Effective window: requested range ∩ rule interval.
	start := rangeStart
	if rule.StartDate.After(start) {
		start = rule.StartDate
	}
	end := rangeEnd
	if rule.EndDate != nil && rule.EndDate.Before(end) {
		end = *rule.EndDate
	}

	for d := start; !d.After(end); d = d.AddDays(1) {
		if !days[d.ISOWeekday()] {
			continue
		}

		ex, ok := byDate[d.String()]
		if !ok {
			out = append(out, baseOccurrence(ev, d, true))
			continue
		}

		switch ex.Kind {
		case model.ExceptionCancel:
			// 취소된 날짜는 결과에서 제외한다.
		case model.ExceptionModify:
			out = append(out, modifiedOccurrence(ev, d, ex.ModifiedFields))
		default:
			appLog.Debug("expand: ignoring exception with unknown kind",
				"event_id", ev.ID, "exception_id", ex.ID, "kind", ex.Kind)
			out = append(out, baseOccurrence(ev, d, true))
		}
	}

	return out, nil
}

// indexExceptions keeps the first exception per date that belongs to eventID.
func indexExceptions(eventID string, exceptions []model.Exception) map[string]model.Exception {
	byDate := make(map[string]model.Exception)
	for _, ex := range exceptions {
		if ex.EventID != eventID {
			continue
		}
		key := ex.Date.String()
		if _, dup := byDate[key]; dup {
			continue
		}
		byDate[key] = ex
	}
	return byDate
}

func baseOccurrence(ev model.Event, date model.Date, recurring bool) model.Occurrence {
	return model.Occurrence{
		EventID:     ev.ID,
		Title:       ev.Title,
		CategoryID:  ev.CategoryID,
		MemberIDs:   slices.Clone(ev.MemberIDs),
		Date:        date,
		StartTime:   ev.StartTime,
		EndTime:     ev.EndTime,
		Note:        cloneString(ev.Note),
		IsRecurring: recurring,
	}
}

// modifiedOccurrence merges the override over the base definition. A modify
// exception without fields leaves the occurrence untouched.
func modifiedOccurrence(ev model.Event, date model.Date, mf *model.ModifiedFields) model.Occurrence {
	occ := baseOccurrence(ev, date, true)
	if mf == nil {
		return occ
	}
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
		occ.Note = cloneString(mf.Note)
	}
	occ.IsModified = true
	return occ
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
