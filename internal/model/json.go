package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrScheduleConflict means both a date and a recurrence were supplied.
	ErrScheduleConflict = errors.New("event has both date and recurrence")
	// ErrScheduleMissing means neither a date nor a recurrence was supplied.
	ErrScheduleMissing = errors.New("event has neither date nor recurrence")
	// ErrUnsupportedRecurrence is returned for recurrence types other than weekly.
	ErrUnsupportedRecurrence = errors.New("unsupported recurrence type")
)

// RecurrenceWeekly is the only recurrence type on the wire.
const RecurrenceWeekly = "weekly"

// Recurrence is the wire form of a WeeklyRule.
type Recurrence struct {
	Type       string `json:"type"`
	DaysOfWeek []int  `json:"daysOfWeek"`
	StartDate  Date   `json:"startDate"`
	EndDate    *Date  `json:"endDate"`
}

// RecurrenceOf converts a rule into its wire form.
func RecurrenceOf(r WeeklyRule) *Recurrence {
	return &Recurrence{
		Type:       RecurrenceWeekly,
		DaysOfWeek: r.DaysOfWeek,
		StartDate:  r.StartDate,
		EndDate:    r.EndDate,
	}
}

// Rule converts the wire form into a WeeklyRule. An empty type is read as weekly.
func (r Recurrence) Rule() (WeeklyRule, error) {
	if r.Type != "" && r.Type != RecurrenceWeekly {
		return WeeklyRule{}, fmt.Errorf("%w: %q", ErrUnsupportedRecurrence, r.Type)
	}
	return WeeklyRule{
		DaysOfWeek: r.DaysOfWeek,
		StartDate:  r.StartDate,
		EndDate:    r.EndDate,
	}, nil
}

// ScheduleFrom builds a Schedule from the nullable wire pair. Exactly one of
// date and rec must be non-nil.
func ScheduleFrom(date *Date, rec *Recurrence) (Schedule, error) {
	switch {
	case date != nil && rec != nil:
		return nil, ErrScheduleConflict
	case date != nil:
		return SingleDate{Date: *date}, nil
	case rec != nil:
		rule, err := rec.Rule()
		if err != nil {
			return nil, err
		}
		return rule, nil
	default:
		return nil, ErrScheduleMissing
	}
}

// scheduleParts splits a Schedule back into the nullable wire pair.
func scheduleParts(s Schedule) (*Date, *Recurrence) {
	switch v := s.(type) {
	case SingleDate:
		d := v.Date
		return &d, nil
	case WeeklyRule:
		return nil, RecurrenceOf(v)
	default:
		return nil, nil
	}
}

type eventJSON struct {
	ID         string      `json:"id"`
	Title      string      `json:"title"`
	CategoryID string      `json:"categoryId"`
	MemberIDs  []string    `json:"memberIds"`
	StartTime  string      `json:"startTime"`
	EndTime    string      `json:"endTime"`
	Date       *Date       `json:"date"`
	Recurrence *Recurrence `json:"recurrence"`
	Note       *string     `json:"note"`
	CreatedAt  time.Time   `json:"createdAt"`
	UpdatedAt  time.Time   `json:"updatedAt"`
}

func (e Event) MarshalJSON() ([]byte, error) {
	date, rec := scheduleParts(e.Schedule)
	memberIDs := e.MemberIDs
	if memberIDs == nil {
		memberIDs = []string{}
	}
	return json.Marshal(eventJSON{
		ID:         e.ID,
		Title:      e.Title,
		CategoryID: e.CategoryID,
		MemberIDs:  memberIDs,
		StartTime:  e.StartTime,
		EndTime:    e.EndTime,
		Date:       date,
		Recurrence: rec,
		Note:       e.Note,
		CreatedAt:  e.CreatedAt,
		UpdatedAt:  e.UpdatedAt,
	})
}

func (e *Event) UnmarshalJSON(b []byte) error {
	var raw eventJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	sched, err := ScheduleFrom(raw.Date, raw.Recurrence)
	if err != nil {
		return err
	}
	*e = Event{
		ID:         raw.ID,
		Title:      raw.Title,
		CategoryID: raw.CategoryID,
		MemberIDs:  raw.MemberIDs,
		StartTime:  raw.StartTime,
		EndTime:    raw.EndTime,
		Schedule:   sched,
		Note:       raw.Note,
		CreatedAt:  raw.CreatedAt,
		UpdatedAt:  raw.UpdatedAt,
	}
	return nil
}

// EventPatch is a partial update of an event. Pointer fields are nil when the
// key was absent from the payload; the *Set flags distinguish an explicit
// null from an absent key for the nullable fields.
type EventPatch struct {
	Title      *string
	CategoryID *string
	MemberIDs  *[]string
	StartTime  *string
	EndTime    *string

	NoteSet bool
	Note    *string

	DateSet bool
	Date    *Date

	RecurrenceSet bool
	Recurrence    *Recurrence
}

func (p *EventPatch) UnmarshalJSON(b []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(b, &fields); err != nil {
		return err
	}
	*p = EventPatch{}

	decode := func(key string, dst any) (bool, error) {
		raw, ok := fields[key]
		if !ok {
			return false, nil
		}
		if err := json.Unmarshal(raw, dst); err != nil {
			return true, fmt.Errorf("%s: %w", key, err)
		}
		return true, nil
	}

	if _, err := decode("title", &p.Title); err != nil {
		return err
	}
	if _, err := decode("categoryId", &p.CategoryID); err != nil {
		return err
	}
	if _, err := decode("memberIds", &p.MemberIDs); err != nil {
		return err
	}
	if _, err := decode("startTime", &p.StartTime); err != nil {
		return err
	}
	if _, err := decode("endTime", &p.EndTime); err != nil {
		return err
	}
	var err error
	if p.NoteSet, err = decode("note", &p.Note); err != nil {
		return err
	}
	if p.DateSet, err = decode("date", &p.Date); err != nil {
		return err
	}
	if p.RecurrenceSet, err = decode("recurrence", &p.Recurrence); err != nil {
		return err
	}
	return nil
}

// Apply returns a copy of e with the patch applied. Supplying only one side of
// the schedule (a date, or a recurrence) switches the event to that kind; an
// explicit pair is taken as-is and must still name exactly one schedule.
func (e Event) Apply(p EventPatch) (Event, error) {
	out := e.Clone()
	if p.Title != nil {
		out.Title = *p.Title
	}
	if p.CategoryID != nil {
		out.CategoryID = *p.CategoryID
	}
	if p.MemberIDs != nil {
		out.MemberIDs = append([]string(nil), (*p.MemberIDs)...)
	}
	if p.StartTime != nil {
		out.StartTime = *p.StartTime
	}
	if p.EndTime != nil {
		out.EndTime = *p.EndTime
	}
	if p.NoteSet {
		out.Note = cloneString(p.Note)
	}

	if p.DateSet || p.RecurrenceSet {
		date, rec := scheduleParts(out.Schedule)
		switch {
		case p.DateSet && p.RecurrenceSet:
			date, rec = p.Date, p.Recurrence
		case p.DateSet:
			date = p.Date
			if p.Date != nil {
				rec = nil
			}
		default:
			rec = p.Recurrence
			if p.Recurrence != nil {
				date = nil
			}
		}
		sched, err := ScheduleFrom(date, rec)
		if err != nil {
			return Event{}, err
		}
		out.Schedule = sched
	}
	return out, nil
}
