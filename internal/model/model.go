package model

import (
	"slices"
	"time"
)

// Role distinguishes children from parents in the household.
type Role string

const (
	RoleChild  Role = "child"
	RoleParent Role = "parent"
)

// Member is a household member that events can be assigned to.
type Member struct {
	ID     string  `yaml:"id" json:"id"`
	Name   string  `yaml:"name" json:"name"`
	Role   Role    `yaml:"role" json:"role"`
	Grade  *int    `yaml:"grade,omitempty" json:"grade"`
	School *string `yaml:"school,omitempty" json:"school"`
	Color  string  `yaml:"color" json:"color"`
}

// Category groups events (school, academy, sports, ...).
type Category struct {
	ID    string `yaml:"id" json:"id"`
	Name  string `yaml:"name" json:"name"`
	Color string `yaml:"color" json:"color"`
	Icon  string `yaml:"icon,omitempty" json:"icon,omitempty"`
}

// Period is one fixed slot of the school timetable (e.g. "1교시" 09:00-09:40).
type Period struct {
	Label     string `yaml:"label" json:"label"`
	StartTime string `yaml:"start_time" json:"startTime"`
	EndTime   string `yaml:"end_time" json:"endTime"`
}

// Schedule is either a SingleDate or a WeeklyRule. The interface is sealed so
// an event can never carry both or neither.
type Schedule interface {
	isSchedule()
}

// SingleDate schedules an event once.
type SingleDate struct {
	Date Date
}

// WeeklyRule repeats an event on a fixed set of ISO weekdays between
// StartDate and EndDate (both inclusive). A nil EndDate means open-ended.
type WeeklyRule struct {
	DaysOfWeek []int
	StartDate  Date
	EndDate    *Date
}

func (SingleDate) isSchedule() {}
func (WeeklyRule) isSchedule() {}

// Includes reports whether the ISO weekday is part of the rule.
func (r WeeklyRule) Includes(isoWeekday int) bool {
	return slices.Contains(r.DaysOfWeek, isoWeekday)
}

// Event is an immutable event definition: the template that recurrence
// expansion turns into occurrences.
type Event struct {
	ID         string
	Title      string
	CategoryID string
	MemberIDs  []string
	StartTime  string // HH:mm
	EndTime    string // HH:mm
	Schedule   Schedule
	Note       *string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// IsRecurring reports whether the event follows a weekly rule.
func (e Event) IsRecurring() bool {
	_, ok := e.Schedule.(WeeklyRule)
	return ok
}

// Clone returns a deep copy that shares no slices or pointers with e.
func (e Event) Clone() Event {
	out := e
	out.MemberIDs = slices.Clone(e.MemberIDs)
	out.Note = cloneString(e.Note)
	switch s := e.Schedule.(type) {
	case WeeklyRule:
		r := WeeklyRule{
			DaysOfWeek: slices.Clone(s.DaysOfWeek),
			StartDate:  s.StartDate,
		}
		if s.EndDate != nil {
			end := *s.EndDate
			r.EndDate = &end
		}
		out.Schedule = r
	case SingleDate:
		out.Schedule = s
	}
	return out
}

// ExceptionKind is the kind of per-occurrence override.
type ExceptionKind string

const (
	ExceptionCancel ExceptionKind = "cancel"
	ExceptionModify ExceptionKind = "modify"
)

func (k ExceptionKind) Valid() bool {
	return k == ExceptionCancel || k == ExceptionModify
}

// ModifiedFields overrides a subset of an occurrence's fields. Nil fields fall
// back to the event definition.
type ModifiedFields struct {
	Title     *string `json:"title,omitempty"`
	StartTime *string `json:"startTime,omitempty"`
	EndTime   *string `json:"endTime,omitempty"`
	Note      *string `json:"note,omitempty"`
}

// Exception cancels or modifies one dated occurrence of a recurring event.
type Exception struct {
	ID             string          `json:"id"`
	EventID        string          `json:"eventId"`
	Date           Date            `json:"date"`
	Kind           ExceptionKind   `json:"type"`
	ModifiedFields *ModifiedFields `json:"modifiedFields"`
}

// Clone returns a deep copy of the exception.
func (x Exception) Clone() Exception {
	out := x
	if x.ModifiedFields != nil {
		mf := ModifiedFields{
			Title:     cloneString(x.ModifiedFields.Title),
			StartTime: cloneString(x.ModifiedFields.StartTime),
			EndTime:   cloneString(x.ModifiedFields.EndTime),
			Note:      cloneString(x.ModifiedFields.Note),
		}
		out.ModifiedFields = &mf
	}
	return out
}

// Occurrence is one concrete, dated instance of an event after expansion.
// It is never persisted.
type Occurrence struct {
	EventID     string   `json:"eventId"`
	Title       string   `json:"title"`
	CategoryID  string   `json:"categoryId"`
	MemberIDs   []string `json:"memberIds"`
	Date        Date     `json:"date"`
	StartTime   string   `json:"startTime"`
	EndTime     string   `json:"endTime"`
	Note        *string  `json:"note"`
	IsRecurring bool     `json:"isRecurring"`
	IsCancelled bool     `json:"isCancelled"`
	IsModified  bool     `json:"isModified"`
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
