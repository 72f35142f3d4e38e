package model

import (
	"fmt"
	"regexp"
	"strconv"
)

// Validation constraints.
const (
	MaxTitleLen = 100
	MaxNoteLen  = 1000
)

var clockRe = regexp.MustCompile(`^\d{2}:\d{2}$`)

// FieldError represents a single field's validation error.
type FieldError struct {
	Field string `json:"field"`
	Msg   string `json:"message"`
}

func (e FieldError) Error() string { return fmt.Sprintf("%s: %s", e.Field, e.Msg) }

// IsValidClock reports whether s is a wall-clock time in HH:mm form
// with hour 00-23 and minute 00-59.
func IsValidClock(s string) bool {
	if !clockRe.MatchString(s) {
		return false
	}
	h, _ := strconv.Atoi(s[:2])
	m, _ := strconv.Atoi(s[3:])
	return h < 24 && m < 60
}

// ValidateEvent performs strict checks on an event definition.
// knownMembers, when non-nil, restricts memberIds to that set.
func ValidateEvent(ev Event, knownMembers map[string]struct{}) []FieldError {
	var errs []FieldError

	if ev.Title == "" {
		errs = append(errs, FieldError{"title", "required"})
	} else if len([]rune(ev.Title)) > MaxTitleLen {
		errs = append(errs, FieldError{"title", fmt.Sprintf("max length %d", MaxTitleLen)})
	}

	if ev.CategoryID == "" {
		errs = append(errs, FieldError{"categoryId", "required"})
	}

	if len(ev.MemberIDs) == 0 {
		errs = append(errs, FieldError{"memberIds", "must contain at least one member"})
	} else if knownMembers != nil {
		for i, id := range ev.MemberIDs {
			if _, ok := knownMembers[id]; !ok {
				errs = append(errs, FieldError{fmt.Sprintf("memberIds[%d]", i), "unknown member " + strconv.Quote(id)})
			}
		}
	}

	startOK := IsValidClock(ev.StartTime)
	endOK := IsValidClock(ev.EndTime)
	if !startOK {
		errs = append(errs, FieldError{"startTime", "must be HH:mm"})
	}
	if !endOK {
		errs = append(errs, FieldError{"endTime", "must be HH:mm"})
	}
	// HH:mm compares correctly as a string.
	if startOK && endOK && ev.StartTime >= ev.EndTime {
		errs = append(errs, FieldError{"endTime", "must be after startTime"})
	}

	if ev.Note != nil && len([]rune(*ev.Note)) > MaxNoteLen {
		errs = append(errs, FieldError{"note", fmt.Sprintf("max length %d", MaxNoteLen)})
	}

	switch s := ev.Schedule.(type) {
	case SingleDate:
		if s.Date.IsZero() {
			errs = append(errs, FieldError{"date", "required YYYY-MM-DD"})
		}
	case WeeklyRule:
		errs = append(errs, validateRule(s)...)
	default:
		errs = append(errs, FieldError{"date", "either date or recurrence is required"})
	}

	return errs
}

func validateRule(r WeeklyRule) []FieldError {
	var errs []FieldError
	if len(r.DaysOfWeek) == 0 {
		errs = append(errs, FieldError{"recurrence.daysOfWeek", "must contain at least one weekday"})
	}
	seen := make(map[int]bool, len(r.DaysOfWeek))
	for i, d := range r.DaysOfWeek {
		if d < 1 || d > 7 {
			errs = append(errs, FieldError{fmt.Sprintf("recurrence.daysOfWeek[%d]", i), "must be 1 (Mon) to 7 (Sun)"})
			continue
		}
		if seen[d] {
			errs = append(errs, FieldError{fmt.Sprintf("recurrence.daysOfWeek[%d]", i), "duplicate weekday"})
		}
		seen[d] = true
	}
	if r.StartDate.IsZero() {
		errs = append(errs, FieldError{"recurrence.startDate", "required YYYY-MM-DD"})
	}
	if r.EndDate != nil && !r.StartDate.IsZero() && r.EndDate.Before(r.StartDate) {
		errs = append(errs, FieldError{"recurrence.endDate", "must not be before startDate"})
	}
	return errs
}

// ValidateException checks an exception before it is persisted.
func ValidateException(ex Exception) []FieldError {
	var errs []FieldError
	if ex.Date.IsZero() {
		errs = append(errs, FieldError{"date", "required YYYY-MM-DD"})
	}
	if !ex.Kind.Valid() {
		errs = append(errs, FieldError{"type", "must be 'cancel' or 'modify'"})
	}
	if mf := ex.ModifiedFields; mf != nil {
		if mf.Title != nil && *mf.Title == "" {
			errs = append(errs, FieldError{"modifiedFields.title", "must not be empty"})
		}
		if mf.StartTime != nil && !IsValidClock(*mf.StartTime) {
			errs = append(errs, FieldError{"modifiedFields.startTime", "must be HH:mm"})
		}
		if mf.EndTime != nil && !IsValidClock(*mf.EndTime) {
			errs = append(errs, FieldError{"modifiedFields.endTime", "must be HH:mm"})
		}
	}
	return errs
}
