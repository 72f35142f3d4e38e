// Package calview turns a view name and an anchor date into a query range,
// and filters, orders and lays out expanded occurrences for display.
package calview

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"time"

	"famcal/internal/model"
)

// View names accepted by Range.
const (
	ViewDay       = "day"
	ViewThreeDay  = "threeday"
	ViewWeek      = "week"
	ViewTimetable = "timetable"
	ViewMonth     = "month"
)

// ErrUnknownView is returned by Range for an unsupported view name.
var ErrUnknownView = errors.New("unknown view")

// Range returns the inclusive date range shown by view around anchor.
//
//   - day:       anchor .. anchor
//   - threeday:  anchor .. anchor+2
//   - week:      the week containing anchor, starting on weekStart
//   - timetable: Monday .. Friday of anchor's week
//   - month:     whole weeks covering anchor's month (a month grid)
func Range(view string, anchor model.Date, weekStart time.Weekday) (from, to model.Date, err error) {
	switch view {
	case ViewDay:
		return anchor, anchor, nil
	case ViewThreeDay:
		return anchor, anchor.AddDays(2), nil
	case ViewWeek:
		from = StartOfWeek(anchor, weekStart)
		return from, from.AddDays(6), nil
	case ViewTimetable:
		from = StartOfWeek(anchor, time.Monday)
		return from, from.AddDays(4), nil
	case ViewMonth:
		first := model.NewDate(anchor.Year(), anchor.Month(), 1)
		last := first.AddMonths(1).AddDays(-1)
		from = StartOfWeek(first, weekStart)
		to = StartOfWeek(last, weekStart).AddDays(6)
		return from, to, nil
	default:
		return model.Date{}, model.Date{}, fmt.Errorf("%w: %q", ErrUnknownView, view)
	}
}

// StartOfWeek returns the last date on or before d that falls on weekStart.
func StartOfWeek(d model.Date, weekStart time.Weekday) model.Date {
	wd := d.Time().Weekday()
	back := (int(wd) - int(weekStart) + 7) % 7
	return d.AddDays(-back)
}

// ParseWeekStart maps the config value ("monday"/"sunday") to a weekday.
func ParseWeekStart(s string) time.Weekday {
	if s == "sunday" {
		return time.Sunday
	}
	return time.Monday
}

// Filter keeps occurrences that share at least one member with memberIDs and
// whose category is in categoryIDs. An empty filter set matches everything.
// The input order is preserved.
func Filter(occs []model.Occurrence, memberIDs, categoryIDs []string) []model.Occurrence {
	out := make([]model.Occurrence, 0, len(occs))
	for _, o := range occs {
		if len(categoryIDs) > 0 && !slices.Contains(categoryIDs, o.CategoryID) {
			continue
		}
		if len(memberIDs) > 0 && !slices.ContainsFunc(o.MemberIDs, func(id string) bool {
			return slices.Contains(memberIDs, id)
		}) {
			continue
		}
		out = append(out, o)
	}
	return out
}

// SortChronological orders occurrences by date, then start time, then event
// id. The sort is stable, so ties keep their expansion order.
func SortChronological(occs []model.Occurrence) {
	slices.SortStableFunc(occs, func(a, b model.Occurrence) int {
		if c := a.Date.Compare(b.Date); c != 0 {
			return c
		}
		if c := cmp.Compare(a.StartTime, b.StartTime); c != 0 {
			return c
		}
		return cmp.Compare(a.EventID, b.EventID)
	})
}

// Minutes converts "HH:mm" to minutes since midnight. It returns -1 for a
// malformed clock.
func Minutes(clock string) int {
	if !model.IsValidClock(clock) {
		return -1
	}
	h, _ := strconv.Atoi(clock[:2])
	m, _ := strconv.Atoi(clock[3:])
	return h*60 + m
}
