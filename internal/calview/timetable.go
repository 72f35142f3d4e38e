package calview

import "famcal/internal/model"

// TimetableDay is one weekday column of the school timetable.
type TimetableDay struct {
	Date model.Date `json:"date"`
	// Slots[i] holds the occurrences overlapping periods[i].
	Slots [][]model.Occurrence `json:"slots"`
	// AfterSchool holds occurrences that belong below the last period.
	AfterSchool []model.Occurrence `json:"afterSchool"`
}

// schoolCategory is excluded from the early after-school cutoff: a school
// event in the last period is still school, anything else is an activity.
const schoolCategory = "school"

// Timetable lays occurrences out on a Monday..Friday grid of school periods.
//
// An occurrence lands in every period it overlaps (start < period end and
// end > period start). It is listed as after-school when it starts at or
// after the end of the last period, or, for non-school categories, at or
// after the end of the second-to-last period.
func Timetable(occs []model.Occurrence, from, to model.Date, periods []model.Period) []TimetableDay {
	days := make([]TimetableDay, 0, 5)
	byDate := make(map[string][]model.Occurrence)
	for _, o := range occs {
		k := o.Date.String()
		byDate[k] = append(byDate[k], o)
	}

	lastEnd, earlyEnd := -1, -1
	if n := len(periods); n > 0 {
		lastEnd = Minutes(periods[n-1].EndTime)
		earlyEnd = lastEnd
		if n > 1 {
			earlyEnd = Minutes(periods[n-2].EndTime)
		}
	}

	for d := from; !d.After(to); d = d.AddDays(1) {
		day := TimetableDay{
			Date:        d,
			Slots:       make([][]model.Occurrence, len(periods)),
			AfterSchool: []model.Occurrence{},
		}
		dayOccs := byDate[d.String()]
		for i, p := range periods {
			pStart, pEnd := Minutes(p.StartTime), Minutes(p.EndTime)
			slot := []model.Occurrence{}
			for _, o := range dayOccs {
				if Minutes(o.StartTime) < pEnd && Minutes(o.EndTime) > pStart {
					slot = append(slot, o)
				}
			}
			day.Slots[i] = slot
		}
		if lastEnd >= 0 {
			for _, o := range dayOccs {
				start := Minutes(o.StartTime)
				if start >= lastEnd || (start >= earlyEnd && o.CategoryID != schoolCategory) {
					day.AfterSchool = append(day.AfterSchool, o)
				}
			}
		}
		days = append(days, day)
	}
	return days
}
