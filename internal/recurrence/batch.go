package recurrence

import (
	appLog "famcal/internal/log"
	"famcal/internal/model"
)

// ExpandAll expands every event against the shared exception pool and
// concatenates the results: all occurrences of events[0] come before those of
// events[1], and so on. Output is not globally date-sorted.
//
// An event that fails to expand is logged, recorded in Result.Failed and
// skipped; the rest of the batch is still returned.
func ExpandAll(events []model.Event, exceptions []model.Exception, rangeStart, rangeEnd model.Date) Result {
	result := Result{Occurrences: make([]model.Occurrence, 0)}
	if rangeEnd.Before(rangeStart) {
		return result
	}

	// Partition once so each expansion only scans its own exceptions.
	byEvent := make(map[string][]model.Exception)
	for _, ex := range exceptions {
		byEvent[ex.EventID] = append(byEvent[ex.EventID], ex)
	}

	for _, ev := range events {
		occ, err := Expand(ev, byEvent[ev.ID], rangeStart, rangeEnd)
		if err != nil {
			appLog.Error("expand: skipping event", err, "event_id", ev.ID)
			result.Failed = append(result.Failed, FailedEvent{EventID: ev.ID, Err: err})
			continue
		}
		result.Occurrences = append(result.Occurrences, occ...)
	}

	appLog.Debug("expand: batch completed",
		"range_start", rangeStart,
		"range_end", rangeEnd,
		"events", len(events),
		"occurrences", len(result.Occurrences),
		"failed", len(result.Failed),
	)
	return result
}
