package web

import (
	"errors"
	"io"
	"net/http"

	"famcal/internal/calview"
	"famcal/internal/ics"
	appLog "famcal/internal/log"
	"famcal/internal/model"
	"famcal/internal/store"
)

const defaultCategory = ics.DefaultCategory

type timetableResponse struct {
	From    model.Date             `json:"from"`
	To      model.Date             `json:"to"`
	Periods []model.Period         `json:"periods"`
	Days    []calview.TimetableDay `json:"days"`
}

// handleTimetable lays out the Monday..Friday week containing ?date= (default
// today) on the configured school periods. Member/category filters apply.
func (s *Server) handleTimetable(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	anchor := model.DateOf(s.now())
	if raw := q.Get("date"); raw != "" {
		d, err := model.ParseDate(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidDate, msgInvalidDate)
			return
		}
		anchor = d
	}
	from, to, err := calview.Range(calview.ViewTimetable, anchor, s.weekStart)
	if err != nil {
		logInternal("timetable range", err)
		writeError(w, http.StatusInternalServerError, codeInternal, msgInternal)
		return
	}

	win, err := s.expandWindow(r.Context(), from, to)
	if err != nil {
		writeStoreError(w, err, "timetable")
		return
	}
	occs := calview.Filter(win.Occurrences, q["member"], q["category"])
	calview.SortChronological(occs)

	writeJSON(w, http.StatusOK, timetableResponse{
		From:    from,
		To:      to,
		Periods: s.cfg.Periods,
		Days:    calview.Timetable(occs, from, to, s.cfg.Periods),
	})
}

func (s *Server) handleExportICS(w http.ResponseWriter, r *http.Request) {
	events, exceptions, err := s.store.Snapshot(r.Context())
	if err != nil {
		writeStoreError(w, err, "export calendar")
		return
	}
	body, err := ics.Export(events, exceptions, r.URL.Query().Get("name"))
	if err != nil {
		logInternal("export calendar", err)
		writeError(w, http.StatusInternalServerError, codeInternal, msgInternal)
		return
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="famcal.ics"`)
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, body)
}

type importSkip struct {
	UID    string `json:"uid"`
	Reason string `json:"reason"`
}

type importResponse struct {
	Imported   []model.Event `json:"imported"`
	Exceptions int           `json:"exceptions"`
	Skipped    []importSkip  `json:"skipped"`
	// Unchanged is set when ?url= answered 304; nothing is imported again.
	Unchanged bool `json:"unchanged,omitempty"`
}

// handleImportICS creates events from an iCalendar document: the request
// body, or the feed at ?url= when given. Repeated ?member= parameters supply
// the members for VEVENTs that do not name any. VEVENTs that fail to map or
// validate are reported in skipped; the rest are stored.
func (s *Server) handleImportICS(w http.ResponseWriter, r *http.Request) {
	resp := importResponse{Imported: []model.Event{}, Skipped: []importSkip{}}

	var body []byte
	if feedURL := r.URL.Query().Get("url"); feedURL != "" {
		res, err := s.feeds.Fetch(r.Context(), feedURL)
		if err != nil {
			if errors.Is(err, ics.ErrUnsupportedURL) {
				writeError(w, http.StatusBadRequest, codeInvalidURL, "url은 http 또는 https 주소여야 합니다.")
				return
			}
			appLog.Warn("import: feed fetch failed", "error", err.Error())
			writeError(w, http.StatusBadGateway, codeFetchFailed, "캘린더를 가져오지 못했습니다.")
			return
		}
		if res.NotModified {
			resp.Unchanged = true
			writeJSON(w, http.StatusOK, resp)
			return
		}
		if res.FromCache {
			// Upstream failed and the fetcher fell back to the copy that was
			// already imported.
			appLog.Warn("import: feed unavailable, cached copy not re-imported")
			writeError(w, http.StatusBadGateway, codeFetchFailed, "캘린더를 가져오지 못했습니다.")
			return
		}
		body = res.Body
	} else {
		var err error
		body, err = io.ReadAll(http.MaxBytesReader(w, r.Body, importMaxBytes))
		if err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidBody, "요청 본문을 읽을 수 없습니다.")
			return
		}
	}

	parsed, err := ics.ParseICS(body, ics.ImportOptions{MemberIDs: r.URL.Query()["member"]})
	if err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidBody, "iCalendar 형식이 올바르지 않습니다.")
		return
	}
	for _, sk := range parsed.Skipped {
		resp.Skipped = append(resp.Skipped, importSkip{UID: sk.UID, Reason: sk.Err.Error()})
	}

	ctx := r.Context()
	defer func() {
		if len(resp.Imported) > 0 {
			s.invalidate(ctx)
		}
	}()
	for _, item := range parsed.Events {
		if errs := model.ValidateEvent(item.Event, s.members); len(errs) > 0 {
			resp.Skipped = append(resp.Skipped, importSkip{UID: item.UID, Reason: errors.Join(fieldErrors(errs)...).Error()})
			continue
		}
		created, err := s.store.CreateEvent(ctx, item.Event)
		if err != nil {
			writeStoreError(w, err, "import event")
			return
		}
		resp.Imported = append(resp.Imported, created)

		for _, ex := range item.Exceptions {
			ex.EventID = created.ID
			if errs := model.ValidateException(ex); len(errs) > 0 {
				appLog.Warn("import: exception dropped", "uid", item.UID, "date", ex.Date)
				continue
			}
			if _, err := s.store.CreateException(ctx, ex); err != nil {
				if errors.Is(err, store.ErrDuplicateException) {
					continue
				}
				writeStoreError(w, err, "import exception")
				return
			}
			resp.Exceptions++
		}
	}

	appLog.Info("import: calendar stored", "imported", len(resp.Imported), "exceptions", resp.Exceptions, "skipped", len(resp.Skipped))
	writeJSON(w, http.StatusOK, resp)
}

func fieldErrors(errs []model.FieldError) []error {
	out := make([]error, len(errs))
	for i, e := range errs {
		out[i] = e
	}
	return out
}
