package web

import (
	"context"
	"encoding/json"
	"net/http"

	"famcal/internal/calview"
	appLog "famcal/internal/log"
	"famcal/internal/model"
	"famcal/internal/recurrence"
)

type occurrencesResponse struct {
	Events []model.Occurrence `json:"events"`
	// FailedEventIDs lists definitions that could not be expanded and are
	// missing from Events.
	FailedEventIDs []string `json:"failedEventIds,omitempty"`
}

// queryRange resolves the requested window from either from/to or view/date.
// It writes the error response itself and returns ok=false on failure.
func (s *Server) queryRange(w http.ResponseWriter, r *http.Request) (from, to model.Date, ok bool) {
	q := r.URL.Query()

	if view := q.Get("view"); view != "" {
		anchor := model.DateOf(s.now())
		if raw := q.Get("date"); raw != "" {
			d, err := model.ParseDate(raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, codeInvalidDate, msgInvalidDate)
				return from, to, false
			}
			anchor = d
		}
		var err error
		from, to, err = calview.Range(view, anchor, s.weekStart)
		if err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidView, "view는 day, threeday, week, timetable, month 중 하나여야 합니다.")
			return from, to, false
		}
		return from, to, true
	}

	rawFrom, rawTo := q.Get("from"), q.Get("to")
	if rawFrom == "" || rawTo == "" {
		writeError(w, http.StatusBadRequest, codeMissingParams, "from, to 파라미터가 필요합니다.")
		return from, to, false
	}
	var errFrom, errTo error
	from, errFrom = model.ParseDate(rawFrom)
	to, errTo = model.ParseDate(rawTo)
	if errFrom != nil || errTo != nil {
		writeError(w, http.StatusBadRequest, codeInvalidDate, msgInvalidDate)
		return from, to, false
	}
	return from, to, true
}

// window is an expanded date range before filtering, as cached.
type window struct {
	Occurrences    []model.Occurrence `json:"occurrences"`
	FailedEventIDs []string           `json:"failedEventIds,omitempty"`
}

// expandWindow expands a store snapshot over [from, to], going through the
// occurrence cache when one is configured. Cache failures only cost a
// recomputation.
func (s *Server) expandWindow(ctx context.Context, from, to model.Date) (window, error) {
	var (
		version int64
		key     = from.String() + ":" + to.String()
		cached  = s.cache != nil
	)
	if cached {
		var err error
		if version, err = s.cache.Version(ctx); err != nil {
			appLog.Warn("cache: version unavailable", "error", err.Error())
			cached = false
		}
	}
	if cached {
		data, ok, err := s.cache.Get(ctx, version, key)
		if err != nil {
			appLog.Warn("cache: get failed", "key", key, "error", err.Error())
		}
		var w window
		if ok && json.Unmarshal(data, &w) == nil {
			return w, nil
		}
	}

	events, exceptions, err := s.store.Snapshot(ctx)
	if err != nil {
		return window{}, err
	}
	res := recurrence.ExpandAll(events, exceptions, from, to)
	w := window{Occurrences: res.Occurrences}
	for _, f := range res.Failed {
		w.FailedEventIDs = append(w.FailedEventIDs, f.EventID)
	}

	if cached {
		if data, err := json.Marshal(w); err == nil {
			if err := s.cache.Set(ctx, version, key, data); err != nil {
				appLog.Warn("cache: set failed", "key", key, "error", err.Error())
			}
		}
	}
	return w, nil
}

// invalidate orphans cached windows after a successful write.
func (s *Server) invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx); err != nil {
		appLog.Error("cache: invalidate failed", err)
	}
}

func (s *Server) handleListOccurrences(w http.ResponseWriter, r *http.Request) {
	from, to, ok := s.queryRange(w, r)
	if !ok {
		return
	}
	if to.Before(from) {
		writeJSON(w, http.StatusOK, occurrencesResponse{Events: []model.Occurrence{}})
		return
	}
	if from.DaysUntil(to)+1 > s.cfg.MaxRangeDays {
		writeError(w, http.StatusBadRequest, codeRangeTooLarge, "조회 기간이 너무 깁니다.")
		return
	}

	win, err := s.expandWindow(r.Context(), from, to)
	if err != nil {
		writeStoreError(w, err, "list occurrences")
		return
	}

	q := r.URL.Query()
	occs := calview.Filter(win.Occurrences, q["member"], q["category"])
	if q.Get("sort") == "time" {
		calview.SortChronological(occs)
	}
	writeJSON(w, http.StatusOK, occurrencesResponse{Events: occs, FailedEventIDs: win.FailedEventIDs})
}

func (s *Server) handleCreateEvent(w http.ResponseWriter, r *http.Request) {
	var ev model.Event
	if err := decodeJSON(w, r, &ev); err != nil {
		writeDecodeError(w, err)
		return
	}
	ev.ID = ""
	if ev.CategoryID == "" {
		ev.CategoryID = defaultCategory
	}
	if errs := model.ValidateEvent(ev, s.members); len(errs) > 0 {
		writeValidation(w, errs)
		return
	}

	created, err := s.store.CreateEvent(r.Context(), ev)
	if err != nil {
		writeStoreError(w, err, "create event")
		return
	}
	s.invalidate(r.Context())
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleGetEvent(w http.ResponseWriter, r *http.Request) {
	ev, err := s.store.GetEvent(r.Context(), r.PathValue("id"))
	if err != nil {
		writeStoreError(w, err, "get event")
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

func (s *Server) handleUpdateEvent(w http.ResponseWriter, r *http.Request) {
	var patch model.EventPatch
	if err := decodeJSON(w, r, &patch); err != nil {
		writeDecodeError(w, err)
		return
	}

	current, err := s.store.GetEvent(r.Context(), r.PathValue("id"))
	if err != nil {
		writeStoreError(w, err, "update event")
		return
	}
	updated, err := current.Apply(patch)
	if err != nil {
		writeDecodeError(w, err)
		return
	}
	if errs := model.ValidateEvent(updated, s.members); len(errs) > 0 {
		writeValidation(w, errs)
		return
	}

	saved, err := s.store.UpdateEvent(r.Context(), updated)
	if err != nil {
		writeStoreError(w, err, "update event")
		return
	}
	s.invalidate(r.Context())
	writeJSON(w, http.StatusOK, saved)
}

func (s *Server) handleDeleteEvent(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteEvent(r.Context(), r.PathValue("id")); err != nil {
		writeStoreError(w, err, "delete event")
		return
	}
	s.invalidate(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

type exceptionRequest struct {
	Date           string                `json:"date"`
	Type           string                `json:"type"`
	ModifiedFields *model.ModifiedFields `json:"modifiedFields"`
}

func (s *Server) handleListExceptions(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := s.store.GetEvent(r.Context(), id); err != nil {
		writeStoreError(w, err, "list exceptions")
		return
	}
	exceptions, err := s.store.ListExceptions(r.Context(), id)
	if err != nil {
		writeStoreError(w, err, "list exceptions")
		return
	}
	if exceptions == nil {
		exceptions = []model.Exception{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"exceptions": exceptions})
}

func (s *Server) handleCreateException(w http.ResponseWriter, r *http.Request) {
	var req exceptionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}
	date, err := model.ParseDate(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidDate, msgInvalidDate)
		return
	}
	kind := model.ExceptionKind(req.Type)
	if !kind.Valid() {
		writeError(w, http.StatusBadRequest, codeInvalidType, "type은 'cancel' 또는 'modify'이어야 합니다.")
		return
	}

	ev, err := s.store.GetEvent(r.Context(), r.PathValue("id"))
	if err != nil {
		writeStoreError(w, err, "create exception")
		return
	}
	if !ev.IsRecurring() {
		writeError(w, http.StatusBadRequest, codeNotRecurring, "반복 일정에만 예외를 추가할 수 있습니다.")
		return
	}

	ex := model.Exception{EventID: ev.ID, Date: date, Kind: kind}
	if kind == model.ExceptionModify {
		ex.ModifiedFields = req.ModifiedFields
	}
	if errs := model.ValidateException(ex); len(errs) > 0 {
		writeValidation(w, errs)
		return
	}

	created, err := s.store.CreateException(r.Context(), ex)
	if err != nil {
		writeStoreError(w, err, "create exception")
		return
	}
	s.invalidate(r.Context())
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleDeleteException(w http.ResponseWriter, r *http.Request) {
	err := s.store.DeleteException(r.Context(), r.PathValue("id"), r.PathValue("exId"))
	if err != nil {
		writeStoreError(w, err, "delete exception")
		return
	}
	s.invalidate(r.Context())
	w.WriteHeader(http.StatusNoContent)
}
