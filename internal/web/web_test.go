package web

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"famcal/internal/auth"
	"famcal/internal/cache"
	"famcal/internal/config"
	"famcal/internal/store"
)

type testEnv struct {
	srv     *Server
	handler http.Handler
	store   *store.MemoryStore
	cookie  *http.Cookie
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Import.CacheDir = t.TempDir()
	a, err := auth.New(auth.Options{PIN: "1234", Secret: "test-secret"})
	require.NoError(t, err)

	st := store.NewMemoryStore()
	srv := NewServer(cfg, st, a, cache.NewMemory(time.Minute))
	srv.now = func() time.Time { return time.Date(2024, 6, 12, 9, 0, 0, 0, time.UTC) }

	token, err := a.IssueToken()
	require.NoError(t, err)
	return &testEnv{srv: srv, handler: srv.Handler(), store: st, cookie: a.SessionCookie(token)}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	return e.doWith(t, method, path, body, e.cookie)
}

func (e *testEnv) doWith(t *testing.T, method, path, body string, cookie *http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	return decode[errorResponse](t, rec).Error.Code
}

type eventOut struct {
	ID         string   `json:"id"`
	Title      string   `json:"title"`
	CategoryID string   `json:"categoryId"`
	MemberIDs  []string `json:"memberIds"`
	Date       *string  `json:"date"`
	Recurrence *struct {
		DaysOfWeek []int   `json:"daysOfWeek"`
		StartDate  string  `json:"startDate"`
		EndDate    *string `json:"endDate"`
	} `json:"recurrence"`
}

type occOut struct {
	EventID     string `json:"eventId"`
	Title       string `json:"title"`
	Date        string `json:"date"`
	StartTime   string `json:"startTime"`
	IsRecurring bool   `json:"isRecurring"`
	IsModified  bool   `json:"isModified"`
}

const weeklyBody = `{
	"title": "Piano",
	"categoryId": "academy",
	"memberIds": ["sunwoo"],
	"startTime": "16:00",
	"endTime": "17:00",
	"date": null,
	"recurrence": {"type": "weekly", "daysOfWeek": [1, 3], "startDate": "2024-06-01", "endDate": "2024-06-30"}
}`

func (e *testEnv) createWeekly(t *testing.T) string {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/events", weeklyBody)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[eventOut](t, rec).ID
}

func TestHealthIsPublic(t *testing.T) {
	env := newTestEnv(t)
	rec := env.doWith(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestSessionRequired(t *testing.T) {
	env := newTestEnv(t)

	rec := env.doWith(t, http.MethodGet, "/api/members", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, codeUnauthorized, errorCode(t, rec))

	bad := &http.Cookie{Name: auth.CookieName, Value: "forged"}
	rec = env.doWith(t, http.MethodGet, "/api/events?from=2024-06-01&to=2024-06-02", "", bad)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.doWith(t, http.MethodGet, "/api/auth/status", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]bool{"authenticated": false}, decode[map[string]bool](t, rec))

	rec = env.do(t, http.MethodGet, "/api/auth/status", "")
	assert.Equal(t, map[string]bool{"authenticated": true}, decode[map[string]bool](t, rec))
}

func TestVerifyPIN(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name   string
		body   string
		status int
		code   string
	}{
		{"missing", `{}`, http.StatusBadRequest, codeMissingPIN},
		{"garbage", `not json`, http.StatusBadRequest, codeMissingPIN},
		{"wrong", `{"pin":"0000"}`, http.StatusUnauthorized, codeInvalidPIN},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.doWith(t, http.MethodPost, "/api/auth/verify", tt.body, nil)
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.code, errorCode(t, rec))
		})
	}

	rec := env.doWith(t, http.MethodPost, "/api/auth/verify", `{"pin":"1234"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]bool{"success": true}, decode[map[string]bool](t, rec))

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, auth.CookieName, cookies[0].Name)
	assert.True(t, cookies[0].HttpOnly)

	rec = env.doWith(t, http.MethodGet, "/api/members", "", cookies[0])
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.doWith(t, http.MethodPost, "/api/auth/logout", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, rec.Result().Cookies(), 1)
	assert.Equal(t, -1, rec.Result().Cookies()[0].MaxAge)
}

func TestReferenceData(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/members", "")
	require.Equal(t, http.StatusOK, rec.Code)
	members := decode[map[string][]map[string]any](t, rec)["members"]
	require.Len(t, members, 4)
	assert.Equal(t, "sunwoo", members[0]["id"])

	rec = env.do(t, http.MethodGet, "/api/categories", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[map[string][]map[string]any](t, rec)["categories"], 10)

	rec = env.do(t, http.MethodGet, "/api/periods", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[map[string][]map[string]any](t, rec)["periods"], 8)
}

func TestCreateEventValidation(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name string
		body string
		code string
	}{
		{"not json", `{`, codeInvalidBody},
		{"both schedules", `{"title":"x","memberIds":["sunwoo"],"startTime":"09:00","endTime":"10:00",
			"date":"2024-06-10","recurrence":{"type":"weekly","daysOfWeek":[1],"startDate":"2024-06-01"}}`, codeInvalidSchedule},
		{"no schedule", `{"title":"x","memberIds":["sunwoo"],"startTime":"09:00","endTime":"10:00"}`, codeInvalidSchedule},
		{"bad date", `{"title":"x","memberIds":["sunwoo"],"startTime":"09:00","endTime":"10:00","date":"2024/06/10"}`, codeInvalidDate},
		{"monthly", `{"title":"x","memberIds":["sunwoo"],"startTime":"09:00","endTime":"10:00",
			"recurrence":{"type":"monthly","daysOfWeek":[1],"startDate":"2024-06-01"}}`, codeInvalidRecurrence},
		{"no title", `{"title":"","memberIds":["sunwoo"],"startTime":"09:00","endTime":"10:00","date":"2024-06-10"}`, codeMissingTitle},
		{"bad time", `{"title":"x","memberIds":["sunwoo"],"startTime":"9:00","endTime":"10:00","date":"2024-06-10"}`, codeInvalidTime},
		{"unknown member", `{"title":"x","memberIds":["grandma"],"startTime":"09:00","endTime":"10:00","date":"2024-06-10"}`, codeInvalidMemberIDs},
		{"no members", `{"title":"x","memberIds":[],"startTime":"09:00","endTime":"10:00","date":"2024-06-10"}`, codeInvalidMemberIDs},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/api/events", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			assert.Equal(t, tt.code, errorCode(t, rec))
		})
	}

	events, err := env.store.ListEvents(t.Context())
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestCreateEventDefaultsCategory(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodPost, "/api/events",
		`{"id":"evt-mine","title":"Dentist","memberIds":["jaeho"],"startTime":"09:00","endTime":"10:00","date":"2024-06-10","note":null}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	ev := decode[eventOut](t, rec)
	assert.NotEqual(t, "evt-mine", ev.ID)
	assert.True(t, strings.HasPrefix(ev.ID, "evt-"))
	assert.Equal(t, "etc", ev.CategoryID)
	require.NotNil(t, ev.Date)
	assert.Equal(t, "2024-06-10", *ev.Date)
	assert.Nil(t, ev.Recurrence)
}

func TestEventCRUD(t *testing.T) {
	env := newTestEnv(t)
	id := env.createWeekly(t)

	rec := env.do(t, http.MethodGet, "/api/events/"+id, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Piano", decode[eventOut](t, rec).Title)

	rec = env.do(t, http.MethodPut, "/api/events/"+id, `{"title":"Piano lesson","recurrence":{"type":"weekly","daysOfWeek":[5],"startDate":"2024-06-01","endDate":null}}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decode[eventOut](t, rec)
	assert.Equal(t, "Piano lesson", updated.Title)
	assert.Equal(t, []string{"sunwoo"}, updated.MemberIDs)
	require.NotNil(t, updated.Recurrence)
	assert.Equal(t, []int{5}, updated.Recurrence.DaysOfWeek)
	assert.Nil(t, updated.Recurrence.EndDate)

	// Switching to a single date drops the rule.
	rec = env.do(t, http.MethodPut, "/api/events/"+id, `{"date":"2024-06-21"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	single := decode[eventOut](t, rec)
	assert.Nil(t, single.Recurrence)
	require.NotNil(t, single.Date)

	rec = env.do(t, http.MethodPut, "/api/events/"+id, `{"endTime":"25:00"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, codeInvalidTime, errorCode(t, rec))

	rec = env.do(t, http.MethodPut, "/api/events/evt-missing", `{"title":"x"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, codeNotFound, errorCode(t, rec))

	rec = env.do(t, http.MethodDelete, "/api/events/"+id, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/events/"+id, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = env.do(t, http.MethodDelete, "/api/events/"+id, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListOccurrencesParams(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name  string
		query string
		code  string
	}{
		{"missing to", "from=2024-06-01", codeMissingParams},
		{"missing both", "", codeMissingParams},
		{"bad date", "from=2024-06-01&to=June", codeInvalidDate},
		{"bad view", "view=year&date=2024-06-01", codeInvalidView},
		{"bad view anchor", "view=week&date=tomorrow", codeInvalidDate},
		{"too large", "from=2024-01-01&to=2026-01-01", codeRangeTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodGet, "/api/events?"+tt.query, "")
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tt.code, errorCode(t, rec))
		})
	}

	rec := env.do(t, http.MethodGet, "/api/events?from=2024-06-30&to=2024-06-01", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"events":[]}`, rec.Body.String())
}

func TestListOccurrencesExpands(t *testing.T) {
	env := newTestEnv(t)
	id := env.createWeekly(t)

	rec := env.do(t, http.MethodPost, "/api/events",
		`{"title":"Dentist","categoryId":"family","memberIds":["jaeho"],"startTime":"09:00","endTime":"10:00","date":"2024-06-12"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/events/"+id+"/exceptions", `{"date":"2024-06-10","type":"cancel"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	rec = env.do(t, http.MethodPost, "/api/events/"+id+"/exceptions",
		`{"date":"2024-06-12","type":"modify","modifiedFields":{"startTime":"15:00"}}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	// Week of 2024-06-10 (Mon..Sun): piano Wed only, dentist Wed.
	rec = env.do(t, http.MethodGet, "/api/events?view=week&date=2024-06-12", "")
	require.Equal(t, http.StatusOK, rec.Code)
	occs := decode[struct {
		Events []occOut `json:"events"`
	}](t, rec).Events
	require.Len(t, occs, 2)
	assert.Equal(t, "Piano", occs[0].Title)
	assert.Equal(t, "2024-06-12", occs[0].Date)
	assert.Equal(t, "15:00", occs[0].StartTime)
	assert.True(t, occs[0].IsModified)
	assert.Equal(t, "Dentist", occs[1].Title)
	assert.False(t, occs[1].IsRecurring)

	rec = env.do(t, http.MethodGet, "/api/events?view=week&date=2024-06-12&sort=time", "")
	occs = decode[struct {
		Events []occOut `json:"events"`
	}](t, rec).Events
	require.Len(t, occs, 2)
	assert.Equal(t, "Dentist", occs[0].Title)

	rec = env.do(t, http.MethodGet, "/api/events?from=2024-06-01&to=2024-06-30&member=jaeho", "")
	occs = decode[struct {
		Events []occOut `json:"events"`
	}](t, rec).Events
	require.Len(t, occs, 1)
	assert.Equal(t, "Dentist", occs[0].Title)

	rec = env.do(t, http.MethodGet, "/api/events?from=2024-06-01&to=2024-06-30&member=sunwoo&category=academy", "")
	occs = decode[struct {
		Events []occOut `json:"events"`
	}](t, rec).Events
	// Mon/Wed in June: 3,5,10,12,17,19,24,26 minus the cancelled 10th.
	assert.Len(t, occs, 7)
	for _, o := range occs {
		assert.Equal(t, id, o.EventID)
		assert.NotEqual(t, "2024-06-10", o.Date)
	}
}

func TestExceptions(t *testing.T) {
	env := newTestEnv(t)
	id := env.createWeekly(t)
	base := "/api/events/" + id + "/exceptions"

	tests := []struct {
		name   string
		body   string
		status int
		code   string
	}{
		{"bad date", `{"date":"06/10/2024","type":"cancel"}`, http.StatusBadRequest, codeInvalidDate},
		{"bad type", `{"date":"2024-06-10","type":"skip"}`, http.StatusBadRequest, codeInvalidType},
		{"bad modified time", `{"date":"2024-06-10","type":"modify","modifiedFields":{"endTime":"7pm"}}`, http.StatusBadRequest, codeValidationFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, base, tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.Equal(t, tt.code, errorCode(t, rec))
		})
	}

	rec := env.do(t, http.MethodPost, base, `{"date":"2024-06-10","type":"cancel"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	exID := decode[map[string]any](t, rec)["id"].(string)

	rec = env.do(t, http.MethodPost, base, `{"date":"2024-06-10","type":"modify","modifiedFields":{"title":"x"}}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, codeDuplicateException, errorCode(t, rec))

	rec = env.do(t, http.MethodGet, base, "")
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[map[string][]map[string]any](t, rec)["exceptions"]
	require.Len(t, list, 1)
	assert.Equal(t, "cancel", list[0]["type"])
	assert.Equal(t, "2024-06-10", list[0]["date"])

	rec = env.do(t, http.MethodDelete, base+"/"+exID, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = env.do(t, http.MethodDelete, base+"/"+exID, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/events/evt-missing/exceptions", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = env.do(t, http.MethodPost, "/api/events/evt-missing/exceptions", `{"date":"2024-06-10","type":"cancel"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestExceptionRequiresRecurringEvent(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodPost, "/api/events",
		`{"title":"Dentist","memberIds":["jaeho"],"startTime":"09:00","endTime":"10:00","date":"2024-06-12"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decode[eventOut](t, rec).ID

	rec = env.do(t, http.MethodPost, "/api/events/"+id+"/exceptions", `{"date":"2024-06-12","type":"cancel"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, codeNotRecurring, errorCode(t, rec))
}

func TestTimetable(t *testing.T) {
	env := newTestEnv(t)
	env.createWeekly(t)

	rec := env.do(t, http.MethodGet, "/api/timetable?date=2024-06-12", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	tt := decode[struct {
		From string `json:"from"`
		To   string `json:"to"`
		Days []struct {
			Date        string     `json:"date"`
			Slots       [][]occOut `json:"slots"`
			AfterSchool []occOut   `json:"afterSchool"`
		} `json:"days"`
	}](t, rec)
	assert.Equal(t, "2024-06-10", tt.From)
	assert.Equal(t, "2024-06-14", tt.To)
	require.Len(t, tt.Days, 5)
	// 16:00 piano is after the last period on Monday and Wednesday.
	assert.Len(t, tt.Days[0].AfterSchool, 1)
	assert.Empty(t, tt.Days[1].AfterSchool)
	assert.Len(t, tt.Days[2].AfterSchool, 1)

	rec = env.do(t, http.MethodGet, "/api/timetable?date=soon", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCalendarExportImport(t *testing.T) {
	env := newTestEnv(t)
	id := env.createWeekly(t)
	rec := env.do(t, http.MethodPost, "/api/events/"+id+"/exceptions", `{"date":"2024-06-10","type":"cancel"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/calendar.ics?name=Home", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/calendar; charset=utf-8", rec.Header().Get("Content-Type"))
	body := rec.Body.String()
	assert.Contains(t, body, "X-WR-CALNAME:Home")
	assert.Contains(t, body, "EXDATE:20240610T160000")

	cal, err := ical.ParseCalendar(strings.NewReader(body))
	require.NoError(t, err)
	require.Len(t, cal.Events(), 1)

	// Importing the export into a fresh server recreates the series.
	other := newTestEnv(t)
	rec = other.do(t, http.MethodPost, "/api/import", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decode[struct {
		Imported   []eventOut `json:"imported"`
		Exceptions int        `json:"exceptions"`
		Skipped    []struct {
			UID string `json:"uid"`
		} `json:"skipped"`
	}](t, rec)
	require.Len(t, res.Imported, 1)
	assert.Equal(t, "Piano", res.Imported[0].Title)
	assert.Equal(t, 1, res.Exceptions)
	assert.Empty(t, res.Skipped)

	rec = other.do(t, http.MethodGet, "/api/events?from=2024-06-10&to=2024-06-12", "")
	occs := decode[struct {
		Events []occOut `json:"events"`
	}](t, rec).Events
	require.Len(t, occs, 1)
	assert.Equal(t, "2024-06-12", occs[0].Date)
}

func TestImportSkipsInvalidEvents(t *testing.T) {
	env := newTestEnv(t)
	body := strings.Join([]string{
		"BEGIN:VCALENDAR",
		"VERSION:2.0",
		"PRODID:-//test//test//EN",
		"BEGIN:VEVENT",
		"UID:no-members",
		"DTSTAMP:20240101T000000Z",
		"SUMMARY:Orphan",
		"DTSTART:20240604T150000",
		"DTEND:20240604T160000",
		"END:VEVENT",
		"END:VCALENDAR",
		"",
	}, "\r\n")

	rec := env.do(t, http.MethodPost, "/api/import", body)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"uid":"no-members"`)
	assert.Contains(t, rec.Body.String(), `"imported":[]`)

	rec = env.do(t, http.MethodPost, "/api/import?member=sooyoung", body)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"title":"Orphan"`)

	rec = env.do(t, http.MethodPost, "/api/import", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, codeInvalidBody, errorCode(t, rec))
}

func TestImportFromURL(t *testing.T) {
	source := newTestEnv(t)
	source.createWeekly(t)
	feed := source.do(t, http.MethodGet, "/api/calendar.ics", "").Body.String()

	var hits atomic.Int32
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.Header.Get("If-None-Match") == `"v1"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		_, _ = io.WriteString(w, feed)
	}))
	defer upstream.Close()

	env := newTestEnv(t)
	rec := env.do(t, http.MethodPost, "/api/import?url="+upstream.URL+"/family.ics", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"title":"Piano"`)

	// Second import of an unchanged feed stores nothing.
	rec = env.do(t, http.MethodPost, "/api/import?url="+upstream.URL+"/family.ics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"unchanged":true`)
	assert.Equal(t, int32(2), hits.Load())

	events, err := env.store.ListEvents(t.Context())
	require.NoError(t, err)
	assert.Len(t, events, 1)

	rec = env.do(t, http.MethodPost, "/api/import?url=file:///etc/passwd", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, codeInvalidURL, errorCode(t, rec))
}

func TestImportFromURLUpstreamDown(t *testing.T) {
	source := newTestEnv(t)
	source.createWeekly(t)
	feed := source.do(t, http.MethodGet, "/api/calendar.ics", "").Body.String()

	var down atomic.Bool
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if down.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		_, _ = io.WriteString(w, feed)
	}))
	defer upstream.Close()

	env := newTestEnv(t)
	rec := env.do(t, http.MethodPost, "/api/import?url="+upstream.URL+"/family.ics", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// The fetcher falls back to its disk copy; that copy is already stored.
	down.Store(true)
	rec = env.do(t, http.MethodPost, "/api/import?url="+upstream.URL+"/family.ics", "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, codeFetchFailed, errorCode(t, rec))

	events, err := env.store.ListEvents(t.Context())
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestWritesInvalidateCachedWindows(t *testing.T) {
	env := newTestEnv(t)
	const path = "/api/events?from=2024-06-01&to=2024-06-30"

	list := func() []occOut {
		rec := env.do(t, http.MethodGet, path, "")
		require.Equal(t, http.StatusOK, rec.Code)
		return decode[struct {
			Events []occOut `json:"events"`
		}](t, rec).Events
	}

	assert.Empty(t, list())
	id := env.createWeekly(t)
	assert.Len(t, list(), 8)

	rec := env.do(t, http.MethodPost, "/api/events/"+id+"/exceptions", `{"date":"2024-06-03","type":"cancel"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Len(t, list(), 7)

	rec = env.do(t, http.MethodDelete, "/api/events/"+id, "")
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, list())

	// The same window without a cache yields the same answer.
	env.srv.cache = nil
	assert.Empty(t, list())
}
