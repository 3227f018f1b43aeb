package rules

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/availability-engine/internal/availability"
	"github.com/wolfman30/availability-engine/internal/http/render"
)

func newTestRouter(t *testing.T) (http.Handler, *fakeInvalidator, string) {
	t.Helper()
	svc, _, inv, org := newTestService(t)
	h := NewHandler(svc, NewValidator(), testLogger(), 60)
	r := chi.NewRouter()
	r.Post("/organizers", h.CreateOrganizer)
	r.Route("/organizers/{organizerID}", h.RegisterRoutes)
	return r, inv, org.ID
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) render.ErrorBody {
	t.Helper()
	var body render.ErrorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestHandler_CreateOrganizer(t *testing.T) {
	h, _, _ := newTestRouter(t)

	rec := do(t, h, http.MethodPost, "/organizers", `{"name":"Ada Lovelace","timezone":"Europe/London"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var org availability.Organizer
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &org))
	assert.Equal(t, "ada-lovelace", org.Slug)

	rec = do(t, h, http.MethodPost, "/organizers", `{"name":"Bad","timezone":"Nowhere/Special"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "timezone", decodeError(t, rec).Field)
}

func TestHandler_RuleLifecycle(t *testing.T) {
	h, inv, orgID := newTestRouter(t)
	base := "/organizers/" + orgID + "/availability/rules"

	rec := do(t, h, http.MethodGet, base, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = do(t, h, http.MethodPost, base, `{"day_of_week":1,"start_time":"09:00","end_time":"17:00","event_type_scope":"all"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var rule availability.AvailabilityRule
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rule))
	assert.True(t, rule.Active)
	assert.Nil(t, rule.EventTypeScope)

	rec = do(t, h, http.MethodPut, base+"/"+rule.ID, `{"day_of_week":2,"start_time":"10:00","end_time":"12:00","active":false}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, h, http.MethodDelete, base+"/"+rule.ID, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, h, http.MethodDelete, base+"/"+rule.ID, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.EqualValues(t, 3, inv.generation(orgID))
}

func TestHandler_RuleValidation(t *testing.T) {
	h, inv, orgID := newTestRouter(t)
	base := "/organizers/" + orgID + "/availability/rules"

	tests := []struct {
		name  string
		body  string
		code  int
		field string
	}{
		{name: "missing day", body: `{"start_time":"09:00","end_time":"17:00"}`, code: http.StatusUnprocessableEntity, field: "day_of_week"},
		{name: "day out of range", body: `{"day_of_week":7,"start_time":"09:00","end_time":"17:00"}`, code: http.StatusUnprocessableEntity, field: "day_of_week"},
		{name: "bad clock", body: `{"day_of_week":1,"start_time":"25:00","end_time":"17:00"}`, code: http.StatusUnprocessableEntity, field: "start_time"},
		{name: "equal times", body: `{"day_of_week":1,"start_time":"09:00","end_time":"09:00"}`, code: http.StatusUnprocessableEntity, field: "end_time"},
		{name: "not json", body: `{`, code: http.StatusBadRequest, field: "body"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, http.MethodPost, base, tt.body)
			assert.Equal(t, tt.code, rec.Code, rec.Body.String())
			assert.Equal(t, tt.field, decodeError(t, rec).Field)
		})
	}
	assert.Empty(t, inv.calls)
}

func TestHandler_OverrideAndBuffer(t *testing.T) {
	h, _, orgID := newTestRouter(t)
	base := "/organizers/" + orgID + "/availability"

	rec := do(t, h, http.MethodPost, base+"/overrides", `{"date":"2024-12-24","is_available":true}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = do(t, h, http.MethodPost, base+"/overrides", `{"date":"2024-12-24","is_available":true,"start_time":"10:00","end_time":"14:00"}`)
	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = do(t, h, http.MethodPatch, base+"/buffer", `{"buffer_before":10,"buffer_after":10}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var b availability.BufferTime
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &b))
	assert.Equal(t, 10, b.BufferBefore)
	assert.Equal(t, 30, b.Step())

	rec = do(t, h, http.MethodPatch, base+"/buffer", `{"buffer_before":-1}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "buffer_before", decodeError(t, rec).Field)
}

func TestHandler_BlockedTimesAndImport(t *testing.T) {
	h, _, orgID := newTestRouter(t)
	base := "/organizers/" + orgID + "/availability/blocked-times"

	rec := do(t, h, http.MethodPost, base, `{"title":"Dentist","start_datetime":"2024-01-10T14:00:00Z","end_datetime":"2024-01-10T15:00:00Z"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = do(t, h, http.MethodPost, base, `{"start_datetime":"2024-01-10T14:00:00Z","end_datetime":"2024-01-10T15:00:00Z","source":"carrier-pigeon"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "source", decodeError(t, rec).Field)

	feed := icsFeed("BEGIN:VEVENT\nUID:trip\nDTSTAMP:20240101T000000Z\nDTSTART:20240110T090000Z\nDTEND:20240110T170000Z\nEND:VEVENT")
	req := httptest.NewRequest(http.MethodPost, base+"/import", bytes.NewBufferString(feed))
	req.Header.Set("Content-Type", "text/calendar")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"imported":1}`, rec.Body.String())

	rec = do(t, h, http.MethodGet, base, "")
	var blocks []availability.BlockedTime
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &blocks))
	assert.Len(t, blocks, 2)
}

func TestHandler_RecurringBlocks(t *testing.T) {
	h, _, orgID := newTestRouter(t)
	base := "/organizers/" + orgID + "/availability/recurring-blocks"

	rec := do(t, h, http.MethodPost, base, `{"name":"Lunch","day_of_week":3,"start_time":"12:00","end_time":"13:00","start_date":"2024-01-01"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = do(t, h, http.MethodPost, base, `{"name":"Lunch","day_of_week":3,"start_time":"12:00","end_time":"13:00","end_date":"01/02/2024"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "end_date", decodeError(t, rec).Field)
}

func TestHandler_UnknownOrganizer(t *testing.T) {
	h, _, _ := newTestRouter(t)
	rec := do(t, h, http.MethodGet, "/organizers/missing/event-types", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
