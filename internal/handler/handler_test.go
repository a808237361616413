package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stw-baltyk/baltyk-manager/internal/model"
	"github.com/stw-baltyk/baltyk-manager/internal/report"
	"github.com/stw-baltyk/baltyk-manager/internal/repository"
)

func newContext(target string, header map[string]string) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	return echo.New().NewContext(req, rec), rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestFailMapsErrorKinds(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"field validation", repository.Invalid("name", "required"), http.StatusBadRequest, "validation"},
		{"coded validation", repository.ErrWeakPassword, http.StatusBadRequest, "weak_password"},
		{"not found", repository.ErrMemberNotFound, http.StatusNotFound, "member_not_found"},
		{"wrapped not found", fmt.Errorf("load: %w", repository.ErrFeeNotFound), http.StatusNotFound, "fee_not_found"},
		{"forbidden", repository.ErrForbidden, http.StatusForbidden, "forbidden"},
		{"conflict", repository.ErrFeeExists, http.StatusConflict, "fee_exists"},
		{"handler problem", badRequest("invalid_id", "id"), http.StatusBadRequest, "invalid_id"},
		{"deadline", context.DeadlineExceeded, http.StatusServiceUnavailable, "timeout"},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError, "internal"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c, rec := newContext("/", nil)
			require.NoError(t, fail(c, tc.err))
			assert.Equal(t, tc.status, rec.Code)
			assert.Equal(t, tc.code, decode(t, rec)["error"])
		})
	}
}

func TestFailLocalizesAndDetails(t *testing.T) {
	c, rec := newContext("/", map[string]string{"Accept-Language": "en-GB,en;q=0.8"})
	require.NoError(t, fail(c, repository.Invalid("amount", "must be positive")))
	body := decode(t, rec)
	assert.Equal(t, "Invalid input", body["message"])
	assert.Equal(t, "amount: must be positive", body["detail"])

	c, rec = newContext("/", nil)
	require.NoError(t, fail(c, repository.ErrEventFull))
	assert.Equal(t, "Brak wolnych miejsc", decode(t, rec)["message"])

	// Internal errors never leak their text.
	c, rec = newContext("/", nil)
	require.NoError(t, fail(c, errors.New("dial tcp 10.0.0.1:3306: refused")))
	assert.NotContains(t, rec.Body.String(), "10.0.0.1")
}

func TestFailListsOverlappingReservations(t *testing.T) {
	start := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	err := &repository.OverlapError{Conflicts: []model.Reservation{{ID: 9, StartDate: start, EndDate: start.Add(4 * time.Hour)}}}
	c, rec := newContext("/", nil)
	require.NoError(t, fail(c, err))
	assert.Equal(t, http.StatusConflict, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "reservation_overlap", body["error"])
	conflicts, ok := body["conflicts"].([]any)
	require.True(t, ok)
	assert.Len(t, conflicts, 1)
}

func TestParseDateTime(t *testing.T) {
	warsaw, err := time.LoadLocation("Europe/Warsaw")
	require.NoError(t, err)

	got, err := parseDateTime("start", "2025-07-01T10:00", warsaw)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 7, 1, 8, 0, 0, 0, time.UTC), got, "CEST is UTC+2")

	got, err = parseDateTime("start", "2025-01-10T10:00:00Z", warsaw)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 1, 10, 10, 0, 0, 0, time.UTC), got)

	got, err = parseDateTime("start", "2025-01-10", warsaw)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 1, 9, 23, 0, 0, 0, time.UTC), got)

	_, err = parseDateTime("start", "10.01.2025", warsaw)
	var ae *apiError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, "invalid_date", ae.code)
	assert.Equal(t, "start", ae.detail)
}

func TestParseDate(t *testing.T) {
	d, err := parseDate("due_date", nil)
	require.NoError(t, err)
	assert.Nil(t, d)

	s := " 2025-03-31 "
	d, err = parseDate("due_date", &s)
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC), *d)

	bad := "2025-02-30"
	_, err = parseDate("due_date", &bad)
	assert.Error(t, err)
}

func TestPageRequestDefaultsAndCaps(t *testing.T) {
	c, _ := newContext("/?page=0&per_page=1000", nil)
	p := pageRequest(c)
	assert.Equal(t, 1, p.Page)
	assert.Equal(t, 100, p.PerPage)

	c, _ = newContext("/", nil)
	p = pageRequest(c)
	assert.Equal(t, 1, p.Page)
	assert.Equal(t, 50, p.PerPage)
}

func TestQueryHelpers(t *testing.T) {
	c, _ := newContext("/?member_id=12&year=2025&unpaid=yes&bad=x", nil)
	n, err := queryUint(c, "member_id")
	require.NoError(t, err)
	assert.Equal(t, uint64(12), n)
	y, err := queryInt(c, "year")
	require.NoError(t, err)
	assert.Equal(t, 2025, y)
	assert.True(t, queryBool(c, "unpaid"))
	assert.False(t, queryBool(c, "missing"))
	_, err = queryUint(c, "bad")
	assert.Error(t, err)
}

func TestWantsCSV(t *testing.T) {
	for target, want := range map[string]bool{"/": false, "/?format=json": false, "/?format=CSV": true} {
		c, _ := newContext(target, nil)
		got, err := wantsCSV(c)
		require.NoError(t, err, target)
		assert.Equal(t, want, got, target)
	}
	c, _ := newContext("/?format=xlsx", nil)
	_, err := wantsCSV(c)
	assert.Error(t, err)
}

func TestSendCSV(t *testing.T) {
	c, rec := newContext("/", nil)
	require.NoError(t, sendCSV(c, report.Table{Filename: "x.csv", Header: []string{"a"}}))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "report_empty", decode(t, rec)["error"])

	c, rec = newContext("/", nil)
	require.NoError(t, sendCSV(c, report.Table{Filename: "x.csv", Header: []string{"a"}, Rows: [][]string{{"1"}}}))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, report.ContentType, rec.Header().Get(echo.HeaderContentType))
	assert.Contains(t, rec.Header().Get(echo.HeaderContentDisposition), `filename="x.csv"`)
	assert.Contains(t, rec.Body.String(), "a\n1\n")
}

func TestParseID(t *testing.T) {
	c, _ := newContext("/", nil)
	c.SetParamNames("id")
	c.SetParamValues("0")
	_, err := parseID(c, "id")
	assert.Error(t, err)

	c.SetParamValues("17")
	id, err := parseID(c, "id")
	require.NoError(t, err)
	assert.Equal(t, uint64(17), id)
}

func TestParticipantPath(t *testing.T) {
	c, _ := newContext("/", nil)
	c.SetParamNames("id", "pid")
	c.SetParamValues("3", "41")
	eventID, pid, err := participantPath(c)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), eventID)
	assert.Equal(t, uint64(41), pid)

	c.SetParamValues("x", "41")
	_, _, err = participantPath(c)
	assert.Error(t, err)
}
