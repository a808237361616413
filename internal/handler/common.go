package handler // handler defines http handlers

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/stw-baltyk/baltyk-manager/internal/i18n"
	"github.com/stw-baltyk/baltyk-manager/internal/middleware"
	"github.com/stw-baltyk/baltyk-manager/internal/model"
	"github.com/stw-baltyk/baltyk-manager/internal/report"
	"github.com/stw-baltyk/baltyk-manager/internal/repository"
)

// requestTimeout bounds the database work of one request.
const requestTimeout = 5 * time.Second

func reqCtx(c echo.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request().Context(), requestTimeout)
}

// apiError is a request problem detected in the handler itself (bad path
// parameter, unparsable body). It carries its own status.
type apiError struct {
	status int
	code   string
	detail string
}

func (e *apiError) Error() string { return e.code }

func badRequest(code, detail string) error {
	return &apiError{status: http.StatusBadRequest, code: code, detail: detail}
}

// fail maps err to the JSON error body. Classified errors keep their status;
// anything else is logged and reported as 500 with a generic message.
func fail(c echo.Context, err error) error {
	lang := i18n.Lang(c.Request().Header.Get("Accept-Language"))

	var ae *apiError
	if errors.As(err, &ae) {
		body := echo.Map{"error": ae.code, "message": i18n.Message(lang, ae.code)}
		if ae.detail != "" {
			body["detail"] = ae.detail
		}
		return c.JSON(ae.status, body)
	}

	var status int
	switch {
	case errors.Is(err, repository.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, repository.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, repository.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, repository.ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, context.DeadlineExceeded):
		log.Printf("handler: %s %s: %v", c.Request().Method, c.Path(), err)
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "timeout", "message": i18n.Message(lang, "internal")})
	default:
		log.Printf("handler: %s %s: %v", c.Request().Method, c.Path(), err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal", "message": i18n.Message(lang, "internal")})
	}

	code := repository.Code(err)
	body := echo.Map{"error": code, "message": i18n.Message(lang, code)}
	var coded *repository.Coded
	if status == http.StatusBadRequest && !errors.As(err, &coded) {
		// Ad-hoc field errors: "field: reason: validation".
		body["detail"] = strings.TrimSuffix(err.Error(), ": "+repository.ErrValidation.Error())
	}
	var overlap *repository.OverlapError
	if errors.As(err, &overlap) {
		body["conflicts"] = overlap.Conflicts
	}
	return c.JSON(status, body)
}

// getUserID returns the authenticated user's id.
func getUserID(c echo.Context) (uint64, error) {
	if id := middleware.UserID(c); id != 0 {
		return id, nil
	}
	return 0, errors.New("invalid user_id in context")
}

// parseID reads a positive numeric path parameter.
func parseID(c echo.Context, name string) (uint64, error) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		return 0, badRequest("invalid_id", name)
	}
	return id, nil
}

// bind decodes the JSON body into v.
func bind(c echo.Context, v any) error {
	if err := c.Bind(v); err != nil {
		return badRequest("invalid_body", "")
	}
	return nil
}

// pageRequest reads page and per_page.
func pageRequest(c echo.Context) model.PageRequest {
	page, _ := strconv.Atoi(c.QueryParam("page"))
	perPage, _ := strconv.Atoi(c.QueryParam("per_page"))
	return model.NewPageRequest(page, perPage)
}

// queryUint reads an optional numeric query parameter; absent means 0.
func queryUint(c echo.Context, name string) (uint64, error) {
	s := c.QueryParam(name)
	if s == "" {
		return 0, nil
	}
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, badRequest("invalid_id", name)
	}
	return n, nil
}

// queryInt reads an optional integer query parameter.
func queryInt(c echo.Context, name string) (int, error) {
	s := c.QueryParam(name)
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, badRequest("bad_request", name)
	}
	return n, nil
}

// queryBool accepts true/1/yes.
func queryBool(c echo.Context, name string) bool {
	switch strings.ToLower(c.QueryParam(name)) {
	case "1", "true", "yes":
		return true
	}
	return false
}

// parseDate parses an optional YYYY-MM-DD value.
func parseDate(field string, s *string) (*time.Time, error) {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil, nil
	}
	d, err := model.ParseDate(strings.TrimSpace(*s))
	if err != nil {
		return nil, badRequest("invalid_date", field)
	}
	return &d, nil
}

// queryDate parses an optional YYYY-MM-DD query parameter.
func queryDate(c echo.Context, name string) (*time.Time, error) {
	s := c.QueryParam(name)
	return parseDate(name, &s)
}

// dateTimeLayouts are accepted for instants. Values without an offset are
// read in the association's time zone.
var dateTimeLayouts = []string{"2006-01-02T15:04", "2006-01-02T15:04:05", "2006-01-02 15:04", "2006-01-02"}

// parseDateTime parses an RFC 3339 instant or a local wall-clock time.
func parseDateTime(field, s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	if loc == nil {
		loc = time.UTC
	}
	for _, layout := range dateTimeLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, badRequest("invalid_date", field)
}

func optDateTime(field string, s *string, loc *time.Location) (*time.Time, error) {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil, nil
	}
	t, err := parseDateTime(field, *s, loc)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// wantsCSV reports format=csv; any other value but json is rejected.
func wantsCSV(c echo.Context) (bool, error) {
	switch strings.ToLower(c.QueryParam("format")) {
	case "", "json":
		return false, nil
	case "csv":
		return true, nil
	}
	return false, badRequest("invalid_format", c.QueryParam("format"))
}

// sendCSV streams t as an attachment. An empty report is 404.
func sendCSV(c echo.Context, t report.Table) error {
	if t.Empty() {
		return fail(c, repository.ErrReportEmpty)
	}
	h := c.Response().Header()
	h.Set(echo.HeaderContentType, report.ContentType)
	h.Set(echo.HeaderContentDisposition, `attachment; filename="`+t.Filename+`"`)
	c.Response().WriteHeader(http.StatusOK)
	return t.WriteCSV(c.Response())
}
