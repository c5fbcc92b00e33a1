package http

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"RecessionLens/internal/domain/errs"

	"github.com/labstack/echo/v4"
)

type routes struct{}

func (routes) RegisterRoutes(e *echo.Echo) {
	e.GET("/boom", func(c echo.Context) error { panic("boom") })
	e.GET("/shape", func(c echo.Context) error {
		return AppErrorResponse(c, errs.Shape("predict", "window has 4 features, expected 5"))
	})
	e.GET("/plain", func(c echo.Context) error {
		return AppErrorResponse(c, errors.New("disk on fire"))
	})
}

func serve(s *Server, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestServerRecoversAndMapsErrors(t *testing.T) {
	s := NewServer(routes{}, WithMetrics(""))

	if rec := serve(s, "/boom"); rec.Code != http.StatusInternalServerError {
		t.Fatalf("panic: status = %d", rec.Code)
	}

	rec := serve(s, "/shape")
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("shape: status = %d", rec.Code)
	}
	if body := rec.Body.String(); !strings.Contains(body, "ERR_SHAPE") || !strings.Contains(body, `"stage":"predict"`) {
		t.Fatalf("shape body = %s", body)
	}

	rec = serve(s, "/plain")
	if rec.Code != http.StatusInternalServerError || strings.Contains(rec.Body.String(), "disk on fire") {
		t.Fatalf("plain: status = %d body = %s", rec.Code, rec.Body.String())
	}

	if rec := serve(s, "/metrics"); rec.Code != http.StatusNotFound {
		t.Fatalf("metrics disabled: status = %d", rec.Code)
	}
}

func TestServerExposesMetrics(t *testing.T) {
	s := NewServer(routes{}, WithMetrics("/metrics"))
	_ = serve(s, "/shape")
	rec := serve(s, "/metrics")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "http_requests_total") {
		t.Fatalf("metrics: status = %d", rec.Code)
	}
}

func TestServerCORS(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/shape", nil)
	req.Header.Set(echo.HeaderOrigin, "http://dashboard.local")

	rec := httptest.NewRecorder()
	NewServer(routes{}, WithMetrics("")).Echo().ServeHTTP(rec, req)
	if got := rec.Header().Get(echo.HeaderAccessControlAllowOrigin); got != "*" {
		t.Fatalf("allow origin = %q", got)
	}

	rec = httptest.NewRecorder()
	NewServer(routes{}, WithMetrics(""), WithCORS()).Echo().ServeHTTP(rec, req)
	if got := rec.Header().Get(echo.HeaderAccessControlAllowOrigin); got != "" {
		t.Fatalf("cors disabled but allow origin = %q", got)
	}
}
