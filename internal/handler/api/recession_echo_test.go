package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"RecessionLens/internal/domain/errs"
	models "RecessionLens/internal/domain/models"

	"github.com/labstack/echo/v4"
)

type fakeForecaster struct {
	got []models.IndicatorRecord
	err error
}

func (f *fakeForecaster) Forecast(_ context.Context, records []models.IndicatorRecord) (*models.PredictionRecord, error) {
	f.got = records
	if f.err != nil {
		return nil, f.err
	}
	return &models.PredictionRecord{
		ID:          "p-1",
		Date:        time.Date(2020, 3, 1, 0, 0, 0, 0, time.UTC),
		Probability: 0.75,
		Label:       true,
		ArtifactID:  "a-1",
	}, nil
}

type fakeHistory struct {
	from, to time.Time
	limit    int
}

func (f *fakeHistory) History(_ context.Context, from, to time.Time, limit int) ([]*models.PredictionRecord, error) {
	f.from, f.to, f.limit = from, to, limit
	return []*models.PredictionRecord{{ID: "p-1"}}, nil
}

type fakeScheduler struct{}

func (fakeScheduler) ScheduleTrain(context.Context) (string, error) { return "job-7", nil }

func newTestServer(f *fakeForecaster, hist *fakeHistory) *echo.Echo {
	e := echo.New()
	NewRecessionEchoHandler(nil, f, hist, fakeScheduler{}, nil, nil).RegisterRoutes(e)
	return e
}

func do(e *echo.Echo, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestPredictReturnsForecast(t *testing.T) {
	f := &fakeForecaster{}
	e := newTestServer(f, &fakeHistory{})

	body := `{"features":[
		{"date":"2020-01-01","cpi":1,"bond":2,"m3":3,"interest":4,"wti":5},
		{"date":"2020-02","cpi":1.5,"bond":2,"m3":3,"interest":4,"wti":5}]}`
	rec := do(e, http.MethodPost, "/api/predict", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Data models.PredictionResponse `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Data.Date != "2020-03-01" || resp.Data.Probability != 0.75 || !resp.Data.Label || resp.Data.ArtifactID != "a-1" {
		t.Fatalf("response = %+v", resp.Data)
	}
	if rec.Header().Get("X-Prediction-Id") != "p-1" {
		t.Fatalf("missing prediction id header")
	}
	if len(f.got) != 2 || f.got[1].CPI != 1.5 || !f.got[1].Date.Equal(time.Date(2020, 2, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("records = %+v", f.got)
	}
}

func TestPredictRejectsBadInput(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"empty", `{"features":[]}`},
		{"missing feature", `{"features":[{"cpi":1,"bond":2,"m3":3,"interest":4}]}`},
		{"bad date", `{"features":[{"date":"yesterday","cpi":1,"bond":2,"m3":3,"interest":4,"wti":5}]}`},
		{"malformed", `{"features":`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &fakeForecaster{}
			rec := do(newTestServer(f, &fakeHistory{}), http.MethodPost, "/api/predict", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
			}
			if f.got != nil {
				t.Fatalf("forecaster should not be called")
			}
		})
	}
}

func TestPredictMapsPipelineErrors(t *testing.T) {
	tests := []struct {
		err  error
		code int
	}{
		{errs.InsufficientData("predict", "3 records, need at least 12"), http.StatusUnprocessableEntity},
		{errs.Config("predict", "no model loaded"), http.StatusInternalServerError},
		{errs.Data("input", "duplicate date"), http.StatusBadRequest},
	}
	for _, tt := range tests {
		f := &fakeForecaster{err: tt.err}
		rec := do(newTestServer(f, &fakeHistory{}), http.MethodPost, "/api/predict",
			`{"features":[{"cpi":1,"bond":2,"m3":3,"interest":4,"wti":5}]}`)
		if rec.Code != tt.code {
			t.Fatalf("%v: status = %d", tt.err, rec.Code)
		}
	}
}

func TestPredictionsParsesQuery(t *testing.T) {
	hist := &fakeHistory{}
	e := newTestServer(&fakeForecaster{}, hist)

	rec := do(e, http.MethodGet, "/api/predictions?limit=5&from=2020-01-01&to=2021-06", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
	if hist.limit != 5 || hist.from.Year() != 2020 || hist.to.Month() != time.June {
		t.Fatalf("history called with %+v", hist)
	}

	rec = do(e, http.MethodGet, "/api/predictions", "")
	if rec.Code != http.StatusOK || hist.limit != 50 || !hist.from.IsZero() {
		t.Fatalf("defaults: status = %d, history = %+v", rec.Code, hist)
	}

	for _, q := range []string{"limit=0x", "limit=5000", "from=soon"} {
		if rec := do(e, http.MethodGet, "/api/predictions?"+q, ""); rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: status = %d", q, rec.Code)
		}
	}
}

func TestTrainAndHealth(t *testing.T) {
	e := newTestServer(&fakeForecaster{}, &fakeHistory{})

	rec := do(e, http.MethodPost, "/api/train", "")
	if rec.Code != http.StatusAccepted || !strings.Contains(rec.Body.String(), "job-7") {
		t.Fatalf("train: status = %d body = %s", rec.Code, rec.Body.String())
	}
	rec = do(e, http.MethodGet, "/test", "")
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("health: status = %d body = %s", rec.Code, rec.Body.String())
	}
}
