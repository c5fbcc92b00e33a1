package api

import (
	"net/http"
	"time"

	models "RecessionLens/internal/domain/models"
	"RecessionLens/internal/domain/service"
	xhttp "RecessionLens/pkg/http"
	xlogger "RecessionLens/pkg/logger"
	"RecessionLens/pkg/logstream"
	xutil "RecessionLens/pkg/util"

	"github.com/labstack/echo/v4"
)

// RecessionEchoHandler serves forecasts, prediction history, retraining and
// live logs.
type RecessionEchoHandler struct {
	logger    *xlogger.Logger
	forecast  service.Forecaster
	history   service.PredictionHistory
	scheduler service.TrainScheduler
	hub       *logstream.Hub
	limit     echo.MiddlewareFunc
}

// NewRecessionEchoHandler wires the handler. scheduler, hub and limit may be
// nil, which leaves the matching routes unregistered or unthrottled.
func NewRecessionEchoHandler(
	logger *xlogger.Logger,
	forecast service.Forecaster,
	history service.PredictionHistory,
	scheduler service.TrainScheduler,
	hub *logstream.Hub,
	limit echo.MiddlewareFunc,
) *RecessionEchoHandler {
	if logger == nil {
		logger = xlogger.Nop()
	}
	return &RecessionEchoHandler{
		logger:    logger,
		forecast:  forecast,
		history:   history,
		scheduler: scheduler,
		hub:       hub,
		limit:     limit,
	}
}

func (h *RecessionEchoHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/test", h.Health)

	g := e.Group("/api")
	var mw []echo.MiddlewareFunc
	if h.limit != nil {
		mw = append(mw, h.limit)
	}
	g.POST("/predict", h.Predict, mw...)
	g.GET("/predictions", h.Predictions)
	if h.scheduler != nil {
		g.POST("/train", h.Train, mw...)
	}

	if h.hub != nil {
		e.GET("/logs", h.hub.ServeSSE)
		e.GET("/ws/logs", h.hub.ServeWS)
	}
}

func (h *RecessionEchoHandler) Health(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

func (h *RecessionEchoHandler) Predict(c echo.Context) error {
	req := &models.PredictRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	records, appErr := toRecords(req.Features)
	if appErr != nil {
		return xhttp.BadRequestResponse(c, []*xhttp.AppError{appErr})
	}

	rec, err := h.forecast.Forecast(c.Request().Context(), records)
	if err != nil {
		h.logger.Error("predict usecase error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	c.Response().Header().Set("X-Prediction-Id", rec.ID)
	return xhttp.SuccessResponse(c, models.PredictionResponse{
		Date:        formatDate(rec.Date),
		Probability: rec.Probability,
		Label:       rec.Label,
		ArtifactID:  rec.ArtifactID,
	})
}

func (h *RecessionEchoHandler) Predictions(c echo.Context) error {
	req := &models.HistoryRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	for name, dst := range map[string]*time.Time{"from": &req.From, "to": &req.To} {
		raw := c.QueryParam(name)
		if raw == "" {
			continue
		}
		t, ok := xutil.ParseTime(raw)
		if !ok {
			return xhttp.BadRequestResponse(c, []*xhttp.AppError{
				xhttp.NewAppError("ERR_INVALID_DATE", name, "unparseable date", http.StatusBadRequest).WithParam("value", raw),
			})
		}
		*dst = t
	}

	rows, err := h.history.History(c.Request().Context(), req.From, req.To, req.Limit)
	if err != nil {
		h.logger.Error("history usecase error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=15")
	return xhttp.ListResponse(c, rows, int64(len(rows)))
}

func (h *RecessionEchoHandler) Train(c echo.Context) error {
	id, err := h.scheduler.ScheduleTrain(c.Request().Context())
	if err != nil {
		h.logger.Error("train enqueue error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.DataResponse(c, http.StatusAccepted, map[string]string{"job_id": id})
}

// toRecords converts request rows, all dated or all undated.
func toRecords(rows []models.FeatureRow) ([]models.IndicatorRecord, *xhttp.AppError) {
	out := make([]models.IndicatorRecord, len(rows))
	for i, r := range rows {
		rec := models.IndicatorRecord{
			CPI:      *r.CPI,
			Bond:     *r.Bond,
			M3:       *r.M3,
			Interest: *r.Interest,
			WTI:      *r.WTI,
		}
		if r.Date != "" {
			d, ok := xutil.ParseDate(r.Date)
			if !ok {
				return nil, xhttp.NewAppError("ERR_INVALID_DATE", "date", "unparseable date", http.StatusBadRequest).
					WithParam("row", i).WithParam("value", r.Date)
			}
			rec.Date = d
		}
		out[i] = rec
	}
	return out, nil
}

func formatDate(d time.Time) string {
	if d.IsZero() {
		return ""
	}
	return xutil.FormatDate(d)
}
