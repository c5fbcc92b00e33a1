package usecase

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"RecessionLens/internal/domain/errs"
	"RecessionLens/internal/domain/models"
	"RecessionLens/internal/services/artifact"
	"RecessionLens/internal/services/evaluation"
	"RecessionLens/internal/services/features"
	applogger "RecessionLens/pkg/logger"
	xutil "RecessionLens/pkg/util"
)

// Diagnostics is the data behind the diagnostic charts.
type Diagnostics struct {
	Correlation    evaluation.Correlation    `json:"correlation"`
	CPI            *evaluation.Decomposition `json:"cpi_decomposition,omitempty"`
	MonthOverMonth []evaluation.Change       `json:"month_over_month"`
}

// EvaluationResult is the outcome of scoring a model against labeled history.
type EvaluationResult struct {
	ArtifactID  string                    `json:"artifact_id"`
	Training    *artifact.TrainingReport  `json:"training,omitempty"`
	Metrics     evaluation.Report         `json:"metrics"`
	Diagnostics Diagnostics               `json:"diagnostics"`
	Predictions []models.PredictionResult `json:"-"`
	Truth       []int                     `json:"-"`
}

// Evaluator scores a predictor on every window of a history and optionally
// exports the result.
type Evaluator struct {
	exportDir string
	threshold float64
	l         *applogger.Logger
}

// NewEvaluator creates an evaluator writing to exportDir; empty disables export.
func NewEvaluator(exportDir string) *Evaluator {
	return &Evaluator{exportDir: exportDir, threshold: models.DecisionThreshold}
}

// SetLogger injects a structured logger.
func (e *Evaluator) SetLogger(l *applogger.Logger) { e.l = l }

// Evaluate labels records, predicts every window and compares the two. Truth
// for window i is the label of record i+L, the record the window predicts.
func (e *Evaluator) Evaluate(ctx context.Context, p *Predictor, records []models.IndicatorRecord) (*EvaluationResult, error) {
	series, err := features.Label(records)
	if err != nil {
		return nil, err
	}
	preds, err := p.Predict(records)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	L := p.WindowLength()
	truth := series.Labels()[L:]
	probs := make([]float64, len(preds))
	for i, r := range preds {
		probs[i] = r.Probability
	}
	rep, err := evaluation.Evaluate(truth, probs, e.threshold)
	if err != nil {
		return nil, err
	}

	res := &EvaluationResult{
		ArtifactID:  p.ArtifactID(),
		Training:    p.Bundle().Report,
		Metrics:     rep,
		Predictions: preds,
		Truth:       truth,
	}
	res.Diagnostics, err = e.diagnose(records[L:], evaluation.Labels(probs), records)
	if err != nil {
		return nil, err
	}

	if e.l != nil {
		fields := []applogger.Field{
			applogger.String("artifact_id", res.ArtifactID),
			applogger.Int("windows", rep.Length),
			applogger.Float64("accuracy", rep.Accuracy),
			applogger.Int("tp", rep.TP()),
			applogger.Int("fp", rep.FP()),
			applogger.Int("tn", rep.TN()),
			applogger.Int("fn", rep.FN()),
		}
		if rep.AUC != nil {
			fields = append(fields, applogger.Float64("auc", *rep.AUC))
		}
		e.l.Info("evaluation done", fields...)
	}

	if e.exportDir != "" {
		if err := e.export(res); err != nil {
			return nil, err
		}
	}
	return res, nil
}

func (e *Evaluator) diagnose(windowed []models.IndicatorRecord, predicted []int, all []models.IndicatorRecord) (Diagnostics, error) {
	var d Diagnostics
	corr, err := evaluation.CorrelationMatrix(windowed, predicted)
	switch {
	case err == nil:
		d.Correlation = corr
	case errs.KindOf(err) == errs.ErrInsufficientData:
		e.skip("correlation", err)
	default:
		return d, err
	}
	dec, err := evaluation.DecomposeCPI(all)
	switch {
	case err == nil:
		d.CPI = &dec
	case errs.KindOf(err) == errs.ErrInsufficientData:
		e.skip("cpi decomposition", err)
	default:
		return d, err
	}
	d.MonthOverMonth = evaluation.MonthOverMonth(all)
	return d, nil
}

func (e *Evaluator) skip(what string, err error) {
	if e.l != nil {
		e.l.Warn("diagnostic skipped", applogger.String("diagnostic", what), applogger.Error(err))
	}
}

// export writes report.json and predictions.csv into the export directory.
func (e *Evaluator) export(res *EvaluationResult) error {
	if err := os.MkdirAll(e.exportDir, 0o755); err != nil {
		return fmt.Errorf("create export dir: %w", err)
	}
	report, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	if err := os.WriteFile(filepath.Join(e.exportDir, "report.json"), report, 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}

	f, err := os.Create(filepath.Join(e.exportDir, "predictions.csv"))
	if err != nil {
		return fmt.Errorf("create predictions.csv: %w", err)
	}
	defer f.Close()
	if err := WritePredictionsCSV(f, res.Predictions, res.Truth); err != nil {
		return err
	}
	return f.Close()
}

// WritePredictionsCSV writes date, probability, label and, when truth is
// given, the true label for each prediction.
func WritePredictionsCSV(out io.Writer, preds []models.PredictionResult, truth []int) error {
	w := csv.NewWriter(out)
	header := []string{"date", "probability", "label"}
	if truth != nil {
		header = append(header, "truth")
	}
	if err := w.Write(header); err != nil {
		return fmt.Errorf("write predictions: %w", err)
	}
	for i, p := range preds {
		row := []string{formatDate(p.Date), strconv.FormatFloat(p.Probability, 'f', 6, 64), strconv.Itoa(p.LabelInt())}
		if truth != nil {
			row = append(row, strconv.Itoa(truth[i]))
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("write predictions: %w", err)
		}
	}
	w.Flush()
	return w.Error()
}

func formatDate(d time.Time) string {
	if d.IsZero() {
		return ""
	}
	return xutil.FormatDate(d)
}
