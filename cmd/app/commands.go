package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"RecessionLens/internal/di"
	"RecessionLens/internal/domain/errs"
	"RecessionLens/internal/domain/models"
	domrepo "RecessionLens/internal/domain/repository"
	"RecessionLens/internal/repository"
	"RecessionLens/internal/services/features"
	"RecessionLens/internal/usecase"
	"RecessionLens/pkg/config"
	applogger "RecessionLens/pkg/logger"
	"RecessionLens/pkg/logstream"
	xutil "RecessionLens/pkg/util"
)

func newFlagSet(name string) *flag.FlagSet {
	return flag.NewFlagSet(name, flag.ContinueOnError)
}

// parse turns flag errors into config errors so they exit with the config code.
func parse(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		return errs.Config("cli", "%s", err)
	}
	return nil
}

func runTrain(ctx context.Context, cfg *config.Config, args []string) error {
	fs := newFlagSet("train")
	input := fs.String("input", "", "indicator CSV (overrides pipeline.input_path)")
	if err := parse(fs, args); err != nil {
		return err
	}
	if *input != "" {
		cfg.Pipeline.InputPath = *input
	}
	if err := cfg.RequireInput(); err != nil {
		return err
	}

	p, err := di.InitializePipeline(cfg)
	if err != nil {
		return err
	}
	defer p.Close()

	records, err := p.Source.Load(ctx)
	if err != nil {
		return err
	}
	series, err := features.Label(records)
	if err != nil {
		return err
	}
	bundle, err := p.Trainer.Train(ctx, series)
	if err != nil {
		return err
	}
	return writeJSON(os.Stdout, bundle.Report, map[string]interface{}{
		"artifact_id":        bundle.ID,
		"scaler_fingerprint": bundle.ScalerFingerprint,
	})
}

func runPredict(ctx context.Context, cfg *config.Config, args []string) error {
	fs := newFlagSet("predict")
	input := fs.String("input", "", "indicator CSV (overrides pipeline.input_path)")
	next := fs.Bool("next", false, "predict only the month after the last record")
	out := fs.String("out", "", "write predictions CSV to this file instead of stdout")
	if err := parse(fs, args); err != nil {
		return err
	}
	if *input != "" {
		cfg.Pipeline.InputPath = *input
	}
	if err := cfg.RequireInput(); err != nil {
		return err
	}

	p, err := di.InitializePipeline(cfg)
	if err != nil {
		return err
	}
	defer p.Close()

	pred, records, err := loadPredictor(ctx, p)
	if err != nil {
		return err
	}
	if *next {
		res, err := pred.PredictNext(records)
		if err != nil {
			return err
		}
		return writeJSON(os.Stdout, models.PredictionResponse{
			Date:        formatDate(res.Date),
			Probability: res.Probability,
			Label:       res.Label,
			ArtifactID:  pred.ArtifactID(),
		}, nil)
	}

	results, err := pred.Predict(records)
	if err != nil {
		return err
	}
	w, closeOut, err := output(*out)
	if err != nil {
		return err
	}
	if err := usecase.WritePredictionsCSV(w, results, nil); err != nil {
		closeOut()
		return err
	}
	return closeOut()
}

func runEvaluate(ctx context.Context, cfg *config.Config, args []string) error {
	fs := newFlagSet("evaluate")
	input := fs.String("input", "", "indicator CSV (overrides pipeline.input_path)")
	export := fs.String("export", "", "export directory (overrides export.dir)")
	if err := parse(fs, args); err != nil {
		return err
	}
	if *input != "" {
		cfg.Pipeline.InputPath = *input
	}
	if *export != "" {
		cfg.Export.Dir = *export
	}
	if err := cfg.RequireInput(); err != nil {
		return err
	}

	p, err := di.InitializePipeline(cfg)
	if err != nil {
		return err
	}
	defer p.Close()

	pred, records, err := loadPredictor(ctx, p)
	if err != nil {
		return err
	}
	res, err := p.Evaluator.Evaluate(ctx, pred, records)
	if err != nil {
		return err
	}
	return writeJSON(os.Stdout, res.Metrics, map[string]interface{}{"artifact_id": res.ArtifactID})
}

func runIngest(ctx context.Context, cfg *config.Config, args []string) error {
	fs := newFlagSet("ingest")
	input := fs.String("input", "", "indicator CSV to load (defaults to pipeline.input_path)")
	if err := parse(fs, args); err != nil {
		return err
	}
	path := *input
	if path == "" {
		path = cfg.Pipeline.InputPath
	}
	if path == "" {
		return errs.Config("ingest", "-input or pipeline.input_path is required")
	}

	src := repository.NewCSVSource(path)
	records, err := src.Load(ctx)
	if err != nil {
		return err
	}

	// ingest always writes to the ClickHouse indicator table
	cfg.Source.Type = string(domrepo.SourceClickHouse)
	p, err := di.InitializePipeline(cfg)
	if err != nil {
		return err
	}
	defer p.Close()
	if p.Indicator == nil {
		return errs.Config("ingest", "clickhouse is not configured")
	}

	start := time.Now()
	if err := p.Indicator.Upsert(ctx, records); err != nil {
		return err
	}
	p.Logger.Info("ingest done",
		applogger.String("input", path),
		applogger.Int("records", len(records)),
		applogger.Duration("duration", time.Since(start)),
	)
	return nil
}

func runServe(ctx context.Context, cfg *config.Config, args []string) error {
	fs := newFlagSet("serve")
	port := fs.Int("port", 0, "listen port (overrides server.port)")
	if err := parse(fs, args); err != nil {
		return err
	}
	if *port > 0 {
		cfg.Server.Port = *port
	}

	// Wire DI: Initialize all dependencies
	app, err := di.InitializeApp(cfg)
	if err != nil {
		return err
	}

	// Run application (blocks until signal)
	return app.Run(ctx)
}

func runLogs(ctx context.Context, cfg *config.Config, args []string) error {
	fs := newFlagSet("logs")
	url := fs.String("url", fmt.Sprintf("ws://localhost:%d/ws/logs", cfg.Server.Port), "websocket log stream")
	if err := parse(fs, args); err != nil {
		return err
	}
	c := logstream.NewClient(*url, 2*time.Second, 30*time.Second)
	return c.Follow(ctx, func(line string) { fmt.Println(line) })
}

// loadPredictor loads the latest artifact and the history it scores.
func loadPredictor(ctx context.Context, p *di.Pipeline) (*usecase.Predictor, []models.IndicatorRecord, error) {
	bundle, err := p.Artifacts.Latest(ctx)
	if err != nil {
		return nil, nil, err
	}
	pred, err := usecase.NewPredictor(bundle)
	if err != nil {
		return nil, nil, err
	}
	records, err := p.Source.Load(ctx)
	if err != nil {
		return nil, nil, err
	}
	return pred, records, nil
}

func output(path string) (io.Writer, func() error, error) {
	if path == "" {
		return os.Stdout, func() error { return nil }, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("create %s: %w", path, err)
	}
	return f, f.Close, nil
}

// writeJSON prints v as indented JSON, merged with extra when both are objects.
func writeJSON(w io.Writer, v interface{}, extra map[string]interface{}) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	if len(extra) > 0 {
		m := map[string]interface{}{}
		if err := json.Unmarshal(b, &m); err == nil {
			for k, x := range extra {
				m[k] = x
			}
			if b, err = json.Marshal(m); err != nil {
				return fmt.Errorf("encode output: %w", err)
			}
		}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	var out interface{} = json.RawMessage(b)
	return enc.Encode(out)
}

func formatDate(d time.Time) string {
	if d.IsZero() {
		return ""
	}
	return xutil.FormatDate(d)
}
