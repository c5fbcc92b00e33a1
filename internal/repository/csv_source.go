package repository

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"RecessionLens/internal/domain/errs"
	"RecessionLens/internal/domain/models"
	"RecessionLens/internal/services/features"
	applogger "RecessionLens/pkg/logger"
	xutil "RecessionLens/pkg/util"
)

// CSVSource loads indicator history from a CSV file with a date column and
// one column per feature, in any order. Header names are case-insensitive and
// extra columns are ignored.
type CSVSource struct {
	path string
	l    *applogger.Logger
}

func NewCSVSource(path string) *CSVSource {
	return &CSVSource{path: path}
}

// SetLogger injects a structured logger.
func (s *CSVSource) SetLogger(l *applogger.Logger) { s.l = l }

func (s *CSVSource) Load(ctx context.Context) ([]models.IndicatorRecord, error) {
	f, err := os.Open(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, errs.Config("load", "input file %s does not exist", s.path)
		}
		return nil, errs.Data("load", "open %s", s.path).Wrap(err)
	}
	defer f.Close()

	records, err := ReadCSV(ctx, f)
	if err != nil {
		return nil, err
	}
	if s.l != nil {
		s.l.Info("indicators loaded",
			applogger.String("path", s.path),
			applogger.Int("rows", len(records)),
		)
	}
	return records, nil
}

// ReadCSV parses indicator rows from r and checks that dates are strictly
// increasing.
func ReadCSV(ctx context.Context, r io.Reader) ([]models.IndicatorRecord, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errs.Data("load", "empty input")
		}
		return nil, errs.Data("load", "read header").Wrap(err)
	}
	cols, err := columnIndex(header)
	if err != nil {
		return nil, err
	}

	var out []models.IndicatorRecord
	for line := 2; ; line++ {
		if line%1024 == 0 && ctx.Err() != nil {
			return nil, ctx.Err()
		}
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, errs.Data("load", "line %d", line).Wrap(err)
		}
		rec, err := parseRow(row, cols, line)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if len(out) == 0 {
		return nil, errs.Data("load", "no data rows")
	}
	if err := features.CheckChronological(out); err != nil {
		return nil, err
	}
	return out, nil
}

const dateColumn = "date"

func columnIndex(header []string) (map[string]int, error) {
	cols := make(map[string]int, len(header))
	for i, h := range header {
		name := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		if _, dup := cols[name]; dup && name != "" {
			return nil, errs.Data("load", "duplicate column %q", name)
		}
		cols[name] = i
	}
	required := append([]string{dateColumn}, models.FeatureOrder()...)
	var missing []string
	for _, name := range required {
		if _, ok := cols[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, errs.Data("load", "missing columns %s", strings.Join(missing, ", "))
	}
	return cols, nil
}

func parseRow(row []string, cols map[string]int, line int) (models.IndicatorRecord, error) {
	var rec models.IndicatorRecord
	d, ok := xutil.ParseDate(row[cols[dateColumn]])
	if !ok {
		return rec, errs.Data("load", "line %d: unparseable date %q", line, row[cols[dateColumn]])
	}
	rec.Date = d
	for _, name := range models.FeatureOrder() {
		cell := row[cols[name]]
		v, present, err := xutil.ParseFloat(cell)
		if err != nil {
			return rec, errs.Data("load", "line %d: %s=%q is not a number", line, name, cell)
		}
		if !present {
			return rec, errs.Data("load", "line %d: %s is missing", line, name)
		}
		if math.IsInf(v, 0) {
			return rec, errs.Data("load", "line %d: %s is not finite", line, name)
		}
		rec.Set(name, v)
	}
	return rec, nil
}

// WriteCSV writes records with the canonical column order.
func WriteCSV(w io.Writer, records []models.IndicatorRecord) error {
	cw := csv.NewWriter(w)
	header := append([]string{dateColumn}, models.FeatureOrder()...)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	row := make([]string, len(header))
	for _, r := range records {
		row[0] = xutil.FormatDate(r.Date)
		for j, name := range models.FeatureOrder() {
			v, _ := r.Value(name)
			row[j+1] = fmt.Sprintf("%g", v)
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}
