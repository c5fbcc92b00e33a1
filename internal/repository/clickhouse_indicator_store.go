package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"RecessionLens/internal/domain/errs"
	"RecessionLens/internal/domain/models"
	"RecessionLens/internal/services/features"
	pkgch "RecessionLens/pkg/clickhouse"
	applogger "RecessionLens/pkg/logger"
)

// CHIndicatorStore keeps monthly indicator history in a ClickHouse
// ReplacingMergeTree keyed by date, so re-ingesting a month replaces it.
type CHIndicatorStore struct {
	ch    *pkgch.Client
	db    *sql.DB
	table string
	l     *applogger.Logger
}

func NewCHIndicatorStore(ch *pkgch.Client, table string) *CHIndicatorStore {
	return &CHIndicatorStore{ch: ch, db: ch.DB(), table: table}
}

// SetLogger injects a structured logger.
func (s *CHIndicatorStore) SetLogger(l *applogger.Logger) { s.l = l }

func (s *CHIndicatorStore) Init(ctx context.Context) error {
	return s.ch.InitSchema(ctx, []string{indicatorSchema(s.table)})
}

func indicatorSchema(table string) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    date      Date,
    cpi       Float64,
    bond      Float64,
    m3        Float64,
    interest  Float64,
    wti       Float64,
    ingested  DateTime DEFAULT now()
) ENGINE = ReplacingMergeTree(ingested)
ORDER BY date`, table)
}

// Load returns the full history in date order. FINAL collapses rows that a
// later ingest replaced but the merge has not yet folded.
func (s *CHIndicatorStore) Load(ctx context.Context) ([]models.IndicatorRecord, error) {
	start := time.Now()
	q := fmt.Sprintf(`
        SELECT date, cpi, bond, m3, interest, wti
        FROM %s FINAL
        ORDER BY date ASC
    `, s.table)
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		if s.l != nil {
			s.l.Error("clickhouse load_indicators query error",
				applogger.String("table", s.table),
				applogger.Error(err),
			)
		}
		return nil, errs.Data("load", "query %s", s.table).Wrap(err)
	}
	defer rows.Close()

	out := make([]models.IndicatorRecord, 0, 512)
	for rows.Next() {
		var r models.IndicatorRecord
		if err := rows.Scan(&r.Date, &r.CPI, &r.Bond, &r.M3, &r.Interest, &r.WTI); err != nil {
			if s.l != nil {
				s.l.Error("clickhouse load_indicators scan error",
					applogger.String("table", s.table),
					applogger.Error(err),
				)
			}
			return nil, errs.Data("load", "scan %s", s.table).Wrap(err)
		}
		r.Date = r.Date.UTC()
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Data("load", "rows %s", s.table).Wrap(err)
	}
	if len(out) == 0 {
		return nil, errs.Data("load", "table %s is empty", s.table)
	}
	if err := features.CheckChronological(out); err != nil {
		return nil, err
	}
	if s.l != nil {
		s.l.Info("clickhouse load_indicators ok",
			applogger.String("table", s.table),
			applogger.Int("rows", len(out)),
			applogger.Duration("duration_ms", time.Since(start)),
		)
	}
	return out, nil
}

// Upsert writes records in one batch. Every record must be dated.
func (s *CHIndicatorStore) Upsert(ctx context.Context, records []models.IndicatorRecord) error {
	rows, err := indicatorRows(records)
	if err != nil {
		return err
	}
	q := fmt.Sprintf("INSERT INTO %s (date, cpi, bond, m3, interest, wti) VALUES (?, ?, ?, ?, ?, ?)", s.table)
	if err := s.ch.InsertBatch(ctx, q, rows); err != nil {
		if s.l != nil {
			s.l.Error("clickhouse upsert_indicators error",
				applogger.String("table", s.table),
				applogger.Int("rows", len(rows)),
				applogger.Error(err),
			)
		}
		return fmt.Errorf("upsert indicators: %w", err)
	}
	if s.l != nil {
		s.l.Info("clickhouse upsert_indicators ok",
			applogger.String("table", s.table),
			applogger.Int("rows", len(rows)),
		)
	}
	return nil
}

func indicatorRows(records []models.IndicatorRecord) ([][]any, error) {
	rows := make([][]any, 0, len(records))
	for i, r := range records {
		if r.Date.IsZero() {
			return nil, errs.Data("ingest", "record %d has no date", i)
		}
		rows = append(rows, []any{r.Date.UTC(), r.CPI, r.Bond, r.M3, r.Interest, r.WTI})
	}
	return rows, nil
}

func (s *CHIndicatorStore) Close() error {
	return nil // pool owned by pkg/clickhouse
}
