package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"RecessionLens/internal/domain/models"
	"RecessionLens/internal/domain/repository"
	pkgch "RecessionLens/pkg/clickhouse"
	pkgkafka "RecessionLens/pkg/kafka"
	applogger "RecessionLens/pkg/logger"
)

// CHPredictionStore implements PredictionStore for ClickHouse.
type CHPredictionStore struct {
	ch    *pkgch.Client
	db    *sql.DB
	table string
	l     *applogger.Logger
}

// NewCHPredictionStore creates ClickHouse prediction storage.
func NewCHPredictionStore(ch *pkgch.Client, table string) *CHPredictionStore {
	return &CHPredictionStore{ch: ch, db: ch.DB(), table: table}
}

// SetLogger injects a structured logger.
func (s *CHPredictionStore) SetLogger(l *applogger.Logger) { s.l = l }

var _ repository.PredictionStore = (*CHPredictionStore)(nil)

func (s *CHPredictionStore) Init(ctx context.Context) error {
	return s.ch.InitSchema(ctx, []string{fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    id          String,
    created_at  DateTime64(3),
    date        Date,
    probability Float64,
    label       UInt8,
    artifact_id String,
    features    String
) ENGINE = ReplacingMergeTree(created_at)
ORDER BY (date, id)`, s.table)})
}

const predictionColumns = "id, created_at, date, probability, label, artifact_id, features"

func (s *CHPredictionStore) Store(ctx context.Context, p *models.PredictionRecord) error {
	row, err := predictionRow(p)
	if err != nil {
		return err
	}
	q := fmt.Sprintf("INSERT INTO %s (%s) VALUES (?, ?, ?, ?, ?, ?, ?)", s.table, predictionColumns)
	_, err = s.db.ExecContext(ctx, q, row...)
	if err != nil && s.l != nil {
		s.l.Error("clickhouse store_prediction error",
			applogger.String("table", s.table),
			applogger.String("id", p.ID),
			applogger.Error(err),
		)
	}
	return err
}

func (s *CHPredictionStore) StoreBatch(ctx context.Context, ps []*models.PredictionRecord) error {
	if len(ps) == 0 {
		return nil
	}
	// Multi-row VALUES keeps each chunk to one round-trip.
	const chunkSize = 2000
	for start := 0; start < len(ps); start += chunkSize {
		end := start + chunkSize
		if end > len(ps) {
			end = len(ps)
		}
		values := make([]string, 0, end-start)
		args := make([]interface{}, 0, (end-start)*7)
		for _, p := range ps[start:end] {
			if p == nil || p.ID == "" {
				continue
			}
			row, err := predictionRow(p)
			if err != nil {
				return err
			}
			values = append(values, "(?, ?, ?, ?, ?, ?, ?)")
			args = append(args, row...)
		}
		if len(values) == 0 {
			continue
		}
		q := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s", s.table, predictionColumns, strings.Join(values, ","))
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			return err
		}
	}
	return nil
}

func predictionRow(p *models.PredictionRecord) ([]interface{}, error) {
	var feats []byte
	if len(p.Features) > 0 {
		var err error
		if feats, err = json.Marshal(p.Features); err != nil {
			return nil, fmt.Errorf("marshal features: %w", err)
		}
	}
	var label uint8
	if p.Label {
		label = 1
	}
	return []interface{}{
		p.ID,
		p.CreatedAt.UTC(),
		p.Date.UTC(),
		p.Probability,
		label,
		p.ArtifactID,
		string(feats),
	}, nil
}

// Recent returns predictions whose target date lies in [from, to], newest
// first. Zero bounds are open.
func (s *CHPredictionStore) Recent(ctx context.Context, from, to time.Time, limit int) ([]*models.PredictionRecord, error) {
	q, args := recentQuery(s.table, from, to, limit)
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.PredictionRecord
	for rows.Next() {
		var (
			p     models.PredictionRecord
			label uint8
			feats string
		)
		if err := rows.Scan(&p.ID, &p.CreatedAt, &p.Date, &p.Probability, &label, &p.ArtifactID, &feats); err != nil {
			return nil, err
		}
		p.Label = label == 1
		if feats != "" {
			if err := json.Unmarshal([]byte(feats), &p.Features); err != nil {
				return nil, fmt.Errorf("decode features of %s: %w", p.ID, err)
			}
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}

func recentQuery(table string, from, to time.Time, limit int) (string, []interface{}) {
	var (
		where []string
		args  []interface{}
	)
	if !from.IsZero() {
		where = append(where, "date >= ?")
		args = append(args, from.UTC())
	}
	if !to.IsZero() {
		where = append(where, "date <= ?")
		args = append(args, to.UTC())
	}
	q := fmt.Sprintf("SELECT %s FROM %s FINAL", predictionColumns, table)
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY date DESC, created_at DESC LIMIT ?"
	args = append(args, limit)
	return q, args
}

func (s *CHPredictionStore) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *CHPredictionStore) Close() error {
	return nil // Managed by pkg
}

// KafkaPredictionPublisher implements PredictionPublisher for Kafka.
type KafkaPredictionPublisher struct {
	producer *pkgkafka.Producer
	topic    string
}

// NewKafkaPredictionPublisher creates Kafka publisher.
func NewKafkaPredictionPublisher(producer *pkgkafka.Producer, topic string) *KafkaPredictionPublisher {
	return &KafkaPredictionPublisher{producer: producer, topic: topic}
}

var _ repository.PredictionPublisher = (*KafkaPredictionPublisher)(nil)

func (p *KafkaPredictionPublisher) Publish(ctx context.Context, r *models.PredictionRecord) error {
	return p.producer.PublishWithHeaders(ctx, p.topic, predictionKey(r), r, map[string]string{pkgkafka.TraceHeader: r.ID})
}

func (p *KafkaPredictionPublisher) PublishBatch(ctx context.Context, rs []*models.PredictionRecord) error {
	if len(rs) == 0 {
		return nil
	}
	msgs := make([]pkgkafka.Message, len(rs))
	for i, r := range rs {
		msgs[i] = pkgkafka.Message{
			Key:     predictionKey(r),
			Value:   r,
			Headers: map[string]string{pkgkafka.TraceHeader: r.ID},
		}
	}
	return p.producer.PublishBatch(ctx, p.topic, msgs)
}

// predictionKey partitions by target month so updates for one month stay ordered.
func predictionKey(r *models.PredictionRecord) []byte {
	return []byte(r.Date.UTC().Format("2006-01"))
}

func (p *KafkaPredictionPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}
