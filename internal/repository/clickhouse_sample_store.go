package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"TradePilot/internal/domain/models"
	domrepo "TradePilot/internal/domain/repository"
	pkgch "TradePilot/pkg/clickhouse"
	applogger "TradePilot/pkg/logger"
)

// CHSampleStore implements SampleStore backed by ClickHouse. Samples are the
// raw material for training windows, so reads come back oldest first.
type CHSampleStore struct {
	ch       *pkgch.Client
	db       *sql.DB
	database string
	log      *applogger.Logger
}

// NewCHSampleStore creates a market sample archive on the given client.
func NewCHSampleStore(ch *pkgch.Client, database string, log *applogger.Logger) *CHSampleStore {
	if database == "" {
		database = "tradepilot"
	}
	return &CHSampleStore{
		ch:       ch,
		db:       ch.DB(),
		database: database,
		log:      log.Component("sample_store"),
	}
}

var _ domrepo.SampleStore = (*CHSampleStore)(nil)

func (s *CHSampleStore) Init(ctx context.Context) error {
	stmts := []string{
		fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", s.database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.market_samples (
			symbol String,
			bid Float64,
			ask Float64,
			volume Float64,
			ts DateTime64(3)
		) ENGINE=MergeTree ORDER BY (symbol, ts)`, s.database),
	}
	if err := s.ch.InitSchema(ctx, stmts); err != nil {
		return fmt.Errorf("sample schema: %w", err)
	}
	return nil
}

func (s *CHSampleStore) StoreBatch(ctx context.Context, samples []models.MarketSample) error {
	if len(samples) == 0 {
		return nil
	}

	// Multi-row VALUES keeps round trips down; 2000 rows per statement.
	const chunkSize = 2000
	for start := 0; start < len(samples); start += chunkSize {
		end := start + chunkSize
		if end > len(samples) {
			end = len(samples)
		}

		values := make([]string, 0, end-start)
		args := make([]interface{}, 0, (end-start)*5)
		for _, m := range samples[start:end] {
			if m.Symbol == "" || m.Timestamp.IsZero() {
				continue
			}
			values = append(values, "(?, ?, ?, ?, ?)")
			args = append(args, m.Symbol, m.Bid, m.Ask, m.Volume, m.Timestamp)
		}
		if len(values) == 0 {
			continue
		}

		q := fmt.Sprintf("INSERT INTO %s.market_samples (symbol, bid, ask, volume, ts) VALUES %s",
			s.database, strings.Join(values, ","))
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			return fmt.Errorf("insert samples: %w", err)
		}
	}
	s.log.Debug("samples archived", applogger.Int("rows", len(samples)))
	return nil
}

// LatestN returns up to n most recent samples for the symbol, oldest first.
func (s *CHSampleStore) LatestN(ctx context.Context, symbol string, n int) ([]models.MarketSample, error) {
	if n <= 0 {
		return nil, nil
	}

	q := fmt.Sprintf(`SELECT symbol, bid, ask, volume, ts
		FROM %s.market_samples WHERE symbol = ? ORDER BY ts DESC LIMIT ?`, s.database)
	rows, err := s.db.QueryContext(ctx, q, symbol, n)
	if err != nil {
		return nil, fmt.Errorf("query samples: %w", err)
	}
	defer rows.Close()

	out := make([]models.MarketSample, 0, n)
	for rows.Next() {
		var m models.MarketSample
		if err := rows.Scan(&m.Symbol, &m.Bid, &m.Ask, &m.Volume, &m.Timestamp); err != nil {
			return nil, fmt.Errorf("scan sample: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}

	// reverse to ascending time for window building
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (s *CHSampleStore) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *CHSampleStore) Close() error {
	return nil // connection owned by pkg client
}

// CHTrainingLog implements TrainingLog backed by ClickHouse. One row per
// finished training run, for offline accuracy tracking across retrains.
type CHTrainingLog struct {
	ch       *pkgch.Client
	db       *sql.DB
	database string
}

// NewCHTrainingLog creates the training run archive on the given client.
func NewCHTrainingLog(ch *pkgch.Client, database string) *CHTrainingLog {
	if database == "" {
		database = "tradepilot"
	}
	return &CHTrainingLog{ch: ch, db: ch.DB(), database: database}
}

var _ domrepo.TrainingLog = (*CHTrainingLog)(nil)

// Init ensures the training run table exists.
func (l *CHTrainingLog) Init(ctx context.Context) error {
	stmts := []string{
		fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", l.database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.training_runs (
			job_id String,
			model_type String,
			symbol String,
			mode String,
			status String,
			epochs_run UInt32,
			final_accuracy Float64,
			result_version Int32,
			promoted UInt8,
			error String,
			created_at DateTime64(3),
			finished_at DateTime64(3)
		) ENGINE=MergeTree ORDER BY (symbol, model_type, created_at)`, l.database),
	}
	if err := l.ch.InitSchema(ctx, stmts); err != nil {
		return fmt.Errorf("training log schema: %w", err)
	}
	return nil
}

func (l *CHTrainingLog) Record(ctx context.Context, job *models.TrainingJob) error {
	if job == nil || job.ID == "" {
		return fmt.Errorf("record training run: missing job id")
	}

	var promoted uint8
	if job.Promoted {
		promoted = 1
	}
	finished := job.CreatedAt
	if job.FinishedAt != nil {
		finished = *job.FinishedAt
	}

	q := fmt.Sprintf(`INSERT INTO %s.training_runs
		(job_id, model_type, symbol, mode, status, epochs_run, final_accuracy, result_version, promoted, error, created_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, l.database)
	_, err := l.db.ExecContext(ctx, q,
		job.ID,
		string(job.ModelType),
		job.Symbol,
		string(job.Mode),
		string(job.Status),
		uint32(len(job.History)),
		job.FinalAccuracy,
		int32(job.ResultVersion),
		promoted,
		job.Error,
		job.CreatedAt,
		finished,
	)
	if err != nil {
		return fmt.Errorf("insert training run: %w", err)
	}
	return nil
}
