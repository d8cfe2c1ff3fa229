package jobs

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"github.com/ghostmesh/gateway/pkg/models"
)

// CockroachConfig holds configuration for CockroachDB connection.
type CockroachConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	ConnectTimeout  time.Duration
}

// DefaultCockroachConfig returns default configuration.
func DefaultCockroachConfig() *CockroachConfig {
	return &CockroachConfig{
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		ConnMaxIdleTime: 2 * time.Minute,
		ConnectTimeout:  10 * time.Second,
	}
}

// CockroachStore implements Store using CockroachDB.
type CockroachStore struct {
	db *sql.DB
}

// NewCockroachStoreFromDSN creates a new Cockroach-backed job-log store.
func NewCockroachStoreFromDSN(dsn string, config *CockroachConfig) (*CockroachStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("dsn is required")
	}
	if config == nil {
		config = DefaultCockroachConfig()
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), config.ConnectTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &CockroachStore{db: db}, nil
}

// Close releases database resources.
func (s *CockroachStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Create stores a job log.
func (s *CockroachStore) Create(ctx context.Context, log *models.JobLog) error {
	if log == nil {
		return nil
	}
	if log.ID == "" {
		log.ID = uuid.NewString()
	}
	todoJSON, err := json.Marshal(log.TODOList)
	if err != nil {
		return fmt.Errorf("marshal todo list: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO job_logs (id, ghost_id, kind, status, transcript, handoff_note, todo_list, error_message, started_at, finished_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`,
		log.ID,
		log.GhostID,
		string(log.Kind),
		string(log.Status),
		log.Transcript,
		log.HandoffNote,
		todoJSON,
		nullableString(log.Error),
		log.StartedAt,
		nullTime(log.FinishedAt),
	)
	if err != nil {
		return fmt.Errorf("create job log: %w", err)
	}
	return nil
}

// Get returns a job log by id.
func (s *CockroachStore) Get(ctx context.Context, id string) (*models.JobLog, error) {
	if id == "" {
		return nil, nil
	}
	row := s.db.QueryRowContext(ctx, `
		SELECT id, ghost_id, kind, status, transcript, handoff_note, todo_list, error_message, started_at, finished_at
		FROM job_logs WHERE id = $1
	`, id)

	log, err := scanJobLog(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job log: %w", err)
	}
	return log, nil
}

// LastByKind returns the most recent log for ghostID/kind.
func (s *CockroachStore) LastByKind(ctx context.Context, ghostID string, kind models.JobKind) (*models.JobLog, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, ghost_id, kind, status, transcript, handoff_note, todo_list, error_message, started_at, finished_at
		FROM job_logs
		WHERE ghost_id = $1 AND kind = $2
		ORDER BY started_at DESC
		LIMIT 1
	`, ghostID, string(kind))

	log, err := scanJobLog(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("last job log: %w", err)
	}
	return log, nil
}

// List returns job logs in reverse chronological order.
func (s *CockroachStore) List(ctx context.Context, ghostID string, limit, offset int) ([]*models.JobLog, error) {
	query := `
		SELECT id, ghost_id, kind, status, transcript, handoff_note, todo_list, error_message, started_at, finished_at
		FROM job_logs`
	args := []any{}
	if ghostID != "" {
		args = append(args, ghostID)
		query += fmt.Sprintf(" WHERE ghost_id = $%d", len(args))
	}
	query += " ORDER BY started_at DESC"
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if offset > 0 {
		args = append(args, offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list job logs: %w", err)
	}
	defer rows.Close()

	var logs []*models.JobLog
	for rows.Next() {
		log, err := scanJobLog(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job log: %w", err)
		}
		logs = append(logs, log)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list job logs: %w", err)
	}
	return logs, nil
}

// Prune removes job logs older than olderThan.
func (s *CockroachStore) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan)
	result, err := s.db.ExecContext(ctx, `DELETE FROM job_logs WHERE started_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune job logs: %w", err)
	}
	return result.RowsAffected()
}

type jobLogScanner interface {
	Scan(dest ...any) error
}

func scanJobLog(scanner jobLogScanner) (*models.JobLog, error) {
	var (
		log          models.JobLog
		kind         string
		status       string
		todoJSON     []byte
		errorMessage sql.NullString
		finishedAt   sql.NullTime
	)
	if err := scanner.Scan(
		&log.ID,
		&log.GhostID,
		&kind,
		&status,
		&log.Transcript,
		&log.HandoffNote,
		&todoJSON,
		&errorMessage,
		&log.StartedAt,
		&finishedAt,
	); err != nil {
		return nil, err
	}
	log.Kind = models.JobKind(kind)
	log.Status = models.RunStatus(status)
	if len(todoJSON) > 0 && string(todoJSON) != "null" {
		if err := json.Unmarshal(todoJSON, &log.TODOList); err != nil {
			return nil, fmt.Errorf("unmarshal todo list: %w", err)
		}
	}
	if errorMessage.Valid {
		log.Error = errorMessage.String
	}
	if finishedAt.Valid {
		log.FinishedAt = finishedAt.Time
	}
	return &log, nil
}

func nullableString(value string) sql.NullString {
	if value == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: value, Valid: true}
}

func nullTime(value time.Time) sql.NullTime {
	if value.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: value, Valid: true}
}
