package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/mikeboe/derma-research/pkg/clinic"
	"github.com/mikeboe/derma-research/pkg/database"
)

const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

type Job struct {
	ID           uuid.UUID       `json:"id"`
	ImageID      *int            `json:"image_id,omitempty"`
	PatientEmail string          `json:"patient_email,omitempty"`
	Label        string          `json:"label"`
	Topic        string          `json:"topic"`
	Prescription string          `json:"prescription,omitempty"`
	Status       string          `json:"status"`
	Report       *string         `json:"report,omitempty"`
	Config       json.RawMessage `json:"config,omitempty"`
	State        json.RawMessage `json:"state,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

type LogEntry struct {
	ID        int             `json:"id"`
	Timestamp time.Time       `json:"timestamp"`
	Level     string          `json:"level"`
	Message   string          `json:"message"`
	Metadata  json.RawMessage `json:"metadata"`
}

// JobStore persists diagnosis jobs and their logs.
type JobStore interface {
	LogSink
	CreateJob(ctx context.Context, job *Job) error
	SetStatus(ctx context.Context, id uuid.UUID, status string) error
	SaveState(ctx context.Context, id uuid.UUID, state []byte) error
	CompleteJob(ctx context.Context, id uuid.UUID, report string) error
	GetJob(ctx context.Context, id uuid.UUID) (*Job, error)
	GetJobLogs(ctx context.Context, id uuid.UUID) ([]LogEntry, error)
}

// PGJobStore is the PostgreSQL JobStore.
type PGJobStore struct {
	DB *database.PostgresDB
}

func NewPGJobStore(db *database.PostgresDB) *PGJobStore {
	return &PGJobStore{DB: db}
}

func (s *PGJobStore) CreateJob(ctx context.Context, job *Job) error {
	query := `
		INSERT INTO diagnosis_jobs (id, image_id, patient_email, label, topic, prescription, status, config)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at
	`
	err := s.DB.Pool.QueryRow(ctx, query,
		job.ID, job.ImageID, job.PatientEmail, job.Label, job.Topic, job.Prescription, job.Status, []byte(job.Config),
	).Scan(&job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}
	return nil
}

func (s *PGJobStore) SetStatus(ctx context.Context, id uuid.UUID, status string) error {
	_, err := s.DB.Pool.Exec(ctx, "UPDATE diagnosis_jobs SET status = $2, updated_at = NOW() WHERE id = $1", id, status)
	if err != nil {
		return fmt.Errorf("failed to set job status: %w", err)
	}
	return nil
}

func (s *PGJobStore) SaveState(ctx context.Context, id uuid.UUID, state []byte) error {
	_, err := s.DB.Pool.Exec(ctx, "UPDATE diagnosis_jobs SET state = $2, updated_at = NOW() WHERE id = $1", id, state)
	if err != nil {
		return fmt.Errorf("failed to save job state: %w", err)
	}
	return nil
}

func (s *PGJobStore) CompleteJob(ctx context.Context, id uuid.UUID, report string) error {
	_, err := s.DB.Pool.Exec(ctx,
		"UPDATE diagnosis_jobs SET status = $2, report = $3, updated_at = NOW() WHERE id = $1",
		id, StatusCompleted, report)
	if err != nil {
		return fmt.Errorf("failed to complete job: %w", err)
	}
	return nil
}

func (s *PGJobStore) GetJob(ctx context.Context, id uuid.UUID) (*Job, error) {
	query := `
		SELECT id, image_id, COALESCE(patient_email, ''), label, topic, prescription, status, report,
		       config, state, created_at, updated_at
		FROM diagnosis_jobs
		WHERE id = $1
	`
	job := &Job{}
	var config, state []byte
	err := s.DB.Pool.QueryRow(ctx, query, id).Scan(
		&job.ID, &job.ImageID, &job.PatientEmail, &job.Label, &job.Topic, &job.Prescription, &job.Status, &job.Report,
		&config, &state, &job.CreatedAt, &job.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("job %s: %w", id, clinic.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	job.Config = config
	job.State = state
	return job, nil
}

func (s *PGJobStore) GetJobLogs(ctx context.Context, id uuid.UUID) ([]LogEntry, error) {
	query := `
		SELECT id, timestamp, level, message, metadata
		FROM diagnosis_logs
		WHERE job_id = $1
		ORDER BY id ASC
	`
	rows, err := s.DB.Pool.Query(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get logs: %w", err)
	}
	logs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (LogEntry, error) {
		var (
			l    LogEntry
			meta []byte
		)
		err := row.Scan(&l.ID, &l.Timestamp, &l.Level, &l.Message, &meta)
		l.Metadata = meta
		return l, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read logs: %w", err)
	}
	return logs, nil
}

func (s *PGJobStore) AppendLog(ctx context.Context, jobID uuid.UUID, at time.Time, level, message string, metadata []byte) error {
	query := `
		INSERT INTO diagnosis_logs (job_id, timestamp, level, message, metadata)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := s.DB.Pool.Exec(ctx, query, jobID, at, level, message, metadata)
	return err
}
