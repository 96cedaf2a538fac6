package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mikeboe/derma-research/pkg/clinic"
	"github.com/mikeboe/derma-research/pkg/diagnosis"
	"github.com/mikeboe/derma-research/pkg/research"
)

const defaultSeverity = "Medium"

// ReportStore receives the uploaded image and the finished report.
type ReportStore interface {
	SaveImage(ctx context.Context, img clinic.Image) (int, error)
	SaveDiagnosis(ctx context.Context, dx clinic.Diagnosis) (int, error)
}

type UploadRequest struct {
	Image        clinic.Image
	Prescription string
	PatientEmail string
}

// Service turns uploaded lesion photos into researched diagnosis reports.
// Research runs in a background worker per job.
type Service struct {
	Jobs       JobStore
	Reports    ReportStore
	Engine     *research.ResearchEngine
	Classifier diagnosis.Classifier
	Timeout    time.Duration
	Logger     *slog.Logger

	wg sync.WaitGroup
}

func NewService(jobs JobStore, reports ReportStore, engine *research.ResearchEngine, classifier diagnosis.Classifier, timeout time.Duration) *Service {
	return &Service{
		Jobs:       jobs,
		Reports:    reports,
		Engine:     engine,
		Classifier: classifier,
		Timeout:    timeout,
		Logger:     slog.Default(),
	}
}

// Submit stores the image, classifies it and starts the research worker.
func (s *Service) Submit(ctx context.Context, req UploadRequest) (*Job, error) {
	imageID, err := s.Reports.SaveImage(ctx, req.Image)
	if err != nil {
		return nil, err
	}

	label, err := s.Classifier.Classify(ctx, req.Image.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to classify image: %w", err)
	}

	configJSON, _ := json.Marshal(map[string]any{
		"max_loops": s.Engine.Config.MaxLoops,
		"model_id":  s.Engine.Config.ModelID,
		"search":    s.Engine.Policy,
	})

	job := &Job{
		ID:           uuid.New(),
		ImageID:      &imageID,
		PatientEmail: req.PatientEmail,
		Label:        string(label),
		Topic:        diagnosis.BuildTopic(string(label)),
		Prescription: req.Prescription,
		Status:       StatusPending,
		Config:       configJSON,
	}
	if err := s.Jobs.CreateJob(ctx, job); err != nil {
		return nil, err
	}
	s.Logger.Info("Diagnosis job created", "job_id", job.ID, "image_id", imageID, "label", label)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				s.failJob(job.ID, slog.New(NewDBLogHandler(s.Jobs, job.ID)), fmt.Sprintf("Research panicked: %v", r))
			}
		}()
		s.runWorker(*job, req.Image.Name)
	}()

	return job, nil
}

func (s *Service) GetJob(ctx context.Context, id uuid.UUID) (*Job, error) {
	return s.Jobs.GetJob(ctx, id)
}

func (s *Service) GetJobLogs(ctx context.Context, id uuid.UUID) ([]LogEntry, error) {
	if _, err := s.Jobs.GetJob(ctx, id); err != nil {
		return nil, err
	}
	return s.Jobs.GetJobLogs(ctx, id)
}

// Wait blocks until all running workers have finished.
func (s *Service) Wait() {
	s.wg.Wait()
}

func (s *Service) runWorker(job Job, imageName string) {
	ctx := context.Background()
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}

	dbLogger := slog.New(NewDBLogHandler(s.Jobs, job.ID)).With("label", job.Label)

	if err := s.Jobs.SetStatus(ctx, job.ID, StatusRunning); err != nil {
		s.Logger.Error("Failed to mark job running", "job_id", job.ID, "error", err)
	}

	engine := s.Engine.WithLogger(dbLogger)
	engine.OnStateUpdate = func(state research.ResearchState) {
		stateJSON, err := json.Marshal(state)
		if err != nil {
			dbLogger.Error("Failed to marshal state", "error", err)
			return
		}
		if err := s.Jobs.SaveState(context.Background(), job.ID, stateJSON); err != nil {
			dbLogger.Error("Failed to save state", "error", err)
		}
	}

	report, err := engine.Run(ctx, job.Topic)
	if err != nil {
		s.failJob(job.ID, dbLogger, fmt.Sprintf("Research failed: %v", err))
		return
	}

	html := diagnosis.FormatForHTML(report)
	repID, err := s.Reports.SaveDiagnosis(context.Background(), clinic.Diagnosis{
		PatientEmail: job.PatientEmail,
		Lesion:       job.Label,
		Report:       html,
		Severity:     defaultSeverity,
		ImageName:    imageName,
		Prescription: job.Prescription,
	})
	if err != nil {
		s.failJob(job.ID, dbLogger, fmt.Sprintf("Failed to store diagnosis: %v", err))
		return
	}

	if err := s.Jobs.CompleteJob(context.Background(), job.ID, html); err != nil {
		dbLogger.Error("Failed to save final report", "error", err)
		return
	}
	dbLogger.Info("Diagnosis completed", "rep_id", repID)
}

func (s *Service) failJob(jobID uuid.UUID, logger *slog.Logger, reason string) {
	logger.Error(reason)
	s.Logger.Error("Diagnosis job failed", "job_id", jobID, "reason", reason)
	if err := s.Jobs.SetStatus(context.Background(), jobID, StatusFailed); err != nil {
		s.Logger.Error("Failed to mark job failed", "job_id", jobID, "error", err)
	}
}
