package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mikeboe/derma-research/pkg/clinic"
	"github.com/mikeboe/derma-research/pkg/diagnosis"
	"github.com/mikeboe/derma-research/pkg/logging"
	"github.com/mikeboe/derma-research/pkg/research"
)

type memoryJobStore struct {
	mu       sync.Mutex
	jobs     map[uuid.UUID]*Job
	statuses []string
	states   [][]byte
	logs     []LogEntry
}

func newMemoryJobStore() *memoryJobStore {
	return &memoryJobStore{jobs: map[uuid.UUID]*Job{}}
}

func (m *memoryJobStore) CreateJob(_ context.Context, job *Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job.CreatedAt = time.Now()
	job.UpdatedAt = job.CreatedAt
	cp := *job
	m.jobs[job.ID] = &cp
	return nil
}

func (m *memoryJobStore) SetStatus(_ context.Context, id uuid.UUID, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses = append(m.statuses, status)
	m.jobs[id].Status = status
	return nil
}

func (m *memoryJobStore) SaveState(_ context.Context, id uuid.UUID, state []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states = append(m.states, state)
	m.jobs[id].State = state
	return nil
}

func (m *memoryJobStore) CompleteJob(_ context.Context, id uuid.UUID, report string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses = append(m.statuses, StatusCompleted)
	m.jobs[id].Status = StatusCompleted
	m.jobs[id].Report = &report
	return nil
}

func (m *memoryJobStore) GetJob(_ context.Context, id uuid.UUID) (*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, clinic.ErrNotFound
	}
	cp := *job
	return &cp, nil
}

func (m *memoryJobStore) GetJobLogs(context.Context, uuid.UUID) ([]LogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]LogEntry(nil), m.logs...), nil
}

func (m *memoryJobStore) AppendLog(_ context.Context, _ uuid.UUID, at time.Time, level, message string, metadata []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logs = append(m.logs, LogEntry{ID: len(m.logs) + 1, Timestamp: at, Level: level, Message: message, Metadata: metadata})
	return nil
}

type memoryReports struct {
	mu        sync.Mutex
	images    []clinic.Image
	diagnoses []clinic.Diagnosis
}

func (r *memoryReports) SaveImage(_ context.Context, img clinic.Image) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.images = append(r.images, img)
	return len(r.images), nil
}

func (r *memoryReports) SaveDiagnosis(_ context.Context, dx clinic.Diagnosis) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.diagnoses = append(r.diagnoses, dx)
	return len(r.diagnoses), nil
}

type cannedLLM struct{}

func (cannedLLM) Generate(context.Context, string, string) (string, error) {
	return "Apply sunscreen.\n\tSee a dermatologist.", nil
}

func (cannedLLM) GenerateJSON(_ context.Context, system, _ string) (map[string]any, error) {
	if strings.Contains(system, "generate a targeted web search query") {
		return map[string]any{"query": "melanoma treatment"}, nil
	}
	return map[string]any{"knowledge_gap": "dosage", "follow_up_query": "melanoma dosage"}, nil
}

type cannedSearch struct {
	err error
}

func (s cannedSearch) Search(_ context.Context, query string, _ int, _ bool) (research.SearchResponse, error) {
	if s.err != nil {
		return research.SearchResponse{}, s.err
	}
	return research.SearchResponse{Query: query, Results: []research.SearchResult{{
		Title:   "Guidance",
		URL:     "https://example.org/" + strings.ReplaceAll(query, " ", "-"),
		Content: "content",
	}}}, nil
}

func newTestService(t *testing.T, search research.SearchGateway) (*Service, *memoryJobStore, *memoryReports) {
	t.Helper()
	engine, err := research.NewEngine(research.LoopConfig{MaxLoops: 1, ModelID: "test"}, search, cannedLLM{})
	require.NoError(t, err)
	engine = engine.WithLogger(logging.NewNop())

	jobs := newMemoryJobStore()
	reports := &memoryReports{}
	svc := NewService(jobs, reports, engine, diagnosis.NewRandomClassifier(rand.New(rand.NewSource(1))), time.Minute)
	svc.Logger = logging.NewNop()
	return svc, jobs, reports
}

func TestSubmitCompletesDiagnosis(t *testing.T) {
	svc, jobs, reports := newTestService(t, cannedSearch{})

	job, err := svc.Submit(context.Background(), UploadRequest{
		Image:        clinic.Image{Name: "lesion.png", ContentType: "image/png", Data: []byte("png")},
		Prescription: "none",
		PatientEmail: "pat@example.com",
	})
	require.NoError(t, err)
	svc.Wait()

	_, known := diagnosis.ParseLabel(job.Label)
	assert.True(t, known, job.Label)
	assert.True(t, strings.HasPrefix(job.Topic, "A patient has shown up with the below skin condition:"+job.Label))
	require.NotNil(t, job.ImageID)
	assert.Equal(t, 1, *job.ImageID)

	var cfg map[string]any
	require.NoError(t, json.Unmarshal(job.Config, &cfg))
	assert.Equal(t, float64(1), cfg["max_loops"])

	stored, err := svc.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, stored.Status)
	require.NotNil(t, stored.Report)
	assert.True(t, strings.HasPrefix(*stored.Report, "## Summary<br><br>Apply sunscreen.<br>&nbsp;&nbsp;&nbsp;&nbsp;See a dermatologist."))
	assert.Contains(t, *stored.Report, "* Guidance : https://example.org/melanoma-treatment")

	assert.Equal(t, []string{StatusRunning, StatusCompleted}, jobs.statuses)

	// One snapshot per committed stage: query, then two research cycles of
	// search/summarize/reflect, then finalize.
	assert.Len(t, jobs.states, 8)
	var last research.ResearchState
	require.NoError(t, json.Unmarshal(jobs.states[len(jobs.states)-1], &last))
	assert.Equal(t, 2, last.LoopCount)
	assert.Len(t, last.SourcesGathered, 2)

	require.Len(t, reports.diagnoses, 1)
	dx := reports.diagnoses[0]
	assert.Equal(t, "pat@example.com", dx.PatientEmail)
	assert.Equal(t, job.Label, dx.Lesion)
	assert.Equal(t, "lesion.png", dx.ImageName)
	assert.Equal(t, "none", dx.Prescription)
	assert.Equal(t, *stored.Report, dx.Report)

	logs, err := svc.GetJobLogs(context.Background(), job.ID)
	require.NoError(t, err)
	require.NotEmpty(t, logs)
	assert.Equal(t, "Starting research loop", logs[0].Message)
	assert.Contains(t, string(logs[0].Metadata), `"label"`)
}

func TestSubmitMarksJobFailedWhenResearchFails(t *testing.T) {
	svc, jobs, reports := newTestService(t, cannedSearch{err: errors.New("quota exceeded")})

	job, err := svc.Submit(context.Background(), UploadRequest{Image: clinic.Image{Name: "x.png"}})
	require.NoError(t, err)
	svc.Wait()

	stored, err := svc.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, stored.Status)
	assert.Nil(t, stored.Report)
	assert.Empty(t, reports.diagnoses)

	var failure *LogEntry
	for i := range jobs.logs {
		if strings.HasPrefix(jobs.logs[i].Message, "Research failed") {
			failure = &jobs.logs[i]
		}
	}
	require.NotNil(t, failure)
	assert.Equal(t, "ERROR", failure.Level)
	assert.Contains(t, failure.Message, "web_research stage failed")
}

type panickingSearch struct{}

func (panickingSearch) Search(context.Context, string, int, bool) (research.SearchResponse, error) {
	panic("search backend bug")
}

func TestWorkerPanicFailsJobInsteadOfCrashing(t *testing.T) {
	svc, _, reports := newTestService(t, panickingSearch{})

	job, err := svc.Submit(context.Background(), UploadRequest{Image: clinic.Image{Name: "x.png"}})
	require.NoError(t, err)
	svc.Wait()

	stored, err := svc.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, stored.Status)
	assert.Empty(t, reports.diagnoses)

	logs, err := svc.GetJobLogs(context.Background(), job.ID)
	require.NoError(t, err)
	require.NotEmpty(t, logs)
	assert.Equal(t, "Research panicked: search backend bug", logs[len(logs)-1].Message)
}

func TestGetJobLogsUnknownJob(t *testing.T) {
	svc, _, _ := newTestService(t, cannedSearch{})
	_, err := svc.GetJobLogs(context.Background(), uuid.New())
	assert.ErrorIs(t, err, clinic.ErrNotFound)
}

func TestConcurrentSubmissions(t *testing.T) {
	svc, jobs, reports := newTestService(t, cannedSearch{})

	for i := 0; i < 5; i++ {
		_, err := svc.Submit(context.Background(), UploadRequest{Image: clinic.Image{Name: fmt.Sprintf("%d.png", i)}})
		require.NoError(t, err)
	}
	svc.Wait()

	assert.Len(t, reports.diagnoses, 5)
	for _, job := range jobs.jobs {
		assert.Equal(t, StatusCompleted, job.Status)
	}
}
