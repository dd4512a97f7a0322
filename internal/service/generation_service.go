package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/influencerlab/api/internal/model"
)

// TaskTypeGenerate is the asynq task type for one generation.
const TaskTypeGenerate = "generation:process"

var (
	ErrJobNotFound        = errors.New("job not found")
	ErrJobNotCompleted    = errors.New("job not completed")
	ErrJobAlreadyFinished = errors.New("job already finished")
)

// TaskEnqueuer is satisfied by *asynq.Client.
type TaskEnqueuer interface {
	Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// GenerationService manages queued generation jobs.
type GenerationService struct {
	store     JobStore
	queue     TaskEnqueuer
	retention time.Duration
	now       func() time.Time
}

func NewGenerationService(store JobStore, queue TaskEnqueuer) *GenerationService {
	return &GenerationService{
		store:     store,
		queue:     queue,
		retention: DefaultJobTTL,
		now:       time.Now,
	}
}

// TaskPayload is the body of a generation task.
type TaskPayload struct {
	JobID   string                     `json:"jobId"`
	Payload model.GenerationJobPayload `json:"payload"`
}

// NewGenerationTask wraps a job for the worker queue.
func NewGenerationTask(jobID string, payload model.GenerationJobPayload) (*asynq.Task, error) {
	data, err := json.Marshal(TaskPayload{JobID: jobID, Payload: payload})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeGenerate, data), nil
}

// QueueFor returns the worker queue serving kind.
func QueueFor(kind model.MediaKind) string {
	if kind == model.MediaKindVideo {
		return string(model.MediaKindVideo)
	}
	return string(model.MediaKindImage)
}

// Start records a queued job and enqueues it. Tasks are never retried by the
// queue; a failed generation is reported and the caller decides to resubmit.
func (s *GenerationService) Start(ctx context.Context, req model.GenerationRequest) (*model.GenerateStartResponse, error) {
	if req.Kind == "" {
		req.Kind = model.MediaKindImage
	}
	jobID := uuid.New().String()
	now := s.now()

	payload := model.GenerationJobPayload{Request: req}
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	job := &model.Job{
		ID:        jobID,
		Kind:      req.Kind,
		Status:    model.JobStatusQueued,
		Payload:   payloadBytes,
		CreatedAt: now,
	}
	if err := s.store.Save(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to save job: %w", err)
	}

	task, err := NewGenerationTask(jobID, payload)
	if err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}
	_, err = s.queue.Enqueue(task,
		asynq.Queue(QueueFor(req.Kind)),
		asynq.TaskID(jobID),
		asynq.MaxRetry(0),
		asynq.Retention(s.retention),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to enqueue task: %w", err)
	}

	return &model.GenerateStartResponse{
		JobID:     jobID,
		Kind:      req.Kind,
		Status:    model.JobStatusQueued,
		CreatedAt: now,
	}, nil
}

// GetStatus returns the current status of a job
func (s *GenerationService) GetStatus(ctx context.Context, jobID string) (*model.GenerateStatusResponse, error) {
	job, err := s.store.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	return statusResponse(job), nil
}

// GetResult returns the artifact of a succeeded job
func (s *GenerationService) GetResult(ctx context.Context, jobID string) (*model.GenerateResultResponse, error) {
	job, err := s.store.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status != model.JobStatusSucceeded {
		return nil, ErrJobNotCompleted
	}

	var artifact model.Artifact
	if err := json.Unmarshal(job.Result, &artifact); err != nil {
		return nil, fmt.Errorf("failed to unmarshal result: %w", err)
	}
	return &model.GenerateResultResponse{JobID: job.ID, Kind: job.Kind, Artifact: artifact}, nil
}

// Cancel marks a job canceled. A job already running on the compute backend
// keeps running there; only its result is discarded.
func (s *GenerationService) Cancel(ctx context.Context, jobID string) (*model.GenerateStatusResponse, error) {
	job, err := s.store.Update(ctx, jobID, func(job *model.Job) error {
		if job.Status.IsTerminal() {
			return ErrJobAlreadyFinished
		}
		job.Status = model.JobStatusCanceled
		now := s.now()
		job.CompletedAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}
	return statusResponse(job), nil
}

// IsCanceled reports whether jobID was canceled (called by worker)
func (s *GenerationService) IsCanceled(ctx context.Context, jobID string) (bool, error) {
	job, err := s.store.Get(ctx, jobID)
	if err != nil {
		return false, err
	}
	return job.Status == model.JobStatusCanceled, nil
}

// UpdateJobProgress updates job progress (called by worker). Progress on a
// finished or canceled job is dropped.
func (s *GenerationService) UpdateJobProgress(ctx context.Context, jobID string, progress int, step string) error {
	_, err := s.store.Update(ctx, jobID, func(job *model.Job) error {
		if job.Status.IsTerminal() {
			return ErrJobAlreadyFinished
		}
		job.Progress = progress
		job.CurrentStep = step
		if job.Status == model.JobStatusQueued {
			job.Status = model.JobStatusRunning
			now := s.now()
			job.StartedAt = &now
		}
		return nil
	})
	if errors.Is(err, ErrJobAlreadyFinished) {
		return nil
	}
	return err
}

// CompleteJob stores the artifact of a finished job (called by worker)
func (s *GenerationService) CompleteJob(ctx context.Context, jobID string, artifact *model.Artifact) error {
	resultBytes, err := json.Marshal(artifact)
	if err != nil {
		return err
	}
	_, err = s.store.Update(ctx, jobID, func(job *model.Job) error {
		if job.Status.IsTerminal() {
			return ErrJobAlreadyFinished
		}
		job.Status = model.JobStatusSucceeded
		job.Progress = 100
		job.CurrentStep = ""
		job.Result = resultBytes
		now := s.now()
		job.CompletedAt = &now
		return nil
	})
	return err
}

// FailJob marks a job failed or timed out (called by worker)
func (s *GenerationService) FailJob(ctx context.Context, jobID string, status model.JobStatus, jobErr model.JobError) error {
	_, err := s.store.Update(ctx, jobID, func(job *model.Job) error {
		if job.Status.IsTerminal() {
			return ErrJobAlreadyFinished
		}
		job.Status = status
		job.Error = &jobErr
		now := s.now()
		job.CompletedAt = &now
		return nil
	})
	return err
}

func statusResponse(job *model.Job) *model.GenerateStatusResponse {
	return &model.GenerateStatusResponse{
		JobID:       job.ID,
		Kind:        job.Kind,
		Status:      job.Status,
		Progress:    job.Progress,
		CurrentStep: job.CurrentStep,
		Error:       job.Error,
		CreatedAt:   job.CreatedAt,
		StartedAt:   job.StartedAt,
		CompletedAt: job.CompletedAt,
	}
}
