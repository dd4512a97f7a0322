package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/influencerlab/api/internal/generation"
	"github.com/influencerlab/api/internal/model"
	"github.com/influencerlab/api/internal/service"
)

// Generator runs one generation to completion.
type Generator interface {
	GenerateWithProgress(ctx context.Context, req model.GenerationRequest, progress generation.ProgressFunc) (*model.Artifact, error)
}

// JobTracker records job state transitions.
type JobTracker interface {
	IsCanceled(ctx context.Context, jobID string) (bool, error)
	UpdateJobProgress(ctx context.Context, jobID string, progress int, step string) error
	CompleteJob(ctx context.Context, jobID string, artifact *model.Artifact) error
	FailJob(ctx context.Context, jobID string, status model.JobStatus, jobErr model.JobError) error
}

// Broadcaster pushes job events to live subscribers.
type Broadcaster interface {
	BroadcastProgress(jobID string, progress int, status model.JobStatus, step string)
	BroadcastComplete(jobID string, artifact *model.Artifact)
	BroadcastError(jobID string, jobErr model.JobError)
}

// GenerationWorker processes generation tasks
type GenerationWorker struct {
	generator Generator
	jobs      JobTracker
	hub       Broadcaster
	logger    zerolog.Logger
}

// NewGenerationWorker creates a new generation worker
func NewGenerationWorker(generator Generator, jobs JobTracker, hub Broadcaster, logger zerolog.Logger) *GenerationWorker {
	return &GenerationWorker{
		generator: generator,
		jobs:      jobs,
		hub:       hub,
		logger:    logger.With().Str("component", "generation_worker").Logger(),
	}
}

// ProcessTask handles one generation task. Failures are recorded on the job
// and returned as asynq.SkipRetry so the queue never resubmits a generation.
func (w *GenerationWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var taskPayload service.TaskPayload
	if err := json.Unmarshal(t.Payload(), &taskPayload); err != nil {
		return fmt.Errorf("failed to unmarshal task payload: %v: %w", err, asynq.SkipRetry)
	}

	jobID := taskPayload.JobID
	req := taskPayload.Payload.Request
	log := w.logger.With().Str("job_id", jobID).Str("kind", string(req.Kind)).Logger()

	canceled, err := w.jobs.IsCanceled(ctx, jobID)
	if err != nil {
		return fmt.Errorf("failed to load job %s: %w", jobID, err)
	}
	if canceled {
		log.Info().Msg("job canceled before start")
		return nil
	}

	log.Info().Msg("starting generation")

	runCtx, stop := context.WithCancel(ctx)
	defer stop()

	artifact, err := w.generator.GenerateWithProgress(runCtx, req, func(step string, percent int) {
		if canceled, _ := w.jobs.IsCanceled(ctx, jobID); canceled {
			stop()
			return
		}
		w.updateProgress(ctx, jobID, percent, step)
	})

	if runCtx.Err() != nil && ctx.Err() == nil {
		log.Info().Msg("job canceled, result discarded")
		return nil
	}

	if err != nil {
		w.failJob(ctx, jobID, err)
		return fmt.Errorf("generation %s: %v: %w", jobID, err, asynq.SkipRetry)
	}

	if err := w.jobs.CompleteJob(ctx, jobID, artifact); err != nil {
		if errors.Is(err, service.ErrJobAlreadyFinished) {
			log.Info().Msg("job finished elsewhere, result discarded")
			return nil
		}
		log.Error().Err(err).Msg("failed to save result")
		return fmt.Errorf("save result %s: %v: %w", jobID, err, asynq.SkipRetry)
	}

	w.hub.BroadcastComplete(jobID, artifact)
	log.Info().Str("filename", artifact.Filename).Msg("generation job completed")
	return nil
}

func (w *GenerationWorker) updateProgress(ctx context.Context, jobID string, progress int, step string) {
	if err := w.jobs.UpdateJobProgress(ctx, jobID, progress, step); err != nil {
		w.logger.Warn().Err(err).Str("job_id", jobID).Msg("failed to update progress")
	}
	w.hub.BroadcastProgress(jobID, progress, model.JobStatusRunning, step)
}

func (w *GenerationWorker) failJob(ctx context.Context, jobID string, cause error) {
	status := model.JobStatusFailed
	if errors.Is(cause, generation.ErrTimedOut) {
		status = model.JobStatusTimedOut
	}
	jobErr := model.JobError{
		Code:    generation.Code(cause),
		Message: generation.Message(cause),
	}

	w.logger.Warn().Err(cause).Str("job_id", jobID).Str("code", jobErr.Code).Msg("generation failed")
	if err := w.jobs.FailJob(ctx, jobID, status, jobErr); err != nil {
		w.logger.Error().Err(err).Str("job_id", jobID).Msg("failed to mark job as failed")
	}
	w.hub.BroadcastError(jobID, jobErr)
}
