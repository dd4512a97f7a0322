package generation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/influencerlab/api/internal/client"
	"github.com/influencerlab/api/internal/model"
)

const unknownFailureReason = "unknown error"

// JobState is the backend-driven state of a submitted job.
type JobState string

const (
	JobQueued    JobState = "queued"
	JobRunning   JobState = "running"
	JobSucceeded JobState = "succeeded"
	JobFailed    JobState = "failed"
)

// JobStatus is the result of evaluating one history response.
type JobStatus struct {
	State   JobState
	Outputs map[string]model.NodeOutput
	Reason  string
}

// Terminal reports whether polling should stop.
func (s JobStatus) Terminal() bool {
	return s.State == JobSucceeded || s.State == JobFailed
}

// PollPolicy is the fixed cadence and wall-clock budget of one poll loop.
type PollPolicy struct {
	Interval time.Duration
	MaxWait  time.Duration
	// OnTick, if set, is called after every history fetch.
	OnTick func(attempt int, elapsed time.Duration)
}

// HistoryFetcher is the transport call used to read job status.
type HistoryFetcher interface {
	GetHistory(ctx context.Context, promptID string) (client.History, error)
}

// Poller waits for a submitted job to reach a terminal state.
//
// Timing out only stops waiting on this side. Nothing is sent to the backend,
// which keeps running (or queueing) the job until it finishes on its own.
type Poller struct {
	api    HistoryFetcher
	clock  Clock
	logger zerolog.Logger
}

func NewPoller(api HistoryFetcher, clock Clock, logger zerolog.Logger) *Poller {
	return &Poller{api: api, clock: clock, logger: logger}
}

// Evaluate maps one history entry to a job status. found is false when the
// backend has no record of the job yet.
func Evaluate(entry client.HistoryEntry, found bool) JobStatus {
	if !found {
		return JobStatus{State: JobQueued}
	}
	// An explicit error wins over outputs left behind by nodes that ran
	// before the failure.
	if entry.Status != nil && strings.EqualFold(entry.Status.StatusStr, "error") {
		return JobStatus{State: JobFailed, Reason: failureReason(entry.Status.Messages)}
	}
	if len(entry.Outputs) > 0 {
		return JobStatus{State: JobSucceeded, Outputs: entry.Outputs}
	}
	if entry.Status != nil && entry.Status.Completed && strings.EqualFold(entry.Status.StatusStr, "success") {
		return JobStatus{State: JobSucceeded, Outputs: map[string]model.NodeOutput{}}
	}
	return JobStatus{State: JobRunning}
}

// Poll fetches the job history every policy.Interval until the job is
// terminal or policy.MaxWait has elapsed since the first fetch. Each fetch is
// bounded by the remaining budget. Fetch errors are logged and retried. A
// failed job yields ErrBackendJobFailure and an exhausted budget yields
// ErrTimedOut.
func (p *Poller) Poll(ctx context.Context, handle model.JobHandle, policy PollPolicy) (JobStatus, error) {
	const op = "poll"
	if policy.MaxWait <= 0 {
		return JobStatus{}, newError(ErrConfiguration, op, "max wait must be positive", nil)
	}
	interval := policy.Interval
	if interval <= 0 {
		interval = time.Second
	}

	log := p.logger.With().Str("prompt_id", handle.ID).Logger()
	start := p.clock.Now()
	last := JobStatus{State: JobQueued}

	for attempt := 1; ; attempt++ {
		// A fetch never outlives the remaining budget.
		fetchCtx, cancelFetch := context.WithTimeout(ctx, policy.MaxWait-p.clock.Now().Sub(start))
		hist, err := p.api.GetHistory(fetchCtx, handle.ID)
		budgetSpent := fetchCtx.Err() != nil && ctx.Err() == nil
		cancelFetch()

		if err != nil {
			if ctx.Err() != nil {
				return last, fmt.Errorf("%s: %w", op, ctx.Err())
			}
			if !budgetSpent {
				log.Warn().Err(err).Int("attempt", attempt).Msg("history fetch failed, retrying")
			}
		} else {
			entry, found := hist[handle.ID]
			last = Evaluate(entry, found)
			log.Debug().Int("attempt", attempt).Str("state", string(last.State)).Msg("poll")

			switch last.State {
			case JobSucceeded:
				return last, nil
			case JobFailed:
				return last, newError(ErrBackendJobFailure, op, last.Reason, nil)
			}
		}

		elapsed := p.clock.Now().Sub(start)
		if policy.OnTick != nil {
			policy.OnTick(attempt, elapsed)
		}
		if elapsed >= policy.MaxWait || budgetSpent {
			log.Warn().Dur("elapsed", elapsed).Str("state", string(last.State)).Msg("poll budget exhausted, backend job left running")
			return last, newError(ErrTimedOut, op, fmt.Sprintf("job %s not finished after %s", handle.ID, policy.MaxWait), nil)
		}

		wait := interval
		if remaining := policy.MaxWait - elapsed; remaining < wait {
			wait = remaining
		}
		select {
		case <-ctx.Done():
			return last, fmt.Errorf("%s: %w", op, ctx.Err())
		case <-p.clock.After(wait):
		}
	}
}

// failureReason joins the backend's messages. Plain strings are used as is;
// [event, payload] pairs contribute their exception_message.
func failureReason(messages []json.RawMessage) string {
	reasons := make([]string, 0, len(messages))
	for _, raw := range messages {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			if s = strings.TrimSpace(s); s != "" {
				reasons = append(reasons, s)
			}
			continue
		}

		var pair []json.RawMessage
		if err := json.Unmarshal(raw, &pair); err != nil || len(pair) != 2 {
			continue
		}
		var payload struct {
			ExceptionMessage string `json:"exception_message"`
		}
		if err := json.Unmarshal(pair[1], &payload); err != nil {
			continue
		}
		if msg := strings.TrimSpace(payload.ExceptionMessage); msg != "" {
			reasons = append(reasons, msg)
		}
	}
	if len(reasons) == 0 {
		return unknownFailureReason
	}
	return strings.Join(reasons, ", ")
}
