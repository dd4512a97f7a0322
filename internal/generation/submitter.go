package generation

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/influencerlab/api/internal/client"
	"github.com/influencerlab/api/internal/model"
	"github.com/influencerlab/api/internal/workflow"
)

// WorkflowSubmitter is the transport call used to queue a graph.
type WorkflowSubmitter interface {
	SubmitWorkflow(ctx context.Context, workflow any, clientID string) (*client.SubmitResponse, error)
}

// Submitter queues workflow graphs on the compute backend.
type Submitter struct {
	api    WorkflowSubmitter
	clock  Clock
	logger zerolog.Logger
}

func NewSubmitter(api WorkflowSubmitter, clock Clock, logger zerolog.Logger) *Submitter {
	return &Submitter{api: api, clock: clock, logger: logger}
}

// Submit queues g and returns the backend's handle for it. Each call uses a
// fresh client id.
func (s *Submitter) Submit(ctx context.Context, g *workflow.Graph) (model.JobHandle, error) {
	const op = "submit"
	clientID := s.newClientID()

	resp, err := s.api.SubmitWorkflow(ctx, g, clientID)
	if err != nil {
		return model.JobHandle{}, newError(ErrSubmission, op, "", err)
	}
	if len(resp.NodeErrors) > 0 {
		return model.JobHandle{}, newError(ErrSubmission, op, "backend rejected nodes "+nodeList(resp.NodeErrors), nil)
	}
	promptID := strings.TrimSpace(resp.PromptID)
	if promptID == "" {
		return model.JobHandle{}, newError(ErrSubmission, op, "response has no prompt_id", nil)
	}

	handle := model.JobHandle{ID: promptID, SubmittedAt: s.clock.Now()}
	s.logger.Info().
		Str("prompt_id", handle.ID).
		Str("client_id", clientID).
		Int("queue_number", resp.Number).
		Msg("workflow submitted")
	return handle, nil
}

func (s *Submitter) newClientID() string {
	return fmt.Sprintf("%d-%s", s.clock.Now().UnixNano(), uuid.NewString())
}

func nodeList[V any](m map[string]V) string {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return strings.Join(ids, ", ")
}
