package generation

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/influencerlab/api/internal/client"
	"github.com/influencerlab/api/internal/workflow"
)

func testGraph() *workflow.Graph {
	g := workflow.NewGraph()
	g.Add("1", &workflow.Node{ClassType: "Noop"})
	return g
}

func TestSubmit(t *testing.T) {
	clock := newFakeClock()
	api := &fakeCompute{submitResp: &client.SubmitResponse{PromptID: "abc", Number: 3}}
	s := NewSubmitter(api, clock, zerolog.Nop())

	h1, err := s.Submit(context.Background(), testGraph())
	require.NoError(t, err)
	assert.Equal(t, "abc", h1.ID)
	assert.Equal(t, clock.Now(), h1.SubmittedAt)

	_, err = s.Submit(context.Background(), testGraph())
	require.NoError(t, err)

	require.Len(t, api.clientIDs, 2)
	assert.NotEqual(t, api.clientIDs[0], api.clientIDs[1])
	assert.JSONEq(t, `{"1":{"class_type":"Noop","inputs":{}}}`, string(api.submitted[0]))
}

func TestSubmitErrors(t *testing.T) {
	tests := []struct {
		name string
		api  *fakeCompute
	}{
		{name: "transport", api: &fakeCompute{submitErr: errors.New("dial tcp: connection refused")}},
		{name: "non 2xx", api: &fakeCompute{submitErr: &client.APIError{StatusCode: 500, Body: "oops"}}},
		{name: "missing prompt id", api: &fakeCompute{submitResp: &client.SubmitResponse{}}},
		{name: "node errors", api: &fakeCompute{submitResp: &client.SubmitResponse{
			PromptID:   "abc",
			NodeErrors: map[string]json.RawMessage{"11": json.RawMessage(`{"errors":[]}`)},
		}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSubmitter(tt.api, newFakeClock(), zerolog.Nop()).Submit(context.Background(), testGraph())
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrSubmission)
			assert.Equal(t, CodeSubmission, Code(err))
		})
	}
}

func TestSubmitKeepsCause(t *testing.T) {
	cause := &client.APIError{StatusCode: 503, Body: "busy"}
	_, err := NewSubmitter(&fakeCompute{submitErr: cause}, newFakeClock(), zerolog.Nop()).Submit(context.Background(), testGraph())

	apiErr, ok := client.IsAPIError(err)
	require.True(t, ok)
	assert.Equal(t, 503, apiErr.StatusCode)
}
