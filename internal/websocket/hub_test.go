package websocket

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/influencerlab/api/internal/model"
)

func startHub(t *testing.T) (*Hub, context.CancelFunc) {
	t.Helper()
	hub := NewHub(zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(cancel)
	return hub, cancel
}

func receive(t *testing.T, c *Client) []byte {
	t.Helper()
	select {
	case msg, ok := <-c.Send:
		require.True(t, ok, "send channel closed")
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("no message received")
		return nil
	}
}

func TestHubBroadcastsToJobSubscribers(t *testing.T) {
	hub, _ := startHub(t)
	watcher := &Client{JobID: "job-1", Send: make(chan []byte, 4)}
	other := &Client{JobID: "job-2", Send: make(chan []byte, 4)}
	hub.Register(watcher)
	hub.Register(other)

	hub.BroadcastProgress("job-1", 40, model.JobStatusRunning, "rendering")

	var progress model.WSProgressMessage
	require.NoError(t, json.Unmarshal(receive(t, watcher), &progress))
	assert.Equal(t, model.WSMessageTypeProgress, progress.Type)
	assert.Equal(t, 40, progress.Progress)
	assert.Equal(t, "rendering", progress.CurrentStep)
	assert.Empty(t, other.Send)
}

func TestHubCompleteAndError(t *testing.T) {
	hub, _ := startHub(t)
	c := &Client{JobID: "job-1", Send: make(chan []byte, 4)}
	hub.Register(c)

	local := "/generated/videos/ava_1_abc.mp4"
	hub.BroadcastComplete("job-1", &model.Artifact{Filename: "v.mp4", LocalPath: &local})
	hub.BroadcastError("job-1", model.JobError{Code: "TIMED_OUT", Message: "still processing"})

	var done model.WSCompleteMessage
	require.NoError(t, json.Unmarshal(receive(t, c), &done))
	require.NotNil(t, done.Artifact)
	assert.Equal(t, local, *done.Artifact.LocalPath)

	var failed model.WSErrorMessage
	require.NoError(t, json.Unmarshal(receive(t, c), &failed))
	assert.Equal(t, "TIMED_OUT", failed.Error.Code)
}

func TestHubTargetedMessage(t *testing.T) {
	hub, _ := startHub(t)
	a := &Client{JobID: "job-1", Send: make(chan []byte, 4)}
	b := &Client{JobID: "job-1", Send: make(chan []byte, 4)}
	hub.Register(a)
	hub.Register(b)

	hub.send(&BroadcastMessage{JobID: "job-1", Target: a}, model.WSMessage{Type: model.WSMessageTypePong})

	assert.JSONEq(t, `{"type":"pong"}`, string(receive(t, a)))
	assert.Empty(t, b.Send)
}

func TestHubUnregisterAndShutdown(t *testing.T) {
	hub, cancel := startHub(t)
	a := &Client{JobID: "job-1", Send: make(chan []byte, 4)}
	b := &Client{JobID: "job-1", Send: make(chan []byte, 4)}
	hub.Register(a)
	hub.Register(b)

	hub.Unregister(a)
	_, ok := <-a.Send
	assert.False(t, ok)
	assert.Equal(t, 1, hub.Subscribers("job-1"))

	cancel()
	select {
	case _, ok := <-b.Send:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("hub did not close clients on shutdown")
	}

	// publishing after shutdown must not block
	hub.BroadcastProgress("job-1", 1, model.JobStatusRunning, "")
}
