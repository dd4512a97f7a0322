package client

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/influencerlab/api/internal/config"
)

func newTestComputeClient(t *testing.T, h http.Handler) *ComputeClient {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewComputeClient(&config.ComputeConfig{
		BaseURL:         srv.URL,
		Timeout:         5 * time.Second,
		DownloadTimeout: 5 * time.Second,
	}, zerolog.Nop())
}

func TestSubmitWorkflow(t *testing.T) {
	var got map[string]json.RawMessage
	c := newTestComputeClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/prompt", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"prompt_id":"abc-123","number":7,"node_errors":{}}`)
	}))

	resp, err := c.SubmitWorkflow(context.Background(), map[string]any{"1": map[string]any{"class_type": "X"}}, "client-1")
	require.NoError(t, err)
	assert.Equal(t, "abc-123", resp.PromptID)
	assert.Equal(t, 7, resp.Number)
	assert.Empty(t, resp.NodeErrors)

	assert.JSONEq(t, `"client-1"`, string(got["client_id"]))
	assert.JSONEq(t, `{"1":{"class_type":"X"}}`, string(got["prompt"]))
}

func TestSubmitWorkflowNon2xx(t *testing.T) {
	c := newTestComputeClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error":{"type":"prompt_outputs_failed_validation"}}`)
	}))

	_, err := c.SubmitWorkflow(context.Background(), map[string]any{}, "c")
	require.Error(t, err)
	apiErr, ok := IsAPIError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Contains(t, apiErr.Body, "prompt_outputs_failed_validation")
}

func TestSubmitWorkflowMalformedBody(t *testing.T) {
	c := newTestComputeClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `<html>gateway</html>`)
	}))

	_, err := c.SubmitWorkflow(context.Background(), map[string]any{}, "c")
	require.Error(t, err)
	_, isAPI := IsAPIError(err)
	assert.False(t, isAPI)
}

func TestGetHistory(t *testing.T) {
	c := newTestComputeClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/history/p1", r.URL.Path)
		_, _ = io.WriteString(w, `{
			"p1": {
				"status": {"status_str": "success", "completed": true, "messages": [["execution_start", {}]]},
				"outputs": {
					"13": {"gifs": [{"filename": "v_00001.mp4", "subfolder": "influencer", "type": "output"}]}
				}
			}
		}`)
	}))

	h, err := c.GetHistory(context.Background(), "p1")
	require.NoError(t, err)
	entry, ok := h["p1"]
	require.True(t, ok)
	require.NotNil(t, entry.Status)
	assert.Equal(t, "success", entry.Status.StatusStr)
	assert.True(t, entry.Status.Completed)
	assert.Len(t, entry.Status.Messages, 1)
	require.Len(t, entry.Outputs["13"].Gifs, 1)
	assert.Equal(t, "v_00001.mp4", entry.Outputs["13"].Gifs[0].Filename)
}

func TestGetHistoryNotIndexed(t *testing.T) {
	c := newTestComputeClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{}`)
	}))

	h, err := c.GetHistory(context.Background(), "missing")
	require.NoError(t, err)
	_, ok := h["missing"]
	assert.False(t, ok)
}

func TestViewURL(t *testing.T) {
	c := NewComputeClient(&config.ComputeConfig{BaseURL: "http://gpu:8188"}, zerolog.Nop())
	assert.Equal(t,
		"http://gpu:8188/view?filename=a+b.png&subfolder=x%2Fy&type=output",
		c.ViewURL("a b.png", "x/y", "output"))
}

func TestDownload(t *testing.T) {
	c := newTestComputeClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("filename") == "missing.mp4" {
			http.NotFound(w, r)
			return
		}
		_, _ = io.WriteString(w, "video-bytes")
	}))

	body, err := c.Download(context.Background(), c.ViewURL("ok.mp4", "", "output"))
	require.NoError(t, err)
	data, err := io.ReadAll(body)
	require.NoError(t, body.Close())
	require.NoError(t, err)
	assert.Equal(t, "video-bytes", string(data))

	_, err = c.Download(context.Background(), c.ViewURL("missing.mp4", "", "output"))
	apiErr, ok := IsAPIError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
}

func TestSystemStats(t *testing.T) {
	c := newTestComputeClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/system_stats", r.URL.Path)
		_, _ = io.WriteString(w, `{"system":{"os":"posix","python_version":"3.11"},"devices":[{"name":"cuda:0","type":"cuda","vram_total":25769803776,"vram_free":1024}]}`)
	}))

	stats, err := c.SystemStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "posix", stats.System.OS)
	require.Len(t, stats.Devices, 1)
	assert.Equal(t, int64(25769803776), stats.Devices[0].VRAMTotal)
}

func TestComputeClientIsConfigured(t *testing.T) {
	assert.False(t, NewComputeClient(&config.ComputeConfig{}, zerolog.Nop()).IsConfigured())
	assert.True(t, NewComputeClient(&config.ComputeConfig{BaseURL: "http://x"}, zerolog.Nop()).IsConfigured())
}
