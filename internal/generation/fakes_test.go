package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/url"
	"sync"
	"time"

	"github.com/influencerlab/api/internal/client"
)

// fakeClock advances only when the poller waits on it.
type fakeClock struct {
	mu    sync.Mutex
	now   time.Time
	waits []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	c.waits = append(c.waits, d)
	ch := make(chan time.Time, 1)
	ch <- c.now
	return ch
}

// fakeCompute records every backend call.
type fakeCompute struct {
	mu        sync.Mutex
	calls     int
	submitted []json.RawMessage
	clientIDs []string

	submitResp *client.SubmitResponse
	submitErr  error
	history    func(call int) (client.History, error)
	historyN   int
	files      map[string][]byte
}

func (f *fakeCompute) SubmitWorkflow(_ context.Context, wf any, clientID string) (*client.SubmitResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	data, err := json.Marshal(wf)
	if err != nil {
		return nil, err
	}
	f.submitted = append(f.submitted, data)
	f.clientIDs = append(f.clientIDs, clientID)
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	if f.submitResp != nil {
		return f.submitResp, nil
	}
	return &client.SubmitResponse{PromptID: "prompt-1"}, nil
}

func (f *fakeCompute) GetHistory(_ context.Context, _ string) (client.History, error) {
	f.mu.Lock()
	f.calls++
	f.historyN++
	n := f.historyN
	fn := f.history
	f.mu.Unlock()
	if fn == nil {
		return client.History{}, nil
	}
	return fn(n)
}

func (f *fakeCompute) ViewURL(filename, subfolder, folderType string) string {
	q := url.Values{}
	q.Set("filename", filename)
	q.Set("subfolder", subfolder)
	q.Set("type", folderType)
	return "http://compute.test/view?" + q.Encode()
}

func (f *fakeCompute) Download(_ context.Context, rawURL string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	data, ok := f.files[u.Query().Get("filename")]
	if !ok {
		return nil, &client.APIError{StatusCode: 404, Body: "not found"}
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (f *fakeCompute) SystemStats(context.Context) (*client.SystemStats, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeCompute) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fakeStore is an in-memory ObjectStore.
type fakeStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
	err     error
}

func (s *fakeStore) Upload(_ context.Context, key string, body io.Reader, _ int64, contentType string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.objects == nil {
		s.objects = map[string][]byte{}
		s.types = map[string]string{}
	}
	s.objects[key] = data
	s.types[key] = contentType
	return s.PublicURL(key), nil
}

func (s *fakeStore) PublicURL(key string) string {
	return "https://cdn.test/" + key
}

// historyWith returns a history function reporting entry for prompt-1 from
// call `from` onwards and nothing before.
func historyWith(from int, entry client.HistoryEntry) func(int) (client.History, error) {
	return func(n int) (client.History, error) {
		if n < from {
			return client.History{}, nil
		}
		return client.History{"prompt-1": entry}, nil
	}
}

func rawMessages(msgs ...string) []json.RawMessage {
	out := make([]json.RawMessage, len(msgs))
	for i, m := range msgs {
		out[i] = json.RawMessage(m)
	}
	return out
}
