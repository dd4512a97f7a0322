package e2e

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/influencerlab/api/internal/client"
	"github.com/influencerlab/api/internal/config"
	"github.com/influencerlab/api/internal/generation"
	"github.com/influencerlab/api/internal/handler"
	"github.com/influencerlab/api/internal/middleware"
	"github.com/influencerlab/api/internal/server"
	"github.com/influencerlab/api/internal/service"
	ws "github.com/influencerlab/api/internal/websocket"
	"github.com/influencerlab/api/internal/worker"
	"github.com/influencerlab/api/internal/workflow"
)

const testRedisAddr = "localhost:6379"

// captureQueue stands in for the asynq client so tests decide when tasks run.
type captureQueue struct {
	mu    sync.Mutex
	tasks []*asynq.Task
}

func (q *captureQueue) Enqueue(task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tasks = append(q.tasks, task)
	return &asynq.TaskInfo{ID: task.Type(), Queue: "test"}, nil
}

func (q *captureQueue) drain() []*asynq.Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	tasks := q.tasks
	q.tasks = nil
	return tasks
}

// computeStub is a minimal GPU backend: it accepts every prompt and reports
// history after pendingPolls empty answers.
type computeStub struct {
	server       *httptest.Server
	pendingPolls int32
	history      string
	media        []byte

	submits atomic.Int32
	polls   atomic.Int32
}

func newComputeStub(t *testing.T, history string) *computeStub {
	t.Helper()
	s := &computeStub{history: history, media: []byte("rendered-bytes"), pendingPolls: 1}

	mux := http.NewServeMux()
	mux.HandleFunc("/prompt", func(w http.ResponseWriter, r *http.Request) {
		s.submits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"prompt_id":"p-1","number":1,"node_errors":{}}`)
	})
	mux.HandleFunc("/history/", func(w http.ResponseWriter, r *http.Request) {
		n := s.polls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		if n <= atomic.LoadInt32(&s.pendingPolls) {
			_, _ = io.WriteString(w, `{}`)
			return
		}
		_, _ = io.WriteString(w, s.history)
	})
	mux.HandleFunc("/view", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(s.media)
	})
	mux.HandleFunc("/system_stats", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"system":{"os":"posix"},"devices":[{"name":"cuda:0","type":"cuda"}]}`)
	})

	s.server = httptest.NewServer(mux)
	t.Cleanup(s.server.Close)
	return s
}

// testApp holds all components needed for testing
type testApp struct {
	app       *fiber.App
	queue     *captureQueue
	worker    *worker.GenerationWorker
	compute   *computeStub
	outputDir string
}

// setupApp wires the production routes against Redis DB 15 and a stub
// compute backend. Tests are skipped when Redis is not running.
func setupApp(t *testing.T, history string) *testApp {
	t.Helper()

	redisClient := redis.NewClient(&redis.Options{
		Addr: testRedisAddr,
		DB:   15, // use DB 15 for tests to avoid collision
	})
	t.Cleanup(func() { redisClient.Close() })

	pingCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		t.Skipf("skipping: redis not available at %s: %v", testRedisAddr, err)
	}

	stub := newComputeStub(t, history)
	outputDir := t.TempDir()
	log := zerolog.Nop()

	cfg := &config.Config{
		Compute: config.ComputeConfig{
			BaseURL:         stub.server.URL,
			Timeout:         5 * time.Second,
			DownloadTimeout: 5 * time.Second,
			Image:           config.PollConfig{Interval: 10 * time.Millisecond, MaxWait: 5 * time.Second},
			Video:           config.PollConfig{Interval: 10 * time.Millisecond, MaxWait: 5 * time.Second},
		},
		Storage: config.StorageConfig{OutputDir: outputDir, PublicPrefix: "/generated/videos"},
	}

	compute := client.NewComputeClient(&cfg.Compute, log)
	orchestrator := generation.NewOrchestrator(cfg, compute, nil, log)

	queue := &captureQueue{}
	svc := service.NewGenerationService(service.NewRedisJobStore(redisClient, time.Hour), queue)

	hub := ws.NewHub(log)
	hubCtx, stopHub := context.WithCancel(context.Background())
	t.Cleanup(stopHub)
	go hub.Run(hubCtx)

	app := server.New(server.Deps{
		Generate: handler.NewGenerateHandler(svc, validator.New(), workflow.DefaultPersonas()),
		Health: handler.NewHealthHandler(compute, func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}, false),
		RateLimiter: middleware.NewRateLimiter(redisClient, log),
		Hub:         hub,
		// Use very high rate limits so tests don't get blocked
		Limits:       server.Limits{ImagePerHour: 10000, VideoPerHour: 10000},
		StaticPrefix: cfg.Storage.PublicPrefix,
		StaticDir:    outputDir,
	})

	return &testApp{
		app:       app,
		queue:     queue,
		worker:    worker.NewGenerationWorker(orchestrator, svc, hub, log),
		compute:   stub,
		outputDir: outputDir,
	}
}

// runQueued executes every task enqueued so far, as the asynq server would.
func (ta *testApp) runQueued(t *testing.T) []error {
	t.Helper()
	var errs []error
	for _, task := range ta.queue.drain() {
		errs = append(errs, ta.worker.ProcessTask(context.Background(), task))
	}
	return errs
}

// doRequest is a helper to perform HTTP requests against the test app.
func doRequest(app *fiber.App, method, path string, body string, headers map[string]string) (*http.Response, error) {
	var bodyReader io.Reader
	if body != "" {
		bodyReader = strings.NewReader(body)
	}

	req, err := http.NewRequest(method, path, bodyReader)
	if err != nil {
		return nil, err
	}

	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return app.Test(req, -1)
}

// readBody reads and returns the response body as a string.
func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	return string(b)
}

// parseJSON parses response body into a map.
func parseJSON(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	body := readBody(t, resp)
	var result map[string]interface{}
	if err := json.Unmarshal([]byte(body), &result); err != nil {
		t.Fatalf("failed to parse JSON: %v\nbody: %s", err, body)
	}
	return result
}

// assertStatus checks the HTTP status code.
func assertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("expected status %d, got %d", expected, resp.StatusCode)
	}
}
