package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cwbudde/crabalign/internal/store"
)

func newTestServer(t *testing.T, resultStore store.Store, opts Options) (*Server, *httptest.Server) {
	t.Helper()
	s := NewServer(":0", resultStore, opts)
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		srv.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.Shutdown(ctx)
	})
	return s, srv
}

func postJob(t *testing.T, url string, config JobConfig) *http.Response {
	t.Helper()
	body, err := json.Marshal(config)
	require.NoError(t, err)
	resp, err := http.Post(url+"/api/v1/jobs", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	return resp
}

// waitForState polls the status endpoint until the job reaches a terminal state
func waitForState(t *testing.T, url, jobID string) JobStatus {
	t.Helper()
	var status JobStatus
	require.Eventually(t, func() bool {
		resp, err := http.Get(url + "/api/v1/jobs/" + jobID + "/status")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
			return false
		}
		return status.State.Terminal()
	}, 5*time.Second, 10*time.Millisecond)
	return status
}

func TestServer_CreateJob(t *testing.T) {
	_, srv := newTestServer(t, nil, Options{})

	resp := postJob(t, srv.URL, JobConfig{Positions: samplePositions, CostModel: "triangular"})
	defer resp.Body.Close()

	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var job Job
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&job))
	assert.NotEmpty(t, job.ID)
	assert.Equal(t, StatePending, job.State)
	assert.Equal(t, "triangular", job.Config.CostModel)

	status := waitForState(t, srv.URL, job.ID)
	assert.Equal(t, StateCompleted, status.State)
	assert.Equal(t, 5, status.Target)
	assert.Equal(t, 168, status.Total)
	assert.Len(t, status.Costs, len(samplePositions))
	assert.GreaterOrEqual(t, status.Elapsed, 0.0)
}

func TestServer_CreateJob_Rejected(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"invalid json", `{"positions":`},
		{"unknown cost model", `{"positions":[1,2],"costModel":"quadratic"}`},
		{"unknown strategy", `{"positions":[1,2],"strategy":"genetic"}`},
		{"negative position", `{"positions":[1,-2]}`},
		{"range too large", `{"positions":[0,9223372036854775807]}`},
	}

	_, srv := newTestServer(t, nil, Options{})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Post(srv.URL+"/api/v1/jobs", "application/json", strings.NewReader(tt.body))
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}
}

func TestServer_EmptyPositionsFail(t *testing.T) {
	_, srv := newTestServer(t, nil, Options{})

	resp := postJob(t, srv.URL, JobConfig{Positions: []int{}})
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var job Job
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&job))

	status := waitForState(t, srv.URL, job.ID)
	assert.Equal(t, StateFailed, status.State)
	assert.Contains(t, status.Error, "invalid input")
}

func TestServer_ListJobs(t *testing.T) {
	s, srv := newTestServer(t, nil, Options{})

	s.jobManager.CreateJob(JobConfig{Positions: []int{1, 2}})
	s.jobManager.CreateJob(JobConfig{Positions: []int{3, 4}})

	resp, err := http.Get(srv.URL + "/api/v1/jobs")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	var jobs []Job
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&jobs))
	assert.Len(t, jobs, 2)
}

func TestServer_JobRoutes(t *testing.T) {
	s, srv := newTestServer(t, nil, Options{})
	job := s.jobManager.CreateJob(JobConfig{Positions: []int{1, 2}})

	tests := []struct {
		name   string
		method string
		path   string
		want   int
	}{
		{"status", http.MethodGet, "/api/v1/jobs/" + job.ID + "/status", http.StatusOK},
		{"bare id", http.MethodGet, "/api/v1/jobs/" + job.ID, http.StatusOK},
		{"unknown job", http.MethodGet, "/api/v1/jobs/nonexistent/status", http.StatusNotFound},
		{"unknown sub-resource", http.MethodGet, "/api/v1/jobs/" + job.ID + "/best.png", http.StatusNotFound},
		{"missing id", http.MethodGet, "/api/v1/jobs/", http.StatusBadRequest},
		{"stream unknown job", http.MethodGet, "/api/v1/jobs/nonexistent/stream", http.StatusNotFound},
		{"put jobs", http.MethodPut, "/api/v1/jobs", http.StatusMethodNotAllowed},
		{"preflight", http.MethodOptions, "/api/v1/jobs", http.StatusOK},
		{"health", http.MethodGet, "/healthz", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequest(tt.method, srv.URL+tt.path, nil)
			require.NoError(t, err)
			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, tt.want, resp.StatusCode)
			assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
		})
	}
}

func TestServer_Results(t *testing.T) {
	fsStore, err := store.NewFSStore(t.TempDir())
	require.NoError(t, err)
	_, srv := newTestServer(t, fsStore, Options{})

	resp := postJob(t, srv.URL, JobConfig{Positions: samplePositions})
	var job Job
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&job))
	resp.Body.Close()

	status := waitForState(t, srv.URL, job.ID)
	require.Equal(t, StateCompleted, status.State)

	// List
	resp, err = http.Get(srv.URL + "/api/v1/results")
	require.NoError(t, err)
	var infos []store.RecordInfo
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&infos))
	resp.Body.Close()
	require.Len(t, infos, 1)
	assert.Equal(t, job.ID, infos[0].ID)
	assert.Equal(t, 37, infos[0].Total)

	// Show
	resp, err = http.Get(srv.URL + "/api/v1/results/" + job.ID)
	require.NoError(t, err)
	var rec store.Record
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&rec))
	resp.Body.Close()
	assert.Equal(t, 2, rec.Target)
	assert.Equal(t, samplePositions, rec.Positions)

	// Delete, then the record is gone
	req, err := http.NewRequest(http.MethodDelete, srv.URL+"/api/v1/results/"+job.ID, nil)
	require.NoError(t, err)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/api/v1/results/" + job.ID)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_ResultIDCannotEscapeDataDir(t *testing.T) {
	dataDir := filepath.Join(t.TempDir(), "data")
	fsStore, err := store.NewFSStore(dataDir)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dataDir, "keep.txt"), []byte("x"), 0644))
	_, srv := newTestServer(t, fsStore, Options{})

	for _, method := range []string{http.MethodDelete, http.MethodGet} {
		for _, id := range []string{"%2e%2e", "..%5C..", "a%5Cb"} {
			req, err := http.NewRequest(method, srv.URL+"/api/v1/results/"+id, nil)
			require.NoError(t, err)
			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			resp.Body.Close()

			assert.Contains(t, []int{http.StatusBadRequest, http.StatusNotFound}, resp.StatusCode, "%s %s", method, id)
		}
	}

	_, err = os.Stat(filepath.Join(dataDir, "keep.txt"))
	assert.NoError(t, err, "data directory must survive")
}

func TestServer_ResultsWithoutStore(t *testing.T) {
	_, srv := newTestServer(t, nil, Options{})

	for _, path := range []string{"/api/v1/results", "/api/v1/results/abc"} {
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusNotImplemented, resp.StatusCode, path)
	}
}

func TestServer_JobStream_SSE(t *testing.T) {
	s, srv := newTestServer(t, nil, Options{})
	job := s.jobManager.CreateJob(JobConfig{Positions: samplePositions, CostModel: "triangular"})

	resp, err := http.Get(srv.URL + "/api/v1/jobs/" + job.ID + "/stream")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	// The subscription exists once the first event arrives
	reader := bufio.NewReader(resp.Body)
	go runJob(context.Background(), s.jobManager, workerConfig{}, job.ID)

	var events []ProgressEvent
	for {
		line, err := reader.ReadString('\n')
		if err == io.EOF {
			break
		}
		require.NoError(t, err)

		data, ok := strings.CutPrefix(strings.TrimSpace(line), "data: ")
		if !ok {
			continue
		}
		var event ProgressEvent
		require.NoError(t, json.Unmarshal([]byte(data), &event))
		events = append(events, event)
	}

	require.NotEmpty(t, events)
	assert.Equal(t, StatePending, events[0].State)
	last := events[len(events)-1]
	assert.Equal(t, StateCompleted, last.State)
	assert.Equal(t, 5, last.Target)
	assert.Equal(t, 168, last.Total)
	assert.Equal(t, 17, last.Scanned)
}

func TestServer_JobStream_Finished(t *testing.T) {
	s, srv := newTestServer(t, nil, Options{})
	job := s.jobManager.CreateJob(JobConfig{Positions: []int{3, 1}})
	require.NoError(t, runJob(context.Background(), s.jobManager, workerConfig{}, job.ID))

	resp, err := http.Get(srv.URL + "/api/v1/jobs/" + job.ID + "/stream")
	require.NoError(t, err)
	defer resp.Body.Close()

	// A finished job yields one event and the stream ends
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(string(body), "data: "))
	assert.Contains(t, string(body), `"state":"completed"`)
}

func TestServer_JobWebSocket(t *testing.T) {
	s, srv := newTestServer(t, nil, Options{})
	job := s.jobManager.CreateJob(JobConfig{Positions: samplePositions})

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/jobs/" + job.ID + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	go runJob(context.Background(), s.jobManager, workerConfig{}, job.ID)

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var last ProgressEvent
	for {
		var event ProgressEvent
		if err := conn.ReadJSON(&event); err != nil {
			assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "unexpected error: %v", err)
			break
		}
		last = event
	}

	assert.Equal(t, StateCompleted, last.State)
	assert.Equal(t, 2, last.Target)
	assert.Equal(t, 37, last.Total)
}

func TestServer_RateLimit(t *testing.T) {
	_, srv := newTestServer(t, nil, Options{RateLimit: 0.001, Burst: 1})

	resp, err := http.Get(srv.URL + "/api/v1/jobs")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/api/v1/jobs")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "1", resp.Header.Get("Retry-After"))

	// Health checks bypass the limiter
	resp, err = http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServer_Metrics(t *testing.T) {
	_, srv := newTestServer(t, nil, Options{})

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `crabalign_http_requests_total{method="GET",route="/healthz",status="200"}`)
}

func TestServer_ShutdownCancelsJobs(t *testing.T) {
	s := NewServer(":0", nil, Options{})
	job := s.jobManager.CreateJob(JobConfig{Positions: []int{0, 1000000}})
	s.submit(job.ID)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Shutdown(ctx))

	final, _ := s.jobManager.GetJob(job.ID)
	assert.True(t, final.State.Terminal(), "job left in state %s", final.State)
}

func TestEventBroadcaster(t *testing.T) {
	eb := NewEventBroadcaster()

	ch := eb.Subscribe("job1")
	defer eb.Unsubscribe("job1", ch)

	eb.Broadcast(ProgressEvent{JobID: "job1", State: StateRunning, Scanned: 10, Span: 17, Target: 2, Total: 37})
	eb.Broadcast(ProgressEvent{JobID: "job2", State: StateRunning})

	select {
	case received := <-ch:
		assert.Equal(t, "job1", received.JobID)
		assert.Equal(t, 10, received.Scanned)
	case <-time.After(time.Second):
		t.Fatal("Timeout waiting for event")
	}

	select {
	case received := <-ch:
		t.Fatalf("Unexpected event for %s", received.JobID)
	default:
	}

	// Late subscribers get the last event replayed
	late := eb.Subscribe("job1")
	defer eb.Unsubscribe("job1", late)
	assert.Equal(t, 10, (<-late).Scanned)
}

func TestEventBroadcaster_Unsubscribe(t *testing.T) {
	eb := NewEventBroadcaster()
	ch := eb.Subscribe("job1")
	eb.Unsubscribe("job1", ch)

	_, open := <-ch
	assert.False(t, open, "channel should be closed")

	// A second unsubscribe is a no-op
	eb.Unsubscribe("job1", ch)
	eb.Broadcast(ProgressEvent{JobID: "job1"})
}

func TestEventBroadcaster_DropsFinishedJobs(t *testing.T) {
	eb := NewEventBroadcaster()

	// Nobody listening when the job finishes
	eb.Broadcast(ProgressEvent{JobID: "job1", State: StateRunning})
	eb.Broadcast(ProgressEvent{JobID: "job1", State: StateCompleted})
	events, subscribed := eb.tracked()
	assert.Equal(t, 0, events)
	assert.Equal(t, 0, subscribed)

	// The last listener leaves after the job finished
	ch := eb.Subscribe("job2")
	eb.Broadcast(ProgressEvent{JobID: "job2", State: StateFailed})
	events, _ = eb.tracked()
	assert.Equal(t, 1, events)
	eb.Unsubscribe("job2", ch)
	events, subscribed = eb.tracked()
	assert.Equal(t, 0, events)
	assert.Equal(t, 0, subscribed)

	// Running jobs keep their replay state
	ch = eb.Subscribe("job3")
	eb.Broadcast(ProgressEvent{JobID: "job3", State: StateRunning})
	eb.Unsubscribe("job3", ch)
	events, _ = eb.tracked()
	assert.Equal(t, 1, events)
}

func TestServer_PrunesFinishedJobs(t *testing.T) {
	s, srv := newTestServer(t, nil, Options{JobTTL: 10 * time.Millisecond})

	resp := postJob(t, srv.URL, JobConfig{Positions: []int{1, 2, 3}})
	var job Job
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&job))
	resp.Body.Close()

	// The janitor ticks once per second at the shortest
	require.Eventually(t, func() bool {
		_, ok := s.jobManager.GetJob(job.ID)
		return !ok
	}, 5*time.Second, 50*time.Millisecond)

	resp, err := http.Get(srv.URL + "/api/v1/jobs/" + job.ID)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRouteLabel(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/api/v1/jobs", "/api/v1/jobs"},
		{"/api/v1/jobs/abc", "/api/v1/jobs/:id"},
		{"/api/v1/jobs/abc/stream", "/api/v1/jobs/:id/stream"},
		{"/api/v1/results/abc", "/api/v1/results/:id"},
		{"/metrics", "/metrics"},
		{"/api/v1/jobs/abc/ws", "/api/v1/jobs/:id/ws"},
		{"/api/v1/jobs/abc/best.png", "other"},
		{"/api/v1/results/abc/extra", "other"},
		{"/api/v1/jobs/", "other"},
		{"/random", "other"},
		{"/random/../../etc", "other"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, routeLabel(tt.path))
		})
	}
}
