package control

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/casewatch/api/schemas"
	"github.com/xkilldash9x/casewatch/internal/config"
)

type fakeRunner struct {
	runErr    error
	onceErr   error
	onceCalls int
	status    schemas.Status
}

func (f *fakeRunner) Run(ctx context.Context) error {
	if f.runErr != nil {
		return f.runErr
	}
	<-ctx.Done()
	return ctx.Err()
}

func (f *fakeRunner) RunOnce(context.Context) error {
	f.onceCalls++
	return f.onceErr
}

func (f *fakeRunner) Status() schemas.Status { return f.status }

// fakeFactory counts how many sessions were built and released.
type fakeFactory struct {
	runner   *fakeRunner
	builds   int
	released int
}

func (f *fakeFactory) build(schemas.Credentials, *CodeSlot) (Runner, func(), error) {
	f.builds++
	return f.runner, func() { f.released++ }, nil
}

func newTestServer(t *testing.T, runner *fakeRunner) (*Server, *fakeFactory) {
	t.Helper()
	factory := &fakeFactory{runner: runner}
	cfg := config.ControlConfig{ListenAddr: ":0", ShutdownTimeout: time.Second}
	return NewServer(factory.build, cfg, zaptest.NewLogger(t)), factory
}

func do(s *Server, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func startReq() schemas.StartRequest {
	return schemas.StartRequest{Username: "operator", Password: "hunter2"}
}

// waitLoopDone blocks until the monitor goroutine has exited.
func waitLoopDone(t *testing.T, s *Server) {
	t.Helper()
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	require.NotNil(t, done)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("monitor loop did not finish")
	}
}

func TestStartRequiresCredentials(t *testing.T) {
	s, _ := newTestServer(t, &fakeRunner{})
	rec := do(s, http.MethodPost, "/api/start", schemas.StartRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStartWhileRunningIsRejected(t *testing.T) {
	s, _ := newTestServer(t, &fakeRunner{})
	defer s.Shutdown(context.Background())

	rec := do(s, http.MethodPost, "/api/start", startReq())
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(s, http.MethodPost, "/api/start", startReq())
	assert.Equal(t, http.StatusConflict, rec.Code)

	var resp schemas.APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Message, "already running")
}

func TestStopReleasesSession(t *testing.T) {
	runner := &fakeRunner{}
	s, factory := newTestServer(t, runner)
	defer s.Shutdown(context.Background())

	require.Equal(t, http.StatusOK, do(s, http.MethodPost, "/api/start", startReq()).Code)
	require.Equal(t, http.StatusOK, do(s, http.MethodPost, "/api/stop", nil).Code)
	assert.Equal(t, 1, factory.released)

	// The session is gone, so a single cycle now needs a fresh start.
	rec := do(s, http.MethodPost, "/api/run-once", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Zero(t, runner.onceCalls)
}

func TestRestartAfterStopBuildsFreshSession(t *testing.T) {
	s, factory := newTestServer(t, &fakeRunner{})
	defer s.Shutdown(context.Background())

	require.Equal(t, http.StatusOK, do(s, http.MethodPost, "/api/start", startReq()).Code)
	require.Equal(t, http.StatusOK, do(s, http.MethodPost, "/api/stop", nil).Code)
	require.Equal(t, http.StatusOK, do(s, http.MethodPost, "/api/start", startReq()).Code)

	assert.Equal(t, 2, factory.builds)
	assert.Equal(t, 1, factory.released)
}

func TestStartAfterLoopFailureBuildsFreshSession(t *testing.T) {
	runner := &fakeRunner{runErr: errors.New("websocket: close 1006")}
	s, factory := newTestServer(t, runner)
	defer s.Shutdown(context.Background())

	require.Equal(t, http.StatusOK, do(s, http.MethodPost, "/api/start", startReq()).Code)
	waitLoopDone(t, s)

	// The dead session must not be reattached on restart.
	require.Equal(t, http.StatusOK, do(s, http.MethodPost, "/api/start", startReq()).Code)
	assert.Equal(t, 2, factory.builds)
	assert.Equal(t, 1, factory.released)
}

func TestRunOnceBeforeStartIsRejected(t *testing.T) {
	s, _ := newTestServer(t, &fakeRunner{})
	rec := do(s, http.MethodPost, "/api/run-once", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestRunOnceWhileLoopRunningIsRejected(t *testing.T) {
	runner := &fakeRunner{}
	s, _ := newTestServer(t, runner)
	defer s.Shutdown(context.Background())

	require.Equal(t, http.StatusOK, do(s, http.MethodPost, "/api/start", startReq()).Code)

	rec := do(s, http.MethodPost, "/api/run-once", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Zero(t, runner.onceCalls)
}

func TestRunOnceAfterLoopEnded(t *testing.T) {
	runner := &fakeRunner{runErr: errors.New("target closed")}
	s, _ := newTestServer(t, runner)
	defer s.Shutdown(context.Background())

	require.Equal(t, http.StatusOK, do(s, http.MethodPost, "/api/start", startReq()).Code)
	waitLoopDone(t, s)

	rec := do(s, http.MethodPost, "/api/run-once", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, runner.onceCalls)

	var resp schemas.APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
}

func TestRunOnceFailureIsReported(t *testing.T) {
	runner := &fakeRunner{runErr: errors.New("target closed"), onceErr: errors.New("cycle failed")}
	s, _ := newTestServer(t, runner)
	defer s.Shutdown(context.Background())

	require.Equal(t, http.StatusOK, do(s, http.MethodPost, "/api/start", startReq()).Code)
	waitLoopDone(t, s)

	rec := do(s, http.MethodPost, "/api/run-once", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp schemas.APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Message, "cycle failed")
}

func TestStatusBeforeStart(t *testing.T) {
	s, _ := newTestServer(t, &fakeRunner{})
	rec := do(s, http.MethodGet, "/api/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var st schemas.Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.False(t, st.Running)
	assert.Equal(t, schemas.SessionUnauthenticated, st.Session)
}

func TestStatusReflectsRunner(t *testing.T) {
	runner := &fakeRunner{status: schemas.Status{
		Running:   true,
		Session:   schemas.SessionAuthenticated,
		CaseCount: 2,
	}}
	s, _ := newTestServer(t, runner)
	defer s.Shutdown(context.Background())

	require.Equal(t, http.StatusOK, do(s, http.MethodPost, "/api/start", startReq()).Code)

	var st schemas.Status
	rec := do(s, http.MethodGet, "/api/status", nil)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.Equal(t, 2, st.CaseCount)
	assert.Equal(t, schemas.SessionAuthenticated, st.Session)
}

func TestCodeEndpointFillsSlot(t *testing.T) {
	s, _ := newTestServer(t, &fakeRunner{})

	rec := do(s, http.MethodPost, "/api/captcha", schemas.CodeRequest{Code: "4711"})
	require.Equal(t, http.StatusOK, rec.Code)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	code, err := s.slot.Prompt(ctx)
	require.NoError(t, err)
	assert.Equal(t, "4711", code)
}

func TestCodeEndpointRejectsEmptyCode(t *testing.T) {
	s, _ := newTestServer(t, &fakeRunner{})
	rec := do(s, http.MethodPost, "/api/captcha", schemas.CodeRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCodeSlotKeepsLatestEntry(t *testing.T) {
	slot := NewCodeSlot()
	slot.Fill("1111")
	slot.Fill("2222")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	code, err := slot.Prompt(ctx)
	require.NoError(t, err)
	assert.Equal(t, "2222", code)
}

func TestMethodsAreEnforced(t *testing.T) {
	s, _ := newTestServer(t, &fakeRunner{})
	rec := do(s, http.MethodGet, "/api/start", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
