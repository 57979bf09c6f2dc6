package monitor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/casewatch/api/schemas"
	"github.com/xkilldash9x/casewatch/internal/browser"
	"github.com/xkilldash9x/casewatch/internal/config"
	"github.com/xkilldash9x/casewatch/internal/locator"
	"github.com/xkilldash9x/casewatch/internal/mocks"
)

type fakeAuth struct {
	authed   []bool
	loginErr error
	logins   int
}

func (f *fakeAuth) Authenticated(context.Context) (bool, error) {
	if len(f.authed) == 0 {
		return true, nil
	}
	next := f.authed[0]
	f.authed = f.authed[1:]
	return next, nil
}

func (f *fakeAuth) Login(context.Context) error {
	f.logins++
	return f.loginErr
}

func monitorCfg(policy schemas.SelectionPolicy) config.MonitorConfig {
	return config.MonitorConfig{
		PollInterval:    time.Millisecond,
		AuthBackoff:     time.Millisecond,
		RecoverySleep:   time.Millisecond,
		SelectionPolicy: policy,
	}
}

func targetCfg() config.TargetConfig {
	return config.TargetConfig{
		AppURL:      "https://example.test/CaseQueue",
		LoginMarker: "login",
		AppMarker:   "CaseQueue",
	}
}

func checkbox(id string) browser.ElementHandle {
	return browser.ElementHandle{ID: id, Tag: "input", Visible: true, Enabled: true}
}

func newMonitor(t *testing.T, drv *mocks.MockDriver, auth Authenticator,
	policy schemas.SelectionPolicy) *Monitor {
	t.Helper()
	logger := zaptest.NewLogger(t)
	return New(drv, locator.New(drv, logger), auth, monitorCfg(policy), targetCfg(), logger)
}

// stubQueuePage serves a queue with the given checkboxes, a confirm button,
// and no work switch. Locate misses fall through to diagnostics.
func stubQueuePage(drv *mocks.MockDriver, boxes []browser.ElementHandle) browser.ElementHandle {
	confirm := browser.ElementHandle{ID: "cf", Tag: "button", Visible: true, Enabled: true}
	drv.On("Navigate", mock.Anything, "https://example.test/CaseQueue").Return(nil)
	drv.On("Nodes", mock.Anything, `div.ant-table-container input[type='checkbox']`).
		Return(boxes, nil)
	drv.On("Nodes", mock.Anything, `button.Confirm_bottom`).
		Return([]browser.ElementHandle{confirm}, nil)
	drv.On("Nodes", mock.Anything, mock.Anything).Return(nil, nil)
	drv.On("Location", mock.Anything).Return("https://example.test/CaseQueue", "Queue", nil)
	drv.On("OuterHTML", mock.Anything).Return("<html></html>", nil)
	return confirm
}

func TestRunOnceSelectsOnlyFirstUnselected(t *testing.T) {
	drv := new(mocks.MockDriver)
	boxes := []browser.ElementHandle{checkbox("b1"), checkbox("b2"), checkbox("b3")}
	confirm := stubQueuePage(drv, boxes)

	// The first box was ticked by an earlier cycle and must not be clicked.
	drv.On("Checked", mock.Anything, boxes[0]).Return(true, nil)
	drv.On("Checked", mock.Anything, boxes[1]).Return(false, nil)
	drv.On("Click", mock.Anything, boxes[1]).Return(nil)
	drv.On("Click", mock.Anything, confirm).Return(nil)

	m := newMonitor(t, drv, &fakeAuth{}, schemas.SelectOne)
	require.NoError(t, m.RunOnce(context.Background()))

	drv.AssertNotCalled(t, "Checked", mock.Anything, boxes[2])
	drv.AssertNotCalled(t, "Click", mock.Anything, boxes[2])

	st := m.Status()
	assert.Equal(t, 3, st.CaseCount)
	assert.Equal(t, 1, st.ProcessedTotal)
	assert.Equal(t, schemas.SessionAuthenticated, st.Session)
}

func TestRunOnceSelectAllPolicy(t *testing.T) {
	drv := new(mocks.MockDriver)
	boxes := []browser.ElementHandle{checkbox("b1"), checkbox("b2"), checkbox("b3")}
	confirm := stubQueuePage(drv, boxes)

	for _, b := range boxes {
		drv.On("Checked", mock.Anything, b).Return(false, nil)
		drv.On("Click", mock.Anything, b).Return(nil)
	}
	drv.On("Click", mock.Anything, confirm).Return(nil)

	m := newMonitor(t, drv, &fakeAuth{}, schemas.SelectAll)
	require.NoError(t, m.RunOnce(context.Background()))
	assert.Equal(t, 3, m.Status().ProcessedTotal)
}

func TestRunOnceEmptyQueueSkipsConfirm(t *testing.T) {
	drv := new(mocks.MockDriver)
	stubQueuePage(drv, nil)

	m := newMonitor(t, drv, &fakeAuth{}, schemas.SelectOne)
	require.NoError(t, m.RunOnce(context.Background()))

	drv.AssertNotCalled(t, "Click", mock.Anything, mock.Anything)
	assert.Equal(t, 0, m.Status().CaseCount)
}

func TestRunOnceReauthenticatesExpiredSession(t *testing.T) {
	drv := new(mocks.MockDriver)
	stubQueuePage(drv, nil)

	auth := &fakeAuth{authed: []bool{false}}
	m := newMonitor(t, drv, auth, schemas.SelectOne)
	require.NoError(t, m.RunOnce(context.Background()))

	assert.Equal(t, 1, auth.logins)
	// The queue page is re-entered after signing in.
	drv.AssertNumberOfCalls(t, "Navigate", 2)
	assert.Equal(t, schemas.SessionAuthenticated, m.Status().Session)
}

func TestWorkSwitchEnabledWhenOff(t *testing.T) {
	drv := new(mocks.MockDriver)
	boxes := []browser.ElementHandle{checkbox("b1")}
	sw := browser.ElementHandle{
		ID: "sw", Tag: "button", Visible: true, Enabled: true,
		Attrs: map[string]string{"aria-checked": "false"},
	}
	confirm := browser.ElementHandle{ID: "cf", Tag: "button", Visible: true, Enabled: true}

	drv.On("Navigate", mock.Anything, mock.Anything).Return(nil)
	drv.On("Nodes", mock.Anything, `div.ant-table-container input[type='checkbox']`).
		Return(boxes, nil)
	drv.On("Nodes", mock.Anything, `button[role='switch']`).
		Return([]browser.ElementHandle{sw}, nil)
	drv.On("Nodes", mock.Anything, `button.Confirm_bottom`).
		Return([]browser.ElementHandle{confirm}, nil)
	drv.On("Nodes", mock.Anything, mock.Anything).Return(nil, nil)
	drv.On("Checked", mock.Anything, boxes[0]).Return(false, nil)
	drv.On("Click", mock.Anything, mock.Anything).Return(nil)

	m := newMonitor(t, drv, &fakeAuth{}, schemas.SelectOne)
	require.NoError(t, m.RunOnce(context.Background()))
	drv.AssertCalled(t, "Click", mock.Anything, sw)
}

func TestWorkSwitchAlreadyOnIsLeftAlone(t *testing.T) {
	drv := new(mocks.MockDriver)
	boxes := []browser.ElementHandle{checkbox("b1")}
	sw := browser.ElementHandle{
		ID: "sw", Tag: "button", Visible: true, Enabled: true,
		Attrs: map[string]string{"aria-checked": "true"},
	}
	confirm := browser.ElementHandle{ID: "cf", Tag: "button", Visible: true, Enabled: true}

	drv.On("Navigate", mock.Anything, mock.Anything).Return(nil)
	drv.On("Nodes", mock.Anything, `div.ant-table-container input[type='checkbox']`).
		Return(boxes, nil)
	drv.On("Nodes", mock.Anything, `button[role='switch']`).
		Return([]browser.ElementHandle{sw}, nil)
	drv.On("Nodes", mock.Anything, `button.Confirm_bottom`).
		Return([]browser.ElementHandle{confirm}, nil)
	drv.On("Nodes", mock.Anything, mock.Anything).Return(nil, nil)
	drv.On("Checked", mock.Anything, boxes[0]).Return(false, nil)
	drv.On("Click", mock.Anything, boxes[0]).Return(nil)
	drv.On("Click", mock.Anything, confirm).Return(nil)

	m := newMonitor(t, drv, &fakeAuth{}, schemas.SelectOne)
	require.NoError(t, m.RunOnce(context.Background()))
	drv.AssertNotCalled(t, "Click", mock.Anything, sw)
}

func TestCountLoggedOnlyOnChange(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	logger := zap.New(core)

	m := New(new(mocks.MockDriver), nil, &fakeAuth{},
		monitorCfg(schemas.SelectOne), targetCfg(), logger)

	// An initial empty queue matches the zero baseline and logs nothing;
	// only the 0->3 and 3->0 transitions count.
	for _, n := range []int{0, 3, 3, 0} {
		m.observeCount(n)
	}

	entries := logs.FilterMessage("Pending case count changed").All()
	require.Len(t, entries, 2)
	assert.Equal(t, int64(3), entries[0].ContextMap()["count"])
	assert.Equal(t, int64(0), entries[1].ContextMap()["count"])
	assert.Equal(t, 0, m.Status().CaseCount)
}

func TestRunStopsOnDriverFailure(t *testing.T) {
	drv := new(mocks.MockDriver)
	drv.On("Navigate", mock.Anything, mock.Anything).Return(schemas.ErrDriverFailure)

	m := newMonitor(t, drv, &fakeAuth{}, schemas.SelectOne)
	err := m.Run(context.Background())
	assert.ErrorIs(t, err, schemas.ErrDriverFailure)

	st := m.Status()
	assert.False(t, st.Running)
	assert.NotEmpty(t, st.LastError)
}

func TestRunStopsWhenContextCancelled(t *testing.T) {
	drv := new(mocks.MockDriver)
	stubQueuePage(drv, nil)

	ctx, cancel := context.WithCancel(context.Background())
	m := newMonitor(t, drv, &fakeAuth{}, schemas.SelectOne)

	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("monitor did not stop after cancellation")
	}
	assert.False(t, m.Status().Running)
}
