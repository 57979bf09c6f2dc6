package locator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/casewatch/api/schemas"
	"github.com/xkilldash9x/casewatch/internal/browser"
	"github.com/xkilldash9x/casewatch/internal/mocks"
)

func handle(id string, opts ...func(*browser.ElementHandle)) browser.ElementHandle {
	el := browser.ElementHandle{
		ID:      id,
		Tag:     "input",
		Visible: true,
		Enabled: true,
		Box:     browser.Box{X: 0, Y: 0, W: 100, H: 30},
	}
	for _, opt := range opts {
		opt(&el)
	}
	return el
}

func TestLocateWalksCascadeInOrder(t *testing.T) {
	drv := new(mocks.MockDriver)
	l := New(drv, zaptest.NewLogger(t))

	// First two rungs miss, the third hits.
	drv.On("Nodes", mock.Anything, `input[placeholder*='account']`).Return(nil, nil).Once()
	drv.On("Nodes", mock.Anything, `input[placeholder*='Account']`).Return(nil, nil).Once()
	drv.On("Nodes", mock.Anything, `input[name='username']`).
		Return([]browser.ElementHandle{handle("u1")}, nil).Once()

	el, err := l.Locate(context.Background(), RoleUsername)
	require.NoError(t, err)
	assert.Equal(t, "u1", el.ID)
	drv.AssertExpectations(t)
}

func TestLocateSkipsHiddenAndDisabled(t *testing.T) {
	drv := new(mocks.MockDriver)
	l := New(drv, zaptest.NewLogger(t))

	hidden := handle("h1", func(e *browser.ElementHandle) { e.Visible = false })
	disabled := handle("d1", func(e *browser.ElementHandle) { e.Enabled = false })
	good := handle("g1")

	drv.On("Nodes", mock.Anything, `input[placeholder*='password']`).
		Return([]browser.ElementHandle{hidden, disabled, good}, nil).Once()

	el, err := l.Locate(context.Background(), RolePassword)
	require.NoError(t, err)
	assert.Equal(t, "g1", el.ID)
}

func TestLocateCaptchaImageSizeWindow(t *testing.T) {
	drv := new(mocks.MockDriver)
	l := New(drv, zaptest.NewLogger(t))

	// A full-page canvas must be rejected, the small one accepted.
	big := handle("big", func(e *browser.ElementHandle) {
		e.Tag = "canvas"
		e.Box = browser.Box{W: 1280, H: 800}
	})
	small := handle("small", func(e *browser.ElementHandle) {
		e.Tag = "canvas"
		e.Box = browser.Box{W: 120, H: 40}
	})

	drv.On("Nodes", mock.Anything, `canvas`).
		Return([]browser.ElementHandle{big, small}, nil).Once()

	el, err := l.Locate(context.Background(), RoleCaptchaImage)
	require.NoError(t, err)
	assert.Equal(t, "small", el.ID)
}

func TestLocateMissReturnsElementNotFound(t *testing.T) {
	drv := new(mocks.MockDriver)
	l := New(drv, zaptest.NewLogger(t))

	drv.On("Nodes", mock.Anything, mock.Anything).Return(nil, nil)
	drv.On("Location", mock.Anything).Return("https://example.test/login", "Login", nil)
	drv.On("OuterHTML", mock.Anything).
		Return(`<html><body><input type="text" name="q"/><button>Go</button></body></html>`, nil)

	_, err := l.Locate(context.Background(), RoleCodeEntry)
	assert.ErrorIs(t, err, schemas.ErrElementNotFound)
}

func TestLocateAllReturnsFirstYieldingRung(t *testing.T) {
	drv := new(mocks.MockDriver)
	l := New(drv, zaptest.NewLogger(t))

	// The table-scoped rung yields two boxes; later rungs must not run.
	drv.On("Nodes", mock.Anything, `div.ant-table-container input[type='checkbox']`).
		Return([]browser.ElementHandle{handle("c1"), handle("c2")}, nil).Once()

	els, err := l.LocateAll(context.Background(), RoleCaseCheckbox)
	require.NoError(t, err)
	require.Len(t, els, 2)
	assert.Equal(t, "c1", els[0].ID)
	drv.AssertNotCalled(t, "Nodes", mock.Anything, `input[type='checkbox']`)
}

func TestLocateAllEmptyIsNotError(t *testing.T) {
	drv := new(mocks.MockDriver)
	l := New(drv, zaptest.NewLogger(t))

	drv.On("Nodes", mock.Anything, mock.Anything).Return(nil, nil)

	els, err := l.LocateAll(context.Background(), RoleCaseCheckbox)
	require.NoError(t, err)
	assert.Empty(t, els)
}

func TestSignInTextFilter(t *testing.T) {
	drv := new(mocks.MockDriver)
	l := New(drv, zaptest.NewLogger(t))

	cancel := handle("b1", func(e *browser.ElementHandle) { e.Tag = "button"; e.Text = "Cancel" })
	signin := handle("b2", func(e *browser.ElementHandle) { e.Tag = "button"; e.Text = "Sign In" })

	drv.On("Nodes", mock.Anything, `button[type='submit']`).Return(nil, nil).Once()
	drv.On("Nodes", mock.Anything, `input[type='submit']`).Return(nil, nil).Once()
	drv.On("Nodes", mock.Anything, `button`).
		Return([]browser.ElementHandle{cancel, signin}, nil).Once()

	el, err := l.Locate(context.Background(), RoleSignIn)
	require.NoError(t, err)
	assert.Equal(t, "b2", el.ID)
}
