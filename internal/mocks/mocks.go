// Package mocks provides shared testify mocks for the automation core's
// interfaces, so packages can unit test without a live browser.
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/xkilldash9x/casewatch/internal/browser"
)

// MockDriver is a testify mock of browser.Driver.
type MockDriver struct {
	mock.Mock
}

var _ browser.Driver = (*MockDriver)(nil)

func (m *MockDriver) Navigate(ctx context.Context, url string) error {
	args := m.Called(ctx, url)
	return args.Error(0)
}

func (m *MockDriver) Location(ctx context.Context) (string, string, error) {
	args := m.Called(ctx)
	return args.String(0), args.String(1), args.Error(2)
}

func (m *MockDriver) Reload(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockDriver) Nodes(ctx context.Context, selector string) ([]browser.ElementHandle, error) {
	args := m.Called(ctx, selector)
	var handles []browser.ElementHandle
	if v := args.Get(0); v != nil {
		handles = v.([]browser.ElementHandle)
	}
	return handles, args.Error(1)
}

func (m *MockDriver) Screenshot(ctx context.Context, el browser.ElementHandle) ([]byte, error) {
	args := m.Called(ctx, el)
	var buf []byte
	if v := args.Get(0); v != nil {
		buf = v.([]byte)
	}
	return buf, args.Error(1)
}

func (m *MockDriver) Click(ctx context.Context, el browser.ElementHandle) error {
	args := m.Called(ctx, el)
	return args.Error(0)
}

func (m *MockDriver) ScriptClick(ctx context.Context, el browser.ElementHandle) error {
	args := m.Called(ctx, el)
	return args.Error(0)
}

func (m *MockDriver) Clear(ctx context.Context, el browser.ElementHandle) error {
	args := m.Called(ctx, el)
	return args.Error(0)
}

func (m *MockDriver) Type(ctx context.Context, el browser.ElementHandle, text string) error {
	args := m.Called(ctx, el, text)
	return args.Error(0)
}

func (m *MockDriver) Checked(ctx context.Context, el browser.ElementHandle) (bool, error) {
	args := m.Called(ctx, el)
	return args.Bool(0), args.Error(1)
}

func (m *MockDriver) OuterHTML(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *MockDriver) Close(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
