package schemas

import "time"

// Credentials carries the login identity handed to the monitor by the control
// surface. Never logged at field level.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// SessionState is the monitor-owned authentication state. The sign-in flow
// only proposes transitions; the monitor publishes them.
type SessionState string

const (
	SessionUnauthenticated SessionState = "unauthenticated"
	SessionAuthenticating  SessionState = "authenticating"
	SessionAuthenticated   SessionState = "authenticated"
	SessionExpired         SessionState = "expired"
)

// SelectionPolicy controls how many pending cases are claimed per cycle.
type SelectionPolicy string

const (
	// SelectOne claims only the first unselected case per cycle.
	SelectOne SelectionPolicy = "select_one"
	// SelectAll claims every unselected case in the cycle.
	SelectAll SelectionPolicy = "select_all"
)

// Status is an immutable snapshot published by the monitor after each cycle.
// Readers get a copy; there is no shared mutable state to lock.
type Status struct {
	Running        bool         `json:"running"`
	Session        SessionState `json:"session"`
	Cycle          int          `json:"cycle"`
	CaseCount      int          `json:"case_count"`
	ProcessedTotal int          `json:"processed_total"`
	LastCheck      time.Time    `json:"last_check"`
	LastError      string       `json:"last_error,omitempty"`
}

// StartRequest is the control surface payload for POST /api/start.
type StartRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// CodeRequest is the control surface payload for POST /api/captcha, filling
// the pending manual-entry slot.
type CodeRequest struct {
	Code string `json:"code"`
}

// APIResponse is the uniform control surface reply envelope.
type APIResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}
