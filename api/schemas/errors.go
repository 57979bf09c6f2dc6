package schemas

import "errors"

// Failure taxonomy shared across the automation core. Callers classify with
// errors.Is; everything except ErrDriverFailure is recoverable at some level.
var (
	// ErrElementNotFound means every query in a locator cascade was exhausted
	// without a usable match. The page may legitimately look different (already
	// logged in, mid-render), so callers decide the fallback.
	ErrElementNotFound = errors.New("element not found")

	// ErrRecognitionFailed means the recognition pipeline produced no code of
	// the required length after its full refresh/retry budget.
	ErrRecognitionFailed = errors.New("captcha recognition failed")

	// ErrAuthenticationFailed means a login attempt completed but the session
	// did not become authenticated.
	ErrAuthenticationFailed = errors.New("authentication failed")

	// ErrInteractionFailed means a click or keystroke was rejected by the page
	// (intercepted, detached node) after the scripted fallback was also tried.
	ErrInteractionFailed = errors.New("element interaction failed")

	// ErrDriverFailure means the browser session itself is gone. Fatal for the
	// current session; requires a stop/start to recover.
	ErrDriverFailure = errors.New("browser driver failure")

	// ErrInvalidCode means an operator-supplied code failed basic validation.
	ErrInvalidCode = errors.New("invalid verification code")
)
