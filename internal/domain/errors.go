package domain

import "errors"

// Error taxonomy. Connectivity failures recover automatically up to the retry
// budget; validation failures are rejected locally before any network call;
// exchange rejections surface on the specific operation only.
var (
	ErrNotInitialized   = errors.New("trading core not initialized")
	ErrNotConnected     = errors.New("stream not connected")
	ErrValidation       = errors.New("order validation failed")
	ErrExchangeRejected = errors.New("exchange rejected request")
	ErrUnknownMarket    = errors.New("unknown market")
)

// Result is the uniform response shape returned to the UI/chat layer.
type Result struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// OK wraps data in a successful Result.
func OK(data any) Result {
	return Result{Success: true, Data: data}
}

// Fail wraps an error in a failed Result.
func Fail(err error) Result {
	if err == nil {
		return Result{Success: false, Error: "unknown error"}
	}
	return Result{Success: false, Error: err.Error()}
}
