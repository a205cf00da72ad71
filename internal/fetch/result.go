package fetch

import (
	"time"

	"quotefeed/internal/quote"
)

// Result is the uniform outcome of exactly one provider (or cache) lookup.
// It is immutable once returned. Failures travel here as values; the
// orchestrator never lets a provider error escape as anything else.
type Result struct {
	Success   bool            `json:"success"`
	Snapshot  *quote.Snapshot `json:"data,omitempty"`
	Err       string          `json:"error,omitempty"`
	Source    string          `json:"source"`
	ElapsedMS float64         `json:"elapsed_ms"`
}

func success(snap *quote.Snapshot, source string, elapsed time.Duration) Result {
	return Result{
		Success:   true,
		Snapshot:  snap,
		Source:    source,
		ElapsedMS: float64(elapsed) / float64(time.Millisecond),
	}
}

func failure(err error, source string, elapsed time.Duration) Result {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	return Result{
		Success:   false,
		Err:       msg,
		Source:    source,
		ElapsedMS: float64(elapsed) / float64(time.Millisecond),
	}
}
