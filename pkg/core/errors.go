package core

import "errors"

var (
	// ErrMissingTenant rejects jobs without a tenant identifier at
	// enqueue time; malformed jobs are never admitted to the queue.
	ErrMissingTenant = errors.New("orchestrator: job has no tenant id")

	// ErrInvalidPriority rejects priority values outside low/medium/high.
	ErrInvalidPriority = errors.New("orchestrator: invalid priority")

	// ErrJobNotOwned is returned when a worker tries to complete or fail
	// a job claimed by a different worker.
	ErrJobNotOwned = errors.New("orchestrator: job not owned by this worker")

	// ErrNoSignalData marks an empty signal-store read. The worker
	// treats it as a retryable failure, same as a transport error.
	ErrNoSignalData = errors.New("orchestrator: no signal data for tenant")
)

// NoRetryError wraps an error that must not be retried: the job is
// dropped on the first failure regardless of its remaining budget.
type NoRetryError struct {
	Err error
}

func (e *NoRetryError) Error() string {
	return "no retry: " + e.Err.Error()
}

func (e *NoRetryError) Unwrap() error {
	return e.Err
}

// NoRetry wraps an error to indicate it should not be retried.
func NoRetry(err error) error {
	return &NoRetryError{Err: err}
}

// MaxRetryLimit caps MaxRetries so a bad caller cannot schedule a job
// that retries effectively forever.
const MaxRetryLimit = 20

// maxErrorLength bounds stored failure messages.
const maxErrorLength = 2048

// ClampRetries restricts n to [0, MaxRetryLimit].
func ClampRetries(n int) int {
	if n < 0 {
		return 0
	}
	if n > MaxRetryLimit {
		return MaxRetryLimit
	}
	return n
}

// TruncateError bounds an error message before it is persisted on a job
// row or dead-letter record.
func TruncateError(msg string) string {
	if len(msg) > maxErrorLength {
		return msg[:maxErrorLength]
	}
	return msg
}
