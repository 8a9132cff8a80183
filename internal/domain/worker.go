package domain

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidWorkerStatus is returned for a status other than idle or busy.
var ErrInvalidWorkerStatus = errors.New("invalid worker status")

// WorkerStatus is the availability of a worker as tracked by the broker.
type WorkerStatus string

const (
	WorkerStatusIdle WorkerStatus = "idle"
	WorkerStatusBusy WorkerStatus = "busy"
)

// ParseWorkerStatus converts a wire value into a WorkerStatus.
// An empty value is treated as idle, matching what workers send on first registration.
func ParseWorkerStatus(s string) (WorkerStatus, error) {
	switch WorkerStatus(s) {
	case "", WorkerStatusIdle:
		return WorkerStatusIdle, nil
	case WorkerStatusBusy:
		return WorkerStatusBusy, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidWorkerStatus, s)
	}
}

// Worker is a remote task-processing unit known to the broker.
// Workers are never removed once registered.
type Worker struct {
	ID           string       `json:"id"`
	Capability   string       `json:"capability"` // free-form label, e.g. "Go" or "Python"
	Status       WorkerStatus `json:"status"`
	RegisteredAt time.Time    `json:"registered_at"`
	LastSeen     time.Time    `json:"last_seen"`
}
