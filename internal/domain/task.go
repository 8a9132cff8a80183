package domain

import (
	"fmt"
	"time"
)

// TaskKey identifies a task by the session that submitted it and its submission time
// in unix milliseconds. Workers echo the submission time back in their completion,
// which is how a completion finds its assignment again.
type TaskKey struct {
	SessionID   string
	SubmittedAt int64
}

func (k TaskKey) String() string {
	return fmt.Sprintf("%s_%d", k.SessionID, k.SubmittedAt)
}

// Task is one query awaiting or undergoing processing.
type Task struct {
	SessionID   string `json:"session_id"`
	Query       string `json:"query"`
	APIKey      string `json:"-"`                    // optional explicit credential override
	Capability  string `json:"capability,omitempty"` // only consulted when capability matching is enabled
	SubmittedAt int64  `json:"submitted_at"`
}

// Key returns the task's identity.
func (t Task) Key() TaskKey {
	return TaskKey{SessionID: t.SessionID, SubmittedAt: t.SubmittedAt}
}

// ActiveAssignment records a task that has been handed to a worker and has not yet
// been completed.
type ActiveAssignment struct {
	Key          TaskKey   `json:"-"`
	WorkerID     string    `json:"worker_id"`
	SessionID    string    `json:"session_id"`
	Query        string    `json:"query"`
	CredentialID string    `json:"credential_id,omitempty"`
	DispatchedAt time.Time `json:"dispatched_at"`
}

// TaskDelivery is the message a worker receives on its task topic.
type TaskDelivery struct {
	WorkerID         string `json:"worker_id" validate:"required"`
	SessionID        string `json:"session_id" validate:"required"`
	Query            string `json:"query"`
	APIKey           string `json:"api_key"`
	CallbackEndpoint string `json:"grpc_endpoint" validate:"required"`
	Timestamp        int64  `json:"timestamp"`
}
