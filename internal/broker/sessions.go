package broker

import (
	"query-broker/internal/domain"

	"github.com/google/uuid"
)

type session struct {
	sink           domain.ResultSink
	lastSubmission int64
}

// SessionRouter maps session ids to the sinks their results are delivered to.
// It is not safe for concurrent use.
type SessionRouter struct {
	sessions map[string]*session
	newID    func() string
}

// NewSessionRouter creates an empty router that names sessions with random UUIDs.
func NewSessionRouter() *SessionRouter {
	return &SessionRouter{
		sessions: make(map[string]*session),
		newID:    uuid.NewString,
	}
}

// Create registers a sink under a fresh session id.
func (r *SessionRouter) Create(sink domain.ResultSink) string {
	id := r.newID()
	r.sessions[id] = &session{sink: sink}
	return id
}

// Remove forgets a session. Assignments that reference it are left untouched.
func (r *SessionRouter) Remove(id string) {
	delete(r.sessions, id)
}

// Lookup returns the sink for a session. A miss is expected once the client has gone.
func (r *SessionRouter) Lookup(id string) (domain.ResultSink, bool) {
	s, ok := r.sessions[id]
	if !ok {
		return nil, false
	}
	return s.sink, true
}

// NextSubmission returns the submission timestamp for a new task from the session.
// Timestamps are strictly increasing per session so that two queries sent within the
// same millisecond still get distinct task keys.
func (r *SessionRouter) NextSubmission(id string, nowMs int64) int64 {
	s, ok := r.sessions[id]
	if !ok {
		return nowMs
	}
	if nowMs <= s.lastSubmission {
		nowMs = s.lastSubmission + 1
	}
	s.lastSubmission = nowMs
	return nowMs
}

// Len returns the number of open sessions.
func (r *SessionRouter) Len() int {
	return len(r.sessions)
}
