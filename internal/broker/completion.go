package broker

import (
	"context"
	"fmt"
	"log/slog"

	"query-broker/internal/domain"
	"query-broker/internal/metrics"
)

const completionAckMessage = "result received"

// CompletionHandler processes the callbacks workers send when a task finishes.
// It accepts every completion, including ones for unknown workers, sessions or tasks.
type CompletionHandler struct {
	d      *Dispatcher
	logger *slog.Logger
}

// NewCompletionHandler creates a handler that frees workers on the given dispatcher.
func NewCompletionHandler(d *Dispatcher, logger *slog.Logger) *CompletionHandler {
	return &CompletionHandler{
		d:      d,
		logger: logger.With("component", "completion-handler"),
	}
}

// Complete routes a worker's result back to its session, frees the worker and lets the
// dispatcher hand it the next waiting task.
func (h *CompletionHandler) Complete(ctx context.Context, rec domain.CompletionRecord) domain.CompletionAck {
	d := h.d
	var fx effects
	key := rec.Key()

	d.mu.Lock()
	h.logger.Info("result received", "worker_id", rec.WorkerID, "session_id", rec.SessionID, "task", key.String())
	d.publish(&fx, "Master received result from worker %s for session %s", rec.WorkerID, rec.SessionID)

	if a, ok := d.active[key]; ok {
		delete(d.active, key)
		if a.WorkerID != rec.WorkerID {
			// The task is done either way; release the worker it was assigned to.
			d.report(&fx, domain.Diagnostic{
				Kind:      domain.DiagStatusConflict,
				WorkerID:  a.WorkerID,
				SessionID: rec.SessionID,
				Detail:    fmt.Sprintf("completion for task %s reported by %s, assigned to %s", key, rec.WorkerID, a.WorkerID),
			})
			if held, ok := d.byWorker[a.WorkerID]; ok && held == key {
				delete(d.byWorker, a.WorkerID)
			}
			h.freeWorkerLocked(a.WorkerID, &fx)
		}
	} else {
		d.report(&fx, domain.Diagnostic{
			Kind:      domain.DiagUnknownAssignment,
			WorkerID:  rec.WorkerID,
			SessionID: rec.SessionID,
			Detail:    fmt.Sprintf("completion for task %s with no active assignment", key),
		})
	}
	if held, ok := d.byWorker[rec.WorkerID]; ok && held == key {
		delete(d.byWorker, rec.WorkerID)
	}

	if sink, ok := d.sessions.Lookup(rec.SessionID); ok {
		resp := domain.ResponseReady{
			Query:          rec.OriginalQuery,
			Response:       rec.AIResponse,
			WorkerID:       rec.WorkerID,
			ProcessingTime: rec.ProcessingTimeMs,
			Timestamp:      rec.CompletionTimestamp,
		}
		fx.add(func(context.Context) {
			if err := sink.SendResponse(resp); err != nil {
				h.logger.Warn("failed to deliver response to session", "session_id", rec.SessionID, "error", err)
			}
		})
		metrics.CompletionsTotal.WithLabelValues("delivered").Inc()
	} else {
		d.report(&fx, domain.Diagnostic{
			Kind:      domain.DiagUnroutableCompletion,
			WorkerID:  rec.WorkerID,
			SessionID: rec.SessionID,
			Detail:    fmt.Sprintf("session gone, response for task %s dropped", key),
		})
		metrics.CompletionsTotal.WithLabelValues("dropped").Inc()
	}

	h.freeWorkerLocked(rec.WorkerID, &fx)
	d.rematchLocked(&fx)
	d.observeLocked()
	d.mu.Unlock()

	fx.run(ctx)
	return domain.CompletionAck{Success: true, Message: completionAckMessage}
}

// freeWorkerLocked marks the worker idle unless it is still bound to a different task,
// which happens when a stale or duplicate completion arrives after a newer dispatch.
func (h *CompletionHandler) freeWorkerLocked(workerID string, fx *effects) {
	d := h.d
	if other, ok := d.byWorker[workerID]; ok {
		d.report(fx, domain.Diagnostic{
			Kind:     domain.DiagStatusConflict,
			WorkerID: workerID,
			Detail:   fmt.Sprintf("completion ignored for worker status, still assigned task %s", other),
		})
		return
	}
	if !d.registry.SetStatus(workerID, domain.WorkerStatusIdle, d.now()) {
		h.logger.Warn("completion from unregistered worker", "worker_id", workerID)
	}
}
