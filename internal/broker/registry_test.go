package broker

import (
	"testing"
	"time"

	"query-broker/internal/domain"
)

func TestRegistryKeepsRegistrationOrderOnUpsert(t *testing.T) {
	r := NewRegistry()
	t0 := time.Unix(100, 0)
	r.Register("w1", "Go", domain.WorkerStatusBusy, t0)
	r.Register("w2", "Python", domain.WorkerStatusIdle, t0)
	r.Register("w1", "Java", domain.WorkerStatusIdle, t0.Add(time.Second))

	snap := r.Snapshot()
	if len(snap) != 2 || snap[0].ID != "w1" || snap[1].ID != "w2" {
		t.Fatalf("unexpected order: %+v", snap)
	}
	if snap[0].Capability != "Java" || snap[0].Status != domain.WorkerStatusIdle {
		t.Fatalf("re-registration should overwrite capability and status, got %+v", snap[0])
	}
	if !snap[0].RegisteredAt.Equal(t0) || !snap[0].LastSeen.Equal(t0.Add(time.Second)) {
		t.Fatalf("unexpected timestamps: %+v", snap[0])
	}

	if id, ok := r.FindIdle(nil); !ok || id != "w1" {
		t.Fatalf("expected w1 as first idle worker, got %q %v", id, ok)
	}
}

func TestRegistrySetStatusIgnoresUnknownWorkers(t *testing.T) {
	r := NewRegistry()
	if r.SetStatus("ghost", domain.WorkerStatusIdle, time.Now()) {
		t.Fatalf("SetStatus on unknown worker should report false")
	}
	if r.Touch("ghost", time.Now()) {
		t.Fatalf("Touch on unknown worker should report false")
	}
	if _, ok := r.Get("ghost"); ok {
		t.Fatalf("unknown worker must not be created")
	}
}

func TestRegistryFindIdle(t *testing.T) {
	r := NewRegistry()
	now := time.Now()
	r.Register("w1", "Go", domain.WorkerStatusBusy, now)
	r.Register("w2", "Go", domain.WorkerStatusIdle, now)
	r.Register("w3", "Python", domain.WorkerStatusIdle, now)

	tests := []struct {
		name   string
		accept func(domain.Worker) bool
		want   string
		found  bool
	}{
		{"any", nil, "w2", true},
		{"python", func(w domain.Worker) bool { return w.Capability == "Python" }, "w3", true},
		{"none", func(w domain.Worker) bool { return w.Capability == "Rust" }, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := r.FindIdle(tt.accept)
			if got != tt.want || ok != tt.found {
				t.Fatalf("FindIdle() = %q, %v; want %q, %v", got, ok, tt.want, tt.found)
			}
		})
	}

	counts := r.CountByStatus()
	if counts[domain.WorkerStatusIdle] != 2 || counts[domain.WorkerStatusBusy] != 1 {
		t.Fatalf("unexpected counts: %v", counts)
	}
}
