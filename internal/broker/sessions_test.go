package broker

import "testing"

func TestSessionRouterLifecycle(t *testing.T) {
	r := NewSessionRouter()
	sink := &fakeSink{}

	id := r.Create(sink)
	if id == "" {
		t.Fatalf("expected a session id")
	}
	if other := r.Create(&fakeSink{}); other == id {
		t.Fatalf("session ids must be unique")
	}
	got, ok := r.Lookup(id)
	if !ok || got != sink {
		t.Fatalf("lookup did not return the registered sink")
	}

	r.Remove(id)
	if _, ok := r.Lookup(id); ok {
		t.Fatalf("removed session must not resolve")
	}
	if r.Len() != 1 {
		t.Fatalf("expected one open session, got %d", r.Len())
	}
}

func TestSessionRouterNextSubmissionIsStrictlyIncreasing(t *testing.T) {
	r := NewSessionRouter()
	id := r.Create(&fakeSink{})

	tests := []struct {
		now  int64
		want int64
	}{
		{1000, 1000},
		{1000, 1001},
		{999, 1002},
		{2000, 2000},
	}
	for _, tt := range tests {
		if got := r.NextSubmission(id, tt.now); got != tt.want {
			t.Fatalf("NextSubmission(%d) = %d, want %d", tt.now, got, tt.want)
		}
	}

	other := r.Create(&fakeSink{})
	if got := r.NextSubmission(other, 1000); got != 1000 {
		t.Fatalf("sessions have independent clocks, got %d", got)
	}
}
