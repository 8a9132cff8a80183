package shell

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"query-broker/internal/domain"
)

func newExecutor(command string, timeout time.Duration) domain.TaskExecutor {
	return NewShellTaskExecutor(command, timeout, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestExecuteFeedsQueryOnStdin(t *testing.T) {
	out, err := newExecutor(`tr a-z A-Z; printf ' %s' "$`+APIKeyEnv+`"`, 5*time.Second).
		Execute(context.Background(), &domain.TaskDelivery{Query: "hello", APIKey: "k1"})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if out != "HELLO k1" {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestExecuteReportsStderr(t *testing.T) {
	_, err := newExecutor("echo boom >&2; exit 3", 5*time.Second).
		Execute(context.Background(), &domain.TaskDelivery{Query: "q"})
	if err == nil || !strings.Contains(err.Error(), "boom") {
		t.Fatalf("expected stderr in error, got %v", err)
	}
}

func TestExecuteTimeout(t *testing.T) {
	start := time.Now()
	_, err := newExecutor("sleep 5", 100*time.Millisecond).
		Execute(context.Background(), &domain.TaskDelivery{Query: "q"})
	if err == nil {
		t.Fatalf("expected timeout error")
	}
	if time.Since(start) > 3*time.Second {
		t.Fatalf("command was not killed on timeout")
	}
}
