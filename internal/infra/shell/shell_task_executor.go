// Package shell runs queries through a local command, feeding the query on stdin.
package shell

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"query-broker/internal/domain"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// APIKeyEnv is the environment variable the command receives the task credential in.
const APIKeyEnv = "BROKER_API_KEY"

// shellTaskExecutor implements domain.TaskExecutor for shell commands.
type shellTaskExecutor struct {
	command string
	timeout time.Duration
	logger  *slog.Logger
	tracer  trace.Tracer
}

// NewShellTaskExecutor creates an executor that runs command with bash for every task.
func NewShellTaskExecutor(command string, timeout time.Duration, logger *slog.Logger) domain.TaskExecutor {
	return &shellTaskExecutor{
		command: command,
		timeout: timeout,
		logger:  logger.With("executor_type", "shell"),
		tracer:  otel.Tracer("query-broker-shell-executor"),
	}
}

// Execute runs the command with the query on stdin and returns its stdout.
func (e *shellTaskExecutor) Execute(ctx context.Context, task *domain.TaskDelivery) (string, error) {
	ctx, span := e.tracer.Start(ctx, "executor.shell.Execute",
		trace.WithAttributes(
			attribute.String("session.id", task.SessionID),
			attribute.String("shell.command", e.command),
		))
	defer span.End()

	e.logger.Info("executing shell command", "command", e.command, "session_id", task.SessionID)

	execCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	cmd := exec.CommandContext(execCtx, "bash", "-c", e.command)
	cmd.Stdin = strings.NewReader(task.Query)
	cmd.Env = append(cmd.Environ(), APIKeyEnv+"="+task.APIKey)
	cmd.WaitDelay = time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	output := stdout.String()
	if errOutput := stderr.String(); errOutput != "" {
		span.SetAttributes(attribute.String("shell.stderr", errOutput))
	}

	if err != nil {
		span.SetStatus(codes.Error, "shell command failed")
		span.RecordError(err)
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return output, fmt.Errorf("shell command failed: %w: %s", err, msg)
		}
		return output, fmt.Errorf("shell command failed: %w", err)
	}

	e.logger.Info("shell command executed successfully", "session_id", task.SessionID)
	return output, nil
}
