// Package http runs queries against an HTTP generative-AI endpoint.
package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"query-broker/internal/domain"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// maxResponseBytes bounds how much of the upstream body is read.
const maxResponseBytes = 1 << 20

// ErrEmptyCompletion is returned when the upstream answered without any text.
var ErrEmptyCompletion = errors.New("upstream returned no candidates")

type generateRequest struct {
	Contents []content `json:"contents"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
}

type httpTaskExecutor struct {
	endpoint string
	client   *http.Client
	logger   *slog.Logger
	tracer   trace.Tracer
}

// NewHttpTaskExecutor creates an executor that POSTs each query to a
// generateContent-style endpoint, authenticating with the task's API key.
func NewHttpTaskExecutor(endpoint string, timeout time.Duration, logger *slog.Logger) domain.TaskExecutor {
	return &httpTaskExecutor{
		endpoint: endpoint,
		client: &http.Client{
			Timeout: timeout,
		},
		logger: logger.With("executor_type", "http"),
		tracer: otel.Tracer("query-broker-http-executor"),
	}
}

// Execute sends the query upstream and returns the first candidate's text.
func (e *httpTaskExecutor) Execute(ctx context.Context, task *domain.TaskDelivery) (string, error) {
	ctx, span := e.tracer.Start(ctx, "executor.http.Execute",
		trace.WithAttributes(
			attribute.String("session.id", task.SessionID),
			attribute.String("http.url", e.endpoint),
		))
	defer span.End()

	out, err := e.doExecute(ctx, task)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "upstream request failed")
		return "", err
	}
	return out, nil
}

// doExecute performs a single HTTP request execution.
func (e *httpTaskExecutor) doExecute(ctx context.Context, task *domain.TaskDelivery) (string, error) {
	body, err := json.Marshal(generateRequest{
		Contents: []content{{Parts: []part{{Text: task.Query}}}},
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create http request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if task.APIKey != "" {
		req.Header.Set("x-goog-api-key", task.APIKey)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := e.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 500 {
		return "", fmt.Errorf("http request returned 5xx server error: %s", resp.Status)
	}
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("http request returned 4xx client error: %s", resp.Status)
	}

	var gen generateResponse
	if err := json.Unmarshal(bodyBytes, &gen); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	if len(gen.Candidates) == 0 || len(gen.Candidates[0].Content.Parts) == 0 {
		return "", ErrEmptyCompletion
	}
	e.logger.Debug("upstream answered", "session_id", task.SessionID, "status", resp.StatusCode)
	return gen.Candidates[0].Content.Parts[0].Text, nil
}
