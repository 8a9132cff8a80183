package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"query-broker/internal/broker"
	"query-broker/internal/domain"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// CredentialService keeps the credential pool in sync with its source.
type CredentialService struct {
	source   domain.CredentialSource
	pool     *broker.CredentialPool
	diag     *broker.DiagnosticReporter
	validate *validator.Validate
	logger   *slog.Logger
	tracer   trace.Tracer
}

// NewCredentialService creates a new CredentialService instance.
func NewCredentialService(source domain.CredentialSource, pool *broker.CredentialPool, diag *broker.DiagnosticReporter, logger *slog.Logger) *CredentialService {
	return &CredentialService{
		source:   source,
		pool:     pool,
		diag:     diag,
		validate: validator.New(),
		logger:   logger.With("component", "credential-service"),
		tracer:   otel.Tracer("query-broker-usecase"),
	}
}

// LoadInitial fills the pool at startup. A missing or malformed source is not fatal:
// the pool falls back to the configured environment credential, or stays empty.
func (s *CredentialService) LoadInitial(ctx context.Context) {
	set, err := s.read(ctx)
	if err != nil {
		s.diag.Report(ctx, domain.Diagnostic{Kind: domain.DiagCredentialLoadFailed, Detail: err.Error()})
		s.pool.Load(nil)
		return
	}
	s.pool.Load(set)
}

// Reload refreshes the pool from the source. On failure the current pool is kept.
func (s *CredentialService) Reload(ctx context.Context) error {
	set, err := s.read(ctx)
	if err != nil {
		s.diag.Report(ctx, domain.Diagnostic{Kind: domain.DiagCredentialLoadFailed, Detail: err.Error()})
		return err
	}
	s.pool.Load(set)
	return nil
}

func (s *CredentialService) read(ctx context.Context) (*domain.CredentialSet, error) {
	ctx, span := s.tracer.Start(ctx, "service.LoadCredentials")
	defer span.End()

	set, err := s.source.Load(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to load credentials")
		return nil, fmt.Errorf("failed to load credentials: %w", err)
	}
	if err := s.validate.Struct(set); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid credentials")
		return nil, fmt.Errorf("invalid credentials: %w", err)
	}
	span.SetAttributes(attribute.Int("credentials.count", len(set.Keys)), attribute.String("credentials.strategy", string(set.Strategy)))
	return set, nil
}
