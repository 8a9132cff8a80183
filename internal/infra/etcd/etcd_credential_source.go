// internal/infra/etcd/etcd_credential_source.go
package etcd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"query-broker/internal/domain"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// EtcdCredentialSource reads the credential document stored as JSON under one etcd key.
type EtcdCredentialSource struct {
	client *clientv3.Client
	key    string
	logger *slog.Logger
	tracer trace.Tracer
}

// NewEtcdCredentialSource creates a credential source backed by etcd.
func NewEtcdCredentialSource(client *clientv3.Client, key string, logger *slog.Logger) *EtcdCredentialSource {
	return &EtcdCredentialSource{
		client: client,
		key:    key,
		logger: logger.With("component", "etcd-credential-source"),
		tracer: otel.Tracer("query-broker-etcd-credentials"),
	}
}

// Load retrieves and decodes the credential document.
func (s *EtcdCredentialSource) Load(ctx context.Context) (*domain.CredentialSet, error) {
	ctx, span := s.tracer.Start(ctx, "repo.etcd.LoadCredentials")
	defer span.End()
	span.SetAttributes(attribute.String("etcd.key", s.key))

	resp, err := s.client.Get(ctx, s.key)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to get credentials from etcd")
		return nil, fmt.Errorf("failed to get credentials %s from etcd: %w", s.key, err)
	}
	if len(resp.Kvs) == 0 {
		return nil, fmt.Errorf("etcd key %s: %w", s.key, domain.ErrCredentialSourceNotFound)
	}
	return decodeCredentials(resp.Kvs[0].Value)
}

// Watch calls onChange every time the credential key is written or deleted.
// This is a blocking call and should be run in a goroutine.
func (s *EtcdCredentialSource) Watch(ctx context.Context, onChange func(ctx context.Context)) {
	s.logger.Info("watching credentials", "key", s.key)

	for watchResp := range s.client.Watch(ctx, s.key) {
		if err := watchResp.Err(); err != nil {
			s.logger.Error("credential watch error", "error", err)
			continue
		}
		for _, event := range watchResp.Events {
			s.logger.Info("credentials changed", "key", string(event.Kv.Key), "type", event.Type.String())
		}
		if len(watchResp.Events) > 0 {
			onChange(ctx)
		}
	}
	s.logger.Info("stopped watching credentials")
}

func decodeCredentials(raw []byte) (*domain.CredentialSet, error) {
	var doc domain.CredentialDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal credentials from JSON: %w", err)
	}
	return doc.ToSet()
}
