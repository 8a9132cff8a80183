package usecase

import (
	"context"
	"errors"
	"testing"

	"query-broker/internal/broker"
	"query-broker/internal/domain"
	"query-broker/internal/metrics"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

type stubSource struct {
	set *domain.CredentialSet
	err error
}

func (s *stubSource) Load(context.Context) (*domain.CredentialSet, error) {
	return s.set, s.err
}

func loadFailures() float64 {
	return testutil.ToFloat64(metrics.DiagnosticsTotal.WithLabelValues(string(domain.DiagCredentialLoadFailed)))
}

func TestCredentialServiceLoadInitialFallsBack(t *testing.T) {
	logger := discardLogger()
	pool := broker.NewCredentialPool("env-secret", logger)
	src := &stubSource{err: domain.ErrCredentialSourceNotFound}
	svc := NewCredentialService(src, pool, broker.NewDiagnosticReporter(nil, logger), logger)

	before := loadFailures()
	svc.LoadInitial(context.Background())

	if got := loadFailures() - before; got != 1 {
		t.Fatalf("expected one credential_load_failed diagnostic, got %v", got)
	}
	c, ok := pool.Next()
	if !ok || c.ID != broker.FallbackCredentialID {
		t.Fatalf("expected fallback credential, got %+v", c)
	}
}

func TestCredentialServiceReloadKeepsPoolOnFailure(t *testing.T) {
	logger := discardLogger()
	pool := broker.NewCredentialPool("", logger)
	src := &stubSource{set: &domain.CredentialSet{
		Keys: []domain.Credential{
			{ID: "k1", Secret: "s1", Enabled: true},
			{ID: "k2", Secret: "s2", Enabled: true},
		},
		Strategy: domain.StrategyRandom,
	}}
	svc := NewCredentialService(src, pool, broker.NewDiagnosticReporter(nil, logger), logger)
	ctx := context.Background()

	svc.LoadInitial(ctx)
	if pool.Size() != 2 || pool.Strategy() != domain.StrategyRandom {
		t.Fatalf("unexpected pool after initial load: size %d strategy %s", pool.Size(), pool.Strategy())
	}

	src.set, src.err = nil, errors.New("etcd unavailable")
	if err := svc.Reload(ctx); err == nil {
		t.Fatalf("expected reload error")
	}
	if pool.Size() != 2 {
		t.Fatalf("failed reload must keep the current pool, got size %d", pool.Size())
	}
}

func TestCredentialServiceRejectsInvalidEntries(t *testing.T) {
	logger := discardLogger()
	pool := broker.NewCredentialPool("", logger)
	src := &stubSource{set: &domain.CredentialSet{
		Keys: []domain.Credential{{Secret: "no-id", Enabled: true}},
	}}
	svc := NewCredentialService(src, pool, broker.NewDiagnosticReporter(nil, logger), logger)

	if err := svc.Reload(context.Background()); err == nil {
		t.Fatalf("credential without id must fail validation")
	}
}
