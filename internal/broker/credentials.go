package broker

import (
	"log/slog"
	"math/rand/v2"
	"sync"

	"query-broker/internal/domain"
	"query-broker/internal/metrics"
)

// FallbackCredentialID identifies the credential taken from process configuration when
// the source yields no enabled credentials.
const FallbackCredentialID = "env_key"

// CredentialPool rotates over the enabled upstream credentials.
// Load and Next may be called concurrently.
type CredentialPool struct {
	mu       sync.Mutex
	keys     []domain.Credential
	strategy domain.Strategy
	cursor   uint64
	fallback string
	intn     func(n int) int
	logger   *slog.Logger
}

// NewCredentialPool creates an empty pool. fallbackSecret, when non-empty, is used as the
// only credential whenever a load leaves the pool without enabled entries.
func NewCredentialPool(fallbackSecret string, logger *slog.Logger) *CredentialPool {
	return &CredentialPool{
		strategy: domain.StrategyRoundRobin,
		fallback: fallbackSecret,
		intn:     rand.IntN,
		logger:   logger.With("component", "credential-pool"),
	}
}

// Load replaces the pool with the enabled entries of set. A nil set behaves like an
// empty one, which is what callers pass after a failed source read.
func (p *CredentialPool) Load(set *domain.CredentialSet) {
	var keys []domain.Credential
	strategy := domain.StrategyRoundRobin
	if set != nil {
		for _, k := range set.Keys {
			if k.Enabled {
				keys = append(keys, k)
			}
		}
		if set.Strategy != "" {
			strategy = set.Strategy
		}
	}

	if len(keys) == 0 {
		p.logger.Warn("no enabled credentials in source, using fallback credential if configured")
		if p.fallback != "" {
			keys = []domain.Credential{{
				ID:       FallbackCredentialID,
				Provider: "gemini",
				Secret:   p.fallback,
				Owner:    "Environment Variable",
				Enabled:  true,
			}}
		}
	} else {
		for i, k := range keys {
			p.logger.Info("loaded credential", "index", i+1, "id", k.ID, "provider", k.Provider, "owner", k.Owner)
		}
	}

	p.mu.Lock()
	p.keys = keys
	p.strategy = strategy
	p.mu.Unlock()

	metrics.CredentialPoolSize.Set(float64(len(keys)))
	p.logger.Info("credential pool loaded", "size", len(keys), "strategy", string(strategy))
}

// Next returns the next credential according to the pool's strategy. It reports false
// when the pool is empty; the caller decides whether to proceed without one.
func (p *CredentialPool) Next() (domain.Credential, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.keys) == 0 {
		return domain.Credential{}, false
	}

	var c domain.Credential
	switch p.strategy {
	case domain.StrategyRandom:
		c = p.nextRandom()
	default:
		c = p.nextRoundRobin()
	}
	metrics.CredentialSelectionsTotal.WithLabelValues(c.ID).Inc()
	return c, true
}

func (p *CredentialPool) nextRoundRobin() domain.Credential {
	c := p.keys[p.cursor%uint64(len(p.keys))]
	p.cursor++
	return c
}

func (p *CredentialPool) nextRandom() domain.Credential {
	return p.keys[p.intn(len(p.keys))]
}

// Size returns the number of usable credentials.
func (p *CredentialPool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.keys)
}

// Strategy returns the active selection strategy.
func (p *CredentialPool) Strategy() domain.Strategy {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.strategy
}
