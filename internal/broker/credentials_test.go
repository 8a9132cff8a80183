package broker

import (
	"sync"
	"testing"

	"query-broker/internal/domain"
)

func TestCredentialPoolRoundRobin(t *testing.T) {
	p := NewCredentialPool("", discardLogger())
	p.Load(&domain.CredentialSet{
		Keys: []domain.Credential{
			key("A", "a"),
			{ID: "off", Secret: "x", Enabled: false},
			key("B", "b"),
		},
		Strategy: domain.StrategyRoundRobin,
	})

	if p.Size() != 2 {
		t.Fatalf("disabled credentials must be filtered, got size %d", p.Size())
	}
	var got []string
	for i := 0; i < 3; i++ {
		c, ok := p.Next()
		if !ok {
			t.Fatalf("expected a credential")
		}
		got = append(got, c.ID)
	}
	if got[0] != "A" || got[1] != "B" || got[2] != "A" {
		t.Fatalf("expected A, B, A; got %v", got)
	}
}

func TestCredentialPoolRandomIsUniform(t *testing.T) {
	p := NewCredentialPool("", discardLogger())
	p.Load(&domain.CredentialSet{
		Keys:     []domain.Credential{key("A", "a"), key("B", "b"), key("C", "c")},
		Strategy: domain.StrategyRandom,
	})

	const draws = 30000
	counts := map[string]int{}
	for i := 0; i < draws; i++ {
		c, _ := p.Next()
		counts[c.ID]++
	}
	for _, id := range []string{"A", "B", "C"} {
		share := float64(counts[id]) / draws
		if share < 0.30 || share > 0.37 {
			t.Fatalf("credential %s drawn with frequency %.3f, expected about 1/3", id, share)
		}
	}
}

func TestCredentialPoolRandomUsesInjectedSource(t *testing.T) {
	p := NewCredentialPool("", discardLogger())
	p.intn = func(n int) int { return n - 1 }
	p.Load(&domain.CredentialSet{
		Keys:     []domain.Credential{key("A", "a"), key("B", "b")},
		Strategy: domain.StrategyRandom,
	})
	if c, _ := p.Next(); c.ID != "B" {
		t.Fatalf("expected B, got %s", c.ID)
	}
}

func TestCredentialPoolFallback(t *testing.T) {
	tests := []struct {
		name     string
		fallback string
		set      *domain.CredentialSet
		wantSize int
	}{
		{"nil set with fallback", "env-secret", nil, 1},
		{"all disabled with fallback", "env-secret", &domain.CredentialSet{Keys: []domain.Credential{{ID: "x", Enabled: false}}}, 1},
		{"nil set without fallback", "", nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewCredentialPool(tt.fallback, discardLogger())
			p.Load(tt.set)
			if p.Size() != tt.wantSize {
				t.Fatalf("expected size %d, got %d", tt.wantSize, p.Size())
			}
			c, ok := p.Next()
			if tt.wantSize == 0 {
				if ok {
					t.Fatalf("empty pool must not yield a credential")
				}
				return
			}
			if c.ID != FallbackCredentialID || c.Secret != tt.fallback || c.Owner != "Environment Variable" {
				t.Fatalf("unexpected fallback credential: %+v", c)
			}
		})
	}
}

func TestCredentialPoolConcurrentLoadAndNext(t *testing.T) {
	p := NewCredentialPool("", discardLogger())
	set := &domain.CredentialSet{Keys: []domain.Credential{key("A", "a"), key("B", "b")}}
	p.Load(set)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				if _, ok := p.Next(); !ok {
					t.Errorf("pool unexpectedly empty")
					return
				}
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				p.Load(set)
			}
		}()
	}
	wg.Wait()
}
