package etcd

import (
	"errors"
	"testing"

	"query-broker/internal/domain"
)

func TestDecodeCredentials(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		wantKeys int
		strategy domain.Strategy
		wantErr  error
	}{
		{
			name:     "random",
			raw:      `{"keys":[{"id":"a","provider":"gemini","key":"s1","enabled":true},{"id":"b","key":"s2","enabled":false}],"distribution":{"strategy":"random"}}`,
			wantKeys: 2,
			strategy: domain.StrategyRandom,
		},
		{
			name:     "default strategy",
			raw:      `{"keys":[{"id":"a","key":"s1","enabled":true}]}`,
			wantKeys: 1,
			strategy: domain.StrategyRoundRobin,
		},
		{
			name:    "unknown strategy",
			raw:     `{"keys":[],"distribution":{"strategy":"least-used"}}`,
			wantErr: domain.ErrInvalidStrategy,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			set, err := decodeCredentials([]byte(tt.raw))
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if len(set.Keys) != tt.wantKeys || set.Strategy != tt.strategy {
				t.Fatalf("unexpected set: %+v", set)
			}
		})
	}

	if _, err := decodeCredentials([]byte("{")); err == nil {
		t.Fatalf("expected error for malformed JSON")
	}
}
