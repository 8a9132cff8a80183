package domain

import (
	"errors"
	"fmt"
)

// ErrCredentialSourceNotFound is returned by a CredentialSource when nothing is stored
// at its configured location.
var ErrCredentialSourceNotFound = errors.New("credential source not found")

// ErrInvalidStrategy is returned for an unknown credential distribution strategy.
var ErrInvalidStrategy = errors.New("invalid credential strategy")

// Credential is an upstream API key handed to a worker for the duration of one task.
type Credential struct {
	ID       string `json:"id" mapstructure:"id" validate:"required"`
	Provider string `json:"provider" mapstructure:"provider"`
	Secret   string `json:"key" mapstructure:"key" validate:"required_if=Enabled true"`
	Owner    string `json:"owner" mapstructure:"owner"`
	Enabled  bool   `json:"enabled" mapstructure:"enabled"`
}

// Strategy selects how the credential pool picks the next credential.
type Strategy string

const (
	StrategyRoundRobin Strategy = "round-robin"
	StrategyRandom     Strategy = "random"
)

// ParseStrategy converts a configured strategy name. Empty means round-robin.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case "", StrategyRoundRobin:
		return StrategyRoundRobin, nil
	case StrategyRandom:
		return StrategyRandom, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidStrategy, s)
	}
}

// CredentialSet is the parsed content of a credential source.
type CredentialSet struct {
	Keys     []Credential `json:"keys" mapstructure:"keys" validate:"dive"`
	Strategy Strategy     `json:"strategy" mapstructure:"strategy"`
}

// EmptyCredentialPolicy decides what a dispatch does when no credential is available.
type EmptyCredentialPolicy string

const (
	// EmptyCredentialProceed dispatches the task without a credential.
	EmptyCredentialProceed EmptyCredentialPolicy = "proceed"
	// EmptyCredentialReject drops the task and tells the submitter.
	EmptyCredentialReject EmptyCredentialPolicy = "reject"
)

// ParseEmptyCredentialPolicy converts a configured policy name. Empty means proceed.
func ParseEmptyCredentialPolicy(s string) (EmptyCredentialPolicy, error) {
	switch EmptyCredentialPolicy(s) {
	case "", EmptyCredentialProceed:
		return EmptyCredentialProceed, nil
	case EmptyCredentialReject:
		return EmptyCredentialReject, nil
	default:
		return "", fmt.Errorf("invalid empty credential policy: %q", s)
	}
}

// CredentialDistribution is the strategy block of a credential document.
type CredentialDistribution struct {
	Strategy string `json:"strategy" mapstructure:"strategy"`
}

// CredentialDocument is the stored layout of a credential source:
//
//	{"keys": [{"id": ..., "provider": ..., "key": ..., "owner": ..., "enabled": true}],
//	 "distribution": {"strategy": "round-robin"}}
type CredentialDocument struct {
	Keys         []Credential           `json:"keys" mapstructure:"keys"`
	Distribution CredentialDistribution `json:"distribution" mapstructure:"distribution"`
}

// ToSet validates the strategy name and converts the document.
func (d CredentialDocument) ToSet() (*CredentialSet, error) {
	strategy, err := ParseStrategy(d.Distribution.Strategy)
	if err != nil {
		return nil, err
	}
	return &CredentialSet{Keys: d.Keys, Strategy: strategy}, nil
}
