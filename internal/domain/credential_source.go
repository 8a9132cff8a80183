package domain

import "context"

// CredentialSource loads the configured list of upstream credentials.
type CredentialSource interface {
	Load(ctx context.Context) (*CredentialSet, error)
}
