package file

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"query-broker/internal/domain"

	"github.com/spf13/viper"
)

type fileCredentialSource struct {
	path string
}

// NewFileCredentialSource reads credentials from a JSON or YAML file. The format is
// chosen from the file extension.
func NewFileCredentialSource(path string) domain.CredentialSource {
	return &fileCredentialSource{path: path}
}

// Load reads and parses the file on every call so edits are picked up by reloads.
func (s *fileCredentialSource) Load(_ context.Context) (*domain.CredentialSet, error) {
	v := viper.New()
	v.SetConfigFile(s.path)
	if err := v.ReadInConfig(); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", s.path, domain.ErrCredentialSourceNotFound)
		}
		return nil, fmt.Errorf("failed to read credential file %s: %w", s.path, err)
	}

	var doc domain.CredentialDocument
	if err := v.Unmarshal(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode credential file %s: %w", s.path, err)
	}
	return doc.ToSet()
}
