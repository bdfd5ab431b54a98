package auth

import (
	"os"
	"time"
)

// EnvironmentStore implements CredentialStore using environment variables.
// It reads UNSPLASH_ACCESS_KEY and is read-only.
type EnvironmentStore struct{}

// NewEnvironmentStore creates a new environment-based credential store
func NewEnvironmentStore() *EnvironmentStore {
	return &EnvironmentStore{}
}

// Store is not supported for environment variables
func (e *EnvironmentStore) Store(cred *Credential) error {
	return ErrStoreUnavailable
}

// Retrieve gets the access key from the environment
func (e *EnvironmentStore) Retrieve(label string) (*Credential, error) {
	accessKey := os.Getenv("UNSPLASH_ACCESS_KEY")
	if accessKey == "" {
		return nil, ErrCredentialsNotFound
	}

	if label == "" {
		label = DefaultLabel
	}

	return &Credential{
		Label:        label,
		AccessKey:    accessKey,
		LastModified: time.Now(),
	}, nil
}

// List returns a single credential if the environment variable is set
func (e *EnvironmentStore) List() ([]*Credential, error) {
	cred, err := e.Retrieve("")
	if err != nil {
		return []*Credential{}, nil
	}
	return []*Credential{cred}, nil
}

// Delete is not supported for environment variables
func (e *EnvironmentStore) Delete(label string) error {
	return ErrStoreUnavailable
}

// Exists checks if the environment credential exists
func (e *EnvironmentStore) Exists(label string) bool {
	return os.Getenv("UNSPLASH_ACCESS_KEY") != ""
}
