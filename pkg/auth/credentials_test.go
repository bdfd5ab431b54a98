package auth

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestCredentialManager(t *testing.T) {
	manager, mockStore := NewMockManager()

	cred := &Credential{
		Label:        "default",
		AccessKey:    "test_access_key_1234567890",
		LastModified: time.Now(),
	}

	err := manager.Store(cred)
	if err != nil {
		t.Errorf("Failed to store credential: %v", err)
	}

	retrieved, err := manager.Retrieve("default")
	if err != nil {
		t.Errorf("Failed to retrieve credential: %v", err)
	}

	if retrieved.Label != cred.Label {
		t.Errorf("Label mismatch: got %s, want %s", retrieved.Label, cred.Label)
	}
	if retrieved.AccessKey != cred.AccessKey {
		t.Errorf("AccessKey mismatch: got %s, want %s", retrieved.AccessKey, cred.AccessKey)
	}

	creds, err := manager.List()
	if err != nil {
		t.Errorf("Failed to list credentials: %v", err)
	}
	if len(creds) == 0 {
		t.Error("Expected at least one credential in list")
	}

	masked := MaskKey(cred.AccessKey)
	if masked == cred.AccessKey {
		t.Error("Access key should be masked")
	}

	err = manager.Delete("default")
	if err != nil {
		t.Errorf("Failed to delete credential: %v", err)
	}

	_, err = manager.Retrieve("default")
	if err == nil {
		t.Error("Expected error retrieving deleted credential")
	}

	if mockStore.Count() != 0 {
		t.Errorf("Expected 0 credentials after deletion, got %d", mockStore.Count())
	}
}

func TestManagerRequiresAccessKey(t *testing.T) {
	manager, _ := NewMockManager()

	err := manager.Store(&Credential{Label: "default"})
	if err == nil {
		t.Error("Expected error storing credential without access key")
	}
}

func TestManagerDefaultsLabel(t *testing.T) {
	manager, mockStore := NewMockManager()

	err := manager.Store(&Credential{AccessKey: "abc123def456ghi"})
	if err != nil {
		t.Fatalf("Failed to store credential: %v", err)
	}

	if !mockStore.Exists(DefaultLabel) {
		t.Error("Expected credential stored under default label")
	}
}

func TestEncryptedFileStore(t *testing.T) {
	tempFile := filepath.Join(t.TempDir(), "test_creds.enc")

	os.Setenv("UNSPLASH_DOWNLOADER_PASSPHRASE", "test_passphrase_123")
	defer os.Unsetenv("UNSPLASH_DOWNLOADER_PASSPHRASE")

	store, err := NewEncryptedFileStore(tempFile)
	if err != nil {
		t.Fatalf("Failed to create encrypted store: %v", err)
	}

	cred := &Credential{
		Label:        "default",
		AccessKey:    "encrypted_test_key_0987654321",
		LastModified: time.Now(),
	}

	if err := store.Store(cred); err != nil {
		t.Fatalf("Failed to store credential: %v", err)
	}

	retrieved, err := store.Retrieve("default")
	if err != nil {
		t.Fatalf("Failed to retrieve credential: %v", err)
	}
	if retrieved.AccessKey != cred.AccessKey {
		t.Errorf("AccessKey mismatch after round trip: got %s, want %s", retrieved.AccessKey, cred.AccessKey)
	}

	// A second store instance with the same passphrase reads the same data
	store2, err := NewEncryptedFileStore(tempFile)
	if err != nil {
		t.Fatalf("Failed to reopen encrypted store: %v", err)
	}
	retrieved2, err := store2.Retrieve("default")
	if err != nil {
		t.Fatalf("Failed to retrieve from reopened store: %v", err)
	}
	if retrieved2.AccessKey != cred.AccessKey {
		t.Error("AccessKey mismatch after reopening store")
	}

	if err := store.Delete("default"); err != nil {
		t.Fatalf("Failed to delete credential: %v", err)
	}
	if _, err := os.Stat(tempFile); !os.IsNotExist(err) {
		t.Error("Expected file removed when last credential deleted")
	}
}

func TestEnvironmentStore(t *testing.T) {
	os.Setenv("UNSPLASH_ACCESS_KEY", "env_key_abcdef123456")
	defer os.Unsetenv("UNSPLASH_ACCESS_KEY")

	store := NewEnvironmentStore()

	cred, err := store.Retrieve("")
	if err != nil {
		t.Fatalf("Failed to retrieve from environment: %v", err)
	}
	if cred.AccessKey != "env_key_abcdef123456" {
		t.Errorf("Unexpected access key: %s", cred.AccessKey)
	}
	if cred.Label != DefaultLabel {
		t.Errorf("Expected default label, got %s", cred.Label)
	}

	if err := store.Store(cred); err != ErrStoreUnavailable {
		t.Error("Expected environment store to reject writes")
	}
}

func TestMaskKey(t *testing.T) {
	if got := MaskKey("short"); got != "********" {
		t.Errorf("Expected short keys fully masked, got %s", got)
	}
	if got := MaskKey("abcdefghijklmnop"); got != "abcd...mnop" {
		t.Errorf("Unexpected mask: %s", got)
	}
}
