package crypto

import (
	"os"
	"path/filepath"
	"testing"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	blob, err := EncryptCredential("treasury-api-key-123", "hunter2")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}

	secret, err := DecryptCredential(blob, "hunter2")
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if secret != "treasury-api-key-123" {
		t.Fatalf("round trip mismatch: %q", secret)
	}
}

func TestDecryptWrongPasswordFails(t *testing.T) {
	blob, err := EncryptCredential("secret", "right")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}

	if _, err := DecryptCredential(blob, "wrong"); err == nil {
		t.Fatal("expected decryption failure with wrong password")
	}
}

func TestEncryptRejectsEmptyInputs(t *testing.T) {
	if _, err := EncryptCredential("", "pass"); err == nil {
		t.Fatal("expected error for empty secret")
	}
	if _, err := EncryptCredential("secret", ""); err == nil {
		t.Fatal("expected error for empty password")
	}
}

func TestLoadCredentialPrefersRawKey(t *testing.T) {
	got, err := LoadCredential(CredentialConfig{RawKey: "raw-key", EncryptedPath: "/nonexistent"})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got != "raw-key" {
		t.Fatalf("got %q, want raw-key", got)
	}
}

func TestLoadCredentialFromEncryptedFile(t *testing.T) {
	blob, err := EncryptCredential("file-key", "pass")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	path := filepath.Join(t.TempDir(), "treasury.key.enc")
	if err := os.WriteFile(path, blob, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	got, err := LoadCredential(CredentialConfig{EncryptedPath: path, Password: "pass"})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got != "file-key" {
		t.Fatalf("got %q, want file-key", got)
	}
}

func TestLoadCredentialNoSource(t *testing.T) {
	if _, err := LoadCredential(CredentialConfig{}); err == nil {
		t.Fatal("expected error when no source is configured")
	}
}
