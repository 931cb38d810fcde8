//go:build !darwin

package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestKeychainSetRoundTrip(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", t.TempDir())

	if err := keychainSet(keychainService, keychainAccount, "first"); err != nil {
		t.Fatalf("keychainSet: %v", err)
	}
	if err := keychainSet(keychainService, "other", "second"); err != nil {
		t.Fatalf("keychainSet: %v", err)
	}

	got, err := keychainExec(keychainService, keychainAccount)
	if err != nil {
		t.Fatalf("keychainExec: %v", err)
	}
	if string(got) != "first" {
		t.Errorf("secret = %q, want first", got)
	}
}

func TestKeychainSetCorruptFile(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", t.TempDir())
	p := secretsFilePath()
	if err := os.MkdirAll(filepath.Dir(p), 0o700); err != nil {
		t.Fatal(err)
	}
	corrupt := []byte(`{"cramplan": {"gemini-api-key": "kept"`)
	if err := os.WriteFile(p, corrupt, 0o600); err != nil {
		t.Fatal(err)
	}

	if err := keychainSet(keychainService, keychainAccount, "new"); err == nil {
		t.Fatal("expected error for unparseable secrets file")
	}

	data, err := os.ReadFile(p)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != string(corrupt) {
		t.Errorf("secrets file was rewritten: %s", data)
	}
}
