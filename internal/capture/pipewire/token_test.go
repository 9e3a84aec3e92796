package pipewire

import (
	"os"
	"path/filepath"
	"testing"
)

func TestTokenStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "token.json")
	s := newTokenStore(path)

	if got := s.Load(); got != "" {
		t.Fatalf("Load on missing file = %q", got)
	}
	if err := s.Save("abc-123"); err != nil {
		t.Fatal(err)
	}
	if got := newTokenStore(path).Load(); got != "abc-123" {
		t.Errorf("Load = %q, want abc-123", got)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("token file mode = %v, want 0600", info.Mode().Perm())
	}

	// Empty tokens leave the old one alone
	if err := s.Save(""); err != nil {
		t.Fatal(err)
	}
	if got := s.Load(); got != "abc-123" {
		t.Errorf("Load after empty save = %q", got)
	}
}

func TestTokenStoreCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")
	if err := os.WriteFile(path, []byte("{not json"), 0600); err != nil {
		t.Fatal(err)
	}
	if got := newTokenStore(path).Load(); got != "" {
		t.Errorf("Load on corrupt file = %q", got)
	}
	if got := newTokenStore("").Load(); got != "" {
		t.Errorf("Load without path = %q", got)
	}
}
