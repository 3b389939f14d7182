package catalog

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadAndContains(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.json")
	body := `[
	  {"service": "Уличное освещение", "agency": "Бишкексвет"},
	  {"service": "Вывоз мусора", "agency": "Тазалык"},
	  {"service": "Вывоз мусора", "agency": "Тазалык"}
	]`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Len() != 2 {
		t.Fatalf("Len = %d, want 2 (duplicates collapse)", c.Len())
	}
	if !c.Contains("Уличное освещение", "Бишкексвет") {
		t.Fatalf("expected verbatim pair to be present")
	}
	if c.Contains("Уличное освещение", "Тазалык") {
		t.Fatalf("crossed pair must not match")
	}
	if c.Contains("уличное освещение", "Бишкексвет") {
		t.Fatalf("lookup must be verbatim, not case-folded")
	}

	want := "- Уличное освещение (Бишкексвет)\n- Вывоз мусора (Тазалык)"
	if got := c.Prompt(); got != want {
		t.Fatalf("Prompt =\n%s\nwant\n%s", got, want)
	}
}

func TestNewRejectsBlankAndEmpty(t *testing.T) {
	if _, err := New([]Entry{{Service: "x", Agency: " "}}); err == nil {
		t.Fatalf("expected error for blank agency")
	}
	if _, err := New(nil); !errors.Is(err, ErrEmpty) {
		t.Fatalf("New(nil) error = %v, want ErrEmpty", err)
	}
}
