package database

import (
	"strings"
	"testing"
)

func TestNormalizeForcesFlags(t *testing.T) {
	got, err := Normalize("pulse:pw@tcp(db:3306)/pulse")
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	for _, want := range []string{"parseTime=true", "charset=utf8mb4", "pulse:pw@tcp(db:3306)/pulse?"} {
		if !strings.Contains(got, want) {
			t.Fatalf("dsn %q lacks %q", got, want)
		}
	}

	kept, _ := Normalize("pulse:pw@tcp(db:3306)/pulse?charset=utf8")
	if !strings.Contains(kept, "charset=utf8") || strings.Contains(kept, "utf8mb4") {
		t.Fatalf("explicit charset overridden: %q", kept)
	}
}

func TestNormalizeRejectsGarbage(t *testing.T) {
	if _, err := Normalize("pulse@tcp(db:3306"); err == nil {
		t.Fatalf("Normalize accepted a malformed dsn")
	}
}
