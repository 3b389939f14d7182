package vault

import (
	"errors"
	"testing"
)

func TestParseRef(t *testing.T) {
	path, key, err := ParseRef("vault:secret/pulse/mysql#password")
	if err != nil || path != "secret/pulse/mysql" || key != "password" {
		t.Fatalf("ParseRef = %q %q %v", path, key, err)
	}

	for _, bad := range []string{
		"secret/pulse#password",
		"vault:secret/pulse",
		"vault:secret#password",
		"vault:secret/pulse#",
	} {
		if _, _, err := ParseRef(bad); !errors.Is(err, ErrBadRef) {
			t.Fatalf("ParseRef(%q) err = %v", bad, err)
		}
	}
}

func TestSplitMount(t *testing.T) {
	m, rel := splitMount("secret/pulse/mysql")
	if m != "secret" || rel != "pulse/mysql" {
		t.Fatalf("splitMount = %q %q", m, rel)
	}
}
