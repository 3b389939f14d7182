package flow

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/publicpulse/pulse/internal/intake"
)

// Fallback writes submissions that could not be persisted to a local
// directory, one JSON file per report.
type Fallback struct {
	dir string
}

// NewFallback returns a writer for dir.  The directory is created on first
// use.
func NewFallback(dir string) *Fallback { return &Fallback{dir: dir} }

// Write stores sub as `report_<YYYYMMDD_HHMMSS>_<user>.json` and returns
// the file name, which doubles as the user's local reference.
func (f *Fallback) Write(at time.Time, sub intake.Submission) (string, error) {
	if err := os.MkdirAll(f.dir, 0o750); err != nil {
		return "", fmt.Errorf("fallback dir: %w", err)
	}
	user := sub.UserID
	if user == "" {
		user = "unknown"
	}
	name := fmt.Sprintf("report_%s_%s.json", at.Format("20060102_150405"), user)

	if len(sub.PhotoData) > 0 {
		ct := sub.PhotoContentType
		if ct == "" {
			ct = "image/jpeg"
		}
		sub.PhotoDataURL = "data:" + ct + ";base64," + base64.StdEncoding.EncodeToString(sub.PhotoData)
	}

	raw, err := json.MarshalIndent(sub, "", "  ")
	if err != nil {
		return "", err
	}
	path := filepath.Join(f.dir, name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o640); err != nil {
		return "", fmt.Errorf("fallback write: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return "", fmt.Errorf("fallback rename: %w", err)
	}
	return name, nil
}
