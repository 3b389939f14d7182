package photo

import (
	"encoding/base64"
	"errors"
	"regexp"
	"testing"
	"time"
)

var (
	pngBytes  = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01")
	jpegBytes = []byte("\xff\xd8\xff\xe0\x00\x10JFIF\x00\x01\x01\x00\x00\x01\x00\x01\x00\x00")
)

func TestDecodeDataURL(t *testing.T) {
	url := "data:image/png;base64," + base64.StdEncoding.EncodeToString(pngBytes)
	p, err := DecodeDataURL(url)
	if err != nil {
		t.Fatalf("DecodeDataURL: %v", err)
	}
	if p.ContentType != "image/png" || len(p.Data) != len(pngBytes) {
		t.Fatalf("decoded %+v", p)
	}
}

func TestDecodeDataURLDefaultsToJPEG(t *testing.T) {
	url := "data:;base64," + base64.StdEncoding.EncodeToString(jpegBytes)
	p, err := DecodeDataURL(url)
	if err != nil {
		t.Fatalf("DecodeDataURL: %v", err)
	}
	if p.ContentType != "image/jpeg" {
		t.Fatalf("content type = %q", p.ContentType)
	}
}

func TestDecodeRejectsMalformed(t *testing.T) {
	cases := map[string]string{
		"no header":   base64.StdEncoding.EncodeToString(pngBytes),
		"bad base64":  "data:image/png;base64,@@@not-base64@@@",
		"not image":   "data:image/png;base64," + base64.StdEncoding.EncodeToString([]byte("hello, world")),
		"pdf":         "data:application/pdf;base64," + base64.StdEncoding.EncodeToString([]byte("%PDF-1.4")),
		"empty":       "data:image/png;base64,",
		"not base64u": "data:image/png," + string(pngBytes),
	}
	for name, in := range cases {
		if _, err := DecodeDataURL(in); !errors.Is(err, ErrMalformed) {
			t.Fatalf("%s: err = %v, want ErrMalformed", name, err)
		}
	}
}

func TestObjectPathIsDateBucketedAndUnique(t *testing.T) {
	now := time.Date(2025, 6, 3, 14, 5, 9, 0, time.UTC)
	a := ObjectPath(now, "image/png")
	b := ObjectPath(now, "image/png")

	re := regexp.MustCompile(`^reports/20250603/20250603_140509_[0-9a-f-]{36}\.png$`)
	if !re.MatchString(a) {
		t.Fatalf("path %q does not match layout", a)
	}
	if a == b {
		t.Fatalf("two paths in the same second collided: %q", a)
	}
}
