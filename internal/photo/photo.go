// internal/photo/photo.go
//
// Photo decoding and object-storage placement.
//
// Context
// -------
// Web clients send photos as data URLs (`data:image/png;base64,...`); the
// chat flow hands over raw bytes plus the declared content type.  `Decode`
// normalises both into a Photo and rejects anything that is not an image we
// accept.  The intake pipeline treats a rejection as "no photo" rather than
// an error.
//
// Objects are written under `reports/<YYYYMMDD>/` with a name built from the
// timestamp and a random UUID, so two uploads in the same second never
// collide.
package photo

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrMalformed is returned for payloads that are not an accepted image.
var ErrMalformed = errors.New("photo: malformed payload")

// DefaultContentType applies when a data URL header omits the type.
const DefaultContentType = "image/jpeg"

// MaxBytes caps accepted photo size.
const MaxBytes = 10 << 20

// Photo is a decoded image ready for upload.
type Photo struct {
	ContentType string
	Data        []byte
}

// Uploader stores an object and returns its public reference.
type Uploader interface {
	Upload(ctx context.Context, objectPath, contentType string, data []byte) (url string, err error)
}

// accepted maps allowed content types to file extensions.
var accepted = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
	"image/gif":  ".gif",
}

// Decode validates raw bytes against the declared content type.  An empty
// declared type defaults to image/jpeg.  The sniffed type must be an
// accepted image; when it differs from the declaration the sniffed type
// wins.
func Decode(contentType string, data []byte) (Photo, error) {
	if len(data) == 0 {
		return Photo{}, fmt.Errorf("%w: empty", ErrMalformed)
	}
	if len(data) > MaxBytes {
		return Photo{}, fmt.Errorf("%w: %d bytes exceeds limit", ErrMalformed, len(data))
	}

	declared := normalise(contentType)
	if declared == "" {
		declared = DefaultContentType
	}
	if _, ok := accepted[declared]; !ok {
		return Photo{}, fmt.Errorf("%w: content type %q not accepted", ErrMalformed, declared)
	}

	sniffed := normalise(http.DetectContentType(data))
	if _, ok := accepted[sniffed]; !ok {
		return Photo{}, fmt.Errorf("%w: bytes look like %q", ErrMalformed, sniffed)
	}
	return Photo{ContentType: sniffed, Data: data}, nil
}

// DecodeDataURL parses `data:<type>;base64,<payload>`.
func DecodeDataURL(s string) (Photo, error) {
	header, payload, ok := strings.Cut(strings.TrimSpace(s), ",")
	if !ok || !strings.HasPrefix(header, "data:") || !strings.HasSuffix(header, ";base64") {
		return Photo{}, fmt.Errorf("%w: not a base64 data URL", ErrMalformed)
	}

	ctype := strings.TrimSuffix(strings.TrimPrefix(header, "data:"), ";base64")
	if !strings.Contains(ctype, "/") {
		ctype = DefaultContentType
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return Photo{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return Decode(ctype, data)
}

// ObjectPath returns `reports/<YYYYMMDD>/<YYYYMMDD_HHMMSS>_<uuid><ext>`.
func ObjectPath(now time.Time, contentType string) string {
	ext, ok := accepted[normalise(contentType)]
	if !ok {
		ext = ".jpg"
	}
	name := now.Format("20060102_150405") + "_" + uuid.New().String() + ext
	return path.Join("reports", now.Format("20060102"), name)
}

func normalise(ct string) string {
	ct = strings.ToLower(strings.TrimSpace(ct))
	if i := strings.IndexByte(ct, ';'); i != -1 {
		ct = strings.TrimSpace(ct[:i])
	}
	if ct == "image/jpg" {
		ct = "image/jpeg"
	}
	return ct
}
