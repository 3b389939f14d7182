// internal/intake/intake.go
//
// Intake Pipeline: turns a raw submission into a persisted Record.
//
// Context
// -------
// Both front doors (web form and chat flow) call Submit.  The steps:
//
//	validate → photo, classify, geocode (concurrently) → contact → persist
//	         → mirror (best effort) → operator alert (best effort)
//
// Only validation and Primary Store persistence can fail a submission.
// Everything else degrades: an unusable photo is dropped, a failed upload
// clears the photo, the classifier falls back to Spam, and the geocoder
// falls back to the city table or no location at all.
//
// Notes
// -----
//   - Every external step runs under its own timeout from Options.
//   - The pipeline never writes the Mirror directly; it hands the stored
//     record to the synchronizer's MirrorRecord hook.
package intake

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ttacon/libphonenumber"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/publicpulse/pulse/internal/geocoder"
	"github.com/publicpulse/pulse/internal/metrics"
	"github.com/publicpulse/pulse/internal/photo"
	"github.com/publicpulse/pulse/internal/primary"
	"github.com/publicpulse/pulse/internal/record"
)

//
// Errors
//

// ValidationError reports a submission that was rejected before any side
// effect.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("intake: %s: %s", e.Field, e.Reason)
}

// IsValidationError reports whether err is a *ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

//
// Collaborators
//

// Classifier assigns a catalog pair.  It never fails.
type Classifier interface {
	Classify(ctx context.Context, text string) record.Classification
}

// Locator resolves places.  *geocoder.Geocoder satisfies it.
type Locator interface {
	Geocode(ctx context.Context, q geocoder.Query) (geocoder.Result, error)
	FromDevice(lat, lng float64) (record.Location, geocoder.City, bool)
}

// Mirrorer copies a stored record into the Mirror.
type Mirrorer interface {
	MirrorRecord(ctx context.Context, rec record.Record) error
}

// Announcer alerts operators about a new record.
type Announcer interface {
	AnnounceNew(ctx context.Context, rec record.Record) bool
}

// Deps are the pipeline's collaborators.  Uploader, Mirror and Announcer
// are optional.
type Deps struct {
	Classifier Classifier
	Locator    Locator
	Uploader   photo.Uploader
	Store      primary.Store
	Mirror     Mirrorer
	Announcer  Announcer
}

// Options bounds the external steps.
type Options struct {
	UploadTimeout  time.Duration
	PersistTimeout time.Duration
	MirrorTimeout  time.Duration
	// PhoneRegion is the default region for national phone numbers.
	PhoneRegion string
}

//
// Submission and result
//

// Submission is one raw report.  Photo may be given as raw bytes plus
// content type or as a data URL; bytes win when both are present.
type Submission struct {
	ID       string `json:"id,omitempty"`
	Category string `json:"report_type,omitempty"`
	Text     string `json:"report_text"`
	Solution string `json:"solution,omitempty"`

	Region string   `json:"region,omitempty"`
	City   string   `json:"city,omitempty"`
	Street string   `json:"street,omitempty"`
	House  string   `json:"house,omitempty"`
	Lat    *float64 `json:"latitude,omitempty"`
	Lng    *float64 `json:"longitude,omitempty"`

	PhotoData        []byte `json:"-"`
	PhotoContentType string `json:"-"`
	PhotoDataURL     string `json:"photo_data,omitempty"`

	Name     string `json:"contact_name,omitempty"`
	Contact  string `json:"contact_info,omitempty"`
	Email    string `json:"email,omitempty"`
	Language string `json:"language,omitempty"`
	UserID   string `json:"user_id,omitempty"`
	Origin   string `json:"source,omitempty"`
}

// Result is the pipeline's answer.  Record is populated even when Success is
// false so callers can keep a local copy.
type Result struct {
	Success bool          `json:"success"`
	Record  record.Record `json:"record"`
	Caveat  string        `json:"warning,omitempty"`
	Error   string        `json:"error,omitempty"`
}

//
// Pipeline
//

// Pipeline runs submissions.  It is safe for concurrent use.
type Pipeline struct {
	deps Deps
	opts Options
	log  *zap.SugaredLogger
	now  func() time.Time
}

// New builds a Pipeline.  Classifier, Locator and Store are required.
func New(deps Deps, opts Options, log *zap.SugaredLogger) *Pipeline {
	if opts.UploadTimeout <= 0 {
		opts.UploadTimeout = 20 * time.Second
	}
	if opts.PersistTimeout <= 0 {
		opts.PersistTimeout = 10 * time.Second
	}
	if opts.MirrorTimeout <= 0 {
		opts.MirrorTimeout = 5 * time.Second
	}
	if opts.PhoneRegion == "" {
		opts.PhoneRegion = "KG"
	}
	if log == nil {
		log = zap.S()
	}
	return &Pipeline{deps: deps, opts: opts, log: log, now: func() time.Time { return time.Now().UTC() }}
}

// Submit validates, enriches, and persists sub.  A *ValidationError means
// nothing was stored; a supplied id that is already taken is one.  Persistence failure is reported as Success=false
// with a nil error.
func (p *Pipeline) Submit(ctx context.Context, sub Submission) (Result, error) {
	rec, err := p.validate(sub)
	if err != nil {
		metrics.IntakeTotal.WithLabelValues("invalid").Inc()
		return Result{}, err
	}

	now := p.now()
	rec.CreatedAt, rec.UpdatedAt = now, now
	rec.Status = record.StatusNew
	if rec.ID == "" {
		rec.ID = NewID(now, identity(sub, now))
	}

	var caveat string
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rec.PhotoURL = p.photo(gctx, sub, now)
		return nil
	})
	g.Go(func() error {
		rec.Classification = p.deps.Classifier.Classify(gctx, rec.Text)
		return nil
	})
	g.Go(func() error {
		caveat = p.locate(gctx, sub, &rec)
		return nil
	})
	_ = g.Wait()

	rec.Contact = p.contact(sub)

	pctx, cancel := context.WithTimeout(ctx, p.opts.PersistTimeout)
	err = p.deps.Store.Create(pctx, rec)
	cancel()
	if errors.Is(err, primary.ErrExists) {
		metrics.IntakeTotal.WithLabelValues("invalid").Inc()
		return Result{}, &ValidationError{Field: "id", Reason: fmt.Sprintf("%q already exists", rec.ID)}
	}
	if err != nil {
		p.log.Errorw("persist submission failed", "id", rec.ID, "err", err)
		metrics.IntakeTotal.WithLabelValues("persist_failed").Inc()
		return Result{Success: false, Record: rec, Caveat: caveat, Error: "persistence failed"}, nil
	}
	metrics.IntakeTotal.WithLabelValues("stored").Inc()
	p.log.Infow("submission stored",
		"id", rec.ID, "origin", rec.Origin, "service", rec.Service, "spam", rec.IsSpam())

	if p.deps.Mirror != nil {
		mctx, cancel := context.WithTimeout(ctx, p.opts.MirrorTimeout)
		if err := p.deps.Mirror.MirrorRecord(mctx, rec); err != nil {
			p.log.Warnw("mirror after intake failed", "id", rec.ID, "err", err)
		}
		cancel()
	}
	if p.deps.Announcer != nil {
		p.deps.Announcer.AnnounceNew(ctx, rec)
	}

	return Result{Success: true, Record: rec, Caveat: caveat}, nil
}

func (p *Pipeline) validate(sub Submission) (record.Record, error) {
	text := strings.TrimSpace(sub.Text)
	if text == "" {
		return record.Record{}, &ValidationError{Field: "report_text", Reason: "must not be empty"}
	}
	cat, ok := record.ParseCategory(sub.Category)
	if !ok {
		return record.Record{}, &ValidationError{Field: "report_type", Reason: fmt.Sprintf("unknown category %q", sub.Category)}
	}
	origin := record.OriginWeb
	if strings.TrimSpace(sub.Origin) != "" {
		if origin, ok = record.ParseOrigin(sub.Origin); !ok {
			return record.Record{}, &ValidationError{Field: "source", Reason: fmt.Sprintf("unknown origin %q", sub.Origin)}
		}
	}
	if (sub.Lat == nil) != (sub.Lng == nil) {
		return record.Record{}, &ValidationError{Field: "location", Reason: "latitude and longitude go together"}
	}

	return record.Record{
		ID:       strings.TrimSpace(sub.ID),
		Category: cat,
		Text:     text,
		Solution: strings.TrimSpace(sub.Solution),
		Region:   strings.TrimSpace(sub.Region),
		City:     strings.TrimSpace(sub.City),
		UserID:   strings.TrimSpace(sub.UserID),
		Origin:   origin,
	}, nil
}

// photo decodes and uploads the attached image, returning its URL or "".
func (p *Pipeline) photo(ctx context.Context, sub Submission, now time.Time) string {
	var (
		ph  photo.Photo
		err error
	)
	switch {
	case len(sub.PhotoData) > 0:
		ph, err = photo.Decode(sub.PhotoContentType, sub.PhotoData)
	case strings.TrimSpace(sub.PhotoDataURL) != "":
		ph, err = photo.DecodeDataURL(sub.PhotoDataURL)
	default:
		return ""
	}
	if err != nil {
		p.log.Infow("photo dropped", "err", err)
		metrics.PhotoUploadTotal.WithLabelValues("dropped").Inc()
		return ""
	}
	if p.deps.Uploader == nil {
		metrics.PhotoUploadTotal.WithLabelValues("disabled").Inc()
		return ""
	}

	ctx, cancel := context.WithTimeout(ctx, p.opts.UploadTimeout)
	defer cancel()
	url, err := p.deps.Uploader.Upload(ctx, photo.ObjectPath(now, ph.ContentType), ph.ContentType, ph.Data)
	if err != nil {
		p.log.Warnw("photo upload failed", "err", err)
		metrics.PhotoUploadTotal.WithLabelValues("failed").Inc()
		return ""
	}
	metrics.PhotoUploadTotal.WithLabelValues("uploaded").Inc()
	return url
}

// locate fills rec's location.  Device coordinates win over a typed city.
// It returns the geocoder caveat, if any.
func (p *Pipeline) locate(ctx context.Context, sub Submission, rec *record.Record) string {
	if sub.Lat != nil && sub.Lng != nil {
		loc, city, ok := p.deps.Locator.FromDevice(*sub.Lat, *sub.Lng)
		if ok {
			if rec.Region == "" {
				rec.Region = city.Region
			}
			if rec.City == "" {
				rec.City = city.Name
			}
		}
		loc.Street, loc.House = strings.TrimSpace(sub.Street), strings.TrimSpace(sub.House)
		rec.Location = &loc
		return ""
	}

	if rec.City == "" {
		return ""
	}
	res, err := p.deps.Locator.Geocode(ctx, geocoder.Query{City: rec.City, Street: sub.Street, House: sub.House})
	if err != nil || !res.Found {
		return ""
	}
	if rec.Region == "" {
		rec.Region = res.Location.Region
	}
	loc := res.Location
	rec.Location = &loc
	return res.Caveat
}

// contact normalises phone and email.  An unparseable contact string is
// kept verbatim.
func (p *Pipeline) contact(sub Submission) record.Contact {
	raw := strings.TrimSpace(sub.Contact)
	c := record.Contact{
		Name:     strings.TrimSpace(sub.Name),
		Phone:    raw,
		Email:    strings.TrimSpace(sub.Email),
		Language: strings.ToLower(strings.TrimSpace(sub.Language)),
	}
	if c.Email == "" {
		c.Email = record.ExtractEmail(raw)
	}
	if e164, ok := NormalisePhone(raw, p.opts.PhoneRegion); ok {
		c.Phone = e164
	}
	return c
}

// NormalisePhone formats s as E.164 when it is a valid number for region
// (or carries its own country code).
func NormalisePhone(s, region string) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" || strings.Contains(s, "@") {
		return "", false
	}
	n, err := libphonenumber.Parse(s, region)
	if err != nil || !libphonenumber.IsValidNumber(n) {
		return "", false
	}
	return libphonenumber.Format(n, libphonenumber.E164), true
}

// NewID returns `report_<YYYYMMDD_HHMMSS>_<first 8 hex of sha256(who)>`.
func NewID(now time.Time, who string) string {
	sum := sha256.Sum256([]byte(who))
	return "report_" + now.Format("20060102_150405") + "_" + hex.EncodeToString(sum[:])[:8]
}

// identity is the hashed part of a generated id.  The bot user id keeps
// ids traceable per user; anonymous web submissions mix in the clock so two
// reports in the same second still differ.
func identity(sub Submission, now time.Time) string {
	if u := strings.TrimSpace(sub.UserID); u != "" {
		return u + "|" + fmt.Sprint(now.UnixNano())
	}
	return strings.Join([]string{sub.Contact, sub.Name, sub.Text, fmt.Sprint(now.UnixNano())}, "|")
}
