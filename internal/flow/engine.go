// internal/flow/engine.go
//
// Engine drives one input through a session.
//
// Context
// -------
// The chat front end posts every user action (text, button, location,
// photo, command) to Handle.  The engine loads the session, applies the
// transition for the current State, saves the session and returns a Reply
// with the next prompt and button options.
//
// Notes
// -----
//   - Inputs for the same session are serialised by a keyed lock; different
//     sessions never wait on each other.
//   - Validation gates re-prompt without advancing.
//   - Cancel deletes the session and nothing else.
//   - Confirm hands the data to the intake pipeline.  When that fails the
//     submission goes to the Fallback directory and the user gets the file
//     name as a local reference.
package flow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/publicpulse/pulse/internal/geocoder"
	"github.com/publicpulse/pulse/internal/intake"
	"github.com/publicpulse/pulse/internal/lock"
	"github.com/publicpulse/pulse/internal/metrics"
	"github.com/publicpulse/pulse/internal/record"
)

// Validation minimums (runes).
const (
	MinTextLen = 10
	MinNameLen = 2
)

// Command is a control input.
type Command string

const (
	CmdStart   Command = "start"
	CmdSkip    Command = "skip"
	CmdBack    Command = "back"
	CmdCancel  Command = "cancel"
	CmdConfirm Command = "confirm"
)

// ParseCommand recognises slash commands and button labels in either
// language.  Anything else yields "".
func ParseCommand(text string) Command {
	t := strings.TrimSpace(text)
	switch strings.ToLower(t) {
	case "/start", "start":
		return CmdStart
	case "/cancel", "cancel":
		return CmdCancel
	case "/skip", "skip":
		return CmdSkip
	case "/back", "back":
		return CmdBack
	case "/confirm", "confirm":
		return CmdConfirm
	}
	for _, set := range buttons {
		for cmd, label := range set {
			if t == label {
				return cmd
			}
		}
	}
	return ""
}

// Point is a shared device location.
type Point struct {
	Lat float64 `json:"latitude"`
	Lng float64 `json:"longitude"`
}

// Input is one user action.
type Input struct {
	Text      string  `json:"text,omitempty"`
	Command   Command `json:"command,omitempty"`
	Location  *Point  `json:"location,omitempty"`
	Photo     []byte  `json:"photo,omitempty"`
	PhotoType string  `json:"photo_type,omitempty"`
	Language  string  `json:"language,omitempty"`
}

// Reply is what the front end shows next.
type Reply struct {
	State     State    `json:"state"`
	Text      string   `json:"text"`
	Options   []string `json:"options,omitempty"`
	Done      bool     `json:"done,omitempty"`
	Reference string   `json:"reference,omitempty"`
	// Queued is true when Reference is a local fallback name.
	Queued bool `json:"queued,omitempty"`
}

// Submitter is the intake pipeline.
type Submitter interface {
	Submit(ctx context.Context, sub intake.Submission) (intake.Result, error)
}

// Engine runs sessions.  It is safe for concurrent use.
type Engine struct {
	store    Store
	table    *geocoder.Table
	submit   Submitter
	fallback *Fallback
	locks    *lock.Keyed
	log      *zap.SugaredLogger
	now      func() time.Time
}

// NewEngine wires an Engine.  table supplies the region and city lists.
func NewEngine(store Store, table *geocoder.Table, submit Submitter, fallback *Fallback, log *zap.SugaredLogger) *Engine {
	if log == nil {
		log = zap.S()
	}
	return &Engine{
		store:    store,
		table:    table,
		submit:   submit,
		fallback: fallback,
		locks:    lock.NewKeyed(),
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Handle applies in to the session sessionID, creating it when absent.
func (e *Engine) Handle(ctx context.Context, sessionID, userID string, in Input) (Reply, error) {
	if sessionID == "" {
		return Reply{}, errors.New("flow: session id required")
	}
	unlock, err := e.locks.Lock(ctx, sessionID)
	if err != nil {
		return Reply{}, err
	}
	defer unlock()

	if in.Command == "" {
		in.Command = ParseCommand(in.Text)
	}

	sess, err := e.store.Get(ctx, sessionID)
	switch {
	case errors.Is(err, ErrNoSession):
		sess = e.fresh(sessionID, userID, in.Language)
		if in.Command == CmdCancel {
			return Reply{State: StateDone, Text: prompt(sess.Language, keyCancelled), Done: true}, nil
		}
		return e.save(ctx, &sess, "")
	case err != nil:
		return Reply{}, fmt.Errorf("load session: %w", err)
	}
	if userID != "" {
		sess.UserID = userID
	}

	switch in.Command {
	case CmdStart:
		sess = e.fresh(sessionID, sess.UserID, firstNonEmpty(in.Language, sess.Language))
		return e.save(ctx, &sess, "")
	case CmdCancel:
		if err := e.store.Delete(ctx, sessionID); err != nil {
			return Reply{}, fmt.Errorf("drop session: %w", err)
		}
		metrics.FlowSubmissionsTotal.WithLabelValues("cancelled").Inc()
		return Reply{State: StateDone, Text: prompt(sess.Language, keyCancelled), Done: true}, nil
	case CmdBack:
		back(&sess)
		return e.save(ctx, &sess, "")
	}

	if sess.State == StateConfirm {
		if in.Command != CmdConfirm {
			return e.save(ctx, &sess, "")
		}
		return e.finish(ctx, &sess)
	}

	notice := e.advance(&sess, in)
	return e.save(ctx, &sess, notice)
}

func (e *Engine) fresh(id, user, lang string) Session {
	return Session{ID: id, UserID: user, Language: language(lang), State: StateCategory}
}

// advance applies one non-control input.  A non-empty result is a notice
// key shown above the re-prompt.
func (e *Engine) advance(s *Session, in Input) string {
	d := &s.Data
	text := strings.TrimSpace(in.Text)
	skip := in.Command == CmdSkip

	switch s.State {
	case StateCategory:
		c, ok := record.ParseCategory(text)
		if !ok || text == "" {
			return keyInvalidChoice
		}
		d.Category = c
		s.State = StateLocation

	case StateLocation:
		if in.Location != nil {
			e.locate(d, *in.Location)
			s.State = StateStreet
			return ""
		}
		s.State = StateRegion

	case StateRegion:
		if !e.table.HasRegion(text) {
			return keyInvalidChoice
		}
		d.Region = text
		s.State = StateCity

	case StateCity:
		if !e.table.InRegion(d.Region, text) {
			return keyInvalidChoice
		}
		d.City = text
		s.State = StateStreet

	case StateStreet:
		if !skip {
			d.Street = text
		}
		s.State = StateText

	case StateText:
		if skip || utf8.RuneCountInString(text) < MinTextLen {
			return keyTextTooShort
		}
		d.Text = text
		if d.Category == record.CategoryComplaint {
			s.State = StatePhoto
		} else {
			s.State = StateName
		}

	case StatePhoto:
		switch {
		case len(in.Photo) > 0:
			d.Photo, d.PhotoType = in.Photo, in.PhotoType
		case !skip:
			return keyPhotoExpected
		}
		s.State = StateSolution

	case StateSolution:
		if !skip {
			d.Solution = text
		}
		s.State = StateName

	case StateName:
		if utf8.RuneCountInString(text) < MinNameLen {
			return keyNameTooShort
		}
		d.Name = text
		s.State = StateConfirm
	}
	return ""
}

// locate stores device coordinates and infers region/city from the
// nearest table city.
func (e *Engine) locate(d *Data, p Point) {
	d.clearPlace()
	lat, lng := p.Lat, p.Lng
	d.Lat, d.Lng = &lat, &lng
	if c, ok := e.table.Nearest(lat, lng); ok {
		d.Region, d.City = c.Region, c.Name
	}
}

// back steps to the previous state and clears what that step collected.
func back(s *Session) {
	d := &s.Data
	switch s.State {
	case StateLocation, StateRegion, StateCity:
		d.clearPlace()
		s.State = StateCategory
	case StateStreet:
		if d.HasDeviceLocation() {
			d.clearPlace()
			s.State = StateLocation
		} else {
			d.City = ""
			s.State = StateCity
		}
	case StateText:
		d.Street = ""
		s.State = StateStreet
	case StatePhoto:
		s.State = StateText
	case StateSolution:
		d.Photo, d.PhotoType = nil, ""
		s.State = StatePhoto
	case StateName:
		d.Solution = ""
		d.Photo, d.PhotoType = nil, ""
		if d.Category == record.CategoryComplaint {
			s.State = StatePhoto
		} else {
			s.State = StateText
		}
	case StateConfirm:
		s.State = StateName
	}
}

// finish submits the session and ends it.
func (e *Engine) finish(ctx context.Context, s *Session) (Reply, error) {
	sub := e.submission(s)

	res, err := e.submit.Submit(ctx, sub)
	if err == nil && res.Success {
		if derr := e.store.Delete(ctx, s.ID); derr != nil {
			e.log.Warnw("flow session not dropped", "session", s.ID, "err", derr)
		}
		metrics.FlowSubmissionsTotal.WithLabelValues("submitted").Inc()
		e.log.Infow("flow submitted", "session", s.ID, "id", res.Record.ID)
		return Reply{
			State:     StateDone,
			Text:      prompt(s.Language, keySubmitted, res.Record.ID),
			Done:      true,
			Reference: res.Record.ID,
		}, nil
	}
	if err != nil {
		e.log.Warnw("flow intake failed", "session", s.ID, "err", err)
	}

	if e.fallback == nil {
		return e.save(ctx, s, keyFailed)
	}
	ref, ferr := e.fallback.Write(e.now(), sub)
	if ferr != nil {
		e.log.Errorw("flow fallback failed", "session", s.ID, "err", ferr)
		return e.save(ctx, s, keyFailed)
	}
	if derr := e.store.Delete(ctx, s.ID); derr != nil {
		e.log.Warnw("flow session not dropped", "session", s.ID, "err", derr)
	}
	metrics.FlowSubmissionsTotal.WithLabelValues("queued").Inc()
	e.log.Warnw("flow submission queued locally", "session", s.ID, "file", ref)
	return Reply{
		State:     StateDone,
		Text:      prompt(s.Language, keyQueued, ref),
		Done:      true,
		Reference: ref,
		Queued:    true,
	}, nil
}

func (e *Engine) submission(s *Session) intake.Submission {
	d := s.Data
	return intake.Submission{
		Category:         string(d.Category),
		Text:             d.Text,
		Solution:         d.Solution,
		Region:           d.Region,
		City:             d.City,
		Street:           d.Street,
		Lat:              d.Lat,
		Lng:              d.Lng,
		PhotoData:        d.Photo,
		PhotoContentType: d.PhotoType,
		Name:             d.Name,
		Language:         s.Language,
		UserID:           s.UserID,
		Origin:           string(record.OriginBot),
	}
}

// save persists s and renders the prompt for its state.
func (e *Engine) save(ctx context.Context, s *Session, notice string) (Reply, error) {
	s.UpdatedAt = e.now()
	if err := e.store.Put(ctx, *s); err != nil {
		return Reply{}, fmt.Errorf("save session: %w", err)
	}
	return e.render(s, notice), nil
}

func (e *Engine) render(s *Session, notice string) Reply {
	lang := s.Language
	text := prompt(lang, string(s.State))
	if s.State == StateConfirm {
		text = summary(lang, s.Data)
	}
	if notice != "" {
		text = prompt(lang, notice) + "\n" + text
	}

	btn := buttons[language(lang)]
	var opts []string
	switch s.State {
	case StateCategory:
		opts = []string{record.CategoryComplaint.Label(), record.CategoryRecommendation.Label()}
	case StateLocation:
		opts = []string{btn[CmdSkip], btn[CmdBack]}
	case StateRegion:
		opts = append(e.table.Regions(), btn[CmdBack])
	case StateCity:
		opts = append(e.table.Cities(s.Data.Region), btn[CmdBack])
	case StateStreet, StatePhoto, StateSolution:
		opts = []string{btn[CmdSkip], btn[CmdBack]}
	case StateText, StateName:
		opts = []string{btn[CmdBack]}
	case StateConfirm:
		opts = []string{btn[CmdConfirm], btn[CmdBack], btn[CmdCancel]}
	}
	return Reply{State: s.State, Text: text, Options: opts}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
