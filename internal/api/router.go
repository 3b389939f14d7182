// internal/api/router.go
//
// HTTP surface of the complaint core.
//
// Context
// -------
// The router is built once in cmd/web from already-wired collaborators.
// Public routes (intake, geocode) are open; everything that mutates an
// existing record or drives the chat flow sits behind the shared bearer
// key.  The Pub/Sub push route cannot send headers, so it checks a token
// in the query string instead.
//
// Middleware order
// ----------------
//
//	RequestID → RealIP → Recoverer → Security → ForceHTTPS → Enrich
//
// Enrich runs last so the request info it stores sees the rewritten
// remote address.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/publicpulse/pulse/internal/flow"
	"github.com/publicpulse/pulse/internal/geocoder"
	"github.com/publicpulse/pulse/internal/intake"
	"github.com/publicpulse/pulse/internal/middleware"
	"github.com/publicpulse/pulse/internal/record"
	"github.com/publicpulse/pulse/internal/requestinfo"
	"github.com/publicpulse/pulse/internal/syncer"
)

//
// Collaborators
//

// Submitter is the intake pipeline.
type Submitter interface {
	Submit(ctx context.Context, sub intake.Submission) (intake.Result, error)
}

// Geocoder answers place queries.
type Geocoder interface {
	Geocode(ctx context.Context, q geocoder.Query) (geocoder.Result, error)
}

// Synchronizer is the single writer of the Mirror.
type Synchronizer interface {
	ApplyLocalEdit(ctx context.Context, id string, p record.Patch) (syncer.Outcome, error)
	ChangeStatus(ctx context.Context, c syncer.StatusChange) (syncer.Outcome, error)
	ApplyEvent(ctx context.Context, ev syncer.Event) (syncer.Outcome, error)
	Pull(ctx context.Context, id string) (syncer.Outcome, error)
}

// Conversation runs chat-flow sessions.
type Conversation interface {
	Handle(ctx context.Context, sessionID, userID string, in flow.Input) (flow.Reply, error)
}

// Deps are the handlers' collaborators.  Flow may be nil, which leaves the
// bot route unmounted.
type Deps struct {
	Intake   Submitter
	Geocoder Geocoder
	Sync     Synchronizer
	Flow     Conversation
}

// Options configure the router.
type Options struct {
	APIKey     string
	PushToken  string
	ForceHTTPS bool
	Geo        *requestinfo.GeoDB
	// MaxBody caps request bodies; photos arrive inline as data URLs.
	MaxBody int64
	// Timeout bounds each handler.  Zero disables it.
	Timeout time.Duration
}

type handlers struct {
	deps     Deps
	validate *validator.Validate
	maxBody  int64
	log      *zap.SugaredLogger
}

// NewRouter mounts every route on a chi router.
func NewRouter(deps Deps, opts Options, log *zap.SugaredLogger) http.Handler {
	if log == nil {
		log = zap.S()
	}
	if opts.MaxBody <= 0 {
		opts.MaxBody = 16 << 20
	}
	h := &handlers{
		deps:     deps,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		maxBody:  opts.MaxBody,
		log:      log,
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID, chimw.RealIP, chimw.Recoverer)
	r.Use(middleware.Security)
	r.Use(middleware.ForceHTTPS(opts.ForceHTTPS))
	r.Use(requestinfo.Enrich(opts.Geo, log))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		if opts.Timeout > 0 {
			r.Use(chimw.Timeout(opts.Timeout))
		}

		r.Post("/reports", h.submitReport)
		r.Get("/geocode", h.geocode)

		r.With(middleware.QueryToken("token", opts.PushToken)).
			Post("/events/pubsub", h.pushEvent)

		r.Group(func(r chi.Router) {
			r.Use(middleware.BearerAuth(opts.APIKey))
			r.Post("/status", h.changeStatus)
			r.Post("/events", h.event)
			r.Post("/sync", h.pull)
			r.Patch("/admin/complaints/{id}", h.editComplaint)
			if deps.Flow != nil {
				r.Post("/bot/sessions/{sessionID}", h.botInput)
			}
		})
	})

	return r
}
