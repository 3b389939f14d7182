// internal/app/app.go
//
// Process wiring shared by cmd/web and cmd/pulsectl.
//
// Context
// -------
// Build turns a validated *config.Config into live collaborators in
// dependency order:
//
//  1. Mirror (MySQL via sqlx), optionally migrated.
//  2. Primary Store (Firestore or in-memory).
//  3. Redis, when configured, for the distributed lock and flow sessions.
//  4. Pub/Sub, when a subscription or the email queue needs it.
//  5. Notification channels (mail driver + Telegram).
//  6. Synchronizer, then the intake pipeline that mirrors through it.
//  7. Geocoder, classifier, photo storage, and the chat flow.
//
// Optional backends that are not configured are simply left out; the
// components they feed already handle a nil collaborator.
//
// Notes
// -----
//   - Close releases everything Build opened, in reverse order, and is safe
//     to call on a partially built App.
package app

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/pubsub"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/publicpulse/pulse/internal/catalog"
	"github.com/publicpulse/pulse/internal/classifier"
	"github.com/publicpulse/pulse/internal/config"
	"github.com/publicpulse/pulse/internal/database"
	"github.com/publicpulse/pulse/internal/flow"
	"github.com/publicpulse/pulse/internal/geocoder"
	"github.com/publicpulse/pulse/internal/intake"
	"github.com/publicpulse/pulse/internal/lock"
	"github.com/publicpulse/pulse/internal/message"
	"github.com/publicpulse/pulse/internal/mirror"
	"github.com/publicpulse/pulse/internal/notify"
	"github.com/publicpulse/pulse/internal/photo"
	"github.com/publicpulse/pulse/internal/primary"
	"github.com/publicpulse/pulse/internal/record"
	"github.com/publicpulse/pulse/internal/syncer"
)

// App holds the wired components.
type App struct {
	Config   *config.Config
	DB       *sqlx.DB
	Mirror   *mirror.Repository
	Primary  primary.Store
	Redis    redis.UniversalClient
	PubSub   *pubsub.Client
	Notifier *notify.Dispatcher
	Sync     *syncer.Synchronizer
	Geocoder *geocoder.Geocoder
	Intake   *intake.Pipeline
	Flow     *flow.Engine

	closers []func() error
	log     *zap.SugaredLogger
}

// Build wires every component from cfg.
func Build(ctx context.Context, cfg *config.Config, log *zap.SugaredLogger) (*App, error) {
	if log == nil {
		log = zap.S()
	}
	a := &App{Config: cfg, log: log}
	if err := a.build(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context) error {
	cfg := a.Config

	//
	// ── Stores ──────────────────────────────────────────────────────────
	//
	db, err := database.Open(ctx, cfg.Database.DataSource(), database.Options{
		MaxOpen:     cfg.Database.MaxOpen,
		MaxIdle:     cfg.Database.MaxIdle,
		PingTimeout: cfg.Database.Timeout,
	})
	if err != nil {
		return err
	}
	a.DB = db
	a.closers = append(a.closers, db.Close)
	a.Mirror = mirror.New(db)
	if cfg.Database.Migrate {
		if err := a.Mirror.Migrate(ctx); err != nil {
			return fmt.Errorf("migrate mirror: %w", err)
		}
		a.log.Infow("mirror schema ensured")
	}

	switch cfg.Primary.Driver {
	case "memory":
		a.Primary = primary.NewMemory()
		a.log.Warnw("primary store is in-memory; documents are lost on restart")
	default:
		fs, err := primary.NewFirestore(ctx, cfg.Primary.ProjectID, cfg.Primary.Collection, cfg.Primary.CredentialsFile)
		if err != nil {
			return err
		}
		a.Primary = fs
		a.closers = append(a.closers, fs.Close)
	}

	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return fmt.Errorf("redis ping %s: %w", cfg.Redis.Addr, err)
		}
		a.Redis = rdb
		a.closers = append(a.closers, rdb.Close)
	}

	if cfg.PubSub.EventsSubscription != "" || cfg.Mail.Driver == "pubsub" {
		projectID := cfg.PubSub.ProjectID
		if projectID == "" {
			projectID = cfg.Primary.ProjectID
		}
		var opts []option.ClientOption
		if cfg.PubSub.CredentialsFile != "" {
			opts = append(opts, option.WithCredentialsFile(cfg.PubSub.CredentialsFile))
		}
		ps, err := pubsub.NewClient(ctx, projectID, opts...)
		if err != nil {
			return fmt.Errorf("pubsub client: %w", err)
		}
		a.PubSub = ps
		a.closers = append(a.closers, ps.Close)
	}

	//
	// ── Notifications and sync ──────────────────────────────────────────
	//
	mailer, err := a.mailer()
	if err != nil {
		return err
	}
	var bot notify.BotSender
	if cfg.Bot.Token != "" {
		bot = notify.NewTelegram(cfg.Bot.Token, cfg.Bot.Endpoint, cfg.Bot.Timeout)
	}
	a.Notifier = notify.New(mailer, bot, notify.Options{
		EmailTimeout: cfg.Mail.Timeout,
		BotTimeout:   cfg.Bot.Timeout,
		AdminChatID:  cfg.Bot.AdminChatID,
	}, a.log.Named("notify"))

	cat, err := catalog.Load(cfg.Classifier.Catalog)
	if err != nil {
		return err
	}

	locks := lock.Chain{lock.NewKeyed()}
	if a.Redis != nil {
		locks = append(locks, lock.NewRedis(a.Redis, cfg.Sync.LockTTL, 0, a.log.Named("lock")))
	}
	a.Sync = syncer.New(a.Mirror, a.Primary, locks, a.Notifier, syncer.Options{
		DeletePropagation: syncer.DeletePropagation(cfg.Sync.DeletePropagation),
		Transitions:       transitions(cfg.Sync.Transitions),
		Catalog:           cat,
		LockTimeout:       cfg.Sync.LockTimeout,
		MirrorTimeout:     cfg.Sync.MirrorTimeout,
		PrimaryTimeout:    cfg.Primary.Timeout,
	}, a.log.Named("sync"))

	//
	// ── Intake ──────────────────────────────────────────────────────────
	//
	table, err := geocoder.LoadTable(cfg.Geocoder.CityTable)
	if err != nil {
		return err
	}
	var live geocoder.Resolver
	if cfg.Geocoder.APIKey != "" {
		g, err := geocoder.NewGoogle(cfg.Geocoder.APIKey, cfg.Geocoder.Region, cfg.Geocoder.Language)
		if err != nil {
			return fmt.Errorf("google geocoder: %w", err)
		}
		live = g
	}
	a.Geocoder = geocoder.New(live, table, geocoder.Options{
		Timeout:   cfg.Geocoder.Timeout,
		CacheSize: cfg.Geocoder.CacheSize,
		CacheTTL:  cfg.Geocoder.CacheTTL,
	}, a.log.Named("geocoder"))

	var up classifier.Completer
	if cfg.Classifier.APIKey != "" {
		up = classifier.NewOpenAI(cfg.Classifier.APIKey, cfg.Classifier.Model, cfg.Classifier.Temperature, cfg.Classifier.BaseURL)
	} else {
		a.log.Warnw("classifier has no api key; every report gets the fallback pair")
	}
	cls := classifier.New(cat, up, cfg.Classifier.Timeout, a.log.Named("classifier"))

	var uploader photo.Uploader
	if cfg.Storage.Bucket != "" {
		gcs, err := photo.NewGCS(ctx, cfg.Storage.Bucket, cfg.Storage.CredentialsFile, cfg.Storage.BaseURL)
		if err != nil {
			return err
		}
		uploader = gcs
		a.closers = append(a.closers, gcs.Close)
	}

	a.Intake = intake.New(intake.Deps{
		Classifier: cls,
		Locator:    a.Geocoder,
		Uploader:   uploader,
		Store:      a.Primary,
		Mirror:     a.Sync,
		Announcer:  a.Notifier,
	}, intake.Options{
		UploadTimeout:  cfg.Storage.Timeout,
		PersistTimeout: cfg.Primary.Timeout,
		MirrorTimeout:  cfg.Sync.MirrorTimeout,
		PhoneRegion:    cfg.Intake.PhoneRegion,
	}, a.log.Named("intake"))

	//
	// ── Chat flow ───────────────────────────────────────────────────────
	//
	var sessions flow.Store
	switch cfg.Flow.Store {
	case "redis":
		if a.Redis == nil {
			return errors.New("flow.store is redis but redis.addr is empty")
		}
		sessions = flow.NewRedisStore(a.Redis, cfg.Flow.IdleTTL)
	default:
		mem := flow.NewMemoryStore(cfg.Flow.IdleTTL, 0, a.log.Named("flow"))
		sessions = mem
		a.closers = append(a.closers, func() error { mem.Close(); return nil })
	}
	a.Flow = flow.NewEngine(sessions, table, a.Intake, flow.NewFallback(cfg.Flow.FallbackDir), a.log.Named("flow"))

	return nil
}

// mailer selects the email driver.
func (a *App) mailer() (message.Mailer, error) {
	cfg := a.Config.Mail
	switch cfg.Driver {
	case "smtp":
		return message.NewSMTP(message.SMTPConfig{
			Host:     cfg.Host,
			Port:     cfg.Port,
			Username: cfg.Username,
			Password: cfg.Password,
			From:     cfg.From,
			TLS:      cfg.TLS,
		})
	case "pubsub":
		if a.Config.PubSub.EmailTopic == "" {
			return nil, errors.New("mail.driver is pubsub but pubsub.email_topic is empty")
		}
		return message.NewQueue(a.PubSub.Topic(a.Config.PubSub.EmailTopic)), nil
	default:
		return message.NewLog(a.log.Named("mail")), nil
	}
}

// transitions converts the config table, keeping its permissive-when-empty
// meaning.
func transitions(in map[string][]string) syncer.TransitionPolicy {
	if len(in) == 0 {
		return nil
	}
	out := make(syncer.TransitionPolicy, len(in))
	for from, tos := range in {
		allowed := make([]record.Status, 0, len(tos))
		for _, to := range tos {
			allowed = append(allowed, record.Status(to))
		}
		out[record.Status(from)] = allowed
	}
	return out
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
