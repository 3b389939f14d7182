// internal/mirror/mirror.go
//
// Relational Mirror of the Primary Store.
//
// Context
// -------
// Operators browse and edit complaints through a relational copy:
//
//	complaint            (firestore_id PK, report fields, status, timestamps)
//	complaint_tombstone  (firestore_id PK, deleted_at)
//
// The primary key is the Primary Store document id, so every write here is
// an upsert keyed by that id.  A delete removes the row and leaves a
// tombstone with its time; the synchronizer consults tombstones to ignore
// create or update events that predate the delete but arrive after it.
//
// These helpers are thin parameterised queries over *sqlx.DB.  Merge rules
// live in internal/syncer, not here.
//
// Notes
// -----
//   - Location keeps coordinates, address, and provenance.  Street-level
//     components stay in the Primary Store only.
//   - Max line length 100 columns.
package mirror

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/publicpulse/pulse/internal/record"
)

// ErrNotFound is returned when no row exists for an id.
var ErrNotFound = errors.New("mirror: complaint not found")

// Schema creates the mirror tables when absent.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS complaint (
		firestore_id      VARCHAR(191)  NOT NULL PRIMARY KEY,
		report_type       VARCHAR(32)   NOT NULL DEFAULT 'complaint',
		report_text       TEXT          NOT NULL,
		solution          TEXT          NOT NULL,
		photo_url         VARCHAR(1024) NOT NULL DEFAULT '',
		service           VARCHAR(255)  NOT NULL DEFAULT '',
		agency            VARCHAR(255)  NOT NULL DEFAULT '',
		importance        VARCHAR(16)   NOT NULL DEFAULT 'medium',
		region            VARCHAR(128)  NOT NULL DEFAULT '',
		city              VARCHAR(128)  NOT NULL DEFAULT '',
		latitude          DOUBLE        NULL,
		longitude         DOUBLE        NULL,
		address           VARCHAR(512)  NOT NULL DEFAULT '',
		location_source   VARCHAR(32)   NOT NULL DEFAULT 'none',
		contact_name      VARCHAR(255)  NOT NULL DEFAULT '',
		contact_info      VARCHAR(255)  NOT NULL DEFAULT '',
		email             VARCHAR(255)  NOT NULL DEFAULT '',
		language          VARCHAR(8)    NOT NULL DEFAULT 'ru',
		user_id           VARCHAR(64)   NOT NULL DEFAULT '',
		status            VARCHAR(16)   NOT NULL DEFAULT 'new',
		notes             TEXT          NOT NULL,
		submission_source VARCHAR(16)   NOT NULL DEFAULT 'web',
		created_at        DATETIME(6)   NOT NULL,
		updated_at        DATETIME(6)   NOT NULL,
		KEY idx_complaint_status (status),
		KEY idx_complaint_created (created_at)
	) DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS complaint_tombstone (
		firestore_id VARCHAR(191) NOT NULL PRIMARY KEY,
		deleted_at   DATETIME(6)  NOT NULL
	) DEFAULT CHARSET=utf8mb4`,
}

const columns = `firestore_id, report_type, report_text, solution, photo_url, service, agency,
	importance, region, city, latitude, longitude, address, location_source, contact_name,
	contact_info, email, language, user_id, status, notes, submission_source, created_at,
	updated_at`

// row is the scan target for one complaint.
type row struct {
	ID         string    `db:"firestore_id"`
	Category   string    `db:"report_type"`
	Text       string    `db:"report_text"`
	Solution   string    `db:"solution"`
	PhotoURL   string    `db:"photo_url"`
	Service    string    `db:"service"`
	Agency     string    `db:"agency"`
	Importance string    `db:"importance"`
	Region     string    `db:"region"`
	City       string    `db:"city"`
	Lat        *float64  `db:"latitude"`
	Lng        *float64  `db:"longitude"`
	Address    string    `db:"address"`
	Provenance string    `db:"location_source"`
	Name       string    `db:"contact_name"`
	Phone      string    `db:"contact_info"`
	Email      string    `db:"email"`
	Language   string    `db:"language"`
	UserID     string    `db:"user_id"`
	Status     string    `db:"status"`
	Notes      string    `db:"notes"`
	Origin     string    `db:"submission_source"`
	CreatedAt  time.Time `db:"created_at"`
	UpdatedAt  time.Time `db:"updated_at"`
}

func (r row) record() record.Record {
	out := record.Record{
		ID:       r.ID,
		Category: record.Category(r.Category),
		Text:     r.Text,
		Solution: r.Solution,
		PhotoURL: r.PhotoURL,
		Classification: record.Classification{
			Service:    r.Service,
			Agency:     r.Agency,
			Importance: record.Importance(r.Importance),
		},
		Region:    r.Region,
		City:      r.City,
		Contact:   record.Contact{Name: r.Name, Phone: r.Phone, Email: r.Email, Language: r.Language},
		UserID:    r.UserID,
		Status:    record.Status(r.Status),
		Notes:     r.Notes,
		Origin:    record.Origin(r.Origin),
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
	if r.Lat != nil && r.Lng != nil {
		out.Location = &record.Location{
			Lat:        *r.Lat,
			Lng:        *r.Lng,
			Address:    r.Address,
			Provenance: record.Provenance(r.Provenance),
		}
	}
	return out.WithDefaults()
}

// args returns the column values of rec in `columns` order.
func args(rec record.Record) []any {
	rec = rec.WithDefaults()
	var lat, lng any
	addr, prov := "", string(record.ProvenanceNone)
	if rec.Location != nil {
		lat, lng = rec.Location.Lat, rec.Location.Lng
		addr, prov = rec.Location.Address, string(rec.Location.Provenance)
	}
	return []any{
		rec.ID, string(rec.Category), rec.Text, rec.Solution, rec.PhotoURL, rec.Service,
		rec.Agency, string(rec.Importance), rec.Region, rec.City, lat, lng, addr, prov,
		rec.Contact.Name, rec.Contact.Phone, rec.Contact.Email, rec.Language(), rec.UserID,
		string(rec.Status), rec.Notes, string(rec.Origin), rec.CreatedAt.UTC(),
		rec.UpdatedAt.UTC(),
	}
}

// Repository is the Mirror data access layer.
type Repository struct {
	db *sqlx.DB
}

// New wraps db.
func New(db *sqlx.DB) *Repository { return &Repository{db: db} }

// Migrate applies Schema.
func (r *Repository) Migrate(ctx context.Context) error {
	for _, stmt := range Schema {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("mirror migrate: %w", err)
		}
	}
	return nil
}

// Get returns the row for id or ErrNotFound.
func (r *Repository) Get(ctx context.Context, id string) (record.Record, error) {
	var rw row
	err := r.db.GetContext(ctx, &rw, `SELECT `+columns+` FROM complaint WHERE firestore_id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return record.Record{}, ErrNotFound
	}
	if err != nil {
		return record.Record{}, err
	}
	return rw.record(), nil
}

// Exists reports whether a row exists for id.
func (r *Repository) Exists(ctx context.Context, id string) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx,
		`SELECT 1 FROM complaint WHERE firestore_id = ? LIMIT 1`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Upsert inserts rec or replaces every column of the existing row.
func (r *Repository) Upsert(ctx context.Context, rec record.Record) error {
	cols := strings.Split(columns, ",")
	set := make([]string, 0, len(cols)-1)
	for _, c := range cols[1:] {
		c = strings.TrimSpace(c)
		set = append(set, c+" = VALUES("+c+")")
	}
	q := `INSERT INTO complaint (` + columns + `)
	      VALUES (` + placeholders(len(cols)) + `)
	      ON DUPLICATE KEY UPDATE ` + strings.Join(set, ", ")

	_, err := r.db.ExecContext(ctx, q, args(rec)...)
	return err
}

// Delete removes the row for id and records a tombstone.  It reports
// whether a row existed.  Deleting an absent id still writes the tombstone.
func (r *Repository) Delete(ctx context.Context, id string, at time.Time) (bool, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `DELETE FROM complaint WHERE firestore_id = ?`, id)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO complaint_tombstone (firestore_id, deleted_at) VALUES (?, ?)
		 ON DUPLICATE KEY UPDATE deleted_at = GREATEST(deleted_at, VALUES(deleted_at))`,
		id, at.UTC()); err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	return n > 0, nil
}

// Tombstoned reports whether id was deleted and, if so, when.
func (r *Repository) Tombstoned(ctx context.Context, id string) (time.Time, bool, error) {
	var at time.Time
	err := r.db.QueryRowContext(ctx,
		`SELECT deleted_at FROM complaint_tombstone WHERE firestore_id = ? LIMIT 1`, id).Scan(&at)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	return at, true, nil
}

// ClearTombstone forgets a delete so explicit resyncs may re-insert id.
func (r *Repository) ClearTombstone(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM complaint_tombstone WHERE firestore_id = ?`, id)
	return err
}

// Filter narrows List.
type Filter struct {
	Status record.Status
	Limit  int
	Offset int
}

// List returns rows newest first.  Limit defaults to 50 and caps at 500.
func (r *Repository) List(ctx context.Context, f Filter) ([]record.Record, error) {
	if f.Limit <= 0 {
		f.Limit = 50
	}
	if f.Limit > 500 {
		f.Limit = 500
	}

	q := `SELECT ` + columns + ` FROM complaint`
	qargs := make([]any, 0, 3)
	if f.Status != "" {
		q += ` WHERE status = ?`
		qargs = append(qargs, string(f.Status))
	}
	q += ` ORDER BY created_at DESC LIMIT ? OFFSET ?`
	qargs = append(qargs, f.Limit, f.Offset)

	var rows []row
	if err := r.db.SelectContext(ctx, &rows, q, qargs...); err != nil {
		return nil, err
	}
	out := make([]record.Record, 0, len(rows))
	for _, rw := range rows {
		out = append(out, rw.record())
	}
	return out, nil
}

func placeholders(n int) string {
	b := make([]byte, 0, n*2)
	for i := 0; i < n; i++ {
		if i > 0 {
			b = append(b, ',')
		}
		b = append(b, '?')
	}
	return string(b)
}
