// internal/mirror/mirror_test.go
//
// Unit-tests for the mirror repository using sqlmock.
//
// Run: go test ./internal/mirror -v

package mirror

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"

	"github.com/publicpulse/pulse/internal/record"
)

var rowColumns = []string{
	"firestore_id", "report_type", "report_text", "solution", "photo_url", "service", "agency",
	"importance", "region", "city", "latitude", "longitude", "address", "location_source",
	"contact_name", "contact_info", "email", "language", "user_id", "status", "notes",
	"submission_source", "created_at", "updated_at",
}

func newMock(t *testing.T) (*Repository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return New(sqlx.NewDb(db, "mysql")), mock
}

func TestGet(t *testing.T) {
	repo, mock := newMock(t)
	created := time.Date(2025, 6, 3, 9, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM complaint WHERE firestore_id = ?`)).
		WithArgs("report_1").
		WillReturnRows(sqlmock.NewRows(rowColumns).AddRow(
			"report_1", "complaint", "streetlights broken", "", "", "Уличное освещение",
			"Бишкексвет", "high", "Бишкек", "Бишкек", 42.8746, 74.5698, "Бишкек, Кыргызстан",
			"fallback-table", "Айгуль", "+996555123456", "a@example.kg", "ky", "", "pending",
			"", "web", created, created,
		))

	got, err := repo.Get(context.Background(), "report_1")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if got.Status != record.StatusPending || got.Contact.Language != "ky" {
		t.Fatalf("unexpected record: %+v", got)
	}
	if got.Location == nil || got.Location.Provenance != record.ProvenanceTable {
		t.Fatalf("location = %+v", got.Location)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet SQL expectations: %v", err)
	}
}

func TestGetMissing(t *testing.T) {
	repo, mock := newMock(t)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM complaint WHERE firestore_id = ?`)).
		WithArgs("nope").
		WillReturnRows(sqlmock.NewRows(rowColumns))

	if _, err := repo.Get(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet SQL expectations: %v", err)
	}
}

func TestUpsertIsKeyedByID(t *testing.T) {
	repo, mock := newMock(t)
	now := time.Date(2025, 6, 3, 9, 0, 0, 0, time.UTC)

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO complaint (`)).
		WithArgs(
			"report_2", "recommendation", "more benches", "", "", "Spam", "Spam", "low", "", "Ош",
			nil, nil, "", "none", "", "", "", "ru", "77", "new", "", "bot", now, now,
		).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Upsert(context.Background(), record.Record{
		ID:             "report_2",
		Category:       record.CategoryRecommendation,
		Text:           "more benches",
		Classification: record.Spam,
		City:           "Ош",
		UserID:         "77",
		Origin:         record.OriginBot,
		CreatedAt:      now,
		UpdatedAt:      now,
	})
	if err != nil {
		t.Fatalf("Upsert error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet SQL expectations: %v", err)
	}
}

func TestDeleteWritesTombstone(t *testing.T) {
	repo, mock := newMock(t)
	at := time.Date(2025, 6, 4, 0, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM complaint WHERE firestore_id = ?`)).
		WithArgs("ghost").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO complaint_tombstone`)).
		WithArgs("ghost", at).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	existed, err := repo.Delete(context.Background(), "ghost", at)
	if err != nil {
		t.Fatalf("Delete error: %v", err)
	}
	if existed {
		t.Fatalf("existed = true for an id that was never mirrored")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet SQL expectations: %v", err)
	}
}

func TestTombstonedAndExists(t *testing.T) {
	repo, mock := newMock(t)

	deletedAt := time.Date(2025, 6, 4, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT deleted_at FROM complaint_tombstone WHERE firestore_id = ?`)).
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows([]string{"deleted_at"}).AddRow(deletedAt))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT 1 FROM complaint WHERE firestore_id = ?`)).
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows([]string{"1"}))

	at, dead, err := repo.Tombstoned(context.Background(), "ghost")
	if err != nil || !dead || !at.Equal(deletedAt) {
		t.Fatalf("Tombstoned = %v, %v, %v", at, dead, err)
	}
	ok, err := repo.Exists(context.Background(), "ghost")
	if err != nil || ok {
		t.Fatalf("Exists = %v, %v", ok, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet SQL expectations: %v", err)
	}
}

func TestListFiltersByStatus(t *testing.T) {
	repo, mock := newMock(t)
	now := time.Now().UTC()

	mock.ExpectQuery(regexp.QuoteMeta(`FROM complaint WHERE status = ? ORDER BY created_at DESC LIMIT ? OFFSET ?`)).
		WithArgs("resolved", 50, 0).
		WillReturnRows(sqlmock.NewRows(rowColumns).AddRow(
			"report_3", "complaint", "pothole", "", "", "Дороги", "Минтранс", "medium", "", "",
			nil, nil, "", "none", "", "", "", "ru", "", "resolved", "patched", "web", now, now,
		))

	got, err := repo.List(context.Background(), Filter{Status: record.StatusResolved})
	if err != nil {
		t.Fatalf("List error: %v", err)
	}
	if len(got) != 1 || got[0].Notes != "patched" || got[0].Location != nil {
		t.Fatalf("unexpected rows: %+v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet SQL expectations: %v", err)
	}
}
