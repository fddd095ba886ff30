package postgres_test

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/go-cmp/cmp"
	"github.com/jackc/pgx/v5/pgconn"

	"regwatch/internal/domain/entity"
	"regwatch/internal/infra/adapter/persistence/postgres"
)

/* ──────────────────────────────── helpers ──────────────────────────────── */

var sourceCols = []string{
	"id", "url", "jurisdiction", "agency",
	"check_frequency_seconds", "last_checked_at", "active", "created_at",
}

func sourceRow(rows *sqlmock.Rows, src *entity.Source) *sqlmock.Rows {
	return rows.AddRow(
		src.ID, src.URL, src.Jurisdiction, src.Agency,
		int64(src.CheckFrequency/time.Second), src.LastCheckedAt, src.Active, src.CreatedAt,
	)
}

var created = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func fixtureSource() *entity.Source {
	checked := created.Add(time.Hour)
	return &entity.Source{
		ID: "src-1", URL: "https://ec.europa.eu/safety-gate", Jurisdiction: "EU",
		Agency: "Safety Gate", CheckFrequency: 6 * time.Hour,
		LastCheckedAt: &checked, Active: true, CreatedAt: created,
	}
}

/* ──────────────────────────────── 1. Get ──────────────────────────────── */

func TestSourceRepo_Get(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer func() { _ = db.Close() }()

	want := fixtureSource()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, url`)).
		WithArgs("src-1").
		WillReturnRows(sourceRow(sqlmock.NewRows(sourceCols), want))

	repo := postgres.NewSourceRepo(db)
	got, err := repo.Get(context.Background(), "src-1")
	if err != nil {
		t.Fatalf("Get err=%v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestSourceRepo_Get_NotFound(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer func() { _ = db.Close() }()

	mock.ExpectQuery(regexp.QuoteMeta(`FROM sources`)).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(sourceCols))

	got, err := postgres.NewSourceRepo(db).Get(context.Background(), "missing")
	if err != nil || got != nil {
		t.Fatalf("want (nil, nil), got (%v, %v)", got, err)
	}
}

func TestSourceRepo_GetByURL(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer func() { _ = db.Close() }()

	want := fixtureSource()
	mock.ExpectQuery(regexp.QuoteMeta(`WHERE url = $1`)).
		WithArgs(want.URL).
		WillReturnRows(sourceRow(sqlmock.NewRows(sourceCols), want))

	got, err := postgres.NewSourceRepo(db).GetByURL(context.Background(), want.URL)
	if err != nil {
		t.Fatalf("GetByURL err=%v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}
}

/* ──────────────────────────────── 2. List ──────────────────────────────── */

func TestSourceRepo_List(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer func() { _ = db.Close() }()

	a := fixtureSource()
	b := fixtureSource()
	b.ID, b.URL, b.Active, b.LastCheckedAt = "src-2", "https://www.cpsc.gov/Recalls", false, nil

	rows := sqlmock.NewRows(sourceCols)
	sourceRow(rows, a)
	sourceRow(rows, b)
	mock.ExpectQuery(regexp.QuoteMeta(`ORDER BY id ASC`)).WillReturnRows(rows)

	got, err := postgres.NewSourceRepo(db).List(context.Background())
	if err != nil {
		t.Fatalf("List err=%v", err)
	}
	if diff := cmp.Diff([]*entity.Source{a, b}, got); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}
}

func TestSourceRepo_ListActive_Empty(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer func() { _ = db.Close() }()

	mock.ExpectQuery(regexp.QuoteMeta(`WHERE active = TRUE`)).
		WillReturnRows(sqlmock.NewRows(sourceCols))

	got, err := postgres.NewSourceRepo(db).ListActive(context.Background())
	if err != nil {
		t.Fatalf("ListActive err=%v", err)
	}
	if len(got) != 0 {
		t.Fatalf("want empty, got %d", len(got))
	}
}

func TestSourceRepo_ListDue(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer func() { _ = db.Close() }()

	now := created.Add(24 * time.Hour)
	want := fixtureSource()
	mock.ExpectQuery(regexp.QuoteMeta(`check_frequency_seconds * INTERVAL '1 second' <= $1`)).
		WithArgs(now, 50).
		WillReturnRows(sourceRow(sqlmock.NewRows(sourceCols), want))
	mock.ExpectQuery(regexp.QuoteMeta(`jobs.status IN ('pending', 'in_progress', 'retry_scheduled'))`)).
		WithArgs(now, nil).
		WillReturnRows(sqlmock.NewRows(sourceCols))

	repo := postgres.NewSourceRepo(db)
	got, err := repo.ListDue(context.Background(), now, 50)
	if err != nil {
		t.Fatalf("ListDue err=%v", err)
	}
	if len(got) != 1 || got[0].CheckFrequency != 6*time.Hour {
		t.Fatalf("unexpected result %+v", got)
	}

	// No limit binds NULL; sources with an active job are filtered in SQL.
	got, err = repo.ListDue(context.Background(), now, 0)
	if err != nil {
		t.Fatalf("ListDue unbounded err=%v", err)
	}
	if len(got) != 0 {
		t.Fatalf("want empty, got %d", len(got))
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

/* ──────────────────────────────── 3. Create ──────────────────────────────── */

func TestSourceRepo_Create(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer func() { _ = db.Close() }()

	src := fixtureSource()
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO sources`)).
		WithArgs(src.ID, src.URL, src.Jurisdiction, src.Agency, int64(21600), src.LastCheckedAt, true, created).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := postgres.NewSourceRepo(db).Create(context.Background(), src); err != nil {
		t.Fatalf("Create err=%v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestSourceRepo_Create_Duplicate(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer func() { _ = db.Close() }()

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO sources`)).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	err := postgres.NewSourceRepo(db).Create(context.Background(), fixtureSource())
	if !errors.Is(err, entity.ErrInvalidInput) {
		t.Fatalf("want ErrInvalidInput, got %v", err)
	}
}

/* ──────────────────────────────── 4. Deactivate / TouchCheckedAt ──────────────────────────────── */

func TestSourceRepo_Deactivate(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer func() { _ = db.Close() }()

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE sources SET active = FALSE`)).
		WithArgs("src-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE sources SET active = FALSE`)).
		WithArgs("missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	repo := postgres.NewSourceRepo(db)
	if err := repo.Deactivate(context.Background(), "src-1"); err != nil {
		t.Fatalf("Deactivate err=%v", err)
	}
	if err := repo.Deactivate(context.Background(), "missing"); !errors.Is(err, entity.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestSourceRepo_TouchCheckedAt(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer func() { _ = db.Close() }()

	at := created.Add(2 * time.Hour)
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE sources SET last_checked_at = $2`)).
		WithArgs("src-1", at).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := postgres.NewSourceRepo(db).TouchCheckedAt(context.Background(), "src-1", at); err != nil {
		t.Fatalf("TouchCheckedAt err=%v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}
