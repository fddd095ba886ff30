package postgres_test

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/go-cmp/cmp"

	"regwatch/internal/domain/entity"
	"regwatch/internal/infra/adapter/persistence/postgres"
)

var jobCols = []string{
	"id", "source_id", "attempt", "status", "created_at", "updated_at", "next_attempt_at", "last_error",
}

func jobRow(rows *sqlmock.Rows, j *entity.Job) *sqlmock.Rows {
	return rows.AddRow(j.ID, j.SourceID, j.Attempt, string(j.Status), j.CreatedAt, j.UpdatedAt, j.NextAttemptAt, j.LastError)
}

func retryJob() *entity.Job {
	next := created.Add(2 * time.Second)
	msg := "HTTP 503"
	return &entity.Job{
		ID: "job-1", SourceID: "src-1", Attempt: 1, Status: entity.JobRetryScheduled,
		CreatedAt: created, UpdatedAt: created.Add(time.Second),
		NextAttemptAt: &next, LastError: &msg,
	}
}

/* ──────────────────────────────── Get ──────────────────────────────── */

func TestJobRepo_Get(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer func() { _ = db.Close() }()

	want := retryJob()
	mock.ExpectQuery(regexp.QuoteMeta(`FROM jobs`)).
		WithArgs("job-1").
		WillReturnRows(jobRow(sqlmock.NewRows(jobCols), want))

	got, err := postgres.NewJobRepo(db).Get(context.Background(), "job-1")
	if err != nil {
		t.Fatalf("Get err=%v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}
}

func TestJobRepo_Get_UnknownStatus(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer func() { _ = db.Close() }()

	mock.ExpectQuery(regexp.QuoteMeta(`FROM jobs`)).
		WillReturnRows(sqlmock.NewRows(jobCols).
			AddRow("job-1", "src-1", 0, "exploded", created, created, nil, nil))

	if _, err := postgres.NewJobRepo(db).Get(context.Background(), "job-1"); err == nil {
		t.Fatal("want error for unknown status")
	}
}

/* ──────────────────────────────── CreateIfIdle ──────────────────────────────── */

func TestJobRepo_CreateIfIdle(t *testing.T) {
	tests := []struct {
		name     string
		affected int64
		want     bool
	}{
		{name: "idle source", affected: 1, want: true},
		{name: "active job exists", affected: 0, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, _ := sqlmock.New()
			defer func() { _ = db.Close() }()

			job := entity.NewJob("job-1", "src-1", created)
			mock.ExpectExec(regexp.QuoteMeta(`ON CONFLICT DO NOTHING`)).
				WithArgs("job-1", "src-1", 1, "pending", created, created, nil, nil).
				WillReturnResult(sqlmock.NewResult(0, tt.affected))

			got, err := postgres.NewJobRepo(db).CreateIfIdle(context.Background(), job)
			if err != nil {
				t.Fatalf("CreateIfIdle err=%v", err)
			}
			if got != tt.want {
				t.Fatalf("created=%v want %v", got, tt.want)
			}
		})
	}
}

/* ──────────────────────────────── Update ──────────────────────────────── */

func TestJobRepo_Update_CompareAndSet(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer func() { _ = db.Close() }()

	job := entity.NewJob("job-1", "src-1", created)
	claimed := job.Clone()
	if err := claimed.Claim(created.Add(time.Second)); err != nil {
		t.Fatal(err)
	}

	mock.ExpectExec(regexp.QuoteMeta(`WHERE id = $1 AND status = $7`)).
		WithArgs("job-1", 1, "in_progress", created.Add(time.Second), nil, nil, "pending").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`WHERE id = $1 AND status = $7`)).
		WithArgs("job-1", 1, "in_progress", created.Add(time.Second), nil, nil, "pending").
		WillReturnResult(sqlmock.NewResult(0, 0))

	repo := postgres.NewJobRepo(db)
	ok, err := repo.Update(context.Background(), claimed, entity.JobPending)
	if err != nil || !ok {
		t.Fatalf("first claim: ok=%v err=%v", ok, err)
	}
	ok, err = repo.Update(context.Background(), claimed, entity.JobPending)
	if err != nil || ok {
		t.Fatalf("second claim must lose: ok=%v err=%v", ok, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

/* ──────────────────────────────── listing ──────────────────────────────── */

func TestJobRepo_ListDueRetries(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer func() { _ = db.Close() }()

	now := created.Add(time.Minute)
	want := retryJob()
	mock.ExpectQuery(regexp.QuoteMeta(`status = 'retry_scheduled' AND next_attempt_at <= $1`)).
		WithArgs(now, 10).
		WillReturnRows(jobRow(sqlmock.NewRows(jobCols), want))

	got, err := postgres.NewJobRepo(db).ListDueRetries(context.Background(), now, 10)
	if err != nil {
		t.Fatalf("ListDueRetries err=%v", err)
	}
	if diff := cmp.Diff([]*entity.Job{want}, got); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}
}

func TestJobRepo_ListByStatus_NoLimit(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer func() { _ = db.Close() }()

	mock.ExpectQuery(regexp.QuoteMeta(`WHERE status = $1`)).
		WithArgs("pending", nil).
		WillReturnRows(sqlmock.NewRows(jobCols))

	got, err := postgres.NewJobRepo(db).ListByStatus(context.Background(), entity.JobPending, 0)
	if err != nil {
		t.Fatalf("ListByStatus err=%v", err)
	}
	if len(got) != 0 {
		t.Fatalf("want empty, got %d", len(got))
	}
}

func TestJobRepo_ListStale(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer func() { _ = db.Close() }()

	before := created.Add(-10 * time.Minute)
	mock.ExpectQuery(regexp.QuoteMeta(`status = 'in_progress' AND updated_at < $1`)).
		WithArgs(before, 5).
		WillReturnRows(sqlmock.NewRows(jobCols))

	if _, err := postgres.NewJobRepo(db).ListStale(context.Background(), before, 5); err != nil {
		t.Fatalf("ListStale err=%v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestJobRepo_CountByStatus(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer func() { _ = db.Close() }()

	mock.ExpectQuery(regexp.QuoteMeta(`GROUP BY status`)).
		WillReturnRows(sqlmock.NewRows([]string{"status", "count"}).
			AddRow("completed", 4).
			AddRow("failed", 1))

	got, err := postgres.NewJobRepo(db).CountByStatus(context.Background())
	if err != nil {
		t.Fatalf("CountByStatus err=%v", err)
	}
	want := map[entity.JobStatus]int{entity.JobCompleted: 4, entity.JobFailed: 1}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}
}
