package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/nimburion/docflow/pkg/observability/logger"
)

func newMockPostgresProvider(t *testing.T) (*PostgresLockProvider, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	provider, err := newPostgresLockProviderWithDB(db, PostgresLockProviderConfig{
		Table:            "docflow_locks",
		OperationTimeout: time.Second,
	}, logger.NewNop())
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	return provider, mock
}

func TestNewPostgresLockProvider_CreatesTable(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS docflow_locks").WillReturnResult(sqlmock.NewResult(0, 0))
	if _, err := NewPostgresLockProvider(context.Background(), db, PostgresLockProviderConfig{}, logger.NewNop()); err != nil {
		t.Fatalf("new provider: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestNewPostgresLockProvider_RejectsBadTable(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	defer db.Close()

	_, err = newPostgresLockProviderWithDB(db, PostgresLockProviderConfig{Table: "locks; DROP TABLE x"}, logger.NewNop())
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestPostgresLockProvider_Acquire(t *testing.T) {
	provider, mock := newMockPostgresProvider(t)

	mock.ExpectQuery("SELECT EXISTS\\(SELECT 1 FROM upsert\\)").
		WithArgs("update_progress", "owner-a", int64(60000)).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery("SELECT EXISTS\\(SELECT 1 FROM upsert\\)").
		WithArgs("update_progress", "owner-b", int64(60000)).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	ok, err := provider.Acquire(context.Background(), "update_progress", "owner-a", time.Minute)
	if err != nil || !ok {
		t.Fatalf("expected acquire, ok=%v err=%v", ok, err)
	}
	ok, err = provider.Acquire(context.Background(), "update_progress", "owner-b", time.Minute)
	if err != nil || ok {
		t.Fatalf("expected contention without error, ok=%v err=%v", ok, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPostgresLockProvider_AcquireFailureIsRetryable(t *testing.T) {
	provider, mock := newMockPostgresProvider(t)

	mock.ExpectQuery("SELECT EXISTS").WillReturnError(errors.New("connection reset"))
	if _, err := provider.Acquire(context.Background(), "update_progress", "owner-a", time.Minute); !errors.Is(err, ErrRetryable) {
		t.Fatalf("expected ErrRetryable, got %v", err)
	}
}

func TestPostgresLockProvider_Release(t *testing.T) {
	provider, mock := newMockPostgresProvider(t)

	mock.ExpectExec("DELETE FROM docflow_locks WHERE lock_key=\\$1 AND token=\\$2").
		WithArgs("update_progress", "owner-a").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM docflow_locks WHERE lock_key=\\$1 AND token=\\$2").
		WithArgs("update_progress", "owner-a").
		WillReturnResult(sqlmock.NewResult(0, 0))

	released, err := provider.Release(context.Background(), "update_progress", "owner-a")
	if err != nil || !released {
		t.Fatalf("expected release, released=%v err=%v", released, err)
	}
	released, err = provider.Release(context.Background(), "update_progress", "owner-a")
	if err != nil || released {
		t.Fatalf("second release must be a no-op, released=%v err=%v", released, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
