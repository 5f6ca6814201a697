package accounts

import (
	"context"
	"database/sql/driver"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

type uuidArg struct{}

func (uuidArg) Match(v driver.Value) bool {
	s, ok := v.(string)
	if !ok {
		return false
	}
	_, err := uuid.Parse(s)
	return err == nil
}

type bcryptArg struct{ password string }

func (a bcryptArg) Match(v driver.Value) bool {
	s, ok := v.(string)
	return ok && bcrypt.CompareHashAndPassword([]byte(s), []byte(a.password)) == nil
}

func TestInitSuperuser(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	defer db.Close()

	mock.ExpectExec("INSERT INTO users").
		WithArgs(uuidArg{}, "admin@docflow.io", "admin", bcryptArg{password: "s3cret"}).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO users").
		WithArgs(uuidArg{}, "admin@docflow.io", "admin", bcryptArg{password: "s3cret"}).
		WillReturnResult(sqlmock.NewResult(0, 0))

	opts := SuperuserOptions{Email: " Admin@docflow.io ", Password: "s3cret", Cost: bcrypt.MinCost}
	created, err := InitSuperuser(context.Background(), db, opts)
	if err != nil || !created {
		t.Fatalf("expected superuser to be created, created=%v err=%v", created, err)
	}
	created, err = InitSuperuser(context.Background(), db, opts)
	if err != nil || created {
		t.Fatalf("second call must be a no-op, created=%v err=%v", created, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestInitSuperuser_Validation(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	defer db.Close()

	tests := []SuperuserOptions{
		{Email: "", Password: "x"},
		{Email: "not-an-email", Password: "x"},
		{Email: "admin@docflow.io"},
	}
	for _, opts := range tests {
		if _, err := InitSuperuser(context.Background(), db, opts); !errors.Is(err, ErrInvalidSuperuser) {
			t.Errorf("expected ErrInvalidSuperuser for %+v, got %v", opts, err)
		}
	}
}

func TestInitSuperuser_InsertFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	defer db.Close()

	mock.ExpectExec("INSERT INTO users").WillReturnError(errors.New("relation users does not exist"))
	_, err = InitSuperuser(context.Background(), db, SuperuserOptions{Email: "a@b.c", Password: "x", Cost: bcrypt.MinCost})
	if err == nil {
		t.Fatal("expected insert error")
	}
}
