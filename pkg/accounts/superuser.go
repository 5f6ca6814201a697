// Package accounts bootstraps user accounts in the metadata database.
package accounts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const insertSuperuserQuery = `INSERT INTO users (id, email, nickname, password_hash, is_superuser, status, create_time)
VALUES ($1, $2, $3, $4, TRUE, '1', NOW())
ON CONFLICT (email) DO NOTHING`

// ErrInvalidSuperuser is returned for missing email or password.
var ErrInvalidSuperuser = errors.New("invalid superuser settings")

// SuperuserOptions describes the bootstrap admin.
type SuperuserOptions struct {
	Email    string
	Nickname string
	Password string
	// Cost is the bcrypt cost; zero means bcrypt.DefaultCost.
	Cost int
}

// InitSuperuser inserts the admin account unless a user with the same email exists. It
// reports whether a row was created.
func InitSuperuser(ctx context.Context, db *sql.DB, opts SuperuserOptions) (bool, error) {
	if db == nil {
		return false, errors.New("accounts: db is required")
	}
	email := strings.ToLower(strings.TrimSpace(opts.Email))
	if email == "" || !strings.Contains(email, "@") {
		return false, fmt.Errorf("%w: email %q", ErrInvalidSuperuser, opts.Email)
	}
	if opts.Password == "" {
		return false, fmt.Errorf("%w: password is required", ErrInvalidSuperuser)
	}
	nickname := strings.TrimSpace(opts.Nickname)
	if nickname == "" {
		nickname = strings.SplitN(email, "@", 2)[0]
	}
	cost := opts.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(opts.Password), cost)
	if err != nil {
		return false, fmt.Errorf("hash superuser password: %w", err)
	}

	result, err := db.ExecContext(ctx, insertSuperuserQuery, uuid.NewString(), email, nickname, string(hash))
	if err != nil {
		return false, fmt.Errorf("insert superuser: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert superuser: %w", err)
	}
	return affected > 0, nil
}
