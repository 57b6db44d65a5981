package directory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	taskmanager "github.com/lewadaa/task-manager"
)

const lookupQuery = `select username, role, password_hash from users where username = $1`

// Postgres reads principals from the users table.
type Postgres struct {
	db *sql.DB
}

// Open connects to dsn through the pgx driver and verifies the connection.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("directory: ping: %w", err)
	}
	return db, nil
}

// NewPostgres wraps db. The caller owns db.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

// LookupPrincipal implements taskmanager.PrincipalDirectory.
//
//	Performance: 1 indexed SELECT.
func (p *Postgres) LookupPrincipal(ctx context.Context, username string) (taskmanager.PrincipalRecord, error) {
	if username == "" {
		return taskmanager.PrincipalRecord{}, fmt.Errorf("%w: empty username", taskmanager.ErrUnknownPrincipal)
	}

	var rec taskmanager.PrincipalRecord
	err := p.db.QueryRowContext(ctx, lookupQuery, username).Scan(&rec.Username, &rec.Role, &rec.PasswordHash)
	if errors.Is(err, sql.ErrNoRows) {
		return taskmanager.PrincipalRecord{}, fmt.Errorf("%w: %s", taskmanager.ErrUnknownPrincipal, username)
	}
	if err != nil {
		return taskmanager.PrincipalRecord{}, fmt.Errorf("directory: lookup %s: %w", username, err)
	}
	if err := validate(rec.Username, rec.Role); err != nil {
		return taskmanager.PrincipalRecord{}, err
	}
	return rec, nil
}
