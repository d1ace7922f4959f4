package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/lib/pq"
)

// PostgreSQL error codes mapped onto store errors.
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// Schema is the PostgreSQL schema for the catalog, accounts and orders.
const Schema = `
CREATE TABLE IF NOT EXISTS categories (
	id          UUID PRIMARY KEY,
	name        TEXT NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL,
	is_deleted  BOOLEAN NOT NULL DEFAULT FALSE
);
CREATE UNIQUE INDEX IF NOT EXISTS categories_active_name_idx
	ON categories (lower(name)) WHERE NOT is_deleted;

CREATE TABLE IF NOT EXISTS products (
	id              BIGSERIAL PRIMARY KEY,
	correlation_id  UUID NOT NULL UNIQUE,
	brand           TEXT NOT NULL,
	model           TEXT NOT NULL,
	description     TEXT NOT NULL DEFAULT '',
	price           NUMERIC(12, 2) NOT NULL CHECK (price >= 0),
	image           TEXT NOT NULL DEFAULT '',
	stock           INTEGER NOT NULL CHECK (stock >= 0),
	category_id     UUID NOT NULL REFERENCES categories (id),
	created_at      TIMESTAMPTZ NOT NULL,
	updated_at      TIMESTAMPTZ NOT NULL,
	is_deleted      BOOLEAN NOT NULL DEFAULT FALSE
);
CREATE INDEX IF NOT EXISTS products_category_idx ON products (category_id);

CREATE TABLE IF NOT EXISTS users (
	id             UUID PRIMARY KEY,
	email          TEXT NOT NULL,
	password_hash  TEXT NOT NULL,
	name           TEXT NOT NULL,
	role           TEXT NOT NULL,
	is_active      BOOLEAN NOT NULL DEFAULT TRUE,
	created_at     TIMESTAMPTZ NOT NULL,
	updated_at     TIMESTAMPTZ NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS users_email_idx ON users (lower(email));

CREATE TABLE IF NOT EXISTS user_sessions (
	id                  UUID PRIMARY KEY,
	user_id             UUID NOT NULL REFERENCES users (id) ON DELETE CASCADE,
	refresh_token_hash  TEXT NOT NULL,
	expires_at          TIMESTAMPTZ NOT NULL,
	created_at          TIMESTAMPTZ NOT NULL,
	ip_address          TEXT NOT NULL DEFAULT '',
	user_agent          TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS orders (
	id          TEXT PRIMARY KEY,
	user_id     TEXT NOT NULL,
	total       NUMERIC(14, 2) NOT NULL,
	status      TEXT NOT NULL,
	ordered_at  TIMESTAMPTZ NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS orders_user_idx ON orders (user_id);

CREATE TABLE IF NOT EXISTS order_lines (
	order_id    TEXT NOT NULL REFERENCES orders (id) ON DELETE CASCADE,
	line_no     INTEGER NOT NULL,
	product_id  BIGINT NOT NULL,
	quantity    INTEGER NOT NULL,
	unit_price  NUMERIC(12, 2) NOT NULL,
	subtotal    NUMERIC(14, 2) NOT NULL,
	PRIMARY KEY (order_id, line_no)
);
`

// ConnectPostgres establishes a connection to PostgreSQL
func ConnectPostgres(connStr string) (*sql.DB, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return db, nil
}

// Migrate applies Schema. Statements are idempotent.
func Migrate(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, Schema)
	return err
}

// pgError maps constraint violations to store errors and passes anything else through.
func pgError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case pgUniqueViolation:
			return ErrConflict
		case pgForeignKeyViolation:
			return ErrNotFound
		}
	}
	return err
}

func isForeignKeyViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == pgForeignKeyViolation
}
