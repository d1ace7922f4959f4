package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/example/ec-store/internal/model"
)

// PostgresUsers implements UserStore on PostgreSQL.
type PostgresUsers struct {
	db *sql.DB
}

// NewPostgresUsers creates a user store backed by db.
func NewPostgresUsers(db *sql.DB) *PostgresUsers {
	return &PostgresUsers{db: db}
}

func scanUser(row rowScanner) (*model.User, error) {
	var u model.User
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Name, &u.Role, &u.IsActive, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, pgError(err)
	}
	return &u, nil
}

func (s *PostgresUsers) CreateUser(ctx context.Context, u *model.User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, email, password_hash, name, role, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, u.ID, u.Email, u.PasswordHash, u.Name, u.Role, u.IsActive, u.CreatedAt, u.UpdatedAt)
	return pgError(err)
}

func (s *PostgresUsers) GetUser(ctx context.Context, id string) (*model.User, error) {
	return scanUser(s.db.QueryRowContext(ctx, `
		SELECT id, email, password_hash, name, role, is_active, created_at, updated_at
		FROM users WHERE id::text = $1
	`, id))
}

func (s *PostgresUsers) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	return scanUser(s.db.QueryRowContext(ctx, `
		SELECT id, email, password_hash, name, role, is_active, created_at, updated_at
		FROM users WHERE lower(email) = lower($1)
	`, email))
}

func (s *PostgresUsers) UpdateUser(ctx context.Context, u *model.User) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET email = $2, password_hash = $3, name = $4, role = $5, is_active = $6, updated_at = $7
		WHERE id::text = $1
	`, u.ID, u.Email, u.PasswordHash, u.Name, u.Role, u.IsActive, u.UpdatedAt)
	return affectedOne(res, err)
}

func (s *PostgresUsers) ReplacePasswordHash(ctx context.Context, id, current, next string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET password_hash = $3, updated_at = $4
		WHERE id::text = $1 AND password_hash = $2
	`, id, current, next, at)
	return affectedOne(res, err)
}

func (s *PostgresUsers) ListUsers(ctx context.Context, page PageRequest) (Page[model.User], error) {
	page = page.Normalize()

	var total int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&total); err != nil {
		return Page[model.User]{}, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, email, password_hash, name, role, is_active, created_at, updated_at
		FROM users ORDER BY created_at LIMIT $1 OFFSET $2
	`, page.Size, page.Offset())
	if err != nil {
		return Page[model.User]{}, err
	}
	defer rows.Close()

	users := make([]model.User, 0, page.Size)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return Page[model.User]{}, err
		}
		users = append(users, *u)
	}
	return Page[model.User]{Items: users, Total: total, Page: page.Page, Size: page.Size}, rows.Err()
}

func (s *PostgresUsers) SaveSession(ctx context.Context, sess *model.Session) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_sessions (id, user_id, refresh_token_hash, expires_at, created_at, ip_address, user_agent)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			refresh_token_hash = EXCLUDED.refresh_token_hash,
			expires_at = EXCLUDED.expires_at
	`, sess.ID, sess.UserID, sess.RefreshTokenHash, sess.ExpiresAt, sess.CreatedAt, sess.IPAddress, sess.UserAgent)
	return pgError(err)
}

func (s *PostgresUsers) GetSession(ctx context.Context, id string) (*model.Session, error) {
	var sess model.Session
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, refresh_token_hash, expires_at, created_at, ip_address, user_agent
		FROM user_sessions WHERE id::text = $1
	`, id).Scan(&sess.ID, &sess.UserID, &sess.RefreshTokenHash, &sess.ExpiresAt, &sess.CreatedAt, &sess.IPAddress, &sess.UserAgent)
	if err != nil {
		return nil, pgError(err)
	}
	return &sess, nil
}

func (s *PostgresUsers) DeleteSession(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM user_sessions WHERE id::text = $1`, id)
	return err
}

func (s *PostgresUsers) DeleteSessionsByUserID(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM user_sessions WHERE user_id::text = $1`, userID)
	return err
}

// DeleteExpiredSessions removes sessions past their expiry.
func (s *PostgresUsers) DeleteExpiredSessions(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM user_sessions WHERE expires_at < $1`, time.Now())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// PostgresOrders implements OrderStore on PostgreSQL.
type PostgresOrders struct {
	db *sql.DB
}

// NewPostgresOrders creates an order store backed by db.
func NewPostgresOrders(db *sql.DB) *PostgresOrders {
	return &PostgresOrders{db: db}
}

func (s *PostgresOrders) SaveOrder(ctx context.Context, o *model.Order) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `
		INSERT INTO orders (id, user_id, total, status, ordered_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, o.ID, o.UserID, o.Total, string(o.Status), o.OrderedAt, o.CreatedAt, o.UpdatedAt); err != nil {
		return pgError(err)
	}
	for i, l := range o.Lines {
		if _, err = tx.ExecContext(ctx, `
			INSERT INTO order_lines (order_id, line_no, product_id, quantity, unit_price, subtotal)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, o.ID, i, l.ProductID, l.Quantity, l.UnitPrice, l.Subtotal); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *PostgresOrders) GetOrder(ctx context.Context, id string) (*model.Order, error) {
	var o model.Order
	var status string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, total, status, ordered_at, created_at, updated_at
		FROM orders WHERE id = $1
	`, id).Scan(&o.ID, &o.UserID, &o.Total, &status, &o.OrderedAt, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, pgError(err)
	}
	o.Status = model.OrderStatus(status)

	lines, err := s.lines(ctx, id)
	if err != nil {
		return nil, err
	}
	o.Lines = lines
	return &o, nil
}

func (s *PostgresOrders) lines(ctx context.Context, orderID string) ([]model.OrderLine, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT product_id, quantity, unit_price, subtotal
		FROM order_lines WHERE order_id = $1 ORDER BY line_no
	`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lines []model.OrderLine
	for rows.Next() {
		var l model.OrderLine
		if err := rows.Scan(&l.ProductID, &l.Quantity, &l.UnitPrice, &l.Subtotal); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

func (s *PostgresOrders) ListOrders(ctx context.Context, userID string, page PageRequest) (Page[model.Order], error) {
	page = page.Normalize()

	var total int64
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM orders WHERE $1 = '' OR user_id = $1`, userID,
	).Scan(&total); err != nil {
		return Page[model.Order]{}, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id FROM orders WHERE $1 = '' OR user_id = $1
		ORDER BY id DESC LIMIT $2 OFFSET $3
	`, userID, page.Size, page.Offset())
	if err != nil {
		return Page[model.Order]{}, err
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return Page[model.Order]{}, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return Page[model.Order]{}, err
	}

	orders := make([]model.Order, 0, len(ids))
	for _, id := range ids {
		o, err := s.GetOrder(ctx, id)
		if err != nil {
			return Page[model.Order]{}, err
		}
		orders = append(orders, *o)
	}
	return Page[model.Order]{Items: orders, Total: total, Page: page.Page, Size: page.Size}, nil
}

func (s *PostgresOrders) DeleteOrder(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM orders WHERE id = $1`, id)
	return affectedOne(res, err)
}
