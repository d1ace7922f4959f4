package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/ec-store/internal/logging"
	"github.com/example/ec-store/internal/model"
)

const productColumns = `
	p.id, p.correlation_id, p.brand, p.model, p.description, p.price, p.image, p.stock,
	p.created_at, p.updated_at, p.is_deleted,
	c.id, c.name, c.created_at, c.updated_at, c.is_deleted
	FROM products p JOIN categories c ON c.id = p.category_id`

// PostgresCatalog implements Catalog on PostgreSQL.
type PostgresCatalog struct {
	db     *sql.DB
	logger *zap.Logger
	now    func() time.Time
}

// NewPostgresCatalog creates a catalog backed by db.
func NewPostgresCatalog(db *sql.DB, logger *zap.Logger) *PostgresCatalog {
	return &PostgresCatalog{
		db:     db,
		logger: logging.OrNop(logger).Named("postgres"),
		now:    time.Now,
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

// Category operations

func scanCategory(row rowScanner) (*model.Category, error) {
	var c model.Category
	if err := row.Scan(&c.ID, &c.Name, &c.CreatedAt, &c.UpdatedAt, &c.IsDeleted); err != nil {
		return nil, pgError(err)
	}
	return &c, nil
}

func (s *PostgresCatalog) GetCategory(ctx context.Context, id string) (*model.Category, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}
	return scanCategory(s.db.QueryRowContext(ctx, `
		SELECT id, name, created_at, updated_at, is_deleted
		FROM categories WHERE id = $1
	`, id))
}

func (s *PostgresCatalog) FindCategoryByName(ctx context.Context, name string) (*model.Category, error) {
	return scanCategory(s.db.QueryRowContext(ctx, `
		SELECT id, name, created_at, updated_at, is_deleted
		FROM categories WHERE lower(name) = lower($1) AND NOT is_deleted
	`, strings.TrimSpace(name)))
}

func (s *PostgresCatalog) ListCategories(ctx context.Context, filter CategoryFilter) ([]model.Category, error) {
	var (
		conditions []string
		args       []any
	)
	if filter.Name != "" {
		args = append(args, filter.Name)
		conditions = append(conditions, fmt.Sprintf("strpos(lower(name), lower($%d)) > 0", len(args)))
	}
	if filter.IsDeleted != nil {
		args = append(args, *filter.IsDeleted)
		conditions = append(conditions, fmt.Sprintf("is_deleted = $%d", len(args)))
	}

	query := `SELECT id, name, created_at, updated_at, is_deleted FROM categories`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY name"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	categories := make([]model.Category, 0)
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, err
		}
		categories = append(categories, *c)
	}
	return categories, rows.Err()
}

func (s *PostgresCatalog) UpsertCategory(ctx context.Context, c *model.Category) (*model.Category, error) {
	now := s.now()
	if c.ID == "" {
		return scanCategory(s.db.QueryRowContext(ctx, `
			INSERT INTO categories (id, name, created_at, updated_at, is_deleted)
			VALUES ($1, $2, $3, $3, $4)
			RETURNING id, name, created_at, updated_at, is_deleted
		`, uuid.New().String(), c.Name, now, c.IsDeleted))
	}
	if _, err := uuid.Parse(c.ID); err != nil {
		return nil, ErrNotFound
	}
	return scanCategory(s.db.QueryRowContext(ctx, `
		UPDATE categories SET name = $2, is_deleted = $3, updated_at = $4
		WHERE id = $1
		RETURNING id, name, created_at, updated_at, is_deleted
	`, c.ID, c.Name, c.IsDeleted, now))
}

func (s *PostgresCatalog) RenameCategory(ctx context.Context, id, name string) (*model.Category, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}
	return scanCategory(s.db.QueryRowContext(ctx, `
		UPDATE categories SET name = $2, updated_at = $3
		WHERE id = $1 AND NOT is_deleted
		RETURNING id, name, created_at, updated_at, is_deleted
	`, id, name, s.now()))
}

func (s *PostgresCatalog) SoftDeleteCategory(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return ErrNotFound
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE categories SET is_deleted = TRUE, updated_at = $2
		WHERE id = $1 AND NOT is_deleted
	`, id, s.now())
	return affectedOne(res, err)
}

// Product operations

func scanProduct(row rowScanner) (*model.Product, error) {
	var p model.Product
	err := row.Scan(
		&p.ID, &p.CorrelationID, &p.Brand, &p.Model, &p.Description, &p.Price, &p.Image, &p.Stock,
		&p.CreatedAt, &p.UpdatedAt, &p.IsDeleted,
		&p.Category.ID, &p.Category.Name, &p.Category.CreatedAt, &p.Category.UpdatedAt, &p.Category.IsDeleted,
	)
	if err != nil {
		return nil, pgError(err)
	}
	return &p, nil
}

func (s *PostgresCatalog) Get(ctx context.Context, id int64) (*model.Product, error) {
	return scanProduct(s.db.QueryRowContext(ctx, `SELECT `+productColumns+` WHERE p.id = $1`, id))
}

func (s *PostgresCatalog) GetByCorrelationID(ctx context.Context, token string) (*model.Product, error) {
	if _, err := uuid.Parse(token); err != nil {
		return nil, ErrNotFound
	}
	return scanProduct(s.db.QueryRowContext(ctx, `SELECT `+productColumns+` WHERE p.correlation_id = $1`, token))
}

// productWhere composes the filter into a WHERE clause joined with AND.
func productWhere(filter ProductFilter) (string, []any) {
	var (
		conditions []string
		args       []any
	)
	add := func(format string, value any) {
		args = append(args, value)
		conditions = append(conditions, fmt.Sprintf(format, len(args)))
	}

	if filter.Brand != "" {
		add("strpos(lower(p.brand), lower($%d)) > 0", filter.Brand)
	}
	if filter.Category != "" {
		add("strpos(lower(c.name), lower($%d)) > 0", filter.Category)
	}
	if filter.Model != "" {
		add("strpos(lower(p.model), lower($%d)) > 0", filter.Model)
	}
	if filter.IsDeleted != nil {
		add("p.is_deleted = $%d", *filter.IsDeleted)
	}
	if filter.MaxPrice != nil {
		add("p.price <= $%d", *filter.MaxPrice)
	}
	if filter.MinStock != nil {
		add("p.stock >= $%d", *filter.MinStock)
	}

	if len(conditions) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}

// productOrder renders ORDER BY with id as tie-breaker.
func productOrder(page PageRequest) string {
	dir := "ASC"
	if page.Desc {
		dir = "DESC"
	}
	col := productSortColumns[page.SortBy]
	if col == "p.id" {
		return fmt.Sprintf(" ORDER BY p.id %s", dir)
	}
	return fmt.Sprintf(" ORDER BY %s %s, p.id %s", col, dir, dir)
}

func (s *PostgresCatalog) List(ctx context.Context, filter ProductFilter, page PageRequest) (Page[model.Product], error) {
	page = page.Normalize()
	where, args := productWhere(filter)

	var total int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM products p JOIN categories c ON c.id = p.category_id`+where,
		args...,
	).Scan(&total)
	if err != nil {
		return Page[model.Product]{}, err
	}

	query := `SELECT ` + productColumns + where + productOrder(page) +
		fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	rows, err := s.db.QueryContext(ctx, query, append(args, page.Size, page.Offset())...)
	if err != nil {
		return Page[model.Product]{}, err
	}
	defer rows.Close()

	items := make([]model.Product, 0, page.Size)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return Page[model.Product]{}, err
		}
		items = append(items, *p)
	}
	if err := rows.Err(); err != nil {
		return Page[model.Product]{}, err
	}
	return Page[model.Product]{Items: items, Total: total, Page: page.Page, Size: page.Size}, nil
}

func (s *PostgresCatalog) Upsert(ctx context.Context, p *model.Product) (*model.Product, error) {
	if _, err := uuid.Parse(p.Category.ID); err != nil {
		return nil, ErrNotFound
	}
	now := s.now()

	var id int64
	var err error
	if p.ID == 0 {
		token := p.CorrelationID
		if token == "" {
			token = uuid.New().String()
		}
		err = s.db.QueryRowContext(ctx, `
			INSERT INTO products (correlation_id, brand, model, description, price, image, stock,
				category_id, created_at, updated_at, is_deleted)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9, $10)
			RETURNING id
		`, token, p.Brand, p.Model, p.Description, p.Price, p.Image, p.Stock,
			p.Category.ID, now, p.IsDeleted).Scan(&id)
	} else {
		// correlation_id and created_at are never rewritten.
		err = s.db.QueryRowContext(ctx, `
			UPDATE products SET brand = $2, model = $3, description = $4, price = $5, image = $6,
				stock = $7, category_id = $8, is_deleted = $9, updated_at = $10
			WHERE id = $1
			RETURNING id
		`, p.ID, p.Brand, p.Model, p.Description, p.Price, p.Image, p.Stock,
			p.Category.ID, p.IsDeleted, now).Scan(&id)
	}
	if err != nil {
		return nil, pgError(err)
	}
	return s.Get(ctx, id)
}

// UpdateProduct locks the product row for the read-modify-write, so it serialises
// with Reserve and SoftDelete on the same row.
func (s *PostgresCatalog) UpdateProduct(ctx context.Context, id int64, mutate func(*model.Product) error) (_ *model.Product, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				s.logger.Warn("update rollback failed", zap.Int64("product_id", id), zap.Error(rbErr))
			}
		}
	}()

	current, err := scanProduct(tx.QueryRowContext(ctx,
		`SELECT `+productColumns+` WHERE p.id = $1 FOR UPDATE OF p`, id))
	if err != nil {
		return nil, err
	}
	if current.IsDeleted {
		err = ErrNotFound
		return nil, err
	}

	next := *current
	if err = mutate(&next); err != nil {
		return nil, err
	}
	if _, parseErr := uuid.Parse(next.Category.ID); parseErr != nil {
		err = ErrUnknownCategory
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE products SET brand = $2, model = $3, description = $4, price = $5, image = $6,
			stock = $7, category_id = $8, updated_at = $9
		WHERE id = $1
	`, id, next.Brand, next.Model, next.Description, next.Price, next.Image, next.Stock,
		next.Category.ID, s.now())
	if err != nil {
		if isForeignKeyViolation(err) {
			err = ErrUnknownCategory
		}
		return nil, err
	}
	if err = tx.Commit(); err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

func (s *PostgresCatalog) SoftDelete(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE products SET is_deleted = TRUE, updated_at = $2
		WHERE id = $1 AND NOT is_deleted
	`, id, s.now())
	return affectedOne(res, err)
}

// Reserve locks the requested rows in id order, checks them and decrements stock in
// one transaction.
func (s *PostgresCatalog) Reserve(ctx context.Context, reqs []StockRequest) (err error) {
	merged := mergeRequests(reqs)
	sort.Slice(merged, func(i, j int) bool { return merged[i].ProductID < merged[j].ProductID })

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				s.logger.Warn("reserve rollback failed", zap.Error(rbErr))
			}
		}
	}()

	for _, r := range merged {
		var current model.Product
		row := tx.QueryRowContext(ctx,
			`SELECT price, stock, is_deleted FROM products WHERE id = $1 FOR UPDATE`, r.ProductID)
		if scanErr := row.Scan(&current.Price, &current.Stock, &current.IsDeleted); scanErr != nil {
			if mapped := pgError(scanErr); mapped == ErrNotFound {
				return &StockError{ProductID: r.ProductID, Err: ErrNotFound}
			}
			return scanErr
		}
		if current.IsDeleted {
			return &StockError{ProductID: r.ProductID, Err: ErrNotFound}
		}
		if !current.Price.Equal(r.UnitPrice) {
			return &StockError{ProductID: r.ProductID, Err: ErrPriceMismatch}
		}
		if current.Stock < r.Quantity {
			return &StockError{ProductID: r.ProductID, Err: ErrInsufficientStock}
		}
	}

	now := s.now()
	for _, r := range merged {
		if _, err = tx.ExecContext(ctx,
			`UPDATE products SET stock = stock - $2, updated_at = $3 WHERE id = $1`,
			r.ProductID, r.Quantity, now,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *PostgresCatalog) Release(ctx context.Context, reqs []StockRequest) error {
	now := s.now()
	for _, r := range mergeRequests(reqs) {
		if _, err := s.db.ExecContext(ctx,
			`UPDATE products SET stock = stock + $2, updated_at = $3 WHERE id = $1`,
			r.ProductID, r.Quantity, now,
		); err != nil {
			return err
		}
	}
	return nil
}

func affectedOne(res sql.Result, err error) error {
	if err != nil {
		return pgError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
