package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/fjod/go_shop/internal/domain"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/google/uuid"
	_ "github.com/lib/pq"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(cred *Credentials) (*Repository, error) {
	psqlconn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		cred.Host,
		cred.Port,
		cred.User,
		cred.Password,
		cred.DBName)

	db, err := sql.Open("postgres", psqlconn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if e2 := db.Ping(); e2 != nil {
		return nil, fmt.Errorf("failed to ping database: %w", e2)
	}

	db.SetMaxOpenConns(100)
	db.SetMaxIdleConns(10)
	return &Repository{db: db}, nil
}

func (r *Repository) RunMigrations(cred *Credentials) error {
	driver, err := postgres.WithInstance(r.db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		fmt.Sprintf("file://%s", cred.MigrationsDirPath),
		"postgres",
		driver,
	)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	if e2 := m.Up(); e2 != nil && !errors.Is(e2, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", e2)
	}

	return nil
}

func (r *Repository) Close() error {
	return r.db.Close()
}

func (r *Repository) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	query := `SELECT id, name, description, price, stock, active, created_at
	          FROM products WHERE id = $1`

	var p domain.Product
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&p.ID, &p.Name, &p.Description, &p.Price, &p.Stock, &p.Active, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrProductNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query product: %w", err)
	}
	return &p, nil
}

func (r *Repository) GetCartByUserID(ctx context.Context, userID string) (*domain.Cart, error) {
	var cart domain.Cart
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, created_at, updated_at FROM carts WHERE user_id = $1`,
		userID).Scan(&cart.ID, &cart.UserID, &cart.CreatedAt, &cart.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCartNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query cart: %w", err)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, product_id, quantity, price_at_add
		 FROM cart_items WHERE cart_id = $1 ORDER BY created_at`,
		cart.ID)
	if err != nil {
		return nil, fmt.Errorf("query cart items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item domain.CartItem
		if err := rows.Scan(&item.ID, &item.ProductID, &item.Quantity, &item.PriceAtAdd); err != nil {
			return nil, fmt.Errorf("scan cart item: %w", err)
		}
		cart.Items = append(cart.Items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("cart item iteration: %w", err)
	}

	return &cart, nil
}

// AddCartItem creates the user's cart on first use, captures the current
// product price and upserts the line item quantity.
func (r *Repository) AddCartItem(ctx context.Context, userID string, productID int64, quantity int) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin add item: %w", err)
	}
	defer tx.Rollback()

	var price int64
	var active bool
	err = tx.QueryRowContext(ctx,
		`SELECT price, active FROM products WHERE id = $1`, productID).Scan(&price, &active)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrProductNotFound
	}
	if err != nil {
		return fmt.Errorf("query product for add: %w", err)
	}
	if !active {
		return ErrProductNotFound
	}

	cartID, err := ensureCart(ctx, tx, userID)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO cart_items (id, cart_id, product_id, quantity, price_at_add)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (cart_id, product_id)
		 DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity`,
		uuid.New(), cartID, productID, quantity, price)
	if err != nil {
		return fmt.Errorf("upsert cart item: %w", err)
	}

	return tx.Commit()
}

func (r *Repository) UpdateCartItemQuantity(ctx context.Context, userID string, productID int64, quantity int) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE cart_items SET quantity = $1
		 WHERE product_id = $2
		   AND cart_id = (SELECT id FROM carts WHERE user_id = $3)`,
		quantity, productID, userID)
	if err != nil {
		return fmt.Errorf("update cart item quantity: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update cart item quantity: %w", err)
	}
	if n == 0 {
		return ErrCartNotFound
	}
	return nil
}

func (r *Repository) RemoveCartItem(ctx context.Context, userID string, productID int64) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM cart_items
		 WHERE product_id = $1
		   AND cart_id = (SELECT id FROM carts WHERE user_id = $2)`,
		productID, userID)
	if err != nil {
		return fmt.Errorf("remove cart item: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("remove cart item: %w", err)
	}
	if n == 0 {
		return ErrCartNotFound
	}
	return nil
}

// MergeGuestCart folds a client-held anonymous cart into the account cart in
// one transaction. Inactive or vanished products are dropped silently and
// quantities are capped at live stock.
func (r *Repository) MergeGuestCart(ctx context.Context, userID string, items []domain.GuestCartItem) (*MergeResult, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin merge: %w", err)
	}
	defer tx.Rollback()

	cartID, err := ensureCart(ctx, tx, userID)
	if err != nil {
		return nil, err
	}

	// Collapse repeated products in the payload first so one guest line
	// equals one merged or updated line in the counts.
	deduped := make([]domain.GuestCartItem, 0, len(items))
	seen := make(map[int64]int, len(items))
	for _, incoming := range items {
		if incoming.Quantity <= 0 {
			continue
		}
		if i, ok := seen[incoming.ProductID]; ok {
			deduped[i].Quantity += incoming.Quantity
			continue
		}
		seen[incoming.ProductID] = len(deduped)
		deduped = append(deduped, incoming)
	}

	result := &MergeResult{}
	for _, incoming := range deduped {
		var price int64
		var stock int
		var active bool
		err := tx.QueryRowContext(ctx,
			`SELECT price, stock, active FROM products WHERE id = $1`,
			incoming.ProductID).Scan(&price, &stock, &active)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("query product for merge: %w", err)
		}
		if !active {
			continue
		}

		var existing int
		err = tx.QueryRowContext(ctx,
			`SELECT quantity FROM cart_items WHERE cart_id = $1 AND product_id = $2`,
			cartID, incoming.ProductID).Scan(&existing)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			quantity := min(incoming.Quantity, stock)
			if quantity <= 0 {
				continue
			}
			_, err = tx.ExecContext(ctx,
				`INSERT INTO cart_items (id, cart_id, product_id, quantity, price_at_add)
				 VALUES ($1, $2, $3, $4, $5)`,
				uuid.New(), cartID, incoming.ProductID, quantity, price)
			if err != nil {
				return nil, fmt.Errorf("insert merged item: %w", err)
			}
			result.MergedItemsCount++
		case err != nil:
			return nil, fmt.Errorf("query existing item for merge: %w", err)
		default:
			quantity := min(existing+incoming.Quantity, stock)
			_, err = tx.ExecContext(ctx,
				`UPDATE cart_items SET quantity = $1 WHERE cart_id = $2 AND product_id = $3`,
				quantity, cartID, incoming.ProductID)
			if err != nil {
				return nil, fmt.Errorf("update merged item: %w", err)
			}
			result.UpdatedItemsCount++
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit merge: %w", err)
	}
	return result, nil
}

func (r *Repository) GetDiscountByCode(ctx context.Context, code string) (*domain.Discount, error) {
	query := `SELECT id, code, kind, value, starts_at, expires_at,
	                 usage_count, usage_limit, min_order_amount, max_discount_amount,
	                 active, created_at
	          FROM discounts WHERE code = $1`

	var d domain.Discount
	err := r.db.QueryRowContext(ctx, query, code).Scan(
		&d.ID, &d.Code, &d.Kind, &d.Value, &d.StartsAt, &d.ExpiresAt,
		&d.UsageCount, &d.UsageLimit, &d.MinOrderAmount, &d.MaxDiscountAmount,
		&d.Active, &d.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrDiscountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query discount: %w", err)
	}
	return &d, nil
}

func ensureCart(ctx context.Context, tx *sql.Tx, userID string) (uuid.UUID, error) {
	var cartID uuid.UUID
	err := tx.QueryRowContext(ctx,
		`INSERT INTO carts (id, user_id) VALUES ($1, $2)
		 ON CONFLICT (user_id) DO UPDATE SET updated_at = NOW()
		 RETURNING id`,
		uuid.New(), userID).Scan(&cartID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("ensure cart: %w", err)
	}
	return cartID, nil
}
