package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/go_shop/internal/cursor"
	"github.com/fjod/go_shop/internal/domain"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

// paymentReferenceConstraint is the unique index on orders.payment_reference.
// Only violations of this specific constraint are treated as "order already
// materialized"; any other storage error propagates.
const paymentReferenceConstraint = "orders_payment_reference_key"

func (r *Repository) UpsertPaymentStatus(ctx context.Context, reference string, status domain.PaymentStatus, raw []byte) error {
	if len(raw) == 0 {
		raw = []byte("{}")
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO payments (reference, status, raw_response)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (reference)
		 DO UPDATE SET status = EXCLUDED.status,
		               raw_response = EXCLUDED.raw_response,
		               updated_at = NOW()`,
		reference, status, raw)
	if err != nil {
		return fmt.Errorf("upsert payment %s: %w", reference, err)
	}
	return nil
}

// MaterializeOrder turns a verified payment into durable order state inside
// one transaction: order + items from the checkout metadata, stock decrement,
// payment marked success, discount usage bump, old cart deleted, outbox event
// queued. The unique constraint on orders.payment_reference is the
// serialization point; a concurrent materialization for the same reference
// loses the insert race, and the loser returns the winner's order instead of
// an error. The bool result is true only for the attempt that created the row.
func (r *Repository) MaterializeOrder(ctx context.Context, m *domain.CheckoutMetadata, reference string, raw []byte) (*domain.Order, bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("begin materialize: %w", err)
	}
	defer tx.Rollback()

	// First guard: payment already settled for this reference.
	var paymentStatus domain.PaymentStatus
	err = tx.QueryRowContext(ctx,
		`SELECT status FROM payments WHERE reference = $1`, reference).Scan(&paymentStatus)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, false, fmt.Errorf("query payment: %w", err)
	}
	if paymentStatus == domain.PaymentStatusSuccess {
		existing, err := r.GetOrderByPaymentReference(ctx, reference)
		if err != nil {
			return nil, false, fmt.Errorf("load order for settled payment: %w", err)
		}
		return existing, false, nil
	}

	// Second guard: order exists even though the payment write lagged.
	var exists bool
	err = tx.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM orders WHERE payment_reference = $1)`,
		reference).Scan(&exists)
	if err != nil {
		return nil, false, fmt.Errorf("check existing order: %w", err)
	}
	if exists {
		prior, err := r.GetOrderByPaymentReference(ctx, reference)
		if err != nil {
			return nil, false, fmt.Errorf("load existing order: %w", err)
		}
		return prior, false, nil
	}

	order := &domain.Order{
		ID:               uuid.New(),
		UserID:           m.UserID,
		OrderNumber:      newOrderNumber(),
		Subtotal:         m.Subtotal,
		DiscountAmount:   m.DiscountAmount,
		Shipping:         m.Shipping,
		Tax:              m.Tax,
		Total:            m.Total,
		Status:           domain.OrderStatusProcessing,
		ShippingAddr:     m.Address,
		PaymentReference: reference,
	}

	addressJSON, err := json.Marshal(order.ShippingAddr)
	if err != nil {
		return nil, false, fmt.Errorf("marshal shipping address: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO orders (id, user_id, order_number, subtotal, discount_amount,
		                     shipping, tax, total, status, shipping_address, payment_reference)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		order.ID, order.UserID, order.OrderNumber, order.Subtotal, order.DiscountAmount,
		order.Shipping, order.Tax, order.Total, order.Status, addressJSON, reference)
	if isPaymentReferenceViolation(err) {
		// Lost the race to a concurrent reconciliation; the aborted
		// transaction is discarded and the winner's order is returned.
		tx.Rollback()
		winner, loadErr := r.GetOrderByPaymentReference(ctx, reference)
		if loadErr != nil {
			return nil, false, fmt.Errorf("load order after duplicate insert: %w", loadErr)
		}
		return winner, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("insert order: %w", err)
	}

	for _, item := range m.Items {
		// Conditional decrement re-checks stock and reserves it in one
		// statement; zero rows affected means the goods are gone.
		res, err := tx.ExecContext(ctx,
			`UPDATE products SET stock = stock - $1 WHERE id = $2 AND stock >= $1`,
			item.Quantity, item.ProductID)
		if err != nil {
			return nil, false, fmt.Errorf("decrement stock for product %d: %w", item.ProductID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return nil, false, fmt.Errorf("decrement stock for product %d: %w", item.ProductID, err)
		}
		if n == 0 {
			return nil, false, fmt.Errorf("product %d: %w", item.ProductID, ErrInsufficientStock)
		}

		orderItem := domain.OrderItem{
			ID:          uuid.New(),
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO order_items (id, order_id, product_id, product_name, quantity, unit_price)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			orderItem.ID, order.ID, orderItem.ProductID, orderItem.ProductName,
			orderItem.Quantity, orderItem.UnitPrice)
		if err != nil {
			return nil, false, fmt.Errorf("insert order item: %w", err)
		}
		order.Items = append(order.Items, orderItem)
	}

	if len(raw) == 0 {
		raw = []byte("{}")
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO payments (reference, status, raw_response)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (reference)
		 DO UPDATE SET status = EXCLUDED.status,
		               raw_response = EXCLUDED.raw_response,
		               updated_at = NOW()`,
		reference, domain.PaymentStatusSuccess, raw)
	if err != nil {
		return nil, false, fmt.Errorf("mark payment success: %w", err)
	}

	if m.DiscountID != "" {
		// Bump usage and deactivate in the same statement once the
		// limit is reached. The usage_count < usage_limit predicate
		// re-checks the limit here: checkout-time validation saw a
		// use left, but a concurrent order may have taken it since.
		res, err := tx.ExecContext(ctx,
			`UPDATE discounts
			 SET usage_count = usage_count + 1,
			     active = CASE
			         WHEN usage_limit IS NOT NULL AND usage_count + 1 >= usage_limit THEN FALSE
			         ELSE active
			     END
			 WHERE id = $1 AND (usage_limit IS NULL OR usage_count < usage_limit)`,
			m.DiscountID)
		if err != nil {
			return nil, false, fmt.Errorf("increment discount usage: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return nil, false, fmt.Errorf("increment discount usage: %w", err)
		}
		if n == 0 {
			return nil, false, fmt.Errorf("discount %s: %w", m.DiscountID, ErrDiscountExhausted)
		}
	}

	// Deleting by the checkout-time cart id leaves any cart the user has
	// started since untouched. Items go with it via cascade.
	_, err = tx.ExecContext(ctx, `DELETE FROM carts WHERE id = $1`, m.CartID)
	if err != nil {
		return nil, false, fmt.Errorf("clear checkout cart: %w", err)
	}

	payload, err := json.Marshal(map[string]interface{}{
		"order_id":     order.ID,
		"order_number": order.OrderNumber,
		"user_id":      order.UserID,
		"total":        order.Total,
		"items":        order.Items,
	})
	if err != nil {
		return nil, false, fmt.Errorf("marshal outbox payload: %w", err)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO outbox_events (aggregate_id, event_type, payload)
		 VALUES ($1, $2, $3)`,
		order.ID.String(), "order.created", payload)
	if err != nil {
		return nil, false, fmt.Errorf("insert outbox event: %w", err)
	}

	if err := tx.Commit(); err != nil {
		if isPaymentReferenceViolation(err) {
			winner, loadErr := r.GetOrderByPaymentReference(ctx, reference)
			if loadErr != nil {
				return nil, false, fmt.Errorf("load order after duplicate commit: %w", loadErr)
			}
			return winner, false, nil
		}
		return nil, false, fmt.Errorf("commit materialize: %w", err)
	}

	order.CreatedAt = time.Now()
	order.UpdatedAt = order.CreatedAt
	return order, true, nil
}

func isPaymentReferenceViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) &&
		pqErr.Code == "23505" &&
		pqErr.Constraint == paymentReferenceConstraint
}

func (r *Repository) GetOrderByID(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	return r.getOrder(ctx, `WHERE id = $1`, id)
}

func (r *Repository) GetOrderByPaymentReference(ctx context.Context, reference string) (*domain.Order, error) {
	return r.getOrder(ctx, `WHERE payment_reference = $1`, reference)
}

func (r *Repository) getOrder(ctx context.Context, where string, arg interface{}) (*domain.Order, error) {
	query := `SELECT id, user_id, order_number, subtotal, discount_amount,
	                 shipping, tax, total, status, shipping_address, payment_reference,
	                 created_at, updated_at
	          FROM orders ` + where

	order, err := scanOrder(r.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		return nil, err
	}
	if err := r.loadOrderItems(ctx, order); err != nil {
		return nil, err
	}
	return order, nil
}

// ListOrdersByUserID pages newest-first with a keyset cursor: the page after
// a cursor holds rows strictly before (created_at, id) in descending order.
func (r *Repository) ListOrdersByUserID(ctx context.Context, userID string, after *cursor.Cursor, limit int) ([]*domain.Order, error) {
	query := `SELECT id, user_id, order_number, subtotal, discount_amount,
	                 shipping, tax, total, status, shipping_address, payment_reference,
	                 created_at, updated_at
	          FROM orders WHERE user_id = $1`
	args := []interface{}{userID}

	if after != nil {
		query += ` AND (created_at, id) < ($2, $3)`
		args = append(args, after.CreatedAt, after.ID)
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC, id DESC LIMIT $%d`, len(args)+1)
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query orders by user: %w", err)
	}
	defer rows.Close()

	var orders []*domain.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("order iteration: %w", err)
	}

	for _, order := range orders {
		if err := r.loadOrderItems(ctx, order); err != nil {
			return nil, err
		}
	}
	return orders, nil
}

func (r *Repository) loadOrderItems(ctx context.Context, order *domain.Order) error {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, product_id, product_name, quantity, unit_price
		 FROM order_items WHERE order_id = $1`,
		order.ID)
	if err != nil {
		return fmt.Errorf("query order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item domain.OrderItem
		if err := rows.Scan(&item.ID, &item.ProductID, &item.ProductName, &item.Quantity, &item.UnitPrice); err != nil {
			return fmt.Errorf("scan order item: %w", err)
		}
		order.Items = append(order.Items, item)
	}
	return rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanOrder(row rowScanner) (*domain.Order, error) {
	var order domain.Order
	var addressJSON []byte
	err := row.Scan(
		&order.ID, &order.UserID, &order.OrderNumber, &order.Subtotal, &order.DiscountAmount,
		&order.Shipping, &order.Tax, &order.Total, &order.Status, &addressJSON,
		&order.PaymentReference, &order.CreatedAt, &order.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan order: %w", err)
	}
	if err := json.Unmarshal(addressJSON, &order.ShippingAddr); err != nil {
		return nil, fmt.Errorf("unmarshal shipping address: %w", err)
	}
	return &order, nil
}

func newOrderNumber() string {
	return fmt.Sprintf("ORD-%d", time.Now().UnixNano())
}

func (r *Repository) GetUnprocessedEvents(ctx context.Context, limit int) ([]*OutboxEvent, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, aggregate_id, event_type, payload, created_at
		 FROM outbox_events WHERE processed = FALSE
		 ORDER BY id LIMIT $1`,
		limit)
	if err != nil {
		return nil, fmt.Errorf("query outbox events: %w", err)
	}
	defer rows.Close()

	var events []*OutboxEvent
	for rows.Next() {
		var ev OutboxEvent
		if err := rows.Scan(&ev.ID, &ev.AggregateID, &ev.EventType, &ev.Payload, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan outbox event: %w", err)
		}
		events = append(events, &ev)
	}
	return events, rows.Err()
}

func (r *Repository) MarkEventAsProcessed(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE outbox_events SET processed = TRUE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("mark outbox event processed: %w", err)
	}
	return nil
}
