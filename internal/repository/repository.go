package repository

import (
	"context"
	"errors"
	"time"

	"github.com/fjod/go_shop/internal/cursor"
	"github.com/fjod/go_shop/internal/domain"
	"github.com/google/uuid"
)

var (
	ErrCartNotFound     = errors.New("cart not found")
	ErrProductNotFound  = errors.New("product not found")
	ErrDiscountNotFound = errors.New("discount code not found")
	ErrOrderNotFound    = errors.New("order not found")
	// ErrInsufficientStock is returned when stock cannot cover an ordered
	// quantity at materialization time. The whole transaction rolls back.
	ErrInsufficientStock = errors.New("insufficient stock for ordered quantity")
	// ErrDiscountExhausted is returned when a concurrent order consumed the
	// discount's last use between checkout and materialization. Same
	// rollback contract as ErrInsufficientStock.
	ErrDiscountExhausted = errors.New("discount usage limit already reached")
)

type Credentials struct {
	Host              string
	Port              int
	User              string
	Password          string
	DBName            string
	MigrationsDirPath string
}

// MergeResult reports what a guest-cart merge did.
type MergeResult struct {
	MergedItemsCount  int
	UpdatedItemsCount int
}

type OutboxEvent struct {
	ID          int64
	AggregateID string
	EventType   string
	Payload     []byte
	CreatedAt   time.Time
}

type Store interface {
	// products
	GetProduct(ctx context.Context, id int64) (*domain.Product, error)

	// carts
	GetCartByUserID(ctx context.Context, userID string) (*domain.Cart, error)
	AddCartItem(ctx context.Context, userID string, productID int64, quantity int) error
	UpdateCartItemQuantity(ctx context.Context, userID string, productID int64, quantity int) error
	RemoveCartItem(ctx context.Context, userID string, productID int64) error
	MergeGuestCart(ctx context.Context, userID string, items []domain.GuestCartItem) (*MergeResult, error)

	// discounts
	GetDiscountByCode(ctx context.Context, code string) (*domain.Discount, error)

	// payments
	UpsertPaymentStatus(ctx context.Context, reference string, status domain.PaymentStatus, raw []byte) error

	// orders
	MaterializeOrder(ctx context.Context, m *domain.CheckoutMetadata, reference string, raw []byte) (*domain.Order, bool, error)
	GetOrderByID(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	GetOrderByPaymentReference(ctx context.Context, reference string) (*domain.Order, error)
	ListOrdersByUserID(ctx context.Context, userID string, after *cursor.Cursor, limit int) ([]*domain.Order, error)

	// outbox
	GetUnprocessedEvents(ctx context.Context, limit int) ([]*OutboxEvent, error)
	MarkEventAsProcessed(ctx context.Context, id int64) error

	RunMigrations(*Credentials) error
	Close() error
}
