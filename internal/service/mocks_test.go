package service

import (
	"context"
	"sync"

	"github.com/fjod/go_shop/internal/cache"
	"github.com/fjod/go_shop/internal/cursor"
	"github.com/fjod/go_shop/internal/domain"
	"github.com/fjod/go_shop/internal/paystack"
	"github.com/fjod/go_shop/internal/repository"
	"github.com/google/uuid"
)

// MockStore implements repository.Store for testing
type MockStore struct {
	mu sync.Mutex

	Products  map[int64]*domain.Product
	Cart      *domain.Cart
	CartErr   error
	Discounts map[string]*domain.Discount

	AddedItems      []int64
	AddItemErr      error
	UpdatedItems    []int64
	RemovedItems    []int64
	CartMutationErr error

	MergeResult *repository.MergeResult
	MergeErr    error
	MergedWith  []domain.GuestCartItem

	PaymentStatuses map[string]domain.PaymentStatus

	MaterializedOrder  *domain.Order
	MaterializeCreated bool
	MaterializeErr     error
	MaterializeCalls   int
	MaterializeMeta    *domain.CheckoutMetadata

	Orders       map[uuid.UUID]*domain.Order
	ListedOrders []*domain.Order
	ListErr      error
	ListAfter    *cursor.Cursor
	ListLimit    int

	OutboxEvents []*repository.OutboxEvent
	ProcessedIDs []int64
}

func (m *MockStore) GetProduct(_ context.Context, id int64) (*domain.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.Products[id]
	if !ok {
		return nil, repository.ErrProductNotFound
	}
	return p, nil
}

func (m *MockStore) GetCartByUserID(_ context.Context, _ string) (*domain.Cart, error) {
	if m.CartErr != nil {
		return nil, m.CartErr
	}
	if m.Cart == nil {
		return nil, repository.ErrCartNotFound
	}
	return m.Cart, nil
}

func (m *MockStore) AddCartItem(_ context.Context, _ string, productID int64, _ int) error {
	if m.AddItemErr != nil {
		return m.AddItemErr
	}
	m.AddedItems = append(m.AddedItems, productID)
	return nil
}

func (m *MockStore) UpdateCartItemQuantity(_ context.Context, _ string, productID int64, _ int) error {
	if m.CartMutationErr != nil {
		return m.CartMutationErr
	}
	m.UpdatedItems = append(m.UpdatedItems, productID)
	return nil
}

func (m *MockStore) RemoveCartItem(_ context.Context, _ string, productID int64) error {
	if m.CartMutationErr != nil {
		return m.CartMutationErr
	}
	m.RemovedItems = append(m.RemovedItems, productID)
	return nil
}

func (m *MockStore) MergeGuestCart(_ context.Context, _ string, items []domain.GuestCartItem) (*repository.MergeResult, error) {
	if m.MergeErr != nil {
		return nil, m.MergeErr
	}
	m.MergedWith = items
	return m.MergeResult, nil
}

func (m *MockStore) GetDiscountByCode(_ context.Context, code string) (*domain.Discount, error) {
	d, ok := m.Discounts[code]
	if !ok {
		return nil, repository.ErrDiscountNotFound
	}
	return d, nil
}

func (m *MockStore) UpsertPaymentStatus(_ context.Context, reference string, status domain.PaymentStatus, _ []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.PaymentStatuses == nil {
		m.PaymentStatuses = make(map[string]domain.PaymentStatus)
	}
	m.PaymentStatuses[reference] = status
	return nil
}

func (m *MockStore) MaterializeOrder(_ context.Context, meta *domain.CheckoutMetadata, _ string, _ []byte) (*domain.Order, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.MaterializeCalls++
	m.MaterializeMeta = meta
	if m.MaterializeErr != nil {
		return nil, false, m.MaterializeErr
	}
	// only the first call creates; subsequent calls short-circuit,
	// matching the repository's idempotency contract
	created := m.MaterializeCreated && m.MaterializeCalls == 1
	return m.MaterializedOrder, created, nil
}

func (m *MockStore) GetOrderByID(_ context.Context, id uuid.UUID) (*domain.Order, error) {
	o, ok := m.Orders[id]
	if !ok {
		return nil, repository.ErrOrderNotFound
	}
	return o, nil
}

func (m *MockStore) GetOrderByPaymentReference(_ context.Context, reference string) (*domain.Order, error) {
	for _, o := range m.Orders {
		if o.PaymentReference == reference {
			return o, nil
		}
	}
	return nil, repository.ErrOrderNotFound
}

func (m *MockStore) ListOrdersByUserID(_ context.Context, _ string, after *cursor.Cursor, limit int) ([]*domain.Order, error) {
	if m.ListErr != nil {
		return nil, m.ListErr
	}
	m.ListAfter = after
	m.ListLimit = limit
	if len(m.ListedOrders) > limit {
		return m.ListedOrders[:limit], nil
	}
	return m.ListedOrders, nil
}

func (m *MockStore) GetUnprocessedEvents(_ context.Context, _ int) ([]*repository.OutboxEvent, error) {
	return m.OutboxEvents, nil
}

func (m *MockStore) MarkEventAsProcessed(_ context.Context, id int64) error {
	m.ProcessedIDs = append(m.ProcessedIDs, id)
	return nil
}

func (m *MockStore) RunMigrations(*repository.Credentials) error {
	return nil
}

func (m *MockStore) Close() error {
	return nil
}

// MockProcessor implements PaymentProcessor for testing
type MockProcessor struct {
	mu sync.Mutex

	InitURL        string
	InitErr        error
	InitializedReq *paystack.InitializeRequest

	VerifyResult *paystack.VerifyResult
	VerifyErr    error
	VerifyCalls  int
}

func (m *MockProcessor) Initialize(_ context.Context, req *paystack.InitializeRequest) (string, error) {
	m.InitializedReq = req
	if m.InitErr != nil {
		return "", m.InitErr
	}
	return m.InitURL, nil
}

func (m *MockProcessor) Verify(_ context.Context, _ string) (*paystack.VerifyResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.VerifyCalls++
	if m.VerifyErr != nil {
		return nil, m.VerifyErr
	}
	return m.VerifyResult, nil
}

// MockCache implements cache.CartCache for testing
type MockCache struct {
	mu      sync.Mutex
	Carts   map[string]*domain.Cart
	Deleted []string
	GetErr  error
}

func (m *MockCache) Get(_ context.Context, userID string) (*domain.Cart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.GetErr != nil {
		return nil, m.GetErr
	}
	cart, ok := m.Carts[userID]
	if !ok {
		return nil, cache.ErrCacheMiss
	}
	return cart, nil
}

func (m *MockCache) Set(_ context.Context, userID string, cart *domain.Cart) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Carts == nil {
		m.Carts = make(map[string]*domain.Cart)
	}
	m.Carts[userID] = cart
	return nil
}

func (m *MockCache) Delete(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Deleted = append(m.Deleted, userID)
	delete(m.Carts, userID)
	return nil
}
