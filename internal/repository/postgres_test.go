package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/fjod/go_shop/internal/cursor"
	"github.com/fjod/go_shop/internal/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupTestDB(t *testing.T) (*Repository, func()) {
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)

	host, err := pgContainer.Host(ctx)
	require.NoError(t, err)

	port, err := pgContainer.MappedPort(ctx, "5432")
	require.NoError(t, err)

	creds := &Credentials{
		Host:              host,
		Port:              port.Int(),
		User:              "testuser",
		Password:          "testpass",
		DBName:            "testdb",
		MigrationsDirPath: "./migrations",
	}

	repo, err := NewRepository(creds)
	require.NoError(t, err)

	err = repo.RunMigrations(creds)
	require.NoError(t, err)

	cleanup := func() {
		repo.Close()
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	}

	return repo, cleanup
}

func insertProduct(t *testing.T, repo *Repository, name string, price int64, stock int, active bool) int64 {
	t.Helper()
	var id int64
	err := repo.db.QueryRow(
		`INSERT INTO products (name, price, stock, active) VALUES ($1, $2, $3, $4) RETURNING id`,
		name, price, stock, active).Scan(&id)
	require.NoError(t, err)
	return id
}

func insertDiscount(t *testing.T, repo *Repository, code string, value int64, usageLimit *int) uuid.UUID {
	t.Helper()
	id := uuid.New()
	_, err := repo.db.Exec(
		`INSERT INTO discounts (id, code, kind, value, starts_at, usage_limit)
		 VALUES ($1, $2, 'percentage', $3, NOW() - INTERVAL '1 day', $4)`,
		id, code, value, usageLimit)
	require.NoError(t, err)
	return id
}

func productStock(t *testing.T, repo *Repository, id int64) int {
	t.Helper()
	var stock int
	require.NoError(t, repo.db.QueryRow(`SELECT stock FROM products WHERE id = $1`, id).Scan(&stock))
	return stock
}

func testMetadata(userID string, cartID uuid.UUID, items []domain.CheckoutItem) *domain.CheckoutMetadata {
	var subtotal int64
	for _, item := range items {
		subtotal += item.Subtotal
	}
	return &domain.CheckoutMetadata{
		UserID:   userID,
		CartID:   cartID,
		Items:    items,
		Subtotal: subtotal,
		Total:    subtotal,
		Address: domain.Address{
			Name:    "Jane Doe",
			Line1:   "1 Main St",
			City:    "Lagos",
			State:   "LA",
			Country: "NG",
		},
	}
}

func TestAddCartItem_CapturesCurrentPrice(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	productID := insertProduct(t, repo, "Mug", 2500, 10, true)

	err := repo.AddCartItem(ctx, "user-1", productID, 2)
	require.NoError(t, err)

	// a later price change must not touch the captured line price
	_, err = repo.db.Exec(`UPDATE products SET price = 9999 WHERE id = $1`, productID)
	require.NoError(t, err)

	cart, err := repo.GetCartByUserID(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, int64(2500), cart.Items[0].PriceAtAdd)
	assert.Equal(t, 2, cart.Items[0].Quantity)
}

func TestAddCartItem_SameProductAccumulates(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	productID := insertProduct(t, repo, "Mug", 2500, 10, true)

	require.NoError(t, repo.AddCartItem(ctx, "user-1", productID, 2))
	require.NoError(t, repo.AddCartItem(ctx, "user-1", productID, 3))

	cart, err := repo.GetCartByUserID(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, 5, cart.Items[0].Quantity)
}

func TestAddCartItem_InactiveProduct(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	productID := insertProduct(t, repo, "Discontinued", 2500, 10, false)

	err := repo.AddCartItem(context.Background(), "user-1", productID, 1)
	assert.ErrorIs(t, err, ErrProductNotFound)
}

func TestMergeGuestCart_CapsAtStock(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	limited := insertProduct(t, repo, "Limited", 1000, 3, true)
	plenty := insertProduct(t, repo, "Plenty", 500, 100, true)
	inactive := insertProduct(t, repo, "Gone", 500, 100, false)

	result, err := repo.MergeGuestCart(ctx, "user-1", []domain.GuestCartItem{
		{ProductID: limited, Quantity: 5}, // capped at 3
		{ProductID: plenty, Quantity: 2},
		{ProductID: inactive, Quantity: 1}, // silently dropped
		{ProductID: 999999, Quantity: 1},   // unknown, silently dropped
	})
	require.NoError(t, err)
	assert.Equal(t, 2, result.MergedItemsCount)
	assert.Equal(t, 0, result.UpdatedItemsCount)

	cart, err := repo.GetCartByUserID(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, cart.Items, 2)

	quantities := map[int64]int{}
	for _, item := range cart.Items {
		quantities[item.ProductID] = item.Quantity
	}
	assert.Equal(t, 3, quantities[limited])
	assert.Equal(t, 2, quantities[plenty])
}

func TestMergeGuestCart_MergesIntoExistingLines(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	productID := insertProduct(t, repo, "Mug", 2500, 4, true)
	require.NoError(t, repo.AddCartItem(ctx, "user-1", productID, 2))

	result, err := repo.MergeGuestCart(ctx, "user-1", []domain.GuestCartItem{
		{ProductID: productID, Quantity: 5}, // 2 + 5 capped at stock 4
	})
	require.NoError(t, err)
	assert.Equal(t, 0, result.MergedItemsCount)
	assert.Equal(t, 1, result.UpdatedItemsCount)

	cart, err := repo.GetCartByUserID(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, 4, cart.Items[0].Quantity)
}

func TestMergeGuestCart_CollapsesDuplicateLines(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	productID := insertProduct(t, repo, "Mug", 2500, 10, true)

	result, err := repo.MergeGuestCart(ctx, "user-1", []domain.GuestCartItem{
		{ProductID: productID, Quantity: 2},
		{ProductID: productID, Quantity: 3},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.MergedItemsCount, "one product is one merged line however often it repeats")
	assert.Equal(t, 0, result.UpdatedItemsCount)

	cart, err := repo.GetCartByUserID(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, 5, cart.Items[0].Quantity)
}

func TestMaterializeOrder_CreatesEverythingOnce(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	productID := insertProduct(t, repo, "Mug", 2500, 10, true)
	require.NoError(t, repo.AddCartItem(ctx, "user-1", productID, 2))
	cart, err := repo.GetCartByUserID(ctx, "user-1")
	require.NoError(t, err)

	meta := testMetadata("user-1", cart.ID, []domain.CheckoutItem{
		{ProductID: productID, ProductName: "Mug", Quantity: 2, UnitPrice: 2500, Subtotal: 5000},
	})

	order, created, err := repo.MaterializeOrder(ctx, meta, "pay_once", []byte(`{"status":"success"}`))
	require.NoError(t, err)
	assert.True(t, created)
	require.Len(t, order.Items, 1)
	assert.Equal(t, int64(5000), order.Total)
	assert.Equal(t, domain.OrderStatusProcessing, order.Status)

	// stock reserved
	assert.Equal(t, 8, productStock(t, repo, productID))

	// payment settled
	var status string
	require.NoError(t, repo.db.QueryRow(
		`SELECT status FROM payments WHERE reference = 'pay_once'`).Scan(&status))
	assert.Equal(t, "success", status)

	// checkout-time cart is gone
	_, err = repo.GetCartByUserID(ctx, "user-1")
	assert.ErrorIs(t, err, ErrCartNotFound)

	// one outbox event queued
	events, err := repo.GetUnprocessedEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "order.created", events[0].EventType)
	assert.Equal(t, order.ID.String(), events[0].AggregateID)

	// replay is a no-op returning the same order
	again, created, err := repo.MaterializeOrder(ctx, meta, "pay_once", nil)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, order.ID, again.ID)
	assert.Equal(t, 8, productStock(t, repo, productID), "replay must not decrement stock again")

	events, err = repo.GetUnprocessedEvents(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, events, 1, "replay must not queue another event")
}

func TestMaterializeOrder_ConcurrentSameReference(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	productID := insertProduct(t, repo, "Mug", 2500, 10, true)
	require.NoError(t, repo.AddCartItem(ctx, "user-1", productID, 1))
	cart, err := repo.GetCartByUserID(ctx, "user-1")
	require.NoError(t, err)

	meta := testMetadata("user-1", cart.ID, []domain.CheckoutItem{
		{ProductID: productID, ProductName: "Mug", Quantity: 1, UnitPrice: 2500, Subtotal: 2500},
	})

	const attempts = 4
	var wg sync.WaitGroup
	orderIDs := make([]uuid.UUID, attempts)
	createdFlags := make([]bool, attempts)
	errs := make([]error, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			order, created, err := repo.MaterializeOrder(ctx, meta, "pay_race", nil)
			errs[i] = err
			if err == nil {
				orderIDs[i] = order.ID
				createdFlags[i] = created
			}
		}(i)
	}
	wg.Wait()

	creators := 0
	for i := 0; i < attempts; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, orderIDs[0], orderIDs[i], "all attempts must land on one order")
		if createdFlags[i] {
			creators++
		}
	}
	assert.Equal(t, 1, creators)

	var count int
	require.NoError(t, repo.db.QueryRow(
		`SELECT COUNT(*) FROM orders WHERE payment_reference = 'pay_race'`).Scan(&count))
	assert.Equal(t, 1, count)

	assert.Equal(t, 9, productStock(t, repo, productID), "stock decremented exactly once")
}

func TestMaterializeOrder_InsufficientStockRollsBack(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	productID := insertProduct(t, repo, "Scarce", 2500, 1, true)

	meta := testMetadata("user-1", uuid.New(), []domain.CheckoutItem{
		{ProductID: productID, ProductName: "Scarce", Quantity: 3, UnitPrice: 2500, Subtotal: 7500},
	})

	_, _, err := repo.MaterializeOrder(ctx, meta, "pay_scarce", nil)
	assert.ErrorIs(t, err, ErrInsufficientStock)

	var count int
	require.NoError(t, repo.db.QueryRow(
		`SELECT COUNT(*) FROM orders WHERE payment_reference = 'pay_scarce'`).Scan(&count))
	assert.Equal(t, 0, count, "failed materialization must leave no order behind")

	assert.Equal(t, 1, productStock(t, repo, productID))
}

func TestMaterializeOrder_DeactivatesExhaustedDiscount(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	productID := insertProduct(t, repo, "Mug", 2500, 10, true)
	limit := 1
	discountID := insertDiscount(t, repo, "LASTONE", 10, &limit)

	meta := testMetadata("user-1", uuid.New(), []domain.CheckoutItem{
		{ProductID: productID, ProductName: "Mug", Quantity: 1, UnitPrice: 2500, Subtotal: 2500},
	})
	meta.DiscountID = discountID.String()
	meta.DiscountCode = "LASTONE"
	meta.DiscountAmount = 250
	meta.Total = 2250

	_, created, err := repo.MaterializeOrder(ctx, meta, "pay_disc", nil)
	require.NoError(t, err)
	assert.True(t, created)

	var usageCount int
	var active bool
	require.NoError(t, repo.db.QueryRow(
		`SELECT usage_count, active FROM discounts WHERE id = $1`, discountID).Scan(&usageCount, &active))
	assert.Equal(t, 1, usageCount)
	assert.False(t, active, "discount must deactivate when the limit is reached")
}

func TestMaterializeOrder_ExhaustedDiscountRollsBack(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	productID := insertProduct(t, repo, "Mug", 2500, 10, true)
	limit := 1
	discountID := insertDiscount(t, repo, "RACED", 10, &limit)

	newMeta := func() *domain.CheckoutMetadata {
		meta := testMetadata("user-1", uuid.New(), []domain.CheckoutItem{
			{ProductID: productID, ProductName: "Mug", Quantity: 1, UnitPrice: 2500, Subtotal: 2500},
		})
		meta.DiscountID = discountID.String()
		meta.DiscountCode = "RACED"
		meta.DiscountAmount = 250
		meta.Total = 2250
		return meta
	}

	// Both checkouts validated the discount while a use was left; the
	// first confirmation takes it.
	_, created, err := repo.MaterializeOrder(ctx, newMeta(), "pay_race_a", nil)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, 9, productStock(t, repo, productID))

	// The second confirmation finds the limit consumed and must roll back
	// whole, not blow up on the schema CHECK.
	_, _, err = repo.MaterializeOrder(ctx, newMeta(), "pay_race_b", nil)
	assert.ErrorIs(t, err, ErrDiscountExhausted)

	var count int
	require.NoError(t, repo.db.QueryRow(
		`SELECT COUNT(*) FROM orders WHERE payment_reference = 'pay_race_b'`).Scan(&count))
	assert.Equal(t, 0, count, "aborted materialization must leave no order behind")

	assert.Equal(t, 9, productStock(t, repo, productID), "rolled-back attempt must return its stock")

	var usageCount int
	require.NoError(t, repo.db.QueryRow(
		`SELECT usage_count FROM discounts WHERE id = $1`, discountID).Scan(&usageCount))
	assert.Equal(t, 1, usageCount, "usage must never exceed the limit")

	// replays of the aborted reference keep failing cleanly
	_, _, err = repo.MaterializeOrder(ctx, newMeta(), "pay_race_b", nil)
	assert.ErrorIs(t, err, ErrDiscountExhausted)
}

func TestListOrdersByUserID_KeysetPagination(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	productID := insertProduct(t, repo, "Mug", 2500, 100, true)

	references := []string{"pay_p1", "pay_p2", "pay_p3"}
	for _, ref := range references {
		meta := testMetadata("user-1", uuid.New(), []domain.CheckoutItem{
			{ProductID: productID, ProductName: "Mug", Quantity: 1, UnitPrice: 2500, Subtotal: 2500},
		})
		_, _, err := repo.MaterializeOrder(ctx, meta, ref, nil)
		require.NoError(t, err)
		time.Sleep(10 * time.Millisecond)
	}

	first, err := repo.ListOrdersByUserID(ctx, "user-1", nil, 2)
	require.NoError(t, err)
	require.Len(t, first, 2)
	assert.True(t, first[0].CreatedAt.After(first[1].CreatedAt) ||
		first[0].CreatedAt.Equal(first[1].CreatedAt), "newest first")

	last := first[len(first)-1]
	after := cursor.Cursor{ID: last.ID, CreatedAt: last.CreatedAt}
	second, err := repo.ListOrdersByUserID(ctx, "user-1", &after, 2)
	require.NoError(t, err)
	require.Len(t, second, 1)

	seen := map[uuid.UUID]bool{}
	for _, o := range append(first, second...) {
		assert.False(t, seen[o.ID], "no order may appear on two pages")
		seen[o.ID] = true
	}

	// other users see nothing
	none, err := repo.ListOrdersByUserID(ctx, "user-2", nil, 10)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestGetOrderByID_NotFound(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	_, err := repo.GetOrderByID(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func TestMarkEventAsProcessed(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	productID := insertProduct(t, repo, "Mug", 2500, 10, true)
	meta := testMetadata("user-1", uuid.New(), []domain.CheckoutItem{
		{ProductID: productID, ProductName: "Mug", Quantity: 1, UnitPrice: 2500, Subtotal: 2500},
	})
	_, _, err := repo.MaterializeOrder(ctx, meta, "pay_evt", nil)
	require.NoError(t, err)

	events, err := repo.GetUnprocessedEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)

	require.NoError(t, repo.MarkEventAsProcessed(ctx, events[0].ID))

	events, err = repo.GetUnprocessedEvents(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, events)
}
