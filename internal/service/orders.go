package service

import (
	"context"
	"fmt"

	"github.com/fjod/go_shop/internal/cursor"
	"github.com/fjod/go_shop/internal/domain"
	"github.com/fjod/go_shop/internal/repository"
	"github.com/google/uuid"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

type OrdersService struct {
	repo  repository.Store
	codec *cursor.Codec
}

func NewOrdersService(repo repository.Store, codec *cursor.Codec) *OrdersService {
	return &OrdersService{repo: repo, codec: codec}
}

// List pages the user's order history newest-first. token is an opaque signed
// cursor from a previous page; an unparsable or forged token is rejected, not
// silently treated as the first page.
func (s *OrdersService) List(ctx context.Context, userID, token string, limit int) ([]*domain.Order, string, error) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	var after *cursor.Cursor
	if token != "" {
		after = s.codec.Decode(token)
		if after == nil {
			return nil, "", ErrInvalidCursor
		}
	}

	// one extra row tells us whether another page exists
	orders, err := s.repo.ListOrdersByUserID(ctx, userID, after, limit+1)
	if err != nil {
		return nil, "", fmt.Errorf("list orders: %w", err)
	}

	var nextToken string
	if len(orders) > limit {
		orders = orders[:limit]
		last := orders[len(orders)-1]
		nextToken, err = s.codec.Encode(cursor.Cursor{ID: last.ID, CreatedAt: last.CreatedAt})
		if err != nil {
			return nil, "", fmt.Errorf("encode next cursor: %w", err)
		}
	}

	return orders, nextToken, nil
}

// Get returns one of the user's orders. Another user's order is reported as
// not found rather than forbidden, so order ids cannot be probed.
func (s *OrdersService) Get(ctx context.Context, userID string, orderID uuid.UUID) (*domain.Order, error) {
	order, err := s.repo.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != userID {
		return nil, repository.ErrOrderNotFound
	}
	return order, nil
}
