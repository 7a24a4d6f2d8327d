package service

import (
	"context"

	"github.com/fjod/go_shop/internal/domain"
	"github.com/fjod/go_shop/internal/repository"
)

// MergeGuestCart folds a guest cart into the account cart at sign-in.
// Inactive or vanished products are dropped without complaint and quantities
// are capped at live stock; the whole merge is one storage transaction.
func (s *CartService) MergeGuestCart(ctx context.Context, userID string, items []domain.GuestCartItem) (*repository.MergeResult, error) {
	if len(items) == 0 {
		return &repository.MergeResult{}, nil
	}

	result, err := s.repo.MergeGuestCart(ctx, userID, items)
	if err != nil {
		return nil, err
	}

	s.invalidate(userID)
	return result, nil
}
