package service

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/fjod/go_shop/internal/cache"
	"github.com/fjod/go_shop/internal/domain"
	"github.com/fjod/go_shop/internal/repository"
	"golang.org/x/sync/singleflight"
)

type CartService struct {
	repo  repository.Store
	cache cache.CartCache
	sfg   singleflight.Group // collapses concurrent reads for one user
}

func NewCartService(repo repository.Store, cartCache cache.CartCache) *CartService {
	return &CartService{
		repo:  repo,
		cache: cartCache,
	}
}

// GetCart returns the user's cart, read through the cache. A user with no
// cart row yet gets an empty cart, not an error.
func (s *CartService) GetCart(ctx context.Context, userID string) (*domain.Cart, error) {
	v, err, _ := s.sfg.Do(userID, func() (interface{}, error) {
		cart, err := s.cache.Get(ctx, userID)
		if err == nil {
			return cart, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			log.Printf("cart cache get error: %v", err)
		}

		cart, err = s.repo.GetCartByUserID(ctx, userID)
		if errors.Is(err, repository.ErrCartNotFound) {
			return &domain.Cart{
				UserID:    userID,
				CreatedAt: time.Now(),
				UpdatedAt: time.Now(),
			}, nil
		}
		if err != nil {
			return nil, err
		}

		go func() {
			if err := s.cache.Set(context.Background(), userID, cart); err != nil {
				log.Printf("cart cache set error: %v", err)
			}
		}()

		return cart, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.Cart), nil
}

// Subtotal computes the live cart subtotal from captured line prices.
func (s *CartService) Subtotal(ctx context.Context, userID string) (int64, error) {
	cart, err := s.GetCart(ctx, userID)
	if err != nil {
		return 0, err
	}

	var subtotal int64
	for _, item := range cart.Items {
		subtotal += int64(item.Quantity) * item.PriceAtAdd
	}
	return subtotal, nil
}

func (s *CartService) AddItem(ctx context.Context, userID string, productID int64, quantity int) error {
	if quantity <= 0 {
		return ErrInvalidQuantity
	}
	if err := s.repo.AddCartItem(ctx, userID, productID, quantity); err != nil {
		if errors.Is(err, repository.ErrProductNotFound) {
			return ErrProductUnavailable
		}
		return err
	}
	s.invalidate(userID)
	return nil
}

func (s *CartService) UpdateQuantity(ctx context.Context, userID string, productID int64, quantity int) error {
	if quantity <= 0 {
		return ErrInvalidQuantity
	}
	if err := s.repo.UpdateCartItemQuantity(ctx, userID, productID, quantity); err != nil {
		return err
	}
	s.invalidate(userID)
	return nil
}

func (s *CartService) RemoveItem(ctx context.Context, userID string, productID int64) error {
	if err := s.repo.RemoveCartItem(ctx, userID, productID); err != nil {
		return err
	}
	s.invalidate(userID)
	return nil
}

func (s *CartService) invalidate(userID string) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.cache.Delete(ctx, userID); err != nil {
		log.Printf("cart cache invalidate error: %v", err)
	}
}
