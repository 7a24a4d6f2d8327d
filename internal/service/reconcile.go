package service

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/fjod/go_shop/internal/cache"
	"github.com/fjod/go_shop/internal/domain"
	"github.com/fjod/go_shop/internal/paystack"
	"github.com/fjod/go_shop/internal/repository"
	"github.com/google/uuid"
)

// ReconcileService converts a verified payment into durable order state.
// Both the webhook and the browser-redirect paths call it, possibly at the
// same time for the same reference; however many times it runs, exactly one
// order materializes and stock moves exactly once. The serialization point
// is the unique payment_reference constraint inside the repository, not any
// lock held here.
type ReconcileService struct {
	repo      repository.Store
	processor PaymentProcessor
	cache     cache.CartCache
}

func NewReconcileService(repo repository.Store, processor PaymentProcessor, cartCache cache.CartCache) *ReconcileService {
	return &ReconcileService{
		repo:      repo,
		processor: processor,
		cache:     cartCache,
	}
}

// Reconcile verifies the reference with the processor and materializes the
// order. sessionUserID carries the caller's session on the redirect path and
// must match the checkout-time user; the webhook path passes "" because its
// authenticity is established by the body signature instead.
func (s *ReconcileService) Reconcile(ctx context.Context, reference, sessionUserID string) (*domain.Order, error) {
	res, err := s.processor.Verify(ctx, reference)
	if err != nil {
		// Verification never happened; the reference stays untouched
		// and a later retry is safe.
		return nil, fmt.Errorf("verify payment %s: %w", reference, err)
	}

	if res.Status != paystack.StatusSuccess {
		if err := s.repo.UpsertPaymentStatus(ctx, reference, domain.PaymentStatusFailed, res.Raw); err != nil {
			return nil, fmt.Errorf("record failed payment %s: %w", reference, err)
		}
		return nil, fmt.Errorf("payment %s: %w", reference, ErrPaymentFailed)
	}

	metadata := res.Metadata
	if metadata.UserID == "" || metadata.CartID == uuid.Nil || len(metadata.Items) == 0 {
		return nil, fmt.Errorf("payment %s: %w", reference, ErrInvalidMetadata)
	}

	if sessionUserID != "" && metadata.UserID != sessionUserID {
		return nil, fmt.Errorf("payment %s: %w", reference, ErrPaymentOwnership)
	}

	order, created, err := s.repo.MaterializeOrder(ctx, &metadata, reference, res.Raw)
	if errors.Is(err, repository.ErrInsufficientStock) || errors.Is(err, repository.ErrDiscountExhausted) {
		// Money is captured but the order cannot be honored as priced.
		// No automated refund exists here; this needs a human.
		log.Printf("ALERT: payment %s captured but materialization aborted: %v", reference, err)
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("materialize order for %s: %w", reference, err)
	}

	if created {
		log.Printf("order %s materialized for payment %s", order.OrderNumber, reference)
		s.invalidateCart(metadata.UserID)
	} else {
		log.Printf("payment %s already reconciled, returning order %s", reference, order.OrderNumber)
	}

	return order, nil
}

func (s *ReconcileService) invalidateCart(userID string) {
	if err := s.cache.Delete(context.Background(), userID); err != nil {
		log.Printf("cart cache invalidate after reconcile: %v", err)
	}
}
