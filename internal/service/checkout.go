package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/go_shop/internal/domain"
	"github.com/fjod/go_shop/internal/paystack"
	"github.com/fjod/go_shop/internal/pricing"
	"github.com/fjod/go_shop/internal/repository"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// PaymentProcessor is the external processor boundary: create a payment
// intent, confirm a reference.
type PaymentProcessor interface {
	Initialize(ctx context.Context, req *paystack.InitializeRequest) (string, error)
	Verify(ctx context.Context, reference string) (*paystack.VerifyResult, error)
}

type CheckoutConfig struct {
	Currency    string
	CallbackURL string
	// Flat shipping and tax in minor units; rate computation is not this
	// subsystem's concern.
	Shipping int64
	Tax      int64
}

type CheckoutService struct {
	repo      repository.Store
	processor PaymentProcessor
	cfg       CheckoutConfig

	maxConcurrent int
}

func NewCheckoutService(repo repository.Store, processor PaymentProcessor, cfg CheckoutConfig) *CheckoutService {
	return &CheckoutService{
		repo:          repo,
		processor:     processor,
		cfg:           cfg,
		maxConcurrent: 8,
	}
}

type CheckoutRequest struct {
	UserID       string
	Email        string
	Address      domain.Address
	DiscountCode string
}

type CheckoutResponse struct {
	PaymentURL string
	Reference  string
	Total      int64
}

// InitiateCheckout validates the cart against live product state, prices the
// order and requests a payment intent. Nothing durable is written here; the
// order exists only once the payment is confirmed and reconciled.
func (s *CheckoutService) InitiateCheckout(ctx context.Context, req *CheckoutRequest) (*CheckoutResponse, error) {
	cart, err := s.repo.GetCartByUserID(ctx, req.UserID)
	if errors.Is(err, repository.ErrCartNotFound) {
		return nil, ErrEmptyCart
	}
	if err != nil {
		return nil, fmt.Errorf("load cart: %w", err)
	}
	if len(cart.Items) == 0 {
		return nil, ErrEmptyCart
	}

	items, subtotal, err := s.validateCartAgainstLiveState(ctx, cart)
	if err != nil {
		return nil, err
	}

	var discountAmount int64
	var discountCode, discountID string
	if req.DiscountCode != "" {
		discount, err := s.repo.GetDiscountByCode(ctx, req.DiscountCode)
		if errors.Is(err, repository.ErrDiscountNotFound) {
			return nil, err
		}
		if err != nil {
			return nil, fmt.Errorf("load discount: %w", err)
		}
		if err := pricing.Validate(discount, subtotal, time.Now()); err != nil {
			return nil, err
		}
		discountAmount = pricing.Amount(discount, subtotal)
		discountCode = discount.Code
		discountID = discount.ID.String()
	}

	total := subtotal - discountAmount + s.cfg.Shipping + s.cfg.Tax
	if total < 0 {
		total = 0
	}

	reference := newPaymentReference()
	metadata := domain.CheckoutMetadata{
		UserID:         req.UserID,
		CartID:         cart.ID,
		Items:          items,
		Subtotal:       subtotal,
		DiscountAmount: discountAmount,
		DiscountCode:   discountCode,
		DiscountID:     discountID,
		Shipping:       s.cfg.Shipping,
		Tax:            s.cfg.Tax,
		Total:          total,
		Address:        req.Address,
	}

	paymentURL, err := s.processor.Initialize(ctx, &paystack.InitializeRequest{
		Email:       req.Email,
		Amount:      total,
		Currency:    s.cfg.Currency,
		Reference:   reference,
		CallbackURL: s.cfg.CallbackURL,
		Metadata:    metadata,
	})
	if err != nil {
		return nil, fmt.Errorf("initialize payment: %w", err)
	}

	return &CheckoutResponse{
		PaymentURL: paymentURL,
		Reference:  reference,
		Total:      total,
	}, nil
}

// validateCartAgainstLiveState loads every product concurrently and requires
// the captured price to equal the live price and live stock to cover the
// requested quantity.
func (s *CheckoutService) validateCartAgainstLiveState(ctx context.Context, cart *domain.Cart) ([]domain.CheckoutItem, int64, error) {
	items := make([]domain.CheckoutItem, len(cart.Items))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.maxConcurrent)

	for idx := range cart.Items {
		g.Go(func() error {
			line := cart.Items[idx]
			if line.Quantity <= 0 {
				return ErrInvalidQuantity
			}

			product, err := s.repo.GetProduct(ctx, line.ProductID)
			if errors.Is(err, repository.ErrProductNotFound) {
				return fmt.Errorf("product %d: %w", line.ProductID, ErrProductUnavailable)
			}
			if err != nil {
				return fmt.Errorf("load product %d: %w", line.ProductID, err)
			}
			if !product.Active {
				return fmt.Errorf("product %q: %w", product.Name, ErrProductUnavailable)
			}
			if product.Price != line.PriceAtAdd {
				return fmt.Errorf("product %q: %w", product.Name, ErrPriceChanged)
			}
			if product.Stock < line.Quantity {
				return fmt.Errorf("product %q: %w", product.Name, ErrInsufficientStock)
			}

			items[idx] = domain.CheckoutItem{
				ProductID:   product.ID,
				ProductName: product.Name,
				Quantity:    line.Quantity,
				UnitPrice:   line.PriceAtAdd,
				Subtotal:    int64(line.Quantity) * line.PriceAtAdd,
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, 0, err
	}

	var subtotal int64
	for _, item := range items {
		subtotal += item.Subtotal
	}
	return items, subtotal, nil
}

func newPaymentReference() string {
	return "pay_" + uuid.NewString()
}
