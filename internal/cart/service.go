package cart

import (
	"context"
	"fmt"

	"github.com/angelmondragon/vendorlution-backend/pkg/db"
	"github.com/angelmondragon/vendorlution-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/vendorlution-backend/pkg/errors"
	"github.com/google/uuid"
)

type productLoader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Product, error)
}

// Service exposes cart persistence operations.
type Service interface {
	AddItem(ctx context.Context, buyerID uuid.UUID, input AddItemInput) ([]models.CartItem, error)
	Items(ctx context.Context, buyerID uuid.UUID) ([]models.CartItem, error)
	RemoveItem(ctx context.Context, buyerID, productID uuid.UUID) error
}

type AddItemInput struct {
	ProductID uuid.UUID
	Quantity  int
}

type service struct {
	repo     Repository
	products productLoader
}

// NewService builds a cart service backed by the provided stack.
func NewService(repo Repository, products productLoader) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if products == nil {
		return nil, fmt.Errorf("product loader required")
	}
	return &service{repo: repo, products: products}, nil
}

// AddItem puts a product in the buyer's cart. Availability is checked again
// at checkout under row locks; this is the early rejection.
func (s *service) AddItem(ctx context.Context, buyerID uuid.UUID, input AddItemInput) ([]models.CartItem, error) {
	if buyerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "buyer id required")
	}
	if input.ProductID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id required")
	}
	if input.Quantity <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}

	product, err := s.products.FindByID(ctx, input.ProductID)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load product")
	}
	if product.SellerID == buyerID {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cannot buy your own product")
	}
	if !product.IsActive || product.IsSold {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "product is no longer available")
	}
	if product.Stock < input.Quantity {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "insufficient stock").
			WithDetails(map[string]any{"available": product.Stock})
	}

	item := &models.CartItem{BuyerID: buyerID, ProductID: input.ProductID, Quantity: input.Quantity}
	if err := s.repo.Upsert(ctx, item); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "save cart item")
	}
	return s.Items(ctx, buyerID)
}

func (s *service) Items(ctx context.Context, buyerID uuid.UUID) ([]models.CartItem, error) {
	items, err := s.repo.ListByBuyer(ctx, buyerID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list cart items")
	}
	return items, nil
}

func (s *service) RemoveItem(ctx context.Context, buyerID, productID uuid.UUID) error {
	if err := s.repo.Remove(ctx, buyerID, productID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "remove cart item")
	}
	return nil
}
