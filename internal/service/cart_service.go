package service

import (
	"context"
	"fmt"

	"shop-service/internal/models"
	"shop-service/internal/util"

	"go.uber.org/zap"
)

// CartService holds a shopper's selected items. Lines are keyed by
// variant: adding a variant already in the cart merges quantities.
type CartService struct {
	repo   CartRepository
	logger *zap.Logger
}

// NewCartService creates a new cart service
func NewCartService(repo CartRepository) *CartService {
	return &CartService{
		repo:   repo,
		logger: util.GetLogger(),
	}
}

// Lines returns the cart's lines in insertion order
func (cs *CartService) Lines(ctx context.Context, cartID string) ([]models.CartLine, error) {
	return cs.repo.Lines(ctx, cartID)
}

// AddItem adds a quantity of a variant to the cart. If the same
// variant is already present the quantities are summed into one line.
func (cs *CartService) AddItem(ctx context.Context, cartID string, product models.Product, variant models.ProductVariant, quantity int) error {
	if quantity <= 0 {
		return &ValidationError{Reason: "quantity must be positive"}
	}

	lines, err := cs.repo.Lines(ctx, cartID)
	if err != nil {
		return err
	}

	position := 0
	for _, line := range lines {
		if line.Variant.ID == variant.ID {
			line.Quantity += quantity
			return cs.repo.PutLine(ctx, cartID, line)
		}
		if line.Position >= position {
			position = line.Position + 1
		}
	}

	return cs.repo.PutLine(ctx, cartID, models.CartLine{
		Product:  product,
		Variant:  variant,
		Quantity: quantity,
		Position: position,
	})
}

// RemoveItem removes the line for a variant from the cart
func (cs *CartService) RemoveItem(ctx context.Context, cartID, variantID string) error {
	return cs.repo.RemoveLine(ctx, cartID, variantID)
}

// SetQuantity replaces a line's quantity. A quantity of zero or less
// removes the line entirely; no line with quantity <= 0 ever persists.
func (cs *CartService) SetQuantity(ctx context.Context, cartID, variantID string, quantity int) error {
	if quantity <= 0 {
		return cs.repo.RemoveLine(ctx, cartID, variantID)
	}

	lines, err := cs.repo.Lines(ctx, cartID)
	if err != nil {
		return err
	}

	for _, line := range lines {
		if line.Variant.ID == variantID {
			line.Quantity = quantity
			return cs.repo.PutLine(ctx, cartID, line)
		}
	}
	return fmt.Errorf("variant not in cart: %s", variantID)
}

// Total returns the cart's decimal total, sum of price x quantity
func (cs *CartService) Total(ctx context.Context, cartID string) (float64, error) {
	lines, err := cs.repo.Lines(ctx, cartID)
	if err != nil {
		return 0, err
	}
	return cartTotal(lines), nil
}

// ItemCount returns the total quantity across all lines
func (cs *CartService) ItemCount(ctx context.Context, cartID string) (int, error) {
	lines, err := cs.repo.Lines(ctx, cartID)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, line := range lines {
		count += line.Quantity
	}
	return count, nil
}

// Clear empties the cart. Called only after a confirmed order.
func (cs *CartService) Clear(ctx context.Context, cartID string) error {
	cs.logger.Info("Clearing cart", zap.String("cart_id", cartID))
	return cs.repo.Clear(ctx, cartID)
}

func cartTotal(lines []models.CartLine) float64 {
	var total float64
	for _, line := range lines {
		total += line.Product.BasePrice * float64(line.Quantity)
	}
	return total
}
