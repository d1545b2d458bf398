package cart

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/vendorhub/vendorhub-backend/internal/inventory"
	"github.com/vendorhub/vendorhub-backend/internal/products"
	"github.com/vendorhub/vendorhub-backend/internal/vendorsplit"
	"github.com/vendorhub/vendorhub-backend/pkg/config"
	pkgerrors "github.com/vendorhub/vendorhub-backend/pkg/errors"
)

// View is the cart plus computed totals returned to callers. Tax previews the
// checkout rate; shipping is priced per vendor at checkout and not shown here.
type View struct {
	Cart          *Cart `json:"cart"`
	SubtotalCents int64 `json:"subtotal_cents"`
	TaxCents      int64 `json:"tax_cents"`
	TotalCents    int64 `json:"total_cents"`
	TotalQty      int   `json:"total_qty"`
}

// Issue describes one problem blocking a cart line from checkout.
type Issue struct {
	ProductID uuid.UUID `json:"product_id"`
	Reason    string    `json:"reason"`
	Requested int       `json:"requested,omitempty"`
	Available int       `json:"available,omitempty"`
}

// Validation is the pre-checkout health report for a cart.
type Validation struct {
	IsValid              bool    `json:"is_valid"`
	CanProceedToCheckout bool    `json:"can_proceed_to_checkout"`
	Issues               []Issue `json:"issues"`
	TotalItems           int     `json:"total_items"`
	TotalValueCents      int64   `json:"total_value_cents"`
}

// Service exposes cart mutations backed by the redis aggregate store.
type Service interface {
	Get(ctx context.Context, customerID uuid.UUID) (*View, error)
	AddItem(ctx context.Context, customerID, productID uuid.UUID, qty int) (*View, error)
	UpdateItemQty(ctx context.Context, customerID, productID uuid.UUID, qty int) (*View, error)
	RemoveItem(ctx context.Context, customerID, productID uuid.UUID) (*View, error)
	Merge(ctx context.Context, fromID, toID uuid.UUID) (*View, error)
	Clear(ctx context.Context, customerID uuid.UUID) error
	Snapshot(ctx context.Context, customerID uuid.UUID) (*Cart, error)
	Validate(ctx context.Context, customerID uuid.UUID) (*Validation, error)
}

type service struct {
	store    *Store
	products products.Service
	stock    inventory.Service
	cfg      config.CartConfig
}

// NewService wires the cart service.
func NewService(store *Store, catalog products.Service, stock inventory.Service, cfg config.CartConfig) (Service, error) {
	if store == nil {
		return nil, fmt.Errorf("cart store required")
	}
	if catalog == nil {
		return nil, fmt.Errorf("products service required")
	}
	if stock == nil {
		return nil, fmt.Errorf("inventory service required")
	}
	return &service{store: store, products: catalog, stock: stock, cfg: cfg}, nil
}

func (s *service) Get(ctx context.Context, customerID uuid.UUID) (*View, error) {
	if customerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer id required")
	}
	cart, err := s.store.Load(ctx, customerID)
	if err != nil {
		return nil, err
	}
	return s.view(cart), nil
}

// AddItem puts qty units of a product in the cart, folding into an existing
// line when present. The price and vendor snapshot is taken here.
func (s *service) AddItem(ctx context.Context, customerID, productID uuid.UUID, qty int) (*View, error) {
	if err := validateLineInput(customerID, productID, qty); err != nil {
		return nil, err
	}

	product, err := s.products.GetProduct(ctx, productID)
	if err != nil {
		return nil, err
	}

	cart, err := s.store.Mutate(ctx, customerID, func(cart *Cart) error {
		newQty := qty
		if i := cart.LineFor(productID); i >= 0 {
			newQty += cart.Lines[i].Qty
		}
		if newQty > s.cfg.MaxLineQty {
			return pkgerrors.New(pkgerrors.CodeValidation,
				fmt.Sprintf("line quantity cannot exceed %d", s.cfg.MaxLineQty))
		}
		if cart.LineFor(productID) < 0 && len(cart.Lines) >= s.cfg.MaxCartSize {
			return pkgerrors.New(pkgerrors.CodeValidation,
				fmt.Sprintf("cart cannot hold more than %d distinct products", s.cfg.MaxCartSize))
		}

		if err := s.checkStock(ctx, productID, newQty); err != nil {
			return err
		}

		if i := cart.LineFor(productID); i >= 0 {
			cart.Lines[i].Qty = newQty
			// Refresh the snapshot so stale carts pick up price changes.
			cart.Lines[i].Name = product.Name
			cart.Lines[i].SKU = product.SKU
			cart.Lines[i].UnitPriceCents = int64(product.PriceCents)
			cart.Lines[i].VendorID = product.VendorID
			return nil
		}
		cart.Lines = append(cart.Lines, Line{
			ProductID:      product.ID,
			VendorID:       product.VendorID,
			Name:           product.Name,
			SKU:            product.SKU,
			UnitPriceCents: int64(product.PriceCents),
			Qty:            qty,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.view(cart), nil
}

// UpdateItemQty sets a line to an absolute quantity. Zero removes the line.
func (s *service) UpdateItemQty(ctx context.Context, customerID, productID uuid.UUID, qty int) (*View, error) {
	if customerID == uuid.Nil || productID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer id and product id required")
	}
	if qty < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity cannot be negative")
	}
	if qty > s.cfg.MaxLineQty {
		return nil, pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("line quantity cannot exceed %d", s.cfg.MaxLineQty))
	}

	cart, err := s.store.Mutate(ctx, customerID, func(cart *Cart) error {
		i := cart.LineFor(productID)
		if i < 0 {
			return pkgerrors.New(pkgerrors.CodeNotFound, "product not in cart")
		}
		if qty == 0 {
			cart.Lines = append(cart.Lines[:i], cart.Lines[i+1:]...)
			return nil
		}
		if err := s.checkStock(ctx, productID, qty); err != nil {
			return err
		}
		cart.Lines[i].Qty = qty
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.view(cart), nil
}

func (s *service) RemoveItem(ctx context.Context, customerID, productID uuid.UUID) (*View, error) {
	return s.UpdateItemQty(ctx, customerID, productID, 0)
}

// Merge folds the cart stored under fromID into the cart under toID and
// destroys the source. Lines for the same product sum their quantities up to
// the line cap. Used when an anonymous session signs in.
func (s *service) Merge(ctx context.Context, fromID, toID uuid.UUID) (*View, error) {
	if fromID == uuid.Nil || toID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "source and destination cart ids required")
	}
	if fromID == toID {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cannot merge a cart into itself")
	}

	source, err := s.store.Load(ctx, fromID)
	if err != nil {
		return nil, err
	}
	if source.IsEmpty() {
		cart, err := s.store.Load(ctx, toID)
		if err != nil {
			return nil, err
		}
		return s.view(cart), nil
	}

	cart, err := s.store.Mutate(ctx, toID, func(cart *Cart) error {
		for _, line := range source.Lines {
			if i := cart.LineFor(line.ProductID); i >= 0 {
				merged := cart.Lines[i].Qty + line.Qty
				if merged > s.cfg.MaxLineQty {
					merged = s.cfg.MaxLineQty
				}
				cart.Lines[i].Qty = merged
				continue
			}
			if len(cart.Lines) >= s.cfg.MaxCartSize {
				return pkgerrors.New(pkgerrors.CodeValidation,
					fmt.Sprintf("cart cannot hold more than %d distinct products", s.cfg.MaxCartSize))
			}
			cart.Lines = append(cart.Lines, line)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := s.store.Clear(ctx, fromID); err != nil {
		return nil, err
	}
	return s.view(cart), nil
}

func (s *service) Clear(ctx context.Context, customerID uuid.UUID) error {
	if customerID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "customer id required")
	}
	return s.store.Clear(ctx, customerID)
}

// Snapshot returns the cart for checkout. An empty cart is a validation error
// since there is nothing to order.
func (s *service) Snapshot(ctx context.Context, customerID uuid.UUID) (*Cart, error) {
	if customerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer id required")
	}
	cart, err := s.store.Load(ctx, customerID)
	if err != nil {
		return nil, err
	}
	if cart.IsEmpty() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart is empty")
	}
	return cart, nil
}

// Validate re-checks every line against the live catalog and stock ledger
// without mutating the cart. Checkout repeats the same checks authoritatively
// inside its own transaction.
func (s *service) Validate(ctx context.Context, customerID uuid.UUID) (*Validation, error) {
	if customerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer id required")
	}

	cart, err := s.store.Load(ctx, customerID)
	if err != nil {
		return nil, err
	}

	result := &Validation{
		Issues:          []Issue{},
		TotalItems:      cart.TotalQty(),
		TotalValueCents: cart.SubtotalCents(),
	}
	if cart.IsEmpty() {
		result.Issues = append(result.Issues, Issue{Reason: "cart is empty"})
		return result, nil
	}

	ids := make([]uuid.UUID, 0, len(cart.Lines))
	requests := make([]inventory.StockRequest, 0, len(cart.Lines))
	for _, line := range cart.Lines {
		ids = append(ids, line.ProductID)
		requests = append(requests, inventory.StockRequest{ProductID: line.ProductID, Qty: line.Qty})
	}

	catalog, err := s.products.GetProducts(ctx, ids)
	if err != nil {
		return nil, err
	}
	availability, err := s.stock.CheckAvailability(ctx, requests)
	if err != nil {
		return nil, err
	}
	availByProduct := make(map[uuid.UUID]inventory.Availability, len(availability))
	for _, a := range availability {
		availByProduct[a.ProductID] = a
	}

	for _, line := range cart.Lines {
		product, ok := catalog[line.ProductID]
		if !ok {
			result.Issues = append(result.Issues, Issue{ProductID: line.ProductID, Reason: "product no longer exists"})
			continue
		}
		if !product.IsActive {
			result.Issues = append(result.Issues, Issue{ProductID: line.ProductID, Reason: "product is inactive"})
			continue
		}
		if a, ok := availByProduct[line.ProductID]; ok && a.Tracked && !a.InStock {
			result.Issues = append(result.Issues, Issue{
				ProductID: line.ProductID,
				Reason:    "insufficient stock",
				Requested: line.Qty,
				Available: a.Available,
			})
		}
	}

	result.IsValid = len(result.Issues) == 0
	result.CanProceedToCheckout = result.IsValid
	return result, nil
}

func (s *service) checkStock(ctx context.Context, productID uuid.UUID, qty int) error {
	results, err := s.stock.CheckAvailability(ctx, []inventory.StockRequest{{ProductID: productID, Qty: qty}})
	if err != nil {
		return err
	}
	for _, result := range results {
		if result.Tracked && !result.InStock {
			return pkgerrors.InsufficientStock(productID.String(), qty, result.Available)
		}
	}
	return nil
}

func validateLineInput(customerID, productID uuid.UUID, qty int) error {
	if customerID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "customer id required")
	}
	if productID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "product id required")
	}
	if qty <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}
	return nil
}

func (s *service) view(cart *Cart) *View {
	subtotal := cart.SubtotalCents()
	tax := vendorsplit.TaxCents(subtotal, int64(s.cfg.TaxRateBPS))
	return &View{
		Cart:          cart,
		SubtotalCents: subtotal,
		TaxCents:      tax,
		TotalCents:    subtotal + tax,
		TotalQty:      cart.TotalQty(),
	}
}
