package checkout

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	sq "github.com/square/square-go-sdk"
	"gorm.io/gorm"

	"github.com/vendorhub/vendorhub-backend/internal/cart"
	"github.com/vendorhub/vendorhub-backend/internal/inventory"
	"github.com/vendorhub/vendorhub-backend/internal/orders"
	"github.com/vendorhub/vendorhub-backend/internal/products"
	"github.com/vendorhub/vendorhub-backend/internal/reservation"
	"github.com/vendorhub/vendorhub-backend/internal/vendorsplit"
	"github.com/vendorhub/vendorhub-backend/pkg/config"
	"github.com/vendorhub/vendorhub-backend/pkg/db/models"
	"github.com/vendorhub/vendorhub-backend/pkg/enums"
	pkgerrors "github.com/vendorhub/vendorhub-backend/pkg/errors"
	"github.com/vendorhub/vendorhub-backend/pkg/logger"
	"github.com/vendorhub/vendorhub-backend/pkg/metrics"
	"github.com/vendorhub/vendorhub-backend/pkg/outbox"
	"github.com/vendorhub/vendorhub-backend/pkg/outbox/payloads"
	"github.com/vendorhub/vendorhub-backend/pkg/square"
	"github.com/vendorhub/vendorhub-backend/pkg/types"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type paymentGateway interface {
	CreatePayment(ctx context.Context, params square.PaymentCreateParams) (*sq.Payment, error)
	RefundPayment(ctx context.Context, params square.RefundCreateParams) (*sq.PaymentRefund, error)
}

type idempotencyStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	IdempotencyKey(scope, id string) string
}

// Input is one customer's request to turn their cart into an order.
type Input struct {
	CustomerID      uuid.UUID
	SourceID        string
	ShippingAddress types.Address
	IdempotencyKey  string
}

// Result is the confirmed order produced by a successful checkout.
type Result struct {
	Order      *models.Order
	PaymentRef string
}

// Service runs the checkout saga.
type Service interface {
	Checkout(ctx context.Context, input Input) (*Result, error)
}

type service struct {
	tx           txRunner
	cart         cart.Service
	catalog      products.Service
	stock        inventory.Service
	reservations reservation.Service
	ordersRepo   orders.Repository
	payments     paymentGateway
	outbox       outboxEmitter
	idem         idempotencyStore
	metrics      *metrics.CheckoutMetrics
	cfg          config.CheckoutConfig
	logg         *logger.Logger
}

// NewService wires the order orchestrator.
func NewService(
	tx txRunner,
	cartSvc cart.Service,
	catalog products.Service,
	stock inventory.Service,
	reservations reservation.Service,
	ordersRepo orders.Repository,
	payments paymentGateway,
	emitter outboxEmitter,
	idem idempotencyStore,
	checkoutMetrics *metrics.CheckoutMetrics,
	cfg config.CheckoutConfig,
	logg *logger.Logger,
) (Service, error) {
	switch {
	case tx == nil:
		return nil, fmt.Errorf("tx runner required")
	case cartSvc == nil:
		return nil, fmt.Errorf("cart service required")
	case catalog == nil:
		return nil, fmt.Errorf("products service required")
	case stock == nil:
		return nil, fmt.Errorf("inventory service required")
	case reservations == nil:
		return nil, fmt.Errorf("reservation service required")
	case ordersRepo == nil:
		return nil, fmt.Errorf("orders repository required")
	case payments == nil:
		return nil, fmt.Errorf("payment gateway required")
	case emitter == nil:
		return nil, fmt.Errorf("outbox emitter required")
	case idem == nil:
		return nil, fmt.Errorf("idempotency store required")
	case checkoutMetrics == nil:
		return nil, fmt.Errorf("checkout metrics required")
	case logg == nil:
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		tx:           tx,
		cart:         cartSvc,
		catalog:      catalog,
		stock:        stock,
		reservations: reservations,
		ordersRepo:   ordersRepo,
		payments:     payments,
		outbox:       emitter,
		idem:         idem,
		metrics:      checkoutMetrics,
		cfg:          cfg,
		logg:         logg,
	}, nil
}

// Checkout converts the customer's cart into a paid, confirmed order. It is
// guarded per (customer, idempotency key): a second request with the same key
// while the first is in flight or after it completed is rejected rather than
// charged twice.
func (s *service) Checkout(ctx context.Context, input Input) (*Result, error) {
	if input.CustomerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer id required")
	}
	if input.SourceID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment source required")
	}
	if input.IdempotencyKey == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "idempotency key required")
	}
	if problems := input.ShippingAddress.Validate(); len(problems) > 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid shipping address").
			WithDetails(map[string]any{"fields": problems})
	}

	guardKey := s.idem.IdempotencyKey("checkout", fmt.Sprintf("%s:%s", input.CustomerID, input.IdempotencyKey))
	acquired, err := s.idem.SetNX(ctx, guardKey, "in_progress", s.cfg.IdempotencyTTL)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "idempotency check failed")
	}
	if !acquired {
		return nil, pkgerrors.New(pkgerrors.CodeIdempotency, "checkout already processed for this idempotency key")
	}

	started := time.Now()
	state := &checkoutState{input: input}
	err = s.runSaga(ctx, state, []step{
		{name: "load_cart", run: s.loadCart},
		{name: "verify_products", run: s.verifyProducts},
		{name: "commit_inventory", run: s.commitInventory, undo: s.restoreInventory},
		{name: "collect_payment", run: s.collectPayment, undo: s.refundPayment},
		{name: "persist_order", run: s.persistOrder},
		{name: "finalize_cart", run: s.finalizeCart},
	})
	if err != nil {
		// Free the key so the customer can retry a failed checkout.
		if delErr := s.idem.Del(ctx, guardKey); delErr != nil {
			s.logg.Warn(ctx, "failed to release checkout idempotency key")
		}
		s.metrics.ObserveDuration("failure", time.Since(started))
		// The order rows are gone but the charge stuck; the reference is the
		// only handle support has to refund or reconcile it.
		if state.paymentRef != "" && state.order == nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "checkout failed after payment was captured").
				WithDetails(map[string]any{"payment_ref": state.paymentRef})
		}
		return nil, err
	}

	s.metrics.ObserveDuration("success", time.Since(started))
	s.metrics.IncCompleted()
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"order_id":    state.order.ID,
		"customer_id": input.CustomerID,
		"total_cents": state.order.TotalCents,
	}), "checkout completed")
	return &Result{Order: state.order, PaymentRef: state.paymentRef}, nil
}

func (s *service) loadCart(ctx context.Context, state *checkoutState) error {
	snapshot, err := s.cart.Snapshot(ctx, state.input.CustomerID)
	if err != nil {
		return err
	}
	state.cart = snapshot
	state.requests = make([]inventory.StockRequest, 0, len(snapshot.Lines))
	for _, line := range snapshot.Lines {
		state.requests = append(state.requests, inventory.StockRequest{ProductID: line.ProductID, Qty: line.Qty})
	}
	return nil
}

// verifyProducts revalidates every cart line against the live catalog. The
// cart carries prices snapshotted at add time; a price or vendor change since
// then fails the checkout instead of silently charging a different amount.
func (s *service) verifyProducts(ctx context.Context, state *checkoutState) error {
	ids := make([]uuid.UUID, 0, len(state.cart.Lines))
	for _, line := range state.cart.Lines {
		ids = append(ids, line.ProductID)
	}
	catalog, err := s.catalog.GetProducts(ctx, ids)
	if err != nil {
		return err
	}
	var stale []uuid.UUID
	for _, line := range state.cart.Lines {
		product, ok := catalog[line.ProductID]
		if !ok || !product.IsActive {
			stale = append(stale, line.ProductID)
			continue
		}
		if int64(product.PriceCents) != line.UnitPriceCents || product.VendorID != line.VendorID {
			stale = append(stale, line.ProductID)
		}
	}
	if len(stale) > 0 {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "cart is out of date with the catalog").
			WithDetails(map[string]any{"product_ids": stale})
	}
	return nil
}

// commitInventory converts stock holds into committed stock. A customer who
// reserved ahead of checkout consumes that reservation; otherwise stock is
// reserved and committed in one transaction.
func (s *service) commitInventory(ctx context.Context, state *checkoutState) error {
	active, err := s.reservations.FindActive(ctx, state.input.CustomerID)
	if err != nil {
		return err
	}
	if active != nil && reservationCovers(active, state.requests) {
		return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			if _, err := s.reservations.CommitTx(ctx, tx, active.ID); err != nil {
				return err
			}
			state.reservationID = active.ID
			return nil
		})
	}
	if active != nil {
		// The reservation no longer matches the cart; release it and take
		// fresh holds below.
		if err := s.reservations.Release(ctx, active.ID); err != nil {
			return err
		}
	}
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.stock.Reserve(ctx, tx, state.requests); err != nil {
			return err
		}
		return s.stock.Commit(ctx, tx, state.requests)
	})
}

func (s *service) restoreInventory(ctx context.Context, state *checkoutState) error {
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return s.stock.Restore(ctx, tx, state.requests)
	})
}

func (s *service) collectPayment(ctx context.Context, state *checkoutState) error {
	split, err := vendorsplit.Split(state.cart.SplitItems(), int64(s.cfg.VendorFlatShippingCents), int64(s.cfg.TaxRateBPS))
	if err != nil {
		return err
	}
	state.split = split

	payCtx, cancel := context.WithTimeout(ctx, s.cfg.PaymentTimeout)
	defer cancel()

	payment, err := s.payments.CreatePayment(payCtx, square.PaymentCreateParams{
		AmountCents:    split.TotalCents,
		CustomerID:     state.input.CustomerID.String(),
		SourceID:       state.input.SourceID,
		IdempotencyKey: fmt.Sprintf("vh-checkout-%s-%s", state.input.CustomerID, state.input.IdempotencyKey),
		Note:           "marketplace order",
	})
	if err != nil {
		return err
	}
	ref := paymentID(payment)
	if ref == "" {
		return pkgerrors.New(pkgerrors.CodePayment, "payment gateway returned no payment id")
	}
	state.paymentRef = ref
	return nil
}

func (s *service) refundPayment(ctx context.Context, state *checkoutState) error {
	if state.paymentRef == "" {
		return nil
	}
	s.metrics.IncRefund("checkout_compensation")
	_, err := s.payments.RefundPayment(ctx, square.RefundCreateParams{
		PaymentID:   state.paymentRef,
		AmountCents: state.split.TotalCents,
		Reason:      "checkout failed after payment",
	})
	return err
}

// persistOrder writes the order aggregate in one transaction: the order, its
// vendor orders and items, the confirmed status flip, and the outbox events
// all commit or roll back together.
func (s *service) persistOrder(ctx context.Context, state *checkoutState) error {
	order := buildOrder(state)
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.ordersRepo.WithTx(tx)
		if err := repo.Create(ctx, order); err != nil {
			return err
		}
		ok, err := repo.ConfirmPending(ctx, order.ID, state.paymentRef)
		if err != nil {
			return err
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeInternal, "freshly created order was not pending")
		}

		vendorOrderIDs := make([]uuid.UUID, 0, len(order.VendorOrders))
		for _, vendorOrder := range order.VendorOrders {
			vendorOrderIDs = append(vendorOrderIDs, vendorOrder.ID)
		}
		actor := &outbox.ActorRef{ActorID: state.input.CustomerID, Role: enums.ActorRoleCustomer.String()}

		err = s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         actor,
			Data: payloads.OrderCreatedEvent{
				OrderID:        order.ID,
				CustomerID:     order.CustomerID,
				VendorOrderIDs: vendorOrderIDs,
				TotalCents:     int64(order.TotalCents),
				Currency:       order.Currency.String(),
			},
		})
		if err != nil {
			return err
		}
		err = s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderConfirmed,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         actor,
			Data: payloads.OrderConfirmedEvent{
				OrderID:    order.ID,
				CustomerID: order.CustomerID,
				PaymentRef: state.paymentRef,
				TotalCents: int64(order.TotalCents),
			},
		})
		if err != nil {
			return err
		}

		final, err := repo.FindByID(ctx, order.ID)
		if err != nil {
			return err
		}
		state.order = final
		return nil
	})
}

// finalizeCart clears the cart after the order exists. A failure here is not
// worth failing the checkout over: the cart expires on its own TTL.
func (s *service) finalizeCart(ctx context.Context, state *checkoutState) error {
	if err := s.cart.Clear(ctx, state.input.CustomerID); err != nil {
		s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
			"customer_id": state.input.CustomerID,
		}), "failed to clear cart after checkout")
	}
	return nil
}

func buildOrder(state *checkoutState) *models.Order {
	split := state.split
	linesByProduct := make(map[uuid.UUID]cart.Line, len(state.cart.Lines))
	for _, line := range state.cart.Lines {
		linesByProduct[line.ProductID] = line
	}

	order := &models.Order{
		ID:              uuid.New(),
		CustomerID:      state.input.CustomerID,
		Status:          enums.OrderStatusPending,
		Currency:        enums.CurrencyUSD,
		ShippingAddress: state.input.ShippingAddress,
		SubtotalCents:   int(split.SubtotalCents),
		TaxCents:        int(split.TaxCents),
		ShippingCents:   int(split.ShippingCents),
		TotalCents:      int(split.TotalCents),
		PaymentStatus:   enums.PaymentStatusPending,
	}
	for _, group := range split.Groups {
		vendorOrder := models.VendorOrder{
			ID:            uuid.New(),
			OrderID:       order.ID,
			VendorID:      group.VendorID,
			Status:        enums.OrderStatusPending,
			SubtotalCents: int(group.SubtotalCents),
			ShippingCents: int(group.ShippingCents),
			TotalCents:    int(group.TotalCents),
			Version:       1,
		}
		for _, item := range group.Items {
			line := linesByProduct[item.ProductID]
			vendorOrder.Items = append(vendorOrder.Items, models.OrderItem{
				ID:             uuid.New(),
				OrderID:        order.ID,
				VendorOrderID:  vendorOrder.ID,
				ProductID:      item.ProductID,
				VendorID:       item.VendorID,
				Name:           line.Name,
				SKU:            line.SKU,
				Qty:            item.Qty,
				UnitPriceCents: int(item.UnitPriceCents),
				TotalCents:     int(item.UnitPriceCents) * item.Qty,
			})
		}
		order.Items = append(order.Items, vendorOrder.Items...)
		order.VendorOrders = append(order.VendorOrders, vendorOrder)
	}
	return order
}

// reservationCovers reports whether the reservation holds exactly what the
// cart needs. Committing a mismatched reservation would commit quantities the
// order does not contain, so anything else falls back to fresh holds.
func reservationCovers(res *models.Reservation, requests []inventory.StockRequest) bool {
	held := make(map[uuid.UUID]int, len(res.Holds))
	for _, hold := range res.Holds {
		held[hold.ProductID] += hold.Qty
	}
	if len(held) != len(requests) {
		return false
	}
	for _, req := range requests {
		if held[req.ProductID] != req.Qty {
			return false
		}
	}
	return true
}

func paymentID(payment *sq.Payment) string {
	if payment == nil {
		return ""
	}
	if id := payment.GetID(); id != nil {
		return *id
	}
	return ""
}
