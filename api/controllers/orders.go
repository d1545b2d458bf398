package controllers

import (
	"net/http"
	"strings"

	"github.com/vendorhub/vendorhub-backend/api/middleware"
	"github.com/vendorhub/vendorhub-backend/api/responses"
	"github.com/vendorhub/vendorhub-backend/api/validators"
	"github.com/vendorhub/vendorhub-backend/internal/cancellation"
	checkoutsvc "github.com/vendorhub/vendorhub-backend/internal/checkout"
	"github.com/vendorhub/vendorhub-backend/internal/notifications"
	internalorders "github.com/vendorhub/vendorhub-backend/internal/orders"
	pkgerrors "github.com/vendorhub/vendorhub-backend/pkg/errors"
	"github.com/vendorhub/vendorhub-backend/pkg/logger"
	"github.com/vendorhub/vendorhub-backend/pkg/pagination"
	"github.com/vendorhub/vendorhub-backend/pkg/types"
)

type createOrderRequest struct {
	SourceID        string        `json:"source_id" validate:"required"`
	ShippingAddress types.Address `json:"shipping_address" validate:"required"`
}

type cancelOrderRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

type orderListResponse struct {
	Orders     any    `json:"orders"`
	NextCursor string `json:"next_cursor,omitempty"`
}

// OrderCreate runs checkout for the caller's cart and returns the confirmed
// order.
func OrderCreate(svc checkoutsvc.Service, notifier notifications.Notifier, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		var payload createOrderRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		customerID := middleware.ActorIDFromContext(r.Context())
		result, err := svc.Checkout(r.Context(), checkoutsvc.Input{
			CustomerID:      customerID,
			SourceID:        payload.SourceID,
			ShippingAddress: payload.ShippingAddress,
			IdempotencyKey:  strings.TrimSpace(r.Header.Get("Idempotency-Key")),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if notifier != nil && result.Order != nil {
			notifier.OrderConfirmed(r.Context(), customerID, result.Order.ID, result.Order.TotalCents)
			for _, vo := range result.Order.VendorOrders {
				notifier.VendorOrderReceived(r.Context(), vo.VendorID, vo.ID)
			}
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, result.Order)
	}
}

// OrderList pages through the caller's orders newest first.
func OrderList(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		params, err := listParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		orders, next, err := svc.ListCustomerOrders(r.Context(), middleware.ActorIDFromContext(r.Context()), params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, orderListResponse{Orders: orders, NextCursor: next})
	}
}

// OrderDetail returns one of the caller's orders with its vendor orders and
// items.
func OrderDetail(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		orderID, err := parseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.GetCustomerOrder(r.Context(), middleware.ActorIDFromContext(r.Context()), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	}
}

// OrderCancel cancels an order, restores stock, and refunds captured payment.
func OrderCancel(svc cancellation.Service, notifier notifications.Notifier, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cancellation service unavailable"))
			return
		}

		orderID, err := parseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload cancelOrderRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.CancelOrder(r.Context(), cancellation.Input{
			OrderID:     orderID,
			RequestedBy: middleware.ActorIDFromContext(r.Context()),
			Role:        middleware.ActorRoleFromContext(r.Context()),
			Reason:      payload.Reason,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if notifier != nil && result.Order != nil {
			notifier.OrderCancelled(r.Context(), result.Order.CustomerID, result.Order.ID, payload.Reason)
		}

		responses.WriteSuccess(w, map[string]any{
			"order":        result.Order,
			"refund_ref":   result.RefundRef,
			"refund_error": result.RefundError,
		})
	}
}

func listParams(r *http.Request) (pagination.Params, error) {
	limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
	if err != nil {
		return pagination.Params{}, err
	}
	return pagination.Params{
		Limit:  limit,
		Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
	}, nil
}
