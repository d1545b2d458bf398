package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/vendorhub/vendorhub-backend/api/middleware"
	"github.com/vendorhub/vendorhub-backend/api/responses"
	"github.com/vendorhub/vendorhub-backend/api/validators"
	"github.com/vendorhub/vendorhub-backend/internal/notifications"
	internalorders "github.com/vendorhub/vendorhub-backend/internal/orders"
	"github.com/vendorhub/vendorhub-backend/pkg/enums"
	pkgerrors "github.com/vendorhub/vendorhub-backend/pkg/errors"
	"github.com/vendorhub/vendorhub-backend/pkg/logger"
)

type vendorStatusRequest struct {
	Status            string     `json:"status" validate:"required"`
	TrackingNumber    *string    `json:"tracking_number,omitempty"`
	EstimatedDelivery *time.Time `json:"estimated_delivery,omitempty"`
	ExpectedVersion   int        `json:"expected_version,omitempty" validate:"min=0"`
}

// VendorOrderList pages through the vendor's slice of orders newest first.
func VendorOrderList(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
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

		orders, next, err := svc.ListVendorOrders(r.Context(), middleware.ActorIDFromContext(r.Context()), params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, orderListResponse{Orders: orders, NextCursor: next})
	}
}

// VendorOrderStatus advances a vendor order one step through the fulfillment
// lifecycle.
func VendorOrderStatus(svc internalorders.Service, repo internalorders.Repository, notifier notifications.Notifier, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		vendorOrderID, err := parseUUIDParam(r, "vendorOrderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload vendorStatusRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		status, err := enums.ParseOrderStatus(strings.TrimSpace(payload.Status))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status"))
			return
		}

		updated, err := svc.UpdateVendorOrderStatus(r.Context(), internalorders.StatusUpdateInput{
			VendorOrderID:     vendorOrderID,
			VendorID:          middleware.ActorIDFromContext(r.Context()),
			ToStatus:          status,
			TrackingNumber:    payload.TrackingNumber,
			EstimatedDelivery: payload.EstimatedDelivery,
			ExpectedVersion:   payload.ExpectedVersion,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if notifier != nil && repo != nil {
			if order, findErr := repo.FindByID(r.Context(), updated.OrderID); findErr == nil {
				notifier.OrderStatusChanged(r.Context(), order.CustomerID, order.ID, updated.Status)
			}
		}

		responses.WriteSuccess(w, updated)
	}
}
