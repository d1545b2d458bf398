package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/vendorhub/vendorhub-backend/api/middleware"
	"github.com/vendorhub/vendorhub-backend/api/responses"
	"github.com/vendorhub/vendorhub-backend/api/validators"
	"github.com/vendorhub/vendorhub-backend/internal/inventory"
	"github.com/vendorhub/vendorhub-backend/internal/reservation"
	pkgerrors "github.com/vendorhub/vendorhub-backend/pkg/errors"
	"github.com/vendorhub/vendorhub-backend/pkg/logger"
)

type reservationItemRequest struct {
	ProductID uuid.UUID `json:"product_id" validate:"required"`
	Qty       int       `json:"qty" validate:"required,min=1"`
}

type createReservationRequest struct {
	Items []reservationItemRequest `json:"items" validate:"required,min=1,dive"`
}

// ReservationCreate places a short-lived hold on the requested stock.
func ReservationCreate(svc reservation.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "reservation service unavailable"))
			return
		}

		var payload createReservationRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		requests := make([]inventory.StockRequest, 0, len(payload.Items))
		for _, item := range payload.Items {
			requests = append(requests, inventory.StockRequest{ProductID: item.ProductID, Qty: item.Qty})
		}

		record, err := svc.Create(r.Context(), middleware.ActorIDFromContext(r.Context()), requests)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, record)
	}
}

// ReservationRelease frees the caller's active reservation.
func ReservationRelease(svc reservation.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "reservation service unavailable"))
			return
		}

		active, err := svc.FindActive(r.Context(), middleware.ActorIDFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if active == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "no active reservation"))
			return
		}

		if err := svc.Release(r.Context(), active.ID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "released"})
	}
}
