package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/vendorhub/vendorhub-backend/pkg/enums"
)

// Reservation is a short-lived hold on inventory taken for a cart snapshot.
type Reservation struct {
	ID         uuid.UUID               `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	CustomerID uuid.UUID               `gorm:"column:customer_id;type:uuid;not null;index"`
	Status     enums.ReservationStatus `gorm:"column:status;not null;default:'active'"`
	ExpiresAt  time.Time               `gorm:"column:expires_at;not null;index"`
	Holds      []ReservationHold       `gorm:"foreignKey:ReservationID;constraint:OnDelete:CASCADE"`
	CreatedAt  time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}

// ReservationHold is one (product, quantity) hold within a reservation.
type ReservationHold struct {
	ID            uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ReservationID uuid.UUID `gorm:"column:reservation_id;type:uuid;not null;index"`
	ProductID     uuid.UUID `gorm:"column:product_id;type:uuid;not null"`
	Qty           int       `gorm:"column:qty;not null"`
}

// ExpiredAt reports whether the reservation should be treated as released at
// the given instant, regardless of its stored status.
func (r Reservation) ExpiredAt(now time.Time) bool {
	return r.Status == enums.ReservationStatusActive && !r.ExpiresAt.After(now)
}
