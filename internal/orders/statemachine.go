package orders

import (
	"github.com/vendorhub/vendorhub-backend/pkg/enums"
	pkgerrors "github.com/vendorhub/vendorhub-backend/pkg/errors"
)

// cancellableStatuses lists the statuses a vendor order may be cancelled
// from. Once fulfillment starts shipping, cancellation goes through the
// returns process instead.
var cancellableStatuses = map[enums.OrderStatus]bool{
	enums.OrderStatusPending:    true,
	enums.OrderStatusConfirmed:  true,
	enums.OrderStatusProcessing: true,
}

// CanCancel reports whether a status permits cancellation.
func CanCancel(status enums.OrderStatus) bool {
	return cancellableStatuses[status]
}

// ValidateTransition checks a vendor order status change against the
// lifecycle rules: forward moves advance exactly one step, cancellation is
// only reachable before shipping, and terminal statuses accept nothing.
func ValidateTransition(from, to enums.OrderStatus) error {
	if !to.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "unknown order status").
			WithDetails(map[string]any{"status": to.String()})
	}
	if from == to {
		return stateError(from, to, "status is unchanged")
	}
	if from.IsTerminal() {
		return stateError(from, to, "status is terminal")
	}
	if to == enums.OrderStatusCancelled {
		if !CanCancel(from) {
			return stateError(from, to, "order can no longer be cancelled")
		}
		return nil
	}
	fromRank, ok := from.Rank()
	if !ok {
		return stateError(from, to, "status cannot advance")
	}
	toRank, ok := to.Rank()
	if !ok {
		return stateError(from, to, "status cannot advance")
	}
	if toRank != fromRank+1 {
		return stateError(from, to, "status must advance one step at a time")
	}
	return nil
}

func stateError(from, to enums.OrderStatus, msg string) error {
	return pkgerrors.New(pkgerrors.CodeStateConflict, msg).WithDetails(map[string]any{
		"from_status": from.String(),
		"to_status":   to.String(),
	})
}

// DeriveParentStatus computes an order's status from its vendor orders: the
// least-advanced non-cancelled child wins, and the order is cancelled only
// when every child is. An order with no children keeps pending.
func DeriveParentStatus(children []enums.OrderStatus) enums.OrderStatus {
	if len(children) == 0 {
		return enums.OrderStatusPending
	}
	var (
		lowest    enums.OrderStatus
		lowestSet bool
	)
	for _, status := range children {
		if status == enums.OrderStatusCancelled {
			continue
		}
		rank, ok := status.Rank()
		if !ok {
			continue
		}
		if !lowestSet {
			lowest, lowestSet = status, true
			continue
		}
		if current, _ := lowest.Rank(); rank < current {
			lowest = status
		}
	}
	if !lowestSet {
		return enums.OrderStatusCancelled
	}
	return lowest
}
