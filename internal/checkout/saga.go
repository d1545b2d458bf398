package checkout

import (
	"context"

	"github.com/google/uuid"

	"github.com/vendorhub/vendorhub-backend/internal/cart"
	"github.com/vendorhub/vendorhub-backend/internal/inventory"
	"github.com/vendorhub/vendorhub-backend/internal/vendorsplit"
	"github.com/vendorhub/vendorhub-backend/pkg/db/models"
)

// step is one stage of the checkout saga. run moves the checkout forward;
// undo compensates it when a later step fails. Steps with nothing to roll
// back leave undo nil.
type step struct {
	name string
	run  func(ctx context.Context, state *checkoutState) error
	undo func(ctx context.Context, state *checkoutState) error
}

// checkoutState accumulates what each step produced so later steps and
// compensations can reach it.
type checkoutState struct {
	input         Input
	cart          *cart.Cart
	requests      []inventory.StockRequest
	reservationID uuid.UUID
	split         *vendorsplit.Result
	paymentRef    string
	order         *models.Order
}

// runSaga executes steps in order. On failure it runs the undo of every
// completed step in reverse and returns the original error. A failed undo is
// logged and compensation continues; stopping midway would strand even more
// state.
func (s *service) runSaga(ctx context.Context, state *checkoutState, steps []step) error {
	completed := make([]step, 0, len(steps))
	for _, st := range steps {
		if err := st.run(ctx, state); err != nil {
			s.metrics.IncFailed(st.name)
			s.compensate(ctx, state, completed, st.name)
			return err
		}
		completed = append(completed, st)
	}
	return nil
}

func (s *service) compensate(ctx context.Context, state *checkoutState, completed []step, failedStep string) {
	for i := len(completed) - 1; i >= 0; i-- {
		st := completed[i]
		if st.undo == nil {
			continue
		}
		if err := st.undo(ctx, state); err != nil {
			// Stock or money is now out of sync and needs an operator.
			s.logg.Error(s.logg.WithFields(ctx, map[string]any{
				"step":        st.name,
				"failed_step": failedStep,
				"customer_id": state.input.CustomerID,
			}), "checkout compensation failed, manual intervention required", err)
		}
	}
}
