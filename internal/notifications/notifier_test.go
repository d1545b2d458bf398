package notifications

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/vendorhub/vendorhub-backend/pkg/enums"
	pkgerrors "github.com/vendorhub/vendorhub-backend/pkg/errors"
	"github.com/vendorhub/vendorhub-backend/pkg/logger"
)

type recordingSender struct {
	mu    sync.Mutex
	sent  []string
	fail  bool
	ready chan struct{}
}

func newRecordingSender(expected int) *recordingSender {
	return &recordingSender{ready: make(chan struct{}, expected)}
}

func (s *recordingSender) Send(ctx context.Context, recipientID uuid.UUID, kind string, payload map[string]any) error {
	s.mu.Lock()
	s.sent = append(s.sent, kind)
	s.mu.Unlock()
	s.ready <- struct{}{}
	if s.fail {
		return pkgerrors.New(pkgerrors.CodeDependency, "channel down")
	}
	return nil
}

func (s *recordingSender) wait(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-s.ready:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for notification")
		}
	}
}

func TestNotifierDispatchesAsync(t *testing.T) {
	sender := newRecordingSender(2)
	logg := logger.New(logger.Options{ServiceName: "notifications-test", Output: io.Discard})
	notifier := New(sender, logg)
	ctx := context.Background()

	notifier.OrderConfirmed(ctx, uuid.New(), uuid.New(), 5000)
	notifier.OrderStatusChanged(ctx, uuid.New(), uuid.New(), enums.OrderStatusShipped)
	sender.wait(t, 2)

	sender.mu.Lock()
	defer sender.mu.Unlock()
	require.ElementsMatch(t, []string{"order.confirmed", "order.status_changed"}, sender.sent)
}

func TestNotifierSwallowsDeliveryFailure(t *testing.T) {
	sender := newRecordingSender(1)
	sender.fail = true
	logg := logger.New(logger.Options{ServiceName: "notifications-test", Output: io.Discard})
	notifier := New(sender, logg)

	// Must not panic or propagate anything.
	notifier.OrderCancelled(context.Background(), uuid.New(), uuid.New(), "changed my mind")
	sender.wait(t, 1)
}
