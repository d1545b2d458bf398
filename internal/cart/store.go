package cart

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	pkgerrors "github.com/vendorhub/vendorhub-backend/pkg/errors"
	"github.com/vendorhub/vendorhub-backend/pkg/redis"
)

// Store persists one cart aggregate per customer as a JSON document with a
// TTL. Writes run under a per-customer lock so concurrent mutations cannot
// overwrite each other.
type Store struct {
	client    *redis.Client
	ttl       time.Duration
	lockTTL   time.Duration
	lockRetry time.Duration
}

// NewStore builds a cart store over the shared redis client.
func NewStore(client *redis.Client, ttl, lockTTL, lockRetry time.Duration) (*Store, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client required")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("cart ttl must be positive")
	}
	return &Store{client: client, ttl: ttl, lockTTL: lockTTL, lockRetry: lockRetry}, nil
}

// Load returns the stored cart, or an empty one when none exists.
func (s *Store) Load(ctx context.Context, customerID uuid.UUID) (*Cart, error) {
	raw, err := s.client.Get(ctx, s.client.CartKey(customerID.String()))
	if err != nil {
		if redis.IsNil(err) {
			return &Cart{CustomerID: customerID}, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading cart")
	}
	var cart Cart
	if err := json.Unmarshal([]byte(raw), &cart); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decoding cart")
	}
	cart.CustomerID = customerID
	return &cart, nil
}

// Mutate loads the cart, applies fn, and saves the result, all under the
// customer's cart lock. fn returning an error aborts without saving.
func (s *Store) Mutate(ctx context.Context, customerID uuid.UUID, fn func(cart *Cart) error) (*Cart, error) {
	mutex := s.client.NewMutex(s.client.CartLockKey(customerID.String()), s.lockTTL)
	if err := mutex.Acquire(ctx, s.lockRetry, lockAttempts(s.lockTTL, s.lockRetry)); err != nil {
		return nil, err
	}
	defer func() { _ = mutex.Release(ctx) }()

	cart, err := s.Load(ctx, customerID)
	if err != nil {
		return nil, err
	}
	if err := fn(cart); err != nil {
		return nil, err
	}
	cart.UpdatedAt = time.Now()

	if cart.IsEmpty() {
		if err := s.delete(ctx, customerID); err != nil {
			return nil, err
		}
		return cart, nil
	}

	encoded, err := json.Marshal(cart)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encoding cart")
	}
	if err := s.client.Set(ctx, s.client.CartKey(customerID.String()), string(encoded), s.ttl); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "saving cart")
	}
	return cart, nil
}

// Clear removes the cart document entirely.
func (s *Store) Clear(ctx context.Context, customerID uuid.UUID) error {
	mutex := s.client.NewMutex(s.client.CartLockKey(customerID.String()), s.lockTTL)
	if err := mutex.Acquire(ctx, s.lockRetry, lockAttempts(s.lockTTL, s.lockRetry)); err != nil {
		return err
	}
	defer func() { _ = mutex.Release(ctx) }()
	return s.delete(ctx, customerID)
}

func (s *Store) delete(ctx context.Context, customerID uuid.UUID) error {
	if err := s.client.Del(ctx, s.client.CartKey(customerID.String())); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clearing cart")
	}
	return nil
}

func lockAttempts(lockTTL, retry time.Duration) int {
	if retry <= 0 {
		return 0
	}
	attempts := int(lockTTL / retry)
	if attempts < 1 {
		attempts = 1
	}
	return attempts
}
