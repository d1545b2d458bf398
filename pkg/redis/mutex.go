package redis

import (
	"context"
	"time"

	"github.com/google/uuid"

	pkgerrors "github.com/vendorhub/vendorhub-backend/pkg/errors"
)

// Mutex is a best-effort distributed lock over a single redis key.
// Acquire sets the key with SetNX and a TTL; Release deletes it only
// when the stored owner token still matches.
type Mutex struct {
	client *Client
	key    string
	owner  string
	ttl    time.Duration
}

// NewMutex builds a mutex for key with the provided TTL.
func (c *Client) NewMutex(key string, ttl time.Duration) *Mutex {
	return &Mutex{
		client: c,
		key:    key,
		owner:  uuid.NewString(),
		ttl:    ttl,
	}
}

// TryAcquire attempts to take the lock once without waiting.
func (m *Mutex) TryAcquire(ctx context.Context) (bool, error) {
	ok, err := m.client.SetNX(ctx, m.key, m.owner, m.ttl)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "acquiring lock")
	}
	return ok, nil
}

// Acquire retries TryAcquire until the lock is held, the retry budget is
// spent, or ctx is cancelled.
func (m *Mutex) Acquire(ctx context.Context, retryInterval time.Duration, maxRetries int) error {
	for attempt := 0; ; attempt++ {
		ok, err := m.TryAcquire(ctx)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		if attempt >= maxRetries {
			return pkgerrors.New(pkgerrors.CodeConflict, "resource is locked by another request")
		}
		select {
		case <-ctx.Done():
			return pkgerrors.Wrap(pkgerrors.CodeDependency, ctx.Err(), "waiting for lock")
		case <-time.After(retryInterval):
		}
	}
}

// Release frees the lock if this mutex still owns it. A lock that expired
// and was re-acquired elsewhere is left alone.
func (m *Mutex) Release(ctx context.Context) error {
	current, err := m.client.Get(ctx, m.key)
	if err != nil {
		if IsNil(err) {
			return nil
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "inspecting lock owner")
	}
	if current != m.owner {
		return nil
	}
	if err := m.client.Del(ctx, m.key); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "releasing lock")
	}
	return nil
}

// Extend refreshes the TTL while the work is still running.
func (m *Mutex) Extend(ctx context.Context) error {
	current, err := m.client.Get(ctx, m.key)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "inspecting lock owner")
	}
	if current != m.owner {
		return pkgerrors.New(pkgerrors.CodeConflict, "lock is no longer held by this owner")
	}
	return m.client.Expire(ctx, m.key, m.ttl)
}
