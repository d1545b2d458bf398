package middleware

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
)

type fakeStore struct {
	data map[string]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{data: make(map[string]string)}
}

func (f *fakeStore) Get(_ context.Context, key string) (string, error) {
	if v, ok := f.data[key]; ok {
		return v, nil
	}
	return "", redis.Nil
}

func (f *fakeStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if _, ok := f.data[key]; ok {
		return false, nil
	}
	str, _ := value.(string)
	f.data[key] = str
	return true, nil
}

func (f *fakeStore) IdempotencyKey(scope, id string) string {
	return fmt.Sprintf("fake:%s:%s", scope, id)
}

func (f *fakeStore) Del(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(f.data, key)
	}
	return nil
}

func requestWithPattern(method, url, pattern string, body io.Reader) *http.Request {
	req := httptest.NewRequest(method, url, body)
	rc := chi.NewRouteContext()
	rc.RoutePatterns = []string{pattern}
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rc))
}

func TestIdempotencyReplaysStoredResponse(t *testing.T) {
	store := newFakeStore()
	calls := 0
	handler := Idempotency(store, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		fmt.Fprintf(w, `{"data":{"call":%d}}`, calls)
	}))

	first := httptest.NewRecorder()
	req := requestWithPattern(http.MethodPost, "/api/v1/orders", "/api/v1/orders/", strings.NewReader(`{"a":1}`))
	req.Header.Set("Idempotency-Key", "key-1")
	handler.ServeHTTP(first, req)

	if first.Code != http.StatusCreated {
		t.Fatalf("expected 201 but got %d", first.Code)
	}

	second := httptest.NewRecorder()
	replay := requestWithPattern(http.MethodPost, "/api/v1/orders", "/api/v1/orders/", strings.NewReader(`{"a":1}`))
	replay.Header.Set("Idempotency-Key", "key-1")
	handler.ServeHTTP(second, replay)

	if calls != 1 {
		t.Fatalf("handler should run once, ran %d times", calls)
	}
	if second.Code != http.StatusCreated {
		t.Fatalf("replay should carry the stored status, got %d", second.Code)
	}
	if first.Body.String() != second.Body.String() {
		t.Fatalf("replayed body differs: %q vs %q", first.Body.String(), second.Body.String())
	}
}

func TestIdempotencyRejectsKeyReuseWithDifferentBody(t *testing.T) {
	store := newFakeStore()
	handler := Idempotency(store, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))

	first := httptest.NewRecorder()
	req := requestWithPattern(http.MethodPost, "/api/v1/orders", "/api/v1/orders/", strings.NewReader(`{"a":1}`))
	req.Header.Set("Idempotency-Key", "key-1")
	handler.ServeHTTP(first, req)

	second := httptest.NewRecorder()
	reused := requestWithPattern(http.MethodPost, "/api/v1/orders", "/api/v1/orders/", strings.NewReader(`{"a":2}`))
	reused.Header.Set("Idempotency-Key", "key-1")
	handler.ServeHTTP(second, reused)

	if second.Code != http.StatusConflict {
		t.Fatalf("expected 409 on body mismatch, got %d", second.Code)
	}
}

func TestIdempotencyDoesNotRecordFailures(t *testing.T) {
	store := newFakeStore()
	fail := true
	handler := Idempotency(store, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail {
			w.WriteHeader(http.StatusPaymentRequired)
			return
		}
		w.WriteHeader(http.StatusCreated)
	}))

	first := httptest.NewRecorder()
	req := requestWithPattern(http.MethodPost, "/api/v1/orders", "/api/v1/orders/", strings.NewReader(`{"a":1}`))
	req.Header.Set("Idempotency-Key", "key-1")
	handler.ServeHTTP(first, req)

	if first.Code != http.StatusPaymentRequired {
		t.Fatalf("expected 402 but got %d", first.Code)
	}
	if len(store.data) != 0 {
		t.Fatalf("failed responses must not be recorded, stored %v", store.data)
	}

	fail = false
	retry := httptest.NewRecorder()
	retryReq := requestWithPattern(http.MethodPost, "/api/v1/orders", "/api/v1/orders/", strings.NewReader(`{"a":1}`))
	retryReq.Header.Set("Idempotency-Key", "key-1")
	handler.ServeHTTP(retry, retryReq)

	if retry.Code != http.StatusCreated {
		t.Fatalf("retry with same key should succeed, got %d", retry.Code)
	}
}

func TestIdempotencyRequiresHeaderOnGuardedRoutes(t *testing.T) {
	handler := Idempotency(newFakeStore(), nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))

	w := httptest.NewRecorder()
	req := requestWithPattern(http.MethodPost, "/api/v1/orders", "/api/v1/orders/", strings.NewReader(`{}`))
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without Idempotency-Key, got %d", w.Code)
	}
}

func TestIdempotencySkipsUnguardedRoutes(t *testing.T) {
	handler := Idempotency(newFakeStore(), nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	w := httptest.NewRecorder()
	req := requestWithPattern(http.MethodGet, "/api/v1/cart", "/api/v1/cart/", nil)
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("unguarded route must pass through, got %d", w.Code)
	}
}
