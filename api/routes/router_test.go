package routes

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	cartsvc "github.com/vendorhub/vendorhub-backend/internal/cart"
	"github.com/vendorhub/vendorhub-backend/pkg/config"
	"github.com/vendorhub/vendorhub-backend/pkg/enums"
	"github.com/vendorhub/vendorhub-backend/pkg/logger"
)

type stubCartService struct{}

func (stubCartService) Get(ctx context.Context, customerID uuid.UUID) (*cartsvc.View, error) {
	return &cartsvc.View{Cart: &cartsvc.Cart{CustomerID: customerID}}, nil
}
func (stubCartService) AddItem(ctx context.Context, customerID, productID uuid.UUID, qty int) (*cartsvc.View, error) {
	return nil, nil
}
func (stubCartService) UpdateItemQty(ctx context.Context, customerID, productID uuid.UUID, qty int) (*cartsvc.View, error) {
	return nil, nil
}
func (stubCartService) RemoveItem(ctx context.Context, customerID, productID uuid.UUID) (*cartsvc.View, error) {
	return nil, nil
}
func (stubCartService) Merge(ctx context.Context, fromID, toID uuid.UUID) (*cartsvc.View, error) {
	return nil, nil
}
func (stubCartService) Clear(ctx context.Context, customerID uuid.UUID) error {
	return nil
}
func (stubCartService) Snapshot(ctx context.Context, customerID uuid.UUID) (*cartsvc.Cart, error) {
	return nil, nil
}
func (stubCartService) Validate(ctx context.Context, customerID uuid.UUID) (*cartsvc.Validation, error) {
	return &cartsvc.Validation{IsValid: true, CanProceedToCheckout: true}, nil
}

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	return NewRouter(Deps{
		Config: &config.Config{App: config.AppConfig{Env: "test"}},
		Logger: logger.New(logger.Options{ServiceName: "router-test"}),
		Cart:   stubCartService{},
	})
}

func actorHeaders(req *http.Request, role enums.ActorRole) {
	req.Header.Set("X-Actor-Id", uuid.NewString())
	req.Header.Set("X-Actor-Role", role.String())
}

func TestHealthLive(t *testing.T) {
	w := httptest.NewRecorder()
	newTestRouter(t).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "test", w.Header().Get("X-VendorHub-Env"))
}

func TestAPIRequiresActorIdentity(t *testing.T) {
	w := httptest.NewRecorder()
	newTestRouter(t).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil))
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAPIRejectsUnknownRole(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil)
	req.Header.Set("X-Actor-Id", uuid.NewString())
	req.Header.Set("X-Actor-Role", "superuser")

	w := httptest.NewRecorder()
	newTestRouter(t).ServeHTTP(w, req)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCartRoutesRequireCustomerRole(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil)
	actorHeaders(req, enums.ActorRoleVendor)

	w := httptest.NewRecorder()
	newTestRouter(t).ServeHTTP(w, req)
	require.Equal(t, http.StatusForbidden, w.Code)
}

func TestCartFetchForCustomer(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil)
	actorHeaders(req, enums.ActorRoleCustomer)

	w := httptest.NewRecorder()
	newTestRouter(t).ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "cart")
}

func TestUnknownRouteIs404(t *testing.T) {
	w := httptest.NewRecorder()
	newTestRouter(t).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nope", nil))
	require.Equal(t, http.StatusNotFound, w.Code)
}
