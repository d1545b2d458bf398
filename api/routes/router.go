package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vendorhub/vendorhub-backend/api/controllers"
	"github.com/vendorhub/vendorhub-backend/api/middleware"
	"github.com/vendorhub/vendorhub-backend/internal/cancellation"
	cartsvc "github.com/vendorhub/vendorhub-backend/internal/cart"
	checkoutsvc "github.com/vendorhub/vendorhub-backend/internal/checkout"
	"github.com/vendorhub/vendorhub-backend/internal/notifications"
	internalorders "github.com/vendorhub/vendorhub-backend/internal/orders"
	"github.com/vendorhub/vendorhub-backend/internal/reservation"
	"github.com/vendorhub/vendorhub-backend/pkg/config"
	"github.com/vendorhub/vendorhub-backend/pkg/enums"
	"github.com/vendorhub/vendorhub-backend/pkg/logger"
	"github.com/vendorhub/vendorhub-backend/pkg/db"
	pkgredis "github.com/vendorhub/vendorhub-backend/pkg/redis"
)

// Deps bundles everything the router needs so cmd/api wiring stays flat.
type Deps struct {
	Config       *config.Config
	Logger       *logger.Logger
	DB           db.Pinger
	Redis        *pkgredis.Client
	Cart         cartsvc.Service
	Reservations reservation.Service
	Checkout     checkoutsvc.Service
	Orders       internalorders.Service
	OrdersRepo   internalorders.Repository
	Cancellation cancellation.Service
	Notifier     notifications.Notifier
}

func NewRouter(deps Deps) http.Handler {
	cfg := deps.Config
	logg := deps.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps.DB, deps.Redis))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Actor(logg))
		r.Use(middleware.Idempotency(deps.Redis, logg))

		r.Route("/cart", func(r chi.Router) {
			r.Use(middleware.RequireRole(enums.ActorRoleCustomer, logg))
			r.Get("/", controllers.CartFetch(deps.Cart, logg))
			r.Post("/items", controllers.CartAddItem(deps.Cart, logg))
			r.Patch("/items/{productId}", controllers.CartUpdateItem(deps.Cart, logg))
			r.Delete("/items/{productId}", controllers.CartRemoveItem(deps.Cart, logg))
			r.Delete("/", controllers.CartClear(deps.Cart, logg))
			r.Post("/merge", controllers.CartMerge(deps.Cart, logg))
			r.Post("/validate", controllers.CartValidate(deps.Cart, logg))
		})

		r.Route("/reservations", func(r chi.Router) {
			r.Use(middleware.RequireRole(enums.ActorRoleCustomer, logg))
			r.Post("/", controllers.ReservationCreate(deps.Reservations, logg))
			r.Delete("/", controllers.ReservationRelease(deps.Reservations, logg))
		})

		r.Route("/orders", func(r chi.Router) {
			r.With(middleware.RequireRole(enums.ActorRoleCustomer, logg)).
				Post("/", controllers.OrderCreate(deps.Checkout, deps.Notifier, logg))
			r.With(middleware.RequireRole(enums.ActorRoleCustomer, logg)).
				Get("/", controllers.OrderList(deps.Orders, logg))
			r.With(middleware.RequireRole(enums.ActorRoleCustomer, logg)).
				Get("/{orderId}", controllers.OrderDetail(deps.Orders, logg))
			// cancellation authorizes per role internally; admins may cancel too
			r.Post("/{orderId}/cancel", controllers.OrderCancel(deps.Cancellation, deps.Notifier, logg))
		})

		r.Route("/vendor/orders", func(r chi.Router) {
			r.Use(middleware.RequireRole(enums.ActorRoleVendor, logg))
			r.Get("/", controllers.VendorOrderList(deps.Orders, logg))
			r.Patch("/{vendorOrderId}/status", controllers.VendorOrderStatus(deps.Orders, deps.OrdersRepo, deps.Notifier, logg))
		})
	})

	return r
}
