package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"gorm.io/gorm"

	"github.com/luiscamargo/farmfresh-backend/api/controllers"
	cartcontrollers "github.com/luiscamargo/farmfresh-backend/api/controllers/cart"
	checkoutcontrollers "github.com/luiscamargo/farmfresh-backend/api/controllers/checkout"
	farmercontrollers "github.com/luiscamargo/farmfresh-backend/api/controllers/farmer"
	ordercontrollers "github.com/luiscamargo/farmfresh-backend/api/controllers/orders"
	productcontrollers "github.com/luiscamargo/farmfresh-backend/api/controllers/products"
	webhookcontrollers "github.com/luiscamargo/farmfresh-backend/api/controllers/webhooks"
	"github.com/luiscamargo/farmfresh-backend/api/middleware"
	cartsvc "github.com/luiscamargo/farmfresh-backend/internal/cart"
	"github.com/luiscamargo/farmfresh-backend/internal/catalog"
	checkoutsvc "github.com/luiscamargo/farmfresh-backend/internal/checkout"
	ordersvc "github.com/luiscamargo/farmfresh-backend/internal/orders"
	"github.com/luiscamargo/farmfresh-backend/internal/payments"
	"github.com/luiscamargo/farmfresh-backend/pkg/config"
	"github.com/luiscamargo/farmfresh-backend/pkg/enums"
	"github.com/luiscamargo/farmfresh-backend/pkg/logger"
	"github.com/luiscamargo/farmfresh-backend/pkg/redis"
	pkgstripe "github.com/luiscamargo/farmfresh-backend/pkg/stripe"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	db *gorm.DB,
	redisClient *redis.Client,
	catalogService *catalog.Service,
	cartService *cartsvc.Service,
	checkoutService *checkoutsvc.Service,
	orderService *ordersvc.Service,
	paymentService *payments.Service,
	stripeClient *pkgstripe.Client,
	webhookGuard *payments.Guard,
) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, db, redisClient, logg))
	})

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/stripe", webhookcontrollers.StripeWebhook(paymentService, stripeClient, webhookGuard, logg))
	})

	// Public storefront catalog.
	r.Route("/api/v1/products", func(r chi.Router) {
		r.Get("/", productcontrollers.List(catalogService, logg))
		r.Get("/{productID}", productcontrollers.Get(catalogService, logg))
	})

	// Guest carts need only the session header; signed-in buyers are
	// identified by their token when present.
	r.Route("/api/v1/cart", func(r chi.Router) {
		r.Use(middleware.GuestSession())
		r.Use(middleware.OptionalAuth(cfg.JWT, logg))

		r.Get("/", cartcontrollers.Fetch(cartService, logg))
		r.Post("/items", cartcontrollers.AddItem(cartService, logg))
		r.Patch("/items/{productID}", cartcontrollers.UpdateItem(cartService, logg))
		r.Delete("/items/{productID}", cartcontrollers.RemoveItem(cartService, logg))
		r.Get("/summary", cartcontrollers.Summary(cartService, logg))
		r.Get("/validate", cartcontrollers.Validate(cartService, logg))
		r.Delete("/", cartcontrollers.Clear(cartService, logg))

		r.With(middleware.Auth(cfg.JWT, logg)).Post("/merge", cartcontrollers.Merge(cartService, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))

		r.Route("/checkout", func(r chi.Router) {
			r.Post("/quote", checkoutcontrollers.Quote(checkoutService, logg))
			r.Post("/", checkoutcontrollers.Submit(checkoutService, orderService, paymentService, logg))
		})

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", ordercontrollers.List(orderService, logg))
			r.Get("/{orderID}", ordercontrollers.Get(orderService, logg))
			r.Post("/{orderID}/cancel", ordercontrollers.Cancel(orderService, logg))
			r.Post("/{orderID}/retry-payment", ordercontrollers.RetryPayment(paymentService, logg))
		})

		r.Route("/farmer", func(r chi.Router) {
			r.Use(middleware.RequireRole(logg, string(enums.UserRoleFarmer)))

			r.Post("/products", productcontrollers.Create(catalogService, logg))
			r.Patch("/products/{productID}", productcontrollers.Update(catalogService, logg))
			r.Delete("/products/{productID}", productcontrollers.Deactivate(catalogService, logg))
			r.Post("/products/{productID}/restock", productcontrollers.Restock(catalogService, logg))

			r.Get("/orders", farmercontrollers.Orders(orderService, logg))
			r.Patch("/orders/{orderID}/items/{itemID}", farmercontrollers.UpdateFulfillment(orderService, logg))
			r.Post("/orders/bulk-fulfillment", farmercontrollers.BulkFulfillment(orderService, logg))
			r.Post("/orders/{orderID}/shipping-label", farmercontrollers.ShippingLabel(orderService, logg))
			r.Get("/analytics", farmercontrollers.Analytics(orderService, logg))
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.RequireRole(logg, string(enums.UserRoleAdmin)))

			r.Post("/orders/bulk-status", ordercontrollers.BulkStatus(orderService, logg))
			r.Post("/orders/{orderID}/refund", ordercontrollers.Refund(paymentService, logg))
		})
	})

	return r
}
