package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/nazeru/agrimarket-go/pkg/metrics"
)

// instrument records request count by status and latency under name.
func (h *Handler) instrument(name string, fn http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		fn(ww, r)
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		h.server.Requests.WithLabelValues(name, strconv.Itoa(status)).Inc()
		h.server.LatencyMS.WithLabelValues(name).Observe(float64(time.Since(start).Milliseconds()))
	}
}

func (h *Handler) Router(gatherer prometheus.Gatherer, timeout time.Duration) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(timeout))

	r.Get("/health", h.Health)
	r.Method(http.MethodGet, "/metrics", metrics.Handler(gatherer))

	r.Post("/products", h.instrument("create_product", h.CreateProduct))
	r.Get("/products", h.instrument("list_products", h.ListProducts))
	r.Route("/products/{id}", func(r chi.Router) {
		r.Get("/", h.instrument("get_product", h.GetProduct))
		r.Patch("/", h.instrument("update_product", h.UpdateProduct))
		r.Delete("/", h.instrument("delete_product", h.DeleteProduct))
		r.Put("/availability", h.instrument("product_availability", h.SetAvailability))
	})

	r.Route("/cart", func(r chi.Router) {
		r.Get("/", h.instrument("get_cart", h.GetCart))
		r.Delete("/", h.instrument("clear_cart", h.ClearCart))
		r.Post("/items", h.instrument("add_to_cart", h.AddToCart))
		r.Put("/items/{id}", h.instrument("update_cart_item", h.UpdateCartItem))
		r.Delete("/items/{id}", h.instrument("remove_from_cart", h.RemoveFromCart))
		r.Post("/checkout", h.instrument("checkout_cart", h.CheckoutCart))
	})

	r.Post("/orders", h.instrument("create_order", h.CreateOrder))
	r.Post("/checkout", h.instrument("checkout", h.Checkout))
	r.Get("/orders", h.instrument("list_orders", h.ListOrders))
	r.Route("/orders/{id}", func(r chi.Router) {
		r.Get("/", h.instrument("get_order", h.GetOrder))
		r.Get("/timeline", h.instrument("order_timeline", h.Timeline))
		r.Get("/validation", h.instrument("order_validation", h.Validation))
		r.Put("/status", h.instrument("update_status", h.UpdateStatus))
		r.Put("/payment-status", h.instrument("update_payment_status", h.UpdatePaymentStatus))
		r.Post("/cancel", h.instrument("cancel_order", h.CancelOrder))
	})
	return r
}
