package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/nazeru/agrimarket-go/internal/order/domain"
	"github.com/nazeru/agrimarket-go/internal/order/tx"
	"github.com/nazeru/agrimarket-go/pkg/idempotency"
	"github.com/nazeru/agrimarket-go/pkg/metrics"
)

// ActorHeader carries the caller identity set by the upstream auth proxy.
const ActorHeader = "X-Actor-ID"

type OrderService interface {
	CreateProduct(ctx context.Context, p domain.Product) (domain.Product, error)
	Product(ctx context.Context, id domain.ProductID) (domain.Product, error)
	UpdateProduct(ctx context.Context, sellerID string, id domain.ProductID, u domain.ProductUpdate) (domain.Product, error)
	SetProductAvailability(ctx context.Context, sellerID string, id domain.ProductID, available bool) (domain.Product, error)
	DeleteProduct(ctx context.Context, sellerID string, id domain.ProductID) error
	ListProducts(ctx context.Context, f domain.ProductFilter) ([]domain.Product, error)
	Cart(ctx context.Context, buyerID string) (domain.Cart, error)
	AddToCart(ctx context.Context, buyerID string, productID domain.ProductID, qty int) (domain.Cart, error)
	UpdateCartItem(ctx context.Context, buyerID string, productID domain.ProductID, qty int) (domain.Cart, error)
	RemoveFromCart(ctx context.Context, buyerID string, productID domain.ProductID) (domain.Cart, error)
	ClearCart(ctx context.Context, buyerID, sellerID string) error
	CheckoutCart(ctx context.Context, in tx.CartCheckoutInput) ([]tx.OrderSummary, error)
	CreateOrder(ctx context.Context, in tx.CreateOrderInput) (tx.OrderSummary, error)
	Checkout(ctx context.Context, in tx.CheckoutInput) ([]tx.OrderSummary, error)
	CancelOrder(ctx context.Context, orderID domain.OrderID, sellerID, reason string) (domain.Order, error)
	UpdateStatus(ctx context.Context, orderID domain.OrderID, sellerID, rawStatus string) (tx.StatusChange, error)
	UpdatePaymentStatus(ctx context.Context, orderID domain.OrderID, sellerID, rawStatus string) (domain.Order, error)
	GetOrder(ctx context.Context, orderID domain.OrderID, actorID string) (tx.OrderDetails, error)
	ListOrders(ctx context.Context, f domain.OrderFilter) ([]domain.Order, error)
	Timeline(ctx context.Context, orderID domain.OrderID, actorID string) ([]domain.TimelineEntry, error)
	ValidateForProcessing(ctx context.Context, orderID domain.OrderID, actorID string) (domain.Validation, error)
}

type Handler struct {
	svc     OrderService
	log     *zap.Logger
	server  *metrics.ServerMetrics
	orders  *metrics.OrderMetrics
	healthy func(ctx context.Context) error
}

func New(svc OrderService, log *zap.Logger, server *metrics.ServerMetrics, orders *metrics.OrderMetrics, healthy func(ctx context.Context) error) *Handler {
	return &Handler{svc: svc, log: log, server: server, orders: orders, healthy: healthy}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	status, resp := errorResponse(err)
	h.orders.Rejections.WithLabelValues(resp.Kind).Inc()
	if status == http.StatusInternalServerError {
		h.log.Error("request failed", zap.Error(err))
	}
	writeJSON(w, status, resp)
}

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return domain.Errorf(domain.KindInvalidRequest, "invalid json: %v", err)
	}
	return nil
}

func actor(r *http.Request) (string, error) {
	id := strings.TrimSpace(r.Header.Get(ActorHeader))
	if id == "" {
		return "", domain.Errorf(domain.KindUnauthorized, "unauthorized: %s header is required", ActorHeader)
	}
	return id, nil
}

func orderID(r *http.Request) domain.OrderID {
	return domain.OrderID(chi.URLParam(r, "id"))
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if h.healthy != nil {
		if err := h.healthy(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	seller, err := actor(r)
	if err != nil {
		h.fail(w, err)
		return
	}
	var req CreateProductRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, err)
		return
	}
	price, err := domain.MoneyFromDecimal(req.Price)
	if err != nil {
		h.fail(w, domain.Errorf(domain.KindInvalidRequest, "price: %v", err))
		return
	}
	available := true
	if req.Available != nil {
		available = *req.Available
	}
	p, err := h.svc.CreateProduct(r.Context(), domain.Product{
		ID:        domain.ProductID(req.ID),
		SellerID:  seller,
		Name:      req.Name,
		Unit:      req.Unit,
		Price:     price,
		Quantity:  req.Quantity,
		Available: available,
	})
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, productResponse(p))
}

func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.svc.Product(r.Context(), domain.ProductID(chi.URLParam(r, "id")))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, productResponse(p))
}

func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	buyer, err := actor(r)
	if err != nil {
		h.fail(w, err)
		return
	}
	key, err := idempotency.Key(r)
	if err != nil {
		h.fail(w, domain.Errorf(domain.KindInvalidRequest, "%v", err))
		return
	}
	var req CreateOrderRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, err)
		return
	}
	items := make([]tx.ItemInput, 0, len(req.Items))
	for _, it := range req.Items {
		in, err := itemInput(it)
		if err != nil {
			h.fail(w, err)
			return
		}
		items = append(items, in)
	}

	s, err := h.svc.CreateOrder(r.Context(), tx.CreateOrderInput{
		BuyerID:             buyer,
		SellerID:            req.SellerID,
		Items:               items,
		Fulfillment:         req.fulfillment(),
		SpecialInstructions: req.SpecialInstructions,
		IdempotencyKey:      key,
	})
	if err != nil {
		h.fail(w, err)
		return
	}
	status := http.StatusCreated
	if s.Replayed {
		status = http.StatusOK
	} else {
		h.orders.Created.Inc()
	}
	writeJSON(w, status, summaryResponse(s))
}

func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	buyer, err := actor(r)
	if err != nil {
		h.fail(w, err)
		return
	}
	var req CheckoutRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, err)
		return
	}
	items := make([]tx.CheckoutItem, 0, len(req.Items))
	for _, it := range req.Items {
		in, err := itemInput(it)
		if err != nil {
			h.fail(w, err)
			return
		}
		items = append(items, tx.CheckoutItem{SellerID: it.SellerID, ItemInput: in})
	}

	out, err := h.svc.Checkout(r.Context(), tx.CheckoutInput{
		BuyerID:             buyer,
		Items:               items,
		Fulfillment:         req.fulfillment(),
		SpecialInstructions: req.SpecialInstructions,
	})
	if err != nil {
		h.fail(w, err)
		return
	}
	resp := make([]OrderSummaryResponse, 0, len(out))
	for _, s := range out {
		resp = append(resp, summaryResponse(s))
		h.orders.Created.Inc()
	}
	writeJSON(w, http.StatusCreated, map[string]any{"orders": resp})
}

func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	id, err := actor(r)
	if err != nil {
		h.fail(w, err)
		return
	}
	f, err := parseFilter(r)
	if err != nil {
		h.fail(w, err)
		return
	}
	if r.URL.Query().Get("role") == "seller" {
		f.SellerID = id
	} else {
		f.BuyerID = id
	}

	orders, err := h.svc.ListOrders(r.Context(), f)
	if err != nil {
		h.fail(w, err)
		return
	}
	resp := make([]OrderResponse, 0, len(orders))
	for _, o := range orders {
		resp = append(resp, orderResponse(o))
	}
	writeJSON(w, http.StatusOK, map[string]any{"orders": resp})
}

func parseFilter(r *http.Request) (domain.OrderFilter, error) {
	q := r.URL.Query()
	f := domain.OrderFilter{
		Status:        domain.OrderStatus(q.Get("status")),
		PaymentStatus: domain.PaymentStatus(q.Get("payment_status")),
	}
	for name, dst := range map[string]*int{"limit": &f.Limit, "offset": &f.Offset} {
		if raw := q.Get(name); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil {
				return domain.OrderFilter{}, domain.Errorf(domain.KindInvalidRequest, "%s must be an integer", name)
			}
			*dst = n
		}
	}
	for name, dst := range map[string]**time.Time{"from": &f.CreatedFrom, "to": &f.CreatedTo} {
		if raw := q.Get(name); raw != "" {
			t, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				return domain.OrderFilter{}, domain.Errorf(domain.KindInvalidRequest, "%s must be an RFC 3339 timestamp", name)
			}
			*dst = &t
		}
	}
	return f, nil
}

func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id, err := actor(r)
	if err != nil {
		h.fail(w, err)
		return
	}
	d, err := h.svc.GetOrder(r.Context(), orderID(r), id)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, detailsResponse(d))
}

func (h *Handler) Timeline(w http.ResponseWriter, r *http.Request) {
	id, err := actor(r)
	if err != nil {
		h.fail(w, err)
		return
	}
	tl, err := h.svc.Timeline(r.Context(), orderID(r), id)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"order_id": orderID(r), "timeline": tl})
}

func (h *Handler) Validation(w http.ResponseWriter, r *http.Request) {
	id, err := actor(r)
	if err != nil {
		h.fail(w, err)
		return
	}
	v, err := h.svc.ValidateForProcessing(r.Context(), orderID(r), id)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	seller, err := actor(r)
	if err != nil {
		h.fail(w, err)
		return
	}
	var req StatusRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, err)
		return
	}
	ch, err := h.svc.UpdateStatus(r.Context(), orderID(r), seller, req.Status)
	if err != nil {
		h.fail(w, err)
		return
	}
	if ch.From != ch.To {
		h.orders.Transitions.WithLabelValues(string(ch.From), string(ch.To)).Inc()
		if ch.To == domain.OrderStatusCancelled {
			h.orders.Cancelled.Inc()
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"from_status": ch.From,
		"order":       orderResponse(ch.Order),
	})
}

func (h *Handler) UpdatePaymentStatus(w http.ResponseWriter, r *http.Request) {
	seller, err := actor(r)
	if err != nil {
		h.fail(w, err)
		return
	}
	var req PaymentStatusRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, err)
		return
	}
	o, err := h.svc.UpdatePaymentStatus(r.Context(), orderID(r), seller, req.PaymentStatus)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "order": orderResponse(o)})
}

func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	seller, err := actor(r)
	if err != nil {
		h.fail(w, err)
		return
	}
	var req CancelRequest
	// the body is optional
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		h.fail(w, domain.Errorf(domain.KindInvalidRequest, "invalid json: %v", err))
		return
	}
	o, err := h.svc.CancelOrder(r.Context(), orderID(r), seller, req.Reason)
	if err != nil {
		h.fail(w, err)
		return
	}
	h.orders.Cancelled.Inc()
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "order": orderResponse(o)})
}
