package httpapi

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nazeru/agrimarket-go/internal/order/domain"
	"github.com/nazeru/agrimarket-go/internal/order/tx"
)

func productID(r *http.Request) domain.ProductID {
	return domain.ProductID(chi.URLParam(r, "id"))
}

func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := domain.ProductFilter{SellerID: q.Get("seller_id"), Search: q.Get("q")}
	if raw := q.Get("available"); raw != "" {
		ok, err := strconv.ParseBool(raw)
		if err != nil {
			h.fail(w, domain.Errorf(domain.KindInvalidRequest, "available must be a boolean"))
			return
		}
		f.AvailableOnly = ok
	}
	for name, dst := range map[string]*int{"limit": &f.Limit, "offset": &f.Offset} {
		if raw := q.Get(name); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil {
				h.fail(w, domain.Errorf(domain.KindInvalidRequest, "%s must be an integer", name))
				return
			}
			*dst = n
		}
	}

	products, err := h.svc.ListProducts(r.Context(), f)
	if err != nil {
		h.fail(w, err)
		return
	}
	resp := make([]ProductResponse, 0, len(products))
	for _, p := range products {
		resp = append(resp, productResponse(p))
	}
	writeJSON(w, http.StatusOK, map[string]any{"products": resp})
}

func (h *Handler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	seller, err := actor(r)
	if err != nil {
		h.fail(w, err)
		return
	}
	var req UpdateProductRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, err)
		return
	}
	u, err := req.update()
	if err != nil {
		h.fail(w, err)
		return
	}
	p, err := h.svc.UpdateProduct(r.Context(), seller, productID(r), u)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, productResponse(p))
}

func (h *Handler) SetAvailability(w http.ResponseWriter, r *http.Request) {
	seller, err := actor(r)
	if err != nil {
		h.fail(w, err)
		return
	}
	var req AvailabilityRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, err)
		return
	}
	if req.Available == nil {
		h.fail(w, domain.Errorf(domain.KindInvalidRequest, "available is required"))
		return
	}
	p, err := h.svc.SetProductAvailability(r.Context(), seller, productID(r), *req.Available)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, productResponse(p))
}

func (h *Handler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	seller, err := actor(r)
	if err != nil {
		h.fail(w, err)
		return
	}
	if err := h.svc.DeleteProduct(r.Context(), seller, productID(r)); err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	buyer, err := actor(r)
	if err != nil {
		h.fail(w, err)
		return
	}
	c, err := h.svc.Cart(r.Context(), buyer)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cartResponse(c))
}

func (h *Handler) AddToCart(w http.ResponseWriter, r *http.Request) {
	buyer, err := actor(r)
	if err != nil {
		h.fail(w, err)
		return
	}
	var req CartItemRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, err)
		return
	}
	c, err := h.svc.AddToCart(r.Context(), buyer, domain.ProductID(req.ProductID), req.Quantity)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cartResponse(c))
}

func (h *Handler) UpdateCartItem(w http.ResponseWriter, r *http.Request) {
	buyer, err := actor(r)
	if err != nil {
		h.fail(w, err)
		return
	}
	var req CartItemRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, err)
		return
	}
	c, err := h.svc.UpdateCartItem(r.Context(), buyer, productID(r), req.Quantity)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cartResponse(c))
}

func (h *Handler) RemoveFromCart(w http.ResponseWriter, r *http.Request) {
	buyer, err := actor(r)
	if err != nil {
		h.fail(w, err)
		return
	}
	c, err := h.svc.RemoveFromCart(r.Context(), buyer, productID(r))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cartResponse(c))
}

// ClearCart empties the cart; ?seller_id= limits it to one seller's items.
func (h *Handler) ClearCart(w http.ResponseWriter, r *http.Request) {
	buyer, err := actor(r)
	if err != nil {
		h.fail(w, err)
		return
	}
	if err := h.svc.ClearCart(r.Context(), buyer, r.URL.Query().Get("seller_id")); err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (h *Handler) CheckoutCart(w http.ResponseWriter, r *http.Request) {
	buyer, err := actor(r)
	if err != nil {
		h.fail(w, err)
		return
	}
	var req CartCheckoutRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, err)
		return
	}
	out, err := h.svc.CheckoutCart(r.Context(), tx.CartCheckoutInput{
		BuyerID:             buyer,
		SellerID:            req.SellerID,
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
