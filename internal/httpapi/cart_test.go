package httpapi_test

import (
	"net/http"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProductManagement(t *testing.T) {
	a := newAPI(t)
	a.seed("P", 10)

	code, body := a.do(http.MethodPatch, "/products/P", "seller-S", map[string]any{"price": "5.25", "quantity": 8})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "5.25", body["price"])
	assert.Equal(t, 8.0, body["quantity"])
	assert.Equal(t, "Tomatoes", body["name"])

	code, body = a.do(http.MethodPatch, "/products/P", "seller-T", map[string]any{"quantity": 1})
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "Unauthorized", body["kind"])

	code, body = a.do(http.MethodPut, "/products/P/availability", "seller-S", map[string]any{"available": false})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, false, body["available"])

	code, body = a.do(http.MethodPost, "/orders", "buyer-B", orderBody(1, "12 Farm Rd"))
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "ProductUnavailable", body["kind"])

	code, _ = a.do(http.MethodPut, "/products/P/availability", "seller-S", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, code)

	code, body = a.do(http.MethodGet, "/products?seller_id=seller-S", "", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, body["products"], 1)
	code, body = a.do(http.MethodGet, "/products?seller_id=seller-S&available=true", "", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, body["products"], 0)

	code, _ = a.do(http.MethodDelete, "/products/P", "seller-S", nil)
	require.Equal(t, http.StatusOK, code)
	code, _ = a.do(http.MethodGet, "/products/P", "", nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestDeleteProduct_WithOrdersConflicts(t *testing.T) {
	a := newAPI(t)
	a.seed("P", 10)
	code, _ := a.do(http.MethodPost, "/orders", "buyer-B", orderBody(1, "12 Farm Rd"))
	require.Equal(t, http.StatusCreated, code)

	code, body := a.do(http.MethodDelete, "/products/P", "seller-S", nil)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "ProductInUse", body["kind"])
}

func TestCartFlow(t *testing.T) {
	a := newAPI(t)
	a.seed("P", 10)
	code, _ := a.do(http.MethodPost, "/products", "seller-T", map[string]any{"id": "Q", "name": "Honey", "price": "9.50", "quantity": 3})
	require.Equal(t, http.StatusCreated, code)

	code, body := a.do(http.MethodPost, "/cart/items", "buyer-B", map[string]any{"product_id": "P", "quantity": 2})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "8.00", body["total"])

	code, body = a.do(http.MethodPost, "/cart/items", "buyer-B", map[string]any{"product_id": "Q", "quantity": 4})
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, 3.0, body["available"])

	code, _ = a.do(http.MethodPost, "/cart/items", "buyer-B", map[string]any{"product_id": "Q", "quantity": 1})
	require.Equal(t, http.StatusOK, code)
	code, body = a.do(http.MethodPut, "/cart/items/Q", "buyer-B", map[string]any{"quantity": 2})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "27.00", body["total"])

	code, body = a.do(http.MethodGet, "/cart", "buyer-B", nil)
	require.Equal(t, http.StatusOK, code)
	sellers := body["sellers"].([]any)
	require.Len(t, sellers, 2)
	assert.Equal(t, "seller-S", sellers[0].(map[string]any)["seller_id"])
	assert.Equal(t, "19.00", sellers[1].(map[string]any)["subtotal"])

	code, _ = a.do(http.MethodGet, "/cart", "", nil)
	assert.Equal(t, http.StatusForbidden, code)

	code, body = a.do(http.MethodPost, "/cart/checkout", "buyer-B", map[string]any{"fulfillment_mode": "Pickup", "pickup_date": "2026-10-20"})
	require.Equal(t, http.StatusCreated, code)
	assert.Len(t, body["orders"], 2)
	assert.Equal(t, 2.0, testutil.ToFloat64(a.orders.Created))

	code, body = a.do(http.MethodGet, "/products/P", "", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 8.0, body["quantity"])

	code, body = a.do(http.MethodGet, "/cart", "buyer-B", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 0.0, body["count"])

	code, body = a.do(http.MethodPost, "/cart/checkout", "buyer-B", map[string]any{"fulfillment_mode": "Pickup", "pickup_date": "2026-10-20"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "InvalidRequest", body["kind"])
}

func TestCart_RemoveAndClearBySeller(t *testing.T) {
	a := newAPI(t)
	a.seed("P", 10)
	a.seed("R", 10)

	for _, id := range []string{"P", "R"} {
		code, _ := a.do(http.MethodPost, "/cart/items", "buyer-B", map[string]any{"product_id": id, "quantity": 1})
		require.Equal(t, http.StatusOK, code)
	}
	code, body := a.do(http.MethodDelete, "/cart/items/P", "buyer-B", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 1.0, body["count"])

	code, body = a.do(http.MethodDelete, "/cart/items/P", "buyer-B", nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "ProductNotFound", body["kind"])

	code, _ = a.do(http.MethodDelete, "/cart?seller_id=seller-T", "buyer-B", nil)
	require.Equal(t, http.StatusOK, code)
	_, body = a.do(http.MethodGet, "/cart", "buyer-B", nil)
	assert.Equal(t, 1.0, body["count"])

	code, _ = a.do(http.MethodDelete, "/cart?seller_id=seller-S", "buyer-B", nil)
	require.Equal(t, http.StatusOK, code)
	_, body = a.do(http.MethodGet, "/cart", "buyer-B", nil)
	assert.Equal(t, 0.0, body["count"])
}
