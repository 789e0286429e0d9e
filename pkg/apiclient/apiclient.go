// Package apiclient is a thin HTTP client for the order API, used by the CLI
// and the bench runner.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/nazeru/agrimarket-go/internal/httpapi"
	"github.com/nazeru/agrimarket-go/pkg/idempotency"
)

// StatusError is returned for any non-2xx response.
type StatusError struct {
	Code int
	Body httpapi.ErrorResponse
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("status %d: %s: %s", e.Code, e.Body.Kind, e.Body.Message)
}

type Client struct {
	base string
	http *http.Client
}

func New(baseURL string, timeout time.Duration) *Client {
	return &Client{base: strings.TrimRight(baseURL, "/"), http: &http.Client{Timeout: timeout}}
}

// Call is one request made as actor. Key, when set, is sent as the
// idempotency key.
type Call struct {
	Method string
	Path   string
	Actor  string
	Key    string
	Body   any
}

// Do sends c and decodes a 2xx body into out. It returns the status code even
// when err is non-nil.
func (cl *Client) Do(ctx context.Context, c Call, out any) (int, error) {
	var body io.Reader
	if c.Body != nil {
		data, err := json.Marshal(c.Body)
		if err != nil {
			return 0, err
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, c.Method, cl.base+c.Path, body)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.Actor != "" {
		req.Header.Set(httpapi.ActorHeader, c.Actor)
	}
	if c.Key != "" {
		req.Header.Set(idempotency.Header, c.Key)
	}

	resp, err := cl.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		se := &StatusError{Code: resp.StatusCode}
		_ = json.NewDecoder(resp.Body).Decode(&se.Body)
		return resp.StatusCode, se
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

func (cl *Client) CreateProduct(ctx context.Context, seller string, req httpapi.CreateProductRequest) (httpapi.ProductResponse, error) {
	var out httpapi.ProductResponse
	_, err := cl.Do(ctx, Call{Method: http.MethodPost, Path: "/products", Actor: seller, Body: req}, &out)
	return out, err
}

func (cl *Client) Product(ctx context.Context, id string) (httpapi.ProductResponse, error) {
	var out httpapi.ProductResponse
	_, err := cl.Do(ctx, Call{Method: http.MethodGet, Path: "/products/" + id}, &out)
	return out, err
}

func (cl *Client) CreateOrder(ctx context.Context, buyer, key string, req httpapi.CreateOrderRequest) (httpapi.OrderSummaryResponse, int, error) {
	var out httpapi.OrderSummaryResponse
	code, err := cl.Do(ctx, Call{Method: http.MethodPost, Path: "/orders", Actor: buyer, Key: key, Body: req}, &out)
	return out, code, err
}

func (cl *Client) Order(ctx context.Context, actor, id string) (httpapi.OrderResponse, error) {
	var out httpapi.OrderResponse
	_, err := cl.Do(ctx, Call{Method: http.MethodGet, Path: "/orders/" + id, Actor: actor}, &out)
	return out, err
}

func (cl *Client) UpdateStatus(ctx context.Context, seller, id, status string) error {
	_, err := cl.Do(ctx, Call{Method: http.MethodPut, Path: "/orders/" + id + "/status", Actor: seller, Body: httpapi.StatusRequest{Status: status}}, nil)
	return err
}

func (cl *Client) Cancel(ctx context.Context, seller, id, reason string) error {
	_, err := cl.Do(ctx, Call{Method: http.MethodPost, Path: "/orders/" + id + "/cancel", Actor: seller, Body: httpapi.CancelRequest{Reason: reason}}, nil)
	return err
}

func (cl *Client) SetAvailability(ctx context.Context, seller, id string, available bool) (httpapi.ProductResponse, error) {
	var out httpapi.ProductResponse
	_, err := cl.Do(ctx, Call{Method: http.MethodPut, Path: "/products/" + id + "/availability", Actor: seller, Body: httpapi.AvailabilityRequest{Available: &available}}, &out)
	return out, err
}

func (cl *Client) AddToCart(ctx context.Context, buyer, productID string, qty int) (httpapi.CartResponse, error) {
	var out httpapi.CartResponse
	_, err := cl.Do(ctx, Call{Method: http.MethodPost, Path: "/cart/items", Actor: buyer, Body: httpapi.CartItemRequest{ProductID: productID, Quantity: qty}}, &out)
	return out, err
}

func (cl *Client) Cart(ctx context.Context, buyer string) (httpapi.CartResponse, error) {
	var out httpapi.CartResponse
	_, err := cl.Do(ctx, Call{Method: http.MethodGet, Path: "/cart", Actor: buyer}, &out)
	return out, err
}

func (cl *Client) CheckoutCart(ctx context.Context, buyer string, req httpapi.CartCheckoutRequest) ([]httpapi.OrderSummaryResponse, error) {
	var out struct {
		Orders []httpapi.OrderSummaryResponse `json:"orders"`
	}
	_, err := cl.Do(ctx, Call{Method: http.MethodPost, Path: "/cart/checkout", Actor: buyer, Body: req}, &out)
	return out.Orders, err
}
