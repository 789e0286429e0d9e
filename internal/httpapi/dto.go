package httpapi

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/nazeru/agrimarket-go/internal/order/domain"
	"github.com/nazeru/agrimarket-go/internal/order/tx"
)

type ItemRequest struct {
	SellerID  string           `json:"seller_id,omitempty"`
	ProductID string           `json:"product_id"`
	Quantity  int              `json:"quantity"`
	UnitPrice *decimal.Decimal `json:"unit_price"`
}

type FulfillmentRequest struct {
	FulfillmentMode     string `json:"fulfillment_mode"`
	DeliveryAddress     string `json:"delivery_address,omitempty"`
	PickupDate          string `json:"pickup_date,omitempty"`
	SpecialInstructions string `json:"special_instructions,omitempty"`
}

func (f FulfillmentRequest) fulfillment() domain.Fulfillment {
	return domain.Fulfillment{
		Mode:            domain.FulfillmentMode(f.FulfillmentMode),
		DeliveryAddress: f.DeliveryAddress,
		PickupDate:      f.PickupDate,
	}
}

type CreateOrderRequest struct {
	SellerID string        `json:"seller_id"`
	Items    []ItemRequest `json:"items"`
	FulfillmentRequest
}

type CheckoutRequest struct {
	Items []ItemRequest `json:"items"`
	FulfillmentRequest
}

type CreateProductRequest struct {
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name"`
	Unit      string          `json:"unit"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity"`
	Available *bool           `json:"available,omitempty"`
}

type UpdateProductRequest struct {
	Name      *string          `json:"name,omitempty"`
	Unit      *string          `json:"unit,omitempty"`
	Price     *decimal.Decimal `json:"price,omitempty"`
	Quantity  *int             `json:"quantity,omitempty"`
	Available *bool            `json:"available,omitempty"`
}

func (r UpdateProductRequest) update() (domain.ProductUpdate, error) {
	u := domain.ProductUpdate{Name: r.Name, Unit: r.Unit, Quantity: r.Quantity, Available: r.Available}
	if r.Price != nil {
		m, err := domain.MoneyFromDecimal(*r.Price)
		if err != nil {
			return domain.ProductUpdate{}, domain.Errorf(domain.KindInvalidRequest, "price: %v", err)
		}
		u.Price = &m
	}
	return u, nil
}

type AvailabilityRequest struct {
	Available *bool `json:"available"`
}

type CartItemRequest struct {
	ProductID string `json:"product_id,omitempty"`
	Quantity  int    `json:"quantity"`
}

type CartCheckoutRequest struct {
	SellerID string `json:"seller_id,omitempty"`
	FulfillmentRequest
}

type StatusRequest struct {
	Status string `json:"status"`
}

type PaymentStatusRequest struct {
	PaymentStatus string `json:"payment_status"`
}

type CancelRequest struct {
	Reason string `json:"reason"`
}

func itemInput(it ItemRequest) (tx.ItemInput, error) {
	in := tx.ItemInput{ProductID: domain.ProductID(it.ProductID), Quantity: it.Quantity}
	if it.UnitPrice != nil {
		m, err := domain.MoneyFromDecimal(*it.UnitPrice)
		if err != nil {
			return tx.ItemInput{}, domain.Errorf(domain.KindInvalidItem, "product %s: %v", it.ProductID, err)
		}
		in.UnitPrice = &m
	}
	return in, nil
}

type OrderSummaryResponse struct {
	OrderID     string `json:"order_id"`
	OrderNumber string `json:"order_number"`
	SellerID    string `json:"seller_id"`
	Total       string `json:"total"`
	ItemCount   int    `json:"item_count"`
	Replayed    bool   `json:"replayed,omitempty"`
}

func summaryResponse(s tx.OrderSummary) OrderSummaryResponse {
	return OrderSummaryResponse{
		OrderID:     string(s.OrderID),
		OrderNumber: s.Number,
		SellerID:    s.SellerID,
		Total:       s.Total.String(),
		ItemCount:   s.ItemCount,
		Replayed:    s.Replayed,
	}
}

type LineItemResponse struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	UnitPrice string `json:"unit_price"`
	Subtotal  string `json:"subtotal"`
}

type OrderResponse struct {
	ID                  string             `json:"id"`
	OrderNumber         string             `json:"order_number"`
	BuyerID             string             `json:"buyer_id"`
	SellerID            string             `json:"seller_id"`
	Total               string             `json:"total"`
	Status              string             `json:"status"`
	PaymentStatus       string             `json:"payment_status"`
	FulfillmentMode     string             `json:"fulfillment_mode"`
	DeliveryAddress     string             `json:"delivery_address,omitempty"`
	PickupDate          string             `json:"pickup_date,omitempty"`
	SpecialInstructions string             `json:"special_instructions,omitempty"`
	CancelReason        string             `json:"cancel_reason,omitempty"`
	ItemCount           int                `json:"item_count"`
	TotalQuantity       int                `json:"total_quantity,omitempty"`
	Items               []LineItemResponse `json:"items,omitempty"`
	CreatedAt           time.Time          `json:"created_at"`
	UpdatedAt           time.Time          `json:"updated_at"`
	ConfirmedAt         *time.Time         `json:"confirmed_at,omitempty"`
	CompletedAt         *time.Time         `json:"completed_at,omitempty"`
}

func orderResponse(o domain.Order) OrderResponse {
	return OrderResponse{
		ID:                  string(o.ID),
		OrderNumber:         o.Number,
		BuyerID:             o.BuyerID,
		SellerID:            o.SellerID,
		Total:               o.Total.String(),
		Status:              string(o.Status),
		PaymentStatus:       string(o.PaymentStatus),
		FulfillmentMode:     string(o.Fulfillment.Mode),
		DeliveryAddress:     o.Fulfillment.DeliveryAddress,
		PickupDate:          o.Fulfillment.PickupDate,
		SpecialInstructions: o.SpecialInstructions,
		CancelReason:        o.CancelReason,
		ItemCount:           o.ItemCount,
		CreatedAt:           o.CreatedAt,
		UpdatedAt:           o.UpdatedAt,
		ConfirmedAt:         o.ConfirmedAt,
		CompletedAt:         o.CompletedAt,
	}
}

func detailsResponse(d tx.OrderDetails) OrderResponse {
	resp := orderResponse(d.Order)
	resp.ItemCount = d.ItemCount
	resp.TotalQuantity = d.TotalQuantity
	for _, it := range d.Items {
		resp.Items = append(resp.Items, LineItemResponse{
			ProductID: string(it.ProductID),
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice.String(),
			Subtotal:  it.Subtotal.String(),
		})
	}
	return resp
}

type ProductResponse struct {
	ID        string    `json:"id"`
	SellerID  string    `json:"seller_id"`
	Name      string    `json:"name"`
	Unit      string    `json:"unit"`
	Price     string    `json:"price"`
	Quantity  int       `json:"quantity"`
	Available bool      `json:"available"`
	CreatedAt time.Time `json:"created_at"`
}

func productResponse(p domain.Product) ProductResponse {
	return ProductResponse{
		ID:        string(p.ID),
		SellerID:  p.SellerID,
		Name:      p.Name,
		Unit:      p.Unit,
		Price:     p.Price.String(),
		Quantity:  p.Quantity,
		Available: p.Available,
		CreatedAt: p.CreatedAt,
	}
}

type CartItemResponse struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	Unit      string `json:"unit"`
	Quantity  int    `json:"quantity"`
	UnitPrice string `json:"unit_price"`
	Subtotal  string `json:"subtotal"`
	Available bool   `json:"available"`
	Stock     int    `json:"stock"`
}

type CartGroupResponse struct {
	SellerID string             `json:"seller_id"`
	Items    []CartItemResponse `json:"items"`
	Subtotal string             `json:"subtotal"`
}

type CartResponse struct {
	BuyerID string              `json:"buyer_id"`
	Sellers []CartGroupResponse `json:"sellers"`
	Total   string              `json:"total"`
	Count   int                 `json:"count"`
}

func cartResponse(c domain.Cart) CartResponse {
	resp := CartResponse{
		BuyerID: c.BuyerID,
		Sellers: make([]CartGroupResponse, 0, len(c.Groups)),
		Total:   c.Total.String(),
		Count:   c.Count,
	}
	for _, g := range c.Groups {
		group := CartGroupResponse{SellerID: g.SellerID, Subtotal: g.Subtotal.String()}
		for _, it := range g.Items {
			group.Items = append(group.Items, CartItemResponse{
				ProductID: string(it.ProductID),
				Name:      it.Name,
				Unit:      it.Unit,
				Quantity:  it.Quantity,
				UnitPrice: it.UnitPrice.String(),
				Subtotal:  it.Subtotal().String(),
				Available: it.Available,
				Stock:     it.Stock,
			})
		}
		resp.Sellers = append(resp.Sellers, group)
	}
	return resp
}
