package domain

import (
	"strings"
	"time"
)

// ProductUpdate carries the fields a seller wants changed. Nil fields are kept.
type ProductUpdate struct {
	Name      *string
	Unit      *string
	Price     *Money
	Quantity  *int
	Available *bool
}

func (u ProductUpdate) Apply(p Product) Product {
	if u.Name != nil {
		p.Name = strings.TrimSpace(*u.Name)
	}
	if u.Unit != nil {
		p.Unit = strings.TrimSpace(*u.Unit)
	}
	if u.Price != nil {
		p.Price = *u.Price
	}
	if u.Quantity != nil {
		p.Quantity = *u.Quantity
	}
	if u.Available != nil {
		p.Available = *u.Available
	}
	return p
}

// Validate checks the fields every stored product must satisfy.
func (p Product) Validate() error {
	if strings.TrimSpace(p.SellerID) == "" || strings.TrimSpace(p.Name) == "" {
		return Errorf(KindInvalidRequest, "seller and name are required")
	}
	if p.Price < 0 || p.Quantity < 0 {
		return Errorf(KindInvalidRequest, "price and quantity must not be negative")
	}
	return nil
}

type ProductFilter struct {
	SellerID      string
	AvailableOnly bool
	// Search matches a case-insensitive substring of the name.
	Search string
	Limit  int
	Offset int
}

const DefaultProductLimit = 50

func (f ProductFilter) Normalize() ProductFilter {
	f.SellerID = strings.TrimSpace(f.SellerID)
	f.Search = strings.TrimSpace(f.Search)
	if f.Limit <= 0 {
		f.Limit = DefaultProductLimit
	}
	if f.Limit > MaxListLimit {
		f.Limit = MaxListLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}

// CartItem is one product in a buyer's cart. Seller, name, price and stock are
// read from the catalog, so the cart always shows current prices.
type CartItem struct {
	BuyerID   string
	ProductID ProductID
	SellerID  string
	Name      string
	Unit      string
	Quantity  int
	UnitPrice Money
	Available bool
	Stock     int
	AddedAt   time.Time
}

// CartGroup holds the part of a cart that becomes one seller's order.
type CartGroup struct {
	SellerID string
	Items    []CartItem
	Subtotal Money
}

type Cart struct {
	BuyerID string
	Groups  []CartGroup
	Total   Money
	// Count is the number of distinct products.
	Count int
}

// GroupCart groups items by seller in the order sellers first appear.
func GroupCart(buyerID string, items []CartItem) (Cart, error) {
	cart := Cart{BuyerID: buyerID, Count: len(items)}
	index := map[string]int{}
	for _, it := range items {
		i, ok := index[it.SellerID]
		if !ok {
			i = len(cart.Groups)
			index[it.SellerID] = i
			cart.Groups = append(cart.Groups, CartGroup{SellerID: it.SellerID})
		}
		g := &cart.Groups[i]
		sub, ok := it.UnitPrice.Mul(it.Quantity)
		if ok {
			g.Subtotal, ok = g.Subtotal.Add(sub)
		}
		if ok {
			cart.Total, ok = cart.Total.Add(sub)
		}
		if !ok {
			return Cart{}, Errorf(KindInvalidItem, "cart total exceeds the supported amount")
		}
		g.Items = append(g.Items, it)
	}
	return cart, nil
}

// Subtotal is quantity × unit price; callers only build carts that passed GroupCart.
func (it CartItem) Subtotal() Money {
	m, _ := it.UnitPrice.Mul(it.Quantity)
	return m
}
