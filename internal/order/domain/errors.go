package domain

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindInvalidRequest        Kind = "InvalidRequest"
	KindInvalidItem           Kind = "InvalidItem"
	KindInvalidFulfillment    Kind = "InvalidFulfillment"
	KindProductNotFound       Kind = "ProductNotFound"
	KindProductUnavailable    Kind = "ProductUnavailable"
	KindInsufficientInventory Kind = "InsufficientInventory"
	KindOrderNotFound         Kind = "OrderNotFound"
	KindUnauthorized          Kind = "Unauthorized"
	KindInvalidStatus         Kind = "InvalidStatus"
	KindInvalidPaymentStatus  Kind = "InvalidPaymentStatus"
	KindIllegalTransition     Kind = "IllegalTransition"
	KindAlreadyFinalized      Kind = "AlreadyFinalized"
	KindProductInUse          Kind = "ProductInUse"
	KindPersistenceFailure    Kind = "PersistenceFailure"
)

// Error is the failure half of every engine operation. Two Errors match under
// errors.Is when their kinds are equal, so the sentinels below can be used as
// targets.
type Error struct {
	Kind    Kind
	Message string

	// InsufficientInventory only.
	ProductID ProductID
	Available int
	Requested int

	// IllegalTransition only.
	Allowed []OrderStatus

	Err error
}

var (
	ErrInvalidRequest        = &Error{Kind: KindInvalidRequest}
	ErrInvalidItem           = &Error{Kind: KindInvalidItem}
	ErrInvalidFulfillment    = &Error{Kind: KindInvalidFulfillment}
	ErrProductNotFound       = &Error{Kind: KindProductNotFound}
	ErrProductUnavailable    = &Error{Kind: KindProductUnavailable}
	ErrInsufficientInventory = &Error{Kind: KindInsufficientInventory}
	ErrOrderNotFound         = &Error{Kind: KindOrderNotFound}
	ErrUnauthorized          = &Error{Kind: KindUnauthorized}
	ErrInvalidStatus         = &Error{Kind: KindInvalidStatus}
	ErrInvalidPaymentStatus  = &Error{Kind: KindInvalidPaymentStatus}
	ErrIllegalTransition     = &Error{Kind: KindIllegalTransition}
	ErrAlreadyFinalized      = &Error{Kind: KindAlreadyFinalized}
	ErrProductInUse          = &Error{Kind: KindProductInUse}
	ErrPersistenceFailure    = &Error{Kind: KindPersistenceFailure}
)

func Errorf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func InsufficientInventory(product Product, requested int) *Error {
	e := Errorf(KindInsufficientInventory, "insufficient inventory for %s: available %d, requested %d", product.Name, product.Quantity, requested)
	e.ProductID = product.ID
	e.Available = product.Quantity
	e.Requested = requested
	return e
}

// Persistence wraps an infrastructure error. Errors that already carry a kind
// pass through unchanged.
func Persistence(op string, err error) error {
	if err == nil {
		return nil
	}
	var de *Error
	if errors.As(err, &de) {
		return err
	}
	return &Error{Kind: KindPersistenceFailure, Message: op, Err: err}
}

// KindOf reports the kind of err; unknown errors are persistence failures.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindPersistenceFailure
}
