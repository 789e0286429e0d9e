package httpapi

import (
	"errors"
	"net/http"

	"github.com/nazeru/agrimarket-go/internal/order/domain"
)

type ErrorResponse struct {
	Success   bool     `json:"success"`
	Kind      string   `json:"kind"`
	Message   string   `json:"message"`
	ProductID string   `json:"product_id,omitempty"`
	Available *int     `json:"available,omitempty"`
	Requested *int     `json:"requested,omitempty"`
	Allowed   []string `json:"allowed,omitempty"`
}

func statusFor(kind domain.Kind) int {
	switch kind {
	case domain.KindInvalidRequest, domain.KindInvalidItem, domain.KindInvalidFulfillment,
		domain.KindInvalidStatus, domain.KindInvalidPaymentStatus:
		return http.StatusBadRequest
	case domain.KindProductNotFound, domain.KindOrderNotFound:
		return http.StatusNotFound
	case domain.KindUnauthorized:
		return http.StatusForbidden
	case domain.KindProductUnavailable, domain.KindInsufficientInventory,
		domain.KindIllegalTransition, domain.KindAlreadyFinalized, domain.KindProductInUse:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func errorResponse(err error) (int, ErrorResponse) {
	kind := domain.KindOf(err)
	resp := ErrorResponse{Kind: string(kind), Message: err.Error()}
	if kind == domain.KindPersistenceFailure {
		// storage details stay in the logs
		resp.Message = "internal error"
	}

	var de *domain.Error
	if errors.As(err, &de) {
		switch de.Kind {
		case domain.KindInsufficientInventory:
			resp.ProductID = string(de.ProductID)
			resp.Available = &de.Available
			resp.Requested = &de.Requested
		case domain.KindIllegalTransition:
			resp.Allowed = make([]string, 0, len(de.Allowed))
			for _, s := range de.Allowed {
				resp.Allowed = append(resp.Allowed, string(s))
			}
		}
	}
	return statusFor(kind), resp
}
