package httpserver

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"storefront/internal/domain"
	"storefront/internal/service/anonymous"
	"storefront/internal/service/catalog"
	"storefront/internal/service/checkout"
	customersvc "storefront/internal/service/customer"
	"storefront/internal/service/pricing"
	"storefront/internal/service/review"
)

type errorBody struct {
	Code    string              `json:"code"`
	Message string              `json:"message"`
	Stage   string              `json:"stage,omitempty"`
	Fields  []domain.FieldError `json:"fields,omitempty"`
}

func abortWithStatus(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, gin.H{"error": errorBody{Code: code, Message: message}})
}

func abortWithError(c *gin.Context, err error) {
	status, body := classify(err)
	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
	}
	c.AbortWithStatusJSON(status, gin.H{"error": body})
}

func classify(err error) (int, errorBody) {
	var cerr *checkout.Error
	if errors.As(err, &cerr) {
		body := errorBody{Message: cerr.Kind.Error(), Stage: string(cerr.Stage), Fields: cerr.Fields}
		switch {
		case errors.Is(cerr.Kind, checkout.ErrPaymentInvalid):
			body.Code = "payment_invalid"
			return http.StatusUnprocessableEntity, body
		case errors.Is(cerr.Kind, checkout.ErrProductUnavailable):
			body.Code = "product_unavailable"
			return http.StatusConflict, body
		case errors.Is(cerr.Kind, checkout.ErrPersistence):
			body.Code = "persistence"
			return http.StatusServiceUnavailable, body
		default:
			body.Code = "validation_failed"
			return http.StatusUnprocessableEntity, body
		}
	}
	var verr *customersvc.ValidationError
	if errors.As(err, &verr) {
		return http.StatusUnprocessableEntity, errorBody{Code: "validation_failed", Message: verr.Error(), Fields: verr.Fields}
	}

	switch {
	case errors.Is(err, customersvc.ErrInvalidCredentials):
		return http.StatusUnauthorized, errorBody{Code: "invalid_credentials", Message: "Invalid email or password."}
	case errors.Is(err, customersvc.ErrInvalidToken):
		return http.StatusUnauthorized, errorBody{Code: "invalid_token", Message: "Access token is invalid or expired."}
	case errors.Is(err, anonymous.ErrInvalidToken):
		return http.StatusUnauthorized, errorBody{Code: "invalid_session", Message: "Session token is invalid or expired."}
	case errors.Is(err, review.ErrNotEntitled):
		return http.StatusForbidden, errorBody{Code: "not_entitled", Message: err.Error()}
	case errors.Is(err, review.ErrInvalidRating), errors.Is(err, domain.ErrInvalidQuantity),
		errors.Is(err, catalog.ErrInvalidProduct), errors.Is(err, domain.ErrInvalidCartRef),
		errors.Is(err, pricing.ErrTotalOverflow):
		return http.StatusBadRequest, errorBody{Code: "bad_request", Message: err.Error()}
	case errors.Is(err, domain.ErrProductNotFound):
		return http.StatusNotFound, errorBody{Code: "product_not_found", Message: "Product not found."}
	case errors.Is(err, domain.ErrLineNotFound):
		return http.StatusNotFound, errorBody{Code: "line_not_found", Message: "Cart line not found."}
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, errorBody{Code: "not_found", Message: "Not found."}
	case errors.Is(err, domain.ErrAlreadyExists):
		return http.StatusConflict, errorBody{Code: "conflict", Message: "Email or username already registered."}
	case errors.Is(err, domain.ErrMergeConflict):
		return http.StatusServiceUnavailable, errorBody{Code: "merge_failed", Message: "Cart merge failed; your guest cart was kept. Retry POST /cart/merge."}
	case errors.Is(err, domain.ErrUnavailable):
		return http.StatusServiceUnavailable, errorBody{Code: "unavailable", Message: "Service temporarily unavailable."}
	default:
		return http.StatusInternalServerError, errorBody{Code: "internal", Message: "Internal server error."}
	}
}

func badRequest(c *gin.Context, err error) {
	abortWithStatus(c, http.StatusBadRequest, "bad_request", err.Error())
}
