package httpserver

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"storefront/internal/domain"
	"storefront/internal/service/checkout"
)

type checkoutRequest struct {
	ShippingInfo *domain.ShippingProfile   `json:"shippingInfo"`
	PaymentInfo  *domain.PaymentInstrument `json:"paymentInfo"`
}

// checkout places an order. 201 for a new order, 200 when an
// Idempotency-Key matched an earlier one.
func (h *handlers) checkout(c *gin.Context) {
	ref, ok := cartRef(c)
	if !ok {
		return
	}
	var req checkoutRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		badRequest(c, err)
		return
	}
	res, err := h.deps.Checkout.Submit(c.Request.Context(), checkout.SubmitInput{
		Cart:           ref,
		Shipping:       req.ShippingInfo,
		Payment:        req.PaymentInfo,
		IdempotencyKey: strings.TrimSpace(c.GetHeader(headerIdempotencyKey)),
	})
	if err != nil {
		abortWithError(c, err)
		return
	}
	status := http.StatusCreated
	if res.Replayed {
		status = http.StatusOK
	}
	c.JSON(status, res.Order)
}

func (h *handlers) listOrders(c *gin.Context) {
	id, _ := identityFrom(c)
	orders, err := h.deps.Orders.ListByOwner(c.Request.Context(), id.UserID)
	if err != nil {
		abortWithError(c, err)
		return
	}
	if orders == nil {
		orders = []domain.Order{}
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

// getOrder hides orders of other owners behind 404.
func (h *handlers) getOrder(c *gin.Context) {
	id, _ := identityFrom(c)
	order, err := h.deps.Orders.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	if order.OwnerID == nil || *order.OwnerID != id.UserID {
		abortWithError(c, domain.ErrNotFound)
		return
	}
	c.JSON(http.StatusOK, order)
}
