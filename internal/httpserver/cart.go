package httpserver

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"storefront/internal/domain"
)

type addLineRequest struct {
	ProductID string `json:"productId" binding:"required"`
	Variant   string `json:"variant"`
	Quantity  int    `json:"quantity" binding:"required"`
}

type setQuantityRequest struct {
	Variant  string `json:"variant"`
	Quantity *int   `json:"quantity" binding:"required"`
}

type cartResponse struct {
	*domain.PricedCart
	ItemCount int `json:"itemCount"`
}

func writeCart(c *gin.Context, status int, cart *domain.PricedCart) {
	if cart.Lines == nil {
		cart.Lines = []domain.PricedLine{}
	}
	c.JSON(status, cartResponse{PricedCart: cart, ItemCount: cart.ItemCount()})
}

func (h *handlers) readCart(c *gin.Context) {
	ref, ok := cartRef(c)
	if !ok {
		return
	}
	cart, err := h.deps.Carts.Read(c.Request.Context(), ref)
	if err != nil {
		abortWithError(c, err)
		return
	}
	writeCart(c, http.StatusOK, cart)
}

func (h *handlers) addLine(c *gin.Context) {
	ref, ok := cartRef(c)
	if !ok {
		return
	}
	var req addLineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if !domain.ValidQuantity(req.Quantity) {
		abortWithError(c, domain.ErrInvalidQuantity)
		return
	}
	cart, err := h.deps.Carts.Add(c.Request.Context(), ref, req.ProductID, req.Variant, req.Quantity)
	if err != nil {
		abortWithError(c, err)
		return
	}
	writeCart(c, http.StatusOK, cart)
}

// setQuantity overwrites a line quantity; zero or less removes the line.
func (h *handlers) setQuantity(c *gin.Context) {
	ref, ok := cartRef(c)
	if !ok {
		return
	}
	var req setQuantityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if *req.Quantity > domain.MaxLineQuantity {
		abortWithError(c, domain.ErrInvalidQuantity)
		return
	}
	variant := req.Variant
	if variant == "" {
		variant = c.Query("variant")
	}
	cart, err := h.deps.Carts.SetQuantity(c.Request.Context(), ref, c.Param("productId"), variant, *req.Quantity)
	h.writeLineResult(c, cart, err)
}

func (h *handlers) removeLine(c *gin.Context) {
	ref, ok := cartRef(c)
	if !ok {
		return
	}
	cart, err := h.deps.Carts.Remove(c.Request.Context(), ref, c.Param("productId"), c.Query("variant"))
	h.writeLineResult(c, cart, err)
}

// writeLineResult reports a missing line as 404 with the unchanged cart.
func (h *handlers) writeLineResult(c *gin.Context, cart *domain.PricedCart, err error) {
	if errors.Is(err, domain.ErrLineNotFound) && cart != nil {
		_, body := classify(err)
		c.JSON(http.StatusNotFound, gin.H{"error": body, "cart": cartResponse{PricedCart: cart, ItemCount: cart.ItemCount()}})
		return
	}
	if err != nil {
		abortWithError(c, err)
		return
	}
	writeCart(c, http.StatusOK, cart)
}

func (h *handlers) clearCart(c *gin.Context) {
	ref, ok := cartRef(c)
	if !ok {
		return
	}
	cart, err := h.deps.Carts.Clear(c.Request.Context(), ref)
	if err != nil {
		abortWithError(c, err)
		return
	}
	writeCart(c, http.StatusOK, cart)
}

// mergeCart retries a login merge that failed earlier. It needs both the
// bearer token and the guest session token.
func (h *handlers) mergeCart(c *gin.Context) {
	sessionID, ok := sessionFrom(c)
	if !ok {
		abortWithStatus(c, http.StatusBadRequest, "session_required", headerSessionToken+" is required.")
		return
	}
	id, _ := identityFrom(c)
	cart, err := h.deps.Identity.MergeOnLogin(c.Request.Context(), domain.AnonymousCart(sessionID), id.UserID)
	if err != nil {
		abortWithError(c, err)
		return
	}
	writeCart(c, http.StatusOK, cart)
}
