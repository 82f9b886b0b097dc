package httpserver

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"storefront/internal/domain"
	customersvc "storefront/internal/service/customer"
	"storefront/internal/service/identity"
)

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type profileRequest struct {
	ShippingInfo     *domain.ShippingProfile   `json:"shippingInfo"`
	SavedPaymentInfo *domain.PaymentInstrument `json:"savedPaymentInfo"`
}

type authResponse struct {
	AccessToken string             `json:"accessToken"`
	TokenType   string             `json:"tokenType"`
	ExpiresIn   int                `json:"expiresIn"`
	Customer    *domain.Customer   `json:"customer"`
	Cart        *domain.PricedCart `json:"cart,omitempty"`
	MergeError  *errorBody         `json:"mergeError,omitempty"`
}

func (h *handlers) createSession(c *gin.Context) {
	sess, err := h.deps.Sessions.Issue(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.Header(headerSessionToken, sess.Token)
	c.JSON(http.StatusCreated, sess)
}

func (h *handlers) register(c *gin.Context) {
	var req customersvc.SignupInput
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if _, err := h.deps.Customers.Signup(c.Request.Context(), req); err != nil {
		abortWithError(c, err)
		return
	}
	h.authenticate(c, http.StatusCreated, req.Email, req.Password)
}

func (h *handlers) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	h.authenticate(c, http.StatusOK, req.Email, req.Password)
}

// authenticate issues an access token and, for a caller arriving with a
// guest session, folds the guest cart into the account cart. A failed merge
// does not fail the login; the guest cart is kept and the error is reported
// so the client can retry POST /cart/merge.
func (h *handlers) authenticate(c *gin.Context, status int, email, password string) {
	ctx := c.Request.Context()
	cust, token, err := h.deps.Customers.Login(ctx, email, password)
	if err != nil {
		abortWithError(c, err)
		return
	}
	resp := authResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   h.deps.Customers.AccessTTLSeconds(),
		Customer:    cust,
	}

	if sessionID, ok := sessionFrom(c); ok {
		sess := identity.NewAnonymousSession(sessionID)
		cart, err := h.deps.Identity.Login(ctx, sess, cust.ID)
		if err != nil {
			h.logger.Printf("httpserver: merge on login failed user_id=%s session_id=%s err=%v", cust.ID, sessionID, err)
			_, body := classify(err)
			resp.MergeError = &body
		} else {
			resp.Cart = cart
		}
	} else if cart, err := h.deps.Carts.Read(ctx, domain.AccountCart(cust.ID)); err == nil {
		resp.Cart = cart
	} else {
		h.logger.Printf("httpserver: account cart read failed user_id=%s err=%v", cust.ID, err)
	}
	c.JSON(status, resp)
}

// logout revokes the access token and starts a fresh, empty guest session.
// The account cart stays on the server.
func (h *handlers) logout(c *gin.Context) {
	ctx := c.Request.Context()
	id, _ := identityFrom(c)
	if err := h.deps.Customers.Logout(ctx, accessTokenFrom(c)); err != nil {
		abortWithError(c, err)
		return
	}
	if old := strings.TrimSpace(c.GetHeader(headerSessionToken)); old != "" {
		h.deps.Sessions.Revoke(ctx, old)
	}
	next, err := h.deps.Sessions.Issue(ctx)
	if err != nil {
		abortWithError(c, err)
		return
	}
	if err := h.deps.Identity.Logout(identity.NewAuthenticatedSession(id.UserID), next.SessionID); err != nil {
		abortWithError(c, err)
		return
	}
	c.Header(headerSessionToken, next.Token)
	c.JSON(http.StatusOK, gin.H{
		"session": next,
		"cart":    domain.PricedCart{Lines: []domain.PricedLine{}},
	})
}

func (h *handlers) me(c *gin.Context) {
	id, _ := identityFrom(c)
	cust, err := h.deps.Customers.Get(c.Request.Context(), id.UserID)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, cust)
}

func (h *handlers) updateProfile(c *gin.Context) {
	var req profileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	id, _ := identityFrom(c)
	cust, err := h.deps.Customers.UpdateProfile(c.Request.Context(), id.UserID, domain.SavedProfile{
		Shipping: req.ShippingInfo,
		Payment:  req.SavedPaymentInfo,
	})
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, cust)
}
