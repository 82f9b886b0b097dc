package httpserver

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"storefront/internal/domain"
	"storefront/internal/service/anonymous"
	"storefront/internal/service/catalog"
	"storefront/internal/service/checkout"
	customersvc "storefront/internal/service/customer"
	"storefront/internal/service/identity"
)

type catalogService interface {
	List(ctx context.Context, filter catalog.Filter, viewerID string) ([]domain.Product, error)
	Get(ctx context.Context, id string) (*domain.Product, error)
	Save(ctx context.Context, p domain.Product) (*domain.Product, error)
	Delete(ctx context.Context, id string) error
}

type cartService interface {
	Read(ctx context.Context, ref domain.CartRef) (*domain.PricedCart, error)
	Add(ctx context.Context, ref domain.CartRef, productID, variant string, quantity int) (*domain.PricedCart, error)
	Remove(ctx context.Context, ref domain.CartRef, productID, variant string) (*domain.PricedCart, error)
	SetQuantity(ctx context.Context, ref domain.CartRef, productID, variant string, quantity int) (*domain.PricedCart, error)
	Clear(ctx context.Context, ref domain.CartRef) (*domain.PricedCart, error)
}

type customerService interface {
	Signup(ctx context.Context, in customersvc.SignupInput) (*domain.Customer, error)
	Login(ctx context.Context, email, password string) (*domain.Customer, string, error)
	Verify(ctx context.Context, token string) (domain.Identity, error)
	Logout(ctx context.Context, token string) error
	Get(ctx context.Context, userID string) (*domain.Customer, error)
	UpdateProfile(ctx context.Context, userID string, profile domain.SavedProfile) (*domain.Customer, error)
	AccessTTLSeconds() int
}

type sessionService interface {
	Issue(ctx context.Context) (anonymous.Session, error)
	Lookup(ctx context.Context, token string) (string, error)
	Revoke(ctx context.Context, token string)
}

type identityBridge interface {
	Login(ctx context.Context, sess *identity.Session, userID string) (*domain.PricedCart, error)
	MergeOnLogin(ctx context.Context, anon domain.CartRef, userID string) (*domain.PricedCart, error)
	Logout(sess *identity.Session, newSessionID string) error
}

type checkoutService interface {
	Submit(ctx context.Context, in checkout.SubmitInput) (*checkout.Result, error)
}

type reviewService interface {
	Create(ctx context.Context, userID, productID string, rating int, comment string) (*domain.Review, error)
	List(ctx context.Context, productID string) ([]domain.Review, error)
}

type orderReader interface {
	GetByID(ctx context.Context, id string) (*domain.Order, error)
	ListByOwner(ctx context.Context, ownerID string) ([]domain.Order, error)
}

// Deps holds the services the router dispatches to.
type Deps struct {
	Catalog     catalogService
	Carts       cartService
	Customers   customerService
	Sessions    sessionService
	Identity    identityBridge
	Checkout    checkoutService
	Reviews     reviewService
	Orders      orderReader
	Redis       *redis.Client
	CORSOrigins []string
}

func (d Deps) validate() error {
	if d.Catalog == nil || d.Carts == nil || d.Customers == nil || d.Sessions == nil ||
		d.Identity == nil || d.Checkout == nil || d.Reviews == nil || d.Orders == nil {
		return errors.New("httpserver: missing service dependency")
	}
	return nil
}

// buildRouter wires routes for the API.
func buildRouter(logger *log.Logger, db *pgxpool.Pool, deps Deps) (*gin.Engine, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	if gin.Mode() != gin.TestMode {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.LoggerWithWriter(logger.Writer()), gin.Recovery())
	if len(deps.CORSOrigins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins:     deps.CORSOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", headerSessionToken, headerIdempotencyKey},
			ExposeHeaders:    []string{headerSessionToken},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	router.GET("/healthz", healthHandler)
	router.GET("/readyz", readyHandler(db, deps.Redis))

	h := &handlers{deps: deps, logger: logger}
	api := router.Group("/")
	api.Use(identityMiddleware(deps.Customers), sessionMiddleware(deps.Sessions))

	api.POST("/sessions", h.createSession)

	api.POST("/account/register", h.register)
	api.POST("/account/login", h.login)
	api.POST("/account/logout", requireUser(), h.logout)
	api.GET("/account/me", requireUser(), h.me)
	api.PUT("/account/profile", requireUser(), h.updateProfile)

	api.GET("/products", h.listProducts)
	api.GET("/products/:id", h.getProduct)
	api.GET("/products/:id/reviews", h.listReviews)
	api.POST("/products/:id/reviews", requireUser(), h.createReview)

	api.GET("/cart", h.readCart)
	api.DELETE("/cart", h.clearCart)
	api.POST("/cart/lines", h.addLine)
	api.PUT("/cart/lines/:productId", h.setQuantity)
	api.DELETE("/cart/lines/:productId", h.removeLine)
	api.POST("/cart/merge", requireUser(), h.mergeCart)

	api.POST("/checkout", h.checkout)
	api.GET("/orders", requireUser(), h.listOrders)
	api.GET("/orders/:id", requireUser(), h.getOrder)

	admin := api.Group("/admin", requireAdmin())
	admin.PUT("/products", h.upsertProduct)
	admin.DELETE("/products/:id", h.deleteProduct)

	return router, nil
}

type handlers struct {
	deps   Deps
	logger *log.Logger
}
