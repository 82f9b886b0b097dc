package httpserver

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"storefront/internal/domain"
	"storefront/internal/service/catalog"
)

type productRequest struct {
	Name        string   `json:"name" binding:"required"`
	Description string   `json:"description"`
	PriceCents  *int64   `json:"priceCents" binding:"required"`
	Category    string   `json:"category"`
	Tags        []string `json:"tags"`
	ImageURL    string   `json:"imageUrl"`
}

type reviewRequest struct {
	Rating  int    `json:"rating" binding:"required"`
	Comment string `json:"comment"`
}

func parseFilter(c *gin.Context) (catalog.Filter, error) {
	f := catalog.Filter{
		Keyword:  strings.TrimSpace(c.Query("keyword")),
		Category: strings.TrimSpace(c.Query("category")),
	}
	for _, p := range []struct {
		name string
		dst  **int64
	}{{"minPrice", &f.MinPriceCents}, {"maxPrice", &f.MaxPriceCents}} {
		raw := strings.TrimSpace(c.Query(p.name))
		if raw == "" {
			continue
		}
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || v < 0 {
			return catalog.Filter{}, fmt.Errorf("%s must be a non-negative integer amount in cents", p.name)
		}
		*p.dst = &v
	}
	return f, nil
}

// listProducts filters the catalog. Authenticated callers see products that
// share a tag with their purchases first.
func (h *handlers) listProducts(c *gin.Context) {
	filter, err := parseFilter(c)
	if err != nil {
		badRequest(c, err)
		return
	}
	viewer := ""
	if id, ok := identityFrom(c); ok {
		viewer = id.UserID
	}
	products, err := h.deps.Catalog.List(c.Request.Context(), filter, viewer)
	if err != nil {
		abortWithError(c, err)
		return
	}
	if products == nil {
		products = []domain.Product{}
	}
	c.JSON(http.StatusOK, gin.H{"products": products, "count": len(products)})
}

func (h *handlers) getProduct(c *gin.Context) {
	p, err := h.deps.Catalog.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *handlers) listReviews(c *gin.Context) {
	reviews, err := h.deps.Reviews.List(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	if reviews == nil {
		reviews = []domain.Review{}
	}
	c.JSON(http.StatusOK, gin.H{"reviews": reviews})
}

func (h *handlers) createReview(c *gin.Context) {
	var req reviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	id, _ := identityFrom(c)
	r, err := h.deps.Reviews.Create(c.Request.Context(), id.UserID, c.Param("id"), req.Rating, req.Comment)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, r)
}

func (h *handlers) upsertProduct(c *gin.Context) {
	var req productRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	p, err := h.deps.Catalog.Save(c.Request.Context(), domain.Product{
		Name:        req.Name,
		Description: req.Description,
		PriceCents:  *req.PriceCents,
		Category:    req.Category,
		Tags:        req.Tags,
		ImageURL:    req.ImageURL,
	})
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *handlers) deleteProduct(c *gin.Context) {
	if err := h.deps.Catalog.Delete(c.Request.Context(), c.Param("id")); err != nil {
		abortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
