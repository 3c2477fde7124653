package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/safar/cosmetics-store/internal/store"
	"github.com/shopspring/decimal"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

type variantRequest struct {
	Unit  string          `json:"unit" binding:"required"`
	Price decimal.Decimal `json:"price"`
	Stock int             `json:"stock" binding:"gte=0"`
}

type createProductRequest struct {
	Name        string           `json:"name" binding:"required,max=200"`
	Description string           `json:"description"`
	Category    string           `json:"category" binding:"max=100"`
	Variants    []variantRequest `json:"variants" binding:"required,min=1,dive"`
}

type updateProductRequest struct {
	Version     int    `json:"version" binding:"required,min=1"`
	Name        string `json:"name" binding:"required,max=200"`
	Description string `json:"description"`
	Category    string `json:"category" binding:"max=100"`
}

type reviewRequest struct {
	Rating  int    `json:"rating" binding:"required,min=1,max=5"`
	Comment string `json:"comment" binding:"max=2000"`
}

func (s *Server) listProducts(c *gin.Context) {
	filter := store.ProductFilter{Category: c.Query("category")}
	if raw := c.Query("seller_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			abortWithError(c, http.StatusBadRequest, "invalid_input", "invalid seller_id")
			return
		}
		filter.SellerID = id
	}

	page := intQuery(c, "page", 1, 0)
	pageSize := intQuery(c, "page_size", defaultPageSize, maxPageSize)

	result, err := store.ListProducts(c.Request.Context(), s.db, filter, page, pageSize)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) getProduct(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}

	product, err := store.GetProduct(c.Request.Context(), s.db, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, product)
}

func (s *Server) createProduct(c *gin.Context) {
	var req createProductRequest
	if !bindJSON(c, &req) {
		return
	}

	variants := make([]store.VariantInput, len(req.Variants))
	for i, v := range req.Variants {
		variants[i] = store.VariantInput{Unit: v.Unit, Price: v.Price, Stock: v.Stock}
	}

	product, err := store.CreateProduct(c.Request.Context(), s.db, store.CreateProductRequest{
		SellerID:    profile(c).UID,
		Name:        req.Name,
		Description: req.Description,
		Category:    req.Category,
		Variants:    variants,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, product)
}

func (s *Server) updateProduct(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var req updateProductRequest
	if !bindJSON(c, &req) {
		return
	}

	product, err := store.UpdateProductDetails(c.Request.Context(), s.db, id, profile(c).UID, req.Version, store.ProductDetails{
		Name:        req.Name,
		Description: req.Description,
		Category:    req.Category,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, product)
}

func (s *Server) deleteProduct(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}

	if err := store.DeleteProduct(c.Request.Context(), s.db, id, profile(c).UID); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) listReviews(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}

	page := intQuery(c, "page", 1, 0)
	pageSize := intQuery(c, "page_size", defaultPageSize, maxPageSize)

	result, err := store.ListReviews(c.Request.Context(), s.db, id, page, pageSize)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) addReview(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var req reviewRequest
	if !bindJSON(c, &req) {
		return
	}

	user := profile(c)
	review, summary, err := store.AddReview(c.Request.Context(), s.db, store.CreateReviewRequest{
		ProductID:  id,
		AuthorID:   user.UID,
		AuthorName: user.DisplayName,
		Rating:     req.Rating,
		Comment:    req.Comment,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"review": review, "summary": summary})
}
