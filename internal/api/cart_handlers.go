package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type addCartItemRequest struct {
	ProductID int64 `json:"product_id" binding:"required,min=1"`
	VariantID int64 `json:"variant_id" binding:"required,min=1"`
	Quantity  int   `json:"quantity" binding:"required,min=1"`
}

// Quantity zero or below removes the line.
type updateCartItemRequest struct {
	Quantity *int `json:"quantity" binding:"required"`
}

func (s *Server) getCart(c *gin.Context) {
	cart, err := s.carts.Cart(c.Request.Context(), profile(c).UID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, cart)
}

func (s *Server) addCartItem(c *gin.Context) {
	var req addCartItemRequest
	if !bindJSON(c, &req) {
		return
	}

	item, err := s.carts.AddToCart(c.Request.Context(), profile(c).UID, req.ProductID, req.VariantID, req.Quantity)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, item)
}

func (s *Server) updateCartItem(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var req updateCartItemRequest
	if !bindJSON(c, &req) {
		return
	}

	item, warning, err := s.carts.UpdateCartItemQuantity(c.Request.Context(), profile(c).UID, id, *req.Quantity)
	if err != nil {
		respondError(c, err)
		return
	}

	resp := gin.H{"item": item}
	if warning != nil {
		resp["warning"] = gin.H{
			"message":   warning.Message(),
			"requested": warning.Requested,
			"available": warning.Available,
		}
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) removeCartItem(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}

	if err := s.carts.RemoveFromCart(c.Request.Context(), profile(c).UID, id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) clearCart(c *gin.Context) {
	if err := s.carts.ClearCart(c.Request.Context(), profile(c).UID); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
