package api

import (
	"context"
	"net/http"
	"slices"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/safar/cosmetics-store/internal/database"
	"github.com/safar/cosmetics-store/internal/models"
	"github.com/safar/cosmetics-store/internal/store"
)

type updateOrderStatusRequest struct {
	Version       int    `json:"version" binding:"required,min=1"`
	Status        string `json:"status" binding:"required"`
	PaymentStatus string `json:"payment_status" binding:"required"`
}

type sendMessageRequest struct {
	Body string `json:"body" binding:"required,max=2000"`
	// RecipientID picks the seller when a buyer writes on an order with
	// several sellers.
	RecipientID *uuid.UUID `json:"recipient_id"`
}

// placeOrder converts the cart into an order. An empty cart creates nothing.
func (s *Server) placeOrder(c *gin.Context) {
	order, err := s.carts.PlaceOrder(c.Request.Context(), profile(c).UID)
	if err != nil {
		respondError(c, err)
		return
	}
	if order == nil {
		abortWithError(c, http.StatusBadRequest, "empty_cart", "cart is empty")
		return
	}
	c.JSON(http.StatusCreated, order)
}

func (s *Server) listOrders(c *gin.Context) {
	cursor := c.Query("cursor")
	if _, err := store.DecodeCursor(cursor); err != nil {
		abortWithError(c, http.StatusBadRequest, "invalid_input", "invalid cursor")
		return
	}
	limit := intQuery(c, "limit", defaultPageSize, maxPageSize)

	page, err := store.ListOrdersCursor(c.Request.Context(), s.db, profile(c).UID, cursor, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// loadOrder returns the order when uid is its buyer or one of its sellers.
// Other callers get not found.
func (s *Server) loadOrder(ctx context.Context, id int64, uid uuid.UUID) (*models.Order, []uuid.UUID, error) {
	order, err := store.GetOrder(ctx, s.db, id)
	if err != nil {
		return nil, nil, err
	}
	sellers, err := store.OrderSellers(ctx, s.db, id)
	if err != nil {
		return nil, nil, err
	}
	if order.UserID != uid && !slices.Contains(sellers, uid) {
		return nil, nil, database.ErrOrderNotFound
	}
	return order, sellers, nil
}

func (s *Server) getOrder(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}

	order, _, err := s.loadOrder(c.Request.Context(), id, profile(c).UID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (s *Server) updateOrderStatus(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var req updateOrderStatusRequest
	if !bindJSON(c, &req) {
		return
	}

	ctx := c.Request.Context()
	uid := profile(c).UID
	_, sellers, err := s.loadOrder(ctx, id, uid)
	if err != nil {
		respondError(c, err)
		return
	}
	if !slices.Contains(sellers, uid) {
		respondError(c, database.ErrPermissionDenied)
		return
	}

	order, err := store.UpdateOrderStatus(ctx, s.db, id, req.Version, req.Status, req.PaymentStatus)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (s *Server) listMessages(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	uid := profile(c).UID
	if _, _, err := s.loadOrder(ctx, id, uid); err != nil {
		respondError(c, err)
		return
	}

	thread, err := s.messages.Thread(ctx, id, uid)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, thread)
}

func (s *Server) sendMessage(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var req sendMessageRequest
	if !bindJSON(c, &req) {
		return
	}

	user := profile(c)
	msgReq := store.SendMessageRequest{
		OrderID:    id,
		SenderID:   user.UID,
		SenderRole: user.Role,
		Body:       req.Body,
	}
	if req.RecipientID != nil {
		msgReq.RecipientID = *req.RecipientID
	}

	msg, err := s.messages.Send(c.Request.Context(), msgReq)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

func (s *Server) markRead(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}

	if err := s.messages.MarkRead(c.Request.Context(), id, profile(c).UID); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) unreadCount(c *gin.Context) {
	uid := profile(c).UID
	count, err := s.messages.UnreadCount(c.Request.Context(), uid)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user_id": uid, "count": count})
}
