// Package cart keeps a signed-in user's cart and turns it into orders. Every
// successful mutation republishes the whole cart to the user's observers.
package cart

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/safar/cosmetics-store/internal/models"
	"github.com/safar/cosmetics-store/internal/realtime"
	"github.com/safar/cosmetics-store/internal/store"
	"github.com/sirupsen/logrus"
)

type Service struct {
	db     *sql.DB
	broker realtime.Broker
	log    *logrus.Entry
}

func NewService(db *sql.DB, broker realtime.Broker) *Service {
	return &Service{
		db:     db,
		broker: broker,
		log:    logrus.WithField("component", "cart"),
	}
}

func (s *Service) Cart(ctx context.Context, userID uuid.UUID) (models.Cart, error) {
	items, err := store.ListCart(ctx, s.db, userID)
	if err != nil {
		return models.Cart{}, err
	}
	return models.NewCart(userID, items), nil
}

func (s *Service) AddToCart(ctx context.Context, userID uuid.UUID, productID, variantID int64, quantity int) (*models.CartItem, error) {
	item, err := store.AddToCart(ctx, s.db, userID, productID, variantID, quantity)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, userID)
	return item, nil
}

func (s *Service) UpdateCartItemQuantity(ctx context.Context, userID uuid.UUID, itemID int64, quantity int) (*models.CartItem, *store.StockWarning, error) {
	item, warning, err := store.UpdateCartItemQuantity(ctx, s.db, userID, itemID, quantity)
	if err != nil {
		return nil, nil, err
	}
	if warning != nil {
		s.log.WithFields(logrus.Fields{
			"user_id":   userID,
			"item_id":   itemID,
			"requested": warning.Requested,
			"available": warning.Available,
		}).Warn("cart quantity clamped to stock")
	}
	s.publish(ctx, userID)
	return item, warning, nil
}

func (s *Service) RemoveFromCart(ctx context.Context, userID uuid.UUID, itemID int64) error {
	if err := store.RemoveFromCart(ctx, s.db, userID, itemID); err != nil {
		return err
	}
	s.publish(ctx, userID)
	return nil
}

func (s *Service) ClearCart(ctx context.Context, userID uuid.UUID) error {
	n, err := store.ClearCart(ctx, s.db, userID)
	if err != nil {
		return err
	}
	s.log.WithFields(logrus.Fields{"user_id": userID, "removed": n}).Debug("cart cleared")
	s.publish(ctx, userID)
	return nil
}

// PlaceOrder returns (nil, nil) when there is nothing to order.
func (s *Service) PlaceOrder(ctx context.Context, userID uuid.UUID) (*models.Order, error) {
	order, err := store.PlaceOrder(ctx, s.db, userID)
	if err != nil {
		s.log.WithError(err).WithField("user_id", userID).Info("order placement rejected")
		return nil, err
	}
	if order == nil {
		return nil, nil
	}

	s.log.WithFields(logrus.Fields{
		"user_id":      userID,
		"order_number": order.OrderNumber,
		"total":        order.TotalAmount.StringFixed(2),
		"lines":        len(order.Items),
	}).Info("order placed")

	s.publish(ctx, userID)
	return order, nil
}

// Watch opens a live view of the user's cart starting with its current
// contents.
func (s *Service) Watch(ctx context.Context, userID uuid.UUID) (*realtime.Feed[models.Cart], error) {
	sub, err := s.broker.Subscribe(ctx, realtime.CartTopic(userID))
	if err != nil {
		return nil, err
	}

	current, err := s.Cart(ctx, userID)
	if err != nil {
		sub.Close()
		return nil, err
	}

	return realtime.NewFeed(sub, &current), nil
}

// publish runs after the write committed, so a broker failure is logged
// rather than returned.
func (s *Service) publish(ctx context.Context, userID uuid.UUID) {
	current, err := s.Cart(ctx, userID)
	if err != nil {
		s.log.WithError(err).WithField("user_id", userID).Warn("reload cart for observers")
		return
	}
	if err := realtime.PublishJSON(ctx, s.broker, realtime.CartTopic(userID), current); err != nil {
		s.log.WithError(err).WithField("user_id", userID).Warn("publish cart update")
	}
}
