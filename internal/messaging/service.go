// Package messaging carries order-bound conversations between a buyer and
// the sellers on the order, and keeps each participant's unread counter live.
package messaging

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/safar/cosmetics-store/internal/models"
	"github.com/safar/cosmetics-store/internal/realtime"
	"github.com/safar/cosmetics-store/internal/store"
	"github.com/sirupsen/logrus"
)

// Unread is the payload pushed to a user's unread topic.
type Unread struct {
	UserID uuid.UUID `json:"user_id"`
	Count  int       `json:"count"`
}

type Service struct {
	db     *sql.DB
	broker realtime.Broker
	log    *logrus.Entry
}

func NewService(db *sql.DB, broker realtime.Broker) *Service {
	return &Service{
		db:     db,
		broker: broker,
		log:    logrus.WithField("component", "messaging"),
	}
}

func (s *Service) Send(ctx context.Context, req store.SendMessageRequest) (*models.Message, error) {
	msg, err := store.SendMessage(ctx, s.db, req)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, msg.RecipientID)
	return msg, nil
}

func (s *Service) Thread(ctx context.Context, orderID int64, viewer uuid.UUID) ([]models.Message, error) {
	return store.ListOrderMessages(ctx, s.db, orderID, viewer)
}

func (s *Service) MarkRead(ctx context.Context, orderID int64, reader uuid.UUID) error {
	n, err := store.MarkOrderRead(ctx, s.db, orderID, reader)
	if err != nil {
		return err
	}
	if n > 0 {
		s.publish(ctx, reader)
	}
	return nil
}

func (s *Service) UnreadCount(ctx context.Context, userID uuid.UUID) (int, error) {
	return store.UnreadCount(ctx, s.db, userID)
}

// WatchUnread opens a live unread counter starting with the current value.
func (s *Service) WatchUnread(ctx context.Context, userID uuid.UUID) (*realtime.Feed[Unread], error) {
	sub, err := s.broker.Subscribe(ctx, realtime.UnreadTopic(userID))
	if err != nil {
		return nil, err
	}

	count, err := s.UnreadCount(ctx, userID)
	if err != nil {
		sub.Close()
		return nil, err
	}

	return realtime.NewFeed(sub, &Unread{UserID: userID, Count: count}), nil
}

func (s *Service) publish(ctx context.Context, userID uuid.UUID) {
	count, err := s.UnreadCount(ctx, userID)
	if err != nil {
		s.log.WithError(err).WithField("user_id", userID).Warn("recount unread messages")
		return
	}
	payload := Unread{UserID: userID, Count: count}
	if err := realtime.PublishJSON(ctx, s.broker, realtime.UnreadTopic(userID), payload); err != nil {
		s.log.WithError(err).WithField("user_id", userID).Warn("publish unread count")
	}
}
