package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/ferreirogomes/nftmarket/models"
	"github.com/ferreirogomes/nftmarket/notifications"
	"github.com/ferreirogomes/nftmarket/storage"
)

type NewsletterService struct {
	store    storage.Store
	notifier Notifier
	log      logrus.FieldLogger
}

func NewNewsletterService(store storage.Store, notifier Notifier, log logrus.FieldLogger) *NewsletterService {
	return &NewsletterService{store: store, notifier: notifier, log: log.WithField("component", "newsletter")}
}

// Subscribe is idempotent and reports whether the address was new.
func (s *NewsletterService) Subscribe(ctx context.Context, email string) (bool, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return false, err
	}
	created, err := s.store.Subscribe(ctx, &models.NewsletterSubscription{ID: newID(), Email: email, CreatedAt: now()})
	if err != nil {
		return false, fromStorage(err, "subscribe")
	}
	return created, nil
}

func (s *NewsletterService) Unsubscribe(ctx context.Context, email string) error {
	return fromStorage(s.store.Unsubscribe(ctx, strings.ToLower(strings.TrimSpace(email))), "unsubscribe")
}

func (s *NewsletterService) List(ctx context.Context) ([]models.NewsletterSubscription, error) {
	subs, err := s.store.ListSubscriptions(ctx)
	return subs, fromStorage(err, "list subscriptions")
}

// BroadcastResult counts what a broadcast managed to queue.
type BroadcastResult struct {
	Queued  int `json:"queued"`
	Dropped int `json:"dropped"`
}

// Broadcast queues one newsletter notification per subscriber.
func (s *NewsletterService) Broadcast(ctx context.Context, subject, body string) (BroadcastResult, error) {
	subject, body = strings.TrimSpace(subject), strings.TrimSpace(body)
	if subject == "" || body == "" {
		return BroadcastResult{}, validationf("subject and body are required")
	}
	subs, err := s.List(ctx)
	if err != nil {
		return BroadcastResult{}, err
	}

	var res BroadcastResult
	for _, sub := range subs {
		err := s.notifier.Notify(ctx, notifications.Message{
			Kind:    notifications.KindNewsletter,
			To:      notifications.Recipient{Email: sub.Email},
			Subject: subject,
			Data:    map[string]string{"body": body},
		})
		switch {
		case err == nil:
			res.Queued++
		case errors.Is(err, notifications.ErrQueueFull):
			res.Dropped++
		default:
			return res, fmt.Errorf("queue newsletter: %w", err)
		}
	}
	s.log.WithFields(logrus.Fields{"queued": res.Queued, "dropped": res.Dropped}).Info("newsletter broadcast")
	return res, nil
}
