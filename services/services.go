package services

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ferreirogomes/nftmarket/models"
	"github.com/ferreirogomes/nftmarket/notifications"
	"github.com/ferreirogomes/nftmarket/storage"
)

// Notifier accepts notifications for asynchronous delivery.
type Notifier interface {
	Notify(ctx context.Context, msg notifications.Message) error
}

func newID() string { return uuid.NewString() }

func now() time.Time { return time.Now().UTC() }

func recipient(u models.User) notifications.Recipient {
	return notifications.Recipient{Email: u.Email, Name: u.Name}
}

// notify hands msg to the notifier. Failures are logged and never reach
// the caller; the operation that triggered them has already committed.
func notify(ctx context.Context, n Notifier, log logrus.FieldLogger, msg notifications.Message) {
	if n == nil {
		return
	}
	if err := n.Notify(ctx, msg); err != nil {
		log.WithError(err).WithFields(logrus.Fields{
			"kind": msg.Kind,
			"to":   msg.To.Email,
		}).Warn("notification not queued")
	}
}

// lockUsers locks the given users in ascending id order and returns them
// by id. A fixed order keeps concurrent settlements from deadlocking.
func lockUsers(ctx context.Context, tx storage.Queries, ids ...string) (map[string]models.User, error) {
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)

	users := make(map[string]models.User, len(sorted))
	for _, id := range sorted {
		if _, ok := users[id]; ok {
			continue
		}
		u, err := tx.GetUserForUpdate(ctx, id)
		if err != nil {
			return nil, fromStorage(err, "lock user "+id)
		}
		users[id] = u
	}
	return users, nil
}
