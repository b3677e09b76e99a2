package services

import (
	"context"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/ferreirogomes/nftmarket/models"
	"github.com/ferreirogomes/nftmarket/notifications"
	"github.com/ferreirogomes/nftmarket/storage"
)

type AdminService struct {
	store    storage.Store
	notifier Notifier
	log      logrus.FieldLogger
}

func NewAdminService(store storage.Store, notifier Notifier, log logrus.FieldLogger) *AdminService {
	return &AdminService{store: store, notifier: notifier, log: log.WithField("component", "admin")}
}

func (s *AdminService) Stats(ctx context.Context) (models.MarketStats, error) {
	stats, err := s.store.Stats(ctx)
	return stats, fromStorage(err, "load stats")
}

// SendReviewDigest tells every admin how many NFTs, deposits and
// withdrawals are waiting for review. Nothing is sent when the queues are
// empty. It returns the number of admins notified.
func (s *AdminService) SendReviewDigest(ctx context.Context) (int, error) {
	stats, err := s.Stats(ctx)
	if err != nil {
		return 0, err
	}
	if stats.PendingReviews() == 0 {
		s.log.Debug("review queues empty, no digest sent")
		return 0, nil
	}

	data := map[string]string{
		"pending_nfts":        strconv.Itoa(stats.NFTsByStatus[models.NFTStatusPending]),
		"pending_deposits":    strconv.Itoa(stats.PendingDeposits),
		"pending_withdrawals": strconv.Itoa(stats.PendingWithdrawals),
	}

	sent := 0
	page := storage.Page{Limit: 200}
	for {
		admins, err := s.store.ListUsers(ctx, storage.UserFilter{Role: models.RoleAdmin, Page: page})
		if err != nil {
			return sent, fromStorage(err, "list admins")
		}
		for _, a := range admins {
			notify(ctx, s.notifier, s.log, notifications.Message{
				Kind: notifications.KindReviewDigest,
				To:   recipient(a),
				Data: data,
			})
			sent++
		}
		if len(admins) < page.Limit {
			break
		}
		page.Offset += page.Limit
	}

	s.log.WithFields(logrus.Fields{"admins": sent, "pending": stats.PendingReviews()}).Info("review digest sent")
	return sent, nil
}
