package main

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/ferreirogomes/nftmarket/config"
	"github.com/ferreirogomes/nftmarket/handlers"
	"github.com/ferreirogomes/nftmarket/metrics"
	"github.com/ferreirogomes/nftmarket/services"
)

const jobTimeout = 2 * time.Minute

// newScheduler registers the periodic jobs. An empty schedule disables
// its job.
func newScheduler(cfg config.SchedulerConfig, admin *services.AdminService, limiter *handlers.RateLimiter, log logrus.FieldLogger) (*cron.Cron, error) {
	c := cron.New(cron.WithChain(cron.Recover(cron.DefaultLogger)))
	log = log.WithField("component", "scheduler")

	jobs := []struct {
		name     string
		schedule string
		run      func(ctx context.Context) (logrus.Fields, error)
	}{
		{"review_digest", cfg.ReviewDigest, func(ctx context.Context) (logrus.Fields, error) {
			n, err := admin.SendReviewDigest(ctx)
			return logrus.Fields{"admins_notified": n}, err
		}},
		{"limiter_cleanup", cfg.LimiterCleanup, func(context.Context) (logrus.Fields, error) {
			return logrus.Fields{"removed": limiter.Cleanup(), "tracked": limiter.Len()}, nil
		}},
	}

	for _, j := range jobs {
		if j.schedule == "" {
			log.WithField("job", j.name).Info("job disabled")
			continue
		}
		j := j
		_, err := c.AddFunc(j.schedule, func() {
			ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
			defer cancel()

			fields, err := j.run(ctx)
			metrics.RecordJobRun(j.name, err == nil)
			entry := log.WithField("job", j.name).WithFields(fields)
			if err != nil {
				entry.WithError(err).Error("job failed")
				return
			}
			entry.Debug("job finished")
		})
		if err != nil {
			return nil, fmt.Errorf("schedule %s %q: %w", j.name, j.schedule, err)
		}
	}
	return c, nil
}
