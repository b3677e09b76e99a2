package notifications

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ferreirogomes/nftmarket/metrics"
)

const sendTimeout = 30 * time.Second

// Dispatcher queues notifications and delivers them from a fixed pool of
// worker goroutines. Notify never blocks the caller.
type Dispatcher struct {
	mailer   Mailer
	renderer *Renderer
	log      logrus.FieldLogger
	workers  int

	queue   chan Message
	wg      sync.WaitGroup
	mu      sync.RWMutex
	stopped bool
}

func NewDispatcher(mailer Mailer, renderer *Renderer, queueSize, workers int, log logrus.FieldLogger) *Dispatcher {
	if queueSize <= 0 {
		queueSize = 256
	}
	if workers <= 0 {
		workers = 2
	}
	return &Dispatcher{
		mailer:   mailer,
		renderer: renderer,
		log:      log.WithField("component", "notifications"),
		workers:  workers,
		queue:    make(chan Message, queueSize),
	}
}

// Start launches the workers. They exit once Stop has drained the queue.
func (d *Dispatcher) Start(ctx context.Context) {
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			for msg := range d.queue {
				metrics.SetNotificationQueueDepth(len(d.queue))
				d.deliver(ctx, msg)
			}
		}()
	}
	d.log.WithField("workers", d.workers).Info("notification dispatcher started")
}

// Notify enqueues msg. A full queue drops the message and returns
// ErrQueueFull.
func (d *Dispatcher) Notify(ctx context.Context, msg Message) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.stopped {
		return ErrStopped
	}

	select {
	case d.queue <- msg:
		metrics.SetNotificationQueueDepth(len(d.queue))
		return nil
	default:
		metrics.RecordNotification(string(msg.Kind), "dropped")
		d.log.WithFields(logrus.Fields{
			"kind": msg.Kind,
			"to":   msg.To.Email,
		}).Warn("notification queue full, dropping message")
		return ErrQueueFull
	}
}

// Stop refuses new messages, waits for the backlog to be delivered and
// returns.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	close(d.queue)
	d.mu.Unlock()

	d.wg.Wait()
	d.log.Info("notification dispatcher stopped")
}

func (d *Dispatcher) deliver(ctx context.Context, msg Message) {
	entry := d.log.WithFields(logrus.Fields{
		"kind": msg.Kind,
		"to":   msg.To.Email,
	})

	email, err := d.renderer.Render(msg)
	if err != nil {
		metrics.RecordNotification(string(msg.Kind), "failed")
		entry.WithError(err).Error("render notification")
		return
	}

	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sendTimeout)
	defer cancel()
	if err := d.mailer.Send(sendCtx, email); err != nil {
		metrics.RecordNotification(string(msg.Kind), "failed")
		entry.WithError(err).Error("send notification")
		return
	}
	metrics.RecordNotification(string(msg.Kind), "sent")
	entry.Debug("notification sent")
}
