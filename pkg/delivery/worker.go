// Package delivery drains the notification queue into the messaging gateway.
// Delivery is at-least-once: a message is marked sent only after the gateway
// accepted it, so a crash between the two resends it once its lease expires.
package delivery

import (
	"context"
	"errors"
	"time"

	"github.com/as3contender/alex-orator-bot/pkg/config"
	"github.com/as3contender/alex-orator-bot/pkg/errs"
	"github.com/as3contender/alex-orator-bot/pkg/logger"
	"github.com/as3contender/alex-orator-bot/pkg/queue"
	"golang.org/x/sync/errgroup"
)

// Gateway sends one message to its recipient.
type Gateway interface {
	Send(ctx context.Context, msg queue.Message) error
}

// Options tunes a Worker. Zero values take the config defaults.
type Options struct {
	BatchSize     int
	Concurrency   int
	CheckInterval time.Duration
	DrainTimeout  time.Duration
	// DispatchTimeout bounds a single Send; zero leaves it to the gateway.
	DispatchTimeout time.Duration
	// LeaseRenewInterval is how often an in-flight dispatch renews its
	// claim; zero renews three times per claim TTL.
	LeaseRenewInterval time.Duration
}

func OptionsFrom(cfg config.WorkerConfig) Options {
	return Options{
		BatchSize:       cfg.BatchSize,
		Concurrency:     cfg.Concurrency,
		CheckInterval:   cfg.CheckInterval(),
		DrainTimeout:    cfg.DrainTimeout(),
		DispatchTimeout: cfg.DispatchTimeout(),
	}
}

func (o Options) withDefaults() Options {
	d := config.Default().Worker
	if o.BatchSize <= 0 {
		o.BatchSize = d.BatchSize
	}
	if o.Concurrency <= 0 {
		o.Concurrency = d.Concurrency
	}
	if o.CheckInterval <= 0 {
		o.CheckInterval = d.CheckInterval()
	}
	if o.DrainTimeout <= 0 {
		o.DrainTimeout = d.DrainTimeout()
	}
	return o
}

type Worker struct {
	queue   *queue.Queue
	gateway Gateway
	opts    Options
}

func NewWorker(q *queue.Queue, gateway Gateway, opts Options) *Worker {
	opts = opts.withDefaults()
	if opts.LeaseRenewInterval <= 0 {
		opts.LeaseRenewInterval = max(q.ClaimTTL()/3, time.Millisecond)
	}
	return &Worker{queue: q, gateway: gateway, opts: opts}
}

// Run polls until ctx is cancelled. A batch in flight at cancellation is
// given DrainTimeout to finish before its dispatches are cancelled too.
func (w *Worker) Run(ctx context.Context) error {
	logger.Info("delivery worker started",
		"batch_size", w.opts.BatchSize,
		"concurrency", w.opts.Concurrency,
		"check_interval", w.opts.CheckInterval)
	for {
		if ctx.Err() != nil {
			logger.Info("delivery worker stopped")
			return nil
		}
		claimed, err := w.RunOnce(ctx)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			logger.Error("failed to poll message queue", "error", err)
		}
		if claimed > 0 && err == nil {
			continue
		}
		if !sleep(ctx, w.opts.CheckInterval) {
			logger.Info("delivery worker stopped")
			return nil
		}
	}
}

// RunOnce claims one batch and dispatches it. It returns after every
// dispatch of the batch has finished.
func (w *Worker) RunOnce(ctx context.Context) (int, error) {
	batch, err := w.queue.Claim(ctx, w.opts.BatchSize)
	if err != nil {
		return 0, err
	}
	if len(batch) == 0 {
		return 0, nil
	}
	logger.Debug("claimed message batch", "count", len(batch))

	dctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	defer cancel()
	stopDrain := context.AfterFunc(ctx, func() {
		logger.Info("draining in-flight batch", "count", len(batch), "timeout", w.opts.DrainTimeout)
		timer := time.NewTimer(w.opts.DrainTimeout)
		defer timer.Stop()
		select {
		case <-timer.C:
			logger.Warn("drain timeout reached, abandoning dispatches")
			cancel()
		case <-dctx.Done():
		}
	})
	defer stopDrain()

	g := new(errgroup.Group)
	g.SetLimit(w.opts.Concurrency)
	for _, msg := range batch {
		g.Go(func() error {
			w.dispatch(dctx, msg)
			return nil
		})
	}
	_ = g.Wait()

	if logger.Enabled(logger.DEBUG) {
		if backlog, err := w.queue.Pending(ctx); err == nil {
			logger.Debug("message batch done", "count", len(batch), "backlog", backlog)
		}
	}
	return len(batch), nil
}

func (w *Worker) dispatch(ctx context.Context, msg queue.Message) {
	sendCtx, abort := context.WithCancel(ctx)
	defer abort()
	if w.opts.DispatchTimeout > 0 {
		var cancel context.CancelFunc
		sendCtx, cancel = context.WithTimeout(sendCtx, w.opts.DispatchTimeout)
		defer cancel()
	}

	stopRenew := w.keepLease(ctx, msg, abort)
	err := w.gateway.Send(sendCtx, msg)
	stopRenew()

	if err != nil {
		logger.Warn("message delivery failed",
			"message_id", msg.ID,
			"recipient_id", msg.RecipientID,
			"attempt", msg.Attempts+1,
			"error", errs.Delivery(msg.ID, err))
		if relErr := w.queue.Release(ctx, msg, err); relErr != nil && !errors.Is(relErr, queue.ErrLeaseLost) {
			logger.Error("failed to release message", "message_id", msg.ID, "error", relErr)
		}
		return
	}

	switch err := w.queue.MarkSent(ctx, msg); {
	case errors.Is(err, queue.ErrLeaseLost):
		logger.Warn("lease expired before delivery was recorded", "message_id", msg.ID)
	case err != nil:
		logger.Error("failed to mark message sent", "message_id", msg.ID, "error", err)
	default:
		logger.Debug("message delivered", "message_id", msg.ID, "recipient_id", msg.RecipientID)
	}
}

// keepLease renews the claim on msg every LeaseRenewInterval until the
// returned stop func is called. If the lease is lost anyway the send is
// aborted, since another worker may already own the message.
func (w *Worker) keepLease(ctx context.Context, msg queue.Message, abort context.CancelFunc) (stop func()) {
	done := make(chan struct{})
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		ticker := time.NewTicker(w.opts.LeaseRenewInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			switch err := w.queue.Extend(ctx, msg); {
			case errors.Is(err, queue.ErrLeaseLost):
				logger.Warn("lease lost during dispatch, aborting send", "message_id", msg.ID)
				abort()
				return
			case err != nil:
				logger.Warn("failed to renew message lease", "message_id", msg.ID, "error", err)
			}
		}
	}()
	return func() {
		close(done)
		<-finished
	}
}

// sleep waits d or until ctx is done; it reports false on cancellation.
func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
