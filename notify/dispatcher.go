package notify

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"marketradar/metrics"
	"marketradar/models"
)

// StateFunc receives queue depth and rate-limit state after every change,
// so the run status can surface them live.
type StateFunc func(depth int, rateLimited bool, wait time.Duration)

// Dispatcher is the outbound notification queue. Enqueue is fire-and-forget;
// a single consumer goroutine starts lazily on first enqueue and exits when
// the queue drains.
//
// Delivery per item: success (short fixed pause after), or one retry after a
// provider-specified rate-limit cooldown, or dropped. The rate-limit state is
// global: a 429 pauses the whole queue, not just the offending item.
type Dispatcher struct {
	sender    Sender
	sendDelay time.Duration
	metrics   *metrics.Metrics
	onState   StateFunc
	sleep     func(ctx context.Context, d time.Duration) error

	ctx context.Context

	mu          sync.Mutex
	queue       []models.OutboundNotification
	running     bool
	limited     bool
	limitedWait time.Duration

	wg sync.WaitGroup
}

// NewDispatcher builds a dispatcher delivering through sender. ctx bounds
// all deliveries; cancelling it (process shutdown) stops the consumer.
func NewDispatcher(ctx context.Context, sender Sender, sendDelay time.Duration, m *metrics.Metrics, onState StateFunc) *Dispatcher {
	if onState == nil {
		onState = func(int, bool, time.Duration) {}
	}
	return &Dispatcher{
		sender:    sender,
		sendDelay: sendDelay,
		metrics:   m,
		onState:   onState,
		sleep:     sleepCtx,
		ctx:       ctx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Enqueue appends the item and wakes the consumer if idle. It never blocks
// on delivery.
func (d *Dispatcher) Enqueue(n models.OutboundNotification) {
	d.mu.Lock()
	d.queue = append(d.queue, n)
	depth := len(d.queue)
	start := !d.running
	if start {
		d.running = true
	}
	d.mu.Unlock()

	d.emitState()
	slog.Debug("notification queued", slog.Int("depth", depth), slog.String("title", n.Title))

	if start {
		d.wg.Add(1)
		go d.consume()
	}
}

// Depth returns the number of undelivered items.
func (d *Dispatcher) Depth() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queue)
}

// Drain blocks until the consumer goes idle. Used on shutdown and in tests.
func (d *Dispatcher) Drain() {
	d.wg.Wait()
}

// emitState reports the current depth and rate-limit state together.
// Producers and the consumer both go through here, so an enqueue landing
// during a cooldown cannot clear the rate-limit flag.
func (d *Dispatcher) emitState() {
	d.mu.Lock()
	depth := len(d.queue)
	limited := d.limited
	wait := d.limitedWait
	d.mu.Unlock()

	d.metrics.SetQueueDepth(depth)
	d.metrics.SetRateLimited(limited)
	d.onState(depth, limited, wait)
}

func (d *Dispatcher) setLimited(limited bool, wait time.Duration) {
	d.mu.Lock()
	d.limited = limited
	d.limitedWait = wait
	d.mu.Unlock()
	d.emitState()
}

func (d *Dispatcher) consume() {
	defer d.wg.Done()

	for {
		d.mu.Lock()
		if len(d.queue) == 0 || d.ctx.Err() != nil {
			d.running = false
			d.mu.Unlock()
			d.emitState()
			return
		}
		item := d.queue[0]
		d.queue = d.queue[1:]
		d.mu.Unlock()

		d.emitState()
		d.deliver(item)
	}
}

// deliver attempts one item: at most one rate-limit retry, anything else
// drops the item so it can never block those behind it.
func (d *Dispatcher) deliver(item models.OutboundNotification) {
	for attempt := 0; ; attempt++ {
		err := d.sender.Send(d.ctx, item)
		if err == nil {
			d.metrics.IncWebhook("sent")
			slog.Info("webhook delivered", slog.String("title", item.Title))
			d.sleep(d.ctx, d.sendDelay)
			return
		}

		var rateLimit *RateLimitError
		if errors.As(err, &rateLimit) && attempt == 0 {
			slog.Warn("webhook rate limited",
				slog.Duration("retry_after", rateLimit.RetryAfter),
				slog.String("title", item.Title),
			)
			d.metrics.IncWebhook("rate_limited")
			d.setLimited(true, rateLimit.RetryAfter)

			d.sleep(d.ctx, rateLimit.RetryAfter)

			d.setLimited(false, 0)
			continue
		}

		d.metrics.IncWebhook("dropped")
		slog.Error("webhook dropped",
			slog.String("title", item.Title),
			slog.Any("error", err),
		)
		return
	}
}
