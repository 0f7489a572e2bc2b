package notify

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"feedbackdesk/internal/domain"
)

type Sender interface {
	SendAlert(ctx context.Context, alert domain.Alert) error
}

type Stats struct {
	Sent    int64
	Failed  int64
	Dropped int64
}

// Dispatcher delivers alerts in the background. Each alert gets at most one
// delivery attempt; a full queue or a closed dispatcher drops the alert.
type Dispatcher struct {
	sender  Sender
	timeout time.Duration
	log     *slog.Logger

	mu     sync.RWMutex
	closed bool
	queue  chan domain.Alert
	done   chan struct{}

	sent, failed, dropped atomic.Int64
}

func NewDispatcher(sender Sender, queueSize int, timeout time.Duration, log *slog.Logger) *Dispatcher {
	if queueSize < 1 {
		queueSize = 1
	}
	d := &Dispatcher{
		sender:  sender,
		timeout: timeout,
		log:     log,
		queue:   make(chan domain.Alert, queueSize),
		done:    make(chan struct{}),
	}
	go d.run()
	return d
}

// NotifyHighSeverity queues alert and returns immediately.
func (d *Dispatcher) NotifyHighSeverity(_ context.Context, alert domain.Alert) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.dropped.Add(1)
		d.log.Warn("notification dropped, dispatcher closed", "item_id", alert.FeedbackID)
		return
	}
	select {
	case d.queue <- alert:
	default:
		d.dropped.Add(1)
		d.log.Warn("notification dropped, queue full", "item_id", alert.FeedbackID)
	}
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for alert := range d.queue {
		if err := d.send(alert); err != nil {
			d.failed.Add(1)
			d.log.Error("high severity notification failed", "item_id", alert.FeedbackID, "error", err)
			continue
		}
		d.sent.Add(1)
	}
}

func (d *Dispatcher) send(alert domain.Alert) (err error) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("notification sender panicked", "panic", fmt.Sprintf("%v", r), "stack", string(debug.Stack()))
			err = fmt.Errorf("sender panic: %v", r)
		}
	}()
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()
	return d.sender.SendAlert(ctx, alert)
}

// Close stops accepting alerts and waits for queued ones until ctx expires.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) Stats() Stats {
	return Stats{Sent: d.sent.Load(), Failed: d.failed.Load(), Dropped: d.dropped.Load()}
}
