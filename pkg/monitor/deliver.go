package monitor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/obsidianstack/agentwatch/internal/notify"
)

// deliveryQueueSize bounds the notifications waiting for the worker.
const deliveryQueueSize = 256

// deliverer sends notifications on its own goroutine so that writers and
// the loop never wait on a channel round trip. The worker starts on the first
// enqueue and runs until stop, which cancels in-flight sends and joins it.
type deliverer struct {
	dispatcher *notify.Dispatcher
	log        *slog.Logger
	timeout    time.Duration

	mu      sync.Mutex
	idle    *sync.Cond
	pending int
	queue   chan notification
	cancel  context.CancelFunc
	done    chan struct{}
}

func newDeliverer(d *notify.Dispatcher, log *slog.Logger, timeout time.Duration) *deliverer {
	dl := &deliverer{dispatcher: d, log: log, timeout: timeout}
	dl.idle = sync.NewCond(&dl.mu)
	return dl
}

// enqueue hands batch to the worker without blocking. When the queue is full
// the oldest waiting notification is dropped.
func (d *deliverer) enqueue(batch []notification) {
	if len(batch) == 0 {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.queue == nil {
		d.startLocked()
	}
	for _, n := range batch {
		d.pending++
		for {
			select {
			case d.queue <- n:
			default:
				select {
				case old := <-d.queue:
					d.pending--
					d.log.Warn("monitor: delivery queue full, dropped notification",
						"alert", old.alert.ID,
						"level", old.policy.Level.String(),
					)
				default:
				}
				continue
			}
			break
		}
	}
}

func (d *deliverer) startLocked() {
	ctx, cancel := context.WithCancel(context.Background())
	d.queue = make(chan notification, deliveryQueueSize)
	d.cancel = cancel
	d.done = make(chan struct{})
	go d.run(ctx, d.queue, d.done)
}

func (d *deliverer) run(ctx context.Context, queue <-chan notification, done chan<- struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case n := <-queue:
			if ctx.Err() != nil {
				d.finished(1)
				return
			}
			sendCtx, cancel := context.WithTimeout(ctx, d.timeout)
			d.dispatcher.Dispatch(sendCtx, n.alert, n.policy.NotificationChannels, n.policy.Contacts)
			cancel()
			d.finished(1)
		}
	}
}

func (d *deliverer) finished(n int) {
	d.mu.Lock()
	d.pending -= n
	if d.pending <= 0 {
		d.pending = 0
		d.idle.Broadcast()
	}
	d.mu.Unlock()
}

// stop cancels in-flight sends and waits up to wait for the worker to exit.
// Notifications still queued are dropped. It reports whether the worker
// exited in time.
func (d *deliverer) stop(wait time.Duration) bool {
	d.mu.Lock()
	if d.queue == nil {
		d.mu.Unlock()
		return true
	}
	queue, done := d.queue, d.done
	d.cancel()
	d.queue, d.cancel, d.done = nil, nil, nil
	d.mu.Unlock()

	joined := true
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-done:
	case <-timer.C:
		joined = false
		d.log.Warn("monitor: delivery worker did not exit in time", "timeout", wait)
	}

	dropped := 0
	for {
		select {
		case <-queue:
			dropped++
			continue
		default:
		}
		break
	}
	if dropped > 0 {
		d.log.Warn("monitor: undelivered notifications dropped on stop", "count", dropped)
		d.finished(dropped)
	}
	return joined
}

// flush blocks until every enqueued notification has been sent or dropped.
func (d *deliverer) flush() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for d.pending > 0 {
		d.idle.Wait()
	}
}
