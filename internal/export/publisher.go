package export

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	backoffInitial    = 1 * time.Second
	backoffMax        = 60 * time.Second
	backoffMultiplier = 2.0
	writeTimeout      = 10 * time.Second
)

// RedisClient is the subset of *redis.Client the publisher uses.
type RedisClient interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// PublisherConfig configures a Publisher.
type PublisherConfig struct {
	// Key receives the latest document via SET.
	Key string
	// Channel, when set, also receives every document via PUBLISH.
	Channel string
	// TTL expires Key. Zero keeps it forever.
	TTL time.Duration
	// BufferSize bounds the number of pending documents.
	BufferSize int
}

// Publisher buffers encoded documents and writes them to Redis.
// Publish is non-blocking; Run must be called in a goroutine to drain.
type Publisher struct {
	client RedisClient
	cfg    PublisherConfig
	buf    chan []byte
	sleep  func(ctx context.Context, d time.Duration) bool
}

// NewRedisClient connects to addr. The connection is lazy; nothing is dialled
// until the first command.
func NewRedisClient(addr, password string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
	})
}

// NewPublisher returns a Publisher writing through client.
func NewPublisher(client RedisClient, cfg PublisherConfig) *Publisher {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}
	return &Publisher{
		client: client,
		cfg:    cfg,
		buf:    make(chan []byte, cfg.BufferSize),
		sleep:  sleepCtx,
	}
}

// Publish encodes doc and enqueues it. If the buffer is full the oldest
// document is evicted to make room.
func (p *Publisher) Publish(doc Document) error {
	payload, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("export: encode: %w", err)
	}
	for {
		select {
		case p.buf <- payload:
			return nil
		default:
		}
		select {
		case <-p.buf:
			slog.Warn("export: buffer full, evicted oldest document", "buffer_cap", cap(p.buf))
		default:
		}
	}
}

// Run drains the buffer until ctx is cancelled. A failed write is retried
// with backoff before the next document is taken.
func (p *Publisher) Run(ctx context.Context) {
	bo := newBackoff()
	for {
		select {
		case <-ctx.Done():
			return
		case payload := <-p.buf:
			for {
				err := p.write(ctx, payload)
				if err == nil {
					bo.reset()
					break
				}
				if ctx.Err() != nil {
					return
				}
				wait := bo.next()
				slog.Error("export: redis write failed, will retry",
					"key", p.cfg.Key,
					"err", err,
					"retry_in", wait)
				if !p.sleep(ctx, wait) {
					return
				}
				// A newer document supersedes the failed one.
				select {
				case newer := <-p.buf:
					payload = newer
				default:
				}
			}
		}
	}
}

func (p *Publisher) write(ctx context.Context, payload []byte) error {
	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	if err := p.client.Set(wctx, p.cfg.Key, payload, p.cfg.TTL).Err(); err != nil {
		return fmt.Errorf("set %s: %w", p.cfg.Key, err)
	}
	if p.cfg.Channel != "" {
		if err := p.client.Publish(wctx, p.cfg.Channel, payload).Err(); err != nil {
			return fmt.Errorf("publish %s: %w", p.cfg.Channel, err)
		}
	}
	slog.Debug("export: document published", "key", p.cfg.Key, "bytes", len(payload))
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// backoff implements truncated exponential backoff with jitter.
type backoff struct {
	current time.Duration
}

func newBackoff() *backoff {
	return &backoff{current: backoffInitial}
}

// next returns the current backoff duration and advances the internal state.
func (b *backoff) next() time.Duration {
	d := b.current
	// ±25 % jitter.
	jitter := time.Duration(float64(b.current) * 0.25 * (rand.Float64()*2 - 1)) //nolint:gosec // not crypto
	d += jitter
	if d < 0 {
		d = 0
	}

	b.current = time.Duration(float64(b.current) * backoffMultiplier)
	if b.current > backoffMax {
		b.current = backoffMax
	}
	return d
}

func (b *backoff) reset() {
	b.current = backoffInitial
}
