// Package broadcast relays applied changesets between instances through
// Redis Pub/Sub so every process can serve its local feed subscribers.
package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/example/osm-edit-engine/internal/feed"
)

const (
	defaultTopicPrefix = "osm:changes:"
	defaultDedupeTTL   = 2 * time.Minute
	maxBackoffDelay    = 30 * time.Second
)

type redisMessage struct {
	Instance    string `json:"instance"`
	ChangesetID int64  `json:"changeset_id"`
	Payload     []byte `json:"payload"`
	EnqueuedAt  int64  `json:"enqueued_at"`
}

// RedisBroadcaster publishes applied-changeset events to Redis and fans them
// back out to local feed subscribers across instances.
type RedisBroadcaster struct {
	client   *redis.Client
	registry *feed.Registry
	logger   zerolog.Logger

	topicPrefix string
	dedupeTTL   time.Duration

	seenMu sync.Mutex
	seen   map[string]time.Time

	latency *prometheus.HistogramVec
}

// NewRedisBroadcaster constructs a broadcaster backed by Redis Pub/Sub.
func NewRedisBroadcaster(client *redis.Client, registry *feed.Registry, logger zerolog.Logger) *RedisBroadcaster {
	histogram := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "broadcast",
		Name:      "publish_to_send_seconds",
		Help:      "Observed latency between publish and delivery to feed subscribers.",
		Buckets:   prometheus.LinearBuckets(0.005, 0.005, 12),
	}, []string{"instance"})

	if err := prometheus.Register(histogram); err != nil {
		if regErr, ok := err.(prometheus.AlreadyRegisteredError); ok {
			histogram = regErr.ExistingCollector.(*prometheus.HistogramVec)
		}
	}

	return &RedisBroadcaster{
		client:      client,
		registry:    registry,
		logger:      logger,
		topicPrefix: defaultTopicPrefix,
		dedupeTTL:   defaultDedupeTTL,
		seen:        make(map[string]time.Time),
		latency:     histogram,
	}
}

// Publish serializes a feed event and sends it to the per-instance topic.
func (b *RedisBroadcaster) Publish(ctx context.Context, event feed.Event) error {
	if b == nil || b.client == nil {
		return errors.New("nil broadcaster")
	}

	payload, err := event.Encode()
	if err != nil {
		return fmt.Errorf("encode feed event: %w", err)
	}

	msg := redisMessage{
		Instance:    event.Instance,
		ChangesetID: event.ChangesetID,
		Payload:     payload,
		EnqueuedAt:  time.Now().UTC().UnixNano(),
	}

	encoded, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode redis payload: %w", err)
	}

	topic := b.topic(event.Instance)
	backoff := time.Second
	for {
		if err := b.client.Publish(ctx, topic, encoded).Err(); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			b.logger.Warn().Err(err).Str("topic", topic).Dur("backoff", backoff).Msg("redis publish failed; retrying")
			select {
			case <-time.After(backoff):
				backoff = minDuration(backoff*2, maxBackoffDelay)
				continue
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	}
}

// Start begins consuming redis pub/sub messages and dispatching them to feed
// subscribers registered locally.
func (b *RedisBroadcaster) Start(ctx context.Context) {
	go b.run(ctx)
}

func (b *RedisBroadcaster) run(ctx context.Context) {
	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return
		}

		pubsub := b.client.PSubscribe(ctx, fmt.Sprintf("%s*", b.topicPrefix))
		if err := b.consume(ctx, pubsub); err != nil && !errors.Is(err, context.Canceled) {
			b.logger.Warn().Err(err).Dur("backoff", backoff).Msg("redis subscription interrupted; retrying")
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
			backoff = minDuration(backoff*2, maxBackoffDelay)
		}
	}
}

func (b *RedisBroadcaster) consume(ctx context.Context, pubsub *redis.PubSub) error {
	defer pubsub.Close()

	ch := pubsub.Channel(redis.WithChannelSize(256))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return errors.New("pubsub channel closed")
			}
			if err := b.process(msg); err != nil {
				b.logger.Warn().Err(err).Msg("failed to process broadcast message")
			}
		}
	}
}

func (b *RedisBroadcaster) process(msg *redis.Message) error {
	var payload redisMessage
	if err := json.Unmarshal([]byte(msg.Payload), &payload); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	if payload.Instance == "" || payload.ChangesetID == 0 {
		return errors.New("incomplete payload")
	}

	if b.isDuplicate(payload.Instance, payload.ChangesetID, payload.EnqueuedAt) {
		return nil
	}

	var latencySeconds float64
	if payload.EnqueuedAt > 0 {
		latencySeconds = float64(time.Since(time.Unix(0, payload.EnqueuedAt))) / float64(time.Second)
	}
	b.latency.WithLabelValues(payload.Instance).Observe(latencySeconds)

	b.registry.Broadcast(payload.Instance, payload.Payload)
	return nil
}

func (b *RedisBroadcaster) topic(instance string) string {
	return fmt.Sprintf("%s%s", b.topicPrefix, instance)
}

// isDuplicate suppresses redelivery of the same upload within the dedupe
// window. A changeset can receive several uploads, so the enqueue timestamp
// participates in the key.
func (b *RedisBroadcaster) isDuplicate(instance string, changesetID, enqueuedAt int64) bool {
	key := fmt.Sprintf("%s:%d:%d", instance, changesetID, enqueuedAt)

	b.seenMu.Lock()
	defer b.seenMu.Unlock()

	if ts, ok := b.seen[key]; ok {
		if time.Since(ts) < b.dedupeTTL {
			return true
		}
	}

	b.seen[key] = time.Now()
	cutoff := time.Now().Add(-b.dedupeTTL)
	for k, ts := range b.seen {
		if ts.Before(cutoff) {
			delete(b.seen, k)
		}
	}
	return false
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}
