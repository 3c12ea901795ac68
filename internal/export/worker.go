// Package export periodically publishes full planet dumps of each instance
// to object storage.
package export

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"sync"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/rs/zerolog"

	"github.com/example/osm-edit-engine/internal/api"
	"github.com/example/osm-edit-engine/internal/engine"
	"github.com/example/osm-edit-engine/internal/wire"
)

const (
	defaultInterval       = 15 * time.Second
	defaultApplyThreshold = int64(50)
)

// Worker tracks applied-change volume per instance and emits an XML planet
// export to object storage once the threshold is exceeded.
type Worker struct {
	boot   *api.Bootstrapper
	object *minio.Client
	bucket string

	interval       time.Duration
	applyThreshold int64

	mu      sync.Mutex
	pending map[string]int64

	logger zerolog.Logger
}

// NewWorker constructs an export worker. A zero interval falls back to the
// default.
func NewWorker(boot *api.Bootstrapper, object *minio.Client, bucket string, interval time.Duration, logger zerolog.Logger) *Worker {
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Worker{
		boot:           boot,
		object:         object,
		bucket:         bucket,
		interval:       interval,
		applyThreshold: defaultApplyThreshold,
		pending:        make(map[string]int64),
		logger:         logger,
	}
}

// Start subscribes to every instance engine and begins the periodic export
// loop.
func (w *Worker) Start(ctx context.Context) {
	for _, name := range w.boot.Names() {
		instance, ok := w.boot.Get(name)
		if !ok {
			continue
		}
		name := name
		instance.Engine().Subscribe(func(ac engine.AppliedChange) {
			w.mu.Lock()
			w.pending[name] += int64(ac.Change.Size())
			w.mu.Unlock()
		})
	}
	go w.loop(ctx)
}

func (w *Worker) loop(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.runOnce(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (w *Worker) runOnce(ctx context.Context) {
	for _, name := range w.boot.Names() {
		if err := w.processInstance(ctx, name); err != nil {
			w.logger.Error().Err(err).Str("instance", name).Msg("planet export failed")
		}
	}
}

func (w *Worker) processInstance(ctx context.Context, name string) error {
	if w.object == nil {
		return fmt.Errorf("object storage client not configured")
	}

	w.mu.Lock()
	pending := w.pending[name]
	w.mu.Unlock()
	if pending < w.applyThreshold {
		return nil
	}

	instance, ok := w.boot.Get(name)
	if !ok {
		return fmt.Errorf("unknown instance %q", name)
	}

	doc := wire.NewOsm()
	doc.Append(instance.Store().Snapshot(true)...)

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode planet export: %w", err)
	}

	objectPath := fmt.Sprintf("exports/%s/planet-%s.osm", name, time.Now().UTC().Format("20060102T150405Z"))
	size := int64(buf.Len())
	if _, err := w.object.PutObject(ctx, w.bucket, objectPath, &buf, size, minio.PutObjectOptions{ContentType: "text/xml"}); err != nil {
		return fmt.Errorf("upload planet export: %w", err)
	}

	w.mu.Lock()
	w.pending[name] -= pending
	w.mu.Unlock()

	exportCount.WithLabelValues(name).Inc()
	exportBytes.WithLabelValues(name).Add(float64(size))
	w.logger.Info().Str("instance", name).Str("object", objectPath).Int64("bytes", size).Msg("planet export created")
	return nil
}
