// Command loadtest drives concurrent edit traffic against a running API
// instance and measures apply-to-feed latency through websocket listeners.
package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"os/signal"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/example/osm-edit-engine/internal/feed"
)

type latencySample struct {
	dur time.Duration
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "base URL of the API server")
	instance := flag.String("instance", "default", "API instance to target")
	editors := flag.Int("editors", 50, "number of concurrent editors")
	changesets := flag.Int("changesets", 10, "changesets opened per editor")
	batch := flag.Int("batch", 20, "node creations per changeset upload")
	listeners := flag.Int("listeners", 100, "number of websocket feed listeners")
	flag.Parse()

	zerolog.TimeFieldFormat = time.RFC3339Nano
	logger := log.With().Str("instance", *instance).Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	latencyCh := make(chan latencySample, *listeners**editors**changesets)
	var listenerWG sync.WaitGroup

	wsBase := strings.Replace(*baseURL, "http", "ws", 1)
	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	for i := 0; i < *listeners; i++ {
		listenerWG.Add(1)
		go func() {
			defer listenerWG.Done()
			conn, _, err := dialer.DialContext(ctx, fmt.Sprintf("%s/%s/feed", wsBase, *instance), nil)
			if err != nil {
				logger.Error().Err(err).Msg("feed dial failed")
				return
			}
			defer conn.Close()
			go func() {
				<-ctx.Done()
				conn.Close()
			}()
			for {
				_, payload, err := conn.ReadMessage()
				if err != nil {
					return
				}
				event, err := feed.DecodeEvent(payload)
				if err != nil {
					logger.Warn().Err(err).Msg("undecodable feed event")
					continue
				}
				select {
				case latencyCh <- latencySample{dur: time.Since(event.AppliedAt)}:
				default:
				}
			}
		}()
	}

	client := &http.Client{Timeout: 10 * time.Second}
	apiBase := fmt.Sprintf("%s/%s/api/0.6", *baseURL, *instance)

	start := time.Now()
	var editorWG sync.WaitGroup
	for i := 0; i < *editors; i++ {
		editorWG.Add(1)
		go func(editor int) {
			defer editorWG.Done()
			for j := 0; j < *changesets; j++ {
				if ctx.Err() != nil {
					return
				}
				if err := runChangeset(ctx, client, apiBase, *batch); err != nil {
					logger.Error().Err(err).Int("editor", editor).Msg("changeset failed")
					return
				}
			}
		}(i)
	}

	editorWG.Wait()
	elapsed := time.Since(start)
	stop()
	listenerWG.Wait()
	close(latencyCh)

	total := *editors * *changesets
	logger.Info().
		Int("changesets", total).
		Int("elements", total**batch).
		Dur("elapsed", elapsed).
		Float64("changesets_per_sec", float64(total)/elapsed.Seconds()).
		Msg("edit phase complete")
	report(latencyCh, logger)
}

// runChangeset opens a changeset, uploads one batch of node creations, and
// closes it again.
func runChangeset(ctx context.Context, client *http.Client, apiBase string, batch int) error {
	body := `<osm><changeset><tag k="created_by" v="loadtest"/></changeset></osm>`
	idBytes, err := call(ctx, client, http.MethodPut, apiBase+"/changeset/create", body)
	if err != nil {
		return fmt.Errorf("open changeset: %w", err)
	}
	id := strings.TrimSpace(string(idBytes))

	var sb strings.Builder
	sb.WriteString(`<osmChange version="0.6"><create>`)
	for i := 0; i < batch; i++ {
		lat := rand.Float64()*180 - 90
		lon := rand.Float64()*360 - 180
		fmt.Fprintf(&sb, `<node id="%d" lat="%f" lon="%f" version="0" changeset="%s"/>`, -(i + 1), lat, lon, id)
	}
	sb.WriteString(`</create></osmChange>`)

	if _, err := call(ctx, client, http.MethodPost, fmt.Sprintf("%s/changeset/%s/upload", apiBase, id), sb.String()); err != nil {
		return fmt.Errorf("upload: %w", err)
	}
	if _, err := call(ctx, client, http.MethodPut, fmt.Sprintf("%s/changeset/%s/close", apiBase, id), ""); err != nil {
		return fmt.Errorf("close changeset: %w", err)
	}
	return nil
}

func call(ctx context.Context, client *http.Client, method, url, body string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewBufferString(body))
	if err != nil {
		return nil, err
	}
	if body != "" {
		req.Header.Set("Content-Type", "text/xml")
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s %s: status %d: %s", method, url, resp.StatusCode, strings.TrimSpace(string(data)))
	}
	return data, nil
}

func report(latencies <-chan latencySample, logger zerolog.Logger) {
	var samples []time.Duration
	for s := range latencies {
		samples = append(samples, s.dur)
	}
	if len(samples) == 0 {
		logger.Warn().Msg("no feed samples collected")
		return
	}

	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	percentile := func(p float64) time.Duration {
		idx := int(math.Ceil(p*float64(len(samples)))) - 1
		if idx < 0 {
			idx = 0
		}
		return samples[idx]
	}

	logger.Info().
		Int("samples", len(samples)).
		Dur("p50", percentile(0.50)).
		Dur("p95", percentile(0.95)).
		Dur("p99", percentile(0.99)).
		Dur("max", samples[len(samples)-1]).
		Msg("feed latency distribution")
}
