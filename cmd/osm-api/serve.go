package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/example/osm-edit-engine/internal/api"
	"github.com/example/osm-edit-engine/internal/broadcast"
	"github.com/example/osm-edit-engine/internal/changeset"
	"github.com/example/osm-edit-engine/internal/config"
	"github.com/example/osm-edit-engine/internal/engine"
	"github.com/example/osm-edit-engine/internal/export"
	"github.com/example/osm-edit-engine/internal/feed"
	"github.com/example/osm-edit-engine/internal/importer"
	"github.com/example/osm-edit-engine/internal/journal"
	"github.com/example/osm-edit-engine/internal/observability"
	"github.com/example/osm-edit-engine/internal/osm"
	"github.com/example/osm-edit-engine/internal/server"
	"github.com/example/osm-edit-engine/internal/store"
	"github.com/example/osm-edit-engine/internal/user"
)

var (
	seedFiles []string
	replay    bool
)

func init() {
	RootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringSliceVar(&seedFiles, "seed", nil, "PBF extract to preload, as <instance>=<path> or <path> for the first instance")
	serveCmd.Flags().BoolVar(&replay, "replay", false, "rebuild in-memory state from the change journal at boot")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the editing API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		zerolog.TimeFieldFormat = time.RFC3339Nano

		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("load configuration: %w", err)
		}

		logger := log.With().Str("app", cfg.AppName).Logger()
		observability.RegisterRuntimeCollectors()

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		resources, err := config.NewResources(ctx, cfg)
		if err != nil {
			return fmt.Errorf("initialize resources: %w", err)
		}
		defer resources.Close()

		telemetryShutdown, err := observability.Start(ctx, observability.Config{
			ServiceName:  cfg.AppName,
			MetricsAddr:  cfg.MetricsAddr,
			OTLPEndpoint: cfg.OTLPEndpoint,
		}, resources.HealthCheck, logger)
		if err != nil {
			return fmt.Errorf("initialize telemetry: %w", err)
		}
		defer telemetryShutdown(context.Background())

		seeds, err := parseSeeds(cfg.Instances, seedFiles)
		if err != nil {
			return err
		}

		users := user.NewDirectory()
		boot := api.NewBootstrapper()
		feedRegistry := feed.NewRegistry()
		gateway := feed.NewGateway(feedRegistry, logger, feed.GatewayConfig{})

		var broadcaster *broadcast.RedisBroadcaster
		if resources.Redis != nil {
			broadcaster = broadcast.NewRedisBroadcaster(resources.Redis, feedRegistry, logger)
			broadcaster.Start(ctx)
		}

		for _, name := range cfg.Instances {
			instanceLogger := logger.With().Str("instance", name).Logger()

			st := store.New()
			reg := changeset.NewRegistry()
			eng := engine.New(st, instanceLogger)
			jrnl := journal.New(resources.Postgres, name)

			if err := jrnl.EnsureSchema(ctx); err != nil {
				return fmt.Errorf("journal schema for %s: %w", name, err)
			}
			if replay {
				if err := replayJournal(ctx, jrnl, eng, reg, instanceLogger); err != nil {
					return fmt.Errorf("replay journal for %s: %w", name, err)
				}
			}
			if path, ok := seeds[name]; ok {
				if err := seedInstance(ctx, st, path, instanceLogger); err != nil {
					return fmt.Errorf("seed %s from %s: %w", name, path, err)
				}
			}

			boot.Register(api.NewInstance(name, st, reg, eng, jrnl, users, instanceLogger))

			name := name
			eng.Subscribe(func(ac engine.AppliedChange) {
				event := feed.Event{
					Instance:    name,
					ChangesetID: ac.ChangesetID,
					Result:      ac.Result,
					AppliedAt:   ac.AppliedAt,
				}
				if broadcaster != nil {
					if err := broadcaster.Publish(ctx, event); err != nil {
						instanceLogger.Error().Err(err).Msg("broadcast publish failed")
					}
					return
				}
				payload, err := event.Encode()
				if err != nil {
					instanceLogger.Error().Err(err).Msg("encode feed event failed")
					return
				}
				feedRegistry.Broadcast(name, payload)
			})
		}

		if resources.Object != nil {
			export.NewWorker(boot, resources.Object, cfg.ObjectBucket, cfg.ExportInterval, logger).Start(ctx)
		}

		srv := server.New(boot, users, gateway, cfg.AnonymousUser, logger)
		httpServer := &http.Server{Addr: cfg.HTTPListenAddr, Handler: srv.Router()}

		go func() {
			logger.Info().Str("addr", cfg.HTTPListenAddr).Msg("http server starting")
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error().Err(err).Msg("http server failed")
			}
		}()

		logger.Info().Strs("instances", cfg.Instances).Msg("server dependencies initialized")

		<-ctx.Done()
		logger.Info().Msg("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("forced shutdown")
			return nil
		}
		logger.Info().Msg("shutdown complete")
		return nil
	},
}

// parseSeeds maps seed flags onto instance names. A bare path seeds the
// first configured instance.
func parseSeeds(instances, flags []string) (map[string]string, error) {
	seeds := make(map[string]string, len(flags))
	known := make(map[string]bool, len(instances))
	for _, name := range instances {
		known[name] = true
	}

	for _, raw := range flags {
		name, path := instances[0], raw
		if idx := strings.Index(raw, "="); idx >= 0 {
			name, path = raw[:idx], raw[idx+1:]
		}
		if !known[name] {
			return nil, fmt.Errorf("seed references unknown instance %q", name)
		}
		seeds[name] = path
	}
	return seeds, nil
}

func seedInstance(ctx context.Context, st *store.Store, path string, logger zerolog.Logger) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	stats, err := importer.New(st, logger).Run(ctx, f)
	if err != nil {
		return err
	}
	logger.Info().Int64("elements", stats.Total()).Str("path", path).Msg("instance seeded")
	return nil
}

// replayJournal re-applies every journaled batch in order and restores the
// replayed changesets in the registry, closed, under their original ids.
// Elements whose recorded diff entry failed are skipped so the rebuilt state
// matches what the batch actually left behind; a batch that still fails
// validation is logged and skipped rather than aborting the boot.
func replayJournal(ctx context.Context, jrnl *journal.Journal, eng *engine.Engine, reg *changeset.Registry, logger zerolog.Logger) error {
	recovered := make(map[int64]osm.Changeset)
	var replayed, skipped int

	err := jrnl.Replay(ctx, func(rec journal.Record) error {
		if _, seen := recovered[rec.ChangesetID]; !seen {
			recovered[rec.ChangesetID] = osm.Changeset{
				ID:        rec.ChangesetID,
				CreatedAt: rec.AppliedAt,
				ClosedAt:  rec.AppliedAt,
				UID:       rec.UID,
				User:      rec.User,
			}
		}

		change := rec.AppliedElements()
		if change.Empty() {
			return nil
		}

		identity := engine.Identity{UID: rec.UID, User: rec.User}
		if _, err := eng.ApplyChangeset(ctx, rec.ChangesetID, change, identity); err != nil {
			if engine.IsValidation(err) {
				logger.Warn().Err(err).Int64("seq", rec.Seq).Int64("changeset", rec.ChangesetID).Msg("skipping journaled batch")
				skipped++
				return nil
			}
			return fmt.Errorf("replay batch %d: %w", rec.Seq, err)
		}
		replayed++
		return nil
	})
	if err != nil {
		return err
	}

	for _, cs := range recovered {
		reg.Restore(cs)
	}
	if replayed > 0 || skipped > 0 {
		logger.Info().Int("batches", replayed).Int("skipped", skipped).Int("changesets", len(recovered)).Msg("journal replayed")
	}
	return nil
}
