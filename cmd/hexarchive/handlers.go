package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/elonfeng/hexarchive/internal/cache"
	"github.com/elonfeng/hexarchive/internal/config"
	"github.com/elonfeng/hexarchive/internal/events"
	"github.com/elonfeng/hexarchive/internal/logging"
	"github.com/elonfeng/hexarchive/internal/scheduler"
	"github.com/elonfeng/hexarchive/internal/secrets"
	"github.com/elonfeng/hexarchive/internal/store"
	"github.com/elonfeng/hexarchive/internal/syncer"
	"github.com/elonfeng/hexarchive/pkg/assets"
	"github.com/elonfeng/hexarchive/pkg/geometry"
	"github.com/elonfeng/hexarchive/pkg/index"
	"github.com/elonfeng/hexarchive/pkg/notify"
	"github.com/elonfeng/hexarchive/pkg/puzzle"
	"github.com/elonfeng/hexarchive/pkg/server"
)

func loadConfig() (*config.Config, error) {
	path := cfgFile
	if path == "" {
		if _, err := os.Stat("config.yaml"); err == nil {
			path = "config.yaml"
		}
	}
	return config.Load(path)
}

// setup loads config and builds the logger. The returned closer flushes the
// log file, if any.
func setup() (*config.Config, *slog.Logger, io.Closer, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load config: %w", err)
	}
	log, closer, err := logging.New(logging.Options{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("build logger: %w", err)
	}
	slog.SetDefault(log)
	return cfg, log, closer, nil
}

func buildCache(cfg *config.Config) *cache.Cache {
	return cache.New(cfg.Cache.Path, cfg.Cache.DefaultPath)
}

func buildNotifier(cfg *config.Config) *notify.Manager {
	var notifiers []notify.Notifier

	if cfg.Notify.Slack.Enabled && cfg.Notify.Slack.WebhookURL != "" {
		notifiers = append(notifiers, notify.NewSlack(cfg.Notify.Slack.WebhookURL))
	}
	if cfg.Notify.Webhook.Enabled && cfg.Notify.Webhook.URL != "" {
		notifiers = append(notifiers, notify.NewWebhook(cfg.Notify.Webhook.URL, cfg.Notify.Webhook.Secret))
	}

	return notify.NewManager(notifiers)
}

func buildEvents(cfg *config.Config) (events.Publisher, error) {
	if !cfg.Events.Enabled {
		return events.Nop{}, nil
	}
	k, err := events.NewKafka(cfg.Events.Brokers)
	if err != nil {
		return nil, fmt.Errorf("connect event brokers: %w", err)
	}
	return k, nil
}

// buildSyncer wires the sync pipeline. The caller must close the returned
// publisher.
func buildSyncer(cfg *config.Config, src syncer.Source, c *cache.Cache, log *slog.Logger) (*syncer.Syncer, events.Publisher, error) {
	pub, err := buildEvents(cfg)
	if err != nil {
		return nil, nil, err
	}
	s := syncer.New(src, c, syncer.Options{
		PuzzlesCollection:  cfg.Remote.PuzzlesCollection,
		HexGridsCollection: cfg.Remote.HexGridsCollection,
		Logger:             log,
		Notifier:           buildNotifier(cfg),
		Events:             pub,
		Topic:              cfg.Events.Topic,
	})
	return s, pub, nil
}

// buildSigner resolves the signing key. A missing key disables signed URLs
// rather than failing startup.
func buildSigner(ctx context.Context, cfg *config.Config, log *slog.Logger) (*assets.Signer, error) {
	key, err := secrets.New(cfg.Secrets.Dir).Get(ctx, cfg.Assets.SigningSecret)
	if errors.Is(err, secrets.ErrNotFound) {
		log.Warn("signing key not configured; asset URLs disabled", "secret", cfg.Assets.SigningSecret)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get signing key: %w", err)
	}
	return assets.NewSigner(cfg.Assets.Root, []byte(key), cfg.Assets.BaseURL)
}

func runSync(jsonOutput bool) error {
	cfg, log, closer, err := setup()
	if err != nil {
		return err
	}
	defer closer.Close()

	db, err := store.Open(cfg.Remote.Driver, cfg.Remote.DSN)
	if err != nil {
		return fmt.Errorf("open store: %w: %w", puzzle.ErrUpstreamUnavailable, err)
	}
	defer db.Close()

	s, pub, err := buildSyncer(cfg, db, buildCache(cfg), log)
	if err != nil {
		return err
	}
	defer pub.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	report, err := s.Run(ctx)
	if err != nil {
		return fmt.Errorf("sync: %w", err)
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{
			"run_id":   report.RunID,
			"written":  report.Written,
			"counts":   report.CountsByName(),
			"skipped":  report.Skipped,
			"duration": report.Duration.String(),
		})
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PUBLICATION\tPUZZLES")
	for _, p := range puzzle.Publications {
		fmt.Fprintf(w, "%s\t%d\n", p, report.Counts[p])
	}
	fmt.Fprintf(w, "total\t%d\n", report.Written)
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "wrote %s in %s\n", cfg.Cache.Path, report.Duration.Round(time.Millisecond))
	return nil
}

func runSeed() error {
	cfg, _, closer, err := setup()
	if err != nil {
		return err
	}
	defer closer.Close()

	c := buildCache(cfg)
	seeded, err := c.Seed()
	if err != nil {
		return fmt.Errorf("seed cache: %w", err)
	}
	if seeded {
		fmt.Fprintf(os.Stderr, "seeded %s\n", c.Path())
	} else {
		fmt.Fprintf(os.Stderr, "%s already exists\n", c.Path())
	}
	return nil
}

func runImport(collection, path string) error {
	cfg, _, closer, err := setup()
	if err != nil {
		return err
	}
	defer closer.Close()

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open export: %w", err)
	}
	defer f.Close()

	docs, err := store.ReadExport(f)
	if err != nil {
		return err
	}

	db, err := store.Open(cfg.Remote.Driver, cfg.Remote.DSN)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	ctx := context.Background()
	if err := db.PutDocuments(ctx, collection, docs); err != nil {
		return err
	}

	counts, err := db.CountDocuments(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "imported %d documents into %s (now %d)\n", len(docs), collection, counts[collection])
	return nil
}

func runLookup(id string, withGeometry bool) error {
	cfg, _, closer, err := setup()
	if err != nil {
		return err
	}
	defer closer.Close()

	c := buildCache(cfg)
	records, err := c.Load()
	if err != nil {
		return err
	}

	rec, ok := index.Build(records).Get(id)
	if !ok {
		return fmt.Errorf("puzzle %s: %w", id, puzzle.ErrNotFound)
	}

	var out any = rec
	if withGeometry {
		pz, err := geometry.NewPreparer(c, nil).PrepareRecord(rec)
		if err != nil {
			return err
		}
		out = pz
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func runSign(bucket, object string, ttl time.Duration) error {
	cfg, log, closer, err := setup()
	if err != nil {
		return err
	}
	defer closer.Close()

	signer, err := buildSigner(context.Background(), cfg, log)
	if err != nil {
		return err
	}
	if signer == nil {
		return fmt.Errorf("no signing key: set secret %q", cfg.Assets.SigningSecret)
	}

	if ttl == 0 {
		ttl = cfg.Assets.ParseTTL()
	}
	u, err := signer.Sign(bucket, object, ttl)
	if err != nil {
		return err
	}
	fmt.Println(u)
	return nil
}

func runServe(port int) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	return serve(ctx, port, false)
}

func runDaemon(port int) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	return serve(ctx, port, true)
}

// serve runs the HTTP server until ctx is done, plus the sync scheduler
// when withScheduler is set.
func serve(ctx context.Context, port int, withScheduler bool) error {
	cfg, log, closer, err := setup()
	if err != nil {
		return err
	}
	defer closer.Close()

	if port == 0 {
		port = cfg.Server.Port
	}

	c := buildCache(cfg)
	if seeded, err := c.Seed(); err != nil {
		return fmt.Errorf("seed cache: %w", err)
	} else if seeded {
		log.Info("seeded cache", "path", c.Path())
	}

	if cfg.Cache.Watch {
		err := c.Watch(ctx, func(n int, err error) {
			if err != nil {
				log.Error("cache changed and is unreadable", "path", c.Path(), "error", err)
				return
			}
			log.Info("cache reloaded", "path", c.Path(), "puzzles", n)
		})
		if err != nil {
			log.Warn("cache watch disabled", "error", err)
		}
	}

	signer, err := buildSigner(ctx, cfg, log)
	if err != nil {
		return err
	}

	db := store.NewLazy(cfg.Remote.Driver, cfg.Remote.DSN)
	defer db.Close()

	s, pub, err := buildSyncer(cfg, db, c, log)
	if err != nil {
		return err
	}
	defer pub.Close()

	if withScheduler {
		sched := scheduler.New(s, cfg.Schedule.ParseSyncInterval(), log)
		go func() {
			if err := sched.Run(ctx); err != nil && ctx.Err() == nil {
				log.Error("scheduler error", "error", err)
			}
		}()
	}

	srv := server.New(c, server.Options{
		Port:         port,
		BaseURL:      cfg.Assets.BaseURL,
		ImagesBucket: cfg.Assets.ImagesBucket,
		PDFBucket:    cfg.Assets.PDFBucket,
		TTL:          cfg.Assets.ParseTTL(),
		Signer:       signer,
		Syncer:       s,
		Logger:       log,
	})
	err = srv.ListenAndServe(ctx)
	log.Info("shutting down")
	return err
}
