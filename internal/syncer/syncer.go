// Package syncer refreshes the local puzzle cache from the remote document
// store.
package syncer

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/elonfeng/hexarchive/internal/events"
	"github.com/elonfeng/hexarchive/internal/store"
	"github.com/elonfeng/hexarchive/pkg/notify"
	"github.com/elonfeng/hexarchive/pkg/puzzle"
)

// Source lists raw documents from the remote store.
type Source interface {
	ListDocuments(ctx context.Context, collection string) ([]puzzle.Document, error)
}

// Saver persists a full record set, replacing whatever was there.
type Saver interface {
	Save(records []puzzle.Record) error
}

// Options tune a Syncer. The zero value is usable.
type Options struct {
	PuzzlesCollection  string
	HexGridsCollection string
	Logger             *slog.Logger
	Notifier           *notify.Manager
	Events             events.Publisher
	Topic              string
}

// Syncer runs the fetch, transform and save pipeline.
type Syncer struct {
	source Source
	cache  Saver
	opts   Options
	now    func() time.Time
}

// Report describes a successful sync.
type Report struct {
	RunID     string
	Written   int
	Counts    Counts
	Skipped   int
	StartedAt time.Time
	Duration  time.Duration
}

// CountsByName returns the counts keyed by publication name.
func (r *Report) CountsByName() map[string]int {
	out := make(map[string]int, len(r.Counts))
	for pub, n := range r.Counts {
		out[string(pub)] = n
	}
	return out
}

// Summary is a one-line human readable description, e.g.
// "12 puzzles (atlantic: 7, wsj: 5)".
func (r *Report) Summary() string {
	pubs := make([]string, 0, len(r.Counts))
	for pub := range r.Counts {
		pubs = append(pubs, string(pub))
	}
	sort.Strings(pubs)

	parts := make([]string, 0, len(pubs))
	for _, pub := range pubs {
		parts = append(parts, fmt.Sprintf("%s: %d", pub, r.Counts[puzzle.Publication(pub)]))
	}
	return fmt.Sprintf("%d puzzles (%s)", r.Written, strings.Join(parts, ", "))
}

// New creates a Syncer reading from source and writing to cache.
func New(source Source, cache Saver, opts Options) *Syncer {
	if opts.PuzzlesCollection == "" {
		opts.PuzzlesCollection = store.CollectionPuzzles
	}
	if opts.HexGridsCollection == "" {
		opts.HexGridsCollection = store.CollectionHexGrids
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Events == nil {
		opts.Events = events.Nop{}
	}
	if opts.Topic == "" {
		opts.Topic = events.TopicSynced
	}
	return &Syncer{source: source, cache: cache, opts: opts, now: time.Now}
}

// Run performs one sync. On any error the cache is left untouched.
// Fetch failures wrap puzzle.ErrUpstreamUnavailable.
func (s *Syncer) Run(ctx context.Context) (*Report, error) {
	started := s.now()
	runID := uuid.NewString()
	log := s.opts.Logger.With("run_id", runID)

	var puzzles, hexgrids []puzzle.Document
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		docs, err := s.fetch(gctx, s.opts.PuzzlesCollection)
		puzzles = docs
		return err
	})
	g.Go(func() error {
		docs, err := s.fetch(gctx, s.opts.HexGridsCollection)
		hexgrids = docs
		return err
	})
	if err := g.Wait(); err != nil {
		log.Error("sync fetch failed", "error", err)
		s.notifyFailure(ctx, runID, started, err)
		return nil, err
	}
	log.Debug("fetched documents", "puzzles", len(puzzles), "hexgrids", len(hexgrids))

	res, err := Transform(puzzles, hexgrids)
	if err != nil {
		log.Error("sync transform failed", "error", err)
		s.notifyFailure(ctx, runID, started, err)
		return nil, fmt.Errorf("transform documents: %w", err)
	}
	if res.Skipped > 0 {
		log.Debug("skipped puzzles outside the publication allow-list", "skipped", res.Skipped)
	}

	if err := s.cache.Save(res.Records); err != nil {
		log.Error("sync save failed", "error", err)
		s.notifyFailure(ctx, runID, started, err)
		return nil, fmt.Errorf("save cache: %w", err)
	}

	report := &Report{
		RunID:     runID,
		Written:   len(res.Records),
		Counts:    res.Counts,
		Skipped:   res.Skipped,
		StartedAt: started,
		Duration:  s.now().Sub(started),
	}

	attrs := []any{"written", report.Written, "skipped", report.Skipped, "duration", report.Duration}
	for _, pub := range puzzle.Publications {
		attrs = append(attrs, string(pub), report.Counts[pub])
	}
	log.Info("sync complete", attrs...)

	s.announce(ctx, log, report)
	return report, nil
}

func (s *Syncer) fetch(ctx context.Context, collection string) ([]puzzle.Document, error) {
	docs, err := s.source.ListDocuments(ctx, collection)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w: %w", collection, puzzle.ErrUpstreamUnavailable, err)
	}
	return docs, nil
}

// announce fans the report out to notifiers and the event stream. Failures
// here are logged only: the cache is already replaced.
func (s *Syncer) announce(ctx context.Context, log *slog.Logger, r *Report) {
	if s.opts.Notifier.HasNotifiers() {
		n := &notify.Notification{
			Title:    "Puzzle sync complete",
			Body:     r.Summary(),
			RunID:    r.RunID,
			Written:  r.Written,
			Counts:   r.CountsByName(),
			Skipped:  r.Skipped,
			Duration: r.Duration,
		}
		if err := s.opts.Notifier.Broadcast(ctx, n); err != nil {
			log.Warn("sync notification failed", "error", err)
		}
	}

	key, value, err := events.Synced{
		RunID:      r.RunID,
		Written:    r.Written,
		Counts:     r.CountsByName(),
		Skipped:    r.Skipped,
		FinishedAt: r.StartedAt.Add(r.Duration).UTC(),
	}.Encode()
	if err != nil {
		log.Warn("encode sync event failed", "error", err)
		return
	}
	if err := s.opts.Events.Publish(ctx, s.opts.Topic, key, value); err != nil {
		log.Warn("publish sync event failed", "topic", s.opts.Topic, "error", err)
	}
}

func (s *Syncer) notifyFailure(ctx context.Context, runID string, started time.Time, cause error) {
	if !s.opts.Notifier.HasNotifiers() {
		return
	}
	n := &notify.Notification{
		Title:    "Puzzle sync failed",
		Body:     cause.Error(),
		RunID:    runID,
		Failed:   true,
		Duration: s.now().Sub(started),
	}
	if err := s.opts.Notifier.Broadcast(ctx, n); err != nil {
		s.opts.Logger.Warn("sync notification failed", "run_id", runID, "error", err)
	}
}
