package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/elonfeng/hexarchive/internal/cache"
	"github.com/elonfeng/hexarchive/internal/syncer"
	"github.com/elonfeng/hexarchive/pkg/assets"
	"github.com/elonfeng/hexarchive/pkg/geometry"
	"github.com/elonfeng/hexarchive/pkg/index"
	"github.com/elonfeng/hexarchive/pkg/puzzle"
)

// Cache is the read side of the local puzzle cache.
type Cache interface {
	Load() ([]puzzle.Record, error)
	Bytes() ([]byte, error)
	ModTime() (time.Time, error)
}

// Syncer runs one refresh from the remote store.
type Syncer interface {
	Run(ctx context.Context) (*syncer.Report, error)
}

// Options configures a Server. Signer and Syncer may be nil: asset URLs are
// then reported as null and /update answers 503.
type Options struct {
	Port         int
	BaseURL      string
	ImagesBucket string
	PDFBucket    string
	TTL          time.Duration
	Signer       *assets.Signer
	Syncer       Syncer
	Build        geometry.BuildFunc
	Logger       *slog.Logger
}

// Server provides the HTTP API.
type Server struct {
	cache    Cache
	preparer *geometry.Preparer
	opts     Options
	log      *slog.Logger
}

// New creates a new HTTP server.
func New(c Cache, opts Options) *Server {
	if opts.Port == 0 {
		opts.Port = 8080
	}
	if opts.TTL == 0 {
		opts.TTL = assets.DefaultTTL
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Server{
		cache:    c,
		preparer: geometry.NewPreparer(c, opts.Build),
		opts:     opts,
		log:      opts.Logger,
	}
}

// Handler returns the routed API. "/" and "/puzzles/{id}" are the default
// views that unknown or unrenderable puzzles redirect to.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handlePuzzles)
	mux.HandleFunc("GET /puzzles/{id}", s.handlePuzzle)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /api/v1/puzzles", s.handlePuzzles)
	mux.HandleFunc("GET /api/v1/puzzles/{id}", s.handlePuzzle)
	mux.HandleFunc("GET /api/v1/puzzles/{id}/geometry", s.handleGeometry)
	mux.HandleFunc("GET /api/v1/years", s.handleYears)
	mux.HandleFunc("GET /puzzles/{id}/pdf", s.handlePDF)
	mux.HandleFunc("GET /data.json", s.handleData)
	mux.HandleFunc("GET /feed.xml", s.handleFeed)
	mux.HandleFunc("/update", s.handleUpdate)
	if s.opts.Signer != nil {
		mux.Handle("GET /assets/{bucket}/{object...}", s.opts.Signer.Handler())
	}
	return mux
}

// ListenAndServe starts the HTTP server and shuts it down when ctx is done.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.opts.Port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("hexarchive server listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown server: %w", err)
		}
		return nil
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// loadIndex rebuilds the lookup index from the current cache. Failures are
// written as 500; a corrupt cache is never served as an empty list.
func (s *Server) loadIndex(w http.ResponseWriter) (*index.Index, bool) {
	records, err := s.cache.Load()
	if err != nil {
		if errors.Is(err, puzzle.ErrCorruptCache) {
			s.log.Error("cache is corrupt; trigger a sync", "error", err)
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return nil, false
	}
	return index.Build(records), true
}

func (s *Server) handlePuzzles(w http.ResponseWriter, r *http.Request) {
	var f index.Filter
	q := r.URL.Query()
	if v := q.Get("year"); v != "" {
		year, err := strconv.Atoi(v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid year"})
			return
		}
		f.Year = year
	}
	if v := q.Get("publication"); v != "" {
		pub, ok := puzzle.ParsePublication(v)
		if !ok {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown publication"})
			return
		}
		f.Publication = pub
	}
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid limit"})
			return
		}
		f.Limit = limit
	}

	idx, ok := s.loadIndex(w)
	if !ok {
		return
	}
	records := idx.Newest(f)
	if records == nil {
		records = []puzzle.Record{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data":  records,
		"count": len(records),
	})
}

type puzzleResponse struct {
	Puzzle      puzzle.Record `json:"puzzle"`
	ImageURL    *string       `json:"image_url"`
	SolutionURL *string       `json:"solution_url"`
}

func (s *Server) handlePuzzle(w http.ResponseWriter, r *http.Request) {
	idx, ok := s.loadIndex(w)
	if !ok {
		return
	}
	rec, ok := idx.Get(r.PathValue("id"))
	if !ok {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}

	image, err := s.signedURL(s.opts.ImagesBucket, assets.PuzzleImage(rec))
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	solution, err := s.signedURL(s.opts.ImagesBucket, assets.SolutionImage(rec))
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, puzzleResponse{Puzzle: rec, ImageURL: image, SolutionURL: solution})
}

// signedURL returns nil when signing is disabled or the object is missing.
func (s *Server) signedURL(bucket, object string) (*string, error) {
	if s.opts.Signer == nil {
		return nil, nil
	}
	u, err := s.opts.Signer.Sign(bucket, object, s.opts.TTL)
	if errors.Is(err, puzzle.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *Server) handleGeometry(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	pz, err := s.preparer.Prepare(r.Context(), id)

	var geomErr *puzzle.GeometryError
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, pz)
	case errors.Is(err, puzzle.ErrNotFound):
		http.Redirect(w, r, "/puzzles/"+id, http.StatusFound)
	case errors.As(err, &geomErr):
		s.log.Warn("puzzle geometry unusable", "id", geomErr.ID, "error", geomErr.Err)
		http.Redirect(w, r, "/puzzles/"+id, http.StatusFound)
	default:
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
}

func (s *Server) handleYears(w http.ResponseWriter, r *http.Request) {
	idx, ok := s.loadIndex(w)
	if !ok {
		return
	}
	years, decades := idx.Years()
	if years == nil {
		years = []index.Year{}
	}
	if decades == nil {
		decades = []index.Decade{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"years":   years,
		"decades": decades,
	})
}

func (s *Server) handleData(w http.ResponseWriter, r *http.Request) {
	data, err := s.cache.Bytes()
	if err == nil {
		_, err = cache.Decode(data)
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	if s.opts.Syncer == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "sync is not configured"})
		return
	}

	// A client that disconnects does not cancel the sync.
	report, err := s.opts.Syncer.Run(context.WithoutCancel(r.Context()))
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, puzzle.ErrUpstreamUnavailable) {
			status = http.StatusBadGateway
		}
		writeJSON(w, status, map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"run_id":  report.RunID,
		"written": report.Written,
		"counts":  report.CountsByName(),
		"skipped": report.Skipped,
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
