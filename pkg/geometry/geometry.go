// Package geometry turns a cached puzzle's hex grid into a renderable puzzle.
package geometry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"time"

	"github.com/elonfeng/hexarchive/pkg/index"
	"github.com/elonfeng/hexarchive/pkg/puzzle"
)

// Loader returns the current cache snapshot.
type Loader interface {
	Load() ([]puzzle.Record, error)
}

// Grid is a hex grid reshaped for rendering: clue_groups is renamed to Clues,
// the date is parsed and the grid's own id is dropped.
type Grid struct {
	Date   time.Time
	Clues  map[string][]any
	Fields map[string]any
}

// NewGrid reshapes a cached hex grid. fallbackDate is used when the grid
// carries no date of its own.
func NewGrid(g *puzzle.HexGrid, fallbackDate string) (*Grid, error) {
	raw := g.Date
	if raw == "" {
		raw = fallbackDate
	}
	date, err := puzzle.ParseDate(raw)
	if err != nil {
		return nil, err
	}
	fields := maps.Clone(g.Extra)
	if fields == nil {
		fields = make(map[string]any)
	}
	return &Grid{Date: date, Clues: g.ClueGroups, Fields: fields}, nil
}

// Puzzle is the prepared geometry handed to the renderer.
type Puzzle struct {
	ID          string             `json:"id"`
	Title       string             `json:"title"`
	Publication puzzle.Publication `json:"publication"`
	Date        time.Time          `json:"date"`
	Rows        int                `json:"rows,omitempty"`
	Cols        int                `json:"cols,omitempty"`
	Size        int                `json:"size,omitempty"`
	Cells       []any              `json:"cells,omitempty"`
	Clues       map[string][]Clue  `json:"clues"`
	Fields      map[string]any     `json:"fields,omitempty"`
}

// Clue is one clue entry. Plain string entries become {"text": s}.
type Clue map[string]any

// BuildFunc constructs the puzzle geometry for a record.
type BuildFunc func(rec puzzle.Record, grid *Grid) (*Puzzle, error)

// Preparer looks up puzzles in the cache and builds their geometry.
type Preparer struct {
	cache Loader
	build BuildFunc
}

// NewPreparer creates a preparer. A nil build uses Build.
func NewPreparer(cache Loader, build BuildFunc) *Preparer {
	if build == nil {
		build = Build
	}
	return &Preparer{cache: cache, build: build}
}

// Prepare returns the geometry for puzzle id. Unknown ids and puzzles without
// a hex grid return puzzle.ErrNotFound; malformed grids return a
// *puzzle.GeometryError. Cache failures are returned as is.
func (p *Preparer) Prepare(ctx context.Context, id string) (*Puzzle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	records, err := p.cache.Load()
	if err != nil {
		return nil, err
	}

	rec, ok := index.Build(records).Get(id)
	if !ok {
		return nil, fmt.Errorf("puzzle %s: %w", id, puzzle.ErrNotFound)
	}
	return p.PrepareRecord(rec)
}

// PrepareRecord builds the geometry for an already looked-up record.
func (p *Preparer) PrepareRecord(rec puzzle.Record) (*Puzzle, error) {
	if rec.HexGrid == nil {
		return nil, fmt.Errorf("puzzle %s has no hexgrid: %w", rec.ID, puzzle.ErrNotFound)
	}

	grid, err := NewGrid(rec.HexGrid, rec.Date)
	if err != nil {
		return nil, &puzzle.GeometryError{ID: rec.ID, Err: err}
	}

	pz, err := p.build(rec, grid)
	if err != nil {
		return nil, &puzzle.GeometryError{ID: rec.ID, Err: err}
	}
	return pz, nil
}

var errNoClues = errors.New("no clue groups")

// Build is the default BuildFunc. It checks the grid dimensions and clue
// entries and lifts the known geometry fields out of Fields.
func Build(rec puzzle.Record, grid *Grid) (*Puzzle, error) {
	if len(grid.Clues) == 0 {
		return nil, errNoClues
	}

	pz := &Puzzle{
		ID:          rec.ID,
		Title:       rec.Title,
		Publication: rec.Publication,
		Date:        grid.Date,
		Clues:       make(map[string][]Clue, len(grid.Clues)),
		Fields:      maps.Clone(grid.Fields),
	}

	if title, ok := pz.Fields["title"].(string); ok && title != "" {
		pz.Title = title
		delete(pz.Fields, "title")
	}

	for _, dim := range []struct {
		key string
		dst *int
	}{{"rows", &pz.Rows}, {"cols", &pz.Cols}, {"size", &pz.Size}} {
		v, ok := pz.Fields[dim.key]
		if !ok {
			continue
		}
		n, err := positiveInt(v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", dim.key, err)
		}
		*dim.dst = n
		delete(pz.Fields, dim.key)
	}

	if v, ok := pz.Fields["cells"]; ok {
		cells, ok := v.([]any)
		if !ok {
			return nil, fmt.Errorf("cells: expected array, got %T", v)
		}
		pz.Cells = cells
		delete(pz.Fields, "cells")
	}

	for name, entries := range grid.Clues {
		if len(entries) == 0 {
			return nil, fmt.Errorf("clue group %q is empty", name)
		}
		clues := make([]Clue, 0, len(entries))
		for i, entry := range entries {
			switch e := entry.(type) {
			case string:
				clues = append(clues, Clue{"text": e})
			case map[string]any:
				clues = append(clues, Clue(e))
			default:
				return nil, fmt.Errorf("clue group %q entry %d: unexpected %T", name, i, entry)
			}
		}
		pz.Clues[name] = clues
	}

	if len(pz.Fields) == 0 {
		pz.Fields = nil
	}
	return pz, nil
}

func positiveInt(v any) (int, error) {
	var n int64
	switch x := v.(type) {
	case json.Number:
		i, err := x.Int64()
		if err != nil {
			return 0, fmt.Errorf("not an integer: %s", x)
		}
		n = i
	case int:
		n = int64(x)
	case int64:
		n = x
	case float64:
		if x != float64(int64(x)) {
			return 0, fmt.Errorf("not an integer: %v", x)
		}
		n = int64(x)
	default:
		return 0, fmt.Errorf("not a number: %T", v)
	}
	if n <= 0 {
		return 0, fmt.Errorf("must be positive, got %d", n)
	}
	return int(n), nil
}
