package geometry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elonfeng/hexarchive/pkg/puzzle"
)

type staticLoader []puzzle.Record

func (s staticLoader) Load() ([]puzzle.Record, error) { return s, nil }

type failingLoader struct{ err error }

func (f failingLoader) Load() ([]puzzle.Record, error) { return nil, f.err }

func gridRecord(id string, grid *puzzle.HexGrid) puzzle.Record {
	return puzzle.Record{
		ID:          id,
		Publication: puzzle.PublicationAtlantic,
		Date:        "2020-01-05",
		Year:        2020,
		Month:       1,
		Day:         5,
		Title:       "Hexed",
		HexGrid:     grid,
	}
}

func validGrid(id string) *puzzle.HexGrid {
	return &puzzle.HexGrid{
		ID:   id,
		Date: "2020-01-05",
		ClueGroups: map[string][]any{
			"across": {"Plain clue (5)", map[string]any{"n": json.Number("2"), "text": "Object clue (4)"}},
		},
		Extra: map[string]any{
			"rows":  json.Number("7"),
			"cols":  json.Number("7"),
			"cells": []any{"A1", "A2"},
			"notes": "rotated",
		},
	}
}

func TestPrepare(t *testing.T) {
	p := NewPreparer(staticLoader{gridRecord("p1", validGrid("p1"))}, nil)

	pz, err := p.Prepare(context.Background(), "p1")
	require.NoError(t, err)

	assert.Equal(t, "p1", pz.ID)
	assert.Equal(t, "Hexed", pz.Title)
	assert.Equal(t, time.Date(2020, 1, 5, 0, 0, 0, 0, time.UTC), pz.Date)
	assert.Equal(t, 7, pz.Rows)
	assert.Equal(t, 7, pz.Cols)
	assert.Equal(t, []any{"A1", "A2"}, pz.Cells)
	assert.Equal(t, map[string]any{"notes": "rotated"}, pz.Fields)

	require.Len(t, pz.Clues["across"], 2)
	assert.Equal(t, Clue{"text": "Plain clue (5)"}, pz.Clues["across"][0])
	assert.Equal(t, "Object clue (4)", pz.Clues["across"][1]["text"])
}

func TestPrepareDoesNotMutateCache(t *testing.T) {
	grid := validGrid("p1")
	p := NewPreparer(staticLoader{gridRecord("p1", grid)}, nil)

	_, err := p.Prepare(context.Background(), "p1")
	require.NoError(t, err)

	assert.Contains(t, grid.Extra, "rows")
	assert.Equal(t, "p1", grid.ID)
}

func TestPrepareUnknownID(t *testing.T) {
	p := NewPreparer(staticLoader{gridRecord("p1", validGrid("p1"))}, nil)

	_, err := p.Prepare(context.Background(), "missing")
	assert.ErrorIs(t, err, puzzle.ErrNotFound)
}

func TestPrepareWithoutHexGrid(t *testing.T) {
	p := NewPreparer(staticLoader{gridRecord("p1", nil)}, nil)

	_, err := p.Prepare(context.Background(), "p1")
	assert.ErrorIs(t, err, puzzle.ErrNotFound)

	var geomErr *puzzle.GeometryError
	assert.False(t, errors.As(err, &geomErr))
}

func TestPrepareMalformedGrid(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(g *puzzle.HexGrid)
	}{
		{"no clues", func(g *puzzle.HexGrid) { g.ClueGroups = nil }},
		{"empty group", func(g *puzzle.HexGrid) { g.ClueGroups["down"] = []any{} }},
		{"bad clue entry", func(g *puzzle.HexGrid) { g.ClueGroups["down"] = []any{json.Number("3")} }},
		{"zero rows", func(g *puzzle.HexGrid) { g.Extra["rows"] = json.Number("0") }},
		{"fractional cols", func(g *puzzle.HexGrid) { g.Extra["cols"] = json.Number("2.5") }},
		{"cells not array", func(g *puzzle.HexGrid) { g.Extra["cells"] = "A1" }},
		{"bad date", func(g *puzzle.HexGrid) { g.Date = "January" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			grid := validGrid("p1")
			tt.mutate(grid)
			p := NewPreparer(staticLoader{gridRecord("p1", grid)}, nil)

			_, err := p.Prepare(context.Background(), "p1")
			require.Error(t, err)

			var geomErr *puzzle.GeometryError
			require.ErrorAs(t, err, &geomErr)
			assert.Equal(t, "p1", geomErr.ID)
			assert.NotErrorIs(t, err, puzzle.ErrNotFound)
		})
	}
}

func TestPrepareUsesRecordDateWhenGridHasNone(t *testing.T) {
	grid := validGrid("p1")
	grid.Date = ""
	p := NewPreparer(staticLoader{gridRecord("p1", grid)}, nil)

	pz, err := p.Prepare(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, 2020, pz.Date.Year())
}

func TestPrepareCustomBuild(t *testing.T) {
	boom := fmt.Errorf("inconsistent clue references")
	p := NewPreparer(staticLoader{gridRecord("p1", validGrid("p1"))}, func(puzzle.Record, *Grid) (*Puzzle, error) {
		return nil, boom
	})

	_, err := p.Prepare(context.Background(), "p1")
	assert.ErrorIs(t, err, boom)
}

func TestPrepareCorruptCache(t *testing.T) {
	p := NewPreparer(failingLoader{err: fmt.Errorf("load: %w", puzzle.ErrCorruptCache)}, nil)

	_, err := p.Prepare(context.Background(), "p1")
	assert.ErrorIs(t, err, puzzle.ErrCorruptCache)
}

func TestPrepareCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewPreparer(staticLoader{}, nil).Prepare(ctx, "p1")
	assert.ErrorIs(t, err, context.Canceled)
}
