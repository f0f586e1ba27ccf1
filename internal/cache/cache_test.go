package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/elonfeng/hexarchive/pkg/puzzle"
)

func scenarioA() puzzle.Record {
	return puzzle.Record{
		ID:          "p1",
		Publication: puzzle.PublicationAtlantic,
		Date:        "2020-01-05",
		Year:        2020,
		Month:       1,
		Day:         5,
		Title:       "X",
		Number:      json.Number("7"),
	}
}

func withHexGrid() puzzle.Record {
	return puzzle.Record{
		ID:          "p2",
		Publication: puzzle.PublicationWSJ,
		Date:        "2021-03-01",
		Year:        2021,
		Month:       3,
		Day:         1,
		Title:       "Y",
		Issue:       "Mar",
		HexGrid: &puzzle.HexGrid{
			ID:   "p2",
			Date: "2021-03-01",
			ClueGroups: map[string][]any{
				"across": {map[string]any{"n": json.Number("1"), "text": "Clue <one> & more"}},
			},
			Extra: map[string]any{
				"rows":  json.Number("5"),
				"cells": []any{"a", "b"},
			},
		},
	}
}

func TestEncodeGolden(t *testing.T) {
	g := goldie.New(t, goldie.WithFixtureDir("testdata/golden"))

	data, err := Encode([]puzzle.Record{scenarioA()})
	require.NoError(t, err)
	g.Assert(t, "scenario_a", data)

	data, err = Encode([]puzzle.Record{scenarioA(), withHexGrid()})
	require.NoError(t, err)
	g.Assert(t, "with_hexgrid", data)
}

func TestEncodeEmpty(t *testing.T) {
	data, err := Encode(nil)
	require.NoError(t, err)
	assert.Equal(t, "[]\n", string(data))
}

func TestSaveLoadRoundTrip(t *testing.T) {
	c := New(filepath.Join(t.TempDir(), "data.json"), "")
	records := []puzzle.Record{scenarioA(), withHexGrid()}

	require.NoError(t, c.Save(records))

	loaded, err := c.Load()
	require.NoError(t, err)
	assert.Equal(t, records, loaded)
}

func TestSaveIsDeterministic(t *testing.T) {
	c := New(filepath.Join(t.TempDir(), "data.json"), "")
	records := []puzzle.Record{scenarioA(), withHexGrid()}

	require.NoError(t, c.Save(records))
	first, err := c.Bytes()
	require.NoError(t, err)

	require.NoError(t, c.Save(records))
	second, err := c.Bytes()
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestSaveIsAtomicUnderConcurrentLoads(t *testing.T) {
	c := New(filepath.Join(t.TempDir(), "data.json"), "")
	small := []puzzle.Record{scenarioA()}
	large := []puzzle.Record{scenarioA(), withHexGrid()}
	require.NoError(t, c.Save(small))

	done := make(chan struct{})
	var g errgroup.Group

	g.Go(func() error {
		defer close(done)
		for i := 0; i < 200; i++ {
			next := small
			if i%2 == 0 {
				next = large
			}
			if err := c.Save(next); err != nil {
				return err
			}
		}
		return nil
	})

	for r := 0; r < 4; r++ {
		g.Go(func() error {
			for {
				select {
				case <-done:
					return nil
				default:
				}
				loaded, err := c.Load()
				if err != nil {
					return err
				}
				if !assert.ObjectsAreEqual(small, loaded) && !assert.ObjectsAreEqual(large, loaded) {
					return fmt.Errorf("load returned a mixed snapshot of %d records", len(loaded))
				}
			}
		})
	}

	require.NoError(t, g.Wait())
}

func TestLoadOrdersByDate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.json")
	content := `[
  {"id": "late", "publication": "wsj", "date": "2021-03-01", "year": 2021, "month": 3, "day": 1, "title": "B", "issue": null, "number": null},
  {"id": "early", "publication": "atlantic", "date": "2020-12-25", "year": 2020, "month": 12, "day": 25, "title": "A", "issue": null, "number": null}
]`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	records, err := New(path, "").Load()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "2020-12-25", records[0].Date)
	assert.Equal(t, "2021-03-01", records[1].Date)
}

func TestLoadCorrupt(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"invalid json", `[{"id": `},
		{"object", `{"id": "p1"}`},
		{"null", `null`},
		{"empty", ``},
		{"trailing", `[] []`},
		{"bad publication", `[{"id": "p1", "publication": "nyt", "date": "2020-01-05", "year": 2020, "month": 1, "day": 5}]`},
		{"inconsistent day", `[{"id": "p1", "publication": "wsj", "date": "2020-01-05", "year": 2020, "month": 1, "day": 6}]`},
		{"missing id", `[{"publication": "wsj", "date": "2020-01-05", "year": 2020, "month": 1, "day": 5}]`},
		{"duplicate id", `[
			{"id": "p1", "publication": "wsj", "date": "2020-01-05", "year": 2020, "month": 1, "day": 5},
			{"id": "p1", "publication": "wsj", "date": "2020-01-06", "year": 2020, "month": 1, "day": 6}]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "data.json")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o644))

			_, err := New(path, "").Load()
			require.Error(t, err)
			assert.ErrorIs(t, err, puzzle.ErrCorruptCache)
		})
	}
}

func TestSeedCopiesDefault(t *testing.T) {
	dir := t.TempDir()
	defaultPath := filepath.Join(dir, "default.json")
	data, err := Encode([]puzzle.Record{scenarioA()})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(defaultPath, data, 0o644))

	c := New(filepath.Join(dir, "tmp", "data.json"), defaultPath)
	seeded, err := c.Seed()
	require.NoError(t, err)
	assert.True(t, seeded)

	got, err := os.ReadFile(c.Path())
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestSeedKeepsExistingCache(t *testing.T) {
	dir := t.TempDir()
	defaultPath := filepath.Join(dir, "default.json")
	require.NoError(t, os.WriteFile(defaultPath, []byte("[]\n"), 0o644))

	c := New(filepath.Join(dir, "data.json"), defaultPath)
	require.NoError(t, c.Save([]puzzle.Record{scenarioA()}))

	seeded, err := c.Seed()
	require.NoError(t, err)
	assert.False(t, seeded)

	records, err := c.Load()
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestSeedWithoutDefaultWritesEmptyList(t *testing.T) {
	c := New(filepath.Join(t.TempDir(), "data.json"), "")

	seeded, err := c.Seed()
	require.NoError(t, err)
	assert.True(t, seeded)

	records, err := c.Load()
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestLoadFallsBackToDefault(t *testing.T) {
	dir := t.TempDir()
	defaultPath := filepath.Join(dir, "default.json")
	data, err := Encode([]puzzle.Record{scenarioA()})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(defaultPath, data, 0o644))

	c := New(filepath.Join(dir, "data.json"), defaultPath)
	records, err := c.Load()
	require.NoError(t, err)
	require.Len(t, records, 1)

	_, err = os.Stat(c.Path())
	assert.ErrorIs(t, err, os.ErrNotExist, "load must not create the writable cache")
}

func TestLoadMissingWithoutDefault(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "data.json"), "").Load()
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestModTime(t *testing.T) {
	dir := t.TempDir()
	def := filepath.Join(dir, "default.json")
	require.NoError(t, os.WriteFile(def, []byte("[]\n"), 0o644))
	stamp := time.Date(2020, 1, 5, 0, 0, 0, 0, time.UTC)
	require.NoError(t, os.Chtimes(def, stamp, stamp))

	c := New(filepath.Join(dir, "data.json"), def)
	mt, err := c.ModTime()
	require.NoError(t, err)
	assert.True(t, stamp.Equal(mt))

	require.NoError(t, c.Save([]puzzle.Record{scenarioA()}))
	mt, err = c.ModTime()
	require.NoError(t, err)
	assert.True(t, mt.After(stamp))

	_, err = New(filepath.Join(dir, "absent.json"), "").ModTime()
	assert.Error(t, err)
}

func TestWatchReportsChanges(t *testing.T) {
	c := New(filepath.Join(t.TempDir(), "data.json"), "")
	require.NoError(t, c.Save(nil))

	type change struct {
		n   int
		err error
	}
	changes := make(chan change, 64)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, c.Watch(ctx, func(n int, err error) {
		changes <- change{n, err}
	}))

	require.NoError(t, c.Save([]puzzle.Record{scenarioA()}))
	waitFor(t, changes, func(ch change) bool { return ch.err == nil && ch.n == 1 })

	require.NoError(t, os.WriteFile(c.Path(), []byte("{broken"), 0o644))
	waitFor(t, changes, func(ch change) bool { return ch.err != nil })
}

func waitFor[T any](t *testing.T, ch <-chan T, match func(T) bool) {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case v := <-ch:
			if match(v) {
				return
			}
		case <-timeout:
			t.Fatal("timed out waiting for cache change")
		}
	}
}
