// Package index provides in-memory lookups over a cache snapshot.
package index

import (
	"sort"
	"strconv"

	"github.com/elonfeng/hexarchive/pkg/puzzle"
)

// Index maps puzzle ids to records for one cache snapshot. It is built per
// request and never updated in place.
type Index struct {
	records []puzzle.Record
	byID    map[string]int
}

// Build indexes records by id. records must already be unique by id, which
// the cache loader guarantees.
func Build(records []puzzle.Record) *Index {
	idx := &Index{
		records: records,
		byID:    make(map[string]int, len(records)),
	}
	for i := range records {
		idx.byID[records[i].ID] = i
	}
	return idx
}

// Get returns the record with the given id.
func (idx *Index) Get(id string) (puzzle.Record, bool) {
	i, ok := idx.byID[id]
	if !ok {
		return puzzle.Record{}, false
	}
	return idx.records[i], true
}

// Len returns the number of indexed records.
func (idx *Index) Len() int { return len(idx.records) }

// Filter controls Newest.
type Filter struct {
	Year        int
	Publication puzzle.Publication
	Limit       int
}

// Newest returns records ordered by date descending.
func (idx *Index) Newest(f Filter) []puzzle.Record {
	var out []puzzle.Record
	for i := len(idx.records) - 1; i >= 0; i-- {
		r := idx.records[i]
		if f.Year != 0 && r.Year != f.Year {
			continue
		}
		if f.Publication != "" && r.Publication != f.Publication {
			continue
		}
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date > out[j].Date })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out
}

// Year groups the puzzles published in one year.
type Year struct {
	Year    string          `json:"year"`
	Puzzles []puzzle.Record `json:"puzzles"`
}

// Decade groups year labels, e.g. "1990s".
type Decade struct {
	Decade string   `json:"decade"`
	Years  []string `json:"years"`
}

// Years groups puzzles by year in ascending date order, and years by decade.
func (idx *Index) Years() ([]Year, []Decade) {
	sorted := make([]puzzle.Record, len(idx.records))
	copy(sorted, idx.records)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Date < sorted[j].Date })

	var years []Year
	for _, r := range sorted {
		label := strconv.Itoa(r.Year)
		if n := len(years); n == 0 || years[n-1].Year != label {
			years = append(years, Year{Year: label})
		}
		years[len(years)-1].Puzzles = append(years[len(years)-1].Puzzles, r)
	}

	var decades []Decade
	for _, y := range years {
		label := decadeOf(y.Year)
		if n := len(decades); n == 0 || decades[n-1].Decade != label {
			decades = append(decades, Decade{Decade: label})
		}
		decades[len(decades)-1].Years = append(decades[len(decades)-1].Years, y.Year)
	}
	return years, decades
}

func decadeOf(year string) string {
	if len(year) < 3 {
		return year + "s"
	}
	return year[:3] + "0s"
}
