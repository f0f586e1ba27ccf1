package syncer

import (
	"fmt"
	"sort"

	"golang.org/x/text/unicode/norm"

	"github.com/elonfeng/hexarchive/pkg/puzzle"
)

// Counts is the number of synced puzzles per publication.
type Counts map[puzzle.Publication]int

func newCounts() Counts {
	c := make(Counts, len(puzzle.Publications))
	for _, p := range puzzle.Publications {
		c[p] = 0
	}
	return c
}

// Result is the output of Transform.
type Result struct {
	Records []puzzle.Record
	Counts  Counts
	// Skipped counts puzzle documents whose publication is not allowed.
	Skipped int
}

// Transform joins puzzle documents with their hex grids and normalises them
// into cache records sorted by date. Documents from publications outside the
// allow-list are skipped. A kept document without an id or with an
// unparseable date fails the whole transform.
func Transform(puzzles, hexgrids []puzzle.Document) (*Result, error) {
	grids := make(map[string]*puzzle.HexGrid, len(hexgrids))
	for _, doc := range hexgrids {
		g, err := puzzle.HexGridFromDocument(doc)
		if err != nil {
			return nil, err
		}
		grids[g.ID] = g
	}

	res := &Result{Counts: newCounts()}
	seen := make(map[string]bool, len(puzzles))

	for _, doc := range puzzles {
		pubName, _ := doc.String("pub")
		pub, ok := puzzle.ParsePublication(pubName)
		if !ok {
			res.Skipped++
			continue
		}

		rec, err := newRecord(doc, pub)
		if err != nil {
			return nil, err
		}
		if seen[rec.ID] {
			return nil, fmt.Errorf("duplicate puzzle id %s", rec.ID)
		}
		seen[rec.ID] = true

		rec.HexGrid = grids[rec.ID]
		res.Counts[pub]++
		res.Records = append(res.Records, rec)
	}

	sort.SliceStable(res.Records, func(i, j int) bool {
		return res.Records[i].Date < res.Records[j].Date
	})
	return res, nil
}

func newRecord(doc puzzle.Document, pub puzzle.Publication) (puzzle.Record, error) {
	id := doc.ID()
	if id == "" {
		return puzzle.Record{}, fmt.Errorf("puzzle document without id")
	}

	raw, err := doc.DateString("date")
	if err != nil {
		return puzzle.Record{}, fmt.Errorf("puzzle %s: %w", id, err)
	}
	if len(raw) > 10 {
		raw = raw[:10]
	}
	year, month, day, err := puzzle.SplitDate(raw)
	if err != nil {
		return puzzle.Record{}, fmt.Errorf("puzzle %s: %w", id, err)
	}

	title, _ := doc.String("title")

	return puzzle.Record{
		ID:          id,
		Title:       norm.NFC.String(title),
		Date:        raw,
		Publication: pub,
		Issue:       doc.Scalar("issue"),
		Number:      doc.Scalar("num"),
		Year:        year,
		Month:       month,
		Day:         day,
	}, nil
}
