package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/elonfeng/hexarchive/pkg/puzzle"
)

// ReadExport parses a collection export. Two shapes are accepted: an array
// of documents that each carry an "id", or an object mapping id to document
// body. Numbers are kept exact.
func ReadExport(r io.Reader) ([]puzzle.Document, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read export: %w", err)
	}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("read export: empty input")
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()

	switch trimmed[0] {
	case '[':
		var docs []puzzle.Document
		if err := dec.Decode(&docs); err != nil {
			return nil, fmt.Errorf("decode export: %w", err)
		}
		for i, doc := range docs {
			if doc == nil || doc.ID() == "" {
				return nil, fmt.Errorf("decode export: entry %d has no id", i)
			}
		}
		return docs, nil
	case '{':
		var byID map[string]puzzle.Document
		if err := dec.Decode(&byID); err != nil {
			return nil, fmt.Errorf("decode export: %w", err)
		}
		ids := make([]string, 0, len(byID))
		for id := range byID {
			ids = append(ids, id)
		}
		sort.Strings(ids)

		docs := make([]puzzle.Document, 0, len(ids))
		for _, id := range ids {
			doc := byID[id]
			if doc == nil {
				doc = puzzle.Document{}
			}
			doc["id"] = id
			docs = append(docs, doc)
		}
		return docs, nil
	default:
		return nil, fmt.Errorf("decode export: expected array or object")
	}
}
