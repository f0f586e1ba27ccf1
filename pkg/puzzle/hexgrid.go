package puzzle

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
)

// HexGrid is the geometry and clue data for one puzzle. Fields other than
// id, date and clue_groups are carried through untouched in Extra.
type HexGrid struct {
	ID         string
	Date       string
	ClueGroups map[string][]any
	Extra      map[string]any
}

// HexGridFromDocument builds a HexGrid from a remote document. A clue_groups
// value of unexpected shape is kept verbatim in Extra so the problem surfaces
// when the puzzle is prepared, not during sync.
func HexGridFromDocument(doc Document) (*HexGrid, error) {
	id := doc.ID()
	if id == "" {
		return nil, fmt.Errorf("hexgrid document has no id")
	}
	g := &HexGrid{ID: id, Extra: make(map[string]any)}
	for k, v := range doc {
		switch k {
		case "id":
		case "date":
			date, err := doc.DateString("date")
			if err != nil {
				return nil, fmt.Errorf("hexgrid %s: %w", id, err)
			}
			g.Date = date
		case "clue_groups":
			if groups, ok := parseClueGroups(v); ok {
				g.ClueGroups = groups
			} else {
				g.Extra[k] = v
			}
		default:
			g.Extra[k] = v
		}
	}
	return g, nil
}

func parseClueGroups(v any) (map[string][]any, bool) {
	raw, ok := v.(map[string]any)
	if !ok {
		return nil, false
	}
	groups := make(map[string][]any, len(raw))
	for name, entries := range raw {
		list, ok := entries.([]any)
		if !ok {
			return nil, false
		}
		groups[name] = list
	}
	return groups, true
}

// Fields returns the grid as a flat key-value mapping.
func (g *HexGrid) Fields() map[string]any {
	m := maps.Clone(g.Extra)
	if m == nil {
		m = make(map[string]any)
	}
	m["id"] = g.ID
	if g.Date != "" {
		m["date"] = g.Date
	}
	if g.ClueGroups != nil {
		m["clue_groups"] = g.ClueGroups
	}
	return m
}

// MarshalJSON encodes the grid as a single key-sorted object.
func (g HexGrid) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(g.Fields()); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// UnmarshalJSON decodes a grid object, keeping numbers exact.
func (g *HexGrid) UnmarshalJSON(data []byte) error {
	doc, err := DecodeDocument(data)
	if err != nil {
		return err
	}
	parsed, err := HexGridFromDocument(doc)
	if err != nil {
		return err
	}
	*g = *parsed
	return nil
}
