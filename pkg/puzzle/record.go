package puzzle

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Publication identifies the magazine or newspaper a puzzle ran in.
type Publication string

const (
	PublicationAtlantic Publication = "atlantic"
	PublicationWSJ      Publication = "wsj"
)

// Publications is the allow-list of publications kept in the cache.
var Publications = []Publication{PublicationAtlantic, PublicationWSJ}

// ParsePublication reports whether s names an allowed publication.
func ParsePublication(s string) (Publication, bool) {
	for _, p := range Publications {
		if string(p) == s {
			return p, true
		}
	}
	return "", false
}

// Record is one published puzzle as stored in the cache file.
// Fields are declared in key order so the encoded cache is key-sorted.
type Record struct {
	Date        string      `json:"date"`
	Day         int         `json:"day"`
	HexGrid     *HexGrid    `json:"hexgrid,omitempty"`
	ID          string      `json:"id"`
	Issue       any         `json:"issue"`
	Month       int         `json:"month"`
	Number      any         `json:"number"`
	Publication Publication `json:"publication"`
	Title       string      `json:"title"`
	Year        int         `json:"year"`
}

// Validate checks the invariants every cached record must hold.
func (r *Record) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("record has no id")
	}
	if _, ok := ParsePublication(string(r.Publication)); !ok {
		return fmt.Errorf("record %s: publication %q not allowed", r.ID, r.Publication)
	}
	y, m, d, err := SplitDate(r.Date)
	if err != nil {
		return fmt.Errorf("record %s: %w", r.ID, err)
	}
	if y != r.Year || m != r.Month || d != r.Day {
		return fmt.Errorf("record %s: year/month/day %d-%d-%d disagree with date %s",
			r.ID, r.Year, r.Month, r.Day, r.Date)
	}
	return nil
}

// ParseDate parses the date portion of an ISO date or timestamp string.
func ParseDate(s string) (time.Time, error) {
	if len(s) > 10 {
		s = s[:10]
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return t, nil
}

// SplitDate returns the year, month and day of an ISO date string.
func SplitDate(s string) (year, month, day int, err error) {
	t, err := ParseDate(s)
	if err != nil {
		return 0, 0, 0, err
	}
	return t.Year(), int(t.Month()), t.Day(), nil
}

// Document is a raw key-value document from the remote store. Numbers are
// json.Number values.
type Document map[string]any

// DecodeDocument parses a JSON object, keeping numbers exact.
func DecodeDocument(data []byte) (Document, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var doc Document
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	if doc == nil {
		return nil, fmt.Errorf("decode document: not an object")
	}
	return doc, nil
}

// ID returns the document's "id" field.
func (d Document) ID() string {
	s, _ := d.String("id")
	return s
}

// String returns the field as a string when it holds one.
func (d Document) String(key string) (string, bool) {
	s, ok := d[key].(string)
	return s, ok
}

// DateString returns the field rendered as an ISO date or timestamp string.
func (d Document) DateString(key string) (string, error) {
	switch v := d[key].(type) {
	case string:
		return v, nil
	case time.Time:
		return v.UTC().Format(time.DateTime), nil
	case nil:
		return "", fmt.Errorf("field %s missing", key)
	default:
		return "", fmt.Errorf("field %s has unsupported type %T", key, v)
	}
}

// Scalar returns an issue or number field normalised for the cache:
// integers and floats become json.Number, strings stay strings, anything else
// (including absence) is nil.
func (d Document) Scalar(key string) any {
	switch v := d[key].(type) {
	case string, json.Number:
		return v
	case int:
		return json.Number(strconv.Itoa(v))
	case int64:
		return json.Number(strconv.FormatInt(v, 10))
	case float64:
		return json.Number(strconv.FormatFloat(v, 'f', -1, 64))
	default:
		return nil
	}
}
