package server

import (
	"encoding/xml"
	"net/http"
	"strings"
	"time"

	"github.com/elonfeng/hexarchive/pkg/index"
	"github.com/elonfeng/hexarchive/pkg/puzzle"
)

const feedSize = 50

type atomFeed struct {
	XMLName xml.Name    `xml:"http://www.w3.org/2005/Atom feed"`
	Title   string      `xml:"title"`
	ID      string      `xml:"id"`
	Updated string      `xml:"updated"`
	Links   []atomLink  `xml:"link"`
	Author  atomPerson  `xml:"author"`
	Entries []atomEntry `xml:"entry"`
}

type atomLink struct {
	Href string `xml:"href,attr"`
	Rel  string `xml:"rel,attr,omitempty"`
	Type string `xml:"type,attr,omitempty"`
}

type atomPerson struct {
	Name string `xml:"name"`
}

type atomCategory struct {
	Term string `xml:"term,attr"`
}

type atomEntry struct {
	Title      string         `xml:"title"`
	ID         string         `xml:"id"`
	Updated    string         `xml:"updated"`
	Published  string         `xml:"published"`
	Links      []atomLink     `xml:"link"`
	Categories []atomCategory `xml:"category"`
	Summary    string         `xml:"summary,omitempty"`
}

// buildFeed renders the newest puzzles as an Atom feed. Timestamps come from
// puzzle dates so the output is stable between requests; an empty feed is
// stamped with cacheTime.
func buildFeed(baseURL string, idx *index.Index, cacheTime time.Time) atomFeed {
	base := strings.TrimRight(baseURL, "/")
	records := idx.Newest(index.Filter{Limit: feedSize})

	feed := atomFeed{
		Title:   "Cox & Rathvon Hex Archive",
		ID:      base + "/feed.xml",
		Updated: cacheTime.UTC().Format(time.RFC3339),
		Links: []atomLink{
			{Href: base + "/feed.xml", Rel: "self", Type: "application/atom+xml"},
			{Href: base + "/", Rel: "alternate"},
		},
		Author: atomPerson{Name: "Emily Cox & Henry Rathvon"},
	}
	if len(records) > 0 {
		feed.Updated = feedTime(records[0])
	}

	for _, rec := range records {
		link := base + "/puzzles/" + rec.ID
		feed.Entries = append(feed.Entries, atomEntry{
			Title:      rec.Title,
			ID:         link,
			Updated:    feedTime(rec),
			Published:  feedTime(rec),
			Links:      []atomLink{{Href: link, Rel: "alternate"}},
			Categories: []atomCategory{{Term: string(rec.Publication)}},
			Summary:    summary(rec),
		})
	}
	return feed
}

func feedTime(rec puzzle.Record) string {
	t, err := puzzle.ParseDate(rec.Date)
	if err != nil {
		return time.Unix(0, 0).UTC().Format(time.RFC3339)
	}
	return t.UTC().Format(time.RFC3339)
}

func summary(rec puzzle.Record) string {
	var b strings.Builder
	switch rec.Publication {
	case puzzle.PublicationAtlantic:
		b.WriteString("The Atlantic")
	case puzzle.PublicationWSJ:
		b.WriteString("The Wall Street Journal")
	default:
		b.WriteString(string(rec.Publication))
	}
	b.WriteString(", ")
	b.WriteString(rec.Date)
	return b.String()
}

func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	idx, ok := s.loadIndex(w)
	if !ok {
		return
	}

	base := s.opts.BaseURL
	if base == "" {
		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		base = scheme + "://" + r.Host
	}

	mtime, err := s.cache.ModTime()
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	out, err := xml.MarshalIndent(buildFeed(base, idx, mtime), "", "  ")
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	w.Header().Set("Content-Type", "application/atom+xml; charset=utf-8")
	w.Write([]byte(xml.Header))
	w.Write(out)
}
