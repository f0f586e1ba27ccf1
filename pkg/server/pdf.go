package server

import (
	"errors"
	"mime"
	"net/http"

	"github.com/elonfeng/hexarchive/pkg/assets"
	"github.com/elonfeng/hexarchive/pkg/puzzle"
)

// handlePDF redirects to a signed URL for the puzzle PDF, or streams it as
// an attachment when ?download is set.
func (s *Server) handlePDF(w http.ResponseWriter, r *http.Request) {
	idx, ok := s.loadIndex(w)
	if !ok {
		return
	}
	id := r.PathValue("id")
	rec, ok := idx.Get(id)
	if !ok {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}
	if s.opts.Signer == nil {
		http.Redirect(w, r, "/puzzles/"+id, http.StatusFound)
		return
	}
	object := assets.PuzzlePDF(rec)

	if r.URL.Query().Get("download") == "" {
		u, err := s.opts.Signer.Sign(s.opts.PDFBucket, object, s.opts.TTL)
		switch {
		case errors.Is(err, puzzle.ErrNotFound):
			http.Redirect(w, r, "/puzzles/"+id, http.StatusFound)
		case err != nil:
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		default:
			http.Redirect(w, r, u, http.StatusFound)
		}
		return
	}

	f, err := s.opts.Signer.Open(s.opts.PDFBucket, object)
	if errors.Is(err, puzzle.ErrNotFound) {
		http.Redirect(w, r, "/puzzles/"+id, http.StatusFound)
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{
		"filename": rec.Date + " " + rec.Title + ".pdf",
	}))
	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}
