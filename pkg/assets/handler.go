package assets

import (
	"errors"
	"net/http"

	"github.com/elonfeng/hexarchive/pkg/puzzle"
)

// Handler serves objects behind signed URLs. It expects to be mounted on a
// pattern with {bucket} and {object...} wildcards.
func (s *Signer) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		bucket := r.PathValue("bucket")
		object := r.PathValue("object")
		q := r.URL.Query()

		switch err := s.Verify(bucket, object, q.Get("expires"), q.Get("signature")); {
		case errors.Is(err, ErrExpired):
			http.Error(w, err.Error(), http.StatusGone)
			return
		case err != nil:
			http.Error(w, err.Error(), http.StatusForbidden)
			return
		}

		f, err := s.Open(bucket, object)
		if errors.Is(err, puzzle.ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		defer f.Close()

		info, err := f.Stat()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Cache-Control", "private, max-age=300")
		http.ServeContent(w, r, info.Name(), info.ModTime(), f)
	})
}
