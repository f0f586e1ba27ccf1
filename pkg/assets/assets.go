// Package assets issues and verifies time-limited signed URLs for the
// pre-rendered puzzle images and PDFs.
//
// Buckets are directories under a root. A signed URL has the form
//
//	<base>/assets/<bucket>/<object>?expires=<unix>&signature=<hex>
//
// where signature is HMAC-SHA256 over "<bucket>/<object>\n<expires>".
package assets

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/elonfeng/hexarchive/pkg/puzzle"
)

// DefaultTTL is how long signed URLs stay valid when no TTL is given.
const DefaultTTL = 60 * time.Minute

var (
	ErrExpired      = errors.New("signed url expired")
	ErrBadSignature = errors.New("signed url signature mismatch")
)

// Object names for a puzzle's assets.
func PuzzleImage(rec puzzle.Record) string {
	return fmt.Sprintf("%s/%s_puzzle.png", rec.Publication, rec.ID)
}

func SolutionImage(rec puzzle.Record) string {
	return fmt.Sprintf("%s/%s_solution.png", rec.Publication, rec.ID)
}

func PuzzlePDF(rec puzzle.Record) string {
	return fmt.Sprintf("%s/%s_puzzle.pdf", rec.Publication, rec.ID)
}

// Signer signs and verifies URLs for objects stored under root.
type Signer struct {
	root    string
	key     []byte
	baseURL string
	now     func() time.Time
}

// NewSigner creates a signer. baseURL is prefixed to issued URLs and may be
// empty for host-relative links.
func NewSigner(root string, key []byte, baseURL string) (*Signer, error) {
	if len(key) == 0 {
		return nil, fmt.Errorf("signing key is empty")
	}
	return &Signer{
		root:    root,
		key:     key,
		baseURL: strings.TrimRight(baseURL, "/"),
		now:     time.Now,
	}, nil
}

// Sign returns a URL granting read access to bucket/object for ttl.
// A missing object yields puzzle.ErrNotFound.
func (s *Signer) Sign(bucket, object string, ttl time.Duration) (string, error) {
	if _, err := s.Stat(bucket, object); err != nil {
		return "", err
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	expires := strconv.FormatInt(s.now().Add(ttl).Unix(), 10)
	q := url.Values{}
	q.Set("expires", expires)
	q.Set("signature", s.signature(bucket, object, expires))

	u := url.URL{Path: "/assets/" + bucket + "/" + object, RawQuery: q.Encode()}
	return s.baseURL + u.String(), nil
}

// Verify checks a signature and expiry for bucket/object.
func (s *Signer) Verify(bucket, object, expires, signature string) error {
	want := s.signature(bucket, object, expires)
	if !hmac.Equal([]byte(want), []byte(signature)) {
		return ErrBadSignature
	}
	unix, err := strconv.ParseInt(expires, 10, 64)
	if err != nil {
		return ErrBadSignature
	}
	if !s.now().Before(time.Unix(unix, 0)) {
		return ErrExpired
	}
	return nil
}

func (s *Signer) signature(bucket, object, expires string) string {
	mac := hmac.New(sha256.New, s.key)
	mac.Write([]byte(bucket + "/" + object + "\n" + expires))
	return hex.EncodeToString(mac.Sum(nil))
}

// Stat returns file info for bucket/object, or puzzle.ErrNotFound.
func (s *Signer) Stat(bucket, object string) (fs.FileInfo, error) {
	p, err := s.objectPath(bucket, object)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(p)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return nil, fmt.Errorf("object %s/%s: %w", bucket, object, puzzle.ErrNotFound)
	case err != nil:
		return nil, fmt.Errorf("stat object %s/%s: %w", bucket, object, err)
	case info.IsDir():
		return nil, fmt.Errorf("object %s/%s: %w", bucket, object, puzzle.ErrNotFound)
	}
	return info, nil
}

// Open opens bucket/object for reading.
func (s *Signer) Open(bucket, object string) (*os.File, error) {
	if _, err := s.Stat(bucket, object); err != nil {
		return nil, err
	}
	p, _ := s.objectPath(bucket, object)
	f, err := os.Open(p)
	if err != nil {
		return nil, fmt.Errorf("open object %s/%s: %w", bucket, object, err)
	}
	return f, nil
}

func (s *Signer) objectPath(bucket, object string) (string, error) {
	if bucket == "" || strings.ContainsAny(bucket, `/\`) || bucket == "." || bucket == ".." {
		return "", fmt.Errorf("invalid bucket %q: %w", bucket, puzzle.ErrNotFound)
	}
	if object == "" || path.Clean("/"+object) != "/"+object || strings.Contains(object, `\`) {
		return "", fmt.Errorf("invalid object %q: %w", object, puzzle.ErrNotFound)
	}
	return filepath.Join(s.root, bucket, filepath.FromSlash(object)), nil
}
