package store

import (
	"context"
	"sync"

	"github.com/elonfeng/hexarchive/pkg/puzzle"
)

// Lazy connects on first use and retries the connection on later calls
// until it succeeds.
type Lazy struct {
	driver string
	dsn    string

	mu sync.Mutex
	s  *DocumentStore
}

// NewLazy returns a Store that opens driver/dsn on demand.
func NewLazy(driver, dsn string) *Lazy {
	return &Lazy{driver: driver, dsn: dsn}
}

func (l *Lazy) get() (*DocumentStore, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.s != nil {
		return l.s, nil
	}
	s, err := Open(l.driver, l.dsn)
	if err != nil {
		return nil, err
	}
	l.s = s
	return s, nil
}

func (l *Lazy) ListDocuments(ctx context.Context, collection string) ([]puzzle.Document, error) {
	s, err := l.get()
	if err != nil {
		return nil, err
	}
	return s.ListDocuments(ctx, collection)
}

func (l *Lazy) PutDocuments(ctx context.Context, collection string, docs []puzzle.Document) error {
	s, err := l.get()
	if err != nil {
		return err
	}
	return s.PutDocuments(ctx, collection, docs)
}

func (l *Lazy) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.s == nil {
		return nil
	}
	err := l.s.Close()
	l.s = nil
	return err
}
