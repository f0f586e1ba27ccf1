// Package secrets resolves named credentials such as the asset signing key.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/elonfeng/hexarchive/pkg/puzzle"
)

// ErrNotFound means no provider holds the named secret.
var ErrNotFound = errors.New("secret not found")

// Provider returns the payload of a named secret.
type Provider interface {
	Get(ctx context.Context, name string) (string, error)
}

// Env reads secrets from HEXARCHIVE_SECRET_<NAME> environment variables.
// "signing-key" is looked up as HEXARCHIVE_SECRET_SIGNING_KEY.
type Env struct {
	Prefix string
}

// EnvName returns the variable that holds name.
func (e Env) EnvName(name string) string {
	prefix := e.Prefix
	if prefix == "" {
		prefix = "HEXARCHIVE_SECRET_"
	}
	key := strings.ToUpper(strings.NewReplacer("-", "_", ".", "_", "/", "_").Replace(name))
	return prefix + key
}

func (e Env) Get(_ context.Context, name string) (string, error) {
	v, ok := os.LookupEnv(e.EnvName(name))
	if !ok || v == "" {
		return "", fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return v, nil
}

// Dir reads secrets from files named after the secret, as mounted by
// Docker or Kubernetes secret volumes. Trailing newlines are trimmed.
type Dir struct {
	Path string
}

func (d Dir) Get(ctx context.Context, name string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return "", fmt.Errorf("invalid secret name %q", name)
	}

	data, err := os.ReadFile(filepath.Join(d.Path, name))
	switch {
	case errors.Is(err, os.ErrNotExist):
		return "", fmt.Errorf("%w: %s", ErrNotFound, name)
	case err != nil:
		return "", fmt.Errorf("read secret %s: %w: %w", name, puzzle.ErrUpstreamUnavailable, err)
	}
	return strings.TrimRight(string(data), "\r\n"), nil
}

// Chain tries each provider in order and returns the first hit. Errors other
// than ErrNotFound stop the search.
type Chain []Provider

func (c Chain) Get(ctx context.Context, name string) (string, error) {
	for _, p := range c {
		v, err := p.Get(ctx, name)
		if err == nil {
			return v, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return "", err
		}
	}
	return "", fmt.Errorf("%w: %s", ErrNotFound, name)
}

// New builds the default provider chain: environment first, then dir when
// set.
func New(dir string) Provider {
	chain := Chain{Env{}}
	if dir != "" {
		chain = append(chain, Dir{Path: dir})
	}
	return chain
}
