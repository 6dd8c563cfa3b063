package store

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"
)

// OpenFunc opens a backend for a store URL.
type OpenFunc func(ctx context.Context, rawURL string, maxOpen int, log *zap.Logger) (Store, error)

var backends = map[string]OpenFunc{}

// Register makes a backend available to Open under the given URL schemes.
// Backends register themselves from their package init; importing the backend
// package is what enables it.
func Register(open OpenFunc, schemes ...string) {
	for _, s := range schemes {
		backends[strings.ToLower(s)] = open
	}
}

// Open dispatches on the URL scheme: postgres://... selects the pgx backend,
// sqlite://path (or a bare path) the embedded one.
func Open(ctx context.Context, rawURL string, maxOpen int, log *zap.Logger) (Store, error) {
	scheme := ""
	if u, err := url.Parse(rawURL); err == nil {
		scheme = strings.ToLower(u.Scheme)
	}
	open, ok := backends[scheme]
	if !ok {
		return nil, fmt.Errorf("no store backend for scheme %q (url %q)", scheme, rawURL)
	}
	return open(ctx, rawURL, maxOpen, log)
}
