package database

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"

	"github.com/facebuddy/facebuddy/internal/config"
)

// ErrNoDatabase is returned by Open when no database URL is configured.
var ErrNoDatabase = errors.New("database URL is not configured")

// Opener connects a backend for the given configuration.
type Opener func(cfg *config.DatabaseConfig) (Backend, error)

var (
	backends   = make(map[string]Opener)
	backendsMu sync.RWMutex
)

// RegisterBackend registers a backend constructor for one or more URL schemes.
// This is called by the backend packages from init to avoid import cycles.
func RegisterBackend(opener Opener, schemes ...string) {
	backendsMu.Lock()
	defer backendsMu.Unlock()
	for _, scheme := range schemes {
		backends[strings.ToLower(scheme)] = opener
	}
}

// RegisteredSchemes returns the URL schemes a backend was registered for.
func RegisteredSchemes() []string {
	backendsMu.RLock()
	defer backendsMu.RUnlock()

	schemes := make([]string, 0, len(backends))
	for s := range backends {
		schemes = append(schemes, s)
	}
	sort.Strings(schemes)
	return schemes
}

// Open picks the backend registered for the scheme of cfg.URL and connects it.
func Open(cfg *config.DatabaseConfig) (Backend, error) {
	if cfg == nil || cfg.URL == "" {
		return nil, ErrNoDatabase
	}

	scheme, err := urlScheme(cfg.URL)
	if err != nil {
		return nil, err
	}

	backendsMu.RLock()
	opener, ok := backends[scheme]
	backendsMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no database backend registered for scheme %q (known: %s)",
			scheme, strings.Join(RegisteredSchemes(), ", "))
	}

	backend, err := opener(cfg)
	if err != nil {
		return nil, fmt.Errorf("opening %s backend: %w", scheme, err)
	}
	return backend, nil
}

func urlScheme(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid database URL: %w", err)
	}
	if u.Scheme == "" {
		return "", errors.New("database URL has no scheme")
	}
	return strings.ToLower(u.Scheme), nil
}
