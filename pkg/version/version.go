// Package version pins the cache generation identifier and the asset
// manifest at build time.
//
// The identifier is overridden per deployment with:
//
//	go build -ldflags "-X github.com/Sternrassler/asset-agent/pkg/version.ID=v2" ./cmd/asset-agent
package version

import (
	"errors"
	"fmt"
	"strings"
)

// ID names the current cache generation. Set at link time.
var ID = "v1"

// Manifest is the ordered list of assets prefetched into a new generation.
// Relative entries resolve against the application base URL.
var Manifest = []string{
	"./index.html",
	"./style.css",
	"./app.js",
	"./manifest.webmanifest",
	"./icons/icon-192.png",
	"https://cdn.jsdelivr.net/npm/normalize.css@8.0.1/normalize.min.css",
}

var (
	// ErrEmptyID is returned when a registry is built without an identifier.
	ErrEmptyID = errors.New("version id cannot be empty")

	// ErrEmptyManifestEntry is returned for blank manifest URLs.
	ErrEmptyManifestEntry = errors.New("manifest entry cannot be empty")
)

// Registry is one pinned (identifier, manifest) pair.
type Registry struct {
	id       string
	manifest []string
}

// New validates and builds a registry.
func New(id string, manifest []string) (Registry, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Registry{}, ErrEmptyID
	}

	entries := make([]string, 0, len(manifest))
	for i, u := range manifest {
		u = strings.TrimSpace(u)
		if u == "" {
			return Registry{}, fmt.Errorf("%w (index %d)", ErrEmptyManifestEntry, i)
		}
		entries = append(entries, u)
	}

	return Registry{id: id, manifest: entries}, nil
}

// Default returns the registry pinned into this binary.
func Default() Registry {
	reg, err := New(ID, Manifest)
	if err != nil {
		panic(fmt.Sprintf("invalid build-time version registry: %v", err))
	}
	return reg
}

// ID returns the generation identifier.
func (r Registry) ID() string {
	return r.id
}

// Manifest returns a copy of the asset manifest.
func (r Registry) Manifest() []string {
	out := make([]string, len(r.manifest))
	copy(out, r.manifest)
	return out
}
