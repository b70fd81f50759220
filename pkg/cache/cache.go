// Package cache provides artifact caching for rendered diagrams.
//
// Rendering a diagram (graphviz layout plus optional rsvg conversion) is
// the only expensive step in the pipeline, and its output depends solely on
// the node list and render options. Keys are therefore derived from a
// SHA-256 hash of the serialized nodes plus the option set; any edit to the
// diagram changes the hash and misses cleanly.
//
// Two backends ship here: [FileCache] for CLI usage and [NullCache] to
// disable caching. Both are safe for concurrent use.
package cache

import (
	"context"
	"time"
)

// TTLArtifact is the default lifetime for cached rendered artifacts.
// Artifacts are pure functions of their key, so a long TTL is safe; the
// TTL only bounds disk growth for diagrams nobody renders again.
const TTLArtifact = 7 * 24 * time.Hour

// Cache is the interface for artifact cache backends.
type Cache interface {
	// Get retrieves a value. The second return reports whether the key
	// was present and unexpired.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores a value with the given TTL. A TTL of 0 means no expiry.
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error

	// Delete removes a value.
	Delete(ctx context.Context, key string) error

	// Close releases backend resources.
	Close() error
}

// ArtifactKeyOpts captures the render options that affect artifact bytes.
type ArtifactKeyOpts struct {
	Format   string // "svg", "pdf", "png", "html"
	Detailed bool
	Scale    float64 // PNG only
}

// Keyer generates cache keys. Implementations must be deterministic:
// identical inputs yield identical keys.
type Keyer interface {
	// ArtifactKey generates a key for a rendered artifact, given the hash
	// of the serialized node list.
	ArtifactKey(nodesHash string, opts ArtifactKeyOpts) string
}

// DefaultKeyer is the standard key scheme.
type DefaultKeyer struct{}

// NewDefaultKeyer creates the standard keyer.
func NewDefaultKeyer() Keyer { return &DefaultKeyer{} }

// ArtifactKey generates a key for a rendered artifact.
func (k *DefaultKeyer) ArtifactKey(nodesHash string, opts ArtifactKeyOpts) string {
	return hashKey("artifact", nodesHash, opts.Format, opts.Detailed, opts.Scale)
}

// ScopedKeyer wraps a Keyer with a prefix for per-user isolation, used by
// the server so one user's artifacts never collide with another's.
type ScopedKeyer struct {
	inner  Keyer
	prefix string
}

// NewScopedKeyer creates a keyer with a prefix.
// The prefix is prepended to all generated keys.
func NewScopedKeyer(inner Keyer, prefix string) Keyer {
	if inner == nil {
		inner = NewDefaultKeyer()
	}
	return &ScopedKeyer{inner: inner, prefix: prefix}
}

// ArtifactKey generates a prefixed key for artifact caching.
func (k *ScopedKeyer) ArtifactKey(nodesHash string, opts ArtifactKeyOpts) string {
	return k.prefix + k.inner.ArtifactKey(nodesHash, opts)
}
