// Package embedding generates, encodes and caches record embeddings.
//
// A Store degrades instead of failing: with no provider, or when the provider
// errors, every lookup reports "no embedding" and callers fall back to
// keyword-only behaviour. There is no timeout on provider calls; a stuck
// provider stalls the caller until ctx is cancelled by whoever owns it.
package embedding

import (
	"context"
	"io"
	"strings"
	"sync/atomic"
	"unicode/utf8"

	"github.com/charmbracelet/log"

	"github.com/mfenderov/recall/internal/clip"
	"github.com/mfenderov/recall/internal/metrics"
)

// MaxInputChars bounds the text sent to the provider. Texts that differ only
// past this point embed identically.
const MaxInputChars = 1000

// Store produces vectors for records, cache first.
type Store struct {
	provider Provider
	cache    *Cache
	logger   *log.Logger
	dim      atomic.Int64
}

// NewStore creates a Store. A nil provider puts the store in permanent
// degraded mode. A nil logger discards output.
func NewStore(provider Provider, logger *log.Logger) *Store {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Store{
		provider: provider,
		cache:    NewCache(DefaultCacheCapacity),
		logger:   logger,
	}
}

// WithCache replaces the store's cache.
func (s *Store) WithCache(c *Cache) *Store {
	s.cache = c
	return s
}

// Available reports whether an embedding provider is configured.
func (s *Store) Available() bool {
	return s.provider != nil
}

// Dimension returns the width fixed by the first provider vector, or 0 before
// the provider has answered.
func (s *Store) Dimension() int {
	return int(s.dim.Load())
}

// CacheLen returns the number of cached vectors.
func (s *Store) CacheLen() int {
	return s.cache.Len()
}

// Embed asks the provider for a vector. It reports false when the provider is
// unavailable, text is blank, the call fails, or the result does not match
// the dimensionality already established for this process.
func (s *Store) Embed(ctx context.Context, text string) (clip.Vector, bool) {
	if s.provider == nil {
		metrics.EmbeddingRequestsTotal.WithLabelValues("unavailable").Inc()
		return nil, false
	}
	if strings.TrimSpace(text) == "" {
		return nil, false
	}

	vec, err := s.provider.CreateEmbedding(ctx, truncate(text, MaxInputChars))
	if err != nil {
		metrics.EmbeddingRequestsTotal.WithLabelValues("error").Inc()
		s.logger.Debug("embedding provider failed", "err", err)
		return nil, false
	}
	if len(vec) == 0 {
		metrics.EmbeddingRequestsTotal.WithLabelValues("error").Inc()
		return nil, false
	}
	metrics.EmbeddingRequestsTotal.WithLabelValues("ok").Inc()

	if !s.pinDimension(len(vec)) {
		s.logger.Warn("embedding dimension changed, ignoring vector",
			"want", s.Dimension(), "got", len(vec))
		return nil, false
	}
	return vec, true
}

// Stored decodes the record's persisted blob. It reports false for absent or
// corrupt blobs, and for blobs whose width differs from the provider's.
func (s *Store) Stored(rec clip.Record) (clip.Vector, bool) {
	vec, ok := Decode(rec.Embedding)
	if !ok {
		return nil, false
	}
	if !s.fitsDimension(len(vec)) {
		return nil, false
	}
	return vec, true
}

// GetOrCompute resolves a record's vector: cache, then the persisted blob,
// then the provider. Decoded and computed vectors are cached. Persisting a
// computed vector is the caller's job.
func (s *Store) GetOrCompute(ctx context.Context, rec clip.Record) (clip.Vector, bool) {
	// A blob decoded before the width was fixed can race the clear in pinDimension.
	if vec, ok := s.cache.Get(rec.ID); ok && s.fitsDimension(len(vec)) {
		metrics.EmbeddingCacheTotal.WithLabelValues("hit").Inc()
		return vec, true
	}

	if vec, ok := s.Stored(rec); ok {
		metrics.EmbeddingCacheTotal.WithLabelValues("decoded").Inc()
		s.cache.Put(rec.ID, vec)
		return vec, true
	}
	if rec.HasEmbedding() {
		s.logger.Debug("discarding unreadable stored embedding", "id", rec.ID)
	}

	vec, ok := s.Embed(ctx, embeddableText(rec))
	if !ok {
		metrics.EmbeddingCacheTotal.WithLabelValues("miss").Inc()
		return nil, false
	}
	metrics.EmbeddingCacheTotal.WithLabelValues("computed").Inc()
	s.cache.Put(rec.ID, vec)
	return vec, true
}

// pinDimension fixes the process-wide width from the first provider vector
// and rejects any other width afterwards. Vectors decoded from blobs before
// that point may belong to an older model, so the cache is emptied.
func (s *Store) pinDimension(n int) bool {
	if s.dim.CompareAndSwap(0, int64(n)) {
		s.cache.Clear()
		return true
	}
	return s.dim.Load() == int64(n)
}

// fitsDimension accepts any width until the provider has fixed one.
func (s *Store) fitsDimension(n int) bool {
	d := s.dim.Load()
	return d == 0 || d == int64(n)
}

// embeddableText falls back to the secondary text for records whose primary
// text is empty (images with OCR output).
func embeddableText(rec clip.Record) string {
	if strings.TrimSpace(rec.Text) != "" {
		return rec.Text
	}
	return rec.SecondaryText
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
