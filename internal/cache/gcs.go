package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/rs/zerolog"
	"google.golang.org/api/iterator"

	"github.com/rhoekstra/pattern-engine/internal/engine"
)

// GCS is a shared pattern cache backed by JSON objects in a Cloud Storage
// bucket. It survives process restarts and is shared between instances.
// Every failure is logged and treated as a miss.
type GCS struct {
	client *storage.Client
	bucket string
	prefix string
	ttl    time.Duration
	now    func() time.Time
	log    zerolog.Logger
}

type gcsEnvelope struct {
	StoredAt time.Time            `json:"stored_at"`
	Patterns []engine.VerbPattern `json:"patterns"`
}

// NewGCS creates a GCS cache writing under gs://<bucket>/<prefix>/.
// A non-positive ttl falls back to DefaultTTL.
func NewGCS(ctx context.Context, bucket, prefix string, ttl time.Duration, log zerolog.Logger) (*GCS, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("NewGCS: creating storage client: %w", err)
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &GCS{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
		ttl:    ttl,
		now:    time.Now,
		log:    log,
	}, nil
}

// Close closes the storage client.
func (g *GCS) Close() error {
	return g.client.Close()
}

func (g *GCS) objectName(administration string, f engine.Filters) string {
	return g.prefix + "/" + administration + "/" + f.Fingerprint() + ".json"
}

// GetPatterns implements engine.PatternCache.
func (g *GCS) GetPatterns(ctx context.Context, administration string, f engine.Filters) ([]engine.VerbPattern, bool) {
	name := g.objectName(administration, f)

	rc, err := g.client.Bucket(g.bucket).Object(name).NewReader(ctx)
	if err == storage.ErrObjectNotExist {
		return nil, false
	}
	if err != nil {
		g.log.Warn().Err(err).Str("object", name).Msg("Cache read failed")
		return nil, false
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		g.log.Warn().Err(err).Str("object", name).Msg("Cache read failed")
		return nil, false
	}

	var env gcsEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		g.log.Warn().Err(err).Str("object", name).Msg("Cache entry corrupt")
		return nil, false
	}
	if g.now().Sub(env.StoredAt) > g.ttl {
		return nil, false
	}
	return env.Patterns, true
}

// StorePatterns implements engine.PatternCache.
func (g *GCS) StorePatterns(ctx context.Context, administration string, f engine.Filters, patterns []engine.VerbPattern) {
	name := g.objectName(administration, f)

	data, err := json.Marshal(gcsEnvelope{StoredAt: g.now(), Patterns: patterns})
	if err != nil {
		g.log.Warn().Err(err).Str("object", name).Msg("Cache marshal failed")
		return
	}

	w := g.client.Bucket(g.bucket).Object(name).NewWriter(ctx)
	if _, err := w.Write(data); err != nil {
		g.log.Warn().Err(err).Str("object", name).Msg("Cache write failed")
		_ = w.Close()
		return
	}
	if err := w.Close(); err != nil {
		g.log.Warn().Err(err).Str("object", name).Msg("Cache write finalize failed")
	}
}

// Invalidate implements engine.PatternCache. It deletes every cached
// object of the administration.
func (g *GCS) Invalidate(ctx context.Context, administration string) {
	prefix := g.prefix + "/" + administration + "/"
	it := g.client.Bucket(g.bucket).Objects(ctx, &storage.Query{Prefix: prefix})

	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			return
		}
		if err != nil {
			g.log.Warn().Err(err).Str("prefix", prefix).Msg("Cache invalidation listing failed")
			return
		}
		if err := g.client.Bucket(g.bucket).Object(attrs.Name).Delete(ctx); err != nil {
			g.log.Warn().Err(err).Str("object", attrs.Name).Msg("Cache invalidation delete failed")
		}
	}
}

var _ engine.PatternCache = (*GCS)(nil)
