package security

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/MicahParks/jwkset"
	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

const (
	defaultKeySetTTL  = time.Hour
	minRefreshSpacing = time.Minute
	keySetHTTPTimeout = 10 * time.Second
)

// KeySetCache stores raw key set documents keyed by URL
type KeySetCache interface {
	Get(ctx context.Context, url string) ([]byte, error)
	Set(ctx context.Context, url string, doc []byte, ttl time.Duration) error
}

// KeySet resolves signing keys from an issuer's JWKS endpoint.
//
// Keys are refreshed every ttl in the background. A token with an unknown
// kid forces a refetch at most once a minute so rotated keys are picked up.
// When a cache is given, the last fetched document is published there and
// used to seed instances that start while the issuer is unreachable.
type KeySet struct {
	url   string
	cache KeySetCache
	ttl   time.Duration
	keys  keyfunc.Keyfunc
}

// NewKeySet fetches the key set at url. The background refresh stops when
// ctx is done. cache may be nil.
func NewKeySet(ctx context.Context, url string, cache KeySetCache, ttl time.Duration) (*KeySet, error) {
	if ttl <= 0 {
		ttl = defaultKeySetTTL
	}
	k := &KeySet{url: url, cache: cache, ttl: ttl}

	opts := jwkset.HTTPClientStorageOptions{
		Client:          &http.Client{Timeout: keySetHTTPTimeout},
		Ctx:             ctx,
		HTTPTimeout:     keySetHTTPTimeout,
		RefreshInterval: ttl,
		RefreshErrorHandler: func(_ context.Context, err error) {
			log.Warn().Err(err).Str("url", url).Msg("failed to refresh key set")
		},
	}

	seeded := false
	if doc := k.fromCache(ctx); doc != nil {
		seed, err := keyfunc.NewJWKSetJSON(json.RawMessage(doc))
		if err != nil {
			log.Warn().Err(err).Str("url", url).Msg("ignoring unusable cached key set")
		} else {
			opts.Storage = seed.Storage()
			opts.NoErrorReturnFirstHTTPReq = true
			seeded = true
		}
	}

	remote, err := jwkset.NewStorageFromHTTP(url, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch key set: %w", err)
	}

	client, err := jwkset.NewHTTPClient(jwkset.HTTPClientOptions{
		HTTPURLs:          map[string]jwkset.Storage{url: remote},
		RateLimitWaitMax:  time.Second,
		RefreshUnknownKID: rate.NewLimiter(rate.Every(minRefreshSpacing), 1),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create key set client: %w", err)
	}

	k.keys, err = keyfunc.New(keyfunc.Options{
		Ctx:          ctx,
		Storage:      client,
		UseWhitelist: []jwkset.USE{jwkset.UseSig},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create key func: %w", err)
	}

	if !seeded {
		k.publish(ctx, remote)
	}
	return k, nil
}

// Keyfunc resolves the verification key for a parsed token
func (k *KeySet) Keyfunc(ctx context.Context) jwt.Keyfunc {
	return k.keys.KeyfuncCtx(ctx)
}

func (k *KeySet) fromCache(ctx context.Context) []byte {
	if k.cache == nil {
		return nil
	}
	doc, err := k.cache.Get(ctx, k.url)
	if err != nil {
		log.Warn().Err(err).Str("url", k.url).Msg("key set cache read failed")
		return nil
	}
	return doc
}

func (k *KeySet) publish(ctx context.Context, store jwkset.Storage) {
	if k.cache == nil {
		return
	}
	doc, err := store.JSONPublic(ctx)
	if err != nil {
		log.Warn().Err(err).Str("url", k.url).Msg("failed to encode key set")
		return
	}
	if err := k.cache.Set(ctx, k.url, doc, k.ttl); err != nil {
		log.Warn().Err(err).Str("url", k.url).Msg("failed to cache key set")
	}
}

// MemoryKeySetCache is a process-local KeySetCache
type MemoryKeySetCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
}

type memoryEntry struct {
	doc       []byte
	expiresAt time.Time
}

// NewMemoryKeySetCache creates an empty cache
func NewMemoryKeySetCache() *MemoryKeySetCache {
	return &MemoryKeySetCache{entries: make(map[string]memoryEntry)}
}

// Get returns the cached document or nil on a miss
func (c *MemoryKeySetCache) Get(_ context.Context, url string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[url]
	if !ok || time.Now().After(e.expiresAt) {
		return nil, nil
	}
	return e.doc, nil
}

// Set stores doc for ttl
func (c *MemoryKeySetCache) Set(_ context.Context, url string, doc []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[url] = memoryEntry{doc: doc, expiresAt: time.Now().Add(ttl)}
	return nil
}
