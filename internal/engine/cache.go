package engine

import (
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/dentaflow/verify-engine/internal/db"
)

// cacheEntry pairs a stored result with its expiry deadline. The deadline
// is checked against the engine clock on every lookup, so correctness never
// depends on the go-cache janitor having swept.
type cacheEntry struct {
	result    db.VerificationResult
	cachedAt  time.Time
	expiresAt time.Time
}

type resultCache struct {
	cache *gocache.Cache
	clock Clock
}

// newResultCache creates the TTL result cache. Items carry no go-cache
// expiration of their own; sweepInterval drives the janitor that purges
// entries the wrapper has marked dead.
func newResultCache(clock Clock, sweepInterval time.Duration) *resultCache {
	return &resultCache{
		cache: gocache.New(gocache.NoExpiration, sweepInterval),
		clock: clock,
	}
}

// cacheKey identifies a cacheable check: type, subject, and the
// type-specific discriminator (policy number or document type).
func cacheKey(typ db.VerificationType, subjectID string, payload db.Payload) string {
	discriminator := ""
	switch typ {
	case db.TypeInsurance:
		discriminator = payload.PolicyNumber
	case db.TypeIdentity, db.TypeDocument:
		discriminator = payload.DocumentType
	}
	return fmt.Sprintf("%s:%s:%s", typ, subjectID, discriminator)
}

// Get returns the cached result if one exists and has not expired. Expired
// entries are removed on sight and reported as misses.
func (c *resultCache) Get(key string) (*db.VerificationResult, bool) {
	obj, found := c.cache.Get(key)
	if !found {
		return nil, false
	}

	entry := obj.(cacheEntry)
	if !c.clock.Now().Before(entry.expiresAt) {
		c.cache.Delete(key)
		return nil, false
	}

	res := entry.result
	return &res, true
}

// Set stores a result with the given TTL relative to the engine clock. The
// go-cache expiration is set to the same TTL so the janitor eventually
// reclaims entries the lazy check has not touched.
func (c *resultCache) Set(key string, res *db.VerificationResult, ttl time.Duration) {
	now := c.clock.Now()
	c.cache.Set(key, cacheEntry{
		result:    *res,
		cachedAt:  now,
		expiresAt: now.Add(ttl),
	}, ttl)
}

// Flush drops every entry.
func (c *resultCache) Flush() {
	c.cache.Flush()
}
