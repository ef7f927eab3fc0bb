// Package cache provides an explicit Redis-backed cache for clinic contact
// lists. It replaces the hidden module-level map the legacy frontend kept:
// the cache is constructed once, given a TTL, and passed by reference to the
// repositories that read through it.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/itgabriell/audicare-engine/internal/domain"
)

// ContactCache caches per-clinic contact lists with a fixed TTL.
// A nil *ContactCache (or one built with a nil client) is a no-op, so
// callers never branch on Redis availability.
type ContactCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewContactCache creates a contact cache. client may be nil (cache disabled).
func NewContactCache(client *redis.Client, ttl time.Duration) *ContactCache {
	return &ContactCache{client: client, ttl: ttl}
}

func (c *ContactCache) enabled() bool {
	return c != nil && c.client != nil
}

func key(clinicID string) string {
	return fmt.Sprintf("contacts:%s", clinicID)
}

// Get returns the cached contact list for a clinic. The second return is
// false on miss, disabled cache, or any Redis/decode error (a cache error
// is never surfaced as a request error).
func (c *ContactCache) Get(ctx context.Context, clinicID string) ([]domain.Contact, bool) {
	if !c.enabled() {
		return nil, false
	}
	data, err := c.client.Get(ctx, key(clinicID)).Bytes()
	if err != nil {
		return nil, false
	}
	var contacts []domain.Contact
	if err := json.Unmarshal(data, &contacts); err != nil {
		// Poisoned entry: drop it so the next read repopulates
		c.client.Del(ctx, key(clinicID))
		return nil, false
	}
	return contacts, true
}

// Set stores the contact list for a clinic with the configured TTL.
func (c *ContactCache) Set(ctx context.Context, clinicID string, contacts []domain.Contact) {
	if !c.enabled() {
		return
	}
	data, err := json.Marshal(contacts)
	if err != nil {
		return
	}
	c.client.Set(ctx, key(clinicID), data, c.ttl)
}

// Invalidate removes a clinic's cached contacts. Called whenever contact
// data is known to have changed upstream.
func (c *ContactCache) Invalidate(ctx context.Context, clinicID string) {
	if !c.enabled() {
		return
	}
	c.client.Del(ctx, key(clinicID))
}
