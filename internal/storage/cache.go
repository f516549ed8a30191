// cache.go - In-memory cache of invoice candidates per labeling session

package storage

import (
	"sync"
	"time"
)

// DefaultSessionTTL is used when a cache is created without a TTL.
const DefaultSessionTTL = 60 * time.Minute

// SessionCandidates holds the dropdown items of the last invoice read in a session
type SessionCandidates struct {
	Items     []string  `json:"items"`
	Source    string    `json:"source"`
	InvoiceID string    `json:"invoice_id,omitempty"`
	LoadedAt  time.Time `json:"loaded_at"`
}

// SessionCache maps sessionID -> candidates. A new invoice overwrites the
// previous entry for the same session.
type SessionCache struct {
	entries map[string]SessionCandidates
	ttl     time.Duration
	now     func() time.Time
	mu      sync.RWMutex
}

// NewSessionCache creates a cache whose entries expire after ttl.
func NewSessionCache(ttl time.Duration) *SessionCache {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &SessionCache{
		entries: make(map[string]SessionCandidates),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Put stores the candidates for a session, stamping LoadedAt.
func (c *SessionCache) Put(sessionID string, candidates SessionCandidates) {
	candidates.Items = append([]string(nil), candidates.Items...)
	c.mu.Lock()
	defer c.mu.Unlock()
	candidates.LoadedAt = c.now()
	c.entries[sessionID] = candidates
}

// Get returns the candidates for a session. Expired entries are a miss.
func (c *SessionCache) Get(sessionID string) (SessionCandidates, bool) {
	c.mu.RLock()
	entry, exists := c.entries[sessionID]
	c.mu.RUnlock()

	if !exists {
		return SessionCandidates{}, false
	}
	if c.now().Sub(entry.LoadedAt) >= c.ttl {
		c.evict(sessionID, entry.LoadedAt)
		return SessionCandidates{}, false
	}

	entry.Items = append([]string(nil), entry.Items...)
	return entry, true
}

// evict deletes the entry only if it is still the one loaded at loadedAt.
// A Put that lands after Get dropped its read lock must survive.
func (c *SessionCache) evict(sessionID string, loadedAt time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if entry, ok := c.entries[sessionID]; ok && entry.LoadedAt.Equal(loadedAt) {
		delete(c.entries, sessionID)
	}
}

// Invalidate removes the cache for a specific session
func (c *SessionCache) Invalidate(sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, sessionID)
}

// Clear removes all cached sessions
func (c *SessionCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]SessionCandidates)
}

// Len reports how many sessions are cached, expired ones included.
func (c *SessionCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
