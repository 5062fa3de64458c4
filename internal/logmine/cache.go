package logmine

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/spendmon/spendmon/internal/core"
)

// cacheTTL is the maximum age of a mined payload before it must be
// recomputed even when the directory is unchanged.
const cacheTTL = 5 * time.Minute

// DailyUsage groups parsed entries by local calendar date ("2006-01-02").
type DailyUsage map[string][]core.UsageLogEntry

// CacheRecord is one cached mining result. Records are superseded by Put,
// never mutated in place.
type CacheRecord struct {
	SourceHash    string
	CapturedAt    time.Time
	SchemaVersion int
	Payload       DailyUsage
}

// Cache avoids re-scanning and re-parsing the log directory on every poll.
// A record is served only while its TTL is unexpired and it was produced by
// the running parser version; anything else is a miss, forcing a recompute.
type Cache struct {
	mu      sync.RWMutex
	records map[string]CacheRecord
	ttl     time.Duration
	version int
	now     func() time.Time
}

func NewCache() *Cache {
	return &Cache{
		records: make(map[string]CacheRecord),
		ttl:     cacheTTL,
		version: SchemaVersion,
		now:     time.Now,
	}
}

func (c *Cache) Get(key string) (CacheRecord, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	rec, ok := c.records[key]
	if !ok {
		return CacheRecord{}, false
	}
	if rec.SchemaVersion != c.version {
		return CacheRecord{}, false
	}
	if c.now().Sub(rec.CapturedAt) > c.ttl {
		return CacheRecord{}, false
	}
	return rec, true
}

// Put replaces any prior record for key atomically under the write lock;
// concurrent readers see either the old record or the new one, never a
// half-written state.
func (c *Cache) Put(key string, payload DailyUsage) {
	rec := CacheRecord{
		SourceHash:    key,
		CapturedAt:    c.now(),
		SchemaVersion: c.version,
		Payload:       payload,
	}
	c.mu.Lock()
	c.records[key] = rec
	c.mu.Unlock()
}

// Fingerprint derives the cache key for a scan result: a sha256 over the
// sorted path|size|mtime lines. Any file added, removed, grown, or touched
// moves the key and forces a recompute.
func Fingerprint(files []LogFile) string {
	lines := make([]string, 0, len(files))
	for _, f := range files {
		lines = append(lines, fmt.Sprintf("%s|%d|%d", f.Path, f.Size, f.ModTime.UnixNano()))
	}
	sort.Strings(lines)
	sum := sha256.Sum256([]byte(strings.Join(lines, "\n")))
	return hex.EncodeToString(sum[:])
}
