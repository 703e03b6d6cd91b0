package bancache

import (
	"errors"
	"os"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
)

// DefaultTTL is how long an address stays banned.
const DefaultTTL = 24 * time.Hour

// Cache maps banned addresses to the epoch second their ban expires.
// It is not safe for concurrent use; callers serialize Load, Insert and Save.
type Cache struct {
	logger  zerolog.Logger
	fs      FileSystem
	path    string
	now     func() time.Time
	entries map[string]int64
}

// New creates an empty cache persisted at path. now may be nil to use the wall clock.
func New(logger zerolog.Logger, fs FileSystem, path string, now func() time.Time) *Cache {
	if now == nil {
		now = time.Now
	}
	return &Cache{
		logger:  logger.With().Str("banlist", path).Logger(),
		fs:      fs,
		path:    path,
		now:     now,
		entries: make(map[string]int64),
	}
}

// Load replaces the in-memory state with the persisted one, minus expired entries.
// A missing or corrupt file is an empty ban list.
func (c *Cache) Load() map[string]int64 {
	c.entries = make(map[string]int64)

	data, err := c.fs.ReadFile(c.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			c.logger.Debug().Msg("No ban list persisted yet")
		} else {
			c.logger.Warn().Err(err).Msg("Error while reading ban list, treating as empty")
		}
		return c.Entries()
	}

	var persisted map[string]int64
	if err = json.Unmarshal(data, &persisted); err != nil {
		c.logger.Warn().Err(err).Msg("Ban list is corrupt, treating as empty")
		return c.Entries()
	}

	c.entries = persisted
	if c.entries == nil {
		c.entries = make(map[string]int64)
	}
	if n := c.sweep(); n > 0 {
		c.logger.Debug().Int("expired", n).Msg("Dropped expired bans")
	}

	return c.Entries()
}

// Contains reports whether addr is banned according to the last Load.
func (c *Cache) Contains(addr string) bool {
	_, ok := c.entries[addr]
	return ok
}

// Insert bans addr for ttl from now, replacing any previous ban. It returns the expiry.
func (c *Cache) Insert(addr string, ttl time.Duration) int64 {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	expiry := c.now().Unix() + int64(ttl/time.Second)
	c.entries[addr] = expiry
	return expiry
}

// Save persists the whole ban list, replacing what was stored.
func (c *Cache) Save() error {
	c.sweep()

	data, err := json.Marshal(c.entries)
	if err != nil {
		return err
	}
	return c.fs.WriteFile(c.path, data)
}

// Entries returns a copy of the current ban list.
func (c *Cache) Entries() map[string]int64 {
	out := make(map[string]int64, len(c.entries))
	for addr, exp := range c.entries {
		out[addr] = exp
	}
	return out
}

func (c *Cache) sweep() (n int) {
	now := c.now().Unix()
	for addr, exp := range c.entries {
		if exp <= now {
			delete(c.entries, addr)
			n++
		}
	}
	return
}
