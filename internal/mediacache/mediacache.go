// Package mediacache keeps a content-addressed hash→URL map in account
// data so identical media is uploaded to the homeserver only once.
// Entries are never evicted; the map only grows.
package mediacache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
)

// AccountDataKey is the account data key the media map is persisted under.
const AccountDataKey = "de.msrd0.tg2mx_bot.media_map"

// ContentHash identifies a piece of media content. Two sources with the
// same hash are the same content.
type ContentHash [sha256.Size]byte

// HashOf returns the content hash of raw media bytes.
func HashOf(data []byte) ContentHash {
	return sha256.Sum256(data)
}

func (h ContentHash) String() string {
	return hex.EncodeToString(h[:])
}

// MarshalText hex-encodes the hash; encoding/json uses this for map keys.
func (h ContentHash) MarshalText() ([]byte, error) {
	return []byte(hex.EncodeToString(h[:])), nil
}

func (h *ContentHash) UnmarshalText(text []byte) error {
	if hex.DecodedLen(len(text)) != sha256.Size {
		return fmt.Errorf("content hash must be %d bytes, got %d", sha256.Size, hex.DecodedLen(len(text)))
	}
	_, err := hex.Decode(h[:], text)
	return err
}

// Entry is the cached upload location of one piece of content.
type Entry struct {
	URL string `json:"url"`
}

// AccountDataStore is the slice of the protocol client the cache needs.
type AccountDataStore interface {
	GetAccountData(ctx context.Context, key string, out any) (bool, error)
	SetAccountData(ctx context.Context, key string, value any) error
}

// Cache is the in-memory media map for the duration of one job: loaded at
// the start, flushed back at the end, win or lose.
type Cache struct {
	mu      sync.Mutex
	entries map[ContentHash]Entry
	store   AccountDataStore
	logger  *slog.Logger
}

// Load reads the persisted media map. A missing key or a map that no
// longer decodes yields an empty cache; the decode failure is logged.
func Load(ctx context.Context, store AccountDataStore, logger *slog.Logger) (*Cache, error) {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Cache{
		entries: make(map[ContentHash]Entry),
		store:   store,
		logger:  logger,
	}

	var raw json.RawMessage
	found, err := store.GetAccountData(ctx, AccountDataKey, &raw)
	if err != nil {
		return nil, fmt.Errorf("load media map: %w", err)
	}
	if !found {
		return c, nil
	}
	if err := json.Unmarshal(raw, &c.entries); err != nil {
		logger.Error("media_map_decode_failed", "error", err.Error())
		c.entries = make(map[ContentHash]Entry)
	}
	return c, nil
}

// Get returns the cached URL for a hash.
func (c *Cache) Get(h ContentHash) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[h]
	return entry.URL, ok
}

// Put records the upload location of a piece of content.
func (c *Cache) Put(h ContentHash, url string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[h] = Entry{URL: url}
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Flush writes the media map back to account data wholesale.
func (c *Cache) Flush(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.store.SetAccountData(ctx, AccountDataKey, c.entries); err != nil {
		return fmt.Errorf("flush media map: %w", err)
	}
	return nil
}
