package llm

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"golang.org/x/text/unicode/norm"
)

// Cache stores provider responses on disk, one JSON file per key, grouped
// by model name. The content of an entry is deterministic in its key, so
// concurrent writers to the same key are tolerated.
type Cache struct {
	dir string
}

// cacheEntry is the on-disk envelope: {key, value, createdAt}.
type cacheEntry struct {
	Key       string    `json:"key"`
	Value     *Response `json:"value"`
	CreatedAt time.Time `json:"createdAt"`
}

func NewCache(dir string) *Cache {
	return &Cache{dir: dir}
}

// Key returns the stable hash of the canonicalized request payload. The
// provider id participates in the key so two providers never share entries.
// Message content is NFC-normalized so byte-level Unicode variance of the
// same text maps to one entry.
func (c *Cache) Key(req Request) string {
	canonical := req
	canonical.Messages = make([]Message, len(req.Messages))
	for i, m := range req.Messages {
		canonical.Messages[i] = Message{Role: m.Role, Content: norm.NFC.String(m.Content)}
	}
	payload, _ := json.Marshal(canonical)
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

var unsafePathRe = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

func sanitizeModelName(name string) string {
	name = unsafePathRe.ReplaceAllString(name, "_")
	if name == "" {
		return "default"
	}
	return name
}

func (c *Cache) path(modelName, key string) string {
	return filepath.Join(c.dir, sanitizeModelName(modelName), key+".json")
}

// Get returns the cached response for key, or ok=false on a miss. Corrupt
// entries are treated as misses; parse errors never reach the caller.
func (c *Cache) Get(modelName, key string) (*Response, bool) {
	if c == nil || c.dir == "" {
		return nil, false
	}
	data, err := os.ReadFile(c.path(modelName, key))
	if err != nil {
		return nil, false
	}
	var entry cacheEntry
	if err := json.Unmarshal(data, &entry); err != nil || entry.Value == nil {
		return nil, false
	}
	return entry.Value, true
}

// Put writes the response under key. The write goes to a temp file first
// and is renamed into place so readers never observe a partial entry.
func (c *Cache) Put(modelName, key string, resp *Response) error {
	if c == nil || c.dir == "" {
		return nil
	}
	target := c.path(modelName, key)
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Errorf("cache: create dir: %w", err)
	}

	data, err := json.Marshal(cacheEntry{Key: key, Value: resp, CreatedAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("cache: marshal entry: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), ".tmp-*")
	if err != nil {
		return fmt.Errorf("cache: create temp: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("cache: write temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("cache: close temp: %w", err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("cache: rename: %w", err)
	}
	return nil
}
