// Package symbol implements the bidirectional mapping between 64-bit
// numeric symbols and the textual names they stand for. It is loaded once
// at startup from a flat manifest; after that, the only additions are
// channel names, which document.Channels registers with AddHashed each time
// it loads the channel list. Lookups in both directions are O(1).
package symbol

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"os"
	"sync"
)

// Hash derives the canonical symbol for a name. It is used both to seed the
// cache and to assign type symbols to wire messages, so the same name always
// maps to the same 64-bit value whether or not it has been registered yet.
func Hash(name string) int64 {
	h := fnv.New64a()
	h.Write([]byte(name))
	return int64(h.Sum64())
}

// Cache is a bijection between symbols and names.
type Cache struct {
	mu     sync.RWMutex
	byName map[string]int64
	byNum  map[int64]string
}

// New returns an empty Cache.
func New() *Cache {
	return &Cache{
		byName: make(map[string]int64),
		byNum:  make(map[int64]string),
	}
}

// Add registers name under sym exactly as given; AddHashed is the variant
// that derives the symbol from the name. It returns an error if the name
// or the symbol is already mapped to something else, preserving the
// bijection invariant.
func (c *Cache) Add(name string, sym int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.byName[name]; ok && existing != sym {
		return fmt.Errorf("symbol: name %q already mapped to %d", name, existing)
	}
	if existingName, ok := c.byNum[sym]; ok && existingName != name {
		return fmt.Errorf("symbol: value %d already mapped to %q", sym, existingName)
	}

	c.byName[name] = sym
	c.byNum[sym] = name
	return nil
}

// AddHashed registers name under Hash(name) and returns the resulting
// symbol.
func (c *Cache) AddHashed(name string) int64 {
	sym := Hash(name)
	// A collision here would break the bijection invariant; Add already
	// guards against it by rejecting a second name for the same value.
	_ = c.Add(name, sym)
	return sym
}

// Symbol resolves name to its symbol. ok is false if name is unknown.
func (c *Cache) Symbol(name string) (sym int64, ok bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	sym, ok = c.byName[name]
	return
}

// Name resolves sym to its name. ok is false if sym is unknown.
func (c *Cache) Name(sym int64) (name string, ok bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	name, ok = c.byNum[sym]
	return
}

// Len reports how many names are registered.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.byName)
}

// LoadManifest loads a flat JSON document of the form {"name": symbol, ...}
// into the cache, as a real asset-derived symbol manifest would (manifest
// construction itself is out of scope; this just consumes its output).
func (c *Cache) LoadManifest(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	var entries map[string]int64
	if err := json.NewDecoder(f).Decode(&entries); err != nil {
		return fmt.Errorf("symbol: decode manifest: %w", err)
	}

	for name, sym := range entries {
		if err := c.Add(name, sym); err != nil {
			return err
		}
	}
	return nil
}
