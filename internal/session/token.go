// Package session implements the SessionToken cache: a cryptographically
// random identifier issued at login, mapped to an XPlatformId with a TTL
// behind a single RWMutex.
package session

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/thesprockee/EchoRelay/internal/model"
)

// Token is a 128-bit session identifier, rendered as hex.
type Token string

// NewToken generates a fresh CSPRNG token: 16 raw bytes from crypto/rand,
// so the token space is a full 2^128 and collision probability across
// 2^40 issuances stays below 2^-64.
func NewToken() (Token, error) {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", fmt.Errorf("session: generate token: %w", err)
	}
	return Token(hex.EncodeToString(b[:])), nil
}

type entry struct {
	userID    model.XPlatformId
	expiresAt time.Time
}

// Cache is the in-memory session_guid -> user id map with per-entry TTL.
type Cache struct {
	mu      sync.RWMutex
	entries map[Token]entry

	stop chan struct{}
}

// NewCache returns a ready Cache and starts its background expiry sweeper.
func NewCache() *Cache {
	c := &Cache{
		entries: make(map[Token]entry),
		stop:    make(chan struct{}),
	}
	go c.sweepLoop()
	return c
}

// Issue mints a new token mapped to userID with the given TTL.
func (c *Cache) Issue(userID model.XPlatformId, ttl time.Duration) (Token, error) {
	tok, err := NewToken()
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	c.entries[tok] = entry{userID: userID, expiresAt: time.Now().Add(ttl)}
	c.mu.Unlock()

	return tok, nil
}

// Validate reports whether tok is present, unexpired, and mapped to
// userID. All three must hold for the token to be honoured.
func (c *Cache) Validate(tok Token, userID model.XPlatformId) bool {
	c.mu.RLock()
	e, ok := c.entries[tok]
	c.mu.RUnlock()

	if !ok {
		return false
	}
	if time.Now().After(e.expiresAt) {
		return false
	}
	return e.userID == userID
}

// ShortenTTL reduces a live token's remaining lifetime to at most ttl,
// without deleting it outright (the session entry is not
// deleted immediately" on disconnect, so a quick reconnect can reuse it).
func (c *Cache) ShortenTTL(tok Token, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[tok]
	if !ok {
		return
	}

	newExpiry := time.Now().Add(ttl)
	if newExpiry.Before(e.expiresAt) {
		e.expiresAt = newExpiry
		c.entries[tok] = e
	}
}

// Invalidate removes tok immediately.
func (c *Cache) Invalidate(tok Token) {
	c.mu.Lock()
	delete(c.entries, tok)
	c.mu.Unlock()
}

// Clear removes every entry, used on server shutdown.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.entries = make(map[Token]entry)
	c.mu.Unlock()
}

// Close stops the background sweeper.
func (c *Cache) Close() {
	close(c.stop)
}

func (c *Cache) sweepLoop() {
	t := time.NewTicker(30 * time.Second)
	defer t.Stop()

	for {
		select {
		case <-t.C:
			c.sweepExpired()
		case <-c.stop:
			return
		}
	}
}

func (c *Cache) sweepExpired() {
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()
	for tok, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, tok)
		}
	}
}
