package acl

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thesprockee/EchoRelay/internal/model"
)

// memStore is a minimal in-memory storage.Store stand-in; ACL only ever
// touches the single-valued resource methods.
type memStore struct {
	resources map[string][]byte
}

func newMemStore() *memStore { return &memStore{resources: make(map[string][]byte)} }

func (m *memStore) Open(ctx context.Context) error { return nil }
func (m *memStore) GetResource(ctx context.Context, name string) ([]byte, bool, error) {
	v, ok := m.resources[name]
	return v, ok, nil
}
func (m *memStore) SetResource(ctx context.Context, name string, value []byte) error {
	m.resources[name] = value
	return nil
}
func (m *memStore) ExistsResource(ctx context.Context, name string) (bool, error) {
	_, ok := m.resources[name]
	return ok, nil
}
func (m *memStore) GetKey(ctx context.Context, collection, key string) ([]byte, bool, error) {
	return nil, false, nil
}
func (m *memStore) SetKey(ctx context.Context, collection, key string, value []byte) error {
	return nil
}
func (m *memStore) DeleteKey(ctx context.Context, collection, key string) (bool, error) {
	return false, nil
}
func (m *memStore) ExistsKey(ctx context.Context, collection, key string) (bool, error) {
	return false, nil
}
func (m *memStore) Close() error { return nil }

var alice = model.XPlatformId{Platform: model.PlatformOVR, AccountID: 1}
var bob = model.XPlatformId{Platform: model.PlatformSteam, AccountID: 2}

func TestEmptyRuleSetAllowsEverything(t *testing.T) {
	l, err := Load(context.Background(), newMemStore())
	require.NoError(t, err)
	assert.True(t, l.Check(alice))
	assert.True(t, l.Check(bob))
}

// TestLastMatchWins covers the last-match-wins semantics documented in
// DESIGN.md: a broad deny followed by a narrower allow lets the narrower
// rule carve out an exception.
func TestLastMatchWins(t *testing.T) {
	store := newMemStore()
	l, err := Load(context.Background(), store)
	require.NoError(t, err)

	require.NoError(t, l.SetRules(context.Background(), []model.ACLRule{
		{Pattern: "OVR-", Action: model.ACLDeny},
		{Pattern: alice.String(), Action: model.ACLAllow},
	}))

	assert.True(t, l.Check(alice), "later exact-match allow overrides the earlier platform-wide deny")

	other := model.XPlatformId{Platform: model.PlatformOVR, AccountID: 999}
	assert.False(t, l.Check(other), "still denied: no exception rule matches this id")
}

func TestReloadPicksUpPersistedRules(t *testing.T) {
	store := newMemStore()
	raw, err := json.Marshal([]model.ACLRule{{Pattern: bob.String(), Action: model.ACLDeny}})
	require.NoError(t, err)
	require.NoError(t, store.SetResource(context.Background(), resourceName, raw))

	l, err := Load(context.Background(), store)
	require.NoError(t, err)
	assert.False(t, l.Check(bob))
	assert.True(t, l.Check(alice))
}
