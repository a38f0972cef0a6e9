package serverdb

import (
	"net"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thesprockee/EchoRelay/internal/model"
	"github.com/thesprockee/EchoRelay/internal/peer"
)

type fakeAddr string

func (a fakeAddr) Network() string { return "tcp" }
func (a fakeAddr) String() string  { return string(a) }

type fakeConn struct {
	mu      sync.Mutex
	written [][]byte
	closed  bool
}

func (c *fakeConn) Write(b []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := append([]byte(nil), b...)
	c.written = append(c.written, cp)
	return len(b), nil
}
func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func newTestPeer(addr string) *peer.Peer {
	return peer.New(fakeAddr(addr), &fakeConn{})
}

func sampleServer(id uint64) model.RegisteredGameServer {
	return model.RegisteredGameServer{
		ServerID:        id,
		ExternalAddress: "203.0.113.10",
		Port:            8001,
		RegionSymbol:    1,
		VersionLock:     1,
		IsPublic:        true,
		Capacity:        8,
	}
}

func TestRegisterAndGet(t *testing.T) {
	r := NewRegistry()
	p := newTestPeer("client-1")

	require.NoError(t, r.Register(p, sampleServer(100)))

	got, ok := r.Get(100)
	require.True(t, ok)
	assert.Equal(t, model.StateIdle, got.State)
	assert.Equal(t, uint64(100), got.ServerID)
}

// TestDuplicateServerIDRejected checks at-most-one-registration: a second
// registration under the same server_id must be refused.
func TestDuplicateServerIDRejected(t *testing.T) {
	r := NewRegistry()
	p1 := newTestPeer("server-a")
	p2 := newTestPeer("server-b")

	require.NoError(t, r.Register(p1, sampleServer(200)))
	err := r.Register(p2, sampleServer(200))
	assert.Error(t, err)
}

// TestDuplicatePeerRegistrationRejected covers the per-peer half of the
// rule: one ServerDB peer may not hold two concurrent registrations.
func TestDuplicatePeerRegistrationRejected(t *testing.T) {
	r := NewRegistry()
	p := newTestPeer("server-a")

	require.NoError(t, r.Register(p, sampleServer(1)))
	err := r.Register(p, sampleServer(2))
	assert.Error(t, err)
}

func TestUnregisterRemovesFromAllIndexes(t *testing.T) {
	r := NewRegistry()
	p := newTestPeer("server-a")
	require.NoError(t, r.Register(p, sampleServer(1)))

	var unregistered uint64
	r.OnGameServerUnregistered = func(id uint64) { unregistered = id }

	r.Unregister(p)

	_, ok := r.Get(1)
	assert.False(t, ok)
	assert.Equal(t, uint64(1), unregistered)

	// The peer can now register a fresh server_id.
	assert.NoError(t, r.Register(p, sampleServer(2)))
}

func TestCASStateOnlyOneWinner(t *testing.T) {
	r := NewRegistry()
	p := newTestPeer("server-a")
	require.NoError(t, r.Register(p, sampleServer(1)))

	const n = 50
	var wins int32
	var wg sync.WaitGroup
	var mu sync.Mutex
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			if r.CASState(1, model.StateIdle, model.StateSessionLocked) {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, wins, "exactly one concurrent CAS attempt may win the race")
}

func TestLockSessionThenMarkStartedThenEnd(t *testing.T) {
	r := NewRegistry()
	p := newTestPeer("server-a")
	require.NoError(t, r.Register(p, sampleServer(1)))

	require.True(t, r.LockSession(1, "guid-1", 10, 20))
	got, _ := r.Get(1)
	assert.Equal(t, model.StateSessionLocked, got.State)

	require.True(t, r.MarkSessionStarted(p, "guid-1"))
	got, _ = r.Get(1)
	assert.Equal(t, model.StateSessionActive, got.State)

	r.EndSession(p)
	got, _ = r.Get(1)
	assert.Equal(t, model.StateIdle, got.State)
	assert.Empty(t, got.SessionGUID)
}

func TestPlayerLeftEndsSessionWhenEmptied(t *testing.T) {
	r := NewRegistry()
	p := newTestPeer("server-a")
	require.NoError(t, r.Register(p, sampleServer(1)))
	require.True(t, r.LockSession(1, "guid-1", 10, 20))
	require.True(t, r.MarkSessionStarted(p, "guid-1"))

	r.PlayerJoined(p)
	got, _ := r.Get(1)
	assert.Equal(t, 1, got.ParticipantCount)

	r.PlayerLeft(p)
	got, _ = r.Get(1)
	assert.Equal(t, model.StateIdle, got.State, "session ends automatically once the last player leaves")
}

func TestUpdateRegistrationAppliesPartialChanges(t *testing.T) {
	r := NewRegistry()
	p := newTestPeer("server-a")
	require.NoError(t, r.Register(p, sampleServer(1)))

	capacity := 16
	r.UpdateRegistration(p, nil, &capacity)

	got, _ := r.Get(1)
	assert.Equal(t, 16, got.Capacity)
	assert.True(t, got.IsPublic, "is_public left untouched when nil")
}

func TestEndpointIncludesPort(t *testing.T) {
	srv := sampleServer(1)
	assert.Equal(t, "203.0.113.10:8001", srv.Endpoint())
}

var _ net.Addr = fakeAddr("")
