package peer

import (
	"bytes"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thesprockee/EchoRelay/internal/model"
	"github.com/thesprockee/EchoRelay/internal/wire"
)

type fakeAddr struct{}

func (fakeAddr) Network() string { return "tcp" }
func (fakeAddr) String() string  { return "127.0.0.1:0" }

type fakeConn struct {
	buf    bytes.Buffer
	closed bool
}

func (c *fakeConn) Write(b []byte) (int, error) { return c.buf.Write(b) }
func (c *fakeConn) Close() error                { c.closed = true; return nil }

func TestSendFramesEachCallAsOneBuffer(t *testing.T) {
	conn := &fakeConn{}
	p := New(fakeAddr{}, conn)

	require.NoError(t, p.Send(wire.RawMessage{Type: 1, Body: []byte("a")}, wire.RawMessage{Type: 2, Body: []byte("b")}))

	dec := wire.NewDecoder()
	pkt, err := dec.Feed(conn.buf.Bytes())
	require.NoError(t, err)
	require.Len(t, pkt, 2)
	assert.EqualValues(t, 1, pkt[0].Type)
	assert.EqualValues(t, 2, pkt[1].Type)
}

func TestSendOnClosedPeerFails(t *testing.T) {
	p := New(fakeAddr{}, &fakeConn{})
	require.NoError(t, p.Close())

	err := p.Send(wire.RawMessage{Type: 1, Body: []byte("a")})
	assert.Error(t, err)
}

func TestUpdateUserAuthenticationReportsFirstTimeOnly(t *testing.T) {
	p := New(fakeAddr{}, &fakeConn{})
	id := model.XPlatformId{Platform: model.PlatformOVR, AccountID: 1}

	assert.True(t, p.UpdateUserAuthentication(id, "Alice"))
	assert.False(t, p.UpdateUserAuthentication(id, "Alice"))

	got, ok := p.UserID()
	require.True(t, ok)
	assert.Equal(t, id, got)
}

func TestSessionDataSetGetClear(t *testing.T) {
	p := New(fakeAddr{}, &fakeConn{})

	_, ok := p.SessionData("matching")
	assert.False(t, ok)

	p.SetSessionData("matching", "some-state")
	v, ok := p.SessionData("matching")
	require.True(t, ok)
	assert.Equal(t, "some-state", v)

	p.ClearSessionData("matching")
	_, ok = p.SessionData("matching")
	assert.False(t, ok)
}

func TestCloseIsIdempotentAndClosesChannel(t *testing.T) {
	conn := &fakeConn{}
	p := New(fakeAddr{}, conn)

	require.NoError(t, p.Close())
	require.NoError(t, p.Close())
	assert.True(t, conn.closed)

	select {
	case <-p.Closed():
	default:
		t.Fatal("Closed() channel should already be closed")
	}
}

var _ net.Addr = fakeAddr{}
