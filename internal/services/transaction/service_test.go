package transaction

import (
	"bytes"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thesprockee/EchoRelay/internal/peer"
	"github.com/thesprockee/EchoRelay/internal/symbol"
	"github.com/thesprockee/EchoRelay/internal/wire"
)

type fakeAddr struct{}

func (fakeAddr) Network() string { return "tcp" }
func (fakeAddr) String() string  { return "127.0.0.1:0" }

type fakeConn struct {
	buf bytes.Buffer
	dec *wire.Decoder
}

func newFakeConn() *fakeConn { return &fakeConn{dec: wire.NewDecoder()} }

func (c *fakeConn) Write(b []byte) (int, error) { return c.buf.Write(b) }
func (c *fakeConn) Close() error                { return nil }

func TestTransactionRequestIsAcknowledged(t *testing.T) {
	syms := symbol.New()
	symbol.Seed(syms)
	wire.SeedMessageTypes(syms)

	svc := New(syms)
	conn := newFakeConn()
	p := peer.New(fakeAddr{}, conn)

	raw, err := wire.EncodeJSON(svc.Symbols, wire.MsgTransactionRequest, wire.TransactionRequest{Kind: "purchase"})
	require.NoError(t, err)
	svc.HandlePacket(p, wire.Packet{raw})

	pkt, err := conn.dec.Feed(conn.buf.Bytes())
	require.NoError(t, err)
	require.Len(t, pkt, 1)

	var ack wire.TransactionAck
	name, ok := wire.DecodeJSON(svc.Symbols, pkt[0], &ack)
	require.True(t, ok)
	assert.Equal(t, wire.MsgTransactionAck, name)
	assert.Equal(t, "purchase", ack.Kind)
}

var _ net.Addr = fakeAddr{}
