package serverdb

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// echoOnce starts a UDP listener that echoes exactly one datagram back to
// its sender, standing in for a well-behaved game server's probe responder.
func echoOnce(t *testing.T) string {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)

	go func() {
		buf := make([]byte, 64)
		n, addr, err := conn.ReadFromUDP(buf)
		if err != nil {
			return
		}
		_, _ = conn.WriteToUDP(buf[:n], addr)
	}()

	t.Cleanup(func() { conn.Close() })
	return conn.LocalAddr().String()
}

func TestProbeSucceedsAgainstEchoResponder(t *testing.T) {
	addr := echoOnce(t)

	v := &Validator{Timeout: time.Second}
	rtt, err := v.Probe(context.Background(), addr)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, rtt, time.Duration(0))
}

func TestProbeTimesOutWithNoResponder(t *testing.T) {
	// A loopback UDP address nothing is listening on still "dials"
	// successfully (UDP is connectionless); the read must time out.
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	addr := conn.LocalAddr().String()
	conn.Close() // nothing listens here anymore

	v := &Validator{Timeout: 200 * time.Millisecond}
	_, err = v.Probe(context.Background(), addr)
	assert.Error(t, err)
}

func TestProbeRespectsContextDeadline(t *testing.T) {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	addr := conn.LocalAddr().String()
	conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	v := &Validator{Timeout: time.Hour} // deadline must win, not the validator's own timeout
	start := time.Now()
	_, err = v.Probe(ctx, addr)
	assert.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)
}
