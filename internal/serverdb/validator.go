package serverdb

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"net"
	"time"
)

// Probe wire format: 16 bytes, a 4-byte magic, an 8-byte random nonce,
// and 4 reserved bytes, echoed back verbatim by a well-behaved game
// server.
var probeMagic = [4]byte{'E', 'C', 'H', 'O'}

const probeSize = 4 + 8 + 4

// Validator issues the raw UDP ping probe RegisterGameServer requires when
// validate_endpoint is enabled.
type Validator struct {
	Timeout time.Duration
}

// NewValidator returns a Validator using the default 3000 ms probe
// timeout.
func NewValidator() *Validator {
	return &Validator{Timeout: 3000 * time.Millisecond}
}

// Probe sends a nonce to addr and waits for it to be echoed back within the
// validator's timeout. It returns the measured round-trip time on success.
// Probe failures are not retried: the caller refuses registration and the
// game server is expected to republish.
func (v *Validator) Probe(ctx context.Context, addr string) (time.Duration, error) {
	var nonce [8]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return 0, fmt.Errorf("serverdb: generate probe nonce: %w", err)
	}

	req := make([]byte, probeSize)
	copy(req[0:4], probeMagic[:])
	copy(req[4:12], nonce[:])

	conn, err := net.Dial("udp", addr)
	if err != nil {
		return 0, fmt.Errorf("serverdb: dial probe target %s: %w", addr, err)
	}
	defer conn.Close()

	timeout := v.Timeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}
	if err := conn.SetDeadline(time.Now().Add(timeout)); err != nil {
		return 0, err
	}

	sent := time.Now()
	if _, err := conn.Write(req); err != nil {
		return 0, fmt.Errorf("serverdb: write probe: %w", err)
	}

	resp := make([]byte, probeSize)
	n, err := conn.Read(resp)
	if err != nil {
		return 0, fmt.Errorf("serverdb: probe %s timed out: %w", addr, err)
	}
	rtt := time.Since(sent)

	if n != probeSize || !bytes.Equal(resp[0:4], probeMagic[:]) || !bytes.Equal(resp[4:12], nonce[:]) {
		return 0, fmt.Errorf("serverdb: probe %s returned a mismatched echo", addr)
	}

	return rtt, nil
}

// EncodeProbeHeader exposes the wire layout for tests and for a reference
// echo responder (conn.Read's length check above is the decode side).
func EncodeProbeHeader(nonce uint64) []byte {
	b := make([]byte, probeSize)
	copy(b[0:4], probeMagic[:])
	binary.LittleEndian.PutUint64(b[4:12], nonce)
	return b
}
