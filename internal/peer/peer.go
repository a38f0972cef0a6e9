// Package peer implements the per-connection Peer state shared by every
// service: remote address, authenticated identity, one opaque session-data
// slot per service, and a send path that writes each packet under a
// per-peer lock before returning; there is no separate send queue, so
// packets go out in the order callers acquire that lock. A Peer is
// service-agnostic and can sit on any of the five session-server services.
package peer

import (
	"bytes"
	"fmt"
	"net"
	"sync"

	"github.com/thesprockee/EchoRelay/internal/model"
	"github.com/thesprockee/EchoRelay/internal/wire"
)

// Writer is the minimal transport-side interface a Peer writes framed bytes
// to; satisfied by a websocket.Conn or any net.Conn.
type Writer interface {
	Write(b []byte) (int, error)
	Close() error
}

// Peer is one live connection to one service.
type Peer struct {
	addr net.Addr
	conn Writer

	mu          sync.RWMutex
	userID      *model.XPlatformId
	displayName string

	sessionMu   sync.RWMutex
	sessionData map[string]interface{} // service name -> opaque slot

	sendMu   sync.Mutex // serializes writes, preserving per-peer send order
	closed   bool
	closedMu sync.Mutex
	closeCh  chan struct{}
}

// New returns a fresh Peer for an accepted connection.
func New(addr net.Addr, conn Writer) *Peer {
	return &Peer{
		addr:        addr,
		conn:        conn,
		sessionData: make(map[string]interface{}),
		closeCh:     make(chan struct{}),
	}
}

// Addr returns the remote address.
func (p *Peer) Addr() net.Addr { return p.addr }

// UserID returns the authenticated identity, if any.
func (p *Peer) UserID() (model.XPlatformId, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.userID == nil {
		return model.XPlatformId{}, false
	}
	return *p.userID, true
}

// DisplayName returns the authenticated display name, if any.
func (p *Peer) DisplayName() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.displayName
}

// UpdateUserAuthentication sets the authenticated identity. It returns true
// the first time it is called for this Peer (the caller uses this to fire
// the on_peer_authenticated event exactly once).
func (p *Peer) UpdateUserAuthentication(userID model.XPlatformId, displayName string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	firstTime := p.userID == nil
	p.userID = &userID
	p.displayName = displayName
	return firstTime
}

// SessionData returns the opaque per-service slot for service, if set.
func (p *Peer) SessionData(service string) (interface{}, bool) {
	p.sessionMu.RLock()
	defer p.sessionMu.RUnlock()
	v, ok := p.sessionData[service]
	return v, ok
}

// SetSessionData sets the opaque per-service slot for service.
func (p *Peer) SetSessionData(service string, v interface{}) {
	p.sessionMu.Lock()
	defer p.sessionMu.Unlock()
	p.sessionData[service] = v
}

// ClearSessionData removes the opaque per-service slot for service.
func (p *Peer) ClearSessionData(service string) {
	p.sessionMu.Lock()
	defer p.sessionMu.Unlock()
	delete(p.sessionData, service)
}

// Send frames messages into a single packet and writes it before
// returning; nothing is queued. It is
// safe to call concurrently; writes are serialized internally.
func (p *Peer) Send(messages ...wire.RawMessage) error {
	if len(messages) == 0 {
		return nil
	}

	var buf bytes.Buffer
	for _, m := range messages {
		wire.EncodeMessage(&buf, m.Type, m.Body)
	}

	p.sendMu.Lock()
	defer p.sendMu.Unlock()

	if p.isClosed() {
		return fmt.Errorf("peer: send on closed peer %s", p.addr)
	}

	_, err := p.conn.Write(buf.Bytes())
	return err
}

// Closed returns a channel closed once the peer disconnects.
func (p *Peer) Closed() <-chan struct{} { return p.closeCh }

func (p *Peer) isClosed() bool {
	p.closedMu.Lock()
	defer p.closedMu.Unlock()
	return p.closed
}

// Close closes the underlying connection and marks the peer closed. It is
// safe to call more than once.
func (p *Peer) Close() error {
	p.closedMu.Lock()
	if p.closed {
		p.closedMu.Unlock()
		return nil
	}
	p.closed = true
	p.closedMu.Unlock()

	close(p.closeCh)
	return p.conn.Close()
}
