package service

import (
	"sync"

	"github.com/thesprockee/EchoRelay/internal/peer"
	"github.com/thesprockee/EchoRelay/internal/wire"
)

// PacketEvent pairs a peer with the packet it sent or is about to receive,
// the payload for OnPacketSent/OnPacketReceived.
type PacketEvent struct {
	Peer   *peer.Peer
	Packet wire.Packet
}

// Handler dispatches one decoded packet for a peer already registered with
// the service. Each of the five concrete services implements this with its
// own message vocabulary.
type Handler interface {
	Name() string
	Path() string
	HandlePacket(p *peer.Peer, pkt wire.Packet)
}

// Base is embedded by every concrete service; it owns the peer set and the
// named event observer sets, leaving message
// dispatch to the embedding type.
type Base struct {
	name string
	path string

	mu    sync.RWMutex
	peers map[*peer.Peer]struct{}

	OnPeerConnected     Event[*peer.Peer]
	OnPeerDisconnected  Event[*peer.Peer]
	OnPeerAuthenticated Event[*peer.Peer]
	OnPacketSent        Event[PacketEvent]
	OnPacketReceived    Event[PacketEvent]
}

// NewBase returns a Base for a service named name, bound to path.
func NewBase(name, path string) *Base {
	return &Base{
		name:  name,
		path:  path,
		peers: make(map[*peer.Peer]struct{}),
	}
}

func (b *Base) Name() string { return b.name }
func (b *Base) Path() string { return b.path }

// AddPeer registers p with the service and fires OnPeerConnected. Services
// never share peers: a peer belongs to exactly one Base.
func (b *Base) AddPeer(p *peer.Peer) {
	b.mu.Lock()
	b.peers[p] = struct{}{}
	b.mu.Unlock()

	b.OnPeerConnected.Fire(p)
}

// RemovePeer unregisters p and fires OnPeerDisconnected. Safe to call more
// than once; the second call is a no-op.
func (b *Base) RemovePeer(p *peer.Peer) {
	b.mu.Lock()
	_, existed := b.peers[p]
	delete(b.peers, p)
	b.mu.Unlock()

	if existed {
		b.OnPeerDisconnected.Fire(p)
	}
}

// Peers returns a snapshot of currently-connected peers.
func (b *Base) Peers() []*peer.Peer {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]*peer.Peer, 0, len(b.peers))
	for p := range b.peers {
		out = append(out, p)
	}
	return out
}

// PeerCount reports how many peers are currently connected.
func (b *Base) PeerCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.peers)
}

// NotifyAuthenticated fires OnPeerAuthenticated for p. Callers (the Login
// service) must only call this when peer.UpdateUserAuthentication reports
// it is the first authentication for this peer.
func (b *Base) NotifyAuthenticated(p *peer.Peer) {
	b.OnPeerAuthenticated.Fire(p)
}

// NotifyPacketReceived fires OnPacketReceived.
func (b *Base) NotifyPacketReceived(p *peer.Peer, pkt wire.Packet) {
	b.OnPacketReceived.Fire(PacketEvent{Peer: p, Packet: pkt})
}

// NotifyPacketSent fires OnPacketSent.
func (b *Base) NotifyPacketSent(p *peer.Peer, pkt wire.Packet) {
	b.OnPacketSent.Fire(PacketEvent{Peer: p, Packet: pkt})
}
