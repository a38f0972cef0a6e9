// Package serverdb implements the game-server registry and the ServerDB
// service: the index of RegisteredGameServer records keyed by
// server id with region and version-lock secondary indexes, atomic CAS state
// transitions, and the raw UDP liveness probe.
package serverdb

import (
	"fmt"
	"sync"

	"github.com/thesprockee/EchoRelay/internal/model"
	"github.com/thesprockee/EchoRelay/internal/peer"
)

// record is the registry's internal wrapper around a RegisteredGameServer:
// the public struct plus the mutex guarding its mutable fields and the weak
// back-reference to the ServerDB peer that owns it. The reference is one
// directional: the peer's disconnect removes the record, never the other
// way around.
type record struct {
	mu   sync.Mutex
	data model.RegisteredGameServer
	peer *peer.Peer
}

// Registry is the in-memory index of live game servers (the glossary's
// "Registry"). Reads take the read lock; register/unregister take the write
// lock; everything else locks only the one record it touches.
type Registry struct {
	mu sync.RWMutex

	byID      map[uint64]*record
	byPeer    map[*peer.Peer]*record
	byRegion  map[int64]map[uint64]*record
	byVersion map[int64]map[uint64]*record

	OnGameServerRegistered          func(*model.RegisteredGameServer)
	OnGameServerUnregistered        func(uint64)
	OnGameServerRegistrationFailure func(p *peer.Peer, serverID uint64, reason string)
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		byID:      make(map[uint64]*record),
		byPeer:    make(map[*peer.Peer]*record),
		byRegion:  make(map[int64]map[uint64]*record),
		byVersion: make(map[int64]map[uint64]*record),
	}
}

// Register creates a RegisteredGameServer for p and indexes it. It fails if
// p already owns a registration (at most one registration per ServerDB
// peer) or if server_id is already taken.
func (r *Registry) Register(p *peer.Peer, data model.RegisteredGameServer) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byPeer[p]; exists {
		return fmt.Errorf("serverdb: peer already has an active registration")
	}
	if _, exists := r.byID[data.ServerID]; exists {
		return fmt.Errorf("serverdb: server_id %d already registered", data.ServerID)
	}

	data.State = model.StateIdle
	rec := &record{data: data, peer: p}

	r.byID[data.ServerID] = rec
	r.byPeer[p] = rec
	r.indexSecondary(rec)

	if r.OnGameServerRegistered != nil {
		snap := rec.data
		r.OnGameServerRegistered(&snap)
	}
	return nil
}

func (r *Registry) indexSecondary(rec *record) {
	region := r.byRegion[rec.data.RegionSymbol]
	if region == nil {
		region = make(map[uint64]*record)
		r.byRegion[rec.data.RegionSymbol] = region
	}
	region[rec.data.ServerID] = rec

	version := r.byVersion[rec.data.VersionLock]
	if version == nil {
		version = make(map[uint64]*record)
		r.byVersion[rec.data.VersionLock] = version
	}
	version[rec.data.ServerID] = rec
}

// Unregister removes the registration owned by p, if any, firing
// OnGameServerUnregistered. Called when the owning peer disconnects.
func (r *Registry) Unregister(p *peer.Peer) {
	r.mu.Lock()
	rec, ok := r.byPeer[p]
	if !ok {
		r.mu.Unlock()
		return
	}

	delete(r.byPeer, p)
	delete(r.byID, rec.data.ServerID)
	if region := r.byRegion[rec.data.RegionSymbol]; region != nil {
		delete(region, rec.data.ServerID)
	}
	if version := r.byVersion[rec.data.VersionLock]; version != nil {
		delete(version, rec.data.ServerID)
	}
	r.mu.Unlock()

	rec.mu.Lock()
	rec.data.State = model.StateRemoved
	serverID := rec.data.ServerID
	rec.mu.Unlock()

	if r.OnGameServerUnregistered != nil {
		r.OnGameServerUnregistered(serverID)
	}
}

// Get returns a snapshot of the record for serverID.
func (r *Registry) Get(serverID uint64) (model.RegisteredGameServer, bool) {
	r.mu.RLock()
	rec, ok := r.byID[serverID]
	r.mu.RUnlock()
	if !ok {
		return model.RegisteredGameServer{}, false
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.data, true
}

// PeerOf returns the ServerDB peer owning serverID's registration.
func (r *Registry) PeerOf(serverID uint64) (*peer.Peer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.byID[serverID]
	if !ok {
		return nil, false
	}
	return rec.peer, true
}

// Snapshot returns every currently registered server, for the matching
// engine's candidate filter and the admin API's read-only view.
func (r *Registry) Snapshot() []model.RegisteredGameServer {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]model.RegisteredGameServer, 0, len(r.byID))
	for _, rec := range r.byID {
		rec.mu.Lock()
		out = append(out, rec.data)
		rec.mu.Unlock()
	}
	return out
}

// CASState attempts to move serverID from `from` to `to`, returning whether
// it won the race. Concurrent allocators race on this one transition;
// losers pick another server.
func (r *Registry) CASState(serverID uint64, from, to model.SessionState) bool {
	r.mu.RLock()
	rec, ok := r.byID[serverID]
	r.mu.RUnlock()
	if !ok {
		return false
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.data.State != from {
		return false
	}
	rec.data.State = to
	return true
}

// LockSession moves an idle server to session-locked under a fresh
// session_guid and level/mode, used by the matching engine's allocator.
func (r *Registry) LockSession(serverID uint64, sessionGUID string, levelSymbol, gameModeSymbol int64) bool {
	r.mu.RLock()
	rec, ok := r.byID[serverID]
	r.mu.RUnlock()
	if !ok {
		return false
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.data.State != model.StateIdle {
		return false
	}
	rec.data.State = model.StateSessionLocked
	rec.data.SessionGUID = sessionGUID
	rec.data.LevelSymbol = levelSymbol
	rec.data.GameModeSymbol = gameModeSymbol
	return true
}

// MarkSessionStarted transitions session-locked -> session-active on
// LobbySessionStartedv4 from the owning game server.
func (r *Registry) MarkSessionStarted(p *peer.Peer, sessionGUID string) bool {
	r.mu.RLock()
	rec, ok := r.byPeer[p]
	r.mu.RUnlock()
	if !ok {
		return false
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.data.State != model.StateSessionLocked || rec.data.SessionGUID != sessionGUID {
		return false
	}
	rec.data.State = model.StateSessionActive
	return true
}

// EndSession resets the owning record to idle on LobbySessionEnded or when
// participant count drops to zero.
func (r *Registry) EndSession(p *peer.Peer) {
	r.mu.RLock()
	rec, ok := r.byPeer[p]
	r.mu.RUnlock()
	if !ok {
		return
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	rec.data.State = model.StateIdle
	rec.data.SessionGUID = ""
	rec.data.LevelSymbol = 0
	rec.data.GameModeSymbol = 0
	rec.data.ParticipantCount = 0
}

// PlayerJoined increments the participant counter for the server owned by p.
func (r *Registry) PlayerJoined(p *peer.Peer) {
	r.mu.RLock()
	rec, ok := r.byPeer[p]
	r.mu.RUnlock()
	if !ok {
		return
	}

	rec.mu.Lock()
	rec.data.ParticipantCount++
	rec.mu.Unlock()
}

// PlayerLeft decrements the participant counter and, if it reaches zero
// while active, ends the session.
func (r *Registry) PlayerLeft(p *peer.Peer) {
	r.mu.RLock()
	rec, ok := r.byPeer[p]
	r.mu.RUnlock()
	if !ok {
		return
	}

	rec.mu.Lock()
	if rec.data.ParticipantCount > 0 {
		rec.data.ParticipantCount--
	}
	emptied := rec.data.ParticipantCount == 0 && rec.data.State == model.StateSessionActive
	rec.mu.Unlock()

	if emptied {
		r.EndSession(p)
	}
}

// UpdateRegistration applies a publish/unpublish or capacity change from the
// owning peer.
func (r *Registry) UpdateRegistration(p *peer.Peer, isPublic *bool, capacity *int) {
	r.mu.RLock()
	rec, ok := r.byPeer[p]
	r.mu.RUnlock()
	if !ok {
		return
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if isPublic != nil {
		rec.data.IsPublic = *isPublic
	}
	if capacity != nil {
		rec.data.Capacity = *capacity
	}
}

// SetLastPingRTT records the most recent liveness probe round-trip time.
func (r *Registry) SetLastPingRTT(serverID uint64, millis int64) {
	r.mu.RLock()
	rec, ok := r.byID[serverID]
	r.mu.RUnlock()
	if !ok {
		return
	}

	rec.mu.Lock()
	rec.data.LastPingRTTMillis = millis
	rec.mu.Unlock()
}
