package serverdb

import (
	"context"
	"fmt"
	"log"
	"net"
	"time"

	"github.com/thesprockee/EchoRelay/internal/model"
	"github.com/thesprockee/EchoRelay/internal/peer"
	"github.com/thesprockee/EchoRelay/internal/service"
	"github.com/thesprockee/EchoRelay/internal/symbol"
	"github.com/thesprockee/EchoRelay/internal/wire"
)

// Service is the ServerDB endpoint dedicated game servers connect to.
// Each peer is expected to register exactly once.
type Service struct {
	*service.Base

	Registry  *Registry
	Validator *Validator
	Symbols   *symbol.Cache

	ValidateEndpoint bool
}

// New wires a ServerDB Service around reg, reporting registration failures
// and successes through reg's own callbacks.
func New(reg *Registry, validator *Validator, symbols *symbol.Cache, validateEndpoint bool) *Service {
	return &Service{
		Base:             service.NewBase("ServerDB", "/serverdb"),
		Registry:         reg,
		Validator:        validator,
		Symbols:          symbols,
		ValidateEndpoint: validateEndpoint,
	}
}

// RemovePeer unregisters p's game server before the peer's close completes.
// The unregister happens inline, not via the OnPeerDisconnected observers,
// so a matching request racing the disconnect can never see a record whose
// owning peer is already gone.
func (s *Service) RemovePeer(p *peer.Peer) {
	s.Registry.Unregister(p)
	s.Base.RemovePeer(p)
}

// HandlePacket dispatches every message in pkt to its typed handler.
func (s *Service) HandlePacket(p *peer.Peer, pkt wire.Packet) {
	for _, m := range pkt {
		s.Base.NotifyPacketReceived(p, wire.Packet{m})

		name, decoded := wire.DecodeJSON(s.Symbols, m, nil)
		switch name {
		case wire.MsgRegisterGameServer:
			var req wire.RegisterGameServer
			if _, ok := wire.DecodeJSON(s.Symbols, m, &req); ok {
				s.handleRegister(p, req)
			}
		case wire.MsgLobbySessionStartedv4:
			var req wire.LobbySessionStartedv4
			if _, ok := wire.DecodeJSON(s.Symbols, m, &req); ok {
				s.Registry.MarkSessionStarted(p, req.SessionGUID)
			}
		case wire.MsgLobbySessionEnded:
			s.Registry.EndSession(p)
		case wire.MsgPlayerSessionJoined:
			s.Registry.PlayerJoined(p)
		case wire.MsgPlayerSessionLeft:
			s.Registry.PlayerLeft(p)
		case wire.MsgRegistrationUpdate:
			var req wire.RegistrationUpdate
			if _, ok := wire.DecodeJSON(s.Symbols, m, &req); ok {
				s.Registry.UpdateRegistration(p, req.IsPublic, req.Capacity)
			}
		default:
			// Unknown type_symbol: not fatal, just logged.
			log.Printf("serverdb: unhandled message type %d (decoded=%v)", m.Type, decoded)
		}
	}
}

func (s *Service) handleRegister(p *peer.Peer, req wire.RegisterGameServer) {
	if err := s.validateRegisterRequest(req); err != nil {
		s.reject(p, req.ServerID, err.Error())
		return
	}

	if s.ValidateEndpoint {
		ctx, cancel := context.WithTimeout(context.Background(), s.Validator.Timeout)
		defer cancel()

		addr := fmt.Sprintf("%s:%d", req.ExternalAddress, req.Port)
		rtt, err := s.Validator.Probe(ctx, addr)
		if err != nil {
			s.reject(p, req.ServerID, fmt.Sprintf("endpoint validation failed: %v", err))
			return
		}
		defer s.Registry.SetLastPingRTT(req.ServerID, rtt.Milliseconds())
	}

	data := model.RegisteredGameServer{
		ServerID:        req.ServerID,
		InternalAddress: req.InternalAddress,
		ExternalAddress: req.ExternalAddress,
		Port:            req.Port,
		RegionSymbol:    req.RegionSymbol,
		VersionLock:     req.VersionLock,
		IsPublic:        req.IsPublic,
		Capacity:        req.Capacity,
	}

	if err := s.Registry.Register(p, data); err != nil {
		s.reject(p, req.ServerID, err.Error())
		return
	}

	msg, err := wire.EncodeJSON(s.Symbols, wire.MsgRegistrationSuccess, wire.RegistrationSuccess{ServerID: req.ServerID})
	if err != nil {
		log.Printf("serverdb: encode registration success: %v", err)
		return
	}
	if err := p.Send(msg); err != nil {
		log.Printf("serverdb: send registration success: %v", err)
		return
	}
	s.Base.NotifyPacketSent(p, wire.Packet{msg})
}

func (s *Service) reject(p *peer.Peer, serverID uint64, reason string) {
	if s.Registry.OnGameServerRegistrationFailure != nil {
		s.Registry.OnGameServerRegistrationFailure(p, serverID, reason)
	}

	msg, err := wire.EncodeJSON(s.Symbols, wire.MsgRegistrationFailure, wire.RegistrationFailure{ServerID: serverID, Reason: reason})
	if err == nil {
		_ = p.Send(msg)
	}
	_ = p.Close()
}

func (s *Service) validateRegisterRequest(req wire.RegisterGameServer) error {
	if req.ServerID == 0 {
		return fmt.Errorf("server_id must be non-zero")
	}
	if req.Port == 0 {
		return fmt.Errorf("port must be in (0, 65535]")
	}
	if _, ok := s.Symbols.Name(req.RegionSymbol); !ok {
		return fmt.Errorf("region symbol %d does not resolve to a known region", req.RegionSymbol)
	}
	ip := net.ParseIP(req.ExternalAddress)
	if ip == nil {
		return fmt.Errorf("external_address %q is not a valid address", req.ExternalAddress)
	}
	if ip.IsLoopback() || ip.IsUnspecified() || ip.IsPrivate() {
		return fmt.Errorf("external_address %q must be public", req.ExternalAddress)
	}
	return nil
}

// PingEvery runs probes periodically against live servers to keep
// LastPingRTTMillis fresh, so the low-ping-first ranking policy doesn't go
// stale between registrations. Callers start this as a background
// goroutine only when configured to, and it exits when ctx is cancelled.
func (s *Service) PingEvery(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			for _, srv := range s.Registry.Snapshot() {
				addr := fmt.Sprintf("%s:%d", srv.ExternalAddress, srv.Port)
				probeCtx, cancel := context.WithTimeout(ctx, s.Validator.Timeout)
				rtt, err := s.Validator.Probe(probeCtx, addr)
				cancel()
				if err == nil {
					s.Registry.SetLastPingRTT(srv.ServerID, rtt.Milliseconds())
				}
			}
		}
	}
}
