package matching

import (
	"log"

	"github.com/thesprockee/EchoRelay/internal/peer"
	"github.com/thesprockee/EchoRelay/internal/serverdb"
	"github.com/thesprockee/EchoRelay/internal/service"
	"github.com/thesprockee/EchoRelay/internal/symbol"
	"github.com/thesprockee/EchoRelay/internal/wire"
)

// Service is the Matching endpoint clients request sessions on.
type Service struct {
	*service.Base

	Engine   *Engine
	Registry *serverdb.Registry
	Symbols  *symbol.Cache
}

// New wires a Matching Service around engine.
func New(engine *Engine, reg *serverdb.Registry, symbols *symbol.Cache) *Service {
	return &Service{
		Base:     service.NewBase("Matching", "/matching"),
		Engine:   engine,
		Registry: reg,
		Symbols:  symbols,
	}
}

// HandlePacket dispatches every message in pkt to its typed handler.
func (s *Service) HandlePacket(p *peer.Peer, pkt wire.Packet) {
	for _, m := range pkt {
		s.Base.NotifyPacketReceived(p, wire.Packet{m})

		switch name, _ := wire.DecodeJSON(s.Symbols, m, nil); name {
		case wire.MsgLobbyCreateSessionRequestv9:
			var req wire.LobbyCreateSessionRequestv9
			if _, ok := wire.DecodeJSON(s.Symbols, m, &req); ok {
				s.resolve(p, Request{
					Kind:           KindCreate,
					LevelSymbol:    req.LevelSymbol,
					GameModeSymbol: req.GameModeSymbol,
					RegionSymbol:   req.RegionSymbol,
					HasRegion:      req.RegionSymbol != 0,
					VersionLock:    req.VersionLock,
					ClientPingMs:   req.ClientPingMs,
				})
			}
		case wire.MsgLobbyFindSessionRequestv11:
			var req wire.LobbyFindSessionRequestv11
			if _, ok := wire.DecodeJSON(s.Symbols, m, &req); ok {
				s.resolve(p, Request{
					Kind:           KindFind,
					LevelSymbol:    req.LevelSymbol,
					GameModeSymbol: req.GameModeSymbol,
					RegionSymbol:   req.RegionSymbol,
					HasRegion:      req.RegionSymbol != 0,
					VersionLock:    req.VersionLock,
					ClientPingMs:   req.ClientPingMs,
				})
			}
		case wire.MsgLobbyJoinSessionRequestv7:
			var req wire.LobbyJoinSessionRequestv7
			if _, ok := wire.DecodeJSON(s.Symbols, m, &req); ok {
				s.resolve(p, Request{
					Kind:        KindJoin,
					SessionGUID: req.SessionGUID,
					VersionLock: req.VersionLock,
				})
			}
		default:
			log.Printf("matching: unhandled message type %d", m.Type)
		}
	}
}

func (s *Service) resolve(p *peer.Peer, req Request) {
	result, err := s.Engine.Resolve(req)
	if err != nil {
		log.Printf("matching: resolve error: %v", err)
		return
	}

	if !result.Matched {
		s.sendFailure(p, result.Reason)
		return
	}

	// Commit: notify the owning ServerDB peer on a create
	// allocation; find/join only inform the matching client.
	if req.Kind == KindCreate {
		if ownerPeer, ok := s.Registry.PeerOf(result.Server.ServerID); ok {
			msg, err := wire.EncodeJSON(s.Symbols, wire.MsgLobbySessionNew, wire.LobbySessionNew{
				ServerID:       result.Server.ServerID,
				SessionGUID:    result.SessionGUID,
				LevelSymbol:    req.LevelSymbol,
				GameModeSymbol: req.GameModeSymbol,
			})
			if err == nil {
				_ = ownerPeer.Send(msg)
			}
		}
	}

	msg, err := wire.EncodeJSON(s.Symbols, wire.MsgLobbySessionSuccessv5, wire.LobbySessionSuccessv5{
		SessionGUID: result.SessionGUID,
		Endpoint:    result.Server.Endpoint(),
		TeamIndex:   0,
	})
	if err != nil {
		log.Printf("matching: encode success: %v", err)
		return
	}
	if err := p.Send(msg); err != nil {
		log.Printf("matching: send success: %v", err)
		return
	}
	s.Base.NotifyPacketSent(p, wire.Packet{msg})
}

func (s *Service) sendFailure(p *peer.Peer, reason string) {
	msg, err := wire.EncodeJSON(s.Symbols, wire.MsgLobbySessionFailure, wire.LobbySessionFailure{Reason: reason})
	if err != nil {
		log.Printf("matching: encode failure: %v", err)
		return
	}
	_ = p.Send(msg)
	s.Base.NotifyPacketSent(p, wire.Packet{msg})
}
