// Package configsvc implements the Config service: read-only
// ConfigRequest lookups against the Configs collection.
package configsvc

import (
	"context"
	"log"

	"github.com/thesprockee/EchoRelay/internal/peer"
	"github.com/thesprockee/EchoRelay/internal/service"
	"github.com/thesprockee/EchoRelay/internal/storage"
	"github.com/thesprockee/EchoRelay/internal/symbol"
	"github.com/thesprockee/EchoRelay/internal/wire"
)

// Service is the /config endpoint.
type Service struct {
	*service.Base

	Store   storage.Store
	Symbols *symbol.Cache
}

// New wires a Config Service.
func New(store storage.Store, symbols *symbol.Cache) *Service {
	return &Service{
		Base:    service.NewBase("Config", "/config"),
		Store:   store,
		Symbols: symbols,
	}
}

// HandlePacket dispatches every message in pkt to its typed handler.
func (s *Service) HandlePacket(p *peer.Peer, pkt wire.Packet) {
	ctx := context.Background()

	for _, m := range pkt {
		s.Base.NotifyPacketReceived(p, wire.Packet{m})

		switch name, _ := wire.DecodeJSON(s.Symbols, m, nil); name {
		case wire.MsgConfigRequest:
			var req wire.ConfigRequest
			if _, ok := wire.DecodeJSON(s.Symbols, m, &req); ok {
				s.handleConfigRequest(ctx, p, req)
			}
		default:
			log.Printf("configsvc: unhandled message type %d", m.Type)
		}
	}
}

func (s *Service) handleConfigRequest(ctx context.Context, p *peer.Peer, req wire.ConfigRequest) {
	key := req.Type + ":" + req.Identifier
	raw, ok, err := storage.GetComposite(ctx, s.Store, storage.CollectionConfigs, key)
	if err != nil || !ok {
		msg, encErr := wire.EncodeJSON(s.Symbols, wire.MsgConfigFailure, wire.ConfigFailure{
			Type: req.Type, Identifier: req.Identifier, Message: "not found",
		})
		if encErr == nil {
			_ = p.Send(msg)
			s.Base.NotifyPacketSent(p, wire.Packet{msg})
		}
		return
	}

	msg, err := wire.EncodeJSON(s.Symbols, wire.MsgConfigSuccess, wire.ConfigSuccess{
		Type: req.Type, Identifier: req.Identifier, Config: raw,
	})
	if err != nil {
		log.Printf("configsvc: encode success: %v", err)
		return
	}
	_ = p.Send(msg)
	s.Base.NotifyPacketSent(p, wire.Packet{msg})
}
