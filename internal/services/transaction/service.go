// Package transaction implements the Transaction service:
// accepts placeholder transaction messages and acknowledges them. Real
// persistence of transaction state is a declared non-goal.
package transaction

import (
	"log"

	"github.com/thesprockee/EchoRelay/internal/peer"
	"github.com/thesprockee/EchoRelay/internal/service"
	"github.com/thesprockee/EchoRelay/internal/symbol"
	"github.com/thesprockee/EchoRelay/internal/wire"
)

// Service is the /transaction endpoint.
type Service struct {
	*service.Base

	Symbols *symbol.Cache
}

// New wires a Transaction Service.
func New(symbols *symbol.Cache) *Service {
	return &Service{
		Base:    service.NewBase("Transaction", "/transaction"),
		Symbols: symbols,
	}
}

// HandlePacket dispatches every message in pkt to its typed handler.
func (s *Service) HandlePacket(p *peer.Peer, pkt wire.Packet) {
	for _, m := range pkt {
		s.Base.NotifyPacketReceived(p, wire.Packet{m})

		switch name, _ := wire.DecodeJSON(s.Symbols, m, nil); name {
		case wire.MsgTransactionRequest:
			var req wire.TransactionRequest
			if _, ok := wire.DecodeJSON(s.Symbols, m, &req); ok {
				s.handleTransactionRequest(p, req)
			}
		default:
			log.Printf("transaction: unhandled message type %d", m.Type)
		}
	}
}

func (s *Service) handleTransactionRequest(p *peer.Peer, req wire.TransactionRequest) {
	msg, err := wire.EncodeJSON(s.Symbols, wire.MsgTransactionAck, wire.TransactionAck{Kind: req.Kind})
	if err != nil {
		log.Printf("transaction: encode ack: %v", err)
		return
	}
	_ = p.Send(msg)
	s.Base.NotifyPacketSent(p, wire.Packet{msg})
}
