// Package relay implements the session server: one TCP
// listener, HTTP-upgraded into a websocket per connection, demultiplexed by
// path into one of the five services, each connection wrapped in a Peer
// whose lifecycle drives the owning service's connect/disconnect events.
package relay

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"golang.org/x/net/websocket"

	"github.com/thesprockee/EchoRelay/internal/peer"
	"github.com/thesprockee/EchoRelay/internal/wire"
)

// Service is anything the session server can route an upgraded connection
// to: a name, a path, peer registration, and packet dispatch. *service.Base
// provides AddPeer/RemovePeer/Name/Path; each concrete service embeds it and
// adds HandlePacket, so every one of the five services satisfies this
// without extra glue.
type Service interface {
	Name() string
	Path() string
	AddPeer(p *peer.Peer)
	RemovePeer(p *peer.Peer)
	HandlePacket(p *peer.Peer, pkt wire.Packet)
}

// AuthResult is the payload of OnAuthorizationResult.
type AuthResult struct {
	ClientEndpoint string
	Authorized     bool
}

// Server is the session server's accept loop and path router.
type Server struct {
	ListenAddress  string
	ServerDBAPIKey string

	services map[string]Service

	OnAuthorizationResult func(AuthResult)
	OnServerStarted       func()
	OnServerStopped       func()

	httpServer *http.Server
}

// New returns a Server bound to addr, with the given services registered by
// their own Path().
func New(addr, serverDBAPIKey string, services ...Service) *Server {
	s := &Server{
		ListenAddress:  addr,
		ServerDBAPIKey: serverDBAPIKey,
		services:       make(map[string]Service, len(services)),
	}
	for _, svc := range services {
		s.services[svc.Path()] = svc
	}
	return s
}

// ListenAndServe runs the accept loop until ctx is cancelled, then performs
// a graceful shutdown bounded by grace.
func (s *Server) ListenAndServe(ctx context.Context, grace time.Duration) error {
	mux := http.NewServeMux()
	for path, svc := range s.services {
		mux.Handle(path, s.upgradeHandler(svc))
	}

	s.httpServer = &http.Server{Addr: s.ListenAddress, Handler: mux}

	ln, err := net.Listen("tcp", s.ListenAddress)
	if err != nil {
		return fmt.Errorf("relay: listen on %s: %w", s.ListenAddress, err)
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	if s.OnServerStarted != nil {
		s.OnServerStarted()
	}

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()
	err = s.httpServer.Shutdown(shutdownCtx)

	if s.OnServerStopped != nil {
		s.OnServerStopped()
	}
	return err
}

// upgradeHandler checks authorization before the websocket handshake
// completes (an apikey mismatch closes with HTTP 401, never upgrading),
// firing OnAuthorizationResult either way, and only then hands off to the
// websocket upgrader.
func (s *Server) upgradeHandler(svc Service) http.Handler {
	wsHandler := websocket.Handler(func(ws *websocket.Conn) {
		ws.PayloadType = websocket.BinaryFrame
		s.serveConnection(ws, svc)
	})

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authorized := s.authorize(svc, r)
		if s.OnAuthorizationResult != nil {
			s.OnAuthorizationResult(AuthResult{ClientEndpoint: r.RemoteAddr, Authorized: authorized})
		}
		if !authorized {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		wsHandler.ServeHTTP(w, r)
	})
}

// authorize applies the /serverdb apikey check; every other path is
// authorized unconditionally at the connection level (the ACL applied to
// an identified user happens inside Login's own handler, since no
// XPlatformId is known yet at upgrade time).
func (s *Server) authorize(svc Service, req *http.Request) bool {
	if svc.Path() != "/serverdb" || s.ServerDBAPIKey == "" {
		return true
	}
	return req.URL.Query().Get("apikey") == s.ServerDBAPIKey
}

func (s *Server) serveConnection(ws *websocket.Conn, svc Service) {
	p := peer.New(ws.RemoteAddr(), ws)
	svc.AddPeer(p)
	defer func() {
		svc.RemovePeer(p)
		_ = p.Close()
	}()

	// A panicking handler must only cost its own peer, never the process.
	defer func() {
		if r := recover(); r != nil {
			log.Printf("relay: %s: handler panic from %s: %v", svc.Name(), p.Addr(), r)
		}
	}()

	dec := wire.NewDecoder()
	buf := make([]byte, 64*1024)

	for {
		n, err := ws.Read(buf)
		if err != nil {
			return
		}

		pkt, err := dec.Feed(buf[:n])
		if err != nil {
			log.Printf("relay: %s: framing desync from %s: %v", svc.Name(), p.Addr(), err)
			return
		}
		if len(pkt) > 0 {
			svc.HandlePacket(p, pkt)
		}
	}
}
