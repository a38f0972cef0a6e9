// Command relayd launches the relay server: it loads configuration, wires
// up storage, the symbol cache, the five session-server services, the
// game-server registry, the matching engine, and the optional admin API,
// then runs the accept loop until interrupted.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/thesprockee/EchoRelay/internal/acl"
	"github.com/thesprockee/EchoRelay/internal/adminapi"
	"github.com/thesprockee/EchoRelay/internal/config"
	"github.com/thesprockee/EchoRelay/internal/logging"
	"github.com/thesprockee/EchoRelay/internal/matching"
	"github.com/thesprockee/EchoRelay/internal/model"
	"github.com/thesprockee/EchoRelay/internal/peer"
	"github.com/thesprockee/EchoRelay/internal/relay"
	"github.com/thesprockee/EchoRelay/internal/serverdb"
	"github.com/thesprockee/EchoRelay/internal/service"
	"github.com/thesprockee/EchoRelay/internal/services/configsvc"
	"github.com/thesprockee/EchoRelay/internal/services/login"
	"github.com/thesprockee/EchoRelay/internal/services/transaction"
	"github.com/thesprockee/EchoRelay/internal/session"
	"github.com/thesprockee/EchoRelay/internal/storage"
	"github.com/thesprockee/EchoRelay/internal/storage/fsstore"
	"github.com/thesprockee/EchoRelay/internal/storage/sqlstore"
	"github.com/thesprockee/EchoRelay/internal/symbol"
	"github.com/thesprockee/EchoRelay/internal/wire"
)

func main() {
	configPath := flag.String("config", "config/relayd.yml", "path to the YAML configuration file")
	backend := flag.String("storage", "", "storage backend override: filesystem or sql")
	verbose := flag.Bool("verbose", false, "log per-packet service activity (default off)")
	debug := flag.Bool("debug", false, "log per-packet service activity; same output as -verbose (default off)")
	noProbe := flag.Bool("no-validate", false, "skip the UDP reachability probe on game-server registration")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal(err)
	}
	if *backend != "" {
		cfg.StorageBackend = config.StorageBackend(*backend)
	}
	if *verbose {
		cfg.Verbose = true
	}
	if *debug {
		cfg.Debug = true
	}
	if *noProbe {
		cfg.ValidateEndpoint = false
	}

	w, err := logging.New(cfg.LogDir)
	if err != nil {
		log.Fatal(err)
	}
	log.SetOutput(w)

	if err := run(cfg); err != nil {
		log.Fatal(err)
	}
}

func run(cfg *config.Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	syms := symbol.New()
	symbol.Seed(syms)
	wire.SeedMessageTypes(syms)
	if cfg.SymbolManifestPath != "" {
		if err := syms.LoadManifest(cfg.SymbolManifestPath); err != nil {
			return err
		}
	}

	aclList, err := acl.Load(ctx, store)
	if err != nil {
		return err
	}

	sessions := session.NewCache()
	defer sessions.Close()

	loginSvc := login.New(store, aclList, sessions, syms, cfg.SessionTTL(), cfg.SessionDisconnectedTimeout())
	configSvc := configsvc.New(store, syms)
	transactionSvc := transaction.New(syms)

	registry := serverdb.NewRegistry()
	validator := serverdb.NewValidator()
	validator.Timeout = cfg.ValidateTimeout()
	serverDBSvc := serverdb.New(registry, validator, syms, cfg.ValidateEndpoint)

	registry.OnGameServerRegistrationFailure = func(p *peer.Peer, serverID uint64, reason string) {
		log.Printf("OnGameServerRegistrationFailure server_id=%d addr=%s reason=%s", serverID, p.Addr(), reason)
	}
	registry.OnGameServerRegistered = func(srv *model.RegisteredGameServer) {
		log.Printf("OnGameServerRegistered server_id=%d region=%d", srv.ServerID, srv.RegionSymbol)
	}
	registry.OnGameServerUnregistered = func(serverID uint64) {
		log.Printf("OnGameServerUnregistered server_id=%d", serverID)
	}

	if cfg.ValidateEndpoint && cfg.ValidateInterval() > 0 {
		go serverDBSvc.PingEvery(ctx, cfg.ValidateInterval())
	}

	engine := matching.NewEngine(registry, cfg.RankingPolicy, cfg.ForceIntoAnySession)
	matchingSvc := matching.New(engine, registry, syms)

	for _, b := range []*service.Base{
		loginSvc.Base, configSvc.Base, matchingSvc.Base, serverDBSvc.Base, transactionSvc.Base,
	} {
		instrumentService(b, cfg.Verbose || cfg.Debug)
	}

	server := relay.New(cfg.ListenAddress, cfg.ServerDBAPIKey,
		loginSvc, configSvc, matchingSvc, serverDBSvc, transactionSvc,
	)
	server.OnAuthorizationResult = func(res relay.AuthResult) {
		log.Printf("OnAuthorizationResult endpoint=%s authorized=%v", res.ClientEndpoint, res.Authorized)
	}
	server.OnServerStarted = func() { log.Printf("OnServerStarted addr=%s", cfg.ListenAddress) }
	server.OnServerStopped = func() { log.Print("OnServerStopped") }

	var adminSrv *http.Server
	if cfg.AdminAPIListen != "" {
		api := adminapi.New(cfg.AdminAPIKey, registry,
			loginSvc.Base, configSvc.Base, matchingSvc.Base, serverDBSvc.Base, transactionSvc.Base,
		)
		adminSrv = &http.Server{Addr: cfg.AdminAPIListen, Handler: api.Router()}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("caught %s, shutting down", sig)
		sessions.Clear()
		cancel()
	}()

	// The relay's accept loop and the optional admin API run side by side;
	// either one failing tears down the other, so a fatal error in one
	// subsystem never leaves the rest of the process running headless.
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return server.ListenAndServe(gctx, cfg.ShutdownGrace())
	})

	if adminSrv != nil {
		g.Go(func() error {
			errCh := make(chan error, 1)
			go func() { errCh <- adminSrv.ListenAndServe() }()

			select {
			case <-gctx.Done():
				shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace())
				defer cancel()
				return adminSrv.Shutdown(shutdownCtx)
			case err := <-errCh:
				if err == http.ErrServerClosed {
					return nil
				}
				return err
			}
		})
	}

	return g.Wait()
}

// instrumentService logs the per-service peer lifecycle events. Per-packet
// logging is high volume and stays off unless verbose or debug is set.
func instrumentService(b *service.Base, logPackets bool) {
	name := b.Name()
	b.OnPeerConnected.Subscribe(func(p *peer.Peer) {
		log.Printf("OnServicePeerConnected service=%s addr=%s", name, p.Addr())
	})
	b.OnPeerDisconnected.Subscribe(func(p *peer.Peer) {
		log.Printf("OnServicePeerDisconnected service=%s addr=%s", name, p.Addr())
	})
	b.OnPeerAuthenticated.Subscribe(func(p *peer.Peer) {
		id, _ := p.UserID()
		log.Printf("OnServicePeerAuthenticated service=%s addr=%s user=%s", name, p.Addr(), id)
	})

	if !logPackets {
		return
	}
	b.OnPacketReceived.Subscribe(func(e service.PacketEvent) {
		log.Printf("OnServicePacketReceived service=%s addr=%s messages=%d", name, e.Peer.Addr(), len(e.Packet))
	})
	b.OnPacketSent.Subscribe(func(e service.PacketEvent) {
		log.Printf("OnServicePacketSent service=%s addr=%s messages=%d", name, e.Peer.Addr(), len(e.Packet))
	})
}

func openStore(ctx context.Context, cfg *config.Config) (storage.Store, error) {
	var store storage.Store
	switch cfg.StorageBackend {
	case config.StorageSQL:
		sqlStore, err := sqlstore.New(cfg.StorageDSN)
		if err != nil {
			return nil, err
		}
		store = sqlStore
	default:
		store = fsstore.New(cfg.StorageRoot, cfg.DisableCache)
	}

	retried := storage.WithRetry(store)
	if err := retried.Open(ctx); err != nil {
		return nil, err
	}
	return retried, nil
}
