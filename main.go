// Command lobbygame runs one of the networked multiplayer core's roles
// from a single binary: lobby directory server, game host, or game client.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"time"

	"lobbygame/internal/cli"
	"lobbygame/internal/gameclient"
	"lobbygame/internal/gamehost"
	"lobbygame/internal/lobbyclient"
	"lobbygame/internal/lobbyserver"
	"lobbygame/internal/metrics"
	"lobbygame/internal/migrate"
	"lobbygame/internal/opstatus"
	"lobbygame/internal/router"
	"lobbygame/internal/transport"
	"lobbygame/internal/wire"
)

const (
	exitOK = iota
	exitRuntimeInit
	exitLobbyServerStart
	_ // reserved
	exitGameHostStart
	exitLobbyAnnounceFailure
	exitClientMissingLobby
	exitLobbyConnectFailure
)

const defaultMaxPlayers = 3

func main() {
	if len(os.Args) > 1 && cli.Run(os.Args[1:]) {
		return
	}

	lobbyServerPort := flag.Int("lobby-server", 0, "run as LobbyServer on this UDP port and exit only on error")
	hostPort := flag.Int("host", 0, "run as GameHost on this UDP port")
	clientMode := flag.Bool("client", false, "run as client (requires -lobby)")
	browseOnly := flag.Bool("browse", false, "client: list-only, no auto-join")
	lobbyAddr := flag.String("lobby", "", "LobbyServer address for host-announce or client-browse")
	name := flag.String("name", "lobbygame session", "display name stored in Announce.name (<=31 chars)")
	statusAddr := flag.String("status-addr", "", "operator status HTTP listen address (empty to disable)")
	flag.Parse()

	switch {
	case *lobbyServerPort != 0:
		os.Exit(runLobbyServer(*lobbyServerPort, *statusAddr))
	case *hostPort != 0:
		os.Exit(runGameHost(*hostPort, *lobbyAddr, *name))
	case *clientMode:
		os.Exit(runClient(*lobbyAddr, *browseOnly))
	default:
		flag.Usage()
		os.Exit(exitRuntimeInit)
	}
}

func withShutdown() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	go func() {
		<-sigCh
		log.Println("[main] shutting down...")
		cancel()
	}()
	return ctx, cancel
}

func runLobbyServer(port int, statusAddr string) int {
	ctx, cancel := withShutdown()
	defer cancel()

	rt := transport.NewRuntime()
	rtr := router.New()
	srv := lobbyserver.New(rt, rtr)

	tlsConf, fingerprint, err := transport.GenerateSelfSignedTLSConfig("")
	if err != nil {
		log.Printf("[lobby] tls: %v", err)
		return exitLobbyServerStart
	}
	log.Printf("[lobby] TLS certificate fingerprint: %s", fingerprint)

	if err := srv.Listen(port, tlsConf); err != nil {
		log.Printf("[lobby] %v", err)
		return exitLobbyServerStart
	}
	defer srv.Close()

	if statusAddr != "" {
		opSrv := opstatus.New(srv)
		httpSrv := &http.Server{Addr: statusAddr, Handler: opSrv.Echo()}
		go func() {
			if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("[opstatus] %v", err)
			}
		}()
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			httpSrv.Shutdown(shutdownCtx)
		}()
		log.Printf("[opstatus] listening on %s", statusAddr)
	}

	go metrics.RunLobbyMetrics(ctx, 5*time.Second, func() metrics.LobbyStats {
		return metrics.LobbyStats{SessionCount: srv.SessionCount()}
	})

	runLoop(ctx, rt, rtr, func(dt float32) { srv.Tick() })
	return exitOK
}

func runGameHost(port int, lobbyAddr, name string) int {
	ctx, cancel := withShutdown()
	defer cancel()

	rt := transport.NewRuntime()
	rtr := router.New()

	worldSeed := uint32(time.Now().UnixNano())
	host := gamehost.New(rt, rtr, defaultMaxPlayers, worldSeed)

	tlsConf, fingerprint, err := transport.GenerateSelfSignedTLSConfig("")
	if err != nil {
		log.Printf("[host] tls: %v", err)
		return exitGameHostStart
	}
	log.Printf("[host] TLS certificate fingerprint: %s", fingerprint)

	if err := host.Listen(port, tlsConf); err != nil {
		log.Printf("[host] %v", err)
		return exitGameHostStart
	}
	defer host.Close()

	var lc *lobbyclient.Client
	if lobbyAddr != "" {
		lc = lobbyclient.New(rt, rtr)
		lc.SetAnnounceInfo(uint16(host.Port()), defaultMaxPlayers, worldSeed, name)
		if err := lc.Connect(ctx, lobbyAddr, wire.RoleAnnouncer); err != nil {
			log.Printf("[host] lobby announce: %v", err)
			return exitLobbyAnnounceFailure
		}
		defer lc.Close()
	}

	go metrics.RunHostMetrics(ctx, 5*time.Second, func() metrics.HostStats {
		return metrics.HostStats{ClientCount: host.ClientCount(), BytesBroadcast: host.BytesBroadcast()}
	})

	heartbeatAccum := float32(0)
	runLoop(ctx, rt, rtr, func(dt float32) {
		host.Tick(dt)
		if lc == nil {
			return
		}
		lc.Tick()
		heartbeatAccum += dt
		if heartbeatAccum >= 1.0 {
			heartbeatAccum = 0
			if err := lc.SendHeartbeat(uint16(host.ClientCount() + 1)); err != nil {
				log.Printf("[host] heartbeat: %v", err)
			}
		}
	})
	return exitOK
}

// clientSession tracks enough of the joined game to drive migration
// (§4.6 step 2) once the GameClient reports host loss: the GameClient's
// own snapshot cache is a destructive one-shot read, so the last-known
// values are mirrored here every tick while connected.
type clientSession struct {
	sessionKey uint64
	name       string
	maxPlayers uint8
	lastSnap   wire.Snap
	worldSeed  uint32
}

func runClient(lobbyAddr string, browseOnly bool) int {
	if lobbyAddr == "" {
		log.Println("[client] -lobby is required")
		return exitClientMissingLobby
	}
	ctx, cancel := withShutdown()
	defer cancel()

	rt := transport.NewRuntime()
	rtr := router.New()
	lc := lobbyclient.New(rt, rtr)
	if err := lc.Connect(ctx, lobbyAddr, wire.RoleBrowser); err != nil {
		log.Printf("[client] %v", err)
		return exitLobbyConnectFailure
	}

	if browseOnly {
		log.Println("[client] browsing (no auto-join)")
	}

	var gc *gameclient.Client
	var sess clientSession
	var coord *migrate.Coordinator

	// Set once a migration attempt wins the host race: from then on this
	// process runs as a GameHost for the rest of its life instead of a
	// GameClient, per §4.6 step 4.
	var migHost *gamehost.Host
	var migLC *lobbyclient.Client
	migHeartbeatAccum := float32(0)

	listAccum := float32(0)
	runLoop(ctx, rt, rtr, func(dt float32) {
		if migHost != nil {
			migHost.Tick(dt)
			if migLC != nil {
				migLC.Tick()
				migHeartbeatAccum += dt
				if migHeartbeatAccum >= 1.0 {
					migHeartbeatAccum = 0
					if err := migLC.SendHeartbeat(uint16(migHost.ClientCount() + 1)); err != nil {
						log.Printf("[client] post-migration heartbeat: %v", err)
					}
				}
			}
			return
		}

		lc.Tick()
		listAccum += dt
		if listAccum >= 0.5 {
			listAccum = 0
			if err := lc.SendListReq(); err != nil {
				log.Printf("[client] list req: %v", err)
			}
		}

		entries, hasEntries := lc.PopLatestList()
		if hasEntries {
			log.Printf("[client] %d session(s) listed", len(entries))
		}
		if gc == nil && coord == nil && !browseOnly && hasEntries && len(entries) > 0 {
			e := entries[0]
			addr := fmt.Sprintf("%s:%d", ipv4String(e.IPv4HostOrder), e.GamePort)
			gc = gameclient.New(rt, rtr)
			if err := gc.Connect(ctx, addr); err != nil {
				log.Printf("[client] join %s: %v", addr, err)
				gc = nil
				return
			}
			sess = clientSession{sessionKey: e.SessionKey, name: e.Name, maxPlayers: e.MaxPlayers}
			lc.Close()
			log.Printf("[client] joined session %d at %s", e.SessionKey, addr)
		}

		if gc != nil {
			gc.Tick()
			if snap, ok := gc.PopLatestSnap(); ok {
				sess.lastSnap = snap
			}
			if gc.WorldSeed() != 0 {
				sess.worldSeed = gc.WorldSeed()
			}
			if gc.PopHostDisconnected() {
				log.Printf("[client] host lost for session %d, starting migration", sess.sessionKey)
				preserved := migrate.Preserved{
					Players:    sess.lastSnap.Players,
					ServerTick: sess.lastSnap.ServerTick,
					WorldSeed:  sess.worldSeed,
					Name:       sess.name,
					SessionKey: sess.sessionKey,
					MaxPlayers: sess.maxPlayers,
				}
				coord = migrate.New(rt, rtr, lobbyAddr, preserved)
				gc = nil
			}
		}

		if coord != nil {
			coord.Tick(ctx, dt)
			switch coord.Phase() {
			case migrate.PhaseSucceeded:
				if coord.Host != nil {
					migHost = coord.Host
					migLC = coord.LobbyClient()
					log.Println("[client] migration succeeded: now hosting")
				} else if coord.FoundAddr != "" {
					gc = gameclient.New(rt, rtr)
					if err := gc.Connect(ctx, coord.FoundAddr); err != nil {
						log.Printf("[client] reconnect after migration: %v", err)
					}
					log.Println("[client] migration succeeded: reconnected to new host")
				}
				coord = nil
			case migrate.PhaseFailed:
				log.Println("[client] migration failed, returning to browse mode")
				lc = lobbyclient.New(rt, rtr)
				if err := lc.Connect(ctx, lobbyAddr, wire.RoleBrowser); err != nil {
					log.Printf("[client] browse reconnect: %v", err)
				}
				coord = nil
			}
		}
	})
	return exitOK
}

func ipv4String(hostOrder uint32) string {
	return fmt.Sprintf("%d.%d.%d.%d", byte(hostOrder>>24), byte(hostOrder>>16), byte(hostOrder>>8), byte(hostOrder))
}

// runLoop drives the shared cooperative tick model (§5): pump transport
// callbacks, dispatch to the router, then run the caller's per-component
// work. This is the single place PumpEvents/Dispatch is called, shared
// across however many components a role activates.
func runLoop(ctx context.Context, rt *transport.Runtime, rtr *router.Router, step func(dt float32)) {
	const tickRate = 10 * time.Millisecond
	ticker := time.NewTicker(tickRate)
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			dt := float32(now.Sub(last).Seconds())
			last = now
			rtr.Dispatch(rt.PumpEvents())
			step(dt)
		}
	}
}
