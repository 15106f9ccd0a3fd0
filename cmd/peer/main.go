package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/zeusync/courtsync/internal/config"
	"github.com/zeusync/courtsync/internal/core/observability/log"
	"github.com/zeusync/courtsync/internal/core/protocol/quic"
	"github.com/zeusync/courtsync/internal/core/protocol/transport"
	"github.com/zeusync/courtsync/internal/core/protocol/websocket"
	"github.com/zeusync/courtsync/internal/discovery"
	"github.com/zeusync/courtsync/internal/game/score"
	"github.com/zeusync/courtsync/internal/injector"
	"github.com/zeusync/courtsync/internal/prefs"
	"github.com/zeusync/courtsync/internal/session"
)

func main() {
	configPath := flag.String("config", "", "YAML config file (defaults when empty)")
	role := flag.String("role", "host", "host or client")
	connect := flag.String("connect", "", "host address; overrides network.host and discovery")
	spectator := flag.Bool("spectator", false, "join as a spectator")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, injector.ConfigPath(*configPath), *role == "host", *connect, *spectator); err != nil {
		fmt.Fprintln(os.Stderr, "peer:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, path injector.ConfigPath, host bool, connect string, spectator bool) error {
	cfg, err := injector.ProvideConfig(path)
	if err != nil {
		return err
	}
	logger := injector.ProvideLogger(cfg)

	store := injector.ProvidePrefs(cfg, logger)
	if spectator {
		if err = store.SetRunMode(prefs.ModeSpectator); err != nil {
			logger.Warn("Could not store run mode", log.Error(err))
		}
	}
	if prefs.IsSpectator(store) {
		// spectators always join an existing game
		host = false
	}
	color := injector.AssignColor(store, host)
	logger.Info("Starting peer",
		log.Bool("host", host),
		log.String("color", color.String()),
		log.String("transport", cfg.Network.Transport))

	g, gctx := errgroup.WithContext(ctx)

	var tr transport.Transport
	if host {
		tr, err = startHost(gctx, g, cfg, logger)
	} else {
		tr, err = joinHost(gctx, cfg, connect, logger)
	}
	if err != nil {
		return err
	}

	s, err := injector.InitializeSession(tr, path, color)
	if err != nil {
		_ = tr.Close()
		return err
	}
	defer s.Close()

	score.Attach(s.Events(), score.NewAnnouncer(score.LogPlayer{Logger: logger}, color, prefs.IsSpectator(store)))
	if _, err = s.SpawnBall(session.DefaultBallID, cfg.Game.DefaultSpawn, nil); err != nil {
		return err
	}

	g.Go(func() error { return s.Run(gctx) })
	return g.Wait()
}

func startHost(ctx context.Context, g *errgroup.Group, cfg config.Config, logger log.Log) (transport.Transport, error) {
	if cfg.Network.Transport == config.TransportLocal {
		return transport.NewHub(0).Host(), nil
	}

	host := transport.NewHost(cfg.TransportOptions(), logger)
	switch cfg.Network.Transport {
	case config.TransportQUIC:
		tlsConfig, err := quic.GenerateSelfSignedTLS()
		if err != nil {
			return nil, err
		}
		srv := quic.NewServer(host, tlsConfig, logger)
		g.Go(func() error { return srv.ListenAndServe(ctx, cfg.Network.Listen) })
	default:
		srv := websocket.NewServer(host, logger)
		g.Go(func() error { return srv.ListenAndServe(ctx, cfg.Network.Listen) })
	}

	if cfg.Discovery.Enabled {
		b, err := discovery.NewBroadcaster(discoveryOptions(cfg), logger)
		if err != nil {
			logger.Warn("LAN discovery disabled", log.Error(err))
			return host, nil
		}
		g.Go(func() error {
			defer b.Close()
			return b.Run(ctx)
		})
	}
	return host, nil
}

func joinHost(ctx context.Context, cfg config.Config, addr string, logger log.Log) (transport.Transport, error) {
	if addr == "" {
		addr = cfg.Network.Host
	}
	if addr == "" {
		found, err := discover(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		addr = found
	}

	_, port, err := net.SplitHostPort(cfg.Network.Listen)
	if err != nil {
		return nil, fmt.Errorf("network.listen: %w", err)
	}
	if h, p, splitErr := net.SplitHostPort(addr); splitErr == nil {
		addr, port = h, p
	}
	target := net.JoinHostPort(addr, port)

	switch cfg.Network.Transport {
	case config.TransportQUIC:
		return quic.Dial(ctx, target, cfg.TransportOptions(), logger)
	case config.TransportWebSocket:
		return websocket.Dial(ctx, "ws://"+target+websocket.Path, cfg.TransportOptions(), logger)
	default:
		return nil, fmt.Errorf("transport %q cannot join a remote host", cfg.Network.Transport)
	}
}

func discover(ctx context.Context, cfg config.Config, logger log.Log) (string, error) {
	if !cfg.Discovery.Enabled {
		return "", fmt.Errorf("no host address and LAN discovery is disabled")
	}
	l, err := discovery.Listen(discoveryOptions(cfg), logger)
	if err != nil {
		return "", err
	}
	defer l.StopListening()
	go func() { _ = l.Run(ctx) }()

	waitCtx, cancel := context.WithTimeout(ctx, cfg.Discovery.Timeout)
	defer cancel()
	logger.Info("Looking for a host on the LAN", log.Int("port", cfg.Discovery.Port))
	return l.Wait(waitCtx)
}

func discoveryOptions(cfg config.Config) discovery.Options {
	return discovery.Options{
		Port:     cfg.Discovery.Port,
		Payload:  cfg.Discovery.Payload,
		Interval: cfg.Discovery.Interval,
	}
}
