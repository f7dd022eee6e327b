package main

import (
	"context"
	"crypto/tls"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/joho/godotenv/autoload"
	"golang.org/x/sync/errgroup"

	"github.com/Lelleck/wise/internal/config"
	"github.com/Lelleck/wise/internal/event"
	"github.com/Lelleck/wise/internal/export"
	"github.com/Lelleck/wise/internal/gamemaster"
	"github.com/Lelleck/wise/internal/poller"
	"github.com/Lelleck/wise/internal/pool"
	"github.com/Lelleck/wise/internal/rcon"
)

const defaultConfigPath = "wise-config.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "path to the configuration file")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configPath); err != nil {
		slog.Error("fatal", "err", err)
		os.Exit(1)
	}
	slog.Info("shutdown complete")
}

func run(ctx context.Context, configPath string) error {
	if p := os.Getenv("WISE_CONFIG"); p != "" {
		configPath = p
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	})))
	slog.Info("wise starting", "config", configPath)

	// Fail fast on unreachable server or bad credentials before anything
	// else spins up.
	probe, err := rcon.Connect(ctx, rcon.Credentials{
		Address:  cfg.Rcon.Address,
		Password: cfg.Rcon.Password,
	})
	if err != nil {
		return fmt.Errorf("test connection to game server failed: %w", err)
	}
	slog.Info("connection to game server tested", "address", cfg.Rcon.Address)

	store := config.NewStore(cfg)
	bus := event.New(event.DefaultCapacity)
	master := gamemaster.New(bus)
	sessions := pool.New(store)
	sessions.Return(probe)

	manager := poller.NewManager(store, sessions, master)
	if err := manager.Resume(ctx); err != nil {
		return fmt.Errorf("starting pollers: %w", err)
	}
	defer manager.StopAll()

	tlsConfig, err := buildTLSConfig(cfg.Exporting.Websocket)
	if err != nil {
		return fmt.Errorf("loading tls material: %w", err)
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return export.New(store, bus, sessions, tlsConfig).Run(groupCtx)
	})
	return group.Wait()
}

// buildTLSConfig loads the certificate pair when TLS is enabled, nil
// otherwise.
func buildTLSConfig(cfg config.WebsocketConfig) (*tls.Config, error) {
	if !cfg.Enabled || !cfg.TLS {
		return nil, nil
	}
	cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
	if err != nil {
		return nil, err
	}
	return &tls.Config{Certificates: []tls.Certificate{cert}}, nil
}
