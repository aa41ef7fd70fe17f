package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/AaronLay10/ProjectBoard/internal/api"
	"github.com/AaronLay10/ProjectBoard/internal/board"
	"github.com/AaronLay10/ProjectBoard/internal/cards"
	"github.com/AaronLay10/ProjectBoard/internal/config"
	"github.com/AaronLay10/ProjectBoard/internal/events"
	"github.com/AaronLay10/ProjectBoard/internal/game"
	"github.com/AaronLay10/ProjectBoard/internal/mqtt"
	"github.com/AaronLay10/ProjectBoard/internal/storage"
	"github.com/AaronLay10/ProjectBoard/internal/storage/file"
	"github.com/AaronLay10/ProjectBoard/internal/storage/memory"
	"github.com/AaronLay10/ProjectBoard/internal/storage/postgres"
	"github.com/AaronLay10/ProjectBoard/internal/version"
)

const eventLogSize = 1000

func main() {
	configPath := flag.String("config", "game.yaml", "path to game.yaml")
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}

	os.Exit(exitCode(logger, run(*configPath, logger)))
}

// exitCode logs a failed run and flushes the logger. run has already
// released everything it opened by the time it returns.
func exitCode(logger *zap.Logger, err error) int {
	code := 0
	if err != nil {
		logger.Error("projectboard stopped", zap.Error(err))
		code = 1
	}
	_ = logger.Sync()
	return code
}

func run(configPath string, logger *zap.Logger) error {
	cfg, err := config.LoadGameConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load %s: %w", configPath, err)
	}
	creds, err := config.LoadCredentials()
	if err != nil {
		return err
	}

	hostname, _ := os.Hostname()
	sessionID := uuid.NewString()
	logger = logger.With(zap.String("game", cfg.Game.ID))

	bus := events.NewBus(logger, eventLogSize)
	defer bus.Close()
	bus.Emit("info", "system.startup", "projectboard starting", map[string]interface{}{
		"service":  "projectboard",
		"version":  version.Version,
		"hostname": hostname,
		"pid":      os.Getpid(),
	})

	backend, pg, err := openBackend(cfg, creds)
	if err != nil {
		return err
	}
	store := storage.New(backend, storage.Options{
		Prefix:        cfg.Storage.KeyPrefix,
		SchemaVersion: cfg.Storage.SchemaVersion,
		Debounce:      cfg.Storage.Debounce(),
		Logger:        logger,
	})
	defer store.Close()

	if pg != nil {
		bus.SetSink(pg, sessionID)
		restored, err := game.RestoreGameLog(pg, game.DefaultRestoreLimit)
		if err != nil {
			logger.Warn("game log restore failed", zap.Error(err))
		} else if restored != nil {
			bus.Restore(restored.Events)
			bus.Emit("info", "system.startup_restore", "", map[string]interface{}{
				"events":         len(restored.Events),
				"session_active": restored.SessionActive,
				"current":        restored.Current,
				"finished":       restored.Finished,
				"ended":          restored.Ended,
			})
		}
	}

	b := board.New(board.Options{
		SpacesPath:  cfg.Data.Spaces,
		DicePath:    cfg.Data.Dice,
		StartSpace:  cfg.Rules.StartSpace,
		FinishSpace: cfg.Rules.FinishSpace,
		PhaseColors: cfg.Rules.PhaseColors,
		Logger:      logger,
	})
	if res := b.Initialize(); !res.Success {
		return fmt.Errorf("board initialization failed: %s", strings.Join(res.Errors, "; "))
	}

	catalog, warnings, err := cards.LoadCatalog(cfg.Data.Cards)
	if err != nil {
		return fmt.Errorf("failed to load cards: %w", err)
	}
	for _, w := range warnings {
		logger.Warn("card data warning", zap.String("detail", w))
	}

	engine := game.New(game.Options{
		Board:   b,
		Store:   store,
		Catalog: catalog,
		Bus:     bus,
		Rules:   cfg.Rules,
		Logger:  logger,
	})

	server := api.New(api.Options{
		Addr:   cfg.APIAddr(),
		GameID: cfg.Game.ID,
		Game:   engine,
		Bus:    bus,
		Logger: logger,
	})
	ready := server.Readiness()
	ready.SetPostgresState(pg != nil, cfg.Storage.Backend != "postgres")

	if cfg.Sync.Enabled {
		clientID := cfg.Sync.ClientID
		if clientID == "" {
			clientID = "projectboard-" + sessionID[:8]
		}
		client := mqtt.NewClient(mqtt.Options{
			BrokerURL: cfg.Sync.BrokerURL,
			ClientID:  clientID,
			Username:  cfg.Sync.Username,
			Password:  creds.MQTTPassword,
		}, logger)
		sync := mqtt.NewRecordSync(client, store, bus, cfg.Sync.TopicPrefix, logger)
		connected := sync.Start()
		ready.SetMQTTState(connected, true)
		if connected {
			defer sync.Stop()
		}
	} else {
		ready.SetMQTTState(false, true)
	}

	switch err := engine.Resume(); {
	case err == nil:
	case errors.Is(err, game.ErrNoGame) && len(cfg.Game.Players) > 0:
		if err := engine.NewGame(cfg.Game.Players); err != nil {
			return fmt.Errorf("failed to start game: %w", err)
		}
	case errors.Is(err, game.ErrNoGame):
		logger.Info("no saved game and no roster; waiting for POST /game")
	default:
		return fmt.Errorf("failed to resume game: %w", err)
	}
	ready.SetGameReady(true)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	verifier := game.NewVerifier(engine, cfg.Rules.VerifyInterval())
	verifier.Start()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Run(ctx)
	})
	g.Go(func() error {
		<-ctx.Done()
		verifier.Stop()
		return nil
	})

	err = g.Wait()
	bus.Emit("info", "system.shutdown", "projectboard stopping", nil)
	return err
}

// openBackend returns the configured storage backend. The Postgres client is
// also returned so it can serve as the game log sink.
func openBackend(cfg *config.GameConfig, creds config.Credentials) (storage.Backend, *postgres.Client, error) {
	switch cfg.Storage.Backend {
	case "file":
		b, err := file.New(cfg.Storage.Dir)
		if err != nil {
			return nil, nil, err
		}
		return b, nil, nil
	case "postgres":
		pg, err := postgres.New(cfg.Game.ID, creds.PostgresPassword)
		if err != nil {
			return nil, nil, err
		}
		return pg, pg, nil
	default:
		return memory.New(0), nil, nil
	}
}
