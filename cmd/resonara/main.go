package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/resonara/server/internal/config"
	"github.com/resonara/server/internal/game"
	"github.com/resonara/server/internal/message"
	"github.com/resonara/server/internal/net"
	"github.com/resonara/server/internal/persist"
	"github.com/resonara/server/internal/scripting"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	cfgPath := flag.String("config", "config/server.toml", "path to the server config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	log, err := buildLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Fatal("server exited", zap.Error(err))
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := persist.NewDB(ctx, cfg.Database, log)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := persist.RunMigrations(ctx, db.Pool); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	engine, err := scripting.NewEngine(cfg.Game.ScriptsDir, log)
	if err != nil {
		return fmt.Errorf("scripting: %w", err)
	}
	defer engine.Close()

	messages := persist.NewMessageRepo(db)
	templates, err := game.NewTemplateCache(ctx, messages, log)
	if err != nil {
		return fmt.Errorf("templates: %w", err)
	}

	registry := game.NewRegistry()

	deps := game.NewDeps(&game.Deps{
		Players:    persist.NewPlayerRepo(db),
		Rooms:      persist.NewRoomRepo(db),
		NPCs:       persist.NewNPCRepo(db),
		Items:      persist.NewItemRepo(db),
		Currency:   persist.NewCurrencyRepo(db),
		Warehouses: persist.NewWarehouseRepo(db),
		Merchants:  persist.NewMerchantRepo(db),
		Paths:      persist.NewPathRepo(db),
		Messages:   messages,
		WebSess:    persist.NewSessionRepo(db),
		Tx:         db,

		Registry:  registry,
		Broadcast: game.NewBroadcaster(registry, log),
		Templates: templates,
		Formulas:  engine,
		Config:    cfg,
		Log:       log,
	})
	deps.Restart = stop // graceful shutdown; the supervisor brings us back

	dispatcher := game.NewDispatcher(deps)
	srv := net.NewServer(cfg.Server.Port, cfg.Game.OutQueueSize,
		func(sess *net.Session, frame []byte) {
			dispatcher.HandleFrame(context.Background(), sess, sess.ID, frame)
		},
		func(sess *net.Session) {
			dispatcher.HandleDisconnect(context.Background(), sess.ID)
		},
		log)

	cycles := game.NewCycleEngine(deps, cfg.Game.CycleTick)
	go cycles.Run(ctx)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	log.Info("server up",
		zap.String("name", cfg.Server.Name),
		zap.Int("port", cfg.Server.Port))

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	deps.Broadcast.ToAll(message.System("The world is going down for maintenance."))
	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutCtx)
}

func buildLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	var zc zap.Config
	if cfg.Format == "json" {
		zc = zap.NewProductionConfig()
	} else {
		zc = zap.NewDevelopmentConfig()
		zc.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}
