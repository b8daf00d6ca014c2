package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/hexline/hexline-server-go/internal/audit"
	"github.com/hexline/hexline-server-go/internal/config"
	"github.com/hexline/hexline-server-go/internal/game/action"
	"github.com/hexline/hexline-server-go/internal/game/action/tools"
	"github.com/hexline/hexline-server-go/internal/game/catalog"
	"github.com/hexline/hexline-server-go/internal/game/cooldown"
	"github.com/hexline/hexline-server-go/internal/game/cost"
	"github.com/hexline/hexline-server-go/internal/game/hex"
	"github.com/hexline/hexline-server-go/internal/game/modifier"
	"github.com/hexline/hexline-server-go/internal/game/occupancy"
	"github.com/hexline/hexline-server-go/internal/game/replay"
	"github.com/hexline/hexline-server-go/internal/game/rules"
	"github.com/hexline/hexline-server-go/internal/game/turn"
	"github.com/hexline/hexline-server-go/internal/game/unit"
	"github.com/hexline/hexline-server-go/internal/game/watchers"
	"github.com/hexline/hexline-server-go/internal/server"
)

var (
	configPath = flag.String("config", "config/config.yaml", "path to configuration file")
	version    = "dev" // set via ldflags during build
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := initLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("starting hexline server",
		zap.String("version", version),
		zap.String("config", *configPath),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("server stopped with error", zap.Error(err))
	}
	logger.Info("hexline server stopped")
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	sink, err := audit.Open(ctx, cfg.Audit.Driver, cfg.Audit.DSN)
	if err != nil {
		return fmt.Errorf("open audit sink: %w", err)
	}
	defer sink.Close()
	logger.Info("audit sink initialized", zap.String("driver", cfg.Audit.Driver))

	bus := rules.NewEventBus()
	grid := hex.NewGrid(cfg.Board.Radius, cfg.Board.HexSize)
	board := occupancy.NewService(
		occupancy.NewStore(grid, logger),
		logger,
		occupancy.WithAuditSink(sink),
		occupancy.WithEventBus(bus),
	)
	logger.Info("board initialized",
		zap.String("board_id", board.BoardID()),
		zap.Int("radius", cfg.Board.Radius),
	)

	cooldowns := cooldown.NewStore(cfg.Rules.SecondsPerTurn, logger)
	pipeline := modifier.NewPipeline(logger)
	roster := unit.NewRoster()
	loadout := tools.NewLoadout()

	ctrl, err := action.NewController(action.Env{
		Occupancy: board,
		Cooldowns: cooldowns,
		Evaluator: cost.NewEvaluator(pipeline, logger),
		Bus:       bus,
		Units:     roster,
	}, logger,
		action.WithChainRules(action.DefaultChainRules{MaxDepth: cfg.Rules.MaxChainDepth}),
		action.WithChainSource(loadout),
	)
	if err != nil {
		return fmt.Errorf("create action controller: %w", err)
	}

	var recorder *replay.Recorder
	if cfg.Replay.Enabled {
		recorder = replay.NewRecorder(board, cfg.Replay.Dir, logger)
		recorder.Attach(bus)
		defer func() {
			recorder.Detach()
			if _, err := recorder.Save(); err != nil {
				logger.Error("failed to save replay", zap.Error(err))
			}
		}()
	}

	if err := spawnCatalog(cfg, board, roster, loadout, logger); err != nil {
		return err
	}

	seq := turn.NewSequencer(roster, ctrl, logger)
	ctrl.SetGate(seq)

	stats := watchers.Default()
	stats.Attach(bus)
	defer stats.Detach()

	hub := server.NewHub(logger, cfg.Server.AllowedOrigins)
	hub.Attach(bus)
	defer hub.Detach()
	hub.AcceptIntents(&server.Intents{
		Controller: ctrl,
		Units:      roster,
		Tools:      loadout,
		Turns:      seq,
		Logger:     logger,
	})

	srv := server.New(cfg.Server, hub, &server.Debug{
		Board:     board,
		Cooldowns: cooldowns,
		Turns:     seq,
		Actors:    roster,
		Stats:     stats,
		Logger:    logger,
	}, logger)

	if len(roster.IDs()) > 0 {
		if err := seq.Start(ctx); err != nil {
			return fmt.Errorf("start turn sequence: %w", err)
		}
		logger.Info("turn sequence started", zap.String("active_actor", seq.ActiveActor()))
	}

	logger.Info("hexline server initialized",
		zap.String("version", version),
		zap.String("http_address", cfg.Server.HTTPAddress),
		zap.String("grpc_address", cfg.Server.GRPCAddress),
		zap.Int("units", len(roster.IDs())),
	)
	return srv.Run(ctx)
}

// spawnCatalog builds the catalog units and places the ones with a
// position on the board.
func spawnCatalog(cfg *config.Config, board *occupancy.Service, roster *unit.Roster, loadout *tools.Loadout, logger *zap.Logger) error {
	if cfg.Catalog.Path == "" {
		return nil
	}
	cat, err := catalog.Load(cfg.Catalog.Path)
	if err != nil {
		return err
	}
	cat.DefaultEscalationPercent = cfg.Rules.RepeatEscalationPercent
	spawns, err := cat.Build(loadout, cfg.Rules.DefaultTurnSeconds, logger)
	if err != nil {
		return fmt.Errorf("build catalog units: %w", err)
	}
	for _, s := range spawns {
		roster.Add(s.Unit)
		if s.Position == nil {
			continue
		}
		if _, reason := board.TryPlace(s.Unit, *s.Position, s.Facing); !reason.OK() {
			return fmt.Errorf("place %s at %s: %s", s.Unit.ID, *s.Position, reason)
		}
	}
	logger.Info("catalog loaded",
		zap.String("path", cfg.Catalog.Path),
		zap.Int("abilities", len(cat.Abilities)),
		zap.Int("units", len(spawns)),
	)
	return nil
}

// initLogger builds a JSON production logger or a colored development
// logger. Unknown levels fall back to info.
func initLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	zapCfg := zap.NewDevelopmentConfig()
	zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)
	return zapCfg.Build()
}
