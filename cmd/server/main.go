package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/Brownie44l1/asl-api/internal/classifier"
	"github.com/Brownie44l1/asl-api/internal/config"
	"github.com/Brownie44l1/asl-api/internal/handlers"
	"github.com/Brownie44l1/asl-api/internal/labels"
	"github.com/Brownie44l1/asl-api/internal/middleware"
	"github.com/Brownie44l1/asl-api/internal/model"
	"github.com/Brownie44l1/asl-api/pkg/log"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := log.NewLogger(log.Options{
		Level: cfg.LogLevel,
		Dir:   cfg.LogDir,
		Env:   cfg.AppEnv,
	})

	logger.WithFields(log.Fields{
		"model":     cfg.ModelPath,
		"label_map": cfg.LabelMapPath,
		"pool_size": cfg.PoolSize,
	}).Info("Loading model")

	table, engine, err := load(cfg)
	if err != nil {
		logger.Fatalf("Failed to initialize model server: %v", err)
	}
	defer engine.Close()

	pipeline, err := newPipeline(engine, table)
	if err != nil {
		logger.Fatalf("Model and label table are inconsistent: %v", err)
	}

	meta := engine.Metadata()
	logger.WithFields(log.Fields{
		"input":   meta.InputName,
		"output":  meta.OutputName,
		"classes": table.Labels(),
	}).Info("Model loaded")

	app := config.NewFiber(logger)
	mw := middleware.New(logger, middleware.Options{
		RequestsPerSecond: cfg.RateLimitRPS,
		Burst:             cfg.RateLimitBurst,
	})

	app.Use(recover.New())
	app.Use(mw.NewRequestIDMiddleware())
	app.Use(mw.NewLoggingMiddleware())
	app.Use(cors.New(cors.Config{
		AllowOrigins: cfg.CORSAllowOrigins,
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Content-Type," + middleware.RequestIDKey,
	}))

	handler := handlers.NewHandler(logger, config.NewValidator(), mw, pipeline, handlers.ModelInfo{
		Model:  meta,
		Labels: table.Labels(),
	}, cfg.RequestTimeout)
	handler.Start(app)

	if err := serve(app, logger, cfg.Port); err != nil {
		logger.Errorf("Server failed: %v", err)
		engine.Close()
		os.Exit(1)
	}
}

// load reads the label table and the model in parallel. Either failing is
// fatal to the caller.
func load(cfg *config.Config) (*labels.Table, *model.Engine, error) {
	var (
		table  *labels.Table
		engine *model.Engine
	)

	g := new(errgroup.Group)
	g.Go(func() error {
		t, err := labels.Load(cfg.LabelMapPath)
		if err != nil {
			return fmt.Errorf("label table %s: %w", cfg.LabelMapPath, err)
		}
		table = t
		return nil
	})
	g.Go(func() error {
		e, err := model.NewEngine(model.EngineConfig{
			ModelPath:         cfg.ModelPath,
			SharedLibraryPath: cfg.SharedLibraryPath,
			InputName:         cfg.ModelInputName,
			OutputName:        cfg.ModelOutputName,
			PoolSize:          cfg.PoolSize,
			IntraOpThreads:    cfg.IntraOpThreads,
		})
		if err != nil {
			return fmt.Errorf("model %s: %w", cfg.ModelPath, err)
		}
		engine = e
		return nil
	})

	if err := g.Wait(); err != nil {
		if engine != nil {
			engine.Close()
		}
		return nil, nil, err
	}
	return table, engine, nil
}

type closableEngine interface {
	classifier.Engine
	Close()
}

// newPipeline pairs engine with table. engine is closed when they disagree.
func newPipeline(engine closableEngine, table classifier.LabelTable) (*classifier.Pipeline, error) {
	pipeline, err := classifier.New(engine, table)
	if err != nil {
		engine.Close()
		return nil, err
	}
	return pipeline, nil
}

// serve runs the app until it fails or SIGINT/SIGTERM arrives.
func serve(app *fiber.App, logger *logrus.Logger, port string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Infof("Server starting on port %s", port)
		logger.Info("Endpoints:")
		logger.Info("  GET  /health     - Health check")
		logger.Info("  GET  /labels     - Known classes")
		logger.Info("  POST /predict    - Keypoint prediction")
		logger.Info("  GET  /predict/ws - Streaming prediction (WebSocket)")
		return app.Listen(":" + port)
	})

	g.Go(func() error {
		<-ctx.Done()
		logger.Info("Shutting down server...")
		return app.ShutdownWithTimeout(shutdownTimeout)
	})

	return g.Wait()
}
