package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Kwame-Minta2021/AgricMind-Ai/services/dashboard/advisor"
	"github.com/Kwame-Minta2021/AgricMind-Ai/services/dashboard/automation"
	"github.com/Kwame-Minta2021/AgricMind-Ai/services/dashboard/config"
	"github.com/Kwame-Minta2021/AgricMind-Ai/services/dashboard/db"
	"github.com/Kwame-Minta2021/AgricMind-Ai/services/dashboard/devicelink"
	"github.com/Kwame-Minta2021/AgricMind-Ai/services/dashboard/greenhouse"
	httpserver "github.com/Kwame-Minta2021/AgricMind-Ai/services/dashboard/http"
	"github.com/Kwame-Minta2021/AgricMind-Ai/services/dashboard/insights"
	"github.com/Kwame-Minta2021/AgricMind-Ai/services/dashboard/recorder"
	"github.com/Kwame-Minta2021/AgricMind-Ai/services/dashboard/rtdb"
)

// backend is the realtime store plus whatever must run to keep it live.
type backend struct {
	store   rtdb.Store
	history *db.Store
	run     func(ctx context.Context) error
}

func (b *backend) close() {
	if b.history != nil {
		b.history.Close()
	}
}

// openBackend builds the configured realtime store. The postgres store shares
// its pool with the history tables.
func openBackend(ctx context.Context, cfg config.Config) (*backend, error) {
	if cfg.StoreBackend == config.BackendMemory {
		logger.Warn("using the in-memory realtime store; state is not shared between processes")
		return &backend{
			store: rtdb.NewMemoryStore(),
			run:   func(ctx context.Context) error { <-ctx.Done(); return nil },
		}, nil
	}

	history, err := db.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("db connection error: %w", err)
	}
	if err := history.EnsureSchema(ctx); err != nil {
		history.Close()
		return nil, fmt.Errorf("history schema: %w", err)
	}

	pg := rtdb.NewPostgresStore(history.Pool(), logger)
	if err := pg.EnsureSchema(ctx); err != nil {
		history.Close()
		return nil, fmt.Errorf("realtime schema: %w", err)
	}
	return &backend{store: pg, history: history, run: pg.Run}, nil
}

func newModel(ctx context.Context, cfg config.Config) advisor.Model {
	model, err := advisor.NewGeminiModel(ctx, cfg.Gemini.APIKey, cfg.Gemini.Model, logger)
	if err != nil {
		if errors.Is(err, advisor.ErrNotConfigured) {
			logger.Warn("GEMINI_API_KEY not set; AI features will report errors")
		} else {
			logger.Error("gemini client unavailable", zap.Error(err))
		}
		return advisor.Unavailable{}
	}
	return model
}

func deviceLinkConfig(cfg config.Config) devicelink.Config {
	return devicelink.Config{
		BrokerURL:   cfg.MQTT.Broker,
		ClientID:    cfg.MQTT.ClientID,
		Username:    cfg.MQTT.Username,
		Password:    cfg.MQTT.Password,
		TopicPrefix: cfg.MQTT.TopicPrefix,
		QoS:         byte(cfg.MQTT.QoS),
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configDir)
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	be, err := openBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer be.close()

	monitor := greenhouse.NewMonitor(be.store, logger)
	monitor.Start()
	defer monitor.Stop()

	feed := insights.NewFeed(cfg.InsightCapacity)
	ctrl := greenhouse.NewController(be.store, logger, cfg.CommandDelay)
	svc := automation.New(monitor, ctrl, feed, advisor.New(newModel(ctx, cfg), logger), logger, cfg.Gemini.Timeout)

	var history httpserver.History
	if be.history != nil {
		history = be.history
	}
	srv := httpserver.New(cfg, logger, monitor, svc, history)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return be.run(ctx) })
	g.Go(func() error { return srv.Run(ctx) })

	if cfg.MQTTEnabled() {
		link := devicelink.New(deviceLinkConfig(cfg), be.store, logger)
		g.Go(func() error { return link.Run(ctx) })
	}
	if cfg.Recorder.Enabled && be.history != nil {
		rec := recorder.New(monitor, be.history, recorder.Config{
			MinInterval:   cfg.Recorder.MinInterval,
			Epsilon:       cfg.Recorder.Epsilon,
			FlushInterval: cfg.Recorder.FlushInterval,
		}, logger)
		g.Go(func() error { return rec.Run(ctx) })
	}

	logger.Info("agrimind dashboard starting",
		zap.String("addr", cfg.ListenAddr()),
		zap.String("store", cfg.StoreBackend),
		zap.Bool("mqtt", cfg.MQTTEnabled()),
		zap.Bool("recorder", cfg.Recorder.Enabled))
	return g.Wait()
}

func runBridge(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configDir)
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	if !cfg.MQTTEnabled() {
		return errors.New("MQTT_BROKER is required for the bridge")
	}
	if cfg.StoreBackend != config.BackendPostgres {
		return errors.New("the bridge needs the postgres store (set DATABASE_URL)")
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	be, err := openBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer be.close()

	link := devicelink.New(deviceLinkConfig(cfg), be.store, logger)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return be.run(ctx) })
	g.Go(func() error { return link.Run(ctx) })
	return g.Wait()
}

func runAdvise(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configDir)
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}

	ctx := cmd.Context()
	be, err := openBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer be.close()

	monitor := greenhouse.NewMonitor(be.store, logger)
	monitor.Start()
	defer monitor.Stop()

	feed := insights.NewFeed(cfg.InsightCapacity)
	ctrl := greenhouse.NewController(be.store, logger, cfg.CommandDelay)
	svc := automation.New(monitor, ctrl, feed, advisor.New(newModel(ctx, cfg), logger), logger, cfg.Gemini.Timeout)

	var result any
	switch args[0] {
	case "irrigation":
		result, err = svc.RunIrrigation(ctx)
	case "climate":
		result, err = svc.RunClimate(ctx)
	case "crop":
		if len(args) < 2 {
			return fmt.Errorf("crop name required, one of %v", advisor.Crops)
		}
		result, err = svc.RunCropAdvice(ctx, args[1])
	default:
		return fmt.Errorf("unknown flow %q", args[0])
	}
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(adviseOutput(result, feed.List()))
}

// adviseOutput bundles a flow result with the insights it produced.
func adviseOutput(result any, feed []insights.Insight) map[string]any {
	return map[string]any{"data": result, "insights": feed}
}
