package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hearthfire/cookforge/internal/observability"
	"github.com/hearthfire/cookforge/internal/profile"
	"github.com/hearthfire/cookforge/plugin/ai"
	"github.com/hearthfire/cookforge/server"
	"github.com/hearthfire/cookforge/server/service/order"
	"github.com/hearthfire/cookforge/server/service/recipe"
	"github.com/hearthfire/cookforge/session"
	"github.com/hearthfire/cookforge/store"
	"github.com/hearthfire/cookforge/store/db"
)

const shutdownTimeout = 15 * time.Second

var rootCmd = &cobra.Command{
	Use:   "cookforge",
	Short: "An AI cookbook generation service",
	RunE: func(_ *cobra.Command, _ []string) error {
		instanceProfile := &profile.Profile{
			Mode:        viper.GetString("mode"),
			Addr:        viper.GetString("addr"),
			Port:        viper.GetInt("port"),
			Data:        viper.GetString("data"),
			Driver:      viper.GetString("driver"),
			DSN:         viper.GetString("dsn"),
			InstanceURL: viper.GetString("instance-url"),
			Version:     version,
		}
		instanceProfile.FromEnv()
		if err := instanceProfile.Validate(); err != nil {
			return err
		}
		return run(instanceProfile)
	},
}

var version = "0.1.0"

func init() {
	viper.SetDefault("mode", "demo")
	viper.SetDefault("addr", "")
	viper.SetDefault("port", 8081)
	viper.SetDefault("driver", "sqlite")

	rootCmd.PersistentFlags().String("mode", "demo", `mode of server, can be "prod" or "dev" or "demo"`)
	rootCmd.PersistentFlags().String("addr", "", "address of server")
	rootCmd.PersistentFlags().Int("port", 8081, "port of server")
	rootCmd.PersistentFlags().String("data", "", "data directory")
	rootCmd.PersistentFlags().String("driver", "sqlite", "database driver")
	rootCmd.PersistentFlags().String("dsn", "", "database source name (aka. DSN)")
	rootCmd.PersistentFlags().String("instance-url", "", "the url of your cookforge instance")

	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		panic(err)
	}
	viper.SetEnvPrefix("cookforge")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
}

func run(instanceProfile *profile.Profile) error {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(instanceProfile),
	}))
	slog.SetDefault(logger)
	metrics := observability.NewMetrics()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	driver, err := db.NewDBDriver(instanceProfile)
	if err != nil {
		return fmt.Errorf("create db driver: %w", err)
	}
	st := store.New(driver, instanceProfile)
	defer st.Close()
	if err := st.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	manager := session.NewManager(session.ManagerConfig{
		Orders:     st,
		Customers:  st,
		Sink:       session.NewStoreSink(st),
		Logger:     logger,
		Metrics:    metrics,
		DefaultTTL: instanceProfile.SessionTTL,
	})
	factory := session.NewFactory()

	sweeper := session.NewSweeper(manager, session.SweeperConfig{
		Interval: instanceProfile.SweepInterval,
	}, logger)
	if err := sweeper.Start(ctx); err != nil {
		return fmt.Errorf("start sweeper: %w", err)
	}
	defer sweeper.Stop()

	if !instanceProfile.IsAIEnabled() {
		logger.Warn("no AI API key configured, chat and synthesis will fail")
	}
	provider, err := ai.NewProvider(&ai.Config{
		BaseURL:   instanceProfile.AIBaseURL,
		APIKey:    instanceProfile.AIAPIKey,
		ChatModel: instanceProfile.AIChatModel,
	})
	if err != nil {
		return fmt.Errorf("create ai provider: %w", err)
	}

	ranker := recipe.NewRanker(recipe.RankerConfig{
		Chatter:     provider,
		Manager:     manager,
		Factory:     factory,
		Parallelism: instanceProfile.FanoutParallelism,
		Logger:      logger,
		Metrics:     metrics,
	})
	synthesizer := recipe.NewSynthesizer(recipe.SynthesizerConfig{
		Chatter:     provider,
		Manager:     manager,
		Factory:     factory,
		Parallelism: instanceProfile.FanoutParallelism,
		Logger:      logger,
		Metrics:     metrics,
	})
	processor := order.NewProcessor(order.ProcessorConfig{
		Manager:     manager,
		Orders:      st,
		Customers:   st,
		Synthesizer: synthesizer,
		Logger:      logger,
		Metrics:     metrics,
	})

	srv := server.New(server.Config{
		Profile:   instanceProfile,
		Store:     st,
		Manager:   manager,
		Factory:   factory,
		Chatter:   provider,
		Ranker:    ranker,
		Processor: processor,
		Logger:    logger,
		Metrics:   metrics,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		logger.Info("shutting down", slog.String("signal", sig.String()))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", slog.String("error", err.Error()))
	}
	sweeper.Stop()

	// Persist whatever is still alive before the process exits.
	for _, sess := range manager.Snapshot() {
		if err := manager.EndSession(shutdownCtx, sess); err != nil {
			logger.Error("end session on shutdown failed",
				slog.String(observability.LogFieldSessionID, sess.ID),
				slog.String("error", err.Error()))
		}
	}
	return nil
}

func logLevel(p *profile.Profile) slog.Level {
	if p.IsDev() {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
