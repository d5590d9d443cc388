package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/0xADE/ade-progd/internal/config"
	"github.com/0xADE/ade-progd/internal/host"
	"github.com/0xADE/ade-progd/internal/launcher"
	"github.com/0xADE/ade-progd/internal/logging"
	"github.com/0xADE/ade-progd/internal/programs"
	"github.com/0xADE/ade-progd/internal/scanner"
	"github.com/0xADE/ade-progd/server"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		logLevel string
		rcPath   string
		noWatch  bool
	)

	cmd := &cobra.Command{
		Use:   "ade-progd",
		Short: "Program catalog daemon",
		Long: `ade-progd indexes the executables on PATH and the installed desktop
applications, and answers fuzzy queries over a Unix socket.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), logLevel, rcPath, !noWatch)
		},
	}

	cmd.Flags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error (overrides ADE_PROGD_LOG_LEVEL)")
	cmd.Flags().StringVar(&rcPath, "rc", "", "Path of the rc file listing extra executable directories")
	cmd.Flags().BoolVar(&noWatch, "no-watch", false, "Do not watch directories for changes")
	return cmd
}

func run(ctx context.Context, logLevel, rcPath string, watch bool) error {
	var (
		cfg *config.Config
		err error
	)
	if rcPath != "" {
		cfg, err = config.LoadFrom(rcPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize config: %v\n", err)
		return err
	}

	if logLevel == "" {
		logLevel = cfg.LogLevel()
	}
	level, err := logging.ParseLevel(logLevel)
	logger := logging.New(level, "progd")
	if err != nil {
		logger.Warn("using info level", "err", err)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	src, err := scanner.New(cfg, logger.WithPrefix("scanner"))
	if err != nil {
		return err
	}
	console, err := host.NewConsole(logger.WithPrefix("host"))
	if err != nil {
		return err
	}

	plugin := programs.New(programs.Options{
		DataDir:            cfg.DataDir(),
		SettingsPath:       cfg.SettingsPath(),
		Workers:            cfg.Workers(),
		ListLimit:          cfg.ListLimit(),
		NormalizeCacheSize: cfg.NormalizeCacheSize(),
		FreshnessThreshold: cfg.FreshnessThreshold(),
		StartupTimeout:     cfg.StartupTimeout(),
	}, src, launcher.New(cfg.Terminal(), logger.WithPrefix("launcher")), console, logger)

	if err := plugin.Init(ctx); err != nil {
		logger.Error("failed to initialize catalog", "data_dir", cfg.DataDir(), "err", err)
		return err
	}
	defer func() {
		if err := plugin.Close(); err != nil {
			logger.Error("failed to close catalog", "err", err)
		}
	}()

	// The data directory lock is held from here on
	srv, err := server.NewServer(cfg.UnixSocket(), plugin, logger.WithPrefix("server"))
	if err != nil {
		logger.Error("failed to create server", "socket", cfg.UnixSocket(), "err", err)
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Start(gctx)
	})
	if watch {
		g.Go(func() error {
			return cfg.Watch(gctx, logger.WithPrefix("config"), func() {
				plugin.Rewatch()
				if _, err := plugin.ReloadData(gctx); err != nil {
					logger.Warn("reindex after rc change finished with errors", "err", err)
				}
			})
		})
		g.Go(func() error {
			return plugin.Watch(gctx, func() ([]string, []string) {
				return cfg.Path(), cfg.ApplicationDirs()
			})
		})
	}

	logger.Info("ade-progd started", "socket", cfg.UnixSocket(), "data_dir", cfg.DataDir(), "rc", cfg.RCPath())
	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("stopped with error", "err", err)
	}

	if saveErr := plugin.Save(); saveErr != nil {
		logger.Error("failed to save catalog on shutdown", "err", saveErr)
	}
	logger.Info("ade-progd stopped")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
