// Command loomd runs Loom's agent server: the reasoning loop, its tool
// registry, and the WebSocket event bridge clients connect to. A single
// long-running serve command rooted on cobra, no REPL.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/loomhq/loom/internal/auditlog"
	"github.com/loomhq/loom/internal/bridge"
	"github.com/loomhq/loom/internal/config"
	"github.com/loomhq/loom/internal/embedding"
	"github.com/loomhq/loom/internal/logging"
	"github.com/loomhq/loom/internal/loop"
	"github.com/loomhq/loom/internal/session"
	"github.com/loomhq/loom/internal/tools"
	"github.com/loomhq/loom/internal/vectorstore"
	"github.com/loomhq/loom/internal/worker"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	configPath string
	debug      bool
)

var rootCmd = &cobra.Command{
	Use:   "loomd",
	Short: "Run the Loom agent server",
	Long: `loomd hosts Loom's reasoning loop behind a persistent WebSocket
channel: one connection per session, tool dispatch against a sandboxed
workspace, and a Haven model-host proxy for the actual completions.`,
	RunE: runServe,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a loom.toml config file")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug-level logging")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if debug {
		cfg.DebugMode = true
	}

	if err := logging.Init(cfg.DebugMode); err != nil {
		return fmt.Errorf("loomd: init logging: %w", err)
	}
	defer func() { _ = logging.Sync() }()

	log := logging.Get(logging.CategoryBoot)
	log.Info("starting loomd", zap.Int("port", cfg.ServerPort), zap.String("store_dir", cfg.StoreDir), zap.String("sandbox_dir", cfg.SandboxDir))

	store, err := vectorstore.Open(cfg.StoreDir)
	if err != nil {
		return fmt.Errorf("loomd: open vector store: %w", err)
	}
	defer func() { _ = store.Close() }()

	engine, err := embedding.NewEngine(embedding.DefaultConfig())
	if err != nil {
		return fmt.Errorf("loomd: init embedding engine: %w", err)
	}

	registry := session.NewRegistry(session.Config{
		Store:            store,
		Engine:           engine,
		HavenAddress:     cfg.HavenAddress,
		HavenAuthKey:     cfg.HavenAuthKey,
		SegmentThreshold: cfg.SegmentThreshold,
	})

	audit, err := auditlog.Open(cfg.SandboxDir)
	if err != nil {
		return fmt.Errorf("loomd: open audit log: %w", err)
	}
	defer func() { _ = audit.Close() }()

	pool := worker.New(4)

	loopCfg := loop.Config{
		AbsoluteMaxIterations: cfg.AbsoluteMaxIterations,
		NominalMaxIterations:  cfg.NominalMaxIterations,
	}

	allowedProjectFiles := map[string]string{}

	srv, err := bridge.New(registry, tools.Default, pool, audit, store, loopCfg, cfg.SandboxDir, allowedProjectFiles)
	if err != nil {
		return fmt.Errorf("loomd: build server: %w", err)
	}

	watcher, err := config.WatchFile(configPath, func(reloaded config.Config) {
		srv.SetLoopConfig(loop.Config{
			AbsoluteMaxIterations: reloaded.AbsoluteMaxIterations,
			NominalMaxIterations:  reloaded.NominalMaxIterations,
		})
	})
	if err != nil {
		log.Warn("config watcher disabled", zap.Error(err))
	}
	defer func() { _ = watcher.Close() }()

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", srv.HandleWS)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err := <-errCh:
		return fmt.Errorf("loomd: serve: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}
