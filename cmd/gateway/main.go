// agentrelay-gateway streams an agent's execution over a WebSocket
// connection as an ordered, resumable event log.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/ashureev/agentrelay/internal/agentapi"
	"github.com/ashureev/agentrelay/internal/config"
	"github.com/ashureev/agentrelay/internal/gateway"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

type flags struct {
	host     string
	port     string
	logLevel string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	f := &flags{}

	root := &cobra.Command{
		Use:   "agentrelay-gateway",
		Short: "agentrelay-gateway — realtime agent interaction gateway",
		Long: `agentrelay-gateway streams an agent's execution over a WebSocket
connection as an ordered, resumable event log, with signed client-held
state snapshots and a plan-solve-aggregate pipeline for multi-task work.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), f)
		},
	}

	root.AddCommand(newVersionCmd())

	root.PersistentFlags().StringVar(&f.host, "host", envOrDefault("AGENTRELAY_HOST", "0.0.0.0"), "Host interface to listen on")
	root.PersistentFlags().StringVar(&f.port, "port", envOrDefault("AGENTRELAY_PORT", "8080"), "Port to listen on")
	root.PersistentFlags().StringVar(&f.logLevel, "log-level", envOrDefault("AGENTRELAY_LOG_LEVEL", "info"), "Log level (debug, info, warn, error)")

	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("agentrelay-gateway %s (commit: %s, built: %s)\n", version, commit, date)
		},
	}
}

func run(ctx context.Context, f *flags) error {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLogLevel(f.logLevel),
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	if f.host != "" {
		cfg.Host = f.host
	}
	if f.port != "" {
		cfg.Port = f.port
	}

	slog.Info("starting gateway", "host", cfg.Host, "port", cfg.Port, "dev", cfg.IsDevelopment())

	agentFactory, err := buildAgentFactory()
	if err != nil {
		return fmt.Errorf("build agent factory: %w", err)
	}

	mgr := gateway.NewManager(cfg, agentFactory, []string{"*"})

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	go mgr.Run(runCtx)

	srv := &http.Server{
		Addr:         cfg.Host + ":" + cfg.Port,
		Handler:      mgr.HTTP,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // WebSocket connections are long-lived.
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		slog.Info("gateway listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("gateway server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-runCtx.Done()
	stop()
	slog.Info("shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	slog.Info("gateway stopped successfully")
	return nil
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func envOrDefault(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

// buildAgentFactory constructs the agentapi.Factory used for every new
// session. A concrete deployment plugs in a real agent implementation
// here (an LLM-backed planner/executor reachable over the network); this
// build ships a scripted echo agent so the gateway is runnable and
// demoable standalone, with the plug point kept obvious for operators
// wiring in their own backend.
func buildAgentFactory() (agentapi.Factory, error) {
	return func() (agentapi.Agent, error) {
		return agentapi.NewScriptedAgent([]agentapi.Step{
			{Kind: agentapi.StepThinking, Content: "considering the request"},
			{Kind: agentapi.StepFinalAnswer, Content: "this gateway is running with the reference echo agent; wire a real agentapi.Factory in cmd/gateway/main.go for production use"},
		}), nil
	}, nil
}
