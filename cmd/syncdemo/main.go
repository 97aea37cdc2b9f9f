// Package main is the entry point for the syncdemo binary: a small
// command-line front-end over the client package, useful for poking at
// a running agent by hand.
//
// Startup sequence:
//  1. Parse CLI flags / environment variables
//  2. Build logger
//  3. Dial the agent
//  4. Activate the session and attach the named document
//  5. Log session events (to stderr) until interrupted
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/loomdoc/synckit/client"
	"github.com/loomdoc/synckit/document"
)

var (
	version = "dev"
	commit  = "none"
)

type config struct {
	agentAddr  string
	token      string
	clientKey  string
	docKey     string
	manualSync bool
	logLevel   string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cfg := &config{}

	root := &cobra.Command{
		Use:   "syncdemo",
		Short: "syncdemo — interactive client for a synckit agent",
		Long: `syncdemo activates a session against a synckit agent, attaches one
document, and prints every session event it observes until interrupted.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), cfg)
		},
	}

	root.AddCommand(newVersionCmd())

	root.PersistentFlags().StringVar(&cfg.agentAddr, "agent-addr", envOrDefault("SYNCKIT_AGENT", "localhost:8080"), "agent gRPC address (host:port)")
	root.PersistentFlags().StringVar(&cfg.token, "token", envOrDefault("SYNCKIT_TOKEN", ""), "bearer token for agent authentication")
	root.PersistentFlags().StringVar(&cfg.clientKey, "client-key", envOrDefault("SYNCKIT_CLIENT_KEY", ""), "client key (empty = generate one)")
	root.PersistentFlags().StringVar(&cfg.docKey, "doc", "demo-doc", "key of the document to attach")
	root.PersistentFlags().BoolVar(&cfg.manualSync, "manual-sync", false, "attach in manual-sync mode instead of realtime")
	root.PersistentFlags().StringVar(&cfg.logLevel, "log-level", envOrDefault("SYNCKIT_LOG_LEVEL", "info"), "log level (debug, info, warn, error)")

	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("syncdemo %s (commit: %s)\n", version, commit)
		},
	}
}

func run(ctx context.Context, cfg *config) error {
	logger, err := buildLogger(cfg.logLevel)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	if cfg.token == "" {
		logger.Warn("token not configured — agent connection is unauthenticated (set SYNCKIT_TOKEN in production)")
	}

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	opts := []client.Option{
		client.WithLogger(logger),
		client.WithToken(cfg.token),
	}
	if cfg.clientKey != "" {
		opts = append(opts, client.WithKey(cfg.clientKey))
	}

	c, err := client.Dial(cfg.agentAddr, opts...)
	if err != nil {
		return fmt.Errorf("failed to dial agent: %w", err)
	}
	defer c.Close()

	unsubscribe := c.Subscribe(func(e client.Event) {
		logger.Info("session event", zap.String("event", fmt.Sprintf("%T", e)), zap.Any("detail", e))
	})
	defer unsubscribe()

	if err := c.Activate(ctx); err != nil {
		return fmt.Errorf("failed to activate: %w", err)
	}
	logger.Info("activated", zap.String("client_id", c.ID()))

	doc := document.New(document.Key(cfg.docKey))
	if err := c.Attach(ctx, doc, cfg.manualSync); err != nil {
		return fmt.Errorf("failed to attach %s: %w", cfg.docKey, err)
	}
	logger.Info("attached", zap.String("doc", cfg.docKey), zap.Bool("manual_sync", cfg.manualSync))

	<-ctx.Done()

	logger.Info("syncdemo stopped")
	return nil
}

func buildLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	return cfg.Build()
}

func envOrDefault(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}
