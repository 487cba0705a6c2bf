package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/ppiankov/triage/internal/model"
	"github.com/ppiankov/triage/internal/pipeline"
	"github.com/ppiankov/triage/internal/server"
	"github.com/ppiankov/triage/internal/worker"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the triage HTTP API",
	Long: `Serve exposes the triage pipeline over HTTP:

  POST   /chat            {"message": "...", "reset": false, "session_id": "..."}
  GET    /sessions/{id}   conversation transcript
  DELETE /sessions/{id}   forget a conversation
  GET    /healthz

Example:
  triage serve
  triage serve --addr 0.0.0.0:8000 --provider openai --model gpt-4o-mini`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", "", "listen address (default 127.0.0.1:8000)")
	_ = viper.BindPFlag("server.addr", serveCmd.Flags().Lookup("addr"))
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, logger, knowledge, _, err := setup(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	p, err := pipeline.NewPipeline(cfg, knowledge, logger)
	if err != nil {
		return fmt.Errorf("build pipeline: %w", err)
	}

	srv := server.New(p, cfg.Server, sessionLimiter(cfg), logger)
	logger.Info("starting triage",
		zap.String("version", Version),
		zap.String("provider", cfg.LLM.Provider),
		zap.String("model", cfg.LLM.Model))
	return srv.Run(ctx)
}

// sessionLimiter returns the per-session message limiter, or nil when disabled
func sessionLimiter(cfg *model.Config) *worker.Limiter {
	if !cfg.RateLimiting.Enabled {
		return nil
	}
	return worker.NewLimiter(cfg.RateLimiting.RequestsPerSecond, cfg.RateLimiting.BurstSize, cfg.Session.IdleTTL)
}
