package observability

import (
	"io"
	"log/slog"
	"os"

	"github.com/fairyhunter13/ai-interview-auditor/internal/config"
)

// SetupLogger configures a JSON slog logger on stdout with environment fields.
func SetupLogger(cfg config.Config) *slog.Logger {
	return NewLogger(os.Stdout, cfg)
}

// NewLogger builds the service logger writing to w. Debug level is enabled in dev.
func NewLogger(w io.Writer, cfg config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{}
	if cfg.IsDev() {
		opts.Level = slog.LevelDebug
	}
	h := slog.NewJSONHandler(w, opts)
	return slog.New(h).With(
		slog.String("service", cfg.OTELServiceName),
		slog.String("env", cfg.AppEnv),
		slog.String("ai_provider", cfg.AIProvider),
	)
}
