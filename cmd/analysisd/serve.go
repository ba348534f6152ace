package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"analysisd/internal/analysis"
	"analysisd/internal/backend"
	"analysisd/internal/completion"
	"analysisd/internal/config"
	"analysisd/internal/httpapi"
)

type serveFlags struct {
	configPath    string
	addr          string
	logLevel      string
	logFormat     string
	backendKind   string
	model         string
	modelPath     string
	baseURL       string
	apiKey        string
	timeout       time.Duration
	overlapPolicy string
	keywords      string
	corsOrigins   string
}

func newServeCmd() *cobra.Command { return serveCmd(&serveFlags{}) }

func serveCmd(f *serveFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP/WebSocket server",
		Example: "  analysisd serve --backend ollama --model llama3\n" +
			"  analysisd serve --config analysisd.yaml --overlap-policy supersede",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := buildConfig(cmd.Flags(), f)
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg)
		},
	}
	fs := cmd.Flags()
	// Flags with environment variable defaults
	fs.StringVar(&f.configPath, "config", os.Getenv("ANALYSISD_CONFIG"), "Config file (.yaml, .json or .toml)")
	fs.StringVar(&f.addr, "addr", envOr("ANALYSISD_ADDR", config.DefaultAddr), "HTTP listen address, e.g. :8080")
	fs.StringVar(&f.logLevel, "log-level", envOr("ANALYSISD_LOG_LEVEL", config.DefaultLogLevel), "Log level: trace|debug|info|warn|error")
	fs.StringVar(&f.logFormat, "log-format", envOr("ANALYSISD_LOG_FORMAT", config.DefaultLogFormat), "Log format: console|json")
	fs.StringVar(&f.backendKind, "backend", envOr("ANALYSISD_BACKEND", config.DefaultBackendKind), "Engine: llama|ollama|openai|anthropic|gemini|script")
	fs.StringVar(&f.model, "model", os.Getenv("ANALYSISD_MODEL"), "Model name (remote engines) or preferred model id (llama)")
	fs.StringVar(&f.modelPath, "model-path", os.Getenv("ANALYSISD_MODEL_PATH"), "GGUF file or directory for the llama engine")
	fs.StringVar(&f.baseURL, "base-url", os.Getenv("ANALYSISD_BASE_URL"), "Engine base URL")
	fs.StringVar(&f.apiKey, "api-key", os.Getenv("ANALYSISD_API_KEY"), "Engine API key")
	fs.DurationVar(&f.timeout, "timeout", envDuration("ANALYSISD_TIMEOUT", 0), "Per-request timeout backstop (default 20s)")
	fs.StringVar(&f.overlapPolicy, "overlap-policy", os.Getenv("ANALYSISD_OVERLAP_POLICY"), "Concurrent admission policy: reject|supersede")
	fs.StringVar(&f.keywords, "keywords", os.Getenv("ANALYSISD_KEYWORDS"), "Comma-separated keywords that mark a structured query")
	fs.StringVar(&f.corsOrigins, "cors-origins", os.Getenv("ANALYSISD_CORS_ORIGINS"), "Comma-separated allowed origins; enables CORS")
	return cmd
}

func envDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

// buildConfig merges the config file, environment and flags, in increasing
// precedence, then applies defaults.
func buildConfig(fs *pflag.FlagSet, f *serveFlags) (config.Config, error) {
	var cfg config.Config
	if f.configPath != "" {
		loaded, err := config.Load(f.configPath)
		if err != nil {
			return cfg, fmt.Errorf("config: %w", err)
		}
		cfg = loaded
	}
	set := func(name, env string) bool { return fs.Changed(name) || os.Getenv(env) != "" }
	if set("addr", "ANALYSISD_ADDR") {
		cfg.Addr = f.addr
	}
	if set("log-level", "ANALYSISD_LOG_LEVEL") {
		cfg.LogLevel = f.logLevel
	}
	if set("log-format", "ANALYSISD_LOG_FORMAT") {
		cfg.LogFormat = f.logFormat
	}
	if set("backend", "ANALYSISD_BACKEND") {
		cfg.Backend.Kind = f.backendKind
	}
	if set("model", "ANALYSISD_MODEL") {
		cfg.Backend.Model = f.model
	}
	if set("model-path", "ANALYSISD_MODEL_PATH") {
		cfg.Backend.ModelPath = f.modelPath
	}
	if set("base-url", "ANALYSISD_BASE_URL") {
		cfg.Backend.BaseURL = f.baseURL
	}
	if set("api-key", "ANALYSISD_API_KEY") {
		cfg.Backend.APIKey = f.apiKey
	}
	if f.timeout > 0 {
		cfg.Analysis.TimeoutMS = int(f.timeout / time.Millisecond)
	}
	if f.overlapPolicy != "" {
		cfg.Analysis.OverlapPolicy = f.overlapPolicy
	}
	if kw := splitCSV(f.keywords); len(kw) > 0 {
		cfg.Analysis.Keywords = kw
	}
	if origins := splitCSV(f.corsOrigins); len(origins) > 0 {
		cfg.CORS.Enabled = true
		cfg.CORS.AllowedOrigins = origins
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// newLogger builds the root logger from log_level and log_format.
func newLogger(level, format string, w io.Writer) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("log level %q: %w", level, err)
	}
	out := w
	if format == "console" {
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	return zerolog.New(out).Level(lvl).With().Timestamp().Str("service", "analysisd").Logger(), nil
}

func backendConfig(c config.Config) backend.Config {
	b := c.Backend
	return backend.Config{
		Kind:            b.Kind,
		Model:           b.Model,
		ModelPath:       b.ModelPath,
		BaseURL:         b.BaseURL,
		APIKey:          b.APIKey,
		ContextSize:     b.ContextSize,
		MaxTokens:       b.MaxTokens,
		Temperature:     b.Temperature,
		Threads:         b.Threads,
		ScriptFragments: b.ScriptFragments,
		ScriptDelay:     b.ScriptDelay(),
	}
}

func analysisConfig(c config.Config, log *zerolog.Logger) analysis.Config {
	a := c.Analysis
	return analysis.Config{
		Timeout:       a.Timeout(),
		OverlapPolicy: a.OverlapPolicy,
		Completion: completion.Config{
			MinLength:           a.MinLength,
			MaxLength:           a.MaxLength,
			TerminalPunctuation: a.TerminalPunctuation,
			RequiredFields:      a.RequiredFields,
			NoResultMarker:      a.NoResultMarker,
		},
		Keywords: a.Keywords,
		Logger:   log,
	}
}

func runServe(ctx context.Context, cfg config.Config) error {
	if ctx == nil {
		ctx = context.Background()
	}
	log, err := newLogger(cfg.LogLevel, cfg.LogFormat, os.Stderr)
	if err != nil {
		return err
	}

	src, err := backend.New(backendConfig(cfg))
	if err != nil {
		return fmt.Errorf("backend: %w", err)
	}
	if c, ok := src.(io.Closer); ok {
		defer c.Close()
	}
	baseCtx, cancelBase := context.WithCancel(ctx)
	defer cancelBase()
	host := backend.NewHost(cfg.Backend.Kind, src, log)
	host.Start(baseCtx)

	sup, err := analysis.NewSupervisor(host, analysisConfig(cfg, &log))
	if err != nil {
		return err
	}
	defer sup.Close()

	httpapi.SetLogger(log)
	httpapi.SetDefaultLogLevel(cfg.LogLevel)
	httpapi.SetMaxBodyBytes(cfg.MaxBodyBytes)
	httpapi.SetPartialBuffer(cfg.Analysis.PartialBuffer)
	httpapi.SetCORSOptions(cfg.CORS.Enabled, cfg.CORS.AllowedOrigins, cfg.CORS.AllowedMethods, cfg.CORS.AllowedHeaders)
	httpapi.SetBaseContext(baseCtx)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpapi.NewMux(httpapi.NewService(sup, host)),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Addr).Str("backend", cfg.Backend.Kind).
			Str("overlap_policy", cfg.Analysis.OverlapPolicy).
			Str("timeout", strconv.Itoa(cfg.Analysis.TimeoutMS)+"ms").Msg("analysisd listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Graceful shutdown (Ctrl+C / SIGTERM)
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)
	select {
	case <-stop:
	case <-ctx.Done():
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("server: %w", err)
		}
	}

	log.Info().Msg("shutting down")
	// Settle the in-flight request first so streaming handlers can finish.
	_ = sup.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown error")
	}
	cancelBase()
	return nil
}
