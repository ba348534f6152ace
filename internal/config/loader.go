package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"analysisd/internal/common/fsutil"
	"analysisd/internal/completion"
)

// Defaults applied by ApplyDefaults.
const (
	DefaultAddr          = ":8080"
	DefaultLogLevel      = "info"
	DefaultLogFormat     = "console"
	DefaultBackendKind   = "script"
	DefaultTimeoutMS     = 20000
	DefaultOverlapPolicy = "reject"
	DefaultPartialBuffer = 64
	DefaultMaxBodyBytes  = 1 << 20
)

// Config holds runtime parameters for the service.
// Zero values mean "unspecified" and are replaced by ApplyDefaults.
type Config struct {
	Addr         string   `json:"addr" yaml:"addr" toml:"addr"`
	LogLevel     string   `json:"log_level" yaml:"log_level" toml:"log_level"`
	LogFormat    string   `json:"log_format" yaml:"log_format" toml:"log_format"`
	MaxBodyBytes int64    `json:"max_body_bytes" yaml:"max_body_bytes" toml:"max_body_bytes"`
	Backend      Backend  `json:"backend" yaml:"backend" toml:"backend"`
	Analysis     Analysis `json:"analysis" yaml:"analysis" toml:"analysis"`
	CORS         CORS     `json:"cors" yaml:"cors" toml:"cors"`
}

// Backend selects the inference engine.
type Backend struct {
	Kind            string   `json:"kind" yaml:"kind" toml:"kind"`
	Model           string   `json:"model" yaml:"model" toml:"model"`
	ModelPath       string   `json:"model_path" yaml:"model_path" toml:"model_path"`
	BaseURL         string   `json:"base_url" yaml:"base_url" toml:"base_url"`
	APIKey          string   `json:"api_key" yaml:"api_key" toml:"api_key"`
	ContextSize     int      `json:"context_size" yaml:"context_size" toml:"context_size"`
	MaxTokens       int      `json:"max_tokens" yaml:"max_tokens" toml:"max_tokens"`
	Temperature     float64  `json:"temperature" yaml:"temperature" toml:"temperature"`
	Threads         int      `json:"threads" yaml:"threads" toml:"threads"`
	ScriptFragments []string `json:"script_fragments" yaml:"script_fragments" toml:"script_fragments"`
	ScriptDelayMS   int      `json:"script_delay_ms" yaml:"script_delay_ms" toml:"script_delay_ms"`
}

// Analysis holds completion and admission policy.
type Analysis struct {
	TimeoutMS           int      `json:"timeout_ms" yaml:"timeout_ms" toml:"timeout_ms"`
	OverlapPolicy       string   `json:"overlap_policy" yaml:"overlap_policy" toml:"overlap_policy"`
	MinLength           int      `json:"min_length" yaml:"min_length" toml:"min_length"`
	MaxLength           int      `json:"max_length" yaml:"max_length" toml:"max_length"`
	TerminalPunctuation string   `json:"terminal_punctuation" yaml:"terminal_punctuation" toml:"terminal_punctuation"`
	RequiredFields      []string `json:"required_fields" yaml:"required_fields" toml:"required_fields"`
	NoResultMarker      string   `json:"no_result_marker" yaml:"no_result_marker" toml:"no_result_marker"`
	Keywords            []string `json:"keywords" yaml:"keywords" toml:"keywords"`
	PartialBuffer       int      `json:"partial_buffer" yaml:"partial_buffer" toml:"partial_buffer"`
}

// CORS is opt-in.
type CORS struct {
	Enabled        bool     `json:"enabled" yaml:"enabled" toml:"enabled"`
	AllowedOrigins []string `json:"allowed_origins" yaml:"allowed_origins" toml:"allowed_origins"`
	AllowedMethods []string `json:"allowed_methods" yaml:"allowed_methods" toml:"allowed_methods"`
	AllowedHeaders []string `json:"allowed_headers" yaml:"allowed_headers" toml:"allowed_headers"`
}

// Load reads a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	full, err := fsutil.ExpandPath(path)
	if err != nil {
		return cfg, err
	}
	b, err := os.ReadFile(full)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	case ".toml":
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	return cfg, nil
}

// ApplyDefaults fills unspecified fields.
func (c *Config) ApplyDefaults() {
	if c.Addr == "" {
		c.Addr = DefaultAddr
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	if c.LogFormat == "" {
		c.LogFormat = DefaultLogFormat
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if c.Backend.Kind == "" {
		c.Backend.Kind = DefaultBackendKind
	}
	if c.Backend.ModelPath != "" {
		if p, err := fsutil.ExpandPath(c.Backend.ModelPath); err == nil {
			c.Backend.ModelPath = p
		}
	}
	if c.Analysis.TimeoutMS <= 0 {
		c.Analysis.TimeoutMS = DefaultTimeoutMS
	}
	if c.Analysis.OverlapPolicy == "" {
		c.Analysis.OverlapPolicy = DefaultOverlapPolicy
	}
	if c.Analysis.PartialBuffer <= 0 {
		c.Analysis.PartialBuffer = DefaultPartialBuffer
	}
	if c.CORS.Enabled && len(c.CORS.AllowedOrigins) == 0 {
		c.CORS.AllowedOrigins = []string{"*"}
	}
}

// Validate reports settings that cannot be defaulted.
func (c Config) Validate() error {
	switch c.Analysis.OverlapPolicy {
	case "", "reject", "supersede":
	default:
		return fmt.Errorf("analysis.overlap_policy: unknown value %q", c.Analysis.OverlapPolicy)
	}
	switch c.LogFormat {
	case "", "console", "json":
	default:
		return fmt.Errorf("log_format: unknown value %q", c.LogFormat)
	}
	if c.Backend.Kind == "llama" && c.Backend.ModelPath != "" && !fsutil.PathExists(c.Backend.ModelPath) {
		return fmt.Errorf("backend.model_path: %s does not exist", c.Backend.ModelPath)
	}
	// Unset bounds take the detector defaults, so one bound is checked against the other's default.
	minLen, maxLen := c.Analysis.MinLength, c.Analysis.MaxLength
	if minLen <= 0 {
		minLen = completion.DefaultMinLength
	}
	if maxLen <= 0 {
		maxLen = completion.DefaultMaxLength
	}
	if minLen >= maxLen {
		return fmt.Errorf("analysis: min_length (%d) must be below max_length (%d)", minLen, maxLen)
	}
	return nil
}

// Timeout returns the request timeout.
func (a Analysis) Timeout() time.Duration { return time.Duration(a.TimeoutMS) * time.Millisecond }

// ScriptDelay returns the delay between scripted fragments.
func (b Backend) ScriptDelay() time.Duration { return time.Duration(b.ScriptDelayMS) * time.Millisecond }
