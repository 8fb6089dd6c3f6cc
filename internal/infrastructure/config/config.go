// Package config loads and validates the single TOML document that
// parameterizes a run: execution limits, UI preferences, context budget,
// and the AI provider table.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	apperrors "github.com/cli-engineer/agent/pkg/errors"
)

// ExecutionConfig controls the agentic loop's resource limits.
type ExecutionConfig struct {
	MaxIterations     int    `toml:"max_iterations"`
	ParallelEnabled   bool   `toml:"parallel_enabled"`
	ArtifactDir       string `toml:"artifact_dir"`
	CleanupOnExit     bool   `toml:"cleanup_on_exit"`
	DisableAutoGit    bool   `toml:"disable_auto_git"`
	IsolatedExecution bool   `toml:"isolated_execution"`
}

// UIConfig controls the CLI shell's terminal rendering.
type UIConfig struct {
	Colorful     bool   `toml:"colorful"`
	ProgressBars bool   `toml:"progress_bars"`
	Metrics      bool   `toml:"metrics"`
	OutputFormat string `toml:"output_format"` // "terminal" or "json"
}

// ContextConfig controls the conversation manager's token budget.
type ContextConfig struct {
	MaxTokens            int     `toml:"max_tokens"`
	CompressionThreshold float64 `toml:"compression_threshold"`
	CacheEnabled         bool    `toml:"cache_enabled"`
	CacheDir             string  `toml:"cache_dir"`
}

// AIProviderConfig is one `[ai_providers.<name>]` table.
type AIProviderConfig struct {
	Enabled              bool    `toml:"enabled"`
	Model                string  `toml:"model"`
	Temperature          float64 `toml:"temperature"`
	CostPer1MInputTokens float64 `toml:"cost_per_1m_input_tokens"`
	CostPer1MOutputTokens float64 `toml:"cost_per_1m_output_tokens"`
	MaxTokens            int     `toml:"max_tokens"`
	BaseURL              string  `toml:"base_url"`
}

// RuntimeConfig is the fully resolved, value-typed configuration tree. It is
// produced once by Load and never re-read from disk afterward.
type RuntimeConfig struct {
	Execution    ExecutionConfig              `toml:"execution"`
	UI           UIConfig                     `toml:"ui"`
	Context      ContextConfig                `toml:"context"`
	AIProviders  map[string]AIProviderConfig  `toml:"ai_providers"`

	// EnabledProvider is the single resolved provider name after Load's
	// validation pass ("local" if none were enabled in the file).
	EnabledProvider string `toml:"-"`
}

var apiKeyEnvVars = map[string]string{
	"openai":     "OPENAI_API_KEY",
	"anthropic":  "ANTHROPIC_API_KEY",
	"gemini":     "GEMINI_API_KEY",
	"openrouter": "OPENROUTER_API_KEY",
}

// APIKey returns the environment-sourced secret for a named provider, or ""
// if the provider uses no key (e.g. ollama) or none is set. Secrets never
// live in the TOML file itself.
func (r RuntimeConfig) APIKey(provider string) string {
	envVar, ok := apiKeyEnvVars[provider]
	if !ok {
		return ""
	}
	return os.Getenv(envVar)
}

func setDefaults(cfg *RuntimeConfig, colorfulDefined bool) {
	if !colorfulDefined {
		cfg.UI.Colorful = true
	}
	if cfg.Execution.MaxIterations <= 0 {
		cfg.Execution.MaxIterations = 10
	}
	if cfg.Execution.ArtifactDir == "" {
		cfg.Execution.ArtifactDir = "./artifacts"
	}
	if cfg.UI.OutputFormat == "" {
		cfg.UI.OutputFormat = "terminal"
	}
	if cfg.Context.MaxTokens <= 0 {
		cfg.Context.MaxTokens = 128000
	}
	if cfg.Context.CompressionThreshold <= 0 {
		cfg.Context.CompressionThreshold = 0.85
	}
	if cfg.AIProviders == nil {
		cfg.AIProviders = map[string]AIProviderConfig{}
	}
}

// mergeOrder returns the §6 search order's candidate paths in ascending
// precedence (lowest first): the XDG config path, then the two project-local
// candidates, then the explicit --config path last, if given. Load decodes
// every existing file in this order into the same struct, so a key absent
// from a higher-precedence file falls back to whatever a lower-precedence
// file already set rather than being wiped out — merge, not override-all.
func mergeOrder(explicit string) []string {
	var paths []string
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		paths = append(paths, filepath.Join(xdg, "cli_engineer", "config.toml"))
	}
	paths = append(paths, "./.cli_engineer.toml", "./cli_engineer.toml")
	if explicit != "" {
		paths = append(paths, explicit)
	}
	return paths
}

// Load resolves the §6 search order into a RuntimeConfig, merging every
// existing candidate file in ascending precedence, applies defaults,
// resolves exactly one enabled AI provider, and validates the result.
// explicitPath is the value of --config, or "" to use the default search
// order alone. The filesystem is never consulted again after this call
// returns.
func Load(explicitPath string) (*RuntimeConfig, error) {
	var cfg RuntimeConfig
	colorfulDefined := false

	explicitFound := false
	for _, path := range mergeOrder(explicitPath) {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, apperrors.NewConfigError(fmt.Sprintf("reading config %s", path), err)
		}
		m, err := toml.Decode(string(data), &cfg)
		if err != nil {
			return nil, apperrors.NewConfigError(fmt.Sprintf("parsing config %s", path), err)
		}
		if m.IsDefined("ui", "colorful") {
			colorfulDefined = true
		}
		if path == explicitPath {
			explicitFound = true
		}
	}
	if explicitPath != "" && !explicitFound {
		return nil, apperrors.NewConfigError(fmt.Sprintf("config file %s not found", explicitPath), nil)
	}

	setDefaults(&cfg, colorfulDefined)

	if err := resolveProvider(&cfg); err != nil {
		return nil, err
	}
	if err := validate(cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// resolveProvider implements §4.11's single-enabled-provider rule: falls
// back to "local" with no error if zero providers are enabled (the caller
// is expected to log a warning), fails if more than one is enabled.
func resolveProvider(cfg *RuntimeConfig) error {
	var enabled []string
	for name, p := range cfg.AIProviders {
		if p.Enabled {
			enabled = append(enabled, name)
		}
	}
	switch len(enabled) {
	case 0:
		cfg.EnabledProvider = "local"
	case 1:
		cfg.EnabledProvider = enabled[0]
	default:
		return apperrors.NewConfigError(fmt.Sprintf("exactly one ai_providers table may be enabled, found %d: %s", len(enabled), strings.Join(enabled, ", ")), nil)
	}
	return nil
}

func validate(cfg RuntimeConfig) error {
	if cfg.Context.CompressionThreshold <= 0 || cfg.Context.CompressionThreshold > 1 {
		return apperrors.NewConfigError(fmt.Sprintf("context.compression_threshold must be in (0,1], got %v", cfg.Context.CompressionThreshold), nil)
	}
	if cfg.Execution.MaxIterations <= 0 {
		return apperrors.NewConfigError(fmt.Sprintf("execution.max_iterations must be > 0, got %d", cfg.Execution.MaxIterations), nil)
	}
	for name, p := range cfg.AIProviders {
		if p.BaseURL != "" && !strings.HasPrefix(p.BaseURL, "http://") && !strings.HasPrefix(p.BaseURL, "https://") {
			return apperrors.NewConfigError(fmt.Sprintf("ai_providers.%s.base_url %q is not well-formed", name, p.BaseURL), nil)
		}
		if p.CostPer1MInputTokens < 0 || p.CostPer1MOutputTokens < 0 {
			return apperrors.NewConfigError(fmt.Sprintf("ai_providers.%s cost rates must be non-negative", name), nil)
		}
	}
	return nil
}
