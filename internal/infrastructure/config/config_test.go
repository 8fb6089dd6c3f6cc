package config

import (
	"os"
	"path/filepath"
	"testing"

	apperrors "github.com/cli-engineer/agent/pkg/errors"
)

func writeTempConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "cli_engineer.toml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_ErrorsWhenExplicitPathAbsent(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.toml"))
	if err == nil {
		t.Fatalf("expected an explicit missing path to error, got %+v", cfg)
	}
}

func TestLoad_DefaultsWhenNoLocalFilesPresent(t *testing.T) {
	dir := t.TempDir()
	wd, _ := os.Getwd()
	defer os.Chdir(wd)
	os.Chdir(dir)

	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Execution.MaxIterations != 10 {
		t.Errorf("expected default max_iterations=10, got %d", cfg.Execution.MaxIterations)
	}
	if cfg.EnabledProvider != "local" {
		t.Errorf("expected fallback to local provider, got %q", cfg.EnabledProvider)
	}
	if cfg.Context.CompressionThreshold != 0.85 {
		t.Errorf("expected default compression_threshold=0.85, got %v", cfg.Context.CompressionThreshold)
	}
	if !cfg.UI.Colorful {
		t.Error("expected colorful to default to true when absent from the file")
	}
}

func TestLoad_HonorsExplicitColorfulFalse(t *testing.T) {
	path := writeTempConfig(t, `
[ui]
colorful = false
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.UI.Colorful {
		t.Error("expected an explicit colorful=false to be honored, not overwritten by the default")
	}
}

func TestLoad_ResolvesSingleEnabledProvider(t *testing.T) {
	path := writeTempConfig(t, `
[execution]
max_iterations = 5

[ai_providers.anthropic]
enabled = true
model = "claude-test"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.EnabledProvider != "anthropic" {
		t.Errorf("expected anthropic to be resolved, got %q", cfg.EnabledProvider)
	}
	if cfg.Execution.MaxIterations != 5 {
		t.Errorf("expected explicit max_iterations to be honored, got %d", cfg.Execution.MaxIterations)
	}
}

func TestLoad_FailsWhenMoreThanOneProviderEnabled(t *testing.T) {
	path := writeTempConfig(t, `
[ai_providers.anthropic]
enabled = true

[ai_providers.openai]
enabled = true
`)
	_, err := Load(path)
	if err == nil {
		t.Fatal("expected an error when two providers are enabled")
	}
	if apperrors.CodeOf(err) != apperrors.CodeConfigError {
		t.Errorf("expected CONFIG_ERROR, got %s", apperrors.CodeOf(err))
	}
}

func TestLoad_RejectsOutOfRangeCompressionThreshold(t *testing.T) {
	path := writeTempConfig(t, `
[context]
compression_threshold = 1.5
`)
	_, err := Load(path)
	if err == nil {
		t.Fatal("expected an error for compression_threshold outside (0,1]")
	}
}

func TestLoad_RejectsMalformedBaseURL(t *testing.T) {
	path := writeTempConfig(t, `
[ai_providers.anthropic]
enabled = true
base_url = "not-a-url"
`)
	_, err := Load(path)
	if err == nil {
		t.Fatal("expected an error for a malformed base_url")
	}
}

func TestLoad_MergesAcrossDefaultSearchOrder(t *testing.T) {
	dir := t.TempDir()
	wd, _ := os.Getwd()
	defer os.Chdir(wd)
	os.Chdir(dir)

	// ".cli_engineer.toml" is lower precedence than "cli_engineer.toml"; a
	// key it alone sets must still take effect in the merged result.
	if err := os.WriteFile(filepath.Join(dir, ".cli_engineer.toml"), []byte(`
[execution]
artifact_dir = "./from-dotfile"
`), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "cli_engineer.toml"), []byte(`
[execution]
max_iterations = 7
`), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Execution.MaxIterations != 7 {
		t.Errorf("expected the higher-precedence file's max_iterations, got %d", cfg.Execution.MaxIterations)
	}
	if cfg.Execution.ArtifactDir != "./from-dotfile" {
		t.Errorf("expected the lower-precedence file's artifact_dir to still take effect, got %q", cfg.Execution.ArtifactDir)
	}
}

func TestLoad_ExplicitPathOverridesButStillMergesLowerPrecedence(t *testing.T) {
	dir := t.TempDir()
	wd, _ := os.Getwd()
	defer os.Chdir(wd)
	os.Chdir(dir)

	if err := os.WriteFile(filepath.Join(dir, "cli_engineer.toml"), []byte(`
[execution]
max_iterations = 3
artifact_dir = "./local-dir"
`), 0o644); err != nil {
		t.Fatal(err)
	}
	explicitPath := filepath.Join(dir, "explicit.toml")
	if err := os.WriteFile(explicitPath, []byte(`
[execution]
max_iterations = 9
`), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(explicitPath)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Execution.MaxIterations != 9 {
		t.Errorf("expected the explicit path's max_iterations to win, got %d", cfg.Execution.MaxIterations)
	}
	if cfg.Execution.ArtifactDir != "./local-dir" {
		t.Errorf("expected the default search order's artifact_dir to still merge in, got %q", cfg.Execution.ArtifactDir)
	}
}

func TestAPIKey_ReadsFromEnvironment(t *testing.T) {
	os.Setenv("ANTHROPIC_API_KEY", "test-key-value")
	defer os.Unsetenv("ANTHROPIC_API_KEY")

	cfg := RuntimeConfig{}
	if got := cfg.APIKey("anthropic"); got != "test-key-value" {
		t.Errorf("got %q", got)
	}
	if got := cfg.APIKey("ollama"); got != "" {
		t.Errorf("expected no key for ollama, got %q", got)
	}
}
