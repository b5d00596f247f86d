package cli

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func captureRunner(t *testing.T) **GenerateConfig {
	t.Helper()
	var captured *GenerateConfig
	generateRunner = func(ctx context.Context, cfg *GenerateConfig) error {
		captured = cfg
		return nil
	}
	t.Cleanup(func() { generateRunner = runGenerate })
	return &captured
}

func newTestRoot(args ...string) error {
	root := NewRootCmd()
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	return root.Execute()
}

func TestGenerateConfigFromFlags(t *testing.T) {
	captured := captureRunner(t)

	err := newTestRoot(
		"--verbose",
		"generate",
		"--input", "spec.yaml",
		"--out", "./build",
		"--module", "api",
		"--helper-prefix", "crate::marker::",
		"--include-tags", "foo,bar",
		"--exclude-tags", "baz",
		"--methods", "GET,post",
		"--paths", "^/pets",
		"--strict",
		"--dry-run",
		"--force",
	)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}

	cfg := *captured
	if cfg == nil {
		t.Fatalf("expected config to be captured")
	}
	if cfg.Input != "spec.yaml" {
		t.Errorf("input mismatch: got %q", cfg.Input)
	}
	if cfg.Out != "./build" {
		t.Errorf("out mismatch: got %q", cfg.Out)
	}
	if cfg.Module != "api" {
		t.Errorf("module mismatch: got %q", cfg.Module)
	}
	if cfg.HelperPrefix != "crate::marker::" {
		t.Errorf("helper prefix mismatch: got %q", cfg.HelperPrefix)
	}
	if want := []string{"foo", "bar"}; !equalStringSlices(cfg.IncludeTags, want) {
		t.Errorf("include tags mismatch: got %v", cfg.IncludeTags)
	}
	if want := []string{"baz"}; !equalStringSlices(cfg.ExcludeTags, want) {
		t.Errorf("exclude tags mismatch: got %v", cfg.ExcludeTags)
	}
	if want := []string{"get", "post"}; !equalStringSlices(cfg.Methods, want) {
		t.Errorf("methods mismatch: got %v", cfg.Methods)
	}
	if want := []string{"^/pets"}; !equalStringSlices(cfg.Paths, want) {
		t.Errorf("paths mismatch: got %v", cfg.Paths)
	}
	if !cfg.Strict || !cfg.DryRun || !cfg.Force || !cfg.Verbose {
		t.Errorf("expected strict, dry-run, force and verbose: got %+v", cfg)
	}
}

func TestGenerateConfigDefaults(t *testing.T) {
	captured := captureRunner(t)

	if err := newTestRoot("generate", "--input", "spec.yaml"); err != nil {
		t.Fatalf("execute: %v", err)
	}
	cfg := *captured
	if cfg.Module != "models" {
		t.Errorf("module default: got %q", cfg.Module)
	}
	if cfg.HelperPrefix != "crate::generics::" {
		t.Errorf("helper prefix default: got %q", cfg.HelperPrefix)
	}
	if cfg.Out != "" || cfg.Strict || cfg.DryRun {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
}

func TestGenerateConfigPrecedence(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	configContent := strings.TrimSpace(`input: config-spec.yaml
out: from-config
module: cfg_models
includeTags:
  - cfgFoo
excludeTags: cfgBar
methods: [put]
dryRun: true
force: false
verbose: true
`) + "\n"

	if err := os.WriteFile(configPath, []byte(configContent), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	captured := captureRunner(t)
	err := newTestRoot(
		"--config", configPath,
		"generate",
		"--input", "flag-spec.yaml",
		"--include-tags", "flagTag",
		"--dry-run=false",
		"--force",
	)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}

	cfg := *captured
	if cfg == nil {
		t.Fatalf("expected config to be captured")
	}
	if cfg.Input != "flag-spec.yaml" {
		t.Errorf("input: want %q got %q", "flag-spec.yaml", cfg.Input)
	}
	if cfg.Out != "from-config" {
		t.Errorf("out: want from-config got %q", cfg.Out)
	}
	if cfg.Module != "cfg_models" {
		t.Errorf("module: want cfg_models got %q", cfg.Module)
	}
	if want := []string{"flagTag"}; !equalStringSlices(cfg.IncludeTags, want) {
		t.Errorf("include tags: want %v got %v", want, cfg.IncludeTags)
	}
	if want := []string{"cfgBar"}; !equalStringSlices(cfg.ExcludeTags, want) {
		t.Errorf("exclude tags: want %v got %v", want, cfg.ExcludeTags)
	}
	if want := []string{"put"}; !equalStringSlices(cfg.Methods, want) {
		t.Errorf("methods: want %v got %v", want, cfg.Methods)
	}
	if cfg.DryRun {
		t.Errorf("expected dry-run false after flag override")
	}
	if !cfg.Force {
		t.Errorf("expected force true after flag override")
	}
	if !cfg.Verbose {
		t.Errorf("expected verbose true from config file")
	}
	if cfg.ConfigPath != configPath {
		t.Errorf("config path mismatch: got %q", cfg.ConfigPath)
	}
}

func TestGenerateConfigTOML(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "swagger2rs.toml")
	content := strings.TrimSpace(`
input = "toml-spec.yaml"
helper_prefix = "gen::"
exclude-tags = ["internal", "admin"]
strict = true
`) + "\n"
	if err := os.WriteFile(configPath, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	captured := captureRunner(t)
	if err := newTestRoot("--config", configPath, "generate"); err != nil {
		t.Fatalf("execute: %v", err)
	}
	cfg := *captured
	if cfg.Input != "toml-spec.yaml" {
		t.Errorf("input: got %q", cfg.Input)
	}
	if cfg.HelperPrefix != "gen::" {
		t.Errorf("helper prefix: got %q", cfg.HelperPrefix)
	}
	if want := []string{"internal", "admin"}; !equalStringSlices(cfg.ExcludeTags, want) {
		t.Errorf("exclude tags: got %v", cfg.ExcludeTags)
	}
	if !cfg.Strict {
		t.Errorf("expected strict from TOML")
	}
}

func TestGenerateConfigUnknownKey(t *testing.T) {
	t.Parallel()

	configPath := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(configPath, []byte("unknown: value\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	err := newTestRoot("--config", configPath, "generate", "--input", "spec.yaml")
	if err == nil {
		t.Fatalf("expected an error")
	}
	if !errors.Is(err, ErrUsage) {
		t.Fatalf("expected usage error, got %v", err)
	}
	if !strings.Contains(err.Error(), "unknown field") {
		t.Fatalf("unexpected error message: %v", err)
	}
}

func TestGenerateConfigValidation(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name string
		args []string
		want string
	}{
		{"missing input", []string{"generate"}, "--input is required"},
		{"bad method", []string{"generate", "--input", "s.yaml", "--methods", "fetch"}, "unsupported method"},
		{"bad module", []string{"generate", "--input", "s.yaml", "--module", "Models-1"}, "invalid --module"},
		{"bad prefix", []string{"generate", "--input", "s.yaml", "--helper-prefix", "crate::generics"}, "must end with ::"},
		{"tag overlap", []string{"generate", "--input", "s.yaml", "--include-tags", "a", "--exclude-tags", "a"}, "overlap"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := newTestRoot(tc.args...)
			if !errors.Is(err, ErrUsage) {
				t.Fatalf("expected usage error, got %v", err)
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected %q in %v", tc.want, err)
			}
		})
	}
}

func TestDeriveCrateDir(t *testing.T) {
	t.Parallel()
	cases := map[string]string{
		"Pet Store API":   "pet-store-api",
		"  v1.Users/Auth": "v1-users-auth",
		"":                "api-models",
		"!!!":             "api-models",
	}
	for in, want := range cases {
		if got := deriveCrateDir(in); got != want {
			t.Errorf("deriveCrateDir(%q): want %q got %q", in, want, got)
		}
	}
}

func equalStringSlices(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
