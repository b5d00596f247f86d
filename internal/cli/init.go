package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
)

// InitConfig captures the options for the init command.
type InitConfig struct {
	OutputPath string
	Force      bool
	Verbose    bool
}

const defaultConfigName = "swagger2rs.yaml"

var initRunner = runInit

func newInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Scaffold a sample swagger2rs configuration file",
		Long:  "Scaffold a commented swagger2rs configuration file that documents available options. A .toml --out writes TOML.",
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := cmd.Flags().GetString("out")
			if err != nil {
				return err
			}
			force, err := cmd.Flags().GetBool("force")
			if err != nil {
				return err
			}
			verbose, err := cmd.Flags().GetBool("verbose")
			if err != nil {
				return err
			}
			return initRunner(cmd.Context(), &InitConfig{
				OutputPath: out,
				Force:      force,
				Verbose:    verbose,
			})
		},
	}

	cmd.Flags().String("out", defaultConfigName, "Where to write the sample config file")
	cmd.Flags().Bool("force", false, "Overwrite the target file if it already exists")

	return cmd
}

func runInit(ctx context.Context, cfg *InitConfig) error {
	_ = ctx

	out := strings.TrimSpace(cfg.OutputPath)
	if out == "" {
		out = defaultConfigName
	}
	absPath, err := filepath.Abs(out)
	if err != nil {
		return fmt.Errorf("init: resolve output path: %w", err)
	}

	if st, err := os.Stat(absPath); err == nil && !cfg.Force {
		if st.Mode().IsRegular() {
			return usageErrorf("init: %q already exists (use --force to overwrite)", absPath)
		}
	}

	if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
		return usageErrorf("init: cannot create parent directory: %v", err)
	}

	sample := sampleConfigYAML
	if strings.EqualFold(filepath.Ext(absPath), ".toml") {
		sample = sampleConfigTOML
	}
	content := strings.TrimSpace(sample) + "\n"

	tmp := absPath + ".tmp"
	if err := os.WriteFile(tmp, []byte(content), 0o644); err != nil {
		return usageErrorf("init: cannot write temp file: %v\nHint: choose a different --out or check directory permissions.", err)
	}
	if err := os.Rename(tmp, absPath); err != nil {
		_ = os.Remove(tmp)
		return usageErrorf("init: cannot place file at %s: %v", absPath, err)
	}
	if cfg.Verbose {
		fmt.Fprintf(os.Stdout, "Wrote sample config to %s (%d bytes)\n", absPath, len(content))
		return nil
	}
	fmt.Fprintf(os.Stdout, "Wrote sample config to %s\n", absPath)
	return nil
}

// sampleConfigYAML is a commented example config documenting available options.
const sampleConfigYAML = `# swagger2rs configuration (YAML)
# All fields are optional. Command-line flags override config values.

# Path to the local Swagger/OpenAPI document.
# input: ./openapi.yaml

# Output directory. When omitted, derived from the spec title.
# out: ./src

# Name of the generated models module.
# module: models

# Path prefix used to address the Missing/Present marker types.
# helperPrefix: "crate::generics::"

# Only include operations with these tags (comma-separated or list).
# includeTags: [public,read]

# Exclude operations with these tags (comma-separated or list).
# excludeTags: [internal]

# Only include operations with these HTTP methods.
# methods: [get, post]

# Only include paths matching these regular expressions.
# paths: ["^/pets"]

# Fail on duplicate attribute names and tolerated validation errors.
# strict: false

# Preview planned outputs without writing files.
# dryRun: false

# Overwrite non-empty output directory.
# force: false

# Enable verbose logging.
# verbose: false
`

// sampleConfigTOML mirrors sampleConfigYAML.
const sampleConfigTOML = `# swagger2rs configuration (TOML)
# All fields are optional. Command-line flags override config values.

# input = "./openapi.yaml"
# out = "./src"
# module = "models"
# helperPrefix = "crate::generics::"
# includeTags = ["public", "read"]
# excludeTags = ["internal"]
# methods = ["get", "post"]
# paths = ["^/pets"]
# strict = false
# dryRun = false
# force = false
# verbose = false
`
