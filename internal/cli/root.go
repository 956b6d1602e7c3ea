package cli

import (
	"context"
	"fmt"
	"os"

	charmlog "github.com/charmbracelet/log"
	"github.com/spf13/cobra"
)

var (
	version string // semantic version (e.g., "v1.2.3")
	commit  string // git commit SHA
	date    string // build timestamp
)

// SetVersion sets the version information displayed by --version.
// This is typically called by the main package during initialization
// with values injected via ldflags at build time.
func SetVersion(v, c, d string) {
	version = v
	commit = c
	date = d
}

// Execute runs the memebox CLI and returns an error if any command
// fails. This is the main entry point for the CLI application.
//
// The function sets up the root command with all subcommands (serve,
// render, templates, cache), configures logging based on the --verbose
// flag, and executes the command tree.
//
// Logging:
//   - Default: info level (logs to stderr)
//   - With --verbose (-v): debug level
//
// The logger is attached to the context and accessible to all commands
// via loggerFromContext.
func Execute(ctx context.Context) error {
	var verbose bool

	root := &cobra.Command{
		Use:          "memebox",
		Short:        "Memebox renders memes from URL-encoded captions",
		Long:         `Memebox is a meme rendering service: it turns a template name and URL-encoded caption text into PNG, JPEG, or animated GIF images, with caching and a small HTTP API.`,
		Version:      version,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := charmlog.InfoLevel
			if verbose {
				level = charmlog.DebugLevel
			}
			ctx := withLogger(cmd.Context(), newLogger(os.Stderr, level))
			cmd.SetContext(ctx)
		},
	}

	root.SetVersionTemplate(fmt.Sprintf("memebox %s\ncommit: %s\nbuilt: %s\n", version, commit, date))
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")

	root.AddCommand(newServeCmd())
	root.AddCommand(newRenderCmd())
	root.AddCommand(newTemplatesCmd())
	root.AddCommand(newCacheCmd())

	return root.ExecuteContext(ctx)
}
