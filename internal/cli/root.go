package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/agentx-labs/unitcore/internal/branding"
	"github.com/agentx-labs/unitcore/internal/config"
	"github.com/agentx-labs/unitcore/internal/host"
)

var (
	buildVersion string
	buildCommit  string
	buildDate    string

	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   branding.CLIName(),
	Short: branding.Description(),
	Long: branding.DisplayName() + ` resolves extension unit dependencies, keeps the status folder and the
live unit graph in sync, and answers classpath and delegation queries.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log debug output to stderr")
}

// Execute runs the root command with build info injected via ldflags.
func Execute(version, commit, date string) error {
	buildVersion = version
	buildCommit = commit
	buildDate = date
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	return err
}

func newLogger() *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func loadSettings() (*config.Settings, error) {
	config.Load()
	s, err := config.Resolve()
	if err != nil {
		return nil, fmt.Errorf("reading configuration: %w", err)
	}
	return s, nil
}

// bootHost boots the configured unit system. The caller closes it.
func bootHost(cmd *cobra.Command, opts host.Options) (*host.Host, error) {
	s, err := loadSettings()
	if err != nil {
		return nil, err
	}
	if opts.Logger == nil {
		opts.Logger = newLogger()
	}
	h, err := host.Boot(cmd.Context(), s, opts)
	if err != nil {
		return nil, fmt.Errorf("booting units: %w", err)
	}
	return h, nil
}
