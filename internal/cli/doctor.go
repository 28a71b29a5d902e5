package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agentx-labs/unitcore/internal/branding"
	"github.com/agentx-labs/unitcore/internal/host"
)

var doctorFix bool

func init() {
	doctorCmd.Flags().BoolVar(&doctorFix, "fix", false, "Create missing folders and repair permissions")
	rootCmd.AddCommand(doctorCmd)
}

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Health check for the " + branding.DisplayName() + " layout",
	Long: `Check the status folder, every status record and its unit archive, the rule
sources and the cache folder without booting the units.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := loadSettings()
		if err != nil {
			return err
		}
		rep, err := host.Check(cmd.OutOrStdout(), s, doctorFix)
		if err != nil {
			return err
		}
		if !rep.OK() {
			return fmt.Errorf("%d problems found", rep.Failures)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "\n%d warnings, no failures.\n", rep.Warnings)
		return nil
	},
}
