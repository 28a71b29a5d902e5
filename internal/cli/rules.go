package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agentx-labs/unitcore/internal/manifest"
	"github.com/agentx-labs/unitcore/internal/transform"
)

var refineRules []string

func init() {
	refineCmd.Flags().StringSliceVar(&refineRules, "rules", nil, "Rule files or directories (defaults to the configured rules)")
	rulesCmd.AddCommand(rulesValidateCmd)
	rootCmd.AddCommand(rulesCmd)
	rootCmd.AddCommand(refineCmd)
}

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Inspect dependency transformation rules",
}

var rulesValidateCmd = &cobra.Command{
	Use:   "validate [path...]",
	Short: "Validate rule files or directories",
	Long:  `Validate rule sources. Without arguments the configured rule sources are checked.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		paths := args
		if len(paths) == 0 {
			s, err := loadSettings()
			if err != nil {
				return err
			}
			paths = s.Rules
		}

		failed := 0
		for _, p := range paths {
			e, err := transform.Load(nil, p)
			if err != nil {
				failed++
				fmt.Fprintf(cmd.OutOrStdout(), "[FAIL] %v\n", err)
				continue
			}
			fmt.Fprintf(cmd.OutOrStdout(), "[ OK ] %s (%d groups)\n", p, e.Groups())
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d rule sources invalid", failed, len(paths))
		}
		return nil
	},
}

var refineCmd = &cobra.Command{
	Use:   "refine <descriptor>",
	Short: "Show how the rules rewrite a unit's dependencies",
	Long: `Read a unit descriptor (unit.yaml or a unit archive), apply the transformation
rules to its declared dependencies and print the resulting changes.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		paths := refineRules
		if len(paths) == 0 {
			s, err := loadSettings()
			if err != nil {
				return err
			}
			paths = s.Rules
		}
		engine, err := transform.Load(newLogger(), existingPaths(paths)...)
		if err != nil {
			return err
		}

		d, err := manifest.Load(args[0])
		if err != nil {
			return err
		}
		deps, err := d.Deps()
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		report := engine.Refine(d.ID, deps)
		if report.Empty() {
			fmt.Fprintf(out, "%s: no changes\n", d.ID)
			return nil
		}
		for _, m := range report.Messages {
			fmt.Fprintf(out, "%s: %s\n", d.ID, m)
		}
		for _, dep := range report.Added {
			fmt.Fprintf(out, "  + %s: %s\n", dep.Kind, dep)
		}
		for _, dep := range report.Removed {
			fmt.Fprintf(out, "  - %s: %s\n", dep.Kind, dep)
		}
		return nil
	},
}
