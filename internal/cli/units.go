package cli

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/agentx-labs/unitcore/internal/host"
)

var (
	statusJSON     bool
	disableCascade bool
)

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Output in JSON format")
	disableCmd.Flags().BoolVar(&disableCascade, "cascade", false, "Also disable enabled units that depend on the named ones")
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(enableCmd)
	rootCmd.AddCommand(disableCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "List units and their state",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := bootHost(cmd, host.Options{})
		if err != nil {
			return err
		}
		defer h.Close()

		units := h.Units()
		if statusJSON {
			data, err := json.MarshalIndent(units, "", "  ")
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "UNIT\tVERSION\tSTATE\tFLAGS\tPROBLEMS")
		for _, u := range units {
			version := u.Version
			if version == "" {
				version = "-"
			}
			state := "disabled"
			if u.Enabled {
				state = "enabled"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", u.ID, version, state, flags(u), strings.Join(u.Problems, "; "))
		}
		return w.Flush()
	},
}

func flags(u host.UnitStatus) string {
	var f []string
	if u.Fixed {
		f = append(f, "fixed")
	}
	if u.Autoload {
		f = append(f, "autoload")
	}
	if u.Eager {
		f = append(f, "eager")
	}
	if u.Reloadable {
		f = append(f, "reloadable")
	}
	if u.StartLevel > 0 {
		f = append(f, fmt.Sprintf("level=%d", u.StartLevel))
	}
	if len(f) == 0 {
		return "-"
	}
	return strings.Join(f, ",")
}

var enableCmd = &cobra.Command{
	Use:   "enable <unit>...",
	Short: "Enable units and everything they need",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := bootHost(cmd, host.Options{})
		if err != nil {
			return err
		}
		defer h.Close()

		changed, err := h.Enable(args...)
		if err != nil {
			return err
		}
		report(cmd, "Enabled", changed)
		return nil
	},
}

var disableCmd = &cobra.Command{
	Use:   "disable <unit>...",
	Short: "Disable units",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := bootHost(cmd, host.Options{})
		if err != nil {
			return err
		}
		defer h.Close()

		changed, err := h.Disable(disableCascade, args...)
		if err != nil {
			return err
		}
		report(cmd, "Disabled", changed)
		return nil
	},
}

func report(cmd *cobra.Command, verb string, ids []string) {
	if len(ids) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "Nothing to do.")
		return
	}
	for _, id := range ids {
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", verb, id)
	}
}
