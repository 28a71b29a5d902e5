package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/agentx-labs/unitcore/internal/host"
)

var delegateParent string

func init() {
	delegateCmd.Flags().StringVar(&delegateParent, "parent", "", "Unit to delegate to (defaults to the host loader)")
	rootCmd.AddCommand(classpathCmd)
	rootCmd.AddCommand(delegateCmd)
}

var classpathCmd = &cobra.Command{
	Use:   "classpath <unit>",
	Short: "Print a unit's effective classpath",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := bootHost(cmd, host.Options{})
		if err != nil {
			return err
		}
		defer h.Close()

		cp, err := h.Classpath(args[0])
		if err != nil {
			return err
		}
		if len(cp) == 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "%s is not enabled.\n", args[0])
			return nil
		}
		for _, e := range cp {
			if !e.Restricted {
				fmt.Fprintln(cmd.OutOrStdout(), e.Path)
				continue
			}
			pkgs := make([]string, len(e.Packages))
			for i, p := range e.Packages {
				pkgs[i] = p.String()
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s [%s]\n", e.Path, strings.Join(pkgs, ", "))
		}
		return nil
	},
}

var delegateCmd = &cobra.Command{
	Use:   "delegate <unit> <resource>",
	Short: "Check whether a unit may load a resource through delegation",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := bootHost(cmd, host.Options{})
		if err != nil {
			return err
		}
		defer h.Close()

		ok, err := h.MayDelegate(args[0], delegateParent, args[1])
		if err != nil {
			return err
		}
		verdict := "refused"
		if ok {
			verdict = "allowed"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", args[1], verdict)
		return nil
	},
}
