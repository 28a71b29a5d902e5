package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/agentx-labs/unitcore/internal/manifest"
)

var packFiles []string

func init() {
	packCmd.Flags().StringArrayVar(&packFiles, "add", nil, "Extra file to store in the archive, as archive-path=file")
	rootCmd.AddCommand(packCmd)
}

var packCmd = &cobra.Command{
	Use:   "pack <unit.yaml> <archive>",
	Short: "Build a unit archive from a descriptor",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		desc, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("reading descriptor: %w", err)
		}

		extra := make(map[string][]byte, len(packFiles))
		for _, spec := range packFiles {
			name, file, ok := strings.Cut(spec, "=")
			if !ok || name == "" || file == "" {
				return fmt.Errorf("--add %q: expected archive-path=file", spec)
			}
			data, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("--add %s: %w", name, err)
			}
			extra[filepath.ToSlash(name)] = data
		}

		if err := manifest.Pack(args[1], desc, extra); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Packed %s\n", args[1])
		return nil
	},
}

func existingPaths(paths []string) []string {
	var out []string
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			out = append(out, p)
		}
	}
	return out
}
