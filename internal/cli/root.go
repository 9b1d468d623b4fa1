// Package cli wires the adapter, engine loader and keyring into the
// securedb command line host.
package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/a2f0/tearleads-securedb/internal/version"
)

type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
}

func NewRootCommand(out io.Writer, build BuildInfo) *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:           "securedb",
		Short:         "Local encrypted database adapter CLI",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetOut(out)
	cmd.SetErr(out)
	cmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to the TOML config file")

	cmd.AddCommand(newVersionCommand(out, build))
	cmd.AddCommand(newKeygenCommand(out, &configPath))
	cmd.AddCommand(newExecCommand(out, &configPath))
	cmd.AddCommand(newExportCommand(out, &configPath))
	cmd.AddCommand(newImportCommand(out, &configPath))
	cmd.AddCommand(newRekeyCommand(out, &configPath))
	cmd.InitDefaultCompletionCmd()
	return cmd
}

func newVersionCommand(out io.Writer, build BuildInfo) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintf(out, "version=%s commit=%s build_time=%s\n",
				build.Version, build.Commit, build.BuildTime)
			return err
		},
	}
}

// DefaultBuildInfo reflects the link-time version metadata.
func DefaultBuildInfo() BuildInfo {
	return BuildInfo{
		Version:   version.Version,
		Commit:    version.Commit,
		BuildTime: version.BuildTime,
	}
}
