package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

func newExportCommand(out io.Writer, configPath *string) *cobra.Command {
	var (
		outputPath string
		raw        bool
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the database as a JSON backup document",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := openRuntime(ctx, cmd.ErrOrStderr(), *configPath)
			if err != nil {
				return err
			}
			defer func() { _ = rt.Close() }()

			var payload []byte
			if raw {
				payload, err = rt.adapter.ExportRaw(ctx)
			} else {
				var doc string
				doc, err = rt.adapter.ExportAsJSON(ctx)
				payload = []byte(doc)
			}
			if err != nil {
				return err
			}

			if outputPath == "" {
				_, err = out.Write(payload)
				return err
			}
			if err := os.WriteFile(outputPath, payload, 0o600); err != nil {
				return fmt.Errorf("write export: %w", err)
			}
			_, err = fmt.Fprintf(out, "exported %d bytes to %s\n", len(payload), outputPath)
			return err
		},
	}

	cmd.Flags().StringVarP(&outputPath, "out", "o", "", "Write the export to a file instead of stdout")
	cmd.Flags().BoolVar(&raw, "raw", false, "Export the engine-native snapshot instead of the JSON document")
	return cmd
}

func newImportCommand(out io.Writer, configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <backup-file>",
		Short: "Restore the database from a JSON backup document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			payload, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read backup file: %w", err)
			}

			rt, err := openRuntime(ctx, cmd.ErrOrStderr(), *configPath)
			if err != nil {
				return err
			}
			defer func() { _ = rt.Close() }()

			if err := rt.adapter.Import(ctx, payload, nil); err != nil {
				return err
			}
			_, err = fmt.Fprintln(out, "import complete")
			return err
		},
	}
	return cmd
}
