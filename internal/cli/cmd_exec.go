package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

func newExecCommand(out io.Writer, configPath *string) *cobra.Command {
	var params []string

	cmd := &cobra.Command{
		Use:   "exec <sql>",
		Short: "Execute a single SQL statement",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := openRuntime(ctx, cmd.ErrOrStderr(), *configPath)
			if err != nil {
				return err
			}
			defer func() { _ = rt.Close() }()

			values := make([]any, len(params))
			for i, p := range params {
				values[i] = p
			}

			res, err := rt.adapter.Execute(ctx, args[0], values...)
			if err != nil {
				return err
			}

			if len(res.Rows) > 0 {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(res.Rows)
			}
			_, err = fmt.Fprintf(out, "changes=%d last_insert_rowid=%d\n", res.Changes, res.LastInsertRowID)
			return err
		},
	}

	cmd.Flags().StringArrayVar(&params, "param", nil, "Positional statement parameter (repeatable)")
	return cmd
}
