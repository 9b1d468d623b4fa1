package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/a2f0/tearleads-securedb/internal/config"
	"github.com/a2f0/tearleads-securedb/internal/keyring"
)

func newKeygenCommand(out io.Writer, configPath *string) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate the database key file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if cfg.Database.SkipEncryption {
				return errors.New("keygen: database is configured with skip_encryption")
			}

			if !force {
				if _, err := os.Stat(cfg.Database.KeyFile); err == nil {
					return fmt.Errorf("keygen: key file %s already exists (use --force to replace)", cfg.Database.KeyFile)
				}
			}
			if err := os.MkdirAll(filepath.Dir(cfg.Database.KeyFile), 0o700); err != nil {
				return fmt.Errorf("create key dir: %w", err)
			}

			key, err := keyring.GenerateKey()
			if err != nil {
				return err
			}
			if err := keyring.NewFileProvider(cfg.Database.KeyFile).Write(key); err != nil {
				return err
			}
			_, err = fmt.Fprintf(out, "key written to %s\n", cfg.Database.KeyFile)
			return err
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Replace an existing key file")
	return cmd
}

func newRekeyCommand(out io.Writer, configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rekey",
		Short: "Rotate the database encryption key",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := openRuntime(ctx, cmd.ErrOrStderr(), *configPath)
			if err != nil {
				return err
			}
			defer func() { _ = rt.Close() }()

			if rt.keys == nil {
				_, err = fmt.Fprintln(out, "database is unencrypted; nothing to rekey")
				return err
			}

			newKey, err := keyring.GenerateKey()
			if err != nil {
				return err
			}
			if err := rt.adapter.Rekey(ctx, newKey); err != nil {
				return err
			}
			if err := rt.keys.Write(newKey); err != nil {
				return fmt.Errorf("container rekeyed but key file not updated: %w", err)
			}
			_, err = fmt.Fprintln(out, "rekey complete")
			return err
		},
	}
	return cmd
}
