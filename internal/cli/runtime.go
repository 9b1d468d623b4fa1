package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/a2f0/tearleads-securedb/internal/adapter"
	"github.com/a2f0/tearleads-securedb/internal/config"
	"github.com/a2f0/tearleads-securedb/internal/engine"
	"github.com/a2f0/tearleads-securedb/internal/keyring"
	"github.com/a2f0/tearleads-securedb/internal/log"
)

// runtime holds everything a command needs after config load.
type runtime struct {
	cfg     config.Config
	adapter *adapter.Adapter
	keys    *keyring.FileProvider
}

func openRuntime(ctx context.Context, out io.Writer, configPath string) (*runtime, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	logger := log.New(out, cfg.Logging.Level)

	handle, err := engine.NewLoader(cfg.Engine.BundleDir, engine.WithLogger(logger)).Load(ctx)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(cfg.Database.Dir, 0o700); err != nil {
		return nil, fmt.Errorf("create database dir: %w", err)
	}

	rt := &runtime{cfg: cfg}
	adapterCfg := adapter.Config{
		Name:           cfg.Database.Name,
		Dir:            cfg.Database.Dir,
		SkipEncryption: cfg.Database.SkipEncryption,
	}
	if !cfg.Database.SkipEncryption {
		rt.keys = keyring.NewFileProvider(cfg.Database.KeyFile)
		key, err := rt.keys.DatabaseKey()
		if err != nil {
			return nil, err
		}
		adapterCfg.EncryptionKey = key
	}

	rt.adapter = adapter.New(handle.Session(), adapter.WithLogger(logger))
	if err := rt.adapter.Initialize(ctx, adapterCfg); err != nil {
		return nil, err
	}
	return rt, nil
}

func (rt *runtime) Close() error {
	if rt == nil || rt.adapter == nil {
		return nil
	}
	return rt.adapter.Close()
}
