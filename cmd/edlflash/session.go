package main

import (
	"context"
	"fmt"

	"github.com/edlkit/edl"
	"github.com/edlkit/edl/internal/config"
	"github.com/edlkit/edl/internal/keystore"
	"github.com/edlkit/edl/internal/logging"
)

func (f *rootFlags) family_() edl.ChipFamily {
	if f.family == "mediatek" || f.family == "mtk" {
		return edl.FamilyMediaTek
	}
	return edl.FamilyQualcomm
}

func (f *rootFlags) storageKind() (edl.StorageKind, error) {
	switch f.storage {
	case "ufs":
		return edl.StorageUFS, nil
	case "emmc":
		return edl.StorageEMMC, nil
	case "nand":
		return edl.StorageNAND, nil
	default:
		return 0, fmt.Errorf("unknown storage kind %q (want ufs|emmc|nand)", f.storage)
	}
}

// openSession builds a Logger and Session from the persistent flags.
// Every subcommand that talks to a device funnels through this so
// --port/--baud/--no-protect/--config-dir behave identically everywhere.
func (f *rootFlags) openSession(ctx context.Context) (*edl.Session, error) {
	if f.configDir != "" {
		config.SetConfigDir(f.configDir)
	}

	logCfg := logging.DefaultConfig()
	if f.verbose {
		logCfg.Level = logging.LevelDebug
	}
	logger := logging.NewLogger(logCfg)

	opts := edl.SessionOptions{
		Family:   f.family_(),
		PortName: f.port,
		Baud:     f.baud,
		Logger:   logger,
	}
	if f.noProtect {
		protect := false
		opts.ProtectSensitive = &protect
	}
	if f.keyTable != "" {
		ks, err := keystore.LoadFile(f.keyTable)
		if err != nil {
			return nil, fmt.Errorf("loading key table: %w", err)
		}
		opts.KeyStore = ks
	}

	return edl.OpenSession(ctx, opts)
}

// loadKeyStore loads the --key-table file, or returns nil (no keys
// configured) when the flag is empty. Kept separate from openSession
// since it is only needed by upload-loader's auth strategies, not by the
// Session itself.
func (f *rootFlags) loadKeyStore() (keystore.KeyStore, error) {
	if f.keyTable == "" {
		return nil, nil
	}
	ks, err := keystore.LoadFile(f.keyTable)
	if err != nil {
		return nil, fmt.Errorf("loading key table: %w", err)
	}
	return ks, nil
}
