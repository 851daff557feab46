// Copyright 2025, Command Line Inc.
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/wavetermdev/pickle/pkg/pconfig"
	"github.com/wavetermdev/pickle/pkg/pstore"
)

var stateClearArg bool
var stateAutosaveArg string

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Show (or clear) the persisted demo state",
	Args:  cobra.NoArgs,
	RunE:  stateRun,
}

func init() {
	stateCmd.Flags().BoolVar(&stateClearArg, "clear", false, "remove the stored state")
	stateCmd.Flags().StringVar(&stateAutosaveArg, "autosave", "", "set the autosave flag (on|off)")
	rootCmd.AddCommand(stateCmd)
}

func stateRun(cmd *cobra.Command, args []string) error {
	config, err := pconfig.Load(loadOpts())
	if err != nil {
		return err
	}
	if config.Storage.Backend == pconfig.StorageBackend_Memory {
		return fmt.Errorf("storage backend is %q, nothing is persisted", config.Storage.Backend)
	}
	ctx, cancelFn := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelFn()
	backend, err := openBackend(ctx, config)
	if err != nil {
		return err
	}
	defer backend.Close()
	var stored []byte
	storage := pstore.MakeStorage(backend, config.Storage.Key, nil, func(data []byte) error {
		stored = data
		return nil
	})
	switch stateAutosaveArg {
	case "":
	case "on", "off":
		if err := storage.SetAutosave(ctx, stateAutosaveArg == "on"); err != nil {
			return err
		}
	default:
		return fmt.Errorf("--autosave must be on or off")
	}
	if stateClearArg {
		if err := storage.Clear(ctx); err != nil {
			return err
		}
	}
	autosave, err := storage.Autosave(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("backend:%s key:%s autosave:%v\n", backend.Name(), storage.Key(), autosave)
	loaded, err := storage.Load(ctx, pstore.ModeForce)
	if err != nil {
		return err
	}
	if !loaded {
		fmt.Printf("no stored state\n")
		return nil
	}
	items, err := stateItems(stored)
	if err != nil {
		return err
	}
	fmt.Printf("%d items\n", len(items))
	for _, item := range items {
		fmt.Printf("  %s\n", item)
	}
	return nil
}
