// Copyright 2025, Command Line Inc.
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/wavetermdev/pickle/pkg/pconfig"
)

var configSchemaArg bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective config (defaults, file and environment merged)",
	Args:  cobra.NoArgs,
	RunE:  configRun,
}

func init() {
	configCmd.Flags().BoolVar(&configSchemaArg, "schema", false, "print the config file JSON schema instead")
	rootCmd.AddCommand(configCmd)
}

func configRun(cmd *cobra.Command, args []string) error {
	var barr []byte
	var err error
	if configSchemaArg {
		barr, err = pconfig.Schema()
	} else {
		var config *pconfig.Config
		config, err = pconfig.Load(loadOpts())
		if err == nil {
			barr, err = config.Yaml()
		}
	}
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(barr)
	return err
}
