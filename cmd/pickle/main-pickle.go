// Copyright 2025, Command Line Inc.
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/wavetermdev/pickle/pkg/app"
	"github.com/wavetermdev/pickle/pkg/demo"
	"github.com/wavetermdev/pickle/pkg/dom"
	"github.com/wavetermdev/pickle/pkg/pconfig"
	"github.com/wavetermdev/pickle/pkg/pstore"
)

// these are set at build time
var PickleVersion = "0.0.0"
var BuildTime = "0"

var configPathArg string
var envFileArg string
var verboseArg bool

var rootCmd = &cobra.Command{
	Use:          "pickle",
	Short:        "pickle - component tree and virtual DOM live view",
	Long:         `pickle renders a component tree into a server-side document and serves it as a live view.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		log.SetFlags(log.LstdFlags | log.Lmicroseconds)
		log.SetPrefix("[pickle] ")
		if !verboseArg && cmd.Name() != "serve" {
			log.SetOutput(io.Discard)
		}
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print pickle version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("v%s (%s)\n", PickleVersion, BuildTime)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPathArg, "config", "c", pconfig.DefaultConfigPath, "config file")
	rootCmd.PersistentFlags().StringVar(&envFileArg, "env", pconfig.DefaultEnvFile, "env file with PICKLE_* overrides")
	rootCmd.PersistentFlags().BoolVarP(&verboseArg, "verbose", "v", false, "log to stderr")
	rootCmd.AddCommand(versionCmd)
}

func loadOpts() pconfig.LoadOpts {
	return pconfig.LoadOpts{ConfigPath: configPathArg, EnvFile: envFileArg}
}

func openBackend(ctx context.Context, config *pconfig.Config) (pstore.Backend, error) {
	storage := config.Storage
	if storage.Backend == pconfig.StorageBackend_Memory {
		return pstore.MakeMemBackend(), nil
	}
	if err := os.MkdirAll(filepath.Dir(storage.Path), 0755); err != nil {
		return nil, fmt.Errorf("creating storage dir: %w", err)
	}
	if storage.Backend == pconfig.StorageBackend_Sqlite {
		return pstore.OpenSqliteBackend(ctx, storage.Path)
	}
	return pstore.OpenBoltBackend(storage.Path)
}

func appOpts(config *pconfig.Config, backend pstore.Backend) *app.AppOpts {
	return &app.AppOpts{
		RenderDelay:    config.RenderDelay(),
		TimeTravel:     config.TimeTravel,
		HistoryLimit:   config.HistoryLimit,
		StorageBackend: backend,
		StorageKey:     config.Storage.Key,
		OnError: func(err error) {
			log.Printf("[app] error: %v\n", err)
		},
	}
}

// startDemo mounts a todo list (seeded with items) into a fresh document.
func startDemo(title string, items []string, opts *app.AppOpts) (*app.App, error) {
	doc := dom.MakeDocument()
	container := doc.CreateElement("main")
	doc.Body().AppendChild(container)
	todos := demo.MakeTodoApp(title)
	a, err := app.MakeApp(todos, container, opts)
	if err != nil {
		return nil, err
	}
	a.Sync(func() {
		root := a.Root().(*demo.TodoApp)
		for _, item := range items {
			root.Add(item)
		}
	})
	a.Flush()
	return a, nil
}

func closeApp(a *app.App) {
	ctx, cancelFn := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancelFn()
	if err := a.Close(ctx); err != nil {
		log.Printf("error closing app: %v\n", err)
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
