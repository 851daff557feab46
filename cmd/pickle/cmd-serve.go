// Copyright 2025, Command Line Inc.
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/skratchdot/open-golang/open"
	"github.com/spf13/cobra"
	"github.com/wavetermdev/pickle/pkg/app"
	"github.com/wavetermdev/pickle/pkg/pconfig"
	"github.com/wavetermdev/pickle/pkg/pstore"
	"github.com/wavetermdev/pickle/pkg/util/sigutil"
	"github.com/wavetermdev/pickle/pkg/web"
)

var serveListenArg string
var serveTitleArg string
var serveOpenArg bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the todo demo as a live view",
	Args:  cobra.NoArgs,
	RunE:  serveRun,
}

func init() {
	serveCmd.Flags().StringVarP(&serveListenArg, "listen", "l", "", "listen address (overrides config)")
	serveCmd.Flags().StringVar(&serveTitleArg, "title", "todos", "page and list title")
	serveCmd.Flags().BoolVar(&serveOpenArg, "open", false, "open the live view in a browser")
	rootCmd.AddCommand(serveCmd)
}

func loadServeConfig() (*pconfig.Config, *pconfig.Watcher) {
	watcher, err := pconfig.MakeWatcher(loadOpts())
	if err == nil {
		return watcher.Config(), watcher
	}
	log.Printf("config watcher unavailable: %v\n", err)
	config, err := pconfig.Load(loadOpts())
	if err != nil {
		log.Printf("error loading config, using defaults: %v\n", err)
		config = pconfig.Default()
	}
	return config, nil
}

func applyAutosave(ctx context.Context, a *app.App, on bool) {
	a.Dispatch(func() {
		storage := a.Storage()
		if storage == nil {
			return
		}
		current, err := storage.Autosave(ctx)
		if err != nil || current == on {
			return
		}
		if err := storage.SetAutosave(ctx, on); err != nil {
			log.Printf("error setting autosave: %v\n", err)
		}
	})
}

func serveRun(cmd *cobra.Command, args []string) error {
	ctx, cancelFn := sigutil.ShutdownContext(context.Background())
	defer cancelFn()
	sigutil.InstallSIGUSR1Handler(os.Stderr)
	config, watcher := loadServeConfig()
	if serveListenArg != "" {
		config.Listen = serveListenArg
	}
	backend, err := openBackend(ctx, config)
	if err != nil {
		return err
	}
	defer backend.Close()
	a, err := startDemo(serveTitleArg, nil, appOpts(config, backend))
	if err != nil {
		return err
	}
	defer closeApp(a)
	applyAutosave(ctx, a, config.Autosave)
	if watcher != nil {
		defer watcher.Close()
		unsubscribe := watcher.Subscribe(func(newConfig *pconfig.Config) {
			log.Printf("config reloaded, autosave:%v\n", newConfig.Autosave)
			applyAutosave(ctx, a, newConfig.Autosave)
		})
		defer unsubscribe()
		watcher.Start()
	}
	server, err := web.MakeServer(a, web.ServerOpts{Title: serveTitleArg, Metrics: config.Metrics})
	if err != nil {
		return err
	}
	defer server.Close()
	listener, err := web.MakeTCPListener(config.Listen)
	if err != nil {
		return err
	}
	log.Printf("serving %s (storage:%s key:%s)\n", a.AppId, backendName(backend), config.Storage.Key)
	if serveOpenArg {
		url := "http://" + listener.Addr().String() + "/"
		if err := open.Run(url); err != nil {
			log.Printf("cannot open %s: %v\n", url, err)
		}
	}
	if err := server.Serve(ctx, listener); err != nil {
		return fmt.Errorf("serving: %w", err)
	}
	log.Printf("shutting down\n")
	return nil
}

func backendName(backend pstore.Backend) string {
	if backend == nil {
		return "none"
	}
	return backend.Name()
}
