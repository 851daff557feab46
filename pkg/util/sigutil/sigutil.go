// Copyright 2025, Command Line Inc.
// SPDX-License-Identifier: Apache-2.0

package sigutil

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/wavetermdev/pickle/pkg/panichandler"
)

// ShutdownContext returns a context that is cancelled on the first SIGHUP, SIGTERM or SIGINT.
func ShutdownContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancelFn := context.WithCancel(parent)
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGHUP, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		defer func() {
			panichandler.PanicHandler("ShutdownContext", recover())
		}()
		defer signal.Stop(sigCh)
		select {
		case sig := <-sigCh:
			log.Printf("got signal %v\n", sig)
			cancelFn()
		case <-ctx.Done():
		}
	}()
	return ctx, cancelFn
}
