//go:build !windows

// Copyright 2025, Command Line Inc.
// SPDX-License-Identifier: Apache-2.0

package sigutil

import (
	"io"
	"os"
	"os/signal"
	"runtime/pprof"
	"syscall"

	"github.com/wavetermdev/pickle/pkg/panichandler"
)

// InstallSIGUSR1Handler dumps every goroutine stack to w on SIGUSR1 (a stuck app loop shows up
// there).
func InstallSIGUSR1Handler(w io.Writer) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGUSR1)
	go func() {
		defer func() {
			panichandler.PanicHandler("InstallSIGUSR1Handler", recover())
		}()
		for range sigCh {
			pprof.Lookup("goroutine").WriteTo(w, 2)
		}
	}()
}
