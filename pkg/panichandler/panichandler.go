// Copyright 2025, Command Line Inc.
// SPDX-License-Identifier: Apache-2.0

package panichandler

import (
	"fmt"
	"log"
	"runtime/debug"
)

// PanicHandler logs a recovered panic with its stack and returns it as an error.
// Returns nil when recoverVal is nil, so it can be called unconditionally from a defer:
//
//	defer func() { panichandler.PanicHandler("render", recover()) }()
func PanicHandler(debugStr string, recoverVal any) error {
	if recoverVal == nil {
		return nil
	}
	log.Printf("[panic] in %s: %v\n", debugStr, recoverVal)
	debug.PrintStack()
	if err, ok := recoverVal.(error); ok {
		return fmt.Errorf("panic in %s: %w", debugStr, err)
	}
	return fmt.Errorf("panic in %s: %v", debugStr, recoverVal)
}

// Call runs fn and converts a panic inside it into an error.
func Call(debugStr string, fn func()) (rtnErr error) {
	defer func() {
		if panicErr := PanicHandler(debugStr, recover()); panicErr != nil {
			rtnErr = panicErr
		}
	}()
	fn()
	return nil
}

// CallRtn is Call for functions with a result.  On panic the zero value is returned.
func CallRtn[T any](debugStr string, fn func() T) (rtn T, rtnErr error) {
	defer func() {
		if panicErr := PanicHandler(debugStr, recover()); panicErr != nil {
			rtnErr = panicErr
		}
	}()
	return fn(), nil
}
