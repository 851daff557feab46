// Copyright 2025, Command Line Inc.
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/wavetermdev/pickle/pkg/app"
	"github.com/wavetermdev/pickle/pkg/dom"
)

var renderIdsArg bool
var renderTitleArg string

var renderCmd = &cobra.Command{
	Use:   "render [item...]",
	Short: "Render the todo demo (with the given items) as HTML",
	RunE:  renderRun,
}

func init() {
	renderCmd.Flags().BoolVar(&renderIdsArg, "ids", false, "include "+dom.IdAttrName+" node ids")
	renderCmd.Flags().StringVar(&renderTitleArg, "title", "todos", "list title")
	rootCmd.AddCommand(renderCmd)
}

func renderRun(cmd *cobra.Command, args []string) error {
	a, err := startDemo(renderTitleArg, args, &app.AppOpts{})
	if err != nil {
		return err
	}
	defer closeApp(a)
	var renderErr error
	err = a.Sync(func() {
		renderErr = a.Container().Render(os.Stdout, &dom.RenderOpts{IncludeIds: renderIdsArg, Inner: true})
	})
	if err != nil {
		return err
	}
	fmt.Println()
	return renderErr
}
