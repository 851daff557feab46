// Copyright 2025, Command Line Inc.
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/spf13/cobra"
	"github.com/wavetermdev/pickle/pkg/app"
	"github.com/wavetermdev/pickle/pkg/demo"
	"github.com/wavetermdev/pickle/pkg/dom"
	"github.com/wavetermdev/pickle/pkg/serial"
)

var historyGotoArg int
var historySeekArg string

var historyCmd = &cobra.Command{
	Use:   "history [item...]",
	Short: "Add items to the todo demo one by one and show the recorded time travel history",
	RunE:  historyRun,
}

func init() {
	historyCmd.Flags().IntVar(&historyGotoArg, "goto", -1, "travel to this state and render it")
	historyCmd.Flags().StringVar(&historySeekArg, "seek", "", "travel to the last state holding an item with this text")
	rootCmd.AddCommand(historyCmd)
}

func stateItems(state []byte) ([]string, error) {
	todos, err := serial.UnmarshalAs[*demo.TodoApp](serial.DefaultRegistry, state)
	if err != nil {
		return nil, err
	}
	var rtn []string
	for _, item := range todos.Items {
		rtn = append(rtn, item.Text)
	}
	return rtn, nil
}

func historyRun(cmd *cobra.Command, args []string) error {
	a, err := startDemo("history", args, &app.AppOpts{TimeTravel: true})
	if err != nil {
		return err
	}
	defer closeApp(a)
	var travelled bool
	var travelErr error
	err = a.Sync(func() {
		history := a.Time()
		switch {
		case historySeekArg != "":
			travelled = history.Seek(func(state []byte) bool {
				items, err := stateItems(state)
				return err == nil && slices.Contains(items, historySeekArg)
			})
			if !travelled {
				travelErr = fmt.Errorf("no state holds %q", historySeekArg)
			}
		case historyGotoArg >= 0:
			travelled = history.Goto(historyGotoArg)
			if !travelled {
				travelErr = fmt.Errorf("no state %d (history has %d)", historyGotoArg, history.Len())
			}
		}
		for idx, state := range history.States() {
			marker := " "
			if idx == history.Cursor() {
				marker = "*"
			}
			items, err := stateItems(state)
			if err != nil {
				fmt.Printf("%s %3d  error: %v\n", marker, idx, err)
				continue
			}
			fmt.Printf("%s %3d  [%s]\n", marker, idx, strings.Join(items, ", "))
		}
	})
	if err != nil {
		return err
	}
	if travelErr != nil {
		return travelErr
	}
	if !travelled {
		return nil
	}
	a.Flush()
	return a.Sync(func() {
		a.Container().Render(os.Stdout, &dom.RenderOpts{Inner: true})
		fmt.Println()
	})
}
