// Copyright 2025, Command Line Inc.
// SPDX-License-Identifier: Apache-2.0

// Package webcmd defines the messages a live view client sends over its websocket.
package webcmd

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
	"github.com/wavetermdev/pickle/pkg/dom"
)

const (
	WSCommand_Event = "event"
	WSCommand_Undo  = "undo"
	WSCommand_Redo  = "redo"
	WSCommand_Sync  = "sync"
)

type WSCommandType interface {
	GetWSCommand() string
}

// EventWSCommand delivers a DOM event to the node with the given data-pid.
type EventWSCommand struct {
	WSCommand string    `json:"wscommand"`
	Pid       int64     `json:"pid"`
	Event     dom.Event `json:"event"`
}

func (cmd *EventWSCommand) GetWSCommand() string {
	return cmd.WSCommand
}

// TravelWSCommand moves through the time travel history (undo/redo).
type TravelWSCommand struct {
	WSCommand string `json:"wscommand"`
}

func (cmd *TravelWSCommand) GetWSCommand() string {
	return cmd.WSCommand
}

// SyncWSCommand asks for a full render of the current document.
type SyncWSCommand struct {
	WSCommand string `json:"wscommand"`
}

func (cmd *SyncWSCommand) GetWSCommand() string {
	return cmd.WSCommand
}

func decode(cmdMap map[string]any, rtn any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		Result:           rtn,
	})
	if err != nil {
		return err
	}
	return decoder.Decode(cmdMap)
}

func ParseWSCommandMap(cmdMap map[string]any) (WSCommandType, error) {
	cmdType, ok := cmdMap["wscommand"].(string)
	if !ok {
		return nil, fmt.Errorf("no wscommand field in command map")
	}
	switch cmdType {
	case WSCommand_Event:
		var cmd EventWSCommand
		if err := decode(cmdMap, &cmd); err != nil {
			return nil, fmt.Errorf("error decoding EventWSCommand: %w", err)
		}
		if cmd.Event.Type == "" {
			return nil, fmt.Errorf("event command without an event type")
		}
		return &cmd, nil
	case WSCommand_Undo, WSCommand_Redo:
		var cmd TravelWSCommand
		if err := decode(cmdMap, &cmd); err != nil {
			return nil, fmt.Errorf("error decoding TravelWSCommand: %w", err)
		}
		return &cmd, nil
	case WSCommand_Sync:
		return &SyncWSCommand{WSCommand: cmdType}, nil
	default:
		return nil, fmt.Errorf("unknown wscommand type %q", cmdType)
	}
}
