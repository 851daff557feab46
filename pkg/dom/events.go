// Copyright 2025, Command Line Inc.
// SPDX-License-Identifier: Apache-2.0

package dom

import "strings"

type EventHandler func(event *Event)

type Event struct {
	Type          string         `json:"type"` // "click", "input", ... (no "on" prefix)
	Value         string         `json:"value,omitempty"`
	Checked       bool           `json:"checked,omitempty"`
	Key           string         `json:"key,omitempty"`
	Data          map[string]any `json:"data,omitempty"`
	Target        *Node          `json:"-"`
	CurrentTarget *Node          `json:"-"`

	stopped bool
}

func (e *Event) StopPropagation() {
	e.stopped = true
}

// HandlerPropName maps an event type to the property that stores its handler ("click" -> "onclick").
func HandlerPropName(eventType string) string {
	return "on" + strings.ToLower(eventType)
}

// SetHandler assigns an event handler property (e.g. "onclick").  A nil handler clears it.
func (n *Node) SetHandler(name string, handler EventHandler) {
	name = strings.ToLower(name)
	if handler == nil {
		delete(n.handlers, name)
		return
	}
	if n.handlers == nil {
		n.handlers = make(map[string]EventHandler)
	}
	n.handlers[name] = handler
}

func (n *Node) Handler(name string) EventHandler {
	return n.handlers[strings.ToLower(name)]
}

func (n *Node) HasHandlers() bool {
	return len(n.handlers) > 0
}

// Dispatch delivers the event to n and then bubbles it up through the ancestors until a
// handler calls StopPropagation.  Input and change events update the live value/checked
// properties first, the way a browser does before handlers observe them.
// Returns true if any handler ran.
func (n *Node) Dispatch(event *Event) bool {
	if event == nil {
		return false
	}
	event.Target = n
	switch event.Type {
	case "input", "change":
		n.value = event.Value
		if n.h.Data == "input" {
			if t, _ := n.GetAttribute("type"); t == "checkbox" || t == "radio" {
				n.checked = event.Checked
			}
		}
	}
	handled := false
	propName := HandlerPropName(event.Type)
	for cur := n; cur != nil; cur = cur.Parent() {
		handler := cur.handlers[propName]
		if handler == nil {
			continue
		}
		event.CurrentTarget = cur
		handler(event)
		handled = true
		if event.stopped {
			break
		}
	}
	return handled
}
