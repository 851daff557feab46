// Copyright 2025, Command Line Inc.
// SPDX-License-Identifier: Apache-2.0

package vdom

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/wavetermdev/pickle/pkg/vdom/cssparser"
)

// Style is the nested style mapping allowed as the value of the "style" prop.
type Style map[string]string

// String renders the style as attribute text with properties in sorted order.
func (s Style) String() string {
	if len(s) == 0 {
		return ""
	}
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var sb strings.Builder
	for idx, k := range keys {
		if idx > 0 {
			sb.WriteString(" ")
		}
		sb.WriteString(k)
		sb.WriteString(": ")
		sb.WriteString(s[k])
		sb.WriteString(";")
	}
	return sb.String()
}

func ParseStyle(styleText string) (Style, error) {
	m, err := cssparser.MakeParser(styleText).Parse()
	if err != nil {
		return nil, err
	}
	return Style(m), nil
}

// AttrString converts a non-function prop value to its attribute text.  The second return is
// false when the value means "no attribute" (nil or false).
func AttrString(v any) (string, bool) {
	switch val := v.(type) {
	case nil:
		return "", false
	case string:
		return val, true
	case bool:
		if !val {
			return "", false
		}
		return "true", true
	case int:
		return strconv.Itoa(val), true
	case int64:
		return strconv.FormatInt(val, 10), true
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), true
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32), true
	case Style:
		return val.String(), true
	case map[string]string:
		return Style(val).String(), true
	case map[string]any:
		style := make(Style, len(val))
		for k, sv := range val {
			style[k] = fmt.Sprint(sv)
		}
		return style.String(), true
	case fmt.Stringer:
		return val.String(), true
	}
	return fmt.Sprint(v), true
}
