// Copyright 2025, Command Line Inc.
// SPDX-License-Identifier: Apache-2.0

package vdom

import (
	"errors"
	"fmt"
	"io"
	"log"
	"strings"

	"github.com/wavetermdev/htmltoken"
)

// can tokenize and bind HTML templates to VDomElems

const ParamPrefix = "#param:"
const BindParamTag = "bindparam"
const fragmentTag = "#fragment"

func appendChildToStack(stack []*VDomElem, child *VDomElem) {
	if child == nil || len(stack) == 0 {
		return
	}
	parent := stack[len(stack)-1]
	parent.Children = append(parent.Children, child)
}

func popElemStack(stack []*VDomElem) []*VDomElem {
	if len(stack) <= 1 {
		return stack
	}
	curElem := stack[len(stack)-1]
	appendChildToStack(stack[:len(stack)-1], curElem)
	return stack[:len(stack)-1]
}

func curElemTag(stack []*VDomElem) string {
	if len(stack) == 0 {
		return ""
	}
	return stack[len(stack)-1].Tag
}

func finalizeStack(stack []*VDomElem) []*VDomElem {
	if len(stack) == 0 {
		return nil
	}
	for len(stack) > 1 {
		stack = popElemStack(stack)
	}
	return stack[0].Children
}

func getAttr(token htmltoken.Token, key string) string {
	for _, attr := range token.Attr {
		if attr.Key == key {
			return attr.Val
		}
	}
	return ""
}

func tokenToElem(token htmltoken.Token, params map[string]any) *VDomElem {
	elem := &VDomElem{Tag: token.Data}
	for _, attr := range token.Attr {
		if attr.Key == "" {
			continue
		}
		var val any = attr.Val
		if strings.HasPrefix(attr.Val, ParamPrefix) {
			paramVal, ok := params[attr.Val[len(ParamPrefix):]]
			if !ok {
				continue
			}
			val = paramVal
		} else if attr.Key == StylePropKey && attr.Val != "" {
			style, err := ParseStyle(attr.Val)
			if err != nil {
				log.Printf("[vdom] bind: bad style on <%s>: %v\n", token.Data, err)
			} else {
				val = style
			}
		}
		if attr.Key == HooksPropKey {
			elem.Hooks = Combine(elem.Hooks, toLifecycle(val))
			continue
		}
		if elem.Props == nil {
			elem.Props = make(map[string]any)
		}
		elem.Props[attr.Key] = val
	}
	return elem
}

func isWsChar(char rune) bool {
	return char == ' ' || char == '\t' || char == '\n' || char == '\r'
}

func isWsByte(char byte) bool {
	return char == ' ' || char == '\t' || char == '\n' || char == '\r'
}

func isFirstCharLt(s string) bool {
	for _, char := range s {
		if isWsChar(char) {
			continue
		}
		return char == '<'
	}
	return false
}

func isLastCharGt(s string) bool {
	for i := len(s) - 1; i >= 0; i-- {
		char := s[i]
		if isWsByte(char) {
			continue
		}
		return char == '>'
	}
	return false
}

func isAllWhitespace(s string) bool {
	for _, char := range s {
		if !isWsChar(char) {
			return false
		}
	}
	return true
}

func trimWhitespaceConditionally(s string) string {
	// Trim leading whitespace if the first non-whitespace character is '<'
	if isAllWhitespace(s) {
		return ""
	}
	if isFirstCharLt(s) {
		s = strings.TrimLeftFunc(s, func(r rune) bool {
			return isWsChar(r)
		})
	}
	// Trim trailing whitespace if the last non-whitespace character is '>'
	if isLastCharGt(s) {
		s = strings.TrimRightFunc(s, func(r rune) bool {
			return isWsChar(r)
		})
	}
	return s
}

func processWhitespace(htmlStr string) string {
	lines := strings.Split(htmlStr, "\n")
	var newLines []string
	for _, line := range lines {
		trimmedLine := trimWhitespaceConditionally(line + "\n")
		if trimmedLine == "" {
			continue
		}
		newLines = append(newLines, trimmedLine)
	}
	return strings.Join(newLines, "")
}

func processTextStr(s string) string {
	if s == "" {
		return ""
	}
	if isAllWhitespace(s) {
		return " "
	}
	return strings.TrimSpace(s)
}

// BindFragment parses an HTML template into descriptors.  Attribute values of the form
// "#param:name" are replaced with params["name"] (so handlers, hooks and styles can be passed
// in), and a self-closing <bindparam key="name"/> splices params["name"] in as children.
// Parse errors are returned as a trailing text node rather than failing the render.
func BindFragment(htmlStr string, params map[string]any) []*VDomElem {
	htmlStr = processWhitespace(htmlStr)
	iter := htmltoken.NewTokenizer(strings.NewReader(htmlStr))
	elemStack := []*VDomElem{{Tag: fragmentTag}}
	var tokenErr error
outer:
	for {
		tokenType := iter.Next()
		token := iter.Token()
		switch tokenType {
		case htmltoken.StartTagToken:
			if token.Data == BindParamTag {
				tokenErr = errors.New("bindparam tag must be self closing")
				break outer
			}
			elemStack = append(elemStack, tokenToElem(token, params))
		case htmltoken.EndTagToken:
			if token.Data == BindParamTag {
				tokenErr = errors.New("bindparam tag must be self closing")
				break outer
			}
			if len(elemStack) <= 1 {
				tokenErr = fmt.Errorf("end tag %q without start tag", token.Data)
				break outer
			}
			if curElemTag(elemStack) != token.Data {
				tokenErr = fmt.Errorf("end tag %q does not match start tag %q", token.Data, curElemTag(elemStack))
				break outer
			}
			elemStack = popElemStack(elemStack)
		case htmltoken.SelfClosingTagToken:
			if token.Data == BindParamTag {
				for _, elem := range PartToElems(params[getAttr(token, KeyPropKey)]) {
					appendChildToStack(elemStack, elem)
				}
				continue
			}
			appendChildToStack(elemStack, tokenToElem(token, params))
		case htmltoken.TextToken:
			textStr := processTextStr(token.Data)
			if textStr == "" {
				continue
			}
			appendChildToStack(elemStack, TextElem(textStr))
		case htmltoken.CommentToken:
			continue
		case htmltoken.DoctypeToken:
			tokenErr = errors.New("doctype not supported")
			break outer
		case htmltoken.ErrorToken:
			if iter.Err() == io.EOF {
				break outer
			}
			tokenErr = iter.Err()
			break outer
		}
	}
	if tokenErr != nil {
		appendChildToStack(elemStack, TextElem(tokenErr.Error()))
	}
	return finalizeStack(elemStack)
}

// Bind is BindFragment for templates with a single root.  Multiple roots are wrapped in a div.
func Bind(htmlStr string, params map[string]any) *VDomElem {
	elems := BindFragment(htmlStr, params)
	switch len(elems) {
	case 0:
		return nil
	case 1:
		return elems[0]
	}
	return &VDomElem{Tag: "div", Children: elems}
}
