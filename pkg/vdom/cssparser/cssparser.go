// Copyright 2025, Command Line Inc.
// SPDX-License-Identifier: Apache-2.0

// Package cssparser splits inline style attribute text ("color: red; margin: 0") into
// declarations.  Quotes and parentheses are respected, so values such as
// url("a;b.png") or calc(1px + 2px) survive intact.
package cssparser

import (
	"fmt"
	"strings"
	"unicode"
)

type Decl struct {
	Prop  string
	Value string
}

type Parser struct {
	input     string
	pos       int
	inQuote   bool
	quoteChar byte
	parens    []int // positions of unmatched '('
}

func MakeParser(input string) *Parser {
	return &Parser{input: input}
}

// Parse returns the declarations as a map (later declarations of the same property win).
func (p *Parser) Parse() (map[string]string, error) {
	decls, err := p.ParseDecls()
	if err != nil {
		return nil, err
	}
	rtn := make(map[string]string, len(decls))
	for _, d := range decls {
		rtn[d.Prop] = d.Value
	}
	return rtn, nil
}

// ParseDecls returns the declarations in source order.
func (p *Parser) ParseDecls() ([]Decl, error) {
	var rtn []Decl
	lastProp := ""
	for {
		p.skipSpace()
		if p.eof() {
			break
		}
		prop, err := p.parseProp(lastProp)
		if err != nil {
			return nil, err
		}
		lastProp = prop
		p.skipSpace()
		val, err := p.parseValue(prop)
		if err != nil {
			return nil, err
		}
		rtn = append(rtn, Decl{Prop: prop, Value: val})
		p.skipSpace()
		if p.eof() || !p.consume(';') {
			break
		}
	}
	p.skipSpace()
	if !p.eof() {
		return nil, fmt.Errorf("bad style attribute, unexpected character %q at pos %d", string(p.input[p.pos]), p.pos+1)
	}
	return rtn, nil
}

func (p *Parser) parseProp(lastProp string) (string, error) {
	start := p.pos
	for !p.eof() && isPropChar(rune(p.input[p.pos])) {
		p.pos++
	}
	prop := p.input[start:p.pos]
	p.skipSpace()
	if prop == "" {
		return "", fmt.Errorf("bad style attribute, invalid property name after %q at pos %d", lastProp, p.pos+1)
	}
	if p.eof() {
		return "", fmt.Errorf("bad style attribute, expected ':' after %q, got EOF", prop)
	}
	if !p.consume(':') {
		return "", fmt.Errorf("bad style attribute, expected ':' after %q, got %q at pos %d", prop, string(p.input[p.pos]), p.pos+1)
	}
	return prop, nil
}

func (p *Parser) parseValue(prop string) (string, error) {
	start := p.pos
	quotePos := 0
scan:
	for ; !p.eof(); p.pos++ {
		c := p.input[p.pos]
		if p.inQuote {
			if c == p.quoteChar {
				p.inQuote = false
			} else if c == '\\' {
				p.pos++
			}
			continue
		}
		switch c {
		case '"', '\'':
			p.inQuote = true
			p.quoteChar = c
			quotePos = p.pos
		case '(':
			p.parens = append(p.parens, p.pos)
		case ')':
			if len(p.parens) == 0 {
				return "", fmt.Errorf("unmatched ')' at pos %d", p.pos+1)
			}
			p.parens = p.parens[:len(p.parens)-1]
		case ';':
			if len(p.parens) == 0 {
				break scan
			}
		}
	}
	if p.inQuote {
		return "", fmt.Errorf("bad style attribute, unmatched quote in %q at pos %d", prop, quotePos+1)
	}
	if len(p.parens) > 0 {
		return "", fmt.Errorf("bad style attribute, unmatched '(' in %q at pos %d", prop, p.parens[len(p.parens)-1]+1)
	}
	if p.pos > len(p.input) {
		p.pos = len(p.input)
	}
	return strings.TrimSpace(p.input[start:p.pos]), nil
}

func isPropChar(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-'
}

func (p *Parser) skipSpace() {
	for !p.eof() && unicode.IsSpace(rune(p.input[p.pos])) {
		p.pos++
	}
}

func (p *Parser) consume(c byte) bool {
	if !p.eof() && p.input[p.pos] == c {
		p.pos++
		return true
	}
	return false
}

func (p *Parser) eof() bool {
	return p.pos >= len(p.input)
}
