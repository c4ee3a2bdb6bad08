// Copyright 2026 Marcelo Cantos
// SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"errors"
	"fmt"
	"strings"

	"github.com/anmitsu/go-shlex"
)

// ErrEmptyLine is returned by Parse for a line with no tokens.
var ErrEmptyLine = errors.New("empty line")

type token struct {
	op   string // operator, empty for words
	word string
}

// Parse turns one input line into a validated Pipeline. Stages are
// separated by |; a stage may carry < file and > file in any position.
// Operators inside quotes or after a backslash are ordinary characters.
func Parse(line string) (*Pipeline, error) {
	toks, err := lex(line)
	if err != nil {
		return nil, err
	}
	if len(toks) == 0 {
		return nil, ErrEmptyLine
	}

	p := &Pipeline{}
	var cur Command
	named := false
	for i := 0; i < len(toks); i++ {
		t := toks[i]
		switch t.op {
		case OpRedirectIn, OpRedirectOut:
			if i+1 >= len(toks) || toks[i+1].op != "" {
				return nil, fmt.Errorf("missing name for redirect %s", t.op)
			}
			i++
			target := toks[i].word
			if t.op == OpRedirectIn {
				if cur.In != "" {
					return nil, fmt.Errorf("ambiguous input redirect")
				}
				cur.In = target
			} else {
				if cur.Out != "" {
					return nil, fmt.Errorf("ambiguous output redirect")
				}
				cur.Out = target
			}
		case OpPipe:
			if !named {
				return nil, fmt.Errorf("empty pipeline stage before %s", OpPipe)
			}
			p.Commands = append(p.Commands, cur)
			cur, named = Command{}, false
		default:
			if !named {
				cur.Name, named = t.word, true
			} else {
				cur.Args = append(cur.Args, t.word)
			}
		}
	}
	if !named {
		return nil, fmt.Errorf("empty pipeline stage")
	}
	p.Commands = append(p.Commands, cur)

	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// lex splits line at unquoted operators and tokenises the text between
// them with POSIX shell-word rules.
func lex(line string) ([]token, error) {
	var (
		toks    []token
		chunk   strings.Builder
		quote   rune
		escaped bool
	)
	flush := func() error {
		if chunk.Len() == 0 {
			return nil
		}
		words, err := shlex.Split(chunk.String(), true)
		if err != nil {
			return fmt.Errorf("syntax error: %w", err)
		}
		for _, w := range words {
			toks = append(toks, token{word: w})
		}
		chunk.Reset()
		return nil
	}

	for _, r := range line {
		switch {
		case escaped:
			escaped = false
		case quote == '\'':
			if r == '\'' {
				quote = 0
			}
		case quote == '"':
			if r == '"' {
				quote = 0
			} else if r == '\\' {
				escaped = true
			}
		case r == '\\':
			escaped = true
		case r == '\'' || r == '"':
			quote = r
		case r == '|' || r == '<' || r == '>':
			if err := flush(); err != nil {
				return nil, err
			}
			toks = append(toks, token{op: string(r)})
			continue
		}
		chunk.WriteRune(r)
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return toks, nil
}
