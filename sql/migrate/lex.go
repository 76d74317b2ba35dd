// Copyright 2021-present The Atlas Authors. All rights reserved.
// This source code is licensed under the Apache 2.0 license found
// in the LICENSE file in the root directory of this source tree.

package migrate

import (
	"errors"
	"fmt"
	"strings"
)

// Stmt is a statement of a script, and the line it starts on.
type Stmt struct {
	Line int
	Text string
}

// DelimiterDirective changes the statement delimiter of a script when it
// is placed on its first line. For example:
//
//	-- maguey:delimiter //
const DelimiterDirective = "-- maguey:delimiter "

const delimiter = ";"

// Split splits a script into its statements. Comments between statements
// are dropped, and comments inside a statement are kept in its text.
func Split(script string) ([]*Stmt, error) {
	s := &scanner{src: script, delim: delimiter, line: 1}
	if strings.HasPrefix(script, DelimiterDirective) {
		first, rest, ok := strings.Cut(script, "\n")
		d := strings.TrimSpace(strings.TrimPrefix(first, DelimiterDirective))
		if d == "" {
			return nil, errors.New("migrate: empty delimiter")
		}
		if !ok {
			return nil, fmt.Errorf("migrate: no input found after delimiter %q", d)
		}
		s.src, s.line = rest, 2
		s.delim = strings.NewReplacer(`\n`, "\n", `\r`, "\r", `\t`, "\t").Replace(d)
	}
	var stmts []*Stmt
	for {
		s.skipBlank()
		if s.done() {
			return stmts, nil
		}
		stmt, err := s.stmt()
		if err != nil {
			return nil, fmt.Errorf("migrate: split script: %w", err)
		}
		if strings.TrimSpace(strings.TrimSuffix(stmt.Text, delimiter)) != "" {
			stmts = append(stmts, stmt)
		}
	}
}

type scanner struct {
	src   string
	delim string
	pos   int
	line  int
}

func (s *scanner) done() bool { return s.pos >= len(s.src) }

func (s *scanner) rest() string { return s.src[s.pos:] }

func (s *scanner) advance(n int) {
	for ; n > 0 && !s.done(); n-- {
		if s.src[s.pos] == '\n' {
			s.line++
		}
		s.pos++
	}
}

// skipBlank skips spaces and comments up to the next statement.
func (s *scanner) skipBlank() {
	for !s.done() {
		switch r := s.rest(); {
		case strings.IndexByte(" \t\r\n\f\v", r[0]) >= 0:
			s.advance(1)
		case strings.HasPrefix(r, "--"), r[0] == '#':
			s.skipLine()
		case strings.HasPrefix(r, "/*"):
			i := strings.Index(r, "*/")
			if i == -1 {
				return
			}
			s.advance(i + 2)
		default:
			return
		}
	}
}

// skipLine skips to the end of the line, without consuming the newline.
func (s *scanner) skipLine() {
	i := strings.IndexByte(s.rest(), '\n')
	if i == -1 {
		i = len(s.rest())
	}
	s.advance(i)
}

func (s *scanner) stmt() (*Stmt, error) {
	start, stmt, depth := s.pos, &Stmt{Line: s.line}, 0
	for !s.done() {
		r := s.rest()
		if depth == 0 && strings.HasPrefix(r, s.delim) {
			stmt.Text = s.src[start:s.pos]
			if s.delim == delimiter {
				stmt.Text += delimiter
			}
			stmt.Text = strings.TrimSpace(stmt.Text)
			s.advance(len(s.delim))
			return stmt, nil
		}
		switch c := r[0]; {
		case c == '\'', c == '"', c == '`':
			if err := s.quoted(c); err != nil {
				return nil, err
			}
			continue
		case c == '(':
			depth++
		case c == ')':
			if depth == 0 {
				return nil, fmt.Errorf("unexpected ')' on line %d", s.line)
			}
			depth--
		case strings.HasPrefix(r, "--"):
			s.skipLine()
			continue
		case strings.HasPrefix(r, "/*"):
			if i := strings.Index(r, "*/"); i != -1 {
				s.advance(i + 2)
				continue
			}
		}
		s.advance(1)
	}
	if depth > 0 {
		return nil, errors.New("unclosed parentheses")
	}
	stmt.Text = strings.TrimSpace(s.src[start:])
	return stmt, nil
}

// quoted skips a quoted literal or identifier. Backslashes escape
// the next character.
func (s *scanner) quoted(q byte) error {
	s.advance(1)
	for !s.done() {
		switch s.src[s.pos] {
		case '\\':
			s.advance(2)
		case q:
			s.advance(1)
			return nil
		default:
			s.advance(1)
		}
	}
	return fmt.Errorf("unclosed quote %q", rune(q))
}
