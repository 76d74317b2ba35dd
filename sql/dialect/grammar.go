// Copyright 2021-present The Atlas Authors. All rights reserved.
// This source code is licensed under the Apache 2.0 license found
// in the LICENSE file in the root directory of this source tree.

package dialect

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Grammar describes how a dialect quotes identifiers, escapes literals
// and marks positional parameters. Dialects configure a Grammar instead
// of specializing it.
type Grammar struct {
	// QuoteChar wraps identifiers. For example, '"' in PostgreSQL and '`' in MySQL.
	QuoteChar byte
	// Numbered reports if placeholders are numbered ($1, $2, ...)
	// instead of using the '?' mark.
	Numbered bool
	// EscapeBackslash reports if backslashes in string literals must be doubled.
	EscapeBackslash bool
}

// Quote quotes the given identifier, doubling any embedded quote character.
func (g *Grammar) Quote(name string) string {
	q := string(g.QuoteChar)
	return q + strings.ReplaceAll(name, q, q+q) + q
}

// Field quotes a possibly qualified field name. i.e. users.id => "users"."id".
func (g *Grammar) Field(name string) string {
	parts := strings.Split(name, ".")
	for i := range parts {
		parts[i] = g.Quote(parts[i])
	}
	return strings.Join(parts, ".")
}

// Escape returns the literal representation of v for contexts that
// do not accept positional parameters, like column defaults.
func (g *Grammar) Escape(v any) string {
	switch v := v.(type) {
	case nil:
		return "NULL"
	case bool:
		if v {
			return "TRUE"
		}
		return "FALSE"
	case int:
		return strconv.Itoa(v)
	case int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprint(v)
	case float32:
		return strconv.FormatFloat(float64(v), 'g', -1, 32)
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	case time.Time:
		return g.quoteString(v.UTC().Format("2006-01-02 15:04:05.000"))
	case []byte:
		return g.quoteString(string(v))
	case string:
		return g.quoteString(v)
	case fmt.Stringer:
		return g.quoteString(v.String())
	default:
		return g.quoteString(fmt.Sprint(v))
	}
}

func (g *Grammar) quoteString(s string) string {
	if g.EscapeBackslash {
		s = strings.ReplaceAll(s, `\`, `\\`)
	}
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// Placeholder returns the marker of the n-th positional parameter (1-based).
func (g *Grammar) Placeholder(n int) string {
	if g.Numbered {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}

// Value returns a fragment holding a single positional parameter.
func (g *Grammar) Value(v any) Fragment {
	return Fragment{SQL: g.Placeholder(1), Args: []any{v}}
}

// Values returns a fragment with a comma separated placeholder for each value.
func (g *Grammar) Values(vs ...any) Fragment {
	fs := make([]Fragment, len(vs))
	for i := range vs {
		fs[i] = g.Value(vs[i])
	}
	return g.Join(g.Delimit(fs, ", ")...)
}

var reNumbered = regexp.MustCompile(`\$\d+`)

// Join concatenates the given fragments. Numbered placeholders are
// sequenced in a single left-to-right pass, so the combined SQL always
// matches the order of the combined arguments.
func (g *Grammar) Join(fs ...Fragment) Fragment {
	var (
		b    strings.Builder
		args []any
	)
	for _, f := range fs {
		b.WriteString(f.SQL)
		args = append(args, f.Args...)
	}
	s := b.String()
	if g.Numbered {
		n := 0
		s = reNumbered.ReplaceAllStringFunc(s, func(string) string {
			n++
			return "$" + strconv.Itoa(n)
		})
	}
	return Fragment{SQL: s, Args: args}
}

// Delimit interleaves the given fragments with the separator.
func (g *Grammar) Delimit(fs []Fragment, sep string) []Fragment {
	if len(fs) == 0 {
		return nil
	}
	out := make([]Fragment, 0, len(fs)*2-1)
	for i, f := range fs {
		if i > 0 {
			out = append(out, Fragment{SQL: sep})
		}
		out = append(out, f)
	}
	return out
}

// Group wraps the fragment with parentheses.
func (g *Grammar) Group(f Fragment) Fragment {
	return g.Join(Fragment{SQL: "("}, f, Fragment{SQL: ")"})
}
