// Copyright 2021-present The Atlas Authors. All rights reserved.
// This source code is licensed under the Apache 2.0 license found
// in the LICENSE file in the root directory of this source tree.

package sqlx

import (
	"bytes"
	"database/sql"
	"fmt"
	"reflect"
	"strings"

	"ariga.io/maguey/sql/dialect"
)

// A Builder provides a syntactic sugar API for writing SQL statements.
type Builder struct {
	bytes.Buffer
	QuoteChar byte
}

// P writes a list of phrases to the builder separated and
// suffixed with whitespace.
func (b *Builder) P(phrases ...string) *Builder {
	for _, p := range phrases {
		if p == "" {
			continue
		}
		if b.Len() > 0 {
			if c := b.lastByte(); c != ' ' && c != '(' {
				b.WriteByte(' ')
			}
		}
		b.WriteString(p)
	}
	return b
}

// Ident writes the given string quoted as an SQL identifier.
func (b *Builder) Ident(s string) *Builder {
	if s == "" {
		return b
	}
	q := string(b.QuoteChar)
	return b.P(q + strings.ReplaceAll(s, q, q+q) + q)
}

// Wrap wraps the written string with parentheses.
func (b *Builder) Wrap(f func(b *Builder)) *Builder {
	nb := &Builder{QuoteChar: b.QuoteChar}
	f(nb)
	return b.P("(" + nb.String() + ")")
}

// Comma writes a comma in case the buffer is not empty, or
// replaces the last char if it is a whitespace.
func (b *Builder) Comma() *Builder {
	switch {
	case b.Len() == 0:
	case b.lastByte() == ' ':
		b.Truncate(b.Len() - 1)
		b.WriteString(", ")
	default:
		b.WriteString(", ")
	}
	return b
}

// MapComma maps the slice x using the function f and joins the result with
// a comma separating between the written elements.
func (b *Builder) MapComma(x any, f func(i int, b *Builder)) *Builder {
	s := reflect.ValueOf(x)
	for i := 0; i < s.Len(); i++ {
		if i > 0 {
			b.Comma()
		}
		f(i, b)
	}
	return b
}

// Stmt returns the written statement with the given arguments.
func (b *Builder) Stmt(args ...any) dialect.Statement {
	return dialect.Statement{SQL: b.String(), Args: args}
}

// Clone returns a duplicate of the builder.
func (b *Builder) Clone() *Builder {
	nb := &Builder{QuoteChar: b.QuoteChar}
	nb.Write(b.Bytes())
	return nb
}

func (b *Builder) lastByte() byte {
	if b.Len() == 0 {
		return 0
	}
	buf := b.Bytes()
	return buf[len(buf)-1]
}

// ScanResult scans all rows into a dialect.Result and closes them.
// Byte slices are copied, as the driver may reuse their memory.
func ScanResult(rows *sql.Rows) (*dialect.Result, error) {
	defer rows.Close()
	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("sql/sqlx: scanning columns: %w", err)
	}
	res := &dialect.Result{Fields: columns}
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("sql/sqlx: scanning row: %w", err)
		}
		row := make(dialect.Row, len(columns))
		for i, c := range columns {
			if bs, ok := values[i].([]byte); ok {
				values[i] = append([]byte(nil), bs...)
			}
			row[c] = values[i]
		}
		res.Rows = append(res.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return res, nil
}
