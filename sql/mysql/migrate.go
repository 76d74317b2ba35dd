// Copyright 2021-present The Atlas Authors. All rights reserved.
// This source code is licensed under the Apache 2.0 license found
// in the LICENSE file in the root directory of this source tree.

package mysql

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"ariga.io/maguey/sql/dialect"
	"ariga.io/maguey/sql/internal/sqlx"
	"ariga.io/maguey/sql/schema"

	"github.com/go-openapi/inflect"
)

// procedures implements dialect.Procedures for MySQL. Index renames
// are done by recreating the index, as RENAME INDEX is not supported
// by all MySQL versions.
type procedures struct {
	p *sqlx.Phrasing
}

// CreateTable implements dialect.Procedures. Indexes are part of the
// CREATE TABLE statement in MySQL.
func (*procedures) CreateTable(*schema.CreateTable) (*dialect.Procedure, error) {
	return nil, nil
}

// AlterTable returns a procedure if the alteration renames indexes.
func (m *procedures) AlterTable(a *schema.AlterTable) (*dialect.Procedure, error) {
	if len(a.RenamedIndexes) == 0 {
		return nil, nil
	}
	base := a.Clone()
	base.RenamedIndexes = nil
	proc := &dialect.Procedure{}
	if !base.Empty() {
		s, err := m.p.AlterTable(base)
		if err != nil {
			return nil, err
		}
		proc.Exec(s)
	}
	for _, r := range a.RenamedIndexes {
		proc.Then(m.renameIndex(a.Name, r))
	}
	return proc, nil
}

// indexColumn is a row of SHOW INDEX.
type indexColumn struct {
	name      string
	seq       int64
	subPart   int64
	nonUnique bool
	typ       string
}

// renameIndex returns a step that reads the definition of the index,
// drops it and creates it again with its new name.
func (m *procedures) renameIndex(table string, r *schema.RenameIndex) dialect.Step {
	return func(ctx context.Context, q dialect.ExecQuerier) error {
		res, err := q.Query(ctx, m.p.Build("SHOW INDEX FROM").Ident(table).P("WHERE KEY_NAME = ?").Stmt(r.From))
		if err != nil {
			return err
		}
		if len(res.Rows) == 0 {
			return &schema.NotExistError{Err: fmt.Errorf("mysql: index %q does not exist", r.From)}
		}
		// DDL is committed implicitly, so the definition is read before the drop.
		columns, err := indexColumns(res)
		if err != nil {
			return fmt.Errorf("mysql: index %q: %w", r.From, err)
		}
		if err := q.Exec(ctx, m.p.DropIndex(table, &schema.Index{Name: r.From})); err != nil {
			return err
		}
		return q.Exec(ctx, m.createIndex(table, r.To, columns))
	}
}

// indexColumns converts the rows of SHOW INDEX, ordered by their
// position in the index.
func indexColumns(res *dialect.Result) ([]*indexColumn, error) {
	columns := make([]*indexColumn, 0, len(res.Rows))
	for _, row := range res.Rows {
		row = camelKeys(row)
		c := &indexColumn{name: row.String("columnName"), typ: row.String("indexType")}
		var (
			err       error
			nonUnique int64
		)
		if c.seq, err = row.Int("seqInIndex"); err != nil {
			return nil, err
		}
		if c.subPart, err = row.Int("subPart"); err != nil {
			return nil, err
		}
		if nonUnique, err = row.Int("nonUnique"); err != nil {
			return nil, err
		}
		c.nonUnique = nonUnique != 0
		columns = append(columns, c)
	}
	sort.SliceStable(columns, func(i, j int) bool {
		return columns[i].seq < columns[j].seq
	})
	return columns, nil
}

// camelKeys converts the keys of the row (e.g. Seq_in_index) to camel case.
func camelKeys(r dialect.Row) dialect.Row {
	c := make(dialect.Row, len(r))
	for k, v := range r {
		c[inflect.CamelizeDownFirst(k)] = v
	}
	return c
}

func (m *procedures) createIndex(table, name string, columns []*indexColumn) dialect.Statement {
	var (
		unique bool
		typ    string
	)
	for _, c := range columns {
		unique = unique || !c.nonUnique
		if typ == "" {
			typ = c.typ
		}
	}
	b := m.p.Build("CREATE")
	if unique {
		b.P("UNIQUE")
	}
	b.P("INDEX").Ident(name)
	if typ != "" {
		b.P("USING", typ)
	}
	b.P("ON").Ident(table).Wrap(func(b *sqlx.Builder) {
		b.MapComma(columns, func(i int, b *sqlx.Builder) {
			b.Ident(columns[i].name)
			if columns[i].subPart > 0 {
				b.WriteString("(" + strconv.FormatInt(columns[i].subPart, 10) + ")")
			}
		})
	})
	return b.Stmt()
}
