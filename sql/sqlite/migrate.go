// Copyright 2021-present The Atlas Authors. All rights reserved.
// This source code is licensed under the Apache 2.0 license found
// in the LICENSE file in the root directory of this source tree.

package sqlite

import (
	"context"
	"fmt"
	"sort"

	"ariga.io/maguey/sql/dialect"
	"ariga.io/maguey/sql/internal/sqlx"
	"ariga.io/maguey/sql/schema"
)

// procedures implements dialect.Procedures for SQLite. ALTER TABLE in SQLite
// can only add columns. Column drops and renames are done by rebuilding the
// table, and index renames by recreating the index.
type procedures struct {
	p *sqlx.Phrasing
}

// CreateTable creates the table and then its indexes.
func (m *procedures) CreateTable(c *schema.CreateTable) (*dialect.Procedure, error) {
	if len(c.Indexes) == 0 {
		return nil, nil
	}
	t := c.Clone()
	t.Indexes = nil
	s, err := m.p.CreateTable(t)
	if err != nil {
		return nil, err
	}
	proc := (&dialect.Procedure{}).Exec(s)
	for _, idx := range c.Indexes {
		proc.Exec(m.p.CreateIndex(c.Name, idx))
	}
	return proc, nil
}

// AlterTable returns a procedure for all alterations, except for
// a single column addition or a single index creation or removal.
func (m *procedures) AlterTable(a *schema.AlterTable) (*dialect.Procedure, error) {
	switch {
	case a.Empty():
		return nil, nil
	case len(a.Dropped) > 0 || len(a.Renamed) > 0:
		return (&dialect.Procedure{}).Then(m.rebuild(a.Clone())), nil
	case a.Ops() == 1 && (len(a.Added) == 1 || len(a.AddedIndexes) == 1 || len(a.DroppedIndexes) == 1):
		return nil, nil
	}
	proc := &dialect.Procedure{}
	for _, c := range a.Added {
		s, err := m.p.AlterTable(&schema.AlterTable{Name: a.Name, Added: []*schema.Column{c}})
		if err != nil {
			return nil, err
		}
		proc.Exec(s)
	}
	for _, idx := range a.DroppedIndexes {
		proc.Exec(m.p.DropIndex(a.Name, idx))
	}
	for _, idx := range a.AddedIndexes {
		proc.Exec(m.p.CreateIndex(a.Name, idx))
	}
	for _, r := range a.RenamedIndexes {
		proc.Then(m.renameIndex(a.Name, r))
	}
	return proc, nil
}

// renameIndex returns a step that drops the index and
// creates it again with its new name.
func (m *procedures) renameIndex(table string, r *schema.RenameIndex) dialect.Step {
	return func(ctx context.Context, q dialect.ExecQuerier) error {
		indexes, err := m.indexList(ctx, q, table)
		if err != nil {
			return err
		}
		var idx *tableIndex
		for _, i := range indexes {
			if i.name == r.From {
				idx = i
			}
		}
		if idx == nil {
			return &schema.NotExistError{Err: fmt.Errorf("sqlite: index %q does not exist", r.From)}
		}
		if idx.columns, err = m.indexInfo(ctx, q, r.From); err != nil {
			return err
		}
		if err := q.Exec(ctx, m.p.DropIndex(table, &schema.Index{Name: r.From})); err != nil {
			return err
		}
		return q.Exec(ctx, m.p.CreateIndex(table, &schema.Index{Name: r.To, Columns: idx.columns, Unique: idx.unique}))
	}
}

type (
	// tableColumn is a row of PRAGMA table_info.
	tableColumn struct {
		name    string
		typ     string
		notNull bool
		dflt    string
		hasDflt bool
		pk      int64
		// name of the column in the old table. Empty for added columns.
		old string
		// definition of added columns.
		added *schema.Column
	}

	// tableIndex is a row of PRAGMA index_list and its columns.
	tableIndex struct {
		name    string
		unique  bool
		origin  string
		columns []string
	}

	// foreignKey groups the rows of PRAGMA foreign_key_list by their id.
	foreignKey struct {
		id       int64
		from, to []string
		table    string
		onUpdate string
		onDelete string
		match    string
	}
)

// rebuild returns a step that recreates the table with the alteration
// applied. The table is renamed, a new table is created in its place,
// the rows are copied to the new table and the old one is dropped.
//
// With foreign keys enabled, SQLite moves the references of other tables
// to the renamed table, and PRAGMA legacy_alter_table does not change it.
// Rebuilding a table that is referenced by rows of other tables therefore
// fails with a foreign key violation when committed, and is rolled back.
func (m *procedures) rebuild(a *schema.AlterTable) dialect.Step {
	return func(ctx context.Context, q dialect.ExecQuerier) error {
		// Foreign keys are checked at commit time, as rows are
		// copied while the referenced table is renamed.
		if err := q.Exec(ctx, m.p.Build("PRAGMA defer_foreign_keys=1").Stmt()); err != nil {
			return err
		}
		columns, err := m.tableInfo(ctx, q, a.Name)
		if err != nil {
			return err
		}
		indexes, err := m.indexList(ctx, q, a.Name)
		if err != nil {
			return err
		}
		for _, idx := range indexes {
			if idx.columns, err = m.indexInfo(ctx, q, idx.name); err != nil {
				return err
			}
		}
		fks, err := m.foreignKeys(ctx, q, a.Name)
		if err != nil {
			return err
		}
		t, err := newTable(a, columns, indexes, fks)
		if err != nil {
			return err
		}
		old := a.Name + "_old"
		if err := q.Exec(ctx, m.p.RenameTable(&schema.RenameTable{From: a.Name, To: old})); err != nil {
			return err
		}
		create, err := m.createTable(t)
		if err != nil {
			return err
		}
		if err := q.Exec(ctx, create); err != nil {
			return err
		}
		if s, ok := m.copyRows(t, old); ok {
			if err := q.Exec(ctx, s); err != nil {
				return err
			}
		}
		if err := q.Exec(ctx, m.p.DropTable(&schema.DropTable{Name: old})); err != nil {
			return err
		}
		for _, idx := range t.indexes {
			if err := q.Exec(ctx, m.p.CreateIndex(a.Name, idx)); err != nil {
				return err
			}
		}
		return nil
	}
}

// rebuiltTable is the shape of the table after the alteration.
type rebuiltTable struct {
	name    string
	columns []*tableColumn
	fks     []*foreignKey
	indexes []*schema.Index
}

// newTable applies the alteration on the inspected table. Dropped columns
// are removed along with the indexes and foreign keys that use them.
func newTable(a *schema.AlterTable, columns []*tableColumn, indexes []*tableIndex, fks []*foreignKey) (*rebuiltTable, error) {
	t := &rebuiltTable{name: a.Name}
	names := make(map[string]string, len(columns))
	for _, c := range columns {
		names[c.name] = c.name
	}
	for _, d := range a.Dropped {
		if _, ok := names[d]; !ok {
			return nil, &schema.NotExistError{Err: fmt.Errorf("sqlite: column %q does not exist in table %q", d, a.Name)}
		}
		delete(names, d)
	}
	renames := make(map[string]*schema.RenameColumn, len(a.Renamed))
	for _, r := range a.Renamed {
		if _, ok := names[r.From]; !ok {
			return nil, &schema.NotExistError{Err: fmt.Errorf("sqlite: column %q does not exist in table %q", r.From, a.Name)}
		}
		names[r.From] = r.To
		renames[r.From] = r
	}
	for _, c := range columns {
		to, ok := names[c.name]
		if !ok {
			continue
		}
		nc := *c
		nc.old, nc.name = c.name, to
		if r, ok := renames[c.name]; ok && r.Type != "" {
			typ, err := Translator.Type(r.Type, r.Options)
			if err != nil {
				return nil, fmt.Errorf("sqlite: rename column %q: %w", r.From, err)
			}
			nc.typ = typ
		}
		t.columns = append(t.columns, &nc)
	}
	for _, c := range a.Added {
		t.columns = append(t.columns, &tableColumn{name: c.Name, added: c})
	}
	mapped := func(cols []string) ([]string, bool) {
		out := make([]string, 0, len(cols))
		for _, c := range cols {
			to, ok := names[c]
			if !ok {
				return nil, false
			}
			out = append(out, to)
		}
		return out, true
	}
	for _, fk := range fks {
		from, ok := mapped(fk.from)
		if !ok {
			continue
		}
		nfk := *fk
		nfk.from = from
		if fk.table == a.Name && len(fk.to) > 0 {
			if nfk.to, ok = mapped(fk.to); !ok {
				continue
			}
		}
		t.fks = append(t.fks, &nfk)
	}
	var (
		dropped = make(map[string]bool, len(a.DroppedIndexes))
		renamed = make(map[string]string, len(a.RenamedIndexes))
		found   = make(map[string]bool, len(indexes))
	)
	for _, idx := range a.DroppedIndexes {
		dropped[idx.Name] = true
	}
	for _, r := range a.RenamedIndexes {
		renamed[r.From] = r.To
	}
	for _, idx := range indexes {
		found[idx.name] = true
		cols, ok := mapped(idx.columns)
		if dropped[idx.name] || !ok || len(cols) == 0 {
			continue
		}
		name := idx.name
		switch to, ok := renamed[idx.name]; {
		case ok:
			name = to
		// Indexes of UNIQUE constraints are recreated as named indexes.
		case idx.origin == "u":
			name = schema.IndexName(a.Name, cols...)
		}
		t.indexes = append(t.indexes, &schema.Index{Name: name, Columns: cols, Unique: idx.unique})
	}
	for _, idx := range a.DroppedIndexes {
		if !found[idx.Name] {
			return nil, &schema.NotExistError{Err: fmt.Errorf("sqlite: index %q does not exist", idx.Name)}
		}
	}
	for _, r := range a.RenamedIndexes {
		if !found[r.From] {
			return nil, &schema.NotExistError{Err: fmt.Errorf("sqlite: index %q does not exist", r.From)}
		}
	}
	t.indexes = append(t.indexes, a.AddedIndexes...)
	return t, nil
}

func (m *procedures) createTable(t *rebuiltTable) (dialect.Statement, error) {
	var (
		err error
		pks []*tableColumn
	)
	for _, c := range t.columns {
		if c.pk > 0 {
			pks = append(pks, c)
		}
	}
	sort.Slice(pks, func(i, j int) bool { return pks[i].pk < pks[j].pk })
	b := m.p.Build("CREATE TABLE").Ident(t.name).Wrap(func(b *sqlx.Builder) {
		b.MapComma(t.columns, func(i int, b *sqlx.Builder) {
			c := t.columns[i]
			if c.added != nil {
				if cerr := m.p.Column(b, c.added); cerr != nil && err == nil {
					err = cerr
				}
				return
			}
			b.Ident(c.name).P(c.typ)
			if len(pks) == 1 && c.pk > 0 {
				b.P("PRIMARY KEY")
			}
			if c.notNull {
				b.P("NOT NULL")
			}
			if c.hasDflt {
				b.P("DEFAULT", c.dflt)
			}
		})
		if len(pks) > 1 {
			b.Comma().P("PRIMARY KEY").Wrap(func(b *sqlx.Builder) {
				b.MapComma(pks, func(i int, b *sqlx.Builder) {
					b.Ident(pks[i].name)
				})
			})
		}
		for _, fk := range t.fks {
			b.Comma()
			m.foreignKey(b, fk)
		}
	})
	if err != nil {
		return dialect.Statement{}, fmt.Errorf("sqlite: rebuild table %q: %w", t.name, err)
	}
	return b.Stmt(), nil
}

func (m *procedures) foreignKey(b *sqlx.Builder, fk *foreignKey) {
	idents := func(cols []string) func(*sqlx.Builder) {
		return func(b *sqlx.Builder) {
			b.MapComma(cols, func(i int, b *sqlx.Builder) {
				b.Ident(cols[i])
			})
		}
	}
	b.P("FOREIGN KEY").Wrap(idents(fk.from)).P("REFERENCES").Ident(fk.table)
	if len(fk.to) > 0 {
		b.Wrap(idents(fk.to))
	}
	if fk.onDelete != "" {
		b.P("ON DELETE", fk.onDelete)
	}
	if fk.onUpdate != "" {
		b.P("ON UPDATE", fk.onUpdate)
	}
	if fk.match != "" {
		b.P("MATCH", fk.match)
	}
}

// copyRows returns the statement that copies the rows of the old table
// to the new one. Only columns that exist in both tables are copied.
func (m *procedures) copyRows(t *rebuiltTable, old string) (dialect.Statement, bool) {
	var to, from []string
	for _, c := range t.columns {
		if c.old != "" {
			to, from = append(to, c.name), append(from, c.old)
		}
	}
	if len(to) == 0 {
		return dialect.Statement{}, false
	}
	b := m.p.Build("INSERT INTO").Ident(t.name).Wrap(func(b *sqlx.Builder) {
		b.MapComma(to, func(i int, b *sqlx.Builder) {
			b.Ident(to[i])
		})
	}).P("SELECT")
	b.MapComma(from, func(i int, b *sqlx.Builder) {
		b.Ident(from[i])
	})
	return b.P("FROM").Ident(old).Stmt(), true
}

// pragma returns a PRAGMA statement with the given quoted argument.
func (m *procedures) pragma(name, arg string) dialect.Statement {
	return m.p.Build("PRAGMA", name+"("+m.p.Grammar.Quote(arg)+")").Stmt()
}

func (m *procedures) tableInfo(ctx context.Context, q dialect.ExecQuerier, table string) ([]*tableColumn, error) {
	res, err := q.Query(ctx, m.pragma("table_info", table))
	if err != nil {
		return nil, err
	}
	if len(res.Rows) == 0 {
		return nil, &schema.NotExistError{Err: fmt.Errorf("sqlite: table %q does not exist", table)}
	}
	columns := make([]*tableColumn, 0, len(res.Rows))
	for _, r := range res.Rows {
		c := &tableColumn{
			name:    r.String("name"),
			typ:     r.String("type"),
			dflt:    r.String("dflt_value"),
			hasDflt: !r.Null("dflt_value"),
		}
		notNull, err := r.Int("notnull")
		if err != nil {
			return nil, fmt.Errorf("sqlite: table %q: %w", table, err)
		}
		if c.pk, err = r.Int("pk"); err != nil {
			return nil, fmt.Errorf("sqlite: table %q: %w", table, err)
		}
		c.notNull = notNull != 0
		columns = append(columns, c)
	}
	return columns, nil
}

// indexList returns the indexes of the table, except for
// the implicit indexes of primary keys.
func (m *procedures) indexList(ctx context.Context, q dialect.ExecQuerier, table string) ([]*tableIndex, error) {
	res, err := q.Query(ctx, m.pragma("index_list", table))
	if err != nil {
		return nil, err
	}
	var indexes []*tableIndex
	for _, r := range res.Rows {
		idx := &tableIndex{name: r.String("name"), origin: r.String("origin")}
		if idx.origin == "pk" {
			continue
		}
		unique, err := r.Int("unique")
		if err != nil {
			return nil, fmt.Errorf("sqlite: index %q: %w", idx.name, err)
		}
		idx.unique = unique != 0
		indexes = append(indexes, idx)
	}
	return indexes, nil
}

// indexInfo returns the columns of the index ordered by their rank.
func (m *procedures) indexInfo(ctx context.Context, q dialect.ExecQuerier, name string) ([]string, error) {
	res, err := q.Query(ctx, m.pragma("index_info", name))
	if err != nil {
		return nil, err
	}
	type rank struct {
		n    int64
		name string
	}
	ranks := make([]rank, 0, len(res.Rows))
	for _, r := range res.Rows {
		n, err := r.Int("seqno")
		if err != nil {
			return nil, fmt.Errorf("sqlite: index %q: %w", name, err)
		}
		ranks = append(ranks, rank{n: n, name: r.String("name")})
	}
	sort.SliceStable(ranks, func(i, j int) bool { return ranks[i].n < ranks[j].n })
	columns := make([]string, len(ranks))
	for i := range ranks {
		columns[i] = ranks[i].name
	}
	return columns, nil
}

// foreignKeys returns the foreign keys of the table in their definition order.
func (m *procedures) foreignKeys(ctx context.Context, q dialect.ExecQuerier, table string) ([]*foreignKey, error) {
	res, err := q.Query(ctx, m.pragma("foreign_key_list", table))
	if err != nil {
		return nil, err
	}
	var (
		fks  []*foreignKey
		byID = make(map[int64]*foreignKey)
	)
	for _, r := range res.Rows {
		id, err := r.Int("id")
		if err != nil {
			return nil, fmt.Errorf("sqlite: foreign keys of table %q: %w", table, err)
		}
		fk, ok := byID[id]
		if !ok {
			fk = &foreignKey{
				id:       id,
				table:    r.String("table"),
				onUpdate: r.String("on_update"),
				onDelete: r.String("on_delete"),
				match:    r.String("match"),
			}
			byID[id] = fk
			fks = append(fks, fk)
		}
		fk.from = append(fk.from, r.String("from"))
		if to := r.String("to"); to != "" {
			fk.to = append(fk.to, to)
		}
	}
	// PRAGMA foreign_key_list lists foreign keys in reverse order.
	sort.SliceStable(fks, func(i, j int) bool { return fks[i].id > fks[j].id })
	return fks, nil
}
