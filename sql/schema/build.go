// Copyright 2021-present The Atlas Authors. All rights reserved.
// This source code is licensed under the Apache 2.0 license found
// in the LICENSE file in the root directory of this source tree.

package schema

import (
	"errors"
	"fmt"
	"strings"
)

// DefaultPrimaryKey is the name of the primary key column that is
// added to created tables that do not define one.
const DefaultPrimaryKey = "id"

// ErrMissingCallback is returned when a table is built without a callback.
var ErrMissingCallback = errors.New("schema: missing callback for table definition")

type (
	// A TableBuilder is passed to the callbacks of table creations and
	// alterations for describing their columns and indexes. Errors that are
	// detected while building are recorded and returned by the Build functions.
	TableBuilder struct {
		name       string
		columns    []*ColumnBuilder
		dropped    []string
		renamed    []*RenameColumn
		indexes    []*IndexBuilder
		dropIdx    []*Index
		renamedIdx []*RenameIndex
		errs       []error
	}

	// A ColumnBuilder configures a single column.
	ColumnBuilder struct {
		t *TableBuilder
		c *Column
	}

	// An IndexBuilder configures a single index.
	IndexBuilder struct {
		idx *Index
	}

	// CreateOptions configures BuildCreateTable.
	CreateOptions struct {
		// IfNotExists creates the table only if it does not exist.
		IfNotExists bool
		// PrimaryKey is the name of the primary key. Defaults to "id".
		PrimaryKey string
		// NoPrimaryKey skips adding the primary key column.
		NoPrimaryKey bool
	}
)

// BuildCreateTable builds the creation of the named table using the given callback.
func BuildCreateTable(name string, fn func(*TableBuilder), opts CreateOptions) (*CreateTable, error) {
	if fn == nil {
		return nil, ErrMissingCallback
	}
	t := &TableBuilder{name: name}
	fn(t)
	if err := t.err(); err != nil {
		return nil, err
	}
	c := &CreateTable{Name: name, IfNotExists: opts.IfNotExists}
	for _, b := range t.columns {
		c.Columns = append(c.Columns, b.c)
	}
	for _, b := range t.indexes {
		c.Indexes = append(c.Indexes, b.index(name))
	}
	if err := primaryKey(c, opts); err != nil {
		return nil, err
	}
	return c, nil
}

// primaryKey applies the primary key rules on the created table. A column that
// was explicitly marked as primary key takes precedence. Otherwise, the column
// named after the primary key becomes one, or a serial column is prepended.
func primaryKey(c *CreateTable, opts CreateOptions) error {
	var pks []*Column
	for _, col := range c.Columns {
		if col.PrimaryKey {
			pks = append(pks, col)
		}
	}
	name := opts.PrimaryKey
	switch {
	case len(pks) > 1:
		return fmt.Errorf("schema: table %q can have only one primary key", c.Name)
	case len(pks) == 1 && name != "" && pks[0].Name != name:
		return fmt.Errorf("schema: table %q can have only one primary key (%q was set on the table)", c.Name, name)
	case len(pks) == 1, opts.NoPrimaryKey:
		return nil
	}
	if name == "" {
		name = DefaultPrimaryKey
	}
	for _, col := range c.Columns {
		if col.Name == name {
			col.PrimaryKey = true
			return nil
		}
	}
	c.Columns = append([]*Column{{Name: name, Type: TypeSerial, PrimaryKey: true}}, c.Columns...)
	return nil
}

// BuildAlterTable builds the alteration of the named table using the given callback.
func BuildAlterTable(name string, fn func(*TableBuilder)) (*AlterTable, error) {
	if fn == nil {
		return nil, ErrMissingCallback
	}
	t := &TableBuilder{name: name}
	fn(t)
	if err := t.err(); err != nil {
		return nil, err
	}
	a := &AlterTable{
		Name:           name,
		Dropped:        t.dropped,
		Renamed:        t.renamed,
		DroppedIndexes: t.dropIdx,
		RenamedIndexes: t.renamedIdx,
	}
	for _, b := range t.columns {
		a.Added = append(a.Added, b.c)
	}
	for _, b := range t.indexes {
		a.AddedIndexes = append(a.AddedIndexes, b.index(name))
	}
	return a, nil
}

func (t *TableBuilder) err() error {
	return errors.Join(t.errs...)
}

// Name returns the name of the table being built.
func (t *TableBuilder) Name() string { return t.name }

// Column adds a column with the given abstract type.
func (t *TableBuilder) Column(name, typ string) *ColumnBuilder {
	b := &ColumnBuilder{t: t, c: &Column{Name: name, Type: typ}}
	t.columns = append(t.columns, b)
	return b
}

// Serial adds an auto-incrementing integer column.
func (t *TableBuilder) Serial(name string) *ColumnBuilder { return t.Column(name, TypeSerial) }

// Serial64 adds an auto-incrementing 64-bit integer column.
func (t *TableBuilder) Serial64(name string) *ColumnBuilder { return t.Column(name, TypeSerial64) }

// Integer adds an integer column.
func (t *TableBuilder) Integer(name string) *ColumnBuilder { return t.Column(name, TypeInteger) }

// Integer64 adds a 64-bit integer column.
func (t *TableBuilder) Integer64(name string) *ColumnBuilder { return t.Column(name, TypeInteger64) }

// Float adds a floating point column.
func (t *TableBuilder) Float(name string) *ColumnBuilder { return t.Column(name, TypeFloat) }

// Decimal adds a fixed-point column.
func (t *TableBuilder) Decimal(name string) *ColumnBuilder { return t.Column(name, TypeDecimal) }

// String adds a variable length string column.
func (t *TableBuilder) String(name string) *ColumnBuilder { return t.Column(name, TypeString) }

// Text adds a text column.
func (t *TableBuilder) Text(name string) *ColumnBuilder { return t.Column(name, TypeText) }

// Binary adds a binary column.
func (t *TableBuilder) Binary(name string) *ColumnBuilder { return t.Column(name, TypeBinary) }

// Bool adds a boolean column.
func (t *TableBuilder) Bool(name string) *ColumnBuilder { return t.Column(name, TypeBool) }

// Date adds a date column.
func (t *TableBuilder) Date(name string) *ColumnBuilder { return t.Column(name, TypeDate) }

// Time adds a time column.
func (t *TableBuilder) Time(name string) *ColumnBuilder { return t.Column(name, TypeTime) }

// DateTime adds a timestamp column.
func (t *TableBuilder) DateTime(name string) *ColumnBuilder { return t.Column(name, TypeDateTime) }

// Drop drops the given columns.
func (t *TableBuilder) Drop(names ...string) *TableBuilder {
	t.dropped = append(t.dropped, names...)
	return t
}

// Rename renames a column. The type is the abstract type of the column
// and must be set for dialects that restate the column on rename.
func (t *TableBuilder) Rename(from, to, typ string) *TableBuilder {
	t.renamed = append(t.renamed, &RenameColumn{From: from, To: to, Type: typ})
	return t
}

// Index adds an index on the given columns. The index name is
// generated from the table and column names unless set explicitly.
func (t *TableBuilder) Index(columns ...string) *IndexBuilder {
	b := &IndexBuilder{idx: &Index{Columns: columns}}
	if len(columns) == 0 {
		t.errs = append(t.errs, fmt.Errorf("schema: index on table %q has no columns", t.name))
	}
	t.indexes = append(t.indexes, b)
	return b
}

// DropIndex drops the index that was generated for the given columns.
func (t *TableBuilder) DropIndex(columns ...string) *TableBuilder {
	t.dropIdx = append(t.dropIdx, &Index{Name: IndexName(t.name, columns...), Columns: columns})
	return t
}

// DropIndexNamed drops an index by its name.
func (t *TableBuilder) DropIndexNamed(name string) *TableBuilder {
	t.dropIdx = append(t.dropIdx, &Index{Name: name})
	return t
}

// RenameIndex renames an index.
func (t *TableBuilder) RenameIndex(from, to string) *TableBuilder {
	t.renamedIdx = append(t.renamedIdx, &RenameIndex{From: from, To: to})
	return t
}

// Name sets the name of the index.
func (b *IndexBuilder) Name(name string) *IndexBuilder {
	b.idx.Name = name
	return b
}

// Unique marks the index as unique.
func (b *IndexBuilder) Unique() *IndexBuilder {
	b.idx.Unique = true
	return b
}

func (b *IndexBuilder) index(table string) *Index {
	if b.idx.Name == "" {
		b.idx.Name = IndexName(table, b.idx.Columns...)
	}
	return b.idx
}

// PrimaryKey marks the column as the primary key of the table.
func (b *ColumnBuilder) PrimaryKey() *ColumnBuilder {
	b.c.PrimaryKey = true
	return b
}

// PK is an alias for PrimaryKey.
func (b *ColumnBuilder) PK() *ColumnBuilder { return b.PrimaryKey() }

// NotNull marks the column as not nullable.
func (b *ColumnBuilder) NotNull() *ColumnBuilder {
	b.c.NotNull = true
	return b
}

// Unique adds a unique constraint on the column.
func (b *ColumnBuilder) Unique() *ColumnBuilder {
	b.c.Unique = true
	return b
}

// Default sets the default value of the column.
func (b *ColumnBuilder) Default(v any) *ColumnBuilder {
	b.c.Default, b.c.HasDefault = v, true
	return b
}

// Length sets the length of string columns.
func (b *ColumnBuilder) Length(n int) *ColumnBuilder {
	b.c.Options.Length = n
	return b
}

// Precision sets the precision of decimal columns.
func (b *ColumnBuilder) Precision(n int) *ColumnBuilder {
	b.c.Options.Precision = n
	return b
}

// Scale sets the scale of decimal columns.
func (b *ColumnBuilder) Scale(n int) *ColumnBuilder {
	b.c.Options.Scale = n
	return b
}

// References adds a foreign key on the column. The reference is either
// "table.column", or a plain "column" that refers to the table itself.
func (b *ColumnBuilder) References(ref string) *ColumnBuilder {
	parts := strings.Split(ref, ".")
	switch {
	case len(parts) == 1 && parts[0] != "":
		b.c.References = &Reference{Table: b.t.name, Column: parts[0]}
	case len(parts) == 2 && parts[0] != "" && parts[1] != "":
		b.c.References = &Reference{Table: parts[0], Column: parts[1]}
	default:
		b.t.errs = append(b.t.errs, fmt.Errorf("schema: invalid foreign key %q on column %q", ref, b.c.Name))
	}
	return b
}

// OnDelete sets the action of the foreign key on deletion.
func (b *ColumnBuilder) OnDelete(action string) *ColumnBuilder {
	b.action(action, func(r *Reference, a Action) { r.OnDelete = a })
	return b
}

// OnUpdate sets the action of the foreign key on update.
func (b *ColumnBuilder) OnUpdate(action string) *ColumnBuilder {
	b.action(action, func(r *Reference, a Action) { r.OnUpdate = a })
	return b
}

func (b *ColumnBuilder) action(s string, set func(*Reference, Action)) {
	a, err := ParseAction(s)
	switch {
	case err != nil:
		b.t.errs = append(b.t.errs, fmt.Errorf("schema: %w", err))
	case b.c.References == nil:
		b.t.errs = append(b.t.errs, fmt.Errorf("schema: foreign key action %q on column %q without a reference", s, b.c.Name))
	default:
		set(b.c.References, a)
	}
}
