// Copyright 2021-present The Atlas Authors. All rights reserved.
// This source code is licensed under the Apache 2.0 license found
// in the LICENSE file in the root directory of this source tree.

package schema

type (
	// A Change represents a schema change. The types below implement this
	// interface and are handed to the dialect phrasing and procedures.
	Change interface {
		change()
	}

	// CreateTable describes a table creation change.
	CreateTable struct {
		Name        string
		Columns     []*Column
		Indexes     []*Index
		IfNotExists bool
	}

	// DropTable describes a table removal change.
	DropTable struct {
		Name     string
		IfExists bool
	}

	// RenameTable describes a table rename change.
	RenameTable struct {
		From, To string
	}

	// AlterTable describes the changes that are applied on an existing table.
	// Operations are applied in the following order: dropped columns, added
	// columns, renamed columns, dropped indexes, added indexes and renamed indexes.
	AlterTable struct {
		Name           string
		Added          []*Column
		Dropped        []string
		Renamed        []*RenameColumn
		AddedIndexes   []*Index
		DroppedIndexes []*Index
		RenamedIndexes []*RenameIndex
	}

	// RenameColumn describes a column rename. The Type is required only by
	// dialects that must restate the column definition (i.e. MySQL).
	RenameColumn struct {
		From, To string
		Type     string
		Options  TypeOptions
	}

	// RenameIndex describes an index rename.
	RenameIndex struct {
		From, To string
	}
)

// Empty reports if the alteration holds no operations.
func (a *AlterTable) Empty() bool {
	return a.Ops() == 0
}

// Ops returns the total number of operations in the alteration.
func (a *AlterTable) Ops() int {
	return len(a.Added) + len(a.Dropped) + len(a.Renamed) +
		len(a.AddedIndexes) + len(a.DroppedIndexes) + len(a.RenamedIndexes)
}

// IndexOps returns the number of index operations in the alteration.
func (a *AlterTable) IndexOps() int {
	return len(a.AddedIndexes) + len(a.DroppedIndexes) + len(a.RenamedIndexes)
}

// Clone returns a deep copy of the alteration.
func (a *AlterTable) Clone() *AlterTable {
	c := &AlterTable{Name: a.Name, Dropped: append([]string(nil), a.Dropped...)}
	for _, col := range a.Added {
		c.Added = append(c.Added, col.Clone())
	}
	for _, r := range a.Renamed {
		rr := *r
		c.Renamed = append(c.Renamed, &rr)
	}
	for _, idx := range a.AddedIndexes {
		c.AddedIndexes = append(c.AddedIndexes, idx.Clone())
	}
	for _, idx := range a.DroppedIndexes {
		c.DroppedIndexes = append(c.DroppedIndexes, idx.Clone())
	}
	for _, r := range a.RenamedIndexes {
		rr := *r
		c.RenamedIndexes = append(c.RenamedIndexes, &rr)
	}
	return c
}

// Clone returns a deep copy of the table creation.
func (c *CreateTable) Clone() *CreateTable {
	cc := &CreateTable{Name: c.Name, IfNotExists: c.IfNotExists}
	for _, col := range c.Columns {
		cc.Columns = append(cc.Columns, col.Clone())
	}
	for _, idx := range c.Indexes {
		cc.Indexes = append(cc.Indexes, idx.Clone())
	}
	return cc
}

// changes.
func (*CreateTable) change() {}
func (*DropTable) change()   {}
func (*RenameTable) change() {}
func (*AlterTable) change()  {}
