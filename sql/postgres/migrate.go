// Copyright 2021-present The Atlas Authors. All rights reserved.
// This source code is licensed under the Apache 2.0 license found
// in the LICENSE file in the root directory of this source tree.

package postgres

import (
	"fmt"

	"ariga.io/maguey/sql/dialect"
	"ariga.io/maguey/sql/internal/sqlx"
	"ariga.io/maguey/sql/schema"
)

// procedures implements dialect.Procedures for PostgreSQL. Indexes are
// not part of the CREATE TABLE and ALTER TABLE statements in PostgreSQL,
// and are managed using their standalone statements.
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

// AlterTable returns a procedure if the alteration requires more than one
// statement. A single statement can express only one of: a column rename,
// an index operation, or the column additions and removals.
func (m *procedures) AlterTable(a *schema.AlterTable) (*dialect.Procedure, error) {
	base := &schema.AlterTable{Name: a.Name, Added: a.Added, Dropped: a.Dropped}
	ops := len(a.Renamed) + a.IndexOps()
	if !base.Empty() {
		ops++
	}
	if ops <= 1 {
		return nil, nil
	}
	proc := &dialect.Procedure{}
	if !base.Empty() {
		s, err := m.p.AlterTable(base)
		if err != nil {
			return nil, err
		}
		proc.Exec(s)
	}
	for _, r := range a.Renamed {
		s, err := m.p.AlterTable(&schema.AlterTable{Name: a.Name, Renamed: []*schema.RenameColumn{r}})
		if err != nil {
			return nil, fmt.Errorf("postgres: rename column %q: %w", r.From, err)
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
		proc.Exec(m.p.RenameIndex(a.Name, r))
	}
	return proc, nil
}
