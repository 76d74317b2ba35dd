// Copyright 2021-present The Atlas Authors. All rights reserved.
// This source code is licensed under the Apache 2.0 license found
// in the LICENSE file in the root directory of this source tree.

package sqlx

import (
	"fmt"

	"ariga.io/maguey/sql/dialect"
	"ariga.io/maguey/sql/schema"
)

// Phrasing implements the dialect.Phrasing interface using the
// standard SQL forms. Dialects configure its fields for the parts
// where they diverge from the standard.
type Phrasing struct {
	Grammar    *dialect.Grammar
	Translator *dialect.Translator

	// TableForeignKeys expresses column references as table constraints
	// (i.e. FOREIGN KEY (c) REFERENCES t (c)) instead of inline ones.
	TableForeignKeys bool

	// DropIndexOnTable appends the table name to standalone DROP INDEX statements.
	DropIndexOnTable bool

	// RenameIndexOnTable renames indexes using ALTER TABLE t RENAME INDEX.
	RenameIndexOnTable bool

	// Savepoints uses savepoints also for the outermost transaction.
	Savepoints bool

	// RenameColumn writes the ALTER TABLE clause of a column rename.
	// Defaults to: RENAME "from" TO "to".
	RenameColumn func(*Builder, *schema.RenameColumn) error
}

var _ dialect.Phrasing = (*Phrasing)(nil)

// Build instantiates a new builder and writes the given phrases to it.
func (p *Phrasing) Build(phrases ...string) *Builder {
	b := &Builder{QuoteChar: p.Grammar.QuoteChar}
	return b.P(phrases...)
}

// CreateTable implements dialect.Phrasing.
func (p *Phrasing) CreateTable(c *schema.CreateTable) (dialect.Statement, error) {
	var err error
	b := p.Build("CREATE TABLE")
	if c.IfNotExists {
		b.P("IF NOT EXISTS")
	}
	b.Ident(c.Name).Wrap(func(b *Builder) {
		b.MapComma(c.Columns, func(i int, b *Builder) {
			if cerr := p.Column(b, c.Columns[i]); cerr != nil && err == nil {
				err = cerr
			}
		})
		if p.TableForeignKeys {
			for _, col := range c.Columns {
				if col.References != nil {
					b.Comma()
					p.ForeignKey(b, col)
				}
			}
		}
		for _, idx := range c.Indexes {
			b.Comma()
			p.inlineIndex(b, idx)
		}
	})
	if err != nil {
		return dialect.Statement{}, fmt.Errorf("create table %q: %w", c.Name, err)
	}
	return b.Stmt(), nil
}

// Column writes the definition of the column.
func (p *Phrasing) Column(b *Builder, c *schema.Column) error {
	t, err := p.Translator.Type(c.Type, c.Options)
	if err != nil {
		return fmt.Errorf("column %q: %w", c.Name, err)
	}
	b.Ident(c.Name).P(t)
	if c.PrimaryKey {
		b.P("PRIMARY KEY")
	}
	if c.NotNull {
		b.P("NOT NULL")
	}
	if c.Unique {
		b.P("UNIQUE")
	}
	if c.HasDefault {
		b.P("DEFAULT", p.Grammar.Escape(c.Default))
	}
	if c.References != nil && !p.TableForeignKeys {
		p.References(b, c.References)
	}
	return nil
}

// References writes the REFERENCES clause of a foreign key.
func (p *Phrasing) References(b *Builder, r *schema.Reference) {
	b.P("REFERENCES").Ident(r.Table).Wrap(func(b *Builder) {
		b.Ident(r.Column)
	})
	if r.OnDelete != "" {
		b.P("ON DELETE", string(r.OnDelete))
	}
	if r.OnUpdate != "" {
		b.P("ON UPDATE", string(r.OnUpdate))
	}
}

// ForeignKey writes the table constraint of a column reference.
func (p *Phrasing) ForeignKey(b *Builder, c *schema.Column) {
	b.P("FOREIGN KEY").Wrap(func(b *Builder) {
		b.Ident(c.Name)
	})
	p.References(b, c.References)
}

// IndexColumns writes the parenthesized column list of an index.
func (p *Phrasing) IndexColumns(b *Builder, columns []string) {
	b.Wrap(func(b *Builder) {
		b.MapComma(columns, func(i int, b *Builder) {
			b.Ident(columns[i])
		})
	})
}

func (p *Phrasing) inlineIndex(b *Builder, idx *schema.Index) {
	if idx.Unique {
		b.P("UNIQUE")
	}
	b.P("INDEX").Ident(idx.Name)
	p.IndexColumns(b, idx.Columns)
}

// AlterTable implements dialect.Phrasing. The clauses are written in the
// order: dropped columns, added columns, renames, dropped indexes, added
// indexes and renamed indexes. A single index operation is expressed using
// its standalone statement.
func (p *Phrasing) AlterTable(a *schema.AlterTable) (dialect.Statement, error) {
	switch {
	case a.Empty():
		return dialect.Statement{}, nil
	case a.Ops() == 1 && len(a.AddedIndexes) == 1:
		return p.CreateIndex(a.Name, a.AddedIndexes[0]), nil
	case a.Ops() == 1 && len(a.DroppedIndexes) == 1:
		return p.DropIndex(a.Name, a.DroppedIndexes[0]), nil
	case a.Ops() == 1 && len(a.RenamedIndexes) == 1:
		return p.RenameIndex(a.Name, a.RenamedIndexes[0]), nil
	}
	b := p.Build("ALTER TABLE").Ident(a.Name)
	if err := p.AlterClauses(b, a); err != nil {
		return dialect.Statement{}, err
	}
	return b.Stmt(), nil
}

// AlterClauses writes the comma separated clauses of the alteration.
func (p *Phrasing) AlterClauses(b *Builder, a *schema.AlterTable) error {
	var (
		err   error
		first = true
	)
	clause := func(phrases ...string) *Builder {
		if !first {
			b.Comma()
		}
		first = false
		return b.P(phrases...)
	}
	for _, name := range a.Dropped {
		clause("DROP COLUMN").Ident(name)
	}
	for _, c := range a.Added {
		if err = p.Column(clause("ADD COLUMN"), c); err != nil {
			return fmt.Errorf("alter table %q: %w", a.Name, err)
		}
		if p.TableForeignKeys && c.References != nil {
			p.ForeignKey(clause("ADD"), c)
		}
	}
	for _, r := range a.Renamed {
		clause()
		if err = p.renameColumn(b, r); err != nil {
			return fmt.Errorf("alter table %q: %w", a.Name, err)
		}
	}
	for _, idx := range a.DroppedIndexes {
		clause("DROP INDEX").Ident(idx.Name)
	}
	for _, idx := range a.AddedIndexes {
		clause("ADD")
		p.inlineIndex(b, idx)
	}
	for _, r := range a.RenamedIndexes {
		clause("RENAME INDEX").Ident(r.From).P("TO").Ident(r.To)
	}
	return nil
}

func (p *Phrasing) renameColumn(b *Builder, r *schema.RenameColumn) error {
	if p.RenameColumn != nil {
		return p.RenameColumn(b, r)
	}
	b.P("RENAME").Ident(r.From).P("TO").Ident(r.To)
	return nil
}

// DropTable implements dialect.Phrasing.
func (p *Phrasing) DropTable(d *schema.DropTable) dialect.Statement {
	b := p.Build("DROP TABLE")
	if d.IfExists {
		b.P("IF EXISTS")
	}
	return b.Ident(d.Name).Stmt()
}

// RenameTable implements dialect.Phrasing.
func (p *Phrasing) RenameTable(r *schema.RenameTable) dialect.Statement {
	return p.Build("ALTER TABLE").Ident(r.From).P("RENAME TO").Ident(r.To).Stmt()
}

// CreateIndex implements dialect.Phrasing.
func (p *Phrasing) CreateIndex(table string, idx *schema.Index) dialect.Statement {
	b := p.Build("CREATE")
	if idx.Unique {
		b.P("UNIQUE")
	}
	b.P("INDEX").Ident(idx.Name).P("ON").Ident(table)
	p.IndexColumns(b, idx.Columns)
	return b.Stmt()
}

// DropIndex implements dialect.Phrasing.
func (p *Phrasing) DropIndex(table string, idx *schema.Index) dialect.Statement {
	b := p.Build("DROP INDEX").Ident(idx.Name)
	if p.DropIndexOnTable {
		b.P("ON").Ident(table)
	}
	return b.Stmt()
}

// RenameIndex implements dialect.Phrasing.
func (p *Phrasing) RenameIndex(table string, r *schema.RenameIndex) dialect.Statement {
	if p.RenameIndexOnTable {
		return p.Build("ALTER TABLE").Ident(table).P("RENAME INDEX").Ident(r.From).P("TO").Ident(r.To).Stmt()
	}
	return p.Build("ALTER INDEX").Ident(r.From).P("RENAME TO").Ident(r.To).Stmt()
}

// Begin implements dialect.Phrasing.
func (p *Phrasing) Begin(depth, n int) dialect.Statement {
	switch {
	case p.Savepoints:
		return p.Build("SAVEPOINT", dialect.Savepoint(n)).Stmt()
	case depth == 0:
		return p.Build("BEGIN").Stmt()
	default:
		return p.Build("SAVEPOINT", dialect.Savepoint(n)).Stmt()
	}
}

// Commit implements dialect.Phrasing.
func (p *Phrasing) Commit(depth, n int) dialect.Statement {
	switch {
	case p.Savepoints:
		return p.Build("RELEASE", dialect.Savepoint(n)).Stmt()
	case depth == 0:
		return p.Build("COMMIT").Stmt()
	default:
		return p.Build("RELEASE SAVEPOINT", dialect.Savepoint(n)).Stmt()
	}
}

// Rollback implements dialect.Phrasing.
func (p *Phrasing) Rollback(depth, n int) dialect.Statement {
	switch {
	case p.Savepoints:
		return p.Build("ROLLBACK TO", dialect.Savepoint(n)).Stmt()
	case depth == 0:
		return p.Build("ROLLBACK").Stmt()
	default:
		return p.Build("ROLLBACK TO SAVEPOINT", dialect.Savepoint(n)).Stmt()
	}
}
