// Copyright 2021-present The Atlas Authors. All rights reserved.
// This source code is licensed under the Apache 2.0 license found
// in the LICENSE file in the root directory of this source tree.

// Package migrate provides the entry point for describing and executing
// schema changes and raw queries on a sqlclient.Client.
package migrate

import (
	"context"
	"fmt"
	"strings"

	"ariga.io/maguey/sql/dialect"
	"ariga.io/maguey/sql/schema"
	"ariga.io/maguey/sql/sqlclient"
)

// ProcedurePrefix prefixes the representative SQL of changes that
// are executed as a procedure of multiple statements.
const ProcedurePrefix = "-- procedure for "

type (
	// Entry is the entry point for building queries on a client.
	Entry struct {
		c  *sqlclient.Client
		tx *sqlclient.Tx
	}

	// Schema builds schema change queries. A Schema is immutable.
	Schema struct {
		e    *Entry
		mode mode
	}

	// A Query is a schema change or a raw statement that can be inspected
	// and executed. Queries are immutable, and their modifiers return new
	// queries. A query is executed at most once, and all calls to Exec
	// share the outcome of the first execution.
	Query struct {
		e      *Entry
		mode   mode
		kind   kind
		name   string
		to     string
		fns    []func(*schema.TableBuilder)
		opts   schema.CreateOptions
		ifExt  bool
		raw    dialect.Statement
		script []*Stmt
		perr   error // construction error

		// Compiled state.
		change schema.Change
		stmt   dialect.Statement
		proc   *dialect.Procedure
		err    error
		action *Actionable[*dialect.Result]
	}

	mode uint8
	kind uint8
)

const (
	modeForward mode = iota
	modeReverse
	modeReversible
)

const (
	kindCreate kind = iota
	kindAlter
	kindDrop
	kindRename
	kindRaw
	kindFetch
	kindScript
)

func (k kind) String() string {
	switch k {
	case kindCreate:
		return "create table"
	case kindAlter:
		return "alter table"
	case kindDrop:
		return "drop table"
	case kindRename:
		return "rename table"
	case kindScript:
		return "script"
	default:
		return "raw query"
	}
}

// New returns an Entry for the given client.
func New(c *sqlclient.Client) *Entry {
	return &Entry{c: c}
}

// Client returns the client of the entry.
func (e *Entry) Client() *sqlclient.Client { return e.c }

// Transaction returns a copy of the entry that executes its queries in the
// given transaction. The transaction must be open when queries are executed.
func (e *Entry) Transaction(tx *sqlclient.Tx) *Entry {
	return &Entry{c: e.c, tx: tx}
}

// Schema returns the schema builder of the entry.
func (e *Entry) Schema() *Schema {
	return &Schema{e: e}
}

// Raw returns a query that executes the given statement.
func (e *Entry) Raw(sql string, args ...any) *Query {
	return e.query(&Query{kind: kindRaw, raw: dialect.Statement{SQL: sql, Args: args}})
}

// Fetch returns a query that executes the given statement and
// returns its rows. See Query.Rows.
func (e *Entry) Fetch(sql string, args ...any) *Query {
	return e.query(&Query{kind: kindFetch, raw: dialect.Statement{SQL: sql, Args: args}})
}

// Where returns a query that fetches the rows of the table that match
// the given predicate. For example:
//
//	e.Where("people", "firstName", dialect.IStartsWith, "wh")
func (e *Entry) Where(table, field, predicate string, v any) *Query {
	d := e.c.Dialect
	f, err := d.Translator.Where(d.Grammar, field, predicate, v)
	if err != nil {
		return e.query(&Query{kind: kindFetch, perr: fmt.Errorf("migrate: where: %w", err)})
	}
	f = d.Grammar.Join(dialect.Raw("SELECT * FROM "+d.Grammar.Field(table)+" WHERE "), f)
	return e.query(&Query{kind: kindFetch, raw: f.Statement()})
}

// Script returns a query that executes the statements of the given script
// in a single transaction.
func (e *Entry) Script(script string) *Query {
	stmts, err := Split(script)
	return e.query(&Query{kind: kindScript, script: stmts, perr: err})
}

func (e *Entry) query(q *Query) *Query {
	q.e = e
	return q.compile()
}

// Reverse returns a schema builder that produces the reverse of the
// described changes. For example, a table creation becomes a removal.
func (s *Schema) Reverse() *Schema {
	return &Schema{e: s.e, mode: modeReverse}
}

// Reversible returns a schema builder that fails describing changes
// that cannot be reversed.
func (s *Schema) Reversible() *Schema {
	return &Schema{e: s.e, mode: modeReversible}
}

// CreateTable returns a query that creates the named table.
func (s *Schema) CreateTable(name string, fn func(*schema.TableBuilder)) *Query {
	return s.query(&Query{kind: kindCreate, name: name, fns: callbacks(fn)})
}

// AlterTable returns a query that alters the named table.
func (s *Schema) AlterTable(name string, fn func(*schema.TableBuilder)) *Query {
	return s.query(&Query{kind: kindAlter, name: name, fns: callbacks(fn)})
}

// DropTable returns a query that drops the named table.
func (s *Schema) DropTable(name string) *Query {
	return s.query(&Query{kind: kindDrop, name: name})
}

// RenameTable returns a query that renames a table.
func (s *Schema) RenameTable(from, to string) *Query {
	return s.query(&Query{kind: kindRename, name: from, to: to})
}

// Change returns the query of a change that was decoded from a change file.
func (s *Schema) Change(spec *schema.ChangeSpec) *Query {
	switch spec.Block {
	case schema.BlockCreateTable:
		q := s.CreateTable(spec.Table, spec.Build)
		switch {
		case spec.WithoutPrimaryKey:
			q = q.WithoutPrimaryKey()
		case spec.PrimaryKey != "":
			q = q.PrimaryKey(spec.PrimaryKey)
		}
		if spec.IfNotExists {
			q = q.UnlessExists()
		}
		return q
	case schema.BlockAlterTable:
		return s.AlterTable(spec.Table, spec.Build)
	case schema.BlockDropTable:
		q := s.DropTable(spec.Table)
		if spec.IfExists {
			q = q.IfExists()
		}
		return q
	case schema.BlockRenameTable:
		return s.RenameTable(spec.Table, spec.To)
	default:
		return s.query(&Query{kind: kindRaw, perr: fmt.Errorf("migrate: unknown change block %q", spec.Block)})
	}
}

func (s *Schema) query(q *Query) *Query {
	q.e, q.mode = s.e, s.mode
	return q.compile()
}

func callbacks(fn func(*schema.TableBuilder)) []func(*schema.TableBuilder) {
	if fn == nil {
		return nil
	}
	return []func(*schema.TableBuilder){fn}
}

// UnlessExists returns a copy of the table creation that is skipped
// if the table already exists.
func (q *Query) UnlessExists() *Query {
	return q.modify(kindCreate, "UnlessExists", func(q *Query) { q.opts.IfNotExists = true })
}

// IfExists returns a copy of the table removal that is skipped
// if the table does not exist.
func (q *Query) IfExists() *Query {
	return q.modify(kindDrop, "IfExists", func(q *Query) { q.ifExt = true })
}

// PrimaryKey returns a copy of the table creation that uses
// the named column as its primary key.
func (q *Query) PrimaryKey(name string) *Query {
	return q.modify(kindCreate, "PrimaryKey", func(q *Query) {
		q.opts.PrimaryKey, q.opts.NoPrimaryKey = name, false
	})
}

// WithoutPrimaryKey returns a copy of the table creation
// that does not add a primary key column.
func (q *Query) WithoutPrimaryKey() *Query {
	return q.modify(kindCreate, "WithoutPrimaryKey", func(q *Query) {
		q.opts.PrimaryKey, q.opts.NoPrimaryKey = "", true
	})
}

// With returns a copy of the table creation or alteration that also
// applies the given callback on the table.
func (q *Query) With(fn func(*schema.TableBuilder)) *Query {
	if q.kind != kindAlter {
		return q.modify(kindCreate, "With", func(q *Query) { q.fns = append(q.fns, fn) })
	}
	return q.modify(kindAlter, "With", func(q *Query) { q.fns = append(q.fns, fn) })
}

// Transaction returns a copy of the query that is executed in the given transaction.
func (q *Query) Transaction(tx *sqlclient.Tx) *Query {
	c := q.clone()
	c.e = q.e.Transaction(tx)
	return c.compile()
}

func (q *Query) modify(k kind, name string, f func(*Query)) *Query {
	c := q.clone()
	if q.kind != k {
		c.perr = fmt.Errorf("migrate: %s is not supported by %s queries", name, q.kind)
	} else {
		f(c)
	}
	return c.compile()
}

func (q *Query) clone() *Query {
	c := *q
	c.fns = append([]func(*schema.TableBuilder){}, q.fns...)
	c.change, c.stmt, c.proc, c.err, c.action = nil, dialect.Statement{}, nil, nil, nil
	return &c
}

// compile builds the change and its statement, and resolves the
// procedure that executes it, if one is needed.
func (q *Query) compile() *Query {
	q.action = NewActionable(q.run)
	if q.err = q.perr; q.err != nil {
		return q
	}
	d := q.e.c.Dialect
	switch q.kind {
	case kindRaw, kindFetch:
		q.stmt = q.raw
		return q
	case kindScript:
		texts := make([]string, len(q.script))
		for i, s := range q.script {
			texts[i] = s.Text
		}
		q.stmt = dialect.Statement{SQL: strings.Join(texts, "\n")}
		return q
	}
	if q.change, q.err = q.build(); q.err != nil {
		return q
	}
	var err error
	switch c := q.change.(type) {
	case *schema.CreateTable:
		if q.stmt, err = d.Phrasing.CreateTable(c); err == nil && d.Procedures != nil {
			q.proc, err = d.Procedures.CreateTable(c)
		}
	case *schema.AlterTable:
		if q.stmt, err = d.Phrasing.AlterTable(c); err == nil && d.Procedures != nil && !c.Empty() {
			q.proc, err = d.Procedures.AlterTable(c)
		}
	case *schema.DropTable:
		q.stmt = d.Phrasing.DropTable(c)
	case *schema.RenameTable:
		q.stmt = d.Phrasing.RenameTable(c)
	}
	if err != nil {
		q.err = fmt.Errorf("migrate: %s %q: %w", q.kind, q.name, err)
		return q
	}
	if q.proc != nil {
		q.stmt = dialect.Statement{SQL: ProcedurePrefix + q.stmt.SQL, Args: q.stmt.Args}
	}
	return q
}

// build builds the schema change described by the query, and
// applies the reverse rules of its schema mode.
func (q *Query) build() (schema.Change, error) {
	var (
		c   schema.Change
		err error
	)
	switch q.kind {
	case kindCreate:
		c, err = schema.BuildCreateTable(q.name, q.callback(), q.opts)
	case kindAlter:
		c, err = schema.BuildAlterTable(q.name, q.callback())
	case kindDrop:
		c = &schema.DropTable{Name: q.name, IfExists: q.ifExt}
	case kindRename:
		c = &schema.RenameTable{From: q.name, To: q.to}
	}
	if err != nil {
		return nil, err
	}
	switch q.mode {
	case modeReverse:
		return schema.Reverse(c)
	case modeReversible:
		if err := schema.CheckReversible(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (q *Query) callback() func(*schema.TableBuilder) {
	if len(q.fns) == 0 {
		return nil
	}
	return func(t *schema.TableBuilder) {
		for _, fn := range q.fns {
			if fn != nil {
				fn(t)
			}
		}
	}
}

// Change returns the schema change of the query, if it is one.
func (q *Query) Change() (schema.Change, error) {
	return q.change, q.err
}

// Statement returns the statement of the query. For changes that are
// executed as a procedure, the statement is a representative comment.
func (q *Query) Statement() (dialect.Statement, error) {
	return q.stmt, q.err
}

// SQL returns the SQL text of the query statement.
func (q *Query) SQL() string { return q.stmt.SQL }

// Args returns the arguments of the query statement.
func (q *Query) Args() []any { return q.stmt.Args }

// Err returns the error of the query construction, if any.
func (q *Query) Err() error { return q.err }

// Exec executes the query. Subsequent calls do not execute
// the query again, and return the result of the first call.
func (q *Query) Exec(ctx context.Context) error {
	_, err := q.action.Execute(ctx)
	return err
}

// Rows executes the query and returns its rows. Only queries
// created by Entry.Fetch or Entry.Where return rows.
func (q *Query) Rows(ctx context.Context) (*dialect.Result, error) {
	return q.action.Execute(ctx)
}

// Executed reports if the query was executed.
func (q *Query) Executed() bool { return q.action.Settled() }

func (q *Query) run(ctx context.Context) (*dialect.Result, error) {
	if q.err != nil {
		return nil, q.err
	}
	c, tx := q.e.c, q.e.tx
	if t, ok := ctx.Value(txKey{}).(*sqlclient.Tx); ok {
		tx = t
	}
	if tx != nil && !tx.Open() {
		return nil, sqlclient.ErrTxNotOpen
	}
	var eq dialect.ExecQuerier = c
	if tx != nil {
		eq = tx
	}
	switch {
	case q.kind == kindFetch:
		return eq.Query(ctx, q.stmt)
	case q.proc != nil:
		return nil, c.InTx(ctx, tx, q.proc.Run)
	case q.kind == kindScript && len(q.script) > 1:
		return nil, c.InTx(ctx, tx, func(ctx context.Context, eq dialect.ExecQuerier) error {
			for _, s := range q.script {
				if err := eq.Exec(ctx, dialect.Statement{SQL: s.Text}); err != nil {
					return fmt.Errorf("migrate: script line %d: %w", s.Line, err)
				}
			}
			return nil
		})
	case q.stmt.Empty():
		return nil, nil
	default:
		return nil, eq.Exec(ctx, q.stmt)
	}
}

// txKey carries the transaction of an ExecAll call to the queries it runs.
type txKey struct{}

// ExecAll executes the given queries in order in a single transaction.
// If the entry is bound to a transaction, a nested one is used. Queries
// that were already executed are not executed again, and their recorded
// outcome is used instead.
func (e *Entry) ExecAll(ctx context.Context, qs ...*Query) error {
	for _, q := range qs {
		if q.err != nil {
			return q.err
		}
	}
	tx := e.tx
	if tx != nil && !tx.Open() {
		return sqlclient.ErrTxNotOpen
	}
	if tx == nil {
		tx = e.c.Tx()
	}
	return e.c.InTx(ctx, tx, func(ctx context.Context, _ dialect.ExecQuerier) error {
		ctx = context.WithValue(ctx, txKey{}, tx)
		for _, q := range qs {
			if err := q.Exec(ctx); err != nil {
				return err
			}
		}
		return nil
	})
}
