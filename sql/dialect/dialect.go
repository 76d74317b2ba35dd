// Copyright 2021-present The Atlas Authors. All rights reserved.
// This source code is licensed under the Apache 2.0 license found
// in the LICENSE file in the root directory of this source tree.

// Package dialect holds the building blocks that are shared by all SQL
// dialects: statements, grammars, translators and the contracts of the
// dialect phrasing and procedures.
package dialect

import (
	"fmt"
	"sort"
	"sync"

	"ariga.io/maguey/sql/schema"
)

type (
	// Phrasing expresses schema changes as SQL statements. For alterations
	// that a dialect can not execute as a single statement, the phrasing
	// still returns a representative statement, and the work is done by a
	// Procedure returned from the dialect Procedures.
	Phrasing interface {
		CreateTable(*schema.CreateTable) (Statement, error)
		// AlterTable returns an empty statement if there is nothing to alter.
		AlterTable(*schema.AlterTable) (Statement, error)
		DropTable(*schema.DropTable) Statement
		RenameTable(*schema.RenameTable) Statement
		CreateIndex(table string, idx *schema.Index) Statement
		DropIndex(table string, idx *schema.Index) Statement
		RenameIndex(table string, r *schema.RenameIndex) Statement

		// Transaction control. A depth of 0 is the outermost transaction,
		// and n is the connection-unique number of the transaction, used
		// for naming savepoints.
		Begin(depth, n int) Statement
		Commit(depth, n int) Statement
		Rollback(depth, n int) Statement
	}

	// Procedures decides which schema changes require a procedure. A nil
	// procedure means the phrasing statement is executed as is.
	Procedures interface {
		CreateTable(*schema.CreateTable) (*Procedure, error)
		AlterTable(*schema.AlterTable) (*Procedure, error)
	}

	// A Dialect groups the components of a specific database.
	Dialect struct {
		Name       string
		Grammar    *Grammar
		Translator *Translator
		Phrasing   Phrasing
		Procedures Procedures
		// SavepointTx reports if the outermost transaction is
		// a savepoint too, and must be released after a rollback.
		SavepointTx bool
	}
)

// SavepointPrefix is the prefix of the savepoints created by nested transactions.
const SavepointPrefix = "AZULJS_"

// Savepoint returns the name of the n-th savepoint of a connection.
func Savepoint(n int) string {
	return fmt.Sprintf("%s%d", SavepointPrefix, n)
}

var dialects sync.Map

// Register registers the dialect by its name and the given aliases.
func Register(d *Dialect, aliases ...string) {
	if d == nil || d.Phrasing == nil || d.Grammar == nil {
		panic("dialect: Register dialect is incomplete")
	}
	for _, name := range append([]string{d.Name}, aliases...) {
		if _, dup := dialects.LoadOrStore(name, d); dup {
			panic("dialect: Register called twice for " + name)
		}
	}
}

// Lookup returns the registered dialect with the given name.
func Lookup(name string) (*Dialect, error) {
	d, ok := dialects.Load(name)
	if !ok {
		return nil, fmt.Errorf("dialect: unknown dialect %q", name)
	}
	return d.(*Dialect), nil
}

// Names returns the sorted names of the registered dialects and their aliases.
func Names() []string {
	var names []string
	dialects.Range(func(k, _ any) bool {
		names = append(names, k.(string))
		return true
	})
	sort.Strings(names)
	return names
}
