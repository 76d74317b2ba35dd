// Copyright 2021-present The Atlas Authors. All rights reserved.
// This source code is licensed under the Apache 2.0 license found
// in the LICENSE file in the root directory of this source tree.

package dialect

import (
	"reflect"
	"strings"
)

type (
	// Statement is a complete SQL statement and its positional arguments.
	// Statements are values and are never mutated after creation.
	Statement struct {
		SQL  string
		Args []any
	}

	// Fragment is a piece of SQL that is joined with other fragments
	// (using a Grammar) to compose a Statement.
	Fragment struct {
		SQL  string
		Args []any
	}
)

// Raw returns a fragment of raw SQL text.
func Raw(sql string, args ...any) Fragment {
	return Fragment{SQL: sql, Args: args}
}

// Statement converts the fragment to a statement.
func (f Fragment) Statement() Statement {
	return Statement{SQL: f.SQL, Args: f.Args}
}

// Empty reports if the fragment holds no SQL.
func (f Fragment) Empty() bool {
	return strings.TrimSpace(f.SQL) == ""
}

// String implements the fmt.Stringer interface.
func (s Statement) String() string { return s.SQL }

// Empty reports if the statement holds no SQL. An empty statement is
// returned by phrasing that has nothing to express (e.g. an empty alteration).
func (s Statement) Empty() bool {
	return strings.TrimSpace(s.SQL) == ""
}

// Equal reports if the two statements are structurally equal.
func (s Statement) Equal(o Statement) bool {
	if s.SQL != o.SQL || len(s.Args) != len(o.Args) {
		return false
	}
	for i := range s.Args {
		if !reflect.DeepEqual(s.Args[i], o.Args[i]) {
			return false
		}
	}
	return true
}

// Fragment converts the statement to a fragment for further composition.
func (s Statement) Fragment() Fragment {
	return Fragment{SQL: s.SQL, Args: s.Args}
}
