// Copyright 2021-present The Atlas Authors. All rights reserved.
// This source code is licensed under the Apache 2.0 license found
// in the LICENSE file in the root directory of this source tree.

package sqlite

import (
	"ariga.io/maguey/sql/dialect"
	"ariga.io/maguey/sql/schema"
)

// LIKE patterns escape their wildcards using a backslash, that has
// to be declared explicitly in SQLite.
const (
	likeFormat  = `%s LIKE %s ESCAPE '\'`
	ilikeFormat = `UPPER(%s) LIKE UPPER(%s) ESCAPE '\'`
)

// Booleans are stored as 0 and 1, and dates and timestamps are stored
// as numbers (milliseconds since epoch). Serial columns are integers
// that track the ROWID when defined as the primary key.
var overrides = dialect.Overrides{
	Predicates: map[string]func(dialect.Predicate) dialect.Predicate{
		dialect.IExact:      using(ilikeFormat),
		dialect.Contains:    using(likeFormat),
		dialect.IContains:   using(ilikeFormat),
		dialect.StartsWith:  using(likeFormat),
		dialect.IStartsWith: using(ilikeFormat),
		dialect.EndsWith:    using(likeFormat),
		dialect.IEndsWith:   using(ilikeFormat),
		dialect.Regex:       using(`%s REGEXP '/' || %s || '/'`),
		dialect.IRegex:      using(`%s REGEXP '/' || %s || '/i'`),
		dialect.Year:        strftime("%Y"),
		dialect.Month:       strftime("%m"),
		dialect.Day:         strftime("%d"),
		dialect.Weekday:     strftime("%w"),
		dialect.Hour:        strftime("%H"),
		dialect.Minute:      strftime("%M"),
		dialect.Second:      strftime("%S"),
	},
	Types: map[string]dialect.TypeFunc{
		schema.TypeSerial:   dialect.Static("integer"),
		schema.TypeSerial64: dialect.Static("integer"),
		schema.TypeFloat:    dialect.Static("real"),
		schema.TypeDecimal:  dialect.Static("decimal"),
	},
}

func using(format string) func(dialect.Predicate) dialect.Predicate {
	return func(p dialect.Predicate) dialect.Predicate {
		return p.Using(format)
	}
}

func strftime(field string) func(dialect.Predicate) dialect.Predicate {
	return using("CAST(strftime('" + field + "', %s / 1000, 'unixepoch') AS integer) = %s")
}
