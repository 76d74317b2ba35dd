// Copyright 2021-present The Atlas Authors. All rights reserved.
// This source code is licensed under the Apache 2.0 license found
// in the LICENSE file in the root directory of this source tree.

package postgres

import (
	"ariga.io/maguey/sql/dialect"
)

// Comparisons on text are done on the ::text cast of the field,
// in order to support non-textual columns.
var overrides = dialect.Overrides{
	Predicates: map[string]func(dialect.Predicate) dialect.Predicate{
		dialect.IExact:      using("UPPER(%s::text) = UPPER(%s)"),
		dialect.Contains:    using("%s::text LIKE %s"),
		dialect.IContains:   using("UPPER(%s::text) LIKE UPPER(%s)"),
		dialect.StartsWith:  using("%s::text LIKE %s"),
		dialect.IStartsWith: using("UPPER(%s::text) LIKE UPPER(%s)"),
		dialect.EndsWith:    using("%s::text LIKE %s"),
		dialect.IEndsWith:   using("UPPER(%s::text) LIKE UPPER(%s)"),
		dialect.Year:        extract("year"),
		dialect.Month:       extract("month"),
		dialect.Day:         extract("day"),
		dialect.Weekday:     extract("dow"),
		dialect.Hour:        extract("hour"),
		dialect.Minute:      extract("minute"),
		dialect.Second:      extract("second"),
	},
}

func using(format string) func(dialect.Predicate) dialect.Predicate {
	return func(p dialect.Predicate) dialect.Predicate {
		return p.Using(format)
	}
}

func extract(field string) func(dialect.Predicate) dialect.Predicate {
	return using("EXTRACT('" + field + "' FROM %s) = %s")
}
