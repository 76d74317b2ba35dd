// Copyright 2021-present The Atlas Authors. All rights reserved.
// This source code is licensed under the Apache 2.0 license found
// in the LICENSE file in the root directory of this source tree.

package mysql

import (
	"ariga.io/maguey/sql/dialect"
	"ariga.io/maguey/sql/schema"
)

// LIKE is case-insensitive in the default collations of MySQL. BINARY
// is used for the case-sensitive comparisons.
var overrides = dialect.Overrides{
	Predicates: map[string]func(dialect.Predicate) dialect.Predicate{
		dialect.IExact:      using("%s LIKE %s"),
		dialect.Contains:    using("%s LIKE BINARY %s"),
		dialect.IContains:   using("%s LIKE %s"),
		dialect.StartsWith:  using("%s LIKE BINARY %s"),
		dialect.IStartsWith: using("%s LIKE %s"),
		dialect.EndsWith:    using("%s LIKE BINARY %s"),
		dialect.IEndsWith:   using("%s LIKE %s"),
		dialect.Regex:       using("%s REGEXP BINARY %s"),
		dialect.IRegex:      using("%s REGEXP %s"),
		dialect.Weekday: func(p dialect.Predicate) dialect.Predicate {
			// WEEKDAY returns 0 for Monday.
			return p.Using("WEEKDAY(%s) = %s").Value(dialect.ParseWeekday, dialect.ShiftWeekday)
		},
	},
	Types: map[string]dialect.TypeFunc{
		schema.TypeSerial:   dialect.Static("integer AUTO_INCREMENT"),
		schema.TypeSerial64: dialect.Static("bigint AUTO_INCREMENT"),
		schema.TypeBinary:   dialect.Static("longblob"),
		schema.TypeDecimal:  dialect.Decimal("numeric", 64, 30),
	},
}

func using(format string) func(dialect.Predicate) dialect.Predicate {
	return func(p dialect.Predicate) dialect.Predicate {
		return p.Using(format)
	}
}
