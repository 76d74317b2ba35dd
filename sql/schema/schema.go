// Copyright 2021-present The Atlas Authors. All rights reserved.
// This source code is licensed under the Apache 2.0 license found
// in the LICENSE file in the root directory of this source tree.

package schema

import (
	"fmt"
	"strings"
)

// Abstract column types. Dialects translate them to their native types.
const (
	TypeSerial    = "serial"
	TypeSerial64  = "serial64"
	TypeInteger   = "integer"
	TypeInteger64 = "integer64"
	TypeFloat     = "float"
	TypeDecimal   = "decimal"
	TypeString    = "string"
	TypeText      = "text"
	TypeBinary    = "binary"
	TypeBool      = "bool"
	TypeDate      = "date"
	TypeTime      = "time"
	TypeDateTime  = "dateTime"
)

type (
	// A Column represents a column definition in a table change.
	Column struct {
		Name       string
		Type       string // Abstract type name.
		Options    TypeOptions
		PrimaryKey bool
		NotNull    bool
		Unique     bool
		Default    any
		HasDefault bool
		References *Reference
	}

	// TypeOptions holds the modifiers of an abstract type.
	TypeOptions struct {
		Length    int
		Precision int
		Scale     int
	}

	// A Reference describes the foreign key of a column.
	Reference struct {
		Table    string
		Column   string
		OnDelete Action
		OnUpdate Action
	}

	// An Index represents an index definition.
	Index struct {
		Name    string
		Columns []string
		Unique  bool
	}

	// Action is a referential action of a foreign key.
	Action string
)

// Referential actions.
const (
	NoAction   Action = "NO ACTION"
	Restrict   Action = "RESTRICT"
	Cascade    Action = "CASCADE"
	SetNull    Action = "SET NULL"
	SetDefault Action = "SET DEFAULT"
)

// ParseAction parses a referential action. The "nullify" alias is accepted
// for SET NULL, and case and underscores are ignored.
func ParseAction(s string) (Action, error) {
	switch strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(s), "_", " ")) {
	case "CASCADE":
		return Cascade, nil
	case "RESTRICT":
		return Restrict, nil
	case "NULLIFY", "SET NULL":
		return SetNull, nil
	case "SET DEFAULT":
		return SetDefault, nil
	case "NO ACTION":
		return NoAction, nil
	default:
		return "", fmt.Errorf("unknown foreign key action %q", s)
	}
}

// IndexName returns the generated name of an index on the given columns.
// i.e. people (first, last) => people_first_last_idx.
func IndexName(table string, columns ...string) string {
	return table + "_" + strings.Join(columns, "_") + "_idx"
}

// Clone returns a deep copy of the column.
func (c *Column) Clone() *Column {
	cc := *c
	if c.References != nil {
		r := *c.References
		cc.References = &r
	}
	return &cc
}

// Clone returns a deep copy of the index.
func (i *Index) Clone() *Index {
	return &Index{Name: i.Name, Columns: append([]string(nil), i.Columns...), Unique: i.Unique}
}
