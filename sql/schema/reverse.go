// Copyright 2021-present The Atlas Authors. All rights reserved.
// This source code is licensed under the Apache 2.0 license found
// in the LICENSE file in the root directory of this source tree.

package schema

import (
	"errors"
	"fmt"
)

var (
	// ErrDropNoReverse is returned when reversing a table removal.
	ErrDropNoReverse = errors.New("reverse: drop table has no reverse")
	// ErrDropNotReversible is returned when checking a table removal for reversibility.
	ErrDropNotReversible = errors.New("reversible: drop table is not reversible")
)

// Reverse returns the change that undoes c. Removals cannot be
// reversed since the removed definitions are unknown.
func Reverse(c Change) (Change, error) {
	switch c := c.(type) {
	case *CreateTable:
		return &DropTable{Name: c.Name}, nil
	case *RenameTable:
		return &RenameTable{From: c.To, To: c.From}, nil
	case *AlterTable:
		return ReverseAlter(c)
	case *DropTable:
		return nil, ErrDropNoReverse
	default:
		return nil, fmt.Errorf("reverse: unsupported change %T", c)
	}
}

// ReverseAlter returns the alteration that undoes a. Added columns and
// indexes are dropped and renames are inverted, in reverse order.
func ReverseAlter(a *AlterTable) (*AlterTable, error) {
	if len(a.Dropped) > 0 {
		return nil, fmt.Errorf("reverse: cannot reverse dropped column %q", a.Dropped[0])
	}
	if len(a.DroppedIndexes) > 0 {
		return nil, fmt.Errorf("reverse: cannot reverse dropped index %q", a.DroppedIndexes[0].Name)
	}
	r := &AlterTable{Name: a.Name}
	for _, c := range a.Added {
		r.Dropped = append(r.Dropped, c.Name)
	}
	for i := len(a.Renamed) - 1; i >= 0; i-- {
		rn := a.Renamed[i]
		r.Renamed = append(r.Renamed, &RenameColumn{From: rn.To, To: rn.From, Type: rn.Type, Options: rn.Options})
	}
	for _, idx := range a.AddedIndexes {
		r.DroppedIndexes = append(r.DroppedIndexes, idx.Clone())
	}
	for i := len(a.RenamedIndexes) - 1; i >= 0; i-- {
		rn := a.RenamedIndexes[i]
		r.RenamedIndexes = append(r.RenamedIndexes, &RenameIndex{From: rn.To, To: rn.From})
	}
	return r, nil
}

// CheckReversible returns an error if the change cannot be reversed.
func CheckReversible(c Change) error {
	switch c := c.(type) {
	case *DropTable:
		return ErrDropNotReversible
	case *AlterTable:
		if len(c.Dropped) > 0 {
			return fmt.Errorf("reversible: cannot drop column %q", c.Dropped[0])
		}
		if len(c.DroppedIndexes) > 0 {
			return fmt.Errorf("reversible: cannot drop index %q", c.DroppedIndexes[0].Name)
		}
	}
	return nil
}
