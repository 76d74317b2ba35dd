// Copyright 2021-present The Atlas Authors. All rights reserved.
// This source code is licensed under the Apache 2.0 license found
// in the LICENSE file in the root directory of this source tree.

package sqlclient

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"ariga.io/maguey/sql/dialect"
)

var (
	// ErrTxNotOpen is returned when a transaction handle is used
	// before it was opened, or after it was closed.
	ErrTxNotOpen = errors.New("sql/sqlclient: cannot execute query, transaction not open")
)

// Error wraps the errors returned by the database driver. The Code holds the
// dialect specific error code (e.g. the SQLSTATE in PostgreSQL, or the error
// number in MySQL) if it can be extracted from the driver error.
type Error struct {
	Dialect string
	Code    string
	Message string
	SQL     string
	Err     error
}

func (e *Error) Error() string {
	// Some drivers already end their messages with the code.
	if e.Code != "" && !strings.HasSuffix(e.Message, "("+e.Code+")") {
		return fmt.Sprintf("%s: %s (%s)", e.Dialect, e.Message, e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Dialect, e.Message)
}

// Unwrap returns the driver error.
func (e *Error) Unwrap() error { return e.Err }

func (c *Client) wrap(s dialect.Statement, err error) error {
	var e *Error
	// Context errors are returned as is, and already wrapped errors are not wrapped twice.
	if errors.As(err, &e) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	e = &Error{Dialect: c.Name, Message: err.Error(), SQL: s.SQL, Err: err}
	if c.code != nil {
		e.Code, _ = c.code(err)
	}
	return e
}

// Constraint violation codes of the supported databases.
var constraintCodes = map[string]bool{
	// PostgreSQL integrity_constraint_violation class.
	"23000": true, "23001": true, "23502": true, "23503": true, "23505": true, "23514": true,
	// MySQL duplicate entry, foreign key and not null errors.
	"1062": true, "1216": true, "1217": true, "1451": true, "1452": true, "1048": true,
	// SQLite constraint codes (primary and extended).
	"19": true, "275": true, "531": true, "787": true, "1043": true, "1299": true, "1555": true, "1811": true, "2067": true, "2579": true,
}

// IsConstraintError reports if the error is a constraint violation
// (unique, foreign key, not null or check) of any supported database.
func IsConstraintError(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	if e.Code != "" {
		return constraintCodes[e.Code]
	}
	return strings.Contains(strings.ToLower(e.Message), "constraint")
}
