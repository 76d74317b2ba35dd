// Copyright 2021-present The Atlas Authors. All rights reserved.
// This source code is licensed under the Apache 2.0 license found
// in the LICENSE file in the root directory of this source tree.

package dialect

import (
	"context"
	"fmt"
	"strconv"
)

type (
	// ExecQuerier executes statements on a database connection. A procedure
	// receives an ExecQuerier that is bound to a single open transaction.
	ExecQuerier interface {
		// Exec executes a statement that returns no rows.
		Exec(context.Context, Statement) error
		// Query executes a statement and returns its rows.
		Query(context.Context, Statement) (*Result, error)
	}

	// Result holds the rows returned by a query.
	Result struct {
		Fields []string
		Rows   []Row
	}

	// Row maps the field names of a result to their values.
	Row map[string]any

	// A Step is a single unit of a procedure.
	Step func(context.Context, ExecQuerier) error

	// A Procedure is an ordered list of steps that runs inside a single
	// transaction. Later steps may depend on the results of earlier ones.
	Procedure struct {
		Steps []Step
	}
)

// Exec appends steps that execute the given statements.
func (p *Procedure) Exec(stmts ...Statement) *Procedure {
	for _, s := range stmts {
		p.Steps = append(p.Steps, ExecStep(s))
	}
	return p
}

// Then appends the given steps.
func (p *Procedure) Then(steps ...Step) *Procedure {
	p.Steps = append(p.Steps, steps...)
	return p
}

// Run runs the steps in order, and stops on the first error.
func (p *Procedure) Run(ctx context.Context, q ExecQuerier) error {
	for _, s := range p.Steps {
		if err := s(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

// ExecStep returns a step that executes the statement.
func ExecStep(s Statement) Step {
	return func(ctx context.Context, q ExecQuerier) error {
		return q.Exec(ctx, s)
	}
}

// String returns the textual value of the field. Byte slices
// are converted and NULL values are returned as empty strings.
func (r Row) String(k string) string {
	switch v := r[k].(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	default:
		return fmt.Sprint(v)
	}
}

// Int returns the integer value of the field.
func (r Row) Int(k string) (int64, error) {
	switch v := r[k].(type) {
	case nil:
		return 0, nil
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case bool:
		if v {
			return 1, nil
		}
		return 0, nil
	default:
		s := r.String(k)
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("dialect: field %q is not an integer: %q", k, s)
		}
		return n, nil
	}
}

// Null reports if the field is NULL or missing.
func (r Row) Null(k string) bool {
	return r[k] == nil
}
