// Copyright 2021-present The Atlas Authors. All rights reserved.
// This source code is licensed under the Apache 2.0 license found
// in the LICENSE file in the root directory of this source tree.

package sqlclient

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"ariga.io/maguey/sql/dialect"
)

// ErrTxDone is returned when beginning a transaction handle that was
// already committed or rolled back.
var ErrTxDone = errors.New("sql/sqlclient: transaction has already been committed or rolled back")

type txState uint8

const (
	txNotOpen txState = iota
	txOpen
	txCommitted
	txRolledBack
)

func (s txState) String() string {
	switch s {
	case txOpen:
		return "open"
	case txCommitted:
		return "committed"
	case txRolledBack:
		return "rolled back"
	default:
		return "not open"
	}
}

// A Tx is a transaction handle. It holds a single connection from the
// pool while open, and supports nesting by using savepoints. Calling Begin
// on an open Tx opens a nested transaction that is closed by the next
// Commit or Rollback.
type Tx struct {
	c     *Client
	mu    sync.Mutex
	conn  *conn
	state txState
	// Savepoint numbers of the open transactions, outermost first.
	stack []int
}

// conn is a connection acquired from the pool. Its savepoint counter
// lives as long as the connection is held.
type conn struct {
	*sql.Conn
	savepoints int
}

func (c *conn) next() int {
	c.savepoints++
	return c.savepoints
}

var _ dialect.ExecQuerier = (*Tx)(nil)

// Begin opens the transaction, or a nested one if it is already open.
func (t *Tx) Begin(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch t.state {
	case txCommitted, txRolledBack:
		return ErrTxDone
	case txNotOpen:
		c, err := t.c.DB.Conn(ctx)
		if err != nil {
			return fmt.Errorf("sql/sqlclient: acquire connection: %w", err)
		}
		t.conn = &conn{Conn: c}
	}
	depth, n := len(t.stack), t.conn.next()
	if err := t.c.exec(ctx, t.conn, t.c.Dialect.Phrasing.Begin(depth, n)); err != nil {
		if depth == 0 {
			t.release()
		}
		return err
	}
	t.stack = append(t.stack, n)
	t.state = txOpen
	return nil
}

// Commit commits the innermost open transaction. The connection is
// returned to the pool when the outermost transaction is committed.
func (t *Tx) Commit(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != txOpen {
		return ErrTxNotOpen
	}
	depth := len(t.stack) - 1
	if err := t.c.exec(ctx, t.conn, t.c.Dialect.Phrasing.Commit(depth, t.stack[depth])); err != nil {
		// The transaction stays open, and can be rolled back.
		return err
	}
	t.pop(txCommitted)
	return nil
}

// Rollback rolls back the innermost open transaction. The connection is
// returned to the pool when the outermost transaction is rolled back,
// regardless of the result.
func (t *Tx) Rollback(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != txOpen {
		return ErrTxNotOpen
	}
	var (
		depth = len(t.stack) - 1
		n     = t.stack[depth]
		p     = t.c.Dialect.Phrasing
	)
	err := t.c.exec(ctx, t.conn, p.Rollback(depth, n))
	// Savepoints remain on the transaction stack after rolling back to them.
	if err == nil && (depth > 0 || t.c.Dialect.SavepointTx) {
		err = t.c.exec(ctx, t.conn, p.Commit(depth, n))
	}
	t.pop(txRolledBack)
	return err
}

// pop closes the innermost transaction, and releases the connection
// if it was the outermost one.
func (t *Tx) pop(final txState) {
	t.stack = t.stack[:len(t.stack)-1]
	if len(t.stack) == 0 {
		t.state = final
		t.release()
	}
}

func (t *Tx) release() {
	if t.conn != nil {
		// Closing a *sql.Conn returns it to the pool.
		_ = t.conn.Close()
		t.conn = nil
	}
}

// Depth returns the number of open transactions on the handle.
func (t *Tx) Depth() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.stack)
}

// Open reports if the transaction is open.
func (t *Tx) Open() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state == txOpen
}

// Exec executes a statement in the transaction.
func (t *Tx) Exec(ctx context.Context, s dialect.Statement) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != txOpen {
		return ErrTxNotOpen
	}
	return t.c.exec(ctx, t.conn, s)
}

// Query executes a query in the transaction.
func (t *Tx) Query(ctx context.Context, s dialect.Statement) (*dialect.Result, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != txOpen {
		return nil, ErrTxNotOpen
	}
	return t.c.query(ctx, t.conn, s)
}

// Client returns the client of the transaction.
func (t *Tx) Client() *Client { return t.c }
