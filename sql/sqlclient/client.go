// Copyright 2021-present The Atlas Authors. All rights reserved.
// This source code is licensed under the Apache 2.0 license found
// in the LICENSE file in the root directory of this source tree.

// Package sqlclient implements the database adapter: it opens clients by
// URL, owns the connection pool and executes statements and transactions
// on behalf of the dialects.
package sqlclient

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"ariga.io/maguey/sql/dialect"
	"ariga.io/maguey/sql/internal/sqlx"
)

// Client executes statements of a specific dialect on a pool of database
// connections. Note, the Client is dialect specific and should be instantiated
// using a call to Open or New.
type Client struct {
	// Name used when creating the client.
	Name string

	// DB used for creating the client.
	DB *sql.DB

	// Dialect of the attached database.
	Dialect *dialect.Dialect

	// URL used for opening the client, if any.
	URL *url.URL

	log     *slog.Logger
	slow    time.Duration
	code    func(error) (string, bool)
	maxOpen int
}

type (
	// Option configures a Client.
	Option func(*Client)
)

// WithLogger logs the executed statements using the given logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		c.log = l
	}
}

// WithSlowThreshold sets the duration above which statements are logged as
// slow. Requires a logger.
func WithSlowThreshold(d time.Duration) Option {
	return func(c *Client) {
		c.slow = d
	}
}

// WithMaxOpenConns limits the number of open connections of the pool.
func WithMaxOpenConns(n int) Option {
	return func(c *Client) {
		c.maxOpen = n
	}
}

// WithErrorCode sets the function that extracts the dialect specific
// code from driver errors.
func WithErrorCode(f func(error) (string, bool)) Option {
	return func(c *Client) {
		c.code = f
	}
}

// New returns a client for the given dialect and database pool.
func New(d *dialect.Dialect, db *sql.DB, opts ...Option) *Client {
	c := &Client{Name: d.Name, DB: db, Dialect: d}
	for _, opt := range opts {
		opt(c)
	}
	if c.maxOpen > 0 {
		db.SetMaxOpenConns(c.maxOpen)
	}
	return c
}

// Close closes the underlying database pool.
func (c *Client) Close() error {
	return c.DB.Close()
}

// Exec executes a statement on a connection from the pool and
// returns the connection right after.
func (c *Client) Exec(ctx context.Context, s dialect.Statement) error {
	return c.exec(ctx, c.DB, s)
}

// Query executes a query on a connection from the pool and
// returns the connection right after.
func (c *Client) Query(ctx context.Context, s dialect.Statement) (*dialect.Result, error) {
	return c.query(ctx, c.DB, s)
}

// Tx returns a transaction handle that is not open yet. The handle acquires
// a dedicated connection on Begin, and releases it when the outermost
// transaction is committed or rolled back.
func (c *Client) Tx() *Tx {
	return &Tx{c: c}
}

// InTx runs fn in a transaction. If tx is open, fn runs in a nested
// transaction (a savepoint) on its connection. The transaction is
// rolled back in case fn fails, and the error of fn is returned.
func (c *Client) InTx(ctx context.Context, tx *Tx, fn func(context.Context, dialect.ExecQuerier) error) (err error) {
	if tx == nil {
		tx = c.Tx()
	}
	if err := tx.Begin(ctx); err != nil {
		return err
	}
	defer func() {
		if v := recover(); v != nil {
			_ = tx.Rollback(ctx)
			panic(v)
		}
	}()
	if err := fn(ctx, tx); err != nil {
		if rerr := tx.Rollback(ctx); rerr != nil {
			err = fmt.Errorf("%w: rolling back: %v", err, rerr)
		}
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		if rerr := tx.Rollback(ctx); rerr != nil {
			err = fmt.Errorf("%w: rolling back: %v", err, rerr)
		}
		return err
	}
	return nil
}

// ExecQuerier wraps the database/sql methods that are used by the client.
// Both *sql.DB and *sql.Conn implement it.
type ExecQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (c *Client) exec(ctx context.Context, conn ExecQuerier, s dialect.Statement) error {
	start := time.Now()
	_, err := conn.ExecContext(ctx, s.SQL, s.Args...)
	c.logStmt(ctx, "exec", s, start, err)
	if err != nil {
		return c.wrap(s, err)
	}
	return nil
}

func (c *Client) query(ctx context.Context, conn ExecQuerier, s dialect.Statement) (*dialect.Result, error) {
	start := time.Now()
	rows, err := conn.QueryContext(ctx, s.SQL, s.Args...)
	if err == nil {
		var res *dialect.Result
		if res, err = sqlx.ScanResult(rows); err == nil {
			c.logStmt(ctx, "query", s, start, nil)
			return res, nil
		}
	}
	c.logStmt(ctx, "query", s, start, err)
	return nil, c.wrap(s, err)
}

func (c *Client) logStmt(ctx context.Context, kind string, s dialect.Statement, start time.Time, err error) {
	if c.log == nil {
		return
	}
	d := time.Since(start)
	attrs := []any{"dialect", c.Name, "sql", s.SQL, "args", s.Args, "duration", d}
	switch {
	case err != nil:
		c.log.DebugContext(ctx, kind+" failed", append(attrs, "error", err)...)
	case c.slow > 0 && d > c.slow:
		c.log.WarnContext(ctx, "slow "+kind+" detected", attrs...)
	default:
		c.log.DebugContext(ctx, kind, attrs...)
	}
}

type (
	// Opener opens a client by the given URL.
	Opener interface {
		Open(ctx context.Context, u *url.URL, opts ...Option) (*Client, error)
	}

	// OpenerFunc allows using a function as an Opener.
	OpenerFunc func(context.Context, *url.URL, ...Option) (*Client, error)

	namedOpener struct {
		Opener
		name string
	}
)

// Open calls f(ctx, u, opts...).
func (f OpenerFunc) Open(ctx context.Context, u *url.URL, opts ...Option) (*Client, error) {
	return f(ctx, u, opts...)
}

var drivers sync.Map

// Open opens a client by its provided url string.
func Open(ctx context.Context, s string, opts ...Option) (*Client, error) {
	u, err := url.Parse(s)
	if err != nil {
		return nil, fmt.Errorf("sql/sqlclient: parse open url: %w", err)
	}
	v, ok := drivers.Load(u.Scheme)
	if !ok {
		return nil, fmt.Errorf("sql/sqlclient: no opener was register with name %q", u.Scheme)
	}
	c, err := v.(namedOpener).Open(ctx, u, opts...)
	if err != nil {
		return nil, err
	}
	if c.URL == nil {
		c.URL = u
	}
	return c, nil
}

type (
	registerOptions struct {
		flavours []string
	}
	// RegisterOption allows configuring the Opener
	// registration using functional options.
	RegisterOption func(*registerOptions)
)

// RegisterFlavours allows registering additional flavours
// (i.e. names), accepted by maguey to open clients.
func RegisterFlavours(flavours ...string) RegisterOption {
	return func(opts *registerOptions) {
		opts.flavours = flavours
	}
}

// DriverOpener is a helper Opener creator for sharing between all drivers.
// The dsn function converts the URL to the data source name of the database
// driver, and open attaches the dialect to the opened pool.
func DriverOpener(driver string, dsn func(*url.URL) (string, error), open func(context.Context, *sql.DB, ...Option) (*Client, error)) Opener {
	return OpenerFunc(func(ctx context.Context, u *url.URL, opts ...Option) (*Client, error) {
		s, err := dsn(u)
		if err != nil {
			return nil, err
		}
		db, err := sql.Open(driver, s)
		if err != nil {
			return nil, err
		}
		c, err := open(ctx, db, opts...)
		if err != nil {
			if cerr := db.Close(); cerr != nil {
				err = fmt.Errorf("%w: %v", err, cerr)
			}
			return nil, err
		}
		c.URL = u
		return c, nil
	})
}

// Register registers a client Opener (i.e. creator) with the given name.
func Register(name string, opener Opener, opts ...RegisterOption) {
	if opener == nil {
		panic("sql/sqlclient: Register opener is nil")
	}
	opt := &registerOptions{}
	for i := range opts {
		opts[i](opt)
	}
	for _, f := range append(opt.flavours, name) {
		if _, ok := drivers.Load(f); ok {
			panic("sql/sqlclient: Register called twice for " + f)
		}
		drivers.Store(f, namedOpener{
			name:   name,
			Opener: opener,
		})
	}
}
