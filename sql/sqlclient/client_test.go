// Copyright 2021-present The Atlas Authors. All rights reserved.
// This source code is licensed under the Apache 2.0 license found
// in the LICENSE file in the root directory of this source tree.

package sqlclient_test

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/url"
	"testing"

	"ariga.io/maguey/sql/dialect"
	"ariga.io/maguey/sql/internal/sqltest"
	"ariga.io/maguey/sql/internal/sqlx"
	"ariga.io/maguey/sql/sqlclient"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
)

func TestRegisterOpen(t *testing.T) {
	c := &sqlclient.Client{}
	sqlclient.Register(
		"mock",
		sqlclient.OpenerFunc(func(context.Context, *url.URL, ...sqlclient.Option) (*sqlclient.Client, error) {
			return c, nil
		}),
		sqlclient.RegisterFlavours("mocked"),
	)
	require.PanicsWithValue(
		t,
		"sql/sqlclient: Register opener is nil",
		func() { sqlclient.Register("mock", nil) },
	)
	require.PanicsWithValue(
		t,
		"sql/sqlclient: Register called twice for mock",
		func() {
			sqlclient.Register("mock", sqlclient.OpenerFunc(func(context.Context, *url.URL, ...sqlclient.Option) (*sqlclient.Client, error) {
				return c, nil
			}))
		},
	)
	c1, err := sqlclient.Open(context.Background(), "mock://:3306")
	require.NoError(t, err)
	require.True(t, c == c1)
	require.Equal(t, "mock", c1.URL.Scheme)
	c1, err = sqlclient.Open(context.Background(), "mocked://:3306")
	require.NoError(t, err)
	require.True(t, c == c1)
	_, err = sqlclient.Open(context.Background(), "unknown://:3306")
	require.EqualError(t, err, `sql/sqlclient: no opener was register with name "unknown"`)
}

func newDialect(savepoints bool) *dialect.Dialect {
	g := &dialect.Grammar{QuoteChar: '"'}
	tr := dialect.NewTranslator(dialect.Overrides{})
	return &dialect.Dialect{
		Name:        "test",
		Grammar:     g,
		Translator:  tr,
		Phrasing:    &sqlx.Phrasing{Grammar: g, Translator: tr, Savepoints: savepoints},
		SavepointTx: savepoints,
	}
}

func newClient(t *testing.T, savepoints bool, opts ...sqlclient.Option) (*sqlclient.Client, sqltest.Mock) {
	db, m, err := sqlmock.New()
	require.NoError(t, err)
	return sqlclient.New(newDialect(savepoints), db, opts...), sqltest.Mock{Sqlmock: m}
}

func TestClient_ExecQuery(t *testing.T) {
	var buf bytes.Buffer
	c, m := newClient(t, false, sqlclient.WithLogger(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))))
	m.Exec("CREATE TABLE t (a int)").
		Query("SELECT a FROM t WHERE a = ?", `
+---+
| a |
+---+
| 1 |
| 2 |
+---+
`, 1)
	ctx := context.Background()
	require.NoError(t, c.Exec(ctx, dialect.Statement{SQL: "CREATE TABLE t (a int)"}))
	res, err := c.Query(ctx, dialect.Statement{SQL: "SELECT a FROM t WHERE a = ?", Args: []any{1}})
	require.NoError(t, err)
	require.Equal(t, []string{"a"}, res.Fields)
	require.Len(t, res.Rows, 2)
	require.Equal(t, "2", res.Rows[1].String("a"))
	require.NoError(t, m.ExpectationsWereMet())
	require.Contains(t, buf.String(), "CREATE TABLE t (a int)")
	require.Contains(t, buf.String(), "dialect=test")
}

func TestClient_Error(t *testing.T) {
	c, m := newClient(t, false, sqlclient.WithErrorCode(func(err error) (string, bool) {
		return "23505", true
	}))
	m.Fail("INSERT INTO t VALUES (1)", errors.New("duplicate key value violates unique constraint"))
	err := c.Exec(context.Background(), dialect.Statement{SQL: "INSERT INTO t VALUES (1)"})
	require.Error(t, err)
	var e *sqlclient.Error
	require.True(t, errors.As(err, &e))
	require.Equal(t, "23505", e.Code)
	require.Equal(t, "test", e.Dialect)
	require.Equal(t, "INSERT INTO t VALUES (1)", e.SQL)
	require.Regexp(t, "duplicate key", err.Error())
	require.True(t, sqlclient.IsConstraintError(err))
	require.False(t, sqlclient.IsConstraintError(errors.New("constraint")))
}

func TestError_Error(t *testing.T) {
	for _, tt := range []struct {
		err  *sqlclient.Error
		want string
	}{
		{
			err:  &sqlclient.Error{Dialect: "postgres", Message: "duplicate key", Code: "23505"},
			want: "postgres: duplicate key (23505)",
		},
		{
			err:  &sqlclient.Error{Dialect: "sqlite", Message: "constraint failed: NOT NULL constraint failed: people.req (1299)", Code: "1299"},
			want: "sqlite: constraint failed: NOT NULL constraint failed: people.req (1299)",
		},
		{
			err:  &sqlclient.Error{Dialect: "mysql", Message: "bad connection"},
			want: "mysql: bad connection",
		},
	} {
		require.Equal(t, tt.want, tt.err.Error())
	}
}

func TestTx_NotOpen(t *testing.T) {
	c, m := newClient(t, false)
	ctx := context.Background()
	tx := c.Tx()
	require.ErrorIs(t, tx.Commit(ctx), sqlclient.ErrTxNotOpen)
	require.ErrorIs(t, tx.Rollback(ctx), sqlclient.ErrTxNotOpen)
	require.ErrorIs(t, tx.Exec(ctx, dialect.Statement{SQL: "SELECT 1"}), sqlclient.ErrTxNotOpen)
	_, err := tx.Query(ctx, dialect.Statement{SQL: "SELECT 1"})
	require.Regexp(t, "execute.*transaction.*not open", err.Error())

	m.Exec("BEGIN", "COMMIT")
	require.NoError(t, tx.Begin(ctx))
	require.True(t, tx.Open())
	require.NoError(t, tx.Commit(ctx))
	require.False(t, tx.Open())
	err = tx.Commit(ctx)
	require.Regexp(t, "execute.*transaction.*not open", err.Error())
	require.ErrorIs(t, tx.Begin(ctx), sqlclient.ErrTxDone)
	require.NoError(t, m.ExpectationsWereMet())
}

func TestTx_Nested(t *testing.T) {
	c, m := newClient(t, false)
	ctx := context.Background()
	m.Exec("BEGIN", "INSERT 1", "SAVEPOINT AZULJS_2", "INSERT 2", "ROLLBACK TO SAVEPOINT AZULJS_2",
		"RELEASE SAVEPOINT AZULJS_2", "SAVEPOINT AZULJS_3", "RELEASE SAVEPOINT AZULJS_3", "COMMIT")
	tx := c.Tx()
	require.NoError(t, tx.Begin(ctx))
	require.NoError(t, tx.Exec(ctx, dialect.Statement{SQL: "INSERT 1"}))
	require.NoError(t, tx.Begin(ctx))
	require.Equal(t, 2, tx.Depth())
	require.NoError(t, tx.Exec(ctx, dialect.Statement{SQL: "INSERT 2"}))
	require.NoError(t, tx.Rollback(ctx))
	require.True(t, tx.Open())
	require.NoError(t, tx.Begin(ctx))
	require.NoError(t, tx.Commit(ctx))
	require.NoError(t, tx.Commit(ctx))
	require.Equal(t, 0, tx.Depth())
	require.NoError(t, m.ExpectationsWereMet())
}

func TestTx_Savepoints(t *testing.T) {
	c, m := newClient(t, true)
	ctx := context.Background()
	m.Exec("SAVEPOINT AZULJS_1", "SAVEPOINT AZULJS_2", "RELEASE AZULJS_2", "ROLLBACK TO AZULJS_1", "RELEASE AZULJS_1")
	tx := c.Tx()
	require.NoError(t, tx.Begin(ctx))
	require.NoError(t, tx.Begin(ctx))
	require.NoError(t, tx.Commit(ctx))
	require.NoError(t, tx.Rollback(ctx))
	require.NoError(t, m.ExpectationsWereMet())

	// Savepoint numbering restarts on a newly acquired connection.
	m.Exec("SAVEPOINT AZULJS_1", "RELEASE AZULJS_1")
	tx = c.Tx()
	require.NoError(t, tx.Begin(ctx))
	require.NoError(t, tx.Commit(ctx))
	require.NoError(t, m.ExpectationsWereMet())
}

func TestClient_InTx(t *testing.T) {
	c, m := newClient(t, false)
	ctx := context.Background()
	m.Exec("BEGIN", "INSERT 1", "COMMIT")
	err := c.InTx(ctx, nil, func(ctx context.Context, q dialect.ExecQuerier) error {
		return q.Exec(ctx, dialect.Statement{SQL: "INSERT 1"})
	})
	require.NoError(t, err)
	require.NoError(t, m.ExpectationsWereMet())

	m.Exec("BEGIN").Fail("INSERT 1", errors.New("no such table: t")).Exec("ROLLBACK")
	err = c.InTx(ctx, nil, func(ctx context.Context, q dialect.ExecQuerier) error {
		return q.Exec(ctx, dialect.Statement{SQL: "INSERT 1"})
	})
	require.Regexp(t, "no such table", err.Error())
	require.NoError(t, m.ExpectationsWereMet())

	// Nested in an open transaction.
	m.Exec("BEGIN", "SAVEPOINT AZULJS_2", "INSERT 1", "RELEASE SAVEPOINT AZULJS_2", "COMMIT")
	tx := c.Tx()
	require.NoError(t, tx.Begin(ctx))
	err = c.InTx(ctx, tx, func(ctx context.Context, q dialect.ExecQuerier) error {
		return q.Exec(ctx, dialect.Statement{SQL: "INSERT 1"})
	})
	require.NoError(t, err)
	require.True(t, tx.Open())
	require.NoError(t, tx.Commit(ctx))
	require.NoError(t, m.ExpectationsWereMet())
}

func TestDriverOpener(t *testing.T) {
	ctx := context.Background()
	o := sqlclient.DriverOpener("sqlmock", func(*url.URL) (string, error) {
		return "", errors.New("missing host")
	}, nil)
	_, err := o.Open(ctx, &url.URL{Scheme: "test"})
	require.EqualError(t, err, "missing host")

	o = sqlclient.DriverOpener("sqlmock", func(*url.URL) (string, error) {
		return "opener", nil
	}, func(context.Context, *sql.DB, ...sqlclient.Option) (*sqlclient.Client, error) {
		return nil, errors.New("unsupported version")
	})
	_, err = o.Open(ctx, &url.URL{Scheme: "test"})
	require.EqualError(t, err, "unsupported version")

	o = sqlclient.DriverOpener("sqlmock", func(*url.URL) (string, error) {
		return "opener", nil
	}, func(_ context.Context, db *sql.DB, opts ...sqlclient.Option) (*sqlclient.Client, error) {
		return sqlclient.New(newDialect(false), db, opts...), nil
	})
	c, err := o.Open(ctx, &url.URL{Scheme: "test", Host: "localhost"})
	require.NoError(t, err)
	require.Equal(t, "localhost", c.URL.Host)
	require.Equal(t, "test", c.Name)
	require.NoError(t, c.Close())
}
