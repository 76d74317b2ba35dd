// Copyright 2021-present The Atlas Authors. All rights reserved.
// This source code is licensed under the Apache 2.0 license found
// in the LICENSE file in the root directory of this source tree.

package postgres

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"testing"

	"ariga.io/maguey/sql/dialect"
	"ariga.io/maguey/sql/internal/sqltest"
	"ariga.io/maguey/sql/sqlclient"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

func TestOpen(t *testing.T) {
	for _, tt := range []struct {
		version string
		wantErr string
	}{
		{version: "90600"},
		{version: "130004"},
		{version: "90519", wantErr: "postgres: unsupported postgres version: 9.5.19"},
		{version: "abc", wantErr: `postgres: malformed version: dialect: field "server_version_num" is not an integer: "abc"`},
	} {
		t.Run(tt.version, func(t *testing.T) {
			db, m, err := sqlmock.New()
			require.NoError(t, err)
			sqltest.Mock{Sqlmock: m}.Query("SHOW server_version_num", fmt.Sprintf(`
+--------------------+
| server_version_num |
+--------------------+
| %s                 |
+--------------------+
`, tt.version))
			c, err := Open(context.Background(), db)
			if tt.wantErr != "" {
				require.EqualError(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, "postgres", c.Name)
			require.True(t, c.Dialect == Dialect)
		})
	}
}

func TestVersion(t *testing.T) {
	require.Equal(t, "v9.6.3", Version(90603))
	require.Equal(t, "v13.0.4", Version(130004))
	require.Equal(t, "v10.0.0", Version(100000))
}

func TestDSN(t *testing.T) {
	for in, out := range map[string]string{
		"postgres://u:p@localhost:5432/db?sslmode=disable": "postgres://u:p@localhost:5432/db?sslmode=disable",
		"pg://localhost/db":           "postgres://localhost/db",
		"postgresql://u@localhost/db": "postgres://u@localhost/db",
		"pg:///db?host=/tmp":          "postgres:///db?host=/tmp",
	} {
		u, err := url.Parse(in)
		require.NoError(t, err)
		dsn, err := DSN(u)
		require.NoError(t, err)
		require.Equal(t, out, dsn)
	}
	_, err := DSN(&url.URL{Scheme: "pg", Path: "/db"})
	require.Error(t, err)
}

func TestErrorCode(t *testing.T) {
	db, m, err := sqlmock.New()
	require.NoError(t, err)
	c := sqlclient.New(Dialect, db, sqlclient.WithErrorCode(ErrorCode))
	m.ExpectExec(sqltest.Escape(`INSERT INTO "people" ("id") VALUES ($1)`)).
		WillReturnError(&pgconn.PgError{Code: "23505", Message: `duplicate key value violates unique constraint "people_pkey"`})
	err = c.Exec(context.Background(), dialect.Statement{SQL: `INSERT INTO "people" ("id") VALUES ($1)`, Args: []any{1}})
	require.True(t, sqlclient.IsConstraintError(err))
	var se *sqlclient.Error
	require.True(t, errors.As(err, &se))
	require.Equal(t, "23505", se.Code)
	require.Regexp(t, "violates unique constraint", err.Error())

	_, ok := ErrorCode(errors.New("plain"))
	require.False(t, ok)
}

func TestTranslator(t *testing.T) {
	for _, tt := range []struct {
		predicate string
		value     any
		sql       string
		args      []any
	}{
		{predicate: dialect.Exact, value: "Whitney", sql: `"name" = $1`, args: []any{"Whitney"}},
		{predicate: dialect.IExact, value: "whitney", sql: `UPPER("name"::text) = UPPER($1)`, args: []any{"whitney"}},
		{predicate: dialect.Contains, value: "it", sql: `"name"::text LIKE $1`, args: []any{"%it%"}},
		{predicate: dialect.IContains, value: "IT", sql: `UPPER("name"::text) LIKE UPPER($1)`, args: []any{"%IT%"}},
		{predicate: dialect.StartsWith, value: "Wh", sql: `"name"::text LIKE $1`, args: []any{"Wh%"}},
		{predicate: dialect.IStartsWith, value: "wh", sql: `UPPER("name"::text) LIKE UPPER($1)`, args: []any{"wh%"}},
		{predicate: dialect.EndsWith, value: "50%", sql: `"name"::text LIKE $1`, args: []any{`%50\%`}},
		{predicate: dialect.IEndsWith, value: "ey", sql: `UPPER("name"::text) LIKE UPPER($1)`, args: []any{"%ey"}},
		{predicate: dialect.Regex, value: "^Wh", sql: `"name" ~ $1`, args: []any{"^Wh"}},
		{predicate: dialect.IRegex, value: "^wh", sql: `"name" ~* $1`, args: []any{"^wh"}},
		{predicate: dialect.Year, value: 2014, sql: `EXTRACT('year' FROM "name") = $1`, args: []any{2014}},
		{predicate: dialect.Month, value: 2, sql: `EXTRACT('month' FROM "name") = $1`, args: []any{2}},
		{predicate: dialect.Day, value: 14, sql: `EXTRACT('day' FROM "name") = $1`, args: []any{14}},
		{predicate: dialect.Weekday, value: "wed", sql: `EXTRACT('dow' FROM "name") = $1`, args: []any{3}},
		{predicate: dialect.Hour, value: 9, sql: `EXTRACT('hour' FROM "name") = $1`, args: []any{9}},
		{predicate: dialect.Minute, value: 30, sql: `EXTRACT('minute' FROM "name") = $1`, args: []any{30}},
		{predicate: dialect.Second, value: 5, sql: `EXTRACT('second' FROM "name") = $1`, args: []any{5}},
	} {
		t.Run(tt.predicate, func(t *testing.T) {
			f, err := Translator.Where(Grammar, "name", tt.predicate, tt.value)
			require.NoError(t, err)
			require.Equal(t, tt.sql, f.SQL)
			require.Equal(t, tt.args, f.Args)
		})
	}
}

func TestTransactions(t *testing.T) {
	require.Equal(t, "BEGIN", Phrasing.Begin(0, 1).SQL)
	require.Equal(t, "SAVEPOINT AZULJS_2", Phrasing.Begin(1, 2).SQL)
	require.Equal(t, "RELEASE SAVEPOINT AZULJS_2", Phrasing.Commit(1, 2).SQL)
	require.Equal(t, "ROLLBACK TO SAVEPOINT AZULJS_2", Phrasing.Rollback(1, 2).SQL)
	require.Equal(t, "COMMIT", Phrasing.Commit(0, 1).SQL)
	require.Equal(t, "ROLLBACK", Phrasing.Rollback(0, 1).SQL)
}

func TestRegistered(t *testing.T) {
	for _, name := range []string{"postgres", "postgresql", "pg"} {
		d, err := dialect.Lookup(name)
		require.NoError(t, err)
		require.True(t, d == Dialect)
	}
}
