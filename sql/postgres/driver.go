// Copyright 2021-present The Atlas Authors. All rights reserved.
// This source code is licensed under the Apache 2.0 license found
// in the LICENSE file in the root directory of this source tree.

// Package postgres implements the PostgreSQL dialect.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"

	"ariga.io/maguey/sql/dialect"
	"ariga.io/maguey/sql/internal/sqlx"
	"ariga.io/maguey/sql/sqlclient"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver.
	"golang.org/x/mod/semver"
)

// DriverName holds the name of the database/sql driver.
const DriverName = "pgx"

// MinVersion is the minimum supported server version.
const MinVersion = "v9.6.0"

var (
	// Grammar of PostgreSQL. Values are bound using numbered placeholders.
	Grammar = &dialect.Grammar{QuoteChar: '"', Numbered: true}

	// Translator of PostgreSQL.
	Translator = dialect.NewTranslator(overrides)

	// Phrasing of PostgreSQL.
	Phrasing = &sqlx.Phrasing{Grammar: Grammar, Translator: Translator}

	// Dialect groups the PostgreSQL components.
	Dialect = &dialect.Dialect{
		Name:       "postgres",
		Grammar:    Grammar,
		Translator: Translator,
		Phrasing:   Phrasing,
		Procedures: &procedures{p: Phrasing},
	}
)

func init() {
	dialect.Register(Dialect, "postgresql", "pg")
	sqlclient.Register(
		"postgres",
		sqlclient.DriverOpener(DriverName, DSN, Open),
		sqlclient.RegisterFlavours("postgresql", "pg"),
	)
}

// DSN converts a postgres:// (or pg://) URL to the connection string
// of the pgx driver.
func DSN(u *url.URL) (string, error) {
	if u.Host == "" && u.Query().Get("host") == "" {
		return "", fmt.Errorf("postgres: missing host in url %q", u.Redacted())
	}
	dsn := *u
	dsn.Scheme = "postgres"
	return dsn.String(), nil
}

// Open attaches the PostgreSQL dialect to an opened database pool,
// after checking the server version is supported.
func Open(ctx context.Context, db *sql.DB, opts ...sqlclient.Option) (*sqlclient.Client, error) {
	c := sqlclient.New(Dialect, db, append([]sqlclient.Option{sqlclient.WithErrorCode(ErrorCode)}, opts...)...)
	res, err := c.Query(ctx, dialect.Statement{SQL: "SHOW server_version_num"})
	if err != nil {
		return nil, fmt.Errorf("postgres: scanning server version: %w", err)
	}
	if len(res.Rows) != 1 {
		return nil, fmt.Errorf("postgres: unexpected number of rows: %d", len(res.Rows))
	}
	n, err := res.Rows[0].Int("server_version_num")
	if err != nil {
		return nil, fmt.Errorf("postgres: malformed version: %w", err)
	}
	if v := Version(n); semver.Compare(v, MinVersion) == -1 {
		return nil, fmt.Errorf("postgres: unsupported postgres version: %s", v[1:])
	}
	return c, nil
}

// Version converts a server_version_num value (e.g. 90603 or 130004)
// to its semantic version (e.g. v9.6.3 or v13.0.4).
func Version(n int64) string {
	return fmt.Sprintf("v%d.%d.%d", n/10000, n/100%100, n%100)
}

// ErrorCode returns the SQLSTATE code of PostgreSQL errors.
func ErrorCode(err error) (string, bool) {
	var pe *pgconn.PgError
	if errors.As(err, &pe) {
		return pe.Code, true
	}
	return "", false
}
