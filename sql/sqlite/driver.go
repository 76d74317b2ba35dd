// Copyright 2021-present The Atlas Authors. All rights reserved.
// This source code is licensed under the Apache 2.0 license found
// in the LICENSE file in the root directory of this source tree.

// Package sqlite implements the SQLite dialect.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"ariga.io/maguey/sql/dialect"
	"ariga.io/maguey/sql/internal/sqlx"
	"ariga.io/maguey/sql/sqlclient"

	"golang.org/x/mod/semver"
	"modernc.org/sqlite"
)

// DriverName holds the name of the database/sql driver.
const DriverName = "sqlite"

// MinVersion is the minimum supported library version. Foreign
// keys are enforced since SQLite 3.6.19.
const MinVersion = "v3.6.19"

var (
	// Grammar of SQLite.
	Grammar = &dialect.Grammar{QuoteChar: '"'}

	// Translator of SQLite.
	Translator = dialect.NewTranslator(overrides)

	// Phrasing of SQLite. All transactions, including the
	// outermost one, are expressed using savepoints.
	Phrasing = &sqlx.Phrasing{
		Grammar:    Grammar,
		Translator: Translator,
		Savepoints: true,
	}

	// Dialect groups the SQLite components.
	Dialect = &dialect.Dialect{
		Name:        "sqlite",
		Grammar:     Grammar,
		Translator:  Translator,
		Phrasing:    Phrasing,
		Procedures:  &procedures{p: Phrasing},
		SavepointTx: true,
	}
)

func init() {
	dialect.Register(Dialect, "sqlite3")
	sqlclient.Register(
		"sqlite",
		sqlclient.DriverOpener(DriverName, DSN, Open),
		sqlclient.RegisterFlavours("sqlite3"),
	)
}

// DSN converts a sqlite:// URL to the data source name of the driver. The
// host and path of the URL form the database file, and foreign keys are
// enabled unless another foreign_keys pragma was given. For example:
//
//	sqlite://app.db?cache=shared       => file:app.db?_pragma=foreign_keys(1)&cache=shared
//	sqlite3://test?mode=memory         => file:test?_pragma=foreign_keys(1)&mode=memory
func DSN(u *url.URL) (string, error) {
	name := u.Host + u.Path
	if name == "" {
		name = u.Opaque
	}
	if name == "" {
		return "", fmt.Errorf("sqlite: missing database file in url %q", u.Redacted())
	}
	q := u.Query()
	fk := false
	for _, p := range q["_pragma"] {
		fk = fk || strings.HasPrefix(p, "foreign_keys")
	}
	if !fk {
		q.Add("_pragma", "foreign_keys(1)")
	}
	// Pragma values hold parentheses that must not be escaped.
	qs, err := url.QueryUnescape(q.Encode())
	if err != nil {
		return "", fmt.Errorf("sqlite: encode url query: %w", err)
	}
	return "file:" + name + "?" + qs, nil
}

// Open attaches the SQLite dialect to an opened database pool,
// after checking the library version is supported.
func Open(ctx context.Context, db *sql.DB, opts ...sqlclient.Option) (*sqlclient.Client, error) {
	c := sqlclient.New(Dialect, db, append([]sqlclient.Option{sqlclient.WithErrorCode(ErrorCode)}, opts...)...)
	res, err := c.Query(ctx, dialect.Statement{SQL: "SELECT sqlite_version()"})
	if err != nil {
		return nil, fmt.Errorf("sqlite: scanning database version: %w", err)
	}
	if len(res.Rows) != 1 || len(res.Fields) != 1 {
		return nil, fmt.Errorf("sqlite: unexpected version result: %d rows", len(res.Rows))
	}
	v := "v" + res.Rows[0].String(res.Fields[0])
	if !semver.IsValid(v) {
		return nil, fmt.Errorf("sqlite: malformed version: %q", v[1:])
	}
	if semver.Compare(v, MinVersion) == -1 {
		return nil, fmt.Errorf("sqlite: unsupported sqlite version: %s", v[1:])
	}
	return c, nil
}

// ErrorCode returns the extended result code of SQLite errors.
func ErrorCode(err error) (string, bool) {
	var se *sqlite.Error
	if errors.As(err, &se) {
		return strconv.Itoa(se.Code()), true
	}
	return "", false
}
