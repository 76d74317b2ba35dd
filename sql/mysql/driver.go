// Copyright 2021-present The Atlas Authors. All rights reserved.
// This source code is licensed under the Apache 2.0 license found
// in the LICENSE file in the root directory of this source tree.

// Package mysql implements the MySQL dialect.
package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"ariga.io/maguey/sql/dialect"
	"ariga.io/maguey/sql/internal/sqlx"
	"ariga.io/maguey/sql/schema"
	"ariga.io/maguey/sql/sqlclient"

	"github.com/go-sql-driver/mysql"
	"golang.org/x/mod/semver"
)

// DriverName holds the name of the database/sql driver.
const DriverName = "mysql"

// MinVersion is the minimum supported server version.
const MinVersion = "v5.6.0"

var (
	// Grammar of MySQL. Backslashes are escape characters in MySQL strings.
	Grammar = &dialect.Grammar{QuoteChar: '`', EscapeBackslash: true}

	// Translator of MySQL.
	Translator = dialect.NewTranslator(overrides)

	// Phrasing of MySQL.
	Phrasing = &sqlx.Phrasing{
		Grammar:            Grammar,
		Translator:         Translator,
		TableForeignKeys:   true,
		DropIndexOnTable:   true,
		RenameIndexOnTable: true,
		RenameColumn:       changeColumn,
	}

	// Dialect groups the MySQL components.
	Dialect = &dialect.Dialect{
		Name:       "mysql",
		Grammar:    Grammar,
		Translator: Translator,
		Phrasing:   Phrasing,
		Procedures: &procedures{p: Phrasing},
	}
)

func init() {
	dialect.Register(Dialect, "mariadb")
	sqlclient.Register(
		"mysql",
		sqlclient.DriverOpener(DriverName, DSN, Open),
		sqlclient.RegisterFlavours("mariadb"),
	)
	sqlclient.Register("cloudsql+mysql", cloudSQL)
}

// changeColumn renames a column using the CHANGE clause, that requires
// restating the column type. Renames without a type use RENAME COLUMN,
// that is supported since MySQL 8.
func changeColumn(b *sqlx.Builder, r *schema.RenameColumn) error {
	if r.Type == "" {
		b.P("RENAME COLUMN").Ident(r.From).P("TO").Ident(r.To)
		return nil
	}
	t, err := Translator.Type(r.Type, r.Options)
	if err != nil {
		return fmt.Errorf("rename column %q: %w", r.From, err)
	}
	b.P("CHANGE").Ident(r.From).Ident(r.To).P(t)
	return nil
}

// DSN converts a mysql:// URL to the data source name of the driver.
// The "socket" query parameter connects using a unix socket, and the
// rest of the parameters are passed to the driver as is.
func DSN(u *url.URL) (string, error) {
	cfg := mysqlConfig(u)
	q := u.Query()
	switch s := q.Get("socket"); {
	case s != "":
		cfg.Net, cfg.Addr = "unix", s
		q.Del("socket")
	case u.Host == "":
		return "", fmt.Errorf("mysql: missing host in url %q", u.Redacted())
	case u.Port() == "":
		cfg.Net, cfg.Addr = "tcp", net.JoinHostPort(u.Hostname(), "3306")
	default:
		cfg.Net, cfg.Addr = "tcp", u.Host
	}
	if err := params(cfg, q); err != nil {
		return "", err
	}
	return cfg.FormatDSN(), nil
}

// mysqlConfig returns the driver config with the user
// and database of the URL.
func mysqlConfig(u *url.URL) *mysql.Config {
	cfg := mysql.NewConfig()
	cfg.DBName = strings.TrimPrefix(u.Path, "/")
	if u.User != nil {
		cfg.User = u.User.Username()
		cfg.Passwd, _ = u.User.Password()
	}
	return cfg
}

// params sets the query parameters of the URL on the driver config.
func params(cfg *mysql.Config, q url.Values) error {
	for k := range q {
		v := q.Get(k)
		switch k {
		case "parseTime":
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("mysql: invalid parseTime value %q: %w", v, err)
			}
			cfg.ParseTime = b
		default:
			if cfg.Params == nil {
				cfg.Params = make(map[string]string)
			}
			cfg.Params[k] = v
		}
	}
	return nil
}

// Open attaches the MySQL dialect to an opened database pool,
// after checking the server version is supported.
func Open(ctx context.Context, db *sql.DB, opts ...sqlclient.Option) (*sqlclient.Client, error) {
	c := sqlclient.New(Dialect, db, append([]sqlclient.Option{sqlclient.WithErrorCode(ErrorCode)}, opts...)...)
	res, err := c.Query(ctx, dialect.Statement{SQL: "SHOW VARIABLES LIKE 'version'"})
	if err != nil {
		return nil, fmt.Errorf("mysql: scanning version: %w", err)
	}
	if len(res.Rows) != 1 {
		return nil, fmt.Errorf("mysql: unexpected number of rows: %d", len(res.Rows))
	}
	v, err := Version(res.Rows[0].String("Value"))
	if err != nil {
		return nil, err
	}
	if semver.Compare(v, MinVersion) == -1 {
		return nil, fmt.Errorf("mysql: unsupported mysql version: %s", v[1:])
	}
	return c, nil
}

var reVersion = regexp.MustCompile(`^(\d+)\.(\d+)(?:\.(\d+))?`)

// Version extracts the semantic version from the server version
// string. For example, "8.0.32-log" and "10.6.12-MariaDB" are
// converted to v8.0.32 and v10.6.12.
func Version(s string) (string, error) {
	m := reVersion.FindStringSubmatch(s)
	if m == nil {
		return "", fmt.Errorf("mysql: malformed version: %q", s)
	}
	if m[3] == "" {
		m[3] = "0"
	}
	return fmt.Sprintf("v%s.%s.%s", m[1], m[2], m[3]), nil
}

// ErrorCode returns the error number of MySQL errors.
func ErrorCode(err error) (string, bool) {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return strconv.Itoa(int(me.Number)), true
	}
	return "", false
}
