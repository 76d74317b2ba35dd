// Copyright 2021-present The Atlas Authors. All rights reserved.
// This source code is licensed under the Apache 2.0 license found
// in the LICENSE file in the root directory of this source tree.

package mysql_test

import (
	"context"
	"testing"

	"ariga.io/maguey/sql/internal/sqltest"
	"ariga.io/maguey/sql/migrate"
	"ariga.io/maguey/sql/mysql"
	"ariga.io/maguey/sql/schema"
	"ariga.io/maguey/sql/sqlclient"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
)

func newEntry(t *testing.T) (*migrate.Entry, sqltest.Mock) {
	db, m, err := sqlmock.New()
	require.NoError(t, err)
	return migrate.New(sqlclient.New(mysql.Dialect, db)), sqltest.Mock{Sqlmock: m}
}

func TestMigrate_CreateTable(t *testing.T) {
	e, m := newEntry(t)
	q := e.Schema().CreateTable("people", func(t *schema.TableBuilder) {
		t.Serial("id").PK().NotNull()
		t.String("first_name")
		t.Integer("best_friend_id").References("people.id")
		t.Index("first_name")
	})
	require.NoError(t, q.Err())
	const create = "CREATE TABLE `people` (`id` integer AUTO_INCREMENT PRIMARY KEY NOT NULL, `first_name` varchar(255), " +
		"`best_friend_id` integer, FOREIGN KEY (`best_friend_id`) REFERENCES `people` (`id`), INDEX `people_first_name_idx` (`first_name`))"
	require.Equal(t, create, q.SQL())
	m.Exec(create)
	require.NoError(t, q.Exec(context.Background()))
	require.NoError(t, m.ExpectationsWereMet())
}

func TestMigrate_AlterTable(t *testing.T) {
	for _, tt := range []struct {
		name string
		fn   func(*schema.TableBuilder)
		sql  string
	}{
		{
			name: "add foreign key column",
			fn: func(t *schema.TableBuilder) {
				t.Integer("worst_enemy_id").References("people.id")
			},
			sql: "ALTER TABLE `people` ADD COLUMN `worst_enemy_id` integer, ADD FOREIGN KEY (`worst_enemy_id`) REFERENCES `people` (`id`)",
		},
		{
			name: "rename column",
			fn: func(t *schema.TableBuilder) {
				t.Rename("first_name", "first", schema.TypeString)
			},
			sql: "ALTER TABLE `people` CHANGE `first_name` `first` varchar(255)",
		},
		{
			name: "rename column without type",
			fn: func(t *schema.TableBuilder) {
				t.Rename("first_name", "first", "")
			},
			sql: "ALTER TABLE `people` RENAME COLUMN `first_name` TO `first`",
		},
		{
			name: "drop index",
			fn: func(t *schema.TableBuilder) {
				t.DropIndex("first_name")
			},
			sql: "DROP INDEX `people_first_name_idx` ON `people`",
		},
		{
			name: "add and drop indexes",
			fn: func(t *schema.TableBuilder) {
				t.DropIndex("first_name")
				t.Index("first", "last").Unique()
			},
			sql: "ALTER TABLE `people` DROP INDEX `people_first_name_idx`, ADD UNIQUE INDEX `people_first_last_idx` (`first`, `last`)",
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			e, m := newEntry(t)
			q := e.Schema().AlterTable("people", tt.fn)
			require.NoError(t, q.Err())
			require.Equal(t, tt.sql, q.SQL())
			m.Exec(tt.sql)
			require.NoError(t, q.Exec(context.Background()))
			require.NoError(t, m.ExpectationsWereMet())
		})
	}
}

func TestMigrate_RenameIndex(t *testing.T) {
	e, m := newEntry(t)
	q := e.Schema().AlterTable("people", func(t *schema.TableBuilder) {
		t.String("last")
		t.Rename("first_name", "first", schema.TypeString)
		t.DropIndex("first_name")
		t.Index("first", "last")
		t.RenameIndex("people_first_last_idx", "name_idx")
	})
	require.NoError(t, q.Err())
	require.Equal(t, "-- procedure for ALTER TABLE `people` ADD COLUMN `last` varchar(255), CHANGE `first_name` `first` varchar(255), "+
		"DROP INDEX `people_first_name_idx`, ADD INDEX `people_first_last_idx` (`first`, `last`), "+
		"RENAME INDEX `people_first_last_idx` TO `name_idx`", q.SQL())
	m.Exec(
		"BEGIN",
		"ALTER TABLE `people` ADD COLUMN `last` varchar(255), CHANGE `first_name` `first` varchar(255), "+
			"DROP INDEX `people_first_name_idx`, ADD INDEX `people_first_last_idx` (`first`, `last`)",
	).Query("SHOW INDEX FROM `people` WHERE KEY_NAME = ?", `
+--------+------------+-----------------------+--------------+-------------+----------+------------+
| Table  | Non_unique | Key_name              | Seq_in_index | Column_name | Sub_part | Index_type |
+--------+------------+-----------------------+--------------+-------------+----------+------------+
| people | 1          | people_first_last_idx | 2            | last        | NULL     | BTREE      |
| people | 1          | people_first_last_idx | 1            | first       | NULL     | BTREE      |
+--------+------------+-----------------------+--------------+-------------+----------+------------+
`, "people_first_last_idx").Exec(
		"DROP INDEX `people_first_last_idx` ON `people`",
		"CREATE INDEX `name_idx` USING BTREE ON `people` (`first`, `last`)",
		"COMMIT",
	)
	require.NoError(t, q.Exec(context.Background()))
	require.NoError(t, m.ExpectationsWereMet())
}

func TestMigrate_RenameUniqueIndex(t *testing.T) {
	e, m := newEntry(t)
	q := e.Schema().AlterTable("people", func(t *schema.TableBuilder) {
		t.RenameIndex("people_email_idx", "email_idx")
	})
	require.Equal(t, "-- procedure for ALTER TABLE `people` RENAME INDEX `people_email_idx` TO `email_idx`", q.SQL())
	m.Exec("BEGIN").Query("SHOW INDEX FROM `people` WHERE KEY_NAME = ?", `
+------------+--------------+-------------+----------+------------+
| Non_unique | Seq_in_index | Column_name | Sub_part | Index_type |
+------------+--------------+-------------+----------+------------+
| 0          | 1            | email       | 10       | BTREE      |
+------------+--------------+-------------+----------+------------+
`, "people_email_idx").Exec(
		"DROP INDEX `people_email_idx` ON `people`",
		"CREATE UNIQUE INDEX `email_idx` USING BTREE ON `people` (`email`(10))",
		"COMMIT",
	)
	require.NoError(t, q.Exec(context.Background()))
	require.NoError(t, m.ExpectationsWereMet())
}

func TestMigrate_RenameMissingIndex(t *testing.T) {
	e, m := newEntry(t)
	q := e.Schema().AlterTable("people", func(t *schema.TableBuilder) {
		t.RenameIndex("missing_idx", "name_idx")
	})
	m.Exec("BEGIN").Query("SHOW INDEX FROM `people` WHERE KEY_NAME = ?", `
+------------+--------------+-------------+
| Non_unique | Seq_in_index | Column_name |
+------------+--------------+-------------+
+------------+--------------+-------------+
`, "missing_idx").Exec("ROLLBACK")
	err := q.Exec(context.Background())
	require.EqualError(t, err, `mysql: index "missing_idx" does not exist`)
	require.True(t, schema.IsNotExistError(err))
	require.NoError(t, m.ExpectationsWereMet())
}

func TestMigrate_RenameIndexBadDefinition(t *testing.T) {
	e, m := newEntry(t)
	q := e.Schema().AlterTable("people", func(t *schema.TableBuilder) {
		t.RenameIndex("people_email_idx", "email_idx")
	})
	// The index is not dropped if its definition cannot be read.
	m.Exec("BEGIN").Query("SHOW INDEX FROM `people` WHERE KEY_NAME = ?", `
+------------+--------------+-------------+
| Non_unique | Seq_in_index | Column_name |
+------------+--------------+-------------+
| 0          | first        | email       |
+------------+--------------+-------------+
`, "people_email_idx").Exec("ROLLBACK")
	err := q.Exec(context.Background())
	require.EqualError(t, err, `mysql: index "people_email_idx": dialect: field "seqInIndex" is not an integer: "first"`)
	require.NoError(t, m.ExpectationsWereMet())
}
