// Copyright 2021-present The Atlas Authors. All rights reserved.
// This source code is licensed under the Apache 2.0 license found
// in the LICENSE file in the root directory of this source tree.

package schema_test

import (
	"bytes"
	"os"
	"testing"

	"ariga.io/maguey/sql/schema"

	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"
)

func TestParseChanges(t *testing.T) {
	src, err := os.ReadFile("testdata/changes.hcl")
	require.NoError(t, err)
	specs, err := schema.ParseChanges(src, "changes.hcl", map[string]cty.Value{
		"table": cty.StringVal("persons"),
		"title": cty.StringVal("untitled"),
	})
	require.NoError(t, err)
	require.Len(t, specs, 5)

	changes := make([]schema.Change, len(specs))
	for i, s := range specs {
		changes[i], err = s.Change()
		require.NoError(t, err)
	}
	require.Equal(t, &schema.CreateTable{
		Name: "people",
		Columns: []*schema.Column{
			{Name: "id", Type: schema.TypeSerial, PrimaryKey: true, NotNull: true},
			{Name: "first_name", Type: schema.TypeString, Options: schema.TypeOptions{Length: 100}},
			{Name: "best_friend_id", Type: schema.TypeInteger, Default: int64(1), HasDefault: true, References: &schema.Reference{Table: "people", Column: "id", OnDelete: schema.SetNull}},
		},
		Indexes: []*schema.Index{{Name: "people_first_name_idx", Columns: []string{"first_name"}}},
	}, changes[0])
	require.Equal(t, &schema.AlterTable{
		Name:           "people",
		Added:          []*schema.Column{{Name: "balance", Type: schema.TypeDecimal, Options: schema.TypeOptions{Precision: 10, Scale: 2}, Default: 0.5, HasDefault: true}},
		Dropped:        []string{"first_name"},
		Renamed:        []*schema.RenameColumn{{From: "best_friend_id", To: "bff_id", Type: schema.TypeInteger}},
		DroppedIndexes: []*schema.Index{{Name: "people_first_name_idx", Columns: []string{"first_name"}}},
		AddedIndexes:   []*schema.Index{{Name: "balance_idx", Columns: []string{"balance"}, Unique: true}},
		RenamedIndexes: []*schema.RenameIndex{{From: "people_bff_idx", To: "bff_idx"}},
	}, changes[1])
	require.Equal(t, &schema.CreateTable{
		Name:        "articles",
		IfNotExists: true,
		Columns: []*schema.Column{
			{Name: "pid", Type: schema.TypeSerial, PrimaryKey: true},
			{Name: "title", Type: schema.TypeText, NotNull: true, Default: "untitled", HasDefault: true},
		},
	}, changes[2])
	require.Equal(t, &schema.RenameTable{From: "people", To: "persons"}, changes[3])
	require.Equal(t, &schema.DropTable{Name: "persons", IfExists: true}, changes[4])
}

func TestParseChanges_Errors(t *testing.T) {
	for _, tt := range []struct {
		name, src, err string
	}{
		{
			name: "unknown block",
			src:  `create_view "v" {}`,
			err:  `unknown block type "create_view"`,
		},
		{
			name: "missing label",
			src:  `drop_table {}`,
			err:  `block "drop_table" must have a single table label`,
		},
		{
			name: "alter options",
			src:  `alter_table "t" { primary_key = "pid" }`,
			err:  "primary key and existence options are not supported by alter_table blocks",
		},
		{
			name: "create drops",
			src:  `create_table "t" { drop = ["c"] }`,
			err:  `create_table "t" can only define columns and indexes`,
		},
		{
			name: "drop index",
			src:  "alter_table \"t\" {\n  drop = [\"c\"]\n  drop_index {}\n}\n",
			err:  "changes.hcl:3,3-13: schema: drop_index must set either name or columns",
		},
		{
			name: "attribute",
			src:  `table = "t"`,
			err:  `unexpected attribute "table" in change file`,
		},
		{
			name: "missing variable",
			src:  `rename_table "t" { to = var.name }`,
			err:  "Unsupported attribute",
		},
		{
			name: "default type",
			src: `
create_table "t" {
  column "c" {
    type    = "text"
    default = ["a"]
  }
}`,
			err: `default value of column "c"`,
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			_, err := schema.ParseChanges([]byte(tt.src), "changes.hcl", nil)
			require.Error(t, err)
			require.Contains(t, err.Error(), tt.err)
		})
	}
}

func TestChangeSpec_BuildErrors(t *testing.T) {
	specs, err := schema.ParseChanges([]byte(`
create_table "t" {
  column "c" {
    type       = "integer"
    references = "bad.foreign.key"
  }
}
`), "changes.hcl", nil)
	require.NoError(t, err)
	_, err = specs[0].Change()
	require.EqualError(t, err, `schema: invalid foreign key "bad.foreign.key" on column "c"`)
}

func TestWriteHCL(t *testing.T) {
	changes := []schema.Change{
		&schema.CreateTable{
			Name: "people",
			Columns: []*schema.Column{
				{Name: "id", Type: schema.TypeSerial, PrimaryKey: true},
				{Name: "name", Type: schema.TypeString, NotNull: true, Options: schema.TypeOptions{Length: 50}, Default: "anonymous", HasDefault: true},
				{Name: "bff_id", Type: schema.TypeInteger, References: &schema.Reference{Table: "people", Column: "id", OnDelete: schema.Cascade}},
			},
			Indexes: []*schema.Index{{Name: "people_name_idx", Columns: []string{"name"}, Unique: true}},
		},
		&schema.AlterTable{
			Name:           "people",
			Dropped:        []string{"bff_id"},
			Added:          []*schema.Column{{Name: "age", Type: schema.TypeInteger, Default: int64(18), HasDefault: true}},
			Renamed:        []*schema.RenameColumn{{From: "name", To: "full_name", Type: schema.TypeString}},
			DroppedIndexes: []*schema.Index{{Name: "people_name_idx"}},
			AddedIndexes:   []*schema.Index{{Name: "people_age_idx", Columns: []string{"age"}}},
			RenamedIndexes: []*schema.RenameIndex{{From: "a_idx", To: "b_idx"}},
		},
		&schema.RenameTable{From: "people", To: "persons"},
		&schema.DropTable{Name: "persons", IfExists: true},
	}
	var buf bytes.Buffer
	require.NoError(t, schema.WriteHCL(&buf, changes...))
	specs, err := schema.ParseChanges(buf.Bytes(), "changes.hcl", nil)
	require.NoError(t, err)
	require.Len(t, specs, len(changes))
	for i, s := range specs {
		c, err := s.Change()
		require.NoError(t, err)
		require.Equal(t, changes[i], c)
	}
}
