// Copyright 2021-present The Atlas Authors. All rights reserved.
// This source code is licensed under the Apache 2.0 license found
// in the LICENSE file in the root directory of this source tree.

package cmdapi

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"ariga.io/maguey/sql/schema"
	_ "ariga.io/maguey/sql/sqlite"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
)

func TestVars_String(t *testing.T) {
	var vs Vars
	require.Equal(t, "[]", vs.String())
	require.NoError(t, vs.Set("a=b"))
	require.Equal(t, "[a:b]", vs.String())
	require.NoError(t, vs.Set("b=c"))
	require.Equal(t, "[a:b, b:c]", vs.String())
	require.NoError(t, vs.Set("a=d"))
	require.Equal(t, "[a:[b, d], b:c]", vs.String(), "multiple values of the same key: --var url=<one> --var url=<two>")
	require.NoError(t, vs.Set("a=e,c=f"))
	require.Equal(t, "[a:[b, d, e], b:c, c:f]", vs.String())
	require.EqualError(t, vs.Set("a"), `variables must be format as key=value, got: "a"`)
}

func TestVersion(t *testing.T) {
	for _, tt := range []struct {
		version, want, url string
	}{
		{"", "- development", "https://github.com/ariga/maguey/releases/latest"},
		{"v0.1.2", "v0.1.2", "https://github.com/ariga/maguey/releases/tag/v0.1.2"},
		{"v0.1.2-abcdef-canary", "v0.1.2-abcdef-canary", "https://github.com/ariga/maguey/releases/latest"},
	} {
		v, u := parse(tt.version)
		require.Equal(t, tt.want, v)
		require.Equal(t, tt.url, u)
	}
	out, err := runCmd(NewRoot(), "version")
	require.NoError(t, err)
	require.Equal(t, "maguey version - development\nhttps://github.com/ariga/maguey/releases/latest\n", out)
}

func TestDialects(t *testing.T) {
	out, err := runCmd(NewRoot(), "dialects")
	require.NoError(t, err)
	require.Contains(t, out, "sqlite\n")
	require.Contains(t, out, "sqlite3\n")
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	l, err := newLogger(&buf, "info")
	require.NoError(t, err)
	l.Debug("hidden")
	l.Info("shown", "sql", "SELECT 1")
	require.NotContains(t, buf.String(), "hidden")
	require.Contains(t, buf.String(), `msg=shown sql="SELECT 1"`)

	_, err = newLogger(&buf, "loud")
	require.Error(t, err)
	require.Contains(t, err.Error(), `invalid log level "loud"`)
}

const changes = `
create_table "people" {
  column "name" {
    type     = "string"
    not_null = true
  }
}

alter_table "people" {
  column "age" {
    type = "integer"
  }
  index {
    columns = ["name"]
  }
}
`

func TestAlter_DryRun(t *testing.T) {
	f := writeFile(t, "changes.hcl", changes)
	out, err := runCmd(NewRoot(), "alter", "-u", "sqlite://"+filepath.Join(t.TempDir(), "app.db"), "-f", f, "--dry-run")
	require.NoError(t, err)
	require.Equal(t, `CREATE TABLE "people" ("id" integer PRIMARY KEY, "name" varchar(255) NOT NULL);
-- procedure for ALTER TABLE "people" ADD COLUMN "age" integer, ADD INDEX "people_name_idx" ("name")
`, out)

	out, err = runCmd(NewRoot(), "alter", "-u", "sqlite://app.db", "-f", f, "--dry-run", "--reverse")
	require.NoError(t, err)
	require.Equal(t, `-- procedure for ALTER TABLE "people" DROP COLUMN "age", DROP INDEX "people_name_idx"
DROP TABLE "people";
`, out)

	_, err = runCmd(NewRoot(), "alter", "-u", "unknown://app.db", "-f", f, "--dry-run")
	require.EqualError(t, err, `dialect: unknown dialect "unknown"`)
	_, err = runCmd(NewRoot(), "alter", "-f", f, "--dry-run")
	require.EqualError(t, err, "either --url or --env is required")
	_, err = runCmd(NewRoot(), "alter", "-u", "sqlite://app.db")
	require.EqualError(t, err, "no change files were given (--file)")
}

func TestAlter(t *testing.T) {
	u := "sqlite://" + filepath.Join(t.TempDir(), "app.db")
	f := writeFile(t, "changes.hcl", changes)
	out, err := runCmd(NewRoot(), "alter", "-u", u, "-f", f)
	require.NoError(t, err)
	require.Equal(t, "Applied 2 changes\n", out)

	seed := writeFile(t, "seed.sql", `
INSERT INTO people (name, age) VALUES ('ada', NULL);
-- Second person.
INSERT INTO people (name, age) VALUES ('bob', 42);
`)
	out, err = runCmd(NewRoot(), "exec", "-u", u, "-f", seed)
	require.NoError(t, err)
	require.Equal(t, "Executed 1 files\n", out)

	out, err = runCmd(NewRoot(), "query", "-u", u, "--table", "people", "--where", "name", "--predicate", "istartsWith", "--value", "A")
	require.NoError(t, err)
	require.Contains(t, out, "ada")
	require.Contains(t, out, "NULL")
	require.NotContains(t, out, "bob")

	_, err = runCmd(NewRoot(), "query", "-u", u, "--table", "people", "--where", "name", "--predicate", "sounds")
	require.Error(t, err)

	// A failing change rolls back the changes that preceded it.
	rename := writeFile(t, "rename.hcl", `
rename_table "people" {
  to = "persons"
}

create_table "persons" {
  column "nickname" {
    type = "text"
  }
}
`)
	_, err = runCmd(NewRoot(), "alter", "-u", u, "-f", rename)
	require.Error(t, err)
	require.Contains(t, err.Error(), `already exists`)
	out, err = runCmd(NewRoot(), "query", "-u", u, "--table", "people", "--where", "age", "--value", "42")
	require.NoError(t, err)
	require.Contains(t, out, "bob")

	out, err = runCmd(NewRoot(), "alter", "-u", u, "-f", f, "--reverse")
	require.NoError(t, err)
	require.Equal(t, "Applied 2 changes\n", out)
	_, err = runCmd(NewRoot(), "query", "-u", u, "--table", "people", "--where", "name")
	require.Error(t, err)
}

func TestAlter_Env(t *testing.T) {
	dir := t.TempDir()
	f := writeFile(t, "changes.hcl", changes+`
rename_table "people" {
  to = var.name
}
`)
	project := writeFile(t, "maguey.hcl", `
variable "name" {
  default = "persons"
}

env "local" {
  url       = "sqlite://${var.dir}/app.db"
  files     = ["`+f+`"]
  log_level = "debug"
}
`)
	out, err := runCmd(NewRoot(), "alter", "-c", project, "--env", "local", "--var", "dir="+dir, "--var", "name=humans")
	require.NoError(t, err)
	require.Contains(t, out, "Applied 3 changes\n")
	require.Contains(t, out, `level=DEBUG msg=exec`, "statements are logged at the env level")
	require.Contains(t, out, `ALTER TABLE \"people\" RENAME TO \"humans\"`)

	out, err = runCmd(NewRoot(), "query", "-c", project, "--env", "local", "--var", "dir="+dir, "--log-level", "error", "--table", "humans", "--where", "name")
	require.NoError(t, err)
	require.Contains(t, out, "id")
	require.Contains(t, out, "age")
	require.NotContains(t, out, "ada")

	_, err = runCmd(NewRoot(), "alter", "-c", project, "--env", "prod", "--var", "dir="+dir)
	require.EqualError(t, err, `env "prod" not defined in project file`)
}

func TestReverse(t *testing.T) {
	f := writeFile(t, "changes.hcl", changes)
	out, err := runCmd(NewRoot(), "reverse", "-f", f)
	require.NoError(t, err)
	specs, err := schema.ParseChanges([]byte(out), "reverse.hcl", nil)
	require.NoError(t, err)
	require.Len(t, specs, 2)
	c, err := specs[0].Change()
	require.NoError(t, err)
	require.Equal(t, &schema.AlterTable{
		Name:           "people",
		Dropped:        []string{"age"},
		DroppedIndexes: []*schema.Index{{Name: "people_name_idx"}},
	}, c)
	c, err = specs[1].Change()
	require.NoError(t, err)
	require.Equal(t, &schema.DropTable{Name: "people"}, c)

	drop := writeFile(t, "drop.hcl", `
drop_table "people" {}
`)
	_, err = runCmd(NewRoot(), "reverse", "-f", drop)
	require.EqualError(t, err, `reversing drop_table "people": reverse: drop table has no reverse`)
}

func TestExec_DryRun(t *testing.T) {
	f := writeFile(t, "triggers.sql", `-- maguey:delimiter //
CREATE TRIGGER t AFTER INSERT ON people BEGIN
  UPDATE people SET age = 0 WHERE age IS NULL;
END//
SELECT 1//
`)
	out, err := runCmd(NewRoot(), "exec", "-f", f, "--dry-run")
	require.NoError(t, err)
	require.Equal(t, "CREATE TRIGGER t AFTER INSERT ON people BEGIN\n  UPDATE people SET age = 0 WHERE age IS NULL;\nEND\nSELECT 1\n", out)

	empty := writeFile(t, "empty.sql", "-- nothing to see here\n")
	_, err = runCmd(NewRoot(), "exec", "-f", empty, "--dry-run")
	require.EqualError(t, err, empty+": file contains no statements")

	_, err = runCmd(NewRoot(), "exec", "--dry-run")
	require.Error(t, err, "file flag is required")
}

func runCmd(cmd *cobra.Command, args ...string) (string, error) {
	return runCmdContext(context.Background(), cmd, args...)
}

func runCmdContext(ctx context.Context, cmd *cobra.Command, args ...string) (string, error) {
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	// Cobra checks for the args to equal nil and if so uses os.Args[1:].
	// In tests, this leads to go tooling arguments being part of the command arguments.
	if args == nil {
		args = []string{}
	}
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(ctx)
	return out.String(), err
}

func writeFile(t *testing.T, name, content string) string {
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0644))
	return p
}
