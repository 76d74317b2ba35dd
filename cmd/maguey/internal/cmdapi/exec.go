// Copyright 2021-present The Atlas Authors. All rights reserved.
// This source code is licensed under the Apache 2.0 license found
// in the LICENSE file in the root directory of this source tree.

package cmdapi

import (
	"fmt"
	"os"

	"ariga.io/maguey/sql/dialect"
	"ariga.io/maguey/sql/migrate"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

type execFlags struct {
	url    string
	files  []string
	dryRun bool
}

func execCmd(g *GlobalFlags) *cobra.Command {
	var flags execFlags
	cmd := &cobra.Command{
		Use:   "exec",
		Short: "Execute SQL script files on a database.",
		Long: `'maguey exec' splits the given SQL files into statements and executes each
file in its own transaction. The delimiter of a file can be changed using the
"-- maguey:delimiter" directive on its first line.`,
		Example: `  maguey exec -u "postgres://localhost:5432/app?sslmode=disable" -f seed.sql
  maguey exec --env local -f triggers.sql --dry-run`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return execRun(cmd, g, &flags)
		},
	}
	addFlagURL(cmd.Flags(), &flags.url)
	addFlagFiles(cmd.Flags(), &flags.files, "select the SQL files to execute")
	addFlagDryRun(cmd.Flags(), &flags.dryRun)
	cobra.CheckErr(cmd.MarkFlagRequired(flagFile))
	return cmd
}

func execRun(cmd *cobra.Command, g *GlobalFlags, flags *execFlags) error {
	t, err := g.resolve(cmd, flags.url, nil)
	if err != nil {
		return err
	}
	scripts := make([]string, len(flags.files))
	for i, f := range flags.files {
		b, err := os.ReadFile(f)
		if err != nil {
			return err
		}
		stmts, err := migrate.Split(string(b))
		if err != nil {
			return fmt.Errorf("%s: %w", f, err)
		}
		if len(stmts) == 0 {
			return fmt.Errorf("%s: %w", f, errEmptyFile)
		}
		if flags.dryRun {
			for _, s := range stmts {
				cmd.Println(s.Text)
			}
		}
		scripts[i] = string(b)
	}
	if flags.dryRun {
		return nil
	}
	c, done, err := t.open(cmd.Context(), false)
	if err != nil {
		return err
	}
	defer done()
	e := migrate.New(c)
	for i, s := range scripts {
		if err := e.Script(s).Exec(cmd.Context()); err != nil {
			return fmt.Errorf("%s: %w", flags.files[i], err)
		}
	}
	cmd.Printf("Executed %d files\n", len(scripts))
	return nil
}

type queryFlags struct {
	url       string
	table     string
	field     string
	predicate string
	value     string
}

func queryCmd(g *GlobalFlags) *cobra.Command {
	var flags queryFlags
	cmd := &cobra.Command{
		Use:   "query",
		Short: "Print the rows of a table that match a predicate.",
		Long: `'maguey query' selects the rows of a table using a dialect independent
predicate, such as "exact", "istartsWith" or "year", and prints them as a table.`,
		Example: `  maguey query -u "sqlite://app.db" --table people --where first_name --predicate istartsWith --value wh`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			t, err := g.resolve(cmd, flags.url, nil)
			if err != nil {
				return err
			}
			c, done, err := t.open(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer done()
			res, err := migrate.New(c).Where(flags.table, flags.field, flags.predicate, flags.value).Rows(cmd.Context())
			if err != nil {
				return err
			}
			return printRows(cmd, res)
		},
	}
	addFlagURL(cmd.Flags(), &flags.url)
	cmd.Flags().StringVar(&flags.table, flagTable, "", "table to query")
	cmd.Flags().StringVar(&flags.field, flagWhere, "", "field of the predicate")
	cmd.Flags().StringVar(&flags.predicate, flagPredicate, dialect.Exact, "predicate name")
	cmd.Flags().StringVar(&flags.value, flagValue, "", "value of the predicate")
	cobra.CheckErr(cmd.MarkFlagRequired(flagTable))
	cobra.CheckErr(cmd.MarkFlagRequired(flagWhere))
	return cmd
}

func printRows(cmd *cobra.Command, res *dialect.Result) error {
	tbl := tablewriter.NewWriter(cmd.OutOrStdout())
	tbl.SetAutoFormatHeaders(false)
	tbl.SetAutoWrapText(false)
	tbl.SetHeader(res.Fields)
	for _, r := range res.Rows {
		row := make([]string, len(res.Fields))
		for i, f := range res.Fields {
			switch v := r[f].(type) {
			case nil:
				row[i] = "NULL"
			case []byte:
				row[i] = string(v)
			default:
				row[i] = fmt.Sprint(v)
			}
		}
		tbl.Append(row)
	}
	tbl.Render()
	return nil
}
