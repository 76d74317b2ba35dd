// Copyright 2021-present The Atlas Authors. All rights reserved.
// This source code is licensed under the Apache 2.0 license found
// in the LICENSE file in the root directory of this source tree.

package schema

import (
	"fmt"
	"io"
	"time"

	"github.com/hashicorp/hcl/v2/hclwrite"
	"github.com/zclconf/go-cty/cty"
)

// WriteHCL writes the changes as an HCL change file that
// can be read by ParseChanges.
func WriteHCL(w io.Writer, changes ...Change) error {
	f := hclwrite.NewEmptyFile()
	body := f.Body()
	for i, c := range changes {
		if i > 0 {
			body.AppendNewline()
		}
		switch c := c.(type) {
		case *CreateTable:
			b := body.AppendNewBlock(BlockCreateTable, []string{c.Name}).Body()
			if c.IfNotExists {
				b.SetAttributeValue("if_not_exists", cty.True)
			}
			// The primary key is written on its column.
			if !hasPrimaryKey(c.Columns) {
				b.SetAttributeValue("without_primary_key", cty.True)
			}
			for _, col := range c.Columns {
				if err := hclColumn(b, col); err != nil {
					return fmt.Errorf("schema: create table %q: %w", c.Name, err)
				}
			}
			for _, idx := range c.Indexes {
				hclIndex(b, idx)
			}
		case *AlterTable:
			b := body.AppendNewBlock(BlockAlterTable, []string{c.Name}).Body()
			if len(c.Dropped) > 0 {
				b.SetAttributeValue("drop", stringList(c.Dropped))
			}
			for _, col := range c.Added {
				if err := hclColumn(b, col); err != nil {
					return fmt.Errorf("schema: alter table %q: %w", c.Name, err)
				}
			}
			for _, r := range c.Renamed {
				rb := b.AppendNewBlock("rename", []string{r.From}).Body()
				rb.SetAttributeValue("to", cty.StringVal(r.To))
				if r.Type != "" {
					rb.SetAttributeValue("type", cty.StringVal(r.Type))
				}
			}
			for _, idx := range c.DroppedIndexes {
				b.AppendNewBlock("drop_index", nil).Body().SetAttributeValue("name", cty.StringVal(idx.Name))
			}
			for _, idx := range c.AddedIndexes {
				hclIndex(b, idx)
			}
			for _, r := range c.RenamedIndexes {
				b.AppendNewBlock("rename_index", []string{r.From}).Body().SetAttributeValue("to", cty.StringVal(r.To))
			}
		case *DropTable:
			b := body.AppendNewBlock(BlockDropTable, []string{c.Name}).Body()
			if c.IfExists {
				b.SetAttributeValue("if_exists", cty.True)
			}
		case *RenameTable:
			body.AppendNewBlock(BlockRenameTable, []string{c.From}).Body().SetAttributeValue("to", cty.StringVal(c.To))
		default:
			return fmt.Errorf("schema: unsupported change %T", c)
		}
	}
	_, err := f.WriteTo(w)
	return err
}

func hclColumn(body *hclwrite.Body, c *Column) error {
	b := body.AppendNewBlock("column", []string{c.Name}).Body()
	b.SetAttributeValue("type", cty.StringVal(c.Type))
	if c.PrimaryKey {
		b.SetAttributeValue("primary_key", cty.True)
	}
	if c.NotNull {
		b.SetAttributeValue("not_null", cty.True)
	}
	if c.Unique {
		b.SetAttributeValue("unique", cty.True)
	}
	for _, a := range []struct {
		name string
		v    int
	}{
		{"length", c.Options.Length},
		{"precision", c.Options.Precision},
		{"scale", c.Options.Scale},
	} {
		if a.v > 0 {
			b.SetAttributeValue(a.name, cty.NumberIntVal(int64(a.v)))
		}
	}
	if c.HasDefault {
		v, err := ctyValue(c.Default)
		if err != nil {
			return fmt.Errorf("column %q: %w", c.Name, err)
		}
		b.SetAttributeValue("default", v)
	}
	if r := c.References; r != nil {
		b.SetAttributeValue("references", cty.StringVal(r.Table+"."+r.Column))
		if r.OnDelete != "" {
			b.SetAttributeValue("on_delete", cty.StringVal(string(r.OnDelete)))
		}
		if r.OnUpdate != "" {
			b.SetAttributeValue("on_update", cty.StringVal(string(r.OnUpdate)))
		}
	}
	return nil
}

func hasPrimaryKey(columns []*Column) bool {
	for _, c := range columns {
		if c.PrimaryKey {
			return true
		}
	}
	return false
}

func hclIndex(body *hclwrite.Body, idx *Index) {
	b := body.AppendNewBlock("index", nil).Body()
	b.SetAttributeValue("name", cty.StringVal(idx.Name))
	b.SetAttributeValue("columns", stringList(idx.Columns))
	if idx.Unique {
		b.SetAttributeValue("unique", cty.True)
	}
}

func stringList(s []string) cty.Value {
	if len(s) == 0 {
		return cty.ListValEmpty(cty.String)
	}
	vs := make([]cty.Value, len(s))
	for i := range s {
		vs[i] = cty.StringVal(s[i])
	}
	return cty.ListVal(vs)
}

// ctyValue converts a default value to its cty value.
func ctyValue(v any) (cty.Value, error) {
	switch v := v.(type) {
	case nil:
		return cty.NullVal(cty.DynamicPseudoType), nil
	case string:
		return cty.StringVal(v), nil
	case bool:
		return cty.BoolVal(v), nil
	case int:
		return cty.NumberIntVal(int64(v)), nil
	case int32:
		return cty.NumberIntVal(int64(v)), nil
	case int64:
		return cty.NumberIntVal(v), nil
	case float64:
		return cty.NumberFloatVal(v), nil
	case time.Time:
		return cty.StringVal(v.Format(time.RFC3339)), nil
	default:
		return cty.NilVal, fmt.Errorf("unsupported default value %T", v)
	}
}
