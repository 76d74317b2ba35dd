// Copyright 2021-present The Atlas Authors. All rights reserved.
// This source code is licensed under the Apache 2.0 license found
// in the LICENSE file in the root directory of this source tree.

package schema

import (
	"fmt"
	"math/big"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"
)

// Block types of HCL change files.
const (
	BlockCreateTable = "create_table"
	BlockAlterTable  = "alter_table"
	BlockDropTable   = "drop_table"
	BlockRenameTable = "rename_table"
)

// A ChangeSpec is a table change that was decoded from an HCL change
// file. For example:
//
//	create_table "people" {
//	  column "first_name" {
//	    type   = "string"
//	    length = 100
//	  }
//	  column "best_friend_id" {
//	    type       = "integer"
//	    references = "people.id"
//	    on_delete  = "nullify"
//	  }
//	  index {
//	    columns = ["first_name"]
//	  }
//	}
//
//	alter_table "people" {
//	  drop = ["first_name"]
//	  rename "last_name" {
//	    to   = "surname"
//	    type = "string"
//	  }
//	  drop_index {
//	    columns = ["first_name"]
//	  }
//	}
//
//	rename_table "people" {
//	  to = "persons"
//	}
type ChangeSpec struct {
	Block string
	Table string
	// To is the new name of renamed tables.
	To                string
	IfExists          bool
	IfNotExists       bool
	PrimaryKey        string
	WithoutPrimaryKey bool
	// Build describes the columns and indexes of created
	// and altered tables.
	Build func(*TableBuilder)
}

// Change builds the schema change described by the block.
func (s *ChangeSpec) Change() (Change, error) {
	switch s.Block {
	case BlockCreateTable:
		return BuildCreateTable(s.Table, s.Build, CreateOptions{
			IfNotExists:  s.IfNotExists,
			PrimaryKey:   s.PrimaryKey,
			NoPrimaryKey: s.WithoutPrimaryKey,
		})
	case BlockAlterTable:
		return BuildAlterTable(s.Table, s.Build)
	case BlockDropTable:
		return &DropTable{Name: s.Table, IfExists: s.IfExists}, nil
	case BlockRenameTable:
		return &RenameTable{From: s.Table, To: s.To}, nil
	default:
		return nil, fmt.Errorf("schema: unknown change block %q", s.Block)
	}
}

type (
	tableHCL struct {
		IfNotExists       bool            `hcl:"if_not_exists,optional"`
		PrimaryKey        string          `hcl:"primary_key,optional"`
		WithoutPrimaryKey bool            `hcl:"without_primary_key,optional"`
		Drop              []string        `hcl:"drop,optional"`
		Columns           []*columnHCL    `hcl:"column,block"`
		Renames           []*renameHCL    `hcl:"rename,block"`
		Indexes           []*indexHCL     `hcl:"index,block"`
		DropIndexes       []*dropIndexHCL `hcl:"drop_index,block"`
		RenameIndexes     []*renameIdxHCL `hcl:"rename_index,block"`
	}

	columnHCL struct {
		Name       string         `hcl:",label"`
		Type       string         `hcl:"type"`
		PrimaryKey bool           `hcl:"primary_key,optional"`
		NotNull    bool           `hcl:"not_null,optional"`
		Unique     bool           `hcl:"unique,optional"`
		Length     int            `hcl:"length,optional"`
		Precision  int            `hcl:"precision,optional"`
		Scale      int            `hcl:"scale,optional"`
		Default    hcl.Expression `hcl:"default,optional"`
		References string         `hcl:"references,optional"`
		OnDelete   string         `hcl:"on_delete,optional"`
		OnUpdate   string         `hcl:"on_update,optional"`
	}

	renameHCL struct {
		From string `hcl:",label"`
		To   string `hcl:"to"`
		Type string `hcl:"type,optional"`
	}

	indexHCL struct {
		Name    string   `hcl:"name,optional"`
		Columns []string `hcl:"columns"`
		Unique  bool     `hcl:"unique,optional"`
	}

	dropIndexHCL struct {
		Name    string   `hcl:"name,optional"`
		Columns []string `hcl:"columns,optional"`
	}

	renameIdxHCL struct {
		From string `hcl:",label"`
		To   string `hcl:"to"`
	}

	dropHCL struct {
		IfExists bool `hcl:"if_exists,optional"`
	}

	renameTableHCL struct {
		To string `hcl:"to"`
	}
)

// ParseChanges parses an HCL change file. The changes are returned in
// their order in the file. Input variables are accessible to the file
// expressions using the "var" namespace (e.g. var.table).
func ParseChanges(src []byte, filename string, vars map[string]cty.Value) ([]*ChangeSpec, error) {
	f, diags := hclparse.NewParser().ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, diags
	}
	body, ok := f.Body.(*hclsyntax.Body)
	if !ok {
		return nil, fmt.Errorf("schema: unexpected body type %T in file %q", f.Body, filename)
	}
	for name, attr := range body.Attributes {
		return nil, fmt.Errorf("%s: schema: unexpected attribute %q in change file", attr.SrcRange, name)
	}
	ctx := EvalContext(vars)
	specs := make([]*ChangeSpec, 0, len(body.Blocks))
	for _, b := range body.Blocks {
		s, err := decodeBlock(b, ctx)
		if err != nil {
			return nil, err
		}
		specs = append(specs, s)
	}
	return specs, nil
}

// EvalContext returns the evaluation context of HCL files
// with the given input variables.
func EvalContext(vars map[string]cty.Value) *hcl.EvalContext {
	v := cty.EmptyObjectVal
	if len(vars) > 0 {
		v = cty.ObjectVal(vars)
	}
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{"var": v},
	}
}

// blocksOf returns the nested blocks of the given type in source order.
func blocksOf(body *hclsyntax.Body, typ string) []*hclsyntax.Block {
	var bs []*hclsyntax.Block
	for _, b := range body.Blocks {
		if b.Type == typ {
			bs = append(bs, b)
		}
	}
	return bs
}

func decodeBlock(b *hclsyntax.Block, ctx *hcl.EvalContext) (*ChangeSpec, error) {
	if len(b.Labels) != 1 {
		return nil, fmt.Errorf("%s: schema: block %q must have a single table label", b.DefRange(), b.Type)
	}
	decode := func(v any) error {
		if diags := gohcl.DecodeBody(b.Body, ctx, v); diags.HasErrors() {
			return diags
		}
		return nil
	}
	s := &ChangeSpec{Block: b.Type, Table: b.Labels[0]}
	switch b.Type {
	case BlockCreateTable, BlockAlterTable:
		t := &tableHCL{}
		if err := decode(t); err != nil {
			return nil, err
		}
		if b.Type == BlockAlterTable && (t.IfNotExists || t.PrimaryKey != "" || t.WithoutPrimaryKey) {
			return nil, fmt.Errorf("%s: schema: primary key and existence options are not supported by %s blocks", b.DefRange(), b.Type)
		}
		if b.Type == BlockCreateTable && (len(t.Drop) > 0 || len(t.Renames) > 0 || len(t.DropIndexes) > 0 || len(t.RenameIndexes) > 0) {
			return nil, fmt.Errorf("%s: schema: %s %q can only define columns and indexes", b.DefRange(), b.Type, s.Table)
		}
		drops := blocksOf(b.Body, "drop_index")
		for i, d := range t.DropIndexes {
			if (d.Name == "") == (len(d.Columns) == 0) {
				return nil, fmt.Errorf("%s: schema: drop_index must set either name or columns", drops[i].DefRange())
			}
		}
		build, err := t.builder(ctx)
		if err != nil {
			return nil, err
		}
		s.IfNotExists, s.PrimaryKey, s.WithoutPrimaryKey, s.Build = t.IfNotExists, t.PrimaryKey, t.WithoutPrimaryKey, build
	case BlockDropTable:
		d := &dropHCL{}
		if err := decode(d); err != nil {
			return nil, err
		}
		s.IfExists = d.IfExists
	case BlockRenameTable:
		r := &renameTableHCL{}
		if err := decode(r); err != nil {
			return nil, err
		}
		s.To = r.To
	default:
		return nil, fmt.Errorf("%s: schema: unknown block type %q", b.DefRange(), b.Type)
	}
	return s, nil
}

// builder converts the decoded block to a TableBuilder callback.
func (t *tableHCL) builder(ctx *hcl.EvalContext) (func(*TableBuilder), error) {
	defaults := make([]any, len(t.Columns))
	for i, c := range t.Columns {
		v, diags := c.Default.Value(ctx)
		if diags.HasErrors() {
			return nil, diags
		}
		d, err := goValue(v)
		if err != nil {
			return nil, fmt.Errorf("schema: default value of column %q: %w", c.Name, err)
		}
		defaults[i] = d
	}
	return func(b *TableBuilder) {
		for _, name := range t.Drop {
			b.Drop(name)
		}
		for i, c := range t.Columns {
			cb := b.Column(c.Name, c.Type)
			if c.PrimaryKey {
				cb.PrimaryKey()
			}
			if c.NotNull {
				cb.NotNull()
			}
			if c.Unique {
				cb.Unique()
			}
			if c.Length > 0 {
				cb.Length(c.Length)
			}
			if c.Precision > 0 {
				cb.Precision(c.Precision)
			}
			if c.Scale > 0 {
				cb.Scale(c.Scale)
			}
			if defaults[i] != nil {
				cb.Default(defaults[i])
			}
			if c.References != "" {
				cb.References(c.References)
			}
			if c.OnDelete != "" {
				cb.OnDelete(c.OnDelete)
			}
			if c.OnUpdate != "" {
				cb.OnUpdate(c.OnUpdate)
			}
		}
		for _, r := range t.Renames {
			b.Rename(r.From, r.To, r.Type)
		}
		for _, d := range t.DropIndexes {
			if len(d.Columns) > 0 {
				b.DropIndex(d.Columns...)
			} else {
				b.DropIndexNamed(d.Name)
			}
		}
		for _, idx := range t.Indexes {
			ib := b.Index(idx.Columns...)
			if idx.Name != "" {
				ib.Name(idx.Name)
			}
			if idx.Unique {
				ib.Unique()
			}
		}
		for _, r := range t.RenameIndexes {
			b.RenameIndex(r.From, r.To)
		}
	}, nil
}

// goValue converts a primitive cty value to its Go value.
// Null values are returned as nil.
func goValue(v cty.Value) (any, error) {
	if v.IsNull() {
		return nil, nil
	}
	if !v.IsKnown() {
		return nil, fmt.Errorf("unknown value")
	}
	switch t := v.Type(); t {
	case cty.String:
		return v.AsString(), nil
	case cty.Bool:
		return v.True(), nil
	case cty.Number:
		bf := v.AsBigFloat()
		if bf.IsInt() {
			if i, acc := bf.Int64(); acc == big.Exact {
				return i, nil
			}
		}
		f, _ := bf.Float64()
		return f, nil
	default:
		return nil, fmt.Errorf("unsupported type %s", t.FriendlyName())
	}
}
