// Copyright 2021-present The Atlas Authors. All rights reserved.
// This source code is licensed under the Apache 2.0 license found
// in the LICENSE file in the root directory of this source tree.

package dialect

import (
	"fmt"
	"strconv"

	"ariga.io/maguey/sql/schema"

	"github.com/go-openapi/inflect"
)

type (
	// A Translator maps predicate names and abstract types to the
	// SQL of a specific dialect.
	Translator struct {
		predicates map[string]Predicate
		types      map[string]TypeFunc
	}

	// TypeFunc returns the native type for the given type options.
	TypeFunc func(schema.TypeOptions) string

	// Overrides holds the dialect specific changes of the base translator.
	// Predicate overrides receive the base predicate and return its replacement.
	Overrides struct {
		Predicates map[string]func(Predicate) Predicate
		Types      map[string]TypeFunc
	}
)

// Base predicates.
const (
	Exact       = "exact"
	IExact      = "iexact"
	Contains    = "contains"
	IContains   = "icontains"
	StartsWith  = "startsWith"
	IStartsWith = "istartsWith"
	EndsWith    = "endsWith"
	IEndsWith   = "iendsWith"
	Regex       = "regex"
	IRegex      = "iregex"
	GT          = "gt"
	GTE         = "gte"
	LT          = "lt"
	LTE         = "lte"
	Year        = "year"
	Month       = "month"
	Day         = "day"
	Weekday     = "weekday"
	Hour        = "hour"
	Minute      = "minute"
	Second      = "second"
)

// NewTranslator returns a translator of the base predicates and types
// with the given overrides applied.
func NewTranslator(o Overrides) *Translator {
	t := &Translator{
		predicates: basePredicates(),
		types:      baseTypes(),
	}
	for name, fn := range o.Predicates {
		name = normalize(name)
		p, ok := t.predicates[name]
		if !ok {
			p = Predicate{Name: name}
		}
		t.predicates[name] = fn(p)
	}
	for name, fn := range o.Types {
		t.types[normalize(name)] = fn
	}
	return t
}

// Predicate returns the predicate with the given name.
func (t *Translator) Predicate(name string) (Predicate, error) {
	p, ok := t.predicates[normalize(name)]
	if !ok {
		return Predicate{}, fmt.Errorf("dialect: unknown predicate %q", name)
	}
	return p, nil
}

// Where expresses a named predicate on the given field and value.
func (t *Translator) Where(g *Grammar, field, predicate string, v any) (Fragment, error) {
	p, err := t.Predicate(predicate)
	if err != nil {
		return Fragment{}, err
	}
	return p.Phrase(g, field, v)
}

// Type returns the native type of the given abstract type.
func (t *Translator) Type(name string, opts schema.TypeOptions) (string, error) {
	fn, ok := t.types[normalize(name)]
	if !ok {
		return "", fmt.Errorf("dialect: unknown type %q", name)
	}
	return fn(opts), nil
}

// normalize converts names like "date_time" and "DateTime" to "dateTime".
func normalize(name string) string {
	if name == "" {
		return name
	}
	return inflect.CamelizeDownFirst(name)
}

func basePredicates() map[string]Predicate {
	ps := []Predicate{
		{Name: Exact, Format: "%s = %s"},
		{Name: IExact, Format: "UPPER(%s) = UPPER(%s)"},
		{Name: Contains, Format: "%s LIKE %s", Transforms: []Transform{LikeContains}},
		{Name: IContains, Format: "UPPER(%s) LIKE UPPER(%s)", Transforms: []Transform{LikeContains}},
		{Name: StartsWith, Format: "%s LIKE %s", Transforms: []Transform{LikeStartsWith}},
		{Name: IStartsWith, Format: "UPPER(%s) LIKE UPPER(%s)", Transforms: []Transform{LikeStartsWith}},
		{Name: EndsWith, Format: "%s LIKE %s", Transforms: []Transform{LikeEndsWith}},
		{Name: IEndsWith, Format: "UPPER(%s) LIKE UPPER(%s)", Transforms: []Transform{LikeEndsWith}},
		{Name: Regex, Format: "%s ~ %s", Transforms: []Transform{RegexSource}},
		{Name: IRegex, Format: "%s ~* %s", Transforms: []Transform{RegexSource}},
		{Name: GT, Format: "%s > %s"},
		{Name: GTE, Format: "%s >= %s"},
		{Name: LT, Format: "%s < %s"},
		{Name: LTE, Format: "%s <= %s"},
		{Name: Year, Format: "YEAR(%s) = %s"},
		{Name: Month, Format: "MONTH(%s) = %s"},
		{Name: Day, Format: "DAY(%s) = %s"},
		{Name: Weekday, Format: "DAYOFWEEK(%s) = %s", Transforms: []Transform{ParseWeekday}},
		{Name: Hour, Format: "HOUR(%s) = %s"},
		{Name: Minute, Format: "MINUTE(%s) = %s"},
		{Name: Second, Format: "SECOND(%s) = %s"},
	}
	m := make(map[string]Predicate, len(ps))
	for _, p := range ps {
		m[p.Name] = p
	}
	return m
}

// Static returns a TypeFunc that ignores the type options.
func Static(t string) TypeFunc {
	return func(schema.TypeOptions) string { return t }
}

// Decimal returns a TypeFunc for fixed-point types, that uses
// the given default precision and scale when not set.
func Decimal(name string, precision, scale int) TypeFunc {
	return func(o schema.TypeOptions) string {
		p, s := o.Precision, o.Scale
		if p == 0 {
			p, s = precision, scale
		}
		switch {
		case p == 0:
			return name
		case s == 0:
			return name + "(" + strconv.Itoa(p) + ")"
		default:
			return name + "(" + strconv.Itoa(p) + ", " + strconv.Itoa(s) + ")"
		}
	}
}

func baseTypes() map[string]TypeFunc {
	return map[string]TypeFunc{
		schema.TypeSerial:    Static("serial"),
		schema.TypeSerial64:  Static("bigserial"),
		schema.TypeInteger:   Static("integer"),
		schema.TypeInteger64: Static("bigint"),
		schema.TypeFloat:     Static("double precision"),
		schema.TypeDecimal:   Decimal("numeric", 0, 0),
		schema.TypeString: func(o schema.TypeOptions) string {
			n := o.Length
			if n == 0 {
				n = 255
			}
			return "varchar(" + strconv.Itoa(n) + ")"
		},
		schema.TypeText:     Static("text"),
		schema.TypeBinary:   Static("bytea"),
		schema.TypeBool:     Static("boolean"),
		schema.TypeDate:     Static("date"),
		schema.TypeTime:     Static("time"),
		schema.TypeDateTime: Static("timestamp"),
	}
}
