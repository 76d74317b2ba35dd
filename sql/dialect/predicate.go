// Copyright 2021-present The Atlas Authors. All rights reserved.
// This source code is licensed under the Apache 2.0 license found
// in the LICENSE file in the root directory of this source tree.

package dialect

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

type (
	// A Predicate describes how a named condition (e.g. "icontains") is
	// expressed in SQL. The Format holds two %s verbs, the first is replaced
	// by the field and the second by the value. Predicates are immutable.
	Predicate struct {
		Name       string
		Format     string
		Transforms []Transform
	}

	// Transform converts the value of a predicate before it is bound.
	Transform func(any) (any, error)
)

// Using returns a copy of the predicate with the given format.
func (p Predicate) Using(format string) Predicate {
	p.Format = format
	return p
}

// Value returns a copy of the predicate with the given value transforms.
// Transforms are applied in order.
func (p Predicate) Value(fns ...Transform) Predicate {
	p.Transforms = append([]Transform(nil), fns...)
	return p
}

// Transform runs the value transforms of the predicate on v.
func (p Predicate) Transform(v any) (any, error) {
	for _, fn := range p.Transforms {
		var err error
		if v, err = fn(v); err != nil {
			return nil, fmt.Errorf("predicate %q: %w", p.Name, err)
		}
	}
	return v, nil
}

// Phrase expresses the predicate on the given field and value.
func (p Predicate) Phrase(g *Grammar, field string, v any) (Fragment, error) {
	v, err := p.Transform(v)
	if err != nil {
		return Fragment{}, err
	}
	parts := strings.SplitN(p.Format, "%s", 3)
	if len(parts) != 3 {
		return Fragment{}, fmt.Errorf("predicate %q: malformed format %q", p.Name, p.Format)
	}
	return g.Join(
		Raw(parts[0]+g.Field(field)+parts[1]),
		g.Value(v),
		Raw(parts[2]),
	), nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func likeString(v any) (string, error) {
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("expect string value for LIKE pattern, got %T", v)
	}
	return likeEscaper.Replace(s), nil
}

// LikeContains escapes the value and wraps it for matching anywhere.
func LikeContains(v any) (any, error) {
	s, err := likeString(v)
	if err != nil {
		return nil, err
	}
	return "%" + s + "%", nil
}

// LikeStartsWith escapes the value for prefix matching.
func LikeStartsWith(v any) (any, error) {
	s, err := likeString(v)
	if err != nil {
		return nil, err
	}
	return s + "%", nil
}

// LikeEndsWith escapes the value for suffix matching.
func LikeEndsWith(v any) (any, error) {
	s, err := likeString(v)
	if err != nil {
		return nil, err
	}
	return "%" + s, nil
}

// RegexSource converts a *regexp.Regexp value to its pattern source.
// Strings are passed as is.
func RegexSource(v any) (any, error) {
	switch v := v.(type) {
	case *regexp.Regexp:
		return v.String(), nil
	case string:
		return v, nil
	default:
		return nil, fmt.Errorf("expect regexp value, got %T", v)
	}
}

var weekdays = []string{"sunday", "monday", "tuesday", "wednesday", "thursday", "friday", "saturday"}

// ParseWeekday converts the value to a day of the week, where Sunday is 0.
// Names are matched case-insensitively by their first three letters.
func ParseWeekday(v any) (any, error) {
	switch v := v.(type) {
	case time.Weekday:
		return int(v), nil
	case int:
		if v < 0 || v > 6 {
			return nil, fmt.Errorf("invalid weekday %d", v)
		}
		return v, nil
	case string:
		s := strings.ToLower(strings.TrimSpace(v))
		if n, err := strconv.Atoi(s); err == nil {
			return ParseWeekday(n)
		}
		if len(s) >= 3 {
			for i, d := range weekdays {
				if strings.HasPrefix(d, s) {
					return i, nil
				}
			}
		}
		return nil, fmt.Errorf("invalid weekday %q", v)
	default:
		return nil, fmt.Errorf("invalid weekday value %T", v)
	}
}

// ShiftWeekday shifts a Sunday based day of the week to a Monday based one.
func ShiftWeekday(v any) (any, error) {
	n, ok := v.(int)
	if !ok {
		return nil, fmt.Errorf("expect parsed weekday, got %T", v)
	}
	return (n + 6) % 7, nil
}
