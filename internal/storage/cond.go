package storage

import (
	"fmt"
	"reflect"
	"strings"
	"time"
)

// Cond is a node of a where-filter tree.
type Cond interface {
	isCond()
}

// Eq matches rows whose Field equals Value. A nil Value matches NULL.
type Eq struct {
	Field string
	Value any
}

// IsNull matches rows whose Field is NULL.
type IsNull struct {
	Field string
}

// In matches rows whose Field equals one of Values.
type In struct {
	Field  string
	Values []any
}

// Contains matches rows whose string Field contains Substr.
type Contains struct {
	Field  string
	Substr string
}

// And matches rows matching every child. An empty And matches everything.
type And []Cond

// Or matches rows matching at least one child.
type Or []Cond

// Not negates its child.
type Not struct {
	Cond Cond
}

func (Eq) isCond()       {}
func (IsNull) isCond()   {}
func (In) isCond()       {}
func (Contains) isCond() {}
func (And) isCond()      {}
func (Or) isCond()       {}
func (Not) isCond()      {}

// All joins the non-nil conditions with AND. It returns nil when none remain.
func All(conds ...Cond) Cond {
	out := make(And, 0, len(conds))
	for _, c := range conds {
		if c == nil {
			continue
		}
		out = append(out, c)
	}
	switch len(out) {
	case 0:
		return nil
	case 1:
		return out[0]
	}
	return out
}

// Match evaluates cond against r. A nil cond matches every record.
func Match(cond Cond, r Record) bool {
	switch c := cond.(type) {
	case nil:
		return true
	case Eq:
		if c.Value == nil {
			return isNil(r[c.Field])
		}
		return equal(r[c.Field], c.Value)
	case IsNull:
		return isNil(r[c.Field])
	case In:
		for _, v := range c.Values {
			if equal(r[c.Field], v) {
				return true
			}
		}
		return false
	case Contains:
		s, ok := deref(r[c.Field]).(string)
		return ok && strings.Contains(strings.ToLower(s), strings.ToLower(c.Substr))
	case And:
		for _, child := range c {
			if !Match(child, r) {
				return false
			}
		}
		return true
	case Or:
		for _, child := range c {
			if Match(child, r) {
				return true
			}
		}
		return false
	case Not:
		return !Match(c.Cond, r)
	default:
		panic(fmt.Sprintf("storage: unknown condition %T", cond))
	}
}

// Fields lists every column referenced by cond.
func Fields(cond Cond) []string {
	var out []string
	var walk func(Cond)
	walk = func(cond Cond) {
		switch c := cond.(type) {
		case Eq:
			out = append(out, c.Field)
		case IsNull:
			out = append(out, c.Field)
		case In:
			out = append(out, c.Field)
		case Contains:
			out = append(out, c.Field)
		case And:
			for _, child := range c {
				walk(child)
			}
		case Or:
			for _, child := range c {
				walk(child)
			}
		case Not:
			walk(c.Cond)
		}
	}
	walk(cond)
	return out
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Interface:
		return rv.IsNil()
	}
	return false
}

func deref(v any) any {
	if isNil(v) {
		return nil
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Ptr {
		return rv.Elem().Interface()
	}
	return v
}

func equal(a, b any) bool {
	a, b = deref(a), deref(b)
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			return fa == fb
		}
	}
	if ta, ok := a.(time.Time); ok {
		if tb, ok := b.(time.Time); ok {
			return ta.Equal(tb)
		}
	}
	return reflect.DeepEqual(a, b)
}

// Compare orders two column values; it is used for sorting and min/max.
func Compare(a, b any) int {
	a, b = deref(a), deref(b)
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			switch {
			case fa < fb:
				return -1
			case fa > fb:
				return 1
			}
			return 0
		}
	}
	if ta, ok := a.(time.Time); ok {
		if tb, ok := b.(time.Time); ok {
			return ta.Compare(tb)
		}
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

// ToFloat converts numeric column values for aggregation.
func ToFloat(v any) (float64, bool) {
	return toFloat(deref(v))
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}
