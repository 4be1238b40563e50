// Package param models the tagged-variant parameter values carried by a
// work package, and the sources (record list, Cartesian generator, tabular
// file) that expand a job's parameter block into one map per work package.
package param

import (
	"fmt"

	"github.com/basaltrun/slurmpipe/pkg/errors"
)

// Kind identifies which alternative of Value is populated.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindList
	KindMap
)

// Value is a tagged union over the handful of shapes a parameter can take
// once it has come out of YAML, JSON or CSV. Using an explicit tag instead
// of interface{} keeps the store and work-file encoders free of reflection.
type Value struct {
	kind Kind
	b    bool
	n    float64
	s    string
	list []Value
	m    map[string]Value
}

func Null() Value { return Value{kind: KindNull} }

func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

func Number(n float64) Value { return Value{kind: KindNumber, n: n} }

func String(s string) Value { return Value{kind: KindString, s: s} }

func List(vs []Value) Value { return Value{kind: KindList, list: vs} }

func Map(m map[string]Value) Value { return Value{kind: KindMap, m: m} }

func (v Value) Kind() Kind { return v.kind }

func (v Value) IsNull() bool { return v.kind == KindNull }

func (v Value) AsBool() (bool, bool) { return v.b, v.kind == KindBool }

func (v Value) AsNumber() (float64, bool) { return v.n, v.kind == KindNumber }

func (v Value) AsString() (string, bool) { return v.s, v.kind == KindString }

func (v Value) AsList() ([]Value, bool) { return v.list, v.kind == KindList }

func (v Value) AsMap() (map[string]Value, bool) { return v.m, v.kind == KindMap }

// FromAny converts a value decoded by encoding/json, gopkg.in/yaml.v3, or
// encoding/csv (always a string) into a Value. It is the single point where
// this package touches interface{}.
func FromAny(v any) (Value, error) {
	switch t := v.(type) {
	case nil:
		return Null(), nil
	case bool:
		return Bool(t), nil
	case string:
		return String(t), nil
	case int:
		return Number(float64(t)), nil
	case int64:
		return Number(float64(t)), nil
	case float64:
		return Number(t), nil
	case []any:
		vs := make([]Value, len(t))
		for i, item := range t {
			cv, err := FromAny(item)
			if err != nil {
				return Value{}, errors.Wrap(err)
			}
			vs[i] = cv
		}
		return List(vs), nil
	case map[string]any:
		m := make(map[string]Value, len(t))
		for k, item := range t {
			cv, err := FromAny(item)
			if err != nil {
				return Value{}, errors.Wrap(err)
			}
			m[k] = cv
		}
		return Map(m), nil
	// gopkg.in/yaml.v3 decodes mapping nodes into map[string]interface{}
	// only when the target is `any`; a plain interface{} target yields
	// map[string]interface{} as well, so this case covers both libraries.
	default:
		return Value{}, errors.New(fmt.Sprintf("param: unsupported value type %T", v))
	}
}

func (v Value) String() string {
	switch v.kind {
	case KindNull:
		return "null"
	case KindBool:
		return fmt.Sprintf("%t", v.b)
	case KindNumber:
		return fmt.Sprintf("%g", v.n)
	case KindString:
		return v.s
	case KindList:
		return fmt.Sprintf("%v", v.list)
	case KindMap:
		return fmt.Sprintf("%v", v.m)
	default:
		return "<invalid>"
	}
}
