package events

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strconv"
)

// ValueKind tags the variant held by a [Value].
type ValueKind uint8

const (
	ValueNull ValueKind = iota
	ValueString
	ValueNumber
	ValueBool
	ValueSequence
	ValueMap
)

func (k ValueKind) String() string {
	switch k {
	case ValueNull:
		return "null"
	case ValueString:
		return "string"
	case ValueNumber:
		return "number"
	case ValueBool:
		return "bool"
	case ValueSequence:
		return "sequence"
	case ValueMap:
		return "map"
	default:
		return "unknown"
	}
}

// Value is a JSON value that remembers its kind. Numbers keep their literal
// text so integers are not rounded through float64.
//
// The zero Value is null.
type Value struct {
	kind ValueKind
	str  string
	num  json.Number
	b    bool
	seq  []Value
	m    map[string]Value
}

// Params are the named arguments of a tool call.
type Params map[string]Value

func Null() Value { return Value{} }

func NewString(s string) Value { return Value{kind: ValueString, str: s} }

func NewNumber(n json.Number) Value { return Value{kind: ValueNumber, num: n} }

func NewInt(i int64) Value { return NewNumber(json.Number(strconv.FormatInt(i, 10))) }

func NewBool(b bool) Value { return Value{kind: ValueBool, b: b} }

func NewSequence(items ...Value) Value { return Value{kind: ValueSequence, seq: items} }

func NewMap(entries map[string]Value) Value { return Value{kind: ValueMap, m: entries} }

func NewFloat(f float64) Value {
	return NewNumber(json.Number(strconv.FormatFloat(f, 'g', -1, 64)))
}

func (v Value) Kind() ValueKind { return v.kind }
func (v Value) IsNull() bool    { return v.kind == ValueNull }

func (v Value) AsString() (string, bool) { return v.str, v.kind == ValueString }
func (v Value) AsBool() (bool, bool)     { return v.b, v.kind == ValueBool }

func (v Value) AsFloat() (float64, bool) {
	if v.kind != ValueNumber {
		return 0, false
	}
	f, err := v.num.Float64()
	return f, err == nil
}

// AsInt reports false for non-numbers and for numbers with a fractional part.
func (v Value) AsInt() (int64, bool) {
	if v.kind != ValueNumber {
		return 0, false
	}
	i, err := v.num.Int64()
	return i, err == nil
}

func (v Value) AsSequence() ([]Value, bool) { return v.seq, v.kind == ValueSequence }

func (v Value) AsMap() (map[string]Value, bool) { return v.m, v.kind == ValueMap }

// Len is the number of characters of a string, entries of a sequence or map,
// and zero otherwise.
func (v Value) Len() int {
	switch v.kind {
	case ValueString:
		return len([]rune(v.str))
	case ValueSequence:
		return len(v.seq)
	case ValueMap:
		return len(v.m)
	}
	return 0
}

// Interface converts v to the plain Go representation used by encoding/json
// with UseNumber: string, json.Number, bool, []any, map[string]any or nil.
func (v Value) Interface() any {
	switch v.kind {
	case ValueString:
		return v.str
	case ValueNumber:
		return v.num
	case ValueBool:
		return v.b
	case ValueSequence:
		items := make([]any, len(v.seq))
		for i, item := range v.seq {
			items[i] = item.Interface()
		}
		return items
	case ValueMap:
		entries := make(map[string]any, len(v.m))
		for key, entry := range v.m {
			entries[key] = entry.Interface()
		}
		return entries
	}
	return nil
}

// Equal reports deep equality; numbers compare by their literal text.
func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case ValueString:
		return v.str == other.str
	case ValueNumber:
		return v.num == other.num
	case ValueBool:
		return v.b == other.b
	case ValueSequence:
		return slices.EqualFunc(v.seq, other.seq, Value.Equal)
	case ValueMap:
		return maps.EqualFunc(v.m, other.m, Value.Equal)
	}
	return true
}

func (v Value) String() string {
	if v.kind == ValueString {
		return v.str
	}
	encoded, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("<%s>", v.kind)
	}
	return string(encoded)
}

func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Interface())
}

func (v *Value) UnmarshalJSON(data []byte) error {
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()
	var raw any
	if err := decoder.Decode(&raw); err != nil {
		return err
	}
	value, err := ValueOf(raw)
	if err != nil {
		return err
	}
	*v = value
	return nil
}

// ValueOf converts a decoded JSON tree (or plain Go scalars) into a Value.
func ValueOf(raw any) (Value, error) {
	switch typed := raw.(type) {
	case nil:
		return Null(), nil
	case Value:
		return typed, nil
	case string:
		return NewString(typed), nil
	case json.Number:
		return NewNumber(typed), nil
	case bool:
		return NewBool(typed), nil
	case int:
		return NewInt(int64(typed)), nil
	case int64:
		return NewInt(typed), nil
	case float64:
		return NewFloat(typed), nil
	case []any:
		items := make([]Value, len(typed))
		for i, item := range typed {
			value, err := ValueOf(item)
			if err != nil {
				return Value{}, fmt.Errorf("index %d: %w", i, err)
			}
			items[i] = value
		}
		return NewSequence(items...), nil
	case map[string]any:
		entries := make(map[string]Value, len(typed))
		for key, entry := range typed {
			value, err := ValueOf(entry)
			if err != nil {
				return Value{}, fmt.Errorf("key %q: %w", key, err)
			}
			entries[key] = value
		}
		return NewMap(entries), nil
	}
	return Value{}, fmt.Errorf("unsupported value type %T", raw)
}

// Get returns the parameter stored under key.
func (p Params) Get(key string) (Value, bool) {
	value, ok := p[key]
	return value, ok
}

// GetString returns the parameter as a string when it is one.
func (p Params) GetString(key string) (string, bool) {
	return p[key].AsString()
}

// Interface converts the parameters to a plain map, see [Value.Interface].
func (p Params) Interface() map[string]any {
	out := make(map[string]any, len(p))
	for key, value := range p {
		out[key] = value.Interface()
	}
	return out
}

func (p *Params) UnmarshalJSON(data []byte) error {
	var value Value
	if err := value.UnmarshalJSON(data); err != nil {
		return err
	}
	switch value.kind {
	case ValueNull:
		*p = nil
		return nil
	case ValueMap:
		*p = Params(value.m)
		return nil
	}
	return fmt.Errorf("parameters must be an object, got %s", value.kind)
}
