package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// ValueKind enumerates the closed set of shapes an extraction answer can take.
type ValueKind string

const (
	ValueNull   ValueKind = "null"
	ValueString ValueKind = "string"
	ValueNumber ValueKind = "number"
	ValueBool   ValueKind = "bool"
	ValueObject ValueKind = "object"
	ValueArray  ValueKind = "array"
)

// FieldValue is a tagged union over the JSON-like values extraction produces.
// The zero value is null. Callers switch on Kind and use the matching accessor
// instead of type-asserting an untyped blob.
type FieldValue struct {
	kind ValueKind
	str  string
	num  float64
	bln  bool
	obj  map[string]FieldValue
	arr  []FieldValue
}

func NullValue() FieldValue { return FieldValue{kind: ValueNull} }

func StringValue(s string) FieldValue { return FieldValue{kind: ValueString, str: s} }

func NumberValue(n float64) FieldValue { return FieldValue{kind: ValueNumber, num: n} }

func BoolValue(b bool) FieldValue { return FieldValue{kind: ValueBool, bln: b} }

func ObjectValue(members map[string]FieldValue) FieldValue {
	if members == nil {
		members = map[string]FieldValue{}
	}
	return FieldValue{kind: ValueObject, obj: members}
}

func ArrayValue(items []FieldValue) FieldValue {
	if items == nil {
		items = []FieldValue{}
	}
	return FieldValue{kind: ValueArray, arr: items}
}

func (v FieldValue) Kind() ValueKind {
	if v.kind == "" {
		return ValueNull
	}
	return v.kind
}

func (v FieldValue) IsNull() bool { return v.Kind() == ValueNull }

func (v FieldValue) AsString() (string, bool) { return v.str, v.kind == ValueString }

func (v FieldValue) AsNumber() (float64, bool) { return v.num, v.kind == ValueNumber }

func (v FieldValue) AsBool() (bool, bool) { return v.bln, v.kind == ValueBool }

func (v FieldValue) AsObject() (map[string]FieldValue, bool) { return v.obj, v.kind == ValueObject }

func (v FieldValue) AsArray() ([]FieldValue, bool) { return v.arr, v.kind == ValueArray }

// Text renders scalars as plain strings and composites as compact JSON.
// Exports and report rows use it for display cells.
func (v FieldValue) Text() string {
	switch v.Kind() {
	case ValueNull:
		return ""
	case ValueString:
		return v.str
	case ValueNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case ValueBool:
		return strconv.FormatBool(v.bln)
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return string(raw)
	}
}

func (v FieldValue) MarshalJSON() ([]byte, error) {
	switch v.Kind() {
	case ValueNull:
		return []byte("null"), nil
	case ValueString:
		return json.Marshal(v.str)
	case ValueNumber:
		return json.Marshal(v.num)
	case ValueBool:
		return json.Marshal(v.bln)
	case ValueObject:
		return json.Marshal(v.obj)
	case ValueArray:
		return json.Marshal(v.arr)
	default:
		return nil, fmt.Errorf("unknown value kind %q", v.kind)
	}
}

func (v *FieldValue) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return fmt.Errorf("decode field value: %w", err)
	}

	parsed, err := ValueFromAny(raw)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// ValueFromAny converts a decoded JSON value into the tagged union.
func ValueFromAny(raw any) (FieldValue, error) {
	switch t := raw.(type) {
	case nil:
		return NullValue(), nil
	case string:
		return StringValue(t), nil
	case bool:
		return BoolValue(t), nil
	case json.Number:
		n, err := t.Float64()
		if err != nil {
			return FieldValue{}, fmt.Errorf("parse number %q: %w", t.String(), err)
		}
		return NumberValue(n), nil
	case float64:
		return NumberValue(t), nil
	case int:
		return NumberValue(float64(t)), nil
	case int64:
		return NumberValue(float64(t)), nil
	case map[string]any:
		members := make(map[string]FieldValue, len(t))
		for key, member := range t {
			parsed, err := ValueFromAny(member)
			if err != nil {
				return FieldValue{}, fmt.Errorf("object member %q: %w", key, err)
			}
			members[key] = parsed
		}
		return ObjectValue(members), nil
	case []any:
		items := make([]FieldValue, 0, len(t))
		for idx, item := range t {
			parsed, err := ValueFromAny(item)
			if err != nil {
				return FieldValue{}, fmt.Errorf("array item %d: %w", idx, err)
			}
			items = append(items, parsed)
		}
		return ArrayValue(items), nil
	default:
		return FieldValue{}, fmt.Errorf("unsupported value type %T", raw)
	}
}
