package identity

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
)

// Kind tags the shape held by a [Value].
type Kind uint8

const (
	// KindNull is the zero Kind. The zero Value is a null.
	KindNull Kind = iota
	KindString
	KindNumber
	KindBool
	KindList
	KindObject
)

var kindNames = [...]string{
	KindNull:   "null",
	KindString: "string",
	KindNumber: "number",
	KindBool:   "bool",
	KindList:   "list",
	KindObject: "object",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// ParseKind maps a kind name ("string", "number", ...) back to its Kind.
func ParseKind(name string) (Kind, error) {
	for k, n := range kindNames {
		if n == name {
			return Kind(k), nil
		}
	}
	return KindNull, fmt.Errorf("unknown value kind %q", name)
}

// ErrUnsupportedType is returned by [FromAny] for Go values that have no
// attribute representation (channels, funcs, structs, ...).
var ErrUnsupportedType = errors.New("unsupported attribute value type")

// ErrInvalidNumber is returned by [Number] for text that is not a JSON number.
var ErrInvalidNumber = errors.New("invalid number literal")

// MaxDepth bounds how deeply lists and objects nest inside one attribute. A
// scalar attribute sits at depth 0 and each enclosing list or object adds one.
const MaxDepth = 32

// ErrTooDeep is returned for values nested beyond [MaxDepth]. Such values are
// rejected when an identity is built, so every identity can be encoded.
var ErrTooDeep = errors.New("attribute value nested too deeply")

// Value is an immutable attribute value. It holds a JSON-like scalar or a
// nested list/object of further Values.
//
// Numbers keep their decimal text, so a value read from a provider payload
// survives storage round trips without float rounding.
type Value struct {
	kind Kind
	text string
	b    bool
	list []Value
	obj  map[string]Value
}

// Null returns the null Value.
func Null() Value { return Value{} }

// String returns a string Value.
func String(s string) Value { return Value{kind: KindString, text: s} }

// Bool returns a boolean Value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Int returns a number Value holding i.
func Int(i int64) Value {
	return Value{kind: KindNumber, text: strconv.FormatInt(i, 10)}
}

// Float returns a number Value holding f. NaN and infinities have no JSON
// form and are rejected.
func Float(f float64) (Value, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return Value{}, fmt.Errorf("%w: %v", ErrInvalidNumber, f)
	}
	return Value{kind: KindNumber, text: strconv.FormatFloat(f, 'g', -1, 64)}, nil
}

// Number returns a number Value from its JSON literal text.
func Number(text string) (Value, error) {
	if !isNumberLiteral(text) {
		return Value{}, fmt.Errorf("%w: %q", ErrInvalidNumber, text)
	}
	return Value{kind: KindNumber, text: text}, nil
}

// List returns a list Value. The argument slice is copied.
func List(items ...Value) Value {
	out := make([]Value, len(items))
	copy(out, items)
	return Value{kind: KindList, list: out}
}

// Object returns an object Value. The argument map is copied.
func Object(fields map[string]Value) Value {
	out := make(map[string]Value, len(fields))
	for k, v := range fields {
		out[k] = v
	}
	return Value{kind: KindObject, obj: out}
}

// FromAny converts a decoded JSON-like Go value into a Value. Input nested
// beyond [MaxDepth] fails with [ErrTooDeep].
func FromAny(v any) (Value, error) {
	return fromAny(v, 0)
}

func fromAny(v any, depth int) (Value, error) {
	if depth > MaxDepth {
		return Value{}, ErrTooDeep
	}

	switch t := v.(type) {
	case nil:
		return Null(), nil
	case Value:
		if err := checkDepth(t, depth); err != nil {
			return Value{}, err
		}
		return t, nil
	case string:
		return String(t), nil
	case bool:
		return Bool(t), nil
	case json.Number:
		return Number(string(t))
	case float64:
		return Float(t)
	case float32:
		return Float(float64(t))
	case int:
		return Int(int64(t)), nil
	case int8:
		return Int(int64(t)), nil
	case int16:
		return Int(int64(t)), nil
	case int32:
		return Int(int64(t)), nil
	case int64:
		return Int(t), nil
	case uint:
		return Value{kind: KindNumber, text: strconv.FormatUint(uint64(t), 10)}, nil
	case uint8:
		return Int(int64(t)), nil
	case uint16:
		return Int(int64(t)), nil
	case uint32:
		return Int(int64(t)), nil
	case uint64:
		return Value{kind: KindNumber, text: strconv.FormatUint(t, 10)}, nil
	case []any:
		items := make([]Value, len(t))
		for i, item := range t {
			iv, err := fromAny(item, depth+1)
			if err != nil {
				return Value{}, fmt.Errorf("[%d]: %w", i, err)
			}
			items[i] = iv
		}
		return Value{kind: KindList, list: items}, nil
	case []string:
		if len(t) > 0 && depth == MaxDepth {
			return Value{}, ErrTooDeep
		}
		items := make([]Value, len(t))
		for i, item := range t {
			items[i] = String(item)
		}
		return Value{kind: KindList, list: items}, nil
	case map[string]any:
		fields := make(map[string]Value, len(t))
		for k, item := range t {
			iv, err := fromAny(item, depth+1)
			if err != nil {
				return Value{}, fmt.Errorf("%s: %w", k, err)
			}
			fields[k] = iv
		}
		return Value{kind: KindObject, obj: fields}, nil
	default:
		return Value{}, fmt.Errorf("%w: %T", ErrUnsupportedType, v)
	}
}

func checkDepth(v Value, depth int) error {
	if depth > MaxDepth {
		return ErrTooDeep
	}
	switch v.kind {
	case KindList:
		for _, item := range v.list {
			if err := checkDepth(item, depth+1); err != nil {
				return err
			}
		}
	case KindObject:
		for _, item := range v.obj {
			if err := checkDepth(item, depth+1); err != nil {
				return err
			}
		}
	}
	return nil
}

// Kind reports the shape held by v.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is the null Value.
func (v Value) IsNull() bool { return v.kind == KindNull }

// AsString returns the string held by v.
func (v Value) AsString() (string, bool) {
	if v.kind != KindString {
		return "", false
	}
	return v.text, true
}

// AsBool returns the boolean held by v.
func (v Value) AsBool() (bool, bool) {
	if v.kind != KindBool {
		return false, false
	}
	return v.b, true
}

// NumberText returns the JSON literal of a number Value.
func (v Value) NumberText() (string, bool) {
	if v.kind != KindNumber {
		return "", false
	}
	return v.text, true
}

// AsInt64 returns the number held by v when it is an integer that fits int64.
func (v Value) AsInt64() (int64, bool) {
	if v.kind != KindNumber {
		return 0, false
	}
	i, err := strconv.ParseInt(v.text, 10, 64)
	if err != nil {
		return 0, false
	}
	return i, true
}

// AsFloat64 returns the number held by v as a float64.
func (v Value) AsFloat64() (float64, bool) {
	if v.kind != KindNumber {
		return 0, false
	}
	f, err := strconv.ParseFloat(v.text, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// AsList returns a copy of the items of a list Value.
func (v Value) AsList() ([]Value, bool) {
	if v.kind != KindList {
		return nil, false
	}
	out := make([]Value, len(v.list))
	copy(out, v.list)
	return out, true
}

// AsObject returns a copy of the fields of an object Value.
func (v Value) AsObject() (map[string]Value, bool) {
	if v.kind != KindObject {
		return nil, false
	}
	out := make(map[string]Value, len(v.obj))
	for k, f := range v.obj {
		out[k] = f
	}
	return out, true
}

// Field looks up a field of an object Value. It reports false for absent
// fields and for non-object values.
func (v Value) Field(name string) (Value, bool) {
	if v.kind != KindObject {
		return Value{}, false
	}
	f, ok := v.obj[name]
	return f, ok
}

// Len returns the number of items or fields of a list or object Value, and 0
// for scalars.
func (v Value) Len() int {
	switch v.kind {
	case KindList:
		return len(v.list)
	case KindObject:
		return len(v.obj)
	default:
		return 0
	}
}

// Interface converts v into plain Go values: nil, string, bool, json.Number,
// []any or map[string]any. The result shares nothing with v.
func (v Value) Interface() any {
	switch v.kind {
	case KindString:
		return v.text
	case KindNumber:
		return json.Number(v.text)
	case KindBool:
		return v.b
	case KindList:
		out := make([]any, len(v.list))
		for i, item := range v.list {
			out[i] = item.Interface()
		}
		return out
	case KindObject:
		out := make(map[string]any, len(v.obj))
		for k, f := range v.obj {
			out[k] = f.Interface()
		}
		return out
	default:
		return nil
	}
}

// Equal reports whether v and o hold the same kind and content. Numbers are
// compared by literal text.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindString, KindNumber:
		return v.text == o.text
	case KindBool:
		return v.b == o.b
	case KindList:
		if len(v.list) != len(o.list) {
			return false
		}
		for i := range v.list {
			if !v.list[i].Equal(o.list[i]) {
				return false
			}
		}
		return true
	case KindObject:
		if len(v.obj) != len(o.obj) {
			return false
		}
		for k, f := range v.obj {
			of, ok := o.obj[k]
			if !ok || !f.Equal(of) {
				return false
			}
		}
		return true
	}
	return false
}

// String renders strings verbatim and every other kind as JSON text.
func (v Value) String() string {
	if v.kind == KindString {
		return v.text
	}
	data, err := v.MarshalJSON()
	if err != nil {
		return ""
	}
	return string(data)
}

// MarshalJSON implements json.Marshaler.
func (v Value) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := v.appendJSON(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (v Value) appendJSON(buf *bytes.Buffer) error {
	switch v.kind {
	case KindNull:
		buf.WriteString("null")
	case KindString:
		data, err := json.Marshal(v.text)
		if err != nil {
			return err
		}
		buf.Write(data)
	case KindNumber:
		buf.WriteString(v.text)
	case KindBool:
		buf.WriteString(strconv.FormatBool(v.b))
	case KindList:
		buf.WriteByte('[')
		for i, item := range v.list {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := item.appendJSON(buf); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case KindObject:
		buf.WriteByte('{')
		for i, k := range sortedKeys(v.obj) {
			if i > 0 {
				buf.WriteByte(',')
			}
			key, err := json.Marshal(k)
			if err != nil {
				return err
			}
			buf.Write(key)
			buf.WriteByte(':')
			if err := v.obj[k].appendJSON(buf); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	default:
		return fmt.Errorf("cannot marshal %s", v.kind)
	}
	return nil
}

// UnmarshalJSON implements json.Unmarshaler. Numbers keep their literal text.
func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	parsed, err := FromAny(raw)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

func sortedKeys(m map[string]Value) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// isNumberLiteral follows the JSON number grammar:
// -? (0 | [1-9][0-9]*) (. [0-9]+)? ([eE] [+-]? [0-9]+)?
func isNumberLiteral(s string) bool {
	i := 0
	if i < len(s) && s[i] == '-' {
		i++
	}
	if i >= len(s) {
		return false
	}
	switch {
	case s[i] == '0':
		i++
	case s[i] >= '1' && s[i] <= '9':
		for i < len(s) && isDigit(s[i]) {
			i++
		}
	default:
		return false
	}
	if i < len(s) && s[i] == '.' {
		i++
		start := i
		for i < len(s) && isDigit(s[i]) {
			i++
		}
		if i == start {
			return false
		}
	}
	if i < len(s) && (s[i] == 'e' || s[i] == 'E') {
		i++
		if i < len(s) && (s[i] == '+' || s[i] == '-') {
			i++
		}
		start := i
		for i < len(s) && isDigit(s[i]) {
			i++
		}
		if i == start {
			return false
		}
	}
	return i == len(s)
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }
