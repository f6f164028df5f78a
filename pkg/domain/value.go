package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// ValueKind classifies a cell into the closed set of semantic types the engine
// compares on.
type ValueKind string

const (
	// KindEmpty marks a cell with no value.
	KindEmpty ValueKind = "empty"
	// KindText marks a string cell.
	KindText ValueKind = "text"
	// KindNumber marks a numeric cell.
	KindNumber ValueKind = "number"
	// KindBool marks a boolean cell.
	KindBool ValueKind = "boolean"
)

// Value is a typed cell value. The zero Value is Empty.
//
// Text("") and Empty are distinct values, but a workbook cannot hold an empty
// string: a table kept in the workbook store reads Text("") back as Empty, and a
// selector on Text("") stops matching after the next save. Use Empty to blank a
// cell.
type Value struct {
	kind ValueKind
	text string
	num  float64
	b    bool
}

// Empty returns the explicit empty marker.
func Empty() Value { return Value{kind: KindEmpty} }

// Text wraps a string cell.
func Text(s string) Value { return Value{kind: KindText, text: s} }

// Number wraps a numeric cell.
func Number(f float64) Value { return Value{kind: KindNumber, num: f} }

// Bool wraps a boolean cell.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Kind reports the semantic type. The zero Value reports KindEmpty.
func (v Value) Kind() ValueKind {
	if v.kind == "" {
		return KindEmpty
	}
	return v.kind
}

// IsEmpty reports whether the value is the empty marker.
func (v Value) IsEmpty() bool { return v.Kind() == KindEmpty }

// AsText returns the string payload of a text value.
func (v Value) AsText() (string, bool) { return v.text, v.Kind() == KindText }

// AsNumber returns the numeric payload of a number value.
func (v Value) AsNumber() (float64, bool) { return v.num, v.Kind() == KindNumber }

// AsBool returns the boolean payload of a boolean value.
func (v Value) AsBool() (bool, bool) { return v.b, v.Kind() == KindBool }

// Equal compares kind first; a text "1" never equals the number 1.
func (v Value) Equal(other Value) bool {
	if v.Kind() != other.Kind() {
		return false
	}
	switch v.Kind() {
	case KindText:
		return v.text == other.text
	case KindNumber:
		return v.num == other.num
	case KindBool:
		return v.b == other.b
	default:
		return true
	}
}

// Interface returns the Go value used when writing the cell back to a workbook.
func (v Value) Interface() any {
	switch v.Kind() {
	case KindText:
		return v.text
	case KindNumber:
		return v.num
	case KindBool:
		return v.b
	default:
		return nil
	}
}

// String renders the value for logs and messages.
func (v Value) String() string {
	switch v.Kind() {
	case KindText:
		return v.text
	case KindNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.b)
	default:
		return ""
	}
}

// MarshalJSON encodes text as a string, number as a number, boolean as a
// boolean and empty as null.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Kind() {
	case KindText:
		return json.Marshal(v.text)
	case KindNumber:
		if math.IsNaN(v.num) || math.IsInf(v.num, 0) {
			return nil, fmt.Errorf("value: non-finite number %v", v.num)
		}
		return json.Marshal(v.num)
	case KindBool:
		return json.Marshal(v.b)
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON accepts the scalar JSON types. Arrays and objects are rejected.
func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*v = Empty()
		return nil
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = Text(s)
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return err
		}
		*v = Bool(b)
	case '[', '{':
		return fmt.Errorf("value: unsupported JSON %s", string(data[:1]))
	default:
		f, err := strconv.ParseFloat(string(data), 64)
		if err != nil {
			return fmt.Errorf("value: %w", err)
		}
		*v = Number(f)
	}
	return nil
}
