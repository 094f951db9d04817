package record

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

// Value is a sealed interface over the storable value types.
// Only Null, Text, Int, Decimal, Bool, Bytes, and Time implement it.
// There is deliberately no float type: decimal columns carry a canonical
// string form so that dirty comparison never depends on float rounding.
type Value interface {
	value() // sealed
}

// Null represents an absent value (SQL NULL).
type Null struct{}

func (Null) value() {}

// Text represents a string value, NFC-normalized at construction.
type Text string

func (Text) value() {}

// Int represents an integer value. Always int64.
type Int int64

func (Int) value() {}

// Decimal represents an exact numeric value in canonical string form
// (no leading zeros, no trailing fraction zeros, no negative zero).
type Decimal string

func (Decimal) value() {}

// Bool represents a boolean value.
type Bool bool

func (Bool) value() {}

// Bytes represents an opaque binary value.
type Bytes []byte

func (Bytes) value() {}

// Time represents a timestamp, always held in UTC.
type Time time.Time

func (Time) value() {}

// NewText creates a Text value. The input is normalized to NFC so that
// two Unicode-equivalent spellings compare equal in dirty checks.
func NewText(s string) Text {
	return Text(norm.NFC.String(s))
}

// NewInt creates an Int value.
func NewInt(n int64) Int {
	return Int(n)
}

// NewBool creates a Bool value.
func NewBool(b bool) Bool {
	return Bool(b)
}

// NewBytes creates a Bytes value from a copy of b.
func NewBytes(b []byte) Bytes {
	out := make([]byte, len(b))
	copy(out, b)
	return Bytes(out)
}

// NewTime creates a Time value converted to UTC.
func NewTime(t time.Time) Time {
	return Time(t.UTC())
}

// NewDecimal parses s into a canonical Decimal.
// Accepts an optional sign, digits, and an optional fraction part.
func NewDecimal(s string) (Decimal, error) {
	canon, err := canonicalDecimal(s)
	if err != nil {
		return "", err
	}
	return Decimal(canon), nil
}

// MustDecimal is NewDecimal that panics on malformed input.
// For literals in tests and defaults only.
func MustDecimal(s string) Decimal {
	d, err := NewDecimal(s)
	if err != nil {
		panic(err)
	}
	return d
}

// canonicalDecimal normalizes a decimal literal: strips leading integer
// zeros and trailing fraction zeros, drops an empty fraction, and maps
// negative zero to zero.
func canonicalDecimal(s string) (string, error) {
	in := strings.TrimSpace(s)
	if in == "" {
		return "", fmt.Errorf("empty decimal literal")
	}

	neg := false
	switch in[0] {
	case '-':
		neg = true
		in = in[1:]
	case '+':
		in = in[1:]
	}

	intPart, fracPart, hasFrac := strings.Cut(in, ".")
	if intPart == "" && fracPart == "" {
		return "", fmt.Errorf("malformed decimal literal %q", s)
	}
	for _, r := range intPart {
		if r < '0' || r > '9' {
			return "", fmt.Errorf("malformed decimal literal %q", s)
		}
	}
	for _, r := range fracPart {
		if r < '0' || r > '9' {
			return "", fmt.Errorf("malformed decimal literal %q", s)
		}
	}

	intPart = strings.TrimLeft(intPart, "0")
	if intPart == "" {
		intPart = "0"
	}
	if hasFrac {
		fracPart = strings.TrimRight(fracPart, "0")
	}

	out := intPart
	if fracPart != "" {
		out += "." + fracPart
	}
	if neg && out != "0" {
		out = "-" + out
	}
	return out, nil
}

// Equal reports whether two values are equal.
// Time values compare by instant (UTC), Bytes by content.
func Equal(a, b Value) bool {
	switch av := a.(type) {
	case Null:
		_, ok := b.(Null)
		return ok
	case Text:
		bv, ok := b.(Text)
		return ok && av == bv
	case Int:
		bv, ok := b.(Int)
		return ok && av == bv
	case Decimal:
		bv, ok := b.(Decimal)
		return ok && av == bv
	case Bool:
		bv, ok := b.(Bool)
		return ok && av == bv
	case Bytes:
		bv, ok := b.(Bytes)
		return ok && bytes.Equal(av, bv)
	case Time:
		bv, ok := b.(Time)
		return ok && time.Time(av).Equal(time.Time(bv))
	default:
		return false
	}
}

// IsZero reports whether v is the zero value for its type
// (Null, empty text, 0, "0", false, empty bytes, zero time).
func IsZero(v Value) bool {
	switch val := v.(type) {
	case nil, Null:
		return true
	case Text:
		return val == ""
	case Int:
		return val == 0
	case Decimal:
		return val == "0" || val == ""
	case Bool:
		return !bool(val)
	case Bytes:
		return len(val) == 0
	case Time:
		return time.Time(val).IsZero()
	default:
		return false
	}
}

// ToParam converts a Value to a database/sql parameter.
// Time values are rendered as RFC 3339 UTC text so that round-trips
// through a TEXT column are exact.
func ToParam(v Value) (any, error) {
	switch val := v.(type) {
	case nil, Null:
		return nil, nil
	case Text:
		return string(val), nil
	case Int:
		return int64(val), nil
	case Decimal:
		return string(val), nil
	case Bool:
		return bool(val), nil
	case Bytes:
		return []byte(val), nil
	case Time:
		return time.Time(val).Format(time.RFC3339Nano), nil
	default:
		return nil, fmt.Errorf("unsupported value type for SQL parameter: %T", v)
	}
}

// FromScan converts a raw database/sql scan result into a Value of the
// given field type. Drivers hand back a narrow set of Go types; anything
// outside it is a shape error at the store boundary.
func FromScan(ft FieldType, raw any) (Value, error) {
	if raw == nil {
		return Null{}, nil
	}
	switch ft {
	case TypeText:
		switch rv := raw.(type) {
		case string:
			return NewText(rv), nil
		case []byte:
			return NewText(string(rv)), nil
		}
	case TypeInt:
		switch rv := raw.(type) {
		case int64:
			return Int(rv), nil
		case int:
			return Int(rv), nil
		case bool:
			if rv {
				return Int(1), nil
			}
			return Int(0), nil
		}
	case TypeDecimal:
		switch rv := raw.(type) {
		case string:
			return NewDecimal(rv)
		case []byte:
			return NewDecimal(string(rv))
		case int64:
			return NewDecimal(fmt.Sprintf("%d", rv))
		case float64:
			// SQLite NUMERIC affinity may surface as float; the shortest
			// exact rendering keeps round-trips stable at any precision.
			return NewDecimal(strconv.FormatFloat(rv, 'f', -1, 64))
		}
	case TypeBool:
		switch rv := raw.(type) {
		case bool:
			return Bool(rv), nil
		case int64:
			return Bool(rv != 0), nil
		}
	case TypeBytes:
		if rv, ok := raw.([]byte); ok {
			return NewBytes(rv), nil
		}
	case TypeTime:
		switch rv := raw.(type) {
		case time.Time:
			return NewTime(rv), nil
		case string:
			t, err := time.Parse(time.RFC3339Nano, rv)
			if err != nil {
				return nil, fmt.Errorf("parse timestamp %q: %w", rv, err)
			}
			return NewTime(t), nil
		case []byte:
			t, err := time.Parse(time.RFC3339Nano, string(rv))
			if err != nil {
				return nil, fmt.Errorf("parse timestamp %q: %w", rv, err)
			}
			return NewTime(t), nil
		}
	}
	return nil, fmt.Errorf("cannot scan %T into %s field", raw, ft)
}

// String renders a value for diagnostics and key strings.
func String(v Value) string {
	switch val := v.(type) {
	case nil, Null:
		return "<null>"
	case Text:
		return string(val)
	case Int:
		return fmt.Sprintf("%d", int64(val))
	case Decimal:
		return string(val)
	case Bool:
		if val {
			return "true"
		}
		return "false"
	case Bytes:
		return fmt.Sprintf("0x%x", []byte(val))
	case Time:
		return time.Time(val).Format(time.RFC3339Nano)
	default:
		return fmt.Sprintf("%v", v)
	}
}
