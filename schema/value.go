package schema

import (
	"strconv"
	"time"
)

// Value is a single typed field. The zero Value is invalid; build one with
// the constructors below so the logical type is always known.
type Value struct {
	typ  LogicalType
	null bool
	i    int64
	b    bool
	t    time.Time
	s    string
	raw  any
}

func Int64(v int64) Value { return Value{typ: TypeInt64, i: v} }
func Int32(v int32) Value { return Value{typ: TypeInt32, i: int64(v)} }
func Int16(v int16) Value { return Value{typ: TypeInt16, i: int64(v)} }
func Bool(v bool) Value   { return Value{typ: TypeBool, b: v} }
func Text(v string) Value { return Value{typ: TypeText, s: v} }

// Timestamp stores t in UTC.
func Timestamp(t time.Time) Value { return Value{typ: TypeTimestamp, t: t.UTC()} }

// Opaque keeps the textual rendering of a value the flat format has no
// dedicated encoding for, plus the native driver value when there is one.
func Opaque(text string, native any) Value {
	return Value{typ: TypeOpaque, s: text, raw: native}
}

// Null is the absent value of the given type.
func Null(typ LogicalType) Value { return Value{typ: typ, null: true} }

func (v Value) Type() LogicalType { return v.typ }
func (v Value) IsNull() bool      { return v.null }
func (v Value) Int() int64        { return v.i }
func (v Value) Bool() bool        { return v.b }
func (v Value) Time() time.Time   { return v.t }

// String returns the default textual form used by the flat file. Nulls
// render as the empty string.
func (v Value) String() string {
	if v.null {
		return ""
	}
	switch v.typ {
	case TypeInt64, TypeInt32, TypeInt16:
		return strconv.FormatInt(v.i, 10)
	case TypeBool:
		return strconv.FormatBool(v.b)
	case TypeTimestamp:
		return strconv.FormatInt(v.t.UnixMilli(), 10)
	default:
		return v.s
	}
}

// Arg converts the value into the argument handed to the driver when the
// value is bound to a statement.
func (v Value) Arg() any {
	if v.null {
		return nil
	}
	switch v.typ {
	case TypeInt64:
		return v.i
	case TypeInt32:
		return int32(v.i)
	case TypeInt16:
		return int16(v.i)
	case TypeBool:
		return v.b
	case TypeTimestamp:
		return v.t
	case TypeOpaque:
		if v.raw != nil {
			return v.raw
		}
		return v.s
	default:
		return v.s
	}
}
