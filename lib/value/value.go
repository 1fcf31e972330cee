package value

import (
	"math"
	"strconv"
	"time"
)

// Kind identifies the variant held by a Value
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindList
	KindObject
	KindFile
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindList:
		return "list"
	case KindObject:
		return "object"
	case KindFile:
		return "file"
	default:
		return "unknown(" + strconv.Itoa(int(k)) + ")"
	}
}

// Value is the schema-less unit of data stored under a key.
// The zero Value is Null.
type Value struct {
	kind Kind
	b    bool
	n    float64
	s    string
	list []Value
	obj  *Object
	file *FileRecord
}

// --------------------------------------------------------------------------
// Constructors
// --------------------------------------------------------------------------

// Null returns the null value
func Null() Value { return Value{} }

// Bool wraps a boolean
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Number wraps a float64
func Number(n float64) Value { return Value{kind: KindNumber, n: n} }

// Int wraps an integer as a Number
func Int(n int64) Value { return Value{kind: KindNumber, n: float64(n)} }

// String wraps a string
func String(s string) Value { return Value{kind: KindString, s: s} }

// Time wraps a timestamp as an RFC 3339 string
func Time(t time.Time) Value { return String(t.UTC().Format(time.RFC3339Nano)) }

// List wraps the given items into a list value. The slice is not copied.
func List(items ...Value) Value {
	if items == nil {
		items = []Value{}
	}
	return Value{kind: KindList, list: items}
}

// FromObject wraps an object. A nil object becomes an empty one.
func FromObject(o *Object) Value {
	if o == nil {
		o = NewObject()
	}
	return Value{kind: KindObject, obj: o}
}

// File wraps a file record
func File(f *FileRecord) Value {
	if f == nil {
		return Null()
	}
	return Value{kind: KindFile, file: f}
}

// --------------------------------------------------------------------------
// Accessors
// --------------------------------------------------------------------------

func (v Value) Kind() Kind     { return v.kind }
func (v Value) IsNull() bool   { return v.kind == KindNull }
func (v Value) IsList() bool   { return v.kind == KindList }
func (v Value) IsObject() bool { return v.kind == KindObject }
func (v Value) IsFile() bool   { return v.kind == KindFile }

// Identifiable reports whether the value is an entry that carries an id (object or file)
func (v Value) Identifiable() bool { return v.kind == KindObject || v.kind == KindFile }

func (v Value) AsBool() (bool, bool)       { return v.b, v.kind == KindBool }
func (v Value) AsNumber() (float64, bool)  { return v.n, v.kind == KindNumber }
func (v Value) AsString() (string, bool)   { return v.s, v.kind == KindString }
func (v Value) AsList() ([]Value, bool)    { return v.list, v.kind == KindList }
func (v Value) AsObject() (*Object, bool)  { return v.obj, v.kind == KindObject }
func (v Value) AsFile() (*FileRecord, bool) { return v.file, v.kind == KindFile }

// Len returns the number of list items, or 0 for every other kind
func (v Value) Len() int {
	if v.kind == KindList {
		return len(v.list)
	}
	return 0
}

// Clone returns a deep copy. The transient content stream of a file record is shared.
func (v Value) Clone() Value {
	switch v.kind {
	case KindList:
		items := make([]Value, len(v.list))
		for i, item := range v.list {
			items[i] = item.Clone()
		}
		return Value{kind: KindList, list: items}
	case KindObject:
		return Value{kind: KindObject, obj: v.obj.Clone()}
	case KindFile:
		f := *v.file
		return Value{kind: KindFile, file: &f}
	default:
		return v
	}
}

// Equal compares two values structurally. Object field order is ignored.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindBool:
		return v.b == o.b
	case KindNumber:
		return v.n == o.n || (math.IsNaN(v.n) && math.IsNaN(o.n))
	case KindString:
		return v.s == o.s
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
		return v.obj.Equal(o.obj)
	case KindFile:
		return v.file.Equal(o.file)
	}
	return false
}

// String renders the value as JSON text, mainly for logs and plain-text responses
func (v Value) String() string {
	if s, ok := v.AsString(); ok {
		return s
	}
	b, err := v.MarshalJSON()
	if err != nil {
		return "<" + v.kind.String() + ">"
	}
	return string(b)
}
