package value

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
)

// MarshalJSON encodes the value. Object field order is preserved and file records
// are rendered as tagged objects.
func (v Value) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := writeJSON(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes any JSON document into the value
func (v *Value) UnmarshalJSON(data []byte) error {
	parsed, err := Parse(data)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// Parse decodes a single JSON document
func Parse(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	v, err := readJSON(dec)
	if err != nil {
		return Null(), err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return Null(), fmt.Errorf("unexpected data after JSON value")
	}
	return v, nil
}

// MustParse is Parse for literals in tests and seeds; it panics on malformed input
func MustParse(s string) Value {
	v, err := Parse([]byte(s))
	if err != nil {
		panic(fmt.Sprintf("value.MustParse(%q): %v", s, err))
	}
	return v
}

// IsJSONObject reports whether data holds exactly one JSON object
func IsJSONObject(data []byte) bool {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return false
	}
	v, err := Parse(trimmed)
	return err == nil && v.kind == KindObject
}

// --------------------------------------------------------------------------
// Encoding
// --------------------------------------------------------------------------

func writeJSON(buf *bytes.Buffer, v Value) error {
	switch v.kind {
	case KindNull:
		buf.WriteString("null")
	case KindBool:
		buf.WriteString(strconv.FormatBool(v.b))
	case KindNumber:
		if math.IsNaN(v.n) || math.IsInf(v.n, 0) {
			return fmt.Errorf("unsupported number %v", v.n)
		}
		buf.WriteString(formatNumber(v.n))
	case KindString:
		writeString(buf, v.s)
	case KindList:
		buf.WriteByte('[')
		for i, item := range v.list {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeJSON(buf, item); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case KindObject:
		return writeObject(buf, v.obj)
	case KindFile:
		return writeObject(buf, v.file.toObject())
	default:
		return fmt.Errorf("unknown value kind %d", v.kind)
	}
	return nil
}

func writeObject(buf *bytes.Buffer, o *Object) error {
	buf.WriteByte('{')
	var err error
	first := true
	o.Range(func(name string, field Value) bool {
		if !first {
			buf.WriteByte(',')
		}
		first = false
		writeString(buf, name)
		buf.WriteByte(':')
		err = writeJSON(buf, field)
		return err == nil
	})
	buf.WriteByte('}')
	return err
}

func writeString(buf *bytes.Buffer, s string) {
	b, _ := json.Marshal(s) // never fails for strings
	buf.Write(b)
}

// formatNumber prints integral values without exponent as long as they are exact
func formatNumber(n float64) string {
	if n == math.Trunc(n) && math.Abs(n) <= float64(MaxSafeInteger) {
		return strconv.FormatInt(int64(n), 10)
	}
	return strconv.FormatFloat(n, 'g', -1, 64)
}

// --------------------------------------------------------------------------
// Decoding
// --------------------------------------------------------------------------

func readJSON(dec *json.Decoder) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return Null(), err
	}
	return readToken(dec, tok)
}

func readToken(dec *json.Decoder, tok json.Token) (Value, error) {
	switch t := tok.(type) {
	case nil:
		return Null(), nil
	case bool:
		return Bool(t), nil
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return Null(), fmt.Errorf("invalid number %q: %w", t, err)
		}
		return Number(f), nil
	case string:
		return String(t), nil
	case json.Delim:
		switch t {
		case '[':
			items := []Value{}
			for dec.More() {
				item, err := readJSON(dec)
				if err != nil {
					return Null(), err
				}
				items = append(items, item)
			}
			if _, err := dec.Token(); err != nil { // ']'
				return Null(), err
			}
			return List(items...), nil
		case '{':
			o := NewObject()
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return Null(), err
				}
				key, ok := keyTok.(string)
				if !ok {
					return Null(), fmt.Errorf("invalid object key %v", keyTok)
				}
				field, err := readJSON(dec)
				if err != nil {
					return Null(), err
				}
				o.Set(key, field)
			}
			if _, err := dec.Token(); err != nil { // '}'
				return Null(), err
			}
			if f, ok := fileFromObject(o); ok {
				return File(f), nil
			}
			return FromObject(o), nil
		}
	}
	return Null(), fmt.Errorf("unexpected JSON token %v", tok)
}
