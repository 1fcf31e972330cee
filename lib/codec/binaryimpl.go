package codec

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/ma99us/MikeDB/lib/value"
)

// NewBinaryCodec creates a codec using a compact binary format. Value files written
// by it are smaller and faster to load than JSON but not human-readable.
func NewBinaryCodec() IValueCodec {
	return &binaryCodecImpl{}
}

// binaryCodecImpl implements IValueCodec using a tag-length-value format:
//
//	file   := version(1) value
//	value  := tag(1) payload
//	string := len(4, big endian) bytes
//	list   := count(4) value*
//	object := count(4) (string value)*
//	file   := flags(1) [id(8)] name [fileName] type mimeType size(8) modTime(8) [locator]
type binaryCodecImpl struct {
}

const (
	binaryFormatVersion byte = 1
	maxDecodeDepth           = 512
)

// value tags
const (
	tagNull byte = iota
	tagFalse
	tagTrue
	tagNumber
	tagString
	tagList
	tagObject
	tagFile
)

// Bit flags to indicate which optional file record fields are present
const (
	hasID       byte = 1 << 0
	hasFileName byte = 1 << 1
	hasLocator  byte = 1 << 2
)

// --------------------------------------------------------------------------
// Interface Methods (docu see codec.IValueCodec)
// --------------------------------------------------------------------------

func (b binaryCodecImpl) Name() string { return "binary" }

func (b binaryCodecImpl) Ext() string { return "bin" }

func (b binaryCodecImpl) Encode(v value.Value) ([]byte, error) {
	result := make([]byte, 1, 64)
	result[0] = binaryFormatVersion
	return b.appendValue(result, v)
}

func (b binaryCodecImpl) Decode(data []byte) (value.Value, error) {
	// Check minimum size (version + tag)
	if len(data) < 2 {
		return value.Null(), fmt.Errorf("data too short for value header")
	}
	if data[0] != binaryFormatVersion {
		return value.Null(), fmt.Errorf("unsupported binary format version %d", data[0])
	}

	d := &binaryDecoder{data: data, pos: 1}
	v, err := d.readValue(0)
	if err != nil {
		return value.Null(), err
	}
	if d.pos != len(data) {
		return value.Null(), fmt.Errorf("%d trailing bytes after value", len(data)-d.pos)
	}
	return v, nil
}

// --------------------------------------------------------------------------
// Encoding
// --------------------------------------------------------------------------

func (b binaryCodecImpl) appendValue(buf []byte, v value.Value) ([]byte, error) {
	switch v.Kind() {
	case value.KindNull:
		return append(buf, tagNull), nil

	case value.KindBool:
		if t, _ := v.AsBool(); t {
			return append(buf, tagTrue), nil
		}
		return append(buf, tagFalse), nil

	case value.KindNumber:
		n, _ := v.AsNumber()
		buf = append(buf, tagNumber)
		return binary.BigEndian.AppendUint64(buf, math.Float64bits(n)), nil

	case value.KindString:
		s, _ := v.AsString()
		return appendString(append(buf, tagString), s), nil

	case value.KindList:
		items, _ := v.AsList()
		buf = append(buf, tagList)
		buf = binary.BigEndian.AppendUint32(buf, uint32(len(items)))
		var err error
		for _, item := range items {
			if buf, err = b.appendValue(buf, item); err != nil {
				return nil, err
			}
		}
		return buf, nil

	case value.KindObject:
		obj, _ := v.AsObject()
		buf = append(buf, tagObject)
		buf = binary.BigEndian.AppendUint32(buf, uint32(obj.Len()))
		var err error
		obj.Range(func(name string, field value.Value) bool {
			buf = appendString(buf, name)
			buf, err = b.appendValue(buf, field)
			return err == nil
		})
		return buf, err

	case value.KindFile:
		f, _ := v.AsFile()
		buf = append(buf, tagFile)

		// Initialize flags byte, patched after the optional fields are known
		var flags byte = 0
		flagsPos := len(buf)
		buf = append(buf, 0)

		if f.ID > 0 {
			flags |= hasID
			buf = binary.BigEndian.AppendUint64(buf, uint64(f.ID))
		}
		buf = appendString(buf, f.Name)
		if f.FileName != "" {
			flags |= hasFileName
			buf = appendString(buf, f.FileName)
		}
		buf = appendString(buf, f.Type)
		buf = appendString(buf, f.MimeType)
		buf = binary.BigEndian.AppendUint64(buf, uint64(f.Size))
		buf = binary.BigEndian.AppendUint64(buf, uint64(f.ModTime.UnixMilli()))
		if f.Locator != "" {
			flags |= hasLocator
			buf = appendString(buf, f.Locator)
		}

		buf[flagsPos] = flags
		return buf, nil
	}
	return nil, fmt.Errorf("unknown value kind %s", v.Kind())
}

func appendString(buf []byte, s string) []byte {
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(s)))
	return append(buf, s...)
}

// --------------------------------------------------------------------------
// Decoding
// --------------------------------------------------------------------------

// binaryDecoder keeps the read position while walking the value tree
type binaryDecoder struct {
	data []byte
	pos  int
}

func (d *binaryDecoder) need(n int, what string) error {
	if n < 0 || d.pos+n > len(d.data) {
		return fmt.Errorf("data too short for %s", what)
	}
	return nil
}

func (d *binaryDecoder) readByte(what string) (byte, error) {
	if err := d.need(1, what); err != nil {
		return 0, err
	}
	b := d.data[d.pos]
	d.pos++
	return b, nil
}

func (d *binaryDecoder) readUint32(what string) (uint32, error) {
	if err := d.need(4, what); err != nil {
		return 0, err
	}
	n := binary.BigEndian.Uint32(d.data[d.pos : d.pos+4])
	d.pos += 4
	return n, nil
}

func (d *binaryDecoder) readUint64(what string) (uint64, error) {
	if err := d.need(8, what); err != nil {
		return 0, err
	}
	n := binary.BigEndian.Uint64(d.data[d.pos : d.pos+8])
	d.pos += 8
	return n, nil
}

func (d *binaryDecoder) readString(what string) (string, error) {
	n, err := d.readUint32(what + " length")
	if err != nil {
		return "", err
	}
	if err := d.need(int(n), what); err != nil {
		return "", err
	}
	s := string(d.data[d.pos : d.pos+int(n)])
	d.pos += int(n)
	return s, nil
}

func (d *binaryDecoder) readValue(depth int) (value.Value, error) {
	if depth > maxDecodeDepth {
		return value.Null(), fmt.Errorf("value nested deeper than %d levels", maxDecodeDepth)
	}

	tag, err := d.readByte("value tag")
	if err != nil {
		return value.Null(), err
	}

	switch tag {
	case tagNull:
		return value.Null(), nil
	case tagFalse:
		return value.Bool(false), nil
	case tagTrue:
		return value.Bool(true), nil

	case tagNumber:
		bits, err := d.readUint64("number")
		if err != nil {
			return value.Null(), err
		}
		return value.Number(math.Float64frombits(bits)), nil

	case tagString:
		s, err := d.readString("string")
		if err != nil {
			return value.Null(), err
		}
		return value.String(s), nil

	case tagList:
		count, err := d.readUint32("list length")
		if err != nil {
			return value.Null(), err
		}
		// every item needs at least its tag byte
		if err := d.need(int(count), "list items"); err != nil {
			return value.Null(), err
		}
		items := make([]value.Value, 0, count)
		for i := uint32(0); i < count; i++ {
			item, err := d.readValue(depth + 1)
			if err != nil {
				return value.Null(), err
			}
			items = append(items, item)
		}
		return value.List(items...), nil

	case tagObject:
		count, err := d.readUint32("object length")
		if err != nil {
			return value.Null(), err
		}
		obj := value.NewObject()
		for i := uint32(0); i < count; i++ {
			name, err := d.readString("field name")
			if err != nil {
				return value.Null(), err
			}
			field, err := d.readValue(depth + 1)
			if err != nil {
				return value.Null(), err
			}
			obj.Set(name, field)
		}
		return value.FromObject(obj), nil

	case tagFile:
		return d.readFile()
	}
	return value.Null(), fmt.Errorf("unknown value tag %d", tag)
}

func (d *binaryDecoder) readFile() (value.Value, error) {
	flags, err := d.readByte("file flags")
	if err != nil {
		return value.Null(), err
	}

	f := &value.FileRecord{}
	if flags&hasID != 0 {
		id, err := d.readUint64("file id")
		if err != nil {
			return value.Null(), err
		}
		f.ID = int64(id)
	}
	if f.Name, err = d.readString("file name"); err != nil {
		return value.Null(), err
	}
	if flags&hasFileName != 0 {
		if f.FileName, err = d.readString("upload file name"); err != nil {
			return value.Null(), err
		}
	}
	if f.Type, err = d.readString("file type"); err != nil {
		return value.Null(), err
	}
	if f.MimeType, err = d.readString("mime type"); err != nil {
		return value.Null(), err
	}
	size, err := d.readUint64("file size")
	if err != nil {
		return value.Null(), err
	}
	f.Size = int64(size)
	millis, err := d.readUint64("file timestamp")
	if err != nil {
		return value.Null(), err
	}
	f.ModTime = time.UnixMilli(int64(millis))
	if flags&hasLocator != 0 {
		if f.Locator, err = d.readString("storage locator"); err != nil {
			return value.Null(), err
		}
	}
	return value.File(f), nil
}
