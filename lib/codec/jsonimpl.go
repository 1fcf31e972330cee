package codec

import "github.com/ma99us/MikeDB/lib/value"

// NewJSONCodec creates a codec writing human-readable JSON value files
func NewJSONCodec() IValueCodec {
	return &jsonCodecImpl{}
}

// jsonCodecImpl implements IValueCodec with the JSON encoding of the value package
type jsonCodecImpl struct {
}

// --------------------------------------------------------------------------
// Interface Methods (docu see codec.IValueCodec)
// --------------------------------------------------------------------------

func (j jsonCodecImpl) Name() string { return "json" }

func (j jsonCodecImpl) Ext() string { return "json" }

func (j jsonCodecImpl) Encode(v value.Value) ([]byte, error) {
	return v.MarshalJSON()
}

func (j jsonCodecImpl) Decode(data []byte) (value.Value, error) {
	return value.Parse(data)
}
