package value

import (
	"fmt"
	"sort"
	"time"
)

// FromAny converts plain Go data (as produced by yaml or encoding/json decoders)
// into a Value. Map keys are sorted since Go maps carry no order.
func FromAny(x interface{}) (Value, error) {
	switch t := x.(type) {
	case nil:
		return Null(), nil
	case Value:
		return t, nil
	case bool:
		return Bool(t), nil
	case string:
		return String(t), nil
	case int:
		return Int(int64(t)), nil
	case int32:
		return Int(int64(t)), nil
	case int64:
		return Int(t), nil
	case uint64:
		return Number(float64(t)), nil
	case float32:
		return Number(float64(t)), nil
	case float64:
		return Number(t), nil
	case time.Time:
		return Time(t), nil
	case []interface{}:
		items := make([]Value, 0, len(t))
		for _, item := range t {
			v, err := FromAny(item)
			if err != nil {
				return Null(), err
			}
			items = append(items, v)
		}
		return List(items...), nil
	case map[string]interface{}:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		o := NewObject()
		for _, k := range keys {
			v, err := FromAny(t[k])
			if err != nil {
				return Null(), err
			}
			o.Set(k, v)
		}
		if f, ok := fileFromObject(o); ok {
			return File(f), nil
		}
		return FromObject(o), nil
	}
	return Null(), fmt.Errorf("unsupported type %T", x)
}
