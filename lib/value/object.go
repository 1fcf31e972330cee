package value

import "strings"

// Object is an insertion-ordered string -> Value map
type Object struct {
	keys   []string
	fields map[string]Value
}

// NewObject creates an empty object
func NewObject() *Object {
	return &Object{fields: make(map[string]Value)}
}

// Len returns the number of fields
func (o *Object) Len() int {
	if o == nil {
		return 0
	}
	return len(o.keys)
}

// Keys returns the field names in insertion order
func (o *Object) Keys() []string {
	if o == nil {
		return nil
	}
	return append([]string(nil), o.keys...)
}

// Get returns the field with the exact given name
func (o *Object) Get(name string) (Value, bool) {
	if o == nil {
		return Null(), false
	}
	v, ok := o.fields[name]
	return v, ok
}

// Set adds or replaces a field. Replacing keeps the original position.
func (o *Object) Set(name string, v Value) *Object {
	if o.fields == nil {
		o.fields = make(map[string]Value)
	}
	if _, ok := o.fields[name]; !ok {
		o.keys = append(o.keys, name)
	}
	o.fields[name] = v
	return o
}

// Delete removes a field
func (o *Object) Delete(name string) {
	if _, ok := o.fields[name]; !ok {
		return
	}
	delete(o.fields, name)
	for i, k := range o.keys {
		if k == name {
			o.keys = append(o.keys[:i], o.keys[i+1:]...)
			break
		}
	}
}

// Range calls fn for every field in order until fn returns false
func (o *Object) Range(fn func(name string, v Value) bool) {
	if o == nil {
		return
	}
	for _, k := range o.keys {
		if !fn(k, o.fields[k]) {
			return
		}
	}
}

// Clone deep-copies the object
func (o *Object) Clone() *Object {
	c := &Object{
		keys:   make([]string, len(o.keys)),
		fields: make(map[string]Value, len(o.fields)),
	}
	copy(c.keys, o.keys)
	for k, v := range o.fields {
		c.fields[k] = v.Clone()
	}
	return c
}

// Equal compares field sets, ignoring order
func (o *Object) Equal(other *Object) bool {
	if o.Len() != other.Len() {
		return false
	}
	for _, k := range o.keys {
		ov, ok := other.fields[k]
		if !ok || !o.fields[k].Equal(ov) {
			return false
		}
	}
	return true
}

// project keeps the fields whose lower-cased name is in wanted, plus "id"
func (o *Object) project(wanted map[string]struct{}) *Object {
	p := NewObject()
	for _, k := range o.keys {
		if k == IDField {
			p.Set(k, o.fields[k].Clone())
			continue
		}
		if _, ok := wanted[strings.ToLower(k)]; ok {
			p.Set(k, o.fields[k].Clone())
		}
	}
	return p
}
