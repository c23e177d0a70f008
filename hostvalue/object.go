package hostvalue

import (
	"bytes"

	"github.com/goccy/go-json"
)

// Object is an immutable mapping from field name to value that keeps the
// declaration order of its fields.
type Object struct {
	names  []string
	values []Value
	index  map[string]int
}

// NewObject builds an object from parallel name and value slices. A
// repeated name keeps its first position and takes the last value, like
// Object.fromEntries.
func NewObject(names []string, values []Value) *Object {
	o := &Object{
		names:  make([]string, 0, len(names)),
		values: make([]Value, 0, len(names)),
		index:  make(map[string]int, len(names)),
	}
	for i, name := range names {
		v := values[i]
		if v == nil {
			v = Null{}
		}
		if pos, ok := o.index[name]; ok {
			o.values[pos] = v
			continue
		}
		o.index[name] = len(o.names)
		o.names = append(o.names, name)
		o.values = append(o.values, v)
	}
	return o
}

func (*Object) Kind() Kind { return KindObject }

// Len returns the number of fields.
func (o *Object) Len() int { return len(o.names) }

// Keys returns the field names in declaration order.
func (o *Object) Keys() []string {
	out := make([]string, len(o.names))
	copy(out, o.names)
	return out
}

// Get returns the value of the named field.
func (o *Object) Get(name string) (Value, bool) {
	i, ok := o.index[name]
	if !ok {
		return nil, false
	}
	return o.values[i], true
}

// Range calls fn for each field in order until fn returns false.
func (o *Object) Range(fn func(name string, v Value) bool) {
	for i, name := range o.names {
		if !fn(name, o.values[i]) {
			return
		}
	}
}

// Set always fails: objects are frozen once built.
func (o *Object) Set(name string, v Value) error { return ErrFrozen }

// Delete always fails: objects are frozen once built.
func (o *Object) Delete(name string) error { return ErrFrozen }

// MarshalJSON writes the fields in declaration order.
func (o *Object) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, name := range o.names {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(name)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')

		val, err := o.values[i].MarshalJSON()
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
