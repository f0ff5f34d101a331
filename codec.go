package ffibridge

import (
	"bytes"

	"github.com/vmihailenco/msgpack/v5"
)

// snapshotVersion is bumped when the wire form of a Value changes.
const snapshotVersion = 1

type snapshot struct {
	Version int       `msgpack:"version"`
	Value   wireValue `msgpack:"value"`
}

type wireValue struct {
	Kind    Kind        `msgpack:"k"`
	Bool    bool        `msgpack:"b,omitempty"`
	Int     int64       `msgpack:"i,omitempty"`
	Uint    uint64      `msgpack:"u,omitempty"`
	Hi      uint64      `msgpack:"h,omitempty"`
	Float   float64     `msgpack:"f,omitempty"`
	Char    uint16      `msgpack:"c,omitempty"`
	Str     string      `msgpack:"s,omitempty"`
	Name    string      `msgpack:"n,omitempty"`
	Variant string      `msgpack:"v,omitempty"`
	Index   int         `msgpack:"x,omitempty"`
	Elems   []wireValue `msgpack:"e,omitempty"`
	Fields  []wireField `msgpack:"fs,omitempty"`
	Entries []wireEntry `msgpack:"es,omitempty"`
	Bytes   []byte      `msgpack:"y,omitempty"`
	Buffer  BufferKind  `msgpack:"t,omitempty"`
}

type wireField struct {
	Name  string    `msgpack:"n"`
	Value wireValue `msgpack:"v"`
}

type wireEntry struct {
	Key   wireValue `msgpack:"k"`
	Value wireValue `msgpack:"v"`
}

// EncodeValue snapshots v in MessagePack. Streams and references have no
// portable form and are rejected; buffers are copied.
func EncodeValue(v Value) ([]byte, error) {
	w, err := toWire(v)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.UseCompactInts(true)
	if err := enc.Encode(snapshot{Version: snapshotVersion, Value: w}); err != nil {
		return nil, newError(ConversionError, "encode value").cause(err).build()
	}
	return buf.Bytes(), nil
}

// DecodeValue restores a value written by EncodeValue.
func DecodeValue(data []byte) (Value, error) {
	var s snapshot
	if err := msgpack.Unmarshal(data, &s); err != nil {
		return Value{}, newError(ConversionError, "decode value").cause(err).build()
	}
	if s.Version != snapshotVersion {
		return Value{}, newError(ConversionError, "decode value").
			detail("snapshot version %d, want %d", s.Version, snapshotVersion).build()
	}
	return fromWire(s.Value), nil
}

func toWire(v Value) (wireValue, error) {
	switch v.Kind {
	case KindStream:
		return wireValue{}, ArrayWithoutLengthError
	case KindRef:
		return wireValue{}, newError(UnsupportedTypeError, "encode value").detail("references are not portable").build()
	}
	w := wireValue{
		Kind:    v.Kind,
		Bool:    v.Bool,
		Int:     v.Int,
		Uint:    v.Uint,
		Hi:      v.Hi,
		Float:   v.Float,
		Char:    uint16(v.Char),
		Str:     v.Str,
		Name:    v.Name,
		Variant: v.Variant,
		Index:   v.Index,
		Bytes:   v.Bytes,
		Buffer:  v.Buffer,
	}
	for _, e := range v.Elems {
		we, err := toWire(e)
		if err != nil {
			return wireValue{}, err
		}
		w.Elems = append(w.Elems, we)
	}
	for _, f := range v.Fields {
		wf, err := toWire(f.Value)
		if err != nil {
			return wireValue{}, err
		}
		w.Fields = append(w.Fields, wireField{Name: f.Name, Value: wf})
	}
	for _, e := range v.Entries {
		k, err := toWire(e.Key)
		if err != nil {
			return wireValue{}, err
		}
		val, err := toWire(e.Value)
		if err != nil {
			return wireValue{}, err
		}
		w.Entries = append(w.Entries, wireEntry{Key: k, Value: val})
	}
	return w, nil
}

func fromWire(w wireValue) Value {
	v := Value{
		Kind:    w.Kind,
		Bool:    w.Bool,
		Int:     w.Int,
		Uint:    w.Uint,
		Hi:      w.Hi,
		Float:   w.Float,
		Char:    Char(w.Char),
		Str:     w.Str,
		Name:    w.Name,
		Variant: w.Variant,
		Index:   w.Index,
		Bytes:   w.Bytes,
		Buffer:  w.Buffer,
	}
	for _, e := range w.Elems {
		v.Elems = append(v.Elems, fromWire(e))
	}
	for _, f := range w.Fields {
		v.Fields = append(v.Fields, Field{Name: f.Name, Value: fromWire(f.Value)})
	}
	for _, e := range w.Entries {
		v.Entries = append(v.Entries, Entry{Key: fromWire(e.Key), Value: fromWire(e.Value)})
	}
	// Empty collections are omitted on the wire.
	switch v.Kind {
	case KindSeq:
		if v.Elems == nil {
			v.Elems = []Value{}
		}
	case KindBytes, KindTypedArray:
		if v.Bytes == nil {
			v.Bytes = []byte{}
		}
	}
	return v
}
