package jsvm

import (
	_ "embed"
	"fmt"

	"github.com/Gaurav-Gosain/ffibridge/abi"
)

//go:embed prelude.js
var preludeSource string

// Namespace holds the classes installed by the prelude.
const Namespace = "ffi"

// prelude keeps the helper functions returned by the prelude script. All
// handles are owned by the VM and freed on Close.
type prelude[V any] struct {
	table      V
	typeOf     V
	instanceOf V
	hasOwn     V
	isArray    V
	isFunction V
	lookup     V
	newArray   V
	describe   V

	global      V
	arrayBuffer V
	boxes       [9]V // indexed by abi.Kind
}

func loadPrelude[V any](eng Engine[V]) (*prelude[V], error) {
	table, err := eng.Eval(preludeSource, "<ffi prelude>")
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate prelude: %w", err)
	}
	p := &prelude[V]{table: table}

	get := func(obj V, name string) (V, error) {
		v, err := eng.Get(obj, name)
		if err != nil {
			return v, fmt.Errorf("failed to read prelude helper %s: %w", name, err)
		}
		return v, nil
	}

	helpers := []struct {
		name string
		dst  *V
	}{
		{"typeOf", &p.typeOf},
		{"instanceOf", &p.instanceOf},
		{"hasOwn", &p.hasOwn},
		{"isArray", &p.isArray},
		{"isFunction", &p.isFunction},
		{"lookup", &p.lookup},
		{"newArray", &p.newArray},
		{"describe", &p.describe},
	}
	for _, h := range helpers {
		if *h.dst, err = get(table, h.name); err != nil {
			return nil, err
		}
	}

	if p.global, err = eng.Global(); err != nil {
		return nil, fmt.Errorf("failed to get global object: %w", err)
	}
	if p.arrayBuffer, err = get(p.global, "ArrayBuffer"); err != nil {
		return nil, err
	}
	ns, err := get(p.global, Namespace)
	if err != nil {
		return nil, err
	}
	defer eng.Free(ns)
	for k := 1; k < len(p.boxes); k++ {
		if p.boxes[k], err = get(ns, abi.Kind(k).String()); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (p *prelude[V]) free(eng Engine[V]) {
	for _, v := range []V{p.typeOf, p.instanceOf, p.hasOwn, p.isArray, p.isFunction,
		p.lookup, p.newArray, p.describe, p.global, p.arrayBuffer, p.table} {
		eng.Free(v)
	}
	for k := 1; k < len(p.boxes); k++ {
		eng.Free(p.boxes[k])
	}
}
