package ffibridge

import "iter"

// recordClass is the foreign key-unique collection.
const recordClass = "Map"

// NewRecord creates an empty record.
func (e *Env) NewRecord() (Ref, error) {
	return e.NewObjectByName(recordClass)
}

// GetRecord returns the value stored under key, or undefined.
func (e *Env) GetRecord(rec, key Ref) (Ref, error) {
	return e.CallMethodByName(rec, "get", key)
}

// SetRecord associates key with val.
func (e *Env) SetRecord(rec, key, val Ref) error {
	_, err := e.CallMethodByName(rec, "set", key, val)
	return err
}

// RecordEntries starts iterating over rec's entries.
func (e *Env) RecordEntries(rec Ref) (*EntryIterator, error) {
	it, err := e.CallMethodByName(rec, "entries")
	if err != nil {
		return nil, err
	}
	return &EntryIterator{env: e, it: it}, nil
}

// EntryIterator walks a record through the foreign iterator protocol. It is
// single pass.
type EntryIterator struct {
	env  *Env
	it   Ref
	done bool
	err  error
}

// Next advances to the next entry. ok is false at the end or on failure;
// check Err afterwards.
func (i *EntryIterator) Next() (key, val Ref, ok bool) {
	if i.done {
		return 0, 0, false
	}
	key, val, ok, err := i.step()
	if err != nil || !ok {
		i.done = true
		i.err = err
	}
	return key, val, ok
}

func (i *EntryIterator) step() (key, val Ref, ok bool, err error) {
	e := i.env
	res, err := e.CallMethodByName(i.it, "next")
	if err != nil {
		return 0, 0, false, err
	}
	doneRef, err := e.GetPropertyRef(res, "done")
	if err != nil {
		return 0, 0, false, err
	}
	if undef, err := e.IsUndefined(doneRef); err != nil {
		return 0, 0, false, err
	} else if !undef {
		done, err := Unbox[bool](e, doneRef)
		if err != nil {
			return 0, 0, false, err
		}
		if done {
			return 0, 0, false, nil
		}
	}
	pair, err := e.GetPropertyRef(res, "value")
	if err != nil {
		return 0, 0, false, err
	}
	if end, err := e.IsUndefined(pair); err != nil || end {
		return 0, 0, false, err
	}
	if key, err = e.TupleItem(pair, 0); err != nil {
		return 0, 0, false, err
	}
	if val, err = e.TupleItem(pair, 1); err != nil {
		return 0, 0, false, err
	}
	return key, val, true, nil
}

// Err returns the error that stopped the iteration, if any.
func (i *EntryIterator) Err() error { return i.err }

// All yields the remaining entries.
func (i *EntryIterator) All() iter.Seq2[Ref, Ref] {
	return func(yield func(Ref, Ref) bool) {
		for {
			k, v, ok := i.Next()
			if !ok || !yield(k, v) {
				return
			}
		}
	}
}
