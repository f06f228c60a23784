package storage

import (
	"sort"
	"strings"
)

// Overlay buffers writes on top of a base DB. Reads see the buffered
// writes first. Commit flushes them to the base, atomically when the base
// is a Batcher; Discard drops them. An Overlay is not safe for concurrent
// use.
type Overlay struct {
	base    DB
	writes  map[string][]byte
	deleted map[string]bool
}

// NewOverlay returns an empty write set over base.
func NewOverlay(base DB) *Overlay {
	return &Overlay{
		base:    base,
		writes:  make(map[string][]byte),
		deleted: make(map[string]bool),
	}
}

// Get retrieves a value by key.
func (o *Overlay) Get(key []byte) ([]byte, error) {
	k := string(key)
	if o.deleted[k] {
		return nil, ErrNotFound
	}
	if v, ok := o.writes[k]; ok {
		return clone(v), nil
	}
	return o.base.Get(key)
}

// Put buffers a key-value pair.
func (o *Overlay) Put(key, value []byte) error {
	k := string(key)
	delete(o.deleted, k)
	v := clone(value)
	if v == nil {
		v = []byte{}
	}
	o.writes[k] = v
	return nil
}

// Delete buffers a removal.
func (o *Overlay) Delete(key []byte) error {
	k := string(key)
	delete(o.writes, k)
	o.deleted[k] = true
	return nil
}

// Has checks if a key exists in the overlay or the base.
func (o *Overlay) Has(key []byte) (bool, error) {
	k := string(key)
	if o.deleted[k] {
		return false, nil
	}
	if _, ok := o.writes[k]; ok {
		return true, nil
	}
	return o.base.Has(key)
}

// ForEach iterates the merged view in key order.
func (o *Overlay) ForEach(prefix []byte, fn func(key, value []byte) error) error {
	merged := make(map[string][]byte)
	err := o.base.ForEach(prefix, func(key, value []byte) error {
		merged[string(key)] = clone(value)
		return nil
	})
	if err != nil {
		return err
	}
	for k := range o.deleted {
		delete(merged, k)
	}
	p := string(prefix)
	for k, v := range o.writes {
		if strings.HasPrefix(k, p) {
			merged[k] = v
		}
	}

	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := fn([]byte(k), clone(merged[k])); err != nil {
			return err
		}
	}
	return nil
}

// Len returns the number of buffered writes and deletions.
func (o *Overlay) Len() int {
	return len(o.writes) + len(o.deleted)
}

// Commit flushes the buffered changes to the base and resets the overlay.
func (o *Overlay) Commit() error {
	var batch Batch
	if b, ok := o.base.(Batcher); ok {
		batch = b.NewBatch()
	} else {
		batch = &directBatch{db: o.base}
	}

	keys := make([]string, 0, len(o.writes))
	for k := range o.writes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := batch.Put([]byte(k), o.writes[k]); err != nil {
			return err
		}
	}
	for k := range o.deleted {
		if err := batch.Delete([]byte(k)); err != nil {
			return err
		}
	}
	if err := batch.Commit(); err != nil {
		return err
	}
	o.Discard()
	return nil
}

// Discard drops all buffered changes.
func (o *Overlay) Discard() {
	o.writes = make(map[string][]byte)
	o.deleted = make(map[string]bool)
}

// Close discards buffered changes. The base is left open.
func (o *Overlay) Close() error {
	o.Discard()
	return nil
}

// directBatch applies writes one at a time to stores without batching.
type directBatch struct {
	db  DB
	ops []batchOp
}

func (b *directBatch) Put(key, value []byte) error {
	b.ops = append(b.ops, batchOp{key: clone(key), value: clone(value)})
	return nil
}

func (b *directBatch) Delete(key []byte) error {
	b.ops = append(b.ops, batchOp{key: clone(key)})
	return nil
}

func (b *directBatch) Commit() error {
	for _, op := range b.ops {
		var err error
		if op.value == nil {
			err = b.db.Delete(op.key)
		} else {
			err = b.db.Put(op.key, op.value)
		}
		if err != nil {
			return err
		}
	}
	return nil
}
