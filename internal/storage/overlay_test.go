package storage

import (
	"errors"
	"testing"
)

func TestOverlay_CommitAndDiscard(t *testing.T) {
	base := NewMemory()
	base.Put([]byte("a"), []byte("base"))
	base.Put([]byte("b"), []byte("gone"))

	o := NewOverlay(base)
	o.Put([]byte("a"), []byte("over"))
	o.Delete([]byte("b"))
	o.Put([]byte("c"), []byte("new"))

	if v, _ := o.Get([]byte("a")); string(v) != "over" {
		t.Errorf("overlay Get(a) = %q, want over", v)
	}
	if _, err := o.Get([]byte("b")); !errors.Is(err, ErrNotFound) {
		t.Errorf("overlay Get(b) error = %v, want ErrNotFound", err)
	}
	if v, _ := base.Get([]byte("a")); string(v) != "base" {
		t.Errorf("base changed before Commit(): a = %q", v)
	}
	if o.Len() != 3 {
		t.Errorf("Len() = %d, want 3", o.Len())
	}

	var keys []string
	o.ForEach(nil, func(k, _ []byte) error {
		keys = append(keys, string(k))
		return nil
	})
	if len(keys) != 2 || keys[0] != "a" || keys[1] != "c" {
		t.Errorf("ForEach keys = %v, want [a c]", keys)
	}

	if err := o.Commit(); err != nil {
		t.Fatalf("Commit() error: %v", err)
	}
	if v, _ := base.Get([]byte("a")); string(v) != "over" {
		t.Errorf("base a after Commit() = %q, want over", v)
	}
	if ok, _ := base.Has([]byte("b")); ok {
		t.Error("base b survived Commit()")
	}
	if o.Len() != 0 {
		t.Errorf("Len() after Commit() = %d, want 0", o.Len())
	}

	o.Put([]byte("d"), []byte("tmp"))
	o.Discard()
	if ok, _ := base.Has([]byte("d")); ok {
		t.Error("discarded write reached base")
	}
	if ok, _ := o.Has([]byte("d")); ok {
		t.Error("discarded write still visible")
	}
}

func TestOverlay_NonBatchingBase(t *testing.T) {
	base := NewPrefixDB(nonBatching{NewMemory()}, []byte("acct/"))
	o := NewOverlay(base)
	o.Put([]byte("k"), []byte("v"))
	if err := o.Commit(); err != nil {
		t.Fatalf("Commit() error: %v", err)
	}
	if v, err := base.Get([]byte("k")); err != nil || string(v) != "v" {
		t.Errorf("base Get(k) = %q, %v", v, err)
	}
}

// nonBatching hides the Batcher implementation of the wrapped store.
type nonBatching struct{ DB }
