package computebudget

import (
	"bytes"
	"errors"
	"testing"
)

func TestSetComputeUnitLimit(t *testing.T) {
	ix := SetComputeUnitLimit(300_000)
	want := []byte{2, 0xe0, 0x93, 0x04, 0x00}
	if !bytes.Equal(ix.Data, want) {
		t.Errorf("Data = %x, want %x", ix.Data, want)
	}
	if len(ix.Accounts) != 0 || ix.ProgramID != ProgramID {
		t.Error("compute budget directives take no accounts")
	}
}

func TestSetComputeUnitPrice(t *testing.T) {
	ix := SetComputeUnitPrice(1000)
	want := []byte{3, 0xe8, 0x03, 0, 0, 0, 0, 0, 0}
	if !bytes.Equal(ix.Data, want) {
		t.Errorf("Data = %x, want %x", ix.Data, want)
	}
}

func TestLimits(t *testing.T) {
	var l Limits
	if got := l.EffectiveLimit(3); got != 600_000 {
		t.Errorf("EffectiveLimit(3) default = %d, want 600000", got)
	}
	if got := l.EffectiveLimit(10); got != MaxComputeUnitLimit {
		t.Errorf("EffectiveLimit(10) default = %d, want cap", got)
	}
	if err := l.Apply(SetComputeUnitLimit(5000).Data); err != nil {
		t.Fatalf("Apply(limit): %v", err)
	}
	if err := l.Apply(SetComputeUnitPrice(7).Data); err != nil {
		t.Fatalf("Apply(price): %v", err)
	}
	if got := l.EffectiveLimit(3); got != 5000 {
		t.Errorf("EffectiveLimit() = %d, want 5000", got)
	}
	if l.UnitPrice != 7 {
		t.Errorf("UnitPrice = %d, want 7", l.UnitPrice)
	}
	if err := l.Apply([]byte{9}); !errors.Is(err, ErrInvalidInstruction) {
		t.Errorf("Apply(unknown) = %v, want ErrInvalidInstruction", err)
	}
	if err := l.Apply([]byte{2, 1}); !errors.Is(err, ErrInvalidInstruction) {
		t.Errorf("Apply(short) = %v, want ErrInvalidInstruction", err)
	}
}
