package tx

import (
	"math"
	"testing"
)

func TestPriorityFee(t *testing.T) {
	tests := []struct {
		limit uint32
		price uint64
		want  uint64
	}{
		{0, 1000, 0},
		{200_000, 0, 0},
		{200_000, 1, 1},
		{1_000_000, 5, 5},
		{1_400_000, 1_000_000, 1_400_000},
		{300_000, 3, 1},
		{400_000, 3, 2},
		{math.MaxUint32, math.MaxUint64, math.MaxUint64},
	}
	for _, tt := range tests {
		if got := PriorityFee(tt.limit, tt.price); got != tt.want {
			t.Errorf("PriorityFee(%d, %d) = %d, want %d", tt.limit, tt.price, got, tt.want)
		}
	}
}

func TestBaseFee(t *testing.T) {
	m := &Message{Header: MessageHeader{NumRequiredSignatures: 3}}
	if got := BaseFee(m); got != 15000 {
		t.Errorf("BaseFee() = %d, want 15000", got)
	}
}
