package crypto

import (
	"encoding/hex"
	"testing"
)

func TestHash(t *testing.T) {
	tests := []struct {
		name  string
		input []byte
		want  string
	}{
		{
			name:  "empty input",
			input: []byte{},
			want:  "af1349b9f5f9a1a6a0404dea36dcc9499bcb25c9adc112b7cc9a93cae41f3262",
		},
		{
			name:  "hello",
			input: []byte("hello"),
			want:  "ea8f163db38682925e4491c5e58d4bb3506ef8c14eb78a86e908c5624a67200f",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Hash(tt.input)
			if hex.EncodeToString(got[:]) != tt.want {
				t.Errorf("Hash(%q) = %x, want %s", tt.input, got, tt.want)
			}
		})
	}
}

func TestHashConcat(t *testing.T) {
	prev := Hash([]byte("he"))
	got := HashConcat(prev, []byte("llo"))
	want := Hash(append(prev.Bytes(), []byte("llo")...))
	if got != want {
		t.Errorf("HashConcat() = %x, want %x", got, want)
	}
	if HashConcat(prev, []byte{1}) == HashConcat(prev, []byte{2}) {
		t.Error("different suffixes should hash differently")
	}
}
