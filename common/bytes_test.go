package common

import (
	"encoding/binary"
	"math"
	"testing"
)

func TestSliceToBytes(t *testing.T) {
	if SliceToBytes([]uint32(nil)) != nil {
		t.Error("empty slice should give nil")
	}

	type rec struct {
		Center [2]float32
		Radius float32
		Color  uint32
	}
	recs := []rec{{Center: [2]float32{1, 2}, Radius: 3, Color: 7}, {Radius: 9}}
	b := SliceToBytes(recs)
	if len(b) != 32 {
		t.Fatalf("len = %d, want 32", len(b))
	}
	if got := math.Float32frombits(binary.LittleEndian.Uint32(b[8:12])); got != 3 {
		t.Errorf("radius = %v, want 3", got)
	}
	if got := binary.LittleEndian.Uint32(b[12:16]); got != 7 {
		t.Errorf("color = %d, want 7", got)
	}
	if got := math.Float32frombits(binary.LittleEndian.Uint32(b[24:28])); got != 9 {
		t.Errorf("second radius = %v, want 9", got)
	}
}

func TestStructToBytes(t *testing.T) {
	v := struct {
		A uint32
		B float32
	}{A: 5, B: 0.5}
	b := StructToBytes(&v)
	if len(b) != 8 {
		t.Fatalf("len = %d, want 8", len(b))
	}
	v.A = 6
	if got := binary.LittleEndian.Uint32(b[0:4]); got != 6 {
		t.Errorf("view does not alias the struct: %d", got)
	}
}
