package metaball

import (
	"errors"
	"testing"
)

func TestNewCoordinateMapper_Invalid(t *testing.T) {
	if _, err := NewCoordinateMapper(CenteredViewport(0, 10), 10, 10); !errors.Is(err, ErrInvalidGrid) {
		t.Errorf("zero width: got %v", err)
	}
	if _, err := NewCoordinateMapper(CenteredViewport(10, 10), 0, 10); !errors.Is(err, ErrInvalidGrid) {
		t.Errorf("zero texture width: got %v", err)
	}
}

func TestCoordinateMapper(t *testing.T) {
	m, err := NewCoordinateMapper(CenteredViewport(200, 100), 400, 100)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name  string
		world [2]float32
		px    [2]float32
		uv    [2]float32
	}{
		{"min corner", [2]float32{-100, -50}, [2]float32{0, 0}, [2]float32{0, 0}},
		{"center", [2]float32{0, 0}, [2]float32{200, 50}, [2]float32{0.5, 0.5}},
		{"max corner", [2]float32{100, 50}, [2]float32{400, 100}, [2]float32{1, 1}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			px := m.WorldToTexture(tc.world)
			if px != tc.px {
				t.Errorf("WorldToTexture(%v) = %v, want %v", tc.world, px, tc.px)
			}
			if uv := m.TextureToUV(px); uv != tc.uv {
				t.Errorf("TextureToUV(%v) = %v, want %v", px, uv, tc.uv)
			}
			if w := m.TextureToWorld(px); w != tc.world {
				t.Errorf("TextureToWorld(%v) = %v, want %v", px, w, tc.world)
			}
		})
	}

	if r := m.WorldRadiusToTexture(10); r != 20 {
		t.Errorf("WorldRadiusToTexture(10) = %v, want 20", r)
	}
	if p := m.ClampWorld([2]float32{500, -500}); p != [2]float32{100, -50} {
		t.Errorf("ClampWorld = %v, want [100 -50]", p)
	}
}
