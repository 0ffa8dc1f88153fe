package field

import (
	"bytes"
	"errors"
	"math"
	"slices"
	"testing"

	"github.com/Carmen-Shannon/oxy-metaballs/engine/metaball"
	"github.com/cogentcore/webgpu/wgpu"
)

const (
	fieldLabel   = "Metaball Field"
	normalsLabel = "Metaball Normals"
)

// newTestRenderer builds a renderer over a 100x100 viewport with 32 unit cells (4x4 grid).
func newTestRenderer(t *testing.T, options ...RendererBuilderOption) (Renderer, *fakeDevice) {
	t.Helper()
	dev := newFakeDevice()
	r, err := NewRenderer(dev, metaball.CenteredViewport(100, 100), 32, options...)
	if err != nil {
		t.Fatal(err)
	}
	return r, dev
}

func TestNewRenderer_Resources(t *testing.T) {
	_, dev := newTestRenderer(t, WithMaxBalls(64), WithMaxCellsPerBall(8))

	if !slices.Equal(dev.pipelines, []string{FieldPipelineKey, NormalsPipelineKey}) {
		t.Errorf("pipelines = %v", dev.pipelines)
	}
	if dev.bindGroupInits != 2 {
		t.Errorf("bind group inits = %d, want 2", dev.bindGroupInits)
	}

	wantSizes := map[string]uint64{
		bindingKey(fieldLabel, 0): metaball.GPUFieldParamsSize,
		bindingKey(fieldLabel, 1): 64 * metaball.GPUBallSize,
		bindingKey(fieldLabel, 2): 64 * 8 * metaball.GPUEntrySize,
		bindingKey(fieldLabel, 3): 16 * metaball.GPUGridCellSize,
	}
	if len(dev.bufferSizes) != len(wantSizes) {
		t.Errorf("created %d buffers, want %d: %v", len(dev.bufferSizes), len(wantSizes), dev.bufferSizes)
	}
	for k, want := range wantSizes {
		if got := dev.bufferSizes[k]; got != want {
			t.Errorf("buffer %s size = %d, want %d", k, got, want)
		}
	}

	wantTextures := map[string]wgpu.TextureFormat{
		bindingKey(fieldLabel, 4):   FieldFormat,
		bindingKey(fieldLabel, 5):   AlbedoFormat,
		bindingKey(normalsLabel, 2): NormalFormat,
	}
	if len(dev.textures) != len(wantTextures) {
		t.Errorf("created %d textures, want %d", len(dev.textures), len(wantTextures))
	}
	for k, want := range wantTextures {
		got, ok := dev.textures[k]
		if !ok {
			t.Errorf("texture %s not created", k)
			continue
		}
		if got.Format != want {
			t.Errorf("texture %s format = %v, want %v", k, got.Format, want)
		}
		if got.Width != 100 || got.Height != 100 {
			t.Errorf("texture %s size = %dx%d, want 100x100", k, got.Width, got.Height)
		}
	}
}

func TestNewRenderer_Invalid(t *testing.T) {
	tests := []struct {
		name     string
		viewport metaball.Viewport
		cellSize float32
		options  []RendererBuilderOption
	}{
		{name: "zero cell size", viewport: metaball.CenteredViewport(100, 100), cellSize: 0},
		{name: "empty viewport", viewport: metaball.CenteredViewport(0, 100), cellSize: 32},
		{name: "entry capacity overflow", viewport: metaball.CenteredViewport(100, 100), cellSize: 32,
			options: []RendererBuilderOption{WithMaxBalls(1 << 20), WithMaxCellsPerBall(1 << 20)}},
		{name: "zero normal z scale", viewport: metaball.CenteredViewport(100, 100), cellSize: 32,
			options: []RendererBuilderOption{WithNormalZScale(0)}},
		{name: "negative normal z scale", viewport: metaball.CenteredViewport(100, 100), cellSize: 32,
			options: []RendererBuilderOption{WithNormalZScale(-1)}},
		{name: "nan normal z scale", viewport: metaball.CenteredViewport(100, 100), cellSize: 32,
			options: []RendererBuilderOption{WithNormalZScale(float32(math.NaN()))}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewRenderer(newFakeDevice(), tt.viewport, tt.cellSize, tt.options...); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestRenderer_DispatchOrder(t *testing.T) {
	r, dev := newTestRenderer(t)
	slot, err := r.AllocateBall()
	if err != nil {
		t.Fatal(err)
	}
	r.SetBall(slot, metaball.Ball{Radius: 10})

	if err := r.Prepare(); err != nil {
		t.Fatal(err)
	}

	want := []string{"write", "begin", "dispatch:" + FieldPipelineKey, "dispatch:" + NormalsPipelineKey, "end"}
	if !slices.Equal(dev.events, want) {
		t.Errorf("events = %v, want %v", dev.events, want)
	}
	for _, d := range dev.dispatches {
		if d.workgroup != [3]uint32{13, 13, 1} {
			t.Errorf("%s workgroups = %v, want [13 13 1]", d.key, d.workgroup)
		}
	}
	if dev.dispatches[0].provider != fieldLabel || dev.dispatches[1].provider != normalsLabel {
		t.Errorf("dispatch providers = %s, %s", dev.dispatches[0].provider, dev.dispatches[1].provider)
	}
}

func TestRenderer_UploadRanges(t *testing.T) {
	tests := []struct {
		name  string
		setup func(t *testing.T, r Renderer)
		// byte length per binding, absent bindings must not be written
		want map[int]int
	}{
		{
			name:  "empty scene",
			setup: func(*testing.T, Renderer) {},
			want: map[int]int{
				0: metaball.GPUFieldParamsSize,
				3: 16 * metaball.GPUGridCellSize,
			},
		},
		{
			name: "single ball at origin",
			setup: func(t *testing.T, r Renderer) {
				slot, err := r.AllocateBall()
				if err != nil {
					t.Fatal(err)
				}
				r.SetBall(slot, metaball.Ball{Radius: 10})
			},
			want: map[int]int{
				0: metaball.GPUFieldParamsSize,
				1: metaball.GPUBallSize,
				2: 4 * metaball.GPUEntrySize,
				3: 16 * metaball.GPUGridCellSize,
			},
		},
		{
			name: "freed slot below the high water mark",
			setup: func(t *testing.T, r Renderer) {
				for range 3 {
					slot, err := r.AllocateBall()
					if err != nil {
						t.Fatal(err)
					}
					r.SetBall(slot, metaball.Ball{Radius: 10})
				}
				r.ReleaseBall(1)
			},
			want: map[int]int{
				0: metaball.GPUFieldParamsSize,
				1: 3 * metaball.GPUBallSize,
				2: 2 * 4 * metaball.GPUEntrySize,
				3: 16 * metaball.GPUGridCellSize,
			},
		},
		{
			name: "degenerate only",
			setup: func(t *testing.T, r Renderer) {
				slot, err := r.AllocateBall()
				if err != nil {
					t.Fatal(err)
				}
				r.SetBall(slot, metaball.Ball{Radius: 0})
			},
			want: map[int]int{
				0: metaball.GPUFieldParamsSize,
				1: metaball.GPUBallSize,
				3: 16 * metaball.GPUGridCellSize,
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, dev := newTestRenderer(t)
			tt.setup(t, r)
			if err := r.Prepare(); err != nil {
				t.Fatal(err)
			}

			got := dev.lastWrites()
			if len(got) != len(tt.want) {
				t.Errorf("wrote bindings %v, want %v", keys(got), tt.want)
			}
			for binding, n := range tt.want {
				w, ok := got[binding]
				if !ok {
					t.Errorf("binding %d not written", binding)
					continue
				}
				if w.offset != 0 || len(w.data) != n {
					t.Errorf("binding %d wrote [%d, %d), want [0, %d)", binding, w.offset, w.offset+uint64(len(w.data)), n)
				}
				if w.provider != fieldLabel {
					t.Errorf("binding %d written on %s", binding, w.provider)
				}
			}

			params := r.Params()
			if !bytes.Equal(got[0].data, params.Marshal()) {
				t.Error("uploaded params differ from Params()")
			}
		})
	}
}

func TestRenderer_NoReallocation(t *testing.T) {
	const maxBalls = 64
	r, dev := newTestRenderer(t, WithMaxBalls(maxBalls), WithDebugValidate(true))
	handles := r.Buffers().Handles()
	textures := r.Textures()
	inits := dev.bindGroupInits

	var slots []metaball.SlotIndex
	for round := range 3 {
		for len(slots) < maxBalls {
			slot, err := r.AllocateBall()
			if err != nil {
				t.Fatalf("round %d: allocate %d: %v", round, len(slots), err)
			}
			r.SetBall(slot, metaball.Ball{
				Position:   [2]float32{float32(len(slots)%8)*12 - 45, float32(len(slots)/8)*12 - 45},
				Radius:     8,
				ColorIndex: uint32(len(slots)),
			})
			slots = append(slots, slot)
			if err := r.Prepare(); err != nil {
				t.Fatal(err)
			}
		}
		if _, err := r.AllocateBall(); !errors.Is(err, metaball.ErrCapacityExhausted) {
			t.Fatalf("round %d: allocate past capacity: %v", round, err)
		}
		for len(slots) > 0 {
			r.ReleaseBall(slots[len(slots)-1])
			slots = slots[:len(slots)-1]
			if err := r.Prepare(); err != nil {
				t.Fatal(err)
			}
		}
	}

	if r.Buffers().Handles() != handles {
		t.Error("buffer handles changed")
	}
	if r.Textures() != textures {
		t.Error("texture views changed")
	}
	if dev.bindGroupInits != inits {
		t.Errorf("bind group inits grew from %d to %d", inits, dev.bindGroupInits)
	}

	caps := r.Buffers().Capacities()
	limits := map[int]uint64{
		0: metaball.GPUFieldParamsSize,
		1: caps.BallBytes(),
		2: caps.EntryBytes(),
		3: caps.CellBytes(),
	}
	for i, batch := range dev.writes {
		for _, w := range batch {
			if w.offset+uint64(len(w.data)) > limits[w.binding] {
				t.Fatalf("frame %d: binding %d write ends at %d, buffer holds %d", i, w.binding, w.offset+uint64(len(w.data)), limits[w.binding])
			}
		}
	}
}

func TestRenderer_Stats(t *testing.T) {
	t.Run("counts", func(t *testing.T) {
		r, _ := newTestRenderer(t)
		for i := range 3 {
			slot, err := r.AllocateBall()
			if err != nil {
				t.Fatal(err)
			}
			r.SetBall(slot, metaball.Ball{Position: [2]float32{float32(i) * 5, 0}, Radius: 10})
		}
		for range 2 {
			if err := r.Prepare(); err != nil {
				t.Fatal(err)
			}
		}
		s := r.Stats()
		if s.Frame != 2 || s.ActiveBalls != 3 || s.EmittedBalls != 3 || s.Truncated {
			t.Errorf("stats = %+v", s)
		}
		if s.TotalEntries != r.Frame().TotalEntries {
			t.Errorf("total entries = %d, frame has %d", s.TotalEntries, r.Frame().TotalEntries)
		}
	})

	t.Run("truncated", func(t *testing.T) {
		r, dev := newTestRenderer(t, WithMaxBalls(2), WithMaxCellsPerBall(2))
		for range 2 {
			slot, err := r.AllocateBall()
			if err != nil {
				t.Fatal(err)
			}
			r.SetBall(slot, metaball.Ball{Radius: 60})
		}
		if err := r.Prepare(); err != nil {
			t.Fatal(err)
		}
		s := r.Stats()
		if !s.Truncated || s.TotalEntries != 4 || s.DroppedEntries == 0 {
			t.Errorf("stats = %+v, want 4 entries and truncation", s)
		}
		if n := len(dev.lastWrites()[2].data); n != 4*metaball.GPUEntrySize {
			t.Errorf("entry write = %d bytes, want %d", n, 4*metaball.GPUEntrySize)
		}
	})
}

func TestRenderer_PrepareErrors(t *testing.T) {
	t.Run("begin compute frame", func(t *testing.T) {
		r, dev := newTestRenderer(t)
		dev.beginErr = errors.New("device lost")
		if err := r.Prepare(); err == nil {
			t.Fatal("expected an error")
		}
		if len(dev.dispatches) != 0 {
			t.Errorf("dispatched %d passes after a failed begin", len(dev.dispatches))
		}
	})

	t.Run("double release", func(t *testing.T) {
		r, _ := newTestRenderer(t, WithDebugValidate(true))
		for range 2 {
			if _, err := r.AllocateBall(); err != nil {
				t.Fatal(err)
			}
		}
		r.ReleaseBall(0)
		r.ReleaseBall(0)
		if err := r.Prepare(); err == nil {
			t.Error("expected a validation error")
		}
	})
}

func keys(m map[int]recordedWrite) []int {
	out := make([]int, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}
