package metaball

import (
	"errors"
	"math"
	"math/rand/v2"
	"reflect"
	"slices"
	"testing"
)

func newTestGrid(t *testing.T, w, h, cell float32, opts ...GridBuilderOption) GridBuilder {
	t.Helper()
	g, err := NewGridBuilder(CenteredViewport(w, h), cell, opts...)
	if err != nil {
		t.Fatalf("NewGridBuilder: %v", err)
	}
	t.Cleanup(g.Close)
	return g
}

func addBall(t *testing.T, p Pool, b Ball) SlotIndex {
	t.Helper()
	s, err := p.Allocate()
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	p.Set(s, b)
	return s
}

func randomPool(seed uint64, n int, w, h float32) Pool {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	p := NewPool(WithCapacity(uint32(n)))
	for i := 0; i < n; i++ {
		s, _ := p.Allocate()
		p.Set(s, Ball{
			Position:   [2]float32{(rng.Float32() - 0.5) * w * 1.2, (rng.Float32() - 0.5) * h * 1.2},
			Radius:     2 + rng.Float32()*30,
			ColorIndex: uint32(rng.IntN(6)),
		})
	}
	// Punch holes so the snapshot has inert records.
	for i := 0; i < n; i += 7 {
		p.Release(SlotIndex(i))
	}
	return p
}

func TestNewGridBuilder_Invalid(t *testing.T) {
	tests := []struct {
		name string
		w, h float32
		cell float32
	}{
		{"zero cell", 100, 100, 0},
		{"negative cell", 100, 100, -4},
		{"zero width", 0, 100, 8},
		{"nan height", 100, float32(math.NaN()), 8},
		{"inf cell", 100, 100, float32(math.Inf(1))},
		{"cell count overflow", 70000, 70000, 1},
		{"tiny cell", 1e6, 1e6, 1e-3},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewGridBuilder(CenteredViewport(tc.w, tc.h), tc.cell)
			if !errors.Is(err, ErrInvalidGrid) {
				t.Errorf("got %v, want ErrInvalidGrid", err)
			}
		})
	}
}

func TestGridDims(t *testing.T) {
	tests := []struct {
		w, h, cell   float32
		wantX, wantY uint32
	}{
		{100, 100, 32, 4, 4},
		{64, 32, 32, 2, 1},
		{1, 1, 32, 1, 1},
		{1920, 1080, 64, 30, 17},
	}
	for _, tc := range tests {
		x, y := gridDims(CenteredViewport(tc.w, tc.h), tc.cell)
		if x != tc.wantX || y != tc.wantY {
			t.Errorf("gridDims(%v, %v, %v) = %d, %d, want %d, %d", tc.w, tc.h, tc.cell, x, y, tc.wantX, tc.wantY)
		}
	}
}

func TestBuild_EmptyScene(t *testing.T) {
	g := newTestGrid(t, 100, 100, 32)
	f := g.Build(NewPool(WithCapacity(16)))

	if f.TotalEntries != 0 || len(f.Entries) != 0 {
		t.Errorf("entries = %d, want 0", f.TotalEntries)
	}
	if len(f.Cells) != 16 {
		t.Fatalf("cells = %d, want 16", len(f.Cells))
	}
	for i, c := range f.Cells {
		if c.Count != 0 {
			t.Errorf("cell %d count = %d, want 0", i, c.Count)
		}
	}
	if err := f.Validate(); err != nil {
		t.Error(err)
	}

	img := EvaluateGrid(f, f.Params(64, 48, 0.5, 0.25))
	for i := range img.Field {
		if img.Field[i] != 0 || img.Count[i] != 0 || img.Albedo[i] != (Color{}) {
			t.Fatalf("texel %d = field %v count %d albedo %v, want all zero",
				i, img.Field[i], img.Count[i], img.Albedo[i])
		}
	}
}

func TestBuild_SingleBallAtOrigin(t *testing.T) {
	g := newTestGrid(t, 100, 100, 32)
	p := NewPool(WithCapacity(16))
	s := addBall(t, p, Ball{Radius: 10})

	f := g.Build(p)
	if f.TotalEntries != 4 {
		t.Fatalf("entries = %d, want 4", f.TotalEntries)
	}
	var occupied []uint32
	for i, c := range f.Cells {
		if c.Count > 0 {
			occupied = append(occupied, uint32(i))
			if c.Count != 1 {
				t.Errorf("cell %d count = %d, want 1", i, c.Count)
			}
		}
	}
	// Cells (1,1), (2,1), (1,2), (2,2) of the 4x4 grid.
	if want := []uint32{5, 6, 9, 10}; !slices.Equal(occupied, want) {
		t.Errorf("occupied cells = %v, want %v", occupied, want)
	}
	for _, e := range f.Entries {
		if e != uint32(s) {
			t.Errorf("entry slot %d, want %d", e, s)
		}
	}
}

func TestBuild_DenseCluster(t *testing.T) {
	g := newTestGrid(t, 100, 100, 32)
	p := NewPool(WithCapacity(500))
	for range 500 {
		addBall(t, p, Ball{Position: [2]float32{10, 10}, Radius: 3})
	}

	f := g.Build(p)
	if f.TotalEntries != 500 {
		t.Fatalf("entries = %d, want 500", f.TotalEntries)
	}
	cx, cy := f.CellOf([2]float32{10, 10})
	cell := f.Cells[cy*f.CellsX+cx]
	if cell.Count != 500 {
		t.Errorf("cell count = %d, want 500", cell.Count)
	}
	entries := f.CellEntries(cy*f.CellsX + cx)
	if !slices.IsSorted(entries) {
		t.Error("entries within a cell are not in ascending slot order")
	}
	if f.Truncated {
		t.Error("frame unexpectedly truncated")
	}
}

func TestBuild_Truncation(t *testing.T) {
	g := newTestGrid(t, 100, 100, 32, WithEntryCapacity(300))
	p := NewPool(WithCapacity(500))
	for range 500 {
		addBall(t, p, Ball{Position: [2]float32{10, 10}, Radius: 3})
	}

	f := g.Build(p)
	if !f.Truncated {
		t.Fatal("expected truncation")
	}
	if f.TotalEntries != 300 || f.DroppedEntries != 200 {
		t.Errorf("entries = %d dropped = %d, want 300 and 200", f.TotalEntries, f.DroppedEntries)
	}
	// Emission is in ascending slot order, so the survivors are the lowest slots.
	for i, e := range f.Entries {
		if e != uint32(i) {
			t.Fatalf("entry %d = slot %d, want %d", i, e, i)
		}
	}
	if err := f.Validate(); err != nil {
		t.Error(err)
	}
}

func TestBuild_TruncationWarnsOncePerBurst(t *testing.T) {
	const msg = "grid entry capacity exceeded, truncating"
	warns := captureWarnings(t)
	g := newTestGrid(t, 100, 100, 32, WithEntryCapacity(8))
	p := NewPool(WithCapacity(16))
	var slots []SlotIndex
	for range 16 {
		slots = append(slots, addBall(t, p, Ball{Position: [2]float32{10, 10}, Radius: 3}))
	}

	steps := []struct {
		name          string
		run           func(t *testing.T)
		wantTruncated bool
		wantWarns     int
	}{
		{"first truncated frame", func(*testing.T) {}, true, 1},
		{"still truncated", func(*testing.T) {}, true, 1},
		{"clean frame", func(*testing.T) {
			for _, s := range slots[4:] {
				p.Release(s)
			}
		}, false, 1},
		{"truncated again", func(t *testing.T) {
			for range 12 {
				addBall(t, p, Ball{Position: [2]float32{-10, -10}, Radius: 3})
			}
		}, true, 2},
		{"repeat", func(*testing.T) {}, true, 2},
	}
	for _, st := range steps {
		t.Run(st.name, func(t *testing.T) {
			st.run(t)
			f := g.Build(p)
			if f.Truncated != st.wantTruncated {
				t.Errorf("truncated = %v, want %v", f.Truncated, st.wantTruncated)
			}
			if got := warns.count(msg); got != st.wantWarns {
				t.Errorf("warnings = %d, want %d", got, st.wantWarns)
			}
		})
	}
}

func TestBuild_DegenerateBallsSkipped(t *testing.T) {
	g := newTestGrid(t, 100, 100, 10)
	p := NewPool(WithCapacity(8))
	addBall(t, p, Ball{Radius: 0})
	addBall(t, p, Ball{Radius: -5})
	addBall(t, p, Ball{Position: [2]float32{float32(math.NaN()), 0}, Radius: 5})
	addBall(t, p, Ball{Radius: float32(math.Inf(1))})
	good := addBall(t, p, Ball{Radius: 4})

	f := g.Build(p)
	for _, e := range f.Entries {
		if e != uint32(good) {
			t.Errorf("degenerate slot %d emitted", e)
		}
	}
	for i := range good {
		if f.Balls[i] != (GPUBall{}) {
			t.Errorf("degenerate slot %d has record %+v, want zero", i, f.Balls[i])
		}
	}
	if f.EmittedBalls != 1 {
		t.Errorf("emitted balls = %d, want 1", f.EmittedBalls)
	}
}

func TestBuild_BallOutsideViewport(t *testing.T) {
	g := newTestGrid(t, 100, 100, 10)
	p := NewPool(WithCapacity(4))
	addBall(t, p, Ball{Position: [2]float32{500, 0}, Radius: 20})
	// Straddles the right edge; only the clamped part registers.
	addBall(t, p, Ball{Position: [2]float32{55, 0}, Radius: 10})

	f := g.Build(p)
	for _, e := range f.Entries {
		if e == 0 {
			t.Fatal("ball outside the viewport was emitted")
		}
	}
	if f.TotalEntries == 0 {
		t.Fatal("edge ball was not emitted")
	}
	for i, c := range f.Cells {
		if c.Count > 0 && uint32(i)%f.CellsX != f.CellsX-1 {
			t.Errorf("edge ball registered in non-edge column %d", uint32(i)%f.CellsX)
		}
	}
}

func TestBuild_FreedSlotsAreInert(t *testing.T) {
	g := newTestGrid(t, 100, 100, 16)
	p := NewPool(WithCapacity(4))
	a := addBall(t, p, Ball{Radius: 5})
	addBall(t, p, Ball{Position: [2]float32{20, 20}, Radius: 5})
	p.Release(a)

	f := g.Build(p)
	if len(f.Balls) != 2 {
		t.Fatalf("snapshot length = %d, want high water mark 2", len(f.Balls))
	}
	if f.Balls[a] != (GPUBall{}) {
		t.Errorf("freed slot record = %+v, want zero", f.Balls[a])
	}
	if f.ActiveBalls != 1 {
		t.Errorf("active balls = %d, want 1", f.ActiveBalls)
	}
}

func TestBuild_RandomInvariants(t *testing.T) {
	for seed := uint64(1); seed <= 10; seed++ {
		g := newTestGrid(t, 320, 200, 24)
		p := randomPool(seed, 300, 320, 200)
		f := g.Build(p)
		if err := f.Validate(); err != nil {
			t.Fatalf("seed %d: %v", seed, err)
		}
		for id := range f.CellCount() {
			entries := f.CellEntries(id)
			if !slices.IsSorted(entries) {
				t.Fatalf("seed %d: cell %d entries not in slot order", seed, id)
			}
			for _, s := range entries {
				if !p.IsActive(SlotIndex(s)) {
					t.Fatalf("seed %d: inactive slot %d in cell %d", seed, s, id)
				}
			}
		}
	}
}

func TestBuild_Deterministic(t *testing.T) {
	p := randomPool(42, 400, 320, 200)
	g := newTestGrid(t, 320, 200, 24)
	first := g.Build(p).Clone()
	second := g.Build(p)
	if !reflect.DeepEqual(first, second) {
		t.Error("two builds of the same pool differ")
	}
}

func TestBuild_ParallelMatchesSequential(t *testing.T) {
	tests := []struct {
		name     string
		capacity uint32
	}{
		{"unbounded", 0},
		{"truncated", 900},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p := randomPool(7, 1000, 320, 200)
			seq := newTestGrid(t, 320, 200, 16, WithEntryCapacity(tc.capacity))
			par := newTestGrid(t, 320, 200, 16, WithEntryCapacity(tc.capacity), WithWorkers(4))

			want := seq.Build(p).Clone()
			for i := range 3 {
				got := par.Build(p)
				if !reflect.DeepEqual(want, got) {
					t.Fatalf("build %d: parallel frame differs from sequential", i)
				}
			}
		})
	}
}

func TestBuild_ReusesBuffers(t *testing.T) {
	p := randomPool(3, 200, 320, 200)
	g := newTestGrid(t, 320, 200, 24)
	g.Build(p)
	allocs := testing.AllocsPerRun(20, func() {
		g.Build(p)
	})
	if allocs > 0 {
		t.Errorf("steady-state Build allocated %.0f times per run", allocs)
	}
}

func TestCellOf_Clamps(t *testing.T) {
	g := newTestGrid(t, 100, 100, 32)
	f := g.Build(NewPool(WithCapacity(1)))
	tests := []struct {
		p      [2]float32
		cx, cy uint32
	}{
		{[2]float32{0, 0}, 2, 2},
		{[2]float32{-1, -1}, 1, 1},
		{[2]float32{-1000, 1000}, 0, 3},
		{[2]float32{63.9, -63.9}, 3, 0},
	}
	for _, tc := range tests {
		cx, cy := f.CellOf(tc.p)
		if cx != tc.cx || cy != tc.cy {
			t.Errorf("CellOf(%v) = (%d, %d), want (%d, %d)", tc.p, cx, cy, tc.cx, tc.cy)
		}
	}
}
