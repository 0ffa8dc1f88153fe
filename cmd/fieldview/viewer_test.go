package main

import (
	"strings"
	"testing"

	"github.com/Carmen-Shannon/oxy-metaballs/engine/metaball"
	"github.com/Carmen-Shannon/oxy-metaballs/engine/simulation"
	"github.com/gdamore/tcell/v2"
)

// newTestViewer builds a viewer over an 80x40 viewport with one large ball at the
// center and an idle simulation.
func newTestViewer(t *testing.T, w, h int) (*viewer, tcell.SimulationScreen) {
	t.Helper()
	screen := tcell.NewSimulationScreen("UTF-8")
	if err := screen.Init(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(screen.Fini)
	screen.SetSize(w, h)

	viewport := metaball.CenteredViewport(80, 40)
	pool := metaball.NewPool(metaball.WithCapacity(8))
	grid, err := metaball.NewGridBuilder(viewport, 8, metaball.WithEntryCapacity(64))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(grid.Close)

	sim, err := simulation.New(simulation.Config{
		Viewport:  viewport,
		RadiusMin: 1,
		RadiusMax: 2,
	}, simulation.PoolSink(pool))
	if err != nil {
		t.Fatal(err)
	}

	slot, err := pool.Allocate()
	if err != nil {
		t.Fatal(err)
	}
	pool.Set(slot, metaball.Ball{Position: viewport.Center(), Radius: 16})

	return newViewer(screen, pool, grid, sim, 0.5, 0.25), screen
}

func contentAt(s tcell.SimulationScreen, x, y int) rune {
	cells, w, _ := s.GetContents()
	c := cells[y*w+x]
	if len(c.Runes) == 0 {
		return ' '
	}
	return c.Runes[0]
}

func rowText(s tcell.SimulationScreen, y int) string {
	_, w, _ := s.GetContents()
	var b strings.Builder
	for x := range w {
		b.WriteRune(contentAt(s, x, y))
	}
	return b.String()
}

func TestViewer_Draw(t *testing.T) {
	v, screen := newTestViewer(t, 40, 21)
	v.draw()

	if got := contentAt(screen, 20, 10); got != '█' {
		t.Errorf("center = %q, want a filled cell", got)
	}
	if got := contentAt(screen, 0, 0); got != ' ' {
		t.Errorf("corner = %q, want empty", got)
	}
	status := rowText(screen, 20)
	if !strings.HasPrefix(status, " balls 0/0  entries") {
		t.Errorf("status = %q", status)
	}
	if v.last == nil || v.last.ActiveBalls != 1 {
		t.Errorf("frame = %+v, want one active ball", v.last)
	}
	if v.peak < 0.9 {
		t.Errorf("peak = %v, want close to 1 at the ball center", v.peak)
	}
	if abs(v.peakWorld[0]) > 2 || abs(v.peakWorld[1]) > 2 {
		t.Errorf("peak at %v, want within one texel of the origin", v.peakWorld)
	}
	if v.frames != 1 {
		t.Errorf("frames = %d, want 1", v.frames)
	}
}

func abs(x float32) float32 {
	if x < 0 {
		return -x
	}
	return x
}

func TestViewer_DrawTooSmall(t *testing.T) {
	v, _ := newTestViewer(t, 10, 1)
	v.draw()
	if v.last != nil {
		t.Error("built a frame with no room below the status line")
	}
}

func TestViewer_Cell(t *testing.T) {
	img := metaball.NewFieldImage(3, 1)
	img.Field[0] = 0.8
	img.Field[1] = 0.3
	img.Field[2] = 0.1
	for i := range img.Albedo {
		img.Albedo[i] = metaball.Color{1, 0, 0, 1}
	}

	tests := []struct {
		name    string
		shading shading
		want    [3]rune
	}{
		{"flat", shadeFlat, [3]rune{'█', '░', ' '}},
		{"heat", shadeHeat, [3]rune{heatRamp[7], heatRamp[3], heatRamp[1]}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := &viewer{iso: 0.5, shading: tt.shading}
			for x := range uint32(3) {
				if got, _ := v.cell(img, x, 0); got != tt.want[x] {
					t.Errorf("cell(%d) = %q, want %q", x, got, tt.want[x])
				}
			}
		})
	}

	t.Run("lit", func(t *testing.T) {
		metaball.ComputeNormals(img, 0.25)
		v := &viewer{iso: 0.5, shading: shadeLit, light: [3]float32{0, 0, 1}}
		if got, _ := v.cell(img, 0, 0); got != '█' {
			t.Errorf("inside = %q, want filled", got)
		}
		if got, _ := v.cell(img, 1, 0); got != ' ' {
			t.Errorf("outside = %q, want empty", got)
		}
	})
}

func TestViewer_HandleKey(t *testing.T) {
	tests := []struct {
		name        string
		key         tcell.Key
		r           rune
		wantQuit    bool
		wantPaused  bool
		wantShading shading
	}{
		{"escape", tcell.KeyEscape, 0, true, false, shadeFlat},
		{"ctrl-c", tcell.KeyCtrlC, 0, true, false, shadeFlat},
		{"q", tcell.KeyRune, 'q', true, false, shadeFlat},
		{"space", tcell.KeyRune, ' ', false, true, shadeFlat},
		{"s", tcell.KeyRune, 's', false, false, shadeLit},
		{"other", tcell.KeyRune, 'x', false, false, shadeFlat},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := &viewer{}
			if got := v.handleKey(tt.key, tt.r); got != tt.wantQuit {
				t.Errorf("quit = %v, want %v", got, tt.wantQuit)
			}
			if v.paused != tt.wantPaused || v.shading != tt.wantShading {
				t.Errorf("paused %v shading %d, want %v %d", v.paused, v.shading, tt.wantPaused, tt.wantShading)
			}
		})
	}

	v := &viewer{}
	for range shadingCount {
		v.handleKey(tcell.KeyRune, 's')
	}
	if v.shading != shadeFlat {
		t.Errorf("shading did not wrap: %d", v.shading)
	}
}

func TestViewer_StepPaused(t *testing.T) {
	v, _ := newTestViewer(t, 20, 10)
	v.paused = true
	v.step(1)
	if v.sim.Target() != 0 {
		t.Errorf("target = %d", v.sim.Target())
	}
	v.paused = false
	v.step(0.5)
	if got := v.sim.Stats().Balls; got != 0 {
		t.Errorf("balls = %d, want 0 with a zero population range", got)
	}
}
