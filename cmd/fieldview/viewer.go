package main

import (
	"fmt"
	"math"
	"time"

	"github.com/Carmen-Shannon/oxy-metaballs/engine/metaball"
	"github.com/Carmen-Shannon/oxy-metaballs/engine/simulation"
	"github.com/gdamore/tcell/v2"
)

// shading selects how a texel is turned into a terminal cell.
type shading int

const (
	shadeFlat shading = iota
	shadeLit
	shadeHeat
	shadingCount
)

var shadingNames = [shadingCount]string{"flat", "lit", "heat"}

// heatRamp runs from just under the iso contour to well inside a blob.
var heatRamp = []rune(" .:-=+*#%@")

// lightDir is normalized in newViewer.
var lightDir = [3]float32{-0.4, 0.5, 0.75}

// viewer evaluates the CPU reference field at terminal resolution and draws it.
// The bottom row is a status line.
type viewer struct {
	screen tcell.Screen
	pool   metaball.Pool
	grid   metaball.GridBuilder
	sim    *simulation.Simulation

	iso          float32
	normalZScale float32
	light        [3]float32

	shading shading
	paused  bool

	frames uint64
	last   *metaball.Frame
	fps    float64

	// peak is the strongest field value of the last draw and its world position.
	peak      float32
	peakWorld [2]float32
}

func newViewer(screen tcell.Screen, pool metaball.Pool, grid metaball.GridBuilder, sim *simulation.Simulation, iso, normalZScale float32) *viewer {
	l := lightDir
	n := float32(math.Sqrt(float64(l[0]*l[0] + l[1]*l[1] + l[2]*l[2])))
	return &viewer{
		screen:       screen,
		pool:         pool,
		grid:         grid,
		sim:          sim,
		iso:          iso,
		normalZScale: normalZScale,
		light:        [3]float32{l[0] / n, l[1] / n, l[2] / n},
	}
}

// step advances the simulation unless paused.
func (v *viewer) step(dt float64) {
	if !v.paused {
		v.sim.Step(dt)
	}
}

// draw rebuilds the grid, evaluates the field over the screen and shows it.
func (v *viewer) draw() {
	w, h := v.screen.Size()
	v.screen.Clear()
	if w < 1 || h < 2 {
		v.screen.Show()
		return
	}

	frame := v.grid.Build(v.pool)
	v.last = frame
	params := frame.Params(uint32(w), uint32(h-1), v.iso, v.normalZScale)
	img := metaball.EvaluateGrid(frame, params)
	if v.shading == shadeLit {
		metaball.ComputeNormals(img, v.normalZScale)
	}
	v.trackPeak(img, frame.Viewport)

	for y := range img.Height {
		for x := range img.Width {
			r, style := v.cell(img, x, y)
			v.screen.SetContent(int(x), int(y), r, nil, style)
		}
	}
	v.drawStatus(w, h-1)
	v.screen.Show()
	v.frames++
}

// trackPeak records the field maximum in world space. A terminal cell is a texel, so
// the mapper puts the peak back in simulation coordinates.
func (v *viewer) trackPeak(img *metaball.FieldImage, viewport metaball.Viewport) {
	peak, px, py := img.MaxField()
	v.peak = peak
	mapper, err := metaball.NewCoordinateMapper(viewport, img.Width, img.Height)
	if err != nil {
		return
	}
	v.peakWorld = mapper.TextureToWorld([2]float32{float32(px) + 0.5, float32(py) + 0.5})
}

// cell maps texel (x, y) to a rune and style for the active shading.
func (v *viewer) cell(img *metaball.FieldImage, x, y uint32) (rune, tcell.Style) {
	i := img.Index(x, y)
	f := img.Field[i]

	switch v.shading {
	case shadeHeat:
		t := f / (2 * v.iso)
		idx := min(int(t*float32(len(heatRamp)-1)+0.5), len(heatRamp)-1)
		if idx <= 0 {
			return ' ', tcell.StyleDefault
		}
		return heatRamp[idx], tcell.StyleDefault.Foreground(heatColor(t))
	case shadeLit:
		if f < v.iso {
			return ' ', tcell.StyleDefault
		}
		n := img.Normal[i]
		d := max(n[0]*v.light[0]+n[1]*v.light[1]+n[2]*v.light[2], 0)
		return '█', tcell.StyleDefault.Foreground(rgb(img.Albedo[i], 0.3+0.7*d))
	default:
		switch {
		case f >= v.iso:
			return '█', tcell.StyleDefault.Foreground(rgb(img.Albedo[i], 1))
		case f >= v.iso*0.5:
			return '░', tcell.StyleDefault.Foreground(rgb(img.Albedo[i], 0.6))
		}
		return ' ', tcell.StyleDefault
	}
}

func (v *viewer) drawStatus(w, row int) {
	st := v.sim.Stats()
	var entries uint32
	var truncated string
	if v.last != nil {
		entries = v.last.TotalEntries
		if v.last.Truncated {
			truncated = " TRUNCATED"
		}
	}
	state := ""
	if v.paused {
		state = " paused"
	}
	line := fmt.Sprintf(" balls %d/%d  entries %d%s  peak %.2f @ (%.0f, %.0f)  %s  %.0f fps%s  [space] pause [s] shading [q] quit",
		st.Balls, st.Target, entries, truncated, v.peak, v.peakWorld[0], v.peakWorld[1],
		shadingNames[v.shading], v.fps, state)

	style := tcell.StyleDefault.Reverse(true)
	col := 0
	for _, r := range line {
		if col >= w {
			break
		}
		v.screen.SetContent(col, row, r, nil, style)
		col++
	}
	for ; col < w; col++ {
		v.screen.SetContent(col, row, ' ', nil, style)
	}
}

// handleKey applies a key press and reports whether the viewer should quit.
func (v *viewer) handleKey(key tcell.Key, r rune) bool {
	switch key {
	case tcell.KeyEscape, tcell.KeyCtrlC:
		return true
	case tcell.KeyRune:
		switch r {
		case 'q':
			return true
		case ' ':
			v.paused = !v.paused
		case 's':
			v.shading = (v.shading + 1) % shadingCount
		}
	}
	return false
}

// run drives the viewer at the given frame interval until quit.
func (v *viewer) run(interval time.Duration, maxFrames uint64) {
	events := make(chan tcell.Event, 100)
	go func() {
		for {
			ev := v.screen.PollEvent()
			if ev == nil {
				return
			}
			events <- ev
		}
	}()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last := time.Now()
	v.draw()
	for {
		select {
		case ev := <-events:
			switch ev := ev.(type) {
			case *tcell.EventKey:
				if v.handleKey(ev.Key(), ev.Rune()) {
					return
				}
			case *tcell.EventResize:
				v.screen.Sync()
			}
		case now := <-ticker.C:
			dt := now.Sub(last).Seconds()
			last = now
			if dt > 0 {
				v.fps = 0.9*v.fps + 0.1/dt
			}
			v.step(dt)
			v.draw()
			if maxFrames > 0 && v.frames >= maxFrames {
				return
			}
		}
	}
}

func rgb(c metaball.Color, scale float32) tcell.Color {
	ch := func(x float32) int32 {
		return int32(min(max(x*scale, 0), 1)*255 + 0.5)
	}
	return tcell.NewRGBColor(ch(c[0]), ch(c[1]), ch(c[2]))
}

// heatColor ramps blue to red with the iso contour at t = 0.5.
func heatColor(t float32) tcell.Color {
	t = min(max(t, 0), 1)
	return rgb(metaball.Color{t, 0.2 + 0.6*(1-2*float32(math.Abs(float64(t)-0.5))), 1 - t, 1}, 1)
}
