package profiler

import (
	"bytes"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// fakeClock advances by step on every call.
type fakeClock struct {
	t    time.Time
	step time.Duration
}

func (c *fakeClock) now() time.Time {
	c.t = c.t.Add(c.step)
	return c.t
}

func TestPerfCollector_Phases(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0), step: time.Millisecond}
	pc := NewPerfCollector(4)
	pc.now = clock.now

	// Every clock read advances 1ms: simulate and grid_build take 1ms each, the frame 4ms.
	for range 4 {
		pc.StartFrame()
		pc.StartPhase(PhaseSimulate)
		pc.StartPhase(PhaseGridBuild)
		pc.EndPhase()
		pc.AddPhase(PhaseDispatch, 5*time.Millisecond)
		pc.EndFrame()
	}

	s := pc.Stats()
	if s.AvgFrame != 4*time.Millisecond || s.MinFrame != s.AvgFrame || s.MaxFrame != s.AvgFrame {
		t.Errorf("frame = avg %v min %v max %v, want 4ms", s.AvgFrame, s.MinFrame, s.MaxFrame)
	}
	tests := []struct {
		phase Phase
		want  time.Duration
	}{
		{PhaseSimulate, time.Millisecond},
		{PhaseGridBuild, time.Millisecond},
		{PhaseUpload, 0},
		{PhaseDispatch, 5 * time.Millisecond},
	}
	for _, tt := range tests {
		t.Run(tt.phase.String(), func(t *testing.T) {
			if got := s.PhaseAvg[tt.phase]; got != tt.want {
				t.Errorf("avg = %v, want %v", got, tt.want)
			}
		})
	}
	if s.PhasePct[PhaseGridBuild] != 25 {
		t.Errorf("grid_build pct = %v, want 25", s.PhasePct[PhaseGridBuild])
	}
	if s.FPS != 250 {
		t.Errorf("fps = %v, want 250", s.FPS)
	}
}

func TestPerfCollector_WindowBoundary(t *testing.T) {
	pc := NewPerfCollector(3)
	var flushes []int64
	for range 7 {
		pc.StartFrame()
		if pc.EndFrame() {
			flushes = append(flushes, pc.Frames())
		}
	}
	if len(flushes) != 2 || flushes[0] != 3 || flushes[1] != 6 {
		t.Errorf("window closed at frames %v, want [3 6]", flushes)
	}
}

func TestPerfCollector_Empty(t *testing.T) {
	s := NewPerfCollector(0).Stats()
	if s.AvgFrame != 0 || s.FPS != 0 {
		t.Errorf("empty stats = %+v", s)
	}
}

func TestPhase_String(t *testing.T) {
	if PhaseGridBuild.String() != "grid_build" || Phase(99).String() != "unknown" {
		t.Error("unexpected phase names")
	}
}

func TestOutputManager_HeaderOnce(t *testing.T) {
	var buf bytes.Buffer
	om := NewWriterOutputManager(&buf)
	for i := range 3 {
		if err := om.WritePerf(PerfStatsCSV{Frame: int64(i + 1), Balls: 10, FPS: 60}); err != nil {
			t.Fatal(err)
		}
	}

	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 4 {
		t.Fatalf("rows = %d, want header + 3", len(rows))
	}
	if rows[0][0] != "frame" || rows[0][1] != "balls" {
		t.Errorf("header = %v", rows[0])
	}
	for i, row := range rows[1:] {
		if row[0] != []string{"1", "2", "3"}[i] {
			t.Errorf("row %d frame = %s", i, row[0])
		}
	}
}

func TestOutputManager_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "perf.csv")
	om, err := NewOutputManager(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := om.WritePerf(PerfStatsCSV{Frame: 120}); err != nil {
		t.Fatal(err)
	}
	if err := om.Close(); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.HasPrefix(data, []byte("frame,")) {
		t.Errorf("file starts with %q", data[:min(len(data), 20)])
	}
}

func TestOutputManager_Disabled(t *testing.T) {
	om, err := NewOutputManager("")
	if err != nil || om != nil {
		t.Fatalf("NewOutputManager(\"\") = %v, %v", om, err)
	}
	if err := om.WritePerf(PerfStatsCSV{}); err != nil {
		t.Error(err)
	}
	if err := om.Close(); err != nil {
		t.Error(err)
	}
}

func TestProfiler_Tick(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0), step: 100 * time.Millisecond}
	p := NewProfiler(time.Second)
	p.lastTime = clock.t
	p.now = clock.now

	reports := 0
	for range 20 {
		if p.Tick() {
			reports++
		}
	}
	if reports != 2 {
		t.Errorf("reports = %d, want 2", reports)
	}
	if p.Last().FPS != 10 {
		t.Errorf("fps = %v, want 10", p.Last().FPS)
	}
}
