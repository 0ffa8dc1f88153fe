package profiler

import (
	"log/slog"
	"time"
)

// Phase identifies a timed part of a frame.
type Phase int

// Frame phases, in execution order.
const (
	PhaseSimulate Phase = iota
	PhaseGridBuild
	PhaseUpload
	PhaseDispatch
	PhasePresent
	phaseCount
)

var phaseNames = [phaseCount]string{
	PhaseSimulate:  "simulate",
	PhaseGridBuild: "grid_build",
	PhaseUpload:    "upload",
	PhaseDispatch:  "dispatch",
	PhasePresent:   "present",
}

// String returns the phase name used in logs and CSV columns.
func (p Phase) String() string {
	if p < 0 || p >= phaseCount {
		return "unknown"
	}
	return phaseNames[p]
}

// PerfSample holds timing data for a single frame.
type PerfSample struct {
	FrameDuration time.Duration
	Phases        [phaseCount]time.Duration
}

// PerfCollector tracks per-phase frame timings over a rolling window.
type PerfCollector struct {
	windowSize  int
	samples     []PerfSample
	writeIndex  int
	sampleCount int
	frames      int64

	current    PerfSample
	frameStart time.Time
	phaseStart time.Time
	lastPhase  Phase
	inPhase    bool

	now func() time.Time
}

// NewPerfCollector creates a new performance collector averaging over windowSize frames.
// Values below 1 default to 60.
func NewPerfCollector(windowSize int) *PerfCollector {
	if windowSize < 1 {
		windowSize = 60
	}
	return &PerfCollector{
		windowSize: windowSize,
		samples:    make([]PerfSample, windowSize),
		now:        time.Now,
	}
}

// WindowSize returns the number of frames averaged.
func (p *PerfCollector) WindowSize() int {
	return p.windowSize
}

// Frames returns the number of completed frames.
func (p *PerfCollector) Frames() int64 {
	return p.frames
}

// StartFrame begins timing a new frame.
func (p *PerfCollector) StartFrame() {
	p.frameStart = p.now()
	p.current = PerfSample{}
	p.inPhase = false
}

// StartPhase ends the running phase, if any, and begins timing phase.
func (p *PerfCollector) StartPhase(phase Phase) {
	now := p.now()
	if p.inPhase {
		p.current.Phases[p.lastPhase] += now.Sub(p.phaseStart)
	}
	p.phaseStart = now
	p.lastPhase = phase
	p.inPhase = true
}

// EndPhase ends the running phase without starting another.
func (p *PerfCollector) EndPhase() {
	if p.inPhase {
		p.current.Phases[p.lastPhase] += p.now().Sub(p.phaseStart)
		p.inPhase = false
	}
}

// AddPhase adds a duration measured elsewhere to a phase of the current frame.
func (p *PerfCollector) AddPhase(phase Phase, d time.Duration) {
	if phase >= 0 && phase < phaseCount {
		p.current.Phases[phase] += d
	}
}

// EndFrame finishes timing the current frame and records the sample.
//
// Returns:
//   - bool: true when the window has just been filled again, i.e. every windowSize frames
func (p *PerfCollector) EndFrame() bool {
	p.EndPhase()
	p.current.FrameDuration = p.now().Sub(p.frameStart)

	p.samples[p.writeIndex] = p.current
	p.writeIndex = (p.writeIndex + 1) % p.windowSize
	if p.sampleCount < p.windowSize {
		p.sampleCount++
	}
	p.frames++
	return p.frames%int64(p.windowSize) == 0
}

// PerfStats holds aggregated performance statistics.
type PerfStats struct {
	AvgFrame time.Duration
	MinFrame time.Duration
	MaxFrame time.Duration
	FPS      float64

	// Average duration and share of the average frame, per phase
	PhaseAvg [phaseCount]time.Duration
	PhasePct [phaseCount]float64
}

// Stats computes aggregated statistics over the current window.
func (p *PerfCollector) Stats() PerfStats {
	var s PerfStats
	if p.sampleCount == 0 {
		return s
	}

	var total time.Duration
	var phaseSum [phaseCount]time.Duration
	for i := range p.sampleCount {
		sample := p.samples[i]
		total += sample.FrameDuration
		if i == 0 || sample.FrameDuration < s.MinFrame {
			s.MinFrame = sample.FrameDuration
		}
		s.MaxFrame = max(s.MaxFrame, sample.FrameDuration)
		for ph, d := range sample.Phases {
			phaseSum[ph] += d
		}
	}

	n := time.Duration(p.sampleCount)
	s.AvgFrame = total / n
	for ph := range phaseSum {
		s.PhaseAvg[ph] = phaseSum[ph] / n
		if s.AvgFrame > 0 {
			s.PhasePct[ph] = float64(s.PhaseAvg[ph]) / float64(s.AvgFrame) * 100
		}
	}
	if s.AvgFrame > 0 {
		s.FPS = float64(time.Second) / float64(s.AvgFrame)
	}
	return s
}

// LogValue implements slog.LogValuer for structured logging.
func (s PerfStats) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.Int64("avg_frame_us", s.AvgFrame.Microseconds()),
		slog.Int64("min_frame_us", s.MinFrame.Microseconds()),
		slog.Int64("max_frame_us", s.MaxFrame.Microseconds()),
		slog.Float64("fps", s.FPS),
	}
	for ph := range phaseCount {
		attrs = append(attrs, slog.Int64(ph.String()+"_us", s.PhaseAvg[ph].Microseconds()))
	}
	return slog.GroupValue(attrs...)
}

// PerfStatsCSV is a flat struct for CSV export of performance stats.
type PerfStatsCSV struct {
	Frame        int64   `csv:"frame"`
	Balls        uint32  `csv:"balls"`
	Entries      uint32  `csv:"entries"`
	AvgFrameUS   int64   `csv:"avg_frame_us"`
	MinFrameUS   int64   `csv:"min_frame_us"`
	MaxFrameUS   int64   `csv:"max_frame_us"`
	FPS          float64 `csv:"fps"`
	SimulateUS   int64   `csv:"simulate_us"`
	GridBuildUS  int64   `csv:"grid_build_us"`
	UploadUS     int64   `csv:"upload_us"`
	DispatchUS   int64   `csv:"dispatch_us"`
	PresentUS    int64   `csv:"present_us"`
	GridBuildPct float64 `csv:"grid_build_pct"`
}

// ToCSV converts PerfStats to a flat CSV-friendly struct.
//
// Parameters:
//   - frame: the frame number closing the window
//   - balls: active balls at the end of the window
//   - entries: grid entries at the end of the window
func (s PerfStats) ToCSV(frame int64, balls, entries uint32) PerfStatsCSV {
	return PerfStatsCSV{
		Frame:        frame,
		Balls:        balls,
		Entries:      entries,
		AvgFrameUS:   s.AvgFrame.Microseconds(),
		MinFrameUS:   s.MinFrame.Microseconds(),
		MaxFrameUS:   s.MaxFrame.Microseconds(),
		FPS:          s.FPS,
		SimulateUS:   s.PhaseAvg[PhaseSimulate].Microseconds(),
		GridBuildUS:  s.PhaseAvg[PhaseGridBuild].Microseconds(),
		UploadUS:     s.PhaseAvg[PhaseUpload].Microseconds(),
		DispatchUS:   s.PhaseAvg[PhaseDispatch].Microseconds(),
		PresentUS:    s.PhaseAvg[PhasePresent].Microseconds(),
		GridBuildPct: s.PhasePct[PhaseGridBuild],
	}
}
