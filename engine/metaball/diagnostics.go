package metaball

import (
	"log/slog"
	"slices"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Diagnostics summarizes the occupancy of one grid frame.
type Diagnostics struct {
	Cells          uint32
	OccupiedCells  uint32
	ActiveBalls    uint32
	EmittedBalls   uint32
	TotalEntries   uint32
	DroppedEntries uint32
	MaxCellCount   uint32
	MeanCellCount  float64
	StdDevCount    float64
	P95CellCount   float64
	// EntriesPerBall is TotalEntries / EmittedBalls, 0 for an empty frame.
	EntriesPerBall float64
	Truncated      bool
}

// Diagnose computes occupancy statistics over a frame's cell table.
//
// Parameters:
//   - f: the frame to summarize
//
// Returns:
//   - Diagnostics: the summary
func Diagnose(f *Frame) Diagnostics {
	d := Diagnostics{
		Cells:          f.CellCount(),
		ActiveBalls:    f.ActiveBalls,
		EmittedBalls:   f.EmittedBalls,
		TotalEntries:   f.TotalEntries,
		DroppedEntries: f.DroppedEntries,
		Truncated:      f.Truncated,
	}
	if len(f.Cells) == 0 {
		return d
	}

	counts := make([]float64, len(f.Cells))
	for i, c := range f.Cells {
		counts[i] = float64(c.Count)
		if c.Count > 0 {
			d.OccupiedCells++
		}
	}
	d.MaxCellCount = uint32(floats.Max(counts))
	d.MeanCellCount = stat.Mean(counts, nil)
	if len(counts) > 1 {
		d.StdDevCount = stat.StdDev(counts, nil)
	}
	slices.Sort(counts)
	d.P95CellCount = stat.Quantile(0.95, stat.Empirical, counts, nil)
	if f.EmittedBalls > 0 {
		d.EntriesPerBall = float64(f.TotalEntries) / float64(f.EmittedBalls)
	}
	return d
}

// LogValue renders the diagnostics as a slog group.
func (d Diagnostics) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("cells", int(d.Cells)),
		slog.Int("occupied", int(d.OccupiedCells)),
		slog.Int("balls", int(d.ActiveBalls)),
		slog.Int("emitted", int(d.EmittedBalls)),
		slog.Int("entries", int(d.TotalEntries)),
		slog.Int("max_cell", int(d.MaxCellCount)),
		slog.Float64("mean_cell", d.MeanCellCount),
		slog.Float64("stddev_cell", d.StdDevCount),
		slog.Float64("p95_cell", d.P95CellCount),
		slog.Float64("entries_per_ball", d.EntriesPerBall),
		slog.Bool("truncated", d.Truncated),
	)
}
