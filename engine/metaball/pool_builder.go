package metaball

// Defaults for the fixed GPU capacities.
const (
	DefaultMaxBalls                = 4096
	DefaultMaxCellsPerBallEstimate = 16
)

// PoolBuilderOption is a function that configures a Pool during construction.
type PoolBuilderOption func(*pool)

// WithCapacity is an option builder that sets the maximum number of slots (MaxBalls).
// A zero capacity is ignored.
//
// Parameters:
//   - capacity: the slot capacity
//
// Returns:
//   - PoolBuilderOption: a function that applies the capacity option to a pool
func WithCapacity(capacity uint32) PoolBuilderOption {
	return func(p *pool) {
		if capacity > 0 {
			p.capacity = capacity
		}
	}
}
