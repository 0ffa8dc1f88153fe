package metaball

import (
	"errors"
	"fmt"
	"iter"

	"github.com/Carmen-Shannon/oxy-metaballs/common"
)

// ErrCapacityExhausted is returned by Allocate when every slot below MaxBalls is in use.
var ErrCapacityExhausted = errors.New("metaball: ball capacity exhausted")

// Pool is the CPU-side owner of the fixed-capacity ball slots. It hands out stable
// slot indices through a LIFO free list and stores the per-slot ball data that the
// grid builder snapshots every frame.
//
// A Pool is not safe for concurrent use; the frame loop owns it.
type Pool interface {
	// Allocate reserves a slot for a new ball.
	// The most recently released slot is reused first; otherwise the high water mark grows.
	//
	// Returns:
	//   - SlotIndex: the reserved slot
	//   - error: ErrCapacityExhausted when no slot is available
	Allocate() (SlotIndex, error)

	// Release returns a slot to the free list. Releasing a slot twice is a caller bug
	// that is only detected by Validate.
	//
	// Parameters:
	//   - slot: the slot to free
	Release(slot SlotIndex)

	// ActiveSlots iterates the allocated slots in ascending order.
	//
	// Returns:
	//   - iter.Seq[SlotIndex]: the active slot sequence
	ActiveSlots() iter.Seq[SlotIndex]

	// Set stores the ball data for an allocated slot.
	//
	// Parameters:
	//   - slot: the target slot
	//   - b: the new ball state
	Set(slot SlotIndex, b Ball)

	// Ball returns the stored data for a slot.
	//
	// Parameters:
	//   - slot: the slot to read
	//
	// Returns:
	//   - Ball: the stored ball, zero for slots never written
	Ball(slot SlotIndex) Ball

	// IsActive reports whether a slot is currently allocated.
	//
	// Parameters:
	//   - slot: the slot to test
	//
	// Returns:
	//   - bool: true if the slot is below the high water mark and not free
	IsActive(slot SlotIndex) bool

	// HighWaterMark returns one past the highest slot ever allocated.
	//
	// Returns:
	//   - uint32: the high water mark
	HighWaterMark() uint32

	// ActiveCount returns the number of allocated slots.
	//
	// Returns:
	//   - uint32: high water mark minus the free list length
	ActiveCount() uint32

	// Capacity returns MaxBalls.
	//
	// Returns:
	//   - uint32: the fixed slot capacity
	Capacity() uint32

	// RejectedCount returns how many Allocate calls failed with ErrCapacityExhausted.
	//
	// Returns:
	//   - uint64: the total rejection count
	RejectedCount() uint64

	// Validate checks the free list for duplicate or out-of-range slots.
	// It walks the whole free list and is meant for tests and debug builds.
	//
	// Returns:
	//   - error: a description of the first violation found, nil if consistent
	Validate() error
}

type pool struct {
	capacity uint32
	hwm      uint32
	free     []SlotIndex
	isFree   []bool
	balls    []Ball

	rejected   uint64
	inOverflow bool
}

var _ Pool = &pool{}

// NewPool creates a new Pool with the given options applied.
// The default capacity is DefaultMaxBalls.
//
// Parameters:
//   - options: the PoolBuilderOption functions to apply
//
// Returns:
//   - Pool: the new pool
func NewPool(options ...PoolBuilderOption) Pool {
	p := &pool{capacity: DefaultMaxBalls}
	for _, opt := range options {
		opt(p)
	}
	p.free = make([]SlotIndex, 0, p.capacity)
	p.isFree = make([]bool, p.capacity)
	p.balls = make([]Ball, p.capacity)
	return p
}

func (p *pool) Allocate() (SlotIndex, error) {
	if n := len(p.free); n > 0 {
		slot := p.free[n-1]
		p.free = p.free[:n-1]
		p.isFree[slot] = false
		p.inOverflow = false
		return slot, nil
	}
	if p.hwm < p.capacity {
		slot := SlotIndex(p.hwm)
		p.hwm++
		p.inOverflow = false
		return slot, nil
	}

	p.rejected++
	if !p.inOverflow {
		p.inOverflow = true
		common.Logger().Warn("ball pool capacity exhausted",
			"capacity", p.capacity,
			"rejected_total", p.rejected)
	}
	return 0, ErrCapacityExhausted
}

func (p *pool) Release(slot SlotIndex) {
	p.free = append(p.free, slot)
	if uint32(slot) < p.capacity {
		p.isFree[slot] = true
		p.balls[slot] = Ball{}
	}
	p.inOverflow = false
}

func (p *pool) ActiveSlots() iter.Seq[SlotIndex] {
	return func(yield func(SlotIndex) bool) {
		for i := uint32(0); i < p.hwm; i++ {
			if p.isFree[i] {
				continue
			}
			if !yield(SlotIndex(i)) {
				return
			}
		}
	}
}

func (p *pool) Set(slot SlotIndex, b Ball) {
	p.balls[slot] = b
}

func (p *pool) Ball(slot SlotIndex) Ball {
	return p.balls[slot]
}

func (p *pool) IsActive(slot SlotIndex) bool {
	return uint32(slot) < p.hwm && !p.isFree[slot]
}

func (p *pool) HighWaterMark() uint32 {
	return p.hwm
}

func (p *pool) ActiveCount() uint32 {
	return p.hwm - uint32(len(p.free))
}

func (p *pool) Capacity() uint32 {
	return p.capacity
}

func (p *pool) RejectedCount() uint64 {
	return p.rejected
}

func (p *pool) Validate() error {
	seen := make(map[SlotIndex]struct{}, len(p.free))
	for i, slot := range p.free {
		if uint32(slot) >= p.hwm {
			return fmt.Errorf("free list entry %d: slot %d is not below the high water mark %d", i, slot, p.hwm)
		}
		if _, dup := seen[slot]; dup {
			return fmt.Errorf("free list entry %d: slot %d released more than once", i, slot)
		}
		seen[slot] = struct{}{}
	}
	if p.hwm > p.capacity {
		return fmt.Errorf("high water mark %d exceeds capacity %d", p.hwm, p.capacity)
	}
	return nil
}
