// Package simulation is the demo ball simulation: balls drift toward moving cluster
// centers inside the viewport while the population swings between a minimum and a
// maximum, so slots are allocated and released continuously.
package simulation

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/Carmen-Shannon/oxy-metaballs/common"
	"github.com/Carmen-Shannon/oxy-metaballs/engine/metaball"
	"github.com/mlange-42/ark/ecs"
)

// BallSink receives the ball lifecycle. field.Renderer satisfies it; PoolSink adapts a
// bare metaball.Pool.
type BallSink interface {
	AllocateBall() (metaball.SlotIndex, error)
	ReleaseBall(slot metaball.SlotIndex)
	SetBall(slot metaball.SlotIndex, b metaball.Ball)
}

type poolSink struct {
	pool metaball.Pool
}

// PoolSink adapts a metaball.Pool to BallSink.
func PoolSink(p metaball.Pool) BallSink {
	return poolSink{pool: p}
}

func (s poolSink) AllocateBall() (metaball.SlotIndex, error)        { return s.pool.Allocate() }
func (s poolSink) ReleaseBall(slot metaball.SlotIndex)              { s.pool.Release(slot) }
func (s poolSink) SetBall(slot metaball.SlotIndex, b metaball.Ball) { s.pool.Set(slot, b) }

// Config holds the simulation parameters.
type Config struct {
	Viewport metaball.Viewport
	Initial  int
	Min      int
	Max      int
	// SpawnRate and DespawnRate are in balls per second.
	SpawnRate   float64
	DespawnRate float64
	RadiusMin   float32
	RadiusMax   float32
	// Speed is the velocity cap in world units per second.
	Speed    float32
	Clusters int
	// Iso sets the influence radius: VisualRadius * metaball.RadiusScaleForIso(Iso).
	Iso  float32
	Seed uint64
	// Period is the population cycle length in seconds, 20 when zero.
	Period float64
}

// Stats summarizes the simulation state.
type Stats struct {
	Balls     int
	Target    int
	Spawned   uint64
	Despawned uint64
	// Rejected counts spawns refused with metaball.ErrCapacityExhausted.
	Rejected uint64
}

// Simulation owns an ECS world of balls and mirrors it into a BallSink.
type Simulation struct {
	cfg  Config
	sink BallSink
	rng  *rand.Rand

	world  *ecs.World
	mapper *ecs.Map4[Position, Velocity, Body, Slot]
	filter *ecs.Filter4[Position, Velocity, Body, Slot]

	radiusScale float32
	centers     [][2]float32
	elapsed     float64
	spawnDebt   float64
	despawnDebt float64
	stats       Stats

	removeBuf []ecs.Entity
}

// New creates a simulation and spawns cfg.Initial balls.
//
// Parameters:
//   - cfg: the simulation parameters
//   - sink: the receiver of ball allocations and updates
//
// Returns:
//   - *Simulation: the simulation
//   - error: an error for an invalid configuration or a failed initial spawn
func New(cfg Config, sink BallSink) (*Simulation, error) {
	if cfg.Min < 0 || cfg.Min > cfg.Max {
		return nil, fmt.Errorf("simulation: population range [%d, %d] is invalid", cfg.Min, cfg.Max)
	}
	if !(cfg.RadiusMin > 0) || cfg.RadiusMin > cfg.RadiusMax {
		return nil, fmt.Errorf("simulation: radius range [%v, %v] is invalid", cfg.RadiusMin, cfg.RadiusMax)
	}
	if !(cfg.Viewport.Size[0] > 0) || !(cfg.Viewport.Size[1] > 0) {
		return nil, fmt.Errorf("simulation: viewport %v is empty", cfg.Viewport.Size)
	}
	cfg.Clusters = max(cfg.Clusters, 1)
	if cfg.Period <= 0 {
		cfg.Period = 20
	}
	if cfg.Iso <= 0 {
		cfg.Iso = 0.5
	}

	world := ecs.NewWorld()
	s := &Simulation{
		cfg:         cfg,
		sink:        sink,
		rng:         rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15)),
		world:       world,
		mapper:      ecs.NewMap4[Position, Velocity, Body, Slot](world),
		filter:      ecs.NewFilter4[Position, Velocity, Body, Slot](world),
		radiusScale: metaball.RadiusScaleForIso(cfg.Iso),
		centers:     make([][2]float32, cfg.Clusters),
	}
	s.moveCenters()

	for range cfg.Initial {
		if err := s.spawn(); err != nil {
			return nil, fmt.Errorf("simulation: initial spawn: %w", err)
		}
	}
	common.Logger().Info("simulation created", "balls", s.stats.Balls, "clusters", cfg.Clusters)
	return s, nil
}

// Stats returns the current counters.
func (s *Simulation) Stats() Stats {
	return s.stats
}

// Step advances the simulation by dt seconds and pushes every ball to the sink.
//
// Parameters:
//   - dt: the time step in seconds
func (s *Simulation) Step(dt float64) {
	if dt <= 0 {
		return
	}
	s.elapsed += dt
	s.moveCenters()
	s.integrate(float32(dt))
	s.regulate(dt)
}

// Target returns the population the simulation is currently steering toward.
func (s *Simulation) Target() int {
	phase := 0.5 - 0.5*math.Cos(2*math.Pi*s.elapsed/s.cfg.Period)
	return s.cfg.Min + int(math.Round(phase*float64(s.cfg.Max-s.cfg.Min)))
}

// Close releases every ball.
func (s *Simulation) Close() {
	s.despawn(s.stats.Balls)
}

// moveCenters places the cluster centers on a slowly rotating ellipse.
func (s *Simulation) moveCenters() {
	c := s.cfg.Viewport.Center()
	rx := s.cfg.Viewport.Size[0] * 0.3
	ry := s.cfg.Viewport.Size[1] * 0.3
	for i := range s.centers {
		a := 2*math.Pi*float64(i)/float64(len(s.centers)) + s.elapsed*0.2
		s.centers[i] = [2]float32{
			c[0] + rx*float32(math.Cos(a)),
			c[1] + ry*float32(math.Sin(a)),
		}
	}
}

func (s *Simulation) integrate(dt float32) {
	const pull = 1.5
	const damping = 0.98
	lo := s.cfg.Viewport.Min
	hi := s.cfg.Viewport.Max()

	query := s.filter.Query()
	for query.Next() {
		pos, vel, body, slot := query.Get()
		target := s.centers[int(body.ColorIndex)%len(s.centers)]

		vel.X = (vel.X + (target[0]-pos.X)*pull*dt) * damping
		vel.Y = (vel.Y + (target[1]-pos.Y)*pull*dt) * damping
		if sp := float32(math.Hypot(float64(vel.X), float64(vel.Y))); sp > s.cfg.Speed && sp > 0 {
			vel.X *= s.cfg.Speed / sp
			vel.Y *= s.cfg.Speed / sp
		}
		pos.X += vel.X * dt
		pos.Y += vel.Y * dt
		if pos.X < lo[0] || pos.X > hi[0] {
			vel.X = -vel.X
			pos.X = common.Clamp(pos.X, lo[0], hi[0])
		}
		if pos.Y < lo[1] || pos.Y > hi[1] {
			vel.Y = -vel.Y
			pos.Y = common.Clamp(pos.Y, lo[1], hi[1])
		}

		s.sink.SetBall(slot.Index, metaball.Ball{
			Position:   [2]float32{pos.X, pos.Y},
			Radius:     body.Radius,
			ColorIndex: body.ColorIndex,
		})
	}
}

// regulate spawns or despawns toward the target at the configured rates.
func (s *Simulation) regulate(dt float64) {
	target := s.Target()
	s.stats.Target = target

	switch {
	case s.stats.Balls < target:
		s.despawnDebt = 0
		s.spawnDebt += s.cfg.SpawnRate * dt
		n := min(int(s.spawnDebt), target-s.stats.Balls)
		s.spawnDebt -= float64(n)
		for range n {
			if err := s.spawn(); err != nil {
				if errors.Is(err, metaball.ErrCapacityExhausted) {
					s.stats.Rejected++
					s.spawnDebt = 0
				}
				return
			}
		}
	case s.stats.Balls > target:
		s.spawnDebt = 0
		s.despawnDebt += s.cfg.DespawnRate * dt
		n := min(int(s.despawnDebt), s.stats.Balls-target)
		s.despawnDebt -= float64(n)
		s.despawn(n)
	}
}

func (s *Simulation) spawn() error {
	slot, err := s.sink.AllocateBall()
	if err != nil {
		return err
	}

	cluster := s.rng.IntN(len(s.centers))
	c := s.centers[cluster]
	spread := s.cfg.Viewport.Size[0] * 0.1
	pos := Position{
		X: c[0] + (s.rng.Float32()*2-1)*spread,
		Y: c[1] + (s.rng.Float32()*2-1)*spread,
	}
	lo, hi := s.cfg.Viewport.Min, s.cfg.Viewport.Max()
	pos.X = common.Clamp(pos.X, lo[0], hi[0])
	pos.Y = common.Clamp(pos.Y, lo[1], hi[1])

	angle := s.rng.Float64() * 2 * math.Pi
	speed := s.rng.Float32() * s.cfg.Speed
	vel := Velocity{X: speed * float32(math.Cos(angle)), Y: speed * float32(math.Sin(angle))}

	visual := s.cfg.RadiusMin + s.rng.Float32()*(s.cfg.RadiusMax-s.cfg.RadiusMin)
	body := Body{VisualRadius: visual, Radius: visual * s.radiusScale, ColorIndex: uint32(cluster)}
	slotC := Slot{Index: slot}

	s.mapper.NewEntity(&pos, &vel, &body, &slotC)
	s.sink.SetBall(slot, metaball.Ball{Position: [2]float32{pos.X, pos.Y}, Radius: body.Radius, ColorIndex: body.ColorIndex})
	s.stats.Balls++
	s.stats.Spawned++
	return nil
}

// despawn removes up to n balls, oldest archetype rows first.
func (s *Simulation) despawn(n int) {
	if n <= 0 {
		return
	}
	s.removeBuf = s.removeBuf[:0]
	query := s.filter.Query()
	for query.Next() {
		_, _, _, slot := query.Get()
		s.sink.ReleaseBall(slot.Index)
		s.removeBuf = append(s.removeBuf, query.Entity())
		if len(s.removeBuf) == n {
			query.Close()
			break
		}
	}
	for _, e := range s.removeBuf {
		s.world.RemoveEntity(e)
	}
	s.stats.Balls -= len(s.removeBuf)
	s.stats.Despawned += uint64(len(s.removeBuf))
}

// Each calls fn for every live ball.
func (s *Simulation) Each(fn func(slot metaball.SlotIndex, pos Position, body Body)) {
	query := s.filter.Query()
	for query.Next() {
		pos, _, body, slot := query.Get()
		fn(slot.Index, *pos, *body)
	}
}
