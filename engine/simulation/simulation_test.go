package simulation

import (
	"testing"

	"github.com/Carmen-Shannon/oxy-metaballs/engine/metaball"
	"github.com/mlange-42/ark/ecs"
)

func testConfig() Config {
	return Config{
		Viewport:    metaball.CenteredViewport(400, 300),
		Initial:     20,
		Min:         10,
		Max:         60,
		SpawnRate:   200,
		DespawnRate: 200,
		RadiusMin:   6,
		RadiusMax:   12,
		Speed:       80,
		Clusters:    3,
		Iso:         0.5,
		Seed:        7,
		Period:      4,
	}
}

func checkConsistent(t *testing.T, sim *Simulation, pool metaball.Pool) {
	t.Helper()
	if err := pool.Validate(); err != nil {
		t.Fatalf("pool invalid: %v", err)
	}
	if got, want := int(pool.ActiveCount()), sim.Stats().Balls; got != want {
		t.Fatalf("pool active = %d, simulation balls = %d", got, want)
	}
	n := 0
	sim.Each(func(slot metaball.SlotIndex, _ Position, _ Body) {
		n++
		if !pool.IsActive(slot) {
			t.Errorf("entity references inactive slot %d", slot)
		}
	})
	if n != sim.Stats().Balls {
		t.Fatalf("entities = %d, balls = %d", n, sim.Stats().Balls)
	}
}

func TestNew_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"min above max", func(c *Config) { c.Min = 100 }},
		{"negative min", func(c *Config) { c.Min = -1 }},
		{"zero radius", func(c *Config) { c.RadiusMin = 0 }},
		{"inverted radius", func(c *Config) { c.RadiusMax = 1 }},
		{"empty viewport", func(c *Config) { c.Viewport = metaball.Viewport{} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.modify(&cfg)
			if _, err := New(cfg, PoolSink(metaball.NewPool())); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestNew_InitialSpawn(t *testing.T) {
	pool := metaball.NewPool(metaball.WithCapacity(64))
	sim, err := New(testConfig(), PoolSink(pool))
	if err != nil {
		t.Fatal(err)
	}
	checkConsistent(t, sim, pool)
	if sim.Stats().Balls != 20 {
		t.Errorf("balls = %d, want 20", sim.Stats().Balls)
	}

	scale := metaball.RadiusScaleForIso(0.5)
	sim.Each(func(slot metaball.SlotIndex, pos Position, body Body) {
		b := pool.Ball(slot)
		if b.Position != [2]float32{pos.X, pos.Y} {
			t.Errorf("slot %d position %v, entity %v", slot, b.Position, pos)
		}
		if b.Radius != body.VisualRadius*scale {
			t.Errorf("slot %d radius %v, want %v", slot, b.Radius, body.VisualRadius*scale)
		}
		if body.VisualRadius < 6 || body.VisualRadius > 12 {
			t.Errorf("visual radius %v out of range", body.VisualRadius)
		}
	})
}

func TestNew_InitialSpawnExceedsCapacity(t *testing.T) {
	if _, err := New(testConfig(), PoolSink(metaball.NewPool(metaball.WithCapacity(5)))); err == nil {
		t.Error("expected error")
	}
}

func TestStep_StaysInViewport(t *testing.T) {
	pool := metaball.NewPool(metaball.WithCapacity(64))
	cfg := testConfig()
	sim, err := New(cfg, PoolSink(pool))
	if err != nil {
		t.Fatal(err)
	}
	lo, hi := cfg.Viewport.Min, cfg.Viewport.Max()
	for range 300 {
		sim.Step(1.0 / 60)
	}
	for slot := range pool.ActiveSlots() {
		p := pool.Ball(slot).Position
		if p[0] < lo[0] || p[0] > hi[0] || p[1] < lo[1] || p[1] > hi[1] {
			t.Errorf("slot %d at %v outside viewport", slot, p)
		}
	}
}

func TestStep_PopulationCycle(t *testing.T) {
	pool := metaball.NewPool(metaball.WithCapacity(64))
	sim, err := New(testConfig(), PoolSink(pool))
	if err != nil {
		t.Fatal(err)
	}

	minSeen, maxSeen := sim.Stats().Balls, sim.Stats().Balls
	for range 8 * 60 {
		sim.Step(1.0 / 60)
		checkConsistent(t, sim, pool)
		minSeen = min(minSeen, sim.Stats().Balls)
		maxSeen = max(maxSeen, sim.Stats().Balls)
	}

	if minSeen > 12 || maxSeen < 58 {
		t.Errorf("population range [%d, %d], want to reach near [10, 60]", minSeen, maxSeen)
	}
	s := sim.Stats()
	if s.Spawned == 0 || s.Despawned == 0 {
		t.Errorf("stats = %+v, want spawns and despawns", s)
	}
	if pool.HighWaterMark() > 64 {
		t.Errorf("high water mark %d exceeds capacity", pool.HighWaterMark())
	}
}

func TestStep_CapacityExhausted(t *testing.T) {
	pool := metaball.NewPool(metaball.WithCapacity(30))
	sim, err := New(testConfig(), PoolSink(pool))
	if err != nil {
		t.Fatal(err)
	}
	for range 2 * 60 {
		sim.Step(1.0 / 60)
	}
	checkConsistent(t, sim, pool)
	if sim.Stats().Rejected == 0 {
		t.Error("expected rejected spawns")
	}
	if sim.Stats().Balls > 30 {
		t.Errorf("balls = %d above capacity", sim.Stats().Balls)
	}
}

// liveEntities returns the entities the simulation currently tracks.
func liveEntities(sim *Simulation) []ecs.Entity {
	var out []ecs.Entity
	query := sim.filter.Query()
	for query.Next() {
		out = append(out, query.Entity())
	}
	return out
}

func TestClose_ReleasesAll(t *testing.T) {
	pool := metaball.NewPool(metaball.WithCapacity(64))
	sim, err := New(testConfig(), PoolSink(pool))
	if err != nil {
		t.Fatal(err)
	}
	before := liveEntities(sim)
	sim.Close()
	checkConsistent(t, sim, pool)
	if pool.ActiveCount() != 0 {
		t.Errorf("active = %d after close", pool.ActiveCount())
	}
	for _, e := range before {
		if sim.world.Alive(e) {
			t.Fatalf("entity %v still alive after close", e)
		}
	}
}

func TestDespawn_RecyclesEntities(t *testing.T) {
	pool := metaball.NewPool(metaball.WithCapacity(64))
	sim, err := New(testConfig(), PoolSink(pool))
	if err != nil {
		t.Fatal(err)
	}
	ids := make(map[uint32]bool)
	for _, e := range liveEntities(sim) {
		ids[e.ID()] = true
	}

	for cycle := range 50 {
		sim.despawn(sim.Stats().Balls)
		for range len(ids) {
			if err := sim.spawn(); err != nil {
				t.Fatal(err)
			}
		}
		for _, e := range liveEntities(sim) {
			if !ids[e.ID()] {
				t.Fatalf("cycle %d: entity id %d is new, removed ids were not reused", cycle, e.ID())
			}
		}
	}
	checkConsistent(t, sim, pool)
}

func TestStep_Deterministic(t *testing.T) {
	run := func() []metaball.Ball {
		pool := metaball.NewPool(metaball.WithCapacity(64))
		sim, err := New(testConfig(), PoolSink(pool))
		if err != nil {
			t.Fatal(err)
		}
		for range 90 {
			sim.Step(1.0 / 60)
		}
		var out []metaball.Ball
		for slot := range pool.ActiveSlots() {
			out = append(out, pool.Ball(slot))
		}
		return out
	}
	a, b := run(), run()
	if len(a) != len(b) {
		t.Fatalf("len %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("ball %d differs: %+v vs %+v", i, a[i], b[i])
		}
	}
}
