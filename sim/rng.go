package sim

import (
	"hash/fnv"
	"math/rand"
	"sync"
)

// SimulationKey identifies a reproducible run. Two runs with the same key and
// configuration draw identical random sequences per subsystem.
type SimulationKey int64

// NewSimulationKey creates a SimulationKey from a seed value.
func NewSimulationKey(seed int64) SimulationKey {
	return SimulationKey(seed)
}

const (
	// SubsystemWorkload draws patient cases. Uses the master seed directly.
	SubsystemWorkload = "workload"
	// SubsystemTriage draws triage priorities within a keyword band.
	SubsystemTriage = "triage"
	// SubsystemConsult drives the simulated consultation collaborator.
	SubsystemConsult = "consult"
)

// PartitionedRNG hands out one deterministic *rand.Rand per subsystem, so
// drawing in one subsystem never perturbs another.
//
// Derivation: SubsystemWorkload uses the master seed; every other subsystem
// uses masterSeed XOR fnv1a64(name).
//
// ForSubsystem is safe for concurrent use; the returned *rand.Rand is not.
type PartitionedRNG struct {
	key        SimulationKey
	mu         sync.Mutex
	subsystems map[string]*rand.Rand
}

// NewPartitionedRNG creates a PartitionedRNG from a SimulationKey.
func NewPartitionedRNG(key SimulationKey) *PartitionedRNG {
	return &PartitionedRNG{
		key:        key,
		subsystems: make(map[string]*rand.Rand),
	}
}

// ForSubsystem returns the cached RNG for name, creating it on first use.
func (p *PartitionedRNG) ForSubsystem(name string) *rand.Rand {
	p.mu.Lock()
	defer p.mu.Unlock()
	if rng, ok := p.subsystems[name]; ok {
		return rng
	}
	seed := int64(p.key)
	if name != SubsystemWorkload {
		seed ^= fnv1a64(name)
	}
	rng := rand.New(rand.NewSource(seed))
	p.subsystems[name] = rng
	return rng
}

// Key returns the SimulationKey used to create this PartitionedRNG.
func (p *PartitionedRNG) Key() SimulationKey {
	return p.key
}

func fnv1a64(s string) int64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return int64(h.Sum64())
}
