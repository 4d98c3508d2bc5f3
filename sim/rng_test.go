package sim

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPartitionedRNG_SameKey_SameSequence(t *testing.T) {
	// GIVEN two RNGs built from the same key
	a := NewPartitionedRNG(NewSimulationKey(42))
	b := NewPartitionedRNG(NewSimulationKey(42))

	// WHEN both draw from the triage subsystem
	// THEN the sequences are identical
	for i := 0; i < 20; i++ {
		assert.Equal(t, a.ForSubsystem(SubsystemTriage).Int63(), b.ForSubsystem(SubsystemTriage).Int63())
	}
}

func TestPartitionedRNG_Workload_UsesMasterSeed(t *testing.T) {
	p := NewPartitionedRNG(NewSimulationKey(7))
	want := rand.New(rand.NewSource(7)).Int63()
	assert.Equal(t, want, p.ForSubsystem(SubsystemWorkload).Int63())
	assert.Equal(t, SimulationKey(7), p.Key())
}

func TestPartitionedRNG_SubsystemsAreIsolated(t *testing.T) {
	// GIVEN two RNGs with the same key
	a := NewPartitionedRNG(NewSimulationKey(3))
	b := NewPartitionedRNG(NewSimulationKey(3))

	// WHEN one of them draws heavily from triage first
	for i := 0; i < 100; i++ {
		a.ForSubsystem(SubsystemTriage).Float64()
	}

	// THEN the consult stream is unaffected
	assert.Equal(t, b.ForSubsystem(SubsystemConsult).Int63(), a.ForSubsystem(SubsystemConsult).Int63())
}

func TestPartitionedRNG_ForSubsystem_IsCached(t *testing.T) {
	p := NewPartitionedRNG(NewSimulationKey(1))
	assert.Same(t, p.ForSubsystem("x"), p.ForSubsystem("x"))
}
