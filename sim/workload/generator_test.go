package workload

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var hospitalDepts = []string{"internal_medicine", "surgery", "gastro", "neuro"}

func TestGeneratePatients_Deterministic(t *testing.T) {
	// GIVEN the same seed and departments
	a, err := GeneratePatients(20, 99, hospitalDepts)
	require.NoError(t, err)
	b, err := GeneratePatients(20, 99, []string{"neuro", "gastro", "surgery", "internal_medicine"})
	require.NoError(t, err)

	// THEN the cases are identical regardless of department order
	assert.Equal(t, a, b)
}

func TestGeneratePatients_Shape(t *testing.T) {
	patients, err := GeneratePatients(50, 1, hospitalDepts)
	require.NoError(t, err)
	require.Len(t, patients, 50)

	known := map[string]bool{}
	for _, d := range hospitalDepts {
		known[d] = true
	}
	for i, p := range patients {
		assert.Equal(t, i, indexOf(t, p.ID))
		assert.True(t, known[p.Department], p.Department)
		assert.GreaterOrEqual(t, p.Priority, 3)
		assert.LessOrEqual(t, p.Priority, 10)
		assert.NotEmpty(t, p.Symptoms)
		assert.Equal(t, Classify(p.Info.ChiefComplaint) == AcuityUrgent, p.Priority >= 9,
			"%s: %q -> %d", p.ID, p.Info.ChiefComplaint, p.Priority)
	}
}

func TestGeneratePatients_DifferentSeedsDiffer(t *testing.T) {
	a, _ := GeneratePatients(10, 1, hospitalDepts)
	b, _ := GeneratePatients(10, 2, hospitalDepts)
	assert.NotEqual(t, a, b)
}

func TestGeneratePatients_EdgeCases(t *testing.T) {
	none, err := GeneratePatients(0, 1, hospitalDepts)
	assert.NoError(t, err)
	assert.Empty(t, none)

	_, err = GeneratePatients(3, 1, nil)
	assert.Error(t, err)

	generic, err := GeneratePatients(5, 1, []string{"dermatology"})
	require.NoError(t, err)
	for _, p := range generic {
		assert.Equal(t, "dermatology", p.Department)
		assert.NotEmpty(t, p.Info.ChiefComplaint)
	}
}

func indexOf(t *testing.T, id string) int {
	t.Helper()
	var n int
	_, err := fmt.Sscanf(id, "patient_%d", &n)
	require.NoError(t, err)
	return n
}
