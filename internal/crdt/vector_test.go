package crdt

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersionVector_Compare(t *testing.T) {
	tests := []struct {
		name  string
		left  VersionVector
		right VersionVector
		want  Ordering
	}{
		{name: "both empty", left: VersionVector{}, right: VersionVector{}, want: Equal},
		{name: "nil equals empty", left: nil, right: VersionVector{}, want: Equal},
		{name: "identical", left: VersionVector{"A": 2, "B": 1}, right: VersionVector{"A": 2, "B": 1}, want: Equal},
		{name: "zero entry ignored", left: VersionVector{"A": 1, "B": 0}, right: VersionVector{"A": 1}, want: Equal},
		{name: "left ahead on one device", left: VersionVector{"A": 2}, right: VersionVector{"A": 1}, want: Dominates},
		{name: "left has extra device", left: VersionVector{"A": 1, "B": 1}, right: VersionVector{"A": 1}, want: Dominates},
		{name: "right ahead", left: VersionVector{"A": 1}, right: VersionVector{"A": 1, "B": 3}, want: DominatedBy},
		{name: "concurrent", left: VersionVector{"A": 2}, right: VersionVector{"A": 1, "B": 1}, want: Concurrent},
		{name: "concurrent disjoint", left: VersionVector{"A": 1}, right: VersionVector{"B": 1}, want: Concurrent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.left.Compare(tt.right))
		})
	}
}

func TestVersionVector_CompareIsAntisymmetric(t *testing.T) {
	a := VersionVector{"A": 3, "B": 1}
	b := VersionVector{"A": 1, "B": 1}

	assert.Equal(t, Dominates, a.Compare(b))
	assert.Equal(t, DominatedBy, b.Compare(a))
	assert.True(t, a.DominatesOrEqual(b))
	assert.False(t, b.DominatesOrEqual(a))
}

func TestVersionVector_Increment(t *testing.T) {
	v := NewVersionVector("A")

	assert.Equal(t, uint64(2), v.Increment("A"))
	assert.Equal(t, uint64(1), v.Increment("B"))
	assert.Equal(t, VersionVector{"A": 2, "B": 1}, v)
}

func TestVersionVector_MergeIsComponentWiseMax(t *testing.T) {
	a := VersionVector{"A": 2}
	b := VersionVector{"A": 1, "B": 1}

	merged := a.Merge(b)

	assert.Equal(t, VersionVector{"A": 2, "B": 1}, merged)
	assert.Equal(t, merged, b.Merge(a), "merge must be commutative")
	// Входные векторы не изменяются
	assert.Equal(t, VersionVector{"A": 2}, a)
	assert.Equal(t, VersionVector{"A": 1, "B": 1}, b)
	assert.True(t, merged.DominatesOrEqual(a))
	assert.True(t, merged.DominatesOrEqual(b))
}

func TestVersionVector_SumAndExclusiveDevices(t *testing.T) {
	a := VersionVector{"A": 2, "C": 4}
	b := VersionVector{"A": 1, "B": 1, "C": 4}

	assert.Equal(t, uint64(6), a.Sum())
	assert.Equal(t, uint64(6), b.Sum())
	assert.Equal(t, []string{"A"}, a.ExclusiveDevices(b))
	assert.Equal(t, []string{"B"}, b.ExclusiveDevices(a))
	assert.Empty(t, a.ExclusiveDevices(a))
}

func TestVersionVector_CloneIsDeep(t *testing.T) {
	v := VersionVector{"A": 1}
	c := v.Clone()
	c.Increment("A")

	assert.Equal(t, uint64(1), v.Get("A"))
	assert.NotNil(t, VersionVector(nil).Clone())
}

func TestVersionVector_JSONLayout(t *testing.T) {
	v := VersionVector{"device-b": 1, "device-a": 2}

	data, err := json.Marshal(v)
	require.NoError(t, err)
	assert.JSONEq(t, `{"device-a":2,"device-b":1}`, string(data))

	var decoded VersionVector
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, v, decoded)
}

func TestVersionVector_Devices(t *testing.T) {
	v := VersionVector{"b": 1, "a": 1, "c": 1}
	assert.Equal(t, []string{"a", "b", "c"}, v.Devices())
}
