package crdt

import (
	"maps"
	"slices"
)

// Ordering describes the causal relation between two version vectors.
type Ordering int

const (
	// Equal - both vectors carry exactly the same counters.
	Equal Ordering = iota
	// Dominates - the left vector has seen everything the right one has, and more.
	Dominates
	// DominatedBy - the right vector has seen everything the left one has, and more.
	DominatedBy
	// Concurrent - each side advanced a counter the other has not seen.
	Concurrent
)

// String returns a human readable name used in logs and audit diffs.
func (o Ordering) String() string {
	switch o {
	case Equal:
		return "equal"
	case Dominates:
		return "dominates"
	case DominatedBy:
		return "dominated_by"
	case Concurrent:
		return "concurrent"
	default:
		return "unknown"
	}
}

// VersionVector maps a device identifier to a monotonically increasing counter.
// Missing entries are treated as zero. Serialized as a plain JSON object.
type VersionVector map[string]uint64

// NewVersionVector creates a vector with a single entry for the given device.
func NewVersionVector(deviceID string) VersionVector {
	return VersionVector{deviceID: 1}
}

// Get returns the counter for the device (0 if the device never edited).
func (v VersionVector) Get(deviceID string) uint64 {
	return v[deviceID]
}

// Increment advances the device's counter by exactly one and returns the new value.
// The receiver must be non-nil.
func (v VersionVector) Increment(deviceID string) uint64 {
	v[deviceID]++
	return v[deviceID]
}

// Clone returns a deep copy. Cloning a nil vector yields an empty, non-nil vector.
func (v VersionVector) Clone() VersionVector {
	out := make(VersionVector, len(v))
	maps.Copy(out, v)
	return out
}

// Merge returns the component-wise maximum of both vectors.
// Neither input is modified.
func (v VersionVector) Merge(other VersionVector) VersionVector {
	out := v.Clone()
	for device, counter := range other {
		if counter > out[device] {
			out[device] = counter
		}
	}
	return out
}

// Sum returns the total version mass: the sum of all counters.
func (v VersionVector) Sum() uint64 {
	var total uint64
	for _, counter := range v {
		total += counter
	}
	return total
}

// Compare determines the causal relation between v and other.
func (v VersionVector) Compare(other VersionVector) Ordering {
	ahead, behind := false, false

	for _, device := range unionKeys(v, other) {
		l, r := v[device], other[device]
		switch {
		case l > r:
			ahead = true
		case l < r:
			behind = true
		}
		if ahead && behind {
			return Concurrent
		}
	}

	switch {
	case ahead:
		return Dominates
	case behind:
		return DominatedBy
	default:
		return Equal
	}
}

// Equal reports whether both vectors carry the same counters (zero entries are ignored).
func (v VersionVector) Equal(other VersionVector) bool {
	return v.Compare(other) == Equal
}

// DominatesOrEqual reports whether v has seen every event recorded in other.
func (v VersionVector) DominatesOrEqual(other VersionVector) bool {
	ord := v.Compare(other)
	return ord == Equal || ord == Dominates
}

// ExclusiveDevices returns, sorted, the devices whose counter in v exceeds the one in other.
func (v VersionVector) ExclusiveDevices(other VersionVector) []string {
	var devices []string
	for device, counter := range v {
		if counter > other[device] {
			devices = append(devices, device)
		}
	}
	slices.Sort(devices)
	return devices
}

// Devices returns the sorted device ids present in the vector.
func (v VersionVector) Devices() []string {
	return slices.Sorted(maps.Keys(v))
}

func unionKeys(a, b VersionVector) []string {
	keys := make([]string, 0, len(a)+len(b))
	for k := range a {
		keys = append(keys, k)
	}
	for k := range b {
		if _, ok := a[k]; !ok {
			keys = append(keys, k)
		}
	}
	return keys
}
