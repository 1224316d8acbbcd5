package devstate

import "math"

// Count is the user controlled counter. It never goes below zero or above
// MaxCount.
type Count uint32

// MaxCount is the largest value a Count can hold.
const MaxCount Count = math.MaxInt32

// Add returns c moved by delta, saturating at 0 and MaxCount.
func (c Count) Add(delta int) Count {
	v := int64(c) + int64(delta)
	switch {
	case v < 0:
		return 0
	case v > int64(MaxCount):
		return MaxCount
	default:
		return Count(v)
	}
}
