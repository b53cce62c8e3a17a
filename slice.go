package queue

import "math"

// Open marks an omitted start or stop bound in Slice, like an empty slot
// in Python's a[start:stop:step].
const Open = math.MinInt

// sliceIndices returns the positions selected by start:stop:step in a
// sequence of the given length.
func sliceIndices(length, start, stop, step int) ([]int, error) {
	if step == 0 {
		return nil, ErrZeroStep
	}
	lower, upper := 0, length
	if step < 0 {
		lower, upper = -1, length-1
	}
	clamp := func(i, def int) int {
		if i == Open {
			return def
		}
		if i < 0 {
			i += length
			if i < lower {
				return lower
			}
			return i
		}
		if i > upper {
			return upper
		}
		return i
	}
	if step > 0 {
		start, stop = clamp(start, lower), clamp(stop, upper)
	} else {
		start, stop = clamp(start, upper), clamp(stop, lower)
	}
	// count the positions first; stepping past stop can overflow
	n := 0
	if step > 0 && start < stop {
		n = (stop-start-1)/step + 1
	} else if step < 0 && start > stop {
		n = (stop-start+1)/step + 1
	}
	res := make([]int, n)
	for k := range res {
		res[k] = start + k*step
	}
	return res, nil
}

func normalizeIndex(index, length int) (int, error) {
	i := index
	if i < 0 {
		i += length
	}
	if i < 0 || i >= length {
		return 0, indexError(index)
	}
	return i, nil
}
