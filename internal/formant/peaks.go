package formant

import "sort"

// findPeaks returns the indices of local maxima in x, left to right.
//
// A sample is a peak when it is strictly greater than its left neighbour and
// the first differing sample to its right is smaller. Flat tops resolve to
// their middle index (rounded down). The first and last samples are never
// peaks. When distance > 1, peaks closer than distance bins to a taller peak
// are discarded, taller peaks being considered first.
func findPeaks(x []float64, distance int) []int {
	peaks := localMaxima(x)
	if distance > 1 && len(peaks) > 1 {
		peaks = pruneByDistance(x, peaks, distance)
	}
	return peaks
}

func localMaxima(x []float64) []int {
	var peaks []int
	last := len(x) - 1
	i := 1
	for i < last {
		if x[i-1] < x[i] {
			ahead := i + 1
			for ahead < last && x[ahead] == x[i] {
				ahead++
			}
			if x[ahead] < x[i] {
				peaks = append(peaks, (i+ahead-1)/2)
				i = ahead
			}
		}
		i++
	}
	return peaks
}

func pruneByDistance(x []float64, peaks []int, distance int) []int {
	n := len(peaks)
	keep := make([]bool, n)
	for i := range keep {
		keep[i] = true
	}

	// ascending by height; walked from the back so the tallest goes first
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return x[peaks[order[a]]] < x[peaks[order[b]]]
	})

	for i := n - 1; i >= 0; i-- {
		j := order[i]
		if !keep[j] {
			continue
		}
		for k := j - 1; k >= 0 && peaks[j]-peaks[k] < distance; k-- {
			keep[k] = false
		}
		for k := j + 1; k < n && peaks[k]-peaks[j] < distance; k++ {
			keep[k] = false
		}
	}

	out := peaks[:0:0]
	for i, p := range peaks {
		if keep[i] {
			out = append(out, p)
		}
	}
	return out
}
