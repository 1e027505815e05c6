package dd

// Iterator yields the indices 0..n-1 (or a subset of them) in the order the
// corresponding candidates are tried.
type Iterator func(n int) []int

// Forward tries candidates first to last.
func Forward(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

// Backward tries candidates last to first.
func Backward(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = n - 1 - i
	}
	return out
}

// Skip tries no candidate, disabling a phase.
func Skip(int) []int {
	return nil
}

// Combined merges a subset and a complement iterator into one sequence.
// Subset i is yielded as i, complement i as -i-1.
func Combined(subsetFirst bool, subsets, complements Iterator) Iterator {
	return func(n int) []int {
		s := subsets(n)
		c := complements(n)
		out := make([]int, 0, len(s)+len(c))
		encodedComplements := make([]int, len(c))
		for k, i := range c {
			encodedComplements[k] = -i - 1
		}
		if subsetFirst {
			out = append(out, s...)
			return append(out, encodedComplements...)
		}
		out = append(out, encodedComplements...)
		return append(out, s...)
	}
}
