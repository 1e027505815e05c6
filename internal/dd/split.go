package dd

// Splitter cuts config into at most n non-empty, order-preserving parts.
type Splitter func(config []int, n int) [][]int

// Zeller splits like the original ddmin: each part takes an equal share of
// what is left, so longer parts come last.
func Zeller(config []int, n int) [][]int {
	n = clampParts(len(config), n)
	subsets := make([][]int, 0, n)
	start := 0
	for i := 0; i < n; i++ {
		size := (len(config) - start) / (n - i)
		if size > 0 {
			subsets = append(subsets, config[start:start+size])
		}
		start += size
	}
	return subsets
}

// Balanced splits into parts whose sizes differ by at most one.
func Balanced(config []int, n int) [][]int {
	n = clampParts(len(config), n)
	subsets := make([][]int, 0, n)
	for i := 0; i < n; i++ {
		lo := len(config) * i / n
		hi := len(config) * (i + 1) / n
		if hi > lo {
			subsets = append(subsets, config[lo:hi])
		}
	}
	return subsets
}

func clampParts(length, n int) int {
	if n > length {
		n = length
	}
	if n < 1 {
		n = 1
	}
	return n
}
