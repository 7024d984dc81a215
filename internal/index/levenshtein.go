package index

// levenshteinDistance returns the minimum number of single-rune insertions, deletions
// or substitutions turning a into b.
func levenshteinDistance(a, b string) int {
	if a == b {
		return 0
	}
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

// withinDistance reports whether the Levenshtein distance between a and b is at most max.
// It gives up as soon as every cell of a row exceeds max.
func withinDistance(a, b []rune, max int) bool {
	if d := len(a) - len(b); d > max || -d > max {
		return false
	}
	if len(a) == 0 || len(b) == 0 {
		return true
	}
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		curr[0] = i
		rowMin := curr[0]
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
			if curr[j] < rowMin {
				rowMin = curr[j]
			}
		}
		if rowMin > max {
			return false
		}
		prev, curr = curr, prev
	}
	return prev[len(b)] <= max
}

// hasPrefix reports whether candidate starts with the first n runes of term.
func hasPrefix(term, candidate []rune, n int) bool {
	if n <= 0 {
		return true
	}
	if len(term) < n {
		n = len(term)
	}
	if len(candidate) < n {
		return false
	}
	for i := 0; i < n; i++ {
		if term[i] != candidate[i] {
			return false
		}
	}
	return true
}
