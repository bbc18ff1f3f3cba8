package policy

import "strings"

// WildcardMatch reports whether value matches pattern using IAM-style
// matching: case-insensitive, '*' matches any sequence, '?' matches a single
// character.
func WildcardMatch(pattern, value string) bool {
	return wildcardMatch(strings.ToLower(pattern), strings.ToLower(value))
}

func wildcardMatch(pattern, value string) bool {
	// Iterative glob match with single-star backtracking.
	var starIdx, matchIdx = -1, 0
	p, v := 0, 0
	for v < len(value) {
		switch {
		case p < len(pattern) && (pattern[p] == '?' || pattern[p] == value[v]):
			p++
			v++
		case p < len(pattern) && pattern[p] == '*':
			starIdx = p
			matchIdx = v
			p++
		case starIdx != -1:
			p = starIdx + 1
			matchIdx++
			v = matchIdx
		default:
			return false
		}
	}
	for p < len(pattern) && pattern[p] == '*' {
		p++
	}
	return p == len(pattern)
}
