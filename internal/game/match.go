package game

import "strings"

// IsGuessAcceptable reports whether guess should count as a correct answer
// for target. Comparison is case-insensitive and whitespace-trimmed, and
// allows a small number of typos scaled to the length of the target:
// up to 2 runes exact, up to 5 runes one edit, up to 9 two, up to 14 three,
// longer targets four. Edits are counted with the Damerau-Levenshtein
// distance, so a transposition costs one.
func IsGuessAcceptable(target, guess string) bool {
	t := strings.ToLower(strings.TrimSpace(target))
	g := strings.ToLower(strings.TrimSpace(guess))
	if t == "" || g == "" {
		return false
	}
	if t == g {
		return true
	}
	return damerauLevenshtein(t, g) <= editThreshold(t)
}

func editThreshold(target string) int {
	switch n := len([]rune(target)); {
	case n <= 2:
		return 0
	case n <= 5:
		return 1
	case n <= 9:
		return 2
	case n <= 14:
		return 3
	default:
		return 4
	}
}

// damerauLevenshtein computes the optimal string alignment distance between
// a and b over runes.
func damerauLevenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	la, lb := len(ra), len(rb)
	if la == 0 {
		return lb
	}
	if lb == 0 {
		return la
	}

	prev2 := make([]int, lb+1)
	prev := make([]int, lb+1)
	curr := make([]int, lb+1)
	for j := 0; j <= lb; j++ {
		prev[j] = j
	}

	for i := 1; i <= la; i++ {
		curr[0] = i
		for j := 1; j <= lb; j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min(curr[j-1]+1, prev[j]+1, prev[j-1]+cost)
			if i > 1 && j > 1 && ra[i-1] == rb[j-2] && ra[i-2] == rb[j-1] {
				curr[j] = min(curr[j], prev2[j-2]+1)
			}
		}
		prev2, prev, curr = prev, curr, prev2
	}
	return prev[lb]
}
