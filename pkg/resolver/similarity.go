package resolver

import "unicode/utf8"

// tokenMatchRatio is the similarity at which two words count as the same word
// ("BRICKS" and "BRICK", "ALUMINA" and "ALUMNA").
const tokenMatchRatio = 0.8

// similarity is the raw fuzzy score of two normalized names: the mean of the
// character edit ratio and the soft token overlap.
func similarity(a string, aTokens []string, b string, bTokens []string) float64 {
	return 0.5*editRatio(a, b) + 0.5*tokenOverlap(aTokens, bTokens)
}

// editRatio is 1 - levenshtein/maxLen over runes.
func editRatio(a, b string) float64 {
	la, lb := utf8.RuneCountInString(a), utf8.RuneCountInString(b)
	maxLen := max(la, lb)
	if maxLen == 0 {
		return 1
	}
	return 1 - float64(levenshteinDistance([]rune(a), []rune(b)))/float64(maxLen)
}

// tokenOverlap is the Dice coefficient over words, where each word of a may
// pair with one near-identical word of b.
func tokenOverlap(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	used := make([]bool, len(b))
	matched := 0
	for _, ta := range a {
		for j, tb := range b {
			if used[j] {
				continue
			}
			if ta == tb || editRatio(ta, tb) >= tokenMatchRatio {
				used[j] = true
				matched++
				break
			}
		}
	}
	return 2 * float64(matched) / float64(len(a)+len(b))
}

// levenshteinDistance calculates the edit distance between two strings.
func levenshteinDistance(s1, s2 []rune) int {
	if len(s1) == 0 {
		return len(s2)
	}
	if len(s2) == 0 {
		return len(s1)
	}

	// Use a single row of the DP table for space efficiency
	prev := make([]int, len(s2)+1)
	curr := make([]int, len(s2)+1)

	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(s1); i++ {
		curr[0] = i
		for j := 1; j <= len(s2); j++ {
			cost := 0
			if s1[i-1] != s2[j-1] {
				cost = 1
			}
			curr[j] = min(
				curr[j-1]+1,    // insertion
				prev[j]+1,      // deletion
				prev[j-1]+cost, // substitution
			)
		}
		prev, curr = curr, prev
	}

	return prev[len(s2)]
}

// sharedWords counts distinct words longer than two characters present in both.
func sharedWords(a, b []string) int {
	set := make(map[string]struct{}, len(a))
	for _, t := range a {
		if utf8.RuneCountInString(t) > 2 {
			set[t] = struct{}{}
		}
	}
	n := 0
	for _, t := range b {
		if _, ok := set[t]; ok {
			n++
			delete(set, t)
		}
	}
	return n
}

// lengthRatio is len(shorter)/len(longer) in runes.
func lengthRatio(a, b string) float64 {
	la, lb := utf8.RuneCountInString(a), utf8.RuneCountInString(b)
	if la == 0 || lb == 0 {
		return 0
	}
	return float64(min(la, lb)) / float64(max(la, lb))
}

func sharesAny(a, b []string) bool {
	for _, x := range a {
		for _, y := range b {
			if x == y {
				return true
			}
		}
	}
	return false
}
