package transcribe

import (
	"strings"
	"unicode"
)

// EditStats counts the word-level edits that turn one text into another.
type EditStats struct {
	Rate          float64 // edits / RefWords; 0 means identical
	Substitutions int
	Insertions    int
	Deletions     int
	RefWords      int
}

// Edits is the total number of word edits.
func (e EditStats) Edits() int {
	return e.Substitutions + e.Insertions + e.Deletions
}

// WordEditRate measures how far hypothesis is from reference at word level.
// Against a ground truth this is the word error rate; between a raw and a
// corrected transcript it is how much the correction rewrote.
// Both texts are lowercased with punctuation stripped, so it works for any
// script unicode classifies.
func WordEditRate(reference, hypothesis string) EditStats {
	ref := normalizeWords(reference)
	hyp := normalizeWords(hypothesis)

	n, m := len(ref), len(hyp)
	if n == 0 {
		return EditStats{Insertions: m}
	}

	// d[i][j] is the edit distance between ref[:i] and hyp[:j].
	d := make([][]int, n+1)
	for i := range d {
		d[i] = make([]int, m+1)
		d[i][0] = i
	}
	for j := 0; j <= m; j++ {
		d[0][j] = j
	}
	for i := 1; i <= n; i++ {
		for j := 1; j <= m; j++ {
			if ref[i-1] == hyp[j-1] {
				d[i][j] = d[i-1][j-1]
				continue
			}
			d[i][j] = 1 + min(d[i-1][j-1], d[i-1][j], d[i][j-1])
		}
	}

	var st EditStats
	i, j := n, m
	for i > 0 || j > 0 {
		switch {
		case i > 0 && j > 0 && ref[i-1] == hyp[j-1]:
			i--
			j--
		case i > 0 && j > 0 && d[i][j] == d[i-1][j-1]+1:
			st.Substitutions++
			i--
			j--
		case i > 0 && d[i][j] == d[i-1][j]+1:
			st.Deletions++
			i--
		default:
			st.Insertions++
			j--
		}
	}

	st.RefWords = n
	st.Rate = float64(st.Edits()) / float64(n)
	return st
}

// normalizeWords lowercases text, strips punctuation, and splits into words.
func normalizeWords(s string) []string {
	s = strings.ToLower(s)
	s = strings.Map(func(r rune) rune {
		if unicode.IsPunct(r) {
			return -1
		}
		return r
	}, s)
	return strings.Fields(s)
}
