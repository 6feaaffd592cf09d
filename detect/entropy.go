package detect

import "math"

// ShannonEntropy returns the Shannon entropy in bits of the character
// distribution of s. The empty string has zero entropy.
func ShannonEntropy(s string) float64 {
	if s == "" {
		return 0
	}
	counts := make(map[rune]int)
	total := 0
	for _, r := range s {
		counts[r]++
		total++
	}
	n := float64(total)
	entropy := 0.0
	for _, c := range counts {
		p := float64(c) / n
		entropy -= p * math.Log2(p)
	}
	return entropy
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
