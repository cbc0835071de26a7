// Package match scores how well a candidate label matches a target name.
//
// Remote search results are frequently truncated, reordered, or decorated
// with rank badges; a character-overlap ratio tolerates all of that without
// needing tokenized or phonetic matching.
package match

import "strings"

// Similarity returns a score in [0,1] comparing a target string to a
// candidate label. Both inputs are lower-cased and stripped of commas and
// periods first. The score is the Ratcliff/Obershelp matching-blocks ratio:
// 2*M/T where M is the total length of matched blocks and T the combined
// length of both cleaned strings.
func Similarity(target, label string) float64 {
	a := []rune(Clean(target))
	b := []rune(Clean(label))

	if len(a) == 0 && len(b) == 0 {
		return 1.0
	}
	if len(a) == 0 || len(b) == 0 {
		return 0.0
	}

	m := matchedLength(a, b)
	return 2.0 * float64(m) / float64(len(a)+len(b))
}

// Clean lower-cases s and removes commas and periods.
func Clean(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, ",", "")
	s = strings.ReplaceAll(s, ".", "")
	return s
}

// matchedLength sums the lengths of all matching blocks: the longest common
// block, then recursively the longest blocks to its left and right.
func matchedLength(a, b []rune) int {
	ai, bi, size := longestBlock(a, b)
	if size == 0 {
		return 0
	}
	total := size
	total += matchedLength(a[:ai], b[:bi])
	total += matchedLength(a[ai+size:], b[bi+size:])
	return total
}

// longestBlock finds the longest common contiguous block of a and b,
// returning its start offsets and length. Ties resolve to the earliest
// position in a, then in b, which keeps the score deterministic.
func longestBlock(a, b []rune) (ai, bi, size int) {
	if len(a) == 0 || len(b) == 0 {
		return 0, 0, 0
	}

	// lengths[j] is the length of the common suffix ending at a[i-1], b[j-1]
	// for the previous row i-1.
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)

	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				cur[j] = prev[j-1] + 1
				if cur[j] > size {
					size = cur[j]
					ai = i - size
					bi = j - size
				}
			} else {
				cur[j] = 0
			}
		}
		prev, cur = cur, prev
	}
	return ai, bi, size
}

// Slugify turns a business name into a deterministic source key: lower-case,
// spaces to hyphens, everything outside [a-z0-9-] dropped.
func Slugify(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	name = strings.ReplaceAll(name, " ", "-")

	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// NormalizeDomain reduces a website URL or hint to a bare host for
// comparison: scheme and "www." stripped, path removed, lower-cased.
func NormalizeDomain(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.TrimPrefix(s, "https://")
	s = strings.TrimPrefix(s, "http://")
	s = strings.TrimPrefix(s, "//")
	s = strings.TrimPrefix(s, "www.")
	if idx := strings.IndexAny(s, "/?#"); idx >= 0 {
		s = s[:idx]
	}
	return s
}
