// Package fuzzy reconciles free-text model output with a fixed vocabulary.
//
// Matching is case-insensitive. An exact match always wins; otherwise the
// vocabulary entry with the highest partial-ratio score is returned when it
// reaches Threshold. Scores follow fuzzywuzzy's partial_ratio: difflib
// matching blocks anchor the windows that are compared.
package fuzzy

import (
	"math"
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Threshold is the minimum partial-ratio score accepted as a match.
const Threshold = 80

// Match returns the vocabulary entry that best matches candidate. The second
// result is false when candidate is blank, the vocabulary is empty, or no
// entry scores at least Threshold. Ties keep the earliest entry.
func Match(candidate string, vocabulary []string) (string, bool) {
	target := normalize(candidate)
	if target == "" || len(vocabulary) == 0 {
		return "", false
	}

	for _, entry := range vocabulary {
		if normalize(entry) == target {
			return entry, true
		}
	}

	best, bestScore := -1, -1
	for i, entry := range vocabulary {
		score := PartialRatio(target, normalize(entry))
		if score > bestScore {
			best, bestScore = i, score
		}
	}
	if bestScore >= Threshold {
		return vocabulary[best], true
	}
	return "", false
}

// PartialRatio scores how well the shorter string fits inside the longer one,
// from 0 to 100. Each matching block between the two anchors a window of the
// longer string; windows running past its end are compared short.
func PartialRatio(a, b string) int {
	if a == b {
		return 100
	}
	shorter, longer := []rune(a), []rune(b)
	if len(shorter) == 0 || len(longer) == 0 {
		return 0
	}
	if len(shorter) > len(longer) {
		shorter, longer = longer, shorter
	}

	best := 0.0
	for _, m := range newMatcher(shorter, longer).matchingBlocks() {
		start := m.j - m.i
		if start < 0 {
			start = 0
		}
		end := start + len(shorter)
		if end > len(longer) {
			end = len(longer)
		}
		r := newMatcher(shorter, longer[start:end]).ratio()
		if r > .995 {
			return 100
		}
		best = math.Max(best, r)
	}
	return percent(best)
}

// Ratio is difflib's 2*M/T similarity as a rounded percentage.
func Ratio(a, b string) int {
	if a == b {
		return 100
	}
	if a == "" || b == "" {
		return 0
	}
	return percent(newMatcher([]rune(a), []rune(b)).ratio())
}

// percent rounds half to even.
func percent(r float64) int {
	return int(math.RoundToEven(100 * r))
}

// match is a block a[i:i+size] == b[j:j+size].
type match struct {
	i, j, size int
}

// matcher is difflib.SequenceMatcher without a junk function.
type matcher struct {
	a, b []rune
	b2j  map[rune][]int
}

func newMatcher(a, b []rune) *matcher {
	m := &matcher{a: a, b: b, b2j: make(map[rune][]int)}
	for j, r := range b {
		m.b2j[r] = append(m.b2j[r], j)
	}
	// Popular elements of long sequences are not indexed.
	if n := len(b); n >= 200 {
		ntest := n/100 + 1
		for r, idxs := range m.b2j {
			if len(idxs) > ntest {
				delete(m.b2j, r)
			}
		}
	}
	return m
}

func (m *matcher) findLongestMatch(alo, ahi, blo, bhi int) match {
	besti, bestj, bestsize := alo, blo, 0
	j2len := map[int]int{}
	for i := alo; i < ahi; i++ {
		newj2len := map[int]int{}
		for _, j := range m.b2j[m.a[i]] {
			if j < blo {
				continue
			}
			if j >= bhi {
				break
			}
			k := j2len[j-1] + 1
			newj2len[j] = k
			if k > bestsize {
				besti, bestj, bestsize = i-k+1, j-k+1, k
			}
		}
		j2len = newj2len
	}

	for besti > alo && bestj > blo && m.a[besti-1] == m.b[bestj-1] {
		besti, bestj, bestsize = besti-1, bestj-1, bestsize+1
	}
	for besti+bestsize < ahi && bestj+bestsize < bhi && m.a[besti+bestsize] == m.b[bestj+bestsize] {
		bestsize++
	}
	return match{besti, bestj, bestsize}
}

// matchingBlocks returns the non-adjacent blocks in order, ending with the
// sentinel {len(a), len(b), 0}.
func (m *matcher) matchingBlocks() []match {
	la, lb := len(m.a), len(m.b)
	queue := [][4]int{{0, la, 0, lb}}
	var blocks []match
	for len(queue) > 0 {
		q := queue[len(queue)-1]
		queue = queue[:len(queue)-1]
		alo, ahi, blo, bhi := q[0], q[1], q[2], q[3]

		x := m.findLongestMatch(alo, ahi, blo, bhi)
		if x.size == 0 {
			continue
		}
		blocks = append(blocks, x)
		if alo < x.i && blo < x.j {
			queue = append(queue, [4]int{alo, x.i, blo, x.j})
		}
		if x.i+x.size < ahi && x.j+x.size < bhi {
			queue = append(queue, [4]int{x.i + x.size, ahi, x.j + x.size, bhi})
		}
	}
	sort.Slice(blocks, func(p, q int) bool {
		if blocks[p].i != blocks[q].i {
			return blocks[p].i < blocks[q].i
		}
		return blocks[p].j < blocks[q].j
	})

	out := make([]match, 0, len(blocks)+1)
	var cur match
	for _, b := range blocks {
		if cur.i+cur.size == b.i && cur.j+cur.size == b.j {
			cur.size += b.size
			continue
		}
		if cur.size > 0 {
			out = append(out, cur)
		}
		cur = b
	}
	if cur.size > 0 {
		out = append(out, cur)
	}
	return append(out, match{la, lb, 0})
}

func (m *matcher) ratio() float64 {
	total := len(m.a) + len(m.b)
	if total == 0 {
		return 1
	}
	matches := 0
	for _, b := range m.matchingBlocks() {
		matches += b.size
	}
	return 2 * float64(matches) / float64(total)
}

func normalize(s string) string {
	// Casers carry state, so one is built per call.
	return cases.Fold().String(norm.NFC.String(strings.TrimSpace(s)))
}
