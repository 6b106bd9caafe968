// Package relevance picks the stored memories most relevant to an incoming
// message. One Aho-Corasick automaton is compiled from the keywords of all
// memories and scanned over the message text in O(n).
package relevance

import (
	"sort"
	"strings"
	"unicode"

	"github.com/coregx/ahocorasick"
	"github.com/orsinium-labs/stopwords"

	"github.com/kittclouds/memkitt/internal/store"
)

// english is the robust stopword list used to drop filler words from
// memory contents before they become match patterns.
var english = stopwords.MustGet("en")

// Tokens shorter than this never become keywords.
const minKeywordLen = 3

// canonicalize folds text to lowercase, keeps letters and digits, and
// collapses everything else into single spaces. The SAME function is applied
// to patterns and to scanned messages; matching breaks if they diverge.
func canonicalize(s string) string {
	var out strings.Builder
	out.Grow(len(s))

	lastWasSpace := true
	for _, ch := range s {
		c := unicode.ToLower(ch)
		if unicode.IsLetter(c) || unicode.IsDigit(c) {
			out.WriteRune(c)
			lastWasSpace = false
		} else if !lastWasSpace {
			out.WriteByte(' ')
			lastWasSpace = true
		}
	}
	return strings.TrimRight(out.String(), " ")
}

// Keywords extracts the match-worthy tokens of a memory's content:
// canonicalized, stopwords removed, short tokens removed.
func Keywords(content string) []string {
	var words []string
	for _, tok := range strings.Fields(canonicalize(content)) {
		if len(tok) < minKeywordLen {
			continue
		}
		if english.Contains(tok) {
			continue
		}
		words = append(words, tok)
	}
	return words
}

// Scored is a memory paired with the number of distinct keywords that hit.
type Scored struct {
	Memory store.Memory
	Score  int
}

// Matcher scans message text against the keywords of a memory set.
type Matcher struct {
	ac *ahocorasick.Automaton

	// Pattern index -> indexes into memories (keywords may be shared)
	patternToMems [][]int

	patterns []string
	memories []store.Memory
}

// Build compiles a Matcher from a memory set, typically the result of
// store.Latest. Memories whose content yields no keywords simply never match.
func Build(memories []store.Memory) (*Matcher, error) {
	m := &Matcher{memories: memories}

	index := make(map[string]int)
	for i, mem := range memories {
		for _, kw := range Keywords(mem.Content) {
			idx, ok := index[kw]
			if !ok {
				idx = len(m.patterns)
				index[kw] = idx
				m.patterns = append(m.patterns, kw)
				m.patternToMems = append(m.patternToMems, nil)
			}
			m.patternToMems[idx] = appendUnique(m.patternToMems[idx], i)
		}
	}

	if len(m.patterns) == 0 {
		return m, nil
	}

	ac, err := ahocorasick.NewBuilder().
		AddStrings(m.patterns).
		SetMatchKind(ahocorasick.LeftmostLongest).
		SetPrefilter(true).
		Build()
	if err != nil {
		return nil, err
	}
	m.ac = ac

	return m, nil
}

// Match scores every memory by the distinct keywords found in text and
// returns at most limit results, best first. Ties go to the more recently
// created memory, then the higher id. A message that hits nothing yields an
// empty result, never an error.
func (m *Matcher) Match(text string, limit int) []Scored {
	if m.ac == nil {
		return nil
	}

	haystack := []byte(canonicalize(text))

	// memory index -> set of pattern ids hit
	hits := make(map[int]map[int]bool)
	for _, match := range m.ac.FindAllOverlapping(haystack) {
		// Keywords are whole tokens; reject matches inside longer words
		// ("tea" must not hit "steam").
		if !wholeToken(haystack, match.Start, match.End) {
			continue
		}
		for _, memIdx := range m.patternToMems[match.PatternID] {
			if hits[memIdx] == nil {
				hits[memIdx] = make(map[int]bool)
			}
			hits[memIdx][match.PatternID] = true
		}
	}

	scored := make([]Scored, 0, len(hits))
	for memIdx, patterns := range hits {
		scored = append(scored, Scored{Memory: m.memories[memIdx], Score: len(patterns)})
	}

	sort.Slice(scored, func(i, j int) bool {
		a, b := scored[i], scored[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Memory.CreatedAt != b.Memory.CreatedAt {
			return a.Memory.CreatedAt > b.Memory.CreatedAt
		}
		return a.Memory.ID > b.Memory.ID
	})

	if limit > 0 && len(scored) > limit {
		scored = scored[:limit]
	}
	return scored
}

// wholeToken reports whether the span [start, end) sits on token boundaries
// of the canonicalized haystack.
func wholeToken(haystack []byte, start, end int) bool {
	if start > 0 && haystack[start-1] != ' ' {
		return false
	}
	if end < len(haystack) && haystack[end] != ' ' {
		return false
	}
	return true
}

func appendUnique(ids []int, id int) []int {
	for _, existing := range ids {
		if existing == id {
			return ids
		}
	}
	return append(ids, id)
}
