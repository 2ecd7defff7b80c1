// Package match scores ASR transcripts against grammar entries.
//
// A spoken word matches a phrase word when their Jaro-Winkler similarity is
// high, with a boost when their Double Metaphone codes agree. Exact entries
// must be said in full, optionally followed by one of their choices. Subset
// entries accept an in-order (or, for subsequence modes, contiguous) part of
// the phrase, scaled down slightly by how much of the phrase was skipped.
package match

import (
	"math"
	"strings"
	"unicode"

	"github.com/antzucaro/matchr"

	"github.com/rbright/dsnbridge/internal/grammar"
)

const defaultMinScore = 0.75

// Option configures a Matcher.
type Option func(*Matcher)

// WithMinScore sets the lowest score Best will return. Default: 0.75.
func WithMinScore(score float64) Option {
	return func(m *Matcher) {
		m.minScore = score
	}
}

// Matcher is read-only after construction and safe for concurrent use.
type Matcher struct {
	minScore float64
}

func New(opts ...Option) *Matcher {
	m := &Matcher{minScore: defaultMinScore}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Candidate is the best entry for one transcript.
type Candidate struct {
	Entry *grammar.Entry
	Score float64
}

// Best returns the highest scoring entry. Ties go to the earlier entry.
func (m *Matcher) Best(transcript string, entries []*grammar.Entry) (Candidate, bool) {
	spoken := Tokens(transcript)
	if len(spoken) == 0 {
		return Candidate{}, false
	}
	spokenCodes := codes(spoken)

	var best Candidate
	for _, entry := range entries {
		if entry == nil {
			continue
		}
		score := scoreEntry(spoken, spokenCodes, entry)
		if score > best.Score {
			best = Candidate{Entry: entry, Score: score}
		}
	}
	if best.Entry == nil || best.Score < m.minScore {
		return Candidate{}, false
	}
	return best, true
}

// Combine folds the ASR confidence into a match score. Servers that do not
// report confidence send 0, in which case the match score stands alone.
func Combine(score, asrConfidence float64) float64 {
	if asrConfidence <= 0 {
		return score
	}
	if asrConfidence > 1 {
		asrConfidence = 1
	}
	return math.Sqrt(score * asrConfidence)
}

// Tokens lower-cases text and splits it into words stripped of punctuation.
func Tokens(text string) []string {
	fields := strings.Fields(strings.ToLower(text))
	out := fields[:0]
	for _, f := range fields {
		f = strings.TrimFunc(f, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}

func scoreEntry(spoken []string, spokenCodes [][]string, entry *grammar.Entry) float64 {
	words := Tokens(entry.Phrase)
	if len(words) == 0 {
		return 0
	}
	wordCodes := codes(words)

	best := positional(spoken, spokenCodes, words, wordCodes)
	for _, choice := range entry.Choices {
		extra := Tokens(choice)
		withChoice := append(append([]string(nil), words...), extra...)
		if s := positional(spoken, spokenCodes, withChoice, codes(withChoice)); s > best {
			best = s
		}
	}
	if !entry.Mode.Subset() || len(spoken) >= len(words) {
		return best
	}

	var (
		sum     float64
		matched []int
	)
	if entry.Mode.Contiguous() {
		sum, matched = bestWindow(spoken, spokenCodes, words, wordCodes)
	} else {
		sum, matched = bestOrdered(spoken, spokenCodes, words, wordCodes)
	}
	if matched == nil {
		return best
	}
	if entry.Mode.ContentRequired() && !hasContentWord(words, matched) {
		return best
	}

	coverage := float64(len(matched)) / float64(len(words))
	if s := (sum / float64(len(spoken))) * (0.9 + 0.1*coverage); s > best {
		best = s
	}
	return best
}

// positional scores spoken against target word for word. Length
// mismatches fall back to whole-string similarity.
func positional(spoken []string, spokenCodes [][]string, target []string, targetCodes [][]string) float64 {
	full := matchr.JaroWinkler(strings.Join(spoken, " "), strings.Join(target, " "), false)
	if len(spoken) != len(target) {
		return full * lengthPenalty(len(spoken), len(target))
	}

	var sum float64
	for i := range spoken {
		sum += tokenScore(spoken[i], spokenCodes[i], target[i], targetCodes[i])
	}
	if s := sum / float64(len(spoken)); s > full {
		return s
	}
	return full
}

func lengthPenalty(a, b int) float64 {
	diff := a - b
	if diff < 0 {
		diff = -diff
	}
	return math.Pow(0.9, float64(diff))
}

// bestOrdered aligns every spoken word to a distinct phrase word in order,
// maximizing the summed token score.
func bestOrdered(spoken []string, spokenCodes [][]string, words []string, wordCodes [][]string) (float64, []int) {
	n, m := len(spoken), len(words)
	const unreachable = -1.0

	dp := make([][]float64, n+1)
	for i := range dp {
		dp[i] = make([]float64, m+1)
		for j := range dp[i] {
			if i > 0 {
				dp[i][j] = unreachable
			}
		}
	}
	for i := 1; i <= n; i++ {
		for j := i; j <= m; j++ {
			skip := dp[i][j-1]
			take := unreachable
			if dp[i-1][j-1] != unreachable {
				take = dp[i-1][j-1] + tokenScore(spoken[i-1], spokenCodes[i-1], words[j-1], wordCodes[j-1])
			}
			dp[i][j] = math.Max(skip, take)
		}
	}
	if dp[n][m] == unreachable {
		return 0, nil
	}

	matched := make([]int, n)
	i, j := n, m
	for i > 0 {
		if dp[i][j] == dp[i][j-1] && j-1 >= i {
			j--
			continue
		}
		matched[i-1] = j - 1
		i--
		j--
	}
	return dp[n][m], matched
}

// bestWindow finds the contiguous run of phrase words that scores highest.
func bestWindow(spoken []string, spokenCodes [][]string, words []string, wordCodes [][]string) (float64, []int) {
	n := len(spoken)
	bestSum := -1.0
	bestStart := -1
	for start := 0; start+n <= len(words); start++ {
		var sum float64
		for i := 0; i < n; i++ {
			sum += tokenScore(spoken[i], spokenCodes[i], words[start+i], wordCodes[start+i])
		}
		if sum > bestSum {
			bestSum, bestStart = sum, start
		}
	}
	if bestStart < 0 {
		return 0, nil
	}
	matched := make([]int, n)
	for i := range matched {
		matched[i] = bestStart + i
	}
	return bestSum, matched
}

func tokenScore(a string, aCodes []string, b string, bCodes []string) float64 {
	if a == b {
		return 1
	}
	score := matchr.JaroWinkler(a, b, false)
	if overlaps(aCodes, bCodes) {
		score = (1 + score) / 2
	}
	return score
}

func codes(tokens []string) [][]string {
	out := make([][]string, len(tokens))
	for i, t := range tokens {
		p, s := matchr.DoubleMetaphone(t)
		if p != "" {
			out[i] = append(out[i], p)
		}
		if s != "" && s != p {
			out[i] = append(out[i], s)
		}
	}
	return out
}

func overlaps(a, b []string) bool {
	for _, x := range a {
		for _, y := range b {
			if x == y {
				return true
			}
		}
	}
	return false
}
