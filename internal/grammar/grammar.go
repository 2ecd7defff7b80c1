// Package grammar defines recognizable phrase patterns and the capability
// interface implemented by everything that produces them.
package grammar

import (
	"errors"
	"fmt"
	"strings"
)

// ErrEmptyPhrase reports a phrase that normalizes to nothing recognizable.
var ErrEmptyPhrase = errors.New("phrase has no recognizable words")

// MatchMode controls how much of a phrase a speaker must say for it to match.
type MatchMode string

const (
	// MatchExact requires the whole phrase (plus an optional choice suffix).
	MatchExact MatchMode = "Exact"
	// MatchOrderedSubset accepts any in-order subset of the phrase words.
	MatchOrderedSubset MatchMode = "OrderedSubset"
	// MatchOrderedSubsetContentRequired is MatchOrderedSubset but a subset
	// made only of function words (the, of, to, ...) is rejected.
	MatchOrderedSubsetContentRequired MatchMode = "OrderedSubsetContentRequired"
	// MatchSubsequence accepts any contiguous run of phrase words.
	MatchSubsequence MatchMode = "Subsequence"
	// MatchSubsequenceContentRequired is MatchSubsequence with the content rule.
	MatchSubsequenceContentRequired MatchMode = "SubsequenceContentRequired"
)

// DefaultSubsetMode is used for dialogue lines when configuration does not
// name a valid mode.
const DefaultSubsetMode = MatchOrderedSubsetContentRequired

var subsetModes = map[string]MatchMode{
	strings.ToLower(string(MatchOrderedSubset)):                MatchOrderedSubset,
	strings.ToLower(string(MatchOrderedSubsetContentRequired)): MatchOrderedSubsetContentRequired,
	strings.ToLower(string(MatchSubsequence)):                  MatchSubsequence,
	strings.ToLower(string(MatchSubsequenceContentRequired)):   MatchSubsequenceContentRequired,
}

// ParseSubsetMode resolves a configured subset matching mode case-insensitively.
func ParseSubsetMode(raw string) (MatchMode, error) {
	mode, ok := subsetModes[strings.ToLower(strings.TrimSpace(raw))]
	if !ok {
		return "", fmt.Errorf("unknown subset matching mode %q", raw)
	}
	return mode, nil
}

// Subset reports whether the mode accepts partial phrases.
func (m MatchMode) Subset() bool {
	return m != MatchExact && m != ""
}

// Contiguous reports whether partial matches must be adjacent phrase words.
func (m MatchMode) Contiguous() bool {
	return m == MatchSubsequence || m == MatchSubsequenceContentRequired
}

// ContentRequired reports whether function-word-only partial matches are rejected.
func (m MatchMode) ContentRequired() bool {
	return m == MatchOrderedSubsetContentRequired || m == MatchSubsequenceContentRequired
}

// Entry is one compiled phrase pattern. Entries are immutable after Compile
// and compared by pointer identity: the source that built an entry keeps the
// payload in its own map keyed by *Entry.
type Entry struct {
	// Name is the phrase as configured, used for logs.
	Name string
	// Phrase is the normalized lower-case word sequence.
	Phrase string
	// Words is Phrase split on spaces.
	Words []string
	// Choices is an optional single trailing word, e.g. a hand suffix.
	Choices []string
	Mode    MatchMode
}

// Option adjusts an Entry during Compile.
type Option func(*Entry)

// WithMode sets the match mode. The default is MatchExact.
func WithMode(mode MatchMode) Option {
	return func(e *Entry) {
		if mode != "" {
			e.Mode = mode
		}
	}
}

// WithOptionalChoice appends an optional trailing choice of one word/phrase.
func WithOptionalChoice(choices ...string) Option {
	return func(e *Entry) {
		for _, choice := range choices {
			choice = strings.ToLower(Normalize(choice))
			if choice != "" {
				e.Choices = append(e.Choices, choice)
			}
		}
	}
}

// Compile normalizes phrase and builds an Entry.
func Compile(phrase string, opts ...Option) (*Entry, error) {
	normalized := strings.ToLower(Normalize(phrase))
	words := strings.Fields(normalized)
	if len(words) == 0 || !hasWordRune(normalized) {
		return nil, fmt.Errorf("compile %q: %w", phrase, ErrEmptyPhrase)
	}

	e := &Entry{
		Name:   strings.TrimSpace(phrase),
		Phrase: strings.Join(words, " "),
		Words:  words,
		Mode:   MatchExact,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

func (e *Entry) String() string {
	if len(e.Choices) == 0 {
		return e.Phrase
	}
	return e.Phrase + " [" + strings.Join(e.Choices, "|") + "]"
}

// Source is anything that can produce the grammar entries it currently owns.
type Source interface {
	Grammars() []*Entry
}

// Flatten concatenates the entries of all sources in order. Nil sources are skipped.
func Flatten(sources ...Source) []*Entry {
	var out []*Entry
	for _, src := range sources {
		if src == nil {
			continue
		}
		out = append(out, src.Grammars()...)
	}
	return out
}
