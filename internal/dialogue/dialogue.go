// Package dialogue builds the grammar set for one in-game conversation menu.
package dialogue

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/rbright/dsnbridge/internal/grammar"
)

// GoodbyeIndex is the line index reported for a configured goodbye phrase.
const GoodbyeIndex = -2

// ErrInvalidID reports a dialogue header whose id is not an integer.
var ErrInvalidID = errors.New("invalid dialogue id")

// Options configures Parse.
type Options struct {
	GoodbyePhrases []string
	Mode           grammar.MatchMode
	Logger         *slog.Logger
}

// List is the grammar set of one open dialogue menu.
type List struct {
	ID      int64
	entries []*grammar.Entry
	index   map[*grammar.Entry]int
}

// Parse builds a List from "<id>|<line>|<line>...".
//
// Blank lines are skipped and do not take an index. A non-blank line that
// cannot be compiled is logged and left out, but still takes its index so
// the remaining lines keep the positions the game assigned them.
func Parse(input string, opts Options) (*List, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	mode := opts.Mode
	if !mode.Subset() {
		mode = grammar.DefaultSubsetMode
	}

	tokens := strings.Split(input, "|")
	id, err := strconv.ParseInt(strings.TrimSpace(tokens[0]), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %v", ErrInvalidID, tokens[0], err)
	}

	list := &List{ID: id, index: make(map[*grammar.Entry]int)}

	next := 0
	for _, raw := range tokens[1:] {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		line := next
		next++

		entry, err := grammar.Compile(raw, grammar.WithMode(mode))
		if err != nil {
			logger.Warn("dialogue line skipped", "dialogue_id", id, "line", line, "error", err.Error())
			continue
		}
		list.add(entry, line)
	}

	for _, phrase := range opts.GoodbyePhrases {
		if strings.TrimSpace(phrase) == "" {
			continue
		}
		entry, err := grammar.Compile(phrase, grammar.WithMode(mode))
		if err != nil {
			logger.Warn("goodbye phrase skipped", "phrase", phrase, "error", err.Error())
			continue
		}
		list.add(entry, GoodbyeIndex)
	}

	logger.Debug("dialogue parsed", "dialogue_id", id, "lines", next, "grammars", len(list.entries))
	return list, nil
}

func (l *List) add(entry *grammar.Entry, index int) {
	l.entries = append(l.entries, entry)
	l.index[entry] = index
}

// LineIndex returns the index mapped to entry. Goodbye phrases report GoodbyeIndex.
func (l *List) LineIndex(entry *grammar.Entry) (int, bool) {
	if l == nil || entry == nil {
		return 0, false
	}
	idx, ok := l.index[entry]
	return idx, ok
}

// Grammars returns the dialogue entries in line order followed by goodbye phrases.
func (l *List) Grammars() []*grammar.Entry {
	if l == nil {
		return nil
	}
	out := make([]*grammar.Entry, len(l.entries))
	copy(out, l.entries)
	return out
}
