// Package commands maps configured spoken phrases to console commands.
package commands

import (
	"log/slog"
	"strings"

	"github.com/rbright/dsnbridge/internal/config"
	"github.com/rbright/dsnbridge/internal/grammar"
)

// List is the static phrase-to-command table for one service lifetime.
type List struct {
	entries  []*grammar.Entry
	commands map[*grammar.Entry]string
}

// FromConfig compiles every [ConsoleCommands] entry in file order. Phrases
// that do not compile and entries without a command are logged and skipped.
func FromConfig(entries []config.KeyValue, logger *slog.Logger) *List {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	list := &List{commands: make(map[*grammar.Entry]string, len(entries))}
	for _, kv := range entries {
		command := strings.TrimSpace(kv.Value)
		if command == "" {
			logger.Warn("console command skipped", "phrase", kv.Key, "line", kv.Line, "error", "empty command")
			continue
		}
		entry, err := grammar.Compile(kv.Key)
		if err != nil {
			logger.Warn("console command skipped", "phrase", kv.Key, "line", kv.Line, "error", err.Error())
			continue
		}
		list.entries = append(list.entries, entry)
		list.commands[entry] = command
	}
	return list
}

// CommandFor returns the console command bound to entry.
func (l *List) CommandFor(entry *grammar.Entry) (string, bool) {
	if l == nil || entry == nil {
		return "", false
	}
	command, ok := l.commands[entry]
	return command, ok
}

// Len reports the number of compiled commands.
func (l *List) Len() int {
	if l == nil {
		return 0
	}
	return len(l.entries)
}

func (l *List) Grammars() []*grammar.Entry {
	if l == nil {
		return nil
	}
	out := make([]*grammar.Entry, len(l.entries))
	copy(out, l.entries)
	return out
}
