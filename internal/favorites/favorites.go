// Package favorites turns the game's favorited items into equip grammars.
package favorites

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/rbright/dsnbridge/internal/grammar"
	"github.com/rbright/dsnbridge/internal/match"
)

// Hand is the equip slot code understood by the game plugin.
type Hand int

const (
	HandBoth  Hand = 0
	HandRight Hand = 1
	HandLeft  Hand = 2
)

// ParseHand resolves a configured default hand name.
func ParseHand(raw string) (Hand, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "both", "0":
		return HandBoth, nil
	case "right", "1":
		return HandRight, nil
	case "left", "2":
		return HandLeft, nil
	default:
		return HandBoth, fmt.Errorf("unknown hand %q (expected both, right or left)", raw)
	}
}

// Item is one parsed favorites token.
type Item struct {
	Name         string
	FormID       int64
	ItemID       int64
	SingleHanded bool
	TypeID       int
}

// ParseItem parses "name,formId,itemId,isSingleHanded,typeId".
func ParseItem(token string) (Item, error) {
	fields := strings.Split(token, ",")
	if len(fields) < 5 {
		return Item{}, fmt.Errorf("favorites item %q: want 5 fields, got %d", token, len(fields))
	}

	formID, err := strconv.ParseInt(strings.TrimSpace(fields[1]), 10, 64)
	if err != nil {
		return Item{}, fmt.Errorf("favorites item %q: form id: %w", token, err)
	}
	itemID, err := strconv.ParseInt(strings.TrimSpace(fields[2]), 10, 64)
	if err != nil {
		return Item{}, fmt.Errorf("favorites item %q: item id: %w", token, err)
	}
	handed, err := strconv.Atoi(strings.TrimSpace(fields[3]))
	if err != nil {
		return Item{}, fmt.Errorf("favorites item %q: single-handed flag: %w", token, err)
	}
	typeID, err := strconv.Atoi(strings.TrimSpace(fields[4]))
	if err != nil {
		return Item{}, fmt.Errorf("favorites item %q: type id: %w", token, err)
	}

	return Item{
		Name:         fields[0],
		FormID:       formID,
		ItemID:       itemID,
		SingleHanded: handed > 0,
		TypeID:       typeID,
	}, nil
}

// Builder holds the favorites configuration applied to every update.
type Builder struct {
	Enabled     bool
	Prefix      string
	LeftSuffix  string
	RightSuffix string
	DefaultHand Hand
	// ItemNames remaps in-game item names before phrase building. Names
	// without an entry pass through unchanged.
	ItemNames map[string]string
	Logger    *slog.Logger
}

func (b Builder) logger() *slog.Logger {
	if b.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return b.Logger
}

// Build parses "item|item|..." into a new Set. Malformed items and items
// whose phrase cannot be compiled are logged and skipped. It returns
// false when favorites are disabled, in which case the update is ignored.
func (b Builder) Build(input string) (*Set, bool) {
	if !b.Enabled {
		return nil, false
	}
	logger := b.logger()

	set := &Set{
		prefix:      spokenForm(b.Prefix),
		left:        spokenForm(b.LeftSuffix),
		right:       spokenForm(b.RightSuffix),
		defaultHand: b.DefaultHand,
		items:       make(map[*grammar.Entry]Item),
	}

	for _, token := range strings.Split(input, "|") {
		if strings.TrimSpace(token) == "" {
			continue
		}
		item, err := ParseItem(token)
		if err != nil {
			logger.Warn("favorites item skipped", "error", err.Error())
			continue
		}

		name := item.Name
		if mapped, ok := b.ItemNames[name]; ok && strings.TrimSpace(mapped) != "" {
			name = mapped
		}

		opts := []grammar.Option{}
		if item.SingleHanded {
			opts = append(opts, grammar.WithOptionalChoice(b.LeftSuffix, b.RightSuffix))
		}
		entry, err := grammar.Compile(b.Prefix+" "+grammar.Normalize(name), opts...)
		if err != nil {
			logger.Warn("favorites phrase skipped", "item", item.Name, "error", err.Error())
			continue
		}
		set.add(entry, item)
		logger.Debug("favorites phrase", "phrase", entry.String(), "form_id", item.FormID, "item_id", item.ItemID)
	}

	return set, true
}

// Set is one immutable favorites grammar generation.
type Set struct {
	prefix      string
	left        string
	right       string
	defaultHand Hand
	entries     []*grammar.Entry
	items       map[*grammar.Entry]Item
}

func (s *Set) add(entry *grammar.Entry, item Item) {
	s.entries = append(s.entries, entry)
	s.items[entry] = item
}

// Len reports the number of registered items.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.entries)
}

// Grammars returns the equip entries in favorites order.
func (s *Set) Grammars() []*grammar.Entry {
	if s == nil {
		return nil
	}
	out := make([]*grammar.Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Item returns the favorites item behind entry.
func (s *Set) Item(entry *grammar.Entry) (Item, bool) {
	if s == nil || entry == nil {
		return Item{}, false
	}
	item, ok := s.items[entry]
	return item, ok
}

// EquipCommand returns "formId;itemId;typeId;hand" when entry belongs to
// this set. The hand comes from a spoken suffix, then a hand word right
// after the equip prefix, then the configured default.
func (s *Set) EquipCommand(text string, entry *grammar.Entry) (string, bool) {
	item, ok := s.Item(entry)
	if !ok {
		return "", false
	}
	hand := s.handFor(text)
	return fmt.Sprintf("%d;%d;%d;%d", item.FormID, item.ItemID, item.TypeID, hand), true
}

func (s *Set) handFor(text string) Hand {
	words := match.Tokens(text)
	if len(words) == 0 {
		return s.defaultHand
	}

	spoken := strings.Join(words, " ")
	switch {
	case endsWithWords(spoken, s.right):
		return HandRight
	case endsWithWords(spoken, s.left):
		return HandLeft
	}

	rest := words
	if prefix := strings.Fields(s.prefix); len(prefix) > 0 && len(rest) > len(prefix) &&
		strings.Join(rest[:len(prefix)], " ") == s.prefix {
		rest = rest[len(prefix):]
	}
	switch rest[0] {
	case s.right:
		return HandRight
	case s.left:
		return HandLeft
	}
	return s.defaultHand
}

// spokenForm reduces a phrase to the words a transcript would carry.
func spokenForm(phrase string) string {
	return strings.Join(match.Tokens(grammar.Normalize(phrase)), " ")
}

func endsWithWords(spoken, suffix string) bool {
	if suffix == "" {
		return false
	}
	return spoken == suffix || strings.HasSuffix(spoken, " "+suffix)
}
