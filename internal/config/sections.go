package config

import "strings"

// KeyValue is one key in a section, in file order.
type KeyValue struct {
	Key   string
	Value string
	Line  int
}

// Sections is an ordered, case-insensitive section/key document.
type Sections struct {
	order    []string
	sections map[string]*section
}

type section struct {
	name    string
	entries []KeyValue
	index   map[string]int
}

func newSections() Sections {
	return Sections{sections: make(map[string]*section)}
}

// Get returns the trimmed value of key in section, or def when absent.
func (s Sections) Get(sectionName, key, def string) string {
	sec, ok := s.sections[strings.ToLower(sectionName)]
	if !ok {
		return def
	}
	idx, ok := sec.index[strings.ToLower(key)]
	if !ok {
		return def
	}
	return sec.entries[idx].Value
}

// Entries returns a copy of the keys of one section in file order.
func (s Sections) Entries(sectionName string) []KeyValue {
	sec, ok := s.sections[strings.ToLower(sectionName)]
	if !ok {
		return nil
	}
	out := make([]KeyValue, len(sec.entries))
	copy(out, sec.entries)
	return out
}

// Names returns section names in first-seen order.
func (s Sections) Names() []string {
	out := make([]string, 0, len(s.order))
	for _, key := range s.order {
		out = append(out, s.sections[key].name)
	}
	return out
}

func (s *Sections) ensure(name string) *section {
	if s.sections == nil {
		s.sections = make(map[string]*section)
	}
	key := strings.ToLower(name)
	sec, ok := s.sections[key]
	if !ok {
		sec = &section{name: name, index: make(map[string]int)}
		s.sections[key] = sec
		s.order = append(s.order, key)
	}
	return sec
}

// set stores kv and reports whether it replaced an earlier value. A
// replaced key keeps its original position.
func (s *Sections) set(sectionName string, kv KeyValue) bool {
	sec := s.ensure(sectionName)
	kv.Value = strings.TrimSpace(kv.Value)
	key := strings.ToLower(kv.Key)
	if idx, ok := sec.index[key]; ok {
		sec.entries[idx].Value = kv.Value
		sec.entries[idx].Line = kv.Line
		return true
	}
	sec.index[key] = len(sec.entries)
	sec.entries = append(sec.entries, kv)
	return false
}
