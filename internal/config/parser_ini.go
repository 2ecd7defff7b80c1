package config

import (
	"fmt"
	"strings"

	"gopkg.in/ini.v1"
)

// iniOptions match the game-side file: `;` and `#` only start comments at
// the beginning of a line, values keep everything after the first `=`,
// and repeated keys are kept as shadows so they can be reported.
var iniOptions = ini.LoadOptions{
	IgnoreInlineComment:        true,
	IgnoreContinuation:         true,
	PreserveSurroundedQuote:    true,
	SkipUnrecognizableLines:    true,
	AllowShadows:               true,
	AllowDuplicateShadowValues: true,
	KeyValueDelimiters:         "=",
}

// parseINI loads `[Section]` headers and `key=value` pairs. Keys before
// the first header are ignored with a warning; a repeated key keeps its
// first position and its last value.
func parseINI(content string) (Sections, []Warning, error) {
	file, err := ini.LoadSources(iniOptions, []byte(content))
	if err != nil {
		return Sections{}, nil, fmt.Errorf("parse ini: %w", err)
	}

	doc := newSections()
	var warnings []Warning
	for _, sec := range file.Sections() {
		if sec.Name() == ini.DefaultSection {
			for _, key := range sec.Keys() {
				warnings = append(warnings, Warning{Message: fmt.Sprintf("key %q outside any section; ignored", key.Name())})
			}
			continue
		}

		name := strings.TrimSpace(sec.Name())
		if name == "" {
			return Sections{}, nil, fmt.Errorf("parse ini: empty section name %q", sec.Name())
		}
		doc.ensure(name)

		for _, key := range sec.Keys() {
			values := key.ValueWithShadows()
			value := ""
			if len(values) > 0 {
				value = values[len(values)-1]
			}
			replaced := doc.set(name, KeyValue{Key: key.Name(), Value: value})
			if replaced || len(values) > 1 {
				warnings = append(warnings, Warning{Message: fmt.Sprintf("duplicate key %s.%s; last value wins", name, key.Name())})
			}
		}
	}
	return doc, warnings, nil
}
