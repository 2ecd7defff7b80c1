package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rbright/dsnbridge/internal/grammar"
)

// Parse reads configuration content as JSONC or INI and layers it over base.
//
// JSONC is selected when the first non-whitespace character is `{`.
// Everything else is read as INI, the format of DragonbornSpeaksNaturally.ini.
func Parse(content string, base Config) (Config, []Warning, error) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		validatedWarnings, err := Validate(base)
		if err != nil {
			return Config{}, nil, err
		}
		return base, validatedWarnings, nil
	}

	var (
		doc      Sections
		warnings []Warning
		err      error
	)
	if strings.HasPrefix(trimmed, "{") {
		doc, warnings, err = parseJSONC(content)
	} else {
		doc, warnings, err = parseINI(content)
	}
	if err != nil {
		return Config{}, nil, err
	}

	cfg := base
	applied, err := apply(doc, &cfg)
	if err != nil {
		return Config{}, nil, err
	}
	warnings = append(warnings, applied...)

	validatedWarnings, err := Validate(cfg)
	if err != nil {
		return Config{}, nil, err
	}
	warnings = append(warnings, validatedWarnings...)
	return cfg, warnings, nil
}

// apply copies every known key present in doc onto cfg.
func apply(doc Sections, cfg *Config) ([]Warning, error) {
	var warnings []Warning
	r := reader{doc: doc}

	cfg.Speech.Locale = r.str("SpeechRecognition", "Locale", cfg.Speech.Locale)
	cfg.Speech.DialogueMinConfidence = r.float("SpeechRecognition", "dialogueMinConfidence", cfg.Speech.DialogueMinConfidence)
	cfg.Speech.CommandMinConfidence = r.float("SpeechRecognition", "commandMinConfidence", cfg.Speech.CommandMinConfidence)
	cfg.Speech.LogAudioSignalIssues = r.boolean("SpeechRecognition", "bLogAudioSignalIssues", cfg.Speech.LogAudioSignalIssues)
	if raw, ok := r.lookup("SpeechRecognition", "SubsetMatchingMode"); ok {
		mode, err := grammar.ParseSubsetMode(raw.Value)
		if err != nil {
			warnings = append(warnings, Warning{
				Line:    raw.Line,
				Message: fmt.Sprintf("%v; falling back to %s", err, grammar.DefaultSubsetMode),
			})
			mode = grammar.DefaultSubsetMode
		}
		cfg.Speech.SubsetMatchingMode = mode
	}

	if raw, ok := r.lookup("Dialogue", "goodbyePhrases"); ok {
		cfg.Dialogue.GoodbyePhrases = splitList(raw.Value)
	}

	cfg.Favorites.Enabled = r.boolean("Favorites", "enabled", cfg.Favorites.Enabled)
	cfg.Favorites.EquipPrefix = r.str("Favorites", "equipPhrasePrefix", cfg.Favorites.EquipPrefix)
	cfg.Favorites.LeftSuffix = r.str("Favorites", "equipLeftSuffix", cfg.Favorites.LeftSuffix)
	cfg.Favorites.RightSuffix = r.str("Favorites", "equipRightSuffix", cfg.Favorites.RightSuffix)
	cfg.Favorites.DefaultHand = r.str("Favorites", "defaultHand", cfg.Favorites.DefaultHand)
	cfg.Favorites.ItemNamesFile = r.str("Favorites", "itemNamesFile", cfg.Favorites.ItemNamesFile)

	cfg.Riva.GRPC = r.str("Riva", "grpc", cfg.Riva.GRPC)
	cfg.Riva.DialTimeout = r.millis("Riva", "dialTimeoutMs", cfg.Riva.DialTimeout)
	cfg.Riva.Model = r.str("Riva", "model", cfg.Riva.Model)
	cfg.Riva.AutomaticPunctuation = r.boolean("Riva", "automaticPunctuation", cfg.Riva.AutomaticPunctuation)
	cfg.Riva.InterimResults = r.boolean("Riva", "interimResults", cfg.Riva.InterimResults)
	cfg.Riva.DebugResponseLog = r.str("Riva", "debugResponseLog", cfg.Riva.DebugResponseLog)

	cfg.Audio.Input = r.str("Audio", "input", cfg.Audio.Input)
	cfg.Audio.Fallback = r.str("Audio", "fallback", cfg.Audio.Fallback)

	cfg.Watch.ConfigReload = r.boolean("Watch", "configReload", cfg.Watch.ConfigReload)
	cfg.Watch.BatchDir = r.str("Watch", "batchDir", cfg.Watch.BatchDir)
	if raw, ok := r.lookup("Watch", "batchFiles"); ok {
		cfg.Watch.BatchFiles = splitList(raw.Value)
	}
	cfg.Watch.PollInterval = r.millis("Watch", "pollIntervalMs", cfg.Watch.PollInterval)

	cfg.Logging.Level = r.str("Logging", "level", cfg.Logging.Level)

	if r.err != nil {
		return nil, r.err
	}
	cfg.Sections = doc
	return warnings, nil
}

// reader keeps the first conversion error so apply stays a flat list of fields.
type reader struct {
	doc Sections
	err error
}

func (r *reader) lookup(sectionName, key string) (KeyValue, bool) {
	sec, ok := r.doc.sections[strings.ToLower(sectionName)]
	if !ok {
		return KeyValue{}, false
	}
	idx, ok := sec.index[strings.ToLower(key)]
	if !ok {
		return KeyValue{}, false
	}
	return sec.entries[idx], true
}

func (r *reader) str(sectionName, key, def string) string {
	kv, ok := r.lookup(sectionName, key)
	if !ok {
		return def
	}
	return kv.Value
}

func (r *reader) float(sectionName, key string, def float64) float64 {
	kv, ok := r.lookup(sectionName, key)
	if !ok || kv.Value == "" {
		return def
	}
	v, err := strconv.ParseFloat(kv.Value, 64)
	if err != nil {
		r.fail(sectionName, kv, "a number")
		return def
	}
	return v
}

func (r *reader) boolean(sectionName, key string, def bool) bool {
	kv, ok := r.lookup(sectionName, key)
	if !ok || kv.Value == "" {
		return def
	}
	v, err := strconv.ParseBool(strings.ToLower(kv.Value))
	if err != nil {
		r.fail(sectionName, kv, "0/1 or true/false")
		return def
	}
	return v
}

func (r *reader) millis(sectionName, key string, def time.Duration) time.Duration {
	kv, ok := r.lookup(sectionName, key)
	if !ok || kv.Value == "" {
		return def
	}
	v, err := strconv.Atoi(kv.Value)
	if err != nil {
		r.fail(sectionName, kv, "an integer number of milliseconds")
		return def
	}
	return time.Duration(v) * time.Millisecond
}

func (r *reader) fail(sectionName string, kv KeyValue, want string) {
	if r.err != nil {
		return
	}
	r.err = fmt.Errorf("%s.%s=%q: expected %s", sectionName, kv.Key, kv.Value, want)
	if kv.Line > 0 {
		r.err = fmt.Errorf("line %d: %w", kv.Line, r.err)
	}
}

// splitList splits a `;`-separated value, dropping blanks.
func splitList(raw string) []string {
	parts := strings.Split(raw, ";")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}
