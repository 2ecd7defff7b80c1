// Package config resolves, parses, validates, and defaults dsnbridge configuration.
package config

import (
	"time"

	"github.com/rbright/dsnbridge/internal/grammar"
)

// Config is the fully materialized runtime configuration used by dsnbridge.
type Config struct {
	Speech    SpeechConfig
	Dialogue  DialogueConfig
	Favorites FavoritesConfig
	Riva      RivaConfig
	Audio     AudioConfig
	Watch     WatchConfig
	Logging   LoggingConfig

	// Sections is the raw document every typed field was read from. It
	// backs Get lookups and the ordered [ConsoleCommands] section.
	Sections Sections
}

// SpeechConfig controls recognition thresholds and dialogue matching.
type SpeechConfig struct {
	Locale                string
	DialogueMinConfidence float64
	CommandMinConfidence  float64
	SubsetMatchingMode    grammar.MatchMode
	LogAudioSignalIssues  bool
}

// DialogueConfig controls dialogue-only grammars.
type DialogueConfig struct {
	GoodbyePhrases []string
}

// FavoritesConfig controls equip phrase construction.
type FavoritesConfig struct {
	Enabled       bool
	EquipPrefix   string
	LeftSuffix    string
	RightSuffix   string
	DefaultHand   string
	ItemNamesFile string
}

// RivaConfig addresses the speech recognition server.
type RivaConfig struct {
	GRPC                 string
	DialTimeout          time.Duration
	Model                string
	AutomaticPunctuation bool
	// InterimResults asks for partial transcripts. They are logged at
	// debug level and never matched.
	InterimResults bool
	// DebugResponseLog is a file that receives every raw Riva response.
	DebugResponseLog string
}

// AudioConfig controls preferred and fallback input-source selection.
type AudioConfig struct {
	Input    string
	Fallback string
}

// WatchConfig controls the config-reload and batch-file watchers.
type WatchConfig struct {
	ConfigReload bool
	BatchDir     string
	BatchFiles   []string
	PollInterval time.Duration
}

// LoggingConfig controls the JSON log level.
type LoggingConfig struct {
	Level string
}

// Warning is a non-fatal parse/validation message.
type Warning struct {
	Line    int
	Message string
}

// CommandsSection is the section mapping spoken phrases to console commands.
const CommandsSection = "ConsoleCommands"

// Commands returns the [ConsoleCommands] entries in file order.
func (c Config) Commands() []KeyValue {
	return c.Sections.Entries(CommandsSection)
}
