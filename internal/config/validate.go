package config

import (
	"fmt"
	"strings"

	"github.com/rbright/dsnbridge/internal/favorites"
)

// Validate enforces config invariants and returns non-fatal warnings.
func Validate(cfg Config) ([]Warning, error) {
	warnings := make([]Warning, 0)

	if err := checkUnit("SpeechRecognition.dialogueMinConfidence", cfg.Speech.DialogueMinConfidence); err != nil {
		return nil, err
	}
	if err := checkUnit("SpeechRecognition.commandMinConfidence", cfg.Speech.CommandMinConfidence); err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.Speech.Locale) == "" {
		return nil, fmt.Errorf("SpeechRecognition.Locale must not be empty")
	}
	if strings.TrimSpace(cfg.Riva.GRPC) == "" {
		return nil, fmt.Errorf("Riva.grpc must not be empty")
	}
	if cfg.Riva.DialTimeout <= 0 {
		return nil, fmt.Errorf("Riva.dialTimeoutMs must be > 0")
	}
	if _, err := favorites.ParseHand(cfg.Favorites.DefaultHand); err != nil {
		return nil, fmt.Errorf("Favorites.defaultHand: %w", err)
	}
	if cfg.Favorites.Enabled && strings.TrimSpace(cfg.Favorites.EquipPrefix) == "" {
		return nil, fmt.Errorf("Favorites.equipPhrasePrefix must not be empty when favorites are enabled")
	}
	if cfg.Watch.PollInterval <= 0 {
		return nil, fmt.Errorf("Watch.pollIntervalMs must be > 0")
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Logging.Level)) {
	case "debug", "info", "warn", "error":
	default:
		return nil, fmt.Errorf("Logging.level must be one of: debug, info, warn, error")
	}

	if cfg.Speech.DialogueMinConfidence > cfg.Speech.CommandMinConfidence {
		warnings = append(warnings, Warning{Message: fmt.Sprintf(
			"dialogueMinConfidence %.2f is stricter than commandMinConfidence %.2f",
			cfg.Speech.DialogueMinConfidence, cfg.Speech.CommandMinConfidence,
		)})
	}
	if len(cfg.Commands()) == 0 {
		warnings = append(warnings, Warning{Message: "no [ConsoleCommands] configured; command mode only recognizes favorites"})
	}

	return warnings, nil
}

func checkUnit(name string, v float64) error {
	if v < 0 || v > 1 {
		return fmt.Errorf("%s must be within [0,1], got %g", name, v)
	}
	return nil
}
