package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
)

// legacyPaths are checked relative to the working directory, which is the
// game directory when the plugin launches the bridge.
var legacyPaths = []string{
	filepath.Join("Data", "Plugins", "Sumwunn", "DragonbornSpeaksNaturally.ini"),
	"DragonbornSpeaksNaturally.ini",
}

// Candidates lists config locations in lookup order.
func Candidates() ([]string, error) {
	configHome := strings.TrimSpace(os.Getenv("XDG_CONFIG_HOME"))
	if configHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, errors.New("unable to resolve user home for config fallback")
		}
		configHome = filepath.Join(home, ".config")
	}

	out := []string{
		filepath.Join(configHome, "dsnbridge", "config.jsonc"),
		filepath.Join(configHome, "dsnbridge", "config.ini"),
	}
	return append(out, legacyPaths...), nil
}

// ResolvePath returns explicit when set, else the first existing candidate,
// else the first candidate.
func ResolvePath(explicit string) (string, error) {
	if strings.TrimSpace(explicit) != "" {
		return explicit, nil
	}

	candidates, err := Candidates()
	if err != nil {
		return "", err
	}
	for _, path := range candidates {
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path, nil
		}
	}
	return candidates[0], nil
}
