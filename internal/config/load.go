package config

import (
	"errors"
	"fmt"
	"os"
)

// Loaded captures resolved config path, parsed values, and non-fatal warnings.
type Loaded struct {
	Path      string
	Config    Config
	ItemNames map[string]string
	Warnings  []Warning
	Exists    bool
}

// Load resolves, reads, parses, and validates the runtime configuration.
// A missing file is not an error: defaults apply and a warning is recorded.
// An unreadable item-name file only costs the remap, never the run.
func Load(explicitPath string) (Loaded, error) {
	resolvedPath, err := ResolvePath(explicitPath)
	if err != nil {
		return Loaded{}, err
	}

	base := Default()
	content, err := os.ReadFile(resolvedPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Loaded{
				Path:      resolvedPath,
				Config:    base,
				ItemNames: map[string]string{},
				Warnings: []Warning{{
					Message: fmt.Sprintf("config file %q not found; using defaults", resolvedPath),
				}},
				Exists: false,
			}, nil
		}
		return Loaded{}, fmt.Errorf("read config %q: %w", resolvedPath, err)
	}

	cfg, warnings, err := Parse(string(content), base)
	if err != nil {
		return Loaded{}, fmt.Errorf("parse config %q: %w", resolvedPath, err)
	}

	names, err := LoadItemNames(cfg.Favorites.ItemNamesFile, resolvedPath)
	if err != nil {
		warnings = append(warnings, Warning{Message: err.Error()})
		names = map[string]string{}
	}

	return Loaded{
		Path:      resolvedPath,
		Config:    cfg,
		ItemNames: names,
		Warnings:  warnings,
		Exists:    true,
	}, nil
}
