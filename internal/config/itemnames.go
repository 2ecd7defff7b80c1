package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadItemNames reads the favorites item-name remap file, a flat YAML map
// of in-game name to spoken name. An empty path yields an empty map.
// Relative paths resolve against the config file directory.
func LoadItemNames(path, configPath string) (map[string]string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return map[string]string{}, nil
	}
	if !filepath.IsAbs(path) && configPath != "" {
		path = filepath.Join(filepath.Dir(configPath), path)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read item names %q: %w", path, err)
	}

	names := map[string]string{}
	if err := yaml.Unmarshal(content, &names); err != nil {
		return nil, fmt.Errorf("parse item names %q: %w", path, err)
	}
	return names, nil
}
