package config

import (
	"time"

	"github.com/rbright/dsnbridge/internal/grammar"
)

// Default returns the canonical runtime configuration used when no file is present.
func Default() Config {
	return Config{
		Speech: SpeechConfig{
			Locale:                "en-US",
			DialogueMinConfidence: 0.5,
			CommandMinConfidence:  0.7,
			SubsetMatchingMode:    grammar.DefaultSubsetMode,
		},
		Favorites: FavoritesConfig{
			Enabled:     true,
			EquipPrefix: "equip",
			LeftSuffix:  "left",
			RightSuffix: "right",
			DefaultHand: "both",
		},
		Riva: RivaConfig{
			GRPC:        "127.0.0.1:50051",
			DialTimeout: 3 * time.Second,
		},
		Audio: AudioConfig{
			Input:    "default",
			Fallback: "default",
		},
		Watch: WatchConfig{
			ConfigReload: true,
			BatchFiles:   []string{"wotv", "ivrqs"},
			PollInterval: 500 * time.Millisecond,
		},
		Logging: LoggingConfig{Level: "info"},
	}
}
