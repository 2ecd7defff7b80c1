package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rbright/dsnbridge/internal/grammar"
)

const sampleINI = `; DragonbornSpeaksNaturally.ini
[SpeechRecognition]
Locale = en-GB
dialogueMinConfidence=0.4
commandMinConfidence=0.65
SubsetMatchingMode = subsequence
bLogAudioSignalIssues=1

[Dialogue]
goodbyePhrases=goodbye;farewell; ;see you later

[Favorites]
enabled=1
equipPhrasePrefix=ready
defaultHand=right

[ConsoleCommands]
open map=tm
show me the money=player.additem f 1000
# disabled
wait an hour = wait 1

[Riva]
automaticPunctuation=1
interimResults=true
debugResponseLog=/tmp/riva.jsonl

[Watch]
batchFiles=wotv
pollIntervalMs=250
`

func TestParseINIConfig(t *testing.T) {
	cfg, warnings, err := Parse(sampleINI, Default())
	require.NoError(t, err)
	require.Empty(t, warnings)

	require.Equal(t, "en-GB", cfg.Speech.Locale)
	require.InDelta(t, 0.4, cfg.Speech.DialogueMinConfidence, 1e-9)
	require.InDelta(t, 0.65, cfg.Speech.CommandMinConfidence, 1e-9)
	require.Equal(t, grammar.MatchSubsequence, cfg.Speech.SubsetMatchingMode)
	require.True(t, cfg.Speech.LogAudioSignalIssues)
	require.Equal(t, []string{"goodbye", "farewell", "see you later"}, cfg.Dialogue.GoodbyePhrases)
	require.Equal(t, "ready", cfg.Favorites.EquipPrefix)
	require.Equal(t, "left", cfg.Favorites.LeftSuffix)
	require.Equal(t, "right", cfg.Favorites.DefaultHand)
	require.Equal(t, []string{"wotv"}, cfg.Watch.BatchFiles)
	require.Equal(t, 250*time.Millisecond, cfg.Watch.PollInterval)
	require.True(t, cfg.Riva.AutomaticPunctuation)
	require.True(t, cfg.Riva.InterimResults)
	require.Equal(t, "/tmp/riva.jsonl", cfg.Riva.DebugResponseLog)

	commands := cfg.Commands()
	require.Len(t, commands, 3)
	require.Equal(t, KeyValue{Key: "open map", Value: "tm"}, commands[0])
	require.Equal(t, "player.additem f 1000", commands[1].Value)
	require.Equal(t, "wait an hour", commands[2].Key)
	require.Equal(t, "wait 1", commands[2].Value)

	require.Equal(t, "en-GB", cfg.Sections.Get("speechrecognition", "LOCALE", ""))
	require.Equal(t, "fallback", cfg.Sections.Get("Missing", "key", "fallback"))
}

func TestParseINIWarnings(t *testing.T) {
	cfg, warnings, err := Parse(`
orphan=1
[SpeechRecognition]
SubsetMatchingMode=Exact
not a pair
[ConsoleCommands]
open map=tm
open map=tmm
`, Default())
	require.NoError(t, err)
	require.Equal(t, grammar.DefaultSubsetMode, cfg.Speech.SubsetMatchingMode)

	messages := make([]string, 0, len(warnings))
	for _, w := range warnings {
		messages = append(messages, w.Message)
	}
	require.Len(t, messages, 3)
	require.Contains(t, messages[0], "outside any section")
	require.Contains(t, messages[1], "duplicate key ConsoleCommands.open map")
	require.Contains(t, messages[2], "unknown subset matching mode")

	commands := cfg.Commands()
	require.Len(t, commands, 1)
	require.Equal(t, "tmm", commands[0].Value)
}

func TestParseINIRejectsBrokenHeaders(t *testing.T) {
	_, _, err := Parse("[Favorites\nenabled=1\n", Default())
	require.Error(t, err)
	require.Contains(t, err.Error(), "parse ini")

	_, _, err = Parse("[ ]\n", Default())
	require.Error(t, err)
}

func TestParseINIKeepsRawValues(t *testing.T) {
	cfg, warnings, err := Parse(`[ConsoleCommands]
say hello = say "hello; friend" # loud
open map: now = tm\
Open Map: Now=tmm
[ Dialogue ]
goodbyePhrases="farewell";later
`, Default())
	require.NoError(t, err)

	commands := cfg.Commands()
	require.Len(t, commands, 2)
	require.Equal(t, KeyValue{Key: "say hello", Value: `say "hello; friend" # loud`}, commands[0])
	require.Equal(t, "open map: now", commands[1].Key)
	require.Equal(t, "tmm", commands[1].Value)
	require.Len(t, warnings, 1)
	require.Contains(t, warnings[0].Message, "duplicate key")

	require.Equal(t, []string{`"farewell"`, "later"}, cfg.Dialogue.GoodbyePhrases)
}

func TestParseRejectsBadValues(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr string
	}{
		{name: "float", input: "[SpeechRecognition]\ncommandMinConfidence=high\n", wantErr: "commandMinConfidence"},
		{name: "bool", input: "[Favorites]\nenabled=maybe\n", wantErr: "Favorites.enabled"},
		{name: "millis", input: "[Riva]\ndialTimeoutMs=3s\n", wantErr: "dialTimeoutMs"},
		{name: "out of range", input: "[SpeechRecognition]\ndialogueMinConfidence=1.5\n", wantErr: "within [0,1]"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := Parse(tc.input, Default())
			require.Error(t, err)
			require.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestParseJSONCConfig(t *testing.T) {
	cfg, _, err := Parse(`{
  "Riva": {"grpc": "riva.local:50051", "dialTimeoutMs": 1500, "model": "conformer"},
  "Favorites": {"enabled": false},
  "ConsoleCommands": {"open map": "tm"},
}`, Default())
	require.NoError(t, err)
	require.Equal(t, "riva.local:50051", cfg.Riva.GRPC)
	require.Equal(t, 1500*time.Millisecond, cfg.Riva.DialTimeout)
	require.Equal(t, "conformer", cfg.Riva.Model)
	require.False(t, cfg.Favorites.Enabled)
	require.Len(t, cfg.Commands(), 1)
}

func TestParseEmptyContentReturnsBase(t *testing.T) {
	cfg, warnings, err := Parse("  \n", Default())
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
	require.NotEmpty(t, warnings)
}
