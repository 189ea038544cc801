package moderation

import (
	"log/slog"
	"testing"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

const replacementChar = '*'

// The dictionary uses words that do not appear inside common Spanish words.
func TestModerator_Censor(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	dictionary := []string{"tonto", "idiota", "basura"}
	mod, err := NewModerator(dictionary, replacementChar, log)
	req.NoError(err)

	tests := []struct {
		name     string
		input    string
		expected string
		words    []string
	}{
		{
			name:     "Simple word and space preservation",
			input:    "Eres un tonto hoy",
			expected: "Eres un ***** hoy",
			words:    []string{"tonto"},
		},
		{
			name:     "Multiple occurrences and preserved spacing",
			input:    "tonto tonto tonto",
			expected: "***** ***** *****",
			words:    []string{"tonto", "tonto", "tonto"},
		},
		{
			name:     "Leet speak and internal punctuation",
			input:    "Mira B.4.s.u.r.4 !",
			expected: "Mira *********** !",
			words:    []string{"basura"},
		},
		{
			name:     "Uppercase and extreme noise",
			input:    "T-O-N-T-O y una I.D.I.O.T.A",
			expected: "********* y una ***********",
			words:    []string{"tonto", "idiota"},
		},
		{
			name:     "Accents and special characters (UTF-8)",
			input:    "Un día con un tonto",
			expected: "Un día con un *****",
			words:    []string{"tonto"},
		},
		{
			name:     "Word adjacent to trailing punctuation",
			input:    "Qué tonto!",
			expected: "Qué *****!",
			words:    []string{"tonto"},
		},
		{
			name:     "Nothing to censor",
			input:    "EventMaster es genial",
			expected: "EventMaster es genial",
			words:    nil,
		},
		{
			name:     "Empty string",
			input:    "",
			expected: "",
			words:    nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			content, words := mod.Censor(tt.input)
			req.Equal(tt.expected, content, "test=%s,", tt.name)
			req.Equal(tt.words, words, "expected=%s,words=%s", tt.expected, words)
		})
	}
}

func TestModerator_CornerCases(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)

	// Given real noise and not Leet Speak associated
	dictionary := []string{"...", ",,,", "", "tonto"}

	mod, err := NewModerator(dictionary, replacementChar, log)
	req.NoError(err)

	content, words := mod.Censor("Ese tonto llegó tarde")
	req.Equal("Ese ***** llegó tarde", content)
	req.Equal([]string{"tonto"}, words)

	// Then real noise is uncensored
	content, words = mod.Censor("Hola ...")
	req.Equal("Hola ...", content)
	req.Nil(words)
}

func TestModerator_EmptyDictionaryIsNoop(t *testing.T) {
	req := require.New(t)
	mod, err := NewModerator(nil, replacementChar, logs.GetLoggerFromLevel(slog.LevelDebug))
	req.NoError(err)

	content, words := mod.Censor("tonto")
	req.Equal("tonto", content)
	req.Nil(words)
}

func TestDetectLanguage(t *testing.T) {
	req := require.New(t)
	req.Equal("es", DetectLanguage("Hola a todos, nos vemos mañana por la tarde en la boda de mi hermana, "+
		"que se celebra en la iglesia del centro de la ciudad y después en el jardín de la casa de mis abuelos"))
	req.Equal("", DetectLanguage(""))
}
