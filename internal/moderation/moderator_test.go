package moderation

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestModerator_Censor(t *testing.T) {
	req := require.New(t)
	mod, err := New([]string{"badger", "snake"}, '*')
	req.NoError(err)
	req.NotNil(mod)

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "clean text is untouched", input: "hello there", expected: "hello there"},
		{name: "single word keeps spacing", input: "The badger is here", expected: "The ****** is here"},
		{name: "repeated words", input: "badger badger", expected: "****** ******"},
		{name: "upper case and separators", input: "S-N-A-K-E", expected: "*********"},
		{name: "leet speak", input: "b4dger!", expected: "******!"},
		{name: "accents around a match survive", input: "un été avec un badger", expected: "un été avec un ******"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.expected, mod.Censor(tt.input))
		})
	}
}

func TestNew_EmptyDictionary(t *testing.T) {
	req := require.New(t)

	// Given only blank or punctuation entries
	mod, err := New([]string{"", "  ", "..."}, '*')

	// Then moderation is disabled
	req.NoError(err)
	req.Nil(mod)
}
