package protocol

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRender(t *testing.T) {
	tests := []struct {
		name     string
		msg      Message
		expected string
	}{
		{name: "join notice", msg: NewUserJoined("alice"), expected: "alice joined the chat"},
		{name: "leave notice", msg: NewUserLeft("bob"), expected: "bob left the chat"},
		{name: "chat line", msg: NewChat("alice", "hi"), expected: "alice: hi"},
		{name: "empty content is kept", msg: NewChat("alice", ""), expected: "alice: "},
		{name: "content is verbatim", msg: NewChat("A", "  spaced: out  "), expected: "A:   spaced: out  "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.expected, Render(tt.msg))
		})
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		name     string
		line     string
		expected Message
		ok       bool
	}{
		{name: "join", line: "carol joined the chat", expected: UserJoined{Text: "carol joined the chat"}, ok: true},
		{name: "leave", line: "carol left the chat", expected: UserLeft{Text: "carol left the chat"}, ok: true},
		{name: "chat", line: "carol: hello there", expected: Chat{Sender: "carol", Content: "hello there"}, ok: true},
		{name: "chat that looks like a notice", line: "dave: bob left the chat", expected: Chat{Sender: "dave", Content: "bob left the chat"}, ok: true},
		{name: "prompt is not a message", line: Prompt, ok: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			msg, ok := Parse(tt.line)
			req.Equal(tt.ok, ok)
			req.Equal(tt.expected, msg)
		})
	}
}

func TestUsername(t *testing.T) {
	req := require.New(t)
	req.Equal("erin", Username(NewUserJoined("erin")))
	req.Equal("erin", Username(NewUserLeft("erin")))
	req.Equal("erin", Username(NewChat("erin", "x")))
}
