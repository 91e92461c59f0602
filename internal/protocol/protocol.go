// Package protocol defines the wire format shared by the relay and its peers.
// Every message is a single line of UTF-8 text terminated by '\n'.
package protocol

import (
	"fmt"
	"strings"
)

// Prompt is the first line the server sends on a new connection.  The next
// line the client sends is taken verbatim as its username.
const Prompt = "Enter your username:"

const (
	joinedSuffix = " joined the chat"
	leftSuffix   = " left the chat"
	chatSep      = ": "
)

// Message is what the relay fans out to peers.  It is a closed set: the only
// implementations are UserJoined, UserLeft and Chat.
type Message interface {
	isMessage()
}

// UserJoined announces a completed handshake.  Text is precomputed.
type UserJoined struct {
	Text string
}

// UserLeft announces a disconnect.  Text is precomputed.
type UserLeft struct {
	Text string
}

// Chat carries one line typed by Sender.
type Chat struct {
	Sender  string
	Content string
}

func (UserJoined) isMessage() {}
func (UserLeft) isMessage()   {}
func (Chat) isMessage()       {}

// NewUserJoined builds the join notice for username.
func NewUserJoined(username string) UserJoined {
	return UserJoined{Text: username + joinedSuffix}
}

// NewUserLeft builds the leave notice for username.
func NewUserLeft(username string) UserLeft {
	return UserLeft{Text: username + leftSuffix}
}

// NewChat builds a chat message.
func NewChat(sender, content string) Chat {
	return Chat{Sender: sender, Content: content}
}

// Render returns the line written to peers for m (without the trailing newline).
func Render(m Message) string {
	switch m := m.(type) {
	case UserJoined:
		return m.Text
	case UserLeft:
		return m.Text
	case Chat:
		return m.Sender + chatSep + m.Content
	default:
		panic(fmt.Sprintf("protocol: unknown message type %T", m))
	}
}

// Parse is the best-effort inverse of Render used by clients.  The protocol
// has no escaping, so a username containing ": " or ending in one of the
// notice suffixes cannot be told apart; notices are only recognised when the
// line has no chat separator.
func Parse(line string) (Message, bool) {
	if !strings.Contains(line, chatSep) {
		switch {
		case strings.HasSuffix(line, joinedSuffix):
			return UserJoined{Text: line}, true
		case strings.HasSuffix(line, leftSuffix):
			return UserLeft{Text: line}, true
		}
		return nil, false
	}
	sender, content, _ := strings.Cut(line, chatSep)
	return Chat{Sender: sender, Content: content}, true
}

// Username extracts the name from a join or leave notice.
func Username(m Message) string {
	switch m := m.(type) {
	case UserJoined:
		return strings.TrimSuffix(m.Text, joinedSuffix)
	case UserLeft:
		return strings.TrimSuffix(m.Text, leftSuffix)
	case Chat:
		return m.Sender
	}
	return ""
}
