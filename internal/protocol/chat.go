package protocol

import (
	"encoding/base64"
	"fmt"
	"strings"
)

const (
	chatOpen      = "["
	chatSeparator = "]: "

	// AvatarTag introduces the base64 avatar suffix. The suffix is located by
	// the last occurrence of the tag, so a body must not contain this literal.
	AvatarTag = "|AVATAR:"
)

// ChatMessage is a parsed chat payload.
type ChatMessage struct {
	Username string
	Body     string
	// Avatar holds the decoded avatar bytes, nil when no suffix was sent.
	Avatar []byte
}

// HasAvatar reports whether the payload carried an avatar suffix.
func (m ChatMessage) HasAvatar() bool {
	return m.Avatar != nil
}

// FormatChat builds "[username]: body".
func FormatChat(username, body string) string {
	return chatOpen + username + chatSeparator + body
}

// FormatChatWithAvatar builds "[username]: body|AVATAR:<base64>".
// An empty avatar produces a payload without the suffix.
func FormatChatWithAvatar(username, body string, avatar []byte) string {
	if len(avatar) == 0 {
		return FormatChat(username, body)
	}
	return FormatChat(username, body) + AvatarTag + base64.StdEncoding.EncodeToString(avatar)
}

// ParseChat splits a payload into username, body and avatar.
func ParseChat(payload string) (ChatMessage, error) {
	var msg ChatMessage

	text := payload
	if i := strings.LastIndex(text, AvatarTag); i >= 0 {
		encoded := text[i+len(AvatarTag):]
		avatar, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return ChatMessage{}, fmt.Errorf("%w: %v", ErrMalformedAvatar, err)
		}
		if avatar == nil {
			avatar = []byte{}
		}
		msg.Avatar = avatar
		text = text[:i]
	}

	if !strings.HasPrefix(text, chatOpen) {
		return ChatMessage{}, ErrMalformedChat
	}
	end := strings.Index(text, chatSeparator)
	if end < 0 {
		return ChatMessage{}, ErrMalformedChat
	}

	msg.Username = text[len(chatOpen):end]
	msg.Body = text[end+len(chatSeparator):]
	return msg, nil
}
