package domain

import (
	"errors"
	"strings"
	"time"
	"unicode/utf8"
)

var ErrEmptyMessage = errors.New("message is empty")

const MaxMessageLen = 2000

// ChatMessage is append-only; ids and CreatedAt are assigned by the store.
type ChatMessage struct {
	ID        string    `json:"id"`
	RoomID    RoomID    `json:"room_id"`
	SenderID  UserID    `json:"sender_id"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
	Sender    *Profile  `json:"sender,omitempty"`
}

// NormalizeMessage trims text and rejects whitespace-only input.
func NormalizeMessage(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyMessage
	}
	if len(text) > MaxMessageLen {
		cut := MaxMessageLen
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		text = text[:cut]
	}
	return text, nil
}
