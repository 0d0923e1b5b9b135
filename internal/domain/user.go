// Package domain contains entity without logic, just meta-data
package domain

import (
	"errors"
	"strings"
)

const (
	MaxUserIDLen      = 36
	MaxDisplayNameLen = 36
)

var (
	ErrDisplayNameTooLong = errors.New("display name too long")
	ErrDisplayNameEmpty   = errors.New("display name empty")
	ErrUserIDInvalid      = errors.New("user id invalid")
)

// UserID is the stable identifier of a person across rooms and sessions.
type UserID string

func (id UserID) Validate() error {
	if id == "" || len(id) > MaxUserIDLen {
		return ErrUserIDInvalid
	}
	return nil
}

// Profile is the display information resolved for chat senders and seat cards.
type Profile struct {
	UserID      UserID `json:"user_id"`
	DisplayName string `json:"display_name"`
	AvatarURL   string `json:"avatar_url,omitempty"`
}

// NewProfile is a tiny helper to avoid ad-hoc struct literals in adapters.
func NewProfile(id UserID, displayName, avatarURL string) (*Profile, error) {
	if err := id.Validate(); err != nil {
		return nil, err
	}
	p := &Profile{UserID: id, AvatarURL: avatarURL}
	if err := p.SetDisplayName(displayName); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Profile) SetDisplayName(name string) error {
	name = strings.TrimSpace(name)
	if len(name) == 0 {
		return ErrDisplayNameEmpty
	}
	if len(name) > MaxDisplayNameLen {
		return ErrDisplayNameTooLong
	}
	p.DisplayName = name
	return nil
}

// AnonymousProfile is what a sender resolves to when no profile row exists.
func AnonymousProfile(id UserID) Profile {
	return Profile{UserID: id, DisplayName: "Anonymous"}
}
