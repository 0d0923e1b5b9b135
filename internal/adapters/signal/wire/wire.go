// Package wire defines the JSON messages exchanged on the signaling socket.
package wire

import (
	"encoding/json"

	"github.com/dkeye/CoStudy/internal/core"
)

const (
	TypeJoin         = "join"
	TypeJoined       = "joined"
	TypeLeave        = "leave"
	TypeLeft         = "left"
	TypeMemberJoined = "member_joined"
	TypeMemberLeft   = "member_left"
	TypeMediaState   = "media_state"
	TypeOffer        = "offer"
	TypeAnswer       = "answer"
	TypeCandidate    = "candidate"
	TypePing         = "ping"
	TypePong         = "pong"
	TypeWhoAmI       = "whoami"
	TypeError        = "error"
)

// Error codes carried in Error.Error.
const (
	ErrBadPayload  = "bad_payload"
	ErrNotJoined   = "not_joined"
	ErrRateLimited = "rate_limited"
	ErrNoMedia     = "no_media"
)

// Envelope is decoded first to route a message by type.
type Envelope struct {
	Type string `json:"type"`
}

type Join struct {
	Type    string           `json:"type"`
	Channel string           `json:"channel"`
	TID     core.TransportID `json:"tid"`
}

type Joined struct {
	Type    string           `json:"type"`
	Channel string           `json:"channel"`
	TID     core.TransportID `json:"tid"`
	Members []core.MemberDTO `json:"members"`
}

// Member is the body of member_joined and member_left.
type Member struct {
	Type string           `json:"type"`
	TID  core.TransportID `json:"tid"`
}

// MediaState is sent by a member about itself (TID empty) and fanned out with TID set.
type MediaState struct {
	Type  string           `json:"type"`
	TID   core.TransportID `json:"tid,omitempty"`
	Video bool             `json:"video"`
	Audio bool             `json:"audio"`
}

type SDP struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

type Candidate struct {
	Type          string  `json:"type"`
	Candidate     string  `json:"candidate"`
	SDPMid        *string `json:"sdpMid,omitempty"`
	SDPMLineIndex *uint16 `json:"sdpMLineIndex,omitempty"`
}

type WhoAmI struct {
	Type    string           `json:"type"`
	SID     string           `json:"sid"`
	Channel string           `json:"channel,omitempty"`
	TID     core.TransportID `json:"tid,omitempty"`
}

type Error struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

// Simple is a message with no body (leave, left, ping, pong, whoami).
type Simple struct {
	Type string `json:"type"`
}

func NewError(code string) Error { return Error{Type: TypeError, Error: code} }

// Encode marshals v into a frame.
func Encode(v any) (core.Frame, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return core.Frame(b), nil
}
