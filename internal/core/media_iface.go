package core

import (
	"context"

	"github.com/pion/webrtc/v4"
)

// MediaConnection is the server end of one member's peer connection.
type MediaConnection interface {
	// Start configures internal callbacks and binds the connection lifetime to ctx.
	Start(ctx context.Context) error
	// Close should stop all underlying media resources.
	Close()
	IsClosed() bool
	AddICECandidate(webrtc.ICECandidateInit) error
	// ApplyOfferAndCreateAnswer answers a client-initiated offer.
	ApplyOfferAndCreateAnswer(webrtc.SessionDescription) (*webrtc.SessionDescription, error)
	// ApplyAnswer completes a server-initiated renegotiation.
	ApplyAnswer(webrtc.SessionDescription) error
	CreateAndSetOffer() (*webrtc.SessionDescription, error)
	// OnICECandidate sets a callback for newly gathered local ICE candidates.
	OnICECandidate(func(webrtc.ICECandidateInit))
	// OnTrack sets a callback that will be invoked when a new remote track arrives.
	OnTrack(func(ctx context.Context, track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver))
	// OnNegotiationNeeded fires after local tracks were added or removed.
	OnNegotiationNeeded(func())
	// AddLocalTrack attaches a local static RTP track to the underlying PeerConnection.
	AddLocalTrack(track *webrtc.TrackLocalStaticRTP) (*webrtc.RTPSender, error)
	RemoveTrack(sender *webrtc.RTPSender) error
	// OnClosed sets a callback for cleanup media session.
	OnClosed(func())
}
