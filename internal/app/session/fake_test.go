package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/dkeye/CoStudy/internal/core"
)

type fakeTrack string

func (t fakeTrack) ID() string { return string(t) }

// fakeTransport records calls in order and can fail a join.
type fakeTransport struct {
	mu      sync.Mutex
	events  core.TransportEvents
	calls   []string
	joinErr error
	joined  bool
	channel string
	localID core.TransportID
	camera  bool
	mic     bool
	// block, when set, holds a join until it is closed or the context ends.
	block chan struct{}
}

func (f *fakeTransport) log(s string) {
	f.calls = append(f.calls, s)
}

func (f *fakeTransport) Initialize(ev core.TransportEvents) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = ev
	f.log("init")
	return nil
}

func (f *fakeTransport) JoinAsBroadcaster(ctx context.Context, channel string, id core.TransportID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.log("join")
	if block := f.block; block != nil {
		f.mu.Unlock()
		select {
		case <-block:
		case <-ctx.Done():
			f.mu.Lock()
			return ctx.Err()
		}
		f.mu.Lock()
	}
	if f.joinErr != nil {
		return f.joinErr
	}
	f.joined, f.channel, f.localID = true, channel, id
	return nil
}

func (f *fakeTransport) Leave(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.log("leave")
	f.joined = false
	return nil
}

func (f *fakeTransport) SetCameraEnabled(_ context.Context, on bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.log(fmt.Sprintf("camera:%v", on))
	f.camera = on
	return nil
}

func (f *fakeTransport) SetMicrophoneEnabled(_ context.Context, on bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.log(fmt.Sprintf("mic:%v", on))
	f.mic = on
	return nil
}

func (f *fakeTransport) LocalVideoTrack() core.VideoTrack {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.camera {
		return nil
	}
	return fakeTrack("local")
}

func (f *fakeTransport) snapshot() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeTransport) isJoined() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.joined
}

type noticeLog struct {
	mu    sync.Mutex
	kinds []core.NoticeKind
}

func (n *noticeLog) Notice(kind core.NoticeKind, _ string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.kinds = append(n.kinds, kind)
}

func (n *noticeLog) has(kind core.NoticeKind) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, k := range n.kinds {
		if k == kind {
			return true
		}
	}
	return false
}
