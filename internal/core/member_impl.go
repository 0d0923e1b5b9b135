package core

import "sync"

// memberSession implements MemberSession; all fields are guarded by mu.
type memberSession struct {
	mu     sync.RWMutex
	tid    TransportID
	state  MediaState
	signal SignalConnection
	media  MediaConnection
}

func NewMemberSession() MemberSession {
	return &memberSession{}
}

func (m *memberSession) TransportID() TransportID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.tid
}

func (m *memberSession) SetTransportID(id TransportID) {
	m.mu.Lock()
	m.tid = id
	m.mu.Unlock()
}

func (m *memberSession) MediaState() MediaState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

func (m *memberSession) SetMediaState(s MediaState) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}

func (m *memberSession) Signal() SignalConnection {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.signal
}

func (m *memberSession) Media() MediaConnection {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.media
}

func (m *memberSession) UpdateSignal(s SignalConnection) MemberSession {
	m.mu.Lock()
	m.signal = s
	m.mu.Unlock()
	return m
}

func (m *memberSession) UpdateMedia(mc MediaConnection) MemberSession {
	m.mu.Lock()
	m.media = mc
	m.mu.Unlock()
	return m
}
