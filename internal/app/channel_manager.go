package app

import (
	"sync"

	"github.com/dkeye/CoStudy/internal/core"
)

type ChannelManagerImpl struct {
	mu       sync.RWMutex
	channels map[string]core.ChannelService
}

func NewChannelManager() core.ChannelManager {
	return &ChannelManagerImpl{channels: make(map[string]core.ChannelService)}
}

func (f *ChannelManagerImpl) GetOrCreate(name string) core.ChannelService {
	f.mu.RLock()
	ch, ok := f.channels[name]
	f.mu.RUnlock()
	if ok {
		return ch
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if ch, ok = f.channels[name]; ok {
		return ch
	}
	ch = core.NewChannelService(name)
	f.channels[name] = ch
	return ch
}

func (f *ChannelManagerImpl) Get(name string) (core.ChannelService, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	ch, ok := f.channels[name]
	return ch, ok
}

func (f *ChannelManagerImpl) List() []core.ChannelInfo {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]core.ChannelInfo, 0, len(f.channels))
	for name, ch := range f.channels {
		out = append(out, core.ChannelInfo{Name: name, MemberCount: ch.MemberCount()})
	}
	return out
}

func (f *ChannelManagerImpl) StopChannel(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.channels, name)
}
