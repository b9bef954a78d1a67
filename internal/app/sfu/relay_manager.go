package sfu

import (
	"context"
	"sync"

	"github.com/dkeye/voxroom/internal/core"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

type RelayManager struct {
	mu     sync.RWMutex
	relays map[core.SessionID]*Relay
}

func NewRelayManager() *RelayManager {
	return &RelayManager{
		relays: make(map[core.SessionID]*Relay),
	}
}

// StartRelay creates a Relay for the publisher sid and starts its loop.
// onSpeaking receives speaking edges computed from the published audio.
func (m *RelayManager) StartRelay(ctx context.Context, sid core.SessionID, track *webrtc.TrackRemote, onSpeaking func(bool)) {
	m.start(ctx, sid, track, TrackSource(track), onSpeaking)
}

func (m *RelayManager) start(ctx context.Context, sid core.SessionID, track *webrtc.TrackRemote, read PacketSource, onSpeaking func(bool)) *Relay {
	logger := log.With().
		Str("module", "sfu").
		Str("sid", string(sid)).
		Logger()

	relayCtx, cancel := context.WithCancel(ctx)
	relay := NewRelay(track, read, cancel)
	relay.onSpeaking = onSpeaking

	m.mu.Lock()
	if old, ok := m.relays[sid]; ok {
		logger.Info().Msg("replacing existing relay for sid")
		old.markAllDelete()
		if old.cancel != nil {
			old.cancel()
		}
	}
	m.relays[sid] = relay
	m.mu.Unlock()

	logger.Info().Msg("starting relay loop")

	go relay.loop(relayCtx, &logger)
	return relay
}

// AddSubscriber attaches an OutTrack to the relay of srcSID for dstSID.
func (m *RelayManager) AddSubscriber(srcSID, dstSID core.SessionID, localTrack RTPWriter) bool {
	relay, ok := m.relay(srcSID)
	if !ok {
		return false
	}
	relay.AddOutTrack(dstSID, NewOutTrack(localTrack))
	return true
}

// MarkSubscriberDelete marks subscriber's OutTrack as TrackStateDelete.
func (m *RelayManager) MarkSubscriberDelete(srcSID, dstSID core.SessionID) {
	relay, ok := m.relay(srcSID)
	if !ok {
		return
	}

	relay.mu.RLock()
	ot, ok := relay.outTracks[dstSID]
	relay.mu.RUnlock()
	if !ok {
		return
	}
	ot.MarkDelete()
}

// SetMuted mutes every out track of srcSID's relay.
func (m *RelayManager) SetMuted(srcSID core.SessionID, muted bool) {
	if relay, ok := m.relay(srcSID); ok {
		relay.SetMuted(muted)
	}
}

// StopRelay stops a relay and removes it from the manager.
func (m *RelayManager) StopRelay(srcSID core.SessionID) {
	m.mu.Lock()
	relay, ok := m.relays[srcSID]
	if ok {
		delete(m.relays, srcSID)
	}
	m.mu.Unlock()
	if !ok {
		return
	}
	relay.markAllDelete()
	if relay.cancel != nil {
		relay.cancel()
	}
}

// HasRelay reports whether a relay exists for sid.
func (m *RelayManager) HasRelay(sid core.SessionID) bool {
	_, ok := m.relay(sid)
	return ok
}

// SrcTrack returns the source track for a given relay.
func (m *RelayManager) SrcTrack(sid core.SessionID) (*webrtc.TrackRemote, bool) {
	relay, ok := m.relay(sid)
	if !ok || relay.Src == nil {
		return nil, false
	}
	return relay.Src, true
}

func (m *RelayManager) relay(sid core.SessionID) (*Relay, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	relay, ok := m.relays[sid]
	return relay, ok
}
