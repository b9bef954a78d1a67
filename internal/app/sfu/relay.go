package sfu

import (
	"context"
	"maps"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dkeye/voxroom/internal/core"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
)

// PacketSource is the read side of a published track.
type PacketSource func() (*rtp.Packet, error)

// TrackSource adapts a remote track into a PacketSource.
func TrackSource(track *webrtc.TrackRemote) PacketSource {
	return func() (*rtp.Packet, error) {
		pkt, _, err := track.ReadRTP()
		return pkt, err
	}
}

type Relay struct {
	Src  *webrtc.TrackRemote
	read PacketSource

	mu        sync.RWMutex
	outTracks map[core.SessionID]*OutTrack

	muted    atomic.Bool
	edgeMu   sync.Mutex
	speaking *SpeakingDetector
	// onSpeaking is called on every speaking edge.
	onSpeaking func(bool)

	cancel context.CancelFunc
}

func NewRelay(src *webrtc.TrackRemote, read PacketSource, cancel context.CancelFunc) *Relay {
	return &Relay{
		Src:       src,
		read:      read,
		outTracks: make(map[core.SessionID]*OutTrack),
		speaking:  NewSpeakingDetector(DefaultSpeakingHold),
		cancel:    cancel,
	}
}

// loop reads RTP packets from the source and forwards them to all OutTracks.
func (r *Relay) loop(ctx context.Context, logger *zerolog.Logger) {
	defer func() {
		if r.cancel != nil {
			r.cancel()
		}
	}()
	go r.watchSpeaking(ctx)
	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("relay ctx done, marking all out tracks for delete")
			r.markAllDelete()
			r.resetSpeaking()
			return
		default:
		}
		pkt, err := r.read()
		if err != nil {
			logger.Info().Err(err).Msg("relay source ended, stopping")
			r.markAllDelete()
			r.resetSpeaking()
			return
		}
		r.observe(len(pkt.Payload), time.Now())
		r.forward(pkt, logger)
	}
}

func (r *Relay) observe(payloadLen int, now time.Time) {
	if r.muted.Load() {
		return
	}
	r.edgeMu.Lock()
	defer r.edgeMu.Unlock()
	if speaking, changed := r.speaking.Observe(payloadLen, now); changed {
		r.emitSpeaking(speaking)
	}
}

func (r *Relay) watchSpeaking(ctx context.Context) {
	t := time.NewTicker(r.speaking.hold / 4)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			r.edgeMu.Lock()
			if speaking, changed := r.speaking.Tick(now); changed {
				r.emitSpeaking(speaking)
			}
			r.edgeMu.Unlock()
		}
	}
}

func (r *Relay) resetSpeaking() {
	r.edgeMu.Lock()
	defer r.edgeMu.Unlock()
	if r.speaking.Reset() {
		r.emitSpeaking(false)
	}
}

func (r *Relay) emitSpeaking(speaking bool) {
	if r.onSpeaking != nil {
		r.onSpeaking(speaking)
	}
}

func (r *Relay) forward(pkt *rtp.Packet, logger *zerolog.Logger) {
	r.mu.RLock()
	snapshot := make(map[core.SessionID]*OutTrack, len(r.outTracks))
	maps.Copy(snapshot, r.outTracks)
	r.mu.RUnlock()

	dirty := make([]core.SessionID, 0, len(snapshot))
	for dstSID, ot := range snapshot {
		switch ot.GetState() {
		case TrackStateDelete:
			dirty = append(dirty, dstSID)
		case TrackStateMuted:
		case TrackStateOk:
			if err := ot.Track.WriteRTP(pkt); err != nil {
				logger.Error().
					Err(err).
					Str("dst_sid", string(dstSID)).
					Msg("relay write RTP error, marking outtrack as delete")
				ot.MarkDelete()
				dirty = append(dirty, dstSID)
			}
		}
	}

	if len(dirty) > 0 {
		r.cleanupDeleted(dirty)
	}
}

func (r *Relay) cleanupDeleted(dirty []core.SessionID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, sid := range dirty {
		if ot, ok := r.outTracks[sid]; ok && ot.GetState() == TrackStateDelete {
			delete(r.outTracks, sid)
		}
	}
}

func (r *Relay) markAllDelete() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ot := range r.outTracks {
		ot.MarkDelete()
	}
}

func (r *Relay) AddOutTrack(dst core.SessionID, ot *OutTrack) {
	if r.muted.Load() {
		ot.MarkMuted()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outTracks[dst] = ot
}

// SetMuted pauses or resumes forwarding to every subscriber.
func (r *Relay) SetMuted(muted bool) {
	r.muted.Store(muted)
	r.mu.RLock()
	for _, ot := range r.outTracks {
		if muted {
			ot.MarkMuted()
		} else {
			ot.MarkOk()
		}
	}
	r.mu.RUnlock()
	if muted {
		r.resetSpeaking()
	}
}

// Subscribers lists destination sessions that still receive this relay.
func (r *Relay) Subscribers() []core.SessionID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]core.SessionID, 0, len(r.outTracks))
	for sid, ot := range r.outTracks {
		if ot.GetState() != TrackStateDelete {
			out = append(out, sid)
		}
	}
	return out
}
