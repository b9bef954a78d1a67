package wsclient

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/dkeye/voxroom/internal/adapters/rtc"
	"github.com/dkeye/voxroom/internal/core"
	"github.com/dkeye/voxroom/internal/domain"
	"github.com/dkeye/voxroom/internal/wire"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
)

const frameDuration = 20 * time.Millisecond

// silenceFrame is an Opus frame that decodes to silence.
var silenceFrame = []byte{0xF8, 0xFF, 0xFE}

// microphone publishes an Opus track. There is no capture device, so it feeds
// silence while enabled and nothing while muted.
type microphone struct {
	track   *webrtc.TrackLocalStaticSample
	enabled atomic.Bool
	cancel  context.CancelFunc
}

func newMicrophone(identity domain.Identity) (*microphone, error) {
	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2},
		"audio", string(identity),
	)
	if err != nil {
		return nil, err
	}
	return &microphone{track: track}, nil
}

func (m *microphone) SetEnabled(enabled bool) { m.enabled.Store(enabled) }

// start feeds frames until Stop or ctx is done.
func (m *microphone) start(ctx context.Context) {
	ctx, m.cancel = context.WithCancel(ctx)
	go m.run(ctx)
}

func (m *microphone) run(ctx context.Context) {
	t := time.NewTicker(frameDuration)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if !m.enabled.Load() {
				continue
			}
			_ = m.track.WriteSample(media.Sample{Data: silenceFrame, Duration: frameDuration})
		}
	}
}

func (m *microphone) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
}

func closeMedia(mc *rtc.Connection, mic *microphone) {
	if mic != nil {
		mic.Stop()
	}
	if mc != nil {
		mc.Close()
	}
}

// startMedia opens a peer connection, publishes the microphone and sends the offer.
func (s *Session) startMedia() error {
	local := s.Local()
	mc, err := rtc.NewConnection(s.cfg.RTC, string(local.Identity))
	if err != nil {
		return err
	}
	mc.OnTrack(func(_ context.Context, track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		s.onTrack(track)
	})
	if err := mc.Start(s.ctx); err != nil {
		mc.Close()
		return err
	}

	mic, err := newMicrophone(local.Identity)
	if err != nil {
		mc.Close()
		return err
	}
	sender, err := mc.AddLocalTrack(mic.track)
	if err != nil {
		mc.Close()
		return err
	}
	go drainRTCP(sender)
	mic.SetEnabled(local.AudioEnabled)

	offer, err := mc.CreateOffer()
	if err != nil {
		mc.Close()
		return err
	}

	s.mu.Lock()
	if s.released || s.conn == nil {
		s.mu.Unlock()
		mc.Close()
		return domain.ErrSessionClosed
	}
	mic.start(s.ctx)
	s.media, s.mic = mc, mic
	conn := s.conn
	s.mu.Unlock()

	return s.write(s.ctx, conn, wire.SDP{Type: wire.TypeOffer, SDP: offer.SDP})
}

// answerOffer handles server-initiated renegotiation after a new subscription.
func (s *Session) answerOffer(offer webrtc.SessionDescription) {
	s.mu.Lock()
	mc, conn := s.media, s.conn
	s.mu.Unlock()
	if mc == nil || conn == nil {
		s.logger.Warn().Msg("offer without media connection")
		return
	}
	answer, err := mc.ApplyOfferAndCreateAnswer(offer)
	if err != nil {
		s.logger.Error().Err(err).Msg("answer renegotiation")
		return
	}
	if err := s.write(s.ctx, conn, wire.SDP{Type: wire.TypeAnswer, SDP: answer.SDP}); err != nil {
		s.logger.Warn().Err(err).Msg("send answer")
	}
}

// onTrack announces a subscribed remote track and discards its packets; the
// stream id is the publisher's identity.
func (s *Session) onTrack(track *webrtc.TrackRemote) {
	id := domain.Identity(track.StreamID())
	s.mu.Lock()
	info, ok := findIdentity(s.remotes, id)
	s.mu.Unlock()
	if !ok {
		info = core.ParticipantInfo{Identity: id}
	}
	s.emit(core.ParticipantEvent(core.EventTrackSubscribed, info))
	s.logger.Info().Str("publisher", string(id)).Msg("track subscribed")

	for {
		if _, _, err := track.ReadRTP(); err != nil {
			return
		}
	}
}

func (s *Session) currentMedia() *rtc.Connection {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.media
}

func drainRTCP(sender *webrtc.RTPSender) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := sender.Read(buf); err != nil {
			return
		}
	}
}
