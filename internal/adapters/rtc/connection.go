package rtc

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var ErrNoSelectedPair = errors.New("no selected candidate pair")

// Connection wraps one pion PeerConnection. The server uses it as answerer,
// the client as offerer; either side may renegotiate.
type Connection struct {
	pc     *webrtc.PeerConnection
	logger zerolog.Logger
	cancel context.CancelFunc

	mu       sync.Mutex
	onICE    func(webrtc.ICECandidateInit)
	onTrack  func(ctx context.Context, track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver)
	onClosed func()
	closed   bool

	negMu       sync.Mutex
	negotiating bool
	pending     bool
	sendOffer   func(webrtc.SessionDescription)
}

func DefaultWebRTCConfig(iceServers []string) webrtc.Configuration {
	if len(iceServers) == 0 {
		iceServers = []string{"stun:stun.l.google.com:19302"}
	}
	return webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{{URLs: iceServers}},
	}
}

func NewConnection(cfg webrtc.Configuration, owner string) (*Connection, error) {
	pc, err := webrtc.NewPeerConnection(cfg)
	if err != nil {
		return nil, err
	}
	return &Connection{
		pc:     pc,
		logger: log.With().Str("module", "adapters.rtc").Str("owner", owner).Logger(),
	}, nil
}

func (c *Connection) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	c.pc.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) {
		c.logger.Info().Str("ice_state", s.String()).Msg("ICE state")
		if s == webrtc.ICEConnectionStateFailed || s == webrtc.ICEConnectionStateClosed {
			cancel()
		}
	})

	c.pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		c.logger.Info().Str("peer_connection_state", s.String()).Msg("Peer state")
		if s == webrtc.PeerConnectionStateFailed || s == webrtc.PeerConnectionStateClosed {
			c.fireClosed()
		}
	})

	c.pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		c.mu.Lock()
		fn := c.onICE
		c.mu.Unlock()
		if cand != nil && fn != nil {
			fn(cand.ToJSON())
		}
	})

	c.pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		c.logger.Info().
			Str("kind", track.Kind().String()).
			Str("track_id", track.ID()).
			Str("stream_id", track.StreamID()).
			Msg("OnTrack received")
		c.mu.Lock()
		fn := c.onTrack
		c.mu.Unlock()
		if fn != nil {
			fn(ctx, track, receiver)
		}
	})

	c.pc.OnSignalingStateChange(func(s webrtc.SignalingState) {
		if s == webrtc.SignalingStateStable {
			c.negotiationDone()
		}
	})
	return nil
}

// ApplyOfferAndCreateAnswer answers a remote offer; candidates are gathered before returning.
func (c *Connection) ApplyOfferAndCreateAnswer(offer webrtc.SessionDescription) (*webrtc.SessionDescription, error) {
	if err := c.pc.SetRemoteDescription(offer); err != nil {
		return nil, err
	}
	answer, err := c.pc.CreateAnswer(nil)
	if err != nil {
		return nil, err
	}

	gatherComplete := webrtc.GatheringCompletePromise(c.pc)
	if err := c.pc.SetLocalDescription(answer); err != nil {
		return nil, err
	}
	<-gatherComplete

	return c.pc.LocalDescription(), nil
}

// CreateOffer starts a local offer for the initial negotiation.
func (c *Connection) CreateOffer() (*webrtc.SessionDescription, error) {
	c.negMu.Lock()
	c.negotiating = true
	c.negMu.Unlock()

	offer, err := c.pc.CreateOffer(nil)
	if err != nil {
		c.negotiationDone()
		return nil, err
	}
	gatherComplete := webrtc.GatheringCompletePromise(c.pc)
	if err := c.pc.SetLocalDescription(offer); err != nil {
		c.negotiationDone()
		return nil, err
	}
	<-gatherComplete
	return c.pc.LocalDescription(), nil
}

func (c *Connection) ApplyAnswer(answer webrtc.SessionDescription) error {
	return c.pc.SetRemoteDescription(answer)
}

// Renegotiate sends a fresh offer through send. While an offer is outstanding
// further calls are folded into one follow-up offer.
func (c *Connection) Renegotiate(send func(webrtc.SessionDescription)) error {
	c.negMu.Lock()
	c.sendOffer = send
	if c.negotiating {
		c.pending = true
		c.negMu.Unlock()
		return nil
	}
	c.negotiating = true
	c.negMu.Unlock()
	return c.offer(send)
}

func (c *Connection) offer(send func(webrtc.SessionDescription)) error {
	offer, err := c.pc.CreateOffer(nil)
	if err == nil {
		err = c.pc.SetLocalDescription(offer)
	}
	if err != nil {
		c.negMu.Lock()
		c.negotiating = false
		c.negMu.Unlock()
		return err
	}
	send(*c.pc.LocalDescription())
	return nil
}

func (c *Connection) negotiationDone() {
	c.negMu.Lock()
	if !c.pending {
		c.negotiating = false
		c.negMu.Unlock()
		return
	}
	c.pending = false
	send := c.sendOffer
	c.negMu.Unlock()
	if send == nil {
		return
	}
	go func() {
		if err := c.offer(send); err != nil {
			c.logger.Error().Err(err).Msg("follow-up offer")
		}
	}()
}

func (c *Connection) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	if c.cancel != nil {
		c.cancel()
	}
	if err := c.pc.Close(); err != nil {
		c.logger.Error().Err(err).Msg("close error")
	} else {
		c.logger.Info().Msg("closed")
	}
	c.fireClosed()
}

func (c *Connection) fireClosed() {
	c.mu.Lock()
	fn := c.onClosed
	c.onClosed = nil
	c.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (c *Connection) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Connection) AddICECandidate(ci webrtc.ICECandidateInit) error {
	return c.pc.AddICECandidate(ci)
}

func (c *Connection) OnICECandidate(fn func(webrtc.ICECandidateInit)) {
	c.mu.Lock()
	c.onICE = fn
	c.mu.Unlock()
}

// OnTrack sets application-level callback for remote tracks.
func (c *Connection) OnTrack(fn func(ctx context.Context, track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver)) {
	c.mu.Lock()
	c.onTrack = fn
	c.mu.Unlock()
}

// OnClosed sets a callback fired once when the connection is gone.
func (c *Connection) OnClosed(fn func()) {
	c.mu.Lock()
	c.onClosed = fn
	c.mu.Unlock()
}

func (c *Connection) AddLocalTrack(track webrtc.TrackLocal) (*webrtc.RTPSender, error) {
	return c.pc.AddTrack(track)
}

// AddRecvOnlyAudio lets an offerer receive audio without publishing any.
func (c *Connection) AddRecvOnlyAudio() error {
	_, err := c.pc.AddTransceiverFromKind(webrtc.RTPCodecTypeAudio, webrtc.RTPTransceiverInit{
		Direction: webrtc.RTPTransceiverDirectionRecvonly,
	})
	return err
}

// Protocol reports the transport protocol of the nominated candidate pair, e.g. "udp" or "tcp".
func (c *Connection) Protocol() (string, error) {
	if c.IsClosed() {
		return "", ErrNoSelectedPair
	}
	return SelectedProtocol(c.pc.GetStats())
}

// SelectedProtocol digs the local candidate protocol of the active pair out of a stats report.
func SelectedProtocol(report webrtc.StatsReport) (string, error) {
	for _, s := range report {
		pair, ok := s.(webrtc.ICECandidatePairStats)
		if !ok || !pair.Nominated || pair.State != webrtc.StatsICECandidatePairStateSucceeded {
			continue
		}
		if local, ok := report[pair.LocalCandidateID].(webrtc.ICECandidateStats); ok && local.Protocol != "" {
			return strings.ToLower(local.Protocol), nil
		}
	}
	return "", ErrNoSelectedPair
}
