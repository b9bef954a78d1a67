// Package wsclient connects to a voxroom server as a room participant: a
// signalling websocket plus an optional pion peer connection for audio.
package wsclient

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dkeye/voxroom/internal/core"
	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc/pool"
)

var (
	ErrProviderClosed = errors.New("transport provider closed")
	ErrSessionUsed    = errors.New("session already used")
	ErrRejected       = errors.New("server rejected join")
	ErrNoMedia        = errors.New("no media connection")
)

type Config struct {
	// Media negotiates a peer connection and publishes a microphone track.
	Media bool
	RTC   webrtc.Configuration
	// HandshakeTimeout bounds the dial plus the first room_state frame.
	HandshakeTimeout time.Duration
	// ReadTimeout is how long the socket may stay silent; server pings reset it.
	ReadTimeout time.Duration
	// ReconnectDelays are the waits before each reconnect attempt.
	ReconnectDelays []time.Duration
}

func (c Config) withDefaults() Config {
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = 10 * time.Second
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 70 * time.Second
	}
	if c.ReconnectDelays == nil {
		c.ReconnectDelays = []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}
	}
	return c
}

// Provider hands out sessions and disconnects the ones still live on Close.
type Provider struct {
	cfg    Config
	dialer *websocket.Dialer
	logger zerolog.Logger

	mu     sync.Mutex
	live   map[*Session]struct{}
	closed bool
}

func NewProvider(cfg Config) *Provider {
	cfg = cfg.withDefaults()
	return &Provider{
		cfg:    cfg,
		dialer: &websocket.Dialer{HandshakeTimeout: cfg.HandshakeTimeout},
		logger: log.With().Str("module", "adapters.wsclient").Logger(),
		live:   make(map[*Session]struct{}),
	}
}

func (p *Provider) NewSession() core.TransportSession {
	s := newSession(p.cfg, p.dialer, p.forget)
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		s.refuse = ErrProviderClosed
		return s
	}
	p.live[s] = struct{}{}
	return s
}

func (p *Provider) forget(s *Session) {
	p.mu.Lock()
	delete(p.live, s)
	p.mu.Unlock()
}

// Close disconnects every live session. Sessions created afterwards fail to connect.
func (p *Provider) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	sessions := make([]*Session, 0, len(p.live))
	for s := range p.live {
		sessions = append(sessions, s)
	}
	p.mu.Unlock()

	wp := pool.New().WithErrors().WithMaxGoroutines(8)
	for _, s := range sessions {
		wp.Go(func() error {
			ctx, cancel := context.WithTimeout(context.Background(), p.cfg.HandshakeTimeout)
			defer cancel()
			return s.Disconnect(ctx)
		})
	}
	err := wp.Wait()
	p.logger.Info().Int("sessions", len(sessions)).Msg("provider closed")
	return err
}
