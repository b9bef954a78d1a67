// Package coretest provides a scripted in-memory transport for tests.
package coretest

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dkeye/voxroom/internal/core"
	"github.com/dkeye/voxroom/internal/domain"
)

var ErrScripted = errors.New("scripted failure")

// Provider hands out fake sessions and remembers them.
type Provider struct {
	// Configure is applied to each session before it is returned.
	Configure func(s *Session)
	CloseErr  error

	mu       sync.Mutex
	sessions []*Session
	closed   bool
}

func NewProvider() *Provider { return &Provider{} }

func (p *Provider) NewSession() core.TransportSession {
	s := NewSession()
	if p.Configure != nil {
		p.Configure(s)
	}
	p.mu.Lock()
	p.sessions = append(p.sessions, s)
	p.mu.Unlock()
	return s
}

func (p *Provider) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	return p.CloseErr
}

func (p *Provider) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *Provider) Sessions() []*Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*Session(nil), p.sessions...)
}

// Live counts sessions that connected and have not been torn down.
func (p *Provider) Live() int {
	n := 0
	for _, s := range p.Sessions() {
		if s.Phase() == domain.PhaseConnected {
			n++
		}
	}
	return n
}

// Session is a scripted core.TransportSession.
// The local identity is taken from the token passed to Connect.
type Session struct {
	ConnectErr    error
	DisconnectErr error
	SendErr       error
	AudioErr      error
	Protocol      string
	// ConnectHook runs inside Connect before the outcome is decided.
	ConnectHook func(ctx context.Context) error

	q *core.EventQueue

	mu          sync.Mutex
	phase       domain.Phase
	opts        core.ConnectOptions
	local       core.ParticipantInfo
	remotes     []core.ParticipantInfo
	sent        []string
	connects    int
	disconnects int
	released    bool
}

func NewSession() *Session {
	return &Session{q: core.NewEventQueue(), Protocol: "udp"}
}

func (s *Session) Connect(ctx context.Context, _ string, token string, opts core.ConnectOptions) error {
	s.mu.Lock()
	s.connects++
	s.opts = opts
	s.phase = domain.PhaseConnecting
	hook := s.ConnectHook
	s.mu.Unlock()

	err := s.ConnectErr
	if hook != nil {
		if herr := hook(ctx); herr != nil {
			err = herr
		}
	}
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		s.mu.Lock()
		s.phase = domain.PhaseDisconnected
		s.released = true
		s.mu.Unlock()
		s.q.Close()
		return err
	}

	s.mu.Lock()
	s.phase = domain.PhaseConnected
	s.local = core.ParticipantInfo{Identity: domain.Identity(token), Name: token}
	s.mu.Unlock()
	s.q.Push(core.PhaseEvent(domain.PhaseConnected))
	return nil
}

func (s *Session) Disconnect(context.Context) error {
	s.mu.Lock()
	s.disconnects++
	wasLive := !s.released
	s.released = true
	s.phase = domain.PhaseDisconnected
	s.mu.Unlock()
	if wasLive {
		s.q.Push(core.PhaseEvent(domain.PhaseDisconnected))
	}
	s.q.Close()
	return s.DisconnectErr
}

func (s *Session) SendText(_ context.Context, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return domain.ErrSessionClosed
	}
	if s.SendErr != nil {
		return s.SendErr
	}
	s.sent = append(s.sent, text)
	return nil
}

func (s *Session) SetLocalAudioEnabled(_ context.Context, enabled bool) error {
	if s.AudioErr != nil {
		return s.AudioErr
	}
	s.mu.Lock()
	s.local.AudioEnabled = enabled
	s.mu.Unlock()
	return nil
}

func (s *Session) Events() <-chan core.Event { return s.q.C() }

func (s *Session) Local() core.ParticipantInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.local
}

func (s *Session) Remotes() []core.ParticipantInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.ParticipantInfo(nil), s.remotes...)
}

func (s *Session) Phase() domain.Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

func (s *Session) TransportProtocol(context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return "", domain.ErrSessionClosed
	}
	return s.Protocol, nil
}

// Scripting helpers.

func (s *Session) Options() core.ConnectOptions {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opts
}

func (s *Session) Sent() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.sent...)
}

func (s *Session) Disconnects() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disconnects
}

func (s *Session) Emit(ev core.Event) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	s.q.Push(ev)
}

// Join adds a remote participant and emits the join event.
func (s *Session) Join(p core.ParticipantInfo) {
	s.mu.Lock()
	s.remotes = append(s.remotes, p)
	s.mu.Unlock()
	s.Emit(core.ParticipantEvent(core.EventParticipantJoined, p))
}

// Leave removes a remote participant and emits the leave event.
func (s *Session) Leave(id domain.Identity) {
	s.mu.Lock()
	var gone core.ParticipantInfo
	for i, p := range s.remotes {
		if p.Identity == id {
			gone = p
			s.remotes = append(s.remotes[:i], s.remotes[i+1:]...)
			break
		}
	}
	s.mu.Unlock()
	s.Emit(core.ParticipantEvent(core.EventParticipantLeft, gone))
}

// SetSpeaking flips a remote's speaking flag without emitting anything.
func (s *Session) SetSpeaking(id domain.Identity, speaking bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.remotes {
		if s.remotes[i].Identity == id {
			s.remotes[i].Speaking = speaking
		}
	}
}

// Say delivers a chat line. An empty from means no participant reference.
func (s *Session) Say(from domain.Identity, text string) {
	ev := core.Event{Kind: core.EventMessageReceived, Text: text, At: time.Now()}
	if from != "" {
		ev.Participant = &core.ParticipantInfo{Identity: from}
	}
	s.q.Push(ev)
}

// Drop simulates the network or the server ending the session.
func (s *Session) Drop() {
	s.mu.Lock()
	s.released = true
	s.phase = domain.PhaseDisconnected
	s.mu.Unlock()
	s.q.Push(core.PhaseEvent(domain.PhaseDisconnected))
	s.q.Close()
}
