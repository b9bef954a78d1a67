// Package projector turns one transport session into an observable client state.
package projector

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dkeye/voxroom/internal/core"
	"github.com/dkeye/voxroom/internal/domain"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	DisconnectedEntry = "Disconnected from room"
	connectedFormat   = "Connected to room: %s"
	joinedFormat      = "%s joined"
	leftFormat        = "%s left"
)

// Snapshot is a consistent copy of everything an observer may render.
type Snapshot struct {
	Room         domain.RoomID
	Identity     domain.Identity
	Phase        domain.Phase
	Participants []domain.ParticipantView
	Transcript   []domain.ChatEntry
	// Transport is the upper-cased protocol label, or domain.UnknownTransport.
	Transport string
	Muted     bool
	// Version increases with every published change.
	Version uint64
}

type Config struct {
	URL           string
	StatsInterval time.Duration
	AutoReconnect bool
	SendTimeout   time.Duration
}

// liveSession is the one session the projector owns at a time.
type liveSession struct {
	s        core.TransportSession
	room     domain.RoomID
	identity domain.Identity
	// detached is set once teardown began; events still draining are ignored.
	detached atomic.Bool
	// ready gates the consumer until Connect has resolved.
	ready chan struct{}
	done  chan struct{}
	stop  context.CancelFunc
}

type Projector struct {
	creds     core.CredentialIssuer
	transport core.TransportProvider
	// store, when set, receives a best-effort copy of every line sent.
	store  core.MessageStore
	cfg    Config
	logger zerolog.Logger

	// opMu serialises Connect, Disconnect, ToggleMute and SendChat.
	opMu sync.Mutex

	mu    sync.RWMutex
	live  *liveSession
	state Snapshot

	pubMu    sync.Mutex
	watchers []chan Snapshot
}

func New(creds core.CredentialIssuer, transport core.TransportProvider, store core.MessageStore, cfg Config) *Projector {
	if cfg.StatsInterval <= 0 {
		cfg.StatsInterval = 2 * time.Second
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 5 * time.Second
	}
	return &Projector{
		creds:     creds,
		transport: transport,
		store:     store,
		cfg:       cfg,
		logger:    log.With().Str("module", "app.projector").Logger(),
		state:     Snapshot{Phase: domain.PhaseDisconnected, Transport: domain.UnknownTransport},
	}
}

// Snapshot returns a deep copy of the current state.
func (p *Projector) Snapshot() Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.copyLocked()
}

func (p *Projector) copyLocked() Snapshot {
	out := p.state
	out.Participants = append([]domain.ParticipantView(nil), p.state.Participants...)
	out.Transcript = append([]domain.ChatEntry(nil), p.state.Transcript...)
	return out
}

// Watch returns a channel that always holds the latest snapshot. Slow readers
// skip intermediate versions. The channel is never closed.
func (p *Projector) Watch() <-chan Snapshot {
	ch := make(chan Snapshot, 1)
	p.pubMu.Lock()
	defer p.pubMu.Unlock()
	// Seed before registering so no publisher can fill the slot first.
	ch <- p.Snapshot()
	p.watchers = append(p.watchers, ch)
	return ch
}

// update mutates state under the lock and publishes the result.
func (p *Projector) update(fn func(st *Snapshot)) {
	p.pubMu.Lock()
	defer p.pubMu.Unlock()

	p.mu.Lock()
	fn(&p.state)
	p.state.Version++
	snap := p.copyLocked()
	p.mu.Unlock()

	for _, ch := range p.watchers {
		select {
		case <-ch:
		default:
		}
		ch <- snap
	}
}

// Connect joins room as identity. On failure nothing of the attempt stays
// visible and the phase is back to Disconnected.
func (p *Projector) Connect(ctx context.Context, room domain.RoomID, identity domain.Identity) error {
	if err := domain.ValidateRoomID(room); err != nil {
		return err
	}
	if err := domain.ValidateIdentity(identity); err != nil {
		return err
	}

	p.opMu.Lock()
	defer p.opMu.Unlock()

	p.teardown(ctx, p.current(), false)
	logger := p.logger.With().Str("room", string(room)).Str("identity", string(identity)).Logger()

	p.update(func(st *Snapshot) {
		*st = Snapshot{Room: room, Identity: identity, Phase: domain.PhaseConnecting, Transport: domain.UnknownTransport, Version: st.Version}
	})

	fail := func(err error) error {
		p.update(func(st *Snapshot) {
			*st = Snapshot{Phase: domain.PhaseDisconnected, Transport: domain.UnknownTransport, Version: st.Version}
		})
		logger.Error().Err(err).Msg("connect failed")
		return &domain.ConnectionError{Room: room, Identity: identity, Err: err}
	}

	token, err := p.creds.IssueJoinToken(ctx, room, identity, domain.RoleParticipant)
	if err != nil {
		return fail(&domain.CredentialError{Room: room, Identity: identity, Err: err})
	}

	s := p.transport.NewSession()
	samplerCtx, stop := context.WithCancel(context.Background())
	ls := &liveSession{s: s, room: room, identity: identity, ready: make(chan struct{}), done: make(chan struct{}), stop: stop}
	go p.consume(ls)

	opts := core.ConnectOptions{AutoSubscribe: true, Dynacast: true, AutoReconnect: p.cfg.AutoReconnect}
	if err := s.Connect(ctx, p.cfg.URL, token, opts); err != nil {
		ls.detached.Store(true)
		stop()
		close(ls.ready)
		<-ls.done
		return fail(&domain.TransportError{Op: "connect", Err: err})
	}
	if err := s.SetLocalAudioEnabled(ctx, true); err != nil {
		logger.Warn().Err(&domain.TransportError{Op: "publish audio", Err: err}).Msg("microphone not published")
	}

	p.mu.Lock()
	p.live = ls
	p.mu.Unlock()

	p.update(func(st *Snapshot) {
		st.Phase = domain.PhaseConnected
		st.Muted = !s.Local().AudioEnabled
		st.Participants = roster(s)
		st.Transcript = append(st.Transcript, systemEntry(fmt.Sprintf(connectedFormat, room)))
	})
	go p.sample(samplerCtx, ls)
	close(ls.ready)
	logger.Info().Msg("connected")
	return nil
}

// Disconnect releases the session. No-op when already disconnected.
func (p *Projector) Disconnect(ctx context.Context) error {
	p.opMu.Lock()
	defer p.opMu.Unlock()
	p.teardown(ctx, p.current(), false)
	return nil
}

// teardown detaches the live session, disconnects it and resets derived state.
// external marks a disconnect the transport reported on its own.
func (p *Projector) teardown(ctx context.Context, ls *liveSession, external bool) {
	if ls == nil {
		return
	}
	p.mu.Lock()
	if p.live == ls {
		p.live = nil
	}
	p.mu.Unlock()
	if ls.detached.Swap(true) {
		return
	}
	ls.stop()
	if !external {
		if err := ls.s.Disconnect(ctx); err != nil {
			p.logger.Warn().Err(err).Str("room", string(ls.room)).Msg("disconnect")
		}
	}
	p.update(func(st *Snapshot) {
		st.Phase = domain.PhaseDisconnected
		st.Participants = nil
		st.Transport = domain.UnknownTransport
		st.Muted = false
		if external {
			st.Transcript = append(st.Transcript, systemEntry(DisconnectedEntry))
		}
	})
	p.logger.Info().Str("room", string(ls.room)).Bool("external", external).Msg("disconnected")
}

// ToggleMute flips the local microphone. No-op without a session.
func (p *Projector) ToggleMute(ctx context.Context) error {
	p.opMu.Lock()
	defer p.opMu.Unlock()

	ls := p.current()
	if ls == nil {
		return nil
	}
	enabled := !ls.s.Local().AudioEnabled
	if err := ls.s.SetLocalAudioEnabled(ctx, enabled); err != nil {
		return &domain.TransportError{Op: "mute", Err: err}
	}
	p.update(func(st *Snapshot) {
		if ls.detached.Load() {
			return
		}
		st.Muted = !enabled
		st.Participants = roster(ls.s)
	})
	return nil
}

// SendChat sends text and appends it locally once. Blank text is ignored.
func (p *Projector) SendChat(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	p.opMu.Lock()
	defer p.opMu.Unlock()

	ls := p.current()
	if ls == nil {
		return domain.ErrNotConnected
	}
	if err := ls.s.SendText(ctx, text); err != nil {
		return &domain.TransportError{Op: "send", Err: err}
	}
	p.update(func(st *Snapshot) {
		if ls.detached.Load() {
			return
		}
		st.Transcript = append(st.Transcript, domain.ChatEntry{
			SenderIdentity: ls.identity,
			Text:           text,
			Timestamp:      time.Now(),
			IsLocal:        true,
		})
	})
	p.persist(ls, text)
	return nil
}

func (p *Projector) persist(ls *liveSession, text string) {
	if p.store == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), p.cfg.SendTimeout)
		defer cancel()
		if _, err := p.store.AppendMessage(ctx, ls.room, ls.identity, string(ls.identity), text); err != nil {
			p.logger.Warn().Err(&domain.PersistenceError{Room: ls.room, Err: err}).Msg("message not persisted")
		}
	}()
}

func (p *Projector) current() *liveSession {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.live
}

func systemEntry(text string) domain.ChatEntry {
	return domain.ChatEntry{Text: text, Timestamp: time.Now(), IsSystem: true}
}

// roster rebuilds the participant list from the transport: local first, then remotes in join order.
func roster(s core.TransportSession) []domain.ParticipantView {
	local := s.Local()
	remotes := s.Remotes()
	out := make([]domain.ParticipantView, 0, 1+len(remotes))
	out = append(out, domain.ParticipantView{
		Identity:     local.Identity,
		IsSelf:       true,
		IsSpeaking:   local.Speaking,
		AudioEnabled: local.AudioEnabled,
	})
	for _, r := range remotes {
		out = append(out, domain.ParticipantView{
			Identity:     r.Identity,
			IsSpeaking:   r.Speaking,
			AudioEnabled: r.AudioEnabled,
		})
	}
	return out
}
