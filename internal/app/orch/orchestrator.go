// Package orch keeps at most one agent session per room alive.
package orch

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dkeye/voxroom/internal/app"
	"github.com/dkeye/voxroom/internal/core"
	"github.com/dkeye/voxroom/internal/domain"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/pool"
)

// WelcomeFormat greets a participant by display name.
const WelcomeFormat = "Welcome to the room, %s! I'm an AI assistant. Feel free to chat with me."

type Config struct {
	// URL is the signalling endpoint sessions connect to.
	URL      string
	Identity domain.Identity
	Name     string
	// PersistTimeout bounds every best-effort store write.
	PersistTimeout time.Duration
	SendTimeout    time.Duration
}

// entry is one row of the room table. ready is closed once the join that
// created it resolved; err and session are stable after that.
type entry struct {
	room      domain.RoomID
	createdAt time.Time
	ready     chan struct{}
	err       error
	session   core.TransportSession
}

func (e *entry) active() bool {
	select {
	case <-e.ready:
		return e.err == nil
	default:
		return false
	}
}

type Orchestrator struct {
	creds     core.CredentialIssuer
	transport core.TransportProvider
	store     core.MessageStore
	policy    app.ResponsePolicy
	cfg       Config
	logger    zerolog.Logger

	mu     sync.Mutex
	rooms  map[domain.RoomID]*entry
	closed bool
	// tasks tracks event loops and persistence writes.
	tasks conc.WaitGroup
}

// NewOrchestrator wires the agent. store may be nil, in which case nothing is persisted.
func NewOrchestrator(creds core.CredentialIssuer, transport core.TransportProvider, store core.MessageStore, policy app.ResponsePolicy, cfg Config) *Orchestrator {
	if cfg.Identity == "" {
		cfg.Identity = "ai-agent"
	}
	if cfg.Name == "" {
		cfg.Name = "AI Assistant"
	}
	if cfg.PersistTimeout <= 0 {
		cfg.PersistTimeout = 5 * time.Second
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 5 * time.Second
	}
	if policy == nil {
		policy = app.KeywordPolicy{}
	}
	return &Orchestrator{
		creds:     creds,
		transport: transport,
		store:     store,
		policy:    policy,
		cfg:       cfg,
		logger:    log.With().Str("module", "app.orch").Logger(),
		rooms:     make(map[domain.RoomID]*entry),
	}
}

// JoinRoom puts the agent into room. A room that is already Active returns
// at once; a room whose join is still in flight waits for that join and
// shares its outcome. On failure the room stays Absent and may be retried.
func (o *Orchestrator) JoinRoom(ctx context.Context, room domain.RoomID) error {
	if err := domain.ValidateRoomID(room); err != nil {
		return err
	}

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return domain.ErrShuttingDown
	}
	if e, ok := o.rooms[room]; ok {
		o.mu.Unlock()
		select {
		case <-e.ready:
			return e.err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	e := &entry{room: room, createdAt: time.Now(), ready: make(chan struct{})}
	o.rooms[room] = e
	o.mu.Unlock()

	logger := o.logger.With().Str("room", string(room)).Logger()
	logger.Info().Msg("joining room")

	s, err := o.connect(ctx, e)

	o.mu.Lock()
	if err == nil && o.closed {
		err = domain.ErrShuttingDown
	}
	if err != nil {
		if o.rooms[room] == e {
			delete(o.rooms, room)
		}
	} else {
		e.session = s
	}
	e.err = err
	close(e.ready)
	o.mu.Unlock()

	if err != nil {
		if s != nil {
			if derr := s.Disconnect(context.WithoutCancel(ctx)); derr != nil {
				logger.Warn().Err(derr).Msg("disconnect after aborted join")
			}
		}
		logger.Error().Err(err).Msg("join failed")
		return err
	}
	logger.Info().Msg("agent active")
	return nil
}

// connect returns the session whenever it got as far as a successful Connect,
// so the caller can release it if the join is aborted afterwards.
func (o *Orchestrator) connect(ctx context.Context, e *entry) (core.TransportSession, error) {
	token, err := o.creds.IssueJoinToken(ctx, e.room, o.cfg.Identity, domain.RoleAgent)
	if err != nil {
		return nil, &domain.CredentialError{Room: e.room, Identity: o.cfg.Identity, Err: err}
	}

	s := o.transport.NewSession()
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil, domain.ErrShuttingDown
	}
	o.tasks.Go(func() { o.consume(e, s) })
	o.mu.Unlock()

	opts := core.ConnectOptions{AutoSubscribe: true, Dynacast: false, AutoReconnect: false}
	if err := s.Connect(ctx, o.cfg.URL, token, opts); err != nil {
		return nil, &domain.TransportError{Op: "connect", Err: err}
	}
	return s, nil
}

// consume is the single event handler of one session. It waits for the join
// to resolve, so no event is handled against a half-built entry.
func (o *Orchestrator) consume(e *entry, s core.TransportSession) {
	<-e.ready
	if e.err != nil {
		for range s.Events() {
		}
		return
	}
	logger := o.logger.With().Str("room", string(e.room)).Logger()

	for ev := range s.Events() {
		switch ev.Kind {
		case core.EventMessageReceived:
			// No participant means the transport echoed our own line.
			if ev.Participant == nil || ev.Participant.Identity == o.cfg.Identity {
				continue
			}
			reply := o.policy.Reply(ev.Text, ev.Participant.Identity)
			o.say(e.room, s, reply, &logger)
		case core.EventParticipantJoined:
			if ev.Participant == nil || ev.Participant.Identity == o.cfg.Identity {
				continue
			}
			logger.Info().Str("identity", string(ev.Participant.Identity)).Msg("participant joined")
			o.say(e.room, s, fmt.Sprintf(WelcomeFormat, ev.Participant.DisplayName()), &logger)
		case core.EventPhaseChanged:
			if ev.Phase == domain.PhaseDisconnected {
				logger.Info().Msg("session disconnected")
				o.remove(e)
			}
		}
	}
	o.remove(e)
}

// say sends text and persists what was delivered. A failed send is logged,
// skips persistence and leaves the room Active.
func (o *Orchestrator) say(room domain.RoomID, s core.TransportSession, text string, logger *zerolog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), o.cfg.SendTimeout)
	err := s.SendText(ctx, text)
	cancel()
	if err != nil {
		logger.Error().Err(&domain.TransportError{Op: "send", Err: err}).Msg("reply not sent")
		return
	}
	o.persist(room, text)
}

func (o *Orchestrator) persist(room domain.RoomID, text string) {
	if o.store == nil {
		return
	}
	o.tasks.Go(func() {
		ctx, cancel := context.WithTimeout(context.Background(), o.cfg.PersistTimeout)
		defer cancel()
		if _, err := o.store.AppendMessage(ctx, room, o.cfg.Identity, o.cfg.Name, text); err != nil {
			o.logger.Error().Err(&domain.PersistenceError{Room: room, Err: err}).Msg("message not persisted")
		}
	})
}

// remove drops e from the table unless it was already replaced or cleared.
func (o *Orchestrator) remove(e *entry) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.rooms[e.room] == e {
		delete(o.rooms, e.room)
		o.logger.Info().Str("room", string(e.room)).Msg("room entry removed")
	}
}

// LeaveRoom disconnects the agent from room. Absent rooms are a no-op.
func (o *Orchestrator) LeaveRoom(ctx context.Context, room domain.RoomID) error {
	o.mu.Lock()
	e, ok := o.rooms[room]
	o.mu.Unlock()
	if !ok {
		return nil
	}
	select {
	case <-e.ready:
	case <-ctx.Done():
		return ctx.Err()
	}
	if e.err != nil {
		return nil
	}

	o.mu.Lock()
	if o.rooms[room] != e {
		o.mu.Unlock()
		return nil
	}
	delete(o.rooms, room)
	o.mu.Unlock()

	o.logger.Info().Str("room", string(room)).Msg("leaving room")
	if err := e.session.Disconnect(ctx); err != nil {
		return &domain.TransportError{Op: "disconnect", Err: err}
	}
	return nil
}

// Shutdown disconnects every active room in parallel, clears the table, and
// releases the transport. A failing disconnect is logged and does not stop
// the others. Safe with zero rooms and safe to call twice.
func (o *Orchestrator) Shutdown(ctx context.Context) {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	active := make([]*entry, 0, len(o.rooms))
	for _, e := range o.rooms {
		if e.active() {
			active = append(active, e)
		}
	}
	clear(o.rooms)
	o.mu.Unlock()

	o.logger.Info().Int("rooms", len(active)).Msg("shutting down")

	p := pool.New().WithMaxGoroutines(8)
	for _, e := range active {
		p.Go(func() {
			if err := e.session.Disconnect(ctx); err != nil {
				o.logger.Error().Err(err).Str("room", string(e.room)).Msg("disconnect during shutdown")
			}
		})
	}
	p.Wait()

	done := make(chan struct{})
	go func() {
		o.tasks.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		o.logger.Warn().Err(ctx.Err()).Msg("shutdown did not wait for pending tasks")
	}

	if err := o.transport.Close(); err != nil {
		o.logger.Error().Err(err).Msg("close transport")
	}
}

// IsInRoom reports whether the agent is Active in room.
func (o *Orchestrator) IsInRoom(room domain.RoomID) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	e, ok := o.rooms[room]
	return ok && e.active()
}

// ListActiveRooms returns the Active rooms sorted by id.
func (o *Orchestrator) ListActiveRooms() []domain.RoomID {
	o.mu.Lock()
	out := make([]domain.RoomID, 0, len(o.rooms))
	for id, e := range o.rooms {
		if e.active() {
			out = append(out, id)
		}
	}
	o.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
