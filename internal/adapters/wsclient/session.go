package wsclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/dkeye/voxroom/internal/adapters/rtc"
	"github.com/dkeye/voxroom/internal/core"
	"github.com/dkeye/voxroom/internal/domain"
	"github.com/dkeye/voxroom/internal/wire"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const writeWait = 5 * time.Second

// Session is one participant connection. It is single-use: once it reaches
// PhaseDisconnected its event channel is closed and it cannot connect again.
type Session struct {
	cfg    Config
	dialer *websocket.Dialer
	logger zerolog.Logger
	q      *core.EventQueue
	onDone func(*Session)
	// refuse, when set, fails Connect immediately.
	refuse error

	ctx  context.Context
	stop context.CancelFunc

	// wmu serialises writes on the websocket.
	wmu sync.Mutex

	mu       sync.Mutex
	conn     *websocket.Conn
	url      string
	token    string
	opts     core.ConnectOptions
	phase    domain.Phase
	local    core.ParticipantInfo
	remotes  []core.ParticipantInfo
	media    *rtc.Connection
	mic      *microphone
	used     bool
	released bool
}

func newSession(cfg Config, dialer *websocket.Dialer, onDone func(*Session)) *Session {
	ctx, stop := context.WithCancel(context.Background())
	return &Session{
		cfg:    cfg,
		dialer: dialer,
		logger: log.With().Str("module", "adapters.wsclient").Logger(),
		q:      core.NewEventQueue(),
		onDone: onDone,
		ctx:    ctx,
		stop:   stop,
	}
}

// Connect dials the signalling endpoint at serverURL and waits for the room state.
func (s *Session) Connect(ctx context.Context, serverURL, token string, opts core.ConnectOptions) error {
	s.mu.Lock()
	if s.used {
		s.mu.Unlock()
		return ErrSessionUsed
	}
	s.used = true
	s.url, s.token, s.opts = serverURL, token, opts
	s.phase = domain.PhaseConnecting
	s.mu.Unlock()

	if s.refuse != nil {
		s.terminate(false)
		return s.refuse
	}

	conn, state, err := s.dial(ctx)
	if err != nil {
		s.terminate(false)
		return err
	}

	s.mu.Lock()
	if s.released {
		s.mu.Unlock()
		_ = conn.Close()
		return domain.ErrSessionClosed
	}
	s.conn = conn
	s.applyStateLocked(state)
	s.phase = domain.PhaseConnected
	s.logger = s.logger.With().Str("room", string(state.Room)).Str("identity", string(s.local.Identity)).Logger()
	s.mu.Unlock()

	s.q.Push(core.PhaseEvent(domain.PhaseConnected))
	go s.readLoop(conn)
	s.logger.Info().Msg("connected")

	if s.cfg.Media {
		if err := s.startMedia(); err != nil {
			s.logger.Warn().Err(err).Msg("media negotiation failed, continuing without audio")
		}
	}
	return nil
}

func (s *Session) dial(ctx context.Context) (*websocket.Conn, wire.RoomState, error) {
	var state wire.RoomState

	u, err := url.Parse(s.url)
	if err != nil {
		return nil, state, fmt.Errorf("parse server url: %w", err)
	}
	q := u.Query()
	q.Set("token", s.token)
	q.Set("auto_subscribe", strconv.FormatBool(s.opts.AutoSubscribe))
	q.Set("dynacast", strconv.FormatBool(s.opts.Dynacast))
	u.RawQuery = q.Encode()

	conn, resp, err := s.dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil {
			return nil, state, fmt.Errorf("dial signal (status %d): %w", resp.StatusCode, err)
		}
		return nil, state, fmt.Errorf("dial signal: %w", err)
	}

	deadline := time.Now().Add(s.cfg.HandshakeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetReadDeadline(deadline)
	_, data, err := conn.ReadMessage()
	if err != nil {
		_ = conn.Close()
		return nil, state, fmt.Errorf("read room state: %w", err)
	}
	typ, err := wire.Peek(data)
	if err != nil {
		_ = conn.Close()
		return nil, state, fmt.Errorf("read room state: %w", err)
	}
	switch typ {
	case wire.TypeRoomState:
		if err := json.Unmarshal(data, &state); err != nil {
			_ = conn.Close()
			return nil, state, fmt.Errorf("decode room state: %w", err)
		}
	case wire.TypeError:
		var e wire.Error
		_ = json.Unmarshal(data, &e)
		_ = conn.Close()
		if e.Error == domain.ErrRoomFull.Error() {
			return nil, state, fmt.Errorf("%w: %w", ErrRejected, domain.ErrRoomFull)
		}
		return nil, state, fmt.Errorf("%w: %s", ErrRejected, e.Error)
	default:
		_ = conn.Close()
		return nil, state, fmt.Errorf("unexpected first frame %q", typ)
	}

	readTimeout := s.cfg.ReadTimeout
	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPingHandler(func(data string) error {
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
		err := conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(writeWait))
		if err == websocket.ErrCloseSent {
			return nil
		}
		return err
	})
	return conn, state, nil
}

// applyStateLocked replaces the roster. The local mute intent survives reconnects.
func (s *Session) applyStateLocked(state wire.RoomState) {
	enabled := s.local.AudioEnabled
	s.local = infoOf(state.Self)
	s.local.AudioEnabled = enabled
	s.remotes = s.remotes[:0]
	for _, m := range state.Members {
		s.remotes = append(s.remotes, infoOf(m))
	}
}

func infoOf(m core.MemberDTO) core.ParticipantInfo {
	return core.ParticipantInfo{Identity: m.Identity, Name: m.Name, Speaking: m.Speaking, AudioEnabled: m.AudioEnabled}
}

func (s *Session) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			s.lost(conn, err)
			return
		}
		s.handle(data)
	}
}

// lost reacts to a dead socket: reconnect when asked to, otherwise end the session.
func (s *Session) lost(conn *websocket.Conn, err error) {
	s.mu.Lock()
	if s.released || s.conn != conn {
		s.mu.Unlock()
		return
	}
	auto := s.opts.AutoReconnect
	s.mu.Unlock()

	if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		s.logger.Warn().Err(err).Msg("signal connection lost")
	} else {
		s.logger.Info().Err(err).Msg("signal connection closed")
	}
	if !auto {
		s.terminate(true)
		return
	}
	s.reconnect()
}

func (s *Session) reconnect() {
	s.mu.Lock()
	s.phase = domain.PhaseReconnecting
	media, mic := s.media, s.mic
	s.media, s.mic = nil, nil
	s.mu.Unlock()
	closeMedia(media, mic)
	s.q.Push(core.PhaseEvent(domain.PhaseReconnecting))

	for attempt, delay := range s.cfg.ReconnectDelays {
		select {
		case <-time.After(delay):
		case <-s.ctx.Done():
			return
		}
		ctx, cancel := context.WithTimeout(s.ctx, s.cfg.HandshakeTimeout)
		conn, state, err := s.dial(ctx)
		cancel()
		if err != nil {
			s.logger.Warn().Err(err).Int("attempt", attempt+1).Msg("reconnect failed")
			continue
		}

		s.mu.Lock()
		if s.released {
			s.mu.Unlock()
			_ = conn.Close()
			return
		}
		s.conn = conn
		s.applyStateLocked(state)
		s.phase = domain.PhaseConnected
		enabled := s.local.AudioEnabled
		s.mu.Unlock()

		s.q.Push(core.PhaseEvent(domain.PhaseConnected))
		go s.readLoop(conn)
		if enabled {
			if err := s.write(s.ctx, conn, wire.Mute{Type: wire.TypeMute, Enabled: true}); err != nil {
				s.logger.Warn().Err(err).Msg("restore mute state")
			}
		}
		if s.cfg.Media {
			if err := s.startMedia(); err != nil {
				s.logger.Warn().Err(err).Msg("media renegotiation failed")
			}
		}
		s.logger.Info().Int("attempt", attempt+1).Msg("reconnected")
		return
	}
	s.terminate(true)
}

// terminate releases every resource once and closes the event channel.
func (s *Session) terminate(announce bool) {
	s.mu.Lock()
	if s.released {
		s.mu.Unlock()
		return
	}
	s.released = true
	s.phase = domain.PhaseDisconnected
	conn, media, mic := s.conn, s.media, s.mic
	s.conn, s.media, s.mic = nil, nil, nil
	s.mu.Unlock()

	s.stop()
	closeMedia(media, mic)
	if conn != nil {
		_ = conn.Close()
	}
	if announce {
		s.q.Push(core.PhaseEvent(domain.PhaseDisconnected))
	}
	s.q.Close()
	if s.onDone != nil {
		s.onDone(s)
	}
}

// Disconnect sends leave and releases the session. Safe to call repeatedly.
func (s *Session) Disconnect(ctx context.Context) error {
	s.mu.Lock()
	conn := s.conn
	announce := s.used && !s.released
	s.mu.Unlock()

	if conn != nil && announce {
		if err := s.write(ctx, conn, wire.Envelope{Type: wire.TypeLeave}); err != nil {
			s.logger.Debug().Err(err).Msg("send leave")
		}
	}
	s.terminate(announce)
	return nil
}

func (s *Session) SendText(ctx context.Context, text string) error {
	conn, err := s.liveConn()
	if err != nil {
		return err
	}
	return s.write(ctx, conn, wire.Chat{Type: wire.TypeChat, Text: text})
}

// SetLocalAudioEnabled publishes or silences the microphone and tells the room.
func (s *Session) SetLocalAudioEnabled(ctx context.Context, enabled bool) error {
	conn, err := s.liveConn()
	if err != nil {
		return err
	}
	if err := s.write(ctx, conn, wire.Mute{Type: wire.TypeMute, Enabled: enabled}); err != nil {
		return err
	}
	s.mu.Lock()
	s.local.AudioEnabled = enabled
	if !enabled {
		s.local.Speaking = false
	}
	local, mic := s.local, s.mic
	s.mu.Unlock()
	if mic != nil {
		mic.SetEnabled(enabled)
	}
	s.q.Push(core.ParticipantEvent(core.EventMuteChanged, local))
	return nil
}

func (s *Session) liveConn() (*websocket.Conn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return nil, domain.ErrSessionClosed
	}
	if s.phase != domain.PhaseConnected || s.conn == nil {
		return nil, domain.ErrNotConnected
	}
	return s.conn, nil
}

func (s *Session) write(ctx context.Context, conn *websocket.Conn, v any) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	deadline := time.Now().Add(writeWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return conn.WriteJSON(v)
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
	media := s.media
	s.mu.Unlock()
	if media == nil {
		return "", ErrNoMedia
	}
	return media.Protocol()
}
