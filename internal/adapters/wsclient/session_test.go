package wsclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dkeye/voxroom/internal/adapters/signal"
	"github.com/dkeye/voxroom/internal/app"
	"github.com/dkeye/voxroom/internal/app/hub"
	"github.com/dkeye/voxroom/internal/auth"
	"github.com/dkeye/voxroom/internal/core"
	"github.com/dkeye/voxroom/internal/domain"
	"github.com/dkeye/voxroom/internal/wire"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

type server struct {
	url string
	iss *auth.Issuer
	hub *hub.Hub
}

func newServer(t *testing.T, maxParticipants int) *server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	iss := auth.NewIssuer(auth.Config{APIKey: "k", APISecret: "s"})
	h := &hub.Hub{Registry: app.NewRegistry(), Rooms: app.NewRoomManager(maxParticipants), Policy: app.SimplePolicy{}}
	ctl := signal.NewSignalWSController(h, iss, signal.Options{})

	ctx, cancel := context.WithCancel(context.Background())
	r := gin.New()
	r.GET("/api/ws/signal", func(c *gin.Context) { ctl.HandleSignal(ctx, c) })
	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return &server{url: "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/ws/signal", iss: iss, hub: h}
}

func (sv *server) token(t *testing.T, identity string) string {
	t.Helper()
	tok, err := sv.iss.IssueJoinToken(context.Background(), "r1", domain.Identity(identity), domain.RoleParticipant)
	require.NoError(t, err)
	return tok
}

func newTestProvider(t *testing.T) *Provider {
	t.Helper()
	p := NewProvider(Config{HandshakeTimeout: 2 * time.Second, ReconnectDelays: []time.Duration{10 * time.Millisecond}})
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func join(t *testing.T, p *Provider, sv *server, identity string) *Session {
	t.Helper()
	s := p.NewSession().(*Session)
	require.NoError(t, s.Connect(context.Background(), sv.url, sv.token(t, identity), core.ConnectOptions{AutoSubscribe: true}))
	waitFor(t, s, core.EventPhaseChanged)
	return s
}

// waitFor returns the next event of kind, skipping others.
func waitFor(t *testing.T, s *Session, kind core.EventKind) core.Event {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-s.Events():
			require.True(t, ok, "events closed while waiting for %s", kind)
			if ev.Kind == kind {
				return ev
			}
		case <-timeout:
			t.Fatalf("no %s event", kind)
		}
	}
}

// drain collects events until the channel closes.
func drain(t *testing.T, s *Session) []core.Event {
	t.Helper()
	var out []core.Event
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-s.Events():
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-timeout:
			t.Fatal("events never closed")
		}
	}
}

func phases(evs []core.Event) []domain.Phase {
	var out []domain.Phase
	for _, ev := range evs {
		if ev.Kind == core.EventPhaseChanged {
			out = append(out, ev.Phase)
		}
	}
	return out
}

func TestConnect_LoadsRoomState(t *testing.T) {
	sv := newServer(t, 0)
	p := newTestProvider(t)

	alice := join(t, p, sv, "alice")
	require.Equal(t, domain.Identity("alice"), alice.Local().Identity)
	require.Empty(t, alice.Remotes())
	require.Equal(t, domain.PhaseConnected, alice.Phase())

	bob := join(t, p, sv, "bob")
	require.Equal(t, []domain.Identity{"alice"}, identities(bob.Remotes()))

	ev := waitFor(t, alice, core.EventParticipantJoined)
	require.Equal(t, domain.Identity("bob"), ev.Participant.Identity)
	require.Equal(t, []domain.Identity{"bob"}, identities(alice.Remotes()))
}

func TestSendText_ReachesOthersOnly(t *testing.T) {
	sv := newServer(t, 0)
	p := newTestProvider(t)
	alice := join(t, p, sv, "alice")
	bob := join(t, p, sv, "bob")

	require.NoError(t, bob.SendText(context.Background(), "hi"))
	ev := waitFor(t, alice, core.EventMessageReceived)
	require.Equal(t, "hi", ev.Text)
	require.Equal(t, domain.Identity("bob"), ev.Participant.Identity)

	// bob's next message is alice's reply, so his own line never came back.
	require.NoError(t, alice.SendText(context.Background(), "yo"))
	ev = waitFor(t, bob, core.EventMessageReceived)
	require.Equal(t, "yo", ev.Text)
	require.Equal(t, domain.Identity("alice"), ev.Participant.Identity)
}

func TestSetLocalAudioEnabled_PropagatesToRoom(t *testing.T) {
	sv := newServer(t, 0)
	p := newTestProvider(t)
	alice := join(t, p, sv, "alice")
	bob := join(t, p, sv, "bob")
	waitFor(t, alice, core.EventParticipantJoined)

	require.NoError(t, bob.SetLocalAudioEnabled(context.Background(), true))
	require.True(t, bob.Local().AudioEnabled)
	local := waitFor(t, bob, core.EventMuteChanged)
	require.Equal(t, domain.Identity("bob"), local.Participant.Identity)

	ev := waitFor(t, alice, core.EventMuteChanged)
	require.Equal(t, domain.Identity("bob"), ev.Participant.Identity)
	require.True(t, ev.Participant.AudioEnabled)
	require.True(t, alice.Remotes()[0].AudioEnabled)
}

func TestDisconnect_ClosesEventsAndNotifiesRoom(t *testing.T) {
	sv := newServer(t, 0)
	p := newTestProvider(t)
	alice := join(t, p, sv, "alice")
	bob := join(t, p, sv, "bob")
	waitFor(t, alice, core.EventParticipantJoined)

	require.NoError(t, bob.Disconnect(context.Background()))
	require.NoError(t, bob.Disconnect(context.Background()))
	require.Equal(t, []domain.Phase{domain.PhaseDisconnected}, phases(drain(t, bob)))
	require.Equal(t, domain.PhaseDisconnected, bob.Phase())
	require.ErrorIs(t, bob.SendText(context.Background(), "late"), domain.ErrSessionClosed)

	ev := waitFor(t, alice, core.EventParticipantLeft)
	require.Equal(t, domain.Identity("bob"), ev.Participant.Identity)
	require.Empty(t, alice.Remotes())
}

func TestConnect_RejectsBadToken(t *testing.T) {
	sv := newServer(t, 0)
	p := newTestProvider(t)
	s := p.NewSession()

	err := s.Connect(context.Background(), sv.url, "forged", core.ConnectOptions{})
	require.Error(t, err)
	require.Empty(t, drain(t, s.(*Session)))
	require.Equal(t, domain.PhaseDisconnected, s.Phase())
}

func TestConnect_RoomFull(t *testing.T) {
	sv := newServer(t, 1)
	p := newTestProvider(t)
	join(t, p, sv, "alice")

	s := p.NewSession()
	err := s.Connect(context.Background(), sv.url, sv.token(t, "bob"), core.ConnectOptions{})
	require.ErrorIs(t, err, ErrRejected)
	require.ErrorIs(t, err, domain.ErrRoomFull)
}

func TestServerEviction_EndsSessionWithoutReconnect(t *testing.T) {
	sv := newServer(t, 0)
	p := newTestProvider(t)
	alice := join(t, p, sv, "alice")

	sv.hub.EvictRoom("r1")
	require.Equal(t, []domain.Phase{domain.PhaseDisconnected}, phases(drain(t, alice)))
}

func TestSession_IsSingleUse(t *testing.T) {
	sv := newServer(t, 0)
	p := newTestProvider(t)
	alice := join(t, p, sv, "alice")
	require.NoError(t, alice.Disconnect(context.Background()))

	err := alice.Connect(context.Background(), sv.url, sv.token(t, "alice"), core.ConnectOptions{})
	require.ErrorIs(t, err, ErrSessionUsed)
}

func TestProviderClose_DisconnectsLiveSessions(t *testing.T) {
	sv := newServer(t, 0)
	p := NewProvider(Config{})
	alice := join(t, p, sv, "alice")

	require.NoError(t, p.Close())
	require.Equal(t, []domain.Phase{domain.PhaseDisconnected}, phases(drain(t, alice)))

	err := p.NewSession().Connect(context.Background(), sv.url, sv.token(t, "bob"), core.ConnectOptions{})
	require.ErrorIs(t, err, ErrProviderClosed)
}

// flakyServer sends a room state on every accepted socket and drops the first one.
// Once failAfter sockets were accepted it answers 401.
func flakyServer(t *testing.T, failAfter int32) string {
	t.Helper()
	var accepted atomic.Int32
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := accepted.Add(1)
		if failAfter > 0 && n > failAfter {
			http.Error(w, "expired", http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.WriteJSON(wire.RoomState{Type: wire.TypeRoomState, Room: "r1", Self: core.MemberDTO{Identity: "alice"}})
		if n == 1 {
			return
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestReconnect_RecoversAfterDrop(t *testing.T) {
	url := flakyServer(t, 0)
	p := newTestProvider(t)
	s := p.NewSession().(*Session)
	require.NoError(t, s.Connect(context.Background(), url, "t", core.ConnectOptions{AutoReconnect: true}))

	require.Equal(t, domain.PhaseConnected, waitFor(t, s, core.EventPhaseChanged).Phase)
	require.Equal(t, domain.PhaseReconnecting, waitFor(t, s, core.EventPhaseChanged).Phase)
	require.Equal(t, domain.PhaseConnected, waitFor(t, s, core.EventPhaseChanged).Phase)
	require.Equal(t, domain.PhaseConnected, s.Phase())
	require.Equal(t, domain.Identity("alice"), s.Local().Identity)
}

func TestReconnect_GivesUpAfterRetries(t *testing.T) {
	url := flakyServer(t, 1)
	p := NewProvider(Config{ReconnectDelays: []time.Duration{5 * time.Millisecond, 5 * time.Millisecond}})
	t.Cleanup(func() { _ = p.Close() })
	s := p.NewSession().(*Session)
	require.NoError(t, s.Connect(context.Background(), url, "t", core.ConnectOptions{AutoReconnect: true}))

	require.Equal(t,
		[]domain.Phase{domain.PhaseConnected, domain.PhaseReconnecting, domain.PhaseDisconnected},
		phases(drain(t, s)))
}

func identities(list []core.ParticipantInfo) []domain.Identity {
	out := make([]domain.Identity, 0, len(list))
	for _, p := range list {
		out = append(out, p.Identity)
	}
	return out
}
