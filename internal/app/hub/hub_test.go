package hub

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/voxroom/internal/app"
	"github.com/dkeye/voxroom/internal/app/sfu"
	"github.com/dkeye/voxroom/internal/core"
	"github.com/dkeye/voxroom/internal/domain"
	"github.com/dkeye/voxroom/internal/wire"
	"github.com/stretchr/testify/require"
)

type fakeSignal struct {
	mu     sync.Mutex
	frames []core.Frame
	full   bool
	closed bool
}

func (s *fakeSignal) TrySend(f core.Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return domain.ErrSessionClosed
	}
	if s.full {
		return domain.ErrRateLimited
	}
	s.frames = append(s.frames, f)
	return nil
}

func (s *fakeSignal) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

func (s *fakeSignal) types() []wire.Type {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]wire.Type, 0, len(s.frames))
	for _, f := range s.frames {
		typ, _ := wire.Peek(f)
		out = append(out, typ)
	}
	return out
}

func (s *fakeSignal) last(t *testing.T, v any) {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	require.NotEmpty(t, s.frames)
	require.NoError(t, json.Unmarshal(s.frames[len(s.frames)-1], v))
}

func newHub(maxParticipants int) *Hub {
	return &Hub{
		Registry: app.NewRegistry(),
		Rooms:    app.NewRoomManager(maxParticipants),
		Policy:   app.SimplePolicy{},
		Relays:   sfu.NewRelayManager(),
	}
}

func join(t *testing.T, h *Hub, sid core.SessionID, identity string, role domain.Role) (*fakeSignal, *domain.Member) {
	t.Helper()
	sig := &fakeSignal{}
	meta := domain.NewMember(domain.Identity(identity), "", role)
	meta.AudioEnabled.Store(true)
	meta.Dynacast = true
	_, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	_, err := h.Join(sid, core.NewMemberSession(meta).UpdateSignal(sig), "r1", cancel)
	require.NoError(t, err)
	return sig, meta
}

func TestJoin_SendsRoomStateAndAnnounces(t *testing.T) {
	h := newHub(0)
	alice, _ := join(t, h, "s1", "alice", domain.RoleParticipant)
	bob, _ := join(t, h, "s2", "bob", domain.RoleParticipant)

	var state wire.RoomState
	bob.last(t, &state)
	require.Equal(t, wire.TypeRoomState, state.Type)
	require.Equal(t, domain.Identity("bob"), state.Self.Identity)
	require.Len(t, state.Members, 1)
	require.Equal(t, domain.Identity("alice"), state.Members[0].Identity)

	require.Equal(t, []wire.Type{wire.TypeRoomState, wire.TypeMemberJoined}, alice.types())
}

func TestChat_IsNotEchoedToSender(t *testing.T) {
	h := newHub(0)
	alice, _ := join(t, h, "s1", "alice", domain.RoleParticipant)
	bob, _ := join(t, h, "s2", "bob", domain.RoleParticipant)

	require.True(t, h.Chat("s1", "hi"))

	var chat wire.Chat
	bob.last(t, &chat)
	require.Equal(t, "hi", chat.Text)
	require.Equal(t, domain.Identity("alice"), chat.From)
	require.NotContains(t, alice.types(), wire.TypeChat)

	require.False(t, h.Chat("nobody", "x"))
}

func TestJoin_RoomFull(t *testing.T) {
	h := newHub(1)
	join(t, h, "s1", "alice", domain.RoleParticipant)
	meta := domain.NewMember("bob", "", domain.RoleParticipant)
	_, err := h.Join("s2", core.NewMemberSession(meta).UpdateSignal(&fakeSignal{}), "r1", func() {})
	require.ErrorIs(t, err, domain.ErrRoomFull)
	_, ok := h.Registry.GetSession("s2")
	require.False(t, ok)
}

func TestJoin_DuplicateIdentityReplacesOlderSession(t *testing.T) {
	h := newHub(0)
	old, _ := join(t, h, "s1", "alice", domain.RoleParticipant)
	bob, _ := join(t, h, "s2", "bob", domain.RoleParticipant)

	meta := domain.NewMember("alice", "", domain.RoleParticipant)
	replaced, err := h.Join("s3", core.NewMemberSession(meta).UpdateSignal(&fakeSignal{}), "r1", func() {})
	require.NoError(t, err)
	require.Equal(t, core.SessionID("s1"), replaced)

	require.Contains(t, old.types(), wire.TypeError)
	require.True(t, old.closed)
	room, _ := h.Rooms.Get("r1")
	require.Equal(t, 2, room.MemberCount())
	require.Equal(t, []wire.Type{wire.TypeRoomState, wire.TypeMemberLeft, wire.TypeMemberJoined}, bob.types())
}

func TestSetAudioEnabled_AnnouncesToRoom(t *testing.T) {
	h := newHub(0)
	alice, aliceMeta := join(t, h, "s1", "alice", domain.RoleParticipant)
	bob, _ := join(t, h, "s2", "bob", domain.RoleParticipant)

	aliceMeta.Speaking.Store(true)
	h.SetAudioEnabled("s1", false)

	var upd wire.MemberEvent
	bob.last(t, &upd)
	require.Equal(t, wire.TypeMemberUpdated, upd.Type)
	require.False(t, upd.Member.AudioEnabled)
	require.False(t, upd.Member.Speaking)
	alice.last(t, &upd)
	require.Equal(t, domain.Identity("alice"), upd.Member.Identity)
}

func TestOnSpeaking_OnlyAnnouncesEdges(t *testing.T) {
	h := newHub(0)
	join(t, h, "s1", "alice", domain.RoleParticipant)
	bob, _ := join(t, h, "s2", "bob", domain.RoleParticipant)
	before := len(bob.types())

	h.onSpeaking("s1", true)
	h.onSpeaking("s1", true)
	h.onSpeaking("s1", false)
	require.Len(t, bob.types(), before+2)
}

func TestOnDisconnect_IsIdempotent(t *testing.T) {
	h := newHub(0)
	join(t, h, "s1", "alice", domain.RoleParticipant)
	bob, _ := join(t, h, "s2", "bob", domain.RoleParticipant)

	h.OnDisconnect("s1")
	h.OnDisconnect("s1")

	types := bob.types()
	require.Equal(t, wire.TypeMemberLeft, types[len(types)-1])
	n := 0
	for _, typ := range types {
		if typ == wire.TypeMemberLeft {
			n++
		}
	}
	require.Equal(t, 1, n)
	room, _ := h.Rooms.Get("r1")
	require.Equal(t, 1, room.MemberCount())
}

func TestBroadcast_KicksSlowParticipantButNotAgent(t *testing.T) {
	h := newHub(0)
	join(t, h, "s1", "alice", domain.RoleParticipant)
	slow, _ := join(t, h, "s2", "bob", domain.RoleParticipant)
	agent, _ := join(t, h, "s3", "ai-agent", domain.RoleAgent)
	slow.mu.Lock()
	slow.full = true
	slow.mu.Unlock()
	agent.mu.Lock()
	agent.full = true
	agent.mu.Unlock()

	h.Chat("s1", "hello")

	_, ok := h.Registry.GetSession("s2")
	require.False(t, ok, "slow participant is kicked")
	_, ok = h.Registry.GetSession("s3")
	require.True(t, ok, "slow agent only loses the frame")
}

func TestRunJanitor_StopsEmptyRooms(t *testing.T) {
	h := newHub(0)
	h.Rooms.GetOrCreate("empty")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.RunJanitor(ctx, 5*time.Millisecond, 0)

	require.Eventually(t, func() bool {
		_, ok := h.Rooms.Get("empty")
		return !ok
	}, time.Second, 5*time.Millisecond)
}
