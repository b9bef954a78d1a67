package projector

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dkeye/voxroom/internal/core"
	"github.com/dkeye/voxroom/internal/core/coretest"
	"github.com/dkeye/voxroom/internal/domain"
	"github.com/dkeye/voxroom/internal/mocks"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"pgregory.net/rapid"
)

type identityTokens struct{}

// IssueJoinToken returns the identity, which the fake transport adopts as local identity.
func (identityTokens) IssueJoinToken(_ context.Context, _ domain.RoomID, identity domain.Identity, _ domain.Role) (string, error) {
	return string(identity), nil
}

func newProjector(t *testing.T) (*Projector, *coretest.Provider) {
	t.Helper()
	prov := coretest.NewProvider()
	p := New(identityTokens{}, prov, nil, Config{URL: "ws://voice.test", StatsInterval: 10 * time.Millisecond})
	t.Cleanup(func() { _ = p.Disconnect(context.Background()) })
	return p, prov
}

func connect(t *testing.T, p *Projector, prov *coretest.Provider) *coretest.Session {
	t.Helper()
	require.NoError(t, p.Connect(context.Background(), "r1", "alice"))
	sessions := prov.Sessions()
	return sessions[len(sessions)-1]
}

func eventually(t *testing.T, p *Projector, cond func(Snapshot) bool) Snapshot {
	t.Helper()
	require.Eventually(t, func() bool { return cond(p.Snapshot()) }, 2*time.Second, 2*time.Millisecond)
	return p.Snapshot()
}

func texts(entries []domain.ChatEntry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Text)
	}
	return out
}

func TestConnect_ProjectsConnectedState(t *testing.T) {
	p, prov := newProjector(t)
	s := connect(t, p, prov)

	snap := p.Snapshot()
	require.Equal(t, domain.PhaseConnected, snap.Phase)
	require.Equal(t, domain.RoomID("r1"), snap.Room)
	require.Equal(t, []domain.ParticipantView{{Identity: "alice", IsSelf: true, AudioEnabled: true}}, snap.Participants)
	require.False(t, snap.Muted)
	require.Len(t, snap.Transcript, 1)
	require.True(t, snap.Transcript[0].IsSystem)
	require.Equal(t, "Connected to room: r1", snap.Transcript[0].Text)
	require.Equal(t, core.ConnectOptions{AutoSubscribe: true, Dynacast: true}, s.Options())

	eventually(t, p, func(s Snapshot) bool { return s.Transport == "UDP" })
}

func TestConnect_ValidatesInput(t *testing.T) {
	p, prov := newProjector(t)
	require.ErrorIs(t, p.Connect(context.Background(), "", "alice"), domain.ErrRoomEmpty)
	require.ErrorIs(t, p.Connect(context.Background(), "r1", ""), domain.ErrIdentityEmpty)
	require.Empty(t, prov.Sessions())
}

func TestConnect_CredentialFailureLeavesNothing(t *testing.T) {
	ctrl := gomock.NewController(t)
	creds := mocks.NewMockCredentialIssuer(ctrl)
	creds.EXPECT().IssueJoinToken(gomock.Any(), domain.RoomID("r1"), domain.Identity("alice"), domain.RoleParticipant).Return("", errors.New("401"))
	prov := coretest.NewProvider()
	p := New(creds, prov, nil, Config{})

	err := p.Connect(context.Background(), "r1", "alice")
	var connErr *domain.ConnectionError
	require.ErrorAs(t, err, &connErr)
	var credErr *domain.CredentialError
	require.ErrorAs(t, err, &credErr)

	snap := p.Snapshot()
	require.Equal(t, domain.PhaseDisconnected, snap.Phase)
	require.Empty(t, snap.Room)
	require.Empty(t, snap.Participants)
	require.Empty(t, snap.Transcript)
	require.Empty(t, prov.Sessions())
}

func TestConnect_TransportFailureLeavesNothing(t *testing.T) {
	p, prov := newProjector(t)
	prov.Configure = func(s *coretest.Session) { s.ConnectErr = coretest.ErrScripted }

	err := p.Connect(context.Background(), "r1", "alice")
	var connErr *domain.ConnectionError
	require.ErrorAs(t, err, &connErr)
	require.ErrorIs(t, err, coretest.ErrScripted)

	snap := p.Snapshot()
	require.Equal(t, domain.PhaseDisconnected, snap.Phase)
	require.Empty(t, snap.Participants)
	require.Empty(t, snap.Transcript)
	require.Equal(t, domain.UnknownTransport, snap.Transport)
	require.ErrorIs(t, p.SendChat(context.Background(), "hi"), domain.ErrNotConnected)
}

func TestSendChat_AppendsLocalEntryExactlyOnce(t *testing.T) {
	p, prov := newProjector(t)
	s := connect(t, p, prov)

	require.NoError(t, p.SendChat(context.Background(), "hi"))
	snap := p.Snapshot()
	require.Equal(t, []string{"Connected to room: r1", "hi"}, texts(snap.Transcript))
	require.True(t, snap.Transcript[1].IsLocal)
	require.Equal(t, domain.Identity("alice"), snap.Transcript[1].SenderIdentity)
	require.Equal(t, []string{"hi"}, s.Sent())

	// An echo attributed to us is dropped; the next remote line proves it was handled.
	s.Say("alice", "hi")
	s.Say("bob", "yo")
	snap = eventually(t, p, func(s Snapshot) bool { return len(s.Transcript) == 3 })
	require.Equal(t, []string{"Connected to room: r1", "hi", "yo"}, texts(snap.Transcript))
	require.False(t, snap.Transcript[2].IsLocal)
	require.Equal(t, domain.Identity("bob"), snap.Transcript[2].SenderIdentity)
}

func TestSendChat_BlankIsNoop(t *testing.T) {
	p, prov := newProjector(t)
	require.NoError(t, p.SendChat(context.Background(), "   "))
	s := connect(t, p, prov)
	require.NoError(t, p.SendChat(context.Background(), " \t"))
	require.Empty(t, s.Sent())
	require.Len(t, p.Snapshot().Transcript, 1)
}

func TestSendChat_TransportFailure(t *testing.T) {
	p, prov := newProjector(t)
	prov.Configure = func(s *coretest.Session) { s.SendErr = coretest.ErrScripted }
	connect(t, p, prov)

	var trErr *domain.TransportError
	require.ErrorAs(t, p.SendChat(context.Background(), "hi"), &trErr)
	require.Len(t, p.Snapshot().Transcript, 1)
	require.Equal(t, domain.PhaseConnected, p.Snapshot().Phase)
}

func TestSendChat_PersistsBestEffort(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockMessageStore(ctrl)
	saved := make(chan string, 1)
	store.EXPECT().AppendMessage(gomock.Any(), domain.RoomID("r1"), domain.Identity("alice"), "alice", "hi").
		DoAndReturn(func(context.Context, domain.RoomID, domain.Identity, string, string) (domain.StoredMessage, error) {
			saved <- "hi"
			return domain.StoredMessage{}, errors.New("store down")
		})
	prov := coretest.NewProvider()
	p := New(identityTokens{}, prov, store, Config{})
	t.Cleanup(func() { _ = p.Disconnect(context.Background()) })
	connect(t, p, prov)

	require.NoError(t, p.SendChat(context.Background(), "hi"))
	select {
	case <-saved:
	case <-time.After(2 * time.Second):
		t.Fatal("message not persisted")
	}
}

func TestRemoteMessage_WithoutParticipantUsesSentinel(t *testing.T) {
	p, prov := newProjector(t)
	s := connect(t, p, prov)
	s.Say("", "mystery")

	snap := eventually(t, p, func(s Snapshot) bool { return len(s.Transcript) == 2 })
	require.Equal(t, domain.UnknownSender, snap.Transcript[1].SenderIdentity)
	require.False(t, snap.Transcript[1].IsSystem)
}

func TestRoster_JoinLeaveAndSystemEntries(t *testing.T) {
	p, prov := newProjector(t)
	s := connect(t, p, prov)

	s.Join(core.ParticipantInfo{Identity: "bob", Name: "Bob", AudioEnabled: true})
	snap := eventually(t, p, func(s Snapshot) bool { return len(s.Participants) == 2 })
	require.True(t, snap.Participants[0].IsSelf)
	require.Equal(t, domain.Identity("bob"), snap.Participants[1].Identity)
	require.Equal(t, "Bob joined", snap.Transcript[len(snap.Transcript)-1].Text)
	require.True(t, snap.Transcript[len(snap.Transcript)-1].IsSystem)
	require.Empty(t, snap.Transcript[len(snap.Transcript)-1].SenderIdentity)

	s.SetSpeaking("bob", true)
	s.Emit(core.ParticipantEvent(core.EventSpeakingChanged, core.ParticipantInfo{Identity: "bob"}))
	eventually(t, p, func(s Snapshot) bool { return len(s.Participants) == 2 && s.Participants[1].IsSpeaking })

	s.Leave("bob")
	snap = eventually(t, p, func(s Snapshot) bool { return len(s.Participants) == 1 })
	require.Equal(t, "Bob left", snap.Transcript[len(snap.Transcript)-1].Text)
}

func TestToggleMute(t *testing.T) {
	p, prov := newProjector(t)
	require.NoError(t, p.ToggleMute(context.Background()))
	require.False(t, p.Snapshot().Muted)

	connect(t, p, prov)
	require.NoError(t, p.ToggleMute(context.Background()))
	snap := p.Snapshot()
	require.True(t, snap.Muted)
	require.False(t, snap.Participants[0].AudioEnabled)

	require.NoError(t, p.ToggleMute(context.Background()))
	snap = p.Snapshot()
	require.False(t, snap.Muted)
	require.True(t, snap.Participants[0].AudioEnabled)
}

func TestDisconnect_IsIdempotent(t *testing.T) {
	p, prov := newProjector(t)
	require.NoError(t, p.Disconnect(context.Background()))

	s := connect(t, p, prov)
	eventually(t, p, func(s Snapshot) bool { return s.Transport == "UDP" })
	require.NoError(t, p.Disconnect(context.Background()))
	require.NoError(t, p.Disconnect(context.Background()))

	snap := p.Snapshot()
	require.Equal(t, domain.PhaseDisconnected, snap.Phase)
	require.Empty(t, snap.Participants)
	require.Equal(t, domain.UnknownTransport, snap.Transport)
	require.False(t, snap.Muted)
	require.Equal(t, []string{"Connected to room: r1"}, texts(snap.Transcript), "transcript is kept for reading")
	require.Equal(t, 1, s.Disconnects())

	require.Never(t, func() bool { return p.Snapshot().Transport != domain.UnknownTransport }, 50*time.Millisecond, 5*time.Millisecond)
}

func TestExternalDisconnect_RunsCleanup(t *testing.T) {
	p, prov := newProjector(t)
	s := connect(t, p, prov)

	s.Drop()
	snap := eventually(t, p, func(s Snapshot) bool { return s.Phase == domain.PhaseDisconnected })
	require.Empty(t, snap.Participants)
	require.Equal(t, DisconnectedEntry, snap.Transcript[len(snap.Transcript)-1].Text)
	require.ErrorIs(t, p.SendChat(context.Background(), "hi"), domain.ErrNotConnected)
}

func TestReconnectingPhase(t *testing.T) {
	p, prov := newProjector(t)
	s := connect(t, p, prov)

	s.Emit(core.PhaseEvent(domain.PhaseReconnecting))
	eventually(t, p, func(s Snapshot) bool { return s.Phase == domain.PhaseReconnecting })
	s.Emit(core.PhaseEvent(domain.PhaseConnected))
	eventually(t, p, func(s Snapshot) bool { return s.Phase == domain.PhaseConnected })
}

func TestConnect_ReplacesPreviousSession(t *testing.T) {
	p, prov := newProjector(t)
	first := connect(t, p, prov)
	require.NoError(t, p.SendChat(context.Background(), "old"))

	require.NoError(t, p.Connect(context.Background(), "r2", "alice"))
	require.Equal(t, 1, first.Disconnects())
	snap := p.Snapshot()
	require.Equal(t, domain.RoomID("r2"), snap.Room)
	require.Equal(t, []string{"Connected to room: r2"}, texts(snap.Transcript))

	// Late events of the old session never reach the new state.
	first.Say("bob", "stale")
	require.Never(t, func() bool { return len(p.Snapshot().Transcript) != 1 }, 50*time.Millisecond, 5*time.Millisecond)
}

func TestWatch_DeliversLatest(t *testing.T) {
	p, prov := newProjector(t)
	ch := p.Watch()
	first := <-ch
	require.Equal(t, domain.PhaseDisconnected, first.Phase)

	connect(t, p, prov)
	require.Eventually(t, func() bool {
		select {
		case snap := <-ch:
			return snap.Phase == domain.PhaseConnected
		default:
			return false
		}
	}, time.Second, 2*time.Millisecond)
}

func TestWatch_ConcurrentWithEventBurst(t *testing.T) {
	p, prov := newProjector(t)
	s := connect(t, p, prov)

	stop := make(chan struct{})
	burst := make(chan struct{})
	go func() {
		defer close(burst)
		bob := core.ParticipantInfo{Identity: "bob", Name: "Bob"}
		for {
			select {
			case <-stop:
				return
			default:
			}
			s.Join(bob)
			s.Leave("bob")
		}
	}()

	for i := 0; i < 2000; i++ {
		got := make(chan Snapshot, 1)
		go func() { got <- <-p.Watch() }()
		select {
		case snap := <-got:
			require.Equal(t, domain.RoomID("r1"), snap.Room)
		case <-time.After(2 * time.Second):
			close(stop)
			t.Fatalf("Watch blocked on call %d", i)
		}
	}
	close(stop)
	<-burst

	done := make(chan error, 1)
	go func() { done <- p.Disconnect(context.Background()) }()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Disconnect blocked after concurrent watchers")
	}
	require.Equal(t, domain.PhaseDisconnected, p.Snapshot().Phase)
}

func TestProperty_RosterIsLocalPlusRemotes(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		prov := coretest.NewProvider()
		p := New(identityTokens{}, prov, nil, Config{StatsInterval: time.Hour})
		ctx := context.Background()
		if err := p.Connect(ctx, "r1", "alice"); err != nil {
			rt.Fatalf("connect: %v", err)
		}
		defer p.Disconnect(ctx)
		s := prov.Sessions()[0]

		pool := []domain.Identity{"bob", "carol", "dave", "erin"}
		present := map[domain.Identity]bool{}
		steps := rapid.IntRange(1, 30).Draw(rt, "steps")
		for range steps {
			id := rapid.SampledFrom(pool).Draw(rt, "who")
			switch rapid.IntRange(0, 3).Draw(rt, "op") {
			case 0:
				if !present[id] {
					s.Join(core.ParticipantInfo{Identity: id})
					present[id] = true
				}
			case 1:
				if present[id] {
					s.Leave(id)
					delete(present, id)
				}
			case 2:
				s.SetSpeaking(id, rapid.Bool().Draw(rt, "speaking"))
				s.Emit(core.ParticipantEvent(core.EventSpeakingChanged, core.ParticipantInfo{Identity: id}))
			case 3:
				if err := p.ToggleMute(ctx); err != nil {
					rt.Fatalf("mute: %v", err)
				}
			}
		}
		// A final roster event guarantees the last rebuild sees the final enumeration.
		s.Emit(core.ParticipantEvent(core.EventMuteChanged, core.ParticipantInfo{Identity: "alice"}))

		want := roster(s)
		deadline := time.Now().Add(2 * time.Second)
		for {
			got := p.Snapshot().Participants
			if equalViews(got, want) {
				break
			}
			if time.Now().After(deadline) {
				rt.Fatalf("roster %v, want %v", got, want)
			}
			time.Sleep(time.Millisecond)
		}
		if !want[0].IsSelf || want[0].Identity != "alice" {
			rt.Fatalf("local participant not first: %v", want)
		}
		if len(want) != 1+len(present) {
			rt.Fatalf("roster size %d, want %d", len(want), 1+len(present))
		}
	})
}

func equalViews(a, b []domain.ParticipantView) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
