package app

import (
	"context"
	"testing"
	"time"

	"github.com/dkeye/voxroom/internal/core"
	"github.com/dkeye/voxroom/internal/domain"
	"github.com/stretchr/testify/require"
)

type nopSignal struct{ full bool }

func (s *nopSignal) TrySend(core.Frame) error {
	if s.full {
		return domain.ErrRateLimited
	}
	return nil
}
func (s *nopSignal) Close() {}

func member(id string) core.MemberSession {
	return core.NewMemberSession(domain.NewMember(domain.Identity(id), "", domain.RoleParticipant)).UpdateSignal(&nopSignal{})
}

func TestRoomManager_GetOrCreateIsIdempotent(t *testing.T) {
	rm := NewRoomManager(0)
	a := rm.GetOrCreate("r1")
	b := rm.GetOrCreate("r1")
	require.Same(t, a, b)
	require.Len(t, rm.List(), 1)
}

func TestRoomManager_MaxParticipants(t *testing.T) {
	rm := NewRoomManager(2)
	room := rm.GetOrCreate("r1")
	require.NoError(t, room.AddMember("s1", member("alice")))
	require.NoError(t, room.AddMember("s2", member("bob")))
	require.ErrorIs(t, room.AddMember("s3", member("carol")), domain.ErrRoomFull)
	require.Equal(t, 2, room.MemberCount())
}

func TestRoomManager_StopIdle(t *testing.T) {
	rm := NewRoomManager(0)
	busy := rm.GetOrCreate("busy")
	require.NoError(t, busy.AddMember("s1", member("alice")))
	rm.GetOrCreate("empty")

	stopped := rm.StopIdle(time.Now().Add(time.Hour), time.Minute)
	require.Equal(t, []domain.RoomID{"empty"}, stopped)
	_, ok := rm.Get("busy")
	require.True(t, ok)
}

func TestRoom_MembersSnapshotKeepsJoinOrder(t *testing.T) {
	room := NewRoomManager(0).GetOrCreate("r1")
	for i, id := range []string{"carol", "alice", "bob"} {
		require.NoError(t, room.AddMember(core.SessionID(rune('a'+i)), member(id)))
	}
	room.RemoveMember("b")
	snap := room.MembersSnapshot()
	require.Len(t, snap, 2)
	require.Equal(t, domain.Identity("carol"), snap[0].Identity)
	require.Equal(t, domain.Identity("bob"), snap[1].Identity)
}

func TestRoom_BroadcastSkipsSender(t *testing.T) {
	room := NewRoomManager(0).GetOrCreate("r1")
	require.NoError(t, room.AddMember("s1", member("alice")))
	require.NoError(t, room.AddMember("s2", member("bob")))
	slow := core.NewMemberSession(domain.NewMember("carol", "", domain.RoleParticipant)).UpdateSignal(&nopSignal{full: true})
	require.NoError(t, room.AddMember("s3", slow))

	res := room.Broadcast("s1", core.Frame("x"))
	require.Equal(t, 1, res.SendTo)
	require.Len(t, res.Dropped, 1)
	require.Equal(t, domain.Identity("carol"), res.Dropped[0].Meta().Identity)
}

func TestRegistry_RoomMates(t *testing.T) {
	reg := NewRegistry()
	_, cancel := context.WithCancel(context.Background())
	defer cancel()
	reg.BindSignal("s1", member("alice"), cancel)
	reg.BindSignal("s2", member("bob"), cancel)
	reg.BindSignal("s3", member("carol"), cancel)
	reg.UpdateRoom("s1", "r1")
	reg.UpdateRoom("s2", "r1")
	reg.UpdateRoom("s3", "r2")

	mates := reg.RoomMates("s1")
	require.Len(t, mates, 1)
	require.Equal(t, core.SessionID("s2"), mates[0].SID)

	reg.RemoveRoom("s2")
	require.Empty(t, reg.RoomMates("s1"))
}
