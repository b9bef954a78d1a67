package core

import (
	"sort"
	"sync"
	"time"

	"github.com/dkeye/voxroom/internal/domain"
	"github.com/rs/zerolog/log"
)

// roomImpl is a threadsafe in-memory room.
// It never closes adapter-owned resources.
type roomImpl struct {
	room       *domain.Room
	maxMembers int

	mu         sync.RWMutex
	bySID      map[SessionID]MemberSession
	byIdentity map[domain.Identity]SessionID
	joinOrder  []SessionID
	emptySince time.Time
}

// NewRoomService creates an empty room. maxMembers <= 0 means unlimited.
func NewRoomService(room *domain.Room, maxMembers int) RoomService {
	return &roomImpl{
		room:       room,
		maxMembers: maxMembers,
		bySID:      make(map[SessionID]MemberSession),
		byIdentity: make(map[domain.Identity]SessionID),
		emptySince: room.CreatedAt,
	}
}

func (r *roomImpl) Room() *domain.Room { return r.room }

func (r *roomImpl) MemberCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.bySID)
}

func (r *roomImpl) SessionOf(identity domain.Identity) (SessionID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sid, ok := r.byIdentity[identity]
	return sid, ok
}

func (r *roomImpl) AddMember(sid SessionID, ms MemberSession) error {
	id := ms.Meta().Identity
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.bySID[sid]; !ok && r.maxMembers > 0 && len(r.bySID) >= r.maxMembers {
		return domain.ErrRoomFull
	}
	if _, ok := r.bySID[sid]; !ok {
		r.joinOrder = append(r.joinOrder, sid)
	}
	r.bySID[sid] = ms
	r.byIdentity[id] = sid
	r.emptySince = time.Time{}
	log.Info().Str("module", "core.room").Str("room", string(r.room.ID)).Str("sid", string(sid)).Str("identity", string(id)).Msg("member added")
	return nil
}

func (r *roomImpl) RemoveMember(sid SessionID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ms, ok := r.bySID[sid]
	if !ok {
		return
	}
	id := ms.Meta().Identity
	if r.byIdentity[id] == sid {
		delete(r.byIdentity, id)
	}
	delete(r.bySID, sid)
	for i, s := range r.joinOrder {
		if s == sid {
			r.joinOrder = append(r.joinOrder[:i], r.joinOrder[i+1:]...)
			break
		}
	}
	if len(r.bySID) == 0 {
		r.emptySince = time.Now()
	}
	log.Info().Str("module", "core.room").Str("room", string(r.room.ID)).Str("sid", string(sid)).Msg("member removed")
}

func (r *roomImpl) Broadcast(from SessionID, data Frame) PublishResult {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res := PublishResult{}
	for sid, m := range r.bySID {
		if sid == from {
			continue
		}
		sig := m.Signal()
		if sig == nil {
			continue
		}
		if err := sig.TrySend(data); err != nil {
			res.Dropped = append(res.Dropped, m)
			continue
		}
		res.SendTo++
	}
	log.Debug().Str("module", "core.room").Str("from", string(from)).Int("sent_to", res.SendTo).Int("dropped", len(res.Dropped)).Msg("broadcast result")
	return res
}

// MembersSnapshot lists members in join order.
func (r *roomImpl) MembersSnapshot() []MemberDTO {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]MemberDTO, 0, len(r.joinOrder))
	for _, sid := range r.joinOrder {
		out = append(out, MemberDTOOf(r.bySID[sid].Meta()))
	}
	return out
}

func (r *roomImpl) IdleSince() (time.Time, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.bySID) > 0 {
		return time.Time{}, false
	}
	return r.emptySince, true
}

// SortedRoomInfo orders rooms by id so API output is stable.
func SortedRoomInfo(in []RoomInfo) []RoomInfo {
	sort.Slice(in, func(i, j int) bool { return in[i].ID < in[j].ID })
	return in
}
