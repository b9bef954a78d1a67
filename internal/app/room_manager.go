package app

import (
	"sync"
	"time"

	"github.com/dkeye/voxroom/internal/core"
	"github.com/dkeye/voxroom/internal/domain"
	"github.com/rs/zerolog/log"
)

type RoomManagerImpl struct {
	maxParticipants int

	mu    sync.RWMutex
	rooms map[domain.RoomID]core.RoomService
}

func NewRoomManager(maxParticipants int) core.RoomManager {
	return &RoomManagerImpl{
		maxParticipants: maxParticipants,
		rooms:           make(map[domain.RoomID]core.RoomService),
	}
}

func (f *RoomManagerImpl) GetOrCreate(id domain.RoomID) core.RoomService {
	f.mu.RLock()
	room, ok := f.rooms[id]
	f.mu.RUnlock()
	if ok {
		return room
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if room, ok = f.rooms[id]; ok {
		return room
	}
	room = core.NewRoomService(&domain.Room{ID: id, CreatedAt: time.Now()}, f.maxParticipants)
	f.rooms[id] = room
	log.Info().Str("module", "app.rooms").Str("room", string(id)).Msg("room created")
	return room
}

func (f *RoomManagerImpl) Get(id domain.RoomID) (core.RoomService, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	room, ok := f.rooms[id]
	return room, ok
}

func (f *RoomManagerImpl) List() []core.RoomInfo {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]core.RoomInfo, 0, len(f.rooms))
	for id, r := range f.rooms {
		out = append(out, core.RoomInfo{ID: id, MemberCount: r.MemberCount(), CreatedAt: r.Room().CreatedAt})
	}
	return core.SortedRoomInfo(out)
}

func (f *RoomManagerImpl) StopRoom(id domain.RoomID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.rooms, id)
	log.Info().Str("module", "app.rooms").Str("room", string(id)).Msg("room stopped")
}

func (f *RoomManagerImpl) StopIdle(now time.Time, timeout time.Duration) []domain.RoomID {
	f.mu.Lock()
	defer f.mu.Unlock()
	var stopped []domain.RoomID
	for id, r := range f.rooms {
		since, idle := r.IdleSince()
		if idle && now.Sub(since) >= timeout {
			delete(f.rooms, id)
			stopped = append(stopped, id)
		}
	}
	if len(stopped) > 0 {
		log.Info().Str("module", "app.rooms").Int("count", len(stopped)).Msg("stopped idle rooms")
	}
	return stopped
}
