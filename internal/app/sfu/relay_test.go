package sfu

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/voxroom/internal/core"
	"github.com/pion/rtp"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type sink struct {
	mu   sync.Mutex
	pkts []*rtp.Packet
	err  error
}

func (s *sink) WriteRTP(p *rtp.Packet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.pkts = append(s.pkts, p)
	return nil
}

func (s *sink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pkts)
}

func voiced() *rtp.Packet { return &rtp.Packet{Payload: make([]byte, 60)} }

func TestRelay_ForwardHonoursState(t *testing.T) {
	logger := zerolog.Nop()
	r := NewRelay(nil, nil, func() {})
	a, b, c := &sink{}, &sink{}, &sink{err: errors.New("closed")}
	r.AddOutTrack("a", NewOutTrack(a))
	r.AddOutTrack("b", NewOutTrack(b))
	r.AddOutTrack("c", NewOutTrack(c))

	r.forward(voiced(), &logger)
	require.Equal(t, 1, a.count())
	require.Equal(t, 1, b.count())
	require.ElementsMatch(t, []core.SessionID{"a", "b"}, r.Subscribers(), "failed writer is dropped")

	r.SetMuted(true)
	r.forward(voiced(), &logger)
	require.Equal(t, 1, a.count())

	r.SetMuted(false)
	r.forward(voiced(), &logger)
	require.Equal(t, 2, a.count())
}

func TestRelay_NewSubscriberOfMutedRelayStartsMuted(t *testing.T) {
	logger := zerolog.Nop()
	r := NewRelay(nil, nil, func() {})
	r.SetMuted(true)
	s := &sink{}
	r.AddOutTrack("late", NewOutTrack(s))
	r.forward(voiced(), &logger)
	require.Zero(t, s.count())
}

func TestOutTrack_DeleteIsSticky(t *testing.T) {
	ot := NewOutTrack(&sink{})
	ot.MarkDelete()
	ot.MarkOk()
	ot.MarkMuted()
	require.Equal(t, TrackStateDelete, ot.GetState())
}

func TestRelayManager_LoopForwardsAndReportsSpeaking(t *testing.T) {
	pkts := make(chan *rtp.Packet)
	read := func() (*rtp.Packet, error) {
		p, ok := <-pkts
		if !ok {
			return nil, io.EOF
		}
		return p, nil
	}

	var mu sync.Mutex
	var edges []bool
	m := NewRelayManager()
	relay := m.start(context.Background(), "pub", nil, read, func(s bool) {
		mu.Lock()
		edges = append(edges, s)
		mu.Unlock()
	})
	sub := &sink{}
	require.True(t, m.AddSubscriber("pub", "sub", sub))
	require.False(t, m.AddSubscriber("nobody", "sub", sub))

	pkts <- voiced()
	require.Eventually(t, func() bool { return sub.count() == 1 }, time.Second, 5*time.Millisecond)

	close(pkts)
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(edges) == 2
	}, time.Second, 5*time.Millisecond)
	mu.Lock()
	require.Equal(t, []bool{true, false}, edges)
	mu.Unlock()
	require.Empty(t, relay.Subscribers())

	m.StopRelay("pub")
	require.False(t, m.HasRelay("pub"))
}
