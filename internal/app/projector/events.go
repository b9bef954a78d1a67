package projector

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dkeye/voxroom/internal/core"
	"github.com/dkeye/voxroom/internal/domain"
)

// consume is the single handler of ls's events, in transport order.
func (p *Projector) consume(ls *liveSession) {
	defer close(ls.done)
	<-ls.ready
	for ev := range ls.s.Events() {
		if ls.detached.Load() {
			continue
		}
		p.apply(ls, ev)
	}
	p.lost(ls)
}

func (p *Projector) apply(ls *liveSession, ev core.Event) {
	switch ev.Kind {
	case core.EventPhaseChanged:
		switch ev.Phase {
		case domain.PhaseDisconnected:
			p.lost(ls)
		case domain.PhaseConnected:
			p.guarded(ls, func(st *Snapshot) {
				st.Phase = domain.PhaseConnected
				st.Participants = roster(ls.s)
			})
		default:
			p.guarded(ls, func(st *Snapshot) { st.Phase = ev.Phase })
		}

	case core.EventMessageReceived:
		sender := domain.UnknownSender
		if ev.Participant != nil {
			// The server never echoes our own lines; anything claiming to be us is dropped.
			if ev.Participant.Identity == ls.identity {
				return
			}
			sender = ev.Participant.Identity
		}
		at := ev.At
		if at.IsZero() {
			at = time.Now()
		}
		p.guarded(ls, func(st *Snapshot) {
			st.Transcript = append(st.Transcript, domain.ChatEntry{SenderIdentity: sender, Text: ev.Text, Timestamp: at})
		})

	default:
		if !ev.AffectsRoster() {
			return
		}
		p.guarded(ls, func(st *Snapshot) {
			st.Participants = roster(ls.s)
			if ev.Participant == nil {
				return
			}
			switch ev.Kind {
			case core.EventParticipantJoined:
				st.Transcript = append(st.Transcript, systemEntry(fmt.Sprintf(joinedFormat, ev.Participant.DisplayName())))
			case core.EventParticipantLeft:
				st.Transcript = append(st.Transcript, systemEntry(fmt.Sprintf(leftFormat, ev.Participant.DisplayName())))
			}
		})
	}
}

// guarded applies fn only while ls is still the live session.
func (p *Projector) guarded(ls *liveSession, fn func(st *Snapshot)) {
	p.update(func(st *Snapshot) {
		if ls.detached.Load() {
			return
		}
		fn(st)
	})
}

// lost runs the disconnect cleanup for a session the transport ended on its own.
func (p *Projector) lost(ls *liveSession) {
	p.teardown(context.Background(), ls, true)
}

// sample refreshes the transport label until ctx is cancelled.
func (p *Projector) sample(ctx context.Context, ls *liveSession) {
	t := time.NewTicker(p.cfg.StatsInterval)
	defer t.Stop()
	p.sampleOnce(ctx, ls)
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			p.sampleOnce(ctx, ls)
		}
	}
}

func (p *Projector) sampleOnce(ctx context.Context, ls *liveSession) {
	if ls.detached.Load() || ls.s.Phase() != domain.PhaseConnected {
		return
	}
	label := domain.UnknownTransport
	if proto, err := ls.s.TransportProtocol(ctx); err == nil && proto != "" {
		label = strings.ToUpper(proto)
	}
	if p.Snapshot().Transport == label {
		return
	}
	p.guarded(ls, func(st *Snapshot) { st.Transport = label })
}
