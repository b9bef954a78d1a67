package sfu

import (
	"sync"
	"time"
)

const (
	// Opus DTX comfort-noise frames are at most this many bytes.
	silencePayloadMax = 3
	// DefaultSpeakingHold is how long speaking stays on after the last voiced packet.
	DefaultSpeakingHold = 400 * time.Millisecond
)

// SpeakingDetector turns per-packet payload sizes into speaking edges.
type SpeakingDetector struct {
	hold time.Duration

	mu        sync.Mutex
	speaking  bool
	lastVoice time.Time
}

func NewSpeakingDetector(hold time.Duration) *SpeakingDetector {
	if hold <= 0 {
		hold = DefaultSpeakingHold
	}
	return &SpeakingDetector{hold: hold}
}

// Observe records one packet. changed is true on the rising edge.
func (d *SpeakingDetector) Observe(payloadLen int, now time.Time) (speaking, changed bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if payloadLen <= silencePayloadMax {
		return d.settle(now)
	}
	d.lastVoice = now
	if d.speaking {
		return true, false
	}
	d.speaking = true
	return true, true
}

// Tick lets speaking fall back to false once the hold has expired.
func (d *SpeakingDetector) Tick(now time.Time) (speaking, changed bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.settle(now)
}

// Reset forces the detector silent. changed reports whether it was speaking.
func (d *SpeakingDetector) Reset() (changed bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	changed = d.speaking
	d.speaking = false
	return changed
}

func (d *SpeakingDetector) settle(now time.Time) (bool, bool) {
	if d.speaking && now.Sub(d.lastVoice) >= d.hold {
		d.speaking = false
		return false, true
	}
	return d.speaking, false
}
