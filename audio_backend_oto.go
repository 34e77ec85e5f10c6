//go:build !headless

// audio_backend_oto.go - OTO v3 audio output implementation

/*
 ██▓     ▄▄▄      ▒███████▒ █    ██  ██▓     ██▓
▓██▒    ▒████▄    ▒ ▒ ▒ ▄▀░ ██  ▓██▒▓██▒    ▓██▒
▒██░    ▒██  ▀█▄  ░ ▒ ▄▀▒░ ▓██  ▒██░▒██░    ▒██▒
▒██░    ░██▄▄▄▄██   ▄▀▒   ░▓▓█  ░██░▒██░    ░██░
░██████▒ ▓█   ▓██▒▒███████▒▒▒█████▓ ░██████▒░██░
░ ▒░▓  ░ ▒▒   ▓▒█░░▒▒ ▓░▒░▒░▒▓▒ ▒ ▒ ░ ▒░▓  ░░▓
░ ░ ▒  ░  ▒   ▒▒ ░░░▒ ▒ ░ ▒░░▒░ ░ ░ ░ ░ ▒  ░ ▒ ░
  ░ ░     ░   ▒   ░ ░ ░ ░ ░ ░░░ ░ ░   ░ ░    ▒ ░
    ░  ░      ░  ░  ░ ░       ░         ░  ░ ░
                  ░

(c) 2025 - 2026 the lazuli authors
https://github.com/vxpm/lazuli
License: GPLv3 or later
*/

package main

import (
	"sync"
	"unsafe"

	"github.com/ebitengine/oto/v3"
)

// Ring capacity in samples. Half a second of 32kHz stereo keeps scheduling
// jitter inaudible without adding noticeable latency.
const OTO_RING_SAMPLES = AID_SAMPLE_RATE

// OtoPlayer plays the audio DMA stream through oto. The machine pushes
// samples from the runner goroutine; oto pulls from its own mixer thread,
// so the ring is guarded by a mutex on both sides.
type OtoPlayer struct {
	ctx    *oto.Context
	player *oto.Player

	mutex   sync.Mutex
	ring    []float32
	rd, wr  int
	level   int
	started bool
}

func NewOtoPlayer() (*OtoPlayer, error) {
	op := &oto.NewContextOptions{
		SampleRate:   AID_SAMPLE_RATE,
		ChannelCount: 2,
		Format:       oto.FormatFloat32LE,
	}

	ctx, ready, err := oto.NewContext(op)
	if err != nil {
		return nil, err
	}
	<-ready

	p := &OtoPlayer{
		ctx:  ctx,
		ring: make([]float32, OTO_RING_SAMPLES),
	}
	p.player = ctx.NewPlayer(p)
	return p, nil
}

func (op *OtoPlayer) Start() error {
	op.mutex.Lock()
	defer op.mutex.Unlock()
	if !op.started {
		op.player.Play()
		op.started = true
	}
	return nil
}

func (op *OtoPlayer) Stop() {
	op.mutex.Lock()
	defer op.mutex.Unlock()
	if op.started {
		op.player.Pause()
		op.started = false
	}
}

// PushSamples appends interleaved stereo samples to the ring. A full ring
// drops the oldest audio rather than blocking the machine.
func (op *OtoPlayer) PushSamples(samples []float32) {
	op.mutex.Lock()
	defer op.mutex.Unlock()
	for _, s := range samples {
		if op.level == len(op.ring) {
			op.rd = (op.rd + 1) % len(op.ring)
			op.level--
		}
		op.ring[op.wr] = s
		op.wr = (op.wr + 1) % len(op.ring)
		op.level++
	}
}

// Read is the oto pull side. Underruns pad with silence.
func (op *OtoPlayer) Read(p []byte) (int, error) {
	numSamples := len(p) / 4
	out := unsafe.Slice((*float32)(unsafe.Pointer(&p[0])), numSamples)

	op.mutex.Lock()
	for i := 0; i < numSamples; i++ {
		if op.level > 0 {
			out[i] = op.ring[op.rd]
			op.rd = (op.rd + 1) % len(op.ring)
			op.level--
		} else {
			out[i] = 0
		}
	}
	op.mutex.Unlock()
	return numSamples * 4, nil
}
