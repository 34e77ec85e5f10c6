//go:build headless

// audio_backend_headless.go - Null audio output for headless builds

/*
(c) 2025 - 2026 the lazuli authors
License: GPLv3 or later
*/

package main

import "sync/atomic"

type HeadlessAudioOutput struct {
	started     atomic.Bool
	sampleCount atomic.Uint64
}

func NewOtoPlayer() (*HeadlessAudioOutput, error) {
	return &HeadlessAudioOutput{}, nil
}

func (h *HeadlessAudioOutput) Start() error {
	h.started.Store(true)
	return nil
}

func (h *HeadlessAudioOutput) Stop() {
	h.started.Store(false)
}

func (h *HeadlessAudioOutput) PushSamples(samples []float32) {
	h.sampleCount.Add(uint64(len(samples)))
}

func (h *HeadlessAudioOutput) SampleCount() uint64 {
	return h.sampleCount.Load()
}
