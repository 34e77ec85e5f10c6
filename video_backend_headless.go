//go:build headless

// video_backend_headless.go - Null video output for headless builds

/*
(c) 2025 - 2026 the lazuli authors
License: GPLv3 or later
*/

package main

import "sync/atomic"

type HeadlessVideoOutput struct {
	started    atomic.Bool
	frameCount atomic.Uint64
}

func NewEbitenOutput() (*HeadlessVideoOutput, error) {
	return &HeadlessVideoOutput{}, nil
}

func (h *HeadlessVideoOutput) Start() error {
	h.started.Store(true)
	return nil
}

func (h *HeadlessVideoOutput) Stop() {
	h.started.Store(false)
}

func (h *HeadlessVideoOutput) PresentFrame(pixels []byte, width, height int) {
	h.frameCount.Add(1)
}

func (h *HeadlessVideoOutput) FrameCount() uint64 {
	return h.frameCount.Load()
}

// Run blocks until the runner quits; there is no window loop to drive.
func (h *HeadlessVideoOutput) Run(r *Runner) error {
	<-r.done
	return nil
}
