// runner_test.go - Worker lifecycle and breakpoint stops

/*
(c) 2025 - 2026 the lazuli authors
License: GPLv3 or later
*/

package main

import (
	"testing"
	"time"
)

func TestRunnerStopsOnBreakpoint(t *testing.T) {
	m := newTestMachine(t)
	loadProgram(m, 0x5000,
		iADDI(3, 0, 1),
		iADDI(4, 0, 2),
		iBLR,
	)
	m.Bus.Write32(parkAddr, parkWord())
	m.CPU.LR = parkAddr

	r := NewRunner(m)
	hit := make(chan uint32, 1)
	r.OnBreak = func(pc uint32) { hit <- pc }
	r.SetBreakpoints([]uint32{0x5004})

	r.Start()
	if !r.Paused() {
		t.Fatalf("runner not paused after start")
	}
	r.Resume()

	select {
	case pc := <-hit:
		if pc != 0x5004 {
			t.Fatalf("stopped at %08x, want 00005004", pc)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("breakpoint never hit")
	}
	if !r.Paused() {
		t.Fatalf("runner not paused after the breakpoint")
	}

	var r3 uint32
	r.WithMachine(func(m *Machine) { r3 = m.CPU.GPR[3] })
	if r3 != 1 {
		t.Fatalf("r3 = %d at the breakpoint", r3)
	}

	r.Quit()
}

func TestRunnerQuitWhilePaused(t *testing.T) {
	m := newTestMachine(t)
	m.Bus.Write32(0x4000, parkWord())
	m.CPU.MSR = 0
	m.CPU.PC = 0x4000

	r := NewRunner(m)
	r.Start()
	done := make(chan struct{})
	go func() {
		r.Quit()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("quit did not shut the worker down")
	}
}

func TestRunnerWithMachineRefusedWhileRunning(t *testing.T) {
	m := newTestMachine(t)
	m.Bus.Write32(0x4000, parkWord())
	m.CPU.MSR = 0
	m.CPU.PC = 0x4000

	r := NewRunner(m)
	r.Start()
	r.Resume()
	// Wait for the worker to actually leave the paused state.
	deadline := time.Now().Add(5 * time.Second)
	for r.Paused() {
		if time.Now().After(deadline) {
			t.Fatalf("runner never resumed")
		}
		time.Sleep(time.Millisecond)
	}

	called := false
	r.WithMachine(func(m *Machine) { called = true })
	if called {
		t.Fatalf("machine access granted while running")
	}
	r.Quit()
}
