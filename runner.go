// runner.go - Wall-clock paced execution worker

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

/*
runner.go - Execution worker

The machine itself is single-threaded; the runner owns the one goroutine
allowed to touch it. It steps the machine in one-millisecond slices and
sleeps when emulation runs ahead of real time, so guest time tracks wall
time without busy-waiting. Everything else (the monitor, the frontend)
talks to the runner through its command channel and atomics.

A short history of consumed cycles backs the speed readout in the monitor:
the ratio of cycles retired to wall time elapsed over the last half second.
*/

package main

import (
	"log"
	"sync"
	"sync/atomic"
	"time"
)

// One stepping slice of guest time.
const RUN_SLICE = time.Millisecond

// Speed readout window.
const SPEED_WINDOW = 500 * time.Millisecond

type runnerCmd int

const (
	cmdPause runnerCmd = iota
	cmdResume
	cmdQuit
)

type cycleSample struct {
	when   time.Time
	cycles Cycles
}

type Runner struct {
	m *Machine

	cmds    chan runnerCmd
	done    chan struct{}
	stopped atomic.Bool
	paused  atomic.Bool

	mu          sync.Mutex
	breakpoints []uint32
	history     []cycleSample

	// OnBreak fires on the runner goroutine when a breakpoint stops
	// execution.
	OnBreak func(pc uint32)
}

func NewRunner(m *Machine) *Runner {
	return &Runner{
		m:    m,
		cmds: make(chan runnerCmd, 4),
		done: make(chan struct{}),
	}
}

// Start launches the worker goroutine paused.
func (r *Runner) Start() {
	r.paused.Store(true)
	go r.loop()
}

// Resume lets the worker run.
func (r *Runner) Resume() { r.cmds <- cmdResume }

// Pause stops the worker at the next slice boundary.
func (r *Runner) Pause() { r.cmds <- cmdPause }

// Quit shuts the worker down and waits for it.
func (r *Runner) Quit() {
	if r.stopped.CompareAndSwap(false, true) {
		r.cmds <- cmdQuit
	}
	<-r.done
}

// Paused reports whether the worker is currently holding.
func (r *Runner) Paused() bool { return r.paused.Load() }

// SetBreakpoints replaces the breakpoint set. Takes effect on the next
// slice.
func (r *Runner) SetBreakpoints(addrs []uint32) {
	r.mu.Lock()
	r.breakpoints = append(r.breakpoints[:0], addrs...)
	r.mu.Unlock()
}

// WithMachine runs fn with exclusive access to the machine. Only valid
// while paused; the monitor uses it for inspection and stepping.
func (r *Runner) WithMachine(fn func(m *Machine)) {
	if !r.paused.Load() {
		return
	}
	fn(r.m)
}

// Speed returns retired guest cycles per wall-clock second over the recent
// window.
func (r *Runner) Speed() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.history) < 2 {
		return 0
	}
	first, last := r.history[0], r.history[len(r.history)-1]
	elapsed := last.when.Sub(first.when).Seconds()
	if elapsed <= 0 {
		return 0
	}
	var total Cycles
	for _, s := range r.history[1:] {
		total += s.cycles
	}
	return float64(total) / elapsed
}

func (r *Runner) record(c Cycles) {
	now := time.Now()
	r.mu.Lock()
	r.history = append(r.history, cycleSample{when: now, cycles: c})
	cutoff := now.Add(-SPEED_WINDOW)
	trim := 0
	for trim < len(r.history) && r.history[trim].when.Before(cutoff) {
		trim++
	}
	r.history = r.history[trim:]
	r.mu.Unlock()
}

func (r *Runner) loop() {
	defer close(r.done)
	sliceCycles := CyclesFromDuration(RUN_SLICE)
	ahead := time.Duration(0)
	last := time.Now()

	for {
		if r.paused.Load() {
			switch <-r.cmds {
			case cmdResume:
				r.paused.Store(false)
				last = time.Now()
				ahead = 0
			case cmdQuit:
				return
			}
			continue
		}

		select {
		case cmd := <-r.cmds:
			switch cmd {
			case cmdPause:
				r.paused.Store(true)
			case cmdQuit:
				return
			}
			continue
		default:
		}

		r.mu.Lock()
		bps := append([]uint32(nil), r.breakpoints...)
		r.mu.Unlock()

		res, err := r.m.Exec(sliceCycles, bps)
		r.record(res.Cycles)
		if err != nil {
			log.Printf("runner: %v", err)
			r.paused.Store(true)
			continue
		}
		if res.HitBreakpoint {
			r.paused.Store(true)
			if r.OnBreak != nil {
				r.OnBreak(r.m.CPU.PC)
			}
			continue
		}

		// Pace against wall time: each slice of guest time earns one
		// RUN_SLICE of wall time; sleep off any surplus.
		now := time.Now()
		ahead += RUN_SLICE - now.Sub(last)
		last = now
		if ahead > RUN_SLICE {
			time.Sleep(ahead - RUN_SLICE)
			ahead = RUN_SLICE
		}
		if ahead < -10*RUN_SLICE {
			ahead = 0 // hopelessly behind, stop accounting the deficit
		}
	}
}
