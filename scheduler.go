// scheduler.go - Cycle-ordered event scheduler for the lazuli execution core

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
scheduler.go - Cycle-ordered event scheduler

All device timing in the machine is expressed as events on a single queue
ordered by trigger cycle. The CPU runs until the next deadline or until its
budget is exhausted, then every due event fires with the machine as context.
Events scheduled for the same cycle fire in insertion order.

The clock unit is one core cycle at 486MHz. Devices that run at a divided
clock (the DSP at a sixth of the core clock, the time base at a twelfth)
convert at their own boundary.
*/

package main

import (
	"container/heap"
	"time"
)

// Cycles counts core clock cycles at CORE_CLOCK Hz.
type Cycles uint64

const CORE_CLOCK = 486_000_000

// CyclesFromDuration converts wall-clock time into core cycles.
func CyclesFromDuration(d time.Duration) Cycles {
	return Cycles(d.Nanoseconds() * (CORE_CLOCK / 1_000_000) / 1_000_000)
}

// Duration converts core cycles into wall-clock time.
func (c Cycles) Duration() time.Duration {
	return time.Duration(uint64(c) * 1_000_000 / (CORE_CLOCK / 1_000_000))
}

// STALE_EVENT_SLACK is how far past its trigger an event may be observed
// before the queue is considered inconsistent. One millisecond of core time,
// matching the stepping slice of the runner.
const STALE_EVENT_SLACK = Cycles(CORE_CLOCK / 1000)

// EventFunc fires with the whole machine as context so handlers can touch
// any device.
type EventFunc func(m *Machine)

type ScheduleEvent struct {
	Name    string
	Trigger Cycles
	fire    EventFunc
	seq     uint64
	index   int // heap position, -1 when not queued
}

type eventHeap []*ScheduleEvent

func (h eventHeap) Len() int { return len(h) }

func (h eventHeap) Less(i, j int) bool {
	if h[i].Trigger != h[j].Trigger {
		return h[i].Trigger < h[j].Trigger
	}
	return h[i].seq < h[j].seq
}

func (h eventHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *eventHeap) Push(x any) {
	ev := x.(*ScheduleEvent)
	ev.index = len(*h)
	*h = append(*h, ev)
}

func (h *eventHeap) Pop() any {
	old := *h
	n := len(old)
	ev := old[n-1]
	old[n-1] = nil
	ev.index = -1
	*h = old[:n-1]
	return ev
}

type Scheduler struct {
	now   Cycles
	seq   uint64
	queue eventHeap
}

func NewScheduler() *Scheduler {
	return &Scheduler{}
}

// Now returns the current cycle count since power-on.
func (s *Scheduler) Now() Cycles {
	return s.now
}

// Advance moves the clock forward by the given cycle count.
func (s *Scheduler) Advance(c Cycles) {
	s.now += c
}

// Schedule queues fn to fire delay cycles from now and returns a handle
// usable with Cancel.
func (s *Scheduler) Schedule(delay Cycles, name string, fn EventFunc) *ScheduleEvent {
	ev := &ScheduleEvent{
		Name:    name,
		Trigger: s.now + delay,
		fire:    fn,
		seq:     s.seq,
	}
	s.seq++
	heap.Push(&s.queue, ev)
	return ev
}

// ScheduleNow queues fn to fire at the current cycle, after any events
// already due.
func (s *Scheduler) ScheduleNow(name string, fn EventFunc) *ScheduleEvent {
	return s.Schedule(0, name, fn)
}

// Cancel removes a queued event. Cancelling an event that already fired is
// a no-op and returns false.
func (s *Scheduler) Cancel(ev *ScheduleEvent) bool {
	if ev == nil || ev.index < 0 {
		return false
	}
	heap.Remove(&s.queue, ev.index)
	return true
}

// NextDeadline returns the trigger cycle of the earliest queued event.
func (s *Scheduler) NextDeadline() (Cycles, bool) {
	if len(s.queue) == 0 {
		return 0, false
	}
	return s.queue[0].Trigger, true
}

// PopDue removes and returns the earliest event whose trigger has been
// reached, or nil if nothing is due. An event found more than
// STALE_EVENT_SLACK behind the clock reports a ScheduleInconsistency.
func (s *Scheduler) PopDue() (*ScheduleEvent, error) {
	if len(s.queue) == 0 || s.queue[0].Trigger > s.now {
		return nil, nil
	}
	ev := heap.Pop(&s.queue).(*ScheduleEvent)
	if ev.Trigger+STALE_EVENT_SLACK < s.now {
		return nil, &ScheduleInconsistency{Name: ev.Name, Trigger: ev.Trigger, Now: s.now}
	}
	return ev, nil
}

// Fire invokes the event handler.
func (ev *ScheduleEvent) Fire(m *Machine) {
	ev.fire(m)
}

// Pending reports whether the event is still queued.
func (ev *ScheduleEvent) Pending() bool {
	return ev != nil && ev.index >= 0
}
