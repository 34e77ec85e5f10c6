// scheduler_test.go - Event ordering, cancellation and stale detection

/*
(c) 2025 - 2026 the lazuli authors
License: GPLv3 or later
*/

package main

import (
	"testing"
	"time"
)

func TestSchedulerOrdering(t *testing.T) {
	s := NewScheduler()
	var order []string
	note := func(name string) EventFunc {
		return func(m *Machine) { order = append(order, name) }
	}

	s.Schedule(200, "late", note("late"))
	s.Schedule(100, "a", note("a"))
	s.Schedule(100, "b", note("b"))
	s.Schedule(100, "c", note("c"))

	s.Advance(100)
	for {
		ev, err := s.PopDue()
		if err != nil {
			t.Fatalf("PopDue: %v", err)
		}
		if ev == nil {
			break
		}
		ev.Fire(nil)
	}

	want := []string{"a", "b", "c"}
	if len(order) != len(want) {
		t.Fatalf("fired %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("same-cycle events fired as %v, want insertion order %v", order, want)
		}
	}

	s.Advance(100)
	ev, _ := s.PopDue()
	if ev == nil || ev.Name != "late" {
		t.Fatalf("late event not delivered at its trigger")
	}
}

func TestSchedulerNotDueEarly(t *testing.T) {
	s := NewScheduler()
	s.Schedule(50, "x", func(m *Machine) {})
	if ev, _ := s.PopDue(); ev != nil {
		t.Fatalf("event popped %d cycles early", 50)
	}
	if dl, ok := s.NextDeadline(); !ok || dl != 50 {
		t.Fatalf("NextDeadline = %d,%v want 50,true", dl, ok)
	}
}

func TestSchedulerCancel(t *testing.T) {
	s := NewScheduler()
	ev := s.Schedule(10, "x", func(m *Machine) {})
	if !s.Cancel(ev) {
		t.Fatalf("cancel of queued event failed")
	}
	if s.Cancel(ev) {
		t.Fatalf("double cancel succeeded")
	}
	if ev.Pending() {
		t.Fatalf("cancelled event still pending")
	}
	s.Advance(10)
	if got, _ := s.PopDue(); got != nil {
		t.Fatalf("cancelled event still fired")
	}
	if s.Cancel(nil) {
		t.Fatalf("cancel of nil event succeeded")
	}
}

func TestSchedulerStaleEvent(t *testing.T) {
	s := NewScheduler()
	s.Schedule(10, "stale", func(m *Machine) {})
	s.Advance(10 + STALE_EVENT_SLACK + 1)

	_, err := s.PopDue()
	if err == nil {
		t.Fatalf("event %d cycles past its trigger did not report inconsistency", STALE_EVENT_SLACK+1)
	}
	if _, ok := err.(*ScheduleInconsistency); !ok {
		t.Fatalf("error is %T, want *ScheduleInconsistency", err)
	}
}

func TestCyclesDurationConversion(t *testing.T) {
	if c := CyclesFromDuration(time.Second); c != CORE_CLOCK {
		t.Fatalf("one second = %d cycles, want %d", c, CORE_CLOCK)
	}
	if d := Cycles(CORE_CLOCK / 1000).Duration(); d != time.Millisecond {
		t.Fatalf("1ms of cycles = %v", d)
	}
}
