// machine_test.go - Cooperative loop: event slicing, DSP clock, breakpoints

/*
(c) 2025 - 2026 the lazuli authors
License: GPLv3 or later
*/

package main

import "testing"

func TestExecSlicesAgainstDeadlines(t *testing.T) {
	m := newTestMachine(t)
	m.Bus.Write32(0x4000, parkWord())
	m.CPU.MSR = 0
	m.CPU.PC = 0x4000

	var firedAt []Cycles
	m.Sched.Schedule(500, "a", func(m *Machine) {
		firedAt = append(firedAt, m.Sched.Now())
	})
	m.Sched.Schedule(1500, "b", func(m *Machine) {
		firedAt = append(firedAt, m.Sched.Now())
	})

	ex, err := m.Exec(2000, nil)
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}
	if ex.Cycles != 2000 {
		t.Fatalf("consumed %d cycles, want the whole budget", ex.Cycles)
	}
	if len(firedAt) != 2 || firedAt[0] != 500 || firedAt[1] != 1500 {
		t.Fatalf("events fired at %v, want exactly their triggers", firedAt)
	}
	if m.Sched.Now() != 2000 {
		t.Fatalf("clock at %d after exec", m.Sched.Now())
	}
}

func TestExecStepsDSPAtDividedClock(t *testing.T) {
	m := newTestMachine(t)
	m.Bus.Write32(0x4000, parkWord())
	m.CPU.MSR = 0
	m.CPU.PC = 0x4000

	// Three instructions: load a marker, store it to data ram, halt.
	m.DSP.Core.LoadIRAM(0, ucode(
		uLRI(DSP_REG_AC0M, 0x77),
		uSR(0x0030, DSP_REG_AC0M),
		uHALT,
	))
	m.DSP.Core.Reset(false)

	// One DSP step per six core cycles: six cycles runs only the load.
	if _, err := m.Exec(6, nil); err != nil {
		t.Fatalf("Exec: %v", err)
	}
	if m.DSP.Core.dram[0x30] != 0 {
		t.Fatalf("store ran after one dsp step")
	}

	if _, err := m.Exec(12, nil); err != nil {
		t.Fatalf("Exec: %v", err)
	}
	if m.DSP.Core.dram[0x30] != 0x77 {
		t.Fatalf("dram[30] = %04x after three dsp steps", m.DSP.Core.dram[0x30])
	}
	if !m.DSP.Core.Halted() {
		t.Fatalf("core not halted")
	}
}

func TestExecReportsBreakpoint(t *testing.T) {
	m := newTestMachine(t)
	loadProgram(m, 0x5000,
		iADDI(3, 0, 1),
		iADDI(4, 0, 2),
		iBLR,
	)
	m.Bus.Write32(parkAddr, parkWord())
	m.CPU.LR = parkAddr

	ex, err := m.Exec(10_000, []uint32{0x5004})
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}
	if !ex.HitBreakpoint {
		t.Fatalf("breakpoint not reported")
	}
	if ex.Cycles >= 10_000 {
		t.Fatalf("breakpoint did not stop the slice early")
	}
	if m.CPU.PC != 0x5004 {
		t.Fatalf("pc = %08x", m.CPU.PC)
	}
}

func TestExecPropagatesScheduleErrors(t *testing.T) {
	m := newTestMachine(t)
	m.Bus.Write32(0x4000, parkWord())
	m.CPU.MSR = 0
	m.CPU.PC = 0x4000

	// Force a stale event by backdating the queue behind the clock.
	m.Sched.Schedule(10, "stale", func(m *Machine) {})
	m.Sched.Advance(10 + STALE_EVENT_SLACK + 1)

	if _, err := m.Exec(100, nil); err == nil {
		t.Fatalf("stale event did not surface from Exec")
	}
}

func TestGatherToDrawEndToEnd(t *testing.T) {
	m := newTestMachine(t)
	fifoBase := uint32(0x0030_0000)

	// Point both the gather pipe and the command processor at the FIFO and
	// enable draining.
	m.Bus.Write32(PI_FIFO_BASE, fifoBase)
	m.Bus.Write32(PI_FIFO_END, fifoBase+0x1000-32)
	m.Bus.Write32(PI_FIFO_WPTR, fifoBase)
	m.Bus.Write16(CP_CONTROL, CP_CONTROL_READ_ENABLE)

	var stream []byte
	stream = append(stream, cmdSetCP(CPREG_VCD_LO, uint32(AttrDirect)<<9)...)
	stream = append(stream, cmdSetCP(CPREG_VAT_A, 1|uint32(CoordF32)<<1)...)
	stream = append(stream, cmdDraw(PRIM_TRIANGLES, f32be(1, 0, 0), f32be(0, 1, 0), f32be(0, 0, 1))...)
	for len(stream)%32 != 0 {
		stream = append(stream, CP_OP_NOP)
	}
	for i := 0; i+3 < len(stream); i += 4 {
		m.Bus.Write32(GATHER_PORT, be32(stream[i:]))
	}

	// The drain runs off a scheduled event, not inline with the store.
	if len(m.CP.TakeDraws()) != 0 {
		t.Fatalf("draw decoded synchronously with the gather store")
	}
	m.Bus.Write32(0x4000, parkWord())
	m.CPU.MSR = 0
	m.CPU.PC = 0x4000
	if _, err := m.Exec(CP_PROCESS_INTERVAL*2, nil); err != nil {
		t.Fatalf("Exec: %v", err)
	}

	draws := m.CP.TakeDraws()
	if len(draws) != 1 {
		t.Fatalf("decoded %d draws through the gather path", len(draws))
	}
	if draws[0].Vertices[0].Position != [3]float32{1, 0, 0} {
		t.Fatalf("vertex = %v", draws[0].Vertices[0].Position)
	}
}
