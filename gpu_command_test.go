// gpu_command_test.go - FIFO drain, opcode stream decode, display lists

/*
(c) 2025 - 2026 the lazuli authors
License: GPLv3 or later
*/

package main

import (
	"encoding/binary"
	"testing"
)

const testFifoBase = 0x0010_0000
const testFifoSize = 0x1000

// newTestCP sets up a command processor with its FIFO in RAM and the given
// stream already pushed.
func newTestCP(t *testing.T, stream []byte) *CommandProcessor {
	t.Helper()
	bus := NewMemoryBus()
	cp := NewCommandProcessor(bus)
	cp.Fifo.Base = testFifoBase
	cp.Fifo.End = testFifoBase + testFifoSize - 32
	cp.Fifo.ReadPtr = testFifoBase
	cp.Fifo.WritePtr = testFifoBase
	pushFifo(t, cp, stream)
	return cp
}

func pushFifo(t *testing.T, cp *CommandProcessor, stream []byte) {
	t.Helper()
	for _, b := range stream {
		cp.bus.Write8(cp.Fifo.WritePtr, b)
		cp.Fifo.WritePtr++
		if cp.Fifo.WritePtr > cp.Fifo.End+31 {
			cp.Fifo.WritePtr = cp.Fifo.Base
		}
	}
}

func cmdSetCP(reg uint8, value uint32) []byte {
	out := []byte{CP_OP_SET_CP, reg}
	return binary.BigEndian.AppendUint32(out, value)
}

func cmdDraw(op uint8, data ...[]byte) []byte {
	out := []byte{op}
	out = binary.BigEndian.AppendUint16(out, uint16(len(data)))
	for _, d := range data {
		out = append(out, d...)
	}
	return out
}

func TestSetCPRegisterLoads(t *testing.T) {
	var stream []byte
	stream = append(stream, cmdSetCP(CPREG_VCD_LO, 0x200)...)
	stream = append(stream, cmdSetCP(CPREG_ARRAY_BASE, 0xFC12_3456)...)
	stream = append(stream, cmdSetCP(CPREG_ARRAY_STRIDE, 0x10C)...)

	cp := newTestCP(t, stream)
	if err := cp.Drain(CP_DRAIN_BUDGET); err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if cp.regs[CPREG_VCD_LO] != 0x200 {
		t.Fatalf("vcd lo = %08x, want 00000200", cp.regs[CPREG_VCD_LO])
	}
	if cp.arrays.Base[ARRAY_POSITION] != 0x0012_3456 {
		t.Fatalf("position base = %08x, upper bits not masked", cp.arrays.Base[ARRAY_POSITION])
	}
	if cp.arrays.Stride[ARRAY_POSITION] != 0x0C {
		t.Fatalf("position stride = %d, want 12", cp.arrays.Stride[ARRAY_POSITION])
	}
	if cp.Fifo.Count() != 0 {
		t.Fatalf("%d bytes left after a full drain", cp.Fifo.Count())
	}
}

func TestDrawDecodesVertices(t *testing.T) {
	var stream []byte
	stream = append(stream, cmdSetCP(CPREG_VCD_LO, uint32(AttrDirect)<<9)...)
	stream = append(stream, cmdSetCP(CPREG_VAT_A+1, 1|uint32(CoordF32)<<1)...)
	stream = append(stream, cmdDraw(PRIM_TRIANGLES|1,
		f32be(1, 2, 3), f32be(4, 5, 6), f32be(7, 8, 9))...)

	cp := newTestCP(t, stream)
	if err := cp.Drain(CP_DRAIN_BUDGET); err != nil {
		t.Fatalf("Drain: %v", err)
	}

	draws := cp.TakeDraws()
	if len(draws) != 1 {
		t.Fatalf("decoded %d draws, want 1", len(draws))
	}
	d := draws[0]
	if d.Primitive != PRIM_TRIANGLES || d.VatIndex != 1 {
		t.Fatalf("draw = prim %02x vat %d", d.Primitive, d.VatIndex)
	}
	if len(d.Vertices) != 3 {
		t.Fatalf("%d vertices, want 3", len(d.Vertices))
	}
	if d.Vertices[2].Position != [3]float32{7, 8, 9} {
		t.Fatalf("last vertex = %v", d.Vertices[2].Position)
	}
	if cp.TakeDraws() != nil {
		t.Fatalf("TakeDraws did not clear the queue")
	}
}

func TestPartialCommandStaysQueued(t *testing.T) {
	full := cmdSetCP(CPREG_VCD_LO, 0x123)
	stream := append([]byte{CP_OP_NOP}, full[:3]...)

	cp := newTestCP(t, stream)
	if err := cp.Drain(CP_DRAIN_BUDGET); err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if got := cp.Fifo.ReadPtr; got != testFifoBase+1 {
		t.Fatalf("read ptr = %08x, want only the nop consumed", got)
	}
	if cp.regs[CPREG_VCD_LO] != 0 {
		t.Fatalf("partial register load took effect")
	}

	pushFifo(t, cp, full[3:])
	if err := cp.Drain(CP_DRAIN_BUDGET); err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if cp.regs[CPREG_VCD_LO] != 0x123 {
		t.Fatalf("register load lost across the partial boundary")
	}
}

func TestPartialDrawStaysQueued(t *testing.T) {
	var stream []byte
	stream = append(stream, cmdSetCP(CPREG_VCD_LO, uint32(AttrDirect)<<9)...)
	stream = append(stream, cmdSetCP(CPREG_VAT_A, 1|uint32(CoordF32)<<1)...)
	draw := cmdDraw(PRIM_POINTS, f32be(1, 2, 3), f32be(4, 5, 6))
	stream = append(stream, draw[:len(draw)-4]...)

	cp := newTestCP(t, stream)
	if err := cp.Drain(CP_DRAIN_BUDGET); err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if len(cp.Draws) != 0 {
		t.Fatalf("truncated draw emitted anyway")
	}
	if got := cp.Fifo.ReadPtr; got != testFifoBase+12 {
		t.Fatalf("read ptr = %08x, want parked at the draw opcode", got)
	}

	pushFifo(t, cp, draw[len(draw)-4:])
	if err := cp.Drain(CP_DRAIN_BUDGET); err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if len(cp.Draws) != 1 || len(cp.Draws[0].Vertices) != 2 {
		t.Fatalf("draw not completed after the rest arrived")
	}
}

func TestUnknownOpcodeEmptiesFifo(t *testing.T) {
	stream := []byte{CP_OP_NOP, 0x70, CP_OP_NOP, CP_OP_NOP}
	cp := newTestCP(t, stream)

	err := cp.Drain(CP_DRAIN_BUDGET)
	if err == nil {
		t.Fatalf("unknown opcode drained without error")
	}
	if _, ok := err.(*DecodeFault); !ok {
		t.Fatalf("error is %T, want *DecodeFault", err)
	}
	if cp.Fifo.Count() != 0 {
		t.Fatalf("%d bytes left after a decode fault, stream must be discarded", cp.Fifo.Count())
	}
}

func TestSetXFLoads(t *testing.T) {
	// Two words starting at transform address 0x1008.
	stream := []byte{CP_OP_SET_XF}
	stream = binary.BigEndian.AppendUint32(stream, 1<<16|0x1008)
	stream = binary.BigEndian.AppendUint32(stream, 0xAAAA_0001)
	stream = binary.BigEndian.AppendUint32(stream, 0xBBBB_0002)

	cp := newTestCP(t, stream)
	if err := cp.Drain(CP_DRAIN_BUDGET); err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if cp.xf[0x1008] != 0xAAAA_0001 || cp.xf[0x1009] != 0xBBBB_0002 {
		t.Fatalf("xf = %08x %08x", cp.xf[0x1008], cp.xf[0x1009])
	}
}

func TestDisplayListCall(t *testing.T) {
	cp := newTestCP(t, nil)

	// Display list in memory: a register load and a one-point draw.
	var dl []byte
	dl = append(dl, cmdSetCP(CPREG_VCD_LO, uint32(AttrDirect)<<9)...)
	dl = append(dl, cmdSetCP(CPREG_VAT_A, 1|uint32(CoordF32)<<1)...)
	dl = append(dl, cmdDraw(PRIM_POINTS, f32be(1, 2, 3))...)
	dlAddr := uint32(0x0020_0000)
	copy(mustSlice(t, cp.bus, dlAddr, uint32(len(dl))), dl)

	stream := []byte{CP_OP_CALL}
	stream = binary.BigEndian.AppendUint32(stream, dlAddr)
	stream = binary.BigEndian.AppendUint32(stream, uint32(len(dl)))
	pushFifo(t, cp, stream)

	if err := cp.Drain(CP_DRAIN_BUDGET); err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if len(cp.Draws) != 1 || cp.Draws[0].Vertices[0].Position != [3]float32{1, 2, 3} {
		t.Fatalf("display list draw missing: %v", cp.Draws)
	}
}

func TestDisplayListTruncatedIsMalformed(t *testing.T) {
	cp := newTestCP(t, nil)

	dl := cmdSetCP(CPREG_VCD_LO, 1)[:4] // cut mid-command
	dlAddr := uint32(0x0020_0000)
	copy(mustSlice(t, cp.bus, dlAddr, uint32(len(dl))), dl)

	stream := []byte{CP_OP_CALL}
	stream = binary.BigEndian.AppendUint32(stream, dlAddr)
	stream = binary.BigEndian.AppendUint32(stream, uint32(len(dl)))
	pushFifo(t, cp, stream)

	if err := cp.Drain(CP_DRAIN_BUDGET); err == nil {
		t.Fatalf("truncated display list did not fault")
	}
}

func TestFifoWrapDrain(t *testing.T) {
	cp := newTestCP(t, nil)
	// Park both pointers near the end so the command straddles the wrap.
	cp.Fifo.ReadPtr = cp.Fifo.End + 32 - 2
	cp.Fifo.WritePtr = cp.Fifo.ReadPtr
	pushFifo(t, cp, cmdSetCP(CPREG_VCD_LO, 0x77))

	if err := cp.Drain(CP_DRAIN_BUDGET); err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if cp.regs[CPREG_VCD_LO] != 0x77 {
		t.Fatalf("wrapped command not decoded")
	}
	if cp.Fifo.ReadPtr != testFifoBase+4 {
		t.Fatalf("read ptr = %08x after wrap, want %08x", cp.Fifo.ReadPtr, uint32(testFifoBase+4))
	}
	if cp.Fifo.Count() != 0 {
		t.Fatalf("count = %d after wrap drain", cp.Fifo.Count())
	}
}

func TestDrainBudgetLimitsCommands(t *testing.T) {
	stream := make([]byte, 16)
	for i := range stream {
		stream[i] = CP_OP_NOP
	}
	cp := newTestCP(t, stream)
	if err := cp.Drain(10); err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if cp.Fifo.Count() != 6 {
		t.Fatalf("count = %d after budgeted drain, want 6", cp.Fifo.Count())
	}
}

func TestParserCacheReusedAcrossDraws(t *testing.T) {
	var stream []byte
	stream = append(stream, cmdSetCP(CPREG_VCD_LO, uint32(AttrDirect)<<9)...)
	stream = append(stream, cmdSetCP(CPREG_VAT_A, 1|uint32(CoordF32)<<1)...)
	for i := 0; i < 3; i++ {
		stream = append(stream, cmdDraw(PRIM_POINTS, f32be(0, 0, 0))...)
	}

	cp := newTestCP(t, stream)
	if err := cp.Drain(CP_DRAIN_BUDGET); err != nil {
		t.Fatalf("Drain: %v", err)
	}
	hits, misses := cp.parsers.Stats()
	if misses != 1 || hits != 2 {
		t.Fatalf("parser cache = %d hits %d misses, want 2/1", hits, misses)
	}
}

func TestCPPointerRegistersSplitAccess(t *testing.T) {
	cp := newTestCP(t, nil)
	cp.writeReg(CP_BASE+0x34, 2, 0x2340)
	cp.writeReg(CP_BASE+0x36, 2, 0x0012)
	if cp.Fifo.WritePtr != 0x0012_2340 {
		t.Fatalf("write ptr = %08x after lo/hi writes", cp.Fifo.WritePtr)
	}
	if cp.readReg(CP_BASE+0x34, 2) != 0x2340 || cp.readReg(CP_BASE+0x36, 2) != 0x0012 {
		t.Fatalf("write ptr halves read back wrong")
	}

	cp.token = 0xBEEF
	if cp.readReg(CP_TOKEN, 2) != 0xBEEF {
		t.Fatalf("token readback failed")
	}
}
