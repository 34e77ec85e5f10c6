// dsp_core_test.go - DSP interpreter: accumulators, flags, mail-wait

/*
(c) 2025 - 2026 the lazuli authors
License: GPLv3 or later
*/

package main

import "testing"

type dspHwStub struct {
	mem    map[uint16]uint16
	writes map[uint16]uint16
}

func newDspHwStub() *dspHwStub {
	return &dspHwStub{
		mem:    make(map[uint16]uint16),
		writes: make(map[uint16]uint16),
	}
}

func (s *dspHwStub) HwRead(addr uint16) uint16 { return s.mem[addr] }

func (s *dspHwStub) HwWrite(addr uint16, value uint16) { s.writes[addr] = value }

// runUcode loads a program into instruction RAM and runs it to the halt or
// until the step cap trips.
func runUcode(t *testing.T, hw DspHardware, words ...uint16) *DspCore {
	t.Helper()
	d := NewDspCore(hw)
	d.LoadIRAM(0, words)
	d.Reset(false)
	for i := 0; i < 1000; i++ {
		if d.Step(1) == 0 {
			return d
		}
	}
	t.Fatalf("ucode did not halt")
	return nil
}

// ucode opcode builders, mirroring the interpreter's encodings.

func uLRI(reg int, imm uint16) []uint16 { return []uint16{0x0080 | uint16(reg), imm} }
func uLR(reg int, addr uint16) []uint16 { return []uint16{0x00C0 | uint16(reg), addr} }
func uSR(addr uint16, reg int) []uint16 { return []uint16{0x00E0 | uint16(reg), addr} }
func uJCC(cc uint16, addr uint16) []uint16 {
	return []uint16{0x0290 | cc, addr}
}

const uHALT = 0x0021

func ucode(parts ...interface{}) []uint16 {
	var out []uint16
	for _, p := range parts {
		switch v := p.(type) {
		case uint16:
			out = append(out, v)
		case int:
			out = append(out, uint16(v))
		case []uint16:
			out = append(out, v...)
		}
	}
	return out
}

func TestAcMidSaturation(t *testing.T) {
	d := NewDspCore(newDspHwStub())

	d.ac[0] = 0x12_3456_789A // does not fit in 32 bits
	if got := d.acMid(0); got != 0x3456 {
		t.Fatalf("mid without sxm = %04x, want raw 3456", got)
	}

	d.regs[DSP_REG_SR] |= DSP_SR_SXM
	if got := d.acMid(0); got != 0x7FFF {
		t.Fatalf("positive overflow mid = %04x, want 7fff", got)
	}
	d.ac[0] = signExtend40(-0x12_3456_789A)
	if got := d.acMid(0); got != 0x8000 {
		t.Fatalf("negative overflow mid = %04x, want 8000", got)
	}
	d.ac[0] = 0x1234_5678 // fits
	if got := d.acMid(0); got != 0x1234 {
		t.Fatalf("in-range mid = %04x, want 1234", got)
	}
}

func TestAcMidWriteClearsLowAndSignExtends(t *testing.T) {
	d := NewDspCore(newDspHwStub())
	d.ac[0] = 0x55_5555_5555
	d.writeReg(DSP_REG_AC0M, 0x8000)
	if d.ac[0] != int64(int16(-0x8000))<<16 {
		t.Fatalf("ac0 = %010x after mid write", uint64(d.ac[0])&0xFF_FFFF_FFFF)
	}
	if d.acLo(0) != 0 {
		t.Fatalf("low word survived a mid write")
	}
	if d.acHi(0) != 0xFF {
		t.Fatalf("high byte = %02x, want sign extension", d.acHi(0))
	}
}

func TestLoadStoreRoundtrip(t *testing.T) {
	d := runUcode(t, newDspHwStub(), ucode(
		uLRI(DSP_REG_AC0M, 0x1234),
		uSR(0x0020, DSP_REG_AC0M),
		uLR(DSP_REG_AX0L, 0x0020),
		uHALT,
	)...)
	if d.dram[0x20] != 0x1234 {
		t.Fatalf("dram[20] = %04x", d.dram[0x20])
	}
	if d.regs[DSP_REG_AX0L] != 0x1234 {
		t.Fatalf("ax0.l = %04x after load", d.regs[DSP_REG_AX0L])
	}
	if !d.Halted() {
		t.Fatalf("core not halted")
	}
}

func TestAddFlagsZeroAndCarry(t *testing.T) {
	// ac0 = -0x10000, then addis ac0, 1: result is exactly zero with a
	// carry out of bit 39.
	d := runUcode(t, newDspHwStub(), ucode(
		uLRI(DSP_REG_AC0M, 0xFFFF),
		0x0401, // addis $ac0.m, #1
		uHALT,
	)...)
	if d.ac[0] != 0 {
		t.Fatalf("ac0 = %x, want 0", d.ac[0])
	}
	sr := d.regs[DSP_REG_SR]
	if sr&DSP_SR_Z == 0 || sr&DSP_SR_C == 0 {
		t.Fatalf("sr = %04x, want z and c set", sr)
	}
	if sr&DSP_SR_S != 0 {
		t.Fatalf("sr = %04x, sign set on a zero result", sr)
	}
}

func TestCompareBranch(t *testing.T) {
	// Equal accumulators take the eq branch and skip the marker store.
	d := runUcode(t, newDspHwStub(), ucode(
		uLRI(DSP_REG_AC0M, 5),
		uLRI(DSP_REG_AC1M, 5),
		0x8200, // cmp
		uJCC(0x5, 0x000B), // eq, past the marker store
		uLRI(DSP_REG_AX0L, 0xDEAD),
		uSR(0x0030, DSP_REG_AX0L),
		uHALT, // 0x000B
	)...)
	if d.dram[0x30] != 0 {
		t.Fatalf("eq branch fell through")
	}

	// Unequal values fall through.
	d = runUcode(t, newDspHwStub(), ucode(
		uLRI(DSP_REG_AC0M, 5),
		uLRI(DSP_REG_AC1M, 6),
		0x8200,
		uJCC(0x5, 0x000B),
		uLRI(DSP_REG_AX0L, 0xDEAD),
		uSR(0x0030, DSP_REG_AX0L),
		uHALT,
	)...)
	if d.dram[0x30] != 0xDEAD {
		t.Fatalf("ne case took the eq branch")
	}
}

func TestCallReturn(t *testing.T) {
	prog := []uint16{
		0x02BF, 0x0005, // 0x0000 call 0x0005
		0x0080 | DSP_REG_AX1L, 2, // 0x0002 lri $ax1.l, #2
		uHALT, // 0x0004
		0x0080 | DSP_REG_AX0L, 7, // 0x0005 lri $ax0.l, #7
		0x02DF, // 0x0007 ret
	}
	d := runUcode(t, newDspHwStub(), prog...)
	if d.regs[DSP_REG_AX0L] != 7 {
		t.Fatalf("subroutine body did not run")
	}
	if d.regs[DSP_REG_AX1L] != 2 {
		t.Fatalf("execution did not resume after the return")
	}
}

func TestMultiplyAndMove(t *testing.T) {
	d := runUcode(t, newDspHwStub(), ucode(
		uLRI(DSP_REG_AX0L, 0xFFFE), // -2
		uLRI(DSP_REG_AX0H, 300),
		0x9000, // mul $ax0.l, $ax0.h
		0x6E00, // movp $ac0
		uHALT,
	)...)
	if d.ac[0] != -600 {
		t.Fatalf("ac0 = %d, want -600", d.ac[0])
	}
	if d.regs[DSP_REG_SR]&DSP_SR_S == 0 {
		t.Fatalf("sign flag not set on a negative product")
	}
}

func TestShiftImmediate(t *testing.T) {
	d := runUcode(t, newDspHwStub(), ucode(
		uLRI(DSP_REG_AC0M, 0x0001),
		0x1400 | 4, // shifti $ac0, #4
		uHALT,
	)...)
	if d.ac[0] != 0x1_0000<<4 {
		t.Fatalf("ac0 = %x after left shift", d.ac[0])
	}

	d = runUcode(t, newDspHwStub(), ucode(
		uLRI(DSP_REG_AC0M, 0x0100),
		0x1400 | 0x78, // shifti $ac0, #-8 (7-bit two's complement)
		uHALT,
	)...)
	if d.ac[0] != 0x100_0000>>8 {
		t.Fatalf("ac0 = %x after right shift", d.ac[0])
	}
}

func TestLogicZeroFlag(t *testing.T) {
	d := runUcode(t, newDspHwStub(), ucode(
		uLRI(DSP_REG_AC0M, 0x00FF),
		uLRI(DSP_REG_AX0H, 0xFF00),
		0x3000, // andr $ac0.m, $ax0.h
		uHALT,
	)...)
	if d.regs[DSP_REG_SR]&DSP_SR_LZ == 0 {
		t.Fatalf("lz not set on an all-zero logic result")
	}
	if d.acMid(0) != 0 {
		t.Fatalf("mid = %04x after andr", d.acMid(0))
	}
}

func TestMailWaitParksUntilWake(t *testing.T) {
	hw := newDspHwStub()
	d := NewDspCore(hw)
	// Poll loop: read the incoming mailbox status, loop forever. An empty
	// mailbox parks the core on the first read.
	d.LoadIRAM(0, []uint16{
		0x2000 | 0xFE, // lrs $ac0.m, @CMBH
		0x0290 | 0xF, 0x0000, // jmp 0
	})
	d.Reset(false)

	if n := d.Step(10); n != 1 {
		t.Fatalf("ran %d instructions, want parked after the empty read", n)
	}
	if d.Step(10) != 0 {
		t.Fatalf("parked core kept running")
	}

	hw.mem[DSP_HW_CMBH] = 0x8000 | 0x0042
	d.Wake()
	if n := d.Step(3); n != 3 {
		t.Fatalf("woken core ran %d instructions", n)
	}
	if d.acMid(0) != 0x8042 {
		t.Fatalf("mail status read = %04x", d.acMid(0))
	}
}

func TestHwRegisterAccess(t *testing.T) {
	hw := newDspHwStub()
	hw.mem[DSP_HW_DMBH] = 0x1234
	d := runUcode(t, hw, ucode(
		uLR(DSP_REG_AX0L, DSP_HW_DMBH),
		uLRI(DSP_REG_AX0H, 0x5678),
		uSR(DSP_HW_DMBL, DSP_REG_AX0H),
		uHALT,
	)...)
	if d.regs[DSP_REG_AX0L] != 0x1234 {
		t.Fatalf("hw read = %04x", d.regs[DSP_REG_AX0L])
	}
	if hw.writes[DSP_HW_DMBL] != 0x5678 {
		t.Fatalf("hw write = %04x", hw.writes[DSP_HW_DMBL])
	}
}

func TestCoefRomWindow(t *testing.T) {
	d := NewDspCore(newDspHwStub())
	d.coef[0x10] = 0x0408
	if got := d.readData(DSP_COEF_BASE + 0x10); got != 0x0408 {
		t.Fatalf("coef read = %04x", got)
	}
	// The window is read-only; writes land nowhere.
	d.writeData(DSP_COEF_BASE+0x10, 0xFFFF)
	if d.coef[0x10] != 0x0408 {
		t.Fatalf("coef rom written through the data port")
	}
}
