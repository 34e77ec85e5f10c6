// disk_interface_test.go - Drive commands, read latency, error paths

/*
(c) 2025 - 2026 the lazuli authors
License: GPLv3 or later
*/

package main

import "testing"

func newDiscMachine(t *testing.T, disc []byte) *Machine {
	t.Helper()
	m, err := NewMachine(MachineConfig{Disc: disc})
	if err != nil {
		t.Fatalf("NewMachine: %v", err)
	}
	return m
}

func TestDiscReadCompletesAfterLatency(t *testing.T) {
	disc := make([]byte, 4096)
	for i := range disc {
		disc[i] = byte(i)
	}
	m := newDiscMachine(t, disc)

	dst := uint32(0x0008_0000)
	m.Bus.Write32(DI_SR, DI_SR_TCMASK)
	m.Bus.Write32(DI_CMDBUF0, DI_CMD_READ<<24)
	m.Bus.Write32(DI_CMDBUF1, 0x100>>2) // word offset on the wire
	m.Bus.Write32(DI_MAR, dst)
	m.Bus.Write32(DI_LENGTH, 64)
	m.Bus.Write32(DI_CR, DI_CR_DMA|DI_CR_TSTART)

	// Nothing lands before the modelled latency elapses.
	if got := m.Bus.Read32(dst); got != 0 {
		t.Fatalf("data arrived instantly: %08x", got)
	}
	if m.Bus.Read32(DI_SR)&DI_SR_TCINT != 0 {
		t.Fatalf("transfer complete before the transfer")
	}

	m.Sched.Advance(DI_SEEK_CYCLES + 64*DI_CYCLES_PER_BYTE)
	fireAllDue(t, m)

	if got := m.Bus.Read32(dst); got != 0x0001_0203 {
		t.Fatalf("read data = %08x, want 00010203", got)
	}
	if m.Bus.Read32(DI_SR)&DI_SR_TCINT == 0 {
		t.Fatalf("transfer complete not latched")
	}
	if m.Bus.Read32(DI_CR)&DI_CR_TSTART != 0 {
		t.Fatalf("start bit still set after completion")
	}
	if m.PI.cause&INT_DI == 0 {
		t.Fatalf("di line not asserted")
	}

	// Write-one-to-clear on the status bit drops the line.
	m.Bus.Write32(DI_SR, DI_SR_TCMASK|DI_SR_TCINT)
	if m.PI.cause&INT_DI != 0 {
		t.Fatalf("di line survived the ack")
	}
}

func TestDiscReadPastEndIsDriveError(t *testing.T) {
	m := newDiscMachine(t, make([]byte, 1024))
	m.Bus.Write32(DI_SR, DI_SR_DEMASK)
	m.Bus.Write32(DI_CMDBUF0, DI_CMD_READ<<24)
	m.Bus.Write32(DI_CMDBUF1, 2048>>2)
	m.Bus.Write32(DI_MAR, 0x0008_0000)
	m.Bus.Write32(DI_LENGTH, 64)
	m.Bus.Write32(DI_CR, DI_CR_DMA|DI_CR_TSTART)

	m.Sched.Advance(DI_SEEK_CYCLES + 64*DI_CYCLES_PER_BYTE)
	fireAllDue(t, m)

	if m.Bus.Read32(DI_SR)&DI_SR_DEINT == 0 {
		t.Fatalf("drive error not latched")
	}
	if m.Bus.Read32(DI_SR)&DI_SR_TCINT != 0 {
		t.Fatalf("failed read reported transfer complete")
	}
	if m.PI.cause&INT_DI == 0 {
		t.Fatalf("error interrupt missing")
	}
}

func TestCoverStateFollowsDisc(t *testing.T) {
	m := newDiscMachine(t, nil)
	if m.Bus.Read32(DI_CVR)&1 == 0 {
		t.Fatalf("no disc but the cover reads closed")
	}
	m.DI.SetDisc(make([]byte, 64))
	if m.Bus.Read32(DI_CVR)&1 != 0 {
		t.Fatalf("cover still open with a disc inserted")
	}
}

func TestInquiryFillsIdentBlock(t *testing.T) {
	m := newDiscMachine(t, make([]byte, 64))
	dst := uint32(0x0008_0000)
	m.Bus.Write32(dst, 0xFFFF_FFFF)
	m.Bus.Write32(DI_CMDBUF0, DI_CMD_INQUIRY<<24)
	m.Bus.Write32(DI_MAR, dst)
	m.Bus.Write32(DI_CR, DI_CR_DMA|DI_CR_TSTART)

	if got := m.Bus.Read32(dst); got != 0x2002_0000 {
		t.Fatalf("ident block = %08x", got)
	}
	if m.Bus.Read32(DI_SR)&DI_SR_TCINT == 0 {
		t.Fatalf("inquiry did not complete")
	}
}

func TestUnknownCommandIsDriveError(t *testing.T) {
	m := newDiscMachine(t, make([]byte, 64))
	m.Bus.Write32(DI_CMDBUF0, 0x55<<24)
	m.Bus.Write32(DI_CR, DI_CR_TSTART)
	if m.Bus.Read32(DI_SR)&DI_SR_DEINT == 0 {
		t.Fatalf("unknown command accepted")
	}
	if m.Bus.Read32(DI_CR)&DI_CR_TSTART != 0 {
		t.Fatalf("start bit stuck after the error")
	}
}
