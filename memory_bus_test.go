// memory_bus_test.go - Address folding, MMIO dispatch and fault behaviour

/*
(c) 2025 - 2026 the lazuli authors
License: GPLv3 or later
*/

package main

import "testing"

func TestPhysicalMirrorFolding(t *testing.T) {
	cases := []struct {
		addr, want uint32
	}{
		{0x0000_3100, 0x0000_3100},
		{0x8000_3100, 0x0000_3100},
		{0xC000_3100, 0x0000_3100},
		{0x8123_4567, 0x0123_4567},
		{0xCC00_5000, 0x0C00_5000},
		{0xE000_0000, 0xE000_0000}, // locked cache window passes through
		{0xFFF0_0100, 0xFFF0_0100}, // ROM window passes through
	}
	for _, c := range cases {
		if got := Physical(c.addr); got != c.want {
			t.Errorf("Physical(%08x) = %08x, want %08x", c.addr, got, c.want)
		}
	}
}

func TestBusBigEndianAccess(t *testing.T) {
	bus := NewMemoryBus()
	bus.Write32(0x1000, 0x0102_0304)

	if got := bus.Read8(0x1000); got != 0x01 {
		t.Fatalf("Read8 = %02x, want 01", got)
	}
	if got := bus.Read16(0x1002); got != 0x0304 {
		t.Fatalf("Read16 = %04x, want 0304", got)
	}
	if got := bus.Read32(0x8000_1000); got != 0x0102_0304 {
		t.Fatalf("Read32 via cached mirror = %08x, want 01020304", got)
	}

	bus.Write64(0x2000, 0x1122_3344_5566_7788)
	if got := bus.Read32(0x2004); got != 0x5566_7788 {
		t.Fatalf("Read32 of second word = %08x, want 55667788", got)
	}
}

func TestBusUnmappedFaults(t *testing.T) {
	bus := NewMemoryBus()

	if _, ok := bus.Read32WithFault(0x3000_0000); ok {
		t.Fatalf("read from hole between RAM and LC did not fault")
	}
	if ok := bus.Write32WithFault(0x3000_0000, 1); ok {
		t.Fatalf("write into hole did not fault")
	}
	if _, ok := bus.Read32WithFault(RAM_SIZE - 4); !ok {
		t.Fatalf("read at top of RAM faulted")
	}
}

func TestBusRecordsLastFault(t *testing.T) {
	bus := NewMemoryBus()
	if bus.LastFault() != nil {
		t.Fatalf("fresh bus carries a fault")
	}

	if _, ok := bus.Read32WithFault(0x3000_0000); ok {
		t.Fatalf("read from hole did not fault")
	}
	f := bus.LastFault()
	if f == nil {
		t.Fatalf("faulting read not recorded")
	}
	if f.Addr != 0x3000_0000 || f.Size != 4 || f.Write {
		t.Fatalf("recorded fault = %+v, want 4-byte read at 30000000", f)
	}

	if ok := bus.Write16WithFault(0x3000_0010, 0xBEEF); ok {
		t.Fatalf("write into hole did not fault")
	}
	f = bus.LastFault()
	if f.Addr != 0x3000_0010 || f.Size != 2 || !f.Write {
		t.Fatalf("recorded fault = %+v, want 2-byte write at 30000010", f)
	}

	// A successful access leaves the record alone for the monitor.
	bus.Write32(0x1000, 1)
	if got := bus.LastFault(); got != f {
		t.Fatalf("successful access disturbed the fault record")
	}
}

func TestMapIOOverlapAndSeal(t *testing.T) {
	bus := NewMemoryBus()
	nop := func(addr, width uint32) uint32 { return 0 }

	if err := bus.MapIO("a", MMIO_BASE, MMIO_BASE+0xFF, nop, nil); err != nil {
		t.Fatalf("MapIO a: %v", err)
	}
	if err := bus.MapIO("b", MMIO_BASE+0x80, MMIO_BASE+0x180, nop, nil); err == nil {
		t.Fatalf("overlapping MapIO did not error")
	}
	if err := bus.MapIO("c", RAM_SIZE, RAM_SIZE+0xFF, nop, nil); err == nil {
		t.Fatalf("MapIO outside the device window did not error")
	}

	bus.Seal()
	if err := bus.MapIO("d", MMIO_BASE+0x1000, MMIO_BASE+0x10FF, nop, nil); err == nil {
		t.Fatalf("MapIO after Seal did not error")
	}
}

func TestMMIODispatchCarriesWidth(t *testing.T) {
	bus := NewMemoryBus()
	var gotAddr, gotWidth, gotValue uint32
	err := bus.MapIO("dev", MMIO_BASE+0x400, MMIO_BASE+0x4FF,
		func(addr, width uint32) uint32 {
			gotAddr, gotWidth = addr, width
			return 0xDEAD_BEEF
		},
		func(addr, width, value uint32) {
			gotAddr, gotWidth, gotValue = addr, width, value
		})
	if err != nil {
		t.Fatalf("MapIO: %v", err)
	}

	if v := bus.Read16(0xCC00_0404); v != 0xBEEF {
		t.Fatalf("MMIO read = %04x, want beef", v)
	}
	if gotAddr != MMIO_BASE+0x404 || gotWidth != 2 {
		t.Fatalf("read hook saw addr %08x width %d", gotAddr, gotWidth)
	}

	bus.Write32(MMIO_BASE+0x410, 0x1234_5678)
	if gotAddr != MMIO_BASE+0x410 || gotWidth != 4 || gotValue != 0x1234_5678 {
		t.Fatalf("write hook saw addr %08x width %d value %08x", gotAddr, gotWidth, gotValue)
	}
}

func TestUnmappedMMIOReadsZero(t *testing.T) {
	bus := NewMemoryBus()
	if v, ok := bus.Read32WithFault(MMIO_BASE + 0x7000); !ok || v != 0 {
		t.Fatalf("unmapped device read = %08x ok=%v, want 0 true", v, ok)
	}
	if ok := bus.Write32WithFault(MMIO_BASE+0x7000, 1); !ok {
		t.Fatalf("unmapped device write faulted, should be dropped")
	}
}

func TestRAMWriteHook(t *testing.T) {
	bus := NewMemoryBus()
	var hookAddr, hookLen uint32
	bus.SetRAMWriteHook(func(addr, length uint32) {
		hookAddr, hookLen = addr, length
	})

	bus.Write32(0x8000_4000, 1)
	if hookAddr != 0x4000 || hookLen != 4 {
		t.Fatalf("hook saw %08x+%d, want 00004000+4", hookAddr, hookLen)
	}

	// Device window writes must not trip the hook.
	hookAddr, hookLen = 0, 0
	bus.Write32(MMIO_BASE+0x100, 1)
	if hookLen != 0 {
		t.Fatalf("device write tripped the RAM hook")
	}

	bus.NotifyStore(0x9000, 32)
	if hookAddr != 0x9000 || hookLen != 32 {
		t.Fatalf("NotifyStore saw %08x+%d", hookAddr, hookLen)
	}
}

func TestSliceAliasesBackingStore(t *testing.T) {
	bus := NewMemoryBus()
	if _, ok := bus.Slice(RAM_SIZE-16, 32); ok {
		t.Fatalf("slice crossing the end of RAM did not fail")
	}
	s, ok := bus.Slice(0x8000_0100, 8)
	if !ok {
		t.Fatalf("slice in RAM failed")
	}
	s[0] = 0xAA
	if bus.Read8(0x100) != 0xAA {
		t.Fatalf("slice does not alias RAM")
	}
}
