// memory_bus.go - Guest physical address space for the lazuli execution core

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
memory_bus.go - Guest physical address space

This module implements the memory bus that forms the backbone of the machine.
It provides a unified interface for guest memory operations, covering main
memory, the locked cache scratchpad, the boot ROM window and the memory
mapped I/O window of the system devices.

Core Features:

    24MB of main memory allocated as a contiguous block.
    Big-endian read/write operations for 8, 16, 32 and 64-bit data.
    Cached (0x8000_0000) and uncached (0xC000_0000) effective address
    mirrors folded onto the physical map.
    Memory-mapped I/O via an I/O region mapping table that uses page masking
    and fixed 256-byte pages inside the 64KB device window.
    WithFault access variants that report unmapped accesses to the caller
    instead of terminating, feeding the CPU data-fault path.
    A store hook consulted on every main memory write so the CPU block cache
    can invalidate translated code that overlaps the written range.

The region table is assembled once during machine construction and then
sealed; after sealing, lookups are lock-free and the hot path carries no
synchronisation at all.
*/

package main

import (
	"encoding/binary"
	"fmt"
	"sync/atomic"
)

const (
	RAM_SIZE = 0x0180_0000 // 24MB of main memory

	LC_BASE = 0xE000_0000 // locked cache scratchpad
	LC_SIZE = 0x4000

	IPL_BASE = 0xFFF0_0000 // boot ROM window
	IPL_SIZE = 0x0010_0000

	MMIO_BASE = 0x0C00_0000 // device register window
	MMIO_SIZE = 0x0001_0000

	IO_PAGE_SIZE = 0x100
	IO_PAGE_MASK = 0xFFFF_FF00
)

// IOReadFunc handles a device register read of the given width in bytes.
type IOReadFunc func(addr uint32, width uint32) uint32

// IOWriteFunc handles a device register write of the given width in bytes.
type IOWriteFunc func(addr uint32, width uint32, value uint32)

// IORegion describes a claimed span of the device window. Start and End are
// inclusive physical addresses. A nil handler makes the access act as a
// read-as-zero / write-ignored register.
type IORegion struct {
	Name    string
	Start   uint32
	End     uint32
	OnRead  IOReadFunc
	OnWrite IOWriteFunc
}

type MemoryBus struct {
	ram []byte
	lc  []byte
	ipl []byte

	// ioRegions maps a 256-byte page base to the regions touching that page.
	// Pages hold one or two regions in practice, so a linear scan wins over
	// anything fancier.
	ioRegions map[uint32][]IORegion

	sealed atomic.Bool

	// ramWriteHook is consulted after every main memory store with the
	// physical address and length written. The CPU block cache registers
	// itself here to catch stores over translated code.
	ramWriteHook func(addr, length uint32)

	// lastFault records the most recent unmapped access for the monitor.
	lastFault *MemFault
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{
		ram:       make([]byte, RAM_SIZE),
		lc:        make([]byte, LC_SIZE),
		ipl:       make([]byte, IPL_SIZE),
		ioRegions: make(map[uint32][]IORegion),
	}
}

// Physical folds the cached and uncached effective address mirrors onto the
// physical map. Addresses outside the mirrored ranges pass through untouched.
func Physical(addr uint32) uint32 {
	switch addr & 0xE000_0000 {
	case 0x8000_0000, 0xC000_0000:
		return addr & 0x1FFF_FFFF
	}
	return addr
}

// MapIO claims [start, end] in the device window. Overlapping an existing
// region or mapping after Seal is a wiring bug and returns an error.
func (b *MemoryBus) MapIO(name string, start, end uint32, onRead IOReadFunc, onWrite IOWriteFunc) error {
	if b.sealed.Load() {
		return fmt.Errorf("MapIO %s: bus already sealed", name)
	}
	if start > end {
		return fmt.Errorf("MapIO %s: start 0x%08X above end 0x%08X", name, start, end)
	}
	if start < MMIO_BASE || end >= MMIO_BASE+MMIO_SIZE {
		return fmt.Errorf("MapIO %s: region 0x%08X-0x%08X outside device window", name, start, end)
	}
	for page := start & IO_PAGE_MASK; page <= end; page += IO_PAGE_SIZE {
		for _, r := range b.ioRegions[page] {
			if start <= r.End && end >= r.Start {
				return fmt.Errorf("MapIO %s: region 0x%08X-0x%08X overlaps %s", name, start, end, r.Name)
			}
		}
	}
	region := IORegion{Name: name, Start: start, End: end, OnRead: onRead, OnWrite: onWrite}
	for page := start & IO_PAGE_MASK; page <= end; page += IO_PAGE_SIZE {
		b.ioRegions[page] = append(b.ioRegions[page], region)
	}
	return nil
}

// Seal freezes the region table. All MapIO calls must happen before this.
func (b *MemoryBus) Seal() {
	b.sealed.Store(true)
}

// SetRAMWriteHook registers the store hook. Only one hook is supported; the
// block cache is the single consumer.
func (b *MemoryBus) SetRAMWriteHook(hook func(addr, length uint32)) {
	b.ramWriteHook = hook
}

// NotifyStore reports an out-of-band write to main memory (DMA, FIFO bursts,
// loaders) to the store hook.
func (b *MemoryBus) NotifyStore(addr, length uint32) {
	if b.ramWriteHook != nil {
		b.ramWriteHook(addr, length)
	}
}

// LoadIPL installs the boot ROM image into the IPL window.
func (b *MemoryBus) LoadIPL(data []byte) {
	copy(b.ipl, data)
}

// RAM exposes the main memory backing store for loaders and tests.
func (b *MemoryBus) RAM() []byte {
	return b.ram
}

// fault records and reports a miss so every unmapped path stays one line.
func (b *MemoryBus) fault(phys, size uint32, write bool) bool {
	b.lastFault = &MemFault{Addr: phys, Size: size, Write: write}
	return false
}

// LastFault returns the most recent unmapped access, or nil. The monitor
// shows it beside the register file after a DSI.
func (b *MemoryBus) LastFault() *MemFault {
	return b.lastFault
}

func (b *MemoryBus) isMMIO(phys uint32) bool {
	return phys >= MMIO_BASE && phys < MMIO_BASE+MMIO_SIZE
}

func (b *MemoryBus) ioLookup(phys uint32) *IORegion {
	regions := b.ioRegions[phys&IO_PAGE_MASK]
	for i := range regions {
		if phys >= regions[i].Start && phys <= regions[i].End {
			return &regions[i]
		}
	}
	return nil
}

// backing returns the byte slice and offset covering phys, or nil if no
// plain memory backs the address.
func (b *MemoryBus) backing(phys uint32) ([]byte, uint32) {
	switch {
	case phys < RAM_SIZE:
		return b.ram, phys
	case phys >= LC_BASE && phys < LC_BASE+LC_SIZE:
		return b.lc, phys - LC_BASE
	case phys >= IPL_BASE:
		return b.ipl, phys - IPL_BASE
	}
	return nil, 0
}

// Slice returns a window into plain guest memory for DMA engines. The range
// must sit entirely inside one backing store.
func (b *MemoryBus) Slice(addr, length uint32) ([]byte, bool) {
	phys := Physical(addr)
	mem, off := b.backing(phys)
	if mem == nil || uint64(off)+uint64(length) > uint64(len(mem)) {
		return nil, false
	}
	return mem[off : off+length], true
}

func (b *MemoryBus) Read8WithFault(addr uint32) (uint8, bool) {
	phys := Physical(addr)
	if b.isMMIO(phys) {
		if r := b.ioLookup(phys); r != nil && r.OnRead != nil {
			return uint8(r.OnRead(phys, 1)), true
		}
		return 0, true
	}
	mem, off := b.backing(phys)
	if mem == nil {
		return 0, b.fault(phys, 1, false)
	}
	return mem[off], true
}

func (b *MemoryBus) Read16WithFault(addr uint32) (uint16, bool) {
	phys := Physical(addr)
	if b.isMMIO(phys) {
		if r := b.ioLookup(phys); r != nil && r.OnRead != nil {
			return uint16(r.OnRead(phys, 2)), true
		}
		return 0, true
	}
	mem, off := b.backing(phys)
	if mem == nil || off+2 > uint32(len(mem)) {
		return 0, b.fault(phys, 2, false)
	}
	return binary.BigEndian.Uint16(mem[off:]), true
}

func (b *MemoryBus) Read32WithFault(addr uint32) (uint32, bool) {
	phys := Physical(addr)
	if b.isMMIO(phys) {
		if r := b.ioLookup(phys); r != nil && r.OnRead != nil {
			return r.OnRead(phys, 4), true
		}
		return 0, true
	}
	mem, off := b.backing(phys)
	if mem == nil || off+4 > uint32(len(mem)) {
		return 0, b.fault(phys, 4, false)
	}
	return binary.BigEndian.Uint32(mem[off:]), true
}

func (b *MemoryBus) Read64WithFault(addr uint32) (uint64, bool) {
	phys := Physical(addr)
	mem, off := b.backing(phys)
	if mem == nil || off+8 > uint32(len(mem)) {
		return 0, b.fault(phys, 8, false)
	}
	return binary.BigEndian.Uint64(mem[off:]), true
}

func (b *MemoryBus) Write8WithFault(addr uint32, value uint8) bool {
	phys := Physical(addr)
	if b.isMMIO(phys) {
		if r := b.ioLookup(phys); r != nil && r.OnWrite != nil {
			r.OnWrite(phys, 1, uint32(value))
		}
		return true
	}
	mem, off := b.backing(phys)
	if mem == nil {
		return b.fault(phys, 1, true)
	}
	mem[off] = value
	if phys < RAM_SIZE && b.ramWriteHook != nil {
		b.ramWriteHook(phys, 1)
	}
	return true
}

func (b *MemoryBus) Write16WithFault(addr uint32, value uint16) bool {
	phys := Physical(addr)
	if b.isMMIO(phys) {
		if r := b.ioLookup(phys); r != nil && r.OnWrite != nil {
			r.OnWrite(phys, 2, uint32(value))
		}
		return true
	}
	mem, off := b.backing(phys)
	if mem == nil || off+2 > uint32(len(mem)) {
		return b.fault(phys, 2, true)
	}
	binary.BigEndian.PutUint16(mem[off:], value)
	if phys < RAM_SIZE && b.ramWriteHook != nil {
		b.ramWriteHook(phys, 2)
	}
	return true
}

func (b *MemoryBus) Write32WithFault(addr uint32, value uint32) bool {
	phys := Physical(addr)
	if b.isMMIO(phys) {
		if r := b.ioLookup(phys); r != nil && r.OnWrite != nil {
			r.OnWrite(phys, 4, value)
		}
		return true
	}
	mem, off := b.backing(phys)
	if mem == nil || off+4 > uint32(len(mem)) {
		return b.fault(phys, 4, true)
	}
	binary.BigEndian.PutUint32(mem[off:], value)
	if phys < RAM_SIZE && b.ramWriteHook != nil {
		b.ramWriteHook(phys, 4)
	}
	return true
}

func (b *MemoryBus) Write64WithFault(addr uint32, value uint64) bool {
	phys := Physical(addr)
	mem, off := b.backing(phys)
	if mem == nil || off+8 > uint32(len(mem)) {
		return b.fault(phys, 8, true)
	}
	binary.BigEndian.PutUint64(mem[off:], value)
	if phys < RAM_SIZE && b.ramWriteHook != nil {
		b.ramWriteHook(phys, 8)
	}
	return true
}

// Convenience accessors for device code and tests. Unmapped accesses read
// zero and drop writes, which is what the real bus does for most holes.

func (b *MemoryBus) Read8(addr uint32) uint8 {
	v, _ := b.Read8WithFault(addr)
	return v
}

func (b *MemoryBus) Read16(addr uint32) uint16 {
	v, _ := b.Read16WithFault(addr)
	return v
}

func (b *MemoryBus) Read32(addr uint32) uint32 {
	v, _ := b.Read32WithFault(addr)
	return v
}

func (b *MemoryBus) Read64(addr uint32) uint64 {
	v, _ := b.Read64WithFault(addr)
	return v
}

func (b *MemoryBus) Write8(addr uint32, value uint8) {
	b.Write8WithFault(addr, value)
}

func (b *MemoryBus) Write16(addr uint32, value uint16) {
	b.Write16WithFault(addr, value)
}

func (b *MemoryBus) Write32(addr uint32, value uint32) {
	b.Write32WithFault(addr, value)
}

func (b *MemoryBus) Write64(addr uint32, value uint64) {
	b.Write64WithFault(addr, value)
}
