// boot_stub.go - DOL executable loading and system bootstrap state

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
boot_stub.go - Bootstrap

Loads a DOL executable the way the system loader would: copy the text and
data sections to their load addresses, clear BSS, fill in the low-memory
globals the runtime libraries read at startup, and put the CPU in the state
the loader leaves it in (translation prefix off, floating point on, stack
near the top of the arena).

This sidesteps the boot ROM entirely; a real IPL image can still be mapped
at the ROM window and entered through Reset instead.
*/

package main

import (
	"encoding/binary"
	"fmt"
)

// DOL header layout.
const (
	DOL_TEXT_COUNT   = 7
	DOL_DATA_COUNT   = 11
	DOL_TEXT_OFFSETS = 0x00
	DOL_DATA_OFFSETS = 0x1C
	DOL_TEXT_ADDRS   = 0x48
	DOL_DATA_ADDRS   = 0x64
	DOL_TEXT_SIZES   = 0x90
	DOL_DATA_SIZES   = 0xAC
	DOL_BSS_ADDR     = 0xD8
	DOL_BSS_SIZE     = 0xDC
	DOL_ENTRY        = 0xE0
	DOL_HEADER_SIZE  = 0x100
)

// Low-memory globals the runtime libraries expect.
const (
	LOWMEM_DISC_MAGIC   = 0x1C // 0xC2339F3D when booted from disc
	LOWMEM_BOOT_MAGIC   = 0x20 // 0x0D15EA5E, "nintendo standard boot"
	LOWMEM_VERSION      = 0x24
	LOWMEM_MEM_SIZE     = 0x28
	LOWMEM_CONSOLE_TYPE = 0x2C
	LOWMEM_ARENA_LO     = 0x30
	LOWMEM_ARENA_HI     = 0x34
	LOWMEM_BUS_CLOCK    = 0xF8
	LOWMEM_CORE_CLOCK   = 0xFC
)

const (
	BOOT_MAGIC   = 0x0D15_EA5E
	DISC_MAGIC   = 0xC233_9F3D
	BUS_CLOCK    = 162_000_000
	CONSOLE_TYPE = 0x0000_0003 // retail

	// Stack grows down from just under the arena ceiling.
	BOOT_STACK = 0x0170_0000 - 4
)

// DolImage is a parsed DOL executable.
type DolImage struct {
	sections []dolSection
	BssAddr  uint32
	BssSize  uint32
	Entry    uint32
}

type dolSection struct {
	offset uint32
	addr   uint32
	size   uint32
}

// ParseDOL validates a DOL image and extracts its section table.
func ParseDOL(image []byte) (*DolImage, error) {
	if len(image) < DOL_HEADER_SIZE {
		return nil, fmt.Errorf("dol: image is %d bytes, smaller than the header", len(image))
	}
	be := binary.BigEndian

	d := &DolImage{
		BssAddr: be.Uint32(image[DOL_BSS_ADDR:]),
		BssSize: be.Uint32(image[DOL_BSS_SIZE:]),
		Entry:   be.Uint32(image[DOL_ENTRY:]),
	}

	read := func(offsets, addrs, sizes uint32, count int) error {
		for i := 0; i < count; i++ {
			s := dolSection{
				offset: be.Uint32(image[offsets+uint32(i)*4:]),
				addr:   be.Uint32(image[addrs+uint32(i)*4:]),
				size:   be.Uint32(image[sizes+uint32(i)*4:]),
			}
			if s.size == 0 {
				continue
			}
			if uint64(s.offset)+uint64(s.size) > uint64(len(image)) {
				return fmt.Errorf("dol: section %d extends past the image end", i)
			}
			d.sections = append(d.sections, s)
		}
		return nil
	}

	if err := read(DOL_TEXT_OFFSETS, DOL_TEXT_ADDRS, DOL_TEXT_SIZES, DOL_TEXT_COUNT); err != nil {
		return nil, err
	}
	if err := read(DOL_DATA_OFFSETS, DOL_DATA_ADDRS, DOL_DATA_SIZES, DOL_DATA_COUNT); err != nil {
		return nil, err
	}
	if d.Entry == 0 {
		return nil, fmt.Errorf("dol: entry point is zero")
	}
	return d, nil
}

// Load copies the image's sections into memory and clears BSS.
func (d *DolImage) Load(bus *MemoryBus, image []byte) error {
	for i, s := range d.sections {
		dst, ok := bus.Slice(s.addr, s.size)
		if !ok {
			return fmt.Errorf("dol: section %d load address %08x has no backing memory", i, s.addr)
		}
		copy(dst, image[s.offset:s.offset+s.size])
		bus.NotifyStore(Physical(s.addr), s.size)
	}
	if d.BssSize > 0 {
		if dst, ok := bus.Slice(d.BssAddr, d.BssSize); ok {
			for i := range dst {
				dst[i] = 0
			}
			bus.NotifyStore(Physical(d.BssAddr), d.BssSize)
		}
	}
	return nil
}

// writeLowMem fills the low-memory global block the runtime reads during
// OSInit.
func writeLowMem(bus *MemoryBus) {
	bus.Write32(LOWMEM_DISC_MAGIC, DISC_MAGIC)
	bus.Write32(LOWMEM_BOOT_MAGIC, BOOT_MAGIC)
	bus.Write32(LOWMEM_VERSION, 1)
	bus.Write32(LOWMEM_MEM_SIZE, RAM_SIZE)
	bus.Write32(LOWMEM_CONSOLE_TYPE, CONSOLE_TYPE)
	bus.Write32(LOWMEM_ARENA_LO, 0)
	bus.Write32(LOWMEM_ARENA_HI, BOOT_STACK&^31)
	bus.Write32(LOWMEM_BUS_CLOCK, BUS_CLOCK)
	bus.Write32(LOWMEM_CORE_CLOCK, CORE_CLOCK)
}

// BootDOL loads a DOL image and leaves the CPU ready to run it: low-memory
// globals in place, vectors in RAM, floating point enabled, stack set up.
func BootDOL(m *Machine, image []byte) error {
	dol, err := ParseDOL(image)
	if err != nil {
		return err
	}
	if err := dol.Load(m.Bus, image); err != nil {
		return err
	}
	writeLowMem(m.Bus)

	c := m.CPU
	c.Reset()
	c.MSR = MSR_FP
	c.PC = dol.Entry
	c.GPR[1] = BOOT_STACK
	return nil
}
