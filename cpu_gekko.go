// cpu_gekko.go - Gekko CPU architectural state and exception model

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
cpu_gekko.go - Gekko CPU architectural state

The Gekko is a 32-bit PowerPC derivative clocked at 486MHz. This file holds
the register file, the exception model and the time facilities (time base
and decrementer, both ticking at a twelfth of the core clock). Instruction
semantics live in cpu_gekko_exec.go; the block translator and its cache live
in cpu_gekko_jit.go.

Exception delivery follows the PowerPC scheme: the return address goes to
SRR0, the relevant MSR bits to SRR1, translation and external interrupts are
masked off and control transfers to the vector, offset from 0xFFF0_0000 or
0x0000_0000 depending on MSR[IP].
*/

package main

// Exception vector offsets.
const (
	EXC_SYSTEM_RESET = 0x100
	EXC_MACHINE_CHK  = 0x200
	EXC_DSI          = 0x300
	EXC_ISI          = 0x400
	EXC_EXTERNAL     = 0x500
	EXC_ALIGNMENT    = 0x600
	EXC_PROGRAM      = 0x700
	EXC_FP_UNAVAIL   = 0x800
	EXC_DECREMENTER  = 0x900
	EXC_SYSCALL      = 0xC00
)

// MSR bits.
const (
	MSR_EE  = 0x0000_8000 // external interrupt enable
	MSR_PR  = 0x0000_4000 // problem state
	MSR_FP  = 0x0000_2000 // floating point available
	MSR_ME  = 0x0000_1000 // machine check enable
	MSR_FE0 = 0x0000_0800
	MSR_SE  = 0x0000_0400
	MSR_FE1 = 0x0000_0100
	MSR_IP  = 0x0000_0040 // exception prefix select
	MSR_IR  = 0x0000_0020 // instruction translation
	MSR_DR  = 0x0000_0010 // data translation
	MSR_RI  = 0x0000_0002
)

// SPR numbers the core implements.
const (
	SPR_XER   = 1
	SPR_LR    = 8
	SPR_CTR   = 9
	SPR_DSISR = 18
	SPR_DAR   = 19
	SPR_DEC   = 22
	SPR_SDR1  = 25
	SPR_SRR0  = 26
	SPR_SRR1  = 27
	SPR_SPRG0 = 272
	SPR_SPRG1 = 273
	SPR_SPRG2 = 274
	SPR_SPRG3 = 275
	SPR_TBL_W = 284
	SPR_TBU_W = 285
	SPR_PVR   = 287
	SPR_GQR0  = 912
	SPR_HID2  = 920
	SPR_WPAR  = 921
	SPR_DMAU  = 922
	SPR_DMAL  = 923
	SPR_HID0  = 1008
	SPR_HID1  = 1009
	SPR_L2CR  = 1017

	// TBR numbers for mftb.
	TBR_TBL = 268
	TBR_TBU = 269
)

// XER bits.
const (
	XER_SO = 0x8000_0000
	XER_OV = 0x4000_0000
	XER_CA = 0x2000_0000
)

// Gekko PVR as reported by retail hardware.
const GEKKO_PVR = 0x0008_3214

// Core cycles per time base / decrementer tick.
const TB_RATIO = 12

type Gekko struct {
	// Register file. The hot interpreter loop touches GPR, PC and CR on
	// nearly every instruction, so they lead the struct.
	GPR [32]uint32
	PC  uint32
	CR  uint32
	LR  uint32
	CTR uint32
	XER uint32
	MSR uint32

	// Paired singles: PS0 is the architectural FPR, PS1 the shadow half.
	// Both hold raw float64 bits.
	PS0 [32]uint64
	PS1 [32]uint64

	SRR0  uint32
	SRR1  uint32
	DAR   uint32
	DSISR uint32
	SPRG  [4]uint32
	HID0  uint32
	HID1  uint32
	HID2  uint32
	L2CR  uint32
	SDR1  uint32
	WPAR  uint32
	DMAU  uint32
	DMAL  uint32
	GQR   [8]uint32
	FPSCR uint32

	DEC uint32
	TB  uint64

	// Cycles not yet converted into time base ticks.
	tbResidue uint32

	// decPending is set when DEC underflows and cleared when the
	// decrementer exception is taken.
	decPending bool

	bus    *MemoryBus
	sched  *Scheduler
	pi     *InterruptFabric
	blocks *BlockCache

	// instrPerBlock bounds translated block length.
	instrPerBlock int
}

const DEFAULT_INSTR_PER_BLOCK = 64

func NewGekko(bus *MemoryBus, sched *Scheduler) *Gekko {
	c := &Gekko{
		bus:           bus,
		sched:         sched,
		instrPerBlock: DEFAULT_INSTR_PER_BLOCK,
	}
	c.blocks = NewBlockCache(c)
	bus.SetRAMWriteHook(c.blocks.InvalidateRange)
	return c
}

// AttachInterrupts wires the interrupt fabric consulted at block boundaries.
func (c *Gekko) AttachInterrupts(pi *InterruptFabric) {
	c.pi = pi
}

// Reset puts the core into the power-on state: vectors at the ROM prefix,
// translation off, everything else cleared.
func (c *Gekko) Reset() {
	*c = Gekko{
		bus:           c.bus,
		sched:         c.sched,
		pi:            c.pi,
		blocks:        c.blocks,
		instrPerBlock: c.instrPerBlock,
		MSR:           MSR_IP,
		PC:            IPL_BASE + EXC_SYSTEM_RESET,
	}
	c.blocks.InvalidateAll()
}

// exceptionBase selects the vector prefix from MSR[IP].
func (c *Gekko) exceptionBase() uint32 {
	if c.MSR&MSR_IP != 0 {
		return 0xFFF0_0000
	}
	return 0
}

// RaiseException transfers control to the given vector. PC must already
// point at the instruction to resume at (the faulting instruction for
// faults, the next instruction for interrupts and syscall).
func (c *Gekko) RaiseException(vector uint32) {
	c.SRR0 = c.PC
	c.SRR1 = c.MSR & 0x87C0_FFFF
	c.MSR &^= MSR_EE | MSR_PR | MSR_FP | MSR_FE0 | MSR_FE1 | MSR_SE | MSR_IR | MSR_DR | MSR_RI
	c.PC = c.exceptionBase() | vector
}

// raiseDSI records the faulting data address and takes the DSI vector.
func (c *Gekko) raiseDSI(addr uint32, write bool) {
	c.DAR = addr
	if write {
		c.DSISR = 0x0200_0000 | 0x4000_0000
	} else {
		c.DSISR = 0x4000_0000
	}
	c.RaiseException(EXC_DSI)
}

// raiseISI takes the ISI vector for an instruction fetch that no backing
// memory claims. The page fault bit rides in SRR1 rather than DSISR.
func (c *Gekko) raiseISI() {
	c.RaiseException(EXC_ISI)
	c.SRR1 |= 0x4000_0000
}

// tickTime converts executed core cycles into time base and decrementer
// ticks. A DEC underflow latches a pending decrementer exception which is
// delivered at the next block boundary if MSR[EE] allows.
func (c *Gekko) tickTime(cycles Cycles) {
	c.tbResidue += uint32(cycles)
	ticks := c.tbResidue / TB_RATIO
	c.tbResidue %= TB_RATIO
	if ticks == 0 {
		return
	}
	c.TB += uint64(ticks)
	old := c.DEC
	c.DEC -= ticks
	if c.DEC > old {
		c.decPending = true
	}
}

// pendingException delivers any latched asynchronous exception. Returns
// true if control was redirected. Called only at block boundaries, so an
// interrupt raised mid-block is observed at the next boundary.
func (c *Gekko) pendingException() bool {
	if c.MSR&MSR_EE == 0 {
		return false
	}
	if c.pi != nil && c.pi.Raised() != 0 {
		c.RaiseException(EXC_EXTERNAL)
		return true
	}
	if c.decPending {
		c.decPending = false
		c.RaiseException(EXC_DECREMENTER)
		return true
	}
	return false
}

// fetch32 reads an instruction word. Instruction fetch only ever targets
// plain memory; a fetch from anywhere else is an ISI.
func (c *Gekko) fetch32(addr uint32) (uint32, bool) {
	phys := Physical(addr)
	mem, off := c.bus.backing(phys)
	if mem == nil || off+4 > uint32(len(mem)) {
		return 0, false
	}
	return uint32(mem[off])<<24 | uint32(mem[off+1])<<16 | uint32(mem[off+2])<<8 | uint32(mem[off+3]), true
}

// readSPR implements mfspr for the SPRs the core carries.
func (c *Gekko) readSPR(spr uint16) uint32 {
	switch {
	case spr == SPR_XER:
		return c.XER
	case spr == SPR_LR:
		return c.LR
	case spr == SPR_CTR:
		return c.CTR
	case spr == SPR_DSISR:
		return c.DSISR
	case spr == SPR_DAR:
		return c.DAR
	case spr == SPR_DEC:
		return c.DEC
	case spr == SPR_SDR1:
		return c.SDR1
	case spr == SPR_SRR0:
		return c.SRR0
	case spr == SPR_SRR1:
		return c.SRR1
	case spr >= SPR_SPRG0 && spr <= SPR_SPRG3:
		return c.SPRG[spr-SPR_SPRG0]
	case spr == SPR_PVR:
		return GEKKO_PVR
	case spr >= SPR_GQR0 && spr < SPR_GQR0+8:
		return c.GQR[spr-SPR_GQR0]
	case spr == SPR_HID2:
		return c.HID2
	case spr == SPR_WPAR:
		return c.WPAR
	case spr == SPR_DMAU:
		return c.DMAU
	case spr == SPR_DMAL:
		return c.DMAL
	case spr == SPR_HID0:
		return c.HID0
	case spr == SPR_HID1:
		return c.HID1
	case spr == SPR_L2CR:
		return c.L2CR
	}
	return 0
}

// writeSPR implements mtspr for the SPRs the core carries. Writes to
// unknown SPRs are dropped, which is what boot code expects of the
// performance monitor block.
func (c *Gekko) writeSPR(spr uint16, value uint32) {
	switch {
	case spr == SPR_XER:
		c.XER = value
	case spr == SPR_LR:
		c.LR = value
	case spr == SPR_CTR:
		c.CTR = value
	case spr == SPR_DSISR:
		c.DSISR = value
	case spr == SPR_DAR:
		c.DAR = value
	case spr == SPR_DEC:
		c.DEC = value
		c.decPending = false
	case spr == SPR_SDR1:
		c.SDR1 = value
	case spr == SPR_SRR0:
		c.SRR0 = value
	case spr == SPR_SRR1:
		c.SRR1 = value
	case spr >= SPR_SPRG0 && spr <= SPR_SPRG3:
		c.SPRG[spr-SPR_SPRG0] = value
	case spr == SPR_TBL_W:
		c.TB = c.TB&0xFFFF_FFFF_0000_0000 | uint64(value)
	case spr == SPR_TBU_W:
		c.TB = c.TB&0x0000_0000_FFFF_FFFF | uint64(value)<<32
	case spr >= SPR_GQR0 && spr < SPR_GQR0+8:
		c.GQR[spr-SPR_GQR0] = value
	case spr == SPR_HID2:
		c.HID2 = value
	case spr == SPR_WPAR:
		c.WPAR = value & 0xFFFF_FFE0
	case spr == SPR_DMAU:
		c.DMAU = value
	case spr == SPR_DMAL:
		c.DMAL = value
	case spr == SPR_HID0:
		c.HID0 = value
	case spr == SPR_HID1:
		c.HID1 = value
	case spr == SPR_L2CR:
		c.L2CR = value
	}
}
