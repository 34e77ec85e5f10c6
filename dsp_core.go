// dsp_core.go - Audio DSP interpreter core

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
dsp_core.go - Audio DSP interpreter

A 16-bit Harvard-architecture DSP with two 40-bit accumulators, stepped at a
sixth of the core clock. Instructions live in a separate instruction memory
(4K words of RAM overlaid by a boot ROM at 0x8000); data memory is 4K words
of RAM with a coefficient ROM window, and everything from 0xFF80 up is
hardware registers serviced by the host-side interface.

Accumulators hold 40 significant bits. Reading the middle word while the
sign-extension mode bit is set saturates to 0x7FFF or 0x8000 when the full
value does not fit, which is the behaviour sample mixing code depends on.

The interpreter detects the mail-wait idle shape (polling the incoming
mailbox status in a tight loop) and parks until the host writes mail, so an
idle DSP costs nothing.
*/

package main

// Instruction and data memory geometry, in 16-bit words.
const (
	DSP_IRAM_WORDS = 0x1000
	DSP_IROM_WORDS = 0x1000
	DSP_DRAM_WORDS = 0x1000
	DSP_COEF_WORDS = 0x800

	DSP_IROM_BASE = 0x8000
	DSP_COEF_BASE = 0x1000
	DSP_HW_BASE   = 0xFF80

	DSP_RESET_VECTOR = 0x8000
)

// Register file indices.
const (
	DSP_REG_AR0    = 0x00
	DSP_REG_IX0    = 0x04
	DSP_REG_WR0    = 0x08
	DSP_REG_ST0    = 0x0C
	DSP_REG_AC0H   = 0x10
	DSP_REG_AC1H   = 0x11
	DSP_REG_CR     = 0x12
	DSP_REG_SR     = 0x13
	DSP_REG_PRODL  = 0x14
	DSP_REG_PRODM  = 0x15
	DSP_REG_PRODH  = 0x16
	DSP_REG_PRODM2 = 0x17
	DSP_REG_AX0L   = 0x18
	DSP_REG_AX1L   = 0x19
	DSP_REG_AX0H   = 0x1A
	DSP_REG_AX1H   = 0x1B
	DSP_REG_AC0L   = 0x1C
	DSP_REG_AC1L   = 0x1D
	DSP_REG_AC0M   = 0x1E
	DSP_REG_AC1M   = 0x1F
)

// Status register bits.
const (
	DSP_SR_C   = 1 << 0
	DSP_SR_O   = 1 << 1
	DSP_SR_Z   = 1 << 2
	DSP_SR_S   = 1 << 3
	DSP_SR_LZ  = 1 << 6
	DSP_SR_SXM = 1 << 14
)

// Hardware register addresses in data memory.
const (
	DSP_HW_DSCR  = 0xFFC9
	DSP_HW_DSBL  = 0xFFCB
	DSP_HW_DSPA  = 0xFFCD
	DSP_HW_DSMAH = 0xFFCE
	DSP_HW_DSMAL = 0xFFCF

	DSP_HW_ACSAH = 0xFFD4
	DSP_HW_ACSAL = 0xFFD5
	DSP_HW_ACEAH = 0xFFD6
	DSP_HW_ACEAL = 0xFFD7
	DSP_HW_ACCAH = 0xFFD8
	DSP_HW_ACCAL = 0xFFD9
	DSP_HW_ACFMT = 0xFFD1
	DSP_HW_ACDAT = 0xFFDD

	DSP_HW_DMBH = 0xFFFC
	DSP_HW_DMBL = 0xFFFD
	DSP_HW_CMBH = 0xFFFE
	DSP_HW_CMBL = 0xFFFF
)

// DspHardware is the host side of the DSP's memory-mapped registers:
// mailboxes, DMA and the sample accelerator. dsp_interface.go implements it.
type DspHardware interface {
	HwRead(addr uint16) uint16
	HwWrite(addr uint16, value uint16)
}

type DspCore struct {
	iram [DSP_IRAM_WORDS]uint16
	irom [DSP_IROM_WORDS]uint16
	dram [DSP_DRAM_WORDS]uint16
	coef [DSP_COEF_WORDS]uint16

	pc     uint16
	regs   [32]uint16
	ac     [2]int64 // 40-bit, kept sign-extended
	prod   int64
	stack  []uint16

	halted bool
	// waiting is set when the core is parked on a mail-wait loop; the host
	// clears it by delivering mail.
	waiting bool

	hw DspHardware
}

func NewDspCore(hw DspHardware) *DspCore {
	d := &DspCore{hw: hw}
	d.Reset(true)
	return d
}

// Reset restarts execution. fromROM selects the boot ROM vector; after a
// ucode upload the host resets to instruction RAM instead.
func (d *DspCore) Reset(fromROM bool) {
	d.pc = 0
	if fromROM {
		d.pc = DSP_RESET_VECTOR
	}
	for i := range d.regs {
		d.regs[i] = 0
	}
	d.ac[0], d.ac[1] = 0, 0
	d.prod = 0
	d.stack = d.stack[:0]
	d.halted = false
	d.waiting = false
}

// Halted reports whether the core executed a halt.
func (d *DspCore) Halted() bool { return d.halted }

// Wake unparks a mail-wait loop. Called by the host when it posts mail.
func (d *DspCore) Wake() { d.waiting = false }

// LoadIRAM copies a ucode image into instruction RAM, word-addressed.
func (d *DspCore) LoadIRAM(addr uint16, words []uint16) {
	copy(d.iram[addr:], words)
}

// LoadIROM installs the boot ROM image.
func (d *DspCore) LoadIROM(words []uint16) {
	copy(d.irom[:], words)
}

// IRAM exposes instruction RAM for host-side DMA.
func (d *DspCore) IRAM() []uint16 { return d.iram[:] }

// DRAM exposes data RAM for host-side DMA.
func (d *DspCore) DRAM() []uint16 { return d.dram[:] }

func (d *DspCore) fetch(addr uint16) uint16 {
	if addr >= DSP_IROM_BASE && addr < DSP_IROM_BASE+DSP_IROM_WORDS {
		return d.irom[addr-DSP_IROM_BASE]
	}
	if addr < DSP_IRAM_WORDS {
		return d.iram[addr]
	}
	return 0
}

func (d *DspCore) readData(addr uint16) uint16 {
	switch {
	case addr < DSP_DRAM_WORDS:
		return d.dram[addr]
	case addr >= DSP_COEF_BASE && addr < DSP_COEF_BASE+DSP_COEF_WORDS:
		return d.coef[addr-DSP_COEF_BASE]
	case addr >= DSP_HW_BASE:
		return d.hw.HwRead(addr)
	}
	return 0
}

func (d *DspCore) writeData(addr uint16, value uint16) {
	switch {
	case addr < DSP_DRAM_WORDS:
		d.dram[addr] = value
	case addr >= DSP_HW_BASE:
		d.hw.HwWrite(addr, value)
	}
}

// signExtend40 folds a value to 40 significant bits.
func signExtend40(v int64) int64 {
	return v << 24 >> 24
}

// Accumulator access through the register file.

func (d *DspCore) acLo(n int) uint16 { return uint16(d.ac[n]) }
func (d *DspCore) acHi(n int) uint16 { return uint16(d.ac[n] >> 32 & 0xFF) }

// acMid reads the accumulator middle word, saturating under sign-extension
// mode when the 40-bit value does not fit in 32 bits.
func (d *DspCore) acMid(n int) uint16 {
	if d.regs[DSP_REG_SR]&DSP_SR_SXM != 0 {
		if d.ac[n] != int64(int32(d.ac[n])) {
			if d.ac[n] > 0 {
				return 0x7FFF
			}
			return 0x8000
		}
	}
	return uint16(d.ac[n] >> 16)
}

func (d *DspCore) setAcLo(n int, v uint16) {
	d.ac[n] = d.ac[n]&^0xFFFF | int64(v)
}

func (d *DspCore) setAcMid(n int, v uint16) {
	// Writing the middle word sign-extends through the top byte and clears
	// the low word, matching how mixing code reloads accumulators.
	d.ac[n] = int64(int16(v)) << 16
}

func (d *DspCore) setAcHi(n int, v uint16) {
	d.ac[n] = signExtend40(d.ac[n]&0xFFFF_FFFF | int64(v&0xFF)<<32)
}

func (d *DspCore) readReg(r int) uint16 {
	switch r {
	case DSP_REG_AC0L:
		return d.acLo(0)
	case DSP_REG_AC1L:
		return d.acLo(1)
	case DSP_REG_AC0M:
		return d.acMid(0)
	case DSP_REG_AC1M:
		return d.acMid(1)
	case DSP_REG_AC0H:
		return d.acHi(0)
	case DSP_REG_AC1H:
		return d.acHi(1)
	case DSP_REG_PRODL:
		return uint16(d.prod)
	case DSP_REG_PRODM:
		return uint16(d.prod >> 16)
	case DSP_REG_PRODH:
		return uint16(d.prod >> 32 & 0xFF)
	default:
		return d.regs[r]
	}
}

func (d *DspCore) writeReg(r int, v uint16) {
	switch r {
	case DSP_REG_AC0L:
		d.setAcLo(0, v)
	case DSP_REG_AC1L:
		d.setAcLo(1, v)
	case DSP_REG_AC0M:
		d.setAcMid(0, v)
	case DSP_REG_AC1M:
		d.setAcMid(1, v)
	case DSP_REG_AC0H:
		d.setAcHi(0, v)
	case DSP_REG_AC1H:
		d.setAcHi(1, v)
	default:
		d.regs[r] = v
	}
}

// flags updates SR arithmetic flags from a 40-bit result.
func (d *DspCore) flags(result int64, carry, overflow bool) {
	sr := d.regs[DSP_REG_SR] &^ (DSP_SR_C | DSP_SR_O | DSP_SR_Z | DSP_SR_S)
	if carry {
		sr |= DSP_SR_C
	}
	if overflow {
		sr |= DSP_SR_O
	}
	if result == 0 {
		sr |= DSP_SR_Z
	}
	if result < 0 {
		sr |= DSP_SR_S
	}
	d.regs[DSP_REG_SR] = sr
}

func (d *DspCore) addAc(n int, v int64) {
	a := d.ac[n]
	sum := signExtend40(a + v)
	carry := uint64(a&0xFF_FFFF_FFFF)+uint64(v&0xFF_FFFF_FFFF) > 0xFF_FFFF_FFFF
	overflow := (a >= 0) == (v >= 0) && (sum >= 0) != (a >= 0)
	d.ac[n] = sum
	d.flags(sum, carry, overflow)
}

// cond evaluates a branch condition nibble against SR.
func (d *DspCore) cond(cc uint16) bool {
	sr := d.regs[DSP_REG_SR]
	z := sr&DSP_SR_Z != 0
	s := sr&DSP_SR_S != 0
	o := sr&DSP_SR_O != 0
	switch cc & 0xF {
	case 0x0: // ge
		return s == o
	case 0x1: // lt
		return s != o
	case 0x2: // gt
		return !z && s == o
	case 0x3: // le
		return z || s != o
	case 0x4: // ne
		return !z
	case 0x5: // eq
		return z
	case 0xC: // logic nonzero
		return sr&DSP_SR_LZ == 0
	case 0xD: // logic zero
		return sr&DSP_SR_LZ != 0
	default:
		return true
	}
}

// Step executes up to n instructions and returns how many actually ran.
// A halted or mail-waiting core runs nothing.
func (d *DspCore) Step(n int) int {
	if d.halted || d.waiting {
		return 0
	}
	for i := 0; i < n; i++ {
		d.step1()
		if d.halted || d.waiting {
			return i + 1
		}
	}
	return n
}

func (d *DspCore) step1() {
	op := d.fetch(d.pc)
	next := d.pc + 1

	switch {
	case op == 0x0000: // nop

	case op == 0x0021: // halt
		d.halted = true

	case op&0xFFE0 == 0x0080: // lri $reg, #imm
		imm := d.fetch(next)
		next++
		d.writeReg(int(op&0x1F), imm)

	case op&0xFFE0 == 0x00C0: // lr $reg, @addr
		addr := d.fetch(next)
		next++
		d.writeReg(int(op&0x1F), d.readData(addr))

	case op&0xFFE0 == 0x00E0: // sr @addr, $reg
		addr := d.fetch(next)
		next++
		d.writeData(addr, d.readReg(int(op&0x1F)))

	case op&0xF800 == 0x2000: // lrs $acD.m, @page(imm8)
		n := int(op >> 8 & 1)
		addr := 0xFF00 | op&0xFF
		d.setAcMid(n, d.readData(addr))
		d.detectMailWait(addr, n)

	case op&0xF800 == 0x2800: // srs @page(imm8), $acD.m
		n := int(op >> 8 & 1)
		d.writeData(0xFF00|op&0xFF, d.acMid(n))

	case op&0xFC00 == 0x1C00: // mrr $d, $s
		d.writeReg(int(op>>5&0x1F), d.readReg(int(op&0x1F)))

	case op&0xFF00 == 0x1600: // si @page(imm8), #imm16
		imm := d.fetch(next)
		next++
		d.writeData(0xFF00|op&0xFF, imm)

	case op&0xFFF0 == 0x0290: // jcc addr
		addr := d.fetch(next)
		next++
		if d.cond(op) {
			next = addr
		}

	case op&0xFFF0 == 0x02B0: // callcc addr
		addr := d.fetch(next)
		next++
		if d.cond(op) {
			d.stack = append(d.stack, next)
			next = addr
		}

	case op&0xFFF0 == 0x02D0: // retcc
		if d.cond(op) && len(d.stack) > 0 {
			next = d.stack[len(d.stack)-1]
			d.stack = d.stack[:len(d.stack)-1]
		}

	case op&0xFFF8 == 0x1200: // sbclr #bit
		d.regs[DSP_REG_SR] &^= 1 << (op&7 + 6)

	case op&0xFFF8 == 0x1300: // sbset #bit
		d.regs[DSP_REG_SR] |= 1 << (op&7 + 6)

	case op&0xF700 == 0x8100: // clr $acD
		n := int(op >> 11 & 1)
		d.ac[n] = 0
		d.flags(0, false, false)

	case op&0xF700 == 0x8200: // cmp (ac0 - ac1)
		diff := signExtend40(d.ac[0] - d.ac[1])
		d.flags(diff, uint64(d.ac[0]&0xFF_FFFF_FFFF) >= uint64(d.ac[1]&0xFF_FFFF_FFFF), false)

	case op&0xFE00 == 0x0400: // addis $acD.m, #imm8
		n := int(op >> 8 & 1)
		d.addAc(n, int64(int8(op))<<16)

	case op&0xF600 == 0x4800: // addax $acD, $axS
		n := int(op >> 8 & 1)
		s := int(op >> 9 & 1)
		ax := int64(int16(d.regs[DSP_REG_AX0H+s]))<<16 | int64(d.regs[DSP_REG_AX0L+s])
		d.addAc(n, ax)

	case op&0xFE00 == 0x4C00: // add $acD, $ac(1-D)
		n := int(op >> 8 & 1)
		d.addAc(n, d.ac[1-n])

	case op&0xFE00 == 0x5C00: // sub $acD, $ac(1-D)
		n := int(op >> 8 & 1)
		d.addAc(n, -d.ac[1-n])

	case op&0xFE00 == 0x7C00: // neg $acD
		n := int(op >> 8 & 1)
		d.ac[n] = signExtend40(-d.ac[n])
		d.flags(d.ac[n], false, false)

	case op&0xFE00 == 0x3000: // andr $acD.m, $axS.h
		d.logicAx(op, func(a, b uint16) uint16 { return a & b })

	case op&0xFE00 == 0x3400: // orr $acD.m, $axS.h
		d.logicAx(op, func(a, b uint16) uint16 { return a | b })

	case op&0xFE00 == 0x3800: // xorr $acD.m, $axS.h
		d.logicAx(op, func(a, b uint16) uint16 { return a ^ b })

	case op&0xFE80 == 0x1400: // shifti $acD, #imm7
		n := int(op >> 8 & 1)
		sh := int(int8(op << 1 & 0xFF)) >> 1 // 7-bit signed
		if sh >= 0 {
			d.ac[n] = signExtend40(d.ac[n] << uint(sh))
		} else {
			d.ac[n] >>= uint(-sh)
		}
		d.flags(d.ac[n], false, false)

	case op&0xF700 == 0x9000: // mul $axS.l, $axS.h
		s := int(op >> 11 & 1)
		d.prod = int64(int16(d.regs[DSP_REG_AX0L+s])) * int64(int16(d.regs[DSP_REG_AX0H+s]))

	case op&0xFE00 == 0x6E00: // movp $acD
		n := int(op >> 8 & 1)
		d.ac[n] = signExtend40(d.prod)
		d.flags(d.ac[n], false, false)

	default:
		// Unknown words execute as nops. Real ucode that reaches here is
		// already off the rails, and the host log is the place to notice.
	}

	d.pc = next
}

func (d *DspCore) logicAx(op uint16, f func(a, b uint16) uint16) {
	n := int(op >> 8 & 1)
	s := int(op >> 9 & 1)
	r := f(d.acMid(n), d.regs[DSP_REG_AX0H+s])
	d.ac[n] = d.ac[n]&^0xFFFF_0000 | int64(r)<<16
	sr := d.regs[DSP_REG_SR] &^ DSP_SR_LZ
	if r == 0 {
		sr |= DSP_SR_LZ
	}
	d.regs[DSP_REG_SR] = sr
}

// detectMailWait parks the core when it polls the incoming mailbox status
// and finds it empty. The loop shape is always "read CMBH, test bit 15,
// branch back", so an empty read from CMBH is the park trigger.
func (d *DspCore) detectMailWait(addr uint16, n int) {
	if addr == DSP_HW_CMBH && d.acMid(n)&0x8000 == 0 {
		d.waiting = true
	}
}
