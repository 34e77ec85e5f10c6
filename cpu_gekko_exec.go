// cpu_gekko_exec.go - Gekko instruction semantics

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
cpu_gekko_exec.go - Instruction semantics

exec is the single source of truth for what an instruction does. The block
translator runs the same function over its cached decoded sequence, so
translated execution is bit-identical to single stepping by construction.

exec returns how control left the instruction: fell through, branched (PC
already updated), or raised an exception (vector already taken).
*/

package main

import (
	"math"
	"math/bits"
)

type execResult uint8

const (
	execNext execResult = iota
	execBranch
	execException
)

func (c *Gekko) setCRField(field uint8, value uint32) {
	sh := 28 - 4*uint32(field)
	c.CR = c.CR&^(0xF<<sh) | value<<sh
}

func (c *Gekko) crBit(bit uint8) uint32 {
	return c.CR >> (31 - uint32(bit)) & 1
}

func (c *Gekko) setCRBit(bit uint8, v uint32) {
	sh := 31 - uint32(bit)
	c.CR = c.CR&^(1<<sh) | v<<sh
}

// updateCR0 sets CR field 0 from a signed comparison of v against zero,
// with SO copied from XER.
func (c *Gekko) updateCR0(v uint32) {
	var f uint32
	switch {
	case int32(v) < 0:
		f = 8
	case int32(v) > 0:
		f = 4
	default:
		f = 2
	}
	if c.XER&XER_SO != 0 {
		f |= 1
	}
	c.setCRField(0, f)
}

func (c *Gekko) setCarry(ca bool) {
	if ca {
		c.XER |= XER_CA
	} else {
		c.XER &^= XER_CA
	}
}

func (c *Gekko) setOverflow(ov bool) {
	if ov {
		c.XER |= XER_OV | XER_SO
	} else {
		c.XER &^= XER_OV
	}
}

func (c *Gekko) compareSigned(field uint8, a, b int32) {
	var f uint32
	switch {
	case a < b:
		f = 8
	case a > b:
		f = 4
	default:
		f = 2
	}
	if c.XER&XER_SO != 0 {
		f |= 1
	}
	c.setCRField(field, f)
}

func (c *Gekko) compareUnsigned(field uint8, a, b uint32) {
	var f uint32
	switch {
	case a < b:
		f = 8
	case a > b:
		f = 4
	default:
		f = 2
	}
	if c.XER&XER_SO != 0 {
		f |= 1
	}
	c.setCRField(field, f)
}

// branchCond evaluates the BO/BI condition, decrementing CTR when asked.
func (c *Gekko) branchCond(bo, bi uint8) bool {
	if bo&4 == 0 {
		c.CTR--
		ctrOK := (c.CTR != 0) != (bo&2 != 0)
		if !ctrOK {
			return false
		}
	}
	if bo&16 == 0 {
		if c.crBit(bi) != uint32(bo>>3&1) {
			return false
		}
	}
	return true
}

func rotl32(v uint32, n uint8) uint32 {
	return bits.RotateLeft32(v, int(n))
}

// maskMBME builds the rotate mask covering big-endian bits MB through ME
// inclusive, wrapping when MB > ME.
func maskMBME(mb, me uint8) uint32 {
	begin := uint32(0xFFFF_FFFF) >> mb
	end := uint32(0xFFFF_FFFF) << (31 - me)
	if mb <= me {
		return begin & end
	}
	return begin | end
}

// regBase returns (RA|0): zero when RA is register 0, the register value
// otherwise.
func (c *Gekko) regBase(ra uint8) uint32 {
	if ra == 0 {
		return 0
	}
	return c.GPR[ra]
}

func f64(bits64 uint64) float64 {
	return math.Float64frombits(bits64)
}

func fbits(v float64) uint64 {
	return math.Float64bits(v)
}

// exec executes one decoded instruction. For execNext the caller advances
// PC by four; branch and exception paths update PC themselves.
func (c *Gekko) exec(ins *Instr) execResult {
	switch ins.Op {

	// ---- integer arithmetic ----

	case opAddi:
		c.GPR[ins.RD] = c.regBase(ins.RA) + uint32(ins.SIMM)

	case opAddis:
		c.GPR[ins.RD] = c.regBase(ins.RA) + uint32(ins.SIMM)<<16

	case opAdd:
		r := c.GPR[ins.RA] + c.GPR[ins.RB]
		if ins.OE {
			c.setOverflow((c.GPR[ins.RA]^r)&(c.GPR[ins.RB]^r)&0x8000_0000 != 0)
		}
		c.GPR[ins.RD] = r
		if ins.Rc {
			c.updateCR0(r)
		}

	case opAddc:
		sum := uint64(c.GPR[ins.RA]) + uint64(c.GPR[ins.RB])
		r := uint32(sum)
		if ins.OE {
			c.setOverflow((c.GPR[ins.RA]^r)&(c.GPR[ins.RB]^r)&0x8000_0000 != 0)
		}
		c.GPR[ins.RD] = r
		c.setCarry(sum > 0xFFFF_FFFF)
		if ins.Rc {
			c.updateCR0(r)
		}

	case opAdde:
		ca := uint64(c.XER >> 29 & 1)
		sum := uint64(c.GPR[ins.RA]) + uint64(c.GPR[ins.RB]) + ca
		r := uint32(sum)
		if ins.OE {
			c.setOverflow((c.GPR[ins.RA]^r)&(c.GPR[ins.RB]^r)&0x8000_0000 != 0)
		}
		c.GPR[ins.RD] = r
		c.setCarry(sum > 0xFFFF_FFFF)
		if ins.Rc {
			c.updateCR0(r)
		}

	case opAddic, opAddicRC:
		sum := uint64(c.GPR[ins.RA]) + uint64(uint32(ins.SIMM))
		c.GPR[ins.RD] = uint32(sum)
		c.setCarry(sum > 0xFFFF_FFFF)
		if ins.Op == opAddicRC {
			c.updateCR0(uint32(sum))
		}

	case opAddme:
		ca := uint64(c.XER >> 29 & 1)
		sum := uint64(c.GPR[ins.RA]) + 0xFFFF_FFFF + ca
		c.GPR[ins.RD] = uint32(sum)
		c.setCarry(sum > 0xFFFF_FFFF)
		if ins.Rc {
			c.updateCR0(uint32(sum))
		}

	case opAddze:
		ca := uint64(c.XER >> 29 & 1)
		sum := uint64(c.GPR[ins.RA]) + ca
		c.GPR[ins.RD] = uint32(sum)
		c.setCarry(sum > 0xFFFF_FFFF)
		if ins.Rc {
			c.updateCR0(uint32(sum))
		}

	case opSubf:
		r := c.GPR[ins.RB] - c.GPR[ins.RA]
		if ins.OE {
			c.setOverflow((c.GPR[ins.RB]^c.GPR[ins.RA])&(c.GPR[ins.RB]^r)&0x8000_0000 != 0)
		}
		c.GPR[ins.RD] = r
		if ins.Rc {
			c.updateCR0(r)
		}

	case opSubfc:
		sum := uint64(^c.GPR[ins.RA]) + uint64(c.GPR[ins.RB]) + 1
		c.GPR[ins.RD] = uint32(sum)
		c.setCarry(sum > 0xFFFF_FFFF)
		if ins.Rc {
			c.updateCR0(uint32(sum))
		}

	case opSubfe:
		ca := uint64(c.XER >> 29 & 1)
		sum := uint64(^c.GPR[ins.RA]) + uint64(c.GPR[ins.RB]) + ca
		c.GPR[ins.RD] = uint32(sum)
		c.setCarry(sum > 0xFFFF_FFFF)
		if ins.Rc {
			c.updateCR0(uint32(sum))
		}

	case opSubfic:
		sum := uint64(^c.GPR[ins.RA]) + uint64(uint32(ins.SIMM)) + 1
		c.GPR[ins.RD] = uint32(sum)
		c.setCarry(sum > 0xFFFF_FFFF)

	case opSubfme:
		ca := uint64(c.XER >> 29 & 1)
		sum := uint64(^c.GPR[ins.RA]) + 0xFFFF_FFFF + ca
		c.GPR[ins.RD] = uint32(sum)
		c.setCarry(sum > 0xFFFF_FFFF)
		if ins.Rc {
			c.updateCR0(uint32(sum))
		}

	case opSubfze:
		ca := uint64(c.XER >> 29 & 1)
		sum := uint64(^c.GPR[ins.RA]) + ca
		c.GPR[ins.RD] = uint32(sum)
		c.setCarry(sum > 0xFFFF_FFFF)
		if ins.Rc {
			c.updateCR0(uint32(sum))
		}

	case opNeg:
		r := -c.GPR[ins.RA]
		if ins.OE {
			c.setOverflow(c.GPR[ins.RA] == 0x8000_0000)
		}
		c.GPR[ins.RD] = r
		if ins.Rc {
			c.updateCR0(r)
		}

	case opMulli:
		c.GPR[ins.RD] = uint32(int32(c.GPR[ins.RA]) * ins.SIMM)

	case opMullw:
		prod := int64(int32(c.GPR[ins.RA])) * int64(int32(c.GPR[ins.RB]))
		if ins.OE {
			c.setOverflow(prod != int64(int32(prod)))
		}
		c.GPR[ins.RD] = uint32(prod)
		if ins.Rc {
			c.updateCR0(uint32(prod))
		}

	case opMulhw:
		prod := int64(int32(c.GPR[ins.RA])) * int64(int32(c.GPR[ins.RB]))
		c.GPR[ins.RD] = uint32(uint64(prod) >> 32)
		if ins.Rc {
			c.updateCR0(c.GPR[ins.RD])
		}

	case opMulhwu:
		prod := uint64(c.GPR[ins.RA]) * uint64(c.GPR[ins.RB])
		c.GPR[ins.RD] = uint32(prod >> 32)
		if ins.Rc {
			c.updateCR0(c.GPR[ins.RD])
		}

	case opDivw:
		dividend := int32(c.GPR[ins.RA])
		divisor := int32(c.GPR[ins.RB])
		if divisor == 0 || (dividend == math.MinInt32 && divisor == -1) {
			if ins.OE {
				c.setOverflow(true)
			}
			c.GPR[ins.RD] = 0
		} else {
			if ins.OE {
				c.setOverflow(false)
			}
			c.GPR[ins.RD] = uint32(dividend / divisor)
		}
		if ins.Rc {
			c.updateCR0(c.GPR[ins.RD])
		}

	case opDivwu:
		if c.GPR[ins.RB] == 0 {
			if ins.OE {
				c.setOverflow(true)
			}
			c.GPR[ins.RD] = 0
		} else {
			if ins.OE {
				c.setOverflow(false)
			}
			c.GPR[ins.RD] = c.GPR[ins.RA] / c.GPR[ins.RB]
		}
		if ins.Rc {
			c.updateCR0(c.GPR[ins.RD])
		}

	// ---- logical ----

	case opAnd:
		r := c.GPR[ins.RD] & c.GPR[ins.RB]
		c.GPR[ins.RA] = r
		if ins.Rc {
			c.updateCR0(r)
		}

	case opAndc:
		r := c.GPR[ins.RD] &^ c.GPR[ins.RB]
		c.GPR[ins.RA] = r
		if ins.Rc {
			c.updateCR0(r)
		}

	case opAndiRC:
		r := c.GPR[ins.RD] & ins.UIMM
		c.GPR[ins.RA] = r
		c.updateCR0(r)

	case opAndisRC:
		r := c.GPR[ins.RD] & (ins.UIMM << 16)
		c.GPR[ins.RA] = r
		c.updateCR0(r)

	case opOr:
		r := c.GPR[ins.RD] | c.GPR[ins.RB]
		c.GPR[ins.RA] = r
		if ins.Rc {
			c.updateCR0(r)
		}

	case opOrc:
		r := c.GPR[ins.RD] | ^c.GPR[ins.RB]
		c.GPR[ins.RA] = r
		if ins.Rc {
			c.updateCR0(r)
		}

	case opOri:
		c.GPR[ins.RA] = c.GPR[ins.RD] | ins.UIMM

	case opOris:
		c.GPR[ins.RA] = c.GPR[ins.RD] | ins.UIMM<<16

	case opXor:
		r := c.GPR[ins.RD] ^ c.GPR[ins.RB]
		c.GPR[ins.RA] = r
		if ins.Rc {
			c.updateCR0(r)
		}

	case opXori:
		c.GPR[ins.RA] = c.GPR[ins.RD] ^ ins.UIMM

	case opXoris:
		c.GPR[ins.RA] = c.GPR[ins.RD] ^ ins.UIMM<<16

	case opNand:
		r := ^(c.GPR[ins.RD] & c.GPR[ins.RB])
		c.GPR[ins.RA] = r
		if ins.Rc {
			c.updateCR0(r)
		}

	case opNor:
		r := ^(c.GPR[ins.RD] | c.GPR[ins.RB])
		c.GPR[ins.RA] = r
		if ins.Rc {
			c.updateCR0(r)
		}

	case opEqv:
		r := ^(c.GPR[ins.RD] ^ c.GPR[ins.RB])
		c.GPR[ins.RA] = r
		if ins.Rc {
			c.updateCR0(r)
		}

	case opExtsb:
		r := uint32(int32(int8(c.GPR[ins.RD])))
		c.GPR[ins.RA] = r
		if ins.Rc {
			c.updateCR0(r)
		}

	case opExtsh:
		r := uint32(int32(int16(c.GPR[ins.RD])))
		c.GPR[ins.RA] = r
		if ins.Rc {
			c.updateCR0(r)
		}

	case opCntlzw:
		r := uint32(bits.LeadingZeros32(c.GPR[ins.RD]))
		c.GPR[ins.RA] = r
		if ins.Rc {
			c.updateCR0(r)
		}

	// ---- rotates and shifts ----

	case opRlwinm:
		r := rotl32(c.GPR[ins.RD], ins.SH) & maskMBME(ins.MB, ins.ME)
		c.GPR[ins.RA] = r
		if ins.Rc {
			c.updateCR0(r)
		}

	case opRlwimi:
		m := maskMBME(ins.MB, ins.ME)
		r := rotl32(c.GPR[ins.RD], ins.SH)&m | c.GPR[ins.RA]&^m
		c.GPR[ins.RA] = r
		if ins.Rc {
			c.updateCR0(r)
		}

	case opRlwnm:
		r := rotl32(c.GPR[ins.RD], uint8(c.GPR[ins.RB]&31)) & maskMBME(ins.MB, ins.ME)
		c.GPR[ins.RA] = r
		if ins.Rc {
			c.updateCR0(r)
		}

	case opSlw:
		sh := c.GPR[ins.RB] & 63
		var r uint32
		if sh < 32 {
			r = c.GPR[ins.RD] << sh
		}
		c.GPR[ins.RA] = r
		if ins.Rc {
			c.updateCR0(r)
		}

	case opSrw:
		sh := c.GPR[ins.RB] & 63
		var r uint32
		if sh < 32 {
			r = c.GPR[ins.RD] >> sh
		}
		c.GPR[ins.RA] = r
		if ins.Rc {
			c.updateCR0(r)
		}

	case opSraw:
		sh := c.GPR[ins.RB] & 63
		s := int32(c.GPR[ins.RD])
		var r int32
		var ca bool
		if sh >= 32 {
			r = s >> 31
			ca = s < 0
		} else {
			r = s >> sh
			ca = s < 0 && uint32(s)<<(32-sh) != 0 && sh != 0
		}
		c.GPR[ins.RA] = uint32(r)
		c.setCarry(ca)
		if ins.Rc {
			c.updateCR0(uint32(r))
		}

	case opSrawi:
		s := int32(c.GPR[ins.RD])
		r := s >> ins.SH
		ca := s < 0 && ins.SH != 0 && uint32(s)<<(32-ins.SH) != 0
		c.GPR[ins.RA] = uint32(r)
		c.setCarry(ca)
		if ins.Rc {
			c.updateCR0(uint32(r))
		}

	// ---- compares ----

	case opCmpi:
		c.compareSigned(ins.CRFD, int32(c.GPR[ins.RA]), ins.SIMM)

	case opCmp:
		c.compareSigned(ins.CRFD, int32(c.GPR[ins.RA]), int32(c.GPR[ins.RB]))

	case opCmpli:
		c.compareUnsigned(ins.CRFD, c.GPR[ins.RA], ins.UIMM)

	case opCmpl:
		c.compareUnsigned(ins.CRFD, c.GPR[ins.RA], c.GPR[ins.RB])

	// ---- condition register ----

	case opCrand:
		c.setCRBit(ins.RD, c.crBit(ins.RA)&c.crBit(ins.RB))
	case opCrandc:
		c.setCRBit(ins.RD, c.crBit(ins.RA)&^c.crBit(ins.RB))
	case opCreqv:
		c.setCRBit(ins.RD, 1^c.crBit(ins.RA)^c.crBit(ins.RB))
	case opCrnand:
		c.setCRBit(ins.RD, 1^c.crBit(ins.RA)&c.crBit(ins.RB))
	case opCrnor:
		c.setCRBit(ins.RD, 1^(c.crBit(ins.RA)|c.crBit(ins.RB)))
	case opCror:
		c.setCRBit(ins.RD, c.crBit(ins.RA)|c.crBit(ins.RB))
	case opCrorc:
		c.setCRBit(ins.RD, c.crBit(ins.RA)|(1^c.crBit(ins.RB)))
	case opCrxor:
		c.setCRBit(ins.RD, c.crBit(ins.RA)^c.crBit(ins.RB))

	case opMcrf:
		src := ins.RA >> 2
		c.setCRField(ins.CRFD, c.CR>>(28-4*uint32(src))&0xF)

	case opMfcr:
		c.GPR[ins.RD] = c.CR

	case opMtcrf:
		var mask uint32
		for i := 0; i < 8; i++ {
			if ins.CRM&(0x80>>i) != 0 {
				mask |= 0xF << (28 - 4*uint32(i))
			}
		}
		c.CR = c.CR&^mask | c.GPR[ins.RD]&mask

	// ---- branches ----

	case opB:
		target := uint32(ins.LI)
		if !ins.AA {
			target += ins.Addr
		}
		if ins.LK {
			c.LR = ins.Addr + 4
		}
		c.PC = target
		return execBranch

	case opBc:
		taken := c.branchCond(ins.BO, ins.BI)
		if ins.LK {
			c.LR = ins.Addr + 4
		}
		if taken {
			target := uint32(ins.BD)
			if !ins.AA {
				target += ins.Addr
			}
			c.PC = target
		} else {
			c.PC = ins.Addr + 4
		}
		return execBranch

	case opBclr:
		taken := c.branchCond(ins.BO, ins.BI)
		target := c.LR &^ 3
		if ins.LK {
			c.LR = ins.Addr + 4
		}
		if taken {
			c.PC = target
		} else {
			c.PC = ins.Addr + 4
		}
		return execBranch

	case opBcctr:
		taken := c.branchCond(ins.BO, ins.BI)
		if ins.LK {
			c.LR = ins.Addr + 4
		}
		if taken {
			c.PC = c.CTR &^ 3
		} else {
			c.PC = ins.Addr + 4
		}
		return execBranch

	// ---- loads ----

	case opLbz, opLbzu:
		ea := c.regBase(ins.RA) + uint32(ins.SIMM)
		if ins.Op == opLbzu {
			ea = c.GPR[ins.RA] + uint32(ins.SIMM)
		}
		v, ok := c.bus.Read8WithFault(ea)
		if !ok {
			c.raiseDSI(ea, false)
			return execException
		}
		c.GPR[ins.RD] = uint32(v)
		if ins.Op == opLbzu {
			c.GPR[ins.RA] = ea
		}

	case opLbzx, opLbzux:
		ea := c.regBase(ins.RA) + c.GPR[ins.RB]
		if ins.Op == opLbzux {
			ea = c.GPR[ins.RA] + c.GPR[ins.RB]
		}
		v, ok := c.bus.Read8WithFault(ea)
		if !ok {
			c.raiseDSI(ea, false)
			return execException
		}
		c.GPR[ins.RD] = uint32(v)
		if ins.Op == opLbzux {
			c.GPR[ins.RA] = ea
		}

	case opLhz, opLhzu:
		ea := c.regBase(ins.RA) + uint32(ins.SIMM)
		if ins.Op == opLhzu {
			ea = c.GPR[ins.RA] + uint32(ins.SIMM)
		}
		v, ok := c.bus.Read16WithFault(ea)
		if !ok {
			c.raiseDSI(ea, false)
			return execException
		}
		c.GPR[ins.RD] = uint32(v)
		if ins.Op == opLhzu {
			c.GPR[ins.RA] = ea
		}

	case opLhzx, opLhzux:
		ea := c.regBase(ins.RA) + c.GPR[ins.RB]
		if ins.Op == opLhzux {
			ea = c.GPR[ins.RA] + c.GPR[ins.RB]
		}
		v, ok := c.bus.Read16WithFault(ea)
		if !ok {
			c.raiseDSI(ea, false)
			return execException
		}
		c.GPR[ins.RD] = uint32(v)
		if ins.Op == opLhzux {
			c.GPR[ins.RA] = ea
		}

	case opLha, opLhau:
		ea := c.regBase(ins.RA) + uint32(ins.SIMM)
		if ins.Op == opLhau {
			ea = c.GPR[ins.RA] + uint32(ins.SIMM)
		}
		v, ok := c.bus.Read16WithFault(ea)
		if !ok {
			c.raiseDSI(ea, false)
			return execException
		}
		c.GPR[ins.RD] = uint32(int32(int16(v)))
		if ins.Op == opLhau {
			c.GPR[ins.RA] = ea
		}

	case opLhax, opLhaux:
		ea := c.regBase(ins.RA) + c.GPR[ins.RB]
		if ins.Op == opLhaux {
			ea = c.GPR[ins.RA] + c.GPR[ins.RB]
		}
		v, ok := c.bus.Read16WithFault(ea)
		if !ok {
			c.raiseDSI(ea, false)
			return execException
		}
		c.GPR[ins.RD] = uint32(int32(int16(v)))
		if ins.Op == opLhaux {
			c.GPR[ins.RA] = ea
		}

	case opLwz, opLwzu:
		ea := c.regBase(ins.RA) + uint32(ins.SIMM)
		if ins.Op == opLwzu {
			ea = c.GPR[ins.RA] + uint32(ins.SIMM)
		}
		v, ok := c.bus.Read32WithFault(ea)
		if !ok {
			c.raiseDSI(ea, false)
			return execException
		}
		c.GPR[ins.RD] = v
		if ins.Op == opLwzu {
			c.GPR[ins.RA] = ea
		}

	case opLwzx, opLwzux, opLwarx:
		ea := c.regBase(ins.RA) + c.GPR[ins.RB]
		if ins.Op == opLwzux {
			ea = c.GPR[ins.RA] + c.GPR[ins.RB]
		}
		v, ok := c.bus.Read32WithFault(ea)
		if !ok {
			c.raiseDSI(ea, false)
			return execException
		}
		c.GPR[ins.RD] = v
		if ins.Op == opLwzux {
			c.GPR[ins.RA] = ea
		}

	case opLwbrx:
		ea := c.regBase(ins.RA) + c.GPR[ins.RB]
		v, ok := c.bus.Read32WithFault(ea)
		if !ok {
			c.raiseDSI(ea, false)
			return execException
		}
		c.GPR[ins.RD] = bits.ReverseBytes32(v)

	case opLmw:
		ea := c.regBase(ins.RA) + uint32(ins.SIMM)
		for r := uint32(ins.RD); r < 32; r++ {
			v, ok := c.bus.Read32WithFault(ea)
			if !ok {
				c.raiseDSI(ea, false)
				return execException
			}
			c.GPR[r] = v
			ea += 4
		}

	// ---- stores ----

	case opStb, opStbu:
		ea := c.regBase(ins.RA) + uint32(ins.SIMM)
		if ins.Op == opStbu {
			ea = c.GPR[ins.RA] + uint32(ins.SIMM)
		}
		if !c.bus.Write8WithFault(ea, uint8(c.GPR[ins.RD])) {
			c.raiseDSI(ea, true)
			return execException
		}
		if ins.Op == opStbu {
			c.GPR[ins.RA] = ea
		}

	case opStbx, opStbux:
		ea := c.regBase(ins.RA) + c.GPR[ins.RB]
		if ins.Op == opStbux {
			ea = c.GPR[ins.RA] + c.GPR[ins.RB]
		}
		if !c.bus.Write8WithFault(ea, uint8(c.GPR[ins.RD])) {
			c.raiseDSI(ea, true)
			return execException
		}
		if ins.Op == opStbux {
			c.GPR[ins.RA] = ea
		}

	case opSth, opSthu:
		ea := c.regBase(ins.RA) + uint32(ins.SIMM)
		if ins.Op == opSthu {
			ea = c.GPR[ins.RA] + uint32(ins.SIMM)
		}
		if !c.bus.Write16WithFault(ea, uint16(c.GPR[ins.RD])) {
			c.raiseDSI(ea, true)
			return execException
		}
		if ins.Op == opSthu {
			c.GPR[ins.RA] = ea
		}

	case opSthx, opSthux:
		ea := c.regBase(ins.RA) + c.GPR[ins.RB]
		if ins.Op == opSthux {
			ea = c.GPR[ins.RA] + c.GPR[ins.RB]
		}
		if !c.bus.Write16WithFault(ea, uint16(c.GPR[ins.RD])) {
			c.raiseDSI(ea, true)
			return execException
		}
		if ins.Op == opSthux {
			c.GPR[ins.RA] = ea
		}

	case opStw, opStwu:
		ea := c.regBase(ins.RA) + uint32(ins.SIMM)
		if ins.Op == opStwu {
			ea = c.GPR[ins.RA] + uint32(ins.SIMM)
		}
		if !c.bus.Write32WithFault(ea, c.GPR[ins.RD]) {
			c.raiseDSI(ea, true)
			return execException
		}
		if ins.Op == opStwu {
			c.GPR[ins.RA] = ea
		}

	case opStwx, opStwux:
		ea := c.regBase(ins.RA) + c.GPR[ins.RB]
		if ins.Op == opStwux {
			ea = c.GPR[ins.RA] + c.GPR[ins.RB]
		}
		if !c.bus.Write32WithFault(ea, c.GPR[ins.RD]) {
			c.raiseDSI(ea, true)
			return execException
		}
		if ins.Op == opStwux {
			c.GPR[ins.RA] = ea
		}

	case opStwbrx:
		ea := c.regBase(ins.RA) + c.GPR[ins.RB]
		if !c.bus.Write32WithFault(ea, bits.ReverseBytes32(c.GPR[ins.RD])) {
			c.raiseDSI(ea, true)
			return execException
		}

	case opStwcx:
		// No other agent competes for reservations, so the store always
		// succeeds.
		ea := c.regBase(ins.RA) + c.GPR[ins.RB]
		if !c.bus.Write32WithFault(ea, c.GPR[ins.RD]) {
			c.raiseDSI(ea, true)
			return execException
		}
		f := uint32(2)
		if c.XER&XER_SO != 0 {
			f |= 1
		}
		c.setCRField(0, f)

	case opStmw:
		ea := c.regBase(ins.RA) + uint32(ins.SIMM)
		for r := uint32(ins.RD); r < 32; r++ {
			if !c.bus.Write32WithFault(ea, c.GPR[r]) {
				c.raiseDSI(ea, true)
				return execException
			}
			ea += 4
		}

	// ---- system ----

	case opMfmsr:
		c.GPR[ins.RD] = c.MSR

	case opMtmsr:
		c.MSR = c.GPR[ins.RD]

	case opMfspr:
		c.GPR[ins.RD] = c.readSPR(ins.SPR)

	case opMtspr:
		c.writeSPR(ins.SPR, c.GPR[ins.RD])

	case opMftb:
		if ins.SPR == TBR_TBU {
			c.GPR[ins.RD] = uint32(c.TB >> 32)
		} else {
			c.GPR[ins.RD] = uint32(c.TB)
		}

	case opSc:
		c.PC = ins.Addr + 4
		c.RaiseException(EXC_SYSCALL)
		return execException

	case opRfi:
		c.MSR = c.MSR&^0x87C0_FFFF | c.SRR1&0x87C0_FFFF
		c.PC = c.SRR0 &^ 3
		return execBranch

	// ---- cache and synchronisation ----

	case opDcbz:
		ea := (c.regBase(ins.RA) + c.GPR[ins.RB]) &^ 31
		line, ok := c.bus.Slice(ea, 32)
		if !ok {
			c.raiseDSI(ea, true)
			return execException
		}
		for i := range line {
			line[i] = 0
		}
		c.bus.NotifyStore(Physical(ea), 32)

	case opIcbi:
		ea := (c.regBase(ins.RA) + c.GPR[ins.RB]) &^ 31
		c.blocks.InvalidateRange(Physical(ea), 32)

	case opIsync, opNop:

	// ---- floating point ----

	case opLfs, opLfsu:
		ea := c.regBase(ins.RA) + uint32(ins.SIMM)
		if ins.Op == opLfsu {
			ea = c.GPR[ins.RA] + uint32(ins.SIMM)
		}
		v, ok := c.bus.Read32WithFault(ea)
		if !ok {
			c.raiseDSI(ea, false)
			return execException
		}
		d := fbits(float64(math.Float32frombits(v)))
		c.PS0[ins.RD] = d
		c.PS1[ins.RD] = d
		if ins.Op == opLfsu {
			c.GPR[ins.RA] = ea
		}

	case opLfd, opLfdu:
		ea := c.regBase(ins.RA) + uint32(ins.SIMM)
		if ins.Op == opLfdu {
			ea = c.GPR[ins.RA] + uint32(ins.SIMM)
		}
		v, ok := c.bus.Read64WithFault(ea)
		if !ok {
			c.raiseDSI(ea, false)
			return execException
		}
		c.PS0[ins.RD] = v
		if ins.Op == opLfdu {
			c.GPR[ins.RA] = ea
		}

	case opStfs, opStfsu:
		ea := c.regBase(ins.RA) + uint32(ins.SIMM)
		if ins.Op == opStfsu {
			ea = c.GPR[ins.RA] + uint32(ins.SIMM)
		}
		if !c.bus.Write32WithFault(ea, math.Float32bits(float32(f64(c.PS0[ins.RD])))) {
			c.raiseDSI(ea, true)
			return execException
		}
		if ins.Op == opStfsu {
			c.GPR[ins.RA] = ea
		}

	case opStfd, opStfdu:
		ea := c.regBase(ins.RA) + uint32(ins.SIMM)
		if ins.Op == opStfdu {
			ea = c.GPR[ins.RA] + uint32(ins.SIMM)
		}
		if !c.bus.Write64WithFault(ea, c.PS0[ins.RD]) {
			c.raiseDSI(ea, true)
			return execException
		}
		if ins.Op == opStfdu {
			c.GPR[ins.RA] = ea
		}

	case opFmr:
		c.PS0[ins.RD] = c.PS0[ins.RB]

	case opFneg:
		c.PS0[ins.RD] = c.PS0[ins.RB] ^ 0x8000_0000_0000_0000

	case opFabs:
		c.PS0[ins.RD] = c.PS0[ins.RB] &^ 0x8000_0000_0000_0000

	case opFnabs:
		c.PS0[ins.RD] = c.PS0[ins.RB] | 0x8000_0000_0000_0000

	case opFadd, opFadds:
		r := f64(c.PS0[ins.RA]) + f64(c.PS0[ins.RB])
		if ins.Op == opFadds {
			r = float64(float32(r))
		}
		c.PS0[ins.RD] = fbits(r)

	case opFsub, opFsubs:
		r := f64(c.PS0[ins.RA]) - f64(c.PS0[ins.RB])
		if ins.Op == opFsubs {
			r = float64(float32(r))
		}
		c.PS0[ins.RD] = fbits(r)

	case opFmul, opFmuls:
		r := f64(c.PS0[ins.RA]) * f64(c.PS0[ins.RC])
		if ins.Op == opFmuls {
			r = float64(float32(r))
		}
		c.PS0[ins.RD] = fbits(r)

	case opFdiv, opFdivs:
		r := f64(c.PS0[ins.RA]) / f64(c.PS0[ins.RB])
		if ins.Op == opFdivs {
			r = float64(float32(r))
		}
		c.PS0[ins.RD] = fbits(r)

	case opFmadd, opFmadds:
		r := f64(c.PS0[ins.RA])*f64(c.PS0[ins.RC]) + f64(c.PS0[ins.RB])
		if ins.Op == opFmadds {
			r = float64(float32(r))
		}
		c.PS0[ins.RD] = fbits(r)

	case opFmsub, opFmsubs:
		r := f64(c.PS0[ins.RA])*f64(c.PS0[ins.RC]) - f64(c.PS0[ins.RB])
		if ins.Op == opFmsubs {
			r = float64(float32(r))
		}
		c.PS0[ins.RD] = fbits(r)

	case opFnmadd, opFnmadds:
		r := -(f64(c.PS0[ins.RA])*f64(c.PS0[ins.RC]) + f64(c.PS0[ins.RB]))
		if ins.Op == opFnmadds {
			r = float64(float32(r))
		}
		c.PS0[ins.RD] = fbits(r)

	case opFnmsub, opFnmsubs:
		r := -(f64(c.PS0[ins.RA])*f64(c.PS0[ins.RC]) - f64(c.PS0[ins.RB]))
		if ins.Op == opFnmsubs {
			r = float64(float32(r))
		}
		c.PS0[ins.RD] = fbits(r)

	case opFrsp:
		c.PS0[ins.RD] = fbits(float64(float32(f64(c.PS0[ins.RB]))))

	case opFctiwz:
		v := f64(c.PS0[ins.RB])
		var i int32
		switch {
		case v >= float64(math.MaxInt32):
			i = math.MaxInt32
		case v <= float64(math.MinInt32):
			i = math.MinInt32
		default:
			i = int32(v) // truncation toward zero
		}
		c.PS0[ins.RD] = 0xFFF8_0000_0000_0000 | uint64(uint32(i))

	case opFcmpu:
		a, b := f64(c.PS0[ins.RA]), f64(c.PS0[ins.RB])
		var f uint32
		switch {
		case math.IsNaN(a) || math.IsNaN(b):
			f = 1
		case a < b:
			f = 8
		case a > b:
			f = 4
		default:
			f = 2
		}
		c.setCRField(ins.CRFD, f)

	case opMffs:
		c.PS0[ins.RD] = uint64(c.FPSCR)

	case opMtfsf:
		c.FPSCR = uint32(c.PS0[ins.RB])

	// ---- paired singles ----

	case opPsMr:
		c.PS0[ins.RD] = c.PS0[ins.RB]
		c.PS1[ins.RD] = c.PS1[ins.RB]

	case opPsMerge00:
		c.PS0[ins.RD] = c.PS0[ins.RA]
		c.PS1[ins.RD] = c.PS0[ins.RB]
	case opPsMerge01:
		c.PS0[ins.RD] = c.PS0[ins.RA]
		c.PS1[ins.RD] = c.PS1[ins.RB]
	case opPsMerge10:
		c.PS0[ins.RD] = c.PS1[ins.RA]
		c.PS1[ins.RD] = c.PS0[ins.RB]
	case opPsMerge11:
		c.PS0[ins.RD] = c.PS1[ins.RA]
		c.PS1[ins.RD] = c.PS1[ins.RB]

	case opPsAdd:
		c.PS0[ins.RD] = fbits(float64(float32(f64(c.PS0[ins.RA]) + f64(c.PS0[ins.RB]))))
		c.PS1[ins.RD] = fbits(float64(float32(f64(c.PS1[ins.RA]) + f64(c.PS1[ins.RB]))))
	case opPsSub:
		c.PS0[ins.RD] = fbits(float64(float32(f64(c.PS0[ins.RA]) - f64(c.PS0[ins.RB]))))
		c.PS1[ins.RD] = fbits(float64(float32(f64(c.PS1[ins.RA]) - f64(c.PS1[ins.RB]))))
	case opPsMul:
		c.PS0[ins.RD] = fbits(float64(float32(f64(c.PS0[ins.RA]) * f64(c.PS0[ins.RC]))))
		c.PS1[ins.RD] = fbits(float64(float32(f64(c.PS1[ins.RA]) * f64(c.PS1[ins.RC]))))
	case opPsDiv:
		c.PS0[ins.RD] = fbits(float64(float32(f64(c.PS0[ins.RA]) / f64(c.PS0[ins.RB]))))
		c.PS1[ins.RD] = fbits(float64(float32(f64(c.PS1[ins.RA]) / f64(c.PS1[ins.RB]))))

	case opPsqL, opPsqLu:
		ea := c.regBase(ins.RA) + uint32(ins.SIMM)
		if ins.Op == opPsqLu {
			ea = c.GPR[ins.RA] + uint32(ins.SIMM)
		}
		if !c.psqLoad(ins, ea) {
			return execException
		}
		if ins.Op == opPsqLu {
			c.GPR[ins.RA] = ea
		}

	case opPsqSt, opPsqStu:
		ea := c.regBase(ins.RA) + uint32(ins.SIMM)
		if ins.Op == opPsqStu {
			ea = c.GPR[ins.RA] + uint32(ins.SIMM)
		}
		if !c.psqStore(ins, ea) {
			return execException
		}
		if ins.Op == opPsqStu {
			c.GPR[ins.RA] = ea
		}

	default:
		c.RaiseException(EXC_PROGRAM)
		return execException
	}

	return execNext
}

// psq quantisation types.
const (
	quantFloat = 0
	quantU8    = 4
	quantU16   = 5
	quantS8    = 6
	quantS16   = 7
)

func quantSize(t uint32) uint32 {
	switch t {
	case quantU8, quantS8:
		return 1
	case quantU16, quantS16:
		return 2
	}
	return 4
}

func dequantScale(scale uint32) float64 {
	// 6-bit signed scale exponent.
	s := int32(scale)
	if s > 31 {
		s -= 64
	}
	return math.Pow(2, float64(-s))
}

func (c *Gekko) psqReadElem(t uint32, ea uint32) (float64, bool) {
	switch t {
	case quantU8:
		v, ok := c.bus.Read8WithFault(ea)
		return float64(v), ok
	case quantS8:
		v, ok := c.bus.Read8WithFault(ea)
		return float64(int8(v)), ok
	case quantU16:
		v, ok := c.bus.Read16WithFault(ea)
		return float64(v), ok
	case quantS16:
		v, ok := c.bus.Read16WithFault(ea)
		return float64(int16(v)), ok
	default:
		v, ok := c.bus.Read32WithFault(ea)
		return float64(math.Float32frombits(v)), ok
	}
}

func (c *Gekko) psqLoad(ins *Instr, ea uint32) bool {
	gqr := c.GQR[ins.GQRI]
	t := gqr >> 16 & 7
	scale := dequantScale(gqr >> 24 & 0x3F)
	if t == quantFloat {
		scale = 1
	}
	v0, ok := c.psqReadElem(t, ea)
	if !ok {
		c.raiseDSI(ea, false)
		return false
	}
	if ins.W {
		c.PS0[ins.RD] = fbits(v0 * scale)
		c.PS1[ins.RD] = fbits(1.0)
		return true
	}
	ea1 := ea + quantSize(t)
	v1, ok := c.psqReadElem(t, ea1)
	if !ok {
		c.raiseDSI(ea1, false)
		return false
	}
	c.PS0[ins.RD] = fbits(v0 * scale)
	c.PS1[ins.RD] = fbits(v1 * scale)
	return true
}

func clampI(v float64, lo, hi int32) uint32 {
	switch {
	case v < float64(lo):
		return uint32(lo)
	case v > float64(hi):
		return uint32(hi)
	}
	return uint32(int32(v))
}

func (c *Gekko) psqWriteElem(t uint32, ea uint32, v float64, scale float64) bool {
	switch t {
	case quantU8:
		return c.bus.Write8WithFault(ea, uint8(clampI(v*scale, 0, 255)))
	case quantS8:
		return c.bus.Write8WithFault(ea, uint8(clampI(v*scale, -128, 127)))
	case quantU16:
		return c.bus.Write16WithFault(ea, uint16(clampI(v*scale, 0, 65535)))
	case quantS16:
		return c.bus.Write16WithFault(ea, uint16(clampI(v*scale, -32768, 32767)))
	default:
		return c.bus.Write32WithFault(ea, math.Float32bits(float32(v)))
	}
}

func (c *Gekko) psqStore(ins *Instr, ea uint32) bool {
	gqr := c.GQR[ins.GQRI]
	t := gqr & 7
	scale := 1 / dequantScale(gqr>>8&0x3F)
	if t == quantFloat {
		scale = 1
	}
	if !c.psqWriteElem(t, ea, f64(c.PS0[ins.RD]), scale) {
		c.raiseDSI(ea, true)
		return false
	}
	if ins.W {
		return true
	}
	ea1 := ea + quantSize(t)
	if !c.psqWriteElem(t, ea1, f64(c.PS1[ins.RD]), scale) {
		c.raiseDSI(ea1, true)
		return false
	}
	return true
}
