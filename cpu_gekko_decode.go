// cpu_gekko_decode.go - Gekko instruction word decoder

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
cpu_gekko_decode.go - Instruction word decoder

One pass over the 32-bit instruction word produces an Instr with every field
extracted and sign-extended. The same decoded form feeds both the fallback
interpreter and the block translator, so the two can never disagree about
what an instruction word means.
*/

package main

type ppcOp uint16

const (
	opIllegal ppcOp = iota

	// integer arithmetic
	opAdd
	opAddc
	opAdde
	opAddi
	opAddic
	opAddicRC
	opAddis
	opAddme
	opAddze
	opDivw
	opDivwu
	opMulhw
	opMulhwu
	opMulli
	opMullw
	opNeg
	opSubf
	opSubfc
	opSubfe
	opSubfic
	opSubfme
	opSubfze

	// logical
	opAnd
	opAndc
	opAndiRC
	opAndisRC
	opCntlzw
	opEqv
	opExtsb
	opExtsh
	opNand
	opNor
	opOr
	opOrc
	opOri
	opOris
	opXor
	opXori
	opXoris

	// rotates and shifts
	opRlwimi
	opRlwinm
	opRlwnm
	opSlw
	opSraw
	opSrawi
	opSrw

	// compares
	opCmp
	opCmpi
	opCmpl
	opCmpli

	// condition register
	opCrand
	opCrandc
	opCreqv
	opCrnand
	opCrnor
	opCror
	opCrorc
	opCrxor
	opMcrf
	opMfcr
	opMtcrf

	// branches
	opB
	opBc
	opBcctr
	opBclr

	// loads
	opLbz
	opLbzu
	opLbzux
	opLbzx
	opLha
	opLhau
	opLhaux
	opLhax
	opLhz
	opLhzu
	opLhzux
	opLhzx
	opLmw
	opLwarx
	opLwbrx
	opLwz
	opLwzu
	opLwzux
	opLwzx

	// stores
	opStb
	opStbu
	opStbux
	opStbx
	opSth
	opSthu
	opSthux
	opSthx
	opStmw
	opStw
	opStwbrx
	opStwcx
	opStwu
	opStwux
	opStwx

	// system
	opMfmsr
	opMfspr
	opMftb
	opMtmsr
	opMtspr
	opRfi
	opSc

	// cache and synchronisation
	opDcbz
	opIcbi
	opIsync
	opNop // dcbf/dcbt/dcbst/dcbtst/dcbi/sync/eieio/tlbie/tlbsync/mtsr/mfsr

	// floating point
	opFabs
	opFadd
	opFadds
	opFcmpu
	opFctiwz
	opFdiv
	opFdivs
	opFmadd
	opFmadds
	opFmr
	opFmsub
	opFmsubs
	opFmul
	opFmuls
	opFnabs
	opFneg
	opFnmadd
	opFnmadds
	opFnmsub
	opFnmsubs
	opFrsp
	opFsub
	opFsubs
	opLfd
	opLfdu
	opLfs
	opLfsu
	opMffs
	opMtfsf
	opStfd
	opStfdu
	opStfs
	opStfsu

	// paired singles
	opPsAdd
	opPsDiv
	opPsMerge00
	opPsMerge01
	opPsMerge10
	opPsMerge11
	opPsMr
	opPsMul
	opPsSub
	opPsqL
	opPsqLu
	opPsqSt
	opPsqStu
)

// Instr is the decoded form of one instruction word. RD doubles as RS for
// stores, and as FRD/FRS for floating point. CRFD is the target CR field
// for compares.
type Instr struct {
	Op   ppcOp
	RD   uint8
	RA   uint8
	RB   uint8
	RC   uint8 // FP A-form third operand
	CRFD uint8
	SIMM int32
	UIMM uint32
	SH   uint8
	MB   uint8
	ME   uint8
	BO   uint8
	BI   uint8
	BD   int32
	LI   int32
	SPR  uint16
	CRM  uint8
	W    bool  // psq single-element flag
	GQRI uint8 // psq quantisation register index
	Rc   bool
	OE   bool
	LK   bool
	AA   bool
	Raw  uint32
	Addr uint32
}

func signExt16(v uint32) int32 {
	return int32(int16(v))
}

func signExt26(v uint32) int32 {
	if v&0x0200_0000 != 0 {
		v |= 0xFC00_0000
	}
	return int32(v)
}

// Decode turns an instruction word into its decoded form. The second return
// is false for words that do not decode to anything the core implements.
func Decode(addr, word uint32) (Instr, bool) {
	ins := Instr{
		RD:   uint8(word >> 21 & 31),
		RA:   uint8(word >> 16 & 31),
		RB:   uint8(word >> 11 & 31),
		RC:   uint8(word >> 6 & 31),
		CRFD: uint8(word >> 23 & 7),
		BO:   uint8(word >> 21 & 31),
		BI:   uint8(word >> 16 & 31),
		SIMM: signExt16(word & 0xFFFF),
		UIMM: word & 0xFFFF,
		SH:   uint8(word >> 11 & 31),
		MB:   uint8(word >> 6 & 31),
		ME:   uint8(word >> 1 & 31),
		Rc:   word&1 != 0,
		OE:   word&0x400 != 0,
		LK:   word&1 != 0,
		AA:   word&2 != 0,
		Raw:  word,
		Addr: addr,
	}

	switch word >> 26 {
	case 4:
		return decodePaired(word, ins)
	case 7:
		ins.Op = opMulli
	case 8:
		ins.Op = opSubfic
	case 10:
		ins.Op = opCmpli
	case 11:
		ins.Op = opCmpi
	case 12:
		ins.Op = opAddic
	case 13:
		ins.Op = opAddicRC
	case 14:
		ins.Op = opAddi
	case 15:
		ins.Op = opAddis
	case 16:
		ins.Op = opBc
		ins.BD = signExt16(word & 0xFFFC)
	case 17:
		ins.Op = opSc
	case 18:
		ins.Op = opB
		ins.LI = signExt26(word & 0x03FF_FFFC)
	case 19:
		return decode19(word, ins)
	case 20:
		ins.Op = opRlwimi
	case 21:
		ins.Op = opRlwinm
	case 23:
		ins.Op = opRlwnm
	case 24:
		ins.Op = opOri
	case 25:
		ins.Op = opOris
	case 26:
		ins.Op = opXori
	case 27:
		ins.Op = opXoris
	case 28:
		ins.Op = opAndiRC
	case 29:
		ins.Op = opAndisRC
	case 31:
		return decode31(word, ins)
	case 32:
		ins.Op = opLwz
	case 33:
		ins.Op = opLwzu
	case 34:
		ins.Op = opLbz
	case 35:
		ins.Op = opLbzu
	case 36:
		ins.Op = opStw
	case 37:
		ins.Op = opStwu
	case 38:
		ins.Op = opStb
	case 39:
		ins.Op = opStbu
	case 40:
		ins.Op = opLhz
	case 41:
		ins.Op = opLhzu
	case 42:
		ins.Op = opLha
	case 43:
		ins.Op = opLhau
	case 44:
		ins.Op = opSth
	case 45:
		ins.Op = opSthu
	case 46:
		ins.Op = opLmw
	case 47:
		ins.Op = opStmw
	case 48:
		ins.Op = opLfs
	case 49:
		ins.Op = opLfsu
	case 50:
		ins.Op = opLfd
	case 51:
		ins.Op = opLfdu
	case 52:
		ins.Op = opStfs
	case 53:
		ins.Op = opStfsu
	case 54:
		ins.Op = opStfd
	case 55:
		ins.Op = opStfdu
	case 56, 57, 60, 61:
		return decodePsq(word, ins)
	case 59:
		return decode59(word, ins)
	case 63:
		return decode63(word, ins)
	default:
		return ins, false
	}
	return ins, true
}

func decode19(word uint32, ins Instr) (Instr, bool) {
	switch word >> 1 & 0x3FF {
	case 0:
		ins.Op = opMcrf
	case 16:
		ins.Op = opBclr
	case 33:
		ins.Op = opCrnor
	case 50:
		ins.Op = opRfi
	case 129:
		ins.Op = opCrandc
	case 150:
		ins.Op = opIsync
	case 193:
		ins.Op = opCrxor
	case 225:
		ins.Op = opCrnand
	case 257:
		ins.Op = opCrand
	case 289:
		ins.Op = opCreqv
	case 417:
		ins.Op = opCrorc
	case 449:
		ins.Op = opCror
	case 528:
		ins.Op = opBcctr
	default:
		return ins, false
	}
	return ins, true
}

func decode31(word uint32, ins Instr) (Instr, bool) {
	ins.SPR = uint16(word>>16&31 | word>>6&0x3E0)
	switch word >> 1 & 0x3FF {
	case 0:
		ins.Op = opCmp
	case 8, 520:
		ins.Op = opSubfc
	case 10, 522:
		ins.Op = opAddc
	case 11:
		ins.Op = opMulhwu
	case 19:
		ins.Op = opMfcr
	case 20:
		ins.Op = opLwarx
	case 23:
		ins.Op = opLwzx
	case 24:
		ins.Op = opSlw
	case 26:
		ins.Op = opCntlzw
	case 28:
		ins.Op = opAnd
	case 32:
		ins.Op = opCmpl
	case 40, 552:
		ins.Op = opSubf
	case 54, 86, 246, 278, 470:
		ins.Op = opNop // data cache hints
	case 55:
		ins.Op = opLwzux
	case 60:
		ins.Op = opAndc
	case 75:
		ins.Op = opMulhw
	case 83:
		ins.Op = opMfmsr
	case 87:
		ins.Op = opLbzx
	case 104, 616:
		ins.Op = opNeg
	case 119:
		ins.Op = opLbzux
	case 124:
		ins.Op = opNor
	case 136, 648:
		ins.Op = opSubfe
	case 138, 650:
		ins.Op = opAdde
	case 144:
		ins.Op = opMtcrf
		ins.CRM = uint8(word >> 12 & 0xFF)
	case 146:
		ins.Op = opMtmsr
	case 150:
		ins.Op = opStwcx
	case 151:
		ins.Op = opStwx
	case 183:
		ins.Op = opStwux
	case 200, 712:
		ins.Op = opSubfze
	case 202, 714:
		ins.Op = opAddze
	case 210, 595, 306, 566, 854:
		ins.Op = opNop // segment registers and TLB management
	case 215:
		ins.Op = opStbx
	case 232, 744:
		ins.Op = opSubfme
	case 234, 746:
		ins.Op = opAddme
	case 235, 747:
		ins.Op = opMullw
	case 247:
		ins.Op = opStbux
	case 266, 778:
		ins.Op = opAdd
	case 279:
		ins.Op = opLhzx
	case 284:
		ins.Op = opEqv
	case 311:
		ins.Op = opLhzux
	case 316:
		ins.Op = opXor
	case 339:
		ins.Op = opMfspr
	case 343:
		ins.Op = opLhax
	case 371:
		ins.Op = opMftb
	case 375:
		ins.Op = opLhaux
	case 407:
		ins.Op = opSthx
	case 412:
		ins.Op = opOrc
	case 439:
		ins.Op = opSthux
	case 444:
		ins.Op = opOr
	case 459, 971:
		ins.Op = opDivwu
	case 467:
		ins.Op = opMtspr
	case 476:
		ins.Op = opNand
	case 491, 1003:
		ins.Op = opDivw
	case 534:
		ins.Op = opLwbrx
	case 536:
		ins.Op = opSrw
	case 598:
		ins.Op = opNop // sync
	case 662:
		ins.Op = opStwbrx
	case 792:
		ins.Op = opSraw
	case 824:
		ins.Op = opSrawi
	case 922:
		ins.Op = opExtsh
	case 954:
		ins.Op = opExtsb
	case 982:
		ins.Op = opIcbi
	case 1014:
		ins.Op = opDcbz
	default:
		return ins, false
	}
	return ins, true
}

func decode59(word uint32, ins Instr) (Instr, bool) {
	switch word >> 1 & 0x1F {
	case 18:
		ins.Op = opFdivs
	case 20:
		ins.Op = opFsubs
	case 21:
		ins.Op = opFadds
	case 25:
		ins.Op = opFmuls
	case 28:
		ins.Op = opFmsubs
	case 29:
		ins.Op = opFmadds
	case 30:
		ins.Op = opFnmsubs
	case 31:
		ins.Op = opFnmadds
	default:
		return ins, false
	}
	return ins, true
}

func decode63(word uint32, ins Instr) (Instr, bool) {
	switch word >> 1 & 0x1F {
	case 18:
		ins.Op = opFdiv
		return ins, true
	case 20:
		ins.Op = opFsub
		return ins, true
	case 21:
		ins.Op = opFadd
		return ins, true
	case 25:
		ins.Op = opFmul
		return ins, true
	case 28:
		ins.Op = opFmsub
		return ins, true
	case 29:
		ins.Op = opFmadd
		return ins, true
	case 30:
		ins.Op = opFnmsub
		return ins, true
	case 31:
		ins.Op = opFnmadd
		return ins, true
	}
	switch word >> 1 & 0x3FF {
	case 0:
		ins.Op = opFcmpu
	case 12:
		ins.Op = opFrsp
	case 15:
		ins.Op = opFctiwz
	case 38, 70:
		ins.Op = opNop // mtfsb1/mtfsb0
	case 40:
		ins.Op = opFneg
	case 72:
		ins.Op = opFmr
	case 136:
		ins.Op = opFnabs
	case 264:
		ins.Op = opFabs
	case 583:
		ins.Op = opMffs
	case 711:
		ins.Op = opMtfsf
	default:
		return ins, false
	}
	return ins, true
}

func decodePaired(word uint32, ins Instr) (Instr, bool) {
	switch word >> 1 & 0x1F {
	case 18:
		ins.Op = opPsDiv
		return ins, true
	case 20:
		ins.Op = opPsSub
		return ins, true
	case 21:
		ins.Op = opPsAdd
		return ins, true
	case 25:
		ins.Op = opPsMul
		return ins, true
	}
	switch word >> 1 & 0x3FF {
	case 72:
		ins.Op = opPsMr
	case 528:
		ins.Op = opPsMerge00
	case 560:
		ins.Op = opPsMerge01
	case 592:
		ins.Op = opPsMerge10
	case 624:
		ins.Op = opPsMerge11
	default:
		return ins, false
	}
	return ins, true
}

func decodePsq(word uint32, ins Instr) (Instr, bool) {
	// psq loads and stores carry a 12-bit displacement plus the W flag and
	// quantisation register index.
	d := word & 0xFFF
	if d&0x800 != 0 {
		d |= 0xFFFF_F000
	}
	ins.SIMM = int32(d)
	ins.W = word&0x8000 != 0
	ins.GQRI = uint8(word >> 12 & 7)
	switch word >> 26 {
	case 56:
		ins.Op = opPsqL
	case 57:
		ins.Op = opPsqLu
	case 60:
		ins.Op = opPsqSt
	case 61:
		ins.Op = opPsqStu
	}
	return ins, true
}

// instrCycles is the worst-case cycle cost charged per instruction. The
// model is coarse: what matters is that blocks accumulate a monotonic,
// deterministic cost the scheduler can budget against.
func instrCycles(op ppcOp) Cycles {
	switch op {
	case opMullw, opMulhw, opMulhwu, opMulli:
		return 3
	case opDivw, opDivwu:
		return 19
	case opFdiv, opFdivs, opPsDiv:
		return 17
	case opLmw, opStmw:
		return 8
	case opLbz, opLbzu, opLbzux, opLbzx,
		opLha, opLhau, opLhaux, opLhax,
		opLhz, opLhzu, opLhzux, opLhzx,
		opLwz, opLwzu, opLwzux, opLwzx, opLwarx, opLwbrx,
		opStb, opStbu, opStbux, opStbx,
		opSth, opSthu, opSthux, opSthx,
		opStw, opStwu, opStwux, opStwx, opStwcx, opStwbrx,
		opLfd, opLfdu, opLfs, opLfsu,
		opStfd, opStfdu, opStfs, opStfsu,
		opPsqL, opPsqLu, opPsqSt, opPsqStu:
		return 2
	}
	return 1
}
