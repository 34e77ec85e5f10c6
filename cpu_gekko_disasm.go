// cpu_gekko_disasm.go - Disassembly for the monitor

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

package main

import "fmt"

// Mnemonics for the monitor's disassembly view. Operand rendering is by
// instruction shape, not per-op, so this table is just names.
var opNames = map[ppcOp]string{
	opAdd: "add", opAddc: "addc", opAdde: "adde", opAddi: "addi",
	opAddic: "addic", opAddicRC: "addic.", opAddis: "addis",
	opAddme: "addme", opAddze: "addze",
	opDivw: "divw", opDivwu: "divwu", opMulhw: "mulhw", opMulhwu: "mulhwu",
	opMulli: "mulli", opMullw: "mullw", opNeg: "neg",
	opSubf: "subf", opSubfc: "subfc", opSubfe: "subfe", opSubfic: "subfic",
	opSubfme: "subfme", opSubfze: "subfze",
	opAnd: "and", opAndc: "andc", opAndiRC: "andi.", opAndisRC: "andis.",
	opCntlzw: "cntlzw", opEqv: "eqv", opExtsb: "extsb", opExtsh: "extsh",
	opNand: "nand", opNor: "nor", opOr: "or", opOrc: "orc",
	opOri: "ori", opOris: "oris", opXor: "xor", opXori: "xori", opXoris: "xoris",
	opRlwimi: "rlwimi", opRlwinm: "rlwinm", opRlwnm: "rlwnm",
	opSlw: "slw", opSraw: "sraw", opSrawi: "srawi", opSrw: "srw",
	opCmp: "cmpw", opCmpi: "cmpwi", opCmpl: "cmplw", opCmpli: "cmplwi",
	opCrand: "crand", opCrandc: "crandc", opCreqv: "creqv", opCrnand: "crnand",
	opCrnor: "crnor", opCror: "cror", opCrorc: "crorc", opCrxor: "crxor",
	opMcrf: "mcrf", opMfcr: "mfcr", opMtcrf: "mtcrf",
	opB: "b", opBc: "bc", opBcctr: "bcctr", opBclr: "bclr",
	opLbz: "lbz", opLbzu: "lbzu", opLbzux: "lbzux", opLbzx: "lbzx",
	opLha: "lha", opLhau: "lhau", opLhaux: "lhaux", opLhax: "lhax",
	opLhz: "lhz", opLhzu: "lhzu", opLhzux: "lhzux", opLhzx: "lhzx",
	opLmw: "lmw", opLwarx: "lwarx", opLwbrx: "lwbrx",
	opLwz: "lwz", opLwzu: "lwzu", opLwzux: "lwzux", opLwzx: "lwzx",
	opStb: "stb", opStbu: "stbu", opStbux: "stbux", opStbx: "stbx",
	opSth: "sth", opSthu: "sthu", opSthux: "sthux", opSthx: "sthx",
	opStmw: "stmw", opStw: "stw", opStwbrx: "stwbrx", opStwcx: "stwcx.",
	opStwu: "stwu", opStwux: "stwux", opStwx: "stwx",
	opMfmsr: "mfmsr", opMfspr: "mfspr", opMftb: "mftb",
	opMtmsr: "mtmsr", opMtspr: "mtspr", opRfi: "rfi", opSc: "sc",
	opDcbz: "dcbz", opIcbi: "icbi", opIsync: "isync", opNop: "nop",
	opFabs: "fabs", opFadd: "fadd", opFadds: "fadds", opFcmpu: "fcmpu",
	opFctiwz: "fctiwz", opFdiv: "fdiv", opFdivs: "fdivs",
	opFmadd: "fmadd", opFmadds: "fmadds", opFmr: "fmr",
	opFmsub: "fmsub", opFmsubs: "fmsubs", opFmul: "fmul", opFmuls: "fmuls",
	opFnabs: "fnabs", opFneg: "fneg",
	opFnmadd: "fnmadd", opFnmadds: "fnmadds", opFnmsub: "fnmsub", opFnmsubs: "fnmsubs",
	opFrsp: "frsp", opFsub: "fsub", opFsubs: "fsubs",
	opLfd: "lfd", opLfdu: "lfdu", opLfs: "lfs", opLfsu: "lfsu",
	opMffs: "mffs", opMtfsf: "mtfsf",
	opStfd: "stfd", opStfdu: "stfdu", opStfs: "stfs", opStfsu: "stfsu",
	opPsAdd: "ps_add", opPsDiv: "ps_div",
	opPsMerge00: "ps_merge00", opPsMerge01: "ps_merge01",
	opPsMerge10: "ps_merge10", opPsMerge11: "ps_merge11",
	opPsMr: "ps_mr", opPsMul: "ps_mul", opPsSub: "ps_sub",
	opPsqL: "psq_l", opPsqLu: "psq_lu", opPsqSt: "psq_st", opPsqStu: "psq_stu",
}

// DisasmWord renders one instruction word for the monitor. Not a full
// assembler-grade printer; immediate forms, memory forms and branches get
// operands, everything else shows registers positionally.
func DisasmWord(addr, word uint32) string {
	ins, ok := Decode(addr, word)
	if !ok {
		return fmt.Sprintf(".long 0x%08x", word)
	}
	name := opNames[ins.Op]
	if name == "" {
		name = fmt.Sprintf(".long 0x%08x", word)
	}
	if ins.Rc && ins.Op != opStwcx {
		name += "."
	}

	switch ins.Op {
	case opB:
		target := uint32(ins.LI)
		if !ins.AA {
			target += addr
		}
		return fmt.Sprintf("%s%s 0x%08x", name, linkSuffix(ins.LK), target)
	case opBc:
		target := uint32(ins.BD)
		if !ins.AA {
			target += addr
		}
		return fmt.Sprintf("%s%s %d,%d,0x%08x", name, linkSuffix(ins.LK), ins.BO, ins.BI, target)
	case opBclr, opBcctr:
		return fmt.Sprintf("%s%s %d,%d", name, linkSuffix(ins.LK), ins.BO, ins.BI)
	case opSc, opRfi, opIsync, opNop:
		return name
	case opAddi, opAddic, opAddicRC, opAddis, opMulli, opSubfic:
		return fmt.Sprintf("%s r%d,r%d,%d", name, ins.RD, ins.RA, ins.SIMM)
	case opCmpi:
		return fmt.Sprintf("%s cr%d,r%d,%d", name, ins.CRFD, ins.RA, ins.SIMM)
	case opCmpli:
		return fmt.Sprintf("%s cr%d,r%d,%d", name, ins.CRFD, ins.RA, ins.UIMM)
	case opCmp, opCmpl:
		return fmt.Sprintf("%s cr%d,r%d,r%d", name, ins.CRFD, ins.RA, ins.RB)
	case opOri, opOris, opXori, opXoris, opAndiRC, opAndisRC:
		return fmt.Sprintf("%s r%d,r%d,0x%x", name, ins.RA, ins.RD, ins.UIMM)
	case opRlwinm, opRlwimi:
		return fmt.Sprintf("%s r%d,r%d,%d,%d,%d", name, ins.RA, ins.RD, ins.SH, ins.MB, ins.ME)
	case opSrawi:
		return fmt.Sprintf("%s r%d,r%d,%d", name, ins.RA, ins.RD, ins.SH)
	case opLbz, opLha, opLhz, opLwz, opLbzu, opLhau, opLhzu, opLwzu,
		opStb, opSth, opStw, opStbu, opSthu, opStwu, opLmw, opStmw:
		return fmt.Sprintf("%s r%d,%d(r%d)", name, ins.RD, ins.SIMM, ins.RA)
	case opLfs, opLfd, opLfsu, opLfdu, opStfs, opStfd, opStfsu, opStfdu:
		return fmt.Sprintf("%s f%d,%d(r%d)", name, ins.RD, ins.SIMM, ins.RA)
	case opPsqL, opPsqLu, opPsqSt, opPsqStu:
		return fmt.Sprintf("%s f%d,%d(r%d),%d,%d", name, ins.RD, ins.SIMM, ins.RA, boolBit(ins.W), ins.GQRI)
	case opMfspr:
		return fmt.Sprintf("%s r%d,%d", name, ins.RD, ins.SPR)
	case opMtspr:
		return fmt.Sprintf("%s %d,r%d", name, ins.SPR, ins.RD)
	case opMfmsr, opMfcr:
		return fmt.Sprintf("%s r%d", name, ins.RD)
	case opMtmsr:
		return fmt.Sprintf("%s r%d", name, ins.RD)
	case opDcbz, opIcbi:
		return fmt.Sprintf("%s r%d,r%d", name, ins.RA, ins.RB)
	case opNeg, opAddme, opAddze, opSubfme, opSubfze:
		return fmt.Sprintf("%s r%d,r%d", name, ins.RD, ins.RA)
	case opCntlzw, opExtsb, opExtsh:
		return fmt.Sprintf("%s r%d,r%d", name, ins.RA, ins.RD)
	}

	// Generic three-register rendering.
	return fmt.Sprintf("%s r%d,r%d,r%d", name, ins.RD, ins.RA, ins.RB)
}

func linkSuffix(lk bool) string {
	if lk {
		return "l"
	}
	return ""
}

func boolBit(b bool) int {
	if b {
		return 1
	}
	return 0
}
