// cpu_gekko_jit.go - Gekko block translator, cache and invalidation

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
cpu_gekko_jit.go - Block translation engine

Guest code is translated in straight-line blocks: decode once from the entry
address up to the first branch (or the configured instruction limit), cache
the decoded sequence keyed by entry address, and replay it on every
re-entry. Replay runs the same exec function as single stepping, so block
execution cannot drift from the reference interpreter.

Self-modifying code is handled through a page dependency index: every block
records which physical 4KB pages its instruction bytes overlap, and the
memory bus reports every main memory store here. A store that overlaps a
cached block throws the block away; the next entry recompiles from current
memory. icbi invalidates at its architectural 32-byte granularity.

Known block shapes are detected at build time so the run loop can burn idle
time without spinning:

    IdleBasic          a single branch-to-self
    IdleVolatileRead   load / compare / branch back, polling one location
    Call               a single branch-and-link
    MailboxStatusFunc  the canonical "read CPU mailbox status" helper

The first two let the CPU consume its whole cycle budget in one step; the
last two make the loop yield so other devices get their turn promptly.
*/

package main

// Code page granularity for store invalidation.
const (
	CODE_PAGE_SHIFT = 12
	CODE_PAGE_SIZE  = 1 << CODE_PAGE_SHIFT
)

type BlockPattern uint8

const (
	PatternNone BlockPattern = iota
	PatternCall
	PatternIdleBasic
	PatternIdleVolatileRead
	PatternMailboxStatusFunc
)

// Block is one translated straight-line run of instructions. Entry is the
// effective address the block was built at; Length covers its instruction
// bytes.
type Block struct {
	Entry     uint32
	Instrs    []Instr
	Length    uint32
	CycleCost Cycles
	Pattern   BlockPattern
}

// Executed reports what a call to Execute actually did.
type Executed struct {
	Instructions  uint64
	Cycles        Cycles
	HitBreakpoint bool
}

type BlockCache struct {
	cpu    *Gekko
	blocks map[uint32]*Block

	// pageDeps maps a physical code page index to the blocks whose bytes
	// overlap it. The bus store hook checks this on every RAM write, so
	// the empty-page case must stay a single map probe.
	pageDeps map[uint32][]*Block
}

func NewBlockCache(cpu *Gekko) *BlockCache {
	return &BlockCache{
		cpu:      cpu,
		blocks:   make(map[uint32]*Block),
		pageDeps: make(map[uint32][]*Block),
	}
}

// Len reports how many blocks are cached, for the monitor's statistics view.
func (bc *BlockCache) Len() int {
	return len(bc.blocks)
}

func (bc *BlockCache) physRange(b *Block) (uint32, uint32) {
	start := Physical(b.Entry)
	return start, start + b.Length
}

func (bc *BlockCache) insert(b *Block) {
	bc.blocks[b.Entry] = b
	start, end := bc.physRange(b)
	if start >= RAM_SIZE {
		// ROM-resident code cannot be overwritten, no deps needed.
		return
	}
	for page := start >> CODE_PAGE_SHIFT; page <= (end-1)>>CODE_PAGE_SHIFT; page++ {
		bc.pageDeps[page] = append(bc.pageDeps[page], b)
	}
}

func (bc *BlockCache) remove(b *Block) {
	delete(bc.blocks, b.Entry)
	start, end := bc.physRange(b)
	if start >= RAM_SIZE {
		return
	}
	for page := start >> CODE_PAGE_SHIFT; page <= (end-1)>>CODE_PAGE_SHIFT; page++ {
		deps := bc.pageDeps[page]
		for i, dep := range deps {
			if dep == b {
				deps[i] = deps[len(deps)-1]
				deps = deps[:len(deps)-1]
				break
			}
		}
		if len(deps) == 0 {
			delete(bc.pageDeps, page)
		} else {
			bc.pageDeps[page] = deps
		}
	}
}

// InvalidateRange throws away every block whose instruction bytes overlap
// the written physical range. Registered as the bus store hook.
func (bc *BlockCache) InvalidateRange(addr, length uint32) {
	if len(bc.pageDeps) == 0 {
		return
	}
	end := addr + length
	for page := addr >> CODE_PAGE_SHIFT; page <= (end-1)>>CODE_PAGE_SHIFT; page++ {
		deps, ok := bc.pageDeps[page]
		if !ok {
			continue
		}
		// remove mutates the deps slice, so collect victims first.
		var victims []*Block
		for _, b := range deps {
			bs, be := bc.physRange(b)
			if addr < be && end > bs {
				victims = append(victims, b)
			}
		}
		for _, b := range victims {
			bc.remove(b)
		}
	}
}

// InvalidateAll drops the whole cache. Used on reset.
func (bc *BlockCache) InvalidateAll() {
	bc.blocks = make(map[uint32]*Block)
	bc.pageDeps = make(map[uint32][]*Block)
}

// get returns the cached block at entry, building it on a miss. A nil block
// with a nil error means the entry address is not fetchable.
func (bc *BlockCache) get(entry uint32) (*Block, error) {
	if b, ok := bc.blocks[entry]; ok {
		return b, nil
	}
	b, err := bc.build(entry)
	if err != nil || b == nil {
		return nil, err
	}
	bc.insert(b)
	return b, nil
}

// endsBlock reports whether an instruction terminates a straight-line run.
func endsBlock(op ppcOp) bool {
	switch op {
	case opB, opBc, opBclr, opBcctr, opSc, opRfi, opIllegal:
		return true
	}
	return false
}

// build decodes a block starting at entry. An undecodable word is included
// as an illegal terminator so the Program exception fires during replay at
// the right address; a fetch failure on the first word returns a nil block,
// which the run loop turns into the guest ISI exception. Translation faults
// are reserved for host-side failures.
func (bc *BlockCache) build(entry uint32) (*Block, error) {
	if bc.cpu.instrPerBlock < 1 {
		return nil, &TranslationFault{Entry: entry, Reason: "instruction limit under 1"}
	}
	b := &Block{Entry: entry}
	addr := entry
	for len(b.Instrs) < bc.cpu.instrPerBlock {
		word, ok := bc.cpu.fetch32(addr)
		if !ok {
			if len(b.Instrs) == 0 {
				return nil, nil
			}
			break
		}
		ins, ok := Decode(addr, word)
		if !ok {
			ins = Instr{Op: opIllegal, Raw: word, Addr: addr}
		}
		b.Instrs = append(b.Instrs, ins)
		b.CycleCost += instrCycles(ins.Op)
		addr += 4
		if endsBlock(ins.Op) {
			break
		}
	}
	b.Length = uint32(len(b.Instrs)) * 4
	b.Pattern = detectPattern(b.Instrs)
	return b, nil
}

// detectPattern recognises the handful of block shapes the run loop treats
// specially. Matching is on decoded fields plus raw words for the branch
// displacements.
func detectPattern(instrs []Instr) BlockPattern {
	switch len(instrs) {
	case 1:
		if instrs[0].Raw == 0x4800_0000 {
			return PatternIdleBasic
		}
		if instrs[0].Op == opB && instrs[0].LK {
			return PatternCall
		}
	case 3:
		load := instrs[0].Op == opLwz || instrs[0].Op == opLhz || instrs[0].Op == opLbz
		cmp := instrs[1].Op == opCmpi || instrs[1].Op == opCmpli
		loop := instrs[2].Op == opBc && !instrs[2].LK && !instrs[2].AA && instrs[2].BD == -8
		if load && cmp && loop {
			return PatternIdleVolatileRead
		}
	case 4:
		// lis rN, 0xCC00 / lhz rN, 0x5000(rN) / rlwinm rN, rN, 17, 31, 31 / blr
		lis := instrs[0].Op == opAddis && instrs[0].RA == 0 && uint32(instrs[0].SIMM)&0xFFFF == 0xCC00
		lhz := instrs[1].Op == opLhz && instrs[1].SIMM == 0x5000
		rot := instrs[2].Op == opRlwinm && instrs[2].SH == 17 && instrs[2].MB == 31 && instrs[2].ME == 31
		ret := instrs[3].Op == opBclr && instrs[3].BO&0x14 == 0x14 && !instrs[3].LK
		if lis && lhz && rot && ret {
			return PatternMailboxStatusFunc
		}
	}
	return PatternNone
}

// runBlock replays a translated block, stopping at the first branch,
// exception or breakpoint. Returns what was executed and whether a
// breakpoint inside the block was reached.
func (c *Gekko) runBlock(b *Block, breakpoints []uint32) (uint64, Cycles, bool) {
	var instrs uint64
	var cycles Cycles
	for i := range b.Instrs {
		ins := &b.Instrs[i]
		if i > 0 && addrIn(breakpoints, ins.Addr) {
			c.PC = ins.Addr
			return instrs, cycles, true
		}
		res := c.exec(ins)
		instrs++
		cycles += instrCycles(ins.Op)
		switch res {
		case execNext:
			c.PC = ins.Addr + 4
		case execBranch, execException:
			return instrs, cycles, false
		}
	}
	return instrs, cycles, false
}

func addrIn(list []uint32, addr uint32) bool {
	for _, a := range list {
		if a == addr {
			return true
		}
	}
	return false
}

// Execute runs translated code until the cycle budget is exhausted, a
// breakpoint is reached, or an idle pattern lets the budget be consumed
// outright. Asynchronous exceptions are sampled at block boundaries only.
func (c *Gekko) Execute(budget Cycles, breakpoints []uint32) (Executed, error) {
	var ex Executed
	for ex.Cycles < budget {
		if addrIn(breakpoints, c.PC) {
			ex.HitBreakpoint = true
			return ex, nil
		}
		c.pendingException()

		block, err := c.blocks.get(c.PC)
		if err != nil {
			return ex, err
		}
		if block == nil {
			// The guest jumped into unmapped space. Deliver ISI and carry
			// on from the vector, charging a cycle so delivery from an
			// unmapped vector still drains the budget.
			c.raiseISI()
			c.tickTime(1)
			ex.Cycles++
			continue
		}

		instrs, cycles, brk := c.runBlock(block, breakpoints)
		ex.Instructions += instrs
		ex.Cycles += cycles
		c.tickTime(cycles)
		if brk {
			ex.HitBreakpoint = true
			return ex, nil
		}

		switch block.Pattern {
		case PatternIdleBasic, PatternIdleVolatileRead:
			// Still parked on the same loop: nothing the CPU does will
			// change the outcome before the next event, so burn the rest
			// of the budget in one step.
			if c.PC == block.Entry && ex.Cycles < budget {
				c.tickTime(budget - ex.Cycles)
				ex.Cycles = budget
			}
		case PatternCall, PatternMailboxStatusFunc:
			// Yield so mailbox traffic and device events interleave
			// tightly with call-heavy dispatch loops.
			return ex, nil
		}
	}
	return ex, nil
}

// SingleStep executes exactly one instruction through the decoder, outside
// the block cache. The monitor uses it for stepping; tests use it as the
// reference interpreter.
func (c *Gekko) SingleStep() error {
	c.pendingException()
	word, ok := c.fetch32(c.PC)
	if !ok {
		c.raiseISI()
		c.tickTime(1)
		return nil
	}
	ins, decoded := Decode(c.PC, word)
	if !decoded {
		ins = Instr{Op: opIllegal, Raw: word, Addr: c.PC}
	}
	if c.exec(&ins) == execNext {
		c.PC = ins.Addr + 4
	}
	c.tickTime(instrCycles(ins.Op))
	return nil
}
