// gpu_command.go - GPU command processor and FIFO drain

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
gpu_command.go - Command processor

The command processor consumes the opcode stream the CPU feeds through the
write-gather FIFO: internal register loads, transform unit loads, display
list calls and draw commands. Draws carry packed vertex data whose layout
is dictated by the current vertex configuration; decoding goes through the
compiled parser cache in gpu_vertex.go and yields DrawCommand values for
whatever sits downstream (the rasteriser is out of scope here, the monitor
and tests consume them directly).

A command is only consumed once every byte of it is available; a partial
command leaves the read pointer untouched until the CPU pushes more data.
Draining is deterministic: the same FIFO contents and register state always
produce the same commands.
*/

package main

import "log"

// CP register block.
const (
	CP_BASE       = MMIO_BASE + 0x0000
	CP_STATUS     = CP_BASE + 0x00
	CP_CONTROL    = CP_BASE + 0x02
	CP_CLEAR      = CP_BASE + 0x04
	CP_TOKEN      = CP_BASE + 0x0E
	CP_FIFO_LO    = CP_BASE + 0x20
	CP_FIFO_HI    = CP_BASE + 0x3A
	CP_END        = CP_BASE + 0xFF
)

// CP status bits.
const (
	CP_STATUS_OVERFLOW  = 1 << 0
	CP_STATUS_UNDERFLOW = 1 << 1
	CP_STATUS_READ_IDLE = 1 << 2
	CP_STATUS_CMD_IDLE  = 1 << 3
	CP_STATUS_BP_HIT    = 1 << 4
)

// CP control bits.
const (
	CP_CONTROL_READ_ENABLE = 1 << 0
	CP_CONTROL_IRQ_ENABLE  = 1 << 1
)

// Internal register indices loaded through the SetCP opcode.
const (
	CPREG_MATIDX_A     = 0x30
	CPREG_MATIDX_B     = 0x40
	CPREG_VCD_LO       = 0x50
	CPREG_VCD_HI       = 0x60
	CPREG_VAT_A        = 0x70
	CPREG_VAT_B        = 0x80
	CPREG_VAT_C        = 0x90
	CPREG_ARRAY_BASE   = 0xA0
	CPREG_ARRAY_STRIDE = 0xB0
)

// Opcode stream commands.
const (
	CP_OP_NOP           = 0x00
	CP_OP_SET_CP        = 0x08
	CP_OP_SET_XF        = 0x10
	CP_OP_IDX_XF_A      = 0x20
	CP_OP_IDX_XF_B      = 0x28
	CP_OP_IDX_XF_C      = 0x30
	CP_OP_IDX_XF_D      = 0x38
	CP_OP_CALL          = 0x40
	CP_OP_INVAL_VCACHE  = 0x48
	CP_OP_SET_BP        = 0x60
	CP_OP_DRAW          = 0x80
)

// Draw primitives, opcode high bits.
const (
	PRIM_QUADS     = 0x80
	PRIM_TRIANGLES = 0x90
	PRIM_TRISTRIP  = 0x98
	PRIM_TRIFAN    = 0xA0
	PRIM_LINES     = 0xA8
	PRIM_LINESTRIP = 0xB0
	PRIM_POINTS    = 0xB8
)

// DrawCommand is one decoded draw: primitive kind, the attribute table
// slot it was issued with, and the fully decoded vertices.
type DrawCommand struct {
	Primitive uint8
	VatIndex  uint8
	Vertices  []Vertex
}

// GpuFifo mirrors the hardware FIFO pointer set. End is the inclusive base
// of the last 32-byte block.
type GpuFifo struct {
	Base     uint32
	End      uint32
	WritePtr uint32
	ReadPtr  uint32
	HighMark uint32
	LowMark  uint32
}

// Count returns the readable byte count, accounting for wraparound.
func (f *GpuFifo) Count() uint32 {
	if f.WritePtr >= f.ReadPtr {
		return f.WritePtr - f.ReadPtr
	}
	size := f.End + 32 - f.Base
	return size - (f.ReadPtr - f.WritePtr)
}

// advance moves the read pointer forward with wraparound.
func (f *GpuFifo) advance(n uint32) {
	f.ReadPtr += n
	if f.ReadPtr > f.End+31 {
		f.ReadPtr = f.Base + (f.ReadPtr - (f.End + 32))
	}
}

// Cycles between drain bursts while the FIFO still holds data.
const CP_PROCESS_INTERVAL = Cycles(1000)

// Commands drained per process event before yielding.
const CP_DRAIN_BUDGET = 512

type CommandProcessor struct {
	Fifo GpuFifo

	regs    [0xC0]uint32
	xf      map[uint16]uint32
	arrays  VertexArrays
	parsers *ParserCache

	control uint32
	status  uint32
	token   uint16

	// Draws accumulates decoded draw commands until a consumer collects
	// them with TakeDraws.
	Draws []DrawCommand

	processEv *ScheduleEvent
	bus       *MemoryBus

	scratch []byte
}

func NewCommandProcessor(bus *MemoryBus) *CommandProcessor {
	cp := &CommandProcessor{
		xf:      make(map[uint16]uint32),
		parsers: NewParserCache(),
		bus:     bus,
	}
	cp.arrays.bus = bus
	return cp
}

// TakeDraws hands the accumulated draw commands to the caller and clears
// the queue.
func (cp *CommandProcessor) TakeDraws() []DrawCommand {
	d := cp.Draws
	cp.Draws = nil
	return d
}

// SyncFromPI picks up the gather pipe's write pointer and kicks the drain
// loop. Called after every flushed burst.
func (cp *CommandProcessor) SyncFromPI(m *Machine) {
	cp.Fifo.WritePtr = m.PI.fifoWptr
	if cp.Fifo.Base == 0 {
		cp.Fifo.Base = m.PI.fifoBase
		cp.Fifo.End = m.PI.fifoEnd
		cp.Fifo.ReadPtr = m.PI.fifoBase
	}
	if cp.control&CP_CONTROL_IRQ_ENABLE != 0 && cp.Fifo.Count() > cp.Fifo.HighMark && cp.Fifo.HighMark != 0 {
		m.PI.Assert(INT_CP)
	}
	if cp.control&CP_CONTROL_READ_ENABLE != 0 && !cp.processEv.Pending() {
		cp.processEv = m.Sched.ScheduleNow("cp process", cpProcess)
	}
}

func cpProcess(m *Machine) {
	cp := m.CP
	if cp.control&CP_CONTROL_READ_ENABLE == 0 {
		return
	}
	if err := cp.Drain(CP_DRAIN_BUDGET); err != nil {
		log.Printf("cp: %v", err)
	}
	if cp.Fifo.Count() > 0 {
		cp.processEv = m.Sched.Schedule(CP_PROCESS_INTERVAL, "cp process", cpProcess)
	}
}

// peek copies the readable FIFO region, linearising any wraparound, so the
// command parser can work over a contiguous view.
func (cp *CommandProcessor) peek() []byte {
	count := cp.Fifo.Count()
	if count == 0 {
		return nil
	}
	if cap(cp.scratch) < int(count) {
		cp.scratch = make([]byte, count)
	}
	buf := cp.scratch[:count]

	first := count
	if cp.Fifo.ReadPtr+count > cp.Fifo.End+32 {
		first = cp.Fifo.End + 32 - cp.Fifo.ReadPtr
	}
	if src, ok := cp.bus.Slice(cp.Fifo.ReadPtr, first); ok {
		copy(buf, src)
	}
	if first < count {
		if src, ok := cp.bus.Slice(cp.Fifo.Base, count-first); ok {
			copy(buf[first:], src)
		}
	}
	return buf
}

// Drain decodes at most budget commands from the FIFO. Incomplete trailing
// commands stay in the FIFO. An unknown opcode empties the stream (there is
// no way to find the next command boundary) and reports a DecodeFault.
func (cp *CommandProcessor) Drain(budget int) error {
	buf := cp.peek()
	pos := 0
	for cmds := 0; cmds < budget && pos < len(buf); cmds++ {
		n, err := cp.command(buf[pos:])
		if err != nil {
			cp.Fifo.advance(uint32(len(buf)))
			return err
		}
		if n == 0 {
			break // incomplete command, wait for more data
		}
		pos += n
	}
	cp.Fifo.advance(uint32(pos))
	return nil
}

// command decodes one command from the head of buf. Returns bytes consumed,
// or 0 when buf holds only a prefix of the command.
func (cp *CommandProcessor) command(buf []byte) (int, error) {
	op := buf[0]
	switch {
	case op == CP_OP_NOP:
		return 1, nil

	case op == CP_OP_SET_CP:
		if len(buf) < 6 {
			return 0, nil
		}
		reg := buf[1]
		value := be32(buf[2:])
		cp.loadReg(reg, value)
		return 6, nil

	case op == CP_OP_SET_XF:
		if len(buf) < 5 {
			return 0, nil
		}
		header := be32(buf[1:])
		n := int(header>>16&0xF) + 1
		addr := uint16(header)
		if len(buf) < 5+4*n {
			return 0, nil
		}
		for i := 0; i < n; i++ {
			cp.xf[addr+uint16(i)] = be32(buf[5+4*i:])
		}
		return 5 + 4*n, nil

	case op == CP_OP_IDX_XF_A, op == CP_OP_IDX_XF_B, op == CP_OP_IDX_XF_C, op == CP_OP_IDX_XF_D:
		if len(buf) < 5 {
			return 0, nil
		}
		// Indexed transform loads pull from the array pointers; the
		// transform state itself is downstream of this core.
		return 5, nil

	case op == CP_OP_CALL:
		if len(buf) < 9 {
			return 0, nil
		}
		addr := be32(buf[1:])
		size := be32(buf[5:])
		if err := cp.call(addr, size); err != nil {
			return 0, err
		}
		return 9, nil

	case op == CP_OP_INVAL_VCACHE:
		return 1, nil

	case op == CP_OP_SET_BP:
		if len(buf) < 5 {
			return 0, nil
		}
		// Blending/environment state, consumed but not modelled.
		return 5, nil

	case op >= CP_OP_DRAW:
		if len(buf) < 3 {
			return 0, nil
		}
		count := int(be16(buf[1:]))
		vat := op & 7
		key := ParserKey{
			VCDLo: cp.regs[CPREG_VCD_LO],
			VCDHi: cp.regs[CPREG_VCD_HI],
			VatA:  cp.regs[CPREG_VAT_A+vat],
			VatB:  cp.regs[CPREG_VAT_B+vat],
			VatC:  cp.regs[CPREG_VAT_C+vat],
		}
		parser := cp.parsers.GetOrBuild(key)
		vertices, consumed, ok := parser.Parse(buf[3:], &cp.arrays, count)
		if !ok {
			return 0, nil
		}
		cp.Draws = append(cp.Draws, DrawCommand{
			Primitive: op & 0xF8,
			VatIndex:  vat,
			Vertices:  vertices,
		})
		return 3 + consumed, nil
	}

	return 0, &DecodeFault{Unit: "cp", Addr: cp.Fifo.ReadPtr, Word: uint32(op)}
}

// call executes a display list: the same command stream, read directly from
// memory instead of the FIFO. Incomplete commands inside a display list are
// malformed rather than pending.
func (cp *CommandProcessor) call(addr, size uint32) error {
	data, ok := cp.bus.Slice(addr, size)
	if !ok {
		return &DecodeFault{Unit: "cp", Addr: addr, Word: size}
	}
	pos := 0
	for pos < len(data) {
		n, err := cp.command(data[pos:])
		if err != nil {
			return err
		}
		if n == 0 {
			return &DecodeFault{Unit: "cp", Addr: addr + uint32(pos), Word: uint32(data[pos])}
		}
		pos += n
	}
	return nil
}

// loadReg handles a SetCP register load.
func (cp *CommandProcessor) loadReg(reg uint8, value uint32) {
	if int(reg) < len(cp.regs) {
		cp.regs[reg] = value
	}
	switch {
	case reg >= CPREG_ARRAY_BASE && reg < CPREG_ARRAY_BASE+ARRAY_COUNT:
		cp.arrays.Base[reg-CPREG_ARRAY_BASE] = value & 0x03FF_FFFF
	case reg >= CPREG_ARRAY_STRIDE && reg < CPREG_ARRAY_STRIDE+ARRAY_COUNT:
		cp.arrays.Stride[reg-CPREG_ARRAY_STRIDE] = value & 0xFF
	}
}

// MMIO register access. The pointer set is exposed as 16-bit lo/hi pairs.

func lo16(v uint32) uint32 { return v & 0xFFFF }
func hi16(v uint32) uint32 { return v >> 16 }

func setLo(dst *uint32, v uint32) { *dst = *dst&0xFFFF_0000 | v&0xFFFF }
func setHi(dst *uint32, v uint32) { *dst = *dst&0xFFFF | v<<16 }

func (cp *CommandProcessor) readReg(addr uint32, width uint32) uint32 {
	switch addr {
	case CP_STATUS:
		s := cp.status
		if cp.Fifo.Count() == 0 {
			s |= CP_STATUS_READ_IDLE | CP_STATUS_CMD_IDLE
		}
		return s
	case CP_CONTROL:
		return cp.control
	case CP_TOKEN:
		return uint32(cp.token)
	case CP_FIFO_LO + 0x00:
		return lo16(cp.Fifo.Base)
	case CP_BASE + 0x22:
		return hi16(cp.Fifo.Base)
	case CP_BASE + 0x24:
		return lo16(cp.Fifo.End)
	case CP_BASE + 0x26:
		return hi16(cp.Fifo.End)
	case CP_BASE + 0x28:
		return lo16(cp.Fifo.HighMark)
	case CP_BASE + 0x2A:
		return hi16(cp.Fifo.HighMark)
	case CP_BASE + 0x2C:
		return lo16(cp.Fifo.LowMark)
	case CP_BASE + 0x2E:
		return hi16(cp.Fifo.LowMark)
	case CP_BASE + 0x30:
		return lo16(cp.Fifo.Count())
	case CP_BASE + 0x32:
		return hi16(cp.Fifo.Count())
	case CP_BASE + 0x34:
		return lo16(cp.Fifo.WritePtr)
	case CP_BASE + 0x36:
		return hi16(cp.Fifo.WritePtr)
	case CP_BASE + 0x38:
		return lo16(cp.Fifo.ReadPtr)
	case CP_FIFO_HI:
		return hi16(cp.Fifo.ReadPtr)
	}
	return 0
}

func (cp *CommandProcessor) writeReg(addr uint32, width uint32, value uint32) {
	switch addr {
	case CP_CONTROL:
		cp.control = value
	case CP_CLEAR:
		cp.status &^= CP_STATUS_OVERFLOW | CP_STATUS_UNDERFLOW
	case CP_TOKEN:
		cp.token = uint16(value)
	case CP_FIFO_LO + 0x00:
		setLo(&cp.Fifo.Base, value)
	case CP_BASE + 0x22:
		setHi(&cp.Fifo.Base, value)
	case CP_BASE + 0x24:
		setLo(&cp.Fifo.End, value)
	case CP_BASE + 0x26:
		setHi(&cp.Fifo.End, value)
	case CP_BASE + 0x28:
		setLo(&cp.Fifo.HighMark, value)
	case CP_BASE + 0x2A:
		setHi(&cp.Fifo.HighMark, value)
	case CP_BASE + 0x2C:
		setLo(&cp.Fifo.LowMark, value)
	case CP_BASE + 0x2E:
		setHi(&cp.Fifo.LowMark, value)
	case CP_BASE + 0x34:
		setLo(&cp.Fifo.WritePtr, value)
	case CP_BASE + 0x36:
		setHi(&cp.Fifo.WritePtr, value)
	case CP_BASE + 0x38:
		setLo(&cp.Fifo.ReadPtr, value)
	case CP_FIFO_HI:
		setHi(&cp.Fifo.ReadPtr, value)
	}
}

// MapRegisters wires the CP register block into the bus.
func (cp *CommandProcessor) MapRegisters(bus *MemoryBus) error {
	return bus.MapIO("cp", CP_BASE, CP_END, cp.readReg, cp.writeReg)
}

func be16(b []byte) uint16 {
	return uint16(b[0])<<8 | uint16(b[1])
}

func be32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}
