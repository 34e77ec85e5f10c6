// interrupt_fabric.go - Processor interface: interrupt routing and FIFO gather port

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
interrupt_fabric.go - Processor interface

The processor interface fans fourteen device interrupt lines into the CPU's
single external interrupt, gated by a mask register. A line is "raised" when
its cause bit and its mask bit are both set; the CPU samples the OR of all
raised lines at block boundaries.

The same device also owns the write-gather pipe: CPU stores to the gather
port accumulate into 32-byte bursts which land in the GPU command FIFO in
main memory, with wraparound between the configured base and end pointers.
*/

package main

// Interrupt source bits, INTSR/INTMR layout.
const (
	INT_ERROR     = 1 << 0
	INT_RSW       = 1 << 1
	INT_DI        = 1 << 2
	INT_SI        = 1 << 3
	INT_EXI       = 1 << 4
	INT_AI        = 1 << 5
	INT_DSP       = 1 << 6
	INT_MEM       = 1 << 7
	INT_VI        = 1 << 8
	INT_PE_TOKEN  = 1 << 9
	INT_PE_FINISH = 1 << 10
	INT_CP        = 1 << 11
	INT_DEBUG     = 1 << 12
	INT_HSP       = 1 << 13
)

// PI register offsets within the device window.
const (
	PI_BASE       = MMIO_BASE + 0x3000
	PI_INTSR      = PI_BASE + 0x00
	PI_INTMR      = PI_BASE + 0x04
	PI_FIFO_BASE  = PI_BASE + 0x0C
	PI_FIFO_END   = PI_BASE + 0x10
	PI_FIFO_WPTR  = PI_BASE + 0x14
	PI_END        = PI_BASE + 0x2C
	GATHER_PORT   = MMIO_BASE + 0x8000
	GATHER_LEN    = 32
	GATHER_REGION = GATHER_PORT + 0xFF
)

type InterruptFabric struct {
	cause uint32
	mask  uint32

	fifoBase uint32
	fifoEnd  uint32
	fifoWptr uint32

	gather    [GATHER_LEN]byte
	gatherLen int

	m *Machine
}

func NewInterruptFabric(m *Machine) *InterruptFabric {
	return &InterruptFabric{m: m}
}

// Assert latches a device interrupt cause bit.
func (pi *InterruptFabric) Assert(src uint32) {
	pi.cause |= src
}

// Clear drops a device interrupt cause bit.
func (pi *InterruptFabric) Clear(src uint32) {
	pi.cause &^= src
}

// Raised returns the causes that are both active and unmasked. The CPU
// takes an external interrupt when this is non-zero and MSR[EE] is set.
func (pi *InterruptFabric) Raised() uint32 {
	return pi.cause & pi.mask
}

func (pi *InterruptFabric) readReg(addr uint32, width uint32) uint32 {
	switch addr {
	case PI_INTSR:
		return pi.cause
	case PI_INTMR:
		return pi.mask
	case PI_FIFO_BASE:
		return pi.fifoBase
	case PI_FIFO_END:
		return pi.fifoEnd
	case PI_FIFO_WPTR:
		return pi.fifoWptr
	}
	return 0
}

func (pi *InterruptFabric) writeReg(addr uint32, width uint32, value uint32) {
	switch addr {
	case PI_INTSR:
		// Write-one-to-clear for the latched error and reset lines; device
		// lines clear through their own status registers.
		pi.cause &^= value & (INT_ERROR | INT_RSW)
	case PI_INTMR:
		pi.mask = value & 0x3FFF
	case PI_FIFO_BASE:
		pi.fifoBase = value &^ 31
	case PI_FIFO_END:
		pi.fifoEnd = value &^ 31
	case PI_FIFO_WPTR:
		pi.fifoWptr = value &^ 31
	}
}

// gatherWrite accumulates CPU stores to the gather port. Each full 32-byte
// burst is flushed to the FIFO in main memory and handed to the command
// processor.
func (pi *InterruptFabric) gatherWrite(addr uint32, width uint32, value uint32) {
	for i := int(width) - 1; i >= 0; i-- {
		pi.gather[pi.gatherLen] = byte(value >> (8 * i))
		pi.gatherLen++
		if pi.gatherLen == GATHER_LEN {
			pi.flushBurst()
		}
	}
}

func (pi *InterruptFabric) flushBurst() {
	dst, ok := pi.m.Bus.Slice(pi.fifoWptr, GATHER_LEN)
	if ok {
		copy(dst, pi.gather[:])
		pi.m.Bus.NotifyStore(Physical(pi.fifoWptr), GATHER_LEN)
	}
	pi.gatherLen = 0

	pi.fifoWptr += GATHER_LEN
	if pi.fifoWptr > pi.fifoEnd {
		pi.fifoWptr = pi.fifoBase
	}
	pi.m.CP.SyncFromPI(pi.m)
}

// MapRegisters wires the PI register block and the gather port into the bus.
func (pi *InterruptFabric) MapRegisters(bus *MemoryBus) error {
	if err := bus.MapIO("pi", PI_BASE, PI_END, pi.readReg, pi.writeReg); err != nil {
		return err
	}
	return bus.MapIO("gather", GATHER_PORT, GATHER_REGION, nil, pi.gatherWrite)
}
