// disk_interface.go - Disc drive interface and image-backed reads

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
disk_interface.go - Disc drive interface

The drive accepts three-word commands and moves data by DMA into main
memory from a raw disc image. Reads complete asynchronously; completion
latches the transfer-complete interrupt, which reaches the CPU through the
processor interface when its mask bit allows.

Read offsets on the wire are in four-byte units, so the full dual-layer
address range fits in a 32-bit command word.
*/

package main

// DI register offsets.
const (
	DI_BASE    = MMIO_BASE + 0x6000
	DI_SR      = DI_BASE + 0x00
	DI_CVR     = DI_BASE + 0x04
	DI_CMDBUF0 = DI_BASE + 0x08
	DI_CMDBUF1 = DI_BASE + 0x0C
	DI_CMDBUF2 = DI_BASE + 0x10
	DI_MAR     = DI_BASE + 0x14
	DI_LENGTH  = DI_BASE + 0x18
	DI_CR      = DI_BASE + 0x1C
	DI_IMMBUF  = DI_BASE + 0x20
	DI_CFG     = DI_BASE + 0x24
	DI_END     = DI_BASE + 0xFF
)

// DISR bits. Interrupt status bits are write-one-to-clear.
const (
	DI_SR_BRKMASK = 1 << 0
	DI_SR_BRKINT  = 1 << 1
	DI_SR_TCMASK  = 1 << 2
	DI_SR_TCINT   = 1 << 3
	DI_SR_DEMASK  = 1 << 4
	DI_SR_DEINT   = 1 << 5
)

// DICR bits.
const (
	DI_CR_TSTART = 1 << 0
	DI_CR_DMA    = 1 << 1
)

// Drive commands.
const (
	DI_CMD_INQUIRY    = 0x12
	DI_CMD_READ       = 0xA8
	DI_CMD_SEEK       = 0xAB
	DI_CMD_REQ_ERROR  = 0xE0
	DI_CMD_STOP_MOTOR = 0xE3
)

// Read latency model: fixed seek cost plus a per-byte transfer cost.
const (
	DI_SEEK_CYCLES     = Cycles(20_000)
	DI_CYCLES_PER_BYTE = 16
)

type DiskInterface struct {
	status  uint32
	cover   uint32
	cmdbuf  [3]uint32
	dmaAddr uint32
	dmaLen  uint32
	control uint32
	immbuf  uint32

	disc []byte

	transfer *ScheduleEvent

	m *Machine
}

func NewDiskInterface(m *Machine) *DiskInterface {
	return &DiskInterface{m: m}
}

// SetDisc inserts a raw disc image. A nil image reads as an open cover.
func (di *DiskInterface) SetDisc(image []byte) {
	di.disc = image
	if image == nil {
		di.cover = 1
	} else {
		di.cover = 0
	}
}

func (di *DiskInterface) updateInterrupt() {
	pending := di.status&DI_SR_TCINT != 0 && di.status&DI_SR_TCMASK != 0 ||
		di.status&DI_SR_DEINT != 0 && di.status&DI_SR_DEMASK != 0 ||
		di.status&DI_SR_BRKINT != 0 && di.status&DI_SR_BRKMASK != 0
	if pending {
		di.m.PI.Assert(INT_DI)
	} else {
		di.m.PI.Clear(INT_DI)
	}
}

func (di *DiskInterface) readReg(addr uint32, width uint32) uint32 {
	switch addr {
	case DI_SR:
		return di.status
	case DI_CVR:
		return di.cover
	case DI_CMDBUF0, DI_CMDBUF1, DI_CMDBUF2:
		return di.cmdbuf[(addr-DI_CMDBUF0)/4]
	case DI_MAR:
		return di.dmaAddr
	case DI_LENGTH:
		return di.dmaLen
	case DI_CR:
		return di.control
	case DI_IMMBUF:
		return di.immbuf
	case DI_CFG:
		return 0x0000_0024
	}
	return 0
}

func (di *DiskInterface) writeReg(addr uint32, width uint32, value uint32) {
	switch addr {
	case DI_SR:
		mask := value & (DI_SR_BRKMASK | DI_SR_TCMASK | DI_SR_DEMASK)
		ack := value & (DI_SR_BRKINT | DI_SR_TCINT | DI_SR_DEINT)
		di.status = di.status&^(DI_SR_BRKMASK|DI_SR_TCMASK|DI_SR_DEMASK)&^ack | mask
		di.updateInterrupt()
	case DI_CVR:
		// Cover interrupt ack; the cover state itself is bit 0, read-only.
	case DI_CMDBUF0, DI_CMDBUF1, DI_CMDBUF2:
		di.cmdbuf[(addr-DI_CMDBUF0)/4] = value
	case DI_MAR:
		di.dmaAddr = value &^ 31
	case DI_LENGTH:
		di.dmaLen = value &^ 31
	case DI_CR:
		di.control = value
		if value&DI_CR_TSTART != 0 {
			di.startCommand()
		}
	case DI_IMMBUF:
		di.immbuf = value
	}
}

// startCommand dispatches the latched command buffer.
func (di *DiskInterface) startCommand() {
	cmd := di.cmdbuf[0] >> 24
	switch cmd {
	case DI_CMD_READ:
		offset := uint64(di.cmdbuf[1]) << 2
		length := di.dmaLen
		di.transfer = di.m.Sched.Schedule(
			DI_SEEK_CYCLES+Cycles(length)*DI_CYCLES_PER_BYTE,
			"di read", func(m *Machine) { m.DI.completeRead(offset, length) })

	case DI_CMD_INQUIRY:
		// Drive identification block lands at the DMA address.
		if dst, ok := di.m.Bus.Slice(di.dmaAddr, 32); ok {
			for i := range dst {
				dst[i] = 0
			}
			dst[0], dst[1] = 0x20, 0x02 // revision
			di.m.Bus.NotifyStore(Physical(di.dmaAddr), 32)
		}
		di.complete()

	case DI_CMD_REQ_ERROR:
		di.immbuf = 0
		di.complete()

	case DI_CMD_SEEK, DI_CMD_STOP_MOTOR:
		di.complete()

	default:
		di.status |= DI_SR_DEINT
		di.control &^= DI_CR_TSTART
		di.updateInterrupt()
	}
}

// completeRead copies from the disc image into main memory and latches the
// transfer-complete interrupt. Reads past the image report a drive error.
func (di *DiskInterface) completeRead(offset uint64, length uint32) {
	if di.disc == nil || offset+uint64(length) > uint64(len(di.disc)) {
		di.status |= DI_SR_DEINT
		di.control &^= DI_CR_TSTART
		di.updateInterrupt()
		return
	}
	if dst, ok := di.m.Bus.Slice(di.dmaAddr, length); ok {
		copy(dst, di.disc[offset:offset+uint64(length)])
		di.m.Bus.NotifyStore(Physical(di.dmaAddr), length)
	}
	di.complete()
}

func (di *DiskInterface) complete() {
	di.control &^= DI_CR_TSTART
	di.status |= DI_SR_TCINT
	di.updateInterrupt()
}

// MapRegisters wires the DI register block into the bus.
func (di *DiskInterface) MapRegisters(bus *MemoryBus) error {
	return bus.MapIO("di", DI_BASE, DI_END, di.readReg, di.writeReg)
}
