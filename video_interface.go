// video_interface.go - Video interface: framebuffer scanout and field timing

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
video_interface.go - Video interface

The video interface scans the external framebuffer out of main memory once
per field and drives the display interrupts games use for frame pacing.
The framebuffer is packed YUYV; scanout converts it to RGBA for whichever
video backend is attached.

Four display interrupt slots each carry an enable bit and a latched status
bit; status is cleared by writing the register with the status bit low.
Any enabled, latched slot asserts the VI line at the processor interface.
*/

package main

// VideoSink is where scanned-out frames go. The ebiten backend displays
// them; the headless backend counts them.
type VideoSink interface {
	Start() error
	Stop()
	PresentFrame(pixels []byte, width, height int)
}

// VI register offsets.
const (
	VI_BASE    = MMIO_BASE + 0x2000
	VI_VTR     = VI_BASE + 0x00
	VI_DCR     = VI_BASE + 0x02
	VI_TFBL    = VI_BASE + 0x1C
	VI_BFBL    = VI_BASE + 0x24
	VI_VCOUNT  = VI_BASE + 0x2C
	VI_DISPINT = VI_BASE + 0x30
	VI_HSW     = VI_BASE + 0x48
	VI_END     = VI_BASE + 0xFF
)

// Display configuration bits.
const (
	VI_DCR_ENABLE = 1 << 0
	VI_DCR_RESET  = 1 << 1
)

// Display interrupt register bits (32-bit view).
const (
	VI_INT_STATUS = 1 << 31
	VI_INT_ENABLE = 1 << 28
)

// NTSC field timing.
const (
	VI_FIELDS_PER_SECOND = 60
	VI_FIELD_CYCLES      = Cycles(CORE_CLOCK / VI_FIELDS_PER_SECOND)

	VI_DEFAULT_WIDTH  = 640
	VI_DEFAULT_HEIGHT = 480
)

type VideoInterface struct {
	config  uint16
	vtr     uint16
	topFB   uint32
	botFB   uint32
	dispInt [4]uint32
	vcount  uint16

	// bottomField alternates per field event for interlaced scanout.
	bottomField bool

	fieldEvent *ScheduleEvent
	rgba       []byte

	m *Machine
}

func NewVideoInterface(m *Machine) *VideoInterface {
	return &VideoInterface{m: m}
}

// framebufferAddr decodes a TFBL/BFBL register value. Bit 28 selects the
// shifted encoding where the address field is in 32-byte units.
func framebufferAddr(reg uint32) uint32 {
	if reg&(1<<28) != 0 {
		return reg << 5 & 0x1FFF_FFE0
	}
	return reg & 0x0FFF_FFFF
}

func (vi *VideoInterface) updateInterrupt() {
	for _, r := range vi.dispInt {
		if r&VI_INT_STATUS != 0 && r&VI_INT_ENABLE != 0 {
			vi.m.PI.Assert(INT_VI)
			return
		}
	}
	vi.m.PI.Clear(INT_VI)
}

func (vi *VideoInterface) readReg(addr uint32, width uint32) uint32 {
	switch {
	case addr == VI_VTR:
		return uint32(vi.vtr)
	case addr == VI_DCR:
		return uint32(vi.config)
	case addr == VI_TFBL:
		return vi.topFB >> 16
	case addr == VI_TFBL+2:
		return vi.topFB & 0xFFFF
	case addr == VI_BFBL:
		return vi.botFB >> 16
	case addr == VI_BFBL+2:
		return vi.botFB & 0xFFFF
	case addr == VI_VCOUNT:
		return uint32(vi.vcount)
	case addr >= VI_DISPINT && addr < VI_DISPINT+16:
		slot := (addr - VI_DISPINT) / 4
		if (addr-VI_DISPINT)&2 == 0 {
			return vi.dispInt[slot] >> 16
		}
		return vi.dispInt[slot] & 0xFFFF
	}
	return 0
}

func (vi *VideoInterface) writeReg(addr uint32, width uint32, value uint32) {
	switch {
	case addr == VI_VTR:
		vi.vtr = uint16(value)
	case addr == VI_DCR:
		wasEnabled := vi.config&VI_DCR_ENABLE != 0
		vi.config = uint16(value)
		if vi.config&VI_DCR_ENABLE != 0 && !wasEnabled {
			vi.startFieldTimer()
		}
	case addr == VI_TFBL:
		vi.topFB = vi.topFB&0xFFFF | value<<16
	case addr == VI_TFBL+2:
		vi.topFB = vi.topFB&0xFFFF_0000 | value&0xFFFF
	case addr == VI_BFBL:
		vi.botFB = vi.botFB&0xFFFF | value<<16
	case addr == VI_BFBL+2:
		vi.botFB = vi.botFB&0xFFFF_0000 | value&0xFFFF
	case addr >= VI_DISPINT && addr < VI_DISPINT+16:
		slot := (addr - VI_DISPINT) / 4
		r := vi.dispInt[slot]
		if (addr-VI_DISPINT)&2 == 0 {
			// Status lives in the high half; writing it low acks.
			r = r&0xFFFF | value<<16
		} else {
			r = r&0xFFFF_0000 | value&0xFFFF
		}
		vi.dispInt[slot] = r
		vi.updateInterrupt()
	}
}

func (vi *VideoInterface) startFieldTimer() {
	if !vi.fieldEvent.Pending() {
		vi.fieldEvent = vi.m.Sched.Schedule(VI_FIELD_CYCLES, "vi field", viField)
	}
}

// viField fires once per display field: latch the display interrupts, scan
// the framebuffer out to the backend, and rearm.
func viField(m *Machine) {
	vi := m.VI
	if vi.config&VI_DCR_ENABLE == 0 {
		return
	}

	vi.vcount++
	for i := range vi.dispInt {
		if vi.dispInt[i]&VI_INT_ENABLE != 0 {
			vi.dispInt[i] |= VI_INT_STATUS
		}
	}
	vi.updateInterrupt()

	fb := framebufferAddr(vi.topFB)
	if vi.bottomField && vi.botFB != 0 {
		fb = framebufferAddr(vi.botFB)
	}
	vi.bottomField = !vi.bottomField
	vi.scanout(fb)

	vi.fieldEvent = m.Sched.Schedule(VI_FIELD_CYCLES, "vi field", viField)
}

// scanout converts the packed YUYV framebuffer to RGBA and hands it to the
// backend. Conversion is BT.601 integer math, two pixels per macropixel.
func (vi *VideoInterface) scanout(fb uint32) {
	if vi.m.video == nil || fb == 0 {
		return
	}
	w, h := VI_DEFAULT_WIDTH, VI_DEFAULT_HEIGHT
	src, ok := vi.m.Bus.Slice(fb, uint32(w*h*2))
	if !ok {
		return
	}
	if len(vi.rgba) != w*h*4 {
		vi.rgba = make([]byte, w*h*4)
	}

	for i := 0; i < w*h/2; i++ {
		y0 := int32(src[4*i])
		u := int32(src[4*i+1]) - 128
		y1 := int32(src[4*i+2])
		v := int32(src[4*i+3]) - 128
		putYUV(vi.rgba[8*i:], y0, u, v)
		putYUV(vi.rgba[8*i+4:], y1, u, v)
	}
	vi.m.video.PresentFrame(vi.rgba, w, h)
}

func putYUV(dst []byte, y, u, v int32) {
	c := (y - 16) * 298
	dst[0] = clamp8((c + 409*v + 128) >> 8)
	dst[1] = clamp8((c - 100*u - 208*v + 128) >> 8)
	dst[2] = clamp8((c + 516*u + 128) >> 8)
	dst[3] = 0xFF
}

func clamp8(v int32) byte {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return byte(v)
}

// MapRegisters wires the VI register block into the bus.
func (vi *VideoInterface) MapRegisters(bus *MemoryBus) error {
	return bus.MapIO("vi", VI_BASE, VI_END, vi.readReg, vi.writeReg)
}
