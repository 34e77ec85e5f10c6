// video_interface_test.go - Field timing, display interrupts, scanout

/*
(c) 2025 - 2026 the lazuli authors
License: GPLv3 or later
*/

package main

import "testing"

type videoSinkStub struct {
	frames int
	pixels []byte
	w, h   int
}

func (s *videoSinkStub) Start() error { return nil }

func (s *videoSinkStub) Stop() {}

func (s *videoSinkStub) PresentFrame(pixels []byte, w, h int) {
	s.frames++
	s.pixels = append(s.pixels[:0], pixels...)
	s.w, s.h = w, h
}

func TestFramebufferAddrDecode(t *testing.T) {
	if got := framebufferAddr(0x0040_0000); got != 0x0040_0000 {
		t.Fatalf("plain encoding = %08x", got)
	}
	// Bit 28 set: the address field is in 32-byte units.
	if got := framebufferAddr(1<<28 | 0x0002_0000); got != 0x0040_0000 {
		t.Fatalf("shifted encoding = %08x", got)
	}
}

func TestFieldInterruptLatching(t *testing.T) {
	m := newTestMachine(t)

	// Arm display interrupt slot 0 and enable scanout.
	m.Bus.Write16(VI_DISPINT, VI_INT_ENABLE>>16)
	m.Bus.Write16(VI_DCR, VI_DCR_ENABLE)

	if dl, ok := m.Sched.NextDeadline(); !ok || dl != VI_FIELD_CYCLES {
		t.Fatalf("field event at %d, want %d", dl, VI_FIELD_CYCLES)
	}

	m.Sched.Advance(VI_FIELD_CYCLES)
	fireAllDue(t, m)

	if m.Bus.Read16(VI_DISPINT)&uint16(VI_INT_STATUS>>16) == 0 {
		t.Fatalf("slot status not latched by the field event")
	}
	if m.PI.cause&INT_VI == 0 {
		t.Fatalf("vi line not asserted")
	}
	if m.Bus.Read16(VI_VCOUNT) != 1 {
		t.Fatalf("vcount = %d after one field", m.Bus.Read16(VI_VCOUNT))
	}

	// Ack by writing the status half back with the bit low.
	m.Bus.Write16(VI_DISPINT, VI_INT_ENABLE>>16)
	if m.PI.cause&INT_VI != 0 {
		t.Fatalf("vi line still asserted after the ack")
	}

	// The event rearms itself while scanout is enabled.
	if dl, ok := m.Sched.NextDeadline(); !ok || dl != 2*VI_FIELD_CYCLES {
		t.Fatalf("next field at %d, want %d", dl, 2*VI_FIELD_CYCLES)
	}
}

func TestDisabledSlotNeverAsserts(t *testing.T) {
	m := newTestMachine(t)
	m.Bus.Write16(VI_DCR, VI_DCR_ENABLE)
	m.Sched.Advance(VI_FIELD_CYCLES)
	fireAllDue(t, m)
	if m.PI.cause&INT_VI != 0 {
		t.Fatalf("field asserted vi with every slot disabled")
	}
}

func TestScanoutConvertsYUYV(t *testing.T) {
	m := newTestMachine(t)
	sink := &videoSinkStub{}
	m.video = sink
	vi := m.VI

	fb := uint32(0x0040_0000)
	buf := mustSlice(t, m.Bus, fb, VI_DEFAULT_WIDTH*VI_DEFAULT_HEIGHT*2)
	// White in BT.601: luma 235, both chroma channels neutral.
	for i := 0; i < len(buf); i += 2 {
		buf[i] = 235
		buf[i+1] = 128
	}

	vi.topFB = fb
	vi.scanout(framebufferAddr(vi.topFB))

	if sink.frames != 1 || sink.w != VI_DEFAULT_WIDTH || sink.h != VI_DEFAULT_HEIGHT {
		t.Fatalf("frame = %dx%d count %d", sink.w, sink.h, sink.frames)
	}
	r, g, b, a := sink.pixels[0], sink.pixels[1], sink.pixels[2], sink.pixels[3]
	if r != 255 || g != 255 || b != 255 || a != 255 {
		t.Fatalf("white pixel = %d %d %d %d", r, g, b, a)
	}

	// Black: luma 16.
	for i := 0; i < len(buf); i += 2 {
		buf[i] = 16
	}
	vi.scanout(fb)
	r, g, b = sink.pixels[0], sink.pixels[1], sink.pixels[2]
	if r != 0 || g != 0 || b != 0 {
		t.Fatalf("black pixel = %d %d %d", r, g, b)
	}
}

func TestFieldAlternatesFramebuffers(t *testing.T) {
	m := newTestMachine(t)
	sink := &videoSinkStub{}
	m.video = sink
	vi := m.VI

	top := uint32(0x0040_0000)
	bot := uint32(0x0060_0000)
	topBuf := mustSlice(t, m.Bus, top, VI_DEFAULT_WIDTH*VI_DEFAULT_HEIGHT*2)
	botBuf := mustSlice(t, m.Bus, bot, VI_DEFAULT_WIDTH*VI_DEFAULT_HEIGHT*2)
	for i := 0; i < len(topBuf); i += 2 {
		topBuf[i], topBuf[i+1] = 235, 128 // white
		botBuf[i], botBuf[i+1] = 16, 128  // black
	}

	vi.topFB = top
	vi.botFB = bot
	m.Bus.Write16(VI_DCR, VI_DCR_ENABLE)

	m.Sched.Advance(VI_FIELD_CYCLES)
	fireAllDue(t, m)
	if sink.pixels[0] != 255 {
		t.Fatalf("first field did not scan the top framebuffer")
	}

	m.Sched.Advance(VI_FIELD_CYCLES)
	fireAllDue(t, m)
	if sink.pixels[0] != 0 {
		t.Fatalf("second field did not scan the bottom framebuffer")
	}
}

func TestFramebufferRegisterHalves(t *testing.T) {
	m := newTestMachine(t)
	m.Bus.Write16(VI_TFBL, 0x0012)
	m.Bus.Write16(VI_TFBL+2, 0x3450)
	if m.VI.topFB != 0x0012_3450 {
		t.Fatalf("tfbl = %08x", m.VI.topFB)
	}
	if m.Bus.Read16(VI_TFBL) != 0x0012 || m.Bus.Read16(VI_TFBL+2) != 0x3450 {
		t.Fatalf("tfbl halves read back wrong")
	}
}
