// dsp_interface.go - Host side of the DSP: mailboxes, ARAM, DMA, accelerator

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
dsp_interface.go - DSP host interface

Everything the CPU sees of the audio subsystem lives here: the two
mailboxes, the DSP control register, auxiliary RAM with its DMA engine, and
the audio DMA that streams mixed samples out to the sound backend. The DSP
core side of the same registers comes in through the DspHardware interface.

Mailboxes are single-entry with a status bit in the high half: writing the
low half posts the mail, reading the low half consumes it. ARAM DMA does
not complete instantly; completion is an event roughly ten thousand cycles
out, and ucode handshakes depend on that gap.
*/

package main

// DSPI register offsets.
const (
	DSPI_BASE       = MMIO_BASE + 0x5000
	DSPI_CMB_HI     = DSPI_BASE + 0x00
	DSPI_CMB_LO     = DSPI_BASE + 0x02
	DSPI_DMB_HI     = DSPI_BASE + 0x04
	DSPI_DMB_LO     = DSPI_BASE + 0x06
	DSPI_CR         = DSPI_BASE + 0x0A
	DSPI_AR_SIZE    = DSPI_BASE + 0x12
	DSPI_AR_MODE    = DSPI_BASE + 0x16
	DSPI_AR_REFRESH = DSPI_BASE + 0x1A
	DSPI_AR_MMADDR  = DSPI_BASE + 0x20
	DSPI_AR_ARADDR  = DSPI_BASE + 0x24
	DSPI_AR_CNT     = DSPI_BASE + 0x28
	DSPI_AID_MADDR  = DSPI_BASE + 0x30
	DSPI_AID_LEN    = DSPI_BASE + 0x36
	DSPI_AID_LEFT   = DSPI_BASE + 0x3A
	DSPI_END        = DSPI_BASE + 0xFF
)

// DSP control register bits.
const (
	DSPCR_RES       = 1 << 0
	DSPCR_HALT      = 1 << 2
	DSPCR_AIDINT    = 1 << 3
	DSPCR_AIDINTMSK = 1 << 4
	DSPCR_ARINT     = 1 << 5
	DSPCR_ARINTMSK  = 1 << 6
	DSPCR_DSPINT    = 1 << 7
	DSPCR_DSPINTMSK = 1 << 8
	DSPCR_DMASTATE  = 1 << 9
	DSPCR_INIT      = 1 << 11
)

const (
	ARAM_SIZE = 16 << 20

	// Cycle delay between kicking an ARAM DMA and its completion
	// interrupt. Boot ucode handshakes rely on this not being zero.
	ARAM_DMA_CYCLES = Cycles(10_000)

	// Audio DMA runs at 32kHz stereo 16-bit from main memory.
	AID_SAMPLE_RATE = 32_000
)

// Accelerator coefficient registers, eight predictor pairs.
const DSP_HW_COEF = 0xFFA0

type mailbox struct {
	hi, lo uint16
	valid  bool
}

type DspInterface struct {
	Core *DspCore

	cpuMail mailbox // CPU to DSP
	dspMail mailbox // DSP to CPU
	control uint16

	aram []byte

	arMMAddr uint32
	arARAddr uint32
	arCount  uint32
	arEvent  *ScheduleEvent

	aidMAddr uint32
	aidLen   uint16
	aidLeft  uint16
	aidEvent *ScheduleEvent

	// Accelerator state.
	accFmt       uint16
	accStart     uint32
	accEnd       uint32
	accCur       uint32
	accPredScale uint16
	accYn1       int16
	accYn2       int16
	accGain      uint16
	accCoef      [16]int16

	// DSP-side DMA latch.
	dsMainAddr uint32
	dsDspAddr  uint16
	dsControl  uint16

	m *Machine
}

func NewDspInterface(m *Machine) *DspInterface {
	di := &DspInterface{
		aram: make([]byte, ARAM_SIZE),
		m:    m,
	}
	di.Core = NewDspCore(di)
	return di
}

// ARAM exposes auxiliary RAM for the disc loader and tests.
func (di *DspInterface) ARAM() []byte { return di.aram }

// updateInterrupt mirrors the masked DSPCR interrupt status into the PI.
func (di *DspInterface) updateInterrupt() {
	pending := di.control&DSPCR_AIDINT != 0 && di.control&DSPCR_AIDINTMSK != 0 ||
		di.control&DSPCR_ARINT != 0 && di.control&DSPCR_ARINTMSK != 0 ||
		di.control&DSPCR_DSPINT != 0 && di.control&DSPCR_DSPINTMSK != 0
	if pending {
		di.m.PI.Assert(INT_DSP)
	} else {
		di.m.PI.Clear(INT_DSP)
	}
}

// CPU-facing register access.

func (di *DspInterface) readReg(addr uint32, width uint32) uint32 {
	switch addr {
	case DSPI_CMB_HI:
		v := uint32(di.cpuMail.hi)
		if di.cpuMail.valid {
			v |= 0x8000
		}
		return v
	case DSPI_CMB_LO:
		return uint32(di.cpuMail.lo)
	case DSPI_DMB_HI:
		v := uint32(di.dspMail.hi)
		if di.dspMail.valid {
			v |= 0x8000
		}
		return v
	case DSPI_DMB_LO:
		di.dspMail.valid = false
		return uint32(di.dspMail.lo)
	case DSPI_CR:
		return uint32(di.control)
	case DSPI_AR_SIZE:
		return 0x0028 // 16MB expansion, no stack
	case DSPI_AR_MMADDR:
		return di.arMMAddr >> 16
	case DSPI_AR_MMADDR + 2:
		return di.arMMAddr & 0xFFFF
	case DSPI_AR_ARADDR:
		return di.arARAddr >> 16
	case DSPI_AR_ARADDR + 2:
		return di.arARAddr & 0xFFFF
	case DSPI_AID_LEN:
		return uint32(di.aidLen)
	case DSPI_AID_LEFT:
		return uint32(di.aidLeft)
	}
	return 0
}

func (di *DspInterface) writeReg(addr uint32, width uint32, value uint32) {
	switch addr {
	case DSPI_CMB_HI:
		di.cpuMail.hi = uint16(value)
	case DSPI_CMB_LO:
		di.cpuMail.lo = uint16(value)
		di.cpuMail.valid = true
		di.Core.Wake()
	case DSPI_CR:
		di.writeControl(uint16(value))
	case DSPI_AR_MMADDR:
		di.arMMAddr = di.arMMAddr&0xFFFF | value<<16
	case DSPI_AR_MMADDR + 2:
		di.arMMAddr = di.arMMAddr&0xFFFF_0000 | value&0xFFFF
	case DSPI_AR_ARADDR:
		di.arARAddr = di.arARAddr&0xFFFF | value<<16
	case DSPI_AR_ARADDR + 2:
		di.arARAddr = di.arARAddr&0xFFFF_0000 | value&0xFFFF
	case DSPI_AR_CNT:
		di.arCount = di.arCount&0xFFFF | value<<16
	case DSPI_AR_CNT + 2:
		di.arCount = di.arCount&0xFFFF_0000 | value&0xFFFF
		di.startARAMDMA()
	case DSPI_AID_MADDR:
		di.aidMAddr = di.aidMAddr&0xFFFF | value<<16
	case DSPI_AID_MADDR + 2:
		di.aidMAddr = di.aidMAddr&0xFFFF_0000 | value&0xFFFF
	case DSPI_AID_LEN:
		di.aidLen = uint16(value)
		if di.aidLen&0x8000 != 0 {
			di.startAudioDMA()
		} else {
			di.m.Sched.Cancel(di.aidEvent)
		}
	}
}

func (di *DspInterface) writeControl(value uint16) {
	// Interrupt status bits are write-one-to-clear; the rest latch.
	clear := value & (DSPCR_AIDINT | DSPCR_ARINT | DSPCR_DSPINT)
	di.control = value&^(DSPCR_AIDINT|DSPCR_ARINT|DSPCR_DSPINT) | di.control&^clear&(DSPCR_AIDINT|DSPCR_ARINT|DSPCR_DSPINT)

	if value&DSPCR_RES != 0 {
		di.Core.Reset(di.control&DSPCR_INIT == 0)
		di.control &^= DSPCR_RES
		di.cpuMail = mailbox{}
		di.dspMail = mailbox{}
	}
	di.updateInterrupt()
}

// startARAMDMA latches the transfer and schedules completion. Bit 31 of the
// count selects direction: clear moves main memory into ARAM.
func (di *DspInterface) startARAMDMA() {
	toARAM := di.arCount&0x8000_0000 == 0
	length := di.arCount & 0x03FF_FFE0
	mm := di.arMMAddr &^ 31
	ar := di.arARAddr &^ 31

	if ram, ok := di.m.Bus.Slice(mm, length); ok && ar+length <= ARAM_SIZE {
		if toARAM {
			copy(di.aram[ar:ar+length], ram)
		} else {
			copy(ram, di.aram[ar:ar+length])
			di.m.Bus.NotifyStore(Physical(mm), length)
		}
	}

	di.control |= DSPCR_DMASTATE
	di.arEvent = di.m.Sched.Schedule(ARAM_DMA_CYCLES, "aram dma", aramDMADone)
}

func aramDMADone(m *Machine) {
	di := m.DSP
	di.control &^= DSPCR_DMASTATE
	di.control |= DSPCR_ARINT
	di.updateInterrupt()
}

// startAudioDMA begins streaming 32-byte sample bursts from main memory to
// the sound backend at the audio clock rate.
func (di *DspInterface) startAudioDMA() {
	di.aidLeft = di.aidLen & 0x7FFF
	di.m.Sched.Cancel(di.aidEvent)
	di.aidEvent = di.m.Sched.Schedule(di.aidPeriod(), "audio dma", audioDMATick)
}

// aidPeriod is the core-cycle spacing of one 32-byte burst, eight stereo
// frames at the audio clock.
func (di *DspInterface) aidPeriod() Cycles {
	return Cycles(uint64(CORE_CLOCK) * 8 / AID_SAMPLE_RATE)
}

func audioDMATick(m *Machine) {
	di := m.DSP
	if di.aidLen&0x8000 == 0 {
		return
	}

	burst := di.aidMAddr + uint32(di.aidLen&0x7FFF-di.aidLeft)*32
	if src, ok := m.Bus.Slice(burst, 32); ok && m.audio != nil {
		samples := make([]float32, 16)
		for i := 0; i < 16; i++ {
			s := int16(uint16(src[2*i])<<8 | uint16(src[2*i+1]))
			samples[i] = float32(s) / 32768
		}
		m.audio.PushSamples(samples)
	}

	if di.aidLeft > 0 {
		di.aidLeft--
	}
	if di.aidLeft == 0 {
		di.aidLeft = di.aidLen & 0x7FFF
		di.control |= DSPCR_AIDINT
		di.updateInterrupt()
	}
	di.aidEvent = m.Sched.Schedule(di.aidPeriod(), "audio dma", audioDMATick)
}

// MapRegisters wires the DSPI block into the bus.
func (di *DspInterface) MapRegisters(bus *MemoryBus) error {
	return bus.MapIO("dsp", DSPI_BASE, DSPI_END, di.readReg, di.writeReg)
}

// DSP-facing hardware register access, the DspHardware implementation.

func (di *DspInterface) HwRead(addr uint16) uint16 {
	switch {
	case addr == DSP_HW_CMBH:
		v := di.cpuMail.hi
		if di.cpuMail.valid {
			v |= 0x8000
		}
		return v
	case addr == DSP_HW_CMBL:
		di.cpuMail.valid = false
		return di.cpuMail.lo
	case addr == DSP_HW_DMBH:
		v := di.dspMail.hi
		if di.dspMail.valid {
			v |= 0x8000
		}
		return v
	case addr == DSP_HW_DMBL:
		return di.dspMail.lo
	case addr == DSP_HW_ACDAT:
		return uint16(di.accelSample())
	case addr == DSP_HW_ACCAH:
		return uint16(di.accCur >> 16)
	case addr == DSP_HW_ACCAL:
		return uint16(di.accCur)
	case addr >= DSP_HW_COEF && addr < DSP_HW_COEF+16:
		return uint16(di.accCoef[addr-DSP_HW_COEF])
	}
	return 0
}

func (di *DspInterface) HwWrite(addr uint16, value uint16) {
	switch {
	case addr == DSP_HW_DMBH:
		di.dspMail.hi = value
	case addr == DSP_HW_DMBL:
		di.dspMail.lo = value
		di.dspMail.valid = true
		di.control |= DSPCR_DSPINT
		di.updateInterrupt()
	case addr == DSP_HW_DSMAH:
		di.dsMainAddr = di.dsMainAddr&0xFFFF | uint32(value)<<16
	case addr == DSP_HW_DSMAL:
		di.dsMainAddr = di.dsMainAddr&0xFFFF_0000 | uint32(value)
	case addr == DSP_HW_DSPA:
		di.dsDspAddr = value
	case addr == DSP_HW_DSCR:
		di.dsControl = value
	case addr == DSP_HW_DSBL:
		di.dspDMA(value)
	case addr == DSP_HW_ACFMT:
		di.accFmt = value
	case addr == DSP_HW_ACSAH:
		di.accStart = di.accStart&0xFFFF | uint32(value)<<16
	case addr == DSP_HW_ACSAL:
		di.accStart = di.accStart&0xFFFF_0000 | uint32(value)
	case addr == DSP_HW_ACEAH:
		di.accEnd = di.accEnd&0xFFFF | uint32(value)<<16
	case addr == DSP_HW_ACEAL:
		di.accEnd = di.accEnd&0xFFFF_0000 | uint32(value)
	case addr == DSP_HW_ACCAH:
		di.accCur = di.accCur&0xFFFF | uint32(value)<<16
	case addr == DSP_HW_ACCAL:
		di.accCur = di.accCur&0xFFFF_0000 | uint32(value)
	case addr == DSP_HW_ACCAL+1: // pred/scale
		di.accPredScale = value
	case addr == DSP_HW_ACCAL+2: // yn1
		di.accYn1 = int16(value)
	case addr == DSP_HW_ACCAL+3: // yn2
		di.accYn2 = int16(value)
	case addr == 0xFFDE: // gain
		di.accGain = value
	case addr >= DSP_HW_COEF && addr < DSP_HW_COEF+16:
		di.accCoef[addr-DSP_HW_COEF] = int16(value)
	}
}

// dspDMA moves length bytes between main memory and DSP instruction or data
// RAM. DSP-side DMA completes immediately; only ARAM transfers carry a
// latency model.
func (di *DspInterface) dspDMA(length uint16) {
	words := int(length) / 2
	toDSP := di.dsControl&1 == 0
	imem := di.dsControl&2 != 0

	var mem []uint16
	if imem {
		mem = di.Core.IRAM()
	} else {
		mem = di.Core.DRAM()
	}
	base := int(di.dsDspAddr)
	if base+words > len(mem) {
		words = len(mem) - base
	}

	ram, ok := di.m.Bus.Slice(di.dsMainAddr, uint32(words)*2)
	if !ok {
		return
	}
	if toDSP {
		for i := 0; i < words; i++ {
			mem[base+i] = uint16(ram[2*i])<<8 | uint16(ram[2*i+1])
		}
	} else {
		for i := 0; i < words; i++ {
			ram[2*i] = byte(mem[base+i] >> 8)
			ram[2*i+1] = byte(mem[base+i])
		}
		di.m.Bus.NotifyStore(Physical(di.dsMainAddr), uint32(words)*2)
	}
}

// accelSample produces the next sample from the accelerator. Format low
// bits select 4-bit ADPCM or raw 16-bit reads from ARAM; the current
// address counts nibbles in ADPCM mode and words otherwise.
func (di *DspInterface) accelSample() int16 {
	var out int16
	if di.accFmt&3 == 0 {
		out = di.adpcmSample()
		di.accCur++
	} else {
		a := di.accCur * 2
		if a+1 < ARAM_SIZE {
			out = int16(uint16(di.aram[a])<<8 | uint16(di.aram[a+1]))
		}
		di.accCur++
	}
	if di.accCur >= di.accEnd {
		di.accCur = di.accStart
	}
	return out
}

// adpcmSample decodes one 4-bit ADPCM nibble. Every sixteenth nibble pair
// starts a frame whose first byte is the predictor and scale header.
func (di *DspInterface) adpcmSample() int16 {
	if di.accCur&15 == 0 {
		if di.accCur/2 < ARAM_SIZE {
			di.accPredScale = uint16(di.aram[di.accCur/2])
		}
		di.accCur += 2
	}

	var nibble int16
	if di.accCur/2 < ARAM_SIZE {
		b := di.aram[di.accCur/2]
		if di.accCur&1 == 0 {
			nibble = int16(b >> 4)
		} else {
			nibble = int16(b & 0xF)
		}
	}
	if nibble >= 8 {
		nibble -= 16
	}

	pair := int(di.accPredScale>>4) & 7
	scale := uint(di.accPredScale & 0xF)
	cA := int32(di.accCoef[pair*2])
	cB := int32(di.accCoef[pair*2+1])

	acc := (cA*int32(di.accYn1)+cB*int32(di.accYn2)+1024)>>11 + int32(nibble)<<scale
	if acc > 0x7FFF {
		acc = 0x7FFF
	} else if acc < -0x8000 {
		acc = -0x8000
	}

	di.accYn2 = di.accYn1
	di.accYn1 = int16(acc)
	return int16(acc)
}
