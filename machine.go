// machine.go - Whole-machine assembly and the cooperative execution loop

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
machine.go - Machine assembly

One Machine owns every device and the single scheduler clock they share.
Execution is cooperative: the CPU runs in slices bounded by the next event
deadline, the clock advances by what the CPU actually consumed, the DSP
steps at its divided clock, and then every due event fires. Nothing runs
concurrently inside a slice, so device handlers never need locks.
*/

package main

// AudioSink consumes the 32kHz stereo stream the audio DMA produces. The
// oto backend plays it; the headless backend discards it.
type AudioSink interface {
	Start() error
	Stop()
	PushSamples(samples []float32)
}

// The DSP steps once for every six core cycles.
const DSP_CLOCK_DIVIDER = 6

type MachineConfig struct {
	// IPL is an optional boot ROM image mapped at the ROM window.
	IPL []byte
	// DOL is an executable to load directly, bypassing the ROM.
	DOL []byte
	// Disc is a raw disc image for the drive.
	Disc []byte

	Video VideoSink
	Audio AudioSink
}

type Machine struct {
	Bus   *MemoryBus
	Sched *Scheduler
	CPU   *Gekko
	PI    *InterruptFabric
	CP    *CommandProcessor
	DSP   *DspInterface
	VI    *VideoInterface
	DI    *DiskInterface

	video VideoSink
	audio AudioSink

	// dspResidue carries core cycles not yet converted into DSP steps.
	dspResidue Cycles
}

func NewMachine(cfg MachineConfig) (*Machine, error) {
	m := &Machine{
		Bus:   NewMemoryBus(),
		Sched: NewScheduler(),
		video: cfg.Video,
		audio: cfg.Audio,
	}
	m.CPU = NewGekko(m.Bus, m.Sched)
	m.PI = NewInterruptFabric(m)
	m.CP = NewCommandProcessor(m.Bus)
	m.DSP = NewDspInterface(m)
	m.VI = NewVideoInterface(m)
	m.DI = NewDiskInterface(m)
	m.CPU.AttachInterrupts(m.PI)

	if err := m.CP.MapRegisters(m.Bus); err != nil {
		return nil, err
	}
	if err := m.VI.MapRegisters(m.Bus); err != nil {
		return nil, err
	}
	if err := m.PI.MapRegisters(m.Bus); err != nil {
		return nil, err
	}
	if err := m.DSP.MapRegisters(m.Bus); err != nil {
		return nil, err
	}
	if err := m.DI.MapRegisters(m.Bus); err != nil {
		return nil, err
	}
	m.Bus.Seal()

	if cfg.IPL != nil {
		m.Bus.LoadIPL(cfg.IPL)
	}
	m.DI.SetDisc(cfg.Disc)

	m.CPU.Reset()
	if cfg.DOL != nil {
		if err := BootDOL(m, cfg.DOL); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// stepDSP converts consumed core cycles into DSP instruction steps.
func (m *Machine) stepDSP(cycles Cycles) {
	m.dspResidue += cycles
	steps := int(m.dspResidue / DSP_CLOCK_DIVIDER)
	m.dspResidue %= DSP_CLOCK_DIVIDER
	if steps > 0 {
		m.DSP.Core.Step(steps)
	}
}

// fireDue runs every event whose trigger has been reached.
func (m *Machine) fireDue() error {
	for {
		ev, err := m.Sched.PopDue()
		if err != nil {
			return err
		}
		if ev == nil {
			return nil
		}
		ev.Fire(m)
	}
}

// Exec runs the machine for up to budget core cycles, slicing CPU execution
// against the event queue so no device event fires late. Returns early on a
// breakpoint or a fault.
func (m *Machine) Exec(budget Cycles, breakpoints []uint32) (Executed, error) {
	var total Executed
	for total.Cycles < budget {
		slice := budget - total.Cycles
		if deadline, ok := m.Sched.NextDeadline(); ok && deadline > m.Sched.Now() {
			if gap := deadline - m.Sched.Now(); gap < slice {
				slice = gap
			}
		}

		res, err := m.CPU.Execute(slice, breakpoints)
		total.Instructions += res.Instructions
		total.Cycles += res.Cycles
		m.Sched.Advance(res.Cycles)
		m.stepDSP(res.Cycles)

		if ferr := m.fireDue(); ferr != nil {
			return total, ferr
		}
		if err != nil {
			return total, err
		}
		if res.HitBreakpoint {
			total.HitBreakpoint = true
			return total, nil
		}
		if res.Cycles == 0 {
			// The CPU made no progress inside its slice (breakpoint at PC
			// resolved above, or an empty slice). Advance to the next
			// deadline so event-driven progress continues.
			if deadline, ok := m.Sched.NextDeadline(); ok && deadline > m.Sched.Now() {
				gap := deadline - m.Sched.Now()
				if total.Cycles+gap > budget {
					gap = budget - total.Cycles
				}
				m.Sched.Advance(gap)
				total.Cycles += gap
				m.stepDSP(gap)
				if ferr := m.fireDue(); ferr != nil {
					return total, ferr
				}
			} else {
				return total, nil
			}
		}
	}
	return total, nil
}
