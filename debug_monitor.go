// debug_monitor.go - Interactive machine monitor on the controlling terminal

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
debug_monitor.go - Machine monitor

A line-oriented monitor on the controlling terminal: inspect registers and
memory, disassemble, single step, manage breakpoints, resume. Stepping and
inspection only touch the machine while the runner is paused.
*/

package main

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/term"
)

type Monitor struct {
	runner *Runner
	bps    map[uint32]bool
	lastPC uint32
}

func NewMonitor(r *Runner) *Monitor {
	m := &Monitor{runner: r, bps: make(map[uint32]bool)}
	r.OnBreak = func(pc uint32) {
		fmt.Printf("\r\nbreakpoint at %08x\r\n", pc)
	}
	return m
}

// Run owns the terminal until the user quits. Returns on "quit" or EOF.
func (mon *Monitor) Run() {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		fmt.Println("monitor: stdin is not a terminal")
		return
	}
	oldState, err := term.MakeRaw(fd)
	if err != nil {
		fmt.Printf("monitor: %v\n", err)
		return
	}
	defer term.Restore(fd, oldState)

	t := term.NewTerminal(os.Stdin, "lazuli> ")
	fmt.Print("lazuli monitor, 'help' for commands\r\n")

	for {
		line, err := t.ReadLine()
		if err != nil {
			return
		}
		if !mon.dispatch(strings.Fields(line)) {
			return
		}
	}
}

func (mon *Monitor) dispatch(args []string) bool {
	if len(args) == 0 {
		return true
	}
	switch args[0] {
	case "help", "?":
		fmt.Print("regs  step [n]  go  stop  break <addr>  del <addr>  bl\r\n")
		fmt.Print("mem <addr> [len]  dis <addr> [n]  blocks  speed  quit\r\n")
	case "regs", "r":
		mon.withPaused(mon.showRegs)
	case "step", "s":
		n := 1
		if len(args) > 1 {
			n, _ = strconv.Atoi(args[1])
		}
		mon.withPaused(func(m *Machine) {
			for i := 0; i < n; i++ {
				if err := m.CPU.SingleStep(); err != nil {
					fmt.Printf("%v\r\n", err)
					break
				}
			}
			mon.showRegs(m)
		})
	case "go", "g":
		mon.runner.Resume()
	case "stop":
		mon.runner.Pause()
	case "break", "b":
		if addr, ok := parseAddr(args, 1); ok {
			mon.bps[addr] = true
			mon.syncBreakpoints()
		}
	case "del":
		if addr, ok := parseAddr(args, 1); ok {
			delete(mon.bps, addr)
			mon.syncBreakpoints()
		}
	case "bl":
		addrs := mon.sortedBps()
		for _, a := range addrs {
			fmt.Printf("  %08x\r\n", a)
		}
	case "mem", "m":
		if addr, ok := parseAddr(args, 1); ok {
			length := uint32(64)
			if v, ok := parseAddr(args, 2); ok {
				length = v
			}
			mon.withPaused(func(m *Machine) { dumpMem(m, addr, length) })
		}
	case "dis", "d":
		addr, ok := parseAddr(args, 1)
		if !ok {
			addr = mon.lastPC
		}
		n := uint32(16)
		if v, ok := parseAddr(args, 2); ok {
			n = v
		}
		mon.withPaused(func(m *Machine) {
			for i := uint32(0); i < n; i++ {
				a := addr + i*4
				word := m.Bus.Read32(a)
				fmt.Printf("  %08x: %08x  %s\r\n", a, word, DisasmWord(a, word))
			}
		})
	case "blocks":
		mon.withPaused(func(m *Machine) {
			fmt.Printf("  %d translated blocks cached\r\n", m.CPU.blocks.Len())
		})
	case "speed":
		fmt.Printf("  %.1f%% of full speed\r\n", mon.runner.Speed()/CORE_CLOCK*100)
	case "quit", "q":
		return false
	default:
		fmt.Printf("unknown command %q\r\n", args[0])
	}
	return true
}

func (mon *Monitor) withPaused(fn func(m *Machine)) {
	if !mon.runner.Paused() {
		fmt.Print("machine is running, 'stop' first\r\n")
		return
	}
	mon.runner.WithMachine(fn)
}

func (mon *Monitor) syncBreakpoints() {
	mon.runner.SetBreakpoints(mon.sortedBps())
}

func (mon *Monitor) sortedBps() []uint32 {
	addrs := make([]uint32, 0, len(mon.bps))
	for a := range mon.bps {
		addrs = append(addrs, a)
	}
	sort.Slice(addrs, func(i, j int) bool { return addrs[i] < addrs[j] })
	return addrs
}

func (mon *Monitor) showRegs(m *Machine) {
	c := m.CPU
	mon.lastPC = c.PC
	fmt.Printf("  pc=%08x lr=%08x ctr=%08x cr=%08x msr=%08x xer=%08x\r\n",
		c.PC, c.LR, c.CTR, c.CR, c.MSR, c.XER)
	if f := m.Bus.LastFault(); f != nil {
		fmt.Printf("  last fault: %v\r\n", f)
	}
	for i := 0; i < 32; i += 8 {
		fmt.Printf(" ")
		for j := i; j < i+8; j++ {
			fmt.Printf(" r%-2d=%08x", j, c.GPR[j])
		}
		fmt.Printf("\r\n")
	}
	word := m.Bus.Read32(c.PC)
	fmt.Printf("  next: %08x  %s\r\n", word, DisasmWord(c.PC, word))
}

func dumpMem(m *Machine, addr, length uint32) {
	for row := uint32(0); row < length; row += 16 {
		fmt.Printf("  %08x:", addr+row)
		ascii := make([]byte, 0, 16)
		for i := uint32(0); i < 16 && row+i < length; i++ {
			b := m.Bus.Read8(addr + row + i)
			fmt.Printf(" %02x", b)
			if b >= 0x20 && b < 0x7F {
				ascii = append(ascii, b)
			} else {
				ascii = append(ascii, '.')
			}
		}
		fmt.Printf("  %s\r\n", ascii)
	}
}

func parseAddr(args []string, i int) (uint32, bool) {
	if len(args) <= i {
		return 0, false
	}
	s := strings.TrimPrefix(strings.ToLower(args[i]), "0x")
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		fmt.Printf("bad address %q\r\n", args[i])
		return 0, false
	}
	return uint32(v), true
}
