// faults.go - Hardware fault types for the lazuli execution core

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
faults.go - Hardware fault types

Every abnormal condition the execution core can encounter is expressed as one
of four fault values. MemFault is the guest-visible one: the CPU converts it
into a DSI exception and the offending program deals with it. The other three
indicate that the host-side machinery has gone wrong (an undecodable
instruction stream, a failed block build, or a corrupted event queue) and are
propagated out of the run loop as ordinary Go errors.
*/

package main

import "fmt"

// MemFault reports a guest memory access that no backing store or I/O region
// claimed. Addr is the faulting guest physical address.
type MemFault struct {
	Addr  uint32
	Size  uint32
	Write bool
}

func (f *MemFault) Error() string {
	kind := "read"
	if f.Write {
		kind = "write"
	}
	return fmt.Sprintf("unhandled %d-byte guest %s at 0x%08X", f.Size, kind, f.Addr)
}

// DecodeFault reports a word that does not decode to any known instruction
// or command. Unit names the decoder that rejected it ("gekko", "dsp", "cp").
type DecodeFault struct {
	Unit string
	Addr uint32
	Word uint32
}

func (f *DecodeFault) Error() string {
	return fmt.Sprintf("%s: cannot decode word 0x%08X at 0x%08X", f.Unit, f.Word, f.Addr)
}

// TranslationFault reports a failed block build at the given entry address.
type TranslationFault struct {
	Entry  uint32
	Reason string
}

func (f *TranslationFault) Error() string {
	return fmt.Sprintf("block build failed at 0x%08X: %s", f.Entry, f.Reason)
}

// ScheduleInconsistency reports an event popped off the queue long after its
// trigger cycle, which means the stepping loop and the queue disagree about
// the current time.
type ScheduleInconsistency struct {
	Name    string
	Trigger Cycles
	Now     Cycles
}

func (f *ScheduleInconsistency) Error() string {
	return fmt.Sprintf("event %q due at cycle %d popped at cycle %d", f.Name, f.Trigger, f.Now)
}
