// Package irq tracks registered interrupt lines and implements the
// pre-handoff interrupt quiescing used by the kexec machinery.
package irq

import "github.com/openeuler-mirror/summer2021-26/kernel/kfmt"

// Regs contains a snapshot of the general purpose register values of a
// core at the moment an exception was taken.
type Regs struct {
	X    [31]uint64
	SP   uint64
	ELR  uint64
	SPSR uint64
}

// Print outputs a dump of the register values to the active console.
func (r *Regs) Print() {
	for i := 0; i < len(r.X)-1; i += 2 {
		kfmt.Printf("x%2d = %16x x%2d = %16x\n", i, r.X[i], i+1, r.X[i+1])
	}
	kfmt.Printf("x30 = %16x\n", r.X[30])
	kfmt.Printf("sp  = %16x elr = %16x\n", r.SP, r.ELR)
	kfmt.Printf("psr = %16x\n", r.SPSR)
}
