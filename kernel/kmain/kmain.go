// Package kmain contains the kernel bootstrap sequence for the pieces
// implemented by this project: topology discovery, the early memory
// reservation pass and the hooks the kexec machinery depends on.
package kmain

import (
	"github.com/openeuler-mirror/summer2021-26/kernel"
	"github.com/openeuler-mirror/summer2021-26/kernel/cpu"
	"github.com/openeuler-mirror/summer2021-26/kernel/hal/bootinfo"
	"github.com/openeuler-mirror/summer2021-26/kernel/kfmt"
	"github.com/openeuler-mirror/summer2021-26/kernel/mem/earlymem"
)

var errKmainReturned = &kernel.Error{Module: "kmain", Message: "Kmain returned"}

// Kmain is the Go entry point invoked by the rt0 initialization code with
// the address of the boot record prepared by the loader.
//
// The ordering here is load-bearing: the reservation pass sizes the park
// region from the recorded topology, and every later boot stage must see
// the committed reservation set before allocating anything.
//
// Kmain is not expected to return. If it does, the rt0 code will halt the
// core.
//
//go:noinline
func Kmain(bootInfoPtr uintptr) {
	bootinfo.SetInfoPtr(bootInfoPtr)

	possible, secondaryBoot, hotplug := bootinfo.Topology()

	var err *kernel.Error
	if err = cpu.SetupTopology(possible, secondaryBoot, hotplug); err != nil {
		panic(err)
	} else if err = earlymem.Init(); err != nil {
		panic(err)
	}

	// Use kfmt.Panic instead of panic to prevent the compiler from
	// treating kfmt.Panic as dead-code and eliminating it.
	kfmt.Panic(errKmainReturned)
}
