package kexec

import (
	"github.com/openeuler-mirror/summer2021-26/kernel"
	"github.com/openeuler-mirror/summer2021-26/kernel/cpu"
	"github.com/openeuler-mirror/summer2021-26/kernel/kfmt"
)

var (
	errCoresStillOnline = &kernel.Error{Module: "kexec", Message: "more than one core online at the point of transition"}

	// ReinitFn is an optional machine-specific re-initialization hook
	// invoked right before the jump.
	ReinitFn func()

	// Mocked by tests.
	coreStateFn   = cpu.CoreState
	softRestartFn = cpu.SoftRestart
)

// MachineShutdown quiesces the machine on the normal (non-crash)
// transition path by taking every secondary core offline through the
// platform hotplug hook.
func MachineShutdown() *kernel.Error {
	for id := 1; id < possibleCoresFn(); id++ {
		if coreStateFn(id) != cpu.StateOnline {
			continue
		}

		if err := cpu.BeginStop(id); err != nil {
			return err
		}
		if cpu.TakeDownCoreFn != nil {
			if err := cpu.TakeDownCoreFn(id); err != nil {
				return err
			}
		}
		if err := cpu.MarkOffline(id); err != nil {
			return err
		}
	}

	return nil
}

// MachineKexec performs the final, irreversible control transfer into the
// prepared image. It never returns: either the staged relocation routine
// takes over or the system halts.
//
// Exactly one core may be online at this point. A violation means the
// shutdown path failed to honor the checks made at prepare time, and no
// recovery is possible: resuming with unknown core state is unsafe, so
// the system halts instead of attempting the jump.
func MachineKexec(image *Image) {
	if onlineCoresFn() > 1 {
		kfmt.Panic(errCoresStillOnline)
	}

	entry, err := Stage(image)
	if err != nil {
		kfmt.Panic(err)
	}

	kfmt.Printf("[kexec] Bye!\n")

	if ReinitFn != nil {
		ReinitFn()
	}

	softRestartFn(entry)
}
