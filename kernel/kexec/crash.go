package kexec

import (
	"sync/atomic"
	"unsafe"

	"github.com/openeuler-mirror/summer2021-26/kernel/cpu"
	"github.com/openeuler-mirror/summer2021-26/kernel/irq"
	"github.com/openeuler-mirror/summer2021-26/kernel/kfmt"
)

// crashStopBudgetMillis bounds how long the crashing core waits for the
// other cores to stop. Forward progress towards capturing the crash is
// prioritized over waiting for uncooperative cores.
const crashStopBudgetMillis = 1000

var (
	// waitingForCrashStop counts the cores that have not yet completed
	// their stop sequence. Written by the crashing core, decremented by
	// each stopping core.
	waitingForCrashStop int32

	// crashStopIssued latches the stop broadcast so nested fault
	// contexts cannot trigger it twice.
	crashStopIssued uint32

	// Mocked by tests.
	onlineCoresFn     = cpu.OnlineCount
	signalCrashStopFn = cpu.SignalCrashStop
	delayMillisFn     = cpu.DelayMillis
	parkLoopFn        = cpu.ParkLoop
	cleanDCacheFn     = cpu.CleanDCacheRange
	maskExceptionsFn  = cpu.MaskExceptions
	maskAllIrqsFn     = irq.MaskAll
)

// crashNotes holds the final register snapshot of every core, written by
// each core exactly once during a crash transition and consumed by the
// dump kernel after the handoff.
var crashNotes struct {
	saved [cpu.MaxCores]bool
	regs  [cpu.MaxCores]irq.Regs
}

// SaveCoreRegisters records the final register snapshot of a core.
func SaveCoreRegisters(coreID int, regs *irq.Regs) {
	if coreID < 0 || coreID >= cpu.MaxCores {
		return
	}

	crashNotes.regs[coreID] = *regs
	crashNotes.saved[coreID] = true
}

// CoreCrashNote returns the recorded register snapshot for a core, if one
// was captured.
func CoreCrashNote(coreID int) (*irq.Regs, bool) {
	if coreID < 0 || coreID >= cpu.MaxCores || !crashNotes.saved[coreID] {
		return nil, false
	}
	return &crashNotes.regs[coreID], true
}

// CrashStopCores broadcasts a one-shot stop signal to every core except
// the caller and waits, with a bounded budget, for them to park. The
// barrier is best effort: on budget exhaustion a warning is logged and
// the caller proceeds with the transition in degraded form. The sequence
// runs at most once per boot even when invoked from nested fault
// contexts.
func CrashStopCores() {
	if !atomic.CompareAndSwapUint32(&crashStopIssued, 0, 1) {
		return
	}

	atomic.StoreInt32(&waitingForCrashStop, int32(onlineCoresFn()-1))
	signalCrashStopFn()

	for budget := crashStopBudgetMillis; budget > 0 && atomic.LoadInt32(&waitingForCrashStop) > 0; budget-- {
		delayMillisFn(1)
	}

	if atomic.LoadInt32(&waitingForCrashStop) > 0 {
		kfmt.Printf("[kexec] non-crashing cores did not react to the stop signal\n")
	}
}

// CrashStopCore runs on every non-crashing core in response to the stop
// signal: it captures the core's register snapshot, pushes it out of the
// data cache, marks the core permanently offline, reports completion on
// the countdown and enters the terminal park loop. It never returns
// control to any scheduler.
func CrashStopCore(coreID int, regs *irq.Regs) {
	kfmt.Printf("[kexec] core %d will stop doing anything useful since another core has crashed\n", coreID)

	SaveCoreRegisters(coreID, regs)
	if coreID >= 0 && coreID < cpu.MaxCores {
		cleanDCacheFn(uintptr(unsafe.Pointer(&crashNotes.regs[coreID])),
			unsafe.Sizeof(crashNotes.regs[coreID]))
	}

	// Ignore state machine complaints: on the crash path the core is
	// parked regardless of what state bookkeeping thinks it was in.
	cpu.BeginStop(coreID)
	cpu.Park(coreID)

	atomic.AddInt32(&waitingForCrashStop, -1)

	parkLoopFn()
}

// MachineCrashShutdown drives the degraded-consistency shutdown from the
// core that detected the fault: it masks exception delivery locally,
// stops the other cores, captures its own register snapshot and quiesces
// every interrupt line before the capture kernel is entered.
func MachineCrashShutdown(coreID int, regs *irq.Regs) {
	maskExceptionsFn()
	CrashStopCores()

	SaveCoreRegisters(coreID, regs)
	maskAllIrqsFn()

	kfmt.Printf("[kexec] loading crashdump kernel...\n")
}
