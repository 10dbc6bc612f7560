package kexec

import (
	"bytes"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/openeuler-mirror/summer2021-26/kernel/cpu"
	"github.com/openeuler-mirror/summer2021-26/kernel/irq"
	"github.com/openeuler-mirror/summer2021-26/kernel/kfmt"
)

func resetCrashState() {
	atomic.StoreUint32(&crashStopIssued, 0)
	atomic.StoreInt32(&waitingForCrashStop, 0)
	crashNotes.saved = [cpu.MaxCores]bool{}
}

// mockCrashHooks replaces every hardware touchpoint of the crash path
// with a recording fake and returns the recorder plus a restore function.
type crashRecorder struct {
	events      []string
	delayMillis int
	parkLoops   int
	dcacheCalls []uintptr
}

func mockCrashHooks(online int) (*crashRecorder, func()) {
	rec := &crashRecorder{}

	origOnlineCoresFn := onlineCoresFn
	origSignalCrashStopFn := signalCrashStopFn
	origDelayMillisFn := delayMillisFn
	origParkLoopFn := parkLoopFn
	origCleanDCacheFn := cleanDCacheFn
	origMaskExceptionsFn := maskExceptionsFn
	origMaskAllIrqsFn := maskAllIrqsFn

	onlineCoresFn = func() int { return online }
	signalCrashStopFn = func() { rec.events = append(rec.events, "signal") }
	delayMillisFn = func(millis int) { rec.delayMillis += millis }
	parkLoopFn = func() { rec.parkLoops++ }
	cleanDCacheFn = func(start, length uintptr) { rec.dcacheCalls = append(rec.dcacheCalls, length) }
	maskExceptionsFn = func() { rec.events = append(rec.events, "mask-exceptions") }
	maskAllIrqsFn = func() { rec.events = append(rec.events, "mask-irqs") }

	return rec, func() {
		onlineCoresFn = origOnlineCoresFn
		signalCrashStopFn = origSignalCrashStopFn
		delayMillisFn = origDelayMillisFn
		parkLoopFn = origParkLoopFn
		cleanDCacheFn = origCleanDCacheFn
		maskExceptionsFn = origMaskExceptionsFn
		maskAllIrqsFn = origMaskAllIrqsFn
	}
}

func captureOutput() (*bytes.Buffer, func()) {
	var buf bytes.Buffer
	orig := kfmt.GetOutputSink()
	kfmt.SetOutputSink(&buf)
	return &buf, func() { kfmt.SetOutputSink(orig) }
}

func TestCrashStopCoresCountdown(t *testing.T) {
	resetCrashState()
	rec, restore := mockCrashHooks(4)
	defer restore()
	buf, restoreSink := captureOutput()
	defer restoreSink()

	if err := cpu.SetupTopology(4, true, true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for id := 1; id < 4; id++ {
		cpu.SetOnline(id)
	}

	// The stop signal reaches every secondary, which runs its stop
	// sequence to completion before the coordinator starts polling.
	signalCrashStopFn = func() {
		rec.events = append(rec.events, "signal")
		for id := 1; id < 4; id++ {
			var regs irq.Regs
			regs.X[0] = uint64(id)
			CrashStopCore(id, &regs)
		}
	}

	CrashStopCores()

	if got := atomic.LoadInt32(&waitingForCrashStop); got != 0 {
		t.Errorf("expected the countdown to reach 0; got %d", got)
	}
	if rec.delayMillis != 0 {
		t.Errorf("expected no poll delay when all cores stop promptly; waited %dms", rec.delayMillis)
	}
	if rec.parkLoops != 3 {
		t.Errorf("expected 3 cores to enter the park loop; got %d", rec.parkLoops)
	}
	if strings.Contains(buf.String(), "did not react") {
		t.Error("expected no unresponsive-core warning")
	}

	for id := 1; id < 4; id++ {
		if got := cpu.CoreState(id); got != cpu.StateParked {
			t.Errorf("expected core %d to be %s; got %s", id, cpu.StateParked, got)
		}
		note, ok := CoreCrashNote(id)
		if !ok {
			t.Errorf("expected a crash note for core %d", id)
			continue
		}
		if note.X[0] != uint64(id) {
			t.Errorf("expected core %d note to carry its registers; got x0=%d", id, note.X[0])
		}
	}
	if len(rec.dcacheCalls) != 3 {
		t.Errorf("expected each note to be pushed out of the data cache; got %d cleans", len(rec.dcacheCalls))
	}
}

func TestCrashStopCoresBudgetExhausted(t *testing.T) {
	resetCrashState()
	rec, restore := mockCrashHooks(3)
	defer restore()
	buf, restoreSink := captureOutput()
	defer restoreSink()

	CrashStopCores()

	if rec.delayMillis != crashStopBudgetMillis {
		t.Errorf("expected the poll to burn the full %dms budget; waited %dms", crashStopBudgetMillis, rec.delayMillis)
	}
	if got := atomic.LoadInt32(&waitingForCrashStop); got != 2 {
		t.Errorf("expected 2 cores still outstanding; got %d", got)
	}
	if !strings.Contains(buf.String(), "did not react") {
		t.Error("expected an unresponsive-core warning")
	}
}

func TestCrashStopCoresRunsOnce(t *testing.T) {
	resetCrashState()
	rec, restore := mockCrashHooks(1)
	defer restore()

	CrashStopCores()
	CrashStopCores()

	signals := 0
	for _, ev := range rec.events {
		if ev == "signal" {
			signals++
		}
	}
	if signals != 1 {
		t.Errorf("expected the stop broadcast to fire exactly once; got %d", signals)
	}
}

func TestSaveCoreRegistersBounds(t *testing.T) {
	resetCrashState()

	var regs irq.Regs
	SaveCoreRegisters(-1, &regs)
	SaveCoreRegisters(cpu.MaxCores, &regs)

	if _, ok := CoreCrashNote(-1); ok {
		t.Error("expected no note for a negative core index")
	}
	if _, ok := CoreCrashNote(cpu.MaxCores); ok {
		t.Error("expected no note for an out-of-range core index")
	}
	if _, ok := CoreCrashNote(0); ok {
		t.Error("expected no note before any snapshot was saved")
	}
}

func TestMachineCrashShutdown(t *testing.T) {
	resetCrashState()
	rec, restore := mockCrashHooks(1)
	defer restore()
	buf, restoreSink := captureOutput()
	defer restoreSink()

	var regs irq.Regs
	regs.ELR = 0xffff000010080000
	MachineCrashShutdown(0, &regs)

	// Local exception delivery is masked before anything else, and the
	// interrupt lines are quiesced only after the other cores stopped.
	exp := []string{"mask-exceptions", "signal", "mask-irqs"}
	if len(rec.events) != len(exp) {
		t.Fatalf("expected events %v; got %v", exp, rec.events)
	}
	for i := range exp {
		if rec.events[i] != exp[i] {
			t.Fatalf("expected events %v; got %v", exp, rec.events)
		}
	}

	note, ok := CoreCrashNote(0)
	if !ok {
		t.Fatal("expected the crashing core to save its registers")
	}
	if note.ELR != regs.ELR {
		t.Errorf("expected the note to carry the faulting context; got ELR 0x%x", note.ELR)
	}

	if !strings.Contains(buf.String(), "loading crashdump kernel") {
		t.Error("expected the handoff announcement to be logged")
	}
}
