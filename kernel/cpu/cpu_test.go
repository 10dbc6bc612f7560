package cpu

import (
	"testing"

	"github.com/openeuler-mirror/summer2021-26/kernel"
)

func TestSetupTopology(t *testing.T) {
	specs := []struct {
		possible int
		expErr   *kernel.Error
	}{
		{1, nil},
		{4, nil},
		{MaxCores, nil},
		{0, errBadCoreCount},
		{-1, errBadCoreCount},
		{MaxCores + 1, errBadCoreCount},
	}

	for specIndex, spec := range specs {
		err := SetupTopology(spec.possible, true, false)
		if err != spec.expErr {
			t.Errorf("[spec %d] expected error %v; got %v", specIndex, spec.expErr, err)
			continue
		}
		if err != nil {
			continue
		}

		if got := PossibleCount(); got != spec.possible {
			t.Errorf("[spec %d] expected PossibleCount to return %d; got %d", specIndex, spec.possible, got)
		}
		if got := OnlineCount(); got != 1 {
			t.Errorf("[spec %d] expected only the boot core online; got %d", specIndex, got)
		}
		if got := CoreState(0); got != StateOnline {
			t.Errorf("[spec %d] expected core 0 to be %s; got %s", specIndex, StateOnline, got)
		}
		if !CanSecondaryBoot() || CanHotplug() {
			t.Errorf("[spec %d] capability flags not recorded", specIndex)
		}
	}
}

func TestCoreStateTransitions(t *testing.T) {
	if err := SetupTopology(4, true, true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Bring up the secondaries.
	for id := 1; id < 4; id++ {
		if err := SetOnline(id); err != nil {
			t.Fatalf("unexpected error bringing core %d online: %v", id, err)
		}
	}
	if got := OnlineCount(); got != 4 {
		t.Fatalf("expected 4 online cores; got %d", got)
	}

	// Normal teardown: online -> stopping -> offline.
	if err := BeginStop(1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := CoreState(1); got != StateStopping {
		t.Fatalf("expected core 1 to be %s; got %s", StateStopping, got)
	}
	if err := MarkOffline(1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := CoreState(1); got != StateOffline {
		t.Fatalf("expected core 1 to be %s; got %s", StateOffline, got)
	}

	// Crash teardown: online -> stopping -> parked.
	if err := BeginStop(2); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := Park(2); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := CoreState(2); got != StateParked {
		t.Fatalf("expected core 2 to be %s; got %s", StateParked, got)
	}
	if got := OnlineCount(); got != 2 {
		t.Fatalf("expected 2 online cores; got %d", got)
	}
}

func TestInvalidTransitions(t *testing.T) {
	if err := SetupTopology(4, true, true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	SetOnline(1)
	BeginStop(1)
	Park(1)

	specs := []struct {
		desc   string
		op     func() *kernel.Error
		expErr *kernel.Error
	}{
		{"SetOnline on an online core", func() *kernel.Error { return SetOnline(0) }, errBadTransition},
		{"BeginStop on an offline core", func() *kernel.Error { return BeginStop(2) }, errBadTransition},
		{"MarkOffline on an online core", func() *kernel.Error { return MarkOffline(0) }, errBadTransition},
		{"Park on an online core", func() *kernel.Error { return Park(0) }, errBadTransition},
		{"SetOnline on a parked core", func() *kernel.Error { return SetOnline(1) }, errCoreParked},
		{"BeginStop on a parked core", func() *kernel.Error { return BeginStop(1) }, errCoreParked},
		{"core index out of range", func() *kernel.Error { return SetOnline(4) }, errBadCoreID},
		{"negative core index", func() *kernel.Error { return BeginStop(-1) }, errBadCoreID},
	}

	for specIndex, spec := range specs {
		if err := spec.op(); err != spec.expErr {
			t.Errorf("[spec %d] %s: expected error %v; got %v", specIndex, spec.desc, spec.expErr, err)
		}
	}
}

func TestCoreStateOutOfRange(t *testing.T) {
	if err := SetupTopology(2, false, false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := CoreState(-1); got != StateOffline {
		t.Errorf("expected out-of-range lookup to report %s; got %s", StateOffline, got)
	}
	if got := CoreState(2); got != StateOffline {
		t.Errorf("expected out-of-range lookup to report %s; got %s", StateOffline, got)
	}
}

func TestSignalCrashStop(t *testing.T) {
	defer func() {
		SignalCrashStopFn = nil
	}()

	// Without a registered driver the broadcast is a no-op.
	SignalCrashStopFn = nil
	SignalCrashStop()

	fired := 0
	SignalCrashStopFn = func() {
		fired++
	}
	SignalCrashStop()
	if fired != 1 {
		t.Errorf("expected the registered driver to fire once; got %d", fired)
	}
}
