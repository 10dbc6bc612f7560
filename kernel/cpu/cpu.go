// Package cpu tracks the state of each execution core and exposes the
// small capability surface (counts, hotplug capabilities, signalling and
// the arch-level wait/cache/jump primitives) consumed by the kexec and
// early memory subsystems.
package cpu

import (
	"github.com/openeuler-mirror/summer2021-26/kernel"
)

// MaxCores defines the upper bound of cores the kernel can manage. Park
// and crash-note space is provisioned against this limit.
const MaxCores = 64

// State enumerates the lifecycle states of a single core. Parked is
// terminal: a parked core sits in a hardware wait loop and can never be
// observed in any other state again.
type State uint8

const (
	// StateOffline describes a core that is powered down or has been
	// taken down via hotplug.
	StateOffline State = iota

	// StateOnline describes a core that participates in scheduling.
	StateOnline

	// StateStopping describes a core that received a stop request and
	// is tearing itself down.
	StateStopping

	// StateParked describes a core that entered the terminal park loop
	// during a crash transition.
	StateParked
)

// String implements fmt.Stringer for State.
func (s State) String() string {
	switch s {
	case StateOffline:
		return "offline"
	case StateOnline:
		return "online"
	case StateStopping:
		return "stopping"
	case StateParked:
		return "parked"
	default:
		return "unknown"
	}
}

var (
	errBadCoreCount  = &kernel.Error{Module: "cpu", Message: "core count must be between 1 and MaxCores"}
	errBadCoreID     = &kernel.Error{Module: "cpu", Message: "core index out of range"}
	errCoreParked    = &kernel.Error{Module: "cpu", Message: "core is parked and cannot change state"}
	errBadTransition = &kernel.Error{Module: "cpu", Message: "invalid core state transition"}
)

// topology captures the fixed properties of the platform plus the dynamic
// per-core states. It is populated once during early boot and mutated only
// by the single core driving a shutdown or crash transition.
type topology struct {
	states        [MaxCores]State
	possible      int
	secondaryBoot bool
	hotplug       bool
}

var topo topology

// SetupTopology records the number of cores the platform can bring online
// together with its secondary-boot and hotplug capabilities. Core 0 is
// marked online; the remaining cores start offline until the platform
// brings them up.
func SetupTopology(possible int, secondaryBoot, hotplug bool) *kernel.Error {
	if possible < 1 || possible > MaxCores {
		return errBadCoreCount
	}

	topo = topology{
		possible:      possible,
		secondaryBoot: secondaryBoot,
		hotplug:       hotplug,
	}
	topo.states[0] = StateOnline
	return nil
}

// PossibleCount returns the number of cores the platform can bring online.
func PossibleCount() int {
	return topo.possible
}

// OnlineCount returns the number of cores currently online.
func OnlineCount() int {
	var count int
	for i := 0; i < topo.possible; i++ {
		if topo.states[i] == StateOnline {
			count++
		}
	}
	return count
}

// CanSecondaryBoot returns true if the platform can boot secondary cores.
func CanSecondaryBoot() bool {
	return topo.secondaryBoot
}

// CanHotplug returns true if the platform can take cores back offline on
// demand.
func CanHotplug() bool {
	return topo.hotplug
}

// CoreState returns the current state of the core with the given index.
func CoreState(id int) State {
	if id < 0 || id >= topo.possible {
		return StateOffline
	}
	return topo.states[id]
}

// SetOnline transitions an offline core to the online state. Parked cores
// are permanently unavailable and reject the transition.
func SetOnline(id int) *kernel.Error {
	return transition(id, StateOffline, StateOnline)
}

// BeginStop transitions an online core to the stopping state in response
// to a stop request.
func BeginStop(id int) *kernel.Error {
	return transition(id, StateOnline, StateStopping)
}

// MarkOffline completes a normal core teardown by transitioning a
// stopping core to the offline state.
func MarkOffline(id int) *kernel.Error {
	return transition(id, StateStopping, StateOffline)
}

// Park transitions a stopping core to the terminal parked state. The
// caller is expected to enter ParkLoop immediately afterwards.
func Park(id int) *kernel.Error {
	return transition(id, StateStopping, StateParked)
}

func transition(id int, from, to State) *kernel.Error {
	if id < 0 || id >= topo.possible {
		return errBadCoreID
	}

	switch topo.states[id] {
	case StateParked:
		return errCoreParked
	case from:
		topo.states[id] = to
		return nil
	default:
		return errBadTransition
	}
}

// SignalCrashStopFn is installed by the interrupt-controller driver and
// delivers a one-shot stop signal to every core except the caller. It is
// nil until a driver registers itself.
var SignalCrashStopFn func()

// SignalCrashStop broadcasts the crash-stop signal to all other cores.
// The signal is fire-and-forget: there is no acknowledgment beyond the
// countdown maintained by the crash coordinator.
func SignalCrashStop() {
	if SignalCrashStopFn != nil {
		SignalCrashStopFn()
	}
}

// TakeDownCoreFn is installed by the platform hotplug driver and pulls a
// single core offline on the normal (non-crash) shutdown path.
var TakeDownCoreFn func(id int) *kernel.Error

// ParkLoop places the calling core into an unbounded low-power wait. It
// never returns; the core can only leave this loop through a platform
// reset.
func ParkLoop() {
	for {
		Relax()
		WaitForEvent()
	}
}

// loopsPerMilli approximates the number of Relax iterations per
// millisecond. The busy-wait does not need to be precise: it bounds the
// crash-stop poll budget, where being off by a factor of two either way
// is harmless.
const loopsPerMilli = 100000

// DelayMillis busy-waits for approximately the requested number of
// milliseconds. It is safe to call with all other cores stopped and
// interrupts masked, where timer-based sleeping is unavailable.
func DelayMillis(millis int) {
	for i := 0; i < millis*loopsPerMilli; i++ {
		Relax()
	}
}
