package irq

import (
	"github.com/openeuler-mirror/summer2021-26/kernel"
	"github.com/openeuler-mirror/summer2021-26/kernel/kfmt"
)

// maxDescs bounds the number of interrupt lines the kernel can track.
const maxDescs = 256

// Private peripheral interrupt lines occupy a fixed band of hardware
// line numbers on the supported interrupt controllers.
const (
	ppiBandStart = 16
	ppiBandEnd   = 32
)

// Controller is the minimal capability every interrupt controller driver
// exposes: acknowledging a line. The optional capabilities below are
// discovered via type assertions.
type Controller interface {
	// Ack signals completion of the current interrupt on the line.
	Ack(line uint32)
}

// Masker is implemented by controllers that can mask individual lines.
type Masker interface {
	Mask(line uint32)
}

// Disabler is implemented by controllers that can disable individual
// lines.
type Disabler interface {
	Disable(line uint32)
}

// ActiveStater is implemented by controllers that can report whether a
// line is in the active-but-unacknowledged state.
type ActiveStater interface {
	ActiveState(line uint32) (bool, *kernel.Error)
}

// Desc describes one registered interrupt line.
type Desc struct {
	// Line is the logical line number used when talking to the chip.
	Line uint32

	// HWIrq is the hardware line number on the controller.
	HWIrq uint32

	// Chip is the controller the line is routed through. Lines whose
	// controller could not be resolved carry a nil Chip.
	Chip Controller

	// InProgress marks a line whose handler has been entered but has
	// not signalled completion.
	InProgress bool

	// Masked marks a line that delivery is currently masked for.
	Masked bool

	// Disabled marks a line that has been disabled.
	Disabled bool
}

var (
	errDescListFull = &kernel.Error{Module: "irq", Message: "interrupt descriptor list is full"}

	descs struct {
		count   int
		entries [maxDescs]Desc
	}
)

// Register adds a line to the descriptor registry. It is invoked by
// controller drivers while they probe their lines at boot.
func Register(desc Desc) *kernel.Error {
	if descs.count == maxDescs {
		return errDescListFull
	}

	descs.entries[descs.count] = desc
	descs.count++
	return nil
}

// ResetRegistry drops all registered descriptors; used when the
// controller topology is re-probed.
func ResetRegistry() {
	descs.count = 0
}

// VisitDescs invokes visitor for every registered line. Returning false
// aborts the walk.
func VisitDescs(visitor func(desc *Desc) bool) {
	for i := 0; i < descs.count; i++ {
		if !visitor(&descs.entries[i]) {
			return
		}
	}
}

// MaskAll walks every registered interrupt line and quiesces it before a
// kernel-to-kernel handoff: pending private peripheral interrupts are
// acknowledged, in-progress lines are completed, and each line is masked
// and disabled to the extent the controller supports. Lines without a
// resolvable controller are skipped; this is advisory hygiene, so partial
// failure is acceptable and not reported upward.
func MaskAll() {
	for i := 0; i < descs.count; i++ {
		desc := &descs.entries[i]

		chip := desc.Chip
		if chip == nil {
			continue
		}

		// First try to clear any active-but-unacknowledged state.
		// Failing that, complete the interrupt.
		if desc.HWIrq >= ppiBandStart && desc.HWIrq < ppiBandEnd {
			if stater, ok := chip.(ActiveStater); ok {
				active, err := stater.ActiveState(desc.Line)
				switch {
				case err != nil:
					kfmt.Printf("[irq] get line %d active state failed: %s\n", desc.Line, err.Message)
				case active:
					chip.Ack(desc.Line)
				}
			}
		}

		if desc.InProgress {
			chip.Ack(desc.Line)
			desc.InProgress = false
		}

		if masker, ok := chip.(Masker); ok {
			masker.Mask(desc.Line)
			desc.Masked = true
		}

		if disabler, ok := chip.(Disabler); ok && !desc.Disabled {
			disabler.Disable(desc.Line)
			desc.Disabled = true
		}
	}
}
