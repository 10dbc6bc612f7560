// Package kexec implements the transfer of control from the running
// kernel to a freshly loaded replacement kernel image, both on the normal
// administrative path and on the degraded path taken after a fatal fault.
package kexec

import (
	"encoding/binary"

	"github.com/openeuler-mirror/summer2021-26/kernel"
	"github.com/openeuler-mirror/summer2021-26/kernel/cpu"
	"github.com/openeuler-mirror/summer2021-26/kernel/mem/memblock"
)

const (
	// imageLoadOffset is the boot protocol offset between the base of
	// the image and its entry point.
	imageLoadOffset = 0x8000

	// bootArgsOffset is the boot protocol offset between the base of
	// the image and the default boot argument location.
	bootArgsOffset = 0x1000

	// dtbMagic is the big-endian magic value at the head of a
	// flattened device tree blob.
	dtbMagic = 0xd00dfeed
)

// Errors reported by Prepare. Preparation failures are detected before
// any irreversible action: the transition simply does not proceed.
var (
	// ErrUnsupportedTopology is returned when the hardware can boot
	// secondary cores but the platform cannot take them back offline;
	// transitioning would leave those cores unmanageable mid-handoff.
	ErrUnsupportedTopology = &kernel.Error{Module: "kexec", Message: "platform cannot take secondary cores offline"}

	// ErrInvalidRegion is returned when a segment's destination range
	// is not contained in recognized RAM.
	ErrInvalidRegion = &kernel.Error{Module: "kexec", Message: "segment destination is not inside recognized RAM"}

	// ErrInaccessibleSource is returned when a segment's leading bytes
	// cannot be read.
	ErrInaccessibleSource = &kernel.Error{Module: "kexec", Message: "segment source bytes cannot be read"}
)

// Segment describes one unit of the image: a source buffer plus the
// physical destination range it will be copied to by the relocation
// routine.
type Segment struct {
	// Buf holds the segment payload supplied by the loader.
	Buf []byte

	// Dest is the physical address the payload is destined for.
	Dest uint64

	// Size is the length of the destination range in bytes.
	Size uint64
}

// Image describes a loaded replacement kernel. It is owned by the caller
// requesting a transition and treated as read-only here except for the
// boot-argument location computed by Prepare.
type Image struct {
	// Segments lists the image payload in load order.
	Segments []Segment

	// Start is the physical address of the image entry point.
	Start uint64

	// Head is the head of the indirection page list consumed by the
	// relocation routine.
	Head uint64

	// BootArgs is the physical address of the boot arguments handed to
	// the new image. Populated by Prepare.
	BootArgs uint64

	// ControlPage is the reserved page that hosts the relocation
	// routine during the handoff, with its physical base address.
	ControlPage     []byte
	ControlPagePhys uint64
}

var (
	// Mocked by tests.
	possibleCoresFn    = cpu.PossibleCount
	canSecondaryBootFn = cpu.CanSecondaryBoot
	canHotplugFn       = cpu.CanHotplug
	isRegionMemoryFn   = memblock.IsRegionMemory
)

// Prepare validates the image and computes the boot-argument location.
// It has no side effects beyond writing image.BootArgs; nothing is
// reserved or copied at this stage.
//
// The boot-argument location defaults to a fixed offset from the entry
// point. If any segment carries a device tree blob, the blob's base
// address is used instead; the last such segment wins.
func Prepare(image *Image) *kernel.Error {
	image.BootArgs = image.Start - imageLoadOffset + bootArgsOffset

	// If the hardware supports bringing up secondary cores then the
	// platform must also implement hotplug, or shutdown will not be
	// able to quiesce them for the handoff.
	if possibleCoresFn() > 1 && canSecondaryBootFn() && !canHotplugFn() {
		return ErrUnsupportedTopology
	}

	for i := range image.Segments {
		seg := &image.Segments[i]

		if !isRegionMemoryFn(seg.Dest, seg.Size) {
			return ErrInvalidRegion
		}

		if len(seg.Buf) < 4 {
			return ErrInaccessibleSource
		}

		if binary.BigEndian.Uint32(seg.Buf[:4]) == dtbMagic {
			image.BootArgs = seg.Dest
		}
	}

	return nil
}
