package kexec

import (
	"encoding/binary"
	"unsafe"

	"github.com/openeuler-mirror/summer2021-26/kernel"
	"github.com/openeuler-mirror/summer2021-26/kernel/cpu"
	"github.com/openeuler-mirror/summer2021-26/kernel/mem"
)

// The relocation routine is position independent and loads its operands
// from a parameter block placed at a fixed offset behind it inside the
// control page. The routine runs with the MMU off, so the parameters must
// be pushed to the point of coherency before the jump.
const (
	// paramsOffset is where the parameter block starts inside the
	// control page.
	paramsOffset = 0x40

	paramEntry       = paramsOffset
	paramIndirection = paramsOffset + 8
	paramPlatform    = paramsOffset + 16
	paramBootArgs    = paramsOffset + 24

	// stagedSize is the number of control page bytes in use after
	// staging: the routine plus the parameter block.
	stagedSize = paramsOffset + 32
)

// DefaultPlatformTag is the platform-type value handed to images booted
// with a device tree, following the convention that device-tree platforms
// report an all-ones machine type.
const DefaultPlatformTag uint64 = 0xffffffff

// relocateCode is the relocation routine: it picks up the transition
// parameters from the in-page parameter block and branches to the entry
// point with the boot arguments in x0, the platform tag in x1 and the
// indirection page in x2.
var relocateCode = [...]uint32{
	0x58000204, // 0x00: ldr x4, 0x40  (entry point)
	0x58000222, // 0x04: ldr x2, 0x48  (indirection page)
	0x58000241, // 0x08: ldr x1, 0x50  (platform tag)
	0x58000260, // 0x0c: ldr x0, 0x58  (boot arguments)
	0xaa1f03e3, // 0x10: mov x3, xzr
	0xd61f0080, // 0x14: br  x4
}

var (
	errControlPageTooSmall = &kernel.Error{Module: "kexec", Message: "control page cannot hold the relocation routine"}

	// Mocked by tests.
	icacheSyncFn  = cpu.SyncICacheRange
	dcacheCleanFn = cpu.CleanDCacheRange
)

// Stage copies the relocation routine into the image's control page and
// publishes the transition parameters. It returns the physical address
// execution must branch to.
//
// The parameters are published strictly after the code copy has been made
// instruction-cache coherent: the routine may begin executing arbitrarily
// soon after the jump, and it must not observe a half-staged page.
func Stage(image *Image) (uint64, *kernel.Error) {
	page := image.ControlPage
	if len(page) < stagedSize {
		return 0, errControlPageTooSmall
	}

	for i, word := range relocateCode {
		binary.LittleEndian.PutUint32(page[i*4:], word)
	}
	icacheSyncFn(uintptr(unsafe.Pointer(&page[0])), uintptr(len(relocateCode)*4))

	binary.LittleEndian.PutUint64(page[paramEntry:], image.Start)
	binary.LittleEndian.PutUint64(page[paramIndirection:], image.Head&^(uint64(mem.PageSize)-1))
	binary.LittleEndian.PutUint64(page[paramPlatform:], DefaultPlatformTag)
	binary.LittleEndian.PutUint64(page[paramBootArgs:], image.BootArgs)
	dcacheCleanFn(uintptr(unsafe.Pointer(&page[paramsOffset])), stagedSize-paramsOffset)

	return image.ControlPagePhys, nil
}
