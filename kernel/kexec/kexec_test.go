package kexec

import (
	"encoding/binary"
	"testing"

	"github.com/openeuler-mirror/summer2021-26/kernel"
)

// mockTopology points the core-capability hooks at fixed answers and
// returns a restore function for defer.
func mockTopology(possible int, secondaryBoot, hotplug bool) func() {
	origPossibleCoresFn := possibleCoresFn
	origCanSecondaryBootFn := canSecondaryBootFn
	origCanHotplugFn := canHotplugFn

	possibleCoresFn = func() int { return possible }
	canSecondaryBootFn = func() bool { return secondaryBoot }
	canHotplugFn = func() bool { return hotplug }

	return func() {
		possibleCoresFn = origPossibleCoresFn
		canSecondaryBootFn = origCanSecondaryBootFn
		canHotplugFn = origCanHotplugFn
	}
}

func dtbSegment(dest uint64) Segment {
	buf := make([]byte, 64)
	binary.BigEndian.PutUint32(buf, dtbMagic)
	return Segment{Buf: buf, Dest: dest, Size: uint64(len(buf))}
}

func kernelSegment(dest uint64) Segment {
	buf := make([]byte, 64)
	copy(buf, "not a device tree")
	return Segment{Buf: buf, Dest: dest, Size: uint64(len(buf))}
}

func TestPrepareBootArgsLocation(t *testing.T) {
	defer mockTopology(1, false, false)()

	origIsRegionMemoryFn := isRegionMemoryFn
	isRegionMemoryFn = func(base, size uint64) bool { return true }
	defer func() { isRegionMemoryFn = origIsRegionMemoryFn }()

	specs := []struct {
		desc        string
		segments    []Segment
		expBootArgs uint64
	}{
		{
			"defaults to the fixed offset from the entry point",
			[]Segment{kernelSegment(0x48000000)},
			0x48000000 - 0x8000 + 0x1000,
		},
		{
			"a device tree segment overrides the default",
			[]Segment{kernelSegment(0x48000000), dtbSegment(0x4a000000)},
			0x4a000000,
		},
		{
			"the last device tree segment wins",
			[]Segment{dtbSegment(0x4a000000), kernelSegment(0x48000000), dtbSegment(0x4c000000)},
			0x4c000000,
		},
	}

	for specIndex, spec := range specs {
		image := &Image{Segments: spec.segments, Start: 0x48000000}

		if err := Prepare(image); err != nil {
			t.Fatalf("[spec %d] %s: unexpected error: %v", specIndex, spec.desc, err)
		}
		if image.BootArgs != spec.expBootArgs {
			t.Errorf("[spec %d] %s: expected boot args at 0x%x; got 0x%x",
				specIndex, spec.desc, spec.expBootArgs, image.BootArgs)
		}
	}
}

func TestPrepareTopologyCheck(t *testing.T) {
	origIsRegionMemoryFn := isRegionMemoryFn
	isRegionMemoryFn = func(base, size uint64) bool { return true }
	defer func() { isRegionMemoryFn = origIsRegionMemoryFn }()

	specs := []struct {
		possible      int
		secondaryBoot bool
		hotplug       bool
		expErr        *kernel.Error
	}{
		{1, false, false, nil},
		{1, true, false, nil},
		{4, false, false, nil},
		{4, true, true, nil},
		// Secondaries can come up but cannot be taken back down.
		{4, true, false, ErrUnsupportedTopology},
		{2, true, false, ErrUnsupportedTopology},
	}

	for specIndex, spec := range specs {
		restore := mockTopology(spec.possible, spec.secondaryBoot, spec.hotplug)

		image := &Image{Segments: []Segment{kernelSegment(0x48000000)}, Start: 0x48000000}
		if err := Prepare(image); err != spec.expErr {
			t.Errorf("[spec %d] expected error %v; got %v", specIndex, spec.expErr, err)
		}

		restore()
	}
}

func TestPrepareSegmentValidation(t *testing.T) {
	defer mockTopology(1, false, false)()

	origIsRegionMemoryFn := isRegionMemoryFn
	isRegionMemoryFn = func(base, size uint64) bool {
		// RAM is [0x40000000, 0x80000000).
		return base >= 0x40000000 && base+size <= 0x80000000
	}
	defer func() { isRegionMemoryFn = origIsRegionMemoryFn }()

	specs := []struct {
		desc     string
		segments []Segment
		expErr   *kernel.Error
	}{
		{
			"segments inside RAM",
			[]Segment{kernelSegment(0x48000000), dtbSegment(0x4a000000)},
			nil,
		},
		{
			"destination below RAM",
			[]Segment{kernelSegment(0x1000)},
			ErrInvalidRegion,
		},
		{
			"destination straddles the end of RAM",
			[]Segment{{Buf: make([]byte, 64), Dest: 0x7fffffe0, Size: 0x64}},
			ErrInvalidRegion,
		},
		{
			"source too short to classify",
			[]Segment{{Buf: []byte{0xd0, 0x0d}, Dest: 0x48000000, Size: 2}},
			ErrInaccessibleSource,
		},
		{
			"nil source buffer",
			[]Segment{{Buf: nil, Dest: 0x48000000, Size: 64}},
			ErrInaccessibleSource,
		},
	}

	for specIndex, spec := range specs {
		image := &Image{Segments: spec.segments, Start: 0x48000000}
		if err := Prepare(image); err != spec.expErr {
			t.Errorf("[spec %d] %s: expected error %v; got %v", specIndex, spec.desc, spec.expErr, err)
		}
	}
}
