package kfmt

import (
	"bytes"
	"errors"
	"testing"

	"github.com/openeuler-mirror/summer2021-26/kernel"
	"github.com/openeuler-mirror/summer2021-26/kernel/cpu"
)

func TestPanic(t *testing.T) {
	defer func() {
		cpuHaltFn = cpu.Halt
		SetOutputSink(nil)
	}()

	var cpuHaltCalled bool
	cpuHaltFn = func() {
		cpuHaltCalled = true
	}

	var buf bytes.Buffer
	SetOutputSink(&buf)

	specs := []struct {
		desc string
		err  interface{}
		exp  string
	}{
		{
			"with *kernel.Error",
			&kernel.Error{Module: "test", Message: "panic test"},
			"\n-----------------------------------\n[test] unrecoverable error: panic test\n*** kernel panic: system halted ***\n-----------------------------------\n",
		},
		{
			"with error",
			errors.New("go error"),
			"\n-----------------------------------\n[rt] unrecoverable error: go error\n*** kernel panic: system halted ***\n-----------------------------------\n",
		},
		{
			"with string",
			"string error",
			"\n-----------------------------------\n[rt] unrecoverable error: string error\n*** kernel panic: system halted ***\n-----------------------------------\n",
		},
		{
			"without error",
			nil,
			"\n-----------------------------------\n*** kernel panic: system halted ***\n-----------------------------------\n",
		},
	}

	for specIndex, spec := range specs {
		buf.Reset()
		cpuHaltCalled = false

		Panic(spec.err)

		if got := buf.String(); got != spec.exp {
			t.Errorf("[spec %d] %s: expected to get:\n%q\ngot:\n%q", specIndex, spec.desc, spec.exp, got)
		}

		if !cpuHaltCalled {
			t.Errorf("[spec %d] %s: expected cpu.Halt() to be called by Panic", specIndex, spec.desc)
		}
	}
}
