package kfmt

import (
	"bytes"
	"io"
	"testing"
)

func TestRingBuffer(t *testing.T) {
	var rb ringBuffer

	t.Run("read after write", func(t *testing.T) {
		rb = ringBuffer{}
		rb.Write([]byte("hello"))

		var buf bytes.Buffer
		if _, err := io.Copy(&buf, &rb); err != nil {
			t.Fatal(err)
		}

		if got := buf.String(); got != "hello" {
			t.Fatalf("expected to read %q; got %q", "hello", got)
		}
	})

	t.Run("read empty buffer", func(t *testing.T) {
		rb = ringBuffer{}

		var p [16]byte
		if n, err := rb.Read(p[:]); n != 0 || err != io.EOF {
			t.Fatalf("expected (0, io.EOF); got (%d, %v)", n, err)
		}
	})

	t.Run("write wraps and evicts oldest data", func(t *testing.T) {
		rb = ringBuffer{}

		block := make([]byte, earlyBufSize-1)
		for i := range block {
			block[i] = 'a'
		}
		rb.Write(block)
		rb.Write([]byte("01234567"))

		var buf bytes.Buffer
		if _, err := io.Copy(&buf, &rb); err != nil {
			t.Fatal(err)
		}

		got := buf.String()
		if len(got) != earlyBufSize-1 {
			t.Fatalf("expected to read %d bytes; got %d", earlyBufSize-1, len(got))
		}
		if tail := got[len(got)-8:]; tail != "01234567" {
			t.Fatalf("expected buffer tail to be %q; got %q", "01234567", tail)
		}
	})
}
