package source

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/VanDung-dev/colblob/host"
)

func TestBufferReadRange(t *testing.T) {
	data := payload(16)
	buf := NewBuffer(data)

	got, err := buf.ReadByteRange(4, 8).Await(context.Background())
	if err != nil {
		t.Fatalf("ReadByteRange failed: %v", err)
	}
	if !bytes.Equal(got, data[4:12]) {
		t.Errorf("Content mismatch")
	}

	got[0] ^= 0xff
	if data[4] == got[0] {
		t.Error("Buffer reads must return a copy")
	}

	if _, err := buf.ReadByteRange(10, 7).Await(context.Background()); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("Expected ErrOutOfRange, got %v", err)
	}
}

func TestReaderReadAll(t *testing.T) {
	loop := newTestLoop(t)
	data := payload(5000)
	src := NewByteSource(host.NewMemBlob(loop, data), nil)

	r, err := NewReader(context.Background(), src)
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	if r.Size() != 5000 {
		t.Errorf("Expected size 5000, got %d", r.Size())
	}

	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Error("ReadAll content mismatch")
	}
}

func TestReaderReadAtPastEnd(t *testing.T) {
	r, err := NewReader(context.Background(), NewBuffer(payload(10)))
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}

	p := make([]byte, 4)
	n, err := r.ReadAt(p, 8)
	if n != 2 || err != io.EOF {
		t.Errorf("Expected (2, EOF), got (%d, %v)", n, err)
	}

	n, err = r.ReadAt(p, 10)
	if n != 0 || err != io.EOF {
		t.Errorf("Expected (0, EOF), got (%d, %v)", n, err)
	}

	if _, err := r.ReadAt(p, -1); err == nil {
		t.Error("Expected error for negative offset")
	}
}

func TestReaderSeek(t *testing.T) {
	data := payload(100)
	r, err := NewReader(context.Background(), NewBuffer(data))
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}

	cases := []struct {
		offset int64
		whence int
		want   int64
	}{
		{10, io.SeekStart, 10},
		{5, io.SeekCurrent, 15},
		{-4, io.SeekEnd, 96},
	}
	for _, c := range cases {
		pos, err := r.Seek(c.offset, c.whence)
		if err != nil {
			t.Fatalf("Seek(%d, %d) failed: %v", c.offset, c.whence, err)
		}
		if pos != c.want {
			t.Errorf("Seek(%d, %d): expected %d, got %d", c.offset, c.whence, c.want, pos)
		}
	}

	tail, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if !bytes.Equal(tail, data[96:]) {
		t.Errorf("Expected last 4 bytes, got %v", tail)
	}

	if _, err := r.Seek(-1, io.SeekStart); err == nil {
		t.Error("Expected error seeking before start")
	}
}
