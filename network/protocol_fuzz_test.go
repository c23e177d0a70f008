package network

import (
	"errors"
	"testing"
)

// FuzzDecodeRequest tests request frame parsing with random inputs.
// Run with: go test -fuzz=FuzzDecodeRequest -fuzztime=30s ./network/
func FuzzDecodeRequest(f *testing.F) {
	valid, _ := EncodeFrame(&Request{ID: 1, Op: OpRead, Name: "events", Offset: 10, Length: 20, Compress: true})
	f.Add(valid)
	stat, _ := EncodeFrame(&Request{ID: 2, Op: OpStat, Name: ""})
	f.Add(stat)
	f.Add([]byte{})
	f.Add([]byte{0xc0})
	f.Add([]byte{0x80})
	f.Add([]byte("not msgpack"))

	f.Fuzz(func(t *testing.T, data []byte) {
		// Should not panic regardless of input
		req, err := DecodeRequest(data)
		if err == nil {
			if _, err := EncodeFrame(req); err != nil {
				t.Errorf("Decoded request failed to re-encode: %v", err)
			}
		}
	})
}

// FuzzDecodeResponse tests response frame parsing with random inputs.
// Run with: go test -fuzz=FuzzDecodeResponse -fuzztime=30s ./network/
func FuzzDecodeResponse(f *testing.F) {
	valid, _ := EncodeFrame(&Response{ID: 1, Size: 100, Data: []byte("payload")})
	f.Add(valid)
	failed, _ := EncodeFrame(&Response{ID: 2, Error: "container not found"})
	f.Add(failed)
	f.Add([]byte{})
	f.Add([]byte{0x91, 0x01})

	f.Fuzz(func(t *testing.T, data []byte) {
		resp, err := DecodeResponse(data)
		if err == nil {
			_, _ = EncodeFrame(resp)
		}
	})
}

func TestDecodeEmptyFrame(t *testing.T) {
	if _, err := DecodeRequest(nil); !errors.Is(err, ErrEmptyFrame) {
		t.Errorf("Expected ErrEmptyFrame, got %v", err)
	}
}

func TestDecodeOversizedFrame(t *testing.T) {
	if _, err := DecodeResponse(make([]byte, MaxFrameSize+1)); !errors.Is(err, ErrFrameTooLarge) {
		t.Errorf("Expected ErrFrameTooLarge, got %v", err)
	}
}

func TestCodecRoundTrip(t *testing.T) {
	c, err := newCodec()
	if err != nil {
		t.Fatalf("newCodec failed: %v", err)
	}
	defer c.close()

	data := []byte("aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaabbbbbbbbbbbbbbbbbbbbbb")
	out, err := c.decompress(c.compress(data))
	if err != nil {
		t.Fatalf("decompress failed: %v", err)
	}
	if string(out) != string(data) {
		t.Error("Codec round trip mismatch")
	}

	if _, err := c.decompress([]byte("garbage")); err == nil {
		t.Error("Expected error decompressing garbage")
	}
}
