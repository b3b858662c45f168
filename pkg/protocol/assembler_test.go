package protocol

import (
	"bytes"
	"testing"
)

// feedAll pushes a byte stream through the assembler and collects every
// completed frame.
func feedAll(a *Assembler, stream []byte) [][]byte {
	var frames [][]byte
	for _, b := range stream {
		if frame, ok := a.Feed(b); ok {
			frames = append(frames, frame)
		}
	}
	return frames
}

func TestAssemblerSingleFrame(t *testing.T) {
	tests := []struct {
		name   string
		stream []byte
		want   []byte
	}{
		{
			name:   "ack",
			stream: []byte{0x01, 0xFF, 0xFF, 0xFF},
			want:   []byte{0x01},
		},
		{
			name:   "error code",
			stream: []byte{0x1A, 0xFF, 0xFF, 0xFF},
			want:   []byte{0x1A},
		},
		{
			name:   "string reply",
			stream: []byte{0x70, 'h', 'i', 0xFF, 0xFF, 0xFF},
			want:   []byte{0x70, 'h', 'i'},
		},
		{
			name:   "touch event",
			stream: []byte{0x65, 0x01, 0x02, 0x01, 0xFF, 0xFF, 0xFF},
			want:   []byte{0x65, 0x01, 0x02, 0x01},
		},
		{
			name:   "number without terminator bytes in payload",
			stream: []byte{0x71, 0x05, 0x00, 0x00, 0x00, 0xFF, 0xFF, 0xFF},
			want:   []byte{0x71, 0x05, 0x00, 0x00, 0x00},
		},
		{
			name:   "startup announcement",
			stream: []byte{0x00, 0x00, 0x00, 0xFF, 0xFF, 0xFF},
			want:   []byte{0x00, 0x00, 0x00},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewAssembler(0)
			frames := feedAll(a, tt.stream)
			if len(frames) != 1 {
				t.Fatalf("got %d frames, want 1", len(frames))
			}
			if !bytes.Equal(frames[0], tt.want) {
				t.Errorf("frame = % x, want % x", frames[0], tt.want)
			}
			if a.Len() != 0 {
				t.Errorf("assembler holds %d bytes after frame, want 0", a.Len())
			}
		})
	}
}

func TestAssemblerNumberPayloadAmbiguity(t *testing.T) {
	// The 0xFF run inside the numeric payload must not end the frame
	// early; the real terminator follows the 4 payload bytes.
	tests := []struct {
		name   string
		stream []byte
		want   []byte
	}{
		{
			name:   "payload contains terminator run",
			stream: []byte{0x71, 0xFF, 0xFF, 0xFF, 0x00, 0xFF, 0xFF, 0xFF},
			want:   []byte{0x71, 0xFF, 0xFF, 0xFF, 0x00},
		},
		{
			name:   "value minus one",
			stream: []byte{0x71, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF},
			want:   []byte{0x71, 0xFF, 0xFF, 0xFF, 0xFF},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewAssembler(0)
			frames := feedAll(a, tt.stream)
			if len(frames) != 1 {
				t.Fatalf("got %d frames, want 1", len(frames))
			}
			if !bytes.Equal(frames[0], tt.want) {
				t.Errorf("frame = % x, want % x", frames[0], tt.want)
			}
		})
	}
}

func TestAssemblerDiscardsLeadingTerminatorBytes(t *testing.T) {
	a := NewAssembler(0)
	stream := []byte{0xFF, 0xFF, 0x01, 0xFF, 0xFF, 0xFF}
	frames := feedAll(a, stream)
	if len(frames) != 1 {
		t.Fatalf("got %d frames, want 1", len(frames))
	}
	if !bytes.Equal(frames[0], []byte{0x01}) {
		t.Errorf("frame = % x, want 01", frames[0])
	}
}

func TestAssemblerBackToBackFrames(t *testing.T) {
	a := NewAssembler(0)
	stream := []byte{
		0x01, 0xFF, 0xFF, 0xFF,
		0x66, 0x03, 0xFF, 0xFF, 0xFF,
		0x71, 0x2A, 0x00, 0x00, 0x00, 0xFF, 0xFF, 0xFF,
	}
	frames := feedAll(a, stream)
	if len(frames) != 3 {
		t.Fatalf("got %d frames, want 3", len(frames))
	}
	want := [][]byte{
		{0x01},
		{0x66, 0x03},
		{0x71, 0x2A, 0x00, 0x00, 0x00},
	}
	for i := range want {
		if !bytes.Equal(frames[i], want[i]) {
			t.Errorf("frame %d = % x, want % x", i, frames[i], want[i])
		}
	}
}

func TestAssemblerInterruptedTerminatorRun(t *testing.T) {
	// Two 0xFF bytes followed by data restart the terminator count.
	a := NewAssembler(0)
	stream := []byte{0x70, 0xFF, 0xFF, 'x', 0xFF, 0xFF, 0xFF}
	frames := feedAll(a, stream)
	if len(frames) != 1 {
		t.Fatalf("got %d frames, want 1", len(frames))
	}
	want := []byte{0x70, 0xFF, 0xFF, 'x'}
	if !bytes.Equal(frames[0], want) {
		t.Errorf("frame = % x, want % x", frames[0], want)
	}
}

func TestAssemblerSplitDelivery(t *testing.T) {
	// Bytes arriving one poll at a time assemble the same frame.
	a := NewAssembler(0)
	stream := []byte{0x70, 'o', 'k', 0xFF, 0xFF}
	for _, b := range stream {
		if _, ok := a.Feed(b); ok {
			t.Fatal("frame completed early")
		}
	}
	frame, ok := a.Feed(0xFF)
	if !ok {
		t.Fatal("frame did not complete on final terminator byte")
	}
	if !bytes.Equal(frame, []byte{0x70, 'o', 'k'}) {
		t.Errorf("frame = % x", frame)
	}
}

func TestAssemblerOverflowDropsPartialFrame(t *testing.T) {
	a := NewAssembler(8)
	for i := 0; i < 12; i++ {
		if _, ok := a.Feed('x'); ok {
			t.Fatal("unexpected frame")
		}
	}
	if a.Dropped() == 0 {
		t.Error("expected a dropped partial frame")
	}
	// The assembler must still frame correctly afterward.
	frames := feedAll(a, []byte{0xFF, 0xFF, 0xFF, 0x01, 0xFF, 0xFF, 0xFF})
	if len(frames) != 2 {
		// the trailing bytes of the overflowing run terminate first
		t.Fatalf("got %d frames, want 2", len(frames))
	}
	if !bytes.Equal(frames[1], []byte{0x01}) {
		t.Errorf("frame = % x, want 01", frames[1])
	}
}

func TestAssemblerReset(t *testing.T) {
	a := NewAssembler(0)
	feedAll(a, []byte{0x70, 'p', 'a', 'r'})
	a.Reset()
	if a.Len() != 0 {
		t.Fatalf("Len = %d after Reset, want 0", a.Len())
	}
	frames := feedAll(a, []byte{0x01, 0xFF, 0xFF, 0xFF})
	if len(frames) != 1 || !bytes.Equal(frames[0], []byte{0x01}) {
		t.Errorf("frames after reset = %v", frames)
	}
}
