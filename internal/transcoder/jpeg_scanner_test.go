package transcoder

import (
	"bytes"
	"math/rand"
	"testing"
)

// minimalJPEG builds a syntactically plausible JPEG: SOI, an APPn
// segment whose payload itself contains an embedded FFD8/FFD9 pair (to
// exercise marker-length skipping), a stubbed SOS with one stuffed 0xFF,
// and EOI.
func minimalJPEG(embedTrap bool) []byte {
	var buf bytes.Buffer
	buf.Write([]byte{0xFF, 0xD8}) // SOI

	appPayload := []byte{0x00, 0x01, 0x02, 0x03}
	if embedTrap {
		// Embed a fake SOI/EOI pair inside the APPn payload; a naive
		// byte-pair scanner would terminate the frame here.
		appPayload = append(appPayload, 0xFF, 0xD8, 0xFF, 0xD9)
	}
	segLen := len(appPayload) + 2
	buf.Write([]byte{0xFF, 0xE0, byte(segLen >> 8), byte(segLen)})
	buf.Write(appPayload)

	// SOS header: marker + length(2, covers only header) + 0 bytes.
	buf.Write([]byte{0xFF, 0xDA, 0x00, 0x02})

	// Entropy-coded data containing a stuffed 0xFF00 (must not be read
	// as a marker) and a restart marker.
	buf.Write([]byte{0x10, 0x20, 0xFF, 0x00, 0x30, 0xFF, 0xD0, 0x40})

	buf.Write([]byte{0xFF, 0xD9}) // EOI
	return buf.Bytes()
}

func TestScannerExtractsSingleFrame(t *testing.T) {
	data := minimalJPEG(false)
	s := newJPEGScanner(0)
	frames, err := s.Feed(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(frames) != 1 {
		t.Fatalf("expected 1 frame, got %d", len(frames))
	}
	if !bytes.Equal(frames[0], data) {
		t.Errorf("frame mismatch:\n got  %x\n want %x", frames[0], data)
	}
}

func TestScannerTolerantOfEmbeddedMarkerBytes(t *testing.T) {
	data := minimalJPEG(true)
	s := newJPEGScanner(0)
	frames, err := s.Feed(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(frames) != 1 {
		t.Fatalf("expected 1 frame despite embedded FFD8/FFD9, got %d", len(frames))
	}
	if !bytes.Equal(frames[0], data) {
		t.Errorf("frame mismatch:\n got  %x\n want %x", frames[0], data)
	}
}

func TestScannerHandlesMultipleFramesAcrossFeeds(t *testing.T) {
	a := minimalJPEG(false)
	b := minimalJPEG(true)
	s := newJPEGScanner(0)

	var got [][]byte
	combined := append(append([]byte{}, a...), b...)
	// Feed in small chunks to exercise partial-buffer handling.
	for i := 0; i < len(combined); i += 3 {
		end := i + 3
		if end > len(combined) {
			end = len(combined)
		}
		frames, err := s.Feed(combined[i:end])
		if err != nil {
			t.Fatalf("unexpected error at offset %d: %v", i, err)
		}
		got = append(got, frames...)
	}

	if len(got) != 2 {
		t.Fatalf("expected 2 frames, got %d", len(got))
	}
	if !bytes.Equal(got[0], a) || !bytes.Equal(got[1], b) {
		t.Errorf("frame contents did not round-trip across chunked feeds")
	}
}

func TestScannerSkipsGarbagePrefix(t *testing.T) {
	data := minimalJPEG(false)
	noisy := append([]byte{0x00, 0x11, 0x22, 0xFF, 0x01}, data...)
	s := newJPEGScanner(0)
	frames, err := s.Feed(noisy)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(frames) != 1 || !bytes.Equal(frames[0], data) {
		t.Fatalf("expected garbage prefix to be skipped and the frame recovered")
	}
}

func TestScannerRejectsOversizedFrame(t *testing.T) {
	data := minimalJPEG(false)
	s := newJPEGScanner(len(data) - 1)
	_, err := s.Feed(data)
	var oversized *ErrOversizedFrame
	if err == nil {
		t.Fatal("expected oversized frame error")
	}
	if !bytes.Contains([]byte(err.Error()), []byte("max_frame_size")) {
		t.Errorf("unexpected error: %v", err)
	}
	_ = oversized
}

// TestScannerNeverPanicsOnRandomBytes exercises testable property 9 in
// spirit: arbitrary bytes must never crash the scanner.
func TestScannerNeverPanicsOnRandomBytes(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	for i := 0; i < 200; i++ {
		buf := make([]byte, r.Intn(512))
		r.Read(buf)
		s := newJPEGScanner(4096)
		func() {
			defer func() {
				if rec := recover(); rec != nil {
					t.Fatalf("scanner panicked on random input: %v", rec)
				}
			}()
			_, _ = s.Feed(buf)
		}()
	}
}
