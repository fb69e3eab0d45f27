package control

import (
	"bytes"
	"math/rand"
	"testing"
)

func TestEncodeDecodeBinaryFrameRoundTrip(t *testing.T) {
	jpeg := []byte{0xFF, 0xD8, 0x01, 0x02, 0x03, 0xFF, 0xD9}
	raw := EncodeBinaryFrame(1234567890, jpeg)

	kind, frame, _, err := Decode(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if kind != KindBinaryFrame {
		t.Fatalf("got kind %d, want KindBinaryFrame", kind)
	}
	if frame.TimestampMs != 1234567890 {
		t.Errorf("got ts %d, want 1234567890", frame.TimestampMs)
	}
	if !bytes.Equal(frame.JPEG, jpeg) {
		t.Errorf("got jpeg %v, want %v", frame.JPEG, jpeg)
	}
}

func TestEncodeDecodeTextRoundTrip(t *testing.T) {
	resp := Response{Code: 200, Text: "ok"}
	raw, err := EncodeText(resp)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	kind, _, text, err := Decode(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if kind != KindText {
		t.Fatalf("got kind %d, want KindText", kind)
	}
	if string(text) != `{"code":200,"text":"ok"}` {
		t.Errorf("got text %s", text)
	}
}

func TestDecodeRejectsShortBinaryEnvelope(t *testing.T) {
	_, _, _, err := Decode([]byte{KindBinaryFrame, 0x01, 0x02})
	if err != ErrShortEnvelope {
		t.Errorf("got %v, want ErrShortEnvelope", err)
	}
}

func TestDecodeRejectsEmptyInput(t *testing.T) {
	_, _, _, err := Decode(nil)
	if err != ErrShortEnvelope {
		t.Errorf("got %v, want ErrShortEnvelope", err)
	}
}

func TestDecodeRejectsUnknownKind(t *testing.T) {
	_, _, _, err := Decode([]byte{0x02, 0x01, 0x02})
	if err != ErrUnknownKind {
		t.Errorf("got %v, want ErrUnknownKind", err)
	}
}

// TestDecodeNeverPanicsOnRandomBytes asserts that for any random bytes
// with a leading 0x00 or 0x01, Decode either parses or rejects cleanly,
// never panics.
func TestDecodeNeverPanicsOnRandomBytes(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	defer func() {
		if r := recover(); r != nil {
			t.Fatalf("Decode panicked: %v", r)
		}
	}()
	for i := 0; i < 2000; i++ {
		n := rng.Intn(64)
		buf := make([]byte, n)
		rng.Read(buf)
		if n > 0 {
			buf[0] = byte(rng.Intn(2)) // bias toward 0x00 / 0x01 leading bytes
		}
		Decode(buf)
	}
}
