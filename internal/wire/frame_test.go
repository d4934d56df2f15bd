package wire

import (
	"bytes"
	"testing"
)

func TestEncodeDecodeFrameRoundTrip(t *testing.T) {
	payload := []byte("hello subscriber")
	buf := EncodeFrame(42, payload)

	version, bodySize, err := DecodeHeader(buf[:HeaderSize])
	if err != nil {
		t.Fatalf("decode header: %v", err)
	}
	if version != CurrentVersion {
		t.Fatalf("version = %d, want %d", version, CurrentVersion)
	}
	if int(bodySize) != len(buf)-HeaderSize {
		t.Fatalf("bodySize = %d, want %d", bodySize, len(buf)-HeaderSize)
	}

	frame, err := DecodeBody(buf[HeaderSize:])
	if err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if frame.StreamID != 42 {
		t.Fatalf("StreamID = %d, want 42", frame.StreamID)
	}
	if !bytes.Equal(frame.Payload, payload) {
		t.Fatalf("Payload = %q, want %q", frame.Payload, payload)
	}
}

func TestDecodeHeaderRejectsUnsupportedVersion(t *testing.T) {
	hdr := []byte{CurrentVersion + 1, 0, 0, 0, 0}
	if _, _, err := DecodeHeader(hdr); err != ErrUnsupportedVersion {
		t.Fatalf("err = %v, want ErrUnsupportedVersion", err)
	}
}

func TestDecodeHeaderRejectsShortHeader(t *testing.T) {
	if _, _, err := DecodeHeader([]byte{1, 2, 3}); err != ErrShortFrame {
		t.Fatalf("err = %v, want ErrShortFrame", err)
	}
}

func TestDecodeBodyRejectsCorruptChecksum(t *testing.T) {
	buf := EncodeFrame(7, []byte("payload"))
	body := buf[HeaderSize:]
	body[len(body)-1] ^= 0xFF

	if _, err := DecodeBody(body); err != ErrChecksumMismatch {
		t.Fatalf("err = %v, want ErrChecksumMismatch", err)
	}
}

func TestEncodeFrameLargeStreamID(t *testing.T) {
	buf := EncodeFrame(1<<63, []byte("x"))
	_, bodySize, err := DecodeHeader(buf[:HeaderSize])
	if err != nil {
		t.Fatalf("decode header: %v", err)
	}
	frame, err := DecodeBody(buf[HeaderSize : HeaderSize+int(bodySize)])
	if err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if frame.StreamID != 1<<63 {
		t.Fatalf("StreamID = %d, want %d", frame.StreamID, uint64(1)<<63)
	}
}
