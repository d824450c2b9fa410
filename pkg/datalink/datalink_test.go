package datalink

import (
	"context"
	"testing"
	"time"
)

// fakeReader replays a fixed byte slice, returning EOF-like zero reads once
// exhausted (matching a 100ms read timeout with no more data).
type fakeReader struct {
	data []byte
	pos  int
}

func (f *fakeReader) ReadBytes(_ context.Context, dst []byte, _ time.Duration) (int, error) {
	if f.pos >= len(f.data) {
		return 0, nil
	}
	n := copy(dst, f.data[f.pos:])
	f.pos += n
	return n, nil
}

func TestEncodeDecodeCircuitSetRoundTrip(t *testing.T) {
	buf := NewTXBuffer(A5Ctrl, 2)
	PutPayload(buf, []byte{6, 1})
	pkt := Encode(buf, A5Ctrl, 0x86, Addr(GroupCtrl, 0))

	r := &fakeReader{data: pkt.Buffer.Head()}
	rx := NewRX(nil, nil)
	got, err := rx.Receive(context.Background(), r, time.Millisecond)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got == nil {
		t.Fatal("expected a decoded packet")
	}
	if got.ProtTyp != 0x86 || got.Prot != A5Ctrl {
		t.Fatalf("unexpected decode: prot=%v typ=%#x", got.Prot, got.ProtTyp)
	}
	if string(got.Data) != "\x06\x01" {
		t.Fatalf("unexpected payload: %x", got.Data)
	}
}

func TestBroadcastDecode(t *testing.T) {
	frame := []byte{
		0x00, 0xFF, 0xA5, 0x01, 0x0F, 0x10, 0x02, 0x1D,
		0x0F, 0x20, 0x01, 0x02, 0x00, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00, 0x00, 0x40, 0x37, 0x28,
		0x4A, 0x03, 0x4D, 0x50, 0x4B, 0x00, 0x01, 0x00,
		0x00, 0x00, 0x00, 0x00, 0x00,
	}
	sum := 0xA5
	for _, b := range frame[3:37] {
		sum += int(b)
	}
	frame = append(frame, byte(sum>>8), byte(sum))

	r := &fakeReader{data: frame}
	rx := NewRX(nil, nil)
	got, err := rx.Receive(context.Background(), r, time.Millisecond)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got == nil {
		t.Fatal("expected a decoded packet")
	}
	if got.ProtTyp != 0x02 || len(got.Data) != 29 {
		t.Fatalf("unexpected decode: typ=%#x len=%d", got.ProtTyp, len(got.Data))
	}
	// Spot-check the payload bytes survive the RX pipeline untouched and in
	// order; pkg/poolstate's tests cover interpreting them as CTRL_STATE
	// fields (network_msg_ctrl_state_t hour/minute/airTemp offsets).
	if got.Data[0] != 0x0F || got.Data[1] != 0x20 || got.Data[18] != 0x4D {
		t.Fatalf("unexpected payload bytes: %x", got.Data)
	}
}

func TestLen33Rejected(t *testing.T) {
	frame := []byte{0x00, 0xFF, 0xA5, 0x01, 0x0F, 0x10, 0x02, 33}
	// Follow immediately with a well-formed small frame (no filler bytes, to
	// avoid incidental resync on arbitrary garbage) to confirm the state
	// machine recovered to FIND_PREAMBLE after rejecting the oversized header.
	buf := NewTXBuffer(A5Ctrl, 0)
	pkt := Encode(buf, A5Ctrl, 0xC2, Addr(GroupCtrl, 0))
	frame = append(frame, pkt.Buffer.Head()...)

	r := &fakeReader{data: frame}
	rx := NewRX(nil, nil)
	got, err := rx.Receive(context.Background(), r, time.Millisecond)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got == nil {
		t.Fatal("expected the state machine to resync and decode the trailing valid frame")
	}
	if got.ProtTyp != 0xC2 {
		t.Fatalf("expected to decode the trailing STATE_REQ frame, got typ=%#x", got.ProtTyp)
	}
}

func TestCRCMismatchDiscarded(t *testing.T) {
	buf := NewTXBuffer(A5Ctrl, 0)
	pkt := Encode(buf, A5Ctrl, 0xC2, Addr(GroupCtrl, 0))
	frame := append([]byte(nil), pkt.Buffer.Head()...)
	frame[len(frame)-1] ^= 0xFF // corrupt checksum low byte

	r := &fakeReader{data: frame}
	rx := NewRX(nil, nil)
	got, err := rx.Receive(context.Background(), r, time.Millisecond)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != nil {
		t.Fatal("expected CRC mismatch to discard the frame silently")
	}
}

func TestTransmitOpportunityDetection(t *testing.T) {
	buf := NewTXBuffer(A5Ctrl, 0)
	pkt := Encode(buf, A5Ctrl, 0xC2, Addr(GroupAll, 0))
	pkt.Src = Addr(GroupCtrl, 0)
	if !pkt.IsTransmitOpportunity() {
		t.Fatal("CTRL->ALL broadcast should be a transmit opportunity")
	}

	pkt2 := Encode(NewTXBuffer(A5Ctrl, 0), A5Ctrl, 0xC2, Addr(GroupCtrl, 0))
	pkt2.Src = Addr(GroupCtrl, 0)
	if pkt2.IsTransmitOpportunity() {
		t.Fatal("a frame not addressed to ALL must not be a transmit opportunity")
	}
}
