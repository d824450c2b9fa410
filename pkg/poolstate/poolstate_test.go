package poolstate

import (
	"context"
	"testing"
	"time"

	"github.com/atsika/poolbridge/pkg/datalink"
	"github.com/atsika/poolbridge/pkg/netmsg"
)

// fixedReader replays a fixed byte slice once, matching a timed-out read
// with zero bytes once exhausted (mirrors datalink_test.go's fakeReader).
type fixedReader struct {
	data []byte
	pos  int
}

func (f *fixedReader) ReadBytes(_ context.Context, dst []byte, _ time.Duration) (int, error) {
	if f.pos >= len(f.data) {
		return 0, nil
	}
	n := copy(dst, f.data[f.pos:])
	f.pos += n
	return n, nil
}

func TestSpaSupersedesPool(t *testing.T) {
	s := NewStore(nil)

	d := make([]byte, 29)
	d[0], d[1] = 15, 32 // time
	active := uint16(1<<CircuitSPA | 1<<CircuitPool)
	d[2], d[3] = byte(active), byte(active>>8)

	changed := s.UpdateFrom(netmsg.Message{Kind: netmsg.CtrlState, Data: d})
	if !changed {
		t.Fatal("expected first CTRL_STATE to change the snapshot")
	}
	snap, _ := s.Get()
	if !snap.Circuits.Active[CircuitSPA] {
		t.Error("expected SPA active")
	}
	if snap.Circuits.Active[CircuitPool] {
		t.Error("expected POOL cleared when SPA also active")
	}
}

func TestStateChangeSuppressedOnDuplicate(t *testing.T) {
	s := NewStore(nil)
	d := make([]byte, 29)
	d[0], d[1] = 10, 0

	if !s.UpdateFrom(netmsg.Message{Kind: netmsg.CtrlState, Data: d}) {
		t.Fatal("first update should change the snapshot")
	}
	if s.UpdateFrom(netmsg.Message{Kind: netmsg.CtrlState, Data: d}) {
		t.Fatal("identical second update should not change the snapshot")
	}
}

func TestConditionalTempGating(t *testing.T) {
	s := NewStore(nil)
	d := make([]byte, 29)
	// POOL inactive, SPA active.
	active := uint16(1 << CircuitSPA)
	d[2], d[3] = byte(active), byte(active>>8)
	d[14], d[15] = 80, 90 // poolTemp, spaTemp (network_msg_ctrl_state_t offsets)

	s.UpdateFrom(netmsg.Message{Kind: netmsg.CtrlState, Data: d})
	snap, _ := s.Get()
	if snap.Thermos[Pool].Temp != 0 {
		t.Errorf("pool temp should not update while inactive, got %d", snap.Thermos[Pool].Temp)
	}
	if snap.Thermos[Spa].Temp != 90 {
		t.Errorf("spa temp should update while active, got %d", snap.Thermos[Spa].Temp)
	}
}

// TestScenario1CtrlStateDecode threads spec.md §8 scenario 1's literal
// byte stream through the full datalink.RX -> netmsg.Codec -> Store.UpdateFrom
// path and asserts system.time=15:32 and the airTemp byte at
// network_msg_ctrl_state_t offset 18, end to end rather than through
// hand-picked indices. The air value asserted is 0x4D from offset 18, not
// the 0x4B the scenario prose names (see DESIGN.md, Open Question decisions).
func TestScenario1CtrlStateDecode(t *testing.T) {
	// Header + payload bytes are the literal spec §8 scenario 1 stream. The
	// trailing 2-byte checksum there does not satisfy datalink's own sum (see
	// tx.go Encode / rx.go checkCRC), so it is recomputed here the same way
	// tx.go does: preamble-last-byte + header bytes + payload bytes.
	payload := []byte{
		0x0F, 0x20, 0x01, 0x02, 0x00, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00, 0x00, 0x40, 0x37, 0x28,
		0x4A, 0x03, 0x4D, 0x50, 0x4B, 0x00, 0x01, 0x00,
		0x00, 0x00, 0x00, 0x00, 0x00,
	}
	header := []byte{0x01, 0x0F, 0x10, 0x02, byte(len(payload))}
	sum := 0xA5
	for _, b := range header {
		sum += int(b)
	}
	for _, b := range payload {
		sum += int(b)
	}

	frame := []byte{0x00, 0xFF, 0xA5}
	frame = append(frame, header...)
	frame = append(frame, payload...)
	frame = append(frame, byte(sum>>8), byte(sum))

	rx := datalink.NewRX(nil, nil)
	pkt, err := rx.Receive(context.Background(), &fixedReader{data: frame}, time.Millisecond)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pkt == nil {
		t.Fatal("expected a decoded packet")
	}

	codec := netmsg.NewCodec(nil, nil)
	msg := codec.Decode(pkt)
	if msg.Kind != netmsg.CtrlState {
		t.Fatalf("expected CTRL_STATE, got %v", msg.Kind)
	}

	s := NewStore(nil)
	if !s.UpdateFrom(msg) {
		t.Fatal("expected the CTRL_STATE update to change the snapshot")
	}
	snap, _ := s.Get()
	if snap.System.Time != (Time{Hour: 15, Minute: 32}) {
		t.Fatalf("expected system.time=15:32, got %+v", snap.System.Time)
	}
	// network_msg_ctrl_state_t.airTemp is byte offset 18 (payload[18] =
	// 0x4D = 77 in this stream), not the 0x4B at offset 20.
	if snap.Temps.Air != 0x4D {
		t.Fatalf("expected temps[AIR]=0x4D, got %#x", snap.Temps.Air)
	}
}

func TestPumpRunningGating(t *testing.T) {
	s := NewStore(nil)
	d := make([]byte, 15)
	d[0] = 0x0A // running
	s.UpdateFrom(netmsg.Message{Kind: netmsg.PumpStatusResp, Data: d})
	snap, _ := s.Get()
	if !snap.Pump.Running {
		t.Fatal("expected running=true for state 0x0A")
	}

	d2 := make([]byte, 15)
	d2[0] = 0x99 // neither running nor stopped code
	s.UpdateFrom(netmsg.Message{Kind: netmsg.PumpStatusResp, Data: d2})
	snap, _ = s.Get()
	if !snap.Pump.Running {
		t.Fatal("running flag must not change for an unrecognized state byte")
	}
}

func TestChlorStatusPriority(t *testing.T) {
	s := NewStore(nil)
	d := []byte{10, 0x03} // err = LOW_FLOW | LOW_SALT
	s.UpdateFrom(netmsg.Message{Kind: netmsg.ChlorLevelResp, Data: d})
	snap, _ := s.Get()
	if snap.Chlor.Status != ChlorLowFlow {
		t.Fatalf("expected LOW_FLOW to take priority, got %#x", snap.Chlor.Status)
	}
	if snap.Chlor.SaltPPM != 500 {
		t.Fatalf("expected salt = 10*50 = 500, got %d", snap.Chlor.SaltPPM)
	}
}

func TestCircuitSetToggle(t *testing.T) {
	s := NewStore(nil)
	s.UpdateFrom(netmsg.Message{Kind: netmsg.CtrlCircuitSet, Data: []byte{CircuitPool, 1}})
	snap, _ := s.Get()
	if !snap.Circuits.Active[CircuitPool] {
		t.Fatal("expected pool circuit active after set")
	}
}
