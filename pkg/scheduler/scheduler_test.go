package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/atsika/poolbridge/pkg/datalink"
	"github.com/atsika/poolbridge/pkg/link"
	"github.com/atsika/poolbridge/pkg/netmsg"
	"github.com/atsika/poolbridge/pkg/poolstate"
)

// fakeUART is an in-memory loopback UART: whatever Transmit writes is
// immediately available for the next ReadBytes, mimicking the controller's
// echo of the bus traffic it sees.
type fakeUART struct {
	rx     chan byte
	rtsLog []bool
}

func newFakeUART() *fakeUART { return &fakeUART{rx: make(chan byte, 256)} }

func (f *fakeUART) ReadBytes(ctx context.Context, dst []byte, timeout time.Duration) (int, error) {
	deadline := time.After(timeout)
	n := 0
	for n < len(dst) {
		select {
		case b := <-f.rx:
			dst[n] = b
			n++
			// Drain whatever else is immediately available, then return —
			// mirrors the real UART.ReadBytes contract of one read cycle.
			for n < len(dst) {
				select {
				case b := <-f.rx:
					dst[n] = b
					n++
				default:
					return n, nil
				}
			}
			return n, nil
		case <-deadline:
			return n, nil
		case <-ctx.Done():
			return n, nil
		}
	}
	return n, nil
}

func (f *fakeUART) WriteBytes(data []byte) error {
	for _, b := range data {
		f.rx <- b
	}
	return nil
}
func (f *fakeUART) Flush() error { return nil }
func (f *fakeUART) SetRTS(asserted bool) error {
	f.rtsLog = append(f.rtsLog, asserted)
	return nil
}

type fakeDispatcher struct{}

func (fakeDispatcher) Dispatch(cmd Command) (netmsg.Kind, []byte, byte, bool) {
	if cmd.Topic == "circuit/pool/set" {
		return netmsg.CtrlCircuitSet, []byte{poolstate.CircuitPool, 1}, datalink.Addr(datalink.GroupCtrl, 0), true
	}
	return netmsg.None, nil, 0, false
}

type recordingPublisher struct {
	snaps []poolstate.Snapshot
}

func (p *recordingPublisher) Publish(snap poolstate.Snapshot) {
	p.snaps = append(p.snaps, snap)
}

// broadcastOpportunityFrame builds the raw bytes of a CTRL->ALL CTRL_STATE_REQ
// broadcast: the only event that opens a transmit window (spec §4.5, §4.7).
func broadcastOpportunityFrame() []byte {
	dst := datalink.Addr(datalink.GroupAll, 0)
	src := datalink.Addr(datalink.GroupCtrl, 0)
	typ := byte(0xC2)
	sum := 0xA5 + 1 + int(dst) + int(src) + int(typ) + 0
	return []byte{0x00, 0xFF, 0xA5, 1, dst, src, typ, 0, byte(sum >> 8), byte(sum)}
}

func TestTaskQueuesAndTransmitsOnOpportunity(t *testing.T) {
	uart := newFakeUART()
	for _, b := range broadcastOpportunityFrame() {
		uart.rx <- b
	}
	l := link.New(uart, nil, nil)
	codec := netmsg.NewCodec(nil, nil)
	store := poolstate.NewStore(nil)
	pub := &recordingPublisher{}

	inbound := make(chan Command, 1)
	task := New(l, codec, store, inbound, fakeDispatcher{}, pub, nil, nil)

	inbound <- Command{Topic: "circuit/pool/set"}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	task.Run(ctx)

	if len(pub.snaps) == 0 {
		t.Fatal("expected at least one published snapshot after the queued command was transmitted and looped back")
	}
	snap := pub.snaps[len(pub.snaps)-1]
	if !snap.Circuits.Active[poolstate.CircuitPool] {
		t.Fatal("expected pool circuit active after the dispatched command looped back through decode")
	}
	if len(uart.rtsLog) == 0 {
		t.Fatal("expected Transmit to have toggled RTS")
	}
}

func TestStartupEnqueuesVersionAndTimeRequests(t *testing.T) {
	uart := newFakeUART()
	l := link.New(uart, nil, nil)
	codec := netmsg.NewCodec(nil, nil)
	store := poolstate.NewStore(nil)
	task := New(l, codec, store, nil, nil, nil, nil, nil)

	task.Startup()
	if !l.Pending() {
		t.Fatal("expected Startup to leave queued packets pending")
	}
}
