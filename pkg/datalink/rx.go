package datalink

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/atsika/poolbridge/pkg/buffer"
	"github.com/atsika/poolbridge/pkg/metrics"
)

// Reader is the minimal byte source the RX state machine needs; link.Link
// satisfies it. Defined here (rather than imported from pkg/link) to keep
// the datalink<->network<->link dependency graph one-way, per spec §9.
type Reader interface {
	ReadBytes(ctx context.Context, dst []byte, timeout time.Duration) (int, error)
}

// state is the five-state RX packetiser of spec §4.3.
type state int

const (
	findPreamble state = iota
	readHead
	readData
	readTail
	checkCRC
)

type preambleCandidate struct {
	prot Prot
	seq  []byte
	idx  int
}

// RX is a single long-lived state-machine instance. Per the spec's Open
// Question resolution (§9), it is never reset wholesale mid-stream; state
// only returns to findPreamble on completion or on a recoverable failure.
type RX struct {
	state state
	cands []*preambleCandidate

	prot    Prot
	headBuf []byte
	headGot int

	protTyp, src, dst byte
	dataLen           int

	payload    *buffer.PacketBuffer
	dataGot    int
	dataOffset int

	tailBuf []byte
	tailGot int

	sum int

	metrics metrics.Metrics
	log     *logrus.Entry
}

// NewRX constructs an RX state machine ready to start at FIND_PREAMBLE.
func NewRX(m metrics.Metrics, log *logrus.Entry) *RX {
	if m == nil {
		m = metrics.NewDefault()
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	rx := &RX{
		payload: buffer.Alloc(MaxDataSize),
		metrics: m,
		log:     log.WithField("component", "datalink_rx"),
	}
	rx.resetToFindPreamble()
	return rx
}

func (rx *RX) resetToFindPreamble() {
	rx.state = findPreamble
	rx.cands = []*preambleCandidate{
		{prot: IC, seq: preambleIC},
		{prot: A5Ctrl, seq: preambleA5}, // A5Ctrl vs A5Pump is decided at READ_HEAD
	}
	rx.headGot = 0
	rx.dataGot = 0
	rx.tailGot = 0
	rx.sum = 0
}

// Receive drains one read cycle (at most timeout) from r and feeds every
// byte through the state machine. It returns a completed, CRC-valid Packet
// as soon as one is assembled; otherwise (nil, nil) and the caller should
// call Receive again on its next scheduler iteration.
func (rx *RX) Receive(ctx context.Context, r Reader, timeout time.Duration) (*Packet, error) {
	var tmp [64]byte
	n, err := r.ReadBytes(ctx, tmp[:], timeout)
	if err != nil {
		return nil, err
	}
	for i := 0; i < n; i++ {
		if pkt := rx.step(tmp[i]); pkt != nil {
			return pkt, nil
		}
	}
	return nil, nil
}

// step feeds one byte through the current state and returns a completed
// packet, or nil if more bytes are needed (or the byte was consumed as part
// of a reset-and-resync).
func (rx *RX) step(b byte) *Packet {
	switch rx.state {
	case findPreamble:
		return rx.stepFindPreamble(b)
	case readHead:
		return rx.stepReadHead(b)
	case readData:
		return rx.stepReadData(b)
	case readTail:
		return rx.stepReadTail(b)
	}
	return nil
}

func (rx *RX) stepFindPreamble(b byte) *Packet {
	var matched *preambleCandidate
	for _, c := range rx.cands {
		if b == c.seq[c.idx] {
			c.idx++
			if c.idx == len(c.seq) {
				matched = c
			}
		} else if b == c.seq[0] {
			c.idx = 1
		} else {
			c.idx = 0
		}
	}
	if matched == nil {
		return nil
	}

	rx.prot = matched.prot
	rx.sum = 0
	for _, pb := range matched.seq {
		rx.sum += int(pb)
	}
	if matched.prot == IC {
		// IC sum starts at the FIRST preamble byte; already summed both above.
		rx.headBuf = make([]byte, icHeaderSize)
	} else {
		// A5 sum starts at the LAST preamble byte only.
		rx.sum = int(matched.seq[len(matched.seq)-1])
		rx.headBuf = make([]byte, a5HeaderSize)
	}
	rx.headGot = 0
	rx.state = readHead
	return nil
}

func (rx *RX) stepReadHead(b byte) *Packet {
	rx.headBuf[rx.headGot] = b
	rx.headGot++
	rx.sum += int(b)
	if rx.headGot < len(rx.headBuf) {
		return nil
	}

	if rx.prot == IC {
		rx.dst = rx.headBuf[0]
		rx.protTyp = rx.headBuf[1]
		length, ok := icPayloadLen(rx.protTyp)
		if !ok {
			rx.metrics.IncrementFrameDiscarded(rx.prot.String())
			rx.log.WithField("typ", rx.protTyp).Debug("unknown IC typecode, resyncing")
			rx.resetToFindPreamble()
			return nil
		}
		rx.dataLen = length
	} else {
		hdr := a5Header{Ver: rx.headBuf[0], Dst: rx.headBuf[1], Src: rx.headBuf[2], Typ: rx.headBuf[3], Len: rx.headBuf[4]}
		if hdr.Len > MaxDataSize {
			rx.metrics.IncrementFrameDiscarded(rx.prot.String())
			rx.log.WithField("len", hdr.Len).Debug("A5 length overflow, resyncing")
			rx.resetToFindPreamble()
			return nil
		}
		rx.dst, rx.src, rx.protTyp, rx.dataLen = hdr.Dst, hdr.Src, hdr.Typ, int(hdr.Len)
		if Group(hdr.Src) == GroupPump || Group(hdr.Dst) == GroupPump {
			rx.prot = A5Pump
		}
	}

	rx.payload.Reset(MaxDataSize)
	if rx.dataLen > 0 {
		rx.dataOffset = rx.payload.Put(rx.dataLen)
	}
	rx.dataGot = 0
	if rx.dataLen == 0 {
		rx.beginTail()
		return nil
	}
	rx.state = readData
	return nil
}

func (rx *RX) stepReadData(b byte) *Packet {
	rx.payload.Raw()[rx.dataOffset+rx.dataGot] = b
	rx.dataGot++
	rx.sum += int(b)
	if rx.dataGot < rx.dataLen {
		return nil
	}
	rx.beginTail()
	return nil
}

func (rx *RX) beginTail() {
	if rx.prot == IC {
		rx.tailBuf = make([]byte, icTailSize)
	} else {
		rx.tailBuf = make([]byte, a5TailSize)
	}
	rx.tailGot = 0
	rx.state = readTail
}

func (rx *RX) stepReadTail(b byte) *Packet {
	rx.tailBuf[rx.tailGot] = b
	rx.tailGot++
	if rx.tailGot < len(rx.tailBuf) {
		return nil
	}
	return rx.checkCRC()
}

func (rx *RX) checkCRC() *Packet {
	var ok bool
	if rx.prot == IC {
		got := int(rx.tailBuf[0])
		ok = got == rx.sum&0xFF
		// tailBuf[1:3] is the 10 03 postamble; consumed, not re-validated.
	} else {
		got := int(rx.tailBuf[0])<<8 | int(rx.tailBuf[1])
		ok = got == rx.sum&0xFFFF
	}

	if !ok {
		rx.metrics.IncrementCRCFailure(rx.prot.String())
		rx.log.WithFields(logrus.Fields{"prot": rx.prot, "typ": rx.protTyp}).Debug("CRC mismatch, discarding frame")
		rx.resetToFindPreamble()
		return nil
	}

	rx.metrics.IncrementFrameFound(rx.prot.String())
	pkt := &Packet{
		Prot:    rx.prot,
		ProtTyp: rx.protTyp,
		Src:     rx.src,
		Dst:     rx.dst,
		Data:    append([]byte(nil), rx.payload.Bytes()...),
		Buffer:  rx.payload,
	}
	rx.resetToFindPreamble()
	return pkt
}
