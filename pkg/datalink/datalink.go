// Package datalink implements the framing layer for the two wire protocols
// that coexist on the pool-automation RS-485 bus: A5 (split into A5_CTRL
// and A5_PUMP once the header is read) and IC. It is grounded in
// original_source/interface/main/datalink/{datalink_rx.c,datalink.h,
// datalink_pkt.h} and the skb.c packet-buffer discipline, and follows the
// spec's re-architecture guidance (§9): a single module owns the packet
// type, consumed one-way by the network codec.
package datalink

import (
	"github.com/atsika/poolbridge/pkg/buffer"
)

// Prot identifies which of the coexisting wire protocols (and, for A5,
// which address-group variant) a packet belongs to.
type Prot int

const (
	IC Prot = iota
	A5Ctrl
	A5Pump
)

func (p Prot) String() string {
	switch p {
	case IC:
		return "ic"
	case A5Ctrl:
		return "a5_ctrl"
	case A5Pump:
		return "a5_pump"
	default:
		return "unknown"
	}
}

// AddrGroup is the high nibble of an 8-bit device address.
type AddrGroup byte

const (
	GroupAll      AddrGroup = 0x0
	GroupCtrl     AddrGroup = 0x1
	GroupRemote   AddrGroup = 0x2
	GroupChlor    AddrGroup = 0x5
	GroupPump     AddrGroup = 0x6
	GroupReserved AddrGroup = 0x9 // filtered by the network codec
)

// Addr builds an 8-bit device address from a group and device id.
func Addr(group AddrGroup, id byte) byte { return byte(group)<<4 | (id & 0x0F) }

// Group extracts the address group from an 8-bit device address.
func Group(addr byte) AddrGroup { return AddrGroup(addr >> 4) }

// MaxDataSize is DATALINK_MAX_DATA_SIZE: the largest A5 payload and the
// buffer capacity reserved for any payload region.
const MaxDataSize = 32

// Preamble byte sequences. IC is checked before A5 during FIND_PREAMBLE,
// matching original_source's proto_info_t ordering.
var (
	preambleIC = []byte{0x10, 0x02}
	preambleA5 = []byte{0x00, 0xFF, 0xA5}
)

// Header sizes, in bytes, not counting the preamble.
const (
	a5HeaderSize = 5 // ver, dst, src, typ, len
	icHeaderSize = 2 // dst, typ
	a5TailSize   = 2 // 2-byte big-endian checksum
	icTailSize   = 1 + 2 // 1-byte checksum + 10 03 postamble
)

// maxHead is the largest possible head region (preamble + header) across
// both protocols. RX does not use it: it reserves no headroom in its payload
// buffer and collects header bytes in a separate slice.
const maxHead = len(preambleA5) + a5HeaderSize

// maxTail is the largest possible tail region across both protocols. RX does
// not use it either; it collects tail bytes in a separate slice.
const maxTail = icTailSize

// a5Header is the fixed 5-byte A5 header.
type a5Header struct {
	Ver byte
	Dst byte
	Src byte
	Typ byte
	Len byte
}

// icHeader is the fixed 2-byte IC header.
type icHeader struct {
	Dst byte
	Typ byte
}

// Packet is the decoded/pending-encode unit exchanged between Datalink and
// the Network codec (datalink_pkt in the original). For a packet built by
// Encode, Data aliases the payload window of Buffer and is borrowed until
// Buffer is released. A packet returned by RX carries a copy of the payload
// in Data, since RX reuses its Buffer for the next frame.
type Packet struct {
	Prot    Prot
	ProtTyp byte
	Src     byte
	Dst     byte
	Data    []byte
	Buffer  *buffer.PacketBuffer
}

// IsTransmitOpportunity reports whether this packet is an A5 controller
// broadcast to ALL — the only event that opens a transmit window (spec §4.5,
// §4.7 step 3).
func (p *Packet) IsTransmitOpportunity() bool {
	return p.Prot == A5Ctrl && Group(p.Src) == GroupCtrl && Group(p.Dst) == GroupAll
}

// icPayloadLen looks up the fixed payload length for an IC typecode,
// reconstructed from the original chlorinator message struct layouts
// (pentair.h mChlor*_ic_t). Unknown typecodes return (0, false) and the RX
// state machine discards the frame (error taxonomy class 2).
func icPayloadLen(typ byte) (int, bool) {
	switch typ {
	case 0x00: // CHLOR_PING_REQ: mChlorPingReq_ic_t
		return 1, true
	case 0x01: // CHLOR_PING: mChlorPing_ic_t{UNKNOWN_0, UNKNOWN_1}
		return 2, true
	case 0x03: // CHLOR_NAME: mChlorName_ic_t{UNKNOWN_0, name[16]}
		return 17, true
	case 0x11: // CHLOR_LVLSET: mChlorLvlSet_ic_t{pct}
		return 1, true
	case 0x12: // CHLOR_LVLSET_RESP: mChlorLvlSetResp_ic_t{salt, err}
		return 2, true
	case 0x14: // mChlor0X14_ic_t
		return 1, true
	default:
		return 0, false
	}
}
