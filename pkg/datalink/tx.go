package datalink

import "github.com/atsika/poolbridge/pkg/buffer"

// TXSrcAddr is the address this gateway transmits as: REMOTE device id 2,
// matching the original firmware's outbound identity.
var TXSrcAddr = Addr(GroupRemote, 2)

// TXDstAddr is the address outbound commands target by default: the
// controller itself.
var TXDstAddr = Addr(GroupCtrl, 0)

// HeadSize returns the number of bytes Encode will Push: preamble + fixed
// header, for the given protocol.
func HeadSize(prot Prot) int {
	if prot == IC {
		return len(preambleIC) + icHeaderSize
	}
	return len(preambleA5) + a5HeaderSize
}

// TailSize returns the number of checksum bytes Encode will Put.
func TailSize(prot Prot) int {
	if prot == IC {
		return 1
	}
	return a5TailSize
}

// NewTXBuffer allocates a buffer sized exactly for one frame of the given
// protocol and payload size, with headroom reserved for Encode's Push.
func NewTXBuffer(prot Prot, payloadSize int) *buffer.PacketBuffer {
	buf := buffer.Alloc(HeadSize(prot) + payloadSize + TailSize(prot))
	buf.Reserve(HeadSize(prot))
	return buf
}

// PutPayload copies payload into buf's Put-allocated data region. Callers
// must have sized buf via NewTXBuffer(prot, len(payload)).
func PutPayload(buf *buffer.PacketBuffer, payload []byte) {
	off := buf.Put(len(payload))
	copy(buf.Raw()[off:], payload)
}

// Encode lays down the preamble+header via Push and the checksum via Put,
// over a buffer already holding its payload (per §4.4). It returns the
// finished Packet ready for the Link TX queue.
func Encode(buf *buffer.PacketBuffer, prot Prot, protTyp byte, dst byte) *Packet {
	dataLen := buf.Len()
	payload := buf.Bytes()
	var sum int

	if prot == IC {
		off := buf.Push(icHeaderSize)
		buf.Raw()[off] = dst
		buf.Raw()[off+1] = protTyp
		off = buf.Push(len(preambleIC))
		copy(buf.Raw()[off:], preambleIC)

		sum = int(preambleIC[0]) + int(preambleIC[1]) + int(dst) + int(protTyp)
		for _, b := range buf.Bytes()[len(preambleIC)+icHeaderSize:] {
			sum += int(b)
		}
		tailOff := buf.Put(1)
		buf.Raw()[tailOff] = byte(sum & 0xFF)
	} else {
		off := buf.Push(a5HeaderSize)
		buf.Raw()[off+0] = 1 // ver
		buf.Raw()[off+1] = dst
		buf.Raw()[off+2] = TXSrcAddr
		buf.Raw()[off+3] = protTyp
		buf.Raw()[off+4] = byte(dataLen)
		off = buf.Push(len(preambleA5))
		copy(buf.Raw()[off:], preambleA5)

		sum = int(preambleA5[len(preambleA5)-1]) + 1 + int(dst) + int(TXSrcAddr) + int(protTyp) + dataLen
		for _, b := range buf.Bytes()[len(preambleA5)+a5HeaderSize:] {
			sum += int(b)
		}
		tailOff := buf.Put(2)
		buf.Raw()[tailOff] = byte((sum >> 8) & 0xFF)
		buf.Raw()[tailOff+1] = byte(sum & 0xFF)
	}

	return &Packet{
		Prot:    prot,
		ProtTyp: protTyp,
		Src:     TXSrcAddr,
		Dst:     dst,
		Data:    payload,
		Buffer:  buf,
	}
}
