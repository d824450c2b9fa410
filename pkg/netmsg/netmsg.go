// Package netmsg implements the Network codec (spec §4.5): a single
// declarative table mapping typed message kinds to
// (datalink protocol, protocol typecode, fixed payload size), used
// bidirectionally to decode datalink.Packet into typed messages and encode
// typed messages back into datalink.Packet for transmission.
//
// Grounded in original_source/interface/main/proto/pentair.h for the wire
// byte layouts, re-architected per spec §9 as a declarative table instead
// of the original's X-macro-generated enum, and as a kind tag plus the raw
// payload bytes instead of pointer-casts over a buffer.
package netmsg

import (
	"github.com/sirupsen/logrus"

	"github.com/atsika/poolbridge/pkg/datalink"
	"github.com/atsika/poolbridge/pkg/metrics"
)

// Kind identifies one of the ~32 typed messages the bridge understands.
type Kind int

const (
	None Kind = iota

	CtrlState
	CtrlStateSet
	CtrlStateReq
	CtrlTime
	CtrlTimeSet
	CtrlTimeReq
	CtrlHeat
	CtrlHeatSet
	CtrlHeatReq
	CtrlSchedResp
	CtrlSchedReq
	CtrlCircuitSet
	CtrlVersionReq
	CtrlVersionResp

	PumpStatusResp
	PumpStatusReq
	PumpRegulateSet
	PumpRegulateSetResp
	PumpControlSet
	PumpModeSet
	PumpModeResp
	PumpStateSet
	PumpStateResp
	Pump0xFF

	ChlorPingReq
	ChlorPingResp
	ChlorNameResp
	ChlorLevelSet
	ChlorLevelResp
	Chlor0x14
)

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "none"
}

var kindNames = map[Kind]string{
	CtrlState: "CTRL_STATE", CtrlStateSet: "CTRL_STATE_SET", CtrlStateReq: "CTRL_STATE_REQ",
	CtrlTime: "CTRL_TIME", CtrlTimeSet: "CTRL_TIME_SET", CtrlTimeReq: "CTRL_TIME_REQ",
	CtrlHeat: "CTRL_HEAT", CtrlHeatSet: "CTRL_HEAT_SET", CtrlHeatReq: "CTRL_HEAT_REQ",
	CtrlSchedResp: "CTRL_SCHED_RESP", CtrlSchedReq: "CTRL_SCHED_REQ",
	CtrlCircuitSet: "CTRL_CIRCUIT_SET", CtrlVersionReq: "CTRL_VERSION_REQ", CtrlVersionResp: "CTRL_VERSION_RESP",
	PumpStatusResp: "PUMP_STATUS_RESP", PumpStatusReq: "PUMP_STATUS_REQ",
	PumpRegulateSet: "PUMP_REGULATE_SET", PumpRegulateSetResp: "PUMP_REGULATE_SET_RESP",
	PumpControlSet: "PUMP_CONTROL_SET", PumpModeSet: "PUMP_MODE_SET", PumpModeResp: "PUMP_MODE_RESP",
	PumpStateSet: "PUMP_STATE_SET", PumpStateResp: "PUMP_STATE_RESP", Pump0xFF: "PUMP_0XFF",
	ChlorPingReq: "CHLOR_PING_REQ", ChlorPingResp: "CHLOR_PING_RESP", ChlorNameResp: "CHLOR_NAME_RESP",
	ChlorLevelSet: "CHLOR_LEVEL_SET", ChlorLevelResp: "CHLOR_LEVEL_RESP", Chlor0x14: "CHLOR_0X14",
}

// direction distinguishes, for A5_PUMP typecodes shared between request and
// response, which variant a given frame represents (spec §4.5: "dst ∈ PUMP
// ⇒ request-to-pump variant; otherwise response-from-pump").
type direction int

const (
	either direction = iota
	toPump
	fromPump
)

// row is one entry of the declarative dispatch table.
type row struct {
	kind Kind
	size int
	prot datalink.Prot
	typ  byte
	dir  direction
}

var table = []row{
	{CtrlStateReq, 0, datalink.A5Ctrl, 0xC2, either},
	{CtrlState, 29, datalink.A5Ctrl, 0x02, either},
	{CtrlStateSet, 2, datalink.A5Ctrl, 0x82, either},
	{CtrlTimeReq, 0, datalink.A5Ctrl, 0xC5, either},
	{CtrlTime, 8, datalink.A5Ctrl, 0x05, either},
	{CtrlTimeSet, 8, datalink.A5Ctrl, 0x85, either},
	{CtrlHeatReq, 0, datalink.A5Ctrl, 0xC8, either},
	{CtrlHeat, 13, datalink.A5Ctrl, 0x08, either},
	{CtrlHeatSet, 4, datalink.A5Ctrl, 0x88, either},
	{CtrlSchedReq, 0, datalink.A5Ctrl, 0xDE, either},
	{CtrlSchedResp, 16, datalink.A5Ctrl, 0x1E, either},
	{CtrlCircuitSet, 2, datalink.A5Ctrl, 0x86, either},
	{CtrlVersionReq, 0, datalink.A5Ctrl, 0xFB, either},
	{CtrlVersionResp, 2, datalink.A5Ctrl, 0xFC, either},

	{PumpRegulateSet, 4, datalink.A5Pump, 0x01, toPump},
	{PumpRegulateSetResp, 4, datalink.A5Pump, 0x01, fromPump},
	{PumpControlSet, 1, datalink.A5Pump, 0x04, toPump},
	{PumpModeSet, 1, datalink.A5Pump, 0x05, toPump},
	{PumpModeResp, 1, datalink.A5Pump, 0x05, fromPump},
	{PumpStateSet, 1, datalink.A5Pump, 0x06, toPump},
	{PumpStateResp, 1, datalink.A5Pump, 0x06, fromPump},
	{PumpStatusReq, 0, datalink.A5Pump, 0x07, toPump},
	{PumpStatusResp, 15, datalink.A5Pump, 0x07, fromPump},
	// typ=0xFF is received from the pump and silently ignored per the
	// original firmware and spec §9 Open Questions; kept in the table so
	// the codec recognizes and drops it rather than logging it as unknown.
	{Pump0xFF, 0, datalink.A5Pump, 0xFF, fromPump},

	{ChlorPingReq, 1, datalink.IC, 0x00, either},
	{ChlorPingResp, 2, datalink.IC, 0x01, either},
	{ChlorNameResp, 17, datalink.IC, 0x03, either},
	{ChlorLevelSet, 1, datalink.IC, 0x11, either},
	{ChlorLevelResp, 2, datalink.IC, 0x12, either},
	{Chlor0x14, 1, datalink.IC, 0x14, either},
}

// Message is the decoded result of a datalink.Packet: a kind tag plus the
// packet's Data slice (shared with the Packet, not copied) and the
// source/destination addresses carried on the wire.
type Message struct {
	Kind Kind
	Src  byte
	Dst  byte
	Data []byte

	// TransmitOpportunity mirrors datalink.Packet.IsTransmitOpportunity,
	// surfaced alongside every decode per spec §4.5.
	TransmitOpportunity bool
}

// Codec decodes/encodes between datalink.Packet and Message using the
// declarative table above.
type Codec struct {
	metrics metrics.Metrics
	log     *logrus.Entry
}

func NewCodec(m metrics.Metrics, log *logrus.Entry) *Codec {
	if m == nil {
		m = metrics.NewDefault()
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Codec{metrics: m, log: log.WithField("component", "netmsg")}
}

// Decode maps a received datalink.Packet to a typed Message. Packets
// addressed to the reserved group, or IC packets not addressed to ALL or
// CHLOR, are dropped per spec §4.5 filtering rules. Unknown (prot, typ) or
// a size mismatch yields Kind == None (error taxonomy class 2).
func (c *Codec) Decode(pkt *datalink.Packet) Message {
	if datalink.Group(pkt.Dst) == datalink.GroupReserved {
		return Message{}
	}
	if pkt.Prot == datalink.IC {
		g := datalink.Group(pkt.Dst)
		if g != datalink.GroupAll && g != datalink.GroupChlor {
			return Message{}
		}
	}

	isOpp := pkt.IsTransmitOpportunity()
	toPumpDir := pkt.Prot == datalink.A5Pump && datalink.Group(pkt.Dst) == datalink.GroupPump

	for _, r := range table {
		if r.prot != pkt.Prot || r.typ != pkt.ProtTyp {
			continue
		}
		if r.dir == toPump && !toPumpDir {
			continue
		}
		if r.dir == fromPump && toPumpDir {
			continue
		}
		if len(pkt.Data) != r.size {
			continue
		}
		return Message{Kind: r.kind, Src: pkt.Src, Dst: pkt.Dst, Data: pkt.Data, TransmitOpportunity: isOpp}
	}

	c.metrics.IncrementFrameDiscarded(pkt.Prot.String())
	c.log.WithFields(logrus.Fields{"prot": pkt.Prot, "typ": pkt.ProtTyp, "len": len(pkt.Data)}).
		Debug("no matching network codec row")
	return Message{TransmitOpportunity: isOpp}
}

// Encode builds a datalink.Packet ready for the Link TX queue from a kind
// and its payload bytes. dst defaults to the controller address
// (datalink.TXDstAddr) when addr is 0.
func (c *Codec) Encode(kind Kind, payload []byte, addr byte) (*datalink.Packet, bool) {
	for _, r := range table {
		if r.kind != kind {
			continue
		}
		if len(payload) != r.size {
			c.log.WithField("kind", kind).Warn("payload size mismatch encoding message")
			return nil, false
		}
		dst := addr
		if dst == 0 {
			dst = datalink.TXDstAddr
		}
		buf := datalink.NewTXBuffer(r.prot, r.size)
		datalink.PutPayload(buf, payload)
		return datalink.Encode(buf, r.prot, r.typ, dst), true
	}
	return nil, false
}
