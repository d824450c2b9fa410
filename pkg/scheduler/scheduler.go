// Package scheduler implements the PoolTask main loop and the
// PeriodicRequester (spec §4.7): the single goroutine that owns the Link's
// RX/TX and drives decode -> update -> emit, plus the 30s periodic
// HEAT_REQ/SCHED_REQ poller. Grounded in the teacher's cooperating-task
// shape (Listener.Accept / janitor loops in aznet.go) generalized from
// connection bookkeeping to the RS-485 half-duplex protocol.
package scheduler

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/atsika/poolbridge/pkg/datalink"
	"github.com/atsika/poolbridge/pkg/link"
	"github.com/atsika/poolbridge/pkg/metrics"
	"github.com/atsika/poolbridge/pkg/netmsg"
	"github.com/atsika/poolbridge/pkg/poolstate"
)

// ReadTimeout is the per-read budget the RX state machine blocks up to
// (spec §5).
const ReadTimeout = 100 * time.Millisecond

// PeriodicInterval is the cadence of the HEAT_REQ/SCHED_REQ burst.
const PeriodicInterval = 30 * time.Second

// Command is one IP-side inbound request: an external command topic and its
// value, handed to a Dispatcher to become an outbound network message.
type Command struct {
	Topic string
	Value string
}

// Dispatcher maps an inbound Command to a network message kind and payload
// (the Egress Dispatch Table, spec §4.8). Implemented by pkg/egress;
// declared here to keep the scheduler -> egress dependency inverted, the
// same way the teacher inverts Driver/Factory behind an interface the core
// package owns.
type Dispatcher interface {
	Dispatch(cmd Command) (kind netmsg.Kind, payload []byte, addr byte, ok bool)
}

// Publisher receives the full snapshot after every state change, for the
// MQTT/HTTP egress surface (spec §4.7 step 2, §6).
type Publisher interface {
	Publish(snap poolstate.Snapshot)
}

// Task is the PoolTask: it exclusively owns the Link's RX/TX per spec §5.
type Task struct {
	link    *link.Link
	rx      *datalink.RX
	codec   *netmsg.Codec
	store   *poolstate.Store
	inbound <-chan Command
	dispatch Dispatcher
	publish  Publisher
	metrics metrics.Metrics
	log     *logrus.Entry
}

// New constructs a PoolTask. inbound is the non-blocking `to-pool` command
// queue (spec §5 IngressFromIP); it may be nil if no IP-side commands are
// wired up.
func New(l *link.Link, codec *netmsg.Codec, store *poolstate.Store, inbound <-chan Command, dispatch Dispatcher, publish Publisher, m metrics.Metrics, log *logrus.Entry) *Task {
	if m == nil {
		m = metrics.NewDefault()
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Task{
		link:     l,
		rx:       datalink.NewRX(m, log),
		codec:    codec,
		store:    store,
		inbound:  inbound,
		dispatch: dispatch,
		publish:  publish,
		metrics:  m,
		log:      log.WithField("component", "scheduler"),
	}
}

// Startup enqueues the two boot-time requests (spec §4.7): VERSION_REQ and
// TIME_REQ.
func (t *Task) Startup() {
	t.enqueue(netmsg.CtrlVersionReq, nil, 0)
	t.enqueue(netmsg.CtrlTimeReq, nil, 0)
}

// Run executes the main loop until ctx is cancelled. Each iteration
// performs, in order: service one inbound IP command, drive the RX state
// machine for one read cycle, and — if that cycle surfaced a transmit
// opportunity — drain one queued packet onto the wire.
func (t *Task) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		t.serviceInbound()

		pkt, err := t.rx.Receive(ctx, t.link, ReadTimeout)
		if err != nil {
			t.log.WithError(err).Error("link read failed")
			continue
		}
		if pkt == nil {
			continue
		}

		msg := t.codec.Decode(pkt)
		t.applyAndPublish(msg)

		if msg.TransmitOpportunity {
			t.metrics.IncrementTransmitOpportunity()
			t.actOnOpportunity()
		}
	}
}

func (t *Task) serviceInbound() {
	if t.inbound == nil || t.dispatch == nil {
		return
	}
	select {
	case cmd := <-t.inbound:
		kind, payload, addr, ok := t.dispatch.Dispatch(cmd)
		if !ok {
			t.log.WithField("topic", cmd.Topic).Warn("unknown command topic")
			return
		}
		t.enqueue(kind, payload, addr)
	default:
	}
}

func (t *Task) enqueue(kind netmsg.Kind, payload []byte, addr byte) {
	pkt, ok := t.codec.Encode(kind, payload, addr)
	if !ok {
		return
	}
	t.link.Queue(pkt)
}

// actOnOpportunity pops one queued packet, writes it to the wire under the
// RTS-gated discipline, and feeds it back through decode-and-update so local
// commands observably change the snapshot without waiting for an echo
// (spec §4.7 step 3, §9).
func (t *Task) actOnOpportunity() {
	pkt, ok := t.link.Dequeue()
	if !ok {
		return
	}
	if err := t.link.Transmit(pkt.Buffer.Head()); err != nil {
		t.log.WithError(err).Error("transmit failed")
		return
	}
	msg := t.codec.Decode(pkt)
	t.applyAndPublish(msg)
}

func (t *Task) applyAndPublish(msg netmsg.Message) {
	if msg.Kind == netmsg.None {
		return
	}
	if t.store.UpdateFrom(msg) && t.publish != nil {
		snap, _ := t.store.Get()
		t.publish.Publish(snap)
	}
}

// PeriodicRequester issues HEAT_REQ and SCHED_REQ every PeriodicInterval,
// queuing through the same Link TX queue as everything else (spec §4.7,
// §5). It never touches the Link's RX path.
type PeriodicRequester struct {
	link  *link.Link
	codec *netmsg.Codec
	log   *logrus.Entry
}

func NewPeriodicRequester(l *link.Link, codec *netmsg.Codec, log *logrus.Entry) *PeriodicRequester {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &PeriodicRequester{link: l, codec: codec, log: log.WithField("component", "periodic_requester")}
}

func (p *PeriodicRequester) Run(ctx context.Context) {
	ticker := time.NewTicker(PeriodicInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.burst()
		}
	}
}

func (p *PeriodicRequester) burst() {
	for _, kind := range []netmsg.Kind{netmsg.CtrlHeatReq, netmsg.CtrlSchedReq} {
		pkt, ok := p.codec.Encode(kind, nil, 0)
		if !ok {
			p.log.WithField("kind", kind).Warn("failed to encode periodic request")
			continue
		}
		p.link.Queue(pkt)
	}
}
