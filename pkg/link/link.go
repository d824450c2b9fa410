// Package link abstracts the half-duplex RS-485 byte transport: UART I/O,
// RTS-gated transmit windows, and the bounded outbound frame queue the
// scheduler drains on a transmit opportunity. The physical UART/GPIO
// primitives are out of scope (spec Non-goals); this package only defines
// the contract a concrete driver must satisfy and the queueing discipline
// built on top of it.
package link

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/atsika/poolbridge/pkg/datalink"
	"github.com/atsika/poolbridge/pkg/metrics"
)

// FlushDelay is the minimum time to wait after flushing the TX FIFO before
// lowering RTS: one character time at 9600 baud (8N1 -> ~1.04ms/char,
// rounded up per the original firmware's 1.5ms guard band).
const FlushDelay = 1500 * time.Microsecond

// QueueDepth is the minimum outbound FIFO depth required by the spec.
const QueueDepth = 5

// UART is the external byte-transport primitive the Link drives. A concrete
// implementation talks to the physical RS-485 transceiver; it is supplied
// by the caller and never implemented in this module.
type UART interface {
	// ReadBytes blocks up to timeout waiting for at least one byte, filling
	// dst and returning how many bytes were read. A timeout with zero bytes
	// read returns (0, nil), not an error.
	ReadBytes(ctx context.Context, dst []byte, timeout time.Duration) (int, error)
	// WriteBytes pushes data into the hardware TX FIFO. It does not block
	// until the bytes are actually on the wire.
	WriteBytes(data []byte) error
	// Flush blocks until the TX FIFO has drained onto the wire.
	Flush() error
	// SetRTS raises (true) or lowers (false) the RTS line.
	SetRTS(asserted bool) error
}

// Link owns the UART and the outbound packet queue. Per spec §5, exactly one
// goroutine (the PoolTask scheduler) may call ReadBytes/Transmit; Queue may
// be called concurrently by any producer (PeriodicRequester, egress).
type Link struct {
	uart    UART
	queue   chan *datalink.Packet
	metrics metrics.Metrics
	log     *logrus.Entry
}

// New constructs a Link over the given UART with the spec-mandated minimum
// queue depth.
func New(uart UART, m metrics.Metrics, log *logrus.Entry) *Link {
	if m == nil {
		m = metrics.NewDefault()
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Link{
		uart:    uart,
		queue:   make(chan *datalink.Packet, QueueDepth),
		metrics: m,
		log:     log.WithField("component", "link"),
	}
}

// ReadBytes reads up to len(dst) bytes, blocking at most timeout.
func (l *Link) ReadBytes(ctx context.Context, dst []byte, timeout time.Duration) (int, error) {
	n, err := l.uart.ReadBytes(ctx, dst, timeout)
	if n > 0 {
		l.metrics.IncrementBytesReceived(int64(n))
	}
	return n, err
}

// Transmit raises RTS, writes data, flushes the FIFO, waits FlushDelay, then
// lowers RTS — the only legal way to put bytes on a half-duplex bus shared
// with the controller.
func (l *Link) Transmit(data []byte) error {
	if err := l.uart.SetRTS(true); err != nil {
		return err
	}
	writeErr := l.uart.WriteBytes(data)
	flushErr := l.uart.Flush()
	time.Sleep(FlushDelay)
	rtsErr := l.uart.SetRTS(false)

	if writeErr != nil {
		return writeErr
	}
	if flushErr != nil {
		return flushErr
	}
	if rtsErr != nil {
		return rtsErr
	}
	l.metrics.IncrementBytesSent(int64(len(data)))
	return nil
}

// Queue enqueues a packet for transmission on the next opportunity. If the
// queue is full the packet is dropped and its buffer released; this is a
// logged, non-fatal condition (error taxonomy class 3).
func (l *Link) Queue(pkt *datalink.Packet) {
	select {
	case l.queue <- pkt:
	default:
		l.metrics.IncrementQueueDrop()
		l.log.WithFields(logrus.Fields{"prot": pkt.Prot, "typ": pkt.ProtTyp}).Warn("link TX queue full, dropping packet")
	}
}

// Dequeue pops one queued packet, or returns (nil, false) if the queue is
// empty. Ownership of the packet's buffer passes to the caller.
func (l *Link) Dequeue() (*datalink.Packet, bool) {
	select {
	case pkt := <-l.queue:
		return pkt, true
	default:
		return nil, false
	}
}

// Pending reports whether at least one packet is queued, without dequeuing.
func (l *Link) Pending() bool { return len(l.queue) > 0 }
