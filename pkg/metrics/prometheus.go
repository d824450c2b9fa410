package metrics

import "github.com/prometheus/client_golang/prometheus"

// Prometheus implements Metrics by registering counters against the supplied
// registerer: the frame, CRC and discard counters are vectors labelled by
// protocol ("prot"); the rest are plain counters with no labels.
type Prometheus struct {
	framesFound           *prometheus.CounterVec
	crcFailures           *prometheus.CounterVec
	framesDiscarded       *prometheus.CounterVec
	queueDrops            prometheus.Counter
	transmitOpportunities prometheus.Counter
	storeUpdates          prometheus.Counter
	storeUnchanged        prometheus.Counter
	bytesSent             prometheus.Counter
	bytesReceived         prometheus.Counter
}

// NewPrometheus registers the bridge's metrics against reg and returns a
// Metrics implementation backed by them.
func NewPrometheus(reg prometheus.Registerer) *Prometheus {
	p := &Prometheus{
		framesFound: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "poolbridge", Name: "frames_found_total", Help: "Frames recognized by the datalink RX state machine, by protocol.",
		}, []string{"prot"}),
		crcFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "poolbridge", Name: "crc_failures_total", Help: "Frames discarded for a CRC mismatch, by protocol.",
		}, []string{"prot"}),
		framesDiscarded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "poolbridge", Name: "frames_discarded_total", Help: "Frames discarded for any reason other than CRC, by protocol.",
		}, []string{"prot"}),
		queueDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "poolbridge", Name: "link_queue_drops_total", Help: "Packets dropped because the Link TX queue was full.",
		}),
		transmitOpportunities: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "poolbridge", Name: "transmit_opportunities_total", Help: "Controller broadcasts recognized as a transmit opportunity.",
		}),
		storeUpdates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "poolbridge", Name: "store_updates_total", Help: "PoolState updates that changed the snapshot.",
		}),
		storeUnchanged: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "poolbridge", Name: "store_unchanged_total", Help: "PoolState updates that left the snapshot unchanged.",
		}),
		bytesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "poolbridge", Name: "link_bytes_sent_total", Help: "Bytes written to the RS-485 bus.",
		}),
		bytesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "poolbridge", Name: "link_bytes_received_total", Help: "Bytes read from the RS-485 bus.",
		}),
	}
	reg.MustRegister(p.framesFound, p.crcFailures, p.framesDiscarded, p.queueDrops,
		p.transmitOpportunities, p.storeUpdates, p.storeUnchanged, p.bytesSent, p.bytesReceived)
	return p
}

func (p *Prometheus) IncrementFrameFound(prot string)     { p.framesFound.WithLabelValues(prot).Inc() }
func (p *Prometheus) IncrementCRCFailure(prot string)     { p.crcFailures.WithLabelValues(prot).Inc() }
func (p *Prometheus) IncrementFrameDiscarded(prot string) { p.framesDiscarded.WithLabelValues(prot).Inc() }
func (p *Prometheus) IncrementQueueDrop()                 { p.queueDrops.Inc() }
func (p *Prometheus) IncrementTransmitOpportunity()       { p.transmitOpportunities.Inc() }
func (p *Prometheus) IncrementStoreUpdated()              { p.storeUpdates.Inc() }
func (p *Prometheus) IncrementStoreUnchanged()            { p.storeUnchanged.Inc() }
func (p *Prometheus) IncrementBytesSent(n int64)          { p.bytesSent.Add(float64(n)) }
func (p *Prometheus) IncrementBytesReceived(n int64)      { p.bytesReceived.Add(float64(n)) }

// GetFramesFound and the remaining Get* accessors exist only to satisfy the
// Metrics interface: every one of them returns 0, for the vector and the
// plain counters alike. The recorded values are available only through the
// Prometheus registerer.
func (p *Prometheus) GetFramesFound() int64           { return 0 }
func (p *Prometheus) GetCRCFailures() int64           { return 0 }
func (p *Prometheus) GetFramesDiscarded() int64       { return 0 }
func (p *Prometheus) GetQueueDrops() int64            { return 0 }
func (p *Prometheus) GetTransmitOpportunities() int64 { return 0 }
func (p *Prometheus) GetStoreUpdates() int64          { return 0 }
func (p *Prometheus) GetBytesSent() int64             { return 0 }
func (p *Prometheus) GetBytesReceived() int64         { return 0 }
