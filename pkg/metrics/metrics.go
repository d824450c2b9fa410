// Package metrics defines the counter surface every core component reports
// through, generalizing the teacher's atomic-counter Metrics interface from
// connection/transaction counts to the pool-bridge's frame/queue/store
// events.
package metrics

import "sync/atomic"

// Metrics is implemented by anything that wants to observe bridge activity.
// Components call Increment* on their hot path; collectors read via Get*.
type Metrics interface {
	IncrementFrameFound(prot string)
	IncrementCRCFailure(prot string)
	IncrementFrameDiscarded(prot string)
	IncrementQueueDrop()
	IncrementTransmitOpportunity()
	IncrementStoreUpdated()
	IncrementStoreUnchanged()
	IncrementBytesSent(n int64)
	IncrementBytesReceived(n int64)

	GetFramesFound() int64
	GetCRCFailures() int64
	GetFramesDiscarded() int64
	GetQueueDrops() int64
	GetTransmitOpportunities() int64
	GetStoreUpdates() int64
	GetBytesSent() int64
	GetBytesReceived() int64
}

// Default implements Metrics with plain atomic counters, for tests and for
// deployments that don't want a Prometheus dependency.
type Default struct {
	framesFound            int64
	crcFailures            int64
	framesDiscarded        int64
	queueDrops             int64
	transmitOpportunities  int64
	storeUpdates           int64
	storeUnchanged         int64
	bytesSent              int64
	bytesReceived          int64
}

// NewDefault returns a zeroed Default metrics instance.
func NewDefault() *Default { return &Default{} }

func (m *Default) IncrementFrameFound(string)           { atomic.AddInt64(&m.framesFound, 1) }
func (m *Default) IncrementCRCFailure(string)           { atomic.AddInt64(&m.crcFailures, 1) }
func (m *Default) IncrementFrameDiscarded(string)       { atomic.AddInt64(&m.framesDiscarded, 1) }
func (m *Default) IncrementQueueDrop()                  { atomic.AddInt64(&m.queueDrops, 1) }
func (m *Default) IncrementTransmitOpportunity()        { atomic.AddInt64(&m.transmitOpportunities, 1) }
func (m *Default) IncrementStoreUpdated()               { atomic.AddInt64(&m.storeUpdates, 1) }
func (m *Default) IncrementStoreUnchanged()             { atomic.AddInt64(&m.storeUnchanged, 1) }
func (m *Default) IncrementBytesSent(n int64)           { atomic.AddInt64(&m.bytesSent, n) }
func (m *Default) IncrementBytesReceived(n int64)       { atomic.AddInt64(&m.bytesReceived, n) }

func (m *Default) GetFramesFound() int64           { return atomic.LoadInt64(&m.framesFound) }
func (m *Default) GetCRCFailures() int64           { return atomic.LoadInt64(&m.crcFailures) }
func (m *Default) GetFramesDiscarded() int64       { return atomic.LoadInt64(&m.framesDiscarded) }
func (m *Default) GetQueueDrops() int64            { return atomic.LoadInt64(&m.queueDrops) }
func (m *Default) GetTransmitOpportunities() int64 { return atomic.LoadInt64(&m.transmitOpportunities) }
func (m *Default) GetStoreUpdates() int64          { return atomic.LoadInt64(&m.storeUpdates) }
func (m *Default) GetBytesSent() int64             { return atomic.LoadInt64(&m.bytesSent) }
func (m *Default) GetBytesReceived() int64         { return atomic.LoadInt64(&m.bytesReceived) }
