package egress

import (
	"context"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/atsika/poolbridge/pkg/poolstate"
)

// DiscoveryInterval is how often the Home Assistant config documents are
// re-published (spec §6: "fixed at boot, repeated every 5 minutes").
const DiscoveryInterval = 5 * time.Minute

// Sink is the transport this package publishes onto. The concrete MQTT
// client is out of scope (spec §1 Out-of-scope); callers wire in whatever
// broker client they like, or a no-op for tests.
type Sink interface {
	Publish(topic string, payload []byte) error
}

// StatePublisher renders PoolState snapshots and device discovery documents
// to topic/payload pairs and hands them to a Sink. It implements
// scheduler.Publisher.
type StatePublisher struct {
	table        *Table
	sink         Sink
	snapshotTopic string
	log          *logrus.Entry
}

// NewStatePublisher builds a publisher for the given device table. snapshotTopic
// is the broker-side full-state topic (spec §6: "a full snapshot JSON to a
// broker-side state topic after every change").
func NewStatePublisher(table *Table, sink Sink, snapshotTopic string, log *logrus.Entry) *StatePublisher {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &StatePublisher{table: table, sink: sink, snapshotTopic: snapshotTopic, log: log.WithField("component", "egress_publisher")}
}

// Publish renders every device's state plus the full snapshot JSON (spec
// §4.7 step 2, §6). Called by the scheduler strictly after the store update
// that produced snap has committed.
func (p *StatePublisher) Publish(snap poolstate.Snapshot) {
	for _, d := range p.table.devices {
		payload, ok := renderDeviceState(d, snap)
		if !ok {
			continue
		}
		if err := p.sink.Publish(d.stateTopic(), payload); err != nil {
			p.log.WithError(err).WithField("topic", d.stateTopic()).Warn("publish failed")
		}
	}

	full, err := json.Marshal(snap)
	if err != nil {
		p.log.WithError(err).Error("failed to marshal snapshot")
		return
	}
	if err := p.sink.Publish(p.snapshotTopic, full); err != nil {
		p.log.WithError(err).WithField("topic", p.snapshotTopic).Warn("snapshot publish failed")
	}
}

// PublishDiscovery renders every device's config document. Called once at
// boot and then on DiscoveryInterval.
func (p *StatePublisher) PublishDiscovery() {
	for _, d := range p.table.devices {
		payload, err := json.Marshal(discoveryPayload(d))
		if err != nil {
			p.log.WithError(err).WithField("id", d.ID).Error("failed to marshal discovery document")
			continue
		}
		if err := p.sink.Publish(d.configTopic(), payload); err != nil {
			p.log.WithError(err).WithField("topic", d.configTopic()).Warn("discovery publish failed")
		}
	}
}

// RunDiscoveryLoop republishes discovery documents every DiscoveryInterval
// until ctx is cancelled. Callers run this in its own goroutine.
func (p *StatePublisher) RunDiscoveryLoop(ctx context.Context) {
	p.PublishDiscovery()
	ticker := time.NewTicker(DiscoveryInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.PublishDiscovery()
		}
	}
}

// renderDeviceState produces the /state payload for one device (spec §6):
// ON/OFF for switches, a bare numeric string for sensors, a JSON object with
// mode/target_temp/current_temp for climate.
func renderDeviceState(d Device, snap poolstate.Snapshot) ([]byte, bool) {
	switch d.Kind {
	case Switch:
		if d.Circuit < 0 || d.Circuit >= poolstate.CircuitCount {
			return nil, false
		}
		if snap.Circuits.Active[d.Circuit] {
			return []byte("ON"), true
		}
		return []byte("OFF"), true

	case Climate:
		th := snap.Thermos[d.Body]
		doc := map[string]interface{}{
			"mode":         heatSrcName(th.HeatSrc),
			"target_temp":  th.SetPoint,
			"current_temp": th.Temp,
		}
		payload, err := json.Marshal(doc)
		if err != nil {
			return nil, false
		}
		return payload, true

	case Sensor:
		return sensorValue(d, snap)
	}
	return nil, false
}

// sensorValue resolves one of the handful of read-only sensors this bridge
// exposes, keyed by Device.ID.
func sensorValue(d Device, snap poolstate.Snapshot) ([]byte, bool) {
	switch d.ID {
	case "air_temp":
		return []byte(strconv.Itoa(int(snap.Temps.Air))), true
	case "solar_temp":
		return []byte(strconv.Itoa(int(snap.Temps.Solar))), true
	case "salt_ppm":
		return []byte(strconv.Itoa(snap.Chlor.SaltPPM)), true
	case "chlorinator_pct":
		return []byte(strconv.Itoa(int(snap.Chlor.Pct))), true
	case "pump_watts":
		return []byte(strconv.Itoa(snap.Pump.PowerW)), true
	case "pump_rpm":
		return []byte(strconv.Itoa(snap.Pump.RPM)), true
	}
	return nil, false
}
