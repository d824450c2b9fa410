// Package egress implements the Egress Dispatch Table (spec §4.8) and the
// Home Assistant MQTT discovery/state surface (spec §6). It maps IP-side
// commands onto outbound network messages, and the PoolState snapshot onto
// topic/payload pairs for whatever Publisher the caller wires up — the
// concrete MQTT client is explicitly out of scope (spec §1 Out-of-scope);
// this package only owns the topic shape and the JSON rendering, grounded
// in json-iterator/go the way the rest of this module prefers it over
// encoding/json.
package egress

import (
	"fmt"
	"strconv"

	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"

	"github.com/atsika/poolbridge/pkg/datalink"
	"github.com/atsika/poolbridge/pkg/netmsg"
	"github.com/atsika/poolbridge/pkg/poolstate"
	"github.com/atsika/poolbridge/pkg/scheduler"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Kind identifies a Home Assistant device class (spec §4.8).
type Kind string

const (
	Switch  Kind = "switch"
	Sensor  Kind = "sensor"
	Climate Kind = "climate"
)

// Device describes one exposed entity: its discovery identity plus enough
// to both decode a command and render its current state.
type Device struct {
	Kind  Kind
	Board string
	ID    string

	// Circuit identifies the poolstate circuit index for Switch devices.
	Circuit int
	// Body selects which thermostat a Climate device controls.
	Body poolstate.Body
}

func (d Device) topicBase() string {
	return fmt.Sprintf("homeassistant/%s/%s/%s", d.Kind, d.Board, d.ID)
}

// Table is the fixed set of devices this bridge exposes. Populated once at
// construction from the board identity; left small and explicit rather than
// derived, matching spec §4.8's "maps external command topics" wording.
type Table struct {
	devices []Device
	store   *poolstate.Store
	log     *logrus.Entry
}

// NewTable builds the dispatch table for one board. devices is the full set
// of exposed entities; store is consulted for climate partial-update merges.
func NewTable(devices []Device, store *poolstate.Store, log *logrus.Entry) *Table {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Table{devices: devices, store: store, log: log.WithField("component", "egress")}
}

// heatSrcByName/heatSrcName implement the climate set_mode <-> heat source
// code mapping (spec §3 Thermo.HeatSrc), grounded in the original firmware's
// off/gas/solar-preferred/solar heat source enumeration.
var heatSrcByName = map[string]uint8{"off": 0, "gas": 1, "solar_preferred": 2, "solar": 3}
var heatSrcNames = []string{"off", "gas", "solar_preferred", "solar"}

func heatSrcName(code uint8) string {
	if int(code) < len(heatSrcNames) {
		return heatSrcNames[code]
	}
	return "off"
}

// Dispatch implements scheduler.Dispatcher: map an inbound (topic, value)
// command to a network message kind, payload, and destination address.
func (t *Table) Dispatch(cmd scheduler.Command) (netmsg.Kind, []byte, byte, bool) {
	for _, d := range t.devices {
		base := d.topicBase()
		switch {
		case d.Kind == Switch && cmd.Topic == base+"/set":
			on := byte(0)
			if cmd.Value == "ON" {
				on = 1
			}
			return netmsg.CtrlCircuitSet, []byte{byte(d.Circuit), on}, datalink.TXDstAddr, true

		case d.Kind == Climate && cmd.Topic == base+"/set_mode":
			code, ok := heatSrcByName[cmd.Value]
			if !ok {
				t.log.WithField("value", cmd.Value).Warn("unknown heat source mode")
				return netmsg.None, nil, 0, false
			}
			return t.buildHeatSet(d.Body, &code, nil)

		case d.Kind == Climate && cmd.Topic == base+"/set_temp":
			temp, err := strconv.Atoi(cmd.Value)
			if err != nil || temp < 0 || temp > 255 {
				t.log.WithField("value", cmd.Value).Warn("invalid climate set_temp value")
				return netmsg.None, nil, 0, false
			}
			setpoint := uint8(temp)
			return t.buildHeatSet(d.Body, nil, &setpoint)
		}
	}
	return netmsg.None, nil, 0, false
}

// buildHeatSet merges a partial climate update (mode or temp alone) with the
// other body's last-known setpoint/heat-source so CTRL_HEAT_SET's 4-byte
// payload — {poolSetpoint, spaSetpoint, heatSrc, reserved} — always carries
// both bodies, per spec §4.8's "partial update preserves the other field".
func (t *Table) buildHeatSet(body poolstate.Body, newHeatSrc *uint8, newSetpoint *uint8) (netmsg.Kind, []byte, byte, bool) {
	snap, _ := t.store.Get()

	poolSet, spaSet := snap.Thermos[poolstate.Pool].SetPoint, snap.Thermos[poolstate.Spa].SetPoint
	poolSrc, spaSrc := snap.Thermos[poolstate.Pool].HeatSrc, snap.Thermos[poolstate.Spa].HeatSrc

	if newSetpoint != nil {
		if body == poolstate.Pool {
			poolSet = *newSetpoint
		} else {
			spaSet = *newSetpoint
		}
	}
	if newHeatSrc != nil {
		if body == poolstate.Pool {
			poolSrc = *newHeatSrc
		} else {
			spaSrc = *newHeatSrc
		}
	}

	heatSrc := (poolSrc & 0x03) | (spaSrc << 2)
	return netmsg.CtrlHeatSet, []byte{poolSet, spaSet, heatSrc, 0}, datalink.TXDstAddr, true
}

// stateTopic/configTopic are the publish-side topic names for one device.
func (d Device) stateTopic() string  { return d.topicBase() + "/state" }
func (d Device) configTopic() string { return d.topicBase() + "/config" }

// discoveryPayload renders the Home Assistant discovery document for d
// (spec §6 "config" topic). Kept deliberately small: the fields Home
// Assistant requires to surface an entity, nothing device-specific beyond
// name/unique_id/topics.
func discoveryPayload(d Device) map[string]interface{} {
	uniqueID := fmt.Sprintf("%s_%s_%s", d.Board, d.Kind, d.ID)
	doc := map[string]interface{}{
		"name":          d.ID,
		"unique_id":     uniqueID,
		"state_topic":   d.stateTopic(),
		"device": map[string]interface{}{
			"identifiers": []string{d.Board},
			"name":        d.Board,
		},
	}
	if d.Kind != Sensor {
		doc["command_topic"] = d.topicBase() + "/set"
	}
	if d.Kind == Climate {
		doc["mode_command_topic"] = d.topicBase() + "/set_mode"
		doc["temperature_command_topic"] = d.topicBase() + "/set_temp"
	}
	return doc
}
