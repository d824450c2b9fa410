// Package poolstate implements the single mutex-guarded PoolState snapshot
// (spec §3, §4.6): one process-wide instance, updated by decoded network
// messages under per-kind mutation rules, with change detection gating the
// MQTT/HTTP egress publish.
//
// Wire byte offsets for the CTRL_STATE/CTRL_TIME/CTRL_HEAT/CTRL_SCHED_RESP
// messages are grounded in original_source/interface/main/network/
// network_msg.h's network_msg_ctrl_*_t structs (the actual wire layout);
// poolstate.h only describes the already-decoded domain struct and has no
// wire offsets at all. Per-kind mutation semantics follow spec.md §3/§4.6
// rather than the vestigial original_source/poolstate/receive_update.c
// (superseded per spec §9 Open Questions).
package poolstate

import (
	"sync"

	"github.com/atsika/poolbridge/pkg/metrics"
	"github.com/atsika/poolbridge/pkg/netmsg"
)

// CircuitCount is the number of named relay circuits (spec GLOSSARY
// Circuit), 0-indexed per spec §4.6 ("circuit−1"): SPA=0, AUX1=1, AUX2=2,
// AUX3=3, FT1=4, POOL=5, FT2=6, FT3=7, FT4=8.
const CircuitCount = 9

const (
	CircuitSPA  = 0
	CircuitPool = 5
)

// Body identifies one of the two thermostat/temp targets.
type Body int

const (
	Pool Body = iota
	Spa
)

type Time struct{ Hour, Minute uint8 }
type Date struct{ Day, Month, Year uint8 }
type Version struct{ Major, Minor uint8 }

type Thermo struct {
	Temp     uint8
	SetPoint uint8
	HeatSrc  uint8
	Heating  bool
}

type Schedule struct {
	Circuit  int
	StartMin int
	StopMin  int
}

type Pump struct {
	Time    Time
	Mode    uint8
	Running bool
	State   uint8
	PowerW  int
	RPM     int
	GPM     uint8
	Pct     uint8
	Err     uint8
	TimerMin uint8
}

const ChlorStatusOK = 0x80

const (
	ChlorLowFlow  = 0x01
	ChlorLowSalt  = 0x02
	ChlorHighSalt = 0x04
	ChlorCleanCell = 0x10
	ChlorCold     = 0x40
)

type Chlor struct {
	Name   string
	Pct    uint8
	SaltPPM int
	Status  uint8
}

// Snapshot is the immutable-by-convention copy of PoolState held under the
// mutex (spec GLOSSARY Snapshot).
type Snapshot struct {
	System struct {
		Date    Date
		Time    Time
		Version Version
	}
	Temps struct {
		Air   uint8
		Solar uint8
	}
	Thermos  [2]Thermo // indexed by Body
	Scheds   [2]Schedule
	Circuits struct {
		Active [CircuitCount]bool
		Delay  [CircuitCount]bool
	}
	Pump  Pump
	Chlor Chlor
}

// Store is the single process-wide PoolState instance.
type Store struct {
	mu      sync.Mutex
	snap    Snapshot
	valid   bool
	metrics metrics.Metrics
}

func NewStore(m metrics.Metrics) *Store {
	if m == nil {
		m = metrics.NewDefault()
	}
	return &Store{metrics: m}
}

// Get copies out the current snapshot under mutex.
func (s *Store) Get() (Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap, s.valid
}

// Set replaces the snapshot under mutex and marks it valid.
func (s *Store) Set(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap = snap
	s.valid = true
}

// UpdateFrom clones the current snapshot, applies the mutation rule for
// msg.Kind, and writes back only if the result differs (spec §4.6). It
// returns whether the snapshot changed.
func (s *Store) UpdateFrom(msg netmsg.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	candidate := s.snap
	applyMutation(&candidate, msg)
	enforceInvariants(&candidate)

	if candidate == s.snap {
		s.metrics.IncrementStoreUnchanged()
		return false
	}
	s.snap = candidate
	s.valid = true
	s.metrics.IncrementStoreUpdated()
	return true
}

// enforceInvariants applies the cross-field invariants of spec §3 that must
// hold regardless of which message triggered the update.
func enforceInvariants(snap *Snapshot) {
	if snap.Circuits.Active[CircuitSPA] && snap.Circuits.Active[CircuitPool] {
		snap.Circuits.Active[CircuitPool] = false
	}
}

func applyMutation(snap *Snapshot, msg netmsg.Message) {
	switch msg.Kind {
	case netmsg.CtrlTime, netmsg.CtrlTimeSet:
		applyCtrlTime(snap, msg.Data)
	case netmsg.CtrlState:
		applyCtrlState(snap, msg.Data)
	case netmsg.CtrlHeat:
		applyCtrlHeat(snap, msg.Data)
	case netmsg.CtrlHeatSet:
		applyCtrlHeatSet(snap, msg.Data)
	case netmsg.CtrlSchedResp:
		applyCtrlSched(snap, msg.Data)
	case netmsg.CtrlCircuitSet:
		applyCtrlCircuitSet(snap, msg.Data)
	case netmsg.CtrlVersionResp:
		applyCtrlVersion(snap, msg.Data)
	case netmsg.PumpStatusResp:
		applyPumpStatus(snap, msg.Data)
	case netmsg.ChlorNameResp:
		applyChlorName(snap, msg.Data)
	case netmsg.ChlorLevelSet:
		applyChlorLevelSet(snap, msg.Data)
	case netmsg.ChlorLevelResp:
		applyChlorLevelResp(snap, msg.Data)
	}
}

// --- CTRL_STATE / CTRL_TIME ---
//
// Offsets below follow network_msg_ctrl_time_t and network_msg_ctrl_state_t
// in original_source/interface/main/network/network_msg.h, the actual wire
// structs (not poolstate.h, which only describes the decoded domain model).

// applyCtrlTime follows network_msg_ctrl_time_t: hour=0, minute=1,
// UNKNOWN/DST=2, day=3, month=4, year=5, clkSpeed=6, daylightSavings=7.
func applyCtrlTime(snap *Snapshot, d []byte) {
	if len(d) < 6 {
		return
	}
	snap.System.Time = Time{Hour: d[0], Minute: d[1]}
	snap.System.Date = Date{Day: d[3], Month: d[4], Year: d[5]}
}

// applyCtrlState follows network_msg_ctrl_state_t: hour=0, minute=1,
// activeLo=2, activeHi=3, UNKNOWN=4-8, remote=9, heating=10, UNKNOWN=11,
// delay=12, UNKNOWN=13, poolTemp=14, spaTemp=15, major=16, minor=17,
// airTemp=18, solarTemp=19, UNKNOWN=20-21, heatSrc=22, UNKNOWN=23-28.
func applyCtrlState(snap *Snapshot, d []byte) {
	if len(d) != 29 {
		return
	}
	snap.System.Time = Time{Hour: d[0], Minute: d[1]}

	active := uint16(d[2]) | uint16(d[3])<<8
	delay := d[12]
	for i := 0; i < CircuitCount; i++ {
		snap.Circuits.Active[i] = active&(1<<uint(i)) != 0
		snap.Circuits.Delay[i] = i < 8 && delay&(1<<uint(i)) != 0
	}

	poolTemp, spaTemp := d[14], d[15]
	if snap.Circuits.Active[CircuitPool] {
		snap.Thermos[Pool].Temp = poolTemp
	}
	if snap.Circuits.Active[CircuitSPA] {
		snap.Thermos[Spa].Temp = spaTemp
	}

	heatSrc := d[22]
	snap.Thermos[Pool].HeatSrc = heatSrc & 0x03
	snap.Thermos[Spa].HeatSrc = heatSrc >> 2

	heating := d[10]
	snap.Thermos[Pool].Heating = heating&0x04 != 0
	snap.Thermos[Spa].Heating = heating&0x08 != 0

	snap.System.Version = Version{Major: d[16], Minor: d[17]}
	snap.Temps.Air = d[18]
	snap.Temps.Solar = d[19]
}

// applyCtrlHeat follows network_msg_ctrl_heat_t: poolTemp=0, spaTemp=1,
// airTemp=2, poolTempSetpoint=3, spaTempSetpoint=4, heatSrc=5.
func applyCtrlHeat(snap *Snapshot, d []byte) {
	if len(d) != 13 {
		return
	}
	snap.Thermos[Pool].Temp = d[0]
	snap.Thermos[Spa].Temp = d[1]
	snap.Temps.Air = d[2]
	snap.Thermos[Pool].SetPoint = d[3]
	snap.Thermos[Spa].SetPoint = d[4]
	snap.Thermos[Pool].HeatSrc = d[5] & 0x03
	snap.Thermos[Spa].HeatSrc = d[5] >> 2
}

func applyCtrlHeatSet(snap *Snapshot, d []byte) {
	if len(d) != 4 {
		return
	}
	snap.Thermos[Pool].SetPoint = d[0]
	snap.Thermos[Spa].SetPoint = d[1]
	snap.Thermos[Pool].HeatSrc = d[2] & 0x03
	snap.Thermos[Spa].HeatSrc = d[2] >> 2
}

// applyCtrlSched follows network_msg_ctrl_sched_resp_t: a 4-byte
// UNKNOWN_0to3 prefix, then two 6-byte sub-records each laid out as
// {circuit=0, UNKNOWN_1=1, prgStartHi=2, prgStartLo=3, prgStopHi=4,
// prgStopLo=5}.
func applyCtrlSched(snap *Snapshot, d []byte) {
	if len(d) != 16 {
		return
	}
	for i := 0; i < 2; i++ {
		off := 4 + i*6
		circuit := int(d[off]) - 1
		start := int(d[off+2])<<8 | int(d[off+3])
		stop := int(d[off+4])<<8 | int(d[off+5])
		snap.Scheds[i] = Schedule{Circuit: circuit, StartMin: start, StopMin: stop}
	}
}

func applyCtrlCircuitSet(snap *Snapshot, d []byte) {
	if len(d) != 2 {
		return
	}
	circuit := int(d[0])
	if circuit < 0 || circuit >= CircuitCount {
		return
	}
	snap.Circuits.Active[circuit] = d[1] != 0
}

func applyCtrlVersion(snap *Snapshot, d []byte) {
	if len(d) != 2 {
		return
	}
	snap.System.Version = Version{Major: d[0], Minor: d[1]}
}

// applyPumpStatus follows the field order recovered from
// original_source/proto/pentair.h's mPumpStatus_a5_t: state, mode, status,
// powerHi, powerLo, rpmHi, rpmLo, gpm, pct, UNKNOWN_9, err, UNKNOWN_11,
// timer, hour, minute.
func applyPumpStatus(snap *Snapshot, d []byte) {
	if len(d) != 15 {
		return
	}
	switch d[0] {
	case 0x0A:
		snap.Pump.Running = true
	case 0x04:
		snap.Pump.Running = false
	}
	snap.Pump.Mode = d[1]
	snap.Pump.State = d[0]
	snap.Pump.PowerW = int(d[3])<<8 | int(d[4])
	snap.Pump.RPM = int(d[5])<<8 | int(d[6])
	snap.Pump.GPM = d[7]
	snap.Pump.Pct = d[8]
	snap.Pump.Err = d[10]
	snap.Pump.TimerMin = d[12]
	snap.Pump.Time = Time{Hour: d[13], Minute: d[14]}
}

func applyChlorName(snap *Snapshot, d []byte) {
	if len(d) != 17 {
		return
	}
	name := d[1:]
	n := len(name)
	for n > 0 && name[n-1] == 0 {
		n--
	}
	snap.Chlor.Name = string(name[:n])
}

func applyChlorLevelSet(snap *Snapshot, d []byte) {
	if len(d) != 1 {
		return
	}
	snap.Chlor.Pct = d[0]
}

func applyChlorLevelResp(snap *Snapshot, d []byte) {
	if len(d) != 2 {
		return
	}
	snap.Chlor.SaltPPM = int(d[0]) * 50
	snap.Chlor.Status = chlorStatus(d[1])
}

// chlorStatus derives the status code from the raw error bitfield by
// priority, per spec §3: LOW_FLOW > LOW_SALT > HIGH_SALT > CLEAN_CELL >
// COLD > OK; else OTHER.
func chlorStatus(raw uint8) uint8 {
	switch {
	case raw&ChlorLowFlow != 0:
		return ChlorLowFlow
	case raw&ChlorLowSalt != 0:
		return ChlorLowSalt
	case raw&ChlorHighSalt != 0:
		return ChlorHighSalt
	case raw&ChlorCleanCell != 0:
		return ChlorCleanCell
	case raw&ChlorCold != 0:
		return ChlorCold
	case raw&ChlorStatusOK != 0:
		return ChlorStatusOK
	default:
		return 0 // OTHER
	}
}
