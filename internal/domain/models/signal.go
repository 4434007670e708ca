package models

import (
	"encoding/json"
	"time"
)

// NoMaster is the master_account sentinel used when a signal is published
// while no master is elected.
const NoMaster = "no_master"

// Signal is one trade instruction broadcast by the master. The typed core
// (id, timestamp, publisher snapshot) is fixed; everything the caller sent
// (action, symbol, lot size, ...) lives in Fields and is flattened into the
// top-level JSON object on the wire. Signals are immutable after creation.
type Signal struct {
	ID        string
	Timestamp time.Time
	Master    string
	Fields    map[string]interface{}
}

// reserved top-level keys owned by the server, not the caller
const (
	keySignalID  = "signal_id"
	keyTimestamp = "timestamp"
	keyMaster    = "master_account"
)

// UnixSeconds returns t as unix seconds with fractional part, the timestamp
// format trading clients parse.
func UnixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

// MarshalJSON flattens Fields next to the typed core. Reserved keys win on
// collision with caller-supplied fields.
func (s Signal) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{}, len(s.Fields)+3)
	for k, v := range s.Fields {
		out[k] = v
	}
	out[keySignalID] = s.ID
	out[keyTimestamp] = UnixSeconds(s.Timestamp)
	out[keyMaster] = s.Master
	return json.Marshal(out)
}

// UnmarshalJSON rebuilds the typed core and moves every other key back into
// Fields, so archived signals round-trip.
func (s *Signal) UnmarshalJSON(b []byte) error {
	var raw map[string]interface{}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	if v, ok := raw[keySignalID].(string); ok {
		s.ID = v
	}
	if v, ok := raw[keyTimestamp].(float64); ok {
		sec := int64(v)
		nsec := int64((v - float64(sec)) * float64(time.Second))
		s.Timestamp = time.Unix(sec, nsec)
	}
	if v, ok := raw[keyMaster].(string); ok {
		s.Master = v
	}
	delete(raw, keySignalID)
	delete(raw, keyTimestamp)
	delete(raw, keyMaster)
	s.Fields = raw
	return nil
}
