package profile

import (
	"encoding/json"
	"errors"
	"time"
)

// ErrNotFound is returned by repositories when no record exists for an id.
var ErrNotFound = errors.New("profile: record not found")

// Flags are durable moderation/status bits.
type Flags struct {
	Banned   bool `json:"banned,omitempty"`
	Muted    bool `json:"muted,omitempty"`
	Operator bool `json:"operator,omitempty"`
}

// Record is the durable per-player state. The three sub-documents are
// opaque JSON at this layer; game systems own their shape and the load
// pipeline validates them against the schemas in validate.go.
type Record struct {
	ID   string
	Name string

	Flags Flags

	CreatedAtUnix int64
	LastSeenUnix  int64
	PlaytimeSecs  int64

	Inventory json.RawMessage
	Stats     json.RawMessage
	Social    json.RawMessage
}

// NewRecord builds the default record persisted on a player's first
// connection, before the profile is ever exposed to the cache.
func NewRecord(id, name string) *Record {
	now := time.Now().Unix()
	inv, _ := json.Marshal(defaultInventoryDoc())
	st, _ := json.Marshal(defaultStatsDoc())
	so, _ := json.Marshal(defaultSocialDoc())
	return &Record{
		ID:            id,
		Name:          name,
		CreatedAtUnix: now,
		LastSeenUnix:  now,
		Inventory:     inv,
		Stats:         st,
		Social:        so,
	}
}

// Clone returns a deep copy. Savers persist clones so the live record can
// keep being re-snapshotted while I/O is in flight.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	cp := *r
	cp.Inventory = append(json.RawMessage(nil), r.Inventory...)
	cp.Stats = append(json.RawMessage(nil), r.Stats...)
	cp.Social = append(json.RawMessage(nil), r.Social...)
	return &cp
}

// Equal compares durable content, ignoring LastSeenUnix which every
// snapshot refreshes.
func (r *Record) Equal(o *Record) bool {
	if r == nil || o == nil {
		return r == o
	}
	return r.ID == o.ID &&
		r.Name == o.Name &&
		r.Flags == o.Flags &&
		r.CreatedAtUnix == o.CreatedAtUnix &&
		r.PlaytimeSecs == o.PlaytimeSecs &&
		jsonEqual(r.Inventory, o.Inventory) &&
		jsonEqual(r.Stats, o.Stats) &&
		jsonEqual(r.Social, o.Social)
}

func jsonEqual(a, b json.RawMessage) bool {
	if len(a) == 0 || len(b) == 0 {
		return len(a) == len(b)
	}
	var av, bv any
	if err := json.Unmarshal(a, &av); err != nil {
		return false
	}
	if err := json.Unmarshal(b, &bv); err != nil {
		return false
	}
	ab, _ := json.Marshal(av)
	bb, _ := json.Marshal(bv)
	return string(ab) == string(bb)
}
