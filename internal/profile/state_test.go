package profile

import (
	"encoding/json"
	"testing"
)

func TestFromRecordAppliesDefaults(t *testing.T) {
	rec := NewRecord("p1", "Alice")
	rec.Inventory, rec.Stats, rec.Social = nil, nil, nil

	p, err := FromRecord(rec)
	if err != nil {
		t.Fatalf("FromRecord: %v", err)
	}
	if p.State.HP != 20 || p.State.MaxHP != 20 || p.State.Attack != 1 {
		t.Fatalf("defaults not applied: %+v", p.State)
	}
	if p.State.Inventory == nil {
		t.Fatalf("inventory map not initialized")
	}
	if p.State.AFK {
		t.Fatalf("transient AFK flag must start false")
	}
	if p.SessionStartUnix == 0 {
		t.Fatalf("session start not stamped")
	}
}

func TestFromRecordHydratesDocuments(t *testing.T) {
	rec := NewRecord("p1", "Alice")
	rec.Inventory, _ = json.Marshal(InventoryDoc{
		Items:     map[string]int{"bread": 4},
		Equipment: EquipmentDoc{MainHand: "iron_sword"},
	})
	rec.Stats, _ = json.Marshal(StatsDoc{HP: 11, MaxHP: 30, Attack: 5, Pos: [3]int{1, 2, 3}})
	rec.Social, _ = json.Marshal(SocialDoc{Rank: "veteran", Friends: []string{"p2"}})

	p, err := FromRecord(rec)
	if err != nil {
		t.Fatalf("FromRecord: %v", err)
	}
	if p.State.Inventory["bread"] != 4 || p.State.Equipment.MainHand != "iron_sword" {
		t.Fatalf("inventory: %+v", p.State)
	}
	if p.State.HP != 11 || p.State.MaxHP != 30 || p.State.Pos != [3]int{1, 2, 3} {
		t.Fatalf("stats: %+v", p.State)
	}
	if p.State.Rank != "veteran" || len(p.State.Friends) != 1 {
		t.Fatalf("social: %+v", p.State)
	}
}

func TestFromRecordRejectsMalformedDoc(t *testing.T) {
	rec := NewRecord("p1", "Alice")
	rec.Stats = json.RawMessage(`{"hp": "high"}`)
	if _, err := FromRecord(rec); err == nil {
		t.Fatalf("malformed stats doc must fail")
	}
}

func TestSnapshotReturnsIndependentClone(t *testing.T) {
	p, err := FromRecord(NewRecord("p1", "Alice"))
	if err != nil {
		t.Fatalf("FromRecord: %v", err)
	}
	p.State.Inventory["coin"] = 1

	snap, err := p.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}

	// Mutations after the snapshot must not leak into the clone.
	p.State.Inventory["coin"] = 99
	if _, err := p.Snapshot(); err != nil {
		t.Fatalf("second Snapshot: %v", err)
	}

	var inv InventoryDoc
	if err := json.Unmarshal(snap.Inventory, &inv); err != nil {
		t.Fatalf("decode snapshot inventory: %v", err)
	}
	if inv.Items["coin"] != 1 {
		t.Fatalf("snapshot observed a later mutation: %+v", inv.Items)
	}
}

func TestSnapshotAccruesPlaytime(t *testing.T) {
	p, err := FromRecord(NewRecord("p1", "Alice"))
	if err != nil {
		t.Fatalf("FromRecord: %v", err)
	}
	p.SessionStartUnix -= 90 // pretend the session started 90s ago

	snap, err := p.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if snap.PlaytimeSecs < 90 {
		t.Fatalf("playtime not accrued: %d", snap.PlaytimeSecs)
	}
	// The second snapshot must not double-count the same interval.
	snap2, err := p.Snapshot()
	if err != nil {
		t.Fatalf("second Snapshot: %v", err)
	}
	if snap2.PlaytimeSecs-snap.PlaytimeSecs > 2 {
		t.Fatalf("interval double-counted: %d -> %d", snap.PlaytimeSecs, snap2.PlaytimeSecs)
	}
}

func TestValidateRejectsCorruptDocuments(t *testing.T) {
	cases := []struct {
		name string
		mod  func(*Record)
	}{
		{"negative hp", func(r *Record) { r.Stats = json.RawMessage(`{"hp":-1,"max_hp":20}`) }},
		{"zero max hp", func(r *Record) { r.Stats = json.RawMessage(`{"hp":1,"max_hp":0}`) }},
		{"negative item count", func(r *Record) {
			r.Inventory = json.RawMessage(`{"items":{"bread":-2}}`)
		}},
		{"missing items", func(r *Record) { r.Inventory = json.RawMessage(`{}`) }},
		{"bad tags", func(r *Record) { r.Social = json.RawMessage(`{"tags":[1,2]}`) }},
		{"not json", func(r *Record) { r.Social = json.RawMessage(`{{`) }},
	}
	for _, tc := range cases {
		rec := NewRecord("p1", "Alice")
		tc.mod(rec)
		if err := Validate(rec); err == nil {
			t.Errorf("%s: corrupt record passed validation", tc.name)
		}
	}
}

func TestValidateAllowsEmptyDocuments(t *testing.T) {
	rec := NewRecord("p1", "Alice")
	rec.Inventory, rec.Stats, rec.Social = nil, nil, nil
	if err := Validate(rec); err != nil {
		t.Fatalf("empty documents must be accepted: %v", err)
	}
	if err := Validate(nil); err == nil {
		t.Fatalf("nil record must be rejected")
	}
}
