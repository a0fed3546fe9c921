package profile

import (
	"encoding/json"
	"fmt"
	"time"
)

// Sub-document shapes. The coordinator never looks inside these; they are
// the contract between the repository blobs and the game systems.

type InventoryDoc struct {
	Items     map[string]int `json:"items"`
	Equipment EquipmentDoc   `json:"equipment"`
}

type EquipmentDoc struct {
	MainHand string    `json:"main_hand,omitempty"`
	Armor    [4]string `json:"armor,omitempty"`
}

type StatsDoc struct {
	HP      int    `json:"hp"`
	MaxHP   int    `json:"max_hp"`
	Attack  int    `json:"attack"`
	Defense int    `json:"defense"`
	Pos     [3]int `json:"pos"`
}

type SocialDoc struct {
	Rank    string   `json:"rank,omitempty"`
	Tags    []string `json:"tags,omitempty"`
	Friends []string `json:"friends,omitempty"`
}

func defaultInventoryDoc() InventoryDoc {
	return InventoryDoc{Items: map[string]int{}}
}

func defaultStatsDoc() StatsDoc {
	return StatsDoc{HP: 20, MaxHP: 20, Attack: 1, Defense: 0}
}

func defaultSocialDoc() SocialDoc {
	return SocialDoc{}
}

// State is the live, session-scoped mutable state game systems operate on.
// It is copied into the record only by Snapshot, under the profile's lock.
type State struct {
	Pos [3]int

	HP      int
	MaxHP   int
	Attack  int
	Defense int

	Inventory map[string]int
	Equipment EquipmentDoc

	Rank    string
	Tags    []string
	Friends []string

	// Transient, never persisted.
	AFK bool
}

func (s *State) InitDefaults() {
	if s.Inventory == nil {
		s.Inventory = map[string]int{}
	}
	if s.MaxHP == 0 {
		s.MaxHP = 20
	}
	if s.HP == 0 {
		s.HP = s.MaxHP
	}
	if s.Attack == 0 {
		s.Attack = 1
	}
	s.AFK = false
}

// Profile pairs a durable record with its session's live state. The record
// fields are mutated only inside Snapshot; everything else treats them as
// the last persisted image.
type Profile struct {
	ID   string
	Name string

	Record *Record
	State  State

	SessionStartUnix int64
}

// FromRecord builds the live profile handed to game systems after a
// successful load. Callers are expected to have validated the record.
func FromRecord(rec *Record) (*Profile, error) {
	p := &Profile{
		ID:               rec.ID,
		Name:             rec.Name,
		Record:           rec,
		SessionStartUnix: time.Now().Unix(),
	}

	var inv InventoryDoc
	if len(rec.Inventory) > 0 {
		if err := json.Unmarshal(rec.Inventory, &inv); err != nil {
			return nil, fmt.Errorf("inventory doc: %w", err)
		}
	}
	var st StatsDoc
	if len(rec.Stats) > 0 {
		if err := json.Unmarshal(rec.Stats, &st); err != nil {
			return nil, fmt.Errorf("stats doc: %w", err)
		}
	}
	var so SocialDoc
	if len(rec.Social) > 0 {
		if err := json.Unmarshal(rec.Social, &so); err != nil {
			return nil, fmt.Errorf("social doc: %w", err)
		}
	}

	p.State = State{
		Pos:       st.Pos,
		HP:        st.HP,
		MaxHP:     st.MaxHP,
		Attack:    st.Attack,
		Defense:   st.Defense,
		Inventory: inv.Items,
		Equipment: inv.Equipment,
		Rank:      so.Rank,
		Tags:      so.Tags,
		Friends:   so.Friends,
	}
	p.State.InitDefaults()
	return p, nil
}

// Snapshot copies the live state into the record and returns a deep copy
// for persistence. Callers must hold the profile's exclusive lock across
// the call; the returned clone is safe to persist without it.
func (p *Profile) Snapshot() (*Record, error) {
	now := time.Now().Unix()

	items := make(map[string]int, len(p.State.Inventory))
	for k, v := range p.State.Inventory {
		items[k] = v
	}
	inv, err := json.Marshal(InventoryDoc{Items: items, Equipment: p.State.Equipment})
	if err != nil {
		return nil, fmt.Errorf("inventory doc: %w", err)
	}
	st, err := json.Marshal(StatsDoc{
		HP:      p.State.HP,
		MaxHP:   p.State.MaxHP,
		Attack:  p.State.Attack,
		Defense: p.State.Defense,
		Pos:     p.State.Pos,
	})
	if err != nil {
		return nil, fmt.Errorf("stats doc: %w", err)
	}
	so, err := json.Marshal(SocialDoc{
		Rank:    p.State.Rank,
		Tags:    append([]string(nil), p.State.Tags...),
		Friends: append([]string(nil), p.State.Friends...),
	})
	if err != nil {
		return nil, fmt.Errorf("social doc: %w", err)
	}

	p.Record.Name = p.Name
	p.Record.LastSeenUnix = now
	if p.SessionStartUnix > 0 && now > p.SessionStartUnix {
		p.Record.PlaytimeSecs += now - p.SessionStartUnix
		p.SessionStartUnix = now
	}
	p.Record.Inventory = inv
	p.Record.Stats = st
	p.Record.Social = so

	return p.Record.Clone(), nil
}
