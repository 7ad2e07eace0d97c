// Package draft holds the session state document, the action reducer and the
// authoritative countdown timer. Everything here is pure: handlers load a
// document, burn elapsed time, apply one action and persist the result.
package draft

import (
	"encoding/json"
	"strings"
)

type Side string

const (
	SideBlue Side = "B"
	SideRed  Side = "R"
	SideNone Side = ""
)

// Ban sentinels inside a draft sequence. Any other token starting with
// "B" or "R" is a pick slot for that side.
const (
	TokenBlueBan = "BB"
	TokenRedBan  = "RR"
)

// SideOf reports which side owns a turn token. Tokens that do not start
// with B or R belong to no side and reject every side-dependent action.
func SideOf(token string) Side {
	switch {
	case strings.HasPrefix(token, "B"):
		return SideBlue
	case strings.HasPrefix(token, "R"):
		return SideRed
	default:
		return SideNone
	}
}

// IsBanToken reports whether a turn token is a ban slot.
func IsBanToken(token string) bool {
	return token == TokenBlueBan || token == TokenRedBan
}

// Slot is the value written into picks[i]: for picks a character plus
// accessory and upgrades, for bans a character with placeholder upgrades.
// Legacy documents use mindscape/wengineId/phase for the same three
// fields; both spellings are accepted on load and emitted on store so
// older clients keep working.
type Slot struct {
	CharacterCode string
	Eidolon       int
	AccessoryID   string
	Superimpose   int
	Ban           bool
}

type slotJSON struct {
	CharacterCode string  `json:"characterCode"`
	Eidolon       *int    `json:"eidolon,omitempty"`
	Mindscape     *int    `json:"mindscape,omitempty"`
	AccessoryID   *string `json:"accessoryId,omitempty"`
	WengineID     *string `json:"wengineId,omitempty"`
	Superimpose   *int    `json:"superimpose,omitempty"`
	Phase         *int    `json:"phase,omitempty"`
	Ban           bool    `json:"ban,omitempty"`
}

func (s *Slot) UnmarshalJSON(b []byte) error {
	var raw slotJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	s.CharacterCode = raw.CharacterCode
	s.Ban = raw.Ban
	s.Eidolon = 0
	if raw.Eidolon != nil {
		s.Eidolon = *raw.Eidolon
	} else if raw.Mindscape != nil {
		s.Eidolon = *raw.Mindscape
	}
	s.AccessoryID = ""
	if raw.AccessoryID != nil {
		s.AccessoryID = *raw.AccessoryID
	} else if raw.WengineID != nil {
		s.AccessoryID = *raw.WengineID
	}
	s.Superimpose = 1
	if raw.Superimpose != nil {
		s.Superimpose = *raw.Superimpose
	} else if raw.Phase != nil {
		s.Superimpose = *raw.Phase
	}
	return nil
}

func (s Slot) MarshalJSON() ([]byte, error) {
	eidolon, superimpose, accessory := s.Eidolon, s.Superimpose, s.AccessoryID
	return json.Marshal(slotJSON{
		CharacterCode: s.CharacterCode,
		Eidolon:       &eidolon,
		Mindscape:     &eidolon,
		AccessoryID:   &accessory,
		WengineID:     &accessory,
		Superimpose:   &superimpose,
		Phase:         &superimpose,
		Ban:           s.Ban,
	})
}

// SideSeconds carries a per-side number of seconds.
type SideSeconds struct {
	B float64 `json:"B"`
	R float64 `json:"R"`
}

func (v SideSeconds) Get(side Side) float64 {
	if side == SideRed {
		return v.R
	}
	return v.B
}

func (v *SideSeconds) Set(side Side, secs float64) {
	if side == SideRed {
		v.R = secs
		return
	}
	v.B = secs
}

// SideFlags carries a per-side boolean, e.g. pause or lock.
type SideFlags struct {
	B bool `json:"B"`
	R bool `json:"R"`
}

func (v SideFlags) Get(side Side) bool {
	if side == SideRed {
		return v.R
	}
	return v.B
}

// State is the document reduced by Apply and persisted as the session's
// state column. Fields the reducer does not know about (legacy aliases,
// display-only extras) survive a load/store round trip via extra.
type State struct {
	DraftSequence []string
	CurrentTurn   int
	Picks         []*Slot
	BlueScores    json.RawMessage
	RedScores     json.RawMessage
	BlueLocked    bool
	RedLocked     bool

	TimerEnabled   bool
	ReserveSeconds float64
	ReserveLeft    SideSeconds
	GraceLeft      float64
	Paused         SideFlags
	TimerUpdatedAt int64

	hasTimer bool
	extra    map[string]json.RawMessage
}

// Known state-document keys; everything else is preserved opaquely.
var stateKeys = map[string]struct{}{
	"draftSequence": {}, "currentTurn": {}, "picks": {},
	"blueScores": {}, "redScores": {}, "blueLocked": {}, "redLocked": {},
	"timerEnabled": {}, "reserveSeconds": {}, "reserveLeft": {},
	"graceLeft": {}, "paused": {}, "timerUpdatedAt": {},
}

func (st *State) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*st = State{}
	take := func(key string, dst any) error {
		v, ok := raw[key]
		if !ok || string(v) == "null" {
			return nil
		}
		return json.Unmarshal(v, dst)
	}
	if err := take("draftSequence", &st.DraftSequence); err != nil {
		return err
	}
	if err := take("currentTurn", &st.CurrentTurn); err != nil {
		return err
	}
	if err := take("picks", &st.Picks); err != nil {
		return err
	}
	if v, ok := raw["blueScores"]; ok {
		st.BlueScores = v
	}
	if v, ok := raw["redScores"]; ok {
		st.RedScores = v
	}
	if err := take("blueLocked", &st.BlueLocked); err != nil {
		return err
	}
	if err := take("redLocked", &st.RedLocked); err != nil {
		return err
	}
	if _, ok := raw["timerEnabled"]; ok {
		st.hasTimer = true
	}
	if err := take("timerEnabled", &st.TimerEnabled); err != nil {
		return err
	}
	if err := take("reserveSeconds", &st.ReserveSeconds); err != nil {
		return err
	}
	if err := take("reserveLeft", &st.ReserveLeft); err != nil {
		return err
	}
	if err := take("graceLeft", &st.GraceLeft); err != nil {
		return err
	}
	if err := take("paused", &st.Paused); err != nil {
		return err
	}
	if err := take("timerUpdatedAt", &st.TimerUpdatedAt); err != nil {
		return err
	}
	for k, v := range raw {
		if _, known := stateKeys[k]; known {
			continue
		}
		if st.extra == nil {
			st.extra = map[string]json.RawMessage{}
		}
		st.extra[k] = v
	}
	return nil
}

func (st State) MarshalJSON() ([]byte, error) {
	out := map[string]any{}
	for k, v := range st.extra {
		out[k] = v
	}
	out["draftSequence"] = st.DraftSequence
	out["currentTurn"] = st.CurrentTurn
	out["picks"] = st.Picks
	if st.BlueScores != nil {
		out["blueScores"] = st.BlueScores
	}
	if st.RedScores != nil {
		out["redScores"] = st.RedScores
	}
	out["blueLocked"] = st.BlueLocked
	out["redLocked"] = st.RedLocked
	if st.hasTimer {
		out["timerEnabled"] = st.TimerEnabled
		out["reserveSeconds"] = st.ReserveSeconds
		out["reserveLeft"] = st.ReserveLeft
		out["graceLeft"] = st.GraceLeft
		out["paused"] = st.Paused
		out["timerUpdatedAt"] = st.TimerUpdatedAt
	}
	return json.Marshal(out)
}

// Locked reports whether the given side has locked in.
func (st *State) Locked(side Side) bool {
	if side == SideRed {
		return st.RedLocked
	}
	return st.BlueLocked
}

func (st *State) setLocked(side Side) {
	if side == SideRed {
		st.RedLocked = true
		return
	}
	st.BlueLocked = true
}

// PickComplete reports whether every slot has been filled. The draft may
// still await side locks and the owner's completion flag.
func (st *State) PickComplete() bool {
	return st.CurrentTurn >= len(st.DraftSequence)
}
