package draft

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func seqState() *State {
	st := &State{
		DraftSequence: []string{"BB", "RR", "B", "R", "B", "R"},
		Picks:         make([]*Slot, 6),
	}
	return st
}

func timedState(now time.Time) *State {
	st := seqState()
	EnsureTimer(st, true, 180, now)
	return st
}

func mustApply(t *testing.T, st *State, side Side, act Action, now time.Time) {
	t.Helper()
	if err := Apply(st, Rules{}, side, act, now); err != nil {
		t.Fatalf("apply %T: %v", act, err)
	}
}

func TestHappyPathToCompletion(t *testing.T) {
	now := time.Unix(1000, 0)
	st := timedState(now)

	mustApply(t, st, SideBlue, Ban{Index: 0, CharacterCode: "c1"}, now)
	mustApply(t, st, SideRed, Ban{Index: 1, CharacterCode: "c2"}, now)
	mustApply(t, st, SideBlue, Pick{Index: 2, CharacterCode: "c3"}, now)
	mustApply(t, st, SideRed, Pick{Index: 3, CharacterCode: "c4"}, now)
	mustApply(t, st, SideBlue, Pick{Index: 4, CharacterCode: "c5"}, now)
	mustApply(t, st, SideRed, Pick{Index: 5, CharacterCode: "c6"}, now)

	if st.CurrentTurn != 6 {
		t.Fatalf("currentTurn = %d, want 6", st.CurrentTurn)
	}
	for i, slot := range st.Picks {
		if slot == nil {
			t.Fatalf("picks[%d] empty after full draft", i)
		}
		wantBan := i < 2
		if slot.Ban != wantBan {
			t.Fatalf("picks[%d].Ban = %v, want %v", i, slot.Ban, wantBan)
		}
	}

	mustApply(t, st, SideBlue, SetLock{Locked: true}, now)
	mustApply(t, st, SideRed, SetLock{Locked: true}, now)
	if !st.BlueLocked || !st.RedLocked {
		t.Fatalf("both sides should be locked")
	}
}

func TestRejections(t *testing.T) {
	now := time.Unix(1000, 0)
	idx4 := 4

	cases := []struct {
		name    string
		setup   func() *State
		side    Side
		act     Action
		wantErr error
	}{
		{
			name:    "red cannot act on blue ban slot",
			setup:   seqState,
			side:    SideRed,
			act:     Ban{Index: 0, CharacterCode: "c1"},
			wantErr: ErrWrongSide,
		},
		{
			name:    "pick on a ban slot",
			setup:   seqState,
			side:    SideBlue,
			act:     Pick{Index: 0, CharacterCode: "c1"},
			wantErr: ErrIsABanSlot,
		},
		{
			name: "ban on a pick slot",
			setup: func() *State {
				st := seqState()
				st.CurrentTurn = 2
				st.Picks[0] = &Slot{CharacterCode: "c1", Ban: true}
				st.Picks[1] = &Slot{CharacterCode: "c2", Ban: true}
				return st
			},
			side:    SideBlue,
			act:     Ban{Index: 2, CharacterCode: "c3"},
			wantErr: ErrNotABanSlot,
		},
		{
			name:    "index ahead of cursor",
			setup:   seqState,
			side:    SideBlue,
			act:     Pick{Index: 2, CharacterCode: "c3"},
			wantErr: ErrWrongTurn,
		},
		{
			name:    "index out of range",
			setup:   seqState,
			side:    SideBlue,
			act:     Pick{Index: 9, CharacterCode: "c3"},
			wantErr: ErrInvalidArgument,
		},
		{
			name: "duplicate pick same side",
			setup: func() *State {
				st := seqState()
				st.CurrentTurn = 4
				st.Picks[0] = &Slot{CharacterCode: "x1", Ban: true}
				st.Picks[1] = &Slot{CharacterCode: "x2", Ban: true}
				st.Picks[2] = &Slot{CharacterCode: "c3"}
				st.Picks[3] = &Slot{CharacterCode: "c4"}
				return st
			},
			side:    SideBlue,
			act:     Pick{Index: 4, CharacterCode: "c3"},
			wantErr: ErrAlreadyPicked,
		},
		{
			name: "banned character is not a duplicate",
			setup: func() *State {
				st := seqState()
				st.CurrentTurn = 2
				st.Picks[0] = &Slot{CharacterCode: "c3", Ban: true}
				st.Picks[1] = &Slot{CharacterCode: "c2", Ban: true}
				return st
			},
			side:    SideBlue,
			act:     Pick{Index: 2, CharacterCode: "c3"},
			wantErr: nil,
		},
		{
			name: "locked side cannot act",
			setup: func() *State {
				st := seqState()
				st.BlueLocked = true
				return st
			},
			side:    SideBlue,
			act:     Ban{Index: 0, CharacterCode: "c1"},
			wantErr: ErrSideLocked,
		},
		{
			name: "pick after last slot",
			setup: func() *State {
				st := seqState()
				st.CurrentTurn = 6
				for i := range st.Picks {
					st.Picks[i] = &Slot{CharacterCode: "c" + string(rune('1'+i))}
				}
				return st
			},
			side:    SideRed,
			act:     Pick{Index: 5, CharacterCode: "c9"},
			wantErr: ErrDraftComplete,
		},
		{
			name:    "lock before pick-complete",
			setup:   seqState,
			side:    SideBlue,
			act:     SetLock{Locked: true},
			wantErr: ErrWrongTurn,
		},
		{
			name:    "unlock is never accepted",
			setup:   seqState,
			side:    SideBlue,
			act:     SetLock{Locked: false},
			wantErr: ErrInvalidArgument,
		},
		{
			name:    "undo with nothing drafted",
			setup:   seqState,
			side:    SideBlue,
			act:     Undo{},
			wantErr: ErrNothingToUndo,
		},
		{
			name: "undo with stale index",
			setup: func() *State {
				st := seqState()
				st.CurrentTurn = 2
				st.Picks[0] = &Slot{CharacterCode: "c1", Ban: true}
				st.Picks[1] = &Slot{CharacterCode: "c2", Ban: true}
				return st
			},
			side:    SideRed,
			act:     Undo{Index: &idx4},
			wantErr: ErrWrongTurn,
		},
		{
			name: "undo other side's slot",
			setup: func() *State {
				st := seqState()
				st.CurrentTurn = 1
				st.Picks[0] = &Slot{CharacterCode: "c1", Ban: true}
				return st
			},
			side:    SideRed,
			act:     Undo{},
			wantErr: ErrWrongSide,
		},
		{
			name: "edit empty slot",
			setup: func() *State {
				st := seqState()
				return st
			},
			side:    SideBlue,
			act:     SetEidolon{Index: 2, Eidolon: 3},
			wantErr: ErrEmptySlot,
		},
		{
			name: "edit ban slot",
			setup: func() *State {
				st := seqState()
				st.CurrentTurn = 1
				st.Picks[0] = &Slot{CharacterCode: "c1", Ban: true}
				return st
			},
			side:    SideBlue,
			act:     SetEidolon{Index: 0, Eidolon: 3},
			wantErr: ErrIsABanSlot,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			st := tc.setup()
			before, _ := json.Marshal(st)
			err := Apply(st, Rules{}, tc.side, tc.act, now)
			if tc.wantErr == nil {
				if err != nil {
					t.Fatalf("unexpected err: %v", err)
				}
				return
			}
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("err = %v, want %v", err, tc.wantErr)
			}
			after, _ := json.Marshal(st)
			if string(before) != string(after) {
				t.Fatalf("rejected action mutated state:\n%s\n%s", before, after)
			}
		})
	}
}

func TestFeaturedRules(t *testing.T) {
	now := time.Unix(1000, 0)

	rules := CompileRules([]FeaturedRule{
		{Kind: "character", Code: "c3", Rule: RuleGlobalBan},
		{Kind: "character", Code: "c7", Rule: RuleGlobalPick},
		{Kind: "accessory", ID: "a1", Rule: RuleGlobalBan},
	})

	st := seqState()
	st.CurrentTurn = 2
	st.Picks[0] = &Slot{CharacterCode: "x1", Ban: true}
	st.Picks[1] = &Slot{CharacterCode: "x2", Ban: true}

	if err := Apply(st, rules, SideBlue, Pick{Index: 2, CharacterCode: "c3"}, now); !errors.Is(err, ErrGloballyBanned) {
		t.Fatalf("global ban: err = %v", err)
	}

	st2 := seqState()
	if err := Apply(st2, rules, SideBlue, Ban{Index: 0, CharacterCode: "c7"}, now); !errors.Is(err, ErrGloballyPickLocked) {
		t.Fatalf("global pick: err = %v", err)
	}

	// Global ban wins over the side's own duplicate.
	st3 := seqState()
	st3.CurrentTurn = 4
	st3.Picks[0] = &Slot{CharacterCode: "x1", Ban: true}
	st3.Picks[1] = &Slot{CharacterCode: "x2", Ban: true}
	st3.Picks[2] = &Slot{CharacterCode: "c3"}
	st3.Picks[3] = &Slot{CharacterCode: "c4"}
	if err := Apply(st3, rules, SideBlue, Pick{Index: 4, CharacterCode: "c3"}, now); !errors.Is(err, ErrGloballyBanned) {
		t.Fatalf("ban should precede duplicate: err = %v", err)
	}

	st4 := seqState()
	st4.CurrentTurn = 3
	st4.Picks[0] = &Slot{CharacterCode: "x1", Ban: true}
	st4.Picks[1] = &Slot{CharacterCode: "x2", Ban: true}
	st4.Picks[2] = &Slot{CharacterCode: "c5"}
	if err := Apply(st4, rules, SideBlue, SetAccessory{Index: 2, AccessoryID: "a1"}, now); !errors.Is(err, ErrGloballyBanned) {
		t.Fatalf("accessory global ban: err = %v", err)
	}
}

func TestSlotEditsAndClamping(t *testing.T) {
	now := time.Unix(1000, 0)
	st := seqState()
	st.CurrentTurn = 3
	st.Picks[0] = &Slot{CharacterCode: "x1", Ban: true}
	st.Picks[1] = &Slot{CharacterCode: "x2", Ban: true}
	st.Picks[2] = &Slot{CharacterCode: "c3", Superimpose: 1}

	mustApply(t, st, SideBlue, SetEidolon{Index: 2, Eidolon: 7}, now)
	if st.Picks[2].Eidolon != 6 {
		t.Fatalf("eidolon = %d, want clamp to 6", st.Picks[2].Eidolon)
	}
	mustApply(t, st, SideBlue, SetSuperimpose{Index: 2, Superimpose: 0}, now)
	if st.Picks[2].Superimpose != 1 {
		t.Fatalf("superimpose = %d, want clamp to 1", st.Picks[2].Superimpose)
	}
	mustApply(t, st, SideBlue, SetAccessory{Index: 2, AccessoryID: "a9"}, now)
	if st.Picks[2].AccessoryID != "a9" {
		t.Fatalf("accessoryId = %q", st.Picks[2].AccessoryID)
	}
	mustApply(t, st, SideBlue, SetAccessory{Index: 2, AccessoryID: ""}, now)
	if st.Picks[2].AccessoryID != "" {
		t.Fatalf("accessory should clear")
	}

	// Edits stay legal behind the cursor but never move it.
	if st.CurrentTurn != 3 {
		t.Fatalf("currentTurn moved to %d on slot edit", st.CurrentTurn)
	}
}

func TestSetLockIdempotent(t *testing.T) {
	now := time.Unix(1000, 0)
	st := seqState()
	st.CurrentTurn = 6
	for i := range st.Picks {
		st.Picks[i] = &Slot{CharacterCode: "c" + string(rune('1'+i))}
	}
	mustApply(t, st, SideBlue, SetLock{Locked: true}, now)
	mustApply(t, st, SideBlue, SetLock{Locked: true}, now)
	if !st.BlueLocked {
		t.Fatalf("blue should stay locked")
	}
}

func TestPickUndoRoundTrip(t *testing.T) {
	now := time.Unix(1000, 0)
	st := seqState()
	st.CurrentTurn = 2
	st.Picks[0] = &Slot{CharacterCode: "c1", Ban: true}
	st.Picks[1] = &Slot{CharacterCode: "c2", Ban: true}
	before, _ := json.Marshal(st)

	mustApply(t, st, SideBlue, Pick{Index: 2, CharacterCode: "c3"}, now)
	mustApply(t, st, SideBlue, Undo{}, now)

	after, _ := json.Marshal(st)
	if string(before) != string(after) {
		t.Fatalf("pick+undo should round-trip:\n%s\n%s", before, after)
	}
}

func TestParseFeaturedCoercion(t *testing.T) {
	cases := []struct {
		name    string
		raw     string
		wantErr bool
		check   func(t *testing.T, rules []FeaturedRule)
	}{
		{
			name: "unknown rule coerces to none",
			raw:  `[{"kind":"character","code":"c1","rule":"banish"}]`,
			check: func(t *testing.T, rules []FeaturedRule) {
				if rules[0].Rule != RuleNone {
					t.Fatalf("rule = %q, want none", rules[0].Rule)
				}
			},
		},
		{
			name: "unknown fields are discarded",
			raw:  `[{"kind":"accessory","id":"a1","rule":"globalBan","sparkle":true}]`,
			check: func(t *testing.T, rules []FeaturedRule) {
				if rules[0].ID != "a1" || rules[0].Rule != RuleGlobalBan {
					t.Fatalf("rule mangled: %+v", rules[0])
				}
			},
		},
		{
			name:    "accessory globalPick rejected",
			raw:     `[{"kind":"accessory","id":"a1","rule":"globalPick"}]`,
			wantErr: true,
		},
		{
			name:    "unknown kind rejected",
			raw:     `[{"kind":"weapon","id":"a1","rule":"none"}]`,
			wantErr: true,
		},
		{
			name: "null list is empty",
			raw:  `null`,
			check: func(t *testing.T, rules []FeaturedRule) {
				if len(rules) != 0 {
					t.Fatalf("want empty, got %d", len(rules))
				}
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rules, err := ParseFeatured(json.RawMessage(tc.raw))
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected err: %v", err)
			}
			if tc.check != nil {
				tc.check(t, rules)
			}
		})
	}
}

func TestStatePreservesUnknownFields(t *testing.T) {
	raw := `{"draftSequence":["BB","RR","B","R"],"currentTurn":0,"picks":[null,null,null,null],"legacyNote":"kept","blueScores":[1,2]}`
	var st State
	if err := json.Unmarshal([]byte(raw), &st); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	out, err := json.Marshal(&st)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(out, &m); err != nil {
		t.Fatalf("re-unmarshal: %v", err)
	}
	if string(m["legacyNote"]) != `"kept"` {
		t.Fatalf("unknown field dropped: %s", out)
	}
	if string(m["blueScores"]) != `[1,2]` {
		t.Fatalf("scores not preserved: %s", out)
	}
}

func TestSlotLegacyAliases(t *testing.T) {
	var slot Slot
	if err := json.Unmarshal([]byte(`{"characterCode":"c1","mindscape":4,"wengineId":"w7","phase":3}`), &slot); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if slot.Eidolon != 4 || slot.AccessoryID != "w7" || slot.Superimpose != 3 {
		t.Fatalf("aliases not read: %+v", slot)
	}
	out, _ := json.Marshal(slot)
	var m map[string]json.RawMessage
	_ = json.Unmarshal(out, &m)
	for _, k := range []string{"eidolon", "mindscape", "accessoryId", "wengineId", "superimpose", "phase"} {
		if _, ok := m[k]; !ok {
			t.Fatalf("normalized slot missing %q: %s", k, out)
		}
	}
}

func TestValidateShape(t *testing.T) {
	ok := seqState()
	if err := ValidateShape(ok); err != nil {
		t.Fatalf("valid shape rejected: %v", err)
	}

	bad := seqState()
	bad.CurrentTurn = 2 // slots below the cursor must be filled
	if err := ValidateShape(bad); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("want invalid-argument, got %v", err)
	}

	short := seqState()
	short.Picks = short.Picks[:3]
	if err := ValidateShape(short); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("want invalid-argument, got %v", err)
	}
}
