package draft

import "time"

// Action is the closed set of player operations. Handlers parse the wire
// envelope into one of these before the reducer runs; the reducer never
// branches on weak types.
type Action interface{ isAction() }

type Pick struct {
	Index         int
	CharacterCode string
}

type Ban struct {
	Index         int
	CharacterCode string
}

type SetEidolon struct {
	Index   int
	Eidolon int
}

type SetSuperimpose struct {
	Index       int
	Superimpose int
}

type SetAccessory struct {
	Index       int
	AccessoryID string
}

type SetLock struct {
	Locked bool
}

type Undo struct {
	// Index, when provided, must name the slot being undone.
	Index *int
}

func (Pick) isAction()           {}
func (Ban) isAction()            {}
func (SetEidolon) isAction()     {}
func (SetSuperimpose) isAction() {}
func (SetAccessory) isAction()   {}
func (SetLock) isAction()        {}
func (Undo) isAction()           {}

// Apply runs one player action against the state document. The caller
// has already burned elapsed time to now; Apply only performs the
// turn-boundary clock reset for actions that move the cursor. On
// rejection the state is untouched.
func Apply(st *State, rules Rules, side Side, act Action, now time.Time) error {
	switch a := act.(type) {
	case Pick:
		return applyPick(st, rules, side, a, now)
	case Ban:
		return applyBan(st, rules, side, a, now)
	case SetEidolon:
		slot, err := editableSlot(st, side, a.Index)
		if err != nil {
			return err
		}
		slot.Eidolon = clamp(a.Eidolon, 0, 6)
		return nil
	case SetSuperimpose:
		slot, err := editableSlot(st, side, a.Index)
		if err != nil {
			return err
		}
		slot.Superimpose = clamp(a.Superimpose, 1, 5)
		return nil
	case SetAccessory:
		slot, err := editableSlot(st, side, a.Index)
		if err != nil {
			return err
		}
		if a.AccessoryID != "" && rules.AccessoryGlobalBan[a.AccessoryID] {
			return ErrGloballyBanned
		}
		slot.AccessoryID = a.AccessoryID
		return nil
	case SetLock:
		return applySetLock(st, side, a)
	case Undo:
		return applyUndo(st, side, a, now)
	default:
		return ErrInvalidArgument
	}
}

func applyPick(st *State, rules Rules, side Side, a Pick, now time.Time) error {
	if st.Locked(side) {
		return ErrSideLocked
	}
	if st.PickComplete() {
		return ErrDraftComplete
	}
	if a.Index < 0 || a.Index >= len(st.DraftSequence) {
		return ErrInvalidArgument
	}
	if a.Index != st.CurrentTurn {
		return ErrWrongTurn
	}
	tok := st.DraftSequence[a.Index]
	if IsBanToken(tok) {
		return ErrIsABanSlot
	}
	if SideOf(tok) != side {
		return ErrWrongSide
	}
	if a.CharacterCode == "" {
		return ErrInvalidArgument
	}
	if rules.CharacterGlobalBan[a.CharacterCode] {
		return ErrGloballyBanned
	}
	if sideHasPicked(st, side, a.CharacterCode) {
		return ErrAlreadyPicked
	}
	st.Picks[a.Index] = &Slot{
		CharacterCode: a.CharacterCode,
		Eidolon:       0,
		AccessoryID:   "",
		Superimpose:   1,
	}
	st.CurrentTurn++
	resetTurnClock(st, now)
	return nil
}

func applyBan(st *State, rules Rules, side Side, a Ban, now time.Time) error {
	if st.Locked(side) {
		return ErrSideLocked
	}
	if st.PickComplete() {
		return ErrDraftComplete
	}
	if a.Index < 0 || a.Index >= len(st.DraftSequence) {
		return ErrInvalidArgument
	}
	if a.Index != st.CurrentTurn {
		return ErrWrongTurn
	}
	tok := st.DraftSequence[a.Index]
	if !IsBanToken(tok) {
		return ErrNotABanSlot
	}
	if SideOf(tok) != side {
		return ErrWrongSide
	}
	if a.CharacterCode == "" {
		return ErrInvalidArgument
	}
	if rules.CharacterGlobalPick[a.CharacterCode] {
		return ErrGloballyPickLocked
	}
	st.Picks[a.Index] = &Slot{
		CharacterCode: a.CharacterCode,
		Eidolon:       0,
		AccessoryID:   "",
		Superimpose:   1,
		Ban:           true,
	}
	st.CurrentTurn++
	resetTurnClock(st, now)
	return nil
}

func applySetLock(st *State, side Side, a SetLock) error {
	// Unlock is never accepted; lock is monotonic.
	if !a.Locked {
		return ErrInvalidArgument
	}
	if st.Locked(side) {
		return nil
	}
	if !st.PickComplete() {
		return ErrWrongTurn
	}
	st.setLocked(side)
	return nil
}

func applyUndo(st *State, side Side, a Undo, now time.Time) error {
	if st.Locked(side) {
		return ErrSideLocked
	}
	lastIdx := st.CurrentTurn - 1
	if lastIdx < 0 {
		return ErrNothingToUndo
	}
	if a.Index != nil && *a.Index != lastIdx {
		return ErrWrongTurn
	}
	if SideOf(st.DraftSequence[lastIdx]) != side {
		return ErrWrongSide
	}
	if st.Picks[lastIdx] == nil {
		return ErrEmptySlot
	}
	st.Picks[lastIdx] = nil
	st.CurrentTurn = lastIdx
	resetTurnClock(st, now)
	return nil
}

// editableSlot resolves the target of the slot-editing operations. Any
// filled, non-ban slot owned by the requester may be edited, including
// slots behind the cursor, as long as the side has not locked.
func editableSlot(st *State, side Side, index int) (*Slot, error) {
	if st.Locked(side) {
		return nil, ErrSideLocked
	}
	if index < 0 || index >= len(st.DraftSequence) {
		return nil, ErrInvalidArgument
	}
	tok := st.DraftSequence[index]
	if IsBanToken(tok) {
		return nil, ErrIsABanSlot
	}
	if SideOf(tok) != side {
		return nil, ErrWrongSide
	}
	if st.Picks[index] == nil {
		return nil, ErrEmptySlot
	}
	return st.Picks[index], nil
}

// sideHasPicked counts only pick slots; bans never contribute to
// duplicate detection.
func sideHasPicked(st *State, side Side, code string) bool {
	for i, tok := range st.DraftSequence {
		if IsBanToken(tok) || SideOf(tok) != side {
			continue
		}
		if slot := st.Picks[i]; slot != nil && slot.CharacterCode == code {
			return true
		}
	}
	return false
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
