package draft

import "errors"

// Rejection taxonomy. The transport surfaces these verbatim as short
// strings; the set is closed.
var (
	ErrInvalidArgument      = errors.New("invalid-argument")
	ErrWrongTurn            = errors.New("wrong-turn")
	ErrWrongSide            = errors.New("wrong-side")
	ErrSideLocked           = errors.New("side-locked")
	ErrGloballyBanned       = errors.New("globally-banned")
	ErrGloballyPickLocked   = errors.New("globally-pick-locked")
	ErrAlreadyPicked        = errors.New("already-picked-this-side")
	ErrNotABanSlot          = errors.New("not-a-ban-slot")
	ErrIsABanSlot           = errors.New("is-a-ban-slot")
	ErrEmptySlot            = errors.New("empty-slot")
	ErrNothingToUndo        = errors.New("nothing-to-undo")
	ErrDraftComplete        = errors.New("draft-complete")
	ErrDraftAlreadyComplete = errors.New("draft-already-completed")
)

// IsRejection reports whether err belongs to the reducer taxonomy, as
// opposed to an infrastructure failure.
func IsRejection(err error) bool {
	for _, e := range []error{
		ErrInvalidArgument, ErrWrongTurn, ErrWrongSide, ErrSideLocked,
		ErrGloballyBanned, ErrGloballyPickLocked, ErrAlreadyPicked,
		ErrNotABanSlot, ErrIsABanSlot, ErrEmptySlot, ErrNothingToUndo,
		ErrDraftComplete, ErrDraftAlreadyComplete,
	} {
		if errors.Is(err, e) {
			return true
		}
	}
	return false
}
