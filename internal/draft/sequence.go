package draft

// Supported session modes. Variant A runs team drafts (2v2, 3v3), variant
// B runs ban-heavy drafts (2ban, 3ban, 6ban). The mode fixes the default
// turn sequence and the default cost limit; owners may still seed a custom
// sequence through the initial state document.
var modeSequences = map[string][]string{
	"2v2":  {TokenBlueBan, TokenRedBan, "B", "R", "R", "B"},
	"3v3":  {TokenBlueBan, TokenRedBan, "B", "R", "R", "B", "B", "R"},
	"2ban": {TokenBlueBan, TokenRedBan, TokenBlueBan, TokenRedBan, "B", "R", "R", "B"},
	"3ban": {TokenBlueBan, TokenRedBan, TokenBlueBan, TokenRedBan, TokenBlueBan, TokenRedBan, "B", "R", "R", "B"},
	"6ban": {
		TokenBlueBan, TokenRedBan, TokenBlueBan, TokenRedBan, TokenBlueBan, TokenRedBan,
		TokenBlueBan, TokenRedBan, TokenBlueBan, TokenRedBan, TokenBlueBan, TokenRedBan,
		"B", "R", "R", "B",
	},
}

// ValidMode reports whether mode names a known draft variant.
func ValidMode(mode string) bool {
	_, ok := modeSequences[mode]
	return ok
}

// DefaultCostLimit is 6 for the two-slot variants and 9 for the rest.
func DefaultCostLimit(mode string) float64 {
	switch mode {
	case "2v2", "2ban":
		return 6
	default:
		return 9
	}
}

// DefaultPenaltyPerPoint applies when the owner does not set one.
const DefaultPenaltyPerPoint = 2500

// NewState seeds a fresh document for the given mode.
func NewState(mode string) *State {
	seq := modeSequences[mode]
	st := &State{
		DraftSequence: append([]string(nil), seq...),
		Picks:         make([]*Slot, len(seq)),
	}
	return st
}

// ValidateShape checks the structural invariants an owner-supplied state
// document must satisfy before it is persisted: a non-empty sequence,
// picks of matching length, a cursor within bounds, and filled slots
// exactly below the cursor.
func ValidateShape(st *State) error {
	if len(st.DraftSequence) == 0 {
		return ErrInvalidArgument
	}
	if len(st.Picks) != len(st.DraftSequence) {
		return ErrInvalidArgument
	}
	if st.CurrentTurn < 0 || st.CurrentTurn > len(st.DraftSequence) {
		return ErrInvalidArgument
	}
	for i, slot := range st.Picks {
		if i < st.CurrentTurn && slot == nil {
			return ErrInvalidArgument
		}
		if i >= st.CurrentTurn && slot != nil {
			return ErrInvalidArgument
		}
	}
	return nil
}

// isFirstBanForSide reports whether the slot at idx is the first ban slot
// of its side: no clock runs there.
func isFirstBanForSide(idx int, seq []string) bool {
	if idx < 0 || idx >= len(seq) || !IsBanToken(seq[idx]) {
		return false
	}
	for i := 0; i < idx; i++ {
		if seq[i] == seq[idx] {
			return false
		}
	}
	return true
}
