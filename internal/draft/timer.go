package draft

import "time"

// Grace is the per-turn free-time window preceding reserve consumption.
const Grace = 30.0

// EnsureTimer materializes missing timer fields on legacy or freshly
// seeded documents. Present fields are left untouched.
func EnsureTimer(st *State, enabled bool, reserveSeconds float64, now time.Time) {
	if st.hasTimer {
		return
	}
	st.hasTimer = true
	st.TimerEnabled = enabled
	st.ReserveSeconds = reserveSeconds
	st.ReserveLeft = SideSeconds{B: reserveSeconds, R: reserveSeconds}
	st.GraceLeft = Grace
	st.Paused = SideFlags{}
	st.TimerUpdatedAt = now.UnixMilli()
}

// Burn debits wall-clock time elapsed since the last checkpoint from the
// active side's grace window, then from its reserve, and rewrites the
// checkpoint. No time accrues while the active side is paused, while the
// slot is a frozen first ban, or once every slot is filled. Clients may
// drift or lie; this is the only clock that counts.
func Burn(st *State, now time.Time) {
	burnElapsed(st, now, SideNone)
}

// BurnForUndo debits the pending interval from the side whose slot is
// about to be rewound: a side taking back its own move pays for the time
// it let elapse, rather than handing the bill to whoever the cursor
// points at.
func BurnForUndo(st *State, now time.Time) {
	if st.CurrentTurn <= 0 || st.CurrentTurn > len(st.DraftSequence) {
		Burn(st, now)
		return
	}
	burnElapsed(st, now, SideOf(st.DraftSequence[st.CurrentTurn-1]))
}

// burnElapsed applies one checkpoint-to-now debit. The skip conditions
// (pause, frozen first ban, sideless token, pick-complete) are judged
// against the cursor, whose clock was the one running; debit, when not
// SideNone, overrides which reserve the spill lands on.
func burnElapsed(st *State, now time.Time, debit Side) {
	if !st.hasTimer || !st.TimerEnabled {
		return
	}
	nowMS := now.UnixMilli()
	dt := float64(nowMS-st.TimerUpdatedAt) / 1000
	if dt < 0 {
		dt = 0
	}
	st.TimerUpdatedAt = nowMS

	if st.PickComplete() {
		return
	}
	tok := st.DraftSequence[st.CurrentTurn]
	side := SideOf(tok)
	if side == SideNone || st.Paused.Get(side) || isFirstBanForSide(st.CurrentTurn, st.DraftSequence) {
		return
	}
	if debit != SideNone {
		side = debit
	}

	if dt <= st.GraceLeft {
		st.GraceLeft -= dt
		return
	}
	dt -= st.GraceLeft
	st.GraceLeft = 0

	left := st.ReserveLeft.Get(side) - dt
	if left < 0 {
		left = 0
	}
	st.ReserveLeft.Set(side, left)
}

// resetTurnClock runs after every action that moves the cursor, once the
// burn for the concluded turn has been applied.
func resetTurnClock(st *State, now time.Time) {
	if !st.hasTimer || !st.TimerEnabled {
		return
	}
	st.GraceLeft = Grace
	st.TimerUpdatedAt = now.UnixMilli()
}
