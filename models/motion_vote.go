package models

// MotionVote is a user's current vote on a motion, keyed by
// (user, motion). Re-voting replaces the row; Amount is the currency
// weight currently staked, not a running total of casts.
type MotionVote struct {
	User      int64 `db:"user"`
	Motion    int64 `db:"motion"`
	Direction bool  `db:"direction"`
	Amount    int64 `db:"amount"`
}
