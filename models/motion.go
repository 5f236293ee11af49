package models

import (
	"time"

	"plutocrat/damm"
)

// MotionStatus is the lifecycle state of a motion. A motion is never
// deleted; Resolved is terminal.
type MotionStatus string

const (
	MotionStatusOpen              MotionStatus = "open"
	MotionStatusPendingResolution MotionStatus = "pending_resolution"
	MotionStatusResolved          MotionStatus = "resolved"
)

// Motion is a proposal under weighted vote. Its id comes from the
// append-only motion_ids sequence, so ids are never reused even if a
// row were removed. AnnouncementMessageID is set exactly once, at
// resolution.
type Motion struct {
	ID                    int64     `db:"id"`
	CommandMessageID      int64     `db:"command_message_id"`
	BotMessageID          int64     `db:"bot_message_id"`
	Text                  string    `db:"motion_text"`
	MotionedAt            time.Time `db:"motioned_at"`
	LastResultChange      time.Time `db:"last_result_change"`
	IsSuper               bool      `db:"is_super"`
	AnnouncementMessageID *int64    `db:"announcement_message_id"`
	NeedsUpdate           bool      `db:"needs_update"`
	MotionedBy            int64     `db:"motioned_by"`
}

// PublicID returns the checksummed public form of the motion id, the
// only form ever shown to or accepted from users.
func (m *Motion) PublicID() string {
	return damm.Encode(m.ID)
}

// EndsAt returns the close of the voting window.
func (m *Motion) EndsAt(window time.Duration) time.Time {
	return m.MotionedAt.Add(window)
}

// IsResolved reports whether the motion has been finalized.
func (m *Motion) IsResolved() bool {
	return m.AnnouncementMessageID != nil
}

// Status computes the lifecycle state at the given instant.
func (m *Motion) Status(now time.Time, window time.Duration) MotionStatus {
	if m.IsResolved() {
		return MotionStatusResolved
	}
	if !now.Before(m.EndsAt(window)) {
		return MotionStatusPendingResolution
	}
	return MotionStatusOpen
}

// MotionWithTally is a motion together with its live vote totals.
type MotionWithTally struct {
	Motion
	YesTotal  int64
	NoTotal   int64
	IsWinning bool
}

// Winning applies the pass threshold: strict majority for ordinary
// motions, yes > no*ratio for supermajority motions. Ties fail.
func Winning(yes, no int64, isSuper bool, superRatio int64) bool {
	if isSuper {
		return yes > no*superRatio
	}
	return yes > no
}
