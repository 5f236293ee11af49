package models

import (
	"time"
)

// TransferKind represents the business meaning of a ledger transfer.
// The set is closed: the ledger enforces minting and burning rules per
// kind, so new kinds must be added here and nowhere else.
type TransferKind string

const (
	TransferKindGive             TransferKind = "give"
	TransferKindAdminGive        TransferKind = "admin_give"
	TransferKindAdminFabricate   TransferKind = "admin_fabricate"
	TransferKindCommandFabricate TransferKind = "command_fabricate"
	TransferKindMotionCreate     TransferKind = "motion_create"
	TransferKindMotionVote       TransferKind = "motion_vote"
	TransferKindGenerated        TransferKind = "generated"
)

// Valid reports whether k is one of the known transfer kinds.
func (k TransferKind) Valid() bool {
	switch k {
	case TransferKindGive, TransferKindAdminGive, TransferKindAdminFabricate,
		TransferKindCommandFabricate, TransferKindMotionCreate,
		TransferKindMotionVote, TransferKindGenerated:
		return true
	}
	return false
}

// Mints reports whether transfers of this kind create currency out of
// nothing. Minting kinds carry no source user and skip the balance check.
func (k TransferKind) Mints() bool {
	switch k {
	case TransferKindAdminFabricate, TransferKindCommandFabricate, TransferKindGenerated:
		return true
	}
	return false
}

// Transfer is an immutable, append-only ledger entry. At least one of
// FromUser/ToUser is set; a transfer with no destination burns currency.
// FromBalance/ToBalance are the post-transfer balance snapshots for the
// respective sides and form the snapshot chain per (user, item type).
type Transfer struct {
	ID          int64        `db:"id"`
	Kind        TransferKind `db:"transfer_kind"`
	ItemType    string       `db:"item_type"`
	FromUser    *int64       `db:"from_user"`
	ToUser      *int64       `db:"to_user"`
	Quantity    int64        `db:"quantity"`
	FromBalance *int64       `db:"from_balance"`
	ToBalance   *int64       `db:"to_balance"`
	HappenedAt  time.Time    `db:"happened_at"`
	MessageID   *int64       `db:"message_id"`
	ToMotion    *int64       `db:"to_motion"`
	VoteCount   *int64       `db:"vote_count"`
	Comment     *string      `db:"comment"`
}

// BalanceEntry is one row of the balance_history view: a single user's
// side of a transfer, with the signed quantity and the post-transfer
// balance snapshot for that user. Derived from transfers, never stored.
type BalanceEntry struct {
	TransferID int64        `db:"transfer_id"`
	User       int64        `db:"user"`
	ItemType   string       `db:"item_type"`
	Balance    int64        `db:"balance"`
	Quantity   int64        `db:"quantity"`
	Sign       int          `db:"sign"`
	HappenedAt time.Time    `db:"happened_at"`
	Kind       TransferKind `db:"transfer_kind"`
	OtherParty *int64       `db:"other_party"`
	ToMotion   *int64       `db:"to_motion"`
	VoteCount  *int64       `db:"vote_count"`
	MessageID  *int64       `db:"message_id"`
	Comment    *string      `db:"comment"`
}
