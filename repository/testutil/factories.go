package testutil

import (
	"plutocrat/models"
)

// CreateTestItemType creates an item type definition with default long names
func CreateTestItemType(name string) *models.ItemType {
	return &models.ItemType{
		Name:              name,
		LongNamePlural:    name + " coins",
		LongNameAmbiguous: name + " coin(s)",
	}
}

// CreateTestMotion creates a motion with default message references
func CreateTestMotion(creator int64, text string) *models.Motion {
	return &models.Motion{
		CommandMessageID: 1001,
		BotMessageID:     1002,
		Text:             text,
		MotionedBy:       creator,
	}
}

// CreateMintTransfer creates a fabrication transfer crediting a user
func CreateMintTransfer(to int64, itemType string, quantity, toBalance int64) *models.Transfer {
	return &models.Transfer{
		Kind:      models.TransferKindAdminFabricate,
		ItemType:  itemType,
		ToUser:    &to,
		Quantity:  quantity,
		ToBalance: &toBalance,
	}
}

// CreateGiveTransfer creates a user-to-user transfer with both snapshots
func CreateGiveTransfer(from, to int64, itemType string, quantity, fromBalance, toBalance int64) *models.Transfer {
	return &models.Transfer{
		Kind:        models.TransferKindGive,
		ItemType:    itemType,
		FromUser:    &from,
		ToUser:      &to,
		Quantity:    quantity,
		FromBalance: &fromBalance,
		ToBalance:   &toBalance,
	}
}

// CreateGeneratedTransfer creates a passive-income mint crediting a user
func CreateGeneratedTransfer(to int64, itemType string, quantity, toBalance int64) *models.Transfer {
	return &models.Transfer{
		Kind:      models.TransferKindGenerated,
		ItemType:  itemType,
		ToUser:    &to,
		Quantity:  quantity,
		ToBalance: &toBalance,
	}
}

// CreateTestVote creates a vote row
func CreateTestVote(user, motion int64, direction bool, amount int64) *models.MotionVote {
	return &models.MotionVote{
		User:      user,
		Motion:    motion,
		Direction: direction,
		Amount:    amount,
	}
}
