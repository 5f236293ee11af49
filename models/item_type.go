package models

// ItemType is a fungible currency. Rows are immutable once referenced
// by a transfer.
type ItemType struct {
	Name              string `db:"name"`
	LongNamePlural    string `db:"long_name_plural"`
	LongNameAmbiguous string `db:"long_name_ambiguous"`
}

// ItemTypeAlias maps an alternate spelling to a canonical item type
// name. Used only when parsing user input.
type ItemTypeAlias struct {
	Alias string `db:"alias"`
	Name  string `db:"name"`
}
