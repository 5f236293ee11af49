package repository

import (
	"context"
	"fmt"

	"plutocrat/database"
	"plutocrat/models"

	"github.com/jackc/pgx/v5"
)

// ItemTypeRepository implements the ItemTypeRepository interface
type ItemTypeRepository struct {
	q queryable
}

// NewItemTypeRepository creates a new item type repository
func NewItemTypeRepository(db *database.DB) *ItemTypeRepository {
	return &ItemTypeRepository{q: db.Pool}
}

// newItemTypeRepositoryWithTx creates a new item type repository with a transaction
func newItemTypeRepositoryWithTx(tx queryable) *ItemTypeRepository {
	return &ItemTypeRepository{q: tx}
}

// GetAll returns every defined item type
func (r *ItemTypeRepository) GetAll(ctx context.Context) ([]*models.ItemType, error) {
	query := `
		SELECT name, long_name_plural, long_name_ambiguous
		FROM item_types
		ORDER BY name
	`

	rows, err := r.q.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to get item types: %w", err)
	}
	defer rows.Close()

	var itemTypes []*models.ItemType
	for rows.Next() {
		var it models.ItemType
		if err := rows.Scan(&it.Name, &it.LongNamePlural, &it.LongNameAmbiguous); err != nil {
			return nil, fmt.Errorf("failed to scan item type: %w", err)
		}
		itemTypes = append(itemTypes, &it)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate item types: %w", err)
	}

	return itemTypes, nil
}

// GetByName retrieves an item type by canonical name
func (r *ItemTypeRepository) GetByName(ctx context.Context, name string) (*models.ItemType, error) {
	query := `
		SELECT name, long_name_plural, long_name_ambiguous
		FROM item_types
		WHERE name = $1
	`

	var it models.ItemType
	err := r.q.QueryRow(ctx, query, name).Scan(&it.Name, &it.LongNamePlural, &it.LongNameAmbiguous)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get item type %s: %w", name, err)
	}

	return &it, nil
}

// ResolveName maps a name or alias to the canonical item type name
func (r *ItemTypeRepository) ResolveName(ctx context.Context, name string) (string, error) {
	query := `
		SELECT name FROM item_types WHERE name = $1
		UNION
		SELECT name FROM item_type_aliases WHERE alias = $1
		LIMIT 1
	`

	var canonical string
	err := r.q.QueryRow(ctx, query, name).Scan(&canonical)
	if err == pgx.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to resolve item type name %s: %w", name, err)
	}

	return canonical, nil
}

// Create defines a new item type
func (r *ItemTypeRepository) Create(ctx context.Context, itemType *models.ItemType) error {
	query := `
		INSERT INTO item_types (name, long_name_plural, long_name_ambiguous)
		VALUES ($1, $2, $3)
	`

	_, err := r.q.Exec(ctx, query, itemType.Name, itemType.LongNamePlural, itemType.LongNameAmbiguous)
	if err != nil {
		return fmt.Errorf("failed to create item type %s: %w", itemType.Name, err)
	}

	return nil
}

// CreateAlias maps an alternate name to a canonical item type
func (r *ItemTypeRepository) CreateAlias(ctx context.Context, alias, name string) error {
	query := `
		INSERT INTO item_type_aliases (alias, name)
		VALUES ($1, $2)
	`

	_, err := r.q.Exec(ctx, query, alias, name)
	if err != nil {
		return fmt.Errorf("failed to create alias %s for item type %s: %w", alias, name, err)
	}

	return nil
}
