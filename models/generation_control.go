package models

import "time"

// GenerationControl is the single-row record that serializes the
// passive-income job. LastGen is the last successfully committed
// generation time; the row's exclusive lock is the only coordination
// point between concurrently running generators.
type GenerationControl struct {
	LastGen time.Time `db:"last_gen"`
}
